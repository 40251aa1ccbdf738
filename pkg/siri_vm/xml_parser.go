package siri_vm

import (
	"encoding/xml"
	"io"
)

// ParseXML streams a SIRI-VM service delivery, decoding one VehicleActivity at a time
func ParseXML(reader io.Reader) (*SiriVM, error) {
	siriVM := SiriVM{}

	d := xml.NewDecoder(reader)
	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch start.Name.Local {
		case "VehicleActivity":
			var activity VehicleActivity
			if err := d.DecodeElement(&activity, &start); err != nil {
				return nil, err
			}
			siriVM.VehicleActivity = append(siriVM.VehicleActivity, &activity)
		case "ResponseTimestamp":
			// the service delivery's own timestamp comes first
			if siriVM.ResponseTimestamp == "" {
				if err := d.DecodeElement(&siriVM.ResponseTimestamp, &start); err != nil {
					return nil, err
				}
			}
		case "ProducerRef":
			if err := d.DecodeElement(&siriVM.ProducerRef, &start); err != nil {
				return nil, err
			}
		}
	}

	return &siriVM, nil
}
