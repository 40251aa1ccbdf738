package feeds

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/travigo/avlengine/pkg/ctdf"
)

const csvSource = "CSV"

// AvlRecord is one row of an AVL replay file
type AvlRecord struct {
	VehicleID      string   `csv:"vehicle_id"`
	Time           string   `csv:"time"`
	Latitude       float64  `csv:"latitude"`
	Longitude      float64  `csv:"longitude"`
	Speed          *float64 `csv:"speed,omitempty"`
	Heading        *float64 `csv:"heading,omitempty"`
	AssignmentID   string   `csv:"assignment_id"`
	AssignmentType string   `csv:"assignment_type"`
}

func (r AvlRecord) report() (ctdf.AvlReport, error) {
	recorded, err := time.Parse(time.RFC3339, r.Time)
	if err != nil {
		return ctdf.AvlReport{}, fmt.Errorf("vehicle %s: %w", r.VehicleID, err)
	}

	return ctdf.AvlReport{
		VehicleID:      r.VehicleID,
		Time:           recorded,
		Location:       ctdf.NewLocation(r.Latitude, r.Longitude),
		Speed:          r.Speed,
		Heading:        r.Heading,
		AssignmentID:   r.AssignmentID,
		AssignmentType: ctdf.AssignmentType(r.AssignmentType),
		Source:         csvSource,
	}, nil
}

// ReadCSV parses an AVL replay file into reports ordered by time
func ReadCSV(reader io.Reader) ([]ctdf.AvlReport, error) {
	// Allow rows with missing trailing columns
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		r := csv.NewReader(in)
		r.FieldsPerRecord = -1
		return r
	})

	var records []AvlRecord
	if err := gocsv.Unmarshal(reader, &records); err != nil {
		return nil, err
	}

	reports := make([]ctdf.AvlReport, 0, len(records))
	for _, record := range records {
		report, err := record.report()
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}

	sort.SliceStable(reports, func(i, j int) bool {
		return reports[i].Time.Before(reports[j].Time)
	})

	return reports, nil
}
