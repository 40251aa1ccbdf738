package siri_vm

type VehicleActivity struct {
	RecordedAtTime string                   `xml:"RecordedAtTime"`
	Journey        *MonitoredVehicleJourney `xml:"MonitoredVehicleJourney"`
	Occupancy      Occupancy                `xml:"Extensions>VehicleJourney"`
}

// MonitoredVehicleJourney keeps only what locates and assigns the vehicle
type MonitoredVehicleJourney struct {
	VehicleRef string `xml:"VehicleRef"`

	LineRef         string `xml:"LineRef"`
	DatedJourneyRef string `xml:"FramedVehicleJourneyRef>DatedVehicleJourneyRef"`
	BlockRef        string `xml:"BlockRef"`

	Latitude  float64  `xml:"VehicleLocation>Latitude"`
	Longitude float64  `xml:"VehicleLocation>Longitude"`
	Bearing   *float64 `xml:"Bearing"`
}

// Occupancy from the UK profile's vehicle journey extension
type Occupancy struct {
	Seated             int `xml:"SeatedOccupancy"`
	SeatedCapacity     int `xml:"SeatedCapacity"`
	Wheelchair         int `xml:"WheelchairOccupancy"`
	WheelchairCapacity int `xml:"WheelchairCapacity"`
}

func (o Occupancy) Passengers() int {
	return o.Seated + o.Wheelchair
}

func (o Occupancy) Capacity() int {
	return o.SeatedCapacity + o.WheelchairCapacity
}
