package siri_vm

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/avlengine/pkg/ctdf"
)

const serviceDelivery = `<?xml version="1.0" encoding="UTF-8"?>
<Siri xmlns="http://www.siri.org.uk/siri" version="2.0">
  <ServiceDelivery>
    <ResponseTimestamp>2024-03-12T08:01:00.123+00:00</ResponseTimestamp>
    <ProducerRef>DfT</ProducerRef>
    <VehicleMonitoringDelivery>
      <ResponseTimestamp>2024-03-12T08:01:00.123+00:00</ResponseTimestamp>
      <VehicleActivity>
        <RecordedAtTime>2024-03-12T08:00:45+00:00</RecordedAtTime>
        <MonitoredVehicleJourney>
          <LineRef>R1</LineRef>
          <FramedVehicleJourneyRef>
            <DataFrameRef>2024-03-12</DataFrameRef>
            <DatedVehicleJourneyRef>B1_trip0</DatedVehicleJourneyRef>
          </FramedVehicleJourneyRef>
          <VehicleLocation>
            <Longitude>-0.1</Longitude>
            <Latitude>51.5</Latitude>
          </VehicleLocation>
          <Bearing>90</Bearing>
          <BlockRef>B1</BlockRef>
          <VehicleRef>bus-1</VehicleRef>
        </MonitoredVehicleJourney>
        <Extensions>
          <VehicleJourney>
            <SeatedOccupancy>30</SeatedOccupancy>
            <SeatedCapacity>40</SeatedCapacity>
            <WheelchairOccupancy>0</WheelchairOccupancy>
            <WheelchairCapacity>1</WheelchairCapacity>
          </VehicleJourney>
        </Extensions>
      </VehicleActivity>
      <VehicleActivity>
        <RecordedAtTime>2024-03-12T08:00:50.5+00:00</RecordedAtTime>
        <MonitoredVehicleJourney>
          <LineRef>R9</LineRef>
          <VehicleLocation>
            <Longitude>-0.2</Longitude>
            <Latitude>51.6</Latitude>
          </VehicleLocation>
          <VehicleRef>bus-2</VehicleRef>
        </MonitoredVehicleJourney>
      </VehicleActivity>
      <VehicleActivity>
        <RecordedAtTime>not a time</RecordedAtTime>
        <MonitoredVehicleJourney>
          <VehicleRef>bus-3</VehicleRef>
        </MonitoredVehicleJourney>
      </VehicleActivity>
    </VehicleMonitoringDelivery>
  </ServiceDelivery>
</Siri>`

func TestParseXML(t *testing.T) {
	siriVM, err := ParseXML(strings.NewReader(serviceDelivery))
	require.NoError(t, err)

	assert.Equal(t, "2024-03-12T08:01:00.123+00:00", siriVM.ResponseTimestamp)
	assert.Equal(t, "DfT", siriVM.ProducerRef)
	assert.Len(t, siriVM.VehicleActivity, 3)
}

func TestAvlReports(t *testing.T) {
	siriVM, err := ParseXML(strings.NewReader(serviceDelivery))
	require.NoError(t, err)

	reports := siriVM.AvlReports()
	require.Len(t, reports, 2)

	first := reports[0]
	assert.Equal(t, "bus-1", first.VehicleID)
	assert.True(t, first.Time.Equal(time.Date(2024, 3, 12, 8, 0, 45, 0, time.UTC)))
	assert.InDelta(t, 51.5, first.Location.Latitude(), 1e-9)
	assert.Equal(t, ctdf.AssignmentTypeBlockID, first.AssignmentType)
	assert.Equal(t, "B1", first.AssignmentID)
	require.NotNil(t, first.Heading)
	assert.InDelta(t, 90, *first.Heading, 1e-9)
	require.NotNil(t, first.PassengerCount)
	assert.Equal(t, 30, *first.PassengerCount)
	require.NotNil(t, first.PassengerFullness)
	assert.InDelta(t, 30.0/41.0, *first.PassengerFullness, 1e-9)
	assert.Equal(t, Source, first.Source)

	second := reports[1]
	assert.Equal(t, ctdf.AssignmentTypeRouteID, second.AssignmentType)
	assert.Equal(t, "R9", second.AssignmentID)
	assert.Nil(t, second.Heading)
	assert.Nil(t, second.PassengerCount)
}

func TestParseXMLMalformed(t *testing.T) {
	_, err := ParseXML(strings.NewReader(`<Siri><ServiceDelivery><VehicleActivity>`))
	assert.Error(t, err)
}
