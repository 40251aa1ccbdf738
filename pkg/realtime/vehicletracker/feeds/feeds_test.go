package feeds

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/avlengine/pkg/ctdf"
	"google.golang.org/protobuf/proto"
)

type recordingSubmitter struct {
	reports []ctdf.AvlReport
	reject  string
}

func (s *recordingSubmitter) Submit(report ctdf.AvlReport) error {
	if report.VehicleID == s.reject {
		return errors.New("rejected")
	}
	s.reports = append(s.reports, report)
	return nil
}

func vehiclePositionsFeed(t *testing.T) []byte {
	feed := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(1700000000),
		},
		Entity: []*gtfs.FeedEntity{
			{
				Id: proto.String("1"),
				Vehicle: &gtfs.VehiclePosition{
					Trip:      &gtfs.TripDescriptor{TripId: proto.String("trip-1")},
					Vehicle:   &gtfs.VehicleDescriptor{Id: proto.String("bus-1")},
					Position:  &gtfs.Position{Latitude: proto.Float32(51.5), Longitude: proto.Float32(-0.1), Speed: proto.Float32(5), Bearing: proto.Float32(90)},
					Timestamp: proto.Uint64(1700000000),
				},
			},
			{
				Id: proto.String("2"),
				Vehicle: &gtfs.VehiclePosition{
					Trip:      &gtfs.TripDescriptor{RouteId: proto.String("route-9")},
					Position:  &gtfs.Position{Latitude: proto.Float32(51.6), Longitude: proto.Float32(-0.2)},
					Timestamp: proto.Uint64(1700000010),
				},
			},
			{
				Id: proto.String("no-position"),
				Vehicle: &gtfs.VehiclePosition{
					Vehicle:   &gtfs.VehicleDescriptor{Id: proto.String("bus-3")},
					Timestamp: proto.Uint64(1700000000),
				},
			},
		},
	}

	body, err := proto.Marshal(feed)
	require.NoError(t, err)
	return body
}

func TestDecodeVehiclePositions(t *testing.T) {
	reports, err := DecodeVehiclePositions(vehiclePositionsFeed(t))
	require.NoError(t, err)
	require.Len(t, reports, 2)

	assert.Equal(t, "bus-1", reports[0].VehicleID)
	assert.Equal(t, time.Unix(1700000000, 0), reports[0].Time)
	assert.InDelta(t, 51.5, reports[0].Location.Latitude(), 1e-5)
	assert.InDelta(t, -0.1, reports[0].Location.Longitude(), 1e-5)
	require.NotNil(t, reports[0].Speed)
	assert.InDelta(t, 5.0, *reports[0].Speed, 1e-9)
	require.NotNil(t, reports[0].Heading)
	assert.InDelta(t, 90.0, *reports[0].Heading, 1e-9)
	assert.Equal(t, ctdf.AssignmentTypeTripID, reports[0].AssignmentType)
	assert.Equal(t, "trip-1", reports[0].AssignmentID)

	// entity id stands in for a missing vehicle id
	assert.Equal(t, "2", reports[1].VehicleID)
	assert.Equal(t, ctdf.AssignmentTypeRouteID, reports[1].AssignmentType)
	assert.Equal(t, "route-9", reports[1].AssignmentID)
	assert.Nil(t, reports[1].Speed)
}

func TestDecodeVehiclePositionsRejectsGarbage(t *testing.T) {
	_, err := DecodeVehiclePositions([]byte("not a protobuf \xff\xff"))
	assert.Error(t, err)
}

func TestPollSubmitsReports(t *testing.T) {
	body := vehiclePositionsFeed(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer server.Close()

	target := &recordingSubmitter{reject: "2"}
	poller := NewGTFSRTPoller(server.URL, time.Minute, target)

	accepted, err := poller.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, accepted)
	require.Len(t, target.reports, 1)
	assert.Equal(t, "bus-1", target.reports[0].VehicleID)
}

func TestPollFailsOnBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	poller := NewGTFSRTPoller(server.URL, time.Minute, &recordingSubmitter{})
	_, err := poller.Poll(context.Background())
	assert.Error(t, err)
}

func TestReadCSV(t *testing.T) {
	data := `vehicle_id,time,latitude,longitude,speed,heading,assignment_id,assignment_type
bus-2,2024-03-04T10:00:30Z,51.5,-0.1,4.5,180,block-1,BLOCK_ID
bus-1,2024-03-04T10:00:00Z,51.4,-0.2,,,,
`
	reports, err := ReadCSV(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, reports, 2)

	assert.Equal(t, "bus-1", reports[0].VehicleID)
	assert.Nil(t, reports[0].Speed)
	assert.False(t, reports[0].HasAssignment())

	assert.Equal(t, "bus-2", reports[1].VehicleID)
	require.NotNil(t, reports[1].Speed)
	assert.InDelta(t, 4.5, *reports[1].Speed, 1e-9)
	assert.Equal(t, ctdf.AssignmentTypeBlockID, reports[1].AssignmentType)
	assert.Equal(t, "CSV", reports[1].Source)
}

func TestReadCSVBadTime(t *testing.T) {
	data := `vehicle_id,time,latitude,longitude
bus-1,yesterday,51.4,-0.2
`
	_, err := ReadCSV(strings.NewReader(data))
	assert.Error(t, err)
}

func TestPollSiriVM(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<Siri><ServiceDelivery><VehicleMonitoringDelivery>
<VehicleActivity>
  <RecordedAtTime>2024-03-12T08:00:45Z</RecordedAtTime>
  <MonitoredVehicleJourney>
    <VehicleLocation><Longitude>-0.1</Longitude><Latitude>51.5</Latitude></VehicleLocation>
    <BlockRef>B1</BlockRef>
    <VehicleRef>bus-7</VehicleRef>
  </MonitoredVehicleJourney>
</VehicleActivity>
</VehicleMonitoringDelivery></ServiceDelivery></Siri>`))
	}))
	defer server.Close()

	target := &recordingSubmitter{}
	accepted, err := NewSiriVMPoller(server.URL, time.Minute, target).Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, accepted)
	assert.Equal(t, "bus-7", target.reports[0].VehicleID)
	assert.Equal(t, ctdf.AssignmentTypeBlockID, target.reports[0].AssignmentType)
}
