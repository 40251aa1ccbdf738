package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/avlengine/pkg/ctdf"
	"github.com/travigo/avlengine/pkg/realtime/vehiclestate"
)

type fakeTracker struct {
	snapshots   map[string]vehiclestate.Snapshot
	predictions map[string][]ctdf.Prediction
}

func (f *fakeTracker) CurrentState(vehicleID string) (vehiclestate.Snapshot, error) {
	snapshot, ok := f.snapshots[vehicleID]
	if !ok {
		return vehiclestate.Snapshot{}, errors.New("unknown")
	}
	return snapshot, nil
}

func (f *fakeTracker) Predictions(stopID string) []ctdf.Prediction {
	return f.predictions[stopID]
}

func (f *fakeTracker) VehiclePredictions(vehicleID string) []ctdf.Prediction {
	var predictions []ctdf.Prediction
	for _, stopPredictions := range f.predictions {
		for _, prediction := range stopPredictions {
			if prediction.VehicleID == vehicleID {
				predictions = append(predictions, prediction)
			}
		}
	}
	return predictions
}

func (f *fakeTracker) ActiveVehicles() []string {
	var ids []string
	for id := range f.snapshots {
		ids = append(ids, id)
	}
	return ids
}

func newFakeTracker() *fakeTracker {
	at := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	return &fakeTracker{
		snapshots: map[string]vehiclestate.Snapshot{
			"bus-1": {
				VehicleID:    "bus-1",
				Status:       vehiclestate.StatusPredictable,
				Predictable:  true,
				BlockID:      "block-1",
				AssignmentID: "block-1",
				BadMatches:   1,
			},
		},
		predictions: map[string][]ctdf.Prediction{
			"stop-b": {
				{VehicleID: "bus-1", StopID: "stop-b", Arrival: at.Add(2 * time.Minute)},
				{VehicleID: "bus-2", StopID: "stop-b", Arrival: at.Add(5 * time.Minute)},
			},
		},
	}
}

func get(t *testing.T, path string) (int, map[string]interface{}, []interface{}) {
	app := NewApp(newFakeTracker())

	resp, err := app.Test(httptest.NewRequest("GET", path, nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var object map[string]interface{}
	if json.Unmarshal(body, &object) == nil {
		return resp.StatusCode, object, nil
	}
	var list []interface{}
	require.NoError(t, json.Unmarshal(body, &list))
	return resp.StatusCode, nil, list
}

func TestVersion(t *testing.T) {
	status, body, _ := get(t, "/core/version")
	assert.Equal(t, 200, status)
	assert.Equal(t, "v0.1", body["version"])
}

func TestListVehicles(t *testing.T) {
	status, body, _ := get(t, "/core/vehicles")
	assert.Equal(t, 200, status)
	assert.Equal(t, []interface{}{"bus-1"}, body["vehicles"])
}

func TestGetVehicleReducesByGroup(t *testing.T) {
	status, body, _ := get(t, "/core/vehicles/bus-1")
	assert.Equal(t, 200, status)
	assert.Equal(t, "bus-1", body["VehicleID"])
	assert.Equal(t, "PREDICTABLE", body["Status"])
	assert.NotContains(t, body, "AssignmentID")

	_, detailed, _ := get(t, "/core/vehicles/bus-1?detailed=true")
	assert.Equal(t, "block-1", detailed["AssignmentID"])
	assert.EqualValues(t, 1, detailed["BadMatches"])
}

func TestGetUnknownVehicle(t *testing.T) {
	status, body, _ := get(t, "/core/vehicles/nope")
	assert.Equal(t, 404, status)
	assert.Contains(t, body, "error")
}

func TestStopPredictions(t *testing.T) {
	status, _, list := get(t, "/core/stops/stop-b/predictions")
	assert.Equal(t, 200, status)
	assert.Len(t, list, 2)

	_, _, limited := get(t, "/core/stops/stop-b/predictions?limit=1")
	require.Len(t, limited, 1)
	assert.Equal(t, "bus-1", limited[0].(map[string]interface{})["VehicleID"])
}

func TestStopWithoutPredictions(t *testing.T) {
	status, _, list := get(t, "/core/stops/unknown/predictions")
	assert.Equal(t, 200, status)
	assert.Empty(t, list)
}
