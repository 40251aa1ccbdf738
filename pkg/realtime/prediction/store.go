package prediction

import (
	"sync"

	"github.com/travigo/avlengine/pkg/ctdf"
	"golang.org/x/exp/slices"
)

// Store holds the latest predictions of every vehicle, indexed by vehicle and by stop.
// A vehicle's predictions are always replaced as a whole.
type Store struct {
	mutex     sync.RWMutex
	byVehicle map[string][]ctdf.Prediction
	byStop    map[string]map[string][]ctdf.Prediction
}

func NewStore() *Store {
	return &Store{
		byVehicle: map[string][]ctdf.Prediction{},
		byStop:    map[string]map[string][]ctdf.Prediction{},
	}
}

func (s *Store) Set(vehicleID string, predictions []ctdf.Prediction) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.clear(vehicleID)
	if len(predictions) == 0 {
		return
	}

	s.byVehicle[vehicleID] = predictions
	for _, prediction := range predictions {
		vehicles, ok := s.byStop[prediction.StopID]
		if !ok {
			vehicles = map[string][]ctdf.Prediction{}
			s.byStop[prediction.StopID] = vehicles
		}
		vehicles[vehicleID] = append(vehicles[vehicleID], prediction)
	}
}

func (s *Store) Clear(vehicleID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.clear(vehicleID)
}

func (s *Store) clear(vehicleID string) {
	for _, prediction := range s.byVehicle[vehicleID] {
		if vehicles, ok := s.byStop[prediction.StopID]; ok {
			delete(vehicles, vehicleID)
			if len(vehicles) == 0 {
				delete(s.byStop, prediction.StopID)
			}
		}
	}
	delete(s.byVehicle, vehicleID)
}

func (s *Store) ForVehicle(vehicleID string) []ctdf.Prediction {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return append([]ctdf.Prediction(nil), s.byVehicle[vehicleID]...)
}

// ForStop returns the predictions for a stop across all vehicles ordered by time
func (s *Store) ForStop(stopID string) []ctdf.Prediction {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	predictions := []ctdf.Prediction{}
	for _, vehiclePredictions := range s.byStop[stopID] {
		predictions = append(predictions, vehiclePredictions...)
	}

	slices.SortFunc(predictions, func(a, b ctdf.Prediction) int {
		return a.Time().Compare(b.Time())
	})
	return predictions
}

// Count is the number of predictions held across all vehicles
func (s *Store) Count() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	count := 0
	for _, predictions := range s.byVehicle {
		count += len(predictions)
	}
	return count
}
