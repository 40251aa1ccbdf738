package vehiclestate

import (
	"sort"
	"sync"

	"github.com/travigo/avlengine/pkg/config"
	"github.com/travigo/avlengine/pkg/ctdf"
)

// Registry holds the active vehicles, the last report per vehicle swept by the timeout sweeper and
// which vehicle holds each block. Iteration works on a copy so entries may be removed concurrently.
type Registry struct {
	mutex sync.RWMutex

	cfg config.CoreConfig

	vehicles    map[string]*VehicleRuntimeState
	lastReports map[string]ctdf.AvlReport
	blockHolder map[string]BlockHolder
}

// BlockHolder is the vehicle currently operating a block
type BlockHolder struct {
	VehicleID  string
	SchedBased bool
}

func NewRegistry(cfg config.CoreConfig) *Registry {
	return &Registry{
		cfg:         cfg,
		vehicles:    map[string]*VehicleRuntimeState{},
		lastReports: map[string]ctdf.AvlReport{},
		blockHolder: map[string]BlockHolder{},
	}
}

// GetOrCreate returns the vehicle's state, creating it the first time the vehicle is seen
func (r *Registry) GetOrCreate(vehicleID string) *VehicleRuntimeState {
	r.mutex.RLock()
	state, ok := r.vehicles[vehicleID]
	r.mutex.RUnlock()
	if ok {
		return state
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if state, ok := r.vehicles[vehicleID]; ok {
		return state
	}
	state = NewVehicleRuntimeState(vehicleID, r.cfg)
	r.vehicles[vehicleID] = state
	return state
}

// Lock returns the vehicle's registered state locked, creating it when needed. A state removed from
// the registry while waiting for its lock is never returned.
func (r *Registry) Lock(vehicleID string) *VehicleRuntimeState {
	for {
		state := r.GetOrCreate(vehicleID)
		state.Lock()
		if r.Registered(state) {
			return state
		}
		state.Unlock()
	}
}

// LockExisting is Lock for vehicles that are already registered
func (r *Registry) LockExisting(vehicleID string) (*VehicleRuntimeState, bool) {
	for {
		state, ok := r.Get(vehicleID)
		if !ok {
			return nil, false
		}
		state.Lock()
		if r.Registered(state) {
			return state, true
		}
		state.Unlock()
	}
}

// Registered reports whether state is still the registry's state for its vehicle
func (r *Registry) Registered(state *VehicleRuntimeState) bool {
	current, ok := r.Get(state.VehicleID)
	return ok && current == state
}

func (r *Registry) Get(vehicleID string) (*VehicleRuntimeState, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	state, ok := r.vehicles[vehicleID]
	return state, ok
}

// Remove purges the vehicle's state
func (r *Registry) Remove(vehicleID string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	delete(r.vehicles, vehicleID)
	for blockID, holder := range r.blockHolder {
		if holder.VehicleID == vehicleID {
			delete(r.blockHolder, blockID)
		}
	}
}

func (r *Registry) SetLastReport(report ctdf.AvlReport) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.lastReports[report.VehicleID] = report
}

func (r *Registry) LastReport(vehicleID string) (ctdf.AvlReport, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	report, ok := r.lastReports[vehicleID]
	return report, ok
}

// RemoveLastReport takes the vehicle out of the sweep
func (r *Registry) RemoveLastReport(vehicleID string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	delete(r.lastReports, vehicleID)
}

// LastReports copies the sweep registry, ordered by vehicle id
func (r *Registry) LastReports() []ctdf.AvlReport {
	r.mutex.RLock()
	reports := make([]ctdf.AvlReport, 0, len(r.lastReports))
	for _, report := range r.lastReports {
		reports = append(reports, report)
	}
	r.mutex.RUnlock()

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].VehicleID < reports[j].VehicleID
	})
	return reports
}

func (r *Registry) VehicleIDs() []string {
	r.mutex.RLock()
	ids := make([]string, 0, len(r.vehicles))
	for id := range r.vehicles {
		ids = append(ids, id)
	}
	r.mutex.RUnlock()

	sort.Strings(ids)
	return ids
}

func (r *Registry) Vehicles() []*VehicleRuntimeState {
	r.mutex.RLock()
	vehicles := make([]*VehicleRuntimeState, 0, len(r.vehicles))
	for _, state := range r.vehicles {
		vehicles = append(vehicles, state)
	}
	r.mutex.RUnlock()

	sort.Slice(vehicles, func(i, j int) bool {
		return vehicles[i].VehicleID < vehicles[j].VehicleID
	})
	return vehicles
}

// AssignBlock records the vehicle as holding the block and returns the previous holder, if any
func (r *Registry) AssignBlock(blockID string, vehicleID string, schedBased bool) string {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	previous := r.blockHolder[blockID]
	r.blockHolder[blockID] = BlockHolder{VehicleID: vehicleID, SchedBased: schedBased}
	if previous.VehicleID == vehicleID {
		return ""
	}
	return previous.VehicleID
}

// ReleaseBlock clears the holder only when it is still the given vehicle
func (r *Registry) ReleaseBlock(blockID string, vehicleID string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.blockHolder[blockID].VehicleID == vehicleID {
		delete(r.blockHolder, blockID)
	}
}

func (r *Registry) BlockHolder(blockID string) (BlockHolder, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	holder, ok := r.blockHolder[blockID]
	return holder, ok
}
