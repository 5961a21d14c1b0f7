package calibration

import (
	"fmt"

	"github.com/quasilyte/gdata/v2"
	"gopkg.in/yaml.v3"

	"dr-shooter/internal/projection"
)

const (
	storeObject   = "calibration"
	storeProperty = "projection"
)

// Fallback is the compiled-in parameter set used when nothing has been
// persisted yet. Values measured once against a reference headset.
func Fallback() projection.Params {
	return projection.Params{OffsetX: -0.012, OffsetY: 0.035, Scale: 1.05}
}

// Store persists the calibration record in the platform key-value store. A
// nil manager degrades to memory-only operation: loads return the fallback
// and saves succeed without persisting.
type Store struct {
	manager *gdata.Manager
}

func NewStore(manager *gdata.Manager) *Store {
	return &Store{manager: manager}
}

// Load returns the persisted parameters, or the fallback set when no record
// exists or the store is unavailable.
func (s *Store) Load() (projection.Params, error) {
	if s.manager == nil || !s.manager.ObjectPropExists(storeObject, storeProperty) {
		return Fallback(), nil
	}
	data, err := s.manager.LoadObjectProp(storeObject, storeProperty)
	if err != nil {
		return Fallback(), fmt.Errorf("calibration: load record: %w", err)
	}
	var p projection.Params
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Fallback(), fmt.Errorf("calibration: parse record: %w", err)
	}
	return p, nil
}

// Save writes the parameters. A nil manager is a silent no-op so calibration
// still works in degraded environments.
func (s *Store) Save(p projection.Params) error {
	if s.manager == nil {
		return nil
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("calibration: encode record: %w", err)
	}
	if err := s.manager.SaveObjectProp(storeObject, storeProperty, data); err != nil {
		return fmt.Errorf("calibration: save record: %w", err)
	}
	return nil
}
