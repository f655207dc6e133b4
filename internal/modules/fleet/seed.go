package fleet

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadSeedFile reads a JSON array of vehicle records used to pre-populate the
// registry at process start.
func LoadSeedFile(path string) ([]Vehicle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var vehicles []Vehicle
	if err := json.Unmarshal(data, &vehicles); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	for i, v := range vehicles {
		if v.ID == "" || !v.Point.Valid() || !KnownClass(v.Class) {
			return nil, fmt.Errorf("seed entry %d is invalid", i)
		}
	}
	return vehicles, nil
}
