package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// lastPortRecord is the small cache file remembering which port last
// carried a successful handshake, so auto-discovery probes it first.
type lastPortRecord struct {
	Port    string    `json:"port"`
	SavedAt time.Time `json:"saved_at"`
}

// loadLastPort returns the cached port name, or "" if there is no usable
// cache. Cache problems are never fatal; the worst case is a slower probe.
func loadLastPort(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	var rec lastPortRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return ""
	}
	return rec.Port
}

// saveLastPort persists the port name best-effort.
func saveLastPort(path, port string) {
	if path == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return
	}
	data, err := json.Marshal(lastPortRecord{Port: port, SavedAt: time.Now()})
	if err != nil {
		return
	}
	_ = os.WriteFile(path, data, 0644)
}
