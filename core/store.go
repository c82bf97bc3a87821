package core

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
)

// calibrationMarker is the sentinel that distinguishes a meaningfully
// written record from erased or never-written storage.
const calibrationMarker uint32 = 0x43414C31 // "CAL1"

// recordSize is the fixed on-storage size: marker (4) + slope (8) + intercept (8).
const recordSize = 20

// Calibration is the linear model mapping feedback counts to degrees.
type Calibration struct {
	Slope     float64
	Intercept float64
}

// Angle recovers the cover angle from a raw feedback reading, clamped to
// the servo's physical range.
func (c Calibration) Angle(feedback uint16) int {
	angle := (float64(feedback) - c.Intercept) / c.Slope
	if angle < 0 {
		return 0
	}
	if angle > 180 {
		return 180
	}
	return int(angle + 0.5)
}

// Store persists a single calibration record. A record is written whole or
// not at all; readers never observe partial field updates. A load that
// finds no record (or a record without the marker) reports ok=false, which
// is indistinguishable from "never calibrated" on purpose.
type Store interface {
	Load() (cal Calibration, ok bool, err error)
	Save(cal Calibration) error
}

// encodeRecord lays out the fixed-size record: little-endian marker,
// slope, intercept.
func encodeRecord(cal Calibration) []byte {
	buf := make([]byte, recordSize)
	binary.LittleEndian.PutUint32(buf[0:4], calibrationMarker)
	binary.LittleEndian.PutUint64(buf[4:12], math.Float64bits(cal.Slope))
	binary.LittleEndian.PutUint64(buf[12:20], math.Float64bits(cal.Intercept))
	return buf
}

func decodeRecord(buf []byte) (Calibration, bool) {
	if len(buf) != recordSize {
		return Calibration{}, false
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != calibrationMarker {
		return Calibration{}, false
	}
	return Calibration{
		Slope:     math.Float64frombits(binary.LittleEndian.Uint64(buf[4:12])),
		Intercept: math.Float64frombits(binary.LittleEndian.Uint64(buf[12:20])),
	}, true
}

// FileStore keeps the record in a single fixed-size file. Used by the
// simulator target and by anything running on a host OS.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store backed by the given path. The file is not
// created until the first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the record. A missing file or a marker mismatch is not an
// error, just an absent calibration.
func (s *FileStore) Load() (Calibration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return Calibration{}, false, nil
	}
	if err != nil {
		return Calibration{}, false, fmt.Errorf("read calibration record: %w", err)
	}

	cal, ok := decodeRecord(buf)
	return cal, ok, nil
}

// Save overwrites the whole record. The write goes through a temp file and
// rename so a reader never sees a torn record.
func (s *FileStore) Save(cal Calibration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create calibration dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, encodeRecord(cal), 0644); err != nil {
		return fmt.Errorf("write calibration record: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("commit calibration record: %w", err)
	}
	return nil
}

// MemStore holds the record in RAM. Used in tests and on MCU targets that
// have no filesystem.
type MemStore struct {
	mu  sync.Mutex
	buf []byte
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{}
}

func (s *MemStore) Load() (Calibration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cal, ok := decodeRecord(s.buf)
	return cal, ok, nil
}

func (s *MemStore) Save(cal Calibration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = encodeRecord(cal)
	return nil
}
