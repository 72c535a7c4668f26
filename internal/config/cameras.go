package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// LookupMode selects how a service index is resolved against the camera
// document
type LookupMode string

const (
	// LookupByIndex matches the camera_index field
	LookupByIndex LookupMode = "index"
	// LookupByPosition uses the index as a position in the cameras array
	LookupByPosition LookupMode = "position"
)

// CameraIdentity is one configured camera. It is read once and never
// changes for the lifetime of a controller.
type CameraIdentity struct {
	Index  int    `json:"camera_index"`
	Name   string `json:"camera_name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Rotate int    `json:"rotate"`
	Flip   bool   `json:"flip"`
}

// CameraDocument is the persisted camera list
type CameraDocument struct {
	Cameras []CameraIdentity `json:"cameras"`
}

// LoadCameras reads the camera document at path
func LoadCameras(path string) (*CameraDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc CameraDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse camera config %s: %w", path, err)
	}
	return &doc, nil
}

// SaveCameras writes doc to path with two-space indentation, creating the
// parent directory
func SaveCameras(path string, doc *CameraDocument) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create camera config directory: %w", err)
		}
	}
	if doc.Cameras == nil {
		doc.Cameras = []CameraIdentity{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal camera config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write camera config: %w", err)
	}
	return nil
}

// CameraStore answers identity lookups against the camera document. The
// document is read lazily on the first lookup.
type CameraStore struct {
	path string
	mode LookupMode

	mu     sync.Mutex
	doc    *CameraDocument
	loaded bool
	err    error
}

// NewCameraStore creates a store for the document at path
func NewCameraStore(path string, mode LookupMode) *CameraStore {
	if mode == "" {
		mode = LookupByIndex
	}
	return &CameraStore{path: path, mode: mode}
}

// Path returns the document path
func (s *CameraStore) Path() string {
	return s.path
}

// Mode returns the lookup mode
func (s *CameraStore) Mode() LookupMode {
	return s.mode
}

// Exists reports whether the document exists on disk
func (s *CameraStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Cameras returns every configured camera
func (s *CameraStore) Cameras() ([]CameraIdentity, error) {
	doc, err := s.document()
	if err != nil {
		return nil, err
	}
	return append([]CameraIdentity(nil), doc.Cameras...), nil
}

// Err returns the load error, if any, after the first lookup
func (s *CameraStore) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// LookupCameraByIndex resolves index using the store's lookup mode. A missing
// or unreadable document is reported as not found.
func (s *CameraStore) LookupCameraByIndex(index int) (CameraIdentity, bool) {
	doc, err := s.document()
	if err != nil {
		return CameraIdentity{}, false
	}
	return doc.Lookup(index, s.mode)
}

// Lookup resolves index against the document
func (d *CameraDocument) Lookup(index int, mode LookupMode) (CameraIdentity, bool) {
	if mode == LookupByPosition {
		if index < 0 || index >= len(d.Cameras) {
			return CameraIdentity{}, false
		}
		return d.Cameras[index], true
	}
	for _, cam := range d.Cameras {
		if cam.Index == index {
			return cam, true
		}
	}
	return CameraIdentity{}, false
}

// Reload forces the next lookup to read the document again
func (s *CameraStore) Reload() {
	s.mu.Lock()
	s.loaded = false
	s.doc = nil
	s.err = nil
	s.mu.Unlock()
}

func (s *CameraStore) document() (*CameraDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		s.doc, s.err = LoadCameras(s.path)
		if errors.Is(s.err, os.ErrNotExist) {
			s.err = fmt.Errorf("camera config %s not found: %w", s.path, s.err)
		}
		s.loaded = true
	}
	return s.doc, s.err
}
