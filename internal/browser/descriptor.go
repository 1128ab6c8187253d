package browser

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Descriptor records how to reattach to a running browser daemon.
// It survives manager restarts and is deleted only on explicit teardown.
type Descriptor struct {
	Endpoint string `json:"endpoint"`
	PID      int    `json:"pid,omitempty"`
}

// DescriptorStore persists the Descriptor at a fixed path.
type DescriptorStore struct {
	path string
}

// NewDescriptorStore returns a store backed by path.
func NewDescriptorStore(path string) *DescriptorStore {
	return &DescriptorStore{path: path}
}

// Path returns the descriptor file location.
func (s *DescriptorStore) Path() string {
	return s.path
}

// Load returns the persisted descriptor, or (nil, nil) if none exists.
func (s *DescriptorStore) Load() (*Descriptor, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read descriptor: %w", err)
	}

	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse descriptor %s: %w", s.path, err)
	}
	if d.Endpoint == "" {
		return nil, fmt.Errorf("parse descriptor %s: missing endpoint", s.path)
	}
	return &d, nil
}

// Save writes the descriptor, replacing any previous one.
func (s *DescriptorStore) Save(d Descriptor) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create descriptor dir: %w", err)
	}

	data, err := json.Marshal(d)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".descriptor-*")
	if err != nil {
		return fmt.Errorf("write descriptor: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write descriptor: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write descriptor: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("write descriptor: %w", err)
	}
	return nil
}

// Delete removes the descriptor. A missing file is not an error.
func (s *DescriptorStore) Delete() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete descriptor: %w", err)
	}
	return nil
}
