package svcinit

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

// stateFileVersion is bumped when the document layout changes
const stateFileVersion = 1

// stateDocument is the on-disk layout of a state file
type stateDocument struct {
	Version  int             `yaml:"version"`
	Updated  time.Time       `yaml:"updated"`
	Services []ServiceStatus `yaml:"services"`
}

// StateFile persists registry snapshots as YAML. Every write replaces the
// file atomically, so readers never see a partial document.
type StateFile struct {
	path string
	mu   sync.Mutex
}

// NewStateFile returns a StateFile writing to path.
func NewStateFile(path string) *StateFile {
	return &StateFile{path: path}
}

// Path returns the file path.
func (f *StateFile) Path() string {
	return f.path
}

// Write stores statuses.
func (f *StateFile) Write(statuses []ServiceStatus) error {
	return f.WriteFrom(func() []ServiceStatus { return statuses })
}

// WriteFrom calls snapshot while holding the file lock and stores the
// result, so concurrent writers land in the order their snapshots were
// taken.
func (f *StateFile) WriteFrom(snapshot func() []ServiceStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc := stateDocument{
		Version:  stateFileVersion,
		Updated:  time.Now().UTC(),
		Services: snapshot(),
	}
	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), DirMode); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	if err := renameio.WriteFile(f.path, data, FileMode); err != nil {
		return fmt.Errorf("writing state file %s: %w", f.path, err)
	}
	return nil
}

// ReadStateFile loads the statuses stored at path.
func ReadStateFile(path string) ([]ServiceStatus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc stateDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	if doc.Version > stateFileVersion {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("unsupported state file version %d", doc.Version)}
	}
	return doc.Services, nil
}
