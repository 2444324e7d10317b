package svcinit

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// descriptorExts are the file extensions treated as service descriptors
var descriptorExts = []string{".yaml", ".yml"}

// Loader reads service descriptors from YAML files. The file name without
// its extension becomes the service name.
type Loader struct {
	// Debounce is the quiet period Watch waits for before rescanning
	Debounce time.Duration

	logger *slog.Logger
}

// NewLoader creates a Loader that logs to logger, or to slog.Default when
// logger is nil.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		Debounce: DefaultWatchDebounce,
		logger:   logger,
	}
}

// IsDescriptor reports whether path has a descriptor file extension.
func IsDescriptor(path string) bool {
	ext := filepath.Ext(path)
	for _, e := range descriptorExts {
		if ext == e {
			return true
		}
	}
	return false
}

// ServiceName returns the service name for a descriptor path.
func ServiceName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// LoadFile parses one descriptor. Unknown fields are rejected. Argv
// variables are substituted from the current environment before
// returning.
func (l *Loader) LoadFile(path string) (*Service, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	var svc Service
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&svc); err != nil && !errors.Is(err, io.EOF) {
		return nil, &ConfigError{Path: path, Err: err}
	}

	svc.Name = ServiceName(path)
	if err := svc.Validate(); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	svc.SubstituteEnv()

	l.logger.Debug("descriptor loaded", "service", svc.Name, "path", path)
	return &svc, nil
}

// LoadDir parses every descriptor in dir, in file name order. Files that
// fail to parse are logged and skipped; only an unreadable dir is an
// error.
func (l *Loader) LoadDir(dir string) ([]*Service, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var services []*Service
	for _, entry := range entries {
		if entry.IsDir() || !IsDescriptor(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		svc, err := l.LoadFile(path)
		if err != nil {
			l.logger.Error("descriptor skipped", "path", path, "err", err)
			continue
		}
		services = append(services, svc)
	}

	l.logger.Info("descriptors loaded", "dir", dir, "count", len(services))
	return services, nil
}
