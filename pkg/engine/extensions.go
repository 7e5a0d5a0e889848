package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Registry maps an extension name to its host-side implementation. The
// spec's extension dispatch is a host capability, not a second Wasm
// sandbox invocation: the core ships no extensions of its own, so Invoke
// responds with a descriptive placeholder, mirroring the original
// engine's unimplemented invoke_raw handler.
type Registry struct {
	mu    sync.RWMutex
	names map[string]string // extension name -> source path, for diagnostics
}

// NewRegistry builds an empty extension registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]string)}
}

// Load scans path for files named "<extension>.wasm" and registers each
// by its base name, mirroring the original implementation's directory
// scan in engine/src/extensions.rs.
func (r *Registry) Load(path string) error {
	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("reading extensions directory %q: %w", path, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.EqualFold(filepath.Ext(name), ".wasm") {
			continue
		}
		extensionName := strings.TrimSuffix(name, filepath.Ext(name))
		r.names[extensionName] = filepath.Join(path, name)
	}
	return nil
}

// Has reports whether an extension of the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.names[name]
	return ok
}

// Invoke dispatches a request to the named extension. No extension
// implementations ship with the core today, so a registered extension
// currently yields a placeholder acknowledging the call; an
// unregistered name is rejected outright regardless of permission.
func (r *Registry) Invoke(name string, data []byte) ([]byte, error) {
	if !r.Has(name) {
		return nil, fmt.Errorf("no such extension %q", name)
	}
	response := fmt.Sprintf(
		"extension %q is registered but not implemented; received %d bytes of request data",
		name, len(data),
	)
	return []byte(response), nil
}
