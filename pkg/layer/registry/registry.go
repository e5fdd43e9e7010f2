// Package registry implements the layer-type registry (spec component
// C8): a string-tag to factory map, populated once at process start
// (each layer package registers itself from an init func) and
// read-only thereafter.
package registry

import (
	"fmt"
	"sync"

	"github.com/o9nn/otterengine/pkg/layer"
	"github.com/o9nn/otterengine/pkg/ottererr"
)

var (
	mu  sync.RWMutex
	reg = map[string]layer.Factory{}
)

// Register adds a factory for typeName. Call from an init func; a
// duplicate registration for the same tag panics, since it can only
// indicate two layer packages colliding at link time, not a runtime
// condition a caller can recover from.
func Register(typeName string, f layer.Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := reg[typeName]; exists {
		panic(fmt.Sprintf("registry: layer type %q registered twice", typeName))
	}
	reg[typeName] = f
}

// Create builds a new Layer instance for typeName, or
// ottererr.ErrUnknownLayer if no package registered it.
func Create(typeName, instanceName string) (layer.Layer, error) {
	mu.RLock()
	f, ok := reg[typeName]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ottererr.ErrUnknownLayer, typeName)
	}
	return f(instanceName), nil
}

// Known returns every registered type tag, for diagnostics.
func Known() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(reg))
	for k := range reg {
		out = append(out, k)
	}
	return out
}
