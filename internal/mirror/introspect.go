package mirror

import (
	"context"

	"github.com/godbus/dbus/v5"

	"github.com/bridgeworks/busmirror/internal/busvalue"
	"github.com/bridgeworks/busmirror/internal/objectbus"
)

// scannedItem is one (path, value) pair produced by a service scan,
// regardless of which strategy produced it (spec.md §4.2: "Both modes
// produce the same output").
type scannedItem struct {
	Path  string
	Value busvalue.Value
}

// Introspector walks a service's object tree, trying the bulk "get all
// items" call first and falling back to recursive XML introspection when
// the service doesn't implement it (spec.md §4.2).
type Introspector struct {
	bus    busAPI
	values *busvalue.Marshaller
}

// NewIntrospector creates an Introspector.
func NewIntrospector(bus busAPI, values *busvalue.Marshaller) *Introspector {
	return &Introspector{bus: bus, values: values}
}

// DeviceInstance fetches /DeviceInstance for service, treating a missing
// path (method-missing) as instance 0 (spec.md §4.2, §9 "DeviceInstance
// default").
func (in *Introspector) DeviceInstance(service string) (int, error) {
	v, err := in.bus.GetValue(service, "/DeviceInstance")
	if err != nil {
		if be, ok := err.(*objectbus.Error); ok && be.MethodMissing() {
			return 0, nil
		}
		return 0, err
	}
	n, ok := in.values.Unwrap(v).(int64)
	if !ok {
		return 0, nil
	}
	return int(n), nil
}

// Scan produces every (path, value) pair service currently publishes, using
// the bulk listing when available and falling back to recursive
// introspection otherwise. Transient errors (service-unknown, disconnected,
// no-reply) are returned as-is so the caller can decide to abandon the scan
// without treating it as fatal (spec.md §4.2, §7 kind (a)).
func (in *Introspector) Scan(ctx context.Context, service string) ([]scannedItem, error) {
	items, err := in.bus.GetItems(service)
	if err == nil {
		out := make([]scannedItem, 0, len(items))
		for _, it := range items {
			out = append(out, scannedItem{Path: it.Path, Value: in.values.Unwrap(it.Value)})
		}
		return out, nil
	}

	be, ok := err.(*objectbus.Error)
	if !ok || !be.MethodMissing() {
		return nil, err
	}

	// Fall back to recursive XML introspection (spec.md §4.2).
	var out []scannedItem
	walkErr := in.bus.Introspect(ctx, service, "/", func(path string, v dbus.Variant) error {
		out = append(out, scannedItem{Path: path, Value: in.values.Unwrap(v)})
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return out, nil
}
