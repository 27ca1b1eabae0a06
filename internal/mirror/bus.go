package mirror

import (
	"context"

	"github.com/godbus/dbus/v5"

	"github.com/bridgeworks/busmirror/internal/objectbus"
)

// busAPI is the subset of *objectbus.Bus the mirroring engine depends on,
// narrowed to an interface so components can be tested against a hand-rolled
// fake instead of a live bus connection — the same seam the teacher draws
// with docker.API (internal/docker/interface.go).
type busAPI interface {
	GetValue(service, path string) (dbus.Variant, error)
	SetValue(service, path string, value dbus.Variant) error
	GetItems(service string) ([]objectbus.Item, error)
	Introspect(ctx context.Context, service, path string, visit func(path string, value dbus.Variant) error) error
	ListNames() ([]string, error)
	GetNameOwner(name string) (string, error)
	SubscribeOwnerChanges(ctx context.Context) (<-chan objectbus.OwnerChange, error)
	SubscribeValueChanges(ctx context.Context, vendorPrefix string) (<-chan objectbus.ValueChange, error)
}

var _ busAPI = (*objectbus.Bus)(nil)
