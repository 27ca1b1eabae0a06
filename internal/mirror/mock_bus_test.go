package mirror

import (
	"context"

	"github.com/godbus/dbus/v5"

	"github.com/bridgeworks/busmirror/internal/objectbus"
)

// mockBus is a hand-rolled fake implementing busAPI for tests, avoiding a
// real bus connection (mirrors the teacher's mockDocker fixture style).
type mockBus struct {
	values       map[string]map[string]dbus.Variant // service -> path -> value
	getValueErr  map[string]error                    // "service|path" -> error
	items        map[string][]objectbus.Item         // service -> bulk items
	getItemsErr  map[string]error
	introspected map[string][]string // service -> ordered leaf paths to walk for Introspect fallback
	setCalls     []setCall
	names        []string
	namesErr     error
	owners       map[string]string
}

type setCall struct {
	service string
	path    string
	value   dbus.Variant
}

func newMockBus() *mockBus {
	return &mockBus{
		values:      make(map[string]map[string]dbus.Variant),
		getValueErr: make(map[string]error),
		items:       make(map[string][]objectbus.Item),
		getItemsErr: make(map[string]error),
		owners:      make(map[string]string),
	}
}

func (b *mockBus) setValueResult(service, path string, v dbus.Variant) {
	if b.values[service] == nil {
		b.values[service] = make(map[string]dbus.Variant)
	}
	b.values[service][path] = v
}

func (b *mockBus) GetValue(service, path string) (dbus.Variant, error) {
	if err, ok := b.getValueErr[service+"|"+path]; ok {
		return dbus.Variant{}, err
	}
	if m, ok := b.values[service]; ok {
		if v, ok := m[path]; ok {
			return v, nil
		}
	}
	return dbus.Variant{}, &objectbus.Error{Name: "org.freedesktop.DBus.Error.UnknownObject"}
}

func (b *mockBus) SetValue(service, path string, value dbus.Variant) error {
	b.setCalls = append(b.setCalls, setCall{service: service, path: path, value: value})
	return nil
}

func (b *mockBus) GetItems(service string) ([]objectbus.Item, error) {
	if err, ok := b.getItemsErr[service]; ok {
		return nil, err
	}
	items, ok := b.items[service]
	if !ok {
		return nil, &objectbus.Error{Name: "org.freedesktop.DBus.Error.UnknownMethod"}
	}
	return items, nil
}

func (b *mockBus) Introspect(ctx context.Context, service, path string, visit func(path string, value dbus.Variant) error) error {
	for _, p := range b.introspected[service] {
		v, err := b.GetValue(service, p)
		if err != nil {
			return err
		}
		if err := visit(p, v); err != nil {
			return err
		}
	}
	return nil
}

func (b *mockBus) ListNames() ([]string, error) {
	return b.names, b.namesErr
}

func (b *mockBus) GetNameOwner(name string) (string, error) {
	if owner, ok := b.owners[name]; ok {
		return owner, nil
	}
	return "", &objectbus.Error{Name: "org.freedesktop.DBus.Error.NameHasNoOwner"}
}

func (b *mockBus) SubscribeOwnerChanges(ctx context.Context) (<-chan objectbus.OwnerChange, error) {
	ch := make(chan objectbus.OwnerChange)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (b *mockBus) SubscribeValueChanges(ctx context.Context, vendorPrefix string) (<-chan objectbus.ValueChange, error) {
	ch := make(chan objectbus.ValueChange)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}
