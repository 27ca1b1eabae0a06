// Package objectbus wraps godbus/dbus/v5 to provide the subset of D-Bus
// behaviour the mirroring engine needs: bus-name ownership tracking, bulk and
// recursive-introspection reads, and single-path get/set calls — with bus
// errors classified into the transient/method-missing buckets spec.md §7
// describes, grounded on the NameOwnerChanged/PropertiesChanged wiring in
// barista's dbus.PropertiesWatcher (other_examples/...dbus-properties.go).
package objectbus

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"strings"

	"github.com/godbus/dbus/v5"
)

const nameOwnerChangedSignal = "org.freedesktop.DBus.NameOwnerChanged"

// OwnerChange is delivered whenever a bus name's owner appears or
// disappears, mirroring the (name, oldOwner, newOwner) triple
// NameOwnerChanged carries (spec.md §5 "Lifecycle Controller").
type OwnerChange struct {
	Name     string
	OldOwner string
	NewOwner string
}

// Appeared reports whether this change represents a name gaining an owner.
func (c OwnerChange) Appeared() bool { return c.NewOwner != "" }

// Disappeared reports whether this change represents a name losing its owner.
func (c OwnerChange) Disappeared() bool { return c.OldOwner != "" && c.NewOwner == "" }

// Item is one (path, value) pair produced by a service scan.
type Item struct {
	Path  string
	Value dbus.Variant
}

// ValueChange is delivered whenever a mirrored object's item interface emits
// its PropertiesChanged-equivalent signal (spec.md §5 "Change Listener").
type ValueChange struct {
	Service string // the signal sender's current owned name, resolved by caller
	Sender  string // the D-Bus unique name (owner) that emitted the signal
	Path    string
	Value   dbus.Variant
}

// SubscribeValueChanges starts delivering ValueChange events for every
// PropertiesChanged signal on the item interface, from any sender, until ctx
// is cancelled. vendorPrefix is not applied here: senders are unique names,
// so callers filter by resolving the sender. The returned channel is closed
// when the context is done.
func (b *Bus) SubscribeValueChanges(ctx context.Context, vendorPrefix string) (<-chan ValueChange, error) {
	rule := fmt.Sprintf("type='signal',interface='%s',member='PropertiesChanged'", b.itemInterface)
	if err := b.conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, rule).Err; err != nil {
		return nil, fmt.Errorf("add PropertiesChanged match: %w", err)
	}

	sigCh := make(chan *dbus.Signal, 256)
	b.conn.Signal(sigCh)

	out := make(chan ValueChange, 256)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				b.conn.RemoveSignal(sigCh)
				return
			case sig, ok := <-sigCh:
				if !ok {
					return
				}
				if sig.Name != b.itemInterface+".PropertiesChanged" {
					continue
				}
				props, ok := sig.Body[0].(map[string]dbus.Variant)
				if !ok {
					continue
				}
				v, ok := props["Value"]
				if !ok {
					continue
				}
				change := ValueChange{Sender: sig.Sender, Path: string(sig.Path), Value: v}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Bus is a live connection to the object bus.
type Bus struct {
	conn          *dbus.Conn
	itemInterface string
	sigCh         chan *dbus.Signal
}

// Connect dials the bus at address, or auto-detects the session bus (when
// DBUS_SESSION_BUS_ADDRESS is set) falling back to the system bus, matching
// the teacher Python's own connection precedence. itemInterface is the
// D-Bus interface name that marks a leaf object as a mirrorable value item.
func Connect(address, itemInterface string) (*Bus, error) {
	var conn *dbus.Conn
	var err error

	switch {
	case address != "":
		conn, err = dbus.Dial(address)
		if err == nil {
			err = conn.Auth(nil)
			if err == nil {
				err = conn.Hello()
			}
		}
	case os.Getenv("DBUS_SESSION_BUS_ADDRESS") != "":
		conn, err = dbus.ConnectSessionBus()
	default:
		conn, err = dbus.ConnectSystemBus()
	}
	if err != nil {
		return nil, fmt.Errorf("connect object bus: %w", err)
	}

	b := &Bus{conn: conn, itemInterface: itemInterface}
	return b, nil
}

// Close releases the bus connection.
func (b *Bus) Close() error {
	return b.conn.Close()
}

// SubscribeOwnerChanges starts delivering OwnerChange events until ctx is
// cancelled. The returned channel is closed when the context is done.
func (b *Bus) SubscribeOwnerChanges(ctx context.Context) (<-chan OwnerChange, error) {
	rule := "type='signal',interface='org.freedesktop.DBus',member='NameOwnerChanged'"
	if err := b.conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, rule).Err; err != nil {
		return nil, fmt.Errorf("add NameOwnerChanged match: %w", err)
	}

	b.sigCh = make(chan *dbus.Signal, 64)
	b.conn.Signal(b.sigCh)

	out := make(chan OwnerChange, 64)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				b.conn.RemoveSignal(b.sigCh)
				return
			case sig, ok := <-b.sigCh:
				if !ok {
					return
				}
				if sig.Name != nameOwnerChangedSignal || len(sig.Body) != 3 {
					continue
				}
				name, _ := sig.Body[0].(string)
				oldOwner, _ := sig.Body[1].(string)
				newOwner, _ := sig.Body[2].(string)
				select {
				case out <- OwnerChange{Name: name, OldOwner: oldOwner, NewOwner: newOwner}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// ListNames returns every currently-owned bus name, used for the initial
// bootstrap scan (spec.md §5 "Lifecycle Controller", supplemented feature).
func (b *Bus) ListNames() ([]string, error) {
	var names []string
	if err := b.conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		return nil, classify(err)
	}
	return names, nil
}

// GetNameOwner resolves the D-Bus unique name currently owning a bus name,
// used during the bootstrap scan where NameOwnerChanged hasn't fired yet.
func (b *Bus) GetNameOwner(name string) (string, error) {
	var owner string
	if err := b.conn.BusObject().Call("org.freedesktop.DBus.GetNameOwner", 0, name).Store(&owner); err != nil {
		return "", classify(err)
	}
	return owner, nil
}

// GetValue performs a single-path value read, equivalent to calling GetValue
// on the item interface at path.
func (b *Bus) GetValue(service, path string) (dbus.Variant, error) {
	obj := b.conn.Object(service, dbus.ObjectPath(path))
	call := obj.Call(b.itemInterface+".GetValue", 0)
	if call.Err != nil {
		return dbus.Variant{}, classify(call.Err)
	}
	if len(call.Body) == 0 {
		return dbus.Variant{}, fmt.Errorf("GetValue %s%s: empty reply", service, path)
	}
	if v, ok := call.Body[0].(dbus.Variant); ok {
		return v, nil
	}
	return dbus.MakeVariant(call.Body[0]), nil
}

// SetValue performs a single-path value write.
func (b *Bus) SetValue(service, path string, value dbus.Variant) error {
	obj := b.conn.Object(service, dbus.ObjectPath(path))
	call := obj.Call(b.itemInterface+".SetValue", 0, value)
	if call.Err != nil {
		return classify(call.Err)
	}
	return nil
}

// GetItems performs the bulk root read at "/", returning every path/value
// pair the service publishes in one call. Returns an *Error whose
// MethodMissing() is true when the service doesn't implement the bulk call,
// so the caller can fall back to Introspect.
func (b *Bus) GetItems(service string) ([]Item, error) {
	obj := b.conn.Object(service, dbus.ObjectPath("/"))
	call := obj.Call(b.itemInterface+".GetItems", 0)
	if call.Err != nil {
		return nil, classify(call.Err)
	}
	if len(call.Body) == 0 {
		return nil, fmt.Errorf("GetItems %s: empty reply", service)
	}
	raw, ok := call.Body[0].(map[string]map[string]dbus.Variant)
	if !ok {
		// Some implementations reply with a flat path->variant map instead of
		// a path->{properties} map; accept both shapes.
		flat, ok := call.Body[0].(map[string]dbus.Variant)
		if !ok {
			return nil, fmt.Errorf("GetItems %s: unexpected reply shape %T", service, call.Body[0])
		}
		items := make([]Item, 0, len(flat))
		for path, v := range flat {
			items = append(items, Item{Path: path, Value: v})
		}
		return items, nil
	}
	items := make([]Item, 0, len(raw))
	for path, props := range raw {
		v, ok := props["Value"]
		if !ok {
			continue
		}
		items = append(items, Item{Path: path, Value: v})
	}
	return items, nil
}

// introspectNode is the subset of the standard D-Bus introspection XML
// schema Introspect needs: child node names and implemented interfaces.
type introspectNode struct {
	Nodes      []struct {
		Name string `xml:"name,attr"`
	} `xml:"node"`
	Interfaces []struct {
		Name string `xml:"name,attr"`
	} `xml:"interface"`
}

// Introspect recursively walks the service's object tree starting at path,
// invoking visit for every leaf object that implements the item interface.
// This is the fallback strategy used when GetItems is unavailable (spec.md
// §4.2).
func (b *Bus) Introspect(ctx context.Context, service, path string, visit func(path string, value dbus.Variant) error) error {
	obj := b.conn.Object(service, dbus.ObjectPath(path))
	var xmlStr string
	if err := obj.Call("org.freedesktop.DBus.Introspectable.Introspect", 0).Store(&xmlStr); err != nil {
		return classify(err)
	}

	var node introspectNode
	if err := xml.Unmarshal([]byte(xmlStr), &node); err != nil {
		return fmt.Errorf("parse introspection xml for %s%s: %w", service, path, err)
	}

	if len(node.Nodes) == 0 {
		for _, iface := range node.Interfaces {
			if iface.Name == b.itemInterface {
				v, err := b.GetValue(service, path)
				if err != nil {
					return err
				}
				return visit(path, v)
			}
		}
		return nil
	}

	for _, child := range node.Nodes {
		if child.Name == "" {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		childPath := path
		if !strings.HasSuffix(childPath, "/") {
			childPath += "/"
		}
		childPath += child.Name
		if err := b.Introspect(ctx, service, childPath, visit); err != nil {
			return err
		}
	}
	return nil
}
