// Package busvalue translates between D-Bus-typed values and the
// JSON-serializable native values the mirroring engine passes around
// (spec.md §9, "Dynamic typing of values"), and derives the portal id.
//
// This is a clean-room implementation: the original bridge delegated both
// concerns to an external "velib_python" helper module (wrap_dbus_value,
// unwrap_dbus_value, get_vrm_portal_id) that isn't part of the distilled
// source, so there is nothing here to translate from — only the contract to
// satisfy (spec.md §6 "Portal id", §9 "Dynamic typing of values").
package busvalue

import (
	"fmt"
	"net"
	"reflect"
	"sort"
	"strings"

	"github.com/godbus/dbus/v5"
)

// Value is any JSON-serializable scalar, list, or object mirrored between the
// bus and the broker: nil, bool, int64, float64, string, []Value, or
// map[string]Value — or the Invalid sentinel.
type Value any

// Invalid is the sentinel for a D-Bus "invalid" item, wire-represented as an
// empty typed array (dbus.Array of signature "ai" with zero elements in the
// Python original).
type Invalid struct{}

// Marshaller implements the out-of-scope value-marshalling collaborator
// (SPEC_FULL.md §7 "Value marshalling interface").
type Marshaller struct {
	portalIDOverride string
}

// New creates a Marshaller. portalIDOverride, if non-empty, is returned
// verbatim by PortalID instead of deriving one from the host's MAC address —
// used in tests and in environments with no usable network interface.
func New(portalIDOverride string) *Marshaller {
	return &Marshaller{portalIDOverride: portalIDOverride}
}

// PortalID derives the portal id from the primary network interface's MAC
// address: lowercased, colons stripped (spec.md §6).
func (m *Marshaller) PortalID() (string, error) {
	if m.portalIDOverride != "" {
		return m.portalIDOverride, nil
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("list network interfaces: %w", err)
	}

	// Prefer a stable, deterministic pick: sort by name and take the first
	// non-loopback interface carrying a real hardware address.
	sort.Slice(ifaces, func(i, j int) bool { return ifaces[i].Name < ifaces[j].Name })

	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if len(iface.HardwareAddr) == 0 {
			continue
		}
		mac := strings.ToLower(iface.HardwareAddr.String())
		return strings.ReplaceAll(mac, ":", ""), nil
	}

	return "", fmt.Errorf("no network interface with a MAC address found")
}

// Unwrap converts a D-Bus variant into a native Value, recursively.
func (m *Marshaller) Unwrap(v dbus.Variant) Value {
	return unwrap(v.Value())
}

func unwrap(raw any) Value {
	switch t := raw.(type) {
	case nil:
		return nil
	case dbus.Variant:
		return unwrap(t.Value())
	case bool:
		return t
	case byte:
		return int64(t)
	case int16:
		return int64(t)
	case uint16:
		return int64(t)
	case int32:
		return int64(t)
	case uint32:
		return int64(t)
	case int64:
		return t
	case uint64:
		return int64(t)
	case float64:
		return t
	case string:
		return t
	case dbus.ObjectPath:
		return string(t)
	case []any:
		if len(t) == 0 {
			// Empty typed array: the VeDbusInvalid sentinel.
			return Invalid{}
		}
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = unwrap(e)
		}
		return out
	case map[string]dbus.Variant:
		out := make(map[string]Value, len(t))
		for k, e := range t {
			out[k] = unwrap(e)
		}
		return out
	case map[string]any:
		out := make(map[string]Value, len(t))
		for k, e := range t {
			out[k] = unwrap(e)
		}
		return out
	default:
		// Typed arrays ("ai", "as", ...) arrive as typed Go slices; an empty
		// one is the VeDbusInvalid sentinel.
		if rv := reflect.ValueOf(t); rv.Kind() == reflect.Slice {
			if rv.Len() == 0 {
				return Invalid{}
			}
			out := make([]Value, rv.Len())
			for i := range out {
				out[i] = unwrap(rv.Index(i).Interface())
			}
			return out
		}
		return fmt.Sprintf("%v", t)
	}
}

// Wrap converts a native Value into a D-Bus variant suitable for a SetValue
// call, the inverse of Unwrap.
func (m *Marshaller) Wrap(v Value) dbus.Variant {
	return dbus.MakeVariant(wrap(v))
}

func wrap(v Value) any {
	switch t := v.(type) {
	case Invalid:
		return []any{}
	case nil:
		return []any{}
	case []Value:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = wrap(e)
		}
		return out
	case map[string]Value:
		out := make(map[string]dbus.Variant, len(t))
		for k, e := range t {
			out[k] = dbus.MakeVariant(wrap(e))
		}
		return out
	default:
		return t
	}
}
