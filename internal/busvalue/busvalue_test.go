package busvalue

import (
	"reflect"
	"testing"

	"github.com/godbus/dbus/v5"
)

func TestUnwrapScalars(t *testing.T) {
	m := New("")

	cases := []struct {
		name string
		in   any
		want Value
	}{
		{"bool", true, true},
		{"int32", int32(42), int64(42)},
		{"uint32", uint32(7), int64(7)},
		{"float64", 3.5, 3.5},
		{"string", "hello", "hello"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := m.Unwrap(dbus.MakeVariant(c.in))
			if !reflect.DeepEqual(got, c.want) {
				t.Errorf("Unwrap(%v) = %#v, want %#v", c.in, got, c.want)
			}
		})
	}
}

func TestUnwrapEmptyArrayIsInvalid(t *testing.T) {
	m := New("")
	got := m.Unwrap(dbus.MakeVariant([]any{}))
	if _, ok := got.(Invalid); !ok {
		t.Errorf("Unwrap(empty array) = %#v, want Invalid{}", got)
	}
}

func TestUnwrapNestedList(t *testing.T) {
	m := New("")
	got := m.Unwrap(dbus.MakeVariant([]any{int32(1), "two", true}))
	want := []Value{int64(1), "two", true}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Unwrap(list) = %#v, want %#v", got, want)
	}
}

func TestUnwrapMap(t *testing.T) {
	m := New("")
	raw := map[string]dbus.Variant{
		"Value": dbus.MakeVariant(int32(12)),
		"Text":  dbus.MakeVariant("12V"),
	}
	got := m.Unwrap(dbus.MakeVariant(raw))
	want := map[string]Value{"Value": int64(12), "Text": "12V"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Unwrap(map) = %#v, want %#v", got, want)
	}
}

func TestWrapInvalidRoundtrips(t *testing.T) {
	m := New("")
	v := m.Wrap(Invalid{})
	got := m.Unwrap(v)
	if _, ok := got.(Invalid); !ok {
		t.Errorf("roundtrip of Invalid{} = %#v, want Invalid{}", got)
	}
}

func TestWrapScalarRoundtrips(t *testing.T) {
	m := New("")
	for _, v := range []Value{int64(5), "x", true, 1.25} {
		got := m.Unwrap(m.Wrap(v))
		if !reflect.DeepEqual(got, v) {
			t.Errorf("roundtrip of %#v = %#v", v, got)
		}
	}
}

func TestPortalIDOverride(t *testing.T) {
	m := New("deadbeef0001")
	id, err := m.PortalID()
	if err != nil {
		t.Fatalf("PortalID: %v", err)
	}
	if id != "deadbeef0001" {
		t.Errorf("PortalID() = %q, want deadbeef0001", id)
	}
}
