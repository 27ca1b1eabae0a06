package objectbus

import "github.com/godbus/dbus/v5"

// Error wraps a bus-level failure and classifies it the way spec.md §7
// requires: transient errors abandon the current scan without propagating,
// method-missing errors trigger the introspection fallback, everything else
// propagates.
type Error struct {
	Name string // the D-Bus error name, e.g. "org.freedesktop.DBus.Error.ServiceUnknown"
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return e.Name
}

func (e *Error) Unwrap() error { return e.err }

// Transient reports whether the error means the scan should simply be
// abandoned: the service vanished mid-scan, the bus connection dropped, or
// the call timed out waiting for a reply.
func (e *Error) Transient() bool {
	switch e.Name {
	case "org.freedesktop.DBus.Error.ServiceUnknown",
		"org.freedesktop.DBus.Error.Disconnected",
		"org.freedesktop.DBus.Error.NoReply":
		return true
	default:
		return false
	}
}

// MethodMissing reports whether the error means the target doesn't
// implement the method being called, which should trigger a fallback
// strategy rather than abandoning the operation.
func (e *Error) MethodMissing() bool {
	switch e.Name {
	case "org.freedesktop.DBus.Error.UnknownObject",
		"org.freedesktop.DBus.Error.UnknownMethod":
		return true
	default:
		return false
	}
}

// classify wraps a raw error from godbus into an *Error when it carries a
// D-Bus error name, leaving any other error (e.g. a transport failure)
// untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if dbusErr, ok := err.(dbus.Error); ok {
		return &Error{Name: dbusErr.Name, err: dbusErr}
	}
	return err
}
