package mirror

import (
	"context"

	"github.com/bridgeworks/busmirror/internal/busvalue"
	"github.com/bridgeworks/busmirror/internal/logging"
	"github.com/bridgeworks/busmirror/internal/objectbus"
)

// Listener reacts to PropertiesChanged-equivalent signals from mirrored
// services, resolving the emitting owner back to its service name via the
// Registry and updating the Mirror Table and Publish Queue — the
// push-driven complement to the Introspector's pull-driven scans (spec.md
// §5 "Change Listener", grounded on _on_dbus_value_changed).
type Listener struct {
	registry *Registry
	table    *Table
	queue    *PublishQueue
	values   *busvalue.Marshaller
	portalID string
	log      *logging.Logger

	// onUnknownPath is called when a change arrives for a path the Mirror
	// Table hasn't seen yet, so the orchestrator can re-resolve it (the
	// original adds the item on demand rather than dropping the change; see
	// spec.md §9 "New item found" supplemented behaviour).
	onUnknownPath func(service, path string, value busvalue.Value)
}

// NewListener creates a Listener.
func NewListener(registry *Registry, table *Table, queue *PublishQueue, values *busvalue.Marshaller, portalID string, log *logging.Logger, onUnknownPath func(service, path string, value busvalue.Value)) *Listener {
	return &Listener{
		registry:      registry,
		table:         table,
		queue:         queue,
		values:        values,
		portalID:      portalID,
		log:           log,
		onUnknownPath: onUnknownPath,
	}
}

// Run consumes change events from changes until ctx is cancelled or the
// channel closes.
func (l *Listener) Run(ctx context.Context, changes <-chan objectbus.ValueChange) {
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			l.handle(change)
		}
	}
}

func (l *Listener) handle(change objectbus.ValueChange) {
	service, ok := l.registry.ByOwner(change.Sender)
	if !ok {
		l.log.Debug("value change from unknown owner", "sender", change.Sender, "path", change.Path)
		return
	}

	value := l.values.Unwrap(change.Value)

	if _, ok := l.table.Lookup(service, change.Path); !ok {
		l.log.Info("new item found", "service", service, "path", change.Path)
		if l.onUnknownPath != nil {
			l.onUnknownPath(service, change.Path, value)
		}
		return
	}

	l.table.Update(service, change.Path, value)
	if e, ok := l.table.Lookup(service, change.Path); ok {
		l.queue.Enqueue(e.Topic, value)
	}
}
