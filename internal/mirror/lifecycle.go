package mirror

import (
	"context"
	"strings"

	"github.com/bridgeworks/busmirror/internal/logging"
	"github.com/bridgeworks/busmirror/internal/metrics"
	"github.com/bridgeworks/busmirror/internal/objectbus"
)

// Lifecycle reacts to bus-name ownership changes: a service appearing
// triggers a scan and publishes its initial values, a service disappearing
// tombstones every topic it owned and removes it from the Registry and
// Mirror Table (spec.md §5 "Lifecycle Controller", grounded on
// _dbus_name_owner_changed / _scan_dbus_service).
type Lifecycle struct {
	bus          busAPI
	registry     *Registry
	table        *Table
	queue        *PublishQueue
	introspector *Introspector
	vendorPrefix string
	portalID     string
	log          *logging.Logger
}

// NewLifecycle creates a Lifecycle controller.
func NewLifecycle(bus busAPI, registry *Registry, table *Table, queue *PublishQueue, in *Introspector, vendorPrefix, portalID string, log *logging.Logger) *Lifecycle {
	return &Lifecycle{
		bus:          bus,
		registry:     registry,
		table:        table,
		queue:        queue,
		introspector: in,
		vendorPrefix: vendorPrefix,
		portalID:     portalID,
		log:          log,
	}
}

// Bootstrap scans every already-owned vendor-prefixed bus name at startup,
// since NameOwnerChanged only fires for changes after the match is added
// (spec.md §8 supplemented feature: initial bootstrap scan).
func (lc *Lifecycle) Bootstrap(ctx context.Context) {
	names, err := lc.bus.ListNames()
	if err != nil {
		lc.log.Error("failed to list bus names for bootstrap scan", "error", err)
		return
	}
	for _, name := range names {
		if !strings.HasPrefix(name, lc.vendorPrefix) {
			continue
		}
		owner, err := lc.bus.GetNameOwner(name)
		if err != nil {
			lc.log.Error("failed to resolve owner during bootstrap", "service", name, "error", err)
			continue
		}
		lc.onAppear(ctx, name, owner, false)
	}
}

// HandleOwnerChange processes one NameOwnerChanged event.
func (lc *Lifecycle) HandleOwnerChange(ctx context.Context, change objectbus.OwnerChange) {
	if !strings.HasPrefix(change.Name, lc.vendorPrefix) {
		return
	}
	switch {
	case change.OldOwner != "" && change.NewOwner != "":
		// Owner swap: handled as a disappearance of the old owner followed
		// by an appearance of the new one.
		lc.onDisappear(change.Name)
		lc.onAppear(ctx, change.Name, change.NewOwner, true)
	case change.Appeared():
		lc.onAppear(ctx, change.Name, change.NewOwner, true)
	case change.Disappeared():
		lc.onDisappear(change.Name)
	}
}

func (lc *Lifecycle) onAppear(ctx context.Context, service, owner string, publish bool) {
	lc.log.Info("scanning service", "service", service)

	svcType, err := serviceType(lc.vendorPrefix, service)
	if err != nil {
		lc.log.Error("cannot classify service", "service", service, "error", err)
		return
	}

	instance, err := lc.introspector.DeviceInstance(service)
	if err != nil {
		if !logTransient(lc.log, "scan", service, err) {
			lc.log.Error("scan failed", "service", service, "error", err)
		}
		metrics.ScansTotal.WithLabelValues("error").Inc()
		return
	}

	lc.registry.Put(ServiceRecord{Name: service, Owner: owner, ServiceType: svcType, DeviceInstance: instance})

	items, err := lc.introspector.Scan(ctx, service)
	if err != nil {
		if !logTransient(lc.log, "scan", service, err) {
			lc.log.Error("scan failed", "service", service, "error", err)
		}
		metrics.ScansTotal.WithLabelValues("error").Inc()
		return
	}

	for _, item := range items {
		topic := outboundTopic(lc.portalID, svcType, instance, item.Path)
		_, created := lc.table.Ensure(service, item.Path, topic, item.Value)
		if created && publish {
			lc.queue.Enqueue(topic, item.Value)
		}
	}
	metrics.ScansTotal.WithLabelValues("ok").Inc()
	metrics.ServicesTracked.Set(float64(lc.registry.Len()))
	metrics.MirrorEntries.Set(float64(lc.table.Len()))
}

func (lc *Lifecycle) onDisappear(service string) {
	lc.log.Info("service disappeared", "service", service)
	topics := lc.table.RemoveService(service)
	for _, topic := range topics {
		lc.queue.Tombstone(topic)
	}
	lc.registry.RemoveByName(service)
	metrics.ServicesTracked.Set(float64(lc.registry.Len()))
	metrics.MirrorEntries.Set(float64(lc.table.Len()))
}

// logTransient logs and absorbs a transient bus error (service-unknown,
// disconnected, no-reply), reporting whether it handled the error so the
// caller skips its own generic error log (spec.md §7 kind (a)).
func logTransient(log *logging.Logger, op, service string, err error) bool {
	be, ok := err.(*objectbus.Error)
	if !ok || !be.Transient() {
		return false
	}
	log.Info(op+" abandoned: service disappeared or did not reply", "service", service, "reason", be.Name)
	return true
}
