package mirror

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bridgeworks/busmirror/internal/broker"
	"github.com/bridgeworks/busmirror/internal/busvalue"
	"github.com/bridgeworks/busmirror/internal/clock"
	"github.com/bridgeworks/busmirror/internal/logging"
	"github.com/bridgeworks/busmirror/internal/metrics"
	"github.com/bridgeworks/busmirror/internal/registrator"
)

// tickInterval is the Publish Queue's drain timer period (spec.md §4.6,
// grounded on GLib.timeout_add_seconds(1, self._timer_service_queue)).
const tickInterval = 1 * time.Second

// inboundMessage is one message delivered by the broker, queued into a
// single channel so every inbound handler call happens on the
// orchestrator's one dispatch goroutine, preserving the "single dispatcher
// owns all shared state" concurrency model (spec.md §6) even though paho's
// client invokes subscription callbacks from its own goroutines.
type inboundMessage struct {
	topic   string
	payload []byte
}

// Orchestrator wires every mirroring-engine component together and runs the
// bridge's main event loop (spec.md §5 "Orchestrator").
type Orchestrator struct {
	bus          busAPI
	broker       broker.Broker
	registrator  registrator.Registrator
	clock        clock.Clock
	log          *logging.Logger
	vendorPrefix string
	portalID     string

	registry     *Registry
	table        *Table
	queue        *PublishQueue
	introspector *Introspector
	lifecycle    *Lifecycle
	handler      *Handler
	listener     *Listener
	fsm          *LivenessFSM

	inbox chan inboundMessage
}

// New creates an Orchestrator with every component wired from its
// collaborators.
func New(
	bus busAPI,
	b broker.Broker,
	reg registrator.Registrator,
	clk clock.Clock,
	log *logging.Logger,
	vendorPrefix, portalID string,
) *Orchestrator {
	values := busvalue.New(portalID)
	registry := NewRegistry()
	table := NewTable()
	queue := NewPublishQueue(b, clk, log)
	introspector := NewIntrospector(bus, values)
	lifecycle := NewLifecycle(bus, registry, table, queue, introspector, vendorPrefix, portalID, log)
	handlerObj := NewHandler(registry, table, bus, values, queue, portalID, log)

	o := &Orchestrator{
		bus:          bus,
		broker:       b,
		registrator:  reg,
		clock:        clk,
		log:          log,
		vendorPrefix: vendorPrefix,
		portalID:     portalID,
		registry:     registry,
		table:        table,
		queue:        queue,
		introspector: introspector,
		lifecycle:    lifecycle,
		handler:      handlerObj,
		inbox:        make(chan inboundMessage, 256),
	}

	o.listener = NewListener(registry, table, queue, values, portalID, log, o.onUnknownPath)
	o.fsm = NewLivenessFSM(reg.ClientID(), portalID, reg, log, o.republishAll)
	return o
}

func (o *Orchestrator) onUnknownPath(service, path string, value busvalue.Value) {
	rec, ok := o.registry.ByName(service)
	if !ok {
		return
	}
	topic := outboundTopic(o.portalID, rec.ServiceType, rec.DeviceInstance, path)
	if _, created := o.table.Ensure(service, path, topic, value); created {
		o.queue.Enqueue(topic, value)
	}
}

func (o *Orchestrator) republishAll() {
	for _, e := range o.table.AllTopics() {
		o.queue.Enqueue(e.Topic, e.Value)
	}
}

// Run connects to the broker, performs the bootstrap scan, and services the
// bus and broker event streams until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.broker.Connect(ctx); err != nil {
		return fmt.Errorf("connect broker: %w", err)
	}
	defer o.broker.Disconnect()
	o.fsm.OnBrokerConnected()

	if err := o.subscribeInbound(); err != nil {
		return err
	}

	if o.registrator != nil {
		if err := o.registrator.Register(ctx, o.portalID); err != nil {
			o.log.Error("initial cloud registration failed", "error", err)
		} else {
			metrics.RegistrationsTotal.Inc()
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	ownerChanges, err := o.bus.SubscribeOwnerChanges(ctx)
	if err != nil {
		return fmt.Errorf("subscribe owner changes: %w", err)
	}
	valueChanges, err := o.bus.SubscribeValueChanges(ctx, o.vendorPrefix)
	if err != nil {
		return fmt.Errorf("subscribe value changes: %w", err)
	}

	o.lifecycle.Bootstrap(ctx)
	metrics.ServicesTracked.Set(float64(o.registry.Len()))
	metrics.MirrorEntries.Set(float64(o.table.Len()))

	// The disconnected -> connected-local transition always republishes
	// everything currently in the Mirror Table, unconditionally (spec.md
	// §4.8, dbus_mqtt.py's _on_connect: subscribe then _publish_all()). This
	// is what gets the bootstrap scan's entries (scanned with publish=false)
	// onto the broker without waiting for a cloud liveness message that may
	// never arrive in a local-only deployment.
	o.republishAll()

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case change, ok := <-ownerChanges:
				if !ok {
					return nil
				}
				o.lifecycle.HandleOwnerChange(ctx, change)
			}
		}
	})

	g.Go(func() error {
		o.listener.Run(ctx, valueChanges)
		return nil
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case msg, ok := <-o.inbox:
				if !ok {
					return nil
				}
				o.dispatchInbound(ctx, msg)
			}
		}
	})

	g.Go(func() error {
		return o.runQueueTimer(ctx)
	})

	err = g.Wait()
	o.tombstoneAll()
	return err
}

// tombstoneAll unpublishes every currently-mirrored topic and flushes the
// queue one last time, a graceful-shutdown counterpart to the original's
// otherwise-dead _unpublish_all path (SPEC_FULL.md §8.3). Flush bypasses the
// 1.5s drain gate so shutdown doesn't silently drop tombstones past the
// first batch waiting out a timer that will never fire again.
func (o *Orchestrator) tombstoneAll() {
	for _, topic := range o.table.AllTopicNames() {
		o.queue.Tombstone(topic)
	}
	o.queue.Flush()
}

// dispatchInbound handles one inbound broker message, then schedules an idle
// queue drain — the Go equivalent of the original's GLib.idle_add(self.
// _service_queue) called after handling a read/write request (spec.md §4.6),
// so a reply enqueued here doesn't wait out the full 1Hz timer if the 1.5s
// gate already permits a drain.
func (o *Orchestrator) dispatchInbound(ctx context.Context, msg inboundMessage) {
	if o.fsm.HandleMessage(ctx, msg.topic, msg.payload) {
		return
	}
	o.handler.HandleMessage(msg.topic, msg.payload)
	o.queue.Tick()
}

func (o *Orchestrator) subscribeInbound() error {
	cb := func(topic string, payload []byte) {
		select {
		case o.inbox <- inboundMessage{topic: topic, payload: payload}:
		default:
			o.log.Error("inbound message dropped: dispatch queue full", "topic", topic)
		}
	}

	if err := o.broker.Subscribe(fmt.Sprintf("R/%s/#", o.portalID), 0, cb); err != nil {
		return fmt.Errorf("subscribe read requests: %w", err)
	}
	if err := o.broker.Subscribe(fmt.Sprintf("W/%s/#", o.portalID), 0, cb); err != nil {
		return fmt.Errorf("subscribe write requests: %w", err)
	}
	if _, noop := o.registrator.(*registrator.Noop); o.registrator != nil && !noop && o.registrator.ClientID() != "" {
		sysTopic := fmt.Sprintf("$SYS/broker/connection/%s/state", o.registrator.ClientID())
		if err := o.broker.Subscribe(sysTopic, 0, cb); err != nil {
			return fmt.Errorf("subscribe broker liveness: %w", err)
		}
	}
	return nil
}

// runQueueTimer drives the Publish Queue's 1Hz drain timer, immediately
// re-draining (rather than waiting for the next tick) while items remain —
// the Go equivalent of GLib.idle_add(self._service_queue) continuing a
// drain that didn't finish in one pass (spec.md §4.6).
func (o *Orchestrator) runQueueTimer(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-o.clock.After(tickInterval):
			for o.queue.Tick() {
				select {
				case <-ctx.Done():
					return nil
				default:
				}
			}
		}
	}
}
