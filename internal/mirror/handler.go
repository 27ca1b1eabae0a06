package mirror

import (
	"encoding/json"

	"github.com/bridgeworks/busmirror/internal/busvalue"
	"github.com/bridgeworks/busmirror/internal/logging"
	"github.com/bridgeworks/busmirror/internal/metrics"
)

// Handler answers inbound R/ and W/ requests from the broker by reading or
// writing the corresponding bus value directly, independent of whatever the
// Mirror Table currently caches (spec.md §5 "Request Handler", grounded on
// _handle_read/_handle_write).
type Handler struct {
	registry *Registry
	table    *Table
	bus      busAPI
	values   *busvalue.Marshaller
	queue    *PublishQueue
	portalID string
	log      *logging.Logger
}

// NewHandler creates a Handler.
func NewHandler(registry *Registry, table *Table, bus busAPI, values *busvalue.Marshaller, queue *PublishQueue, portalID string, log *logging.Logger) *Handler {
	return &Handler{
		registry: registry,
		table:    table,
		bus:      bus,
		values:   values,
		queue:    queue,
		portalID: portalID,
		log:      log,
	}
}

type writePayload struct {
	Value busvalue.Value `json:"value"`
}

// HandleMessage routes one inbound broker message. Malformed topics and
// requests against an unknown portal id or service are logged and dropped
// without a reply, matching the original's behaviour — there is no defined
// error channel for inbound requests (spec.md §7 kind (c)).
func (h *Handler) HandleMessage(topic string, payload []byte) {
	req, err := parseInboundTopic(topic)
	if err != nil {
		h.log.Error("dropping malformed inbound request", "topic", topic, "error", err)
		metrics.RequestsTotal.WithLabelValues("unknown", "dropped").Inc()
		return
	}

	if req.PortalID != h.portalID {
		h.log.Error("dropping request for unknown portal id", "topic", topic, "portal_id", req.PortalID)
		metrics.RequestsTotal.WithLabelValues(actionLabel(req.Action), "dropped").Inc()
		return
	}

	rec, ok := h.registry.ByShortName(shortServiceName(req.ServiceType, req.DeviceInstance))
	if !ok {
		h.log.Error("dropping request for unknown service", "topic", topic, "service_type", req.ServiceType, "device_instance", req.DeviceInstance)
		metrics.RequestsTotal.WithLabelValues(actionLabel(req.Action), "dropped").Inc()
		return
	}

	switch req.Action {
	case "R":
		h.handleRead(rec, req)
	case "W":
		h.handleWrite(rec, req, payload)
	}
}

func actionLabel(action string) string {
	switch action {
	case "R":
		return "read"
	case "W":
		return "write"
	default:
		return "unknown"
	}
}

func (h *Handler) handleRead(rec ServiceRecord, req inboundRequest) {
	v, err := h.bus.GetValue(rec.Name, req.Path)
	if err != nil {
		h.log.Error("read failed", "service", rec.Name, "path", req.Path, "error", err)
		metrics.RequestsTotal.WithLabelValues("read", "error").Inc()
		return
	}

	value := h.values.Unwrap(v)
	topic := outboundTopic(h.portalID, rec.ServiceType, rec.DeviceInstance, req.Path)
	h.table.Ensure(rec.Name, req.Path, topic, value)
	h.queue.Enqueue(topic, value)
	metrics.RequestsTotal.WithLabelValues("read", "ok").Inc()
}

func (h *Handler) handleWrite(rec ServiceRecord, req inboundRequest, payload []byte) {
	var body writePayload
	if err := json.Unmarshal(payload, &body); err != nil {
		h.log.Error("dropping malformed write payload", "service", rec.Name, "path", req.Path, "error", err)
		metrics.RequestsTotal.WithLabelValues("write", "dropped").Inc()
		return
	}

	if err := h.bus.SetValue(rec.Name, req.Path, h.values.Wrap(body.Value)); err != nil {
		h.log.Error("write failed", "service", rec.Name, "path", req.Path, "error", err)
		metrics.RequestsTotal.WithLabelValues("write", "error").Inc()
		return
	}
	metrics.RequestsTotal.WithLabelValues("write", "ok").Inc()
}
