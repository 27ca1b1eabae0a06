// Package mirror implements the mirroring engine: service discovery,
// introspection, the mirror table, the publish queue, the broker liveness
// FSM, and the orchestrator that ties them together (SPEC_FULL.md §5).
package mirror

import (
	"fmt"
	"strconv"
	"strings"
)

// serviceType extracts the third dot-separated segment of a vendor-prefixed
// bus name, e.g. "com.victronenergy.battery.ttyO1" -> "battery".
func serviceType(vendorPrefix, serviceName string) (string, error) {
	if !strings.HasPrefix(serviceName, vendorPrefix) {
		return "", fmt.Errorf("%s: not a mirrored service (missing prefix %s)", serviceName, vendorPrefix)
	}
	parts := strings.Split(serviceName, ".")
	if len(parts) < 3 {
		return "", fmt.Errorf("%s: malformed service name", serviceName)
	}
	return parts[2], nil
}

// shortServiceName combines a service's type and device instance into the
// registry key used to resolve inbound topics back to a service name, e.g.
// "battery/257".
func shortServiceName(serviceType string, deviceInstance int) string {
	return fmt.Sprintf("%s/%d", serviceType, deviceInstance)
}

// outboundTopic builds the "N/..." topic a mirrored value is published
// under (spec.md §6 "Topic shape").
func outboundTopic(portalID, serviceType string, deviceInstance int, path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return fmt.Sprintf("N/%s/%s/%d%s", portalID, serviceType, deviceInstance, path)
}

// inboundRequest is a parsed R/ or W/ topic.
type inboundRequest struct {
	Action         string // "R" or "W"
	PortalID       string
	ServiceType    string
	DeviceInstance int
	Path           string
}

// parseInboundTopic splits an inbound read/write topic into its components.
// Malformed topics (too few segments, unknown action, non-numeric device
// instance) return an error so the caller can drop the message without
// publishing an error (spec.md §7, error kind (c)). The portal id is not
// checked here; Handler.HandleMessage compares it.
func parseInboundTopic(topic string) (inboundRequest, error) {
	parts := strings.SplitN(topic, "/", 5)
	if len(parts) != 5 {
		return inboundRequest{}, fmt.Errorf("malformed topic %q", topic)
	}
	action, portalID, svcType, instanceStr, path := parts[0], parts[1], parts[2], parts[3], parts[4]
	if action != "R" && action != "W" {
		return inboundRequest{}, fmt.Errorf("malformed topic %q: unknown action %q", topic, action)
	}
	instance, err := strconv.Atoi(instanceStr)
	if err != nil {
		return inboundRequest{}, fmt.Errorf("malformed topic %q: bad device instance: %w", topic, err)
	}
	return inboundRequest{
		Action:         action,
		PortalID:       portalID,
		ServiceType:    svcType,
		DeviceInstance: instance,
		Path:           "/" + path,
	}, nil
}
