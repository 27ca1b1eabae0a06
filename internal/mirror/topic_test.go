package mirror

import "testing"

func TestServiceType(t *testing.T) {
	st, err := serviceType("com.victronenergy.", "com.victronenergy.battery.ttyO1")
	if err != nil {
		t.Fatalf("serviceType: %v", err)
	}
	if st != "battery" {
		t.Errorf("serviceType = %q, want battery", st)
	}
}

func TestServiceTypeRejectsUnprefixed(t *testing.T) {
	if _, err := serviceType("com.victronenergy.", "org.freedesktop.DBus"); err == nil {
		t.Error("serviceType() = nil error, want error for unprefixed service")
	}
}

func TestShortServiceName(t *testing.T) {
	if got := shortServiceName("battery", 257); got != "battery/257" {
		t.Errorf("shortServiceName = %q, want battery/257", got)
	}
}

func TestOutboundTopic(t *testing.T) {
	got := outboundTopic("abc123", "vebus", 257, "Hub4/L1/AcPowerSetpoint")
	want := "N/abc123/vebus/257/Hub4/L1/AcPowerSetpoint"
	if got != want {
		t.Errorf("outboundTopic = %q, want %q", got, want)
	}
}

func TestParseInboundTopicRead(t *testing.T) {
	req, err := parseInboundTopic("R/abc123/vebus/257/Hub4/L1/AcPowerSetpoint")
	if err != nil {
		t.Fatalf("parseInboundTopic: %v", err)
	}
	if req.Action != "R" || req.PortalID != "abc123" || req.ServiceType != "vebus" || req.DeviceInstance != 257 || req.Path != "/Hub4/L1/AcPowerSetpoint" {
		t.Errorf("parsed = %+v", req)
	}
}

func TestParseInboundTopicWrite(t *testing.T) {
	req, err := parseInboundTopic("W/abc123/settings/0/Settings/System/TimeZone")
	if err != nil {
		t.Fatalf("parseInboundTopic: %v", err)
	}
	if req.Action != "W" || req.Path != "/Settings/System/TimeZone" {
		t.Errorf("parsed = %+v", req)
	}
}

func TestParseInboundTopicMalformed(t *testing.T) {
	if _, err := parseInboundTopic("bad/topic"); err == nil {
		t.Error("parseInboundTopic() = nil error, want error for malformed topic")
	}
	if _, err := parseInboundTopic("X/abc123/vebus/257/Foo"); err == nil {
		t.Error("parseInboundTopic() = nil error, want error for unknown action")
	}
	if _, err := parseInboundTopic("R/abc123/vebus/notanumber/Foo"); err == nil {
		t.Error("parseInboundTopic() = nil error, want error for non-numeric device instance")
	}
}
