package registrator

import (
	"context"
	"encoding/json"
	"io"
	"testing"
)

func TestNoopRegisterIsNoop(t *testing.T) {
	r := NewNoop("fixed-client")
	if r.ClientID() != "fixed-client" {
		t.Errorf("ClientID() = %q, want fixed-client", r.ClientID())
	}
	if err := r.Register(context.Background(), "abc123"); err != nil {
		t.Errorf("Register() = %v, want nil", err)
	}
}

func TestNoopGeneratesClientIDWhenEmpty(t *testing.T) {
	r := NewNoop("")
	if r.ClientID() == "" {
		t.Error("ClientID() = empty, want a generated uuid")
	}
}

func TestHTTPNewRequestBody(t *testing.T) {
	req, err := httpNewRequest(context.Background(), "https://registrar.example.com/register", "abc123", "client-1")
	if err != nil {
		t.Fatalf("httpNewRequest: %v", err)
	}
	if req.Method != "POST" {
		t.Errorf("Method = %s, want POST", req.Method)
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var decoded registrationBody
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if decoded.PortalID != "abc123" || decoded.ClientID != "client-1" {
		t.Errorf("decoded = %+v, want portal_id=abc123 client_id=client-1", decoded)
	}
}
