// Package registrator implements cloud-broker credential registration,
// triggered at startup (when enabled) and again whenever the Broker
// Liveness FSM loses the cloud link (SPEC_FULL.md §7 "Registrator",
// a supplemented feature: the distilled spec names the collaborator but
// leaves registration transport unspecified).
package registrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/oauth2/clientcredentials"
)

// Registrator registers this bridge's portal id with the upstream cloud
// broker so it is allowed to publish there.
type Registrator interface {
	Register(ctx context.Context, portalID string) error
	ClientID() string
}

// Config holds the OAuth2 client-credentials settings used to authenticate
// registration requests against the cloud registration endpoint.
type Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Endpoint     string // registration HTTP endpoint
}

// OAuth2 is the production Registrator, authenticating via the OAuth2
// client-credentials grant before calling the registration endpoint.
type OAuth2 struct {
	cfg      Config
	cc       *clientcredentials.Config
	clientID string
}

// New creates an OAuth2 registrator. A fresh uuid is minted for the
// connecting client id when cfg.ClientID is empty, matching the teacher's
// convention of generating an identifier rather than requiring one.
func New(cfg Config) *OAuth2 {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = uuid.NewString()
	}
	return &OAuth2{
		cfg: cfg,
		cc: &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		},
		clientID: clientID,
	}
}

// ClientID returns the identifier this registrator (and, by convention, the
// broker connection it registers) uses.
func (o *OAuth2) ClientID() string { return o.clientID }

// Register authenticates and posts the portal id to the registration
// endpoint, granting this bridge permission to publish under that id on the
// cloud broker.
func (o *OAuth2) Register(ctx context.Context, portalID string) error {
	httpClient := o.cc.Client(ctx)
	req, err := httpNewRequest(ctx, o.cfg.Endpoint, portalID, o.clientID)
	if err != nil {
		return fmt.Errorf("build registration request: %w", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("register portal %s: %w", portalID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("register portal %s: cloud registrar returned %s", portalID, resp.Status)
	}
	return nil
}

// Noop is used when cloud registration is disabled (-init-broker=false).
type Noop struct{ clientID string }

// NewNoop creates a Registrator that never contacts the cloud.
func NewNoop(clientID string) *Noop {
	if clientID == "" {
		clientID = uuid.NewString()
	}
	return &Noop{clientID: clientID}
}

func (n *Noop) ClientID() string { return n.clientID }

func (n *Noop) Register(ctx context.Context, portalID string) error { return nil }
