package mirror

import (
	"context"
	"strconv"
	"strings"

	"github.com/bridgeworks/busmirror/internal/logging"
	"github.com/bridgeworks/busmirror/internal/metrics"
	"github.com/bridgeworks/busmirror/internal/registrator"
)

// LivenessState is one state of the Broker Liveness FSM (spec.md §5 "Broker
// Liveness FSM"): disconnected -> connected-local -> connected-to-cloud,
// which can drop back to disconnected-from-cloud and recover without ever
// leaving connected-local.
type LivenessState int

const (
	StateDisconnected LivenessState = iota
	StateConnectedLocal
	StateConnectedCloud
	StateDisconnectedFromCloud
)

func (s LivenessState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnectedLocal:
		return "connected-local"
	case StateConnectedCloud:
		return "connected-to-cloud"
	case StateDisconnectedFromCloud:
		return "disconnected-from-cloud"
	default:
		return "unknown"
	}
}

// sysConnectionTopicPrefix is the $SYS topic family the broker publishes
// cloud-link state on, scoped by client id (spec.md §7 "$SYS/broker/..."
// subscription, conditional on a registrator being configured).
const sysConnectionTopicPrefix = "$SYS/broker/connection/"

// LivenessFSM tracks the broker connection lifecycle and triggers
// re-registration with the cloud registrator whenever the cloud link is
// lost after having been up, mirroring _on_message's handling of
// "$SYS/broker/connection/{client_id}/state" (spec.md §5, §9).
type LivenessFSM struct {
	state        LivenessState
	clientID     string
	portalID     string
	registrator  registrator.Registrator
	log          *logging.Logger
	onCloudReady func()
}

// NewLivenessFSM creates a LivenessFSM. onCloudReady, if non-nil, is called
// whenever the FSM transitions into StateConnectedCloud, e.g. to trigger a
// full republish (spec.md §9 "_publish_all on connect").
func NewLivenessFSM(clientID, portalID string, reg registrator.Registrator, log *logging.Logger, onCloudReady func()) *LivenessFSM {
	return &LivenessFSM{
		state:       StateDisconnected,
		clientID:    clientID,
		portalID:    portalID,
		registrator: reg,
		log:         log,
		onCloudReady: func() {
			if onCloudReady != nil {
				onCloudReady()
			}
		},
	}
}

// State returns the current liveness state.
func (f *LivenessFSM) State() LivenessState { return f.state }

// OnBrokerConnected transitions from disconnected into connected-local, the
// local MQTT session having been established (broker.Broker.Connect
// succeeded).
func (f *LivenessFSM) OnBrokerConnected() {
	f.state = StateConnectedLocal
	metrics.BrokerLivenessState.Set(float64(f.state))
}

// OnBrokerDisconnected resets the FSM back to disconnected, e.g. on
// transport loss.
func (f *LivenessFSM) OnBrokerDisconnected() {
	f.state = StateDisconnected
	metrics.BrokerLivenessState.Set(float64(f.state))
}

// sysConnectionTopic returns the $SYS topic this FSM should subscribe to,
// scoped to its client id. Returns "" when the FSM was given an empty client
// id, meaning no cloud link is tracked (spec.md §9: the subscription is
// conditional).
func (f *LivenessFSM) sysConnectionTopic() string {
	if f.clientID == "" {
		return ""
	}
	return sysConnectionTopicPrefix + f.clientID + "/state"
}

// HandleMessage processes an inbound broker message, reacting if it's the
// $SYS connection-state topic for this FSM's client id. Returns true if the
// message was consumed (the caller should not also route it as a mirrored
// read/write request).
func (f *LivenessFSM) HandleMessage(ctx context.Context, topic string, payload []byte) bool {
	want := f.sysConnectionTopic()
	if want == "" || topic != want {
		return false
	}

	connected, err := strconv.Atoi(strings.TrimSpace(string(payload)))
	if err != nil {
		f.log.Warn("malformed $SYS connection state payload", "topic", topic, "payload", string(payload))
		return true
	}

	switch {
	case connected == 1:
		f.log.Info("connected to cloud broker")
		wasCloud := f.state == StateConnectedCloud
		f.state = StateConnectedCloud
		metrics.BrokerLivenessState.Set(float64(f.state))
		if !wasCloud {
			f.onCloudReady()
		}
	case f.state == StateConnectedCloud:
		f.log.Error("lost connection with cloud broker")
		f.state = StateDisconnectedFromCloud
		metrics.BrokerLivenessState.Set(float64(f.state))
		if f.registrator != nil {
			if err := f.registrator.Register(ctx, f.portalID); err != nil {
				f.log.Error("cloud re-registration failed", "error", err)
			} else {
				metrics.RegistrationsTotal.Inc()
			}
		}
	}
	return true
}
