package session

import (
	"context"

	"github.com/qmuntal/stateless"
)

// State is the lifecycle state of a Manager.
type State string

const (
	StateDisconnected State = "Disconnected"
	StateConnecting   State = "Connecting"
	StateConnected    State = "Connected"
	StateDegraded     State = "Degraded" // transient: resolves to Connecting or Closed
	StateClosed       State = "Closed"   // terminal
)

type trigger string

const (
	triggerConnect       trigger = "connect"
	triggerConnected     trigger = "connected"
	triggerConnectFailed trigger = "connect_failed"
	triggerHealthFailed  trigger = "health_failed"
	triggerClose         trigger = "close"
)

func newStateMachine() *stateless.StateMachine {
	sm := stateless.NewStateMachine(StateDisconnected)

	sm.Configure(StateDisconnected).
		Permit(triggerConnect, StateConnecting).
		Permit(triggerClose, StateClosed).
		Ignore(triggerHealthFailed)

	sm.Configure(StateConnecting).
		Permit(triggerConnected, StateConnected).
		Permit(triggerConnectFailed, StateDisconnected).
		Permit(triggerClose, StateClosed)

	sm.Configure(StateConnected).
		Permit(triggerHealthFailed, StateDegraded).
		Permit(triggerClose, StateClosed)

	sm.Configure(StateDegraded).
		Permit(triggerConnect, StateConnecting).
		Permit(triggerClose, StateClosed).
		Ignore(triggerHealthFailed)

	return sm
}

func currentState(sm *stateless.StateMachine) State {
	s, err := sm.State(context.Background())
	if err != nil {
		return StateDisconnected
	}
	return s.(State)
}
