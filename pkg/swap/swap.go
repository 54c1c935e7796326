// Package swap implements the cross-chain atomic-swap state machine of
// spec.md §4.J: a UTXO-backend HTLC (pkg/swap/htlc.go) and an
// account/contract backend (pkg/swap/contract.go), driven by the same
// per-role state transitions regardless of which backend either leg uses.
// The package runs no event-wait loop of its own: callers scan for events
// and feed them to a Machine.
package swap

import (
	"crypto/rand"
	"fmt"
	"time"

	"golang.org/x/crypto/ripemd160"
)

// Role identifies which side of the swap a Machine drives.
type Role int

const (
	Initiator Role = iota
	Responder
)

// State is a node in the per-role transition graph of spec.md §4.J.
type State int

const (
	New State = iota
	Initiated      // initiator only
	AwaitInitiated // responder only
	AwaitResponded // initiator only
	Responded      // responder only
	Redeemed
	Refunded
)

func (s State) String() string {
	switch s {
	case New:
		return "New"
	case Initiated:
		return "Initiated"
	case AwaitInitiated:
		return "AwaitInitiated"
	case AwaitResponded:
		return "AwaitResponded"
	case Responded:
		return "Responded"
	case Redeemed:
		return "Redeemed"
	case Refunded:
		return "Refunded"
	default:
		return "Unknown"
	}
}

// TimelockA and TimelockB are the fixed windows of spec.md §4.J. B's window
// must be strictly shorter than A's: having revealed nothing, B can safely
// refund once A's window has definitely expired.
const (
	TimelockA = 7200 * time.Second
	TimelockB = 3600 * time.Second
)

// HashedSecret is RIPEMD160(preimage), the 20-byte value that keys both the
// HTLC script and the contract events.
type HashedSecret [20]byte

// NewPreimage generates a random 32-byte preimage and its hashed secret.
func NewPreimage() (preimage [32]byte, hashed HashedSecret, err error) {
	if _, err = rand.Read(preimage[:]); err != nil {
		return preimage, hashed, err
	}
	h := ripemd160.New()
	h.Write(preimage[:])
	copy(hashed[:], h.Sum(nil))
	return preimage, hashed, nil
}

// Params describes one swap instance, fixed at New.
type Params struct {
	HashedSecret     HashedSecret
	InitiatorAddress string
	ResponderAddress string
	Value            string // decimal string, chain-agnostic
}

// Machine drives one party's side of a swap through its state graph.
// Backend calls (Initiate/Respond/Redeem/Refund) and event observation are
// injected, keeping the state machine itself chain-agnostic.
type Machine struct {
	Role   Role
	Params Params
	State  State

	Preimage    *[32]byte // known only to the initiator until redeem
	InitiatedAt time.Time
	RespondedAt time.Time
}

// NewMachine validates the timelock invariant and returns a fresh Machine in
// state New.
func NewMachine(role Role, params Params) (*Machine, error) {
	if TimelockB >= TimelockA {
		return nil, fmt.Errorf("swap: timelock_B (%s) must be less than timelock_A (%s)", TimelockB, TimelockA)
	}
	return &Machine{Role: role, Params: params, State: New}, nil
}

// transitionError reports an attempted transition the current state forbids.
type transitionError struct {
	role  Role
	from  State
	event string
}

func (e *transitionError) Error() string {
	return fmt.Sprintf("swap: role=%v cannot handle %q from state %v", e.role, e.event, e.from)
}

// OnLocalPublish advances Initiator New->Initiated after it broadcasts its
// leg, or Responder AwaitInitiated->Responded after it broadcasts its own.
func (m *Machine) OnLocalPublish() error {
	switch {
	case m.Role == Initiator && m.State == New:
		m.State = Initiated
		m.InitiatedAt = time.Now()
		return nil
	case m.Role == Responder && m.State == AwaitInitiated:
		m.State = Responded
		m.RespondedAt = time.Now()
		return nil
	default:
		return &transitionError{m.Role, m.State, "local-publish"}
	}
}

// Start marks the responder's wait for the counterparty's Initiated event.
func (m *Machine) Start() {
	if m.Role == Responder && m.State == New {
		m.State = AwaitInitiated
	}
}

// OnCounterpartyResponded advances the initiator once it observes the
// responder's Responded event with matching hashed_secret, responder
// address, and value (spec.md §4.J).
func (m *Machine) OnCounterpartyResponded(evt Event) error {
	if m.Role != Initiator || m.State != Initiated {
		return &transitionError{m.Role, m.State, "counterparty-responded"}
	}
	if !evt.Matches(m.Params) {
		return fmt.Errorf("swap: Responded event parameters do not match %+v", m.Params)
	}
	m.State = AwaitResponded
	return nil
}

// OnCounterpartyInitiated checks the initiator's Initiated event against the
// responder's params. It does not change State; the responder moves to
// Responded when OnLocalPublish is called after its own leg is broadcast.
func (m *Machine) OnCounterpartyInitiated(evt Event) error {
	if m.Role != Responder || m.State != AwaitInitiated {
		return &transitionError{m.Role, m.State, "counterparty-initiated"}
	}
	if !evt.Matches(m.Params) {
		return fmt.Errorf("swap: Initiated event parameters do not match %+v", m.Params)
	}
	return nil // caller then broadcasts its own leg and calls OnLocalPublish
}

// OnRedeem advances the initiator to Redeemed after it publishes a redeem
// revealing the preimage.
func (m *Machine) OnRedeem(preimage [32]byte) error {
	if m.Role != Initiator || m.State != AwaitResponded {
		return &transitionError{m.Role, m.State, "redeem"}
	}
	m.Preimage = &preimage
	m.State = Redeemed
	return nil
}

// OnExtractPreimage advances the responder to Redeemed after observing the
// initiator's redeem, extracting the preimage, and redeeming its own leg.
func (m *Machine) OnExtractPreimage(preimage [32]byte) error {
	if m.Role != Responder || m.State != Responded {
		return &transitionError{m.Role, m.State, "extract-preimage"}
	}
	m.Preimage = &preimage
	m.State = Redeemed
	return nil
}

// OnRefund advances either role to Refunded once its own timelock elapses.
// Valid from any non-terminal state, matching spec.md §4.J's "* -> Refunded".
func (m *Machine) OnRefund() error {
	if m.State == Redeemed || m.State == Refunded {
		return &transitionError{m.Role, m.State, "refund"}
	}
	m.State = Refunded
	return nil
}

// Timelock returns this role's refund window.
func (m *Machine) Timelock() time.Duration {
	if m.Role == Initiator {
		return TimelockA
	}
	return TimelockB
}

// RefundDeadline returns when this role's refund window elapses, measured
// from the moment it published its leg.
func (m *Machine) RefundDeadline() time.Time {
	published := m.InitiatedAt
	if m.Role == Responder {
		published = m.RespondedAt
	}
	return published.Add(m.Timelock())
}
