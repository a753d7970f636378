package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ctlilley19/K9-TrainPro-sub000/internal/core/domain"
)

// FlowState enumerates the orchestrator's client-facing states.
type FlowState string

const (
	// StateLoading is the initial state before the first resolution.
	StateLoading FlowState = "loading"
	// StateAuthenticated lets the user through.
	StateAuthenticated FlowState = "authenticated"
	// StatePinRequired demands PIN entry.
	StatePinRequired FlowState = "pin-required"
	// StatePinSetup demands PIN setup: the user reached a PIN checkpoint
	// with none configured.
	StatePinSetup FlowState = "pin-setup"
	// StateFullAuthRequired hands control back to the primary sign-in flow.
	// Terminal for the orchestrator.
	StateFullAuthRequired FlowState = "full-auth-required"
)

var (
	// ErrNoIdentity indicates no authenticated identity is present; the
	// caller must redirect to primary sign-in.
	ErrNoIdentity = errors.New("no authenticated identity")
	// ErrFlowState indicates the requested event is not valid in the
	// orchestrator's current state.
	ErrFlowState = errors.New("event not valid in current flow state")
)

// Orchestrator drives one user through the right challenge for one device:
// nothing, PIN entry, PIN setup, or forced full re-authentication.
//
// It is a serialized state machine: one challenge flow at a time, each
// backend call bounded by a timeout. A call that times out or fails is
// treated as fail-closed and routes to full re-authentication. The required
// level is always re-derived from fresh server state, never cached across a
// round-trip.
type Orchestrator struct {
	trust   *TrustService
	pins    *PinService
	timeout time.Duration
	logger  *zap.Logger

	mu             sync.Mutex
	state          FlowState
	userID         string
	deviceID       string
	authState      domain.AuthState
	setupOptional  bool
	offerPinSetup  bool
	offerDismissed bool
}

// NewOrchestrator constructs an Orchestrator in the loading state.
func NewOrchestrator(trust *TrustService, pins *PinService, timeout time.Duration, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Orchestrator{
		trust:   trust,
		pins:    pins,
		timeout: timeout,
		logger:  logger,
		state:   StateLoading,
	}
}

// State returns the current flow state.
func (o *Orchestrator) State() FlowState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// AuthState returns the most recently resolved server state.
func (o *Orchestrator) AuthState() domain.AuthState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.authState
}

// PinSetupOffered reports whether the non-blocking first-login PIN-setup
// offer is showing. The offer is transient session state only; dismissing it
// is final and it is never re-shown.
func (o *Orchestrator) PinSetupOffered() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.offerPinSetup && !o.offerDismissed
}

// Start resolves the trust state for the identity and device and transitions
// out of loading. Returns ErrNoIdentity when no identity is present.
func (o *Orchestrator) Start(ctx context.Context, userID, deviceID string) (FlowState, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateLoading {
		return o.state, ErrFlowState
	}
	if userID == "" {
		return o.state, ErrNoIdentity
	}

	o.userID = userID
	o.deviceID = deviceID

	state := o.resolveLocked(ctx)
	o.applyResolution(state)
	return o.state, nil
}

// SubmitPin verifies a PIN entered in the pin-required state. On success the
// flow becomes authenticated. On a wrong PIN the flow stays put and the
// attempts-remaining display state is re-resolved from the server, never
// locally decremented. Reaching the lockout steps up to full re-auth.
func (o *Orchestrator) SubmitPin(ctx context.Context, pin string) (FlowState, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StatePinRequired {
		return o.state, ErrFlowState
	}

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	_, err := o.pins.VerifyPin(callCtx, o.userID, o.deviceID, pin)
	switch {
	case err == nil:
		o.state = StateAuthenticated
		o.authState = o.resolveLocked(ctx)
		return o.state, nil
	case errors.Is(err, ErrInvalidPin):
		return o.state, err
	case errors.Is(err, ErrPinLocked):
		o.state = StateFullAuthRequired
		return o.state, err
	case errors.Is(err, ErrWrongPin):
		o.authState = o.resolveLocked(ctx)
		if o.authState.IsLocked || o.authState.RequiredAuthLevel == domain.RequiredAuthFull {
			o.state = StateFullAuthRequired
		}
		return o.state, err
	default:
		o.logger.Error("pin verification failed, failing closed", zap.Error(err))
		o.state = StateFullAuthRequired
		return o.state, err
	}
}

// SetupPin stores a new PIN from the pin-setup state, or accepts the
// first-login setup offer from the authenticated state.
func (o *Orchestrator) SetupPin(ctx context.Context, pin string) (FlowState, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	offerActive := o.state == StateAuthenticated && o.offerPinSetup && !o.offerDismissed
	if o.state != StatePinSetup && !offerActive {
		return o.state, ErrFlowState
	}

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	if err := o.pins.SetPin(callCtx, o.userID, pin); err != nil {
		if errors.Is(err, ErrInvalidPin) {
			return o.state, err
		}
		o.logger.Error("pin setup failed, failing closed", zap.Error(err))
		o.state = StateFullAuthRequired
		return o.state, err
	}

	o.offerPinSetup = false
	o.state = StateAuthenticated
	o.authState = o.resolveLocked(ctx)
	return o.state, nil
}

// SkipSetup dismisses an optional PIN setup. Mandatory setup (a checkpoint
// reached with no PIN configured) cannot be skipped.
func (o *Orchestrator) SkipSetup() (FlowState, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch {
	case o.state == StateAuthenticated && o.offerPinSetup:
		o.offerDismissed = true
		o.offerPinSetup = false
		return o.state, nil
	case o.state == StatePinSetup && o.setupOptional:
		o.state = StateAuthenticated
		return o.state, nil
	default:
		return o.state, ErrFlowState
	}
}

// UsePrimaryCredentials is the explicit user choice to abandon the PIN
// challenge and sign in with primary credentials instead.
func (o *Orchestrator) UsePrimaryCredentials() (FlowState, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StatePinRequired && o.state != StatePinSetup {
		return o.state, ErrFlowState
	}
	o.state = StateFullAuthRequired
	return o.state, nil
}

// resolveLocked re-derives the auth state under the bounded timeout.
// Callers hold o.mu.
func (o *Orchestrator) resolveLocked(ctx context.Context) domain.AuthState {
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	state := o.trust.ResolveAuthState(callCtx, o.userID, o.deviceID)
	if err := callCtx.Err(); err != nil {
		o.logger.Warn("trust resolution timed out, failing closed", zap.Error(err))
		return domain.FailClosedAuthState()
	}
	return state
}

// applyResolution maps a resolved auth state onto the flow. Callers hold o.mu.
func (o *Orchestrator) applyResolution(state domain.AuthState) {
	o.authState = state

	switch state.RequiredAuthLevel {
	case domain.RequiredAuthFull:
		o.state = StateFullAuthRequired
	case domain.RequiredAuthPin:
		if state.HasPin {
			o.state = StatePinRequired
		} else {
			o.state = StatePinSetup
			o.setupOptional = false
		}
	default:
		o.state = StateAuthenticated
		if !state.Bypass && state.DaysSinceFullLogin == 0 && !state.HasPin && !o.offerDismissed {
			o.offerPinSetup = true
		}
	}
}
