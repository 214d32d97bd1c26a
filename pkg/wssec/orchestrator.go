package wssec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sirosfoundation/go-as4-wssec/pkg/pmode"
)

// FailurePolicy decides what a failed header means for the message.
type FailurePolicy int

const (
	// FailClosed reports any failed target as an error so the message is
	// not sent without its protection.
	FailClosed FailurePolicy = iota
	// FailOpen logs failed targets and lets the message continue.
	FailOpen
)

func (p FailurePolicy) String() string {
	if p == FailOpen {
		return "open"
	}
	return "closed"
}

// ParseFailurePolicy maps "open" or "closed" to a policy. The empty string
// selects FailClosed.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "", "closed":
		return FailClosed, nil
	case "open":
		return FailOpen, nil
	default:
		return FailClosed, fmt.Errorf("unknown failure policy %q", s)
	}
}

// State is a step of the header creation state machine.
type State int

const (
	Idle State = iota
	RoleHeaderPending
	RoleHeaderDone
	DefaultHeaderPending
	DefaultHeaderDone
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case RoleHeaderPending:
		return "RoleHeaderPending"
	case RoleHeaderDone:
		return "RoleHeaderDone"
	case DefaultHeaderPending:
		return "DefaultHeaderPending"
	case DefaultHeaderDone:
		return "DefaultHeaderDone"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Request holds the optional security configurations of one message. A
// nil configuration means the action is not performed.
type Request struct {
	EbmsUsernameToken    *pmode.UsernameTokenConfig
	DefaultUsernameToken *pmode.UsernameTokenConfig
	Signing              *pmode.SigningConfig
	Encryption           *pmode.EncryptionConfig
}

// RequestFromSecurity builds a Request from P-Mode security settings.
func RequestFromSecurity(sec *pmode.Security) *Request {
	if sec == nil {
		return &Request{}
	}
	return &Request{
		EbmsUsernameToken:    sec.EbmsUsernameToken,
		DefaultUsernameToken: sec.DefaultUsernameToken,
		Signing:              sec.Signing,
		Encryption:           sec.Encryption,
	}
}

// TargetStatus is the outcome for one header target.
type TargetStatus struct {
	Target  Target
	Actions ActionList
	// Attempted is true when the engine was invoked.
	Attempted bool
	Err       error
}

// OK reports whether the header was created.
func (s *TargetStatus) OK() bool {
	return s.Err == nil
}

// Result describes one CreateHeaders call. Targets only contains headers
// that had at least one action configured.
type Result struct {
	Targets map[Target]*TargetStatus
	States  []State
}

// Failed returns the failed targets, role header first.
func (r *Result) Failed() []*TargetStatus {
	var out []*TargetStatus
	for _, t := range []Target{TargetEbms, TargetDefault} {
		if s, ok := r.Targets[t]; ok && !s.OK() {
			out = append(out, s)
		}
	}
	return out
}

// Orchestrator creates the role and default security headers of outbound
// messages. It holds no per-message state and may be shared between
// goroutines.
type Orchestrator struct {
	engine Engine
	logger *slog.Logger
	policy FailurePolicy
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithFailurePolicy sets the failure policy
func WithFailurePolicy(p FailurePolicy) Option {
	return func(o *Orchestrator) {
		o.policy = p
	}
}

// NewOrchestrator creates an orchestrator that delegates header
// construction to engine.
func NewOrchestrator(engine Engine, opts ...Option) *Orchestrator {
	o := &Orchestrator{engine: engine}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// Policy returns the configured failure policy.
func (o *Orchestrator) Policy() FailurePolicy {
	return o.policy
}

// CreateHeaders builds the role header and then the default header into
// msg. Both targets are attempted once, whatever the outcome of the
// other. With FailClosed any failure is returned as a *HeaderError; with
// FailOpen failures are only logged and recorded in the Result.
func (o *Orchestrator) CreateHeaders(ctx context.Context, msg *Message, req *Request) (*Result, error) {
	if msg == nil || msg.Envelope == nil {
		return nil, ErrNoDocument
	}
	if req == nil {
		req = &Request{}
	}

	run := newHeaderRun(o, msg, req)
	if err := run.buildRoleHeader(ctx); err != nil {
		return nil, err
	}
	if err := run.buildDefaultHeader(ctx); err != nil {
		return nil, err
	}

	failed := run.result.Failed()
	if len(failed) > 0 && o.policy == FailClosed {
		return run.result, &HeaderError{Failures: failed}
	}
	return run.result, nil
}

// headerRun is the state of one CreateHeaders call. The credential store
// lives exactly as long as the run.
type headerRun struct {
	o      *Orchestrator
	msg    *Message
	req    *Request
	store  *CredentialStore
	state  State
	result *Result
}

func newHeaderRun(o *Orchestrator, msg *Message, req *Request) *headerRun {
	return &headerRun{
		o:     o,
		msg:   msg,
		req:   req,
		store: NewCredentialStore(),
		state: Idle,
		result: &Result{
			Targets: make(map[Target]*TargetStatus),
			States:  []State{Idle},
		},
	}
}

func (r *headerRun) advance(s State) {
	r.state = s
	r.result.States = append(r.result.States, s)
}

func (r *headerRun) buildRoleHeader(ctx context.Context) error {
	if r.state != Idle {
		return fmt.Errorf("%w: role header", ErrAlreadyBuilt)
	}
	r.advance(RoleHeaderPending)
	defer r.advance(RoleHeaderDone)

	cfg := r.req.EbmsUsernameToken
	if cfg == nil {
		return nil
	}

	status := &TargetStatus{Target: TargetEbms, Actions: ActionList{ActionUsernameToken}}
	r.result.Targets[TargetEbms] = status

	ut, err := ResolveUsernameToken(cfg, r.store)
	if err != nil {
		r.fail(status, err)
		return nil
	}
	r.invoke(ctx, status, &HeaderRequest{
		Target:        TargetEbms,
		Actions:       status.Actions,
		Username:      ut.Username,
		UsernameToken: ut,
		Credentials:   r.store,
	})
	return nil
}

func (r *headerRun) buildDefaultHeader(ctx context.Context) error {
	if r.state != RoleHeaderDone {
		return fmt.Errorf("%w: default header", ErrAlreadyBuilt)
	}
	r.advance(DefaultHeaderPending)
	defer r.advance(DefaultHeaderDone)

	actions := Sequence(r.req.DefaultUsernameToken != nil, r.req.Signing != nil, r.req.Encryption != nil)
	if len(actions) == 0 {
		return nil
	}

	status := &TargetStatus{Target: TargetDefault, Actions: actions}
	r.result.Targets[TargetDefault] = status

	hr := &HeaderRequest{
		Target:      TargetDefault,
		Actions:     actions,
		Credentials: r.store,
	}
	var errs []error
	var err error
	if r.req.DefaultUsernameToken != nil {
		if hr.UsernameToken, err = ResolveUsernameToken(r.req.DefaultUsernameToken, r.store); err != nil {
			errs = append(errs, err)
		}
	}
	if r.req.Signing != nil {
		if hr.Signature, err = ResolveSigning(r.req.Signing, r.store, r.msg.SOAPVersion); err != nil {
			errs = append(errs, err)
		}
	}
	if r.req.Encryption != nil {
		if hr.Encryption, err = ResolveEncryption(r.req.Encryption, r.store, r.msg.SOAPVersion); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		r.fail(status, errors.Join(errs...))
		return nil
	}

	hr.Username = selectUsername(hr.UsernameToken, hr.Signature)
	if actions.RequiresUsername() && hr.Username == "" {
		r.fail(status, &ConfigError{
			Action: actions[0],
			Field:  "username",
			Reason: "neither a username token nor a signing alias is configured",
			Err:    ErrMissingUsername,
		})
		return nil
	}

	r.invoke(ctx, status, hr)
	return nil
}

// selectUsername prefers the username token's user over the signing alias.
func selectUsername(ut *UsernameTokenProperties, sig *SignatureProperties) string {
	if ut != nil && ut.Username != "" {
		return ut.Username
	}
	if sig != nil {
		return sig.User
	}
	return ""
}

func (r *headerRun) invoke(ctx context.Context, status *TargetStatus, hr *HeaderRequest) {
	logger := r.o.logger.With("target", status.Target.String(), "actions", status.Actions.String())
	logger.Debug("Creating security header")

	status.Attempted = true
	if err := r.o.engine.CreateHeader(ctx, r.msg, hr); err != nil {
		var engineErr *EngineError
		if !errors.As(err, &engineErr) {
			err = &EngineError{Message: "header creation failed", Cause: err}
		}
		r.fail(status, err)
		return
	}
	logger.Debug("Security header created")
}

func (r *headerRun) fail(status *TargetStatus, err error) {
	status.Err = err
	logger := r.o.logger.With("target", status.Target.String(), "actions", status.Actions.String(), "error", err)
	if r.o.policy == FailOpen {
		logger.Warn("Security header creation failed, continuing without it")
		return
	}
	logger.Error("Security header creation failed")
}
