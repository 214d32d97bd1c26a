package security

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sirosfoundation/go-as4-wssec/pkg/message"
	"github.com/sirosfoundation/go-as4-wssec/pkg/wssec"
)

// Engine builds WS-Security headers into etree documents. It holds no
// per-message state and is safe for concurrent use when its KeyProvider is.
type Engine struct {
	keys   KeyProvider
	logger *slog.Logger
	now    func() time.Time
}

var _ wssec.Engine = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock overrides the clock used for wsu:Created values.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an engine resolving key material through keys.
func NewEngine(keys KeyProvider, opts ...Option) *Engine {
	e := &Engine{
		keys:   keys,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateHeader applies req.Actions in order to the security header of
// req.Target. Each action prepends its elements, so the resulting header
// lists them in reverse order of application.
func (e *Engine) CreateHeader(ctx context.Context, msg *wssec.Message, req *wssec.HeaderRequest) error {
	if msg == nil || msg.Envelope == nil || msg.Envelope.Root() == nil {
		return &wssec.EngineError{Message: "cannot build header", Cause: wssec.ErrNoDocument}
	}
	if msg.SOAPVersion == "" {
		version, err := message.DetectSOAPVersion(msg.Envelope)
		if err != nil {
			return &wssec.EngineError{Message: "cannot build header", Cause: err}
		}
		msg.SOAPVersion = version
	}

	// the action string is decoded up front so a bad list leaves the
	// document untouched
	actions, err := wssec.ParseActions(req.Actions.String())
	if err != nil {
		return &wssec.EngineError{Message: "invalid action list for " + req.Target.String() + " header", Cause: err}
	}

	for _, action := range actions {
		if err := ctx.Err(); err != nil {
			return &wssec.EngineError{Action: action, Message: "cancelled", Cause: err}
		}
		var err error
		switch action {
		case wssec.ActionUsernameToken:
			err = e.addUsernameToken(msg, req)
		case wssec.ActionSignature:
			err = e.sign(ctx, msg, req)
		case wssec.ActionEncrypt:
			err = e.encrypt(ctx, msg, req)
		}
		if err != nil {
			return &wssec.EngineError{Action: action, Message: "failed on " + req.Target.String() + " header", Cause: err}
		}
		e.logger.Debug("Security action applied", "target", req.Target.String(), "action", string(action))
	}
	return nil
}

func (e *Engine) addUsernameToken(msg *wssec.Message, req *wssec.HeaderRequest) error {
	props := req.UsernameToken
	if props == nil {
		return fmt.Errorf("no %s properties", wssec.ActionUsernameToken)
	}
	if req.Credentials == nil {
		return fmt.Errorf("no credential source")
	}
	password, ok := req.Credentials.Password(props.Username)
	if !ok {
		return fmt.Errorf("no credentials registered for %q", props.Username)
	}

	sec, err := securityHeader(msg.Envelope, msg.SOAPVersion, req.Target)
	if err != nil {
		return err
	}
	ut, err := usernameToken(props, password, e.now())
	if err != nil {
		return err
	}
	prepend(sec, ut)
	return nil
}
