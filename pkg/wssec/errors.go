package wssec

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingUsername is returned when an action list needs a username
	// and neither a username token nor a signing alias provides one.
	ErrMissingUsername = errors.New("no username available")

	// ErrAlreadyBuilt is returned when a header target is built twice in
	// one run.
	ErrAlreadyBuilt = errors.New("security header already built")

	// ErrNoDocument is returned when there is no envelope to secure.
	ErrNoDocument = errors.New("no envelope document")
)

// ConfigError reports a missing required field or a violated invariant in
// an action configuration. It is detected before the engine is invoked.
type ConfigError struct {
	Action Action
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s configuration: %s: %s", e.Action, e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// EngineError is a failure reported by the crypto engine for one action.
type EngineError struct {
	Action  Action
	Message string
	Cause   error
}

func (e *EngineError) Error() string {
	var b strings.Builder
	if e.Action != "" {
		b.WriteString(string(e.Action))
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *EngineError) Unwrap() error {
	return e.Cause
}

// HeaderError aggregates the failed targets of one CreateHeaders call.
type HeaderError struct {
	Failures []*TargetStatus
}

func (e *HeaderError) Error() string {
	msgs := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		msgs[i] = fmt.Sprintf("%s header: %v", f.Target, f.Err)
	}
	return "security header creation failed: " + strings.Join(msgs, "; ")
}

func (e *HeaderError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}
