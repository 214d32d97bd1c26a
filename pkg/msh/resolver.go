package msh

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirosfoundation/go-as4-wssec/pkg/pmode"
)

// ErrPModeNotFound is returned when a message names an unknown P-Mode
var ErrPModeNotFound = errors.New("P-Mode not found")

// SecurityResolver finds the security configuration of an outbound message.
// A nil configuration means the message is sent without security headers.
type SecurityResolver interface {
	ResolveSecurity(ctx context.Context, msg *OutboundMessage) (*pmode.Security, error)
}

// ResolverFunc adapts a function to the SecurityResolver interface
type ResolverFunc func(ctx context.Context, msg *OutboundMessage) (*pmode.Security, error)

// ResolveSecurity calls f.
func (f ResolverFunc) ResolveSecurity(ctx context.Context, msg *OutboundMessage) (*pmode.Security, error) {
	return f(ctx, msg)
}

// PModeResolver resolves security from the P-Modes held by a manager
type PModeResolver struct {
	pmodes *pmode.Manager
}

var _ SecurityResolver = (*PModeResolver)(nil)

// NewPModeResolver creates a resolver over pmodes
func NewPModeResolver(pmodes *pmode.Manager) *PModeResolver {
	return &PModeResolver{pmodes: pmodes}
}

// ResolveSecurity implements SecurityResolver. The P-Mode named by
// msg.PModeID wins; otherwise the first P-Mode matching the message
// service and action is used.
func (r *PModeResolver) ResolveSecurity(_ context.Context, msg *OutboundMessage) (*pmode.Security, error) {
	var pm *pmode.ProcessingMode
	if msg.PModeID != "" {
		pm = r.pmodes.Get(msg.PModeID)
		if pm == nil {
			return nil, fmt.Errorf("%w: %s", ErrPModeNotFound, msg.PModeID)
		}
	} else {
		pm = r.pmodes.Find(msg.Service, msg.Action)
		if pm == nil {
			return nil, nil
		}
	}
	return pm.LegSecurity(msg.Leg), nil
}
