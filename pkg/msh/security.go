package msh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sirosfoundation/go-as4-wssec/pkg/message"
	"github.com/sirosfoundation/go-as4-wssec/pkg/pmode"
	"github.com/sirosfoundation/go-as4-wssec/pkg/wssec"
)

// ErrDocumentConversion is returned when the envelope cannot be converted
// to or from the document tree. The message is left unchanged.
var ErrDocumentConversion = errors.New("envelope document conversion failed")

// SecurityHandler adds WS-Security headers to outbound messages. It is an
// adapter between the message pipeline and the wssec orchestrator.
type SecurityHandler struct {
	orchestrator *wssec.Orchestrator
	resolver     SecurityResolver
	logger       *slog.Logger
}

// HandlerOption configures a SecurityHandler
type HandlerOption func(*SecurityHandler)

// WithResolver sets the resolver used for messages without an explicit
// security configuration
func WithResolver(r SecurityResolver) HandlerOption {
	return func(h *SecurityHandler) {
		h.resolver = r
	}
}

// WithHandlerLogger sets the logger
func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h *SecurityHandler) {
		h.logger = logger
	}
}

// NewSecurityHandler creates a handler building headers with orchestrator
func NewSecurityHandler(orchestrator *wssec.Orchestrator, opts ...HandlerOption) *SecurityHandler {
	h := &SecurityHandler{orchestrator: orchestrator}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// Process creates the security headers of msg. A nil Result with a nil
// error means the message did not ask for security processing.
//
// On success msg.Envelope holds the secured envelope and encrypted
// attachments replace the originals. On error msg is not modified; the
// Result, when present, tells which headers failed.
func (h *SecurityHandler) Process(ctx context.Context, msg *OutboundMessage) (*wssec.Result, error) {
	logger := h.logger.With("message_id", msg.MessageID)

	if !msg.AddSecurityHeaders {
		logger.Debug("security headers not requested")
		return nil, nil
	}
	sec, err := h.security(ctx, msg)
	if err != nil {
		return nil, err
	}
	if sec.IsEmpty() {
		logger.Debug("no security configuration")
		return nil, nil
	}

	doc, version, err := message.ParseEnvelope(msg.Envelope)
	if err != nil {
		logger.Error("failed to convert envelope", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDocumentConversion, err)
	}

	// Encryption rewrites attachments; work on copies until the headers
	// are in place.
	attachments := make([]*message.Attachment, len(msg.Attachments))
	for i, att := range msg.Attachments {
		c := *att
		attachments[i] = &c
	}

	wmsg := &wssec.Message{Envelope: doc, SOAPVersion: version, Attachments: attachments}
	result, err := h.orchestrator.CreateHeaders(ctx, wmsg, wssec.RequestFromSecurity(sec))
	if err != nil {
		return result, err
	}

	out, err := message.SerializeEnvelope(doc)
	if err != nil {
		logger.Error("failed to serialize secured envelope", "error", err)
		return result, fmt.Errorf("%w: %v", ErrDocumentConversion, err)
	}

	msg.Envelope = out
	msg.SOAPVersion = version
	msg.Attachments = attachments
	logger.Info("security headers created", "targets", len(result.Targets), "failed", len(result.Failed()))
	return result, nil
}

func (h *SecurityHandler) security(ctx context.Context, msg *OutboundMessage) (*pmode.Security, error) {
	if msg.Security != nil || h.resolver == nil {
		return msg.Security, nil
	}
	sec, err := h.resolver.ResolveSecurity(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("resolving security configuration: %w", err)
	}
	return sec, nil
}
