package wssec

import (
	"context"

	"github.com/beevik/etree"

	"github.com/sirosfoundation/go-as4-wssec/pkg/message"
)

// Target identifies the security header an engine call builds.
type Target string

const (
	// TargetEbms is the header addressed to the "ebms" role. It only ever
	// carries a username token.
	TargetEbms Target = "ebms"
	// TargetDefault is the unscoped header.
	TargetDefault Target = ""
)

func (t Target) String() string {
	if t == TargetDefault {
		return "default"
	}
	return string(t)
}

// Message is the document the engine mutates in place, together with the
// attachments that signatures and encryption may cover.
type Message struct {
	Envelope    *etree.Document
	SOAPVersion message.SOAPVersion
	Attachments []*message.Attachment
}

// HeaderRequest carries everything the engine needs for one target.
// Property pointers are nil for actions not in Actions.
type HeaderRequest struct {
	Target        Target
	Actions       ActionList
	Username      string
	UsernameToken *UsernameTokenProperties
	Signature     *SignatureProperties
	Encryption    *EncryptionProperties
	Credentials   PasswordSource
}

// Engine builds one WS-Security header into msg. Failures should be
// reported as *EngineError.
type Engine interface {
	CreateHeader(ctx context.Context, msg *Message, req *HeaderRequest) error
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(ctx context.Context, msg *Message, req *HeaderRequest) error

// CreateHeader calls f.
func (f EngineFunc) CreateHeader(ctx context.Context, msg *Message, req *HeaderRequest) error {
	return f(ctx, msg, req)
}
