package msh

import (
	"time"

	"github.com/sirosfoundation/go-as4-wssec/pkg/message"
	"github.com/sirosfoundation/go-as4-wssec/pkg/pmode"
	"github.com/sirosfoundation/go-as4-wssec/pkg/wssec"
)

// MessageStatus represents the current state of a message
type MessageStatus string

const (
	// MessageStatusPending indicates the message is queued
	MessageStatusPending MessageStatus = "PENDING"
	// MessageStatusSecuring indicates headers are being created
	MessageStatusSecuring MessageStatus = "SECURING"
	// MessageStatusSecured indicates the envelope now carries its headers
	MessageStatusSecured MessageStatus = "SECURED"
	// MessageStatusSkipped indicates no security processing was requested
	MessageStatusSkipped MessageStatus = "SKIPPED"
	// MessageStatusFailed indicates header creation failed
	MessageStatusFailed MessageStatus = "FAILED"
)

// Finished reports whether the security step is done with the message.
func (s MessageStatus) Finished() bool {
	return s == MessageStatusSecured || s == MessageStatusSkipped || s == MessageStatusFailed
}

// OutboundMessage is a message on its way to the sending MSH
type OutboundMessage struct {
	MessageID string

	// PModeID and Leg select the P-Mode security when Security is nil.
	// Without a PModeID the P-Mode is looked up by Service and Action.
	PModeID string
	Leg     string
	Service string
	Action  string

	// Envelope is the serialized SOAP envelope
	Envelope    []byte
	SOAPVersion message.SOAPVersion
	Attachments []*message.Attachment

	// AddSecurityHeaders gates the security step
	AddSecurityHeaders bool
	Security           *pmode.Security
}

// MessageMetadata tracks a message through the pipeline
type MessageMetadata struct {
	MessageID string
	PModeID   string
	Status    MessageStatus
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Outcome is the pipeline result for one message
type Outcome struct {
	Message *OutboundMessage
	// Result is nil when the message was skipped
	Result *wssec.Result
	Err    error
}

// MessageEvent represents an event in the message lifecycle
type MessageEvent struct {
	Type      string
	MessageID string
	Timestamp time.Time
	Status    MessageStatus
	Error     error
}

// EventHandler is the callback function for message lifecycle events
type EventHandler func(MessageEvent)

// ErrorHandler is the callback function for handling errors
type ErrorHandler func(messageID string, err error)
