package message

import (
	"errors"
	"fmt"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
)

// UserMessageBuilder helps construct AS4 UserMessages
type UserMessageBuilder struct {
	msg         *UserMessage
	attachments []*Attachment
	errors      []error
}

// Option represents a functional option for UserMessageBuilder
type Option func(*UserMessageBuilder)

// NewUserMessage creates a new UserMessage with the given options
func NewUserMessage(opts ...Option) *UserMessageBuilder {
	b := &UserMessageBuilder{
		msg: &UserMessage{
			MessageID:      generateMessageID(),
			Timestamp:      time.Now().UTC(),
			ConversationID: uuid.New().String(),
			From:           Party{Role: DefaultRole},
			To:             Party{Role: DefaultRole},
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// WithFrom sets the sender party
func WithFrom(partyID, partyType string) Option {
	return func(b *UserMessageBuilder) {
		b.msg.From.ID = partyID
		b.msg.From.IDType = partyType
	}
}

// WithTo sets the receiver party
func WithTo(partyID, partyType string) Option {
	return func(b *UserMessageBuilder) {
		b.msg.To.ID = partyID
		b.msg.To.IDType = partyType
	}
}

// WithService sets the service
func WithService(service string) Option {
	return func(b *UserMessageBuilder) {
		b.msg.Service = service
	}
}

// WithAction sets the action
func WithAction(action string) Option {
	return func(b *UserMessageBuilder) {
		b.msg.Action = action
	}
}

// WithConversationID overrides the generated conversation ID
func WithConversationID(id string) Option {
	return func(b *UserMessageBuilder) {
		b.msg.ConversationID = id
	}
}

// WithAgreementRef sets the agreement reference
func WithAgreementRef(ref string) Option {
	return func(b *UserMessageBuilder) {
		b.msg.AgreementRef = ref
	}
}

// WithMessageProperty adds a message property
func WithMessageProperty(name, value string) Option {
	return func(b *UserMessageBuilder) {
		b.msg.MessageProperties = append(b.msg.MessageProperties, Property{Name: name, Value: value})
	}
}

// AddPayload adds a payload carried as an attachment and returns its Content-ID.
func (b *UserMessageBuilder) AddPayload(data []byte, contentType string) string {
	contentID := generateMessageID()
	b.attachments = append(b.attachments, &Attachment{
		ContentID:   contentID,
		ContentType: contentType,
		Data:        data,
	})
	b.msg.Parts = append(b.msg.Parts, PartInfo{
		Href:       "cid:" + contentID,
		Properties: []Property{{Name: "MimeType", Value: contentType}},
	})
	return contentID
}

// Build returns the constructed UserMessage and its attachments
func (b *UserMessageBuilder) Build() (*UserMessage, []*Attachment, error) {
	if len(b.errors) > 0 {
		return nil, nil, errors.Join(b.errors...)
	}
	switch {
	case b.msg.From.ID == "":
		return nil, nil, fmt.Errorf("sender party ID is required")
	case b.msg.To.ID == "":
		return nil, nil, fmt.Errorf("receiver party ID is required")
	case b.msg.Service == "":
		return nil, nil, fmt.Errorf("service is required")
	case b.msg.Action == "":
		return nil, nil, fmt.Errorf("action is required")
	}
	return b.msg, b.attachments, nil
}

// BuildEnvelope builds a SOAP envelope of the given version carrying the
// UserMessage in an eb:Messaging header and an empty Body.
func (b *UserMessageBuilder) BuildEnvelope(version SOAPVersion) (*etree.Document, []*Attachment, error) {
	msg, attachments, err := b.Build()
	if err != nil {
		return nil, nil, err
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	env := doc.CreateElement("env:Envelope")
	env.CreateAttr("xmlns:env", version.Namespace())
	env.CreateAttr("xmlns:eb", NsEbMS)

	header := env.CreateElement("env:Header")
	messaging := header.CreateElement("eb:Messaging")
	if version == SOAP11 {
		messaging.CreateAttr("env:mustUnderstand", "1")
	} else {
		messaging.CreateAttr("env:mustUnderstand", "true")
	}
	writeUserMessage(messaging.CreateElement("eb:UserMessage"), msg)

	env.CreateElement("env:Body")
	return doc, attachments, nil
}

// MarshalEnvelope builds the envelope and serializes it.
func (b *UserMessageBuilder) MarshalEnvelope(version SOAPVersion) ([]byte, []*Attachment, error) {
	doc, attachments, err := b.BuildEnvelope(version)
	if err != nil {
		return nil, nil, err
	}
	data, err := SerializeEnvelope(doc)
	if err != nil {
		return nil, nil, err
	}
	return data, attachments, nil
}

func writeUserMessage(um *etree.Element, msg *UserMessage) {
	info := um.CreateElement("eb:MessageInfo")
	info.CreateElement("eb:Timestamp").SetText(msg.Timestamp.Format("2006-01-02T15:04:05.000Z"))
	info.CreateElement("eb:MessageId").SetText(msg.MessageID)
	if msg.RefToMessageID != "" {
		info.CreateElement("eb:RefToMessageId").SetText(msg.RefToMessageID)
	}

	parties := um.CreateElement("eb:PartyInfo")
	writeParty(parties.CreateElement("eb:From"), msg.From)
	writeParty(parties.CreateElement("eb:To"), msg.To)

	collab := um.CreateElement("eb:CollaborationInfo")
	if msg.AgreementRef != "" {
		collab.CreateElement("eb:AgreementRef").SetText(msg.AgreementRef)
	}
	svc := collab.CreateElement("eb:Service")
	if msg.ServiceType != "" {
		svc.CreateAttr("type", msg.ServiceType)
	}
	svc.SetText(msg.Service)
	collab.CreateElement("eb:Action").SetText(msg.Action)
	collab.CreateElement("eb:ConversationId").SetText(msg.ConversationID)

	if len(msg.MessageProperties) > 0 {
		writeProperties(um.CreateElement("eb:MessageProperties"), msg.MessageProperties)
	}

	if len(msg.Parts) > 0 {
		payloads := um.CreateElement("eb:PayloadInfo")
		for _, part := range msg.Parts {
			pi := payloads.CreateElement("eb:PartInfo")
			pi.CreateAttr("href", part.Href)
			if len(part.Properties) > 0 {
				writeProperties(pi.CreateElement("eb:PartProperties"), part.Properties)
			}
		}
	}
}

func writeParty(el *etree.Element, p Party) {
	id := el.CreateElement("eb:PartyId")
	if p.IDType != "" {
		id.CreateAttr("type", p.IDType)
	}
	id.SetText(p.ID)
	el.CreateElement("eb:Role").SetText(p.Role)
}

func writeProperties(el *etree.Element, props []Property) {
	for _, p := range props {
		prop := el.CreateElement("eb:Property")
		prop.CreateAttr("name", p.Name)
		prop.SetText(p.Value)
	}
}

// generateMessageID generates a unique message ID following RFC2822 format
func generateMessageID() string {
	return fmt.Sprintf("%s@as4.example.com", uuid.New().String())
}
