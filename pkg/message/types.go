// Package message provides the ebMS3 envelope model and the bridge between
// wire bytes and the etree document the security layer mutates.
package message

import (
	"fmt"
	"time"
)

// Namespace constants for AS4/ebMS3 and WS-Security
const (
	NsSOAP11Env = "http://schemas.xmlsoap.org/soap/envelope/"
	NsSOAP12Env = "http://www.w3.org/2003/05/soap-envelope"
	NsEbMS      = "http://docs.oasis-open.org/ebxml-msg/ebms/v3.0/ns/core/200704/"
	NsWSSE      = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd"
	NsWSSE11    = "http://docs.oasis-open.org/wss/oasis-wss-wssecurity-secext-1.1.xsd"
	NsWSU       = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-utility-1.0.xsd"
	NsDS        = "http://www.w3.org/2000/09/xmldsig#"
	NsXENC      = "http://www.w3.org/2001/04/xmlenc#"
	NsXENC11    = "http://www.w3.org/2009/xmlenc11#"
)

// DefaultRole is the ebMS3 default party role.
const DefaultRole = "http://docs.oasis-open.org/ebxml-msg/ebms/v3.0/ns/core/200704/defaultRole"

// SOAPVersion identifies the SOAP envelope version of a message.
type SOAPVersion string

const (
	SOAP11 SOAPVersion = "1.1"
	SOAP12 SOAPVersion = "1.2"
)

// Namespace returns the envelope namespace URI for the version.
// Anything other than SOAP 1.1 is treated as SOAP 1.2, the AS4 default.
func (v SOAPVersion) Namespace() string {
	if v == SOAP11 {
		return NsSOAP11Env
	}
	return NsSOAP12Env
}

// ParseSOAPVersion maps a configuration string to a SOAPVersion.
// The empty string selects SOAP 1.2.
func ParseSOAPVersion(s string) (SOAPVersion, error) {
	switch s {
	case "", "1.2", "soap12":
		return SOAP12, nil
	case "1.1", "soap11":
		return SOAP11, nil
	default:
		return "", fmt.Errorf("unsupported SOAP version %q", s)
	}
}

// Attachment is a MIME part carried alongside the envelope (SOAP with
// Attachments). ContentID is stored without angle brackets or cid: prefix.
type Attachment struct {
	ContentID   string
	ContentType string
	Data        []byte
}

// UserMessage represents an ebMS3 UserMessage
type UserMessage struct {
	MessageID         string
	RefToMessageID    string
	Timestamp         time.Time
	From              Party
	To                Party
	AgreementRef      string
	Service           string
	ServiceType       string
	Action            string
	ConversationID    string
	MessageProperties []Property
	Parts             []PartInfo
}

// Party identifies one side of the exchange.
type Party struct {
	ID     string
	IDType string
	Role   string
}

// Property is a name/value pair used for message and part properties.
type Property struct {
	Name  string
	Value string
}

// PartInfo references a payload carried as an attachment.
type PartInfo struct {
	Href       string
	Properties []Property
}
