package message

import (
	"errors"
	"fmt"

	"github.com/beevik/etree"
)

// ErrNotEnvelope is returned when a document is not a SOAP envelope.
var ErrNotEnvelope = errors.New("document is not a SOAP envelope")

// ParseEnvelope converts wire bytes into the document tree used by the
// security layer and detects the SOAP version from the root namespace.
func ParseEnvelope(data []byte) (*etree.Document, SOAPVersion, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, "", fmt.Errorf("failed to parse envelope: %w", err)
	}
	version, err := DetectSOAPVersion(doc)
	if err != nil {
		return nil, "", err
	}
	return doc, version, nil
}

// DetectSOAPVersion inspects the root element of doc.
func DetectSOAPVersion(doc *etree.Document) (SOAPVersion, error) {
	if doc == nil {
		return "", ErrNotEnvelope
	}
	root := doc.Root()
	if root == nil || root.Tag != "Envelope" {
		return "", ErrNotEnvelope
	}
	switch root.NamespaceURI() {
	case NsSOAP12Env:
		return SOAP12, nil
	case NsSOAP11Env:
		return SOAP11, nil
	default:
		return "", fmt.Errorf("%w: unknown namespace %q", ErrNotEnvelope, root.NamespaceURI())
	}
}

// SerializeEnvelope converts the document tree back into wire bytes.
func SerializeEnvelope(doc *etree.Document) ([]byte, error) {
	if doc == nil || doc.Root() == nil {
		return nil, ErrNotEnvelope
	}
	data, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize envelope: %w", err)
	}
	return data, nil
}

// FindChild returns the first direct child of parent with the given
// namespace URI and local name.
func FindChild(parent *etree.Element, namespace, local string) *etree.Element {
	if parent == nil {
		return nil
	}
	for _, child := range parent.ChildElements() {
		if child.Tag == local && child.NamespaceURI() == namespace {
			return child
		}
	}
	return nil
}

// FindHeader returns the SOAP Header element, or nil.
func FindHeader(doc *etree.Document) *etree.Element {
	root := doc.Root()
	if root == nil {
		return nil
	}
	return FindChild(root, root.NamespaceURI(), "Header")
}

// FindBody returns the SOAP Body element, or nil.
func FindBody(doc *etree.Document) *etree.Element {
	root := doc.Root()
	if root == nil {
		return nil
	}
	return FindChild(root, root.NamespaceURI(), "Body")
}

// FindMessaging returns the eb:Messaging header element, or nil.
func FindMessaging(doc *etree.Document) *etree.Element {
	return FindChild(FindHeader(doc), NsEbMS, "Messaging")
}

// EnsureHeader returns the SOAP Header, creating it before the Body when
// the envelope has none. The new element reuses the envelope's prefix.
func EnsureHeader(doc *etree.Document) (*etree.Element, error) {
	root := doc.Root()
	if root == nil {
		return nil, ErrNotEnvelope
	}
	if header := FindHeader(doc); header != nil {
		return header, nil
	}

	tag := "Header"
	if root.Space != "" {
		tag = root.Space + ":Header"
	}
	header := etree.NewElement(tag)
	if body := FindBody(doc); body != nil {
		root.InsertChildAt(body.Index(), header)
	} else {
		root.AddChild(header)
	}
	return header, nil
}
