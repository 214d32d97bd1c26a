package security

import (
	"fmt"

	"github.com/beevik/etree"

	"github.com/sirosfoundation/go-as4-wssec/pkg/message"
	"github.com/sirosfoundation/go-as4-wssec/pkg/wssec"
)

// soapPrefix returns the prefix bound to the envelope namespace, declaring
// "env" on the root when the envelope uses a default namespace.
func soapPrefix(root *etree.Element) string {
	if root.Space != "" {
		return root.Space
	}
	if root.SelectAttr("xmlns:env") == nil {
		root.CreateAttr("xmlns:env", root.NamespaceURI())
	}
	return "env"
}

func ensureNamespaces(root *etree.Element) {
	if root.SelectAttr("xmlns:wsu") == nil {
		root.CreateAttr("xmlns:wsu", NSSecurityUtil)
	}
	if root.SelectAttr("xmlns:wsse") == nil {
		root.CreateAttr("xmlns:wsse", NSSecurityExt)
	}
}

// roleAttr is the header attribute naming the target role: "role" in
// SOAP 1.2, "actor" in SOAP 1.1.
func roleAttr(version message.SOAPVersion) string {
	if version == message.SOAP11 {
		return "actor"
	}
	return "role"
}

func mustUnderstandValue(version message.SOAPVersion) string {
	if version == message.SOAP11 {
		return "1"
	}
	return "true"
}

// findSecurity returns the wsse:Security header for target, or nil.
func findSecurity(doc *etree.Document, version message.SOAPVersion, target wssec.Target) *etree.Element {
	header := message.FindHeader(doc)
	if header == nil {
		return nil
	}
	attr := roleAttr(version)
	for _, child := range header.ChildElements() {
		if child.Tag != "Security" || child.NamespaceURI() != NSSecurityExt {
			continue
		}
		role := ""
		for _, a := range child.Attr {
			if a.Key == attr && a.Space != "xmlns" {
				role = a.Value
				break
			}
		}
		if role == string(target) {
			return child
		}
	}
	return nil
}

// securityHeader returns the wsse:Security header for target, creating
// the SOAP Header and the Security element as needed.
func securityHeader(doc *etree.Document, version message.SOAPVersion, target wssec.Target) (*etree.Element, error) {
	root := doc.Root()
	if root == nil {
		return nil, message.ErrNotEnvelope
	}
	prefix := soapPrefix(root)
	ensureNamespaces(root)

	if sec := findSecurity(doc, version, target); sec != nil {
		return sec, nil
	}
	header, err := message.EnsureHeader(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOAP header: %w", err)
	}

	sec := header.CreateElement("wsse:Security")
	sec.CreateAttr(prefix+":mustUnderstand", mustUnderstandValue(version))
	if target != wssec.TargetDefault {
		sec.CreateAttr(prefix+":"+roleAttr(version), string(target))
	}
	return sec, nil
}

// prepend inserts child as the first element of parent. Security header
// children are prepended so the last applied action is processed first.
func prepend(parent, child *etree.Element) {
	parent.InsertChildAt(0, child)
}

// getOrCreateID returns the wsu:Id of elem, adding one when missing.
func getOrCreateID(elem *etree.Element, prefix string) string {
	for _, attr := range elem.Attr {
		if attr.Key == "Id" && (attr.Space == "wsu" || attr.NamespaceURI() == NSSecurityUtil) {
			return attr.Value
		}
	}
	id := prefix + generateID()
	elem.CreateAttr("wsu:Id", id)
	return id
}

// findElements returns every element under root with the given namespace
// and local name, in document order.
func findElements(root *etree.Element, namespace, local string) []*etree.Element {
	var out []*etree.Element
	var walk func(e *etree.Element)
	walk = func(e *etree.Element) {
		if e.Tag == local && e.NamespaceURI() == namespace {
			out = append(out, e)
		}
		for _, c := range e.ChildElements() {
			walk(c)
		}
	}
	walk(root)
	return out
}

// declareInScopeNamespaces copies namespace declarations of the ancestors
// of elem onto elem, so it can be serialized on its own.
func declareInScopeNamespaces(elem *etree.Element) {
	declared := make(map[string]bool)
	for _, a := range elem.Attr {
		if a.Space == "xmlns" {
			declared[a.Key] = true
		} else if a.Space == "" && a.Key == "xmlns" {
			declared[""] = true
		}
	}
	for p := elem.Parent(); p != nil; p = p.Parent() {
		for _, a := range p.Attr {
			switch {
			case a.Space == "xmlns" && !declared[a.Key]:
				declared[a.Key] = true
				elem.CreateAttr("xmlns:"+a.Key, a.Value)
			case a.Space == "" && a.Key == "xmlns" && !declared[""]:
				declared[""] = true
				elem.CreateAttr("xmlns", a.Value)
			}
		}
	}
}
