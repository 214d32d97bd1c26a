package security

import (
	"context"
	"crypto"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/leifj/signedxml"

	"github.com/sirosfoundation/go-as4-wssec/pkg/message"
	"github.com/sirosfoundation/go-as4-wssec/pkg/wssec"
)

// errMissingPart is returned when a mandatory signature or encryption part
// is absent from the envelope.
var errMissingPart = errors.New("mandatory part not found")

// sign adds a ds:Signature over the parts in props to the security header
// and replaces the envelope root with the signed tree.
func (e *Engine) sign(ctx context.Context, msg *wssec.Message, req *wssec.HeaderRequest) error {
	props := req.Signature
	if props == nil {
		return fmt.Errorf("no %s properties", wssec.ActionSignature)
	}
	if req.Credentials == nil {
		return fmt.Errorf("no credential source")
	}
	password, ok := req.Credentials.Password(props.User)
	if !ok {
		return fmt.Errorf("no credentials registered for %q", props.User)
	}
	key, chain, err := e.keys.SigningKey(ctx, props.User, password)
	if err != nil {
		return fmt.Errorf("failed to load signing key %q: %w", props.User, err)
	}
	if len(chain) == 0 {
		return fmt.Errorf("no certificate for signing key %q", props.User)
	}

	sigAlgo := props.SignatureAlgorithm
	if sigAlgo == "" {
		sigAlgo = AlgorithmRSASHA256
	}
	digestAlgo := props.DigestAlgorithm
	if digestAlgo == "" {
		digestAlgo = AlgorithmSHA256
	}
	hash, err := digestHash(digestAlgo)
	if err != nil {
		return err
	}

	doc := msg.Envelope
	sec, err := securityHeader(doc, msg.SOAPVersion, req.Target)
	if err != nil {
		return err
	}
	root := doc.Root()
	prefix := soapPrefix(root)

	sig := etree.NewElement("ds:Signature")
	sig.CreateAttr("xmlns:ds", NSXMLDSig)
	sig.CreateAttr("Id", "SIG-"+generateID())

	signedInfo := sig.CreateElement("ds:SignedInfo")
	c14n := signedInfo.CreateElement("ds:CanonicalizationMethod")
	c14n.CreateAttr("Algorithm", AlgorithmC14N)
	inclNS := c14n.CreateElement("ec:InclusiveNamespaces")
	inclNS.CreateAttr("xmlns:ec", AlgorithmC14N)
	inclNS.CreateAttr("PrefixList", prefix)
	signedInfo.CreateElement("ds:SignatureMethod").CreateAttr("Algorithm", sigAlgo)

	for _, part := range props.Parts {
		if part.Attachments {
			for _, att := range msg.Attachments {
				addAttachmentReference(signedInfo, att, digestAlgo, hash)
			}
			continue
		}
		scope := root
		if part.Namespace == NSSecurityExt {
			scope = sec
		}
		elems := findElements(scope, part.Namespace, part.LocalName)
		if len(elems) == 0 {
			if part.Optional {
				continue
			}
			return fmt.Errorf("%w: %s", errMissingPart, part)
		}
		prefixList := ""
		if part.Namespace != msg.SOAPVersion.Namespace() {
			prefixList = prefix
		}
		for _, el := range elems {
			addReference(signedInfo, getOrCreateID(el, "id-"), prefixList, digestAlgo)
		}
	}

	sig.CreateElement("ds:SignatureValue")
	keyInfo := sig.CreateElement("ds:KeyInfo")
	keyInfo.CreateAttr("Id", "KI-"+generateID())
	ref := tokenReference{keyID: props.KeyIdentifier, chain: chain, withPath: props.IncludeCertificatePath}
	bst, err := ref.build(keyInfo)
	if err != nil {
		return fmt.Errorf("failed to build security token reference: %w", err)
	}

	prepend(sec, sig)
	if bst != nil {
		prepend(sec, bst)
	}

	signed, err := signDocument(doc, key)
	if err != nil {
		return err
	}
	doc.SetRoot(signed.Root())
	return nil
}

func addReference(signedInfo *etree.Element, id, prefixList, digestAlgo string) {
	ref := signedInfo.CreateElement("ds:Reference")
	ref.CreateAttr("URI", "#"+id)

	transform := ref.CreateElement("ds:Transforms").CreateElement("ds:Transform")
	transform.CreateAttr("Algorithm", AlgorithmC14N)
	if prefixList != "" {
		inclNs := transform.CreateElement("ec:InclusiveNamespaces")
		inclNs.CreateAttr("xmlns:ec", AlgorithmC14N)
		inclNs.CreateAttr("PrefixList", prefixList)
	}

	ref.CreateElement("ds:DigestMethod").CreateAttr("Algorithm", digestAlgo)
	// filled in by signedxml
	ref.CreateElement("ds:DigestValue")
}

// addAttachmentReference references an attachment by Content-ID. The digest
// is computed here since signedxml cannot dereference cid: URIs.
func addAttachmentReference(signedInfo *etree.Element, att *message.Attachment, digestAlgo string, hash crypto.Hash) {
	h := hash.New()
	h.Write(att.Data)

	ref := signedInfo.CreateElement("ds:Reference")
	ref.CreateAttr("URI", "cid:"+contentID(att))
	transform := ref.CreateElement("ds:Transforms").CreateElement("ds:Transform")
	transform.CreateAttr("Algorithm", transformSwASig)
	ref.CreateElement("ds:DigestMethod").CreateAttr("Algorithm", digestAlgo)
	ref.CreateElement("ds:DigestValue").SetText(base64.StdEncoding.EncodeToString(h.Sum(nil)))
}

// contentID strips the angle brackets of a MIME Content-ID header value.
func contentID(att *message.Attachment) string {
	return strings.TrimSuffix(strings.TrimPrefix(att.ContentID, "<"), ">")
}

// signDocument runs signedxml over the serialized document and parses the
// result back into a tree.
func signDocument(doc *etree.Document, key crypto.Signer) (*etree.Document, error) {
	xmlStr, err := doc.WriteToString()
	if err != nil {
		return nil, fmt.Errorf("failed to write XML: %w", err)
	}

	signer, err := signedxml.NewSigner(xmlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create signer: %w", err)
	}
	signer.SetReferenceIDAttribute("wsu:Id")

	signedXML, err := signer.Sign(key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}

	signed := etree.NewDocument()
	if err := signed.ReadFromString(signedXML); err != nil {
		return nil, fmt.Errorf("failed to parse signed XML: %w", err)
	}
	if signed.Root() == nil {
		return nil, fmt.Errorf("signed XML has no root element")
	}
	return signed, nil
}
