package security

import (
	"bytes"
	"context"
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/sirosfoundation/go-as4-wssec/pkg/message"
	"github.com/sirosfoundation/go-as4-wssec/pkg/wssec"
)

// keyTransport holds the resolved RSA-OAEP parameters.
type keyTransport struct {
	algorithm string
	digest    string
	mgf       string
	hash      crypto.Hash
}

func resolveKeyTransport(props *wssec.EncryptionProperties) (*keyTransport, error) {
	kt := &keyTransport{algorithm: props.KeyTransportAlgorithm, hash: crypto.SHA1}
	// algorithm URIs are matched case-insensitively and written in canonical form
	for _, known := range []string{AlgorithmRSAOAEPMGF1P, AlgorithmRSAOAEP} {
		if strings.EqualFold(kt.algorithm, known) {
			kt.algorithm = known
		}
	}
	switch kt.algorithm {
	case "":
		kt.algorithm = AlgorithmRSAOAEPMGF1P
	case AlgorithmRSAOAEPMGF1P:
	case AlgorithmRSAOAEP:
		if props.KeyTransportDigest == "" || props.KeyTransportMGF == "" {
			break
		}
		digest, err := digestHash(props.KeyTransportDigest)
		if err != nil {
			return nil, err
		}
		mgf, err := mgfHash(props.KeyTransportMGF)
		if err != nil {
			return nil, err
		}
		if digest != mgf {
			return nil, fmt.Errorf("OAEP digest %s and MGF %s must use the same hash", props.KeyTransportDigest, props.KeyTransportMGF)
		}
		kt.digest = props.KeyTransportDigest
		kt.mgf = props.KeyTransportMGF
		kt.hash = digest
	default:
		return nil, fmt.Errorf("unsupported key transport algorithm %q", kt.algorithm)
	}
	return kt, nil
}

// symmetricKeySize returns the key length in bytes for a data encryption
// algorithm.
func symmetricKeySize(algorithm string) (int, error) {
	switch algorithm {
	case AlgorithmAES128GCM, AlgorithmAES128CBC:
		return 16, nil
	case AlgorithmAES256GCM, AlgorithmAES256CBC:
		return 32, nil
	default:
		return 0, fmt.Errorf("unsupported data encryption algorithm %q", algorithm)
	}
}

// encryptData encrypts plaintext in the xmlenc layout: IV followed by the
// ciphertext, with the tag appended for GCM.
func encryptData(algorithm string, key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	switch algorithm {
	case AlgorithmAES128GCM, AlgorithmAES256GCM:
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, err
		}
		iv := make([]byte, gcm.NonceSize())
		if _, err := rand.Read(iv); err != nil {
			return nil, err
		}
		return gcm.Seal(iv, iv, plaintext, nil), nil

	case AlgorithmAES128CBC, AlgorithmAES256CBC:
		padLen := aes.BlockSize - len(plaintext)%aes.BlockSize
		padded := append(bytes.Clone(plaintext), bytes.Repeat([]byte{byte(padLen)}, padLen)...)
		out := make([]byte, aes.BlockSize+len(padded))
		iv := out[:aes.BlockSize]
		if _, err := rand.Read(iv); err != nil {
			return nil, err
		}
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], padded)
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported data encryption algorithm %q", algorithm)
	}
}

// encrypt encrypts the Body content and, when covered, every attachment
// for the recipient certificate. An xenc:EncryptedKey with a ReferenceList
// is prepended to the security header.
func (e *Engine) encrypt(ctx context.Context, msg *wssec.Message, req *wssec.HeaderRequest) error {
	props := req.Encryption
	if props == nil {
		return fmt.Errorf("no %s properties", wssec.ActionEncrypt)
	}
	cert, err := e.keys.Certificate(ctx, props.User)
	if err != nil {
		return fmt.Errorf("failed to load recipient certificate %q: %w", props.User, err)
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("recipient certificate %q does not carry an RSA key", props.User)
	}

	kt, err := resolveKeyTransport(props)
	if err != nil {
		return err
	}
	dataAlgo := props.SymmetricAlgorithm
	if dataAlgo == "" {
		dataAlgo = AlgorithmAES128GCM
	}
	keySize, err := symmetricKeySize(dataAlgo)
	if err != nil {
		return err
	}
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return fmt.Errorf("failed to generate content key: %w", err)
	}

	doc := msg.Envelope
	sec, err := securityHeader(doc, msg.SOAPVersion, req.Target)
	if err != nil {
		return err
	}
	ekID := "EK-" + generateID()

	var dataRefs []string
	for _, part := range props.Parts {
		if part.Attachments {
			for _, att := range msg.Attachments {
				id, err := encryptAttachment(sec, att, dataAlgo, key, ekID)
				if err != nil {
					return err
				}
				dataRefs = append(dataRefs, id)
			}
			continue
		}
		elems := findElements(doc.Root(), part.Namespace, part.LocalName)
		if len(elems) == 0 {
			if part.Optional {
				continue
			}
			return fmt.Errorf("%w: %s", errMissingPart, part)
		}
		for _, el := range elems {
			id, err := encryptContent(el, dataAlgo, key, ekID)
			if err != nil {
				return err
			}
			dataRefs = append(dataRefs, id)
		}
	}

	wrapped, err := rsa.EncryptOAEP(kt.hash.New(), rand.Reader, pub, key, nil)
	if err != nil {
		return fmt.Errorf("failed to encrypt content key: %w", err)
	}

	ek := etree.NewElement("xenc:EncryptedKey")
	ek.CreateAttr("xmlns:xenc", NSXMLEnc)
	ek.CreateAttr("Id", ekID)
	method := ek.CreateElement("xenc:EncryptionMethod")
	method.CreateAttr("Algorithm", kt.algorithm)
	if kt.digest != "" && kt.mgf != "" {
		dm := method.CreateElement("ds:DigestMethod")
		dm.CreateAttr("xmlns:ds", NSXMLDSig)
		dm.CreateAttr("Algorithm", kt.digest)
		mgf := method.CreateElement("xenc11:MGF")
		mgf.CreateAttr("xmlns:xenc11", NSXMLEnc11)
		mgf.CreateAttr("Algorithm", kt.mgf)
	}

	keyInfo := ek.CreateElement("ds:KeyInfo")
	keyInfo.CreateAttr("xmlns:ds", NSXMLDSig)
	ref := tokenReference{keyID: props.KeyIdentifier, chain: []*x509.Certificate{cert}}
	bst, err := ref.build(keyInfo)
	if err != nil {
		return fmt.Errorf("failed to build security token reference: %w", err)
	}

	ek.CreateElement("xenc:CipherData").CreateElement("xenc:CipherValue").
		SetText(base64.StdEncoding.EncodeToString(wrapped))
	refList := ek.CreateElement("xenc:ReferenceList")
	for _, id := range dataRefs {
		refList.CreateElement("xenc:DataReference").CreateAttr("URI", "#"+id)
	}

	prepend(sec, ek)
	if bst != nil {
		prepend(sec, bst)
	}
	return nil
}

// encryptContent replaces the children of el with an xenc:EncryptedData
// of type Content.
func encryptContent(el *etree.Element, algorithm string, key []byte, ekID string) (string, error) {
	for _, child := range el.ChildElements() {
		declareInScopeNamespaces(child)
	}
	content := etree.NewDocument()
	for _, tok := range append([]etree.Token(nil), el.Child...) {
		content.AddChild(tok)
	}
	plaintext, err := content.WriteToBytes()
	if err != nil {
		return "", fmt.Errorf("failed to serialize %s content: %w", el.Tag, err)
	}

	ciphertext, err := encryptData(algorithm, key, plaintext)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt %s content: %w", el.Tag, err)
	}

	id := "ED-" + generateID()
	ed := el.CreateElement("xenc:EncryptedData")
	ed.CreateAttr("xmlns:xenc", NSXMLEnc)
	ed.CreateAttr("Id", id)
	ed.CreateAttr("Type", typeContent)
	writeEncryptedData(ed, algorithm, ekID)
	ed.CreateElement("xenc:CipherData").CreateElement("xenc:CipherValue").
		SetText(base64.StdEncoding.EncodeToString(ciphertext))
	return id, nil
}

// encryptAttachment replaces the attachment content with its ciphertext
// and prepends the describing xenc:EncryptedData to the security header.
func encryptAttachment(sec *etree.Element, att *message.Attachment, algorithm string, key []byte, ekID string) (string, error) {
	ciphertext, err := encryptData(algorithm, key, att.Data)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt attachment %s: %w", att.ContentID, err)
	}

	id := "ED-" + generateID()
	ed := etree.NewElement("xenc:EncryptedData")
	ed.CreateAttr("xmlns:xenc", NSXMLEnc)
	ed.CreateAttr("Id", id)
	ed.CreateAttr("MimeType", att.ContentType)
	ed.CreateAttr("Type", typeAttachmentOnly)
	writeEncryptedData(ed, algorithm, ekID)

	cipherRef := ed.CreateElement("xenc:CipherData").CreateElement("xenc:CipherReference")
	cipherRef.CreateAttr("URI", "cid:"+contentID(att))
	transform := cipherRef.CreateElement("xenc:Transforms").CreateElement("ds:Transform")
	transform.CreateAttr("xmlns:ds", NSXMLDSig)
	transform.CreateAttr("Algorithm", transformSwACipher)

	prepend(sec, ed)
	att.Data = ciphertext
	att.ContentType = encryptedContentType
	return id, nil
}

// writeEncryptedData adds the EncryptionMethod and a KeyInfo pointing at
// the EncryptedKey.
func writeEncryptedData(ed *etree.Element, algorithm, ekID string) {
	ed.CreateElement("xenc:EncryptionMethod").CreateAttr("Algorithm", algorithm)
	keyInfo := ed.CreateElement("ds:KeyInfo")
	keyInfo.CreateAttr("xmlns:ds", NSXMLDSig)
	str := keyInfo.CreateElement("wsse:SecurityTokenReference")
	str.CreateAttr("xmlns:wsse11", NSSecurityExt11)
	str.CreateAttr("wsse11:TokenType", tokenTypeEK)
	ref := str.CreateElement("wsse:Reference")
	ref.CreateAttr("URI", "#"+ekID)
}
