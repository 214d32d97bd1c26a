package security

import (
	"crypto/sha1"
	"crypto/x509"
	"encoding/asn1"
	"encoding/base64"
	"fmt"

	"github.com/beevik/etree"

	"github.com/sirosfoundation/go-as4-wssec/pkg/wssec"
)

// SubjectKeyIdentifier returns the SKI of cert. Certificates without the
// extension get the RFC 5280 method 1 value: SHA-1 of the public key bits.
func SubjectKeyIdentifier(cert *x509.Certificate) ([]byte, error) {
	if len(cert.SubjectKeyId) > 0 {
		return cert.SubjectKeyId, nil
	}
	var spki struct {
		Algorithm        asn1.RawValue
		SubjectPublicKey asn1.BitString
	}
	if _, err := asn1.Unmarshal(cert.RawSubjectPublicKeyInfo, &spki); err != nil {
		return nil, fmt.Errorf("failed to parse public key info: %w", err)
	}
	sum := sha1.Sum(spki.SubjectPublicKey.Bytes)
	return sum[:], nil
}

// Thumbprint returns the SHA-1 thumbprint of the DER certificate.
func Thumbprint(cert *x509.Certificate) []byte {
	sum := sha1.Sum(cert.Raw)
	return sum[:]
}

// pkiPath encodes chain as an X509PKIPathv1 token value: a DER SEQUENCE of
// certificates ordered from the issuer down to the end entity.
func pkiPath(chain []*x509.Certificate) ([]byte, error) {
	seq := make([]asn1.RawValue, 0, len(chain))
	for i := len(chain) - 1; i >= 0; i-- {
		seq = append(seq, asn1.RawValue{FullBytes: chain[i].Raw})
	}
	return asn1.Marshal(seq)
}

// binarySecurityToken creates a BST carrying cert, or the whole chain as
// a PKIPath when withPath is set.
func binarySecurityToken(chain []*x509.Certificate, withPath bool) (*etree.Element, string, error) {
	id := "X509-" + generateID()
	bst := etree.NewElement("wsse:BinarySecurityToken")
	bst.CreateAttr("EncodingType", encodingBase64)
	bst.CreateAttr("wsu:Id", id)
	if withPath {
		value, err := pkiPath(chain)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode certificate path: %w", err)
		}
		bst.CreateAttr("ValueType", valuePKIPath)
		bst.SetText(base64.StdEncoding.EncodeToString(value))
	} else {
		bst.CreateAttr("ValueType", valueX509v3)
		bst.SetText(base64.StdEncoding.EncodeToString(chain[0].Raw))
	}
	return bst, id, nil
}

// tokenReference describes how a certificate is referenced from KeyInfo.
type tokenReference struct {
	keyID    wssec.KeyIdentifierType
	chain    []*x509.Certificate
	withPath bool
}

// build appends a wsse:SecurityTokenReference for the certificate to
// keyInfo. For DirectReference the returned BST must be placed in the
// security header ahead of the referencing element.
func (r tokenReference) build(keyInfo *etree.Element) (*etree.Element, error) {
	cert := r.chain[0]
	str := keyInfo.CreateElement("wsse:SecurityTokenReference")

	switch r.keyID {
	case wssec.KeyIDDirectReference:
		bst, bstID, err := binarySecurityToken(r.chain, r.withPath)
		if err != nil {
			return nil, err
		}
		ref := str.CreateElement("wsse:Reference")
		ref.CreateAttr("URI", "#"+bstID)
		ref.CreateAttr("ValueType", bst.SelectAttrValue("ValueType", valueX509v3))
		return bst, nil

	case wssec.KeyIDSubjectKeyID:
		ski, err := SubjectKeyIdentifier(cert)
		if err != nil {
			return nil, err
		}
		keyID := str.CreateElement("wsse:KeyIdentifier")
		keyID.CreateAttr("EncodingType", encodingBase64)
		keyID.CreateAttr("ValueType", valueSKI)
		keyID.SetText(base64.StdEncoding.EncodeToString(ski))

	case wssec.KeyIDThumbprintSHA1:
		keyID := str.CreateElement("wsse:KeyIdentifier")
		keyID.CreateAttr("EncodingType", encodingBase64)
		keyID.CreateAttr("ValueType", valueThumbSHA1)
		keyID.SetText(base64.StdEncoding.EncodeToString(Thumbprint(cert)))

	case wssec.KeyIDIssuerSerial, "":
		x509Data := str.CreateElement("ds:X509Data")
		x509Data.CreateAttr("xmlns:ds", NSXMLDSig)
		issuerSerial := x509Data.CreateElement("ds:X509IssuerSerial")
		issuerSerial.CreateElement("ds:X509IssuerName").SetText(cert.Issuer.String())
		issuerSerial.CreateElement("ds:X509SerialNumber").SetText(cert.SerialNumber.String())

	default:
		return nil, fmt.Errorf("unsupported key identifier type %q", r.keyID)
	}
	return nil, nil
}
