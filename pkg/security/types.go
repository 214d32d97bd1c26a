package security

import (
	"crypto"
	"crypto/rand"
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"encoding/hex"
	"fmt"
)

// Algorithm URIs for XML signature and encryption
const (
	// Signature algorithms
	AlgorithmRSASHA1   = "http://www.w3.org/2000/09/xmldsig#rsa-sha1"
	AlgorithmRSASHA256 = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	AlgorithmRSASHA384 = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha384"
	AlgorithmRSASHA512 = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha512"

	// Digest algorithms
	AlgorithmSHA1   = "http://www.w3.org/2000/09/xmldsig#sha1"
	AlgorithmSHA256 = "http://www.w3.org/2001/04/xmlenc#sha256"
	AlgorithmSHA384 = "http://www.w3.org/2001/04/xmldsig-more#sha384"
	AlgorithmSHA512 = "http://www.w3.org/2001/04/xmlenc#sha512"

	// Canonicalization algorithms
	AlgorithmC14N = "http://www.w3.org/2001/10/xml-exc-c14n#"

	// Data encryption algorithms
	AlgorithmAES128GCM = "http://www.w3.org/2009/xmlenc11#aes128-gcm"
	AlgorithmAES256GCM = "http://www.w3.org/2009/xmlenc11#aes256-gcm"
	AlgorithmAES128CBC = "http://www.w3.org/2001/04/xmlenc#aes128-cbc"
	AlgorithmAES256CBC = "http://www.w3.org/2001/04/xmlenc#aes256-cbc"

	// Key transport algorithms
	AlgorithmRSAOAEPMGF1P = "http://www.w3.org/2001/04/xmlenc#rsa-oaep-mgf1p"
	AlgorithmRSAOAEP      = "http://www.w3.org/2009/xmlenc11#rsa-oaep"

	// Mask generation functions
	AlgorithmMGF1SHA1   = "http://www.w3.org/2009/xmlenc11#mgf1sha1"
	AlgorithmMGF1SHA256 = "http://www.w3.org/2009/xmlenc11#mgf1sha256"
	AlgorithmMGF1SHA384 = "http://www.w3.org/2009/xmlenc11#mgf1sha384"
	AlgorithmMGF1SHA512 = "http://www.w3.org/2009/xmlenc11#mgf1sha512"
)

// WS-Security namespaces
const (
	NSSecurityExt   = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd"
	NSSecurityExt11 = "http://docs.oasis-open.org/wss/oasis-wss-wssecurity-secext-1.1.xsd"
	NSSecurityUtil  = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-utility-1.0.xsd"
	NSXMLDSig       = "http://www.w3.org/2000/09/xmldsig#"
	NSXMLEnc        = "http://www.w3.org/2001/04/xmlenc#"
	NSXMLEnc11      = "http://www.w3.org/2009/xmlenc11#"
)

// Token profile value and encoding types
const (
	encodingBase64 = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-soap-message-security-1.0#Base64Binary"
	valueX509v3    = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-x509-token-profile-1.0#X509v3"
	valuePKIPath   = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-x509-token-profile-1.0#X509PKIPathv1"
	valueSKI       = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-x509-token-profile-1.0#X509SubjectKeyIdentifier"
	valueThumbSHA1 = "http://docs.oasis-open.org/wss/oasis-wss-soap-message-security-1.1#ThumbprintSHA1"
	tokenTypeEK    = "http://docs.oasis-open.org/wss/oasis-wss-soap-message-security-1.1#EncryptedKey"

	typeContent          = "http://www.w3.org/2001/04/xmlenc#Content"
	typeAttachmentOnly   = "http://docs.oasis-open.org/wss/oasis-wss-SwAProfile-1.1#Attachment-Content-Only"
	transformSwASig      = "http://docs.oasis-open.org/wss/oasis-wss-SwAProfile-1.1#Attachment-Content-Signature-Transform"
	transformSwACipher   = "http://docs.oasis-open.org/wss/oasis-wss-SwAProfile-1.1#Attachment-Ciphertext-Transform"
	encryptedContentType = "application/octet-stream"
)

// timestampFormat is the xsd:dateTime layout used for wsu:Created.
const timestampFormat = "2006-01-02T15:04:05.000Z"

// digestHash maps a digest algorithm URI to its hash function.
func digestHash(uri string) (crypto.Hash, error) {
	switch uri {
	case AlgorithmSHA1:
		return crypto.SHA1, nil
	case AlgorithmSHA256:
		return crypto.SHA256, nil
	case AlgorithmSHA384:
		return crypto.SHA384, nil
	case AlgorithmSHA512:
		return crypto.SHA512, nil
	default:
		return 0, fmt.Errorf("unsupported digest algorithm %q", uri)
	}
}

// mgfHash maps a mask generation function URI to its hash function.
func mgfHash(uri string) (crypto.Hash, error) {
	switch uri {
	case AlgorithmMGF1SHA1:
		return crypto.SHA1, nil
	case AlgorithmMGF1SHA256:
		return crypto.SHA256, nil
	case AlgorithmMGF1SHA384:
		return crypto.SHA384, nil
	case AlgorithmMGF1SHA512:
		return crypto.SHA512, nil
	default:
		return 0, fmt.Errorf("unsupported mask generation function %q", uri)
	}
}

// generateID generates a random ID for XML elements using hex encoding
// to avoid special characters like '=' that may cause issues with XPointer
func generateID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
