package wssec

import (
	"strings"

	"github.com/sirosfoundation/go-as4-wssec/pkg/message"
	"github.com/sirosfoundation/go-as4-wssec/pkg/pmode"
)

// KeyIdentifierType is the engine's vocabulary for certificate references.
type KeyIdentifierType string

const (
	KeyIDIssuerSerial    KeyIdentifierType = "IssuerSerial"
	KeyIDDirectReference KeyIdentifierType = "DirectReference"
	KeyIDSubjectKeyID    KeyIdentifierType = "SKIKeyIdentifier"
	KeyIDThumbprintSHA1  KeyIdentifierType = "Thumbprint"
)

// PasswordType URIs from the Username Token Profile 1.1.
const (
	PasswordTypeDigest = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-username-token-profile-1.0#PasswordDigest"
	PasswordTypeText   = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-username-token-profile-1.0#PasswordText"
)

// Part identifies a document part covered by a signature or encryption.
type Part struct {
	Namespace string
	LocalName string
	// Attachments stands for every SwA attachment of the message.
	Attachments bool
	// Optional parts are covered when present and skipped otherwise.
	Optional bool
}

// String renders the part in the "{}{namespace}LocalName" notation.
func (p Part) String() string {
	if p.Attachments {
		return "{}cid:Attachments"
	}
	return "{}{" + p.Namespace + "}" + p.LocalName
}

// Parts is an ordered coverage list.
type Parts []Part

func (ps Parts) String() string {
	var b strings.Builder
	for _, p := range ps {
		b.WriteString(p.String())
		b.WriteByte(';')
	}
	return b.String()
}

// Mandatory returns the parts that must be present.
func (ps Parts) Mandatory() Parts {
	return ps.filter(false)
}

// Optional returns the parts covered only when present.
func (ps Parts) Optional() Parts {
	return ps.filter(true)
}

func (ps Parts) filter(optional bool) Parts {
	var out Parts
	for _, p := range ps {
		if p.Optional == optional {
			out = append(out, p)
		}
	}
	return out
}

// UsernameTokenProperties is the resolved form of a username token action.
type UsernameTokenProperties struct {
	Username     string
	PasswordType string
	AddNonce     bool
	AddCreated   bool
}

// SignatureProperties is the resolved form of a signature action.
// Algorithms are copied verbatim; an empty value is left to the engine.
type SignatureProperties struct {
	User                   string
	KeyIdentifier          KeyIdentifierType
	IncludeCertificatePath bool
	SignatureAlgorithm     string
	DigestAlgorithm        string
	Parts                  Parts
}

// EncryptionProperties is the resolved form of an encryption action.
// KeyTransportDigest and KeyTransportMGF are either both set or both empty.
type EncryptionProperties struct {
	User                  string
	KeyIdentifier         KeyIdentifierType
	SymmetricAlgorithm    string
	KeyTransportAlgorithm string
	KeyTransportDigest    string
	KeyTransportMGF       string
	Parts                 Parts
}

// ResolveUsernameToken validates cfg and registers its credentials.
func ResolveUsernameToken(cfg *pmode.UsernameTokenConfig, store *CredentialStore) (*UsernameTokenProperties, error) {
	if cfg == nil {
		return nil, &ConfigError{Action: ActionUsernameToken, Field: "configuration", Reason: "missing"}
	}
	if cfg.Username == "" {
		return nil, &ConfigError{Action: ActionUsernameToken, Field: "username", Reason: "required"}
	}
	if cfg.Password == "" {
		return nil, &ConfigError{Action: ActionUsernameToken, Field: "password", Reason: "required"}
	}

	props := &UsernameTokenProperties{
		Username:   cfg.Username,
		AddNonce:   cfg.IncludeNonce,
		AddCreated: cfg.IncludeCreated,
	}
	switch cfg.PasswordType {
	case pmode.PasswordText:
		props.PasswordType = PasswordTypeText
	case "", pmode.PasswordDigest:
		props.PasswordType = PasswordTypeDigest
	default:
		return nil, &ConfigError{Action: ActionUsernameToken, Field: "passwordType", Reason: "unknown value " + string(cfg.PasswordType)}
	}

	store.Register(cfg.Username, cfg.Password)
	return props, nil
}

// ResolveSigning validates cfg, registers the key password under the
// keystore alias and computes the signature coverage.
func ResolveSigning(cfg *pmode.SigningConfig, store *CredentialStore, soap message.SOAPVersion) (*SignatureProperties, error) {
	if cfg == nil {
		return nil, &ConfigError{Action: ActionSignature, Field: "configuration", Reason: "missing"}
	}
	if cfg.KeystoreAlias == "" {
		return nil, &ConfigError{Action: ActionSignature, Field: "keystoreAlias", Reason: "required"}
	}
	keyID, err := keyIdentifierFor(ActionSignature, cfg.KeyReferenceMethod)
	if err != nil {
		return nil, err
	}
	includePath := cfg.IncludeCertificatePath != nil && *cfg.IncludeCertificatePath
	if includePath && keyID != KeyIDDirectReference {
		return nil, &ConfigError{
			Action: ActionSignature,
			Field:  "includeCertificatePath",
			Reason: "certificate path can only be included with BSTReference, not " + string(effectiveMethod(cfg.KeyReferenceMethod)),
		}
	}

	store.Register(cfg.KeystoreAlias, cfg.CertificatePassword)

	return &SignatureProperties{
		User:                   cfg.KeystoreAlias,
		KeyIdentifier:          keyID,
		IncludeCertificatePath: includePath,
		SignatureAlgorithm:     cfg.SignatureAlgorithm,
		DigestAlgorithm:        cfg.HashFunction,
		Parts: Parts{
			{Namespace: message.NsEbMS, LocalName: "Messaging"},
			{Namespace: soap.Namespace(), LocalName: "Body"},
			{Namespace: message.NsWSSE, LocalName: "UsernameToken", Optional: true},
			{Attachments: true, Optional: true},
		},
	}, nil
}

// ResolveEncryption validates cfg and computes the encryption coverage.
// Encryption uses the recipient's public key, so nothing is registered.
func ResolveEncryption(cfg *pmode.EncryptionConfig, store *CredentialStore, soap message.SOAPVersion) (*EncryptionProperties, error) {
	if cfg == nil {
		return nil, &ConfigError{Action: ActionEncrypt, Field: "configuration", Reason: "missing"}
	}
	if cfg.KeystoreAlias == "" {
		return nil, &ConfigError{Action: ActionEncrypt, Field: "keystoreAlias", Reason: "required"}
	}

	kt := cfg.KeyTransport
	if kt == nil {
		kt = &pmode.KeyTransportConfig{}
	}
	keyID, err := keyIdentifierFor(ActionEncrypt, kt.KeyReference)
	if err != nil {
		return nil, err
	}

	props := &EncryptionProperties{
		User:                  cfg.KeystoreAlias,
		KeyIdentifier:         keyID,
		SymmetricAlgorithm:    cfg.Algorithm,
		KeyTransportAlgorithm: kt.Algorithm,
		Parts: Parts{
			{Namespace: soap.Namespace(), LocalName: "Body"},
			{Attachments: true, Optional: true},
		},
	}
	// The digest and MGF parameters belong to xmlenc11#rsa-oaep and are
	// only meaningful as a pair.
	if strings.EqualFold(kt.Algorithm, pmode.KeyTransportRSAOAEP) && kt.DigestAlgorithm != "" && kt.MGFAlgorithm != "" {
		props.KeyTransportDigest = kt.DigestAlgorithm
		props.KeyTransportMGF = kt.MGFAlgorithm
	}
	return props, nil
}

func effectiveMethod(m pmode.X509ReferenceType) pmode.X509ReferenceType {
	if m == "" {
		return pmode.RefIssuerSerial
	}
	return m
}

func keyIdentifierFor(action Action, m pmode.X509ReferenceType) (KeyIdentifierType, error) {
	switch effectiveMethod(m) {
	case pmode.RefIssuerSerial:
		return KeyIDIssuerSerial, nil
	case pmode.RefBSTReference:
		return KeyIDDirectReference, nil
	case pmode.RefKeyIdentifier:
		return KeyIDSubjectKeyID, nil
	case pmode.RefThumbprint:
		return KeyIDThumbprintSHA1, nil
	default:
		return "", &ConfigError{Action: action, Field: "keyReferenceMethod", Reason: "unknown value " + string(m)}
	}
}
