// Package pmode implements Processing Mode security configuration for AS4

package pmode

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Algorithm suite profiles for interoperability
type SecurityProfile string

const (
	// ProfileDomibus uses traditional RSA/AES for compatibility with Domibus
	ProfileDomibus SecurityProfile = "domibus"
	// ProfileEDelivery uses EU eDelivery AS4 2.0 algorithms
	ProfileEDelivery SecurityProfile = "edelivery"
	// ProfileCustom leaves every algorithm to the P-Mode
	ProfileCustom SecurityProfile = "custom"
)

// Signature algorithms
const (
	AlgoRSASHA256   = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	AlgoRSASHA384   = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha384"
	AlgoRSASHA512   = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha512"
	AlgoECDSASHA256 = "http://www.w3.org/2001/04/xmldsig-more#ecdsa-sha256"
)

// Hash algorithms
const (
	HashSHA1   = "http://www.w3.org/2000/09/xmldsig#sha1"
	HashSHA256 = "http://www.w3.org/2001/04/xmlenc#sha256"
	HashSHA384 = "http://www.w3.org/2001/04/xmldsig-more#sha384"
	HashSHA512 = "http://www.w3.org/2001/04/xmlenc#sha512"
)

// Key transport algorithms
const (
	KeyTransportRSAOAEPMGF1P = "http://www.w3.org/2001/04/xmlenc#rsa-oaep-mgf1p"
	KeyTransportRSAOAEP      = "http://www.w3.org/2009/xmlenc11#rsa-oaep"
)

// Mask generation functions for xmlenc11#rsa-oaep
const (
	MGF1SHA1   = "http://www.w3.org/2009/xmlenc11#mgf1sha1"
	MGF1SHA256 = "http://www.w3.org/2009/xmlenc11#mgf1sha256"
	MGF1SHA384 = "http://www.w3.org/2009/xmlenc11#mgf1sha384"
	MGF1SHA512 = "http://www.w3.org/2009/xmlenc11#mgf1sha512"
)

// Data encryption algorithms
const (
	DataAlgoAES128GCM = "http://www.w3.org/2009/xmlenc11#aes128-gcm"
	DataAlgoAES256GCM = "http://www.w3.org/2009/xmlenc11#aes256-gcm"
	DataAlgoAES128CBC = "http://www.w3.org/2001/04/xmlenc#aes128-cbc"
	DataAlgoAES256CBC = "http://www.w3.org/2001/04/xmlenc#aes256-cbc"
)

// X509ReferenceType selects how the certificate is referenced from the
// security header.
type X509ReferenceType string

const (
	RefIssuerSerial  X509ReferenceType = "IssuerSerial"
	RefBSTReference  X509ReferenceType = "BSTReference"
	RefKeyIdentifier X509ReferenceType = "KeyIdentifier"
	RefThumbprint    X509ReferenceType = "Thumbprint"
)

// Valid reports whether t is a known reference type. Empty is valid.
func (t X509ReferenceType) Valid() bool {
	switch t {
	case "", RefIssuerSerial, RefBSTReference, RefKeyIdentifier, RefThumbprint:
		return true
	}
	return false
}

// PasswordType is the username token password representation.
type PasswordType string

const (
	PasswordDigest PasswordType = "Digest"
	PasswordText   PasswordType = "Text"
)

// SigningConfig declares whether and how the message is signed.
type SigningConfig struct {
	KeystoreAlias       string            `yaml:"keystoreAlias"`
	CertificatePassword string            `yaml:"certificatePassword"`
	KeyReferenceMethod  X509ReferenceType `yaml:"keyReferenceMethod"`
	// IncludeCertificatePath embeds the full chain as a PKIPath token.
	// Only legal with RefBSTReference.
	IncludeCertificatePath *bool `yaml:"includeCertificatePath"`
	// EnableRevocationCheck is evaluated on inbound verification only.
	EnableRevocationCheck *bool  `yaml:"enableRevocationCheck"`
	SignatureAlgorithm    string `yaml:"signatureAlgorithm"`
	HashFunction          string `yaml:"hashFunction"`
}

// KeyTransportConfig holds the key transport parameters for encryption.
type KeyTransportConfig struct {
	Algorithm       string            `yaml:"algorithm"`
	DigestAlgorithm string            `yaml:"digestAlgorithm"`
	MGFAlgorithm    string            `yaml:"mgfAlgorithm"`
	KeyReference    X509ReferenceType `yaml:"keyReferenceMethod"`
}

// EncryptionConfig declares whether and how payloads are encrypted.
type EncryptionConfig struct {
	KeystoreAlias string              `yaml:"keystoreAlias"`
	Algorithm     string              `yaml:"algorithm"`
	KeyTransport  *KeyTransportConfig `yaml:"keyTransport"`
}

// UsernameTokenConfig declares a WS-Security username token.
type UsernameTokenConfig struct {
	Username       string       `yaml:"username"`
	Password       string       `yaml:"password"`
	PasswordType   PasswordType `yaml:"passwordType"`
	IncludeNonce   bool         `yaml:"includeNonce"`
	IncludeCreated bool         `yaml:"includeCreated"`
}

// Security contains the outbound WS-Security configuration of a leg.
type Security struct {
	// EbmsUsernameToken goes into the header targeted at the "ebms" role.
	EbmsUsernameToken *UsernameTokenConfig `yaml:"ebmsUsernameToken"`
	// DefaultUsernameToken goes into the default (unscoped) header.
	DefaultUsernameToken *UsernameTokenConfig `yaml:"defaultUsernameToken"`
	Signing              *SigningConfig       `yaml:"signing"`
	Encryption           *EncryptionConfig    `yaml:"encryption"`
}

// IsEmpty reports whether no security action is configured.
func (s *Security) IsEmpty() bool {
	return s == nil || (s.EbmsUsernameToken == nil && s.DefaultUsernameToken == nil &&
		s.Signing == nil && s.Encryption == nil)
}

// Leg overrides the P-Mode security for one leg of the exchange.
type Leg struct {
	Label    string    `yaml:"label"`
	Security *Security `yaml:"security"`
}

// ProcessingMode represents an AS4 Processing Mode configuration
type ProcessingMode struct {
	ID          string          `yaml:"id"`
	Agreement   string          `yaml:"agreement"`
	MEP         string          `yaml:"mep"`
	MEPBinding  string          `yaml:"mepBinding"`
	Service     string          `yaml:"service"`
	Action      string          `yaml:"action"`
	SOAPVersion string          `yaml:"soapVersion"`
	Profile     SecurityProfile `yaml:"profile"`
	Security    *Security       `yaml:"security"`
	Legs        []Leg           `yaml:"legs"`
}

// LegSecurity returns the security of the labelled leg, falling back to
// the P-Mode level configuration.
func (pm *ProcessingMode) LegSecurity(label string) *Security {
	for i := range pm.Legs {
		if pm.Legs[i].Label == label && pm.Legs[i].Security != nil {
			return pm.Legs[i].Security
		}
	}
	return pm.Security
}

// Parse decodes a YAML P-Mode. Environment variables in the document are
// expanded so that secrets can be kept out of the file.
func Parse(data []byte) (*ProcessingMode, error) {
	expanded := os.ExpandEnv(string(data))

	var pm ProcessingMode
	if err := yaml.Unmarshal([]byte(expanded), &pm); err != nil {
		return nil, fmt.Errorf("failed to parse P-Mode: %w", err)
	}
	if err := pm.validate(); err != nil {
		return nil, err
	}
	pm.ApplyProfileDefaults()
	return &pm, nil
}

// Load reads a YAML P-Mode file.
func Load(path string) (*ProcessingMode, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read P-Mode file: %w", err)
	}
	pm, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return pm, nil
}

// validate checks structural constraints only. Semantic checks of the
// security configuration happen when headers are created.
func (pm *ProcessingMode) validate() error {
	if pm.ID == "" {
		return fmt.Errorf("P-Mode id is required")
	}
	switch pm.Profile {
	case "", ProfileDomibus, ProfileEDelivery, ProfileCustom:
	default:
		return fmt.Errorf("P-Mode %s: unknown security profile %q", pm.ID, pm.Profile)
	}
	sections := []*Security{pm.Security}
	for _, leg := range pm.Legs {
		sections = append(sections, leg.Security)
	}
	for _, sec := range sections {
		if sec == nil {
			continue
		}
		if sec.Signing != nil && !sec.Signing.KeyReferenceMethod.Valid() {
			return fmt.Errorf("P-Mode %s: unknown key reference method %q", pm.ID, sec.Signing.KeyReferenceMethod)
		}
		if sec.Encryption != nil && sec.Encryption.KeyTransport != nil && !sec.Encryption.KeyTransport.KeyReference.Valid() {
			return fmt.Errorf("P-Mode %s: unknown key reference method %q", pm.ID, sec.Encryption.KeyTransport.KeyReference)
		}
		for _, ut := range []*UsernameTokenConfig{sec.EbmsUsernameToken, sec.DefaultUsernameToken} {
			if ut != nil && ut.PasswordType != "" && ut.PasswordType != PasswordDigest && ut.PasswordType != PasswordText {
				return fmt.Errorf("P-Mode %s: unknown password type %q", pm.ID, ut.PasswordType)
			}
		}
	}
	return nil
}

// ApplyProfileDefaults fills unset algorithms from the security profile.
// A P-Mode without a profile is left untouched.
func (pm *ProcessingMode) ApplyProfileDefaults() {
	if pm.Profile == "" {
		return
	}
	sections := []*Security{pm.Security}
	for _, leg := range pm.Legs {
		sections = append(sections, leg.Security)
	}
	sign := GetDefaultSignConfig(pm.Profile)
	enc := GetDefaultEncryptionConfig(pm.Profile)
	for _, sec := range sections {
		if sec == nil {
			continue
		}
		if s := sec.Signing; s != nil {
			s.SignatureAlgorithm = orDefault(s.SignatureAlgorithm, sign.SignatureAlgorithm)
			s.HashFunction = orDefault(s.HashFunction, sign.HashFunction)
			if s.KeyReferenceMethod == "" {
				s.KeyReferenceMethod = sign.KeyReferenceMethod
			}
		}
		if e := sec.Encryption; e != nil {
			e.Algorithm = orDefault(e.Algorithm, enc.Algorithm)
			if e.KeyTransport == nil {
				e.KeyTransport = &KeyTransportConfig{}
			}
			kt := e.KeyTransport
			kt.Algorithm = orDefault(kt.Algorithm, enc.KeyTransport.Algorithm)
			if kt.DigestAlgorithm == "" && kt.MGFAlgorithm == "" {
				kt.DigestAlgorithm = enc.KeyTransport.DigestAlgorithm
				kt.MGFAlgorithm = enc.KeyTransport.MGFAlgorithm
			}
			if kt.KeyReference == "" {
				kt.KeyReference = enc.KeyTransport.KeyReference
			}
		}
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// GetDefaultSignConfig returns default signing configuration based on security profile
func GetDefaultSignConfig(profile SecurityProfile) *SigningConfig {
	switch profile {
	case ProfileDomibus, ProfileEDelivery:
		return &SigningConfig{
			SignatureAlgorithm: AlgoRSASHA256,
			HashFunction:       HashSHA256,
			KeyReferenceMethod: RefBSTReference,
		}
	default:
		return &SigningConfig{
			SignatureAlgorithm: AlgoRSASHA256,
			HashFunction:       HashSHA256,
			KeyReferenceMethod: RefIssuerSerial,
		}
	}
}

// GetDefaultEncryptionConfig returns default encryption configuration based on security profile
func GetDefaultEncryptionConfig(profile SecurityProfile) *EncryptionConfig {
	switch profile {
	case ProfileEDelivery:
		return &EncryptionConfig{
			Algorithm: DataAlgoAES128GCM,
			KeyTransport: &KeyTransportConfig{
				Algorithm:       KeyTransportRSAOAEP,
				DigestAlgorithm: HashSHA256,
				MGFAlgorithm:    MGF1SHA256,
				KeyReference:    RefIssuerSerial,
			},
		}
	case ProfileDomibus:
		return &EncryptionConfig{
			Algorithm: DataAlgoAES128GCM,
			KeyTransport: &KeyTransportConfig{
				Algorithm:    KeyTransportRSAOAEPMGF1P,
				KeyReference: RefIssuerSerial,
			},
		}
	default:
		return &EncryptionConfig{
			Algorithm: DataAlgoAES128GCM,
			KeyTransport: &KeyTransportConfig{
				Algorithm:    KeyTransportRSAOAEPMGF1P,
				KeyReference: RefIssuerSerial,
			},
		}
	}
}

// Manager manages processing modes. It is safe for concurrent use.
type Manager struct {
	mu     sync.RWMutex
	pmodes map[string]*ProcessingMode
}

// NewManager creates a new P-Mode manager
func NewManager() *Manager {
	return &Manager{
		pmodes: make(map[string]*ProcessingMode),
	}
}

// Add adds a processing mode, replacing any with the same ID
func (m *Manager) Add(pm *ProcessingMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pmodes[pm.ID] = pm
}

// Get retrieves a processing mode by ID
func (m *Manager) Get(id string) *ProcessingMode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pmodes[id]
}

// Remove removes a processing mode
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pmodes, id)
}

// IDs returns the registered P-Mode IDs in sorted order
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.pmodes))
	for id := range m.pmodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Find finds a matching P-Mode based on service and action
func (m *Manager) Find(service, action string) *ProcessingMode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, pm := range m.pmodes {
		if pm.Service == service && pm.Action == action {
			return pm
		}
	}
	return nil
}

// LoadDir loads every *.yaml and *.yml file in dir.
func (m *Manager) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read P-Mode directory: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !(strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")) {
			continue
		}
		pm, err := Load(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		m.Add(pm)
	}
	return nil
}
