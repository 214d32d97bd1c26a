package security

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-as4-wssec/pkg/message"
	"github.com/sirosfoundation/go-as4-wssec/pkg/wssec"
)

func generateRSATestCert(t *testing.T, publicKey *rsa.PublicKey, privateKey *rsa.PrivateKey) *x509.Certificate {
	t.Helper()

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"Test Organization"},
			CommonName:   "test.example.com",
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, publicKey, privateKey)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(certDER)
	require.NoError(t, err)

	return cert
}

// generateChain returns a leaf key with a certificate chain issued by a
// fresh CA, leaf first.
func generateChain(t *testing.T) (*rsa.PrivateKey, []*x509.Certificate) {
	t.Helper()

	caKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	caTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(100),
		Subject:               pkix.Name{CommonName: "Test CA"},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign,
		IsCA:                  true,
		BasicConstraintsValid: true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	require.NoError(t, err)
	ca, err := x509.ParseCertificate(caDER)
	require.NoError(t, err)

	leafKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	leafTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(101),
		Subject:      pkix.Name{CommonName: "sender.example.com"},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTemplate, ca, &leafKey.PublicKey, caKey)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(leafDER)
	require.NoError(t, err)

	return leafKey, []*x509.Certificate{leaf, ca}
}

type testKey struct {
	password string
	key      crypto.Signer
	chain    []*x509.Certificate
}

// staticKeys is an in-memory KeyProvider.
type staticKeys map[string]testKey

func (k staticKeys) SigningKey(_ context.Context, alias, password string) (crypto.Signer, []*x509.Certificate, error) {
	entry, ok := k[alias]
	if !ok || entry.key == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrKeyNotFound, alias)
	}
	if entry.password != password {
		return nil, nil, fmt.Errorf("wrong password for %s", alias)
	}
	return entry.key, entry.chain, nil
}

func (k staticKeys) Certificate(_ context.Context, alias string) (*x509.Certificate, error) {
	entry, ok := k[alias]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, alias)
	}
	return entry.chain[0], nil
}

type testParty struct {
	key  *rsa.PrivateKey
	cert *x509.Certificate
}

func newTestParty(t *testing.T) testParty {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return testParty{key: key, cert: generateRSATestCert(t, &key.PublicKey, key)}
}

// newTestMessage builds a UserMessage envelope with an application
// document in the Body and the given attachment payloads.
func newTestMessage(t *testing.T, version message.SOAPVersion, payloads ...string) *wssec.Message {
	t.Helper()
	b := message.NewUserMessage(
		message.WithFrom("sender", "urn:oasis:names:tc:ebcore:partyid-type:unregistered"),
		message.WithTo("receiver", "urn:oasis:names:tc:ebcore:partyid-type:unregistered"),
		message.WithService("urn:test:service"),
		message.WithAction("Submit"),
	)
	for _, p := range payloads {
		b.AddPayload([]byte(p), "application/xml")
	}
	doc, attachments, err := b.BuildEnvelope(version)
	require.NoError(t, err)

	body := message.FindBody(doc)
	require.NotNil(t, body)
	app := body.CreateElement("app:Document")
	app.CreateAttr("xmlns:app", "urn:test:app")
	app.SetText("hello world")

	return &wssec.Message{Envelope: doc, SOAPVersion: version, Attachments: attachments}
}

func serialize(t *testing.T, msg *wssec.Message) []byte {
	t.Helper()
	data, err := message.SerializeEnvelope(msg.Envelope)
	require.NoError(t, err)
	return data
}

// defaultSecurity returns the unscoped security header of msg.
func defaultSecurity(t *testing.T, msg *wssec.Message) *etree.Element {
	t.Helper()
	sec := findSecurity(msg.Envelope, msg.SOAPVersion, wssec.TargetDefault)
	require.NotNil(t, sec, "default security header not found")
	return sec
}

func childTags(el *etree.Element) []string {
	var tags []string
	for _, c := range el.ChildElements() {
		tags = append(tags, c.Tag)
	}
	return tags
}

func signatureRequest(alias string, keyID wssec.KeyIdentifierType, store *wssec.CredentialStore, version message.SOAPVersion) *wssec.HeaderRequest {
	return &wssec.HeaderRequest{
		Target:  wssec.TargetDefault,
		Actions: wssec.ActionList{wssec.ActionSignature},
		Signature: &wssec.SignatureProperties{
			User:          alias,
			KeyIdentifier: keyID,
			Parts: wssec.Parts{
				{Namespace: message.NsEbMS, LocalName: "Messaging"},
				{Namespace: version.Namespace(), LocalName: "Body"},
				{Namespace: message.NsWSSE, LocalName: "UsernameToken", Optional: true},
				{Attachments: true, Optional: true},
			},
		},
		Credentials: store,
	}
}
