package msh

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-as4-wssec/pkg/message"
	"github.com/sirosfoundation/go-as4-wssec/pkg/security"
	"github.com/sirosfoundation/go-as4-wssec/pkg/wssec"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type keyPair struct {
	key  *rsa.PrivateKey
	cert *x509.Certificate
}

func generateKeyPair(t *testing.T, cn string) keyPair {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: cn, Organization: []string{"Test Organization"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return keyPair{key: key, cert: cert}
}

// testKeys is a keystore holding one password protected signing key and
// any number of partner certificates.
type testKeys struct {
	alias    string
	password string
	signer   keyPair
	partners map[string]*x509.Certificate
}

var _ security.KeyProvider = (*testKeys)(nil)

func (k *testKeys) SigningKey(_ context.Context, alias, password string) (crypto.Signer, []*x509.Certificate, error) {
	if alias != k.alias {
		return nil, nil, security.ErrKeyNotFound
	}
	if password != k.password {
		return nil, nil, errors.New("wrong password")
	}
	return k.signer.key, []*x509.Certificate{k.signer.cert}, nil
}

func (k *testKeys) Certificate(_ context.Context, alias string) (*x509.Certificate, error) {
	if alias == k.alias {
		return k.signer.cert, nil
	}
	if cert, ok := k.partners[alias]; ok {
		return cert, nil
	}
	return nil, security.ErrKeyNotFound
}

func newTestKeys(t *testing.T) *testKeys {
	t.Helper()
	return &testKeys{
		alias:    "sender",
		password: "keypass",
		signer:   generateKeyPair(t, "sender"),
		partners: map[string]*x509.Certificate{"receiver": generateKeyPair(t, "receiver").cert},
	}
}

func newHandler(t *testing.T, keys security.KeyProvider, policy wssec.FailurePolicy, opts ...HandlerOption) *SecurityHandler {
	t.Helper()
	engine := security.NewEngine(keys, security.WithLogger(quietLogger()))
	orch := wssec.NewOrchestrator(engine, wssec.WithLogger(quietLogger()), wssec.WithFailurePolicy(policy))
	return NewSecurityHandler(orch, append([]HandlerOption{WithHandlerLogger(quietLogger())}, opts...)...)
}

func newOutbound(t *testing.T, id string, payloads ...string) *OutboundMessage {
	t.Helper()
	b := message.NewUserMessage(
		message.WithFrom("sender-party", ""),
		message.WithTo("receiver-party", ""),
		message.WithService("urn:test:service"),
		message.WithAction("Deliver"),
	)
	for _, p := range payloads {
		b.AddPayload([]byte(p), "application/xml")
	}
	env, atts, err := b.MarshalEnvelope(message.SOAP12)
	require.NoError(t, err)
	return &OutboundMessage{
		MessageID:          id,
		Service:            "urn:test:service",
		Action:             "Deliver",
		Envelope:           env,
		Attachments:        atts,
		AddSecurityHeaders: true,
	}
}
