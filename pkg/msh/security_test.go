package msh

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-as4-wssec/pkg/message"
	"github.com/sirosfoundation/go-as4-wssec/pkg/pmode"
	"github.com/sirosfoundation/go-as4-wssec/pkg/security"
	"github.com/sirosfoundation/go-as4-wssec/pkg/wssec"
)

func TestProcess_NotRequested(t *testing.T) {
	h := newHandler(t, newTestKeys(t), wssec.FailClosed)
	msg := newOutbound(t, "msg-1")
	msg.AddSecurityHeaders = false
	msg.Security = &pmode.Security{Signing: &pmode.SigningConfig{KeystoreAlias: "sender", CertificatePassword: "keypass"}}
	original := bytes.Clone(msg.Envelope)

	result, err := h.Process(context.Background(), msg)
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Equal(t, original, msg.Envelope)
}

func TestProcess_NoConfiguration(t *testing.T) {
	h := newHandler(t, newTestKeys(t), wssec.FailClosed)
	msg := newOutbound(t, "msg-1")
	msg.Security = &pmode.Security{}

	result, err := h.Process(context.Background(), msg)
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.NotContains(t, string(msg.Envelope), "Security")
}

func TestProcess_DocumentConversionFailure(t *testing.T) {
	h := newHandler(t, newTestKeys(t), wssec.FailClosed)
	msg := &OutboundMessage{
		MessageID:          "broken",
		Envelope:           []byte("<not-an-envelope/>"),
		AddSecurityHeaders: true,
		Security:           &pmode.Security{DefaultUsernameToken: &pmode.UsernameTokenConfig{Username: "u", Password: "p"}},
	}

	result, err := h.Process(context.Background(), msg)
	assert.ErrorIs(t, err, ErrDocumentConversion)
	assert.Nil(t, result)
	assert.Equal(t, "<not-an-envelope/>", string(msg.Envelope))
}

func TestProcess_UsernameTokens(t *testing.T) {
	h := newHandler(t, newTestKeys(t), wssec.FailClosed)
	msg := newOutbound(t, "msg-ut")
	msg.Security = &pmode.Security{
		EbmsUsernameToken:    &pmode.UsernameTokenConfig{Username: "gateway", Password: "gw-secret", PasswordType: pmode.PasswordDigest},
		DefaultUsernameToken: &pmode.UsernameTokenConfig{Username: "alice", Password: "alice-secret", PasswordType: pmode.PasswordDigest},
	}

	result, err := h.Process(context.Background(), msg)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Len(t, result.Targets, 2)
	assert.Empty(t, result.Failed())

	env := string(msg.Envelope)
	assert.Equal(t, 2, strings.Count(env, "<wsse:Security"))
	assert.Contains(t, env, `role="ebms"`)
	assert.NotContains(t, env, "gw-secret")
	assert.NotContains(t, env, "alice-secret")
}

func TestProcess_SignAndEncrypt(t *testing.T) {
	keys := newTestKeys(t)
	h := newHandler(t, keys, wssec.FailClosed)
	msg := newOutbound(t, "msg-secure", "<Invoice>42</Invoice>")
	original := msg.Attachments[0]
	msg.Security = &pmode.Security{
		Signing:    &pmode.SigningConfig{KeystoreAlias: "sender", CertificatePassword: "keypass"},
		Encryption: &pmode.EncryptionConfig{KeystoreAlias: "receiver"},
	}

	result, err := h.Process(context.Background(), msg)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, message.SOAP12, msg.SOAPVersion)

	// The secured message carries encrypted copies; the caller's
	// attachment values are untouched.
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "application/octet-stream", msg.Attachments[0].ContentType)
	assert.NotEqual(t, []byte("<Invoice>42</Invoice>"), msg.Attachments[0].Data)
	assert.Equal(t, "application/xml", original.ContentType)
	assert.Equal(t, []byte("<Invoice>42</Invoice>"), original.Data)

	env := string(msg.Envelope)
	assert.Contains(t, env, "ds:Signature")
	assert.Contains(t, env, "xenc:EncryptedKey")
	assert.NotContains(t, env, "keypass")
}

func TestProcess_SignedEnvelopeVerifies(t *testing.T) {
	keys := newTestKeys(t)
	h := newHandler(t, keys, wssec.FailClosed)
	msg := newOutbound(t, "msg-signed")
	msg.Security = &pmode.Security{
		Signing: &pmode.SigningConfig{KeystoreAlias: "sender", CertificatePassword: "keypass", KeyReferenceMethod: pmode.RefBSTReference},
	}

	_, err := h.Process(context.Background(), msg)
	require.NoError(t, err)
	assert.NoError(t, security.VerifyEnvelope(msg.Envelope, keys.signer.cert))
}

func TestProcess_FailClosedLeavesMessageUnchanged(t *testing.T) {
	h := newHandler(t, newTestKeys(t), wssec.FailClosed)
	msg := newOutbound(t, "msg-fail", "payload")
	original := bytes.Clone(msg.Envelope)
	attachments := msg.Attachments
	msg.Security = &pmode.Security{
		EbmsUsernameToken: &pmode.UsernameTokenConfig{Username: "gateway", Password: "gw"},
		Encryption:        &pmode.EncryptionConfig{KeystoreAlias: "unknown-partner"},
	}

	result, err := h.Process(context.Background(), msg)
	require.Error(t, err)

	var headerErr *wssec.HeaderError
	require.ErrorAs(t, err, &headerErr)
	assert.ErrorIs(t, err, security.ErrKeyNotFound)

	require.NotNil(t, result)
	require.Len(t, result.Failed(), 1)
	assert.Equal(t, wssec.TargetDefault, result.Failed()[0].Target)

	assert.Equal(t, original, msg.Envelope)
	assert.Equal(t, attachments, msg.Attachments)
	assert.Equal(t, []byte("payload"), msg.Attachments[0].Data)
}

func TestProcess_FailOpenKeepsSuccessfulHeaders(t *testing.T) {
	h := newHandler(t, newTestKeys(t), wssec.FailOpen)
	msg := newOutbound(t, "msg-open")
	msg.Security = &pmode.Security{
		EbmsUsernameToken: &pmode.UsernameTokenConfig{Username: "gateway", Password: "gw"},
		Signing:           &pmode.SigningConfig{KeystoreAlias: "sender", CertificatePassword: "wrong"},
	}

	result, err := h.Process(context.Background(), msg)
	require.NoError(t, err)
	require.Len(t, result.Failed(), 1)
	assert.Equal(t, wssec.TargetDefault, result.Failed()[0].Target)

	env := string(msg.Envelope)
	assert.Contains(t, env, "wsse:UsernameToken")
	assert.NotContains(t, env, "ds:Signature")
}

func TestProcess_Resolver(t *testing.T) {
	pmodes := pmode.NewManager()
	pmodes.Add(&pmode.ProcessingMode{
		ID:      "pm-deliver",
		Service: "urn:test:service",
		Action:  "Deliver",
		Security: &pmode.Security{
			DefaultUsernameToken: &pmode.UsernameTokenConfig{Username: "alice", Password: "s3cret", PasswordType: pmode.PasswordText},
		},
	})
	h := newHandler(t, newTestKeys(t), wssec.FailClosed, WithResolver(NewPModeResolver(pmodes)))

	msg := newOutbound(t, "msg-resolved")
	result, err := h.Process(context.Background(), msg)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Contains(t, string(msg.Envelope), "wsse:UsernameToken")

	msg = newOutbound(t, "msg-unknown")
	msg.PModeID = "pm-missing"
	_, err = h.Process(context.Background(), msg)
	assert.ErrorIs(t, err, ErrPModeNotFound)
}

func TestProcess_ExplicitSecurityWinsOverResolver(t *testing.T) {
	called := false
	resolver := ResolverFunc(func(context.Context, *OutboundMessage) (*pmode.Security, error) {
		called = true
		return nil, errors.New("should not be called")
	})
	h := newHandler(t, newTestKeys(t), wssec.FailClosed, WithResolver(resolver))

	msg := newOutbound(t, "msg-explicit")
	msg.Security = &pmode.Security{DefaultUsernameToken: &pmode.UsernameTokenConfig{Username: "alice", Password: "s3cret"}}

	_, err := h.Process(context.Background(), msg)
	require.NoError(t, err)
	assert.False(t, called)
}
