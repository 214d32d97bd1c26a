package security

import (
	"context"
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-as4-wssec/pkg/message"
	"github.com/sirosfoundation/go-as4-wssec/pkg/wssec"
)

func encryptionRequest(alias string, version message.SOAPVersion) *wssec.HeaderRequest {
	return &wssec.HeaderRequest{
		Target:  wssec.TargetDefault,
		Actions: wssec.ActionList{wssec.ActionEncrypt},
		Encryption: &wssec.EncryptionProperties{
			User:          alias,
			KeyIdentifier: wssec.KeyIDIssuerSerial,
			Parts: wssec.Parts{
				{Namespace: version.Namespace(), LocalName: "Body"},
				{Attachments: true, Optional: true},
			},
		},
		Credentials: wssec.NewCredentialStore(),
	}
}

// unwrapKey decrypts the content key of the first EncryptedKey in sec.
func unwrapKey(t *testing.T, sec *etree.Element, priv *rsa.PrivateKey, hash crypto.Hash) []byte {
	t.Helper()
	cv := sec.FindElement("./EncryptedKey/CipherData/CipherValue")
	require.NotNil(t, cv)
	wrapped, err := base64.StdEncoding.DecodeString(cv.Text())
	require.NoError(t, err)
	key, err := rsa.DecryptOAEP(hash.New(), rand.Reader, priv, wrapped, nil)
	require.NoError(t, err)
	return key
}

func decryptData(t *testing.T, algorithm string, key, data []byte) []byte {
	t.Helper()
	block, err := aes.NewCipher(key)
	require.NoError(t, err)

	switch algorithm {
	case AlgorithmAES128GCM, AlgorithmAES256GCM:
		gcm, err := cipher.NewGCM(block)
		require.NoError(t, err)
		ns := gcm.NonceSize()
		plain, err := gcm.Open(nil, data[:ns], data[ns:], nil)
		require.NoError(t, err)
		return plain
	default:
		iv, ct := data[:aes.BlockSize], data[aes.BlockSize:]
		plain := make([]byte, len(ct))
		cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ct)
		pad := int(plain[len(plain)-1])
		return plain[:len(plain)-pad]
	}
}

func TestEncrypt_BodyAndAttachments(t *testing.T) {
	recipient := newTestParty(t)
	keys := staticKeys{"receiver": {chain: []*x509.Certificate{recipient.cert}}}
	msg := newTestMessage(t, message.SOAP12, "<a>first</a>", "<b>second</b>")
	originals := [][]byte{msg.Attachments[0].Data, msg.Attachments[1].Data}

	require.NoError(t, NewEngine(keys).CreateHeader(context.Background(), msg, encryptionRequest("receiver", message.SOAP12)))

	sec := defaultSecurity(t, msg)
	assert.Equal(t, []string{"EncryptedKey", "EncryptedData", "EncryptedData"}, childTags(sec))

	ek := sec.SelectElement("EncryptedKey")
	assert.Equal(t, AlgorithmRSAOAEPMGF1P, ek.FindElement("./EncryptionMethod").SelectAttrValue("Algorithm", ""))
	assert.Nil(t, ek.FindElement("./EncryptionMethod/DigestMethod"))
	assert.Nil(t, ek.FindElement("./EncryptionMethod/MGF"))
	assert.Len(t, ek.FindElements("./ReferenceList/DataReference"), 3)

	key := unwrapKey(t, sec, recipient.key, crypto.SHA1)
	assert.Len(t, key, 16)

	body := message.FindBody(msg.Envelope)
	ed := body.SelectElement("EncryptedData")
	require.NotNil(t, ed)
	assert.Equal(t, typeContent, ed.SelectAttrValue("Type", ""))
	assert.Equal(t, AlgorithmAES128GCM, ed.FindElement("./EncryptionMethod").SelectAttrValue("Algorithm", ""))
	assert.Len(t, body.ChildElements(), 1)

	ct, err := base64.StdEncoding.DecodeString(ed.FindElement("./CipherData/CipherValue").Text())
	require.NoError(t, err)
	plain := decryptData(t, AlgorithmAES128GCM, key, ct)
	assert.Contains(t, string(plain), "hello world")
	assert.Contains(t, string(plain), `xmlns:app="urn:test:app"`)

	for i, att := range msg.Attachments {
		assert.Equal(t, "application/octet-stream", att.ContentType)
		assert.Equal(t, originals[i], decryptData(t, AlgorithmAES128GCM, key, att.Data))
	}
	for _, attED := range sec.SelectElements("EncryptedData") {
		assert.Equal(t, typeAttachmentOnly, attED.SelectAttrValue("Type", ""))
		assert.Equal(t, "application/xml", attED.SelectAttrValue("MimeType", ""))
		ref := attED.FindElement("./CipherData/CipherReference")
		require.NotNil(t, ref)
		assert.Contains(t, ref.SelectAttrValue("URI", ""), "cid:")
	}
}

func TestEncrypt_OAEPParameters(t *testing.T) {
	recipient := newTestParty(t)
	keys := staticKeys{"receiver": {chain: []*x509.Certificate{recipient.cert}}}

	t.Run("xmlenc11 with digest and MGF", func(t *testing.T) {
		msg := newTestMessage(t, message.SOAP12)
		req := encryptionRequest("receiver", message.SOAP12)
		req.Encryption.KeyTransportAlgorithm = AlgorithmRSAOAEP
		req.Encryption.KeyTransportDigest = AlgorithmSHA256
		req.Encryption.KeyTransportMGF = AlgorithmMGF1SHA256
		req.Encryption.SymmetricAlgorithm = AlgorithmAES256GCM
		require.NoError(t, NewEngine(keys).CreateHeader(context.Background(), msg, req))

		sec := defaultSecurity(t, msg)
		method := sec.FindElement("./EncryptedKey/EncryptionMethod")
		assert.Equal(t, AlgorithmRSAOAEP, method.SelectAttrValue("Algorithm", ""))
		assert.Equal(t, AlgorithmSHA256, method.SelectElement("DigestMethod").SelectAttrValue("Algorithm", ""))
		assert.Equal(t, AlgorithmMGF1SHA256, method.SelectElement("MGF").SelectAttrValue("Algorithm", ""))
		assert.Len(t, unwrapKey(t, sec, recipient.key, crypto.SHA256), 32)
	})

	t.Run("xmlenc11 in upper case", func(t *testing.T) {
		msg := newTestMessage(t, message.SOAP12)
		req := encryptionRequest("receiver", message.SOAP12)
		req.Encryption.KeyTransportAlgorithm = "http://www.w3.org/2009/xmlenc11#RSA-OAEP"
		req.Encryption.KeyTransportDigest = AlgorithmSHA256
		req.Encryption.KeyTransportMGF = AlgorithmMGF1SHA256
		require.NoError(t, NewEngine(keys).CreateHeader(context.Background(), msg, req))

		sec := defaultSecurity(t, msg)
		method := sec.FindElement("./EncryptedKey/EncryptionMethod")
		assert.Equal(t, AlgorithmRSAOAEP, method.SelectAttrValue("Algorithm", ""))
		assert.NotNil(t, method.SelectElement("MGF"))
		assert.Len(t, unwrapKey(t, sec, recipient.key, crypto.SHA256), 16)
	})

	t.Run("xmlenc11 without parameters", func(t *testing.T) {
		msg := newTestMessage(t, message.SOAP12)
		req := encryptionRequest("receiver", message.SOAP12)
		req.Encryption.KeyTransportAlgorithm = AlgorithmRSAOAEP
		require.NoError(t, NewEngine(keys).CreateHeader(context.Background(), msg, req))

		method := defaultSecurity(t, msg).FindElement("./EncryptedKey/EncryptionMethod")
		assert.Empty(t, method.ChildElements())
	})

	t.Run("mismatched hashes", func(t *testing.T) {
		msg := newTestMessage(t, message.SOAP12)
		req := encryptionRequest("receiver", message.SOAP12)
		req.Encryption.KeyTransportAlgorithm = AlgorithmRSAOAEP
		req.Encryption.KeyTransportDigest = AlgorithmSHA256
		req.Encryption.KeyTransportMGF = AlgorithmMGF1SHA1
		err := NewEngine(keys).CreateHeader(context.Background(), msg, req)
		require.Error(t, err)

		var engErr *wssec.EngineError
		require.ErrorAs(t, err, &engErr)
		assert.Equal(t, wssec.ActionEncrypt, engErr.Action)
	})
}

func TestEncrypt_CBC(t *testing.T) {
	recipient := newTestParty(t)
	keys := staticKeys{"receiver": {chain: []*x509.Certificate{recipient.cert}}}
	msg := newTestMessage(t, message.SOAP11)

	req := encryptionRequest("receiver", message.SOAP11)
	req.Encryption.SymmetricAlgorithm = AlgorithmAES256CBC
	req.Encryption.KeyIdentifier = wssec.KeyIDDirectReference
	require.NoError(t, NewEngine(keys).CreateHeader(context.Background(), msg, req))

	sec := defaultSecurity(t, msg)
	assert.Equal(t, []string{"BinarySecurityToken", "EncryptedKey"}, childTags(sec))

	key := unwrapKey(t, sec, recipient.key, crypto.SHA1)
	ed := message.FindBody(msg.Envelope).SelectElement("EncryptedData")
	require.NotNil(t, ed)
	ct, err := base64.StdEncoding.DecodeString(ed.FindElement("./CipherData/CipherValue").Text())
	require.NoError(t, err)
	assert.Contains(t, string(decryptData(t, AlgorithmAES256CBC, key, ct)), "hello world")
}

func TestEncrypt_UnknownRecipient(t *testing.T) {
	msg := newTestMessage(t, message.SOAP12)
	err := NewEngine(staticKeys{}).CreateHeader(context.Background(), msg, encryptionRequest("nobody", message.SOAP12))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestEncryptData_GCMLayout(t *testing.T) {
	key := make([]byte, 16)
	out, err := encryptData(AlgorithmAES128GCM, key, []byte("abc"))
	require.NoError(t, err)
	assert.Len(t, out, 12+3+16)

	_, err = encryptData("urn:unknown", key, []byte("abc"))
	assert.Error(t, err)
}
