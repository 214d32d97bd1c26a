package mime

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-as4-wssec/pkg/message"
)

const testEnvelope = `<S12:Envelope xmlns:S12="http://www.w3.org/2003/05/soap-envelope"><S12:Body/></S12:Envelope>`

func TestPackage_WriteRead(t *testing.T) {
	attachments := []*message.Attachment{
		{ContentID: "payload-1@example.com", ContentType: "application/xml", Data: []byte("<Order/>")},
		{ContentID: "payload-2@example.com", ContentType: "application/octet-stream", Data: []byte{0x00, 0x01, 0xff}},
	}
	pkg := NewPackage(message.SOAP12, []byte(testEnvelope), attachments)

	body, contentType, err := pkg.Bytes()
	require.NoError(t, err)
	assert.Contains(t, contentType, ContentTypeMultipartRelated)
	assert.Contains(t, contentType, `type="application/soap+xml"`)
	assert.Contains(t, contentType, pkg.StartID)
	assert.Contains(t, string(body), "Content-Id: <payload-1@example.com>")

	parsed, err := Read(bytes.NewReader(body), contentType)
	require.NoError(t, err)
	assert.Equal(t, message.SOAP12, parsed.SOAPVersion)
	assert.Equal(t, pkg.StartID, parsed.StartID)
	assert.Equal(t, testEnvelope, string(parsed.Envelope))
	require.Len(t, parsed.Attachments, 2)
	assert.Equal(t, "payload-1@example.com", parsed.Attachments[0].ContentID)
	assert.Equal(t, "application/xml", parsed.Attachments[0].ContentType)
	assert.Equal(t, []byte{0x00, 0x01, 0xff}, parsed.Attachments[1].Data)
}

func TestPackage_SOAP11(t *testing.T) {
	pkg := NewPackage(message.SOAP11, []byte("<Envelope/>"), nil)

	body, contentType, err := pkg.Bytes()
	require.NoError(t, err)
	assert.Contains(t, contentType, `type="text/xml"`)

	parsed, err := Read(bytes.NewReader(body), contentType)
	require.NoError(t, err)
	assert.Equal(t, message.SOAP11, parsed.SOAPVersion)
	assert.Empty(t, parsed.Attachments)
}

func TestPackage_DefaultAttachmentType(t *testing.T) {
	pkg := NewPackage(message.SOAP12, []byte(testEnvelope), []*message.Attachment{
		{ContentID: "<bare>", Data: []byte("x")},
	})

	body, contentType, err := pkg.Bytes()
	require.NoError(t, err)

	parsed, err := Read(bytes.NewReader(body), contentType)
	require.NoError(t, err)
	require.Len(t, parsed.Attachments, 1)
	assert.Equal(t, "bare", parsed.Attachments[0].ContentID)
	assert.Equal(t, ContentTypeOctetStream, parsed.Attachments[0].ContentType)
}

func TestRead_StartNotFirst(t *testing.T) {
	body := "--b\r\n" +
		"Content-Type: application/xml\r\nContent-ID: <att>\r\n\r\n" +
		"<Order/>\r\n" +
		"--b\r\n" +
		"Content-Type: application/soap+xml; charset=UTF-8\r\nContent-ID: <root>\r\n\r\n" +
		testEnvelope + "\r\n" +
		"--b--\r\n"

	parsed, err := Read(strings.NewReader(body), `multipart/related; boundary=b; type="application/soap+xml"; start="<root>"`)
	require.NoError(t, err)
	assert.Equal(t, testEnvelope, string(parsed.Envelope))
	require.Len(t, parsed.Attachments, 1)
	assert.Equal(t, "att", parsed.Attachments[0].ContentID)
}

func TestRead_Errors(t *testing.T) {
	_, err := Read(strings.NewReader(""), "application/xml")
	assert.ErrorIs(t, err, ErrNotMultipart)

	_, err = Read(strings.NewReader(""), "multipart/related")
	assert.Error(t, err)

	body := "--b\r\nContent-ID: <att>\r\n\r\ndata\r\n--b--\r\n"
	_, err = Read(strings.NewReader(body), `multipart/related; boundary=b; start="<root>"`)
	assert.ErrorIs(t, err, ErrNoEnvelope)
}

func TestEntity_RoundTrip(t *testing.T) {
	pkg := NewPackage(message.SOAP12, []byte(testEnvelope), []*message.Attachment{
		{ContentID: "p1", ContentType: "text/plain", Data: []byte("hello")},
	})

	var buf bytes.Buffer
	require.NoError(t, pkg.WriteEntity(&buf))
	assert.True(t, IsEntity(buf.Bytes()))
	assert.False(t, IsEntity([]byte(testEnvelope)))

	parsed, err := ReadEntity(&buf)
	require.NoError(t, err)
	assert.Equal(t, testEnvelope, string(parsed.Envelope))
	require.Len(t, parsed.Attachments, 1)
	assert.Equal(t, []byte("hello"), parsed.Attachments[0].Data)
}

func TestReadEntity_MissingContentType(t *testing.T) {
	_, err := ReadEntity(strings.NewReader("MIME-Version: 1.0\r\n\r\nbody"))
	assert.ErrorIs(t, err, ErrNotMultipart)
}
