// Package mime implements SOAP with Attachments packaging of AS4 messages
package mime

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/google/uuid"

	"github.com/sirosfoundation/go-as4-wssec/pkg/message"
)

const (
	// ContentTypeMultipartRelated is the MIME type for multipart/related
	ContentTypeMultipartRelated = "multipart/related"
	// ContentTypeTextXML is the SOAP 1.1 envelope type
	ContentTypeTextXML = "text/xml"
	// ContentTypeSOAPXML is the SOAP 1.2 envelope type
	ContentTypeSOAPXML = "application/soap+xml"
	// ContentTypeOctetStream is used for attachments without a type
	ContentTypeOctetStream = "application/octet-stream"
)

var (
	// ErrNotMultipart is returned by Read for non multipart content types.
	ErrNotMultipart = errors.New("not a multipart message")
	// ErrNoEnvelope is returned when no part holds the SOAP envelope.
	ErrNoEnvelope = errors.New("SOAP envelope not found in message")
)

// Package is a SOAP envelope with its attachments, as exchanged on the wire.
type Package struct {
	SOAPVersion message.SOAPVersion
	// StartID is the Content-ID of the envelope part, without brackets.
	StartID     string
	Envelope    []byte
	Attachments []*message.Attachment
}

// NewPackage creates a package for the envelope and attachments with a
// fresh start Content-ID.
func NewPackage(version message.SOAPVersion, envelope []byte, attachments []*message.Attachment) *Package {
	return &Package{
		SOAPVersion: version,
		StartID:     uuid.New().String() + "@as4.siros.org",
		Envelope:    envelope,
		Attachments: attachments,
	}
}

// EnvelopeType returns the media type of the envelope part.
func EnvelopeType(version message.SOAPVersion) string {
	if version == message.SOAP11 {
		return ContentTypeTextXML
	}
	return ContentTypeSOAPXML
}

// Write serializes the package as multipart/related and returns the
// Content-Type header value for it.
func (p *Package) Write(w io.Writer) (string, error) {
	writer := multipart.NewWriter(w)
	if err := writer.SetBoundary(generateBoundary()); err != nil {
		return "", fmt.Errorf("failed to set boundary: %w", err)
	}

	envType := EnvelopeType(p.SOAPVersion)
	soapHeader := textproto.MIMEHeader{}
	soapHeader.Set("Content-Type", envType+"; charset=UTF-8")
	soapHeader.Set("Content-Transfer-Encoding", "8bit")
	soapHeader.Set("Content-ID", "<"+p.StartID+">")
	soapPart, err := writer.CreatePart(soapHeader)
	if err != nil {
		return "", fmt.Errorf("failed to create SOAP part: %w", err)
	}
	if _, err := soapPart.Write(p.Envelope); err != nil {
		return "", fmt.Errorf("failed to write SOAP part: %w", err)
	}

	for _, att := range p.Attachments {
		contentType := att.ContentType
		if contentType == "" {
			contentType = ContentTypeOctetStream
		}
		header := textproto.MIMEHeader{}
		header.Set("Content-Type", contentType)
		header.Set("Content-Transfer-Encoding", "binary")
		header.Set("Content-ID", "<"+normalizeContentID(att.ContentID)+">")

		part, err := writer.CreatePart(header)
		if err != nil {
			return "", fmt.Errorf("failed to create attachment part: %w", err)
		}
		if _, err := part.Write(att.Data); err != nil {
			return "", fmt.Errorf("failed to write attachment %s: %w", att.ContentID, err)
		}
	}

	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	// start references the Content-ID without angle brackets
	params := map[string]string{
		"boundary": writer.Boundary(),
		"type":     envType,
		"start":    p.StartID,
	}
	return mime.FormatMediaType(ContentTypeMultipartRelated, params), nil
}

// Bytes serializes the package and returns the body and its Content-Type.
func (p *Package) Bytes() ([]byte, string, error) {
	var buf bytes.Buffer
	contentType, err := p.Write(&buf)
	if err != nil {
		return nil, "", err
	}
	return buf.Bytes(), contentType, nil
}

// Read parses a multipart/related body. The envelope is the part named by
// the start parameter, or the first part when start is absent.
func Read(r io.Reader, contentType string) (*Package, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to parse content type: %w", err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return nil, fmt.Errorf("%w: %s", ErrNotMultipart, mediaType)
	}
	boundary := params["boundary"]
	if boundary == "" {
		return nil, fmt.Errorf("boundary not found in content type")
	}

	pkg := &Package{
		SOAPVersion: versionOf(params["type"]),
		StartID:     normalizeContentID(params["start"]),
	}

	reader := multipart.NewReader(r, boundary)
	first := true
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read part: %w", err)
		}
		data, err := io.ReadAll(part)
		if err != nil {
			return nil, fmt.Errorf("failed to read part data: %w", err)
		}

		contentID := normalizeContentID(part.Header.Get("Content-ID"))
		isEnvelope := pkg.Envelope == nil &&
			((pkg.StartID == "" && first) || (pkg.StartID != "" && contentID == pkg.StartID))
		first = false

		if isEnvelope {
			pkg.Envelope = data
			if pkg.StartID == "" {
				pkg.StartID = contentID
			}
			continue
		}
		pkg.Attachments = append(pkg.Attachments, &message.Attachment{
			ContentID:   contentID,
			ContentType: mediaTypeOf(part.Header.Get("Content-Type")),
			Data:        data,
		})
	}

	if pkg.Envelope == nil {
		return nil, ErrNoEnvelope
	}
	return pkg, nil
}

// WriteEntity writes the package as a standalone MIME entity: the MIME
// headers, a blank line, then the multipart body.
func (p *Package) WriteEntity(w io.Writer) error {
	body, contentType, err := p.Bytes()
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "MIME-Version: 1.0\r\nContent-Type: %s\r\n\r\n", contentType); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// ReadEntity parses a MIME entity written by WriteEntity.
func ReadEntity(r io.Reader) (*Package, error) {
	tp := textproto.NewReader(bufio.NewReader(r))
	header, err := tp.ReadMIMEHeader()
	if err != nil {
		return nil, fmt.Errorf("failed to read MIME headers: %w", err)
	}
	contentType := header.Get("Content-Type")
	if contentType == "" {
		return nil, fmt.Errorf("%w: no Content-Type header", ErrNotMultipart)
	}
	return Read(tp.R, contentType)
}

// IsEntity reports whether data starts with MIME headers rather than XML.
func IsEntity(data []byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	for _, prefix := range []string{"MIME-Version:", "Content-Type:"} {
		if len(trimmed) >= len(prefix) && strings.EqualFold(string(trimmed[:len(prefix)]), prefix) {
			return true
		}
	}
	return false
}

func versionOf(envType string) message.SOAPVersion {
	if strings.EqualFold(envType, ContentTypeTextXML) {
		return message.SOAP11
	}
	return message.SOAP12
}

func mediaTypeOf(contentType string) string {
	if contentType == "" {
		return ContentTypeOctetStream
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return contentType
	}
	return mediaType
}

// normalizeContentID strips a cid: prefix and angle brackets
func normalizeContentID(contentID string) string {
	contentID = strings.TrimPrefix(contentID, "cid:")
	contentID = strings.TrimPrefix(contentID, "<")
	return strings.TrimSuffix(contentID, ">")
}

// generateBoundary generates a MIME boundary string
func generateBoundary() string {
	return fmt.Sprintf("----=_Part_%s", strings.ReplaceAll(uuid.New().String(), "-", ""))
}
