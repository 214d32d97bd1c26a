// Package compression implements the AS4 GZIP payload compression feature
package compression

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/beevik/etree"

	"github.com/sirosfoundation/go-as4-wssec/pkg/message"
)

const (
	// CompressionTypeGzip is the standard GZIP compression
	CompressionTypeGzip = "application/gzip"

	propMimeType        = "MimeType"
	propCompressionType = "CompressionType"
)

// ErrNoMessaging is returned when the envelope carries no eb:Messaging
// header to record compression in.
var ErrNoMessaging = errors.New("envelope has no eb:Messaging header")

// Compressor handles payload compression
type Compressor struct {
	compressionLevel int
}

// NewCompressor creates a new compressor with default compression level
func NewCompressor() *Compressor {
	return &Compressor{
		compressionLevel: gzip.DefaultCompression,
	}
}

// NewCompressorWithLevel creates a new compressor with specified compression level
func NewCompressorWithLevel(level int) *Compressor {
	return &Compressor{
		compressionLevel: level,
	}
}

// Compress compresses data using GZIP
func (c *Compressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	writer, err := gzip.NewWriterLevel(&buf, c.compressionLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to write data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close gzip writer: %w", err)
	}

	return buf.Bytes(), nil
}

// Decompress decompresses GZIP data
func (c *Compressor) Decompress(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer reader.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return nil, fmt.Errorf("failed to read compressed data: %w", err)
	}

	return buf.Bytes(), nil
}

// ShouldCompress determines if payload should be compressed based on content type
func ShouldCompress(contentType string) bool {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mediaType
	}
	// Don't compress already compressed formats
	compressedTypes := map[string]bool{
		"application/gzip":   true,
		"application/zip":    true,
		"application/x-gzip": true,
		"image/jpeg":         true,
		"image/png":          true,
		"video/mp4":          true,
		"audio/mp3":          true,
	}

	return !compressedTypes[strings.ToLower(contentType)]
}

// CompressPayloads gzips every compressible attachment referenced from the
// envelope's PayloadInfo and records CompressionType and MimeType part
// properties for it. It must run before the security headers are created,
// since both signature and encryption cover the compressed bytes.
// The Content-IDs of the compressed attachments are returned.
func (c *Compressor) CompressPayloads(doc *etree.Document, attachments []*message.Attachment) ([]string, error) {
	messaging := message.FindMessaging(doc)
	if messaging == nil {
		return nil, ErrNoMessaging
	}
	parts := partInfoByHref(messaging)

	var compressed []string
	for _, att := range attachments {
		pi, ok := parts[att.ContentID]
		if !ok || !ShouldCompress(att.ContentType) || hasProperty(pi, propCompressionType) {
			continue
		}
		data, err := c.Compress(att.Data)
		if err != nil {
			return compressed, fmt.Errorf("attachment %s: %w", att.ContentID, err)
		}

		mimeType := att.ContentType
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		setProperty(pi, propMimeType, mimeType)
		setProperty(pi, propCompressionType, CompressionTypeGzip)

		att.Data = data
		att.ContentType = CompressionTypeGzip
		compressed = append(compressed, att.ContentID)
	}
	return compressed, nil
}

// partInfoByHref indexes eb:PartInfo elements by Content-ID.
func partInfoByHref(messaging *etree.Element) map[string]*etree.Element {
	out := make(map[string]*etree.Element)
	for _, um := range messaging.ChildElements() {
		if um.Tag != "UserMessage" || um.NamespaceURI() != message.NsEbMS {
			continue
		}
		info := message.FindChild(um, message.NsEbMS, "PayloadInfo")
		if info == nil {
			continue
		}
		for _, pi := range info.ChildElements() {
			if pi.Tag != "PartInfo" || pi.NamespaceURI() != message.NsEbMS {
				continue
			}
			href := pi.SelectAttrValue("href", "")
			if strings.HasPrefix(href, "cid:") {
				out[strings.TrimPrefix(href, "cid:")] = pi
			}
		}
	}
	return out
}

func hasProperty(pi *etree.Element, name string) bool {
	props := message.FindChild(pi, message.NsEbMS, "PartProperties")
	if props == nil {
		return false
	}
	for _, p := range props.ChildElements() {
		if p.Tag == "Property" && p.SelectAttrValue("name", "") == name {
			return true
		}
	}
	return false
}

// setProperty sets the named eb:Property of a PartInfo, creating the
// PartProperties container with the PartInfo's prefix when needed.
func setProperty(pi *etree.Element, name, value string) {
	qualify := func(local string) string {
		if pi.Space == "" {
			return local
		}
		return pi.Space + ":" + local
	}
	props := message.FindChild(pi, message.NsEbMS, "PartProperties")
	if props == nil {
		props = pi.CreateElement(qualify("PartProperties"))
	}
	for _, p := range props.ChildElements() {
		if p.Tag == "Property" && p.SelectAttrValue("name", "") == name {
			p.SetText(value)
			return
		}
	}
	p := props.CreateElement(qualify("Property"))
	p.CreateAttr("name", name)
	p.SetText(value)
}
