// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package mime handles MIME multipart packaging for AS4.

This package implements SOAP with Attachments (SwA) packaging for AS4
messages with binary payloads.

# MIME Structure

AS4 messages with attachments use multipart/related:

	Content-Type: multipart/related;
	    type="application/soap+xml";
	    start="<soap-envelope>";
	    boundary="----=_Part_..."

	------=_Part_...
	Content-Type: application/soap+xml
	Content-ID: <soap-envelope>

	[SOAP Envelope with encrypted content]

	------=_Part_...
	Content-Type: application/octet-stream
	Content-ID: <payload-1>
	Content-Transfer-Encoding: binary

	[Binary payload data]

# Creating Multipart Messages

Package a secured envelope with its (possibly encrypted) attachments:

	pkg := mime.NewPackage(message.SOAP12, envelope, attachments)
	body, contentType, err := pkg.Bytes()

WriteEntity prefixes the body with its MIME headers so the package can
be stored in a single file.

# Parsing Multipart Messages

	pkg, err := mime.Read(body, contentType)
	envelope, attachments := pkg.Envelope, pkg.Attachments

# Content IDs

Attachments are referenced by Content-ID (CID):

	cid:payload-1

The CID scheme lets signature references and xenc:CipherReference
elements in the security header point at MIME parts. Content-IDs are
held without brackets in message.Attachment and bracketed on the wire.

# References

  - SOAP with Attachments: https://www.w3.org/TR/SOAP-attachments
  - MIME Multipart: https://datatracker.ietf.org/doc/html/rfc2046
*/
package mime
