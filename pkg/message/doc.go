// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package message provides the ebMS3 envelope model and the document bridge
used by the WS-Security layer.

# Building Messages

Use the functional-option builder to construct a UserMessage and render it
as a SOAP envelope:

	builder := message.NewUserMessage(
	    message.WithFrom("sender", "urn:oasis:names:tc:ebcore:partyid-type:unregistered"),
	    message.WithTo("receiver", "urn:oasis:names:tc:ebcore:partyid-type:unregistered"),
	    message.WithService("http://example.com/service"),
	    message.WithAction("processDocument"),
	)
	builder.AddPayload(data, "application/xml")
	doc, attachments, err := builder.BuildEnvelope(message.SOAP12)

# Document Bridge

ParseEnvelope and SerializeEnvelope convert between wire bytes and the
etree document that security headers are inserted into. Both SOAP 1.1 and
SOAP 1.2 envelopes are accepted; the detected version selects the Body
namespace covered by signatures and encryption.

# References

  - OASIS ebMS 3.0 Core: https://docs.oasis-open.org/ebxml-msg/ebms/v3.0/core/os/
  - AS4 Profile: https://docs.oasis-open.org/ebxml-msg/ebms/v3.0/profiles/AS4-profile/v1.0/
*/
package message
