// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package goas4wssec creates the WS-Security headers of outbound AS4 messages.

# Overview

go-as4-wssec is the outbound security step of an AS4 Message Service Handler.
Given a SOAP envelope, its attachments and the security section of the
governing Processing Mode, it produces up to two wsse:Security headers:

  - a header targeted at the "ebms" role carrying only a UsernameToken
  - the default header carrying a UsernameToken, an XML signature and
    XML encryption of the Body and the attachments

Each header is created in a single pass with its own action list. Failure of
one header is reported separately from the other; whether such a failure
aborts the message is controlled by the failure policy.

# Specifications Implemented

  - OASIS AS4 Profile of ebMS 3.0 Version 1.0: https://docs.oasis-open.org/ebxml-msg/ebms/v3.0/profiles/AS4-profile/v1.0/
  - WS-Security 1.1.1: https://docs.oasis-open.org/wss/v1.1/
  - WS-Security Username Token Profile 1.1.1
  - WS-Security SwA Profile 1.1.1
  - XML Signature Syntax and Processing: https://www.w3.org/TR/xmldsig-core1/
  - XML Encryption Syntax and Processing: https://www.w3.org/TR/xmlenc-core1/

# Package Structure

	github.com/sirosfoundation/go-as4-wssec/pkg/message  - SOAP envelope parsing and ebMS user message builders
	github.com/sirosfoundation/go-as4-wssec/pkg/pmode    - Processing Mode security configuration
	github.com/sirosfoundation/go-as4-wssec/pkg/wssec    - Header orchestration, action lists and failure policy
	github.com/sirosfoundation/go-as4-wssec/pkg/security - Username tokens, XML signature and XML encryption
	github.com/sirosfoundation/go-as4-wssec/pkg/msh      - Outbound security handler and worker pipeline
	github.com/sirosfoundation/go-as4-wssec/internal/keystore - File, PKCS#11 and MongoDB backed key providers

# Quick Start

	keys, _ := keystore.NewFileProvider("/etc/as4/keys")
	engine := security.NewEngine(keys)
	handler := msh.NewSecurityHandler(wssec.NewOrchestrator(engine))

	result, err := handler.Process(ctx, &msh.OutboundMessage{
	    MessageID:          "msg-1",
	    Envelope:           envelope,
	    Attachments:        attachments,
	    AddSecurityHeaders: true,
	    Security:           pm.LegSecurity("1"),
	})

The cmd/as4-wssec command wraps the same steps for use from scripts.

# License

BSD-2-Clause License
*/
package goas4wssec
