// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package pmode provides Processing Mode (P-Mode) security configuration for AS4.

A P-Mode describes how messages of one exchange agreement are processed.
This package carries the outbound WS-Security part of it: an optional
username token for the header targeted at the "ebms" role, and an optional
username token, signing configuration and encryption configuration for the
default header.

# P-Mode Files

P-Modes are YAML documents. Environment variables are expanded before
decoding, so passwords can be supplied at deploy time:

	id: order-exchange
	service: urn:example:orders
	action: submit
	profile: edelivery
	security:
	  defaultUsernameToken:
	    username: alice
	    password: ${ALICE_PASSWORD}
	    passwordType: Digest
	    includeNonce: true
	    includeCreated: true
	  signing:
	    keystoreAlias: sender
	    certificatePassword: ${SENDER_KEY_PASSWORD}
	    keyReferenceMethod: BSTReference
	    includeCertificatePath: true
	  encryption:
	    keystoreAlias: receiver
	    keyTransport:
	      algorithm: http://www.w3.org/2009/xmlenc11#rsa-oaep
	      digestAlgorithm: http://www.w3.org/2001/04/xmlenc#sha256
	      mgfAlgorithm: http://www.w3.org/2009/xmlenc11#mgf1sha256

# Security Profiles

When a profile is set, unset algorithms are filled in at load time:

  - domibus: RSA-SHA256, AES-128-GCM, RSA-OAEP (mgf1p)
  - edelivery: RSA-SHA256, AES-128-GCM, RSA-OAEP with SHA-256 and MGF1-SHA256
  - custom: RSA-SHA256 and AES-128-GCM only where nothing is configured

P-Modes without a profile are used verbatim.

# Manager

Manager is a concurrency-safe registry of P-Modes keyed by ID, with lookup
by service and action and bulk loading from a directory.
*/
package pmode
