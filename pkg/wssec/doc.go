// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package wssec decides which WS-Security headers an outbound AS4 message
gets and drives their construction.

A message can carry two independent security headers: one addressed to the
"ebms" role that only holds a username token, and the default header that
holds a username token, a signature and encryption, each optional. The
Orchestrator resolves the P-Mode configuration of every requested action
into typed properties, orders the actions (USERNAME_TOKEN, SIGNATURE,
ENCRYPT) and hands each target to an Engine exactly once.

# Credentials

Every CreateHeaders call uses a fresh CredentialStore. Username token
passwords and signing key passwords are registered under the username or
keystore alias and the store is passed to the engine as its password
callback. Stores are never shared between messages.

# Coverage

Signatures cover eb:Messaging and the SOAP Body, plus any username tokens
and attachments present. Encryption covers the SOAP Body and any
attachments, never the ebMS header.

# Failures

Configuration errors are detected before the engine is called and fail
only the affected target. With FailClosed, the default, CreateHeaders
returns a *HeaderError when any target failed; with FailOpen failures are
logged and the message continues.

	orch := wssec.NewOrchestrator(engine, wssec.WithLogger(logger))
	result, err := orch.CreateHeaders(ctx, &wssec.Message{
	    Envelope:    doc,
	    SOAPVersion: message.SOAP12,
	}, wssec.RequestFromSecurity(pm.Security))
*/
package wssec
