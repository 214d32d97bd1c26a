// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package security is the crypto engine behind the wssec orchestrator. It
builds WS-Security 1.1.1 headers into etree envelopes.

	engine := security.NewEngine(keys, security.WithLogger(logger))
	orch := wssec.NewOrchestrator(engine)
	result, err := orch.CreateHeaders(ctx, msg, wssec.RequestFromSecurity(sec))

# Username Tokens

PasswordDigest tokens always carry a nonce and a creation time; the digest
is Base64(SHA-1(nonce + created + password)). PasswordText tokens include
them only when configured.

# Signatures

Signing goes through signedxml with Exclusive XML Canonicalization. The
eb:Messaging header and the SOAP Body are always referenced; a username
token in the same header and every SwA attachment are referenced when
present. The signing certificate is referenced by issuer and serial,
BinarySecurityToken (optionally as a PKIPath chain), subject key
identifier or SHA-1 thumbprint.

# Encryption

The Body content and every attachment are encrypted with a fresh AES key
(GCM or CBC) that is wrapped for the recipient with RSA-OAEP:

	http://www.w3.org/2001/04/xmlenc#rsa-oaep-mgf1p
	http://www.w3.org/2009/xmlenc11#rsa-oaep

The digest and MGF parameters are written only for xmlenc11#rsa-oaep and
only when both are configured.

# Key Material

Keys come from a KeyProvider. Signing keys are unlocked with the password
registered for their alias during the current header run.
*/
package security
