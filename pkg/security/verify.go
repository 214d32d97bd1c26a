package security

import (
	"crypto/x509"
	"fmt"

	"github.com/leifj/signedxml"
)

// VerifyEnvelope checks the XML signature of a serialized envelope against
// cert. Attachment references carry precomputed digests and are not
// re-checked here.
func VerifyEnvelope(envelopeXML []byte, cert *x509.Certificate) error {
	if cert == nil {
		return fmt.Errorf("certificate is required")
	}
	validator, err := signedxml.NewValidator(string(envelopeXML))
	if err != nil {
		return fmt.Errorf("failed to create validator: %w", err)
	}
	validator.Certificates = append(validator.Certificates, *cert)
	validator.SetReferenceIDAttribute("wsu:Id")

	if _, err := validator.ValidateReferences(); err != nil {
		return fmt.Errorf("signature validation failed: %w", err)
	}
	return nil
}
