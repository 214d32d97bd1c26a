package security

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/beevik/etree"

	"github.com/sirosfoundation/go-as4-wssec/pkg/wssec"
)

// PasswordDigest computes Base64(SHA-1(nonce + created + password)) as
// defined by the UsernameToken profile.
func PasswordDigest(nonce []byte, created, password string) string {
	h := sha1.New()
	h.Write(nonce)
	h.Write([]byte(created))
	h.Write([]byte(password))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// usernameToken builds a wsse:UsernameToken element. Digest passwords
// always carry a nonce and a creation time.
func usernameToken(props *wssec.UsernameTokenProperties, password string, now time.Time) (*etree.Element, error) {
	ut := etree.NewElement("wsse:UsernameToken")
	ut.CreateAttr("wsu:Id", "UsernameToken-"+generateID())
	ut.CreateElement("wsse:Username").SetText(props.Username)

	digest := props.PasswordType != wssec.PasswordTypeText
	withNonce := digest || props.AddNonce
	withCreated := digest || props.AddCreated

	var nonce []byte
	if withNonce {
		nonce = make([]byte, 16)
		if _, err := rand.Read(nonce); err != nil {
			return nil, fmt.Errorf("failed to generate nonce: %w", err)
		}
	}
	created := now.UTC().Format(timestampFormat)

	pw := ut.CreateElement("wsse:Password")
	if digest {
		pw.CreateAttr("Type", wssec.PasswordTypeDigest)
		pw.SetText(PasswordDigest(nonce, created, password))
	} else {
		pw.CreateAttr("Type", wssec.PasswordTypeText)
		pw.SetText(password)
	}

	if withNonce {
		n := ut.CreateElement("wsse:Nonce")
		n.CreateAttr("EncodingType", encodingBase64)
		n.SetText(base64.StdEncoding.EncodeToString(nonce))
	}
	if withCreated {
		ut.CreateElement("wsu:Created").SetText(created)
	}
	return ut, nil
}
