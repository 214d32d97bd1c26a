package wssec

import (
	"fmt"
	"sort"
	"strings"
)

// PasswordSource resolves the secret registered for an identity, either a
// username or a keystore alias.
type PasswordSource interface {
	Password(identity string) (string, bool)
}

// CredentialStore maps identities to secrets for exactly one outbound
// message. It is filled while actions are resolved and handed to the
// engine as its password callback.
//
// A store must never be shared between messages. It has no locking since
// a message is processed by a single goroutine.
type CredentialStore struct {
	secrets map[string]string
}

// NewCredentialStore returns an empty store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{secrets: make(map[string]string)}
}

// Register records the secret for identity. A second registration of the
// same identity replaces the first.
func (s *CredentialStore) Register(identity, secret string) {
	s.secrets[identity] = secret
}

// Password implements PasswordSource.
func (s *CredentialStore) Password(identity string) (string, bool) {
	secret, ok := s.secrets[identity]
	return secret, ok
}

// Len returns the number of registered identities.
func (s *CredentialStore) Len() int {
	return len(s.secrets)
}

// Identities returns the registered identities in sorted order.
func (s *CredentialStore) Identities() []string {
	ids := make([]string, 0, len(s.secrets))
	for id := range s.secrets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns a copy of the identity to secret mapping.
func (s *CredentialStore) Snapshot() map[string]string {
	out := make(map[string]string, len(s.secrets))
	for k, v := range s.secrets {
		out[k] = v
	}
	return out
}

// String lists identities only; secrets are never formatted.
func (s *CredentialStore) String() string {
	return fmt.Sprintf("CredentialStore{%s}", strings.Join(s.Identities(), ", "))
}
