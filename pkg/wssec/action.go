package wssec

import (
	"fmt"
	"strings"
)

// Action is one security operation applied while building a header.
type Action string

const (
	ActionUsernameToken Action = "USERNAME_TOKEN"
	ActionSignature     Action = "SIGNATURE"
	ActionEncrypt       Action = "ENCRYPT"
)

// ActionList is the ordered list of actions for one header target.
type ActionList []Action

// String renders the list space-separated, the form the engine consumes.
func (l ActionList) String() string {
	parts := make([]string, len(l))
	for i, a := range l {
		parts[i] = string(a)
	}
	return strings.Join(parts, " ")
}

// Contains reports whether a is in the list.
func (l ActionList) Contains(a Action) bool {
	for _, x := range l {
		if x == a {
			return true
		}
	}
	return false
}

// RequiresUsername reports whether a username must be presented to the
// engine for this list.
func (l ActionList) RequiresUsername() bool {
	return l.Contains(ActionUsernameToken) || l.Contains(ActionSignature)
}

// Sequence returns the requested actions in the fixed AS4 order:
// username token, then signature, then encryption.
func Sequence(usernameToken, signature, encrypt bool) ActionList {
	var l ActionList
	if usernameToken {
		l = append(l, ActionUsernameToken)
	}
	if signature {
		l = append(l, ActionSignature)
	}
	if encrypt {
		l = append(l, ActionEncrypt)
	}
	return l
}

// ParseActions parses a space-separated action string. Unknown or
// repeated action names are rejected.
func ParseActions(s string) (ActionList, error) {
	var l ActionList
	for _, f := range strings.Fields(s) {
		a := Action(f)
		switch a {
		case ActionUsernameToken, ActionSignature, ActionEncrypt:
		default:
			return nil, fmt.Errorf("unknown security action %q", f)
		}
		if l.Contains(a) {
			return nil, fmt.Errorf("duplicate security action %q", f)
		}
		l = append(l, a)
	}
	return l, nil
}
