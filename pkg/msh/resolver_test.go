package msh

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-as4-wssec/pkg/pmode"
)

func TestPModeResolver(t *testing.T) {
	base := &pmode.Security{Signing: &pmode.SigningConfig{KeystoreAlias: "base"}}
	leg2 := &pmode.Security{Signing: &pmode.SigningConfig{KeystoreAlias: "leg2"}}

	pmodes := pmode.NewManager()
	pmodes.Add(&pmode.ProcessingMode{
		ID:       "pm-1",
		Service:  "urn:svc",
		Action:   "Submit",
		Security: base,
		Legs:     []pmode.Leg{{Label: "2", Security: leg2}},
	})
	r := NewPModeResolver(pmodes)
	ctx := context.Background()

	tests := []struct {
		name string
		msg  *OutboundMessage
		want *pmode.Security
	}{
		{"by id", &OutboundMessage{PModeID: "pm-1"}, base},
		{"by id and leg", &OutboundMessage{PModeID: "pm-1", Leg: "2"}, leg2},
		{"unknown leg falls back", &OutboundMessage{PModeID: "pm-1", Leg: "9"}, base},
		{"by service and action", &OutboundMessage{Service: "urn:svc", Action: "Submit"}, base},
		{"no match", &OutboundMessage{Service: "urn:svc", Action: "Other"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.ResolveSecurity(ctx, tt.msg)
			require.NoError(t, err)
			assert.Same(t, tt.want, got)
		})
	}

	_, err := r.ResolveSecurity(ctx, &OutboundMessage{PModeID: "missing"})
	assert.ErrorIs(t, err, ErrPModeNotFound)
}
