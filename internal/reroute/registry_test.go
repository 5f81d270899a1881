package reroute

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/frr/internal/core"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		want Policy
	}{
		{NameLFA, &AlwaysRerouteNew{}},
		{NameRerouteHead, &RerouteHead{}},
		{NameRerouteFlow, &PerFlowReroute{}},
		{NameSafeTail, &SafeRerouteTail{}},
		{NameNone, &Passthrough{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.name, Options{})
			require.NoError(t, err)
			assert.IsType(t, tt.want, p)
			assert.Equal(t, tt.name, p.Name())
		})
	}
}

func TestNewUnknown(t *testing.T) {
	p, err := New("ecmp", Options{})
	assert.Nil(t, p)
	assert.ErrorIs(t, err, core.ErrUnknownPolicy)
	assert.Contains(t, err.Error(), "ecmp")
}

func TestNamesAreDescribed(t *testing.T) {
	names := Names()
	assert.Equal(t, []string{NameLFA, NameRerouteHead, NameRerouteFlow, NameSafeTail, NameNone}, names)
	for _, n := range names {
		desc, ok := Describe(n)
		assert.True(t, ok, n)
		assert.NotEmpty(t, desc, n)
	}
	_, ok := Describe("ecmp")
	assert.False(t, ok)
}

func TestPerFlowMaxDivertedDefault(t *testing.T) {
	p := NewPerFlowReroute(Options{MaxDiverted: -1})
	assert.Equal(t, 1, p.maxDiverted)
}
