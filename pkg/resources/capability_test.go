package resources

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapabilityRoundTrip(t *testing.T) {
	obj := NewCapabilityObject()
	obj.AddCapability(NewPKPResource("*"), AbilityPKPSigning)
	obj.AddCapability(NewActionResource("QmSomeAction"), AbilityLitActionExecution)
	obj.AddAllCapabilitiesForResource(NewAccessControlConditionResource("*"))

	encoded, err := obj.EncodeAsSiweResource()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, SiweResourceScheme))

	decoded, err := DecodeSiweResource(encoded)
	require.NoError(t, err)
	assert.True(t, obj.Equal(decoded))
}

func TestEncodeIsDeterministic(t *testing.T) {
	build := func() *CapabilityObject {
		obj := NewCapabilityObject()
		obj.AddCapability(NewActionResource("*"), AbilityLitActionExecution)
		obj.AddCapability(NewPKPResource("*"), AbilityPKPSigning)
		return obj
	}
	a, err := build().EncodeAsSiweResource()
	require.NoError(t, err)

	// Same grants added in the opposite order must encode identically.
	obj := NewCapabilityObject()
	obj.AddCapability(NewPKPResource("*"), AbilityPKPSigning)
	obj.AddCapability(NewActionResource("*"), AbilityLitActionExecution)
	b, err := obj.EncodeAsSiweResource()
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestVerifyCapabilitiesForResource(t *testing.T) {
	obj := NewCapabilityObject()
	obj.AddCapability(NewPKPResource("*"), AbilityPKPSigning)
	obj.AddCapability(NewActionResource("QmX"), AbilityLitActionExecution)
	obj.AddAllCapabilitiesForResource(NewAccessControlConditionResource("deadbeef"))

	// Wildcard resource id covers any concrete id.
	assert.True(t, obj.VerifyCapabilitiesForResource(NewPKPResource("0x1234"), AbilityPKPSigning))
	// Exact match.
	assert.True(t, obj.VerifyCapabilitiesForResource(NewActionResource("QmX"), AbilityLitActionExecution))
	// Wildcard ability covers any ability on its resource.
	assert.True(t, obj.VerifyCapabilitiesForResource(NewAccessControlConditionResource("deadbeef"), AbilityAccessControlConditionDecryption))

	// Ability not granted.
	assert.False(t, obj.VerifyCapabilitiesForResource(NewPKPResource("0x1234"), AbilityLitActionExecution))
	// Different concrete id without wildcard grant.
	assert.False(t, obj.VerifyCapabilitiesForResource(NewActionResource("QmY"), AbilityLitActionExecution))
}

func TestStatementListsGrants(t *testing.T) {
	obj := NewCapabilityObject()
	assert.Equal(t, "", obj.Statement())

	obj.AddCapability(NewPKPResource("*"), AbilityPKPSigning)
	statement := obj.Statement()
	assert.Contains(t, statement, "I further authorize the stated URI")
	assert.Contains(t, statement, "'pkp-signing' for 'lit-pkp://*'")
}

func TestDecodeRejectsForeignScheme(t *testing.T) {
	_, err := DecodeSiweResource("urn:other:abcd")
	assert.Error(t, err)
}
