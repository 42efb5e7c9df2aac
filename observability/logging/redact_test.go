package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMaskField(t *testing.T) {
	masked := MaskField("email", "buyer@example.com")
	require.Equal(t, RedactedValue, masked.Value.String())

	allowed := MaskField("category", "laptops")
	require.Equal(t, "laptops", allowed.Value.String())

	empty := MaskField("email", "")
	require.Equal(t, "", empty.Value.String())
}

func TestMaskValue(t *testing.T) {
	require.Equal(t, RedactedValue, MaskValue("secret"))
	require.Equal(t, "", MaskValue(""))
	require.Equal(t, "  ", MaskValue("  "))
}

func TestIsAllowlistedNormalizesKeys(t *testing.T) {
	require.True(t, IsAllowlisted(" Category "))
	require.False(t, IsAllowlisted("deliveryAddress"))
}
