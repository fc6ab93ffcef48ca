package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUnits(t *testing.T) {
	tests := []struct {
		in   string
		want Units
	}{
		{"", UnitsUnspecified},
		{"TPM", UnitsTPM},
		{" tpm ", UnitsTPM},
		{"est_counts", UnitsRawCount},
		{"NumReads", UnitsRawCount},
		{"raw-count", UnitsRawCount},
		{"FPKM", UnitsFPKM},
		{"rpkm", UnitsRPKM},
		{"CPM", UnitsCPM},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseUnits(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseUnits("furlongs")
	assert.Error(t, err)
}

func TestUnitsText(t *testing.T) {
	for u := UnitsUnspecified; u <= UnitsCPM; u++ {
		assert.True(t, u.Valid())
		text, err := u.MarshalText()
		require.NoError(t, err)

		var back Units
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, u, back)
	}

	bad := Units(42)
	assert.False(t, bad.Valid())
	assert.Equal(t, "Units(42)", bad.String())
}

func TestParseFormat(t *testing.T) {
	for _, f := range Formats() {
		got, err := ParseFormat(string(f))
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}

	got, err := ParseFormat("Dense")
	require.NoError(t, err)
	assert.Equal(t, FormatTSV, got)

	got, err = ParseFormat("ndjson")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, got)

	_, err = ParseFormat("xlsx")
	assert.Error(t, err)
	assert.False(t, Format("xlsx").Valid())
}

func TestFloat(t *testing.T) {
	p := Float(2.5)
	require.NotNil(t, p)
	assert.Equal(t, 2.5, *p)
}

func TestParseThresholdArray(t *testing.T) {
	got, err := ParseThresholdArray("g1,2.5, g2 ,0", false)
	require.NoError(t, err)
	assert.Equal(t, []FeatureThreshold{
		{FeatureID: "g1", Min: Float(2.5)},
		{FeatureID: "g2", Min: Float(0)},
	}, got)

	got, err = ParseThresholdArray("g3,10", true)
	require.NoError(t, err)
	assert.Equal(t, []FeatureThreshold{{FeatureID: "g3", Max: Float(10)}}, got)

	got, err = ParseThresholdArray("  ", true)
	require.NoError(t, err)
	assert.Nil(t, got)

	for _, bad := range []string{"g1", "g1,2,g2", "g1,high", ",3"} {
		_, err := ParseThresholdArray(bad, false)
		assert.Error(t, err, bad)
	}
}
