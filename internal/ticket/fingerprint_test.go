package ticket

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/rnaget/model"
)

func TestFingerprint(t *testing.T) {
	base := model.FilterSpec{
		FeatureIDs:    []string{"g3", "g1"},
		SampleIDs:     nil,
		MinExpression: model.Float(0.5),
		Units:         model.UnitsTPM,
	}
	fp := Fingerprint("m1", base, model.FormatTSV)
	assert.Len(t, fp, 64)

	same := []model.FilterSpec{
		{FeatureIDs: []string{"g3", "g1", "g3"}, MinExpression: model.Float(0.5), Units: model.UnitsTPM},
		{FeatureIDs: []string{"g3", "g1"}, MinExpression: model.Float(0.50), Units: model.UnitsTPM},
	}
	for _, spec := range same {
		assert.Equal(t, fp, Fingerprint("m1", spec, model.FormatTSV))
	}

	different := map[string]string{
		"order":    Fingerprint("m1", model.FilterSpec{FeatureIDs: []string{"g1", "g3"}, MinExpression: model.Float(0.5), Units: model.UnitsTPM}, model.FormatTSV),
		"matrix":   Fingerprint("m2", base, model.FormatTSV),
		"format":   Fingerprint("m1", base, model.FormatCSV),
		"units":    Fingerprint("m1", model.FilterSpec{FeatureIDs: base.FeatureIDs, MinExpression: base.MinExpression}, model.FormatTSV),
		"min":      Fingerprint("m1", model.FilterSpec{FeatureIDs: base.FeatureIDs, MinExpression: model.Float(0.6), Units: model.UnitsTPM}, model.FormatTSV),
		"as max":   Fingerprint("m1", model.FilterSpec{FeatureIDs: base.FeatureIDs, MaxExpression: model.Float(0.5), Units: model.UnitsTPM}, model.FormatTSV),
		"samples":  Fingerprint("m1", model.FilterSpec{FeatureIDs: base.FeatureIDs, SampleIDs: []string{}, MinExpression: base.MinExpression, Units: model.UnitsTPM}, model.FormatTSV),
		"features": Fingerprint("m1", model.FilterSpec{FeatureIDs: []string{}, MinExpression: base.MinExpression, Units: model.UnitsTPM}, model.FormatTSV),
	}
	for name, other := range different {
		assert.NotEqual(t, fp, other, name)
	}
}

func TestFingerprint_NilVersusEmpty(t *testing.T) {
	all := Fingerprint("m", model.FilterSpec{}, model.FormatTSV)
	none := Fingerprint("m", model.FilterSpec{FeatureIDs: []string{}}, model.FormatTSV)
	assert.NotEqual(t, all, none)
}

func TestFingerprint_FeatureThresholds(t *testing.T) {
	g1 := model.FeatureThreshold{FeatureID: "g1", Min: model.Float(2)}
	g2 := model.FeatureThreshold{FeatureID: "g2", Max: model.Float(5)}
	fp := func(ts ...model.FeatureThreshold) string {
		return Fingerprint("m", model.FilterSpec{FeatureThresholds: ts}, model.FormatTSV)
	}

	assert.Equal(t, fp(g1, g2), fp(g2, g1), "order is irrelevant")
	assert.Equal(t, fp(g1, g2), fp(g1, g2, g1), "repeats are dropped")
	assert.Equal(t, fp(), Fingerprint("m", model.FilterSpec{}, model.FormatTSV))

	assert.NotEqual(t, fp(), fp(g1))
	assert.NotEqual(t, fp(g1), fp(g2))
	assert.NotEqual(t, fp(g1), fp(model.FeatureThreshold{FeatureID: "g1", Max: model.Float(2)}))
	assert.NotEqual(t, fp(g1), fp(model.FeatureThreshold{FeatureID: "g1", Min: model.Float(3)}))
	assert.NotEqual(t, fp(g1), Fingerprint("m", model.FilterSpec{MinExpression: model.Float(2)}, model.FormatTSV))
}

func TestFingerprint_SignedZero(t *testing.T) {
	pos := Fingerprint("m", model.FilterSpec{MinExpression: model.Float(0)}, model.FormatTSV)
	neg := Fingerprint("m", model.FilterSpec{MinExpression: model.Float(math.Copysign(0, -1))}, model.FormatTSV)
	assert.Equal(t, pos, neg)
}

func TestState(t *testing.T) {
	for _, s := range []State{StatePending, StateReady, StateExpired, StateFailed} {
		parsed, err := ParseState(s.String())
		assert.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	_, err := ParseState("bogus")
	assert.Error(t, err)
}
