package index

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabels_Resolve(t *testing.T) {
	l := New(AxisFeature, []string{"g1", "g2", "g3"})

	tests := []struct {
		name string
		ids  []string
		want []int
	}{
		{"nil selects all", nil, []int{0, 1, 2}},
		{"empty selects none", []string{}, []int{}},
		{"request order", []string{"g3", "g1"}, []int{2, 0}},
		{"duplicates keep first", []string{"g2", "g1", "g2", "g1"}, []int{1, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.Resolve(tt.ids)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLabels_ResolveUnknown(t *testing.T) {
	l := New(AxisSample, []string{"s1", "s2"})

	_, err := l.Resolve([]string{"s1", "nope", "also-nope"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownLabel))

	var ule *UnknownLabelError
	require.ErrorAs(t, err, &ule)
	assert.Equal(t, AxisSample, ule.Axis)
	assert.Equal(t, "nope", ule.ID)
}

func TestLabels_Lookup(t *testing.T) {
	l := New(AxisFeature, []string{"a", "b"})
	i, ok := l.Lookup("b")
	assert.True(t, ok)
	assert.Equal(t, 1, i)
	_, ok = l.Lookup("c")
	assert.False(t, ok)
	assert.Equal(t, 2, l.Len())
	assert.Equal(t, "a", l.At(0))
}

func TestLabels_ConcurrentBuild(t *testing.T) {
	ids := make([]string, 1000)
	for i := range ids {
		ids[i] = fmt.Sprintf("g%d", i)
	}
	require.NoError(t, Validate(AxisFeature, ids))
	l := New(AxisFeature, ids)

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := g; i < len(ids); i += 8 {
				off, ok := l.Lookup(ids[i])
				assert.True(t, ok)
				assert.Equal(t, i, off)
			}
		}()
	}
	wg.Wait()
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(AxisSample, []string{"s1", "s2"}))
	assert.ErrorIs(t, Validate(AxisSample, []string{"s1", "s1"}), ErrDuplicateLabel)
	assert.Error(t, Validate(AxisSample, []string{""}))
}
