package index

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

// Axis names the dimension a label belongs to.
type Axis string

const (
	AxisFeature Axis = "feature"
	AxisSample  Axis = "sample"
)

var (
	// ErrUnknownLabel is matched by every *UnknownLabelError.
	ErrUnknownLabel = errors.New("index: unknown label")
	// ErrDuplicateLabel is returned when a label sequence is not unique.
	ErrDuplicateLabel = errors.New("index: duplicate label")
	// ErrTooManyLabels is returned when an axis exceeds the addressable size.
	ErrTooManyLabels = errors.New("index: too many labels")
)

// UnknownLabelError reports the first requested ID missing from an axis.
type UnknownLabelError struct {
	Axis Axis
	ID   string
}

func (e *UnknownLabelError) Error() string {
	return fmt.Sprintf("index: unknown %s %q", e.Axis, e.ID)
}

// Is makes errors.Is(err, ErrUnknownLabel) hold.
func (e *UnknownLabelError) Is(target error) bool {
	return target == ErrUnknownLabel
}

// Labels is an ordered, unique label sequence with lazy lookup.
// It is safe for concurrent use.
type Labels struct {
	axis   Axis
	labels []string

	once sync.Once
	byID map[string]int
}

// New wraps labels. The slice is retained and must not be modified.
func New(axis Axis, labels []string) *Labels {
	return &Labels{axis: axis, labels: labels}
}

// Validate checks that labels are unique, non-empty and addressable.
func Validate(axis Axis, labels []string) error {
	if uint64(len(labels)) > math.MaxUint32 {
		return fmt.Errorf("%w: %d %ss", ErrTooManyLabels, len(labels), axis)
	}
	seen := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		if l == "" {
			return fmt.Errorf("index: empty %s label", axis)
		}
		if _, ok := seen[l]; ok {
			return fmt.Errorf("%w: %s %q", ErrDuplicateLabel, axis, l)
		}
		seen[l] = struct{}{}
	}
	return nil
}

// Axis returns the axis the labels belong to.
func (l *Labels) Axis() Axis { return l.axis }

// Len returns the number of labels.
func (l *Labels) Len() int { return len(l.labels) }

// At returns the label at offset i.
func (l *Labels) At(i int) string { return l.labels[i] }

// Slice returns the labels in file order. The result must not be modified.
func (l *Labels) Slice() []string { return l.labels }

func (l *Labels) build() {
	l.byID = make(map[string]int, len(l.labels))
	for i, id := range l.labels {
		l.byID[id] = i
	}
}

// Lookup returns the offset of id.
func (l *Labels) Lookup(id string) (int, bool) {
	l.once.Do(l.build)
	i, ok := l.byID[id]
	return i, ok
}

// All returns every offset in file order.
func (l *Labels) All() []int {
	out := make([]int, len(l.labels))
	for i := range out {
		out[i] = i
	}
	return out
}

// Resolve maps ids to offsets in the caller's order.
//
// A nil ids selects every label in file order; an empty non-nil ids selects
// none. Repeated IDs keep their first occurrence. The first unknown ID fails
// the whole resolution with an *UnknownLabelError.
func (l *Labels) Resolve(ids []string) ([]int, error) {
	if ids == nil {
		return l.All(), nil
	}

	out := make([]int, 0, len(ids))
	seen := roaring.New()
	for _, id := range ids {
		i, ok := l.Lookup(id)
		if !ok {
			return nil, &UnknownLabelError{Axis: l.axis, ID: id}
		}
		if seen.CheckedAdd(uint32(i)) {
			out = append(out, i)
		}
	}
	return out, nil
}
