package selection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostboard/internal/domain/shared/daterange"
)

func d(raw string) daterange.Date { return daterange.MustParse(raw) }

func apply(t *testing.T, m *Machine, kind GestureKind, raw string) Outcome {
	t.Helper()
	out, err := m.Apply(Gesture{Kind: kind, Date: d(raw)})
	require.NoError(t, err)
	return out
}

func dates(raws ...string) []daterange.Date {
	out := make([]daterange.Date, 0, len(raws))
	for _, raw := range raws {
		out = append(out, d(raw))
	}
	return out
}

func TestIdleClickOpensDetailWithoutSelecting(t *testing.T) {
	m := New()
	out := apply(t, m, GestureClick, "2024-07-15")
	assert.Equal(t, EffectOpenDetail, out.Effect)
	assert.Equal(t, ModeIdle, m.Mode())
	assert.Empty(t, m.Committed())
}

func TestDoubleClickClickHoverScenario(t *testing.T) {
	m := New()
	apply(t, m, GestureDoubleClick, "2024-07-15")
	assert.Equal(t, ModeMultiSelect, m.Mode())
	assert.Equal(t, dates("2024-07-15"), m.Committed())

	apply(t, m, GestureClick, "2024-07-16")
	assert.Equal(t, dates("2024-07-15", "2024-07-16"), m.Committed())

	out := apply(t, m, GestureMouseEnter, "2024-07-17")
	assert.Equal(t, EffectSelectionChanged, out.Effect)
	assert.Equal(t, dates("2024-07-15", "2024-07-16", "2024-07-17"), m.Committed())
}

func TestClickOnSelectedDateStopsExtendingOnly(t *testing.T) {
	m := New()
	apply(t, m, GestureDoubleClick, "2024-07-15")
	apply(t, m, GestureClick, "2024-07-15")

	snap := m.Snapshot()
	assert.Equal(t, HoverPaused, snap.Hover)
	assert.Equal(t, dates("2024-07-15"), snap.Committed)

	out := apply(t, m, GestureMouseEnter, "2024-07-20")
	assert.Equal(t, EffectNone, out.Effect)
	assert.Equal(t, dates("2024-07-15"), m.Committed())

	apply(t, m, GestureClick, "2024-07-18")
	assert.Equal(t, HoverExtending, m.Snapshot().Hover)
	apply(t, m, GestureMouseEnter, "2024-07-19")
	assert.Equal(t, dates("2024-07-15", "2024-07-18", "2024-07-19"), m.Committed())
}

func TestDoubleClickRemovesAndEmptiesToIdle(t *testing.T) {
	m := New()
	apply(t, m, GestureDoubleClick, "2024-07-15")
	apply(t, m, GestureClick, "2024-07-16")

	apply(t, m, GestureDoubleClick, "2024-07-16")
	assert.Equal(t, dates("2024-07-15"), m.Committed())
	assert.Equal(t, ModeMultiSelect, m.Mode())

	apply(t, m, GestureDoubleClick, "2024-07-15")
	assert.Equal(t, ModeIdle, m.Mode())
	assert.Empty(t, m.Committed())
	assert.Equal(t, HoverOff, m.Snapshot().Hover)
}

func TestDoubleClickOutsideSelectionStartsFresh(t *testing.T) {
	m := New()
	apply(t, m, GestureDoubleClick, "2024-07-15")
	apply(t, m, GestureClick, "2024-07-16")
	apply(t, m, GestureDoubleClick, "2024-07-20")
	assert.Equal(t, dates("2024-07-20"), m.Committed())
	assert.Equal(t, HoverExtending, m.Snapshot().Hover)
}

func TestHoverNeverRemovesOrDuplicates(t *testing.T) {
	m := New()
	apply(t, m, GestureDoubleClick, "2024-07-15")
	apply(t, m, GestureMouseEnter, "2024-07-16")
	apply(t, m, GestureMouseEnter, "2024-07-15")
	apply(t, m, GestureMouseEnter, "2024-07-16")
	assert.Equal(t, dates("2024-07-15", "2024-07-16"), m.Committed())
}

func TestMouseEnterWhileIdleIsIgnored(t *testing.T) {
	m := New()
	out := apply(t, m, GestureMouseEnter, "2024-07-15")
	assert.Equal(t, EffectNone, out.Effect)
	assert.Empty(t, m.Committed())
}

func TestRangeClickPicksStartAndEnd(t *testing.T) {
	m := New()
	apply(t, m, GestureBeginRange, "2024-07-01")
	assert.Equal(t, ModeRangeClick, m.Mode())
	assert.Empty(t, m.Committed())

	apply(t, m, GestureClick, "2024-07-10")
	apply(t, m, GestureMouseEnter, "2024-07-12")
	assert.Equal(t, dates("2024-07-10", "2024-07-11", "2024-07-12"), m.Committed())

	apply(t, m, GestureClick, "2024-07-08")
	snap := m.Snapshot()
	assert.Equal(t, HoverOff, snap.Hover)
	assert.Equal(t, dates("2024-07-08", "2024-07-09", "2024-07-10"), snap.Committed)
	require.NotNil(t, snap.Anchor)
	assert.Equal(t, d("2024-07-10"), *snap.Anchor)

	apply(t, m, GestureMouseEnter, "2024-07-20")
	assert.Len(t, m.Committed(), 3)

	apply(t, m, GestureClick, "2024-07-25")
	assert.Equal(t, dates("2024-07-25"), m.Committed())
}

func TestRangeClickDoubleClickSwitchesToMultiSelect(t *testing.T) {
	m := New()
	apply(t, m, GestureBeginRange, "2024-07-01")
	apply(t, m, GestureClick, "2024-07-10")
	apply(t, m, GestureDoubleClick, "2024-07-14")
	assert.Equal(t, ModeMultiSelect, m.Mode())
	assert.Equal(t, dates("2024-07-14"), m.Committed())
}

func TestCancelFromAnyState(t *testing.T) {
	m := New()
	assert.False(t, m.Cancel())

	apply(t, m, GestureDoubleClick, "2024-07-15")
	assert.True(t, m.Cancel())
	assert.Equal(t, ModeIdle, m.Mode())
	assert.Empty(t, m.Committed())
}

func TestUnknownGesture(t *testing.T) {
	m := New()
	_, err := m.Apply(Gesture{Kind: "drag", Date: d("2024-07-15")})
	assert.ErrorIs(t, err, ErrUnknownGesture)
}

func TestSnapshotIsDetached(t *testing.T) {
	m := New()
	apply(t, m, GestureDoubleClick, "2024-07-15")
	snap := m.Snapshot()
	apply(t, m, GestureClick, "2024-07-16")
	assert.Len(t, snap.Committed, 1)
	*snap.Anchor = d("2030-01-01")
	assert.Equal(t, d("2024-07-15"), *m.Snapshot().Anchor)
}

func TestReleaseKeepsLaterDates(t *testing.T) {
	m := New()
	apply(t, m, GestureDoubleClick, "2024-07-15")
	taken := m.Committed()
	apply(t, m, GestureClick, "2024-07-20")

	m.Release(taken)
	assert.Equal(t, ModeMultiSelect, m.Mode())
	assert.Equal(t, dates("2024-07-20"), m.Committed())

	m.Release(dates("2024-07-20"))
	assert.Equal(t, ModeIdle, m.Mode())
	assert.Empty(t, m.Committed())
	assert.Equal(t, HoverOff, m.Snapshot().Hover)
}
