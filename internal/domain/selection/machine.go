// Package selection implements the date-selection state machine of the calendar grid.
//
// The machine is a single tagged state (Mode plus Hover sub-state) instead of independent
// flags, so combinations such as "extending while idle" cannot be represented.
package selection

import (
	"errors"
	"sort"

	"hostboard/internal/domain/shared/daterange"
)

var ErrUnknownGesture = errors.New("selection: unknown gesture")

type Mode string

const (
	ModeIdle        Mode = "idle"
	ModeRangeClick  Mode = "range_click"
	ModeMultiSelect Mode = "multi_select"
)

// Hover is the sub-state of a non-idle mode. Paused means hover mode is still enabled
// but pointer traversal no longer adds dates.
type Hover string

const (
	HoverOff       Hover = "off"
	HoverPaused    Hover = "paused"
	HoverExtending Hover = "extending"
)

type GestureKind string

const (
	GestureClick       GestureKind = "click"
	GestureDoubleClick GestureKind = "double_click"
	GestureMouseEnter  GestureKind = "mouse_enter"
	GestureBeginRange  GestureKind = "begin_range"
)

func (k GestureKind) Valid() bool {
	switch k {
	case GestureClick, GestureDoubleClick, GestureMouseEnter, GestureBeginRange:
		return true
	default:
		return false
	}
}

type Gesture struct {
	Kind GestureKind
	Date daterange.Date
}

type Effect string

const (
	EffectNone             Effect = "none"
	EffectOpenDetail       Effect = "open_detail"
	EffectSelectionChanged Effect = "selection_changed"
)

// Outcome tells the caller what a gesture did.
type Outcome struct {
	Effect Effect         `json:"effect"`
	Date   daterange.Date `json:"date"`
}

// State is an immutable snapshot of the machine.
type State struct {
	Mode      Mode             `json:"mode"`
	Hover     Hover            `json:"hover"`
	Anchor    *daterange.Date  `json:"anchor"`
	HoverEnd  *daterange.Date  `json:"hoverEnd"`
	Committed []daterange.Date `json:"committed"`
}

// Machine is not safe for concurrent use; its owner serializes access.
type Machine struct {
	mode      Mode
	hover     Hover
	anchor    *daterange.Date
	hoverEnd  *daterange.Date
	committed map[daterange.Date]struct{}
}

func New() *Machine {
	m := &Machine{}
	m.Reset()
	return m
}

// Reset returns to Idle with nothing selected.
func (m *Machine) Reset() {
	m.mode = ModeIdle
	m.hover = HoverOff
	m.anchor = nil
	m.hoverEnd = nil
	m.committed = make(map[daterange.Date]struct{})
}

// Cancel clears the selection. It reports whether anything changed.
func (m *Machine) Cancel() bool {
	changed := m.mode != ModeIdle || len(m.committed) > 0
	m.Reset()
	return changed
}

// Release drops dates from the selection and returns to Idle once nothing is left. Dates
// selected after the released ones were taken stay selected.
func (m *Machine) Release(dates []daterange.Date) {
	for _, d := range dates {
		delete(m.committed, d)
	}
	if len(m.committed) == 0 {
		m.Reset()
	}
}

func (m *Machine) Mode() Mode { return m.mode }

func (m *Machine) Contains(d daterange.Date) bool {
	_, ok := m.committed[d]
	return ok
}

// Committed returns the selected dates in calendar order.
func (m *Machine) Committed() []daterange.Date {
	out := make([]daterange.Date, 0, len(m.committed))
	for d := range m.committed {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func (m *Machine) Snapshot() State {
	return State{
		Mode:      m.mode,
		Hover:     m.hover,
		Anchor:    copyDate(m.anchor),
		HoverEnd:  copyDate(m.hoverEnd),
		Committed: m.Committed(),
	}
}

// Apply runs one gesture through the transition table.
func (m *Machine) Apply(g Gesture) (Outcome, error) {
	switch g.Kind {
	case GestureBeginRange:
		m.Reset()
		m.mode = ModeRangeClick
		return changed(g.Date), nil
	case GestureClick:
		return m.click(g.Date), nil
	case GestureDoubleClick:
		return m.doubleClick(g.Date), nil
	case GestureMouseEnter:
		return m.mouseEnter(g.Date), nil
	default:
		return Outcome{Effect: EffectNone, Date: g.Date}, ErrUnknownGesture
	}
}

func (m *Machine) click(d daterange.Date) Outcome {
	switch m.mode {
	case ModeMultiSelect:
		if m.Contains(d) {
			if m.hover == HoverExtending {
				m.hover = HoverPaused
				return changed(d)
			}
			return unchanged(d)
		}
		m.add(d)
		m.hover = HoverExtending
		return changed(d)
	case ModeRangeClick:
		if m.anchor == nil || m.hover != HoverExtending {
			m.startRange(d)
			return changed(d)
		}
		m.committed = make(map[daterange.Date]struct{})
		m.addSpan(*m.anchor, d)
		m.hoverEnd = &d
		m.hover = HoverOff
		return changed(d)
	default:
		return Outcome{Effect: EffectOpenDetail, Date: d}
	}
}

func (m *Machine) doubleClick(d daterange.Date) Outcome {
	if m.mode == ModeMultiSelect && m.Contains(d) {
		delete(m.committed, d)
		if len(m.committed) == 0 {
			m.Reset()
		}
		return changed(d)
	}
	m.Reset()
	m.mode = ModeMultiSelect
	m.hover = HoverExtending
	m.anchor = &d
	m.add(d)
	return changed(d)
}

func (m *Machine) mouseEnter(d daterange.Date) Outcome {
	if m.hover != HoverExtending {
		return unchanged(d)
	}
	before := len(m.committed)
	switch m.mode {
	case ModeMultiSelect:
		m.add(d)
	case ModeRangeClick:
		m.addSpan(*m.anchor, d)
	}
	m.hoverEnd = &d
	if len(m.committed) == before {
		return unchanged(d)
	}
	return changed(d)
}

func (m *Machine) startRange(d daterange.Date) {
	m.committed = make(map[daterange.Date]struct{})
	m.anchor = &d
	m.hoverEnd = &d
	m.hover = HoverExtending
	m.add(d)
}

func (m *Machine) add(d daterange.Date) {
	m.committed[d] = struct{}{}
}

func (m *Machine) addSpan(a, b daterange.Date) {
	for _, d := range daterange.Span(a, b).Days() {
		m.add(d)
	}
}

func changed(d daterange.Date) Outcome   { return Outcome{Effect: EffectSelectionChanged, Date: d} }
func unchanged(d daterange.Date) Outcome { return Outcome{Effect: EffectNone, Date: d} }

func copyDate(d *daterange.Date) *daterange.Date {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}
