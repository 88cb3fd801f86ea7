package join

import (
	"fmt"

	"github.com/ekaya-inc/ekaya-merge/pkg/models"
)

// merger builds output rows for one join step. Column plans are computed once per step.
type merger struct {
	padding PaddingPolicy

	// leftCols/rightCols, when non-nil, replace each row's own column list.
	leftCols  []string
	rightCols []string

	// leftPad/rightPad are written as nil when that side is absent.
	leftPad  []string
	rightPad []string
	leftPadSet map[string]struct{}

	// rightOut maps each planned right column to its output name. It is nil when a side
	// has no column plan; names are then resolved against each row.
	rightOut map[string]string

	leftKey   string
	rightKey  string
	rightName string
}

func (e *Engine) newMerger(left, right *models.Table, spec models.JoinSpec) *merger {
	m := &merger{
		padding:   e.padding,
		leftKey:   spec.LeftKey,
		rightKey:  spec.RightKey,
		rightName: spec.RightTableAlias,
	}
	if m.rightName == "" {
		m.rightName = right.Name
	}

	leftSel := spec.LeftSelection()
	rightSel := spec.RightSelection()

	switch e.padding {
	case PadSelected:
		m.leftCols, m.leftPad = leftSel, leftSel
		m.rightCols, m.rightPad = rightSel, rightSel
	default:
		m.leftCols = leftSel
		if m.leftCols == nil {
			m.leftCols = left.ObservedColumns()
		}
		m.rightCols = rightSel
		if m.rightCols == nil {
			m.rightCols = right.ObservedColumns()
		}
		m.leftPad, m.rightPad = m.leftCols, m.rightCols
	}

	m.leftPadSet = make(map[string]struct{}, len(m.leftPad))
	for _, col := range m.leftPad {
		m.leftPadSet[col] = struct{}{}
	}

	if m.leftCols != nil && m.rightCols != nil {
		taken := make(map[string]struct{}, len(m.leftCols)+len(m.rightCols))
		for _, col := range m.leftCols {
			taken[col] = struct{}{}
		}
		m.rightOut = make(map[string]string, len(m.rightCols))
		for _, col := range m.rightCols {
			name := m.renamed(col, func(n string) bool {
				_, ok := taken[n]
				return ok
			})
			taken[name] = struct{}{}
			m.rightOut[col] = name
		}
	}
	return m
}

// merge combines one left row and one right row; either may be nil for an outer-join row.
// Left columns are written first under their own names. A right column whose name is
// already taken is renamed "<rightName>_<column>", with a numeric suffix if that is
// taken as well. With column plans the names are fixed per step, so an unmatched right
// row lands in the same columns as a matched one; its left key column carries the right
// key value.
func (m *merger) merge(left, right *models.Row) models.Row {
	out := models.NewRow(len(m.leftPad) + len(m.rightPad))

	if left != nil {
		for _, col := range m.columnsOf(left, m.leftCols) {
			v, _ := left.Get(col)
			out.Set(col, v)
		}
	} else {
		for _, col := range m.leftPad {
			out.Set(col, nil)
		}
	}

	if right != nil {
		for _, col := range m.columnsOf(right, m.rightCols) {
			v, _ := right.Get(col)
			out.Set(m.rightColumnName(&out, col), v)
		}
		if left == nil {
			if _, padded := m.leftPadSet[m.leftKey]; padded {
				if v, ok := right.Get(m.rightKey); ok {
					out.Set(m.leftKey, v)
				}
			}
		}
	} else {
		for _, col := range m.rightPad {
			out.Set(m.rightColumnName(&out, col), nil)
		}
	}

	return out
}

func (m *merger) columnsOf(row *models.Row, planned []string) []string {
	if planned != nil {
		return planned
	}
	return row.Columns()
}

func (m *merger) rightColumnName(out *models.Row, col string) string {
	if name, ok := m.rightOut[col]; ok {
		return name
	}
	return m.renamed(col, out.Has)
}

func (m *merger) renamed(col string, taken func(string) bool) string {
	if !taken(col) {
		return col
	}
	name := m.rightName + "_" + col
	for i := 2; taken(name); i++ {
		name = fmt.Sprintf("%s_%s_%d", m.rightName, col, i)
	}
	return name
}
