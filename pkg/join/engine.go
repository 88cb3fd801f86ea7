// Package join executes pairwise hash joins over resolved tables.
//
// The engine is pure: it reads its inputs and builds a new table, never mutating rows it
// was given. Multi-way merges are a left-to-right fold of pairwise joins, see Fold.
package join

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"github.com/ekaya-inc/ekaya-merge/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-merge/pkg/models"
)

// PaddingPolicy decides which columns are written as null for the absent side of an
// outer-join row.
type PaddingPolicy string

const (
	// PadObserved pads with the explicit selection if one exists, otherwise with every column
	// observed on that side's table. Every row of one result carries the same columns.
	PadObserved PaddingPolicy = "observed"
	// PadSelected pads only when an explicit selection list exists. Rows of one result may
	// end up with different column sets.
	PadSelected PaddingPolicy = "selected"
)

// ParsePaddingPolicy converts a config value into a policy. Empty selects PadObserved.
func ParsePaddingPolicy(s string) (PaddingPolicy, error) {
	switch PaddingPolicy(s) {
	case "", PadObserved:
		return PadObserved, nil
	case PadSelected:
		return PadSelected, nil
	default:
		return "", fmt.Errorf("unknown null padding policy %q", s)
	}
}

// Options configures an Engine.
type Options struct {
	Padding PaddingPolicy
}

// Engine runs joins with a fixed column policy.
type Engine struct {
	padding PaddingPolicy
}

// NewEngine creates an engine. A zero Options value selects PadObserved.
func NewEngine(opts Options) *Engine {
	padding := opts.Padding
	if padding == "" {
		padding = PadObserved
	}
	return &Engine{padding: padding}
}

// Padding returns the engine's null padding policy.
func (e *Engine) Padding() PaddingPolicy {
	return e.padding
}

// Join combines left and right on spec.LeftKey = spec.RightKey.
//
// Right rows are indexed into a multi-map keyed by their join value, duplicates preserved.
// Each left row fans out to every right row sharing its key. Right rows are tracked by
// their position in right.Rows, so two distinct rows with equal keys are individually
// accounted for when RIGHT and FULL joins emit the unmatched remainder.
func (e *Engine) Join(left, right *models.Table, spec models.JoinSpec) (*models.Table, error) {
	if err := validateSpec(left, right, spec); err != nil {
		return nil, err
	}

	index := make(map[any][]int, len(right.Rows))
	for i, row := range right.Rows {
		v, present := row.Get(spec.RightKey)
		key, ok := keyOf(v, present)
		if !ok {
			continue
		}
		index[key] = append(index[key], i)
	}

	m := e.newMerger(left, right, spec)
	matched := bitset.New(uint(len(right.Rows)))
	out := make([]models.Row, 0, len(left.Rows))

	for i := range left.Rows {
		leftRow := &left.Rows[i]
		v, present := leftRow.Get(spec.LeftKey)
		key, ok := keyOf(v, present)

		var partners []int
		if ok {
			partners = index[key]
		}

		if len(partners) > 0 {
			for _, idx := range partners {
				matched.Set(uint(idx))
				out = append(out, m.merge(leftRow, &right.Rows[idx]))
			}
			continue
		}

		if spec.JoinType.KeepsUnmatchedLeft() {
			out = append(out, m.merge(leftRow, nil))
		}
	}

	if spec.JoinType.KeepsUnmatchedRight() {
		for i := range right.Rows {
			if matched.Test(uint(i)) {
				continue
			}
			out = append(out, m.merge(nil, &right.Rows[i]))
		}
	}

	return &models.Table{
		Name:   models.MergedTableName,
		Source: models.TableSourceMerged,
		Rows:   out,
	}, nil
}

func validateSpec(left, right *models.Table, spec models.JoinSpec) error {
	if left == nil || right == nil {
		return apperrors.InvalidArgument("join requires both a left and a right table")
	}
	switch spec.JoinType {
	case models.JoinInner, models.JoinLeft, models.JoinRight, models.JoinFull:
	default:
		return apperrors.InvalidArgument("unsupported join type %q", spec.JoinType)
	}
	if spec.LeftKey == "" {
		return apperrors.InvalidArgument("left key is required")
	}
	if spec.RightKey == "" {
		return apperrors.InvalidArgument("right key is required")
	}
	return nil
}
