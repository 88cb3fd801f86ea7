package join

import (
	"fmt"

	"github.com/ekaya-inc/ekaya-merge/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-merge/pkg/models"
)

// Step is one right-hand input of a fold together with the spec that joins it.
type Step struct {
	Right *models.Table
	Spec  models.JoinSpec
}

// FoldResult is the accumulated table plus the input sizes of the last step.
type FoldResult struct {
	Table      *models.Table
	TotalLeft  int
	TotalRight int
}

// Fold joins steps left to right: step 0 joins first with steps[0].Right, every later
// step joins the accumulated result with its own right table. An empty first table
// returns immediately without running any join. Later steps always run, since a RIGHT or
// FULL join can produce rows from an empty accumulated input.
func (e *Engine) Fold(first *models.Table, steps []Step) (*FoldResult, error) {
	if first == nil {
		return nil, apperrors.InvalidArgument("fold requires a first table")
	}
	if len(steps) == 0 {
		return nil, apperrors.InvalidArgument("at least one join is required")
	}

	current := first
	result := &FoldResult{Table: current}
	for i, step := range steps {
		result.TotalLeft = len(current.Rows)
		if step.Right != nil {
			result.TotalRight = len(step.Right.Rows)
		}
		if i == 0 && len(current.Rows) == 0 {
			break
		}

		joined, err := e.Join(current, step.Right, step.Spec)
		if err != nil {
			return nil, fmt.Errorf("join %d: %w", i, err)
		}
		current = joined
		result.Table = current
	}
	return result, nil
}
