package models

import (
	"fmt"
	"strings"
)

// JoinType selects which unmatched rows a join keeps.
type JoinType string

const (
	JoinInner JoinType = "INNER"
	JoinLeft  JoinType = "LEFT"
	JoinRight JoinType = "RIGHT"
	JoinFull  JoinType = "FULL"
)

// ParseJoinType accepts the four join types case-insensitively, with or without "OUTER"/"JOIN".
func ParseJoinType(s string) (JoinType, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	normalized = strings.TrimSuffix(normalized, " JOIN")
	normalized = strings.TrimSuffix(normalized, " OUTER")
	switch JoinType(normalized) {
	case JoinInner, JoinLeft, JoinRight, JoinFull:
		return JoinType(normalized), nil
	default:
		return "", fmt.Errorf("unsupported join type %q", s)
	}
}

// KeepsUnmatchedLeft reports whether left rows without a partner are emitted.
func (t JoinType) KeepsUnmatchedLeft() bool {
	return t == JoinLeft || t == JoinFull
}

// KeepsUnmatchedRight reports whether right rows without a partner are emitted.
func (t JoinType) KeepsUnmatchedRight() bool {
	return t == JoinRight || t == JoinFull
}

// SelectedColumns restricts which columns each side contributes to the output.
// A nil slice means "all columns of that side".
type SelectedColumns struct {
	Left  []string `json:"left,omitempty"`
	Right []string `json:"right,omitempty"`
}

// JoinSpec describes one pairwise join step.
type JoinSpec struct {
	LeftTable       TableReference
	RightTable      TableReference
	JoinType        JoinType
	LeftKey         string
	RightKey        string
	LeftTableAlias  string
	RightTableAlias string
	SelectedColumns *SelectedColumns
}

// LeftSelection returns the explicit left column list, or nil.
func (s *JoinSpec) LeftSelection() []string {
	if s.SelectedColumns == nil {
		return nil
	}
	return s.SelectedColumns.Left
}

// RightSelection returns the explicit right column list, or nil.
func (s *JoinSpec) RightSelection() []string {
	if s.SelectedColumns == nil {
		return nil
	}
	return s.SelectedColumns.Right
}

// DefaultMergeLimit is the per-source row limit used when a request omits one.
const DefaultMergeLimit = 100

// MergeRequest is an ordered fold of join steps. For every step after the first, the left
// input is the accumulated result of the previous steps and LeftTable is ignored.
type MergeRequest struct {
	Joins []JoinSpec
	Limit int
}

// MergeOutcome tells callers why a result is empty without treating it as an error.
type MergeOutcome string

const (
	MergeOutcomeOK        MergeOutcome = "ok"
	MergeOutcomeNoData    MergeOutcome = "no_data"
	MergeOutcomeNoMatches MergeOutcome = "no_matches"
)

// MergeResult is the serialized output of a merge request.
type MergeResult struct {
	Columns    []string     `json:"columns"`
	Rows       [][]any      `json:"rows"`
	RowCount   int          `json:"rowCount"`
	TotalLeft  int          `json:"totalLeft"`
	TotalRight int          `json:"totalRight"`
	Message    string       `json:"message,omitempty"`
	Outcome    MergeOutcome `json:"outcome"`
}
