package models

import (
	"fmt"

	"github.com/ekaya-inc/ekaya-merge/pkg/jsonutil"
)

// MergeJoinBody is one join step as it arrives over HTTP or MCP.
//
// LeftTableName/RightTableName are display aliases. LeftTableType/RightTableType
// ("entity" or "file") pin the backend; when omitted the id is classified by shape.
type MergeJoinBody struct {
	LeftTable       jsonutil.FlexibleString `json:"leftTable"`
	RightTable      jsonutil.FlexibleString `json:"rightTable"`
	LeftTableName   string                  `json:"leftTableName,omitempty"`
	RightTableName  string                  `json:"rightTableName,omitempty"`
	LeftTableType   string                  `json:"leftTableType,omitempty"`
	RightTableType  string                  `json:"rightTableType,omitempty"`
	JoinType        string                  `json:"joinType"`
	LeftKey         string                  `json:"leftKey"`
	RightKey        string                  `json:"rightKey"`
	SelectedColumns *SelectedColumns        `json:"selectedColumns,omitempty"`
}

// MergeRequestBody is the wire form of MergeRequest.
type MergeRequestBody struct {
	Joins []MergeJoinBody      `json:"joins"`
	Limit jsonutil.FlexibleInt `json:"limit,omitempty"`
}

// ToMergeRequest converts the wire form. Only malformed table types fail here; join
// types, keys and limits are checked by the merge service.
func (b *MergeRequestBody) ToMergeRequest() (*MergeRequest, error) {
	req := &MergeRequest{
		Joins: make([]JoinSpec, 0, len(b.Joins)),
		Limit: int(b.Limit),
	}
	for i, j := range b.Joins {
		left, err := tableRefFromWire(string(j.LeftTable), j.LeftTableType)
		if err != nil {
			return nil, fmt.Errorf("join %d: left table: %w", i, err)
		}
		right, err := tableRefFromWire(string(j.RightTable), j.RightTableType)
		if err != nil {
			return nil, fmt.Errorf("join %d: right table: %w", i, err)
		}
		req.Joins = append(req.Joins, JoinSpec{
			LeftTable:       left,
			RightTable:      right,
			JoinType:        JoinType(j.JoinType),
			LeftKey:         j.LeftKey,
			RightKey:        j.RightKey,
			LeftTableAlias:  j.LeftTableName,
			RightTableAlias: j.RightTableName,
			SelectedColumns: j.SelectedColumns,
		})
	}
	return req, nil
}

func tableRefFromWire(id, kind string) (TableReference, error) {
	parsed, err := ParseTableRefKind(kind)
	if err != nil {
		return TableReference{}, err
	}
	switch parsed {
	case TableRefLive:
		return LiveTable(id), nil
	case TableRefUploaded:
		return UploadedTable(id), nil
	default:
		return ClassifyTableID(id), nil
	}
}
