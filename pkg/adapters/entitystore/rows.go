package entitystore

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ekaya-inc/ekaya-merge/pkg/models"
)

// ColumnInfo names a result column and its PostgreSQL type.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// collectRows drains rows into ordered models.Row values.
func collectRows(rows pgx.Rows) ([]ColumnInfo, []models.Row, error) {
	fieldDescs := rows.FieldDescriptions()
	columns := make([]ColumnInfo, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = ColumnInfo{
			Name: fd.Name,
			Type: pgTypeNameFromOID(fd.DataTypeOID),
		}
	}

	result := make([]models.Row, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read row values: %w", err)
		}

		row := models.NewRow(len(columns))
		for i, col := range columns {
			row.Set(col.Name, normalizeValue(values[i]))
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return columns, result, nil
}

// normalizeValue converts pgx wire types that have no natural scalar form.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case [16]byte:
		return uuid.UUID(val).String()
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	default:
		return v
	}
}

func pgTypeNameFromOID(oid uint32) string {
	switch oid {
	case pgtype.BoolOID:
		return "BOOL"
	case pgtype.ByteaOID:
		return "BYTEA"
	case pgtype.Int8OID:
		return "INT8"
	case pgtype.Int2OID:
		return "INT2"
	case pgtype.Int4OID:
		return "INT4"
	case pgtype.TextOID:
		return "TEXT"
	case pgtype.JSONOID:
		return "JSON"
	case pgtype.Float4OID:
		return "FLOAT4"
	case pgtype.Float8OID:
		return "FLOAT8"
	case pgtype.BPCharOID:
		return "BPCHAR"
	case pgtype.VarcharOID:
		return "VARCHAR"
	case pgtype.DateOID:
		return "DATE"
	case pgtype.TimestampOID:
		return "TIMESTAMP"
	case pgtype.TimestamptzOID:
		return "TIMESTAMPTZ"
	case pgtype.NumericOID:
		return "NUMERIC"
	case pgtype.UUIDOID:
		return "UUID"
	case pgtype.JSONBOID:
		return "JSONB"
	default:
		return fmt.Sprintf("OID_%d", oid)
	}
}
