package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/ekaya-inc/ekaya-merge/pkg/models"
)

// Output formats accepted by --format.
const (
	formatTable    = "table"
	formatMarkdown = "markdown"
	formatJSON     = "json"
)

func renderResult(w io.Writer, result *models.MergeResult, format string) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case formatTable, formatMarkdown, "":
	default:
		return fmt.Errorf("unknown output format %q (want table, markdown or json)", format)
	}

	if len(result.Rows) == 0 {
		_, err := fmt.Fprintf(w, "No rows (left %d, right %d)\n", result.TotalLeft, result.TotalRight)
		return err
	}

	opts := []tablewriter.Option{tablewriter.WithHeaderAutoFormat(tw.Off)}
	if format == formatMarkdown {
		opts = append(opts, tablewriter.WithRenderer(renderer.NewMarkdown()))
	}
	table := tablewriter.NewTable(w, opts...)
	table.Header(result.Columns)
	for _, row := range result.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = fmt.Sprint(v)
		}
		if err := table.Append(cells); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "%d rows (left %d, right %d)\n", result.RowCount, result.TotalLeft, result.TotalRight)
	return err
}
