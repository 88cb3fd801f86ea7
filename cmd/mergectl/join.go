package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-merge/pkg/join"
	"github.com/ekaya-inc/ekaya-merge/pkg/models"
	"github.com/ekaya-inc/ekaya-merge/pkg/resolver"
	"github.com/ekaya-inc/ekaya-merge/pkg/services"
)

type joinOptions struct {
	on      []string
	types   []string
	padding string
	limit   int
	format  string
}

func newJoinCmd() *cobra.Command {
	opts := &joinOptions{}
	cmd := &cobra.Command{
		Use:   "join FILE FILE [FILE...]",
		Short: "Join local CSV, TSV or XLSX files",
		Long: `Join local dataset files left to right. Every file after the first is one join
step; pass --on once per step as LEFT_KEY=RIGHT_KEY. --type may be given once for all
steps or once per step.`,
		Example: `  mergectl join customers.csv orders.xlsx --on id=customer_id --type left`,
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJoin(cmd, args, opts)
		},
	}
	cmd.Flags().StringArrayVar(&opts.on, "on", nil, "join keys for a step, LEFT_KEY=RIGHT_KEY")
	cmd.Flags().StringArrayVar(&opts.types, "type", []string{string(models.JoinInner)}, "join type: inner, left, right or full")
	cmd.Flags().StringVar(&opts.padding, "padding", string(join.PadObserved), "null padding policy: observed or selected")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "rows read from each file (0 reads everything)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", formatTable, "output format: table, markdown or json")
	return cmd
}

func runJoin(cmd *cobra.Command, args []string, opts *joinOptions) error {
	stepCount := len(args) - 1
	if len(opts.on) != stepCount {
		return fmt.Errorf("expected %d --on value(s) for %d files, got %d", stepCount, len(args), len(opts.on))
	}
	if len(opts.types) != 1 && len(opts.types) != stepCount {
		return fmt.Errorf("--type must be given once or once per step (%d)", stepCount)
	}
	if opts.limit < 0 {
		return fmt.Errorf("--limit must not be negative")
	}

	padding, err := join.ParsePaddingPolicy(opts.padding)
	if err != nil {
		return err
	}

	tables := make([]*models.Table, len(args))
	for i, path := range args {
		t, err := loadLocalTable(path)
		if err != nil {
			return err
		}
		tables[i] = t.Truncate(opts.limit)
	}

	steps := make([]join.Step, stepCount)
	for i := range steps {
		leftKey, rightKey, ok := strings.Cut(opts.on[i], "=")
		if !ok || strings.TrimSpace(leftKey) == "" || strings.TrimSpace(rightKey) == "" {
			return fmt.Errorf("--on %q: want LEFT_KEY=RIGHT_KEY", opts.on[i])
		}

		rawType := opts.types[0]
		if len(opts.types) > 1 {
			rawType = opts.types[i]
		}
		joinType, err := models.ParseJoinType(rawType)
		if err != nil {
			return err
		}

		leftName := models.MergedTableName
		if i == 0 {
			leftName = tables[0].Name
		}
		steps[i] = join.Step{
			Right: tables[i+1],
			Spec: models.JoinSpec{
				LeftTable:       models.UploadedTable(leftName),
				RightTable:      models.UploadedTable(tables[i+1].Name),
				JoinType:        joinType,
				LeftKey:         strings.TrimSpace(leftKey),
				RightKey:        strings.TrimSpace(rightKey),
				RightTableAlias: tables[i+1].Name,
			},
		}
	}

	folded, err := join.NewEngine(join.Options{Padding: padding}).Fold(tables[0], steps)
	if err != nil {
		return err
	}

	result := services.SerializeTable(folded.Table)
	result.TotalLeft = folded.TotalLeft
	result.TotalRight = folded.TotalRight
	return renderResult(cmd.OutOrStdout(), result, opts.format)
}

// loadLocalTable parses a file from disk, choosing the parser from its extension. The table
// is named after the file without its extension.
func loadLocalTable(path string) (*models.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	base := filepath.Base(path)
	file := &models.UploadedFile{Name: base, StoragePath: base}
	rows, err := resolver.ParseFile(file, data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return &models.Table{
		Name:   strings.TrimSuffix(base, filepath.Ext(base)),
		Source: models.TableSourceUploadedFile,
		Rows:   rows,
	}, nil
}
