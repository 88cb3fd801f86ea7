package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-merge/pkg/config"
	"github.com/ekaya-inc/ekaya-merge/pkg/logging"
	"github.com/ekaya-inc/ekaya-merge/pkg/models"
	"github.com/ekaya-inc/ekaya-merge/pkg/tenant"
)

type secureOptions struct {
	tenantID   string
	registry   string
	configPath string
	validate   bool
	inject     bool
	verbose    bool
}

func newSecureCmd() *cobra.Command {
	opts := &secureOptions{}
	cmd := &cobra.Command{
		Use:   "secure [QUERY]",
		Short: "Add tenant isolation predicates to a SQL query",
		Long: `Rewrite a SQL query so every tenant-scoped table it reads is restricted to one tenant.
The query is read from the argument, or from stdin when no argument is given. Tenant-scoped
entities come from --registry, or from the tenant section of --config.`,
		Example: `  mergectl secure --tenant acme --registry entities.yaml "SELECT * FROM Project"`,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSecure(cmd, args, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.tenantID, "tenant", "t", "", "tenant id to isolate (required)")
	cmd.Flags().StringVar(&opts.registry, "registry", "", "entity registry file")
	cmd.Flags().StringVar(&opts.configPath, "config", "config.yaml", "server config file, used when --registry is not set")
	cmd.Flags().BoolVar(&opts.validate, "validate", false, "only report whether the query already isolates the tenant")
	cmd.Flags().BoolVar(&opts.inject, "inject", false, "always inject predicates, even when one is already present")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log filter decisions to stderr")
	_ = cmd.MarkFlagRequired("tenant")
	cmd.MarkFlagsMutuallyExclusive("validate", "inject")
	return cmd
}

func runSecure(cmd *cobra.Command, args []string, opts *secureOptions) error {
	query, err := readQuery(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	entities, err := loadRegistryEntities(opts)
	if err != nil {
		return err
	}
	registry, err := tenant.NewRegistry(entities)
	if err != nil {
		return err
	}

	logger := zap.NewNop()
	if opts.verbose {
		if logger, err = logging.NewLogger("local"); err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()
	}
	filter := tenant.NewFilter(registry, logger)
	out := cmd.OutOrStdout()

	switch {
	case opts.validate:
		valid, err := filter.Validate(query, opts.tenantID)
		if err != nil {
			return err
		}
		if valid {
			_, err = fmt.Fprintln(out, "valid")
			return err
		}
		var names []string
		for _, ref := range filter.TenantTables(query) {
			names = append(names, ref.Name)
		}
		_, err = fmt.Fprintf(out, "invalid: missing tenant predicate for %s\n", strings.Join(names, ", "))
		return err
	case opts.inject:
		secured, err := filter.Inject(query, opts.tenantID)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, secured)
		return err
	default:
		secured, err := filter.Secure(query, opts.tenantID)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, secured)
		return err
	}
}

func readQuery(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read query from stdin: %w", err)
	}
	query := strings.TrimSpace(string(data))
	if query == "" {
		return "", fmt.Errorf("no query given")
	}
	return query, nil
}

func loadRegistryEntities(opts *secureOptions) ([]models.EntityDefinition, error) {
	if opts.registry != "" {
		return config.LoadEntities(opts.registry)
	}
	cfg, err := config.LoadFile(opts.configPath, Version)
	if err != nil {
		return nil, fmt.Errorf("load entities: %w", err)
	}
	return cfg.Tenant.Entities, nil
}
