package tenant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/ekaya-merge/pkg/apperrors"
)

func testFilter(t *testing.T) *Filter {
	t.Helper()
	return NewFilter(testRegistry(t), zap.NewNop())
}

func TestInject(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected string
	}{
		{
			name:     "no where clause",
			query:    "SELECT * FROM Project",
			expected: `SELECT * FROM Project WHERE Project."tenantId" = 't-1'`,
		},
		{
			name:     "trailing semicolon is dropped",
			query:    "SELECT * FROM Project;",
			expected: `SELECT * FROM Project WHERE Project."tenantId" = 't-1'`,
		},
		{
			name:     "existing where is wrapped",
			query:    "SELECT * FROM Project WHERE status = 'open' OR priority > 2",
			expected: `SELECT * FROM Project WHERE (Project."tenantId" = 't-1') AND (status = 'open' OR priority > 2)`,
		},
		{
			name:     "where body ends before order by",
			query:    "SELECT * FROM Project WHERE status = 'open' ORDER BY name LIMIT 10",
			expected: `SELECT * FROM Project WHERE (Project."tenantId" = 't-1') AND (status = 'open') ORDER BY name LIMIT 10`,
		},
		{
			name:     "inserted before group by",
			query:    "SELECT status, COUNT(*) FROM Project GROUP BY status",
			expected: `SELECT status, COUNT(*) FROM Project WHERE Project."tenantId" = 't-1' GROUP BY status`,
		},
		{
			name:     "inserted before limit",
			query:    "SELECT * FROM Project LIMIT 5",
			expected: `SELECT * FROM Project WHERE Project."tenantId" = 't-1' LIMIT 5`,
		},
		{
			name:     "aliases are used as qualifiers",
			query:    "SELECT * FROM Project p JOIN Task t ON t.projectId = p.id",
			expected: `SELECT * FROM Project p JOIN Task t ON t.projectId = p.id WHERE p."tenantId" = 't-1' AND t."tenantId" = 't-1'`,
		},
		{
			name:     "quoted table keeps its quoting",
			query:    `SELECT * FROM "Project"`,
			expected: `SELECT * FROM "Project" WHERE "Project"."tenantId" = 't-1'`,
		},
		{
			name:     "non tenant table is not filtered",
			query:    "SELECT * FROM Project JOIN Country ON Country.code = Project.country",
			expected: `SELECT * FROM Project JOIN Country ON Country.code = Project.country WHERE Project."tenantId" = 't-1'`,
		},
		{
			name:     "self join gets one predicate per alias",
			query:    "SELECT * FROM Task a JOIN Task b ON a.parentId = b.id",
			expected: `SELECT * FROM Task a JOIN Task b ON a.parentId = b.id WHERE a."tenantId" = 't-1' AND b."tenantId" = 't-1'`,
		},
		{
			name:     "where inside subquery is not the top level where",
			query:    "SELECT * FROM Project WHERE id IN (SELECT projectId FROM Country WHERE code = 'NL')",
			expected: `SELECT * FROM Project WHERE (Project."tenantId" = 't-1') AND (id IN (SELECT projectId FROM Country WHERE code = 'NL'))`,
		},
		{
			name:     "each union branch is filtered",
			query:    "SELECT id FROM Project UNION ALL SELECT id FROM Task WHERE done",
			expected: `SELECT id FROM Project WHERE Project."tenantId" = 't-1' UNION ALL SELECT id FROM Task WHERE (Task."tenantId" = 't-1') AND (done)`,
		},
		{
			name:     "parenthesised union branches",
			query:    "(SELECT id FROM Project) UNION (SELECT id FROM Country)",
			expected: `(SELECT id FROM Project WHERE Project."tenantId" = 't-1') UNION (SELECT id FROM Country)`,
		},
		{
			name:     "comma join found by the parser",
			query:    "SELECT * FROM Project, Task",
			expected: `SELECT * FROM Project, Task WHERE Project."tenantId" = 't-1' AND Task."tenantId" = 't-1'`,
		},
		{
			name:     "trailing line comment stays after the predicate",
			query:    "SELECT * FROM Project -- all projects",
			expected: "SELECT * FROM Project WHERE Project.\"tenantId\" = 't-1' -- all projects",
		},
		{
			name:     "where body ending in a line comment",
			query:    "SELECT * FROM Project WHERE status = 'open' -- open only",
			expected: "SELECT * FROM Project WHERE (Project.\"tenantId\" = 't-1') AND (status = 'open') -- open only",
		},
		{
			name:     "comment before a clause keyword",
			query:    "SELECT * FROM Project -- every project\nORDER BY name",
			expected: "SELECT * FROM Project WHERE Project.\"tenantId\" = 't-1' -- every project\nORDER BY name",
		},
		{
			name:     "union branch ending in a comment",
			query:    "SELECT id FROM Project -- first\nUNION SELECT id FROM Task",
			expected: "SELECT id FROM Project WHERE Project.\"tenantId\" = 't-1' -- first\nUNION SELECT id FROM Task WHERE Task.\"tenantId\" = 't-1'",
		},
		{
			name:     "dollar quoted body is not scanned for clauses",
			query:    "SELECT $$ WHERE $$ AS w FROM Project",
			expected: "SELECT $$ WHERE $$ AS w FROM Project WHERE Project.\"tenantId\" = 't-1'",
		},
		{
			name:     "unregistered table is unchanged",
			query:    "SELECT * FROM ReportingNote",
			expected: "SELECT * FROM ReportingNote",
		},
	}

	f := testFilter(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.Inject(tt.query, "t-1")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestInject_EscapesTenantID(t *testing.T) {
	got, err := testFilter(t).Inject("SELECT * FROM Project", "O'Brien")
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM Project WHERE Project."tenantId" = 'O''Brien'`, got)
}

func TestInject_Idempotent(t *testing.T) {
	f := testFilter(t)
	queries := []string{
		"SELECT * FROM Project",
		"SELECT * FROM Project WHERE status = 'open' ORDER BY name",
		"SELECT * FROM Project p JOIN Task t ON t.projectId = p.id GROUP BY p.id",
	}

	for _, q := range queries {
		once, err := f.Inject(q, "t-1")
		require.NoError(t, err)
		twice, err := f.Inject(once, "t-1")
		require.NoError(t, err)

		valid, err := f.Validate(twice, "t-1")
		require.NoError(t, err)
		assert.True(t, valid)
		// The second pass only wraps the first pass's conjunction in another AND.
		assert.Contains(t, twice, "AND (")
		assert.Equal(t, len(f.TenantTables(once)), len(f.TenantTables(twice)))
	}

	once, err := f.Inject("SELECT * FROM Project", "t-1")
	require.NoError(t, err)
	twice, err := f.Inject(once, "t-1")
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM Project WHERE (Project."tenantId" = 't-1') AND (Project."tenantId" = 't-1')`, twice)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		query string
		valid bool
	}{
		{name: "no tenant table", query: "SELECT * FROM ReportingNote", valid: true},
		{name: "non tenant scoped entity", query: "SELECT * FROM Country", valid: true},
		{name: "tenant table without predicate", query: "SELECT * FROM Project", valid: false},
		{name: "plural table without predicate", query: "SELECT * FROM projects", valid: false},
		{name: "bare predicate", query: "SELECT * FROM Project WHERE tenantId = 't-1'", valid: true},
		{name: "quoted qualified predicate", query: `SELECT * FROM Project p WHERE p."tenantId" = 't-1'`, valid: true},
		{name: "predicate for another tenant", query: "SELECT * FROM Project WHERE tenantId = 't-2'", valid: false},
		{name: "predicate inside string literal", query: `SELECT 'tenantId = ''t-1''' FROM Project`, valid: false},
		{name: "predicate inside comment", query: "SELECT * FROM Project -- tenantId = 't-1'", valid: false},
		{name: "longer column name", query: "SELECT * FROM Project WHERE parentTenantId = 't-1'", valid: false},
		{name: "dollar quoted quote before from", query: `SELECT *, $$'$$ AS a FROM "Project" WHERE 1 <> 2 OR $$'$$ = 'x'`, valid: false},
		{name: "backslash does not escape a standard string", query: `SELECT '\' AS a, p.* FROM "Project" p WHERE 'x' <> '\'`, valid: false},
		{name: "tenant table named in literal", query: "SELECT 'FROM Project' AS label FROM Country", valid: false},
		{name: "predicate in dollar quoted body", query: "SELECT * FROM Project WHERE $$tenantId = 't-1'$$ <> ''", valid: false},
	}

	f := testFilter(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, err := f.Validate(tt.query, "t-1")
			require.NoError(t, err)
			assert.Equal(t, tt.valid, valid)
		})
	}
}

func TestInject_Completeness(t *testing.T) {
	f := testFilter(t)
	queries := []string{
		"SELECT * FROM Project",
		"SELECT * FROM tasks t WHERE t.done = false",
		"SELECT p.name, COUNT(*) FROM Project p LEFT JOIN Task t ON t.projectId = p.id GROUP BY p.name ORDER BY 2 DESC",
		"SELECT * FROM billing_invoices LIMIT 3",
		"SELECT * FROM Project -- all projects",
		"SELECT * FROM Project WHERE status = 'open' -- open only",
		"SELECT * FROM Project /* a */ ORDER BY name -- sorted",
		"(SELECT id FROM Task -- tasks\n) UNION SELECT id FROM Project",
		`SELECT '\' AS a, p.* FROM "Project" p WHERE 'x' <> '\'`,
	}

	for _, q := range queries {
		valid, err := f.Validate(q, "t-1")
		require.NoError(t, err)
		assert.False(t, valid, q)

		injected, err := f.Inject(q, "t-1")
		require.NoError(t, err)
		valid, err = f.Validate(injected, "t-1")
		require.NoError(t, err)
		assert.True(t, valid, injected)
	}
}

func TestSecure_LiteralBoundaries(t *testing.T) {
	f := testFilter(t)

	got, err := f.Secure(`SELECT *, $$'$$ AS a FROM "Project" WHERE 1 <> 2 OR $$'$$ = 'x'`, "t-1")
	require.NoError(t, err)
	assert.Equal(t, `SELECT *, $$'$$ AS a FROM "Project" WHERE ("Project"."tenantId" = 't-1') AND (1 <> 2 OR $$'$$ = 'x')`, got)

	got, err = f.Secure(`SELECT '\' AS a, p.* FROM "Project" p WHERE 'x' <> '\'`, "t-1")
	require.NoError(t, err)
	assert.Equal(t, `SELECT '\' AS a, p.* FROM "Project" p WHERE (p."tenantId" = 't-1') AND ('x' <> '\')`, got)
}

func TestTenantTables_IncludesMaskedReferences(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	f := NewFilter(testRegistry(t), zap.New(core))

	refs := f.TenantTables("SELECT 'FROM Project' AS label FROM Country")
	require.Len(t, refs, 1)
	assert.Equal(t, "Project", refs[0].Name)
	require.Len(t, logs.All(), 1)
	assert.Equal(t, "Project", logs.All()[0].ContextMap()["table"])

	// A reference found both ways is reported once.
	assert.Len(t, f.TenantTables("SELECT * FROM Project"), 1)
}

func TestSecure(t *testing.T) {
	f := testFilter(t)

	already := "SELECT * FROM Project WHERE tenantId = 't-1'"
	got, err := f.Secure(already, "t-1")
	require.NoError(t, err)
	assert.Equal(t, already, got)

	got, err = f.Secure("SELECT * FROM Project", "t-1")
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM Project WHERE Project."tenantId" = 't-1'`, got)

	got, err = f.Secure("SELECT * FROM ReportingNote", "t-1")
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM ReportingNote", got)
}

func TestFilter_InputErrors(t *testing.T) {
	f := testFilter(t)

	tests := []struct {
		name     string
		query    string
		tenantID string
	}{
		{name: "empty tenant", query: "SELECT * FROM Project", tenantID: ""},
		{name: "blank tenant", query: "SELECT * FROM Project", tenantID: "  "},
		{name: "injection in tenant", query: "SELECT * FROM Project", tenantID: "' OR '1'='1"},
		{name: "multiple statements", query: "SELECT * FROM Project; DELETE FROM Project", tenantID: "t-1"},
		{name: "empty query", query: "  ", tenantID: "t-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Inject(tt.query, tt.tenantID)
			assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
			assert.Equal(t, apperrors.OpTenantFilter, apperrors.Op(err))

			_, err = f.Secure(tt.query, tt.tenantID)
			assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

			valid, err := f.Validate(tt.query, tt.tenantID)
			assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
			assert.False(t, valid)
		})
	}
}

func TestInject_WarnsWhenNoTenantTable(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	f := NewFilter(testRegistry(t), zap.New(core))

	got, err := f.Inject("SELECT * FROM ReportingNote WHERE owner = 'secret'", "t-1")
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM ReportingNote WHERE owner = 'secret'", got)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Message, "no tenant-scoped table")
	assert.Equal(t, "SELECT * FROM ReportingNote WHERE owner = '?'", entries[0].ContextMap()["query"])
}
