package tenant

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-merge/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-merge/pkg/logging"
	"github.com/ekaya-inc/ekaya-merge/pkg/sql"
)

// TenantColumn is the column every tenant-scoped entity carries.
const TenantColumn = "tenantId"

// clauseKeywords end a WHERE body; a missing WHERE is inserted before the first of them.
var clauseKeywords = []string{"GROUP BY", "HAVING", "WINDOW", "ORDER BY", "LIMIT", "OFFSET", "FETCH"}

// setOperators split a query into independently filtered branches.
var setOperators = []string{"UNION", "INTERSECT", "EXCEPT"}

// Filter injects and checks tenant predicates in query text.
//
// It works on text, not on a plan: tables are found by scanning FROM/JOIN clauses,
// supplemented by a parse tree when the text parses. A table referenced only inside a
// subquery or CTE still gets its predicate in the enclosing statement's WHERE, where the
// name is out of scope, so such queries fail at execution instead of leaking rows.
type Filter struct {
	registry *Registry
	logger   *zap.Logger
}

// NewFilter creates a filter over the given registry.
func NewFilter(registry *Registry, logger *zap.Logger) *Filter {
	return &Filter{
		registry: registry,
		logger:   logger.Named("tenant-filter"),
	}
}

// Registry returns the entity registry the filter checks against.
func (f *Filter) Registry() *Registry {
	return f.registry
}

// TenantTables returns the tenant-scoped tables query references.
//
// Tenant-scoped FROM/JOIN references found inside literals or comments are included
// too. If the scanner's literal boundaries ever disagree with the server's, the table is
// still filtered; when the mention really is text, the injected predicate names a table
// that is not in scope and the query fails instead of running unfiltered.
func (f *Filter) TenantTables(query string) []sql.TableReference {
	var out []sql.TableReference
	seen := make(map[string]struct{})
	add := func(ref sql.TableReference) {
		if !f.registry.IsTenantScoped(ref.Name) {
			return
		}
		key := strings.ToLower(ref.Name) + "\x00" + strings.ToLower(ref.Qualifier())
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, ref)
	}

	for _, ref := range sql.FindTableReferences(query) {
		add(ref)
	}
	for _, ref := range sql.MaskedTableReferences(query) {
		before := len(out)
		add(ref)
		if len(out) > before {
			f.logger.Warn("Tenant table named inside a literal or comment; filtering it anyway",
				zap.String("table", ref.Name))
		}
	}
	return out
}

// Validate reports whether query is safe to run for tenantID: either it reads no
// tenant-scoped table, or it already contains a tenantId = '<tenantID>' predicate
// outside literals and comments. The check is textual; it does not prove every table is
// covered.
func (f *Filter) Validate(query, tenantID string) (bool, error) {
	normalized, err := f.prepare(query, tenantID)
	if err != nil {
		return false, err
	}
	if len(f.TenantTables(normalized)) == 0 {
		return true, nil
	}
	return hasTenantPredicate(normalized, tenantID), nil
}

// Inject adds one tenantId predicate per tenant-scoped table/alias pair to the top-level
// WHERE of every branch of query, creating the WHERE if needed. Query text that reads no
// tenant-scoped table is returned unchanged.
func (f *Filter) Inject(query, tenantID string) (string, error) {
	normalized, err := f.prepare(query, tenantID)
	if err != nil {
		return "", err
	}
	if len(f.TenantTables(normalized)) == 0 {
		f.warnUnscoped(query)
		return query, nil
	}
	return f.injectBranches(normalized, tenantID), nil
}

// Secure returns query unchanged when Validate accepts it, otherwise the Inject rewrite.
func (f *Filter) Secure(query, tenantID string) (string, error) {
	normalized, err := f.prepare(query, tenantID)
	if err != nil {
		return "", err
	}
	if len(f.TenantTables(normalized)) == 0 {
		f.warnUnscoped(query)
		return query, nil
	}
	if hasTenantPredicate(normalized, tenantID) {
		return query, nil
	}

	secured := f.injectBranches(normalized, tenantID)
	f.logger.Debug("Injected tenant predicate",
		zap.String("query", logging.SanitizeQuery(secured)))
	return secured, nil
}

// prepare checks the inputs and returns the single normalized statement.
func (f *Filter) prepare(query, tenantID string) (string, error) {
	if strings.TrimSpace(tenantID) == "" {
		return "", apperrors.WithOp(apperrors.OpTenantFilter, apperrors.InvalidArgument("tenant id is required"))
	}
	if result := sql.CheckValueForInjection("tenantId", tenantID); result != nil {
		f.logger.Warn("Rejected tenant id with SQL injection fingerprint",
			zap.String("fingerprint", result.Fingerprint))
		return "", apperrors.WithOp(apperrors.OpTenantFilter,
			apperrors.InvalidArgument("tenant id rejected by injection check"))
	}

	validated := sql.ValidateAndNormalize(query)
	if validated.Error != nil {
		return "", apperrors.WithOp(apperrors.OpTenantFilter,
			fmt.Errorf("%w: %w", apperrors.ErrInvalidArgument, validated.Error))
	}
	return validated.NormalizedSQL, nil
}

func (f *Filter) warnUnscoped(query string) {
	f.logger.Warn("Query references no tenant-scoped table; returning it unchanged",
		zap.String("query", logging.SanitizeQuery(query)))
}

// injectBranches applies injectStatement to each set-operation branch separately.
func (f *Filter) injectBranches(query, tenantID string) string {
	var b strings.Builder
	start := 0
	for {
		pos, op := sql.FindTopLevelKeyword(query, start, setOperators...)
		if pos < 0 {
			b.WriteString(f.injectStatement(query[start:], tenantID))
			return b.String()
		}

		branch := f.injectStatement(query[start:pos], tenantID)
		b.WriteString(branch)
		if sql.CodeEnd(branch) < len(branch) {
			b.WriteString("\n")
		} else {
			b.WriteString(" ")
		}

		// Keep the operator and its ALL/DISTINCT modifier together.
		next := pos + len(op)
		rest := strings.TrimLeft(query[next:], " \t\r\n")
		for _, modifier := range []string{"ALL", "DISTINCT"} {
			if len(rest) > len(modifier) && strings.EqualFold(rest[:len(modifier)], modifier) && !isIdentChar(rest[len(modifier)]) {
				next = len(query) - len(rest) + len(modifier)
				break
			}
		}
		b.WriteString(strings.TrimSpace(query[pos:next]))
		b.WriteString(" ")
		start = next
	}
}

// injectStatement rewrites one SELECT without set operators.
func (f *Filter) injectStatement(stmt, tenantID string) string {
	stmt = strings.TrimSpace(stmt)

	// A parenthesised branch is filtered inside its parentheses.
	if inner, ok := unwrapParens(stmt); ok {
		inner = f.injectBranches(inner, tenantID)
		if sql.CodeEnd(inner) < len(inner) {
			inner += "\n"
		}
		return "(" + inner + ")"
	}

	conjunction := buildConjunction(f.TenantTables(stmt), tenantID)
	if conjunction == "" {
		return stmt
	}

	wherePos, _ := sql.FindTopLevelKeyword(stmt, 0, "WHERE")
	if wherePos >= 0 {
		bodyStart := wherePos + len("WHERE")
		end, _ := sql.FindTopLevelKeyword(stmt, bodyStart, clauseKeywords...)
		if end < 0 {
			end = len(stmt)
		}
		body, comment := splitTrailingComment(stmt[bodyStart:end])
		rewritten := stmt[:wherePos] + "WHERE (" + conjunction + ") AND (" + strings.TrimSpace(body) + ")"
		return joinAfterComment(rewritten, comment, stmt[end:])
	}

	pos, _ := sql.FindTopLevelKeyword(stmt, 0, clauseKeywords...)
	if pos < 0 {
		pos = len(stmt)
	}
	head, comment := splitTrailingComment(stmt[:pos])
	rewritten := strings.TrimRight(head, " \t\r\n") + " WHERE " + conjunction
	return joinAfterComment(rewritten, comment, stmt[pos:])
}

// splitTrailingComment separates the comments and whitespace ending s from the code before them.
func splitTrailingComment(s string) (string, string) {
	end := sql.CodeEnd(s)
	return s[:end], strings.TrimSpace(s[end:])
}

// joinAfterComment appends comment and then rest to head. Whatever follows a comment
// starts on a new line so it cannot end up inside a line comment.
func joinAfterComment(head, comment, rest string) string {
	rest = strings.TrimSpace(rest)
	out := head
	if comment != "" {
		out += " " + comment
	}
	if rest == "" {
		return out
	}
	if comment != "" {
		return out + "\n" + rest
	}
	return out + " " + rest
}

// buildConjunction renders one predicate per distinct table/alias pair.
func buildConjunction(refs []sql.TableReference, tenantID string) string {
	literal := sql.QuoteLiteral(tenantID)
	seen := make(map[string]struct{}, len(refs))
	var predicates []string
	for _, ref := range refs {
		qualifier := ref.Qualifier()
		key := strings.ToLower(ref.Name) + "\x00" + qualifier
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		predicates = append(predicates, fmt.Sprintf(`%s.%s = %s`, qualifier, sql.QuoteIdentifier(TenantColumn), literal))
	}
	return strings.Join(predicates, " AND ")
}

// hasTenantPredicate looks for tenantId = '<tenantID>' starting outside literals and comments.
func hasTenantPredicate(query, tenantID string) bool {
	pattern := regexp.MustCompile(`(?i:(?:"|\b)` + TenantColumn + `"?)\s*=\s*` + regexp.QuoteMeta(sql.QuoteLiteral(tenantID)))
	for _, m := range pattern.FindAllStringIndex(query, -1) {
		if sql.IsCode(query, m[0]) {
			return true
		}
	}
	return false
}

// unwrapParens returns the inside of stmt when the whole statement is one parenthesised group.
func unwrapParens(stmt string) (string, bool) {
	if !strings.HasPrefix(stmt, "(") || !strings.HasSuffix(stmt, ")") {
		return "", false
	}
	if sql.MatchingParen(stmt, 0) != len(stmt)-1 {
		return "", false
	}
	return strings.TrimSpace(stmt[1 : len(stmt)-1]), true
}

func isIdentChar(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
