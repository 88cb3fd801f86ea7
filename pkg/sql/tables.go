package sql

import (
	"regexp"
	"sort"
	"strings"
)

// TableReference is one table named by query text.
type TableReference struct {
	// Name is the bare table name: quotes stripped, schema qualifier dropped.
	Name string
	// Raw is the reference as written, including quotes and qualifier.
	Raw string
	// Alias is the correlation name, empty when the table is referenced by name.
	Alias string
	// Position is the byte offset of the FROM/JOIN keyword, or -1 when the reference was
	// only found by the parser.
	Position int
}

// Qualifier returns the name the rest of the query uses for this table: the alias if
// one was given, otherwise the table name as written.
func (r TableReference) Qualifier() string {
	if r.Alias != "" {
		return r.Alias
	}
	return r.Raw
}

const identPattern = `(?:"[^"]+"|[A-Za-z_][A-Za-z0-9_$]*)`

const tableRefPattern = `(` + identPattern + `(?:\.` + identPattern + `)?)(?:\s+(?:AS\s+)?(` + identPattern + `))?`

var (
	fromTablePattern = regexp.MustCompile(`(?i)\bFROM\s+` + tableRefPattern)
	joinTablePattern = regexp.MustCompile(`(?i)\bJOIN\s+` + tableRefPattern)
)

// reservedAliases are words the alias group can swallow that are really the next clause.
var reservedAliases = map[string]struct{}{
	"where": {}, "join": {}, "inner": {}, "left": {}, "right": {}, "full": {}, "outer": {},
	"cross": {}, "natural": {}, "on": {}, "using": {}, "group": {}, "order": {}, "limit": {},
	"having": {}, "offset": {}, "union": {}, "except": {}, "intersect": {}, "window": {},
	"fetch": {}, "for": {}, "returning": {}, "set": {}, "lateral": {}, "tablesample": {},
}

// ExtractTableReferences scans query text for "FROM <name> [[AS] alias]" and
// "JOIN <name> [[AS] alias]" references, in order of appearance. Matches that start
// inside a literal or comment are ignored. Comma-separated FROM lists only yield their
// first table; FindTableReferences supplements those from the parse tree.
func ExtractTableReferences(query string) []TableReference {
	return extractTableReferences(query, true)
}

// MaskedTableReferences returns the FROM/JOIN references ExtractTableReferences skips
// because they start inside a literal or comment. Callers that must not under-report
// tables treat these as real.
func MaskedTableReferences(query string) []TableReference {
	return extractTableReferences(query, false)
}

func extractTableReferences(query string, inCode bool) []TableReference {
	mask := codeMask(query)

	var refs []TableReference
	for _, pattern := range []*regexp.Regexp{fromTablePattern, joinTablePattern} {
		for _, m := range pattern.FindAllStringSubmatchIndex(query, -1) {
			if mask[m[0]] != inCode {
				continue
			}
			raw := query[m[2]:m[3]]
			alias := ""
			if m[4] >= 0 {
				alias = query[m[4]:m[5]]
				if _, reserved := reservedAliases[strings.ToLower(alias)]; reserved {
					alias = ""
				}
			}
			refs = append(refs, TableReference{
				Name:     NormalizeTableName(raw),
				Raw:      raw,
				Alias:    alias,
				Position: m[0],
			})
		}
	}

	sort.SliceStable(refs, func(i, j int) bool { return refs[i].Position < refs[j].Position })
	return refs
}

// FindTableReferences returns the regex references of query, supplemented with any
// table the TiDB parser finds that the regex scan missed (comma joins, nested selects
// the patterns cannot reach). Text the parser rejects yields the regex result alone.
func FindTableReferences(query string) []TableReference {
	refs := ExtractTableReferences(query)

	astRefs, err := ExtractTablesAST(query)
	if err != nil {
		return refs
	}

	seen := make(map[string]struct{}, len(refs))
	key := func(r TableReference) string {
		return strings.ToLower(r.Name) + "\x00" + strings.ToLower(r.Alias)
	}
	for _, r := range refs {
		seen[key(r)] = struct{}{}
	}
	for _, r := range astRefs {
		if _, ok := seen[key(r)]; ok {
			continue
		}
		seen[key(r)] = struct{}{}
		refs = append(refs, r)
	}
	return refs
}

// NormalizeTableName strips identifier quotes and drops a schema qualifier:
// `public."Project"` becomes `Project`.
func NormalizeTableName(raw string) string {
	name := strings.TrimSpace(raw)
	if i := lastDotOutsideQuotes(name); i >= 0 {
		name = name[i+1:]
	}
	return strings.Trim(name, `"`)
}

func lastDotOutsideQuotes(s string) int {
	inQuote := false
	last := -1
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inQuote = !inQuote
		case '.':
			if !inQuote {
				last = i
			}
		}
	}
	return last
}

// QuoteIdentifier double-quotes name, doubling embedded quotes.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteLiteral single-quotes value, doubling embedded single quotes.
func QuoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
