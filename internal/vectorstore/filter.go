package vectorstore

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Filter is a conjunction of SQL conditions over chunk rows. Every
// condition is a fixed clause template with bound arguments; caller
// input never reaches the SQL text itself.
type Filter struct {
	clauses []string
	args    []any
}

// Empty reports whether the filter constrains nothing.
func (f *Filter) Empty() bool {
	return f == nil || len(f.clauses) == 0
}

// whereClause renders the filter as a WHERE fragment plus its bound
// arguments. An empty filter renders as the empty string.
func (f *Filter) whereClause() (string, []any) {
	if f.Empty() {
		return "", nil
	}
	return " WHERE " + strings.Join(f.clauses, " AND "), f.args
}

var (
	identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)
	// "sharpe > 1.5" style predicates: identifier, comparison operator,
	// numeric literal. Nothing else qualifies.
	predicateRe = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_-]*)\s*(<=|>=|==|!=|<|>)\s*(-?\d+(?:\.\d+)?)\s*$`)
)

// sqlOps maps predicate operators onto SQL. Clause text only ever comes
// from this table.
var sqlOps = map[string]string{
	"<":  "<",
	"<=": "<=",
	">":  ">",
	">=": ">=",
	"==": "=",
	"!=": "<>",
}

// BuildFilter turns caller-supplied tag and metadata constraints into a
// Filter. Metadata keys are either plain field names (the value is an
// equality constraint) or self-contained comparison predicates such as
// "sharpe > 1.5" (the value is ignored and conventionally nil). Any key
// that parses as neither is an error; it is never passed through.
func BuildFilter(tags []string, meta map[string]any) (*Filter, error) {
	f := &Filter{}

	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if !strings.HasPrefix(tag, "#") {
			tag = "#" + tag
		}
		if !identRe.MatchString(tag[1:]) {
			return nil, fmt.Errorf("invalid tag filter %q", tag)
		}
		f.clauses = append(f.clauses, "instr(tags, ?) > 0")
		f.args = append(f.args, ","+tag+",")
	}

	for key, value := range meta {
		if m := predicateRe.FindStringSubmatch(key); m != nil {
			num, err := strconv.ParseFloat(m[3], 64)
			if err != nil {
				return nil, fmt.Errorf("invalid numeric literal in predicate %q", key)
			}
			f.clauses = append(f.clauses,
				fmt.Sprintf("CAST(json_extract(metadata, ?) AS REAL) %s ?", sqlOps[m[2]]))
			f.args = append(f.args, jsonPath(m[1]), num)
			continue
		}

		if !identRe.MatchString(strings.TrimSpace(key)) {
			return nil, fmt.Errorf("unparseable metadata filter %q", key)
		}
		if value == nil {
			continue
		}

		path := jsonPath(strings.TrimSpace(key))
		switch v := value.(type) {
		case string:
			f.clauses = append(f.clauses, "json_extract(metadata, ?) = ?")
			f.args = append(f.args, path, v)
		case bool:
			// SQLite extracts JSON booleans as 0/1.
			n := 0
			if v {
				n = 1
			}
			f.clauses = append(f.clauses, "json_extract(metadata, ?) = ?")
			f.args = append(f.args, path, n)
		case float64:
			f.clauses = append(f.clauses, "CAST(json_extract(metadata, ?) AS REAL) = ?")
			f.args = append(f.args, path, v)
		case int:
			f.clauses = append(f.clauses, "CAST(json_extract(metadata, ?) AS REAL) = ?")
			f.args = append(f.args, path, float64(v))
		default:
			return nil, fmt.Errorf("unsupported filter value type %T for %q", value, key)
		}
	}

	return f, nil
}

// jsonPath builds the json_extract path for a field. Keys are stored
// lowercased, so lookups are case-insensitive.
func jsonPath(field string) string {
	return `$."` + strings.ToLower(field) + `"`
}
