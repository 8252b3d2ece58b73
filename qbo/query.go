package qbo

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Filter is one condition of a query's where clause, for instance
// {"DisplayName", "LIKE", "%acme%"}. String values are quoted; bools and
// numbers are not.
type Filter struct {
	Field string
	Op    string
	Value interface{}
}

var identifier = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9.]*$`)

var operators = map[string]bool{
	"=": true, "<": true, ">": true, "<=": true, ">=": true, "LIKE": true, "IN": true,
}

// quote escapes a string literal for the query language
func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}

func (f Filter) String() (string, error) {
	if !identifier.MatchString(f.Field) {
		return "", fmt.Errorf("invalid query field %q", f.Field)
	}
	op := strings.ToUpper(f.Op)
	if !operators[op] {
		return "", fmt.Errorf("invalid query operator %q", f.Op)
	}
	var value string
	switch v := f.Value.(type) {
	case string:
		value = quote(v)
	case bool:
		value = strconv.FormatBool(v)
	case int:
		value = strconv.Itoa(v)
	case float64:
		value = strconv.FormatFloat(v, 'f', -1, 64)
	case []string:
		quoted := make([]string, len(v))
		for i, s := range v {
			quoted[i] = quote(s)
		}
		value = "(" + strings.Join(quoted, ", ") + ")"
	default:
		return "", fmt.Errorf("unsupported value %v for %s", f.Value, f.Field)
	}
	return fmt.Sprintf("%s %s %s", f.Field, op, value), nil
}

// Statement builds a select statement for entity
// See https://developer.intuit.com/app/developer/qbo/docs/learn/explore-the-quickbooks-online-api/data-queries
func Statement(entity string, maxResults int, filters ...Filter) (string, error) {
	if !identifier.MatchString(entity) {
		return "", fmt.Errorf("invalid entity %q", entity)
	}
	var b strings.Builder
	b.WriteString("select * from ")
	b.WriteString(entity)
	for i, f := range filters {
		cond, err := f.String()
		if err != nil {
			return "", err
		}
		if i == 0 {
			b.WriteString(" where ")
		} else {
			b.WriteString(" and ")
		}
		b.WriteString(cond)
	}
	if maxResults > 0 {
		fmt.Fprintf(&b, " maxresults %d", maxResults)
	}
	return b.String(), nil
}
