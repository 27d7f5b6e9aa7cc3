package store

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Cond is one filter condition over a JSON field of an item.
type Cond struct {
	Field string
	Op    string // one of = != < <= > >= LIKE
	Value any    // string, integer or float literal
}

// Filter is an ordered conjunction of conditions.
type Filter []Cond

// Eq is shorthand for a single equality filter.
func Eq(field string, value any) Filter {
	return Filter{{Field: field, Op: "=", Value: value}}
}

// Query selects items of one type, optionally filtered on JSON
// fields. Results are always ordered by id so that chunked iteration
// is stable.
type Query struct {
	ItemType string
	Conds    Filter
}

// NewQuery builds a query for itemType with the given filter.
func NewQuery(itemType string, filter Filter) Query {
	return Query{ItemType: itemType, Conds: filter}
}

const selectColumns = "SELECT id, item_type, commit_id, data FROM items"

// SQL renders the parametrized statement and its arguments.
func (q Query) SQL() (string, []any) {
	var b strings.Builder
	b.WriteString(selectColumns)
	b.WriteString(" WHERE item_type = ?")
	args := []any{q.ItemType}
	for _, c := range q.Conds {
		fmt.Fprintf(&b, " AND json_extract(data, '$.%s') %s ?", c.Field, c.Op)
		args = append(args, c.Value)
	}
	b.WriteString(" ORDER BY id ASC")
	return b.String(), args
}

// Key renders the canonical literal-bound statement text used to
// deduplicate existence probes. Two structurally distinct queries that
// resolve to the same filtered statement share one key; string
// literals are NFC-normalized so visually identical filters cannot
// produce distinct keys.
func (q Query) Key() string {
	var b strings.Builder
	b.WriteString(selectColumns)
	b.WriteString(" WHERE item_type = ")
	b.WriteString(literal(q.ItemType))
	for _, c := range q.Conds {
		fmt.Fprintf(&b, " AND json_extract(data, '$.%s') %s %s", c.Field, c.Op, literal(c.Value))
	}
	b.WriteString(" ORDER BY id ASC")
	return b.String()
}

// literal renders a bound value as SQL literal text.
func literal(v any) string {
	switch val := v.(type) {
	case string:
		normalized := norm.NFC.String(val)
		return "'" + strings.ReplaceAll(normalized, "'", "''") + "'"
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case bool:
		if val {
			return "1"
		}
		return "0"
	case nil:
		return "NULL"
	default:
		return "'" + strings.ReplaceAll(fmt.Sprintf("%v", val), "'", "''") + "'"
	}
}
