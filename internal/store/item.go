package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
)

// Item is one stored row: an integer id, its item type, the commit it
// belongs to (0 while staged in the open session) and a JSON field
// bag.
type Item struct {
	ID       int64          `json:"id"`
	Type     string         `json:"type"`
	CommitID int64          `json:"commit_id,omitempty"`
	Fields   map[string]any `json:"fields"`
}

// Field returns a field value rendered as a string, empty when absent.
// JSON numbers come back from the database as float64; rendering
// through this accessor keeps comparisons type-stable.
func (it Item) Field(name string) string {
	v, ok := it.Fields[name]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%v", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// FieldNames returns the field bag's keys in sorted order.
func (it Item) FieldNames() []string {
	names := make([]string, 0, len(it.Fields))
	for name := range it.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func marshalFields(fields map[string]any) (string, error) {
	if fields == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("marshal fields: %w", err)
	}
	return string(raw), nil
}

func unmarshalFields(raw string) (map[string]any, error) {
	fields := make(map[string]any)
	if raw == "" {
		return fields, nil
	}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	return fields, nil
}

// scanItem reads one items row. The caller supplies either *sql.Rows
// or *sql.Row through the scanner interface.
type scanner interface {
	Scan(dest ...any) error
}

func scanItem(sc scanner) (Item, error) {
	var (
		it       Item
		commitID sql.NullInt64
		raw      string
	)
	if err := sc.Scan(&it.ID, &it.Type, &commitID, &raw); err != nil {
		return Item{}, fmt.Errorf("scan item: %w", err)
	}
	if commitID.Valid {
		it.CommitID = commitID.Int64
	}
	fields, err := unmarshalFields(raw)
	if err != nil {
		return Item{}, err
	}
	it.Fields = fields
	return it, nil
}
