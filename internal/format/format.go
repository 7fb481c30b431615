// Package format renders query results and schema snapshots into the text
// reinjected into prompts and returned to the frontend. Everything here is
// pure and deterministic: same input, same output, no sorting of rows.
package format

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sqlchat/sqlchat/internal/backend"
	"github.com/sqlchat/sqlchat/internal/session"
)

// NoResults is the fixed literal for empty result sets.
const NoResults = "No results found."

const (
	fullTableMax  = 5
	truncateMax   = 20
	truncateKeep  = 17
	wideRowsMax   = 20
	supplementMax = 5
)

// Results shapes tabular rows into a bounded textual representation.
// Row and column order is preserved from the input.
func Results(res *backend.Result) string {
	if res == nil || len(res.Rows) == 0 {
		return NoResults
	}

	switch {
	case len(res.Rows) <= fullTableMax:
		return table(res.Columns, res.Rows, false)
	case len(res.Rows) <= wideRowsMax:
		return table(res.Columns, res.Rows, true)
	default:
		restricted := restrictColumns(res.Columns)
		var b strings.Builder
		b.WriteString(fmt.Sprintf("The query returned %d rows.\n\n", len(res.Rows)))
		b.WriteString(table(restricted, res.Rows, true))
		b.WriteString("\n\nFirst 5 rows in full:\n")
		b.WriteString(rowsJSON(res.Rows[:supplementMax]))
		return b.String()
	}
}

// restrictColumns keeps columns whose name contains id, code or name
// (case-insensitive), falling back to exactly the first declared column.
func restrictColumns(columns []string) []string {
	var kept []string
	for _, col := range columns {
		lower := strings.ToLower(col)
		if strings.Contains(lower, "id") || strings.Contains(lower, "code") || strings.Contains(lower, "name") {
			kept = append(kept, col)
		}
	}
	if len(kept) == 0 && len(columns) > 0 {
		kept = []string{columns[0]}
	}
	return kept
}

func table(columns []string, rows []backend.Row, truncate bool) string {
	var b strings.Builder

	b.WriteString("| " + strings.Join(columns, " | ") + " |\n")
	sep := make([]string, len(columns))
	for i := range sep {
		sep[i] = "---"
	}
	b.WriteString("| " + strings.Join(sep, " | ") + " |\n")

	for _, row := range rows {
		cells := make([]string, len(columns))
		for i, col := range columns {
			cells[i] = cell(col, row[col], truncate)
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// cell renders one value under the column's shaping rule. Rules are
// exclusive: id emphasis, then date marker, then status marker. Truncation
// applies to every string value regardless of which rule decorates it;
// marker matching always sees the full value.
func cell(column string, value any, truncate bool) string {
	lower := strings.ToLower(column)
	full := cellString(value)
	s := full
	if truncate {
		if _, ok := value.(string); ok && len(s) > truncateMax {
			s = s[:truncateKeep] + "..."
		}
	}

	switch {
	case strings.Contains(lower, "id"):
		if isNumeric(value) {
			return "**" + s + "**"
		}
	case strings.Contains(lower, "date"):
		return "📅 " + datePortion(value, s)
	case strings.Contains(lower, "status"):
		lv := strings.ToLower(full)
		if strings.Contains(lv, "inactive") || strings.Contains(lv, "expired") {
			return "❌ " + s
		}
		if strings.Contains(lv, "active") {
			return "✅ " + s
		}
	}
	return s
}

func cellString(value any) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case string:
		return v
	case time.Time:
		return v.Format(time.RFC3339)
	case []byte:
		return string(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func isNumeric(value any) bool {
	switch v := value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	case json.Number:
		return true
	case string:
		_, err := strconv.ParseFloat(v, 64)
		return err == nil
	default:
		return false
	}
}

// datePortion reduces a timestamp to its date part.
func datePortion(value any, fallback string) string {
	if ts, ok := value.(time.Time); ok {
		return ts.Format("2006-01-02")
	}
	s := fallback
	if i := strings.IndexAny(s, "T "); i >= 10 {
		return s[:i]
	}
	return s
}

func rowsJSON(rows []backend.Row) string {
	out, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", rows)
	}
	return string(out)
}

// Schema renders a snapshot as markdown for prompt injection.
func Schema(s backend.Schema) string {
	if len(s) == 0 {
		return "No database schema information available."
	}

	var b strings.Builder
	b.WriteString("# Database Schema\n")

	for _, schemaName := range sortedKeys(s) {
		b.WriteString(fmt.Sprintf("\n## Schema: %s\n", schemaName))
		tables := s[schemaName]
		for _, tableName := range sortedKeys(tables) {
			tbl := tables[tableName]
			kind := tbl.Type
			if kind == "" {
				kind = "TABLE"
			}
			b.WriteString(fmt.Sprintf("\n### %s: %s\n\n", kind, tableName))
			b.WriteString("| Column | Type | Nullable | Default |\n")
			b.WriteString("|--------|------|----------|---------|\n")
			for _, colName := range sortedKeys(tbl.Columns) {
				col := tbl.Columns[colName]
				b.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n", colName, col.DataType, col.IsNullable, col.Default))
			}
		}
	}
	return b.String()
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DisplayTurn is the frontend shape of a conversation entry.
type DisplayTurn struct {
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
	Content     string `json:"content"`
}

// Conversation maps stored turns into the frontend display shape.
func Conversation(turns []session.Turn) []DisplayTurn {
	out := make([]DisplayTurn, len(turns))
	for i, turn := range turns {
		name := "Assistant"
		if turn.Role == session.RoleUser {
			name = "You"
		}
		out[i] = DisplayTurn{Role: turn.Role, DisplayName: name, Content: turn.Content}
	}
	return out
}
