package format

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sqlchat/sqlchat/internal/backend"
	"github.com/sqlchat/sqlchat/internal/session"
)

func TestResults_Empty(t *testing.T) {
	if got := Results(nil); got != NoResults {
		t.Errorf("nil result: got %q", got)
	}
	if got := Results(&backend.Result{Columns: []string{"a"}}); got != NoResults {
		t.Errorf("zero rows: got %q", got)
	}
}

func TestResults_SmallTableShape(t *testing.T) {
	res := &backend.Result{
		Columns: []string{"promotion_id", "promotion_name", "status"},
		Rows: []backend.Row{
			{"promotion_id": 1, "promotion_name": "Summer Sale", "status": "active"},
			{"promotion_id": 2, "promotion_name": "Winter Sale", "status": "expired"},
			{"promotion_id": 3, "promotion_name": "Launch", "status": "pending"},
		},
	}

	got := Results(res)
	lines := strings.Split(got, "\n")

	// header + separator + 3 data rows
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d:\n%s", len(lines), got)
	}
	headerCells := strings.Count(lines[0], "|") - 1
	if headerCells != 3 {
		t.Errorf("expected 3 header cells, got %d: %s", headerCells, lines[0])
	}
	if lines[0] != "| promotion_id | promotion_name | status |" {
		t.Errorf("columns reordered: %s", lines[0])
	}
	if !strings.Contains(lines[2], "Summer Sale") || !strings.Contains(lines[4], "Launch") {
		t.Errorf("rows reordered:\n%s", got)
	}
}

func TestResults_IDEmphasis(t *testing.T) {
	res := &backend.Result{
		Columns: []string{"promotion_id", "note"},
		Rows:    []backend.Row{{"promotion_id": 42, "note": "x"}},
	}
	got := Results(res)
	if !strings.Contains(got, "**42**") {
		t.Errorf("numeric id not emphasised:\n%s", got)
	}
}

func TestResults_IDEmphasisSkipsNonNumeric(t *testing.T) {
	res := &backend.Result{
		Columns: []string{"external_id"},
		Rows:    []backend.Row{{"external_id": "abc-123"}},
	}
	got := Results(res)
	if strings.Contains(got, "**") {
		t.Errorf("non-numeric id emphasised:\n%s", got)
	}
}

func TestResults_DateMarker(t *testing.T) {
	res := &backend.Result{
		Columns: []string{"promotion_start_date"},
		Rows: []backend.Row{
			{"promotion_start_date": "2026-08-01T00:00:00Z"},
			{"promotion_start_date": time.Date(2026, 9, 15, 10, 30, 0, 0, time.UTC)},
		},
	}
	got := Results(res)
	if !strings.Contains(got, "📅 2026-08-01") {
		t.Errorf("string date not reduced:\n%s", got)
	}
	if strings.Contains(got, "00:00:00") || strings.Contains(got, "10:30") {
		t.Errorf("time portion leaked:\n%s", got)
	}
	if !strings.Contains(got, "📅 2026-09-15") {
		t.Errorf("time.Time date not reduced:\n%s", got)
	}
}

func TestResults_StatusMarkers(t *testing.T) {
	res := &backend.Result{
		Columns: []string{"status"},
		Rows: []backend.Row{
			{"status": "active"},
			{"status": "Inactive"},
			{"status": "EXPIRED"},
			{"status": "pending"},
		},
	}
	got := Results(res)
	if !strings.Contains(got, "✅ active") {
		t.Errorf("missing success marker:\n%s", got)
	}
	if !strings.Contains(got, "❌ Inactive") {
		t.Errorf("inactive must win over the active substring:\n%s", got)
	}
	if !strings.Contains(got, "❌ EXPIRED") {
		t.Errorf("missing failure marker for expired:\n%s", got)
	}
	if strings.Contains(got, "✅ pending") || strings.Contains(got, "❌ pending") {
		t.Errorf("pending should be unmarked:\n%s", got)
	}
}

func TestResults_MediumBandTruncates(t *testing.T) {
	long := "this description is well over twenty characters"
	rows := make([]backend.Row, 8)
	for i := range rows {
		rows[i] = backend.Row{"description": long}
	}
	res := &backend.Result{Columns: []string{"description"}, Rows: rows}

	got := Results(res)
	if strings.Contains(got, long) {
		t.Errorf("long string not truncated:\n%s", got)
	}
	if !strings.Contains(got, long[:17]+"...") {
		t.Errorf("expected 17-char prefix with ellipsis:\n%s", got)
	}
}

func TestResults_MediumBandTruncatesDecoratedColumns(t *testing.T) {
	uuid := "9f8e7d6c-5b4a-3210-fedc-ba9876543210"
	status := "temporarily suspended pending review"
	rows := make([]backend.Row, 8)
	for i := range rows {
		rows[i] = backend.Row{"external_id": uuid, "status": status}
	}
	res := &backend.Result{Columns: []string{"external_id", "status"}, Rows: rows}

	got := Results(res)
	if strings.Contains(got, uuid) {
		t.Errorf("string id not truncated:\n%s", got)
	}
	if !strings.Contains(got, uuid[:17]+"...") {
		t.Errorf("expected truncated id value:\n%s", got)
	}
	if strings.Contains(got, status) {
		t.Errorf("status value not truncated:\n%s", got)
	}
	if !strings.Contains(got, status[:17]+"...") {
		t.Errorf("expected truncated status value:\n%s", got)
	}
}

func TestResults_MediumBandStatusMarkerMatchesFullValue(t *testing.T) {
	// Long enough that the marker keyword sits past the truncation point.
	value := "promotion campaign currently inactive"
	rows := make([]backend.Row, 8)
	for i := range rows {
		rows[i] = backend.Row{"status": value}
	}
	res := &backend.Result{Columns: []string{"status"}, Rows: rows}

	got := Results(res)
	if !strings.Contains(got, "❌ "+value[:17]+"...") {
		t.Errorf("marker must reflect the full value, display the truncated one:\n%s", got)
	}
}

func TestResults_SmallBandDoesNotTruncate(t *testing.T) {
	long := "this description is well over twenty characters"
	res := &backend.Result{
		Columns: []string{"description"},
		Rows:    []backend.Row{{"description": long}},
	}
	if got := Results(res); !strings.Contains(got, long) {
		t.Errorf("small band must show full values:\n%s", got)
	}
}

func TestResults_WideRestrictsColumns(t *testing.T) {
	columns := []string{"promotion_id", "promo_code", "description", "owner_name"}
	rows := make([]backend.Row, 25)
	for i := range rows {
		rows[i] = backend.Row{
			"promotion_id": i + 1,
			"promo_code":   fmt.Sprintf("CODE%d", i),
			"description":  "long descriptive text goes here",
			"owner_name":   "someone",
		}
	}
	res := &backend.Result{Columns: columns, Rows: rows}

	got := Results(res)
	header := strings.Split(got, "\n")[2]
	if strings.Contains(header, "description") {
		t.Errorf("restricted header still has description: %s", header)
	}
	for _, want := range []string{"promotion_id", "promo_code", "owner_name"} {
		if !strings.Contains(header, want) {
			t.Errorf("restricted header missing %s: %s", want, header)
		}
	}

	// every row rendered
	for i := 1; i <= 25; i++ {
		if !strings.Contains(got, fmt.Sprintf("**%d**", i)) {
			t.Errorf("row %d missing from restricted table", i)
		}
	}

	// supplementary block has the first rows in full
	if !strings.Contains(got, "First 5 rows in full:") {
		t.Errorf("missing supplementary block:\n%s", got)
	}
	if !strings.Contains(got, "long descriptive text goes here") {
		t.Errorf("supplementary block should be unrestricted:\n%s", got)
	}
}

func TestResults_WideFallsBackToFirstColumn(t *testing.T) {
	rows := make([]backend.Row, 21)
	for i := range rows {
		rows[i] = backend.Row{"total": i, "amount": i * 2}
	}
	res := &backend.Result{Columns: []string{"total", "amount"}, Rows: rows}

	got := Results(res)
	header := strings.Split(got, "\n")[2]
	if header != "| total |" {
		t.Errorf("expected exactly the first declared column, got %s", header)
	}
}

func TestResults_Deterministic(t *testing.T) {
	res := &backend.Result{
		Columns: []string{"id", "name"},
		Rows:    []backend.Row{{"id": 1, "name": "a"}, {"id": 2, "name": "b"}},
	}
	if Results(res) != Results(res) {
		t.Error("formatting is not deterministic")
	}
}

func TestSchema_Markdown(t *testing.T) {
	s := backend.Schema{
		"public": {
			"promotions": backend.Table{
				Type: "BASE TABLE",
				Columns: map[string]backend.Column{
					"id":     {DataType: "integer", IsNullable: "NO", Default: "nextval('promotions_id_seq')"},
					"status": {DataType: "text", IsNullable: "YES"},
				},
			},
		},
	}

	got := Schema(s)
	for _, want := range []string{
		"# Database Schema",
		"## Schema: public",
		"### BASE TABLE: promotions",
		"| id | integer | NO | nextval('promotions_id_seq') |",
		"| status | text | YES |  |",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in:\n%s", want, got)
		}
	}
}

func TestSchema_Empty(t *testing.T) {
	if got := Schema(nil); got != "No database schema information available." {
		t.Errorf("got %q", got)
	}
}

func TestConversation(t *testing.T) {
	turns := []session.Turn{
		{Role: session.RoleUser, Content: "hi"},
		{Role: session.RoleAssistant, Content: "hello"},
	}
	out := Conversation(turns)
	if len(out) != 2 {
		t.Fatalf("expected 2 display turns, got %d", len(out))
	}
	if out[0].DisplayName != "You" || out[1].DisplayName != "Assistant" {
		t.Errorf("unexpected display names: %+v", out)
	}
}
