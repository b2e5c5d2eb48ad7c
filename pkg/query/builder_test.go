package query

import (
	"errors"
	"reflect"
	"regexp"
	"strconv"
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

func placeholders(t *testing.T, sql string) []int {
	t.Helper()
	var out []int
	for _, m := range placeholderRe.FindAllStringSubmatch(sql, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			t.Fatalf("bad placeholder %q", m[0])
		}
		out = append(out, n)
	}
	return out
}

func assertContiguous(t *testing.T, sql string, want int) {
	t.Helper()
	got := placeholders(t, sql)
	if len(got) != want {
		t.Fatalf("expected %d placeholders in %q, got %v", want, sql, got)
	}
	for i, n := range got {
		if n != i+1 {
			t.Fatalf("placeholders not contiguous in %q: %v", sql, got)
		}
	}
}

func TestSelectSkipsAbsentFilters(t *testing.T) {
	from := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	filters := []Clause{
		Opt[string]("status", Equals, nil),
		Filter("date", GreaterOrEqual, from),
		Absent("date", LessOrEqual),
	}
	st, err := Select("SELECT id FROM matches", filters, "date ASC", &Page{Limit: 50, Offset: 0})
	if err != nil {
		t.Fatalf("select: %v", err)
	}

	want := "SELECT id FROM matches WHERE date >= $1 ORDER BY date ASC LIMIT $2 OFFSET $3"
	if st.SQL != want {
		t.Errorf("expected %q, got %q", want, st.SQL)
	}
	if !reflect.DeepEqual(st.Args, []any{from, 50, 0}) {
		t.Errorf("unexpected args %v", st.Args)
	}
	assertContiguous(t, st.SQL, 3)
}

func TestSelectKeepsFalsyValues(t *testing.T) {
	filters := []Clause{
		Opt("status", Equals, strPtr("")),
		Opt("is_home", Equals, boolPtr(false)),
		Filter("score_team", GreaterOrEqual, 0),
	}
	st, err := Select("SELECT id FROM matches", filters, "", nil)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	want := "SELECT id FROM matches WHERE status = $1 AND is_home = $2 AND score_team >= $3"
	if st.SQL != want {
		t.Errorf("expected %q, got %q", want, st.SQL)
	}
	if !reflect.DeepEqual(st.Args, []any{"", false, 0}) {
		t.Errorf("unexpected args %v", st.Args)
	}
}

func TestSelectIsPure(t *testing.T) {
	filters := []Clause{
		Filter("status", Equals, "scheduled"),
		Filter("date", LessThan, "2030-01-01"),
		Filter("date", GreaterThan, "2029-01-01"),
	}
	a, err := Select("SELECT * FROM matches", filters, "date DESC", &Page{Limit: 10, Offset: 20})
	if err != nil {
		t.Fatal(err)
	}
	b, err := Select("SELECT * FROM matches", filters, "date DESC", &Page{Limit: 10, Offset: 20})
	if err != nil {
		t.Fatal(err)
	}
	if a.SQL != b.SQL || !reflect.DeepEqual(a.Args, b.Args) {
		t.Fatalf("builder is not deterministic:\n%q %v\n%q %v", a.SQL, a.Args, b.SQL, b.Args)
	}
	assertContiguous(t, a.SQL, 5)
}

func TestCountMatchesSelectPredicate(t *testing.T) {
	filters := []Clause{
		Filter("status", Equals, "scheduled"),
		Absent("type", Equals),
		Filter("date", LessOrEqual, "2030-01-01"),
	}
	sel, err := Select("SELECT id FROM matches", filters, "date ASC", &Page{Limit: 5, Offset: 5})
	if err != nil {
		t.Fatal(err)
	}
	cnt, err := Count("SELECT COUNT(*) FROM matches", filters)
	if err != nil {
		t.Fatal(err)
	}
	if cnt.SQL != "SELECT COUNT(*) FROM matches WHERE status = $1 AND date <= $2" {
		t.Errorf("unexpected count sql %q", cnt.SQL)
	}
	if !reflect.DeepEqual(cnt.Args, sel.Args[:len(sel.Args)-2]) {
		t.Errorf("count args %v differ from select filter args %v", cnt.Args, sel.Args)
	}
}

func TestSelectWithoutFilters(t *testing.T) {
	st, err := Select("SELECT id FROM matches", nil, "", &Page{Limit: 1, Offset: 2})
	if err != nil {
		t.Fatal(err)
	}
	if st.SQL != "SELECT id FROM matches LIMIT $1 OFFSET $2" {
		t.Errorf("unexpected sql %q", st.SQL)
	}
}

func TestUpdateRendersInOrder(t *testing.T) {
	assigns := []Clause{
		Opt("opponent", Assign, strPtr("FC Rival")),
		Opt[string]("location", Assign, nil),
		Opt("presence_open", Assign, boolPtr(false)),
	}
	st, err := Update("matches", assigns, []string{"updated_at = NOW()"}, Filter("id", Equals, "abc"), "id")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	want := "UPDATE matches SET opponent = $1, presence_open = $2, updated_at = NOW() WHERE id = $3 RETURNING id"
	if st.SQL != want {
		t.Errorf("expected %q, got %q", want, st.SQL)
	}
	if !reflect.DeepEqual(st.Args, []any{"FC Rival", false, "abc"}) {
		t.Errorf("unexpected args %v", st.Args)
	}
	assertContiguous(t, st.SQL, 3)
}

func TestUpdateAllAbsent(t *testing.T) {
	assigns := []Clause{
		Opt[string]("opponent", Assign, nil),
		Absent("location", Assign),
	}
	_, err := Update("matches", assigns, []string{"updated_at = NOW()"}, Filter("id", Equals, 1), "")
	if !errors.Is(err, ErrEmptyUpdate) {
		t.Fatalf("expected ErrEmptyUpdate, got %v", err)
	}
}

func TestRejectsBadIdentifiers(t *testing.T) {
	_, err := Select("SELECT 1", []Clause{Filter("status; DROP TABLE users", Equals, 1)}, "", nil)
	if err == nil {
		t.Fatal("expected identifier error")
	}
	_, err = Update("matches", []Clause{Set("a b", 1)}, nil, Filter("id", Equals, 1), "")
	if err == nil {
		t.Fatal("expected identifier error for assignment")
	}
	_, err = Select("SELECT 1", []Clause{Set("status", "x")}, "", nil)
	if err == nil {
		t.Fatal("assignments must not be accepted as filters")
	}
}

func TestValuesNeverInlined(t *testing.T) {
	evil := "x' OR '1'='1"
	st, err := Select("SELECT id FROM users", []Clause{Filter("email", Equals, evil)}, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if regexp.MustCompile(`'`).MatchString(st.SQL) {
		t.Fatalf("value leaked into sql: %q", st.SQL)
	}
	if st.Args[0] != evil {
		t.Fatalf("value should be passed as argument")
	}
}

func TestCountPresent(t *testing.T) {
	n := CountPresent([]Clause{Set("a", 1), Absent("b", Assign), Opt("c", Assign, strPtr(""))})
	if n != 2 {
		t.Errorf("expected 2, got %d", n)
	}
}
