package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/KaramelBytes/datalens/internal/analysis"
	"github.com/KaramelBytes/datalens/internal/dataset"
	"github.com/KaramelBytes/datalens/internal/parser"
)

const sampleCSV = `Country,Regional indicator,Ladder score,GDP per capita
Finland,Western Europe,7.8,1.5
Denmark,Western Europe,7.6,1.5
Japan,East Asia,5.9,1.4
`

func fastOptions() Options {
	return Options{
		HTTPTimeout:      2 * time.Second,
		RetryMaxAttempts: 3,
		RetryBaseDelay:   time.Millisecond,
		RetryMaxDelay:    5 * time.Millisecond,
	}
}

// countingServer serves the given statuses in order (repeating the last) and
// answers 2xx requests with body.
func countingServer(t *testing.T, statuses []int, body string) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		i := int(atomic.AddInt32(&hits, 1)) - 1
		if i >= len(statuses) {
			i = len(statuses) - 1
		}
		w.WriteHeader(statuses[i])
		if statuses[i] < 300 {
			_, _ = w.Write([]byte(body))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestFetch_FallbackWhenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/data.csv"
	srv.Close()

	p := New(url, fastOptions())
	res, err := p.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.Outcome != Fallback {
		t.Fatalf("outcome = %s, want fallback", res.Outcome)
	}
	var sue *SourceUnavailableError
	if !errors.As(res.Cause, &sue) || sue.Source != url {
		t.Fatalf("cause should be SourceUnavailableError for %s, got %v", url, res.Cause)
	}
	if res.Data.Len() != 10 || len(res.Data.Columns) != 9 {
		t.Fatalf("demo dataset shape = %dx%d, want 10x9", res.Data.Len(), len(res.Data.Columns))
	}
	if diff := cmp.Diff(demoHeader, res.Data.Names()); diff != "" {
		t.Fatalf("demo columns mismatch (-want +got):\n%s", diff)
	}
}

func TestFetch_FallbackOnErrorStatus(t *testing.T) {
	srv, hits := countingServer(t, []int{http.StatusNotFound}, "")
	p := New(srv.URL+"/missing.csv", fastOptions())
	res, err := p.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	var sue *SourceUnavailableError
	if res.Outcome != Fallback || !errors.As(res.Cause, &sue) || sue.StatusCode != http.StatusNotFound {
		t.Fatalf("expected fallback with 404 cause, got %s %v", res.Outcome, res.Cause)
	}
	if got := atomic.LoadInt32(hits); got != 1 {
		t.Fatalf("404 should not be retried, hits=%d", got)
	}
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	srv, hits := countingServer(t, []int{http.StatusServiceUnavailable, http.StatusTooManyRequests, http.StatusOK}, sampleCSV)
	p := New(srv.URL+"/data.csv", fastOptions())
	res, err := p.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.Outcome != Fetched || res.Cause != nil {
		t.Fatalf("expected fetched, got %s (%v)", res.Outcome, res.Cause)
	}
	if res.Data.Len() != 3 {
		t.Fatalf("rows = %d", res.Data.Len())
	}
	if got := atomic.LoadInt32(hits); got != 3 {
		t.Fatalf("hits = %d, want 3", got)
	}
}

func TestFetch_RetriesExhaustedFallsBack(t *testing.T) {
	srv, hits := countingServer(t, []int{http.StatusBadGateway}, "")
	p := New(srv.URL+"/data.csv", fastOptions())
	res, err := p.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.Outcome != Fallback {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	if got := atomic.LoadInt32(hits); got != 3 {
		t.Fatalf("hits = %d, want 3 attempts", got)
	}
}

func TestFetch_DataFormatErrorIsReturnedAndNotCached(t *testing.T) {
	srv, hits := countingServer(t, []int{http.StatusOK}, "a,b\n1,2,3\n")
	p := New(srv.URL+"/bad.csv?raw=1", fastOptions())
	for i := 0; i < 2; i++ {
		res, err := p.Fetch(context.Background())
		var dfe *DataFormatError
		if !errors.As(err, &dfe) || res != nil {
			t.Fatalf("attempt %d: expected DataFormatError, got %v", i, err)
		}
		if dfe.Format != "csv" {
			t.Fatalf("format = %q", dfe.Format)
		}
	}
	if got := atomic.LoadInt32(hits); got != 2 {
		t.Fatalf("failed parse should not be cached, hits=%d", got)
	}
	if _, err := p.Summarize(context.Background()); err == nil {
		t.Fatalf("summarize should surface the parse error")
	}
}

func TestFetch_CachesUntilInvalidate(t *testing.T) {
	srv, hits := countingServer(t, []int{http.StatusOK}, sampleCSV)
	p := New(srv.URL+"/data.csv", fastOptions())
	ctx := context.Background()
	if _, err := p.Analyze(ctx); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if _, err := p.Summarize(ctx); err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if _, err := p.Records(ctx); err != nil {
		t.Fatalf("records: %v", err)
	}
	if got := atomic.LoadInt32(hits); got != 1 {
		t.Fatalf("hits = %d, want 1", got)
	}
	p.Invalidate()
	if _, err := p.Fetch(ctx); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := atomic.LoadInt32(hits); got != 2 {
		t.Fatalf("hits after invalidate = %d, want 2", got)
	}
}

func TestFetchFrom_RejectsOtherLocator(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte(sampleCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	p := New(path, fastOptions())
	if _, err := p.FetchFrom(context.Background(), "https://example.org/other.csv"); !errors.Is(err, ErrLocatorOverride) {
		t.Fatalf("expected ErrLocatorOverride, got %v", err)
	}
	res, err := p.FetchFrom(context.Background(), path)
	if err != nil || res.Outcome != Fetched {
		t.Fatalf("same locator should fetch, got %v %v", res, err)
	}
}

func TestFetch_LocalJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	body := `[{"Country":"Finland","Ladder score":7.8},{"Country":"Japan","Ladder score":5.9}]`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := New(path, fastOptions()).Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.Outcome != Fetched || res.Data.Len() != 2 {
		t.Fatalf("unexpected result %s rows=%d", res.Outcome, res.Data.Len())
	}
}

func TestClean_ImputesMedian(t *testing.T) {
	raw := dataset.New([]string{"Id", "Value"}, []dataset.Record{
		{dataset.TextValue("a"), dataset.NumberValue(1)},
		{dataset.TextValue("b"), dataset.NumberValue(2)},
		{dataset.TextValue("c"), dataset.NullValue()},
		{dataset.TextValue("d"), dataset.NumberValue(4)},
		{dataset.TextValue("e"), dataset.NumberValue(5)},
	})
	ds, rep := Clean(raw, nil)
	j := ds.Index("value")
	if j < 0 {
		t.Fatalf("column not normalized: %v", ds.Names())
	}
	if got := ds.Rows[2][j].Num; got != 3 {
		t.Fatalf("imputed = %v, want 3", got)
	}
	want := []Imputation{{Column: "value", Count: 1, Value: dataset.NumberValue(3)}}
	if diff := cmp.Diff(want, rep.Imputations); diff != "" {
		t.Fatalf("imputations mismatch (-want +got):\n%s", diff)
	}
	if !raw.Rows[2][1].IsNull() || raw.Columns[1].Name != "Value" {
		t.Fatalf("raw dataset was modified")
	}
}

func TestClean_TextModeAndUnknown(t *testing.T) {
	raw := dataset.New([]string{"Id", "Region", "Note"}, []dataset.Record{
		{dataset.NumberValue(1), dataset.TextValue(" B "), dataset.NullValue()},
		{dataset.NumberValue(2), dataset.TextValue("a"), dataset.NullValue()},
		{dataset.NumberValue(3), dataset.TextValue("A"), dataset.NullValue()},
		{dataset.NumberValue(4), dataset.TextValue("b"), dataset.NullValue()},
		{dataset.NumberValue(5), dataset.NullValue(), dataset.NullValue()},
	})
	ds, _ := Clean(raw, nil)
	region, note := ds.Index("region"), ds.Index("note")
	if got := ds.Rows[4][region].Str; got != "a" {
		t.Fatalf("mode tie should pick smallest value, got %q", got)
	}
	if got := ds.Rows[0][region].Str; got != "b" {
		t.Fatalf("text should be trimmed and lowercased, got %q", got)
	}
	for i, r := range ds.Rows {
		if r[note].Str != UnknownText {
			t.Fatalf("row %d note = %q", i, r[note].Str)
		}
	}
}

func messyDataset() *dataset.Dataset {
	return dataset.New([]string{"Country", "Regional indicator", "Ladder score", "Generosity"}, []dataset.Record{
		{dataset.TextValue("Finland"), dataset.TextValue("Western Europe"), dataset.NumberValue(7.8), dataset.NumberValue(0.35)},
		{dataset.TextValue("Finland"), dataset.TextValue("Western Europe"), dataset.NumberValue(7.8), dataset.NumberValue(0.35)},
		{dataset.TextValue("Japan "), dataset.NullValue(), dataset.NumberValue(5.9), dataset.NullValue()},
		{dataset.TextValue("USA"), dataset.TextValue("North America"), dataset.NullValue(), dataset.NumberValue(0.15)},
		{dataset.TextValue("Canada"), dataset.TextValue("North America"), dataset.NumberValue(7.2), dataset.NumberValue(0.28)},
	})
}

func TestClean_NoMissingNoDuplicates(t *testing.T) {
	ds, rep := Clean(messyDataset(), nil)
	if rep.DuplicatesRemoved != 1 {
		t.Fatalf("duplicates removed = %d", rep.DuplicatesRemoved)
	}
	if diff := cmp.Diff([]string{"country", "regional_indicator", "ladder_score", "generosity"}, ds.Names()); diff != "" {
		t.Fatalf("names mismatch (-want +got):\n%s", diff)
	}
	for j, c := range ds.Columns {
		if n := ds.MissingCount(j); n != 0 {
			t.Fatalf("column %s has %d missing", c.Name, n)
		}
	}
	seen := map[string]bool{}
	for i, r := range ds.Rows {
		if seen[r.Key()] {
			t.Fatalf("row %d duplicates an earlier row", i)
		}
		seen[r.Key()] = true
	}
}

func TestClean_Idempotent(t *testing.T) {
	raw := messyDataset()
	a, _ := Clean(raw, nil)
	b, _ := Clean(raw, nil)
	ja, err := json.Marshal(a.Records())
	if err != nil {
		t.Fatal(err)
	}
	jb, err := json.Marshal(b.Records())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(ja, jb) {
		t.Fatalf("cleaning twice differs:\n%s\n%s", ja, jb)
	}
}

// TestClean_SequentialOutlierFilter pins the column-by-column narrowing: the
// second column's bounds are measured on the rows left by the first.
func TestClean_SequentialOutlierFilter(t *testing.T) {
	var rows []dataset.Record
	for i := 0; i < 20; i++ {
		a := 10.0
		if i == 19 {
			a = 1000
		}
		rows = append(rows, dataset.Record{
			dataset.TextValue(fmt.Sprintf("c%d", i)),
			dataset.NumberValue(a),
			dataset.NumberValue(float64(i)),
		})
	}
	ds, rep := Clean(dataset.New([]string{"name", "a", "b"}, rows), nil)
	if rep.RowsOut != 19 || ds.Len() != 19 {
		t.Fatalf("rows out = %d, want 19", rep.RowsOut)
	}
	if len(rep.OutlierFilters) != 2 {
		t.Fatalf("filters = %d", len(rep.OutlierFilters))
	}
	if f := rep.OutlierFilters[0]; f.Column != "a" || f.Removed != 1 {
		t.Fatalf("first filter = %+v", f)
	}
	second := rep.OutlierFilters[1]
	if second.Column != "b" || second.Removed != 0 || float64(second.Mean) != 9 {
		t.Fatalf("second filter should see 19 rows with mean 9, got %+v", second)
	}
	for _, f := range rep.OutlierFilters {
		if !f.Std.Defined() || f.Std == 0 {
			continue
		}
		j := ds.Index(f.Column)
		for _, v := range ds.Floats(j) {
			if v < float64(f.Lower) || v > float64(f.Upper) {
				t.Fatalf("%s value %v outside [%v, %v]", f.Column, v, f.Lower, f.Upper)
			}
		}
	}
}

func TestClean_ConstantColumnRemovesNothing(t *testing.T) {
	raw := dataset.New([]string{"k", "v"}, []dataset.Record{
		{dataset.TextValue("x"), dataset.NumberValue(1)},
		{dataset.TextValue("y"), dataset.NumberValue(1)},
	})
	_, rep := Clean(raw, nil)
	if rep.RowsOut != 2 {
		t.Fatalf("rows out = %d", rep.RowsOut)
	}
	if f := rep.OutlierFilters[0]; f.Std != 0 || f.Lower.Defined() {
		t.Fatalf("zero deviation should leave bounds undefined, got %+v", f)
	}
}

func TestClean_NumericLookingTextIsNotDeduplicated(t *testing.T) {
	raw, err := parser.Parse("codes.csv", []byte("name,code\nx,1.0\nx,1\ny,abc\nx,1\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ds, rep := Clean(raw, nil)
	if rep.DuplicatesRemoved != 1 || rep.RowsOut != 3 {
		t.Fatalf("duplicates=%d rows out=%d, want 1 and 3", rep.DuplicatesRemoved, rep.RowsOut)
	}
	var codes []string
	for _, r := range ds.Rows {
		codes = append(codes, r[1].Str)
	}
	if diff := cmp.Diff([]string{"1.0", "1", "abc"}, codes); diff != "" {
		t.Fatalf("codes mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessor_FallbackEndToEnd(t *testing.T) {
	p := New(filepath.Join(t.TempDir(), "absent.csv"), fastOptions())
	ctx := context.Background()

	sum, err := p.Summarize(ctx)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if sum.TotalRows != 10 || sum.TotalColumns != 10 {
		t.Fatalf("summary shape = %dx%d", sum.TotalRows, sum.TotalColumns)
	}
	wantCols := []string{
		"country", "regional_indicator", "ladder_score", "gdp_per_capita", "social_support",
		"healthy_life_expectancy", "freedom_to_make_life_choices", "generosity",
		"perceptions_of_corruption", "happiness_category",
	}
	if diff := cmp.Diff(wantCols, sum.ColumnTypes.Keys()); diff != "" {
		t.Fatalf("columns mismatch (-want +got):\n%s", diff)
	}
	if typ, _ := sum.ColumnTypes.Get("ladder_score"); typ != "float64" {
		t.Fatalf("ladder_score type = %s", typ)
	}
	for _, e := range sum.MissingValues.Entries() {
		if e.Value != 0 {
			t.Fatalf("column %s has %d missing", e.Key, e.Value)
		}
	}
	if len(sum.SampleData) != DefaultSampleRows {
		t.Fatalf("sample rows = %d", len(sum.SampleData))
	}

	rep, err := p.Analyze(ctx)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	top := rep.TopHappyCountries.Entries()
	if len(top) != 10 || top[0].Key != "finland" || float64(top[0].Value) != 7.8 {
		t.Fatalf("unexpected top ranking %+v", top)
	}
	if first := rep.RegionHappiness.Keys()[0]; first != "oceania" {
		t.Fatalf("highest region = %s", first)
	}
	out, err := json.Marshal(rep)
	if err != nil {
		t.Fatalf("marshal report: %v", err)
	}
	for _, key := range []string{`"stats"`, `"factor_correlations"`, `"happiness_category_counts"`, `"data"`} {
		if !strings.Contains(string(out), key) {
			t.Fatalf("report json missing %s", key)
		}
	}
}

func TestProcessor_CustomSchemaDegrades(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte(sampleCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	schema := analysis.DefaultSchema()
	schema.Region = "continent"
	p := New(path, Options{Schema: schema})
	rep, err := p.Analyze(context.Background())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if rep.RegionHappiness != nil {
		t.Fatalf("region block should be omitted")
	}
	if rep.TopHappyCountries == nil || rep.FactorCorrelations == nil {
		t.Fatalf("score blocks should still run")
	}
	r, _ := rep.FactorCorrelations.Get("gdp_per_capita")
	if !r.Defined() || math.Abs(float64(r)) > 1 {
		t.Fatalf("correlation = %v", r)
	}
}
