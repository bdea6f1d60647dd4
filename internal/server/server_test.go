package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/KaramelBytes/datalens/internal/config"
)

const happinessCSV = `Country,Regional indicator,Ladder score,GDP per capita,Social support
Finland,Western Europe,7.8,1.5,0.96
Denmark,Western Europe,7.6,1.5,0.95
Canada,North America,7.2,1.45,0.92
USA,North America,6.8,1.5,0.85
Japan,East Asia,5.9,1.4,0.9
`

type apiResponse struct {
	Status  string                     `json:"status"`
	Data    []map[string]any           `json:"data"`
	Results map[string]json.RawMessage `json:"results"`
	Summary map[string]json.RawMessage `json:"summary"`
	Message string                     `json:"message"`
}

func testConfig(t *testing.T, source string) *config.Global {
	t.Helper()
	return &config.Global{
		SourceURL:        source,
		RetryMaxAttempts: 1,
		RetryBaseDelayMs: 1,
		RetryMaxDelayMs:  1,
		HTTPTimeoutSec:   2,
		CORSOrigins:      []string{"*"},
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func do(t *testing.T, s *Server, method, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) apiResponse {
	t.Helper()
	var out apiResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestAPIData(t *testing.T) {
	src := writeFile(t, t.TempDir(), "happiness.csv", happinessCSV)
	s := New(testConfig(t, src), nil)

	rec := do(t, s, http.MethodGet, "/api/data", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}
	resp := decode(t, rec)
	if resp.Status != "success" || len(resp.Data) != 5 {
		t.Fatalf("unexpected response %+v", resp)
	}
	// records come straight from the fetch stage: original names and text
	first := resp.Data[0]
	if first["Country"] != "Finland" || first["Regional indicator"] != "Western Europe" || first["Ladder score"] != 7.8 {
		t.Fatalf("unexpected first record %v", first)
	}
	if _, ok := first["happiness_category"]; ok {
		t.Fatalf("raw records should not carry derived columns: %v", first)
	}
	if strings.Contains(resp.Message, "demo") {
		t.Fatalf("message should not mention the demo dataset: %q", resp.Message)
	}
}

func TestAPIData_Fallback(t *testing.T) {
	s := New(testConfig(t, filepath.Join(t.TempDir(), "absent.csv")), nil)
	rec := do(t, s, http.MethodGet, "/api/data", nil)
	resp := decode(t, rec)
	if rec.Code != http.StatusOK || len(resp.Data) != 10 {
		t.Fatalf("status=%d rows=%d", rec.Code, len(resp.Data))
	}
	if len(resp.Data[0]) != 9 || !strings.Contains(resp.Message, "demo dataset") {
		t.Fatalf("unexpected fallback response %v %q", resp.Data[0], resp.Message)
	}
}

func TestAPIProcess_DefaultAndOverride(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, happinessCSV)
	}))
	defer remote.Close()

	s := New(testConfig(t, filepath.Join(t.TempDir(), "absent.csv")), nil)

	rec := do(t, s, http.MethodGet, "/api/process", nil)
	resp := decode(t, rec)
	if rec.Code != http.StatusOK || resp.Status != "success" {
		t.Fatalf("default process failed: %d %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(resp.Message, "demo dataset") {
		t.Fatalf("fallback should be reported, got %q", resp.Message)
	}
	for _, key := range []string{"stats", "region_happiness", "factor_correlations", "correlation_matrix", "top_happy_countries", "data"} {
		if _, ok := resp.Results[key]; !ok {
			t.Fatalf("results missing %q", key)
		}
	}

	rec = do(t, s, http.MethodGet, "/api/process?url="+remote.URL+"/happiness.csv", nil)
	resp = decode(t, rec)
	if rec.Code != http.StatusOK {
		t.Fatalf("override process failed: %d %s", rec.Code, rec.Body.String())
	}
	var data []map[string]any
	if err := json.Unmarshal(resp.Results["data"], &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if len(data) != 5 {
		t.Fatalf("override rows = %d, want 5", len(data))
	}

	// The shared processor keeps its own source.
	rec = do(t, s, http.MethodGet, "/api/data", nil)
	if got := len(decode(t, rec).Data); got != 10 {
		t.Fatalf("default rows = %d, want 10 demo rows", got)
	}
}

func TestAPIProcess_RejectsLocalOverride(t *testing.T) {
	s := New(testConfig(t, filepath.Join(t.TempDir(), "absent.csv")), nil)
	rec := do(t, s, http.MethodGet, "/api/process?url=/etc/passwd", nil)
	if rec.Code != http.StatusBadRequest || decode(t, rec).Status != "error" {
		t.Fatalf("expected 400 error envelope, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestAPISummary(t *testing.T) {
	src := writeFile(t, t.TempDir(), "happiness.csv", happinessCSV)
	s := New(testConfig(t, src), nil)
	rec := do(t, s, http.MethodGet, "/api/summary", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode(t, rec)
	var rows, cols int
	if err := json.Unmarshal(resp.Summary["total_rows"], &rows); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(resp.Summary["total_columns"], &cols); err != nil {
		t.Fatal(err)
	}
	if rows != 5 || cols != 6 {
		t.Fatalf("summary shape = %dx%d, want 5x6", rows, cols)
	}
	var missing map[string]int
	if err := json.Unmarshal(resp.Summary["missing_values"], &missing); err != nil {
		t.Fatal(err)
	}
	for col, n := range missing {
		if n != 0 {
			t.Fatalf("column %s has %d missing", col, n)
		}
	}
}

func TestAPI_ErrorEnvelope(t *testing.T) {
	src := writeFile(t, t.TempDir(), "broken.csv", "a,b\n1,2,3\n")
	s := New(testConfig(t, src), nil)
	for _, target := range []string{"/api/data", "/api/process", "/api/summary"} {
		rec := do(t, s, http.MethodGet, target, nil)
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("%s: status = %d", target, rec.Code)
		}
		resp := decode(t, rec)
		if resp.Status != "error" || !strings.Contains(resp.Message, "parse csv") {
			t.Fatalf("%s: unexpected envelope %+v", target, resp)
		}
	}
}

func TestCORS(t *testing.T) {
	src := writeFile(t, t.TempDir(), "happiness.csv", happinessCSV)

	s := New(testConfig(t, src), nil)
	rec := do(t, s, http.MethodOptions, "/api/data", http.Header{"Origin": {"http://localhost:3000"}})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow origin = %q", got)
	}

	cfg := testConfig(t, src)
	cfg.CORSOrigins = []string{"http://localhost:3000"}
	s = New(cfg, nil)
	rec = do(t, s, http.MethodGet, "/healthz", http.Header{"Origin": {"http://localhost:3000"}})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("allowed origin = %q", got)
	}
	rec = do(t, s, http.MethodGet, "/healthz", http.Header{"Origin": {"http://evil.example"}})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("foreign origin should not be allowed, got %q", got)
	}
}

func TestStaticSPAFallback(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "index.html", "<html>app</html>")
	writeFile(t, dir, "main.js", "console.log(1)")

	cfg := testConfig(t, filepath.Join(dir, "absent.csv"))
	cfg.StaticDir = dir
	s := New(cfg, nil)

	cases := map[string]string{
		"/":                "<html>app</html>",
		"/main.js":         "console.log(1)",
		"/dashboard/2021":  "<html>app</html>",
		"/../../etc/hosts": "<html>app</html>",
	}
	got := map[string]string{}
	for target := range cases {
		rec := do(t, s, http.MethodGet, target, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", target, rec.Code)
		}
		got[target] = rec.Body.String()
	}
	if diff := cmp.Diff(cases, got); diff != "" {
		t.Fatalf("static bodies mismatch (-want +got):\n%s", diff)
	}

	s = New(testConfig(t, filepath.Join(dir, "absent.csv")), nil)
	if rec := do(t, s, http.MethodGet, "/", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("no static dir: status = %d", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := New(testConfig(t, filepath.Join(t.TempDir(), "absent.csv")), nil)
	rec := do(t, s, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"status":"ok"}` {
		t.Fatalf("healthz = %d %q", rec.Code, rec.Body.String())
	}
	rec = do(t, s, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "datalens_http_requests_total") {
		t.Fatalf("metrics missing request counter")
	}
}
