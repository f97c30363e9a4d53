package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
	"go.uber.org/mock/gomock"

	"github.com/rickgao/stock-data/internal/database"
	"github.com/rickgao/stock-data/internal/mocks"
	"github.com/rickgao/stock-data/internal/model"
	"github.com/rickgao/stock-data/internal/report"
)

const dailyBody = `{
	"Meta Data": {"2. Symbol": "IBM"},
	"Time Series (Daily)": {
		"2024-01-03": {"1. open": "101.0", "2. high": "103.5", "3. low": "100.2", "4. close": "102.1", "5. volume": "2000"},
		"2024-01-02": {"1. open": "100.0", "2. high": "105.0", "3. low": "95.0", "4. close": "100.75", "5. volume": "1000"}
	}
}`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stocketl.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"IBM,MSFT", []string{"IBM", "MSFT"}},
		{" ibm , , msft ", []string{"ibm", "msft"}},
		{"", nil},
	}

	for _, tt := range tests {
		got := splitList(tt.in)
		if len(got) != len(tt.want) {
			t.Errorf("splitList(%q) = %v, want %v", tt.in, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("splitList(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
			}
		}
	}
}

func TestLoadConfig_Flags(t *testing.T) {
	t.Setenv("ALPHA_VANTAGE_API_KEY", "test-key")
	path := writeConfig(t, "storage:\n  driver: sqlite\n  path: x.db\njob:\n  symbols: [AAPL]\n")

	root := newRootCommand()
	var (
		gotSymbols   []string
		gotEndpoints []string
		gotWorkers   int
	)
	for _, c := range root.Commands {
		if c.Name == "run" {
			c.Action = func(_ context.Context, cmd *cli.Command) error {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				gotSymbols, gotEndpoints, gotWorkers = cfg.Job.Symbols, cfg.Job.Endpoints, cfg.Job.MaxWorkers
				return nil
			}
		}
	}

	args := []string{"stocketl", "--config", path, "run", "--symbols", "ibm,msft", "--endpoints", "daily", "--workers", "4"}
	if err := root.Run(context.Background(), args); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(gotSymbols) != 2 || gotSymbols[0] != "IBM" || gotSymbols[1] != "MSFT" {
		t.Errorf("symbols = %v, want [IBM MSFT]", gotSymbols)
	}
	if len(gotEndpoints) != 1 || gotEndpoints[0] != "daily" {
		t.Errorf("endpoints = %v, want [daily]", gotEndpoints)
	}
	if gotWorkers != 4 {
		t.Errorf("workers = %d, want 4", gotWorkers)
	}
}

func TestRunCommand_EndToEnd(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if got := r.URL.Query().Get("function"); got != "TIME_SERIES_DAILY" {
			t.Errorf("function = %q, want TIME_SERIES_DAILY", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, dailyBody)
	}))
	defer server.Close()

	dbPath := filepath.Join(t.TempDir(), "stock.db")
	path := writeConfig(t, fmt.Sprintf(`
api:
  base_url: %s
  api_key: test-key
job:
  symbols: [IBM]
  endpoints: [daily]
  max_workers: 1
storage:
  driver: sqlite
  path: %s
logging:
  level: error
`, server.URL, dbPath))

	for i := 0; i < 2; i++ {
		if err := newRootCommand().Run(context.Background(), []string{"stocketl", "--config", path, "run"}); err != nil {
			t.Fatalf("run %d error = %v", i, err)
		}
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("upstream calls = %d, want 2", got)
	}

	db, err := database.OpenSQLite(context.Background(), dbPath, 1)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	defer db.Close()

	assertCount(t, db, "SELECT COUNT(*) FROM companies", 1)
	assertCount(t, db, "SELECT COUNT(*) FROM daily_stock_prices WHERE company_symbol = 'IBM'", 2)
}

func TestMigrateCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "stock.db")
	path := writeConfig(t, fmt.Sprintf("api:\n  api_key: k\nstorage:\n  driver: sqlite\n  path: %s\nlogging:\n  level: error\n", dbPath))

	if err := newRootCommand().Run(context.Background(), []string{"stocketl", "-c", path, "migrate"}); err != nil {
		t.Fatalf("migrate error = %v", err)
	}

	db, err := database.OpenSQLite(context.Background(), dbPath, 1)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	defer db.Close()
	for _, table := range []string{"companies", "daily_stock_prices", "intraday_stock_prices", "sma_indicators"} {
		assertCount(t, db, "SELECT COUNT(*) FROM "+table, 0)
	}
}

func TestRunCommand_InvalidConfig(t *testing.T) {
	t.Setenv("ALPHA_VANTAGE_API_KEY", "")
	path := writeConfig(t, "storage:\n  driver: sqlite\n")

	if err := newRootCommand().Run(context.Background(), []string{"stocketl", "--config", path, "run"}); err == nil {
		t.Fatal("run error = nil, want config error")
	}
}

func assertCount(t *testing.T, db *sql.DB, query string, want int) {
	t.Helper()
	var n int
	if err := db.QueryRow(query).Scan(&n); err != nil {
		t.Fatalf("%s: %v", query, err)
	}
	if n != want {
		t.Errorf("%s = %d, want %d", query, n, want)
	}
}

// -----------------------------------------------------------------------------
// Health
// -----------------------------------------------------------------------------

type healthBody struct {
	Status     string                     `json:"status"`
	Components map[string]json.RawMessage `json:"components"`
}

func getHealth(t *testing.T, h http.Handler) (int, healthBody) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body healthBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode health: %v (%s)", err, rec.Body.String())
	}
	return rec.Code, body
}

func TestHealth(t *testing.T) {
	ctrl := gomock.NewController(t)
	gw := mocks.NewMockGateway(ctrl)
	gw.EXPECT().Ping(gomock.Any()).Return(nil).Times(2)

	state := &healthState{}
	h := newHealthHandler(gw, state)

	code, body := getHealth(t, h)
	if code != http.StatusOK || body.Status != "healthy" {
		t.Errorf("before runs: %d %s, want 200 healthy", code, body.Status)
	}

	rep := report.New()
	rep.Record(model.RunOutcome{Unit: model.WorkUnit{Symbol: "IBM"}, Status: model.StatusSuccess, RowsWritten: 3})
	rep.Record(model.RunOutcome{Unit: model.WorkUnit{Symbol: "BAD"}, Status: model.StatusFailed, Reason: "x"})
	rep.Finish()
	state.started()
	state.finished(rep)

	code, body = getHealth(t, h)
	if code != http.StatusOK || body.Status != "degraded" {
		t.Errorf("after failed unit: %d %s, want 200 degraded", code, body.Status)
	}

	var runs struct {
		Running   bool       `json:"running"`
		Completed int        `json:"completed"`
		Last      runSummary `json:"last"`
	}
	if err := json.Unmarshal(body.Components["runs"], &runs); err != nil {
		t.Fatalf("decode runs: %v", err)
	}
	if runs.Completed != 1 || runs.Running {
		t.Errorf("runs = %+v", runs)
	}
	if _, err := uuid.Parse(runs.Last.RunID); err != nil {
		t.Errorf("run_id %q: %v", runs.Last.RunID, err)
	}
	if runs.Last.Rows != 3 || runs.Last.Failed != 1 {
		t.Errorf("last = %+v, want rows 3, failed 1", runs.Last)
	}
}

func TestHealth_StorageDown(t *testing.T) {
	ctrl := gomock.NewController(t)
	gw := mocks.NewMockGateway(ctrl)
	gw.EXPECT().Ping(gomock.Any()).Return(errors.New("connection refused"))

	code, body := getHealth(t, newHealthHandler(gw, &healthState{}))
	if code != http.StatusServiceUnavailable || body.Status != "unhealthy" {
		t.Errorf("got %d %s, want 503 unhealthy", code, body.Status)
	}
}
