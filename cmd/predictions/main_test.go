package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/router-for-me/predictions/internal/config"
	"github.com/router-for-me/predictions/internal/db"
	"github.com/router-for-me/predictions/internal/prediction"
)

func writeConfig(t *testing.T, dir, endpoint, dbPath string) string {
	t.Helper()
	content := fmt.Sprintf(`api_endpoint: %s
api_token: secret
response_to_field:
  - ts: EventTime
  - score: Score
database_timestamp_field: EventTime
adjust_UTC_to_Local_time: false
log_level: INFO
sql:
  driver: sqlite
  server: localhost
  database: %s
  username: unused
  password: unused
  table: Predictions
`, endpoint, dbPath)
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestRunStoresPrediction(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "token secret" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(`{"results":[{"prediction":{"ts":"2024-01-15T07:30:05Z","score":42}}]}`))
	}))
	defer api.Close()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "predictions.db")
	sqlCfg := config.SQLConfig{Driver: config.DriverSQLite, Database: dbPath}
	conn, err := db.Open(sqlCfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errCreate := conn.Exec(`CREATE TABLE Predictions (EventTime TEXT PRIMARY KEY, Score INTEGER)`).Error; errCreate != nil {
		t.Fatalf("create table: %v", errCreate)
	}
	_ = db.Close(conn)

	var out bytes.Buffer
	if errRun := run(context.Background(), writeConfig(t, dir, api.URL, dbPath), &out); errRun != nil {
		t.Fatalf("run: %v", errRun)
	}
	if !strings.Contains(out.String(), "prediction cycle finished") {
		t.Fatalf("expected summary line, got %q", out.String())
	}
	if _, errStat := os.Stat(filepath.Join(dir, "predictions.log")); errStat != nil {
		t.Fatalf("expected log file next to config: %v", errStat)
	}

	check, err := db.Open(sqlCfg)
	if err != nil {
		t.Fatalf("reopen db: %v", err)
	}
	defer func() { _ = db.Close(check) }()
	var eventTime string
	if errRow := check.Raw(`SELECT EventTime FROM Predictions`).Row().Scan(&eventTime); errRow != nil {
		t.Fatalf("read row: %v", errRow)
	}
	if eventTime != "20240115 07:30:05 AM" {
		t.Fatalf("unexpected stored timestamp %q", eventTime)
	}
}

func TestRunMissingConfig(t *testing.T) {
	errRun := run(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"), &bytes.Buffer{})
	if !config.IsConfigurationError(errRun) {
		t.Fatalf("expected configuration error, got %v", errRun)
	}
	if exitCode(errRun) != 1 {
		t.Fatalf("configuration errors must exit 1")
	}
}

func TestExitCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, 0},
		{"fetch abort", prediction.NewFetchError(503, "down", nil), 0},
		{"mapping abort", prediction.NewMappingError("score"), 0},
		{"database failure", prediction.NewDatabaseError(errors.New("refused"), "insert: refused"), 1},
		{"unexpected", errors.New("boom"), 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := exitCode(tc.err); got != tc.want {
				t.Fatalf("exitCode(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestRootCommandRejectsArguments(t *testing.T) {
	cmd := newRootCommand(&bytes.Buffer{})
	cmd.SetArgs([]string{"extra"})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected error for positional argument")
	}
}
