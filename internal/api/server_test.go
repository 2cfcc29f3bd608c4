package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fritzwatch/internal/config"
	"fritzwatch/internal/model"
	"fritzwatch/internal/recent"
	"fritzwatch/internal/stats"
	"fritzwatch/internal/storage"
)

func testManager(t *testing.T) *config.Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	content := "device:\n  host: 192.168.178.1\n  username: u\n  password: p\napi:\n  enabled: false\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	m, err := config.NewManager(path)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func testServer(t *testing.T) (*Server, storage.Store) {
	t.Helper()
	store, err := storage.NewSQLite("file:" + t.TempDir() + "/api.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init store: %v", err)
	}
	return &Server{
		cfg:     testManager(t),
		store:   store,
		stats:   stats.NewStore(),
		recent:  recent.NewBuffer(10),
		version: "test",
		started: time.Now().UTC(),
	}, store
}

func TestHandleHealth(t *testing.T) {
	server, _ := testServer(t)
	rr := httptest.NewRecorder()
	server.handleHealth(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}
}

func TestHandleStatus(t *testing.T) {
	server, _ := testServer(t)
	server.stats.RecordPoll(4, 2)

	rr := httptest.NewRecorder()
	server.handleStatus(rr, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	var resp statusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Device != "192.168.178.1" || resp.Version != "test" {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Poll.Polls != 1 || resp.Poll.LastIncorporated != 2 {
		t.Fatalf("poll stats = %+v", resp.Poll)
	}

	rr = httptest.NewRecorder()
	server.handleStatus(rr, httptest.NewRequest(http.MethodPost, "/status", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST status = %d", rr.Code)
	}
}

func TestHandleLogs(t *testing.T) {
	server, store := testServer(t)
	base := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)
	if err := store.Append(context.Background(), []model.Record{
		{Timestamp: base, Message: "a", MessageID: 1, CategoryID: 1},
		{Timestamp: base.Add(time.Minute), Message: "b", MessageID: 2, CategoryID: 1},
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	rr := httptest.NewRecorder()
	server.handleLogs(rr, httptest.NewRequest(http.MethodGet, "/logs?limit=1", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	var resp struct {
		Logs  []model.Record `json:"logs"`
		Count int            `json:"count"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 1 || len(resp.Logs) != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Logs[0].MessageID != 2 {
		t.Fatalf("newest first violated: %+v", resp.Logs[0])
	}
}

func TestHandleRecent(t *testing.T) {
	server, _ := testServer(t)
	base := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)
	server.recent.Add(
		model.Record{Timestamp: base, Message: "a", MessageID: 1, CategoryID: 1},
		model.Record{Timestamp: base.Add(time.Hour), Message: "b", MessageID: 2, CategoryID: 1},
	)

	rr := httptest.NewRecorder()
	server.handleRecent(rr, httptest.NewRequest(http.MethodGet, "/recent", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp struct {
		Records []model.Record `json:"records"`
		Count   int            `json:"count"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 2 {
		t.Fatalf("count = %d", resp.Count)
	}

	since := base.Add(30 * time.Minute).Format(time.RFC3339)
	rr = httptest.NewRecorder()
	server.handleRecent(rr, httptest.NewRequest(http.MethodGet, "/recent?since="+since, nil))
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 1 || resp.Records[0].MessageID != 2 {
		t.Fatalf("since filter = %+v", resp)
	}

	rr = httptest.NewRecorder()
	server.handleRecent(rr, httptest.NewRequest(http.MethodGet, "/recent?since=garbage", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad since = %d", rr.Code)
	}
}

func TestStartDisabled(t *testing.T) {
	if srv := Start(context.Background(), testManager(t), nil, nil, nil, nil, "test"); srv != nil {
		t.Fatalf("disabled api started a server")
	}
}
