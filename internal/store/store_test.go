package store

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/oremus-labs/ol-bot-console/internal/logstream"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "archive.db"), "sqlite")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func entry(id, level, data string) logstream.LogEntry {
	e, err := logstream.ParseEntry(fmt.Appendf(nil, `{"uuid":%q,"type":"log","level":%q,"data":%q}`, id, level, data))
	if err != nil {
		panic(err)
	}
	return e
}

func TestAppendLogsSkipsDuplicates(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	n, err := s.AppendLogs([]logstream.LogEntry{entry("a", "INFO", "one"), entry("b", "ERROR", "two")})
	if err != nil {
		t.Fatalf("AppendLogs: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 inserted got %d", n)
	}

	n, err = s.AppendLogs([]logstream.LogEntry{entry("b", "ERROR", "two"), entry("c", "INFO", "three")})
	if err != nil {
		t.Fatalf("AppendLogs: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 inserted got %d", n)
	}

	count, err := s.CountLogs()
	if err != nil {
		t.Fatalf("CountLogs: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 rows got %d", count)
	}
}

func TestAppendLogsRequiresUUID(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	if _, err := s.AppendLogs([]logstream.LogEntry{{Data: "anonymous"}}); err == nil {
		t.Fatal("expected error for entry without uuid")
	}
}

func TestListLogsFiltersAndOrders(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	if _, err := s.AppendLogs([]logstream.LogEntry{
		entry("a", "INFO", "one"),
		entry("b", "ERROR", "two"),
		entry("c", "info", "three"),
	}); err != nil {
		t.Fatalf("AppendLogs: %v", err)
	}

	all, err := s.ListLogs(LogQuery{})
	if err != nil {
		t.Fatalf("ListLogs: %v", err)
	}
	if len(all) != 3 || all[0].Entry.UUID != "c" || all[2].Entry.UUID != "a" {
		t.Fatalf("unexpected order: %+v", all)
	}
	if all[1].Entry.Data != "two" || all[1].Entry.Level != "ERROR" {
		t.Fatalf("entry not round-tripped: %+v", all[1].Entry)
	}

	infos, err := s.ListLogs(LogQuery{Level: "INFO", Limit: 1})
	if err != nil {
		t.Fatalf("ListLogs: %v", err)
	}
	if len(infos) != 1 || infos[0].Entry.UUID != "c" {
		t.Fatalf("unexpected level filter result: %+v", infos)
	}

	future, err := s.ListLogs(LogQuery{Since: time.Now().Add(time.Hour)})
	if err != nil {
		t.Fatalf("ListLogs: %v", err)
	}
	if len(future) != 0 {
		t.Fatalf("expected no entries after since filter, got %d", len(future))
	}
}

func TestPruneLogsKeepsNewest(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	var batch []logstream.LogEntry
	for i := 0; i < 10; i++ {
		batch = append(batch, entry(fmt.Sprintf("id-%d", i), "INFO", fmt.Sprint(i)))
	}
	if _, err := s.AppendLogs(batch); err != nil {
		t.Fatalf("AppendLogs: %v", err)
	}

	deleted, err := s.PruneLogs(4)
	if err != nil {
		t.Fatalf("PruneLogs: %v", err)
	}
	if deleted != 6 {
		t.Fatalf("expected 6 deleted got %d", deleted)
	}
	remaining, err := s.ListLogs(LogQuery{})
	if err != nil {
		t.Fatalf("ListLogs: %v", err)
	}
	if len(remaining) != 4 || remaining[3].Entry.UUID != "id-6" {
		t.Fatalf("unexpected remaining rows: %+v", remaining)
	}

	if deleted, err := s.PruneLogs(100); err != nil || deleted != 0 {
		t.Fatalf("expected no-op prune, got %d %v", deleted, err)
	}
}

func TestHistoryRoundTrip(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	if err := s.AppendHistory(&HistoryEntry{Event: EventStreamOpened}); err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}
	failure := &HistoryEntry{
		Event:    EventStreamError,
		Message:  "live log connection failed: 502 Bad Gateway",
		Metadata: map[string]interface{}{"retryIn": "1s"},
	}
	if err := s.AppendHistory(failure); err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}
	if failure.ID == "" {
		t.Fatal("expected history id to be assigned")
	}

	history, err := s.ListHistory(1)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(history) != 1 || history[0].Event != EventStreamError || history[0].Metadata["retryIn"] != "1s" {
		t.Fatalf("unexpected history payload: %+v", history)
	}
	if err := s.AppendHistory(&HistoryEntry{}); err == nil {
		t.Fatal("expected error for empty event")
	}
}

func TestRebind(t *testing.T) {
	t.Parallel()

	pg := &Store{driver: "postgres"}
	if got := pg.rebind("a = ? AND b = ?"); got != "a = $1 AND b = $2" {
		t.Fatalf("unexpected rebind: %s", got)
	}
	lite := &Store{driver: "sqlite"}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Fatalf("sqlite query should be unchanged: %s", got)
	}
}

func TestOpenCreatesDirectory(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "archive.db")
	s, err := Open(path, "sqlite")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	if _, err := Open("x", "mysql"); err == nil {
		t.Fatal("expected unsupported driver error")
	}
}
