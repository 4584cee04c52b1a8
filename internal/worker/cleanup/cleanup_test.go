package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/projecify/internal/repository"
)

// mockPurger は期限切れセッション削除のモック。
type mockPurger struct {
	mu      sync.Mutex
	calls   int
	lastNow time.Time
	deleted int64
	err     error
}

func (m *mockPurger) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastNow = now
	return m.deleted, m.err
}

func (m *mockPurger) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockRecorder struct {
	total int64
}

func (r *mockRecorder) RecordSessionsPurged(count int64) { r.total += count }

var (
	_ repository.SessionPurger = (*mockPurger)(nil)
	_ repository.SessionPurger = (*repository.PostgresSessionRepo)(nil)
	_ Recorder                 = (*mockRecorder)(nil)
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// findLogField はJSONログの各行からkeyを探し、最初に見つかった値を返す。
func findLogField(buf *bytes.Buffer, key string) (interface{}, bool) {
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if v, ok := entry[key]; ok {
			return v, true
		}
	}
	return nil, false
}

func TestSessionCleanupJob_Run_PassesCurrentTime(t *testing.T) {
	var buf bytes.Buffer
	purger := &mockPurger{}
	job := NewSessionCleanupJob(purger, newTestLogger(&buf), nil)
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return fixed }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}
	if !purger.lastNow.Equal(fixed) {
		t.Errorf("now = %v, want %v", purger.lastNow, fixed)
	}
}

func TestSessionCleanupJob_Run_LogsAndRecordsDeletedCount(t *testing.T) {
	var buf bytes.Buffer
	recorder := &mockRecorder{}
	job := NewSessionCleanupJob(&mockPurger{deleted: 42}, newTestLogger(&buf), recorder)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}

	if count, ok := findLogField(&buf, "deleted_count"); !ok || count != float64(42) {
		t.Errorf("ログに deleted_count=42 が記録されていない。ログ出力: %s", buf.String())
	}
	if _, ok := findLogField(&buf, "duration_ms"); !ok {
		t.Errorf("ログに duration_ms が記録されていない。ログ出力: %s", buf.String())
	}
	if recorder.total != 42 {
		t.Errorf("recorded = %d, want 42", recorder.total)
	}
}

func TestSessionCleanupJob_Run_Idempotent_ZeroRows(t *testing.T) {
	var buf bytes.Buffer
	job := NewSessionCleanupJob(&mockPurger{}, newTestLogger(&buf), nil)

	for i := 0; i < 2; i++ {
		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("%d回目の Run() がエラーを返した: %v", i+1, err)
		}
	}
	if count, ok := findLogField(&buf, "deleted_count"); !ok || count != float64(0) {
		t.Errorf("0件削除時にもログに deleted_count=0 が記録されるべき。ログ出力: %s", buf.String())
	}
}

func TestSessionCleanupJob_Run_ReturnsErrorOnDBFailure(t *testing.T) {
	var buf bytes.Buffer
	recorder := &mockRecorder{}
	job := NewSessionCleanupJob(&mockPurger{err: sql.ErrConnDone}, newTestLogger(&buf), recorder)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("DBエラー時に Run() は nil でないエラーを返すべき")
	}
	if !strings.Contains(err.Error(), "sql: connection is already closed") {
		t.Errorf("エラーメッセージが期待と異なる: %v", err)
	}
	if !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("エラー時にERRORレベルのログが記録されていない。ログ出力: %s", buf.String())
	}
	if recorder.total != 0 {
		t.Error("失敗時に削除件数を記録してはならない")
	}
}

func TestSessionCleanupJob_Start_RunsImmediatelyAndOnTicker(t *testing.T) {
	var buf bytes.Buffer
	purger := &mockPurger{}
	job := NewSessionCleanupJob(purger, newTestLogger(&buf), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for purger.callCount() < 3 {
		select {
		case <-deadline:
			t.Fatalf("calls = %d, want >= 3", purger.callCount())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start がキャンセル後に終了しない")
	}
}

func TestSessionCleanupJob_Start_ContinuesAfterFailure(t *testing.T) {
	var buf bytes.Buffer
	purger := &mockPurger{err: sql.ErrConnDone}
	job := NewSessionCleanupJob(purger, newTestLogger(&buf), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	job.Start(ctx, 10*time.Millisecond)

	if purger.callCount() < 2 {
		t.Errorf("calls = %d, 失敗後も実行を継続するべき", purger.callCount())
	}
}
