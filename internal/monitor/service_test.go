package monitor

import (
	"context"
	"strings"
	"testing"
	"time"

	"webtap/internal/hashutil"
	"webtap/internal/model"
	"webtap/internal/state"
)

func TestParseScheduleNil(t *testing.T) {
	info, err := ParseSchedule(nil)
	if err != nil {
		t.Fatalf("ParseSchedule(nil) returned error: %v", err)
	}
	if info != nil {
		t.Fatalf("expected nil info, got %+v", info)
	}
}

func TestParseScheduleInterval(t *testing.T) {
	info, err := ParseSchedule(&model.Schedule{Minutes: 30})
	if err != nil {
		t.Fatalf("ParseSchedule returned error: %v", err)
	}
	if info.Type != model.ScheduleInterval || info.IntervalMinutes != 30 {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestParseScheduleRejectsShortInterval(t *testing.T) {
	_, err := ParseSchedule(&model.Schedule{Minutes: 4})
	if err == nil {
		t.Fatal("expected a 4-minute interval to be rejected")
	}
	if !strings.Contains(err.Error(), "schedule must be at least 5 minutes") {
		t.Fatalf("unexpected error message: %v", err)
	}
	// Exactly five minutes passes.
	if _, err := ParseSchedule(&model.Schedule{Minutes: 5}); err != nil {
		t.Fatalf("5-minute interval rejected: %v", err)
	}
}

func TestParseScheduleCron(t *testing.T) {
	info, err := ParseSchedule(&model.Schedule{Cron: "0 */6 * * *"})
	if err != nil {
		t.Fatalf("ParseSchedule returned error: %v", err)
	}
	if info.Type != model.ScheduleCron || info.Cron != "0 */6 * * *" {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestParseScheduleRejectsBadCron(t *testing.T) {
	if _, err := ParseSchedule(&model.Schedule{Cron: "not a cron"}); err == nil {
		t.Fatal("expected invalid cron to be rejected")
	}
}

func TestNextRunInterval(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	got := NextRun(&model.ScheduleInfo{Type: model.ScheduleInterval, IntervalMinutes: 30}, now)
	want := now.Add(30 * time.Minute).Format(time.RFC3339Nano)
	if got != want {
		t.Fatalf("NextRun = %q, want %q", got, want)
	}
}

func TestNextRunCron(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 15, 0, 0, time.UTC)
	got := NextRun(&model.ScheduleInfo{Type: model.ScheduleCron, Cron: "0 */6 * * *"}, now)
	next, err := model.ParseTime(got)
	if err != nil {
		t.Fatalf("NextRun not parseable: %v", err)
	}
	want := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("NextRun = %v, want %v", next, want)
	}
}

func TestNextRunFallback(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	hourOut := now.Add(60 * time.Minute).Format(time.RFC3339Nano)

	if got := NextRun(nil, now); got != hourOut {
		t.Fatalf("nil info: got %q, want %q", got, hourOut)
	}
	if got := NextRun(&model.ScheduleInfo{Type: "weird"}, now); got != hourOut {
		t.Fatalf("unknown type: got %q, want %q", got, hourOut)
	}
	if got := NextRun(&model.ScheduleInfo{Type: model.ScheduleCron, Cron: "bad"}, now); got != hourOut {
		t.Fatalf("bad cron: got %q, want %q", got, hourOut)
	}
	if got := NextRun(&model.ScheduleInfo{Type: model.ScheduleInterval}, now); got != hourOut {
		t.Fatalf("zero interval: got %q, want %q", got, hourOut)
	}
}

func TestBuildMonitorNew(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	info := &model.ScheduleInfo{Type: model.ScheduleInterval, IntervalMinutes: 60}

	m := BuildMonitor("scr_abc", "https://example.com", info, nil, now)
	if m.MonitorID != hashutil.MonitorID("scr_abc", "https://example.com") {
		t.Fatalf("unexpected monitor id %q", m.MonitorID)
	}
	if !m.Active {
		t.Fatal("new monitors start active")
	}
	if m.RunCount != 0 || m.LastRun != "" {
		t.Fatalf("new monitor should have no run history, got %+v", m)
	}
	if m.ScheduleType != model.ScheduleInterval || m.IntervalMinutes != 60 {
		t.Fatalf("schedule fields not copied: %+v", m)
	}
}

func TestBuildMonitorPreservesHistory(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	info := &model.ScheduleInfo{Type: model.ScheduleInterval, IntervalMinutes: 60}
	existing := &model.Monitor{
		RunCount:  7,
		CreatedAt: "2026-01-01T00:00:00Z",
	}

	m := BuildMonitor("scr_abc", "https://example.com", info, existing, now)
	if m.RunCount != 7 {
		t.Fatalf("expected run count preserved, got %d", m.RunCount)
	}
	if m.CreatedAt != "2026-01-01T00:00:00Z" {
		t.Fatalf("expected created_at preserved, got %q", m.CreatedAt)
	}
	if m.LastRun == "" {
		t.Fatal("expected last_run stamped for an existing monitor")
	}
}

func TestAutoAddCreatesAndUpdates(t *testing.T) {
	st := state.NewMemoryStore()
	ctx := context.Background()
	info := &model.ScheduleInfo{Type: model.ScheduleInterval, IntervalMinutes: 60}

	m, existed, err := AutoAdd(ctx, st, "scr_abc", "https://example.com", info)
	if err != nil {
		t.Fatalf("AutoAdd returned error: %v", err)
	}
	if existed {
		t.Fatal("first AutoAdd should report a new monitor")
	}
	if m.LastRun == "" {
		t.Fatal("AutoAdd stamps last_run")
	}

	m2, existed, err := AutoAdd(ctx, st, "scr_abc", "https://example.com", info)
	if err != nil {
		t.Fatalf("second AutoAdd returned error: %v", err)
	}
	if !existed {
		t.Fatal("second AutoAdd should report an existing monitor")
	}
	if m2.MonitorID != m.MonitorID {
		t.Fatalf("monitor id changed across upserts: %q vs %q", m2.MonitorID, m.MonitorID)
	}
	if m2.CreatedAt != m.CreatedAt {
		t.Fatalf("created_at changed across upserts: %q vs %q", m2.CreatedAt, m.CreatedAt)
	}
}

func TestAutoAddNilScheduleIsNoop(t *testing.T) {
	st := state.NewMemoryStore()
	m, existed, err := AutoAdd(context.Background(), st, "scr_abc", "https://example.com", nil)
	if err != nil || m != nil || existed {
		t.Fatalf("expected noop, got m=%v existed=%v err=%v", m, existed, err)
	}
	rows, _ := st.ListGroup(context.Background(), state.GroupMonitors)
	if len(rows) != 0 {
		t.Fatal("nothing should be written for an unscheduled scraper")
	}
}

func TestCreateForURLs(t *testing.T) {
	st := state.NewMemoryStore()
	ctx := context.Background()
	info := &model.ScheduleInfo{Type: model.ScheduleInterval, IntervalMinutes: 60}

	n := CreateForURLs(ctx, st, "scr_abc", []string{
		"https://a.example.com",
		"  https://b.example.com  ",
		"",
		"   ",
	}, info)
	if n != 2 {
		t.Fatalf("expected 2 monitors created, got %d", n)
	}

	rows, err := st.ListGroup(ctx, state.GroupMonitors)
	if err != nil {
		t.Fatalf("ListGroup returned error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 monitor rows, got %d", len(rows))
	}
	// Trimmed url keys the monitor.
	id := hashutil.MonitorID("scr_abc", "https://b.example.com")
	if _, ok := rows[id]; !ok {
		t.Fatalf("expected monitor for trimmed url, have %v", rows)
	}
}
