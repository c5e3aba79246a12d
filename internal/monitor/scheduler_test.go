package monitor

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"webtap/internal/bus"
	"webtap/internal/hashutil"
	"webtap/internal/model"
	"webtap/internal/state"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingBus captures published messages without delivering them.
type recordingBus struct {
	mu       sync.Mutex
	messages []bus.Message
}

func (b *recordingBus) Publish(ctx context.Context, topic, groupID string, body any) error {
	raw, err := bus.Encode(body)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.messages = append(b.messages, bus.Message{Topic: topic, GroupID: groupID, Body: raw})
	b.mu.Unlock()
	return nil
}

func (b *recordingBus) Subscribe(topic string, h bus.Handler) {}

func (b *recordingBus) all() []bus.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]bus.Message(nil), b.messages...)
}

func seedScraper(t *testing.T, st state.Store, scraperID string) model.Scraper {
	t.Helper()
	scr := model.Scraper{
		ScraperID: scraperID,
		Name:      "products",
		Schema:    model.Schema{Object: map[string]any{"type": "object"}},
		ScheduleInfo: &model.ScheduleInfo{
			Type:            model.ScheduleInterval,
			IntervalMinutes: 30,
		},
		Options:   model.ScraperOptions{Timeout: 30000, WaitFor: 2000},
		CreatedAt: model.Now(),
	}
	if err := st.Set(context.Background(), state.GroupScrapers, scraperID, scr); err != nil {
		t.Fatalf("seed scraper: %v", err)
	}
	return scr
}

func seedMonitor(t *testing.T, st state.Store, scraperID, url, nextRun string, active bool) model.Monitor {
	t.Helper()
	m := model.Monitor{
		MonitorID:       hashutil.MonitorID(scraperID, url),
		ScraperID:       scraperID,
		URL:             url,
		ScheduleType:    model.ScheduleInterval,
		IntervalMinutes: 30,
		Active:          active,
		NextRun:         nextRun,
		RunCount:        3,
		CreatedAt:       model.Now(),
		UpdatedAt:       model.Now(),
	}
	if err := st.Set(context.Background(), state.GroupMonitors, m.MonitorID, m); err != nil {
		t.Fatalf("seed monitor: %v", err)
	}
	return m
}

func pastTime() string {
	return time.Now().UTC().Add(-time.Minute).Format(time.RFC3339Nano)
}

func futureTime() string {
	return time.Now().UTC().Add(time.Hour).Format(time.RFC3339Nano)
}

func TestTickTriggersDueMonitor(t *testing.T) {
	st := state.NewMemoryStore()
	rb := &recordingBus{}
	seedScraper(t, st, "scr_abc")
	m := seedMonitor(t, st, "scr_abc", "https://example.com", pastTime(), true)

	sched := &Scheduler{Store: st, Bus: rb, Logger: testLogger()}
	if n := sched.Tick(context.Background()); n != 1 {
		t.Fatalf("expected 1 trigger, got %d", n)
	}

	msgs := rb.all()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(msgs))
	}
	msg := msgs[0]
	if msg.Topic != bus.TopicExtractionRequested {
		t.Fatalf("unexpected topic %q", msg.Topic)
	}
	if msg.GroupID != hashutil.HashURL("https://example.com") {
		t.Fatalf("scheduled runs group by url hash, got %q", msg.GroupID)
	}

	var ev model.ExtractionRequested
	if err := json.Unmarshal(msg.Body, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.Options.UseCache {
		t.Fatal("scheduled runs must bypass the caches")
	}
	if ev.URL != "https://example.com" || ev.ScraperID != "scr_abc" {
		t.Fatalf("unexpected event %+v", ev)
	}

	// The job and its payload were staged before the event.
	var job model.Job
	if err := state.Load(context.Background(), st, state.GroupJobs, ev.JobID, &job); err != nil {
		t.Fatalf("job row missing: %v", err)
	}
	if job.Status != model.StatusQueued {
		t.Fatalf("expected queued job, got %s", job.Status)
	}
	var payload model.JobPayload
	if err := state.Load(context.Background(), st, state.GroupJobPayloads, ev.JobID, &payload); err != nil {
		t.Fatalf("job payload missing: %v", err)
	}
	if payload.Schema.IsZero() {
		t.Fatal("job payload carries the scraper schema")
	}

	// The monitor advanced.
	var updated model.Monitor
	if err := state.Load(context.Background(), st, state.GroupMonitors, m.MonitorID, &updated); err != nil {
		t.Fatalf("monitor row missing: %v", err)
	}
	if updated.RunCount != m.RunCount+1 {
		t.Fatalf("expected run count %d, got %d", m.RunCount+1, updated.RunCount)
	}
	if updated.LastJobID != ev.JobID {
		t.Fatalf("expected last_job_id %q, got %q", ev.JobID, updated.LastJobID)
	}
	next, err := model.ParseTime(updated.NextRun)
	if err != nil {
		t.Fatalf("next_run not parseable: %v", err)
	}
	if !next.After(time.Now().UTC()) {
		t.Fatalf("expected next_run in the future, got %v", next)
	}
}

func TestTickSkipsInactiveAndFutureMonitors(t *testing.T) {
	st := state.NewMemoryStore()
	rb := &recordingBus{}
	seedScraper(t, st, "scr_abc")
	seedMonitor(t, st, "scr_abc", "https://inactive.example.com", pastTime(), false)
	seedMonitor(t, st, "scr_abc", "https://future.example.com", futureTime(), true)

	sched := &Scheduler{Store: st, Bus: rb, Logger: testLogger()}
	if n := sched.Tick(context.Background()); n != 0 {
		t.Fatalf("expected no triggers, got %d", n)
	}
	if len(rb.all()) != 0 {
		t.Fatal("no events should be published")
	}
}

func TestTickSkipsMonitorWithMissingScraper(t *testing.T) {
	st := state.NewMemoryStore()
	rb := &recordingBus{}
	seedMonitor(t, st, "scr_gone", "https://example.com", pastTime(), true)

	sched := &Scheduler{Store: st, Bus: rb, Logger: testLogger()}
	if n := sched.Tick(context.Background()); n != 0 {
		t.Fatalf("expected no triggers, got %d", n)
	}
}

func TestTickSkipsMonitorWithMissingFields(t *testing.T) {
	st := state.NewMemoryStore()
	rb := &recordingBus{}
	seedScraper(t, st, "scr_abc")

	m := model.Monitor{
		MonitorID: "scr_abc_deadbeef0000",
		ScraperID: "scr_abc",
		Active:    true,
		NextRun:   pastTime(),
		// URL missing
	}
	if err := st.Set(context.Background(), state.GroupMonitors, m.MonitorID, m); err != nil {
		t.Fatalf("seed monitor: %v", err)
	}

	sched := &Scheduler{Store: st, Bus: rb, Logger: testLogger()}
	if n := sched.Tick(context.Background()); n != 0 {
		t.Fatalf("expected malformed monitor skipped, got %d triggers", n)
	}
}

func TestTickEmptyGroup(t *testing.T) {
	sched := &Scheduler{Store: state.NewMemoryStore(), Bus: &recordingBus{}, Logger: testLogger()}
	if n := sched.Tick(context.Background()); n != 0 {
		t.Fatalf("expected 0 triggers on empty store, got %d", n)
	}
}
