package monitor

import (
	"context"
	"log/slog"
	"time"

	"webtap/internal/bus"
	"webtap/internal/hashutil"
	"webtap/internal/metrics"
	"webtap/internal/model"
	"webtap/internal/state"
)

// Scheduler triggers due monitors. Each tick lists every monitor, skips
// the inactive and not-yet-due ones, and emits a fresh
// extraction.requested per due monitor with use_cache forced off so
// scheduled runs always refresh both caches. The message group is the
// url hash, which serializes scheduled refreshes of the same url even
// when a tick overruns.
type Scheduler struct {
	Store    state.Store
	Bus      bus.Bus
	Logger   *slog.Logger
	Interval time.Duration
}

// Run ticks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Logger.Info("monitor scheduler started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			s.Logger.Info("monitor scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one scheduler pass and returns how many monitors it
// triggered.
func (s *Scheduler) Tick(ctx context.Context) int {
	now := time.Now().UTC()
	s.Logger.Info("checking scheduled monitors", "check_time", now.Format(time.RFC3339))

	rows, err := s.Store.ListGroup(ctx, state.GroupMonitors)
	if err != nil {
		s.Logger.Error("failed to list monitors", "error", err)
		metrics.RecordSchedulerTick(0)
		return 0
	}
	if len(rows) == 0 {
		s.Logger.Info("no monitors found")
		metrics.RecordSchedulerTick(0)
		return 0
	}

	triggered := 0
	skipped := 0
	for monitorID := range rows {
		var m model.Monitor
		if err := state.Load(ctx, s.Store, state.GroupMonitors, monitorID, &m); err != nil {
			continue
		}
		if !m.Active {
			skipped++
			continue
		}
		if m.MonitorID == "" || m.ScraperID == "" || m.URL == "" || m.NextRun == "" {
			continue
		}
		nextRun, err := model.ParseTime(m.NextRun)
		if err != nil || nextRun.After(now) {
			skipped++
			continue
		}

		if s.trigger(ctx, &m, now) {
			triggered++
		}
	}

	s.Logger.Info("check completed", "triggered", triggered, "skipped", skipped)
	metrics.RecordSchedulerTick(triggered)
	return triggered
}

func (s *Scheduler) trigger(ctx context.Context, m *model.Monitor, now time.Time) bool {
	var scr model.Scraper
	if err := state.Load(ctx, s.Store, state.GroupScrapers, m.ScraperID, &scr); err != nil {
		s.Logger.Warn("scraper not found", "scraper_id", m.ScraperID)
		return false
	}

	jobID := hashutil.NewJobID()
	groupID := hashutil.HashURL(m.URL)

	opts := model.JobOptions{
		UseCache:         false,
		Timeout:          scr.Options.Timeout,
		WaitFor:          scr.Options.WaitFor,
		UseSimpleScraper: scr.Options.UseSimpleScraper,
	}

	nowStr := now.Format(time.RFC3339Nano)
	job := model.Job{
		JobID:     jobID,
		ScraperID: m.ScraperID,
		URL:       m.URL,
		Status:    model.StatusQueued,
		Options:   opts,
		CreatedAt: nowStr,
	}
	if err := s.Store.Set(ctx, state.GroupJobs, jobID, job); err != nil {
		s.Logger.Error("failed to store scheduled job", "monitor_id", m.MonitorID, "error", err)
		return false
	}
	if err := s.Store.Set(ctx, state.GroupJobPayloads, jobID, model.JobPayload{
		Schema:    scr.Schema,
		ScraperID: m.ScraperID,
	}); err != nil {
		s.Logger.Error("failed to store job payload", "monitor_id", m.MonitorID, "error", err)
		return false
	}

	ev := model.ExtractionRequested{
		JobID:     jobID,
		URL:       m.URL,
		ScraperID: m.ScraperID,
		Options:   opts,
	}
	if err := s.Bus.Publish(ctx, bus.TopicExtractionRequested, groupID, ev); err != nil {
		s.Logger.Error("failed to publish scheduled request", "monitor_id", m.MonitorID, "error", err)
		return false
	}

	info := scr.ScheduleInfo
	if info == nil {
		info = &model.ScheduleInfo{
			Type:            m.ScheduleType,
			IntervalMinutes: m.IntervalMinutes,
			Cron:            m.Cron,
		}
	}

	m.LastRun = nowStr
	m.NextRun = NextRun(info, now)
	m.RunCount++
	m.LastJobID = jobID
	m.UpdatedAt = nowStr
	if err := s.Store.Set(ctx, state.GroupMonitors, m.MonitorID, m); err != nil {
		s.Logger.Error("failed to update monitor", "monitor_id", m.MonitorID, "error", err)
	}

	s.Logger.Info("triggered monitor", "monitor_id", m.MonitorID, "job_id", jobID)
	return true
}
