// Package monitor owns scheduled re-scraping: parsing scraper schedules,
// computing next-run times, the monitor rows themselves, and the periodic
// scheduler that triggers due monitors.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"webtap/internal/hashutil"
	"webtap/internal/model"
	"webtap/internal/state"
)

// MinIntervalMinutes is the smallest allowed interval schedule.
const MinIntervalMinutes = 5

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseSchedule turns the raw schedule value into its parsed form. Nil in,
// nil out. Interval schedules under five minutes and unparseable cron
// expressions are rejected.
func ParseSchedule(s *model.Schedule) (*model.ScheduleInfo, error) {
	if s == nil {
		return nil, nil
	}
	if s.Interval() {
		if s.Minutes < MinIntervalMinutes {
			return nil, fmt.Errorf("schedule must be at least %d minutes", MinIntervalMinutes)
		}
		return &model.ScheduleInfo{Type: model.ScheduleInterval, IntervalMinutes: s.Minutes}, nil
	}
	if _, err := cronParser.Parse(s.Cron); err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", s.Cron, err)
	}
	return &model.ScheduleInfo{Type: model.ScheduleCron, Cron: s.Cron}, nil
}

// NextRun computes the next fire time from now. Anything it cannot
// interpret falls back to one hour out, so a monitor never wedges on a
// bad schedule.
func NextRun(info *model.ScheduleInfo, now time.Time) string {
	fallback := now.Add(60 * time.Minute)
	if info == nil {
		return fallback.Format(time.RFC3339Nano)
	}
	switch info.Type {
	case model.ScheduleInterval:
		minutes := info.IntervalMinutes
		if minutes <= 0 {
			minutes = 60
		}
		return now.Add(time.Duration(minutes) * time.Minute).Format(time.RFC3339Nano)
	case model.ScheduleCron:
		sched, err := cronParser.Parse(info.Cron)
		if err != nil {
			return fallback.Format(time.RFC3339Nano)
		}
		return sched.Next(now).Format(time.RFC3339Nano)
	}
	return fallback.Format(time.RFC3339Nano)
}

// BuildMonitor assembles a monitor row for a (scraper, url) pair. When an
// existing monitor is passed its created_at and run_count survive and
// last_run is stamped now, because the caller is running the pair right
// now.
func BuildMonitor(scraperID, url string, info *model.ScheduleInfo, existing *model.Monitor, now time.Time) model.Monitor {
	nowStr := now.Format(time.RFC3339Nano)
	m := model.Monitor{
		MonitorID: hashutil.MonitorID(scraperID, url),
		ScraperID: scraperID,
		URL:       url,
		Active:    true,
		NextRun:   NextRun(info, now),
		CreatedAt: nowStr,
		UpdatedAt: nowStr,
	}
	if info != nil {
		m.ScheduleType = info.Type
		m.IntervalMinutes = info.IntervalMinutes
		m.Cron = info.Cron
	}
	if existing != nil {
		m.LastRun = nowStr
		m.RunCount = existing.RunCount
		if existing.CreatedAt != "" {
			m.CreatedAt = existing.CreatedAt
		}
	}
	return m
}

// AutoAdd upserts the monitor for a (scraper, url) pair on a gateway run.
// It returns the stored monitor and whether one already existed. A nil
// schedule means the scraper is unscheduled and nothing is written.
func AutoAdd(ctx context.Context, store state.Store, scraperID, url string, info *model.ScheduleInfo) (*model.Monitor, bool, error) {
	if info == nil {
		return nil, false, nil
	}

	monitorID := hashutil.MonitorID(scraperID, url)
	var existing *model.Monitor
	var prev model.Monitor
	if err := state.Load(ctx, store, state.GroupMonitors, monitorID, &prev); err == nil {
		existing = &prev
	}

	now := time.Now().UTC()
	m := BuildMonitor(scraperID, url, info, existing, now)
	// The caller is running this pair right now.
	m.LastRun = now.Format(time.RFC3339Nano)

	if err := store.Set(ctx, state.GroupMonitors, monitorID, m); err != nil {
		return nil, false, fmt.Errorf("store monitor %s: %w", monitorID, err)
	}
	return &m, existing != nil, nil
}

// CreateForURLs creates monitors for the urls passed at scraper creation.
// It returns how many were written; per-url failures are skipped.
func CreateForURLs(ctx context.Context, store state.Store, scraperID string, urls []string, info *model.ScheduleInfo) int {
	if info == nil {
		return 0
	}
	now := time.Now().UTC()
	created := 0
	for _, url := range urls {
		url = strings.TrimSpace(url)
		if url == "" {
			continue
		}
		m := BuildMonitor(scraperID, url, info, nil, now)
		if err := store.Set(ctx, state.GroupMonitors, m.MonitorID, m); err != nil {
			continue
		}
		created++
	}
	return created
}
