package model

import (
	"encoding/json"
	"fmt"
)

// Schedule is the raw schedule value from a create-scraper request: a JSON
// number means an interval in minutes, a JSON string means a cron
// expression. ParseSchedule in the monitor package turns it into a
// ScheduleInfo.
type Schedule struct {
	// Minutes is the interval length, 0 when the schedule is cron-based.
	Minutes int
	// Cron is the cron expression, empty for interval schedules.
	Cron string
}

// Interval reports whether the schedule is interval-based.
func (s Schedule) Interval() bool {
	return s.Cron == ""
}

func (s Schedule) MarshalJSON() ([]byte, error) {
	if s.Cron != "" {
		return json.Marshal(s.Cron)
	}
	return json.Marshal(s.Minutes)
}

func (s *Schedule) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		s.Minutes = n
		s.Cron = ""
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		s.Minutes = 0
		s.Cron = str
		return nil
	}
	return fmt.Errorf("schedule must be a number of minutes or a cron expression")
}
