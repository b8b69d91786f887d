package activity

import (
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

const dayLayout = "2006-01-02"

// Event is a single unit of activity, such as a commit. Timestamp is kept as the raw
// RFC 3339 string from the feed so malformed values can be skipped instead of rejected.
type Event struct {
	SourceID  string `json:"source_id"`
	Timestamp string `json:"timestamp"`
}

// DailyBucket counts events on one UTC calendar day (YYYY-MM-DD).
type DailyBucket struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// Aggregate groups events by UTC day. The claimable unit count is the total number of
// events with a usable timestamp; events without one are left out of both results.
func Aggregate(events []Event) (int64, []DailyBucket) {
	counts := make(map[string]int64)
	var total int64

	for _, event := range events {
		ts, ok := parseTimestamp(event.Timestamp)
		if !ok {
			continue
		}
		counts[ts.UTC().Format(dayLayout)]++
		total++
	}

	days := maps.Keys(counts)
	slices.Sort(days)

	buckets := make([]DailyBucket, 0, len(days))
	for _, day := range days {
		buckets = append(buckets, DailyBucket{Date: day, Count: counts[day]})
	}
	return total, buckets
}

func parseTimestamp(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
