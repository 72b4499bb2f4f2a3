package globaltime

import (
	"sync"
	"time"
)

var (
	mu      sync.RWMutex
	nowFunc = time.Now
)

// Operations zone of the channels: low-traffic hours are counted in GMT+5.
var operationsZone = time.FixedZone("GMT+5", 5*60*60)

func Now() time.Time {
	mu.RLock()
	defer mu.RUnlock()
	return nowFunc()
}

func UTC() time.Time {
	return Now().UTC()
}

func SetMockTime(t time.Time) {
	mu.Lock()
	defer mu.Unlock()
	nowFunc = func() time.Time { return t }
}

func ResetTime() {
	mu.Lock()
	defer mu.Unlock()
	nowFunc = time.Now
}

// IsLowTraffic reports whether t falls into the 02:00-05:59 window of the
// operations zone. Crawl pages and recheck batches are larger then.
func IsLowTraffic(t time.Time) bool {
	hour := t.In(operationsZone).Hour()
	return hour >= 2 && hour <= 5
}

// Local converts t into the operations zone.
func Local(t time.Time) time.Time {
	return t.In(operationsZone)
}

// DaysAgo returns now minus a fractional number of days.
func DaysAgo(now time.Time, days float64) time.Time {
	return now.Add(-time.Duration(days * float64(24*time.Hour)))
}
