package timeutil

import "time"

// NowMillis returns the current unix time in milliseconds, the unit stored
// in the ctime columns.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// NowISO returns the current UTC time as an RFC3339 string, used for audit
// entries and index sidecar timestamps.
func NowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
