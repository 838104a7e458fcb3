package util

import (
    "strconv"
    "strings"
    "time"
)

// unixMillisFloor separates unix seconds from unix milliseconds (year 2286 in seconds).
const unixMillisFloor = 10_000_000_000

// ParseTime tries RFC3339, RFC3339Nano, and unix seconds or milliseconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
    s = strings.TrimSpace(s)
    if s == "" {
        return time.Time{}, false
    }
    if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
        return t, true
    }
    if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
        if ts >= unixMillisFloor {
            return time.UnixMilli(ts), true
        }
        return time.Unix(ts, 0), true
    }
    return time.Time{}, false
}

// CacheBuster returns the millisecond timestamp appended to polled URLs.
func CacheBuster(t time.Time) string {
    return strconv.FormatInt(t.UnixMilli(), 10)
}
