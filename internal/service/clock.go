package service

import "time"

// Clock supplies wall-clock time. Window indices and ban/expiry comparisons
// all read it, so tests can pin it.
type Clock func() time.Time

// SystemClock reports the current time in UTC.
func SystemClock() time.Time { return time.Now().UTC() }
