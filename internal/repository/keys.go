package repository

import (
	"fmt"
	"time"
)

// Object keys of the pipeline's storage layout.

func RawBarKey(date, instrument string, windowStart time.Time) string {
	return fmt.Sprintf("raw/%s/%s/%d", date, instrument, windowStart.Unix())
}

func RawBarPrefix(date, instrument string) string {
	return fmt.Sprintf("raw/%s/%s/", date, instrument)
}

func ComputeSeriesKey(date string) string {
	return "compute/" + date
}

func LearningResultKey(date string) string {
	return "learning/" + date
}

func ComputeLockName(date string) string {
	return "lock:compute:" + date
}

func LearningLockName(date string) string {
	return "lock:learning:" + date
}
