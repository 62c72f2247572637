package lockfile

import (
	"fmt"
	"math/rand"
	"os"
	"time"
)

// defaultPauseMsec mirrors the original's lock-retry sleep (DISTCC_PAUSE_TIME_MSEC).
const defaultPauseMsec = 1000

// PauseDuration returns the scheduler's non-blocking retry interval
// (DISTCC_PAUSE_TIME_MSEC), with a small jitter added so many client
// processes woken at once don't retry in lockstep (supplemented from
// the original's lock-retry path; not present there as a literal
// "sleep N ms with jitter", but addressing the same thundering-herd
// concern).
func PauseDuration() time.Duration {
	msec := defaultPauseMsec
	if v := os.Getenv("DISTCC_PAUSE_TIME_MSEC"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n > 0 {
			msec = n
		}
	}
	jitter := rand.Intn(msec/4 + 1)
	return time.Duration(msec+jitter) * time.Millisecond
}
