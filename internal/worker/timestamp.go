package worker

import (
	"context"
	"time"

	"github.com/zhengwenj/cursor-api-sub001/internal/checksum"
)

// TimestampRotator keeps the process-wide timestamp header (§4.2) current
// by recomputing it from the wall clock on every tick; the header value
// itself changes once per kilo-second.
type TimestampRotator struct {
	interval time.Duration
}

// NewTimestampRotator returns a rotator that refreshes the global
// timestamp header every interval (a few seconds is plenty since the
// header is only precise to the kilo-second).
func NewTimestampRotator(interval time.Duration) *TimestampRotator {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &TimestampRotator{interval: interval}
}

func (r *TimestampRotator) Name() string { return "timestamp_rotator" }

func (r *TimestampRotator) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	checksum.UpdateGlobalTimestampHeader(checksum.KiloSeconds(time.Now()))
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			checksum.UpdateGlobalTimestampHeader(checksum.KiloSeconds(now))
		}
	}
}
