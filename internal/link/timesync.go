package link

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/beevik/ntp"
)

// TimeSync fetches the wall-clock offset from a time server.
type TimeSync interface {
	Sync(ctx context.Context, server string) (time.Duration, error)
}

// NTPSync queries an NTP server. The local clock is not stepped; callers
// apply the returned offset to the timestamps they build.
type NTPSync struct {
	Timeout time.Duration
	// Query defaults to ntp.QueryWithOptions.
	Query func(host string, opt ntp.QueryOptions) (*ntp.Response, error)
}

func (s NTPSync) Sync(ctx context.Context, server string) (time.Duration, error) {
	if server == "" {
		return 0, errors.New("no time server provisioned")
	}
	query := s.Query
	if query == nil {
		query = ntp.QueryWithOptions
	}
	timeout := s.Timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); timeout == 0 || left < timeout {
			timeout = left
		}
	}
	resp, err := query(server, ntp.QueryOptions{Timeout: timeout})
	if err != nil {
		return 0, fmt.Errorf("ntp query %s: %w", server, err)
	}
	if err := resp.Validate(); err != nil {
		return 0, fmt.Errorf("ntp response from %s: %w", server, err)
	}
	return resp.ClockOffset, nil
}
