package clock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/beevik/ntp"
)

// DefaultServer is queried when no NTP servers are configured.
const DefaultServer = "pool.ntp.org"

// NTPSource queries NTP servers in order until one answers with a valid
// response.
type NTPSource struct {
	servers []string
	timeout time.Duration
	query   func(host string, opt ntp.QueryOptions) (*ntp.Response, error)
}

func NewNTPSource(servers []string, timeout time.Duration) *NTPSource {
	if len(servers) == 0 {
		servers = []string{DefaultServer}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NTPSource{servers: servers, timeout: timeout, query: ntp.QueryWithOptions}
}

func (s *NTPSource) Now(ctx context.Context) (time.Time, error) {
	var errs []error
	for _, server := range s.servers {
		if err := ctx.Err(); err != nil {
			return time.Time{}, err
		}
		timeout := s.timeout
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
			timeout = time.Until(deadline)
		}
		resp, err := s.query(server, ntp.QueryOptions{Timeout: timeout})
		if err == nil {
			err = resp.Validate()
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", server, err))
			continue
		}
		return time.Now().Add(resp.ClockOffset), nil
	}
	return time.Time{}, fmt.Errorf("ntp query: %w", errors.Join(errs...))
}
