// Package link covers the node's network side: association, time sync and
// record delivery.
package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Credentials are the provisioned association parameters.
type Credentials struct {
	SSID     string
	Password string
	// Endpoint is the collector URL whose host is probed for reachability.
	Endpoint string
}

// Radio brings the link up for one wake.
type Radio interface {
	Connect(ctx context.Context, creds Credentials) error
	Connected() bool
}

// DialFunc matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// HostRadio treats the link as up once the collector host accepts a TCP
// connection. Attempts are spaced Delay apart and bounded by Attempts.
type HostRadio struct {
	Attempts int
	Delay    time.Duration
	Dial     DialFunc
	// Pulse is called on every retry so long waits keep the watchdog fed.
	Pulse func()
	Log   *slog.Logger

	connected bool
}

// ErrNoEndpoint is returned when no collector endpoint is provisioned.
var ErrNoEndpoint = errors.New("no collector endpoint provisioned")

func (r *HostRadio) Connected() bool { return r.connected }

func (r *HostRadio) Connect(ctx context.Context, creds Credentials) error {
	log := r.Log
	if log == nil {
		log = slog.Default()
	}
	addr, err := probeAddr(creds.Endpoint)
	if err != nil {
		return err
	}
	dial := r.Dial
	if dial == nil {
		d := &net.Dialer{Timeout: r.Delay}
		dial = d.DialContext
	}

	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var b backoff.BackOff = backoff.NewConstantBackOff(r.Delay)
	b = backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)

	log.Info("connecting", "ssid", creds.SSID, "probe", addr, "attempts", attempts)
	start := time.Now()
	op := func() error {
		c, err := dial(ctx, "tcp", addr)
		if err != nil {
			return err
		}
		return c.Close()
	}
	notify := func(err error, next time.Duration) {
		if r.Pulse != nil {
			r.Pulse()
		}
		log.Debug("link not ready", "error", err, "retry_in", next)
	}
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		r.connected = false
		return fmt.Errorf("connect %s: %w", creds.SSID, err)
	}
	r.connected = true
	log.Info("connected", "ssid", creds.SSID, "took", time.Since(start).Round(time.Millisecond))
	return nil
}

// probeAddr turns a collector URL into host:port.
func probeAddr(endpoint string) (string, error) {
	if endpoint == "" {
		return "", ErrNoEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("endpoint %q has no host", endpoint)
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}

// OfflineRadio never connects. Used for local-only runs.
type OfflineRadio struct{}

func (OfflineRadio) Connect(context.Context, Credentials) error {
	return errors.New("radio disabled")
}
func (OfflineRadio) Connected() bool { return false }
