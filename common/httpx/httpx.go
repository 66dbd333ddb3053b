package httpx

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/higress-group/expertbot/common/logger"
	"github.com/higress-group/expertbot/config"
)

type Client struct {
	hc        *http.Client
	opt       Options
	log       *logger.Logger
	fail      int32 // consecutive failures
	openUntil int64 // unix nanos for circuit open deadline
}

type Options struct {
	Timeout            time.Duration
	Retry              int
	BackoffMin         time.Duration
	BackoffMax         time.Duration
	HostAllowlist      []string
	MaxConsecutiveFail int
	CircuitOpen        time.Duration
}

func NewFromConfig(cfg *config.HTTPClientConfig, log *logger.Logger) *Client {
	to := 15 * time.Second
	if cfg != nil && cfg.TimeoutMs > 0 {
		to = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}
	retries := 0
	if cfg != nil && cfg.Retry > 0 {
		retries = cfg.Retry
	}
	bmin := 100 * time.Millisecond
	if cfg != nil && cfg.BackoffMinMs > 0 {
		bmin = time.Duration(cfg.BackoffMinMs) * time.Millisecond
	}
	bmax := 800 * time.Millisecond
	if cfg != nil && cfg.BackoffMaxMs > 0 {
		bmax = time.Duration(cfg.BackoffMaxMs) * time.Millisecond
	}
	mcf := 5
	if cfg != nil && cfg.MaxConsecutiveFailures > 0 {
		mcf = cfg.MaxConsecutiveFailures
	}
	cop := 5 * time.Second
	if cfg != nil && cfg.CircuitOpenSeconds > 0 {
		cop = time.Duration(cfg.CircuitOpenSeconds) * time.Second
	}
	var allow []string
	if cfg != nil {
		allow = cfg.HostAllowlist
	}

	transport := &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		DialContext:     (&net.Dialer{Timeout: to}).DialContext,
		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		MaxIdleConns:    100,
		IdleConnTimeout: 30 * time.Second,
	}
	return New(&http.Client{Timeout: to, Transport: transport}, Options{
		Timeout: to, Retry: retries, BackoffMin: bmin, BackoffMax: bmax,
		HostAllowlist: allow, MaxConsecutiveFail: mcf, CircuitOpen: cop,
	}, log)
}

// New wraps an existing http.Client.
func New(hc *http.Client, opt Options, log *logger.Logger) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	if opt.MaxConsecutiveFail <= 0 {
		opt.MaxConsecutiveFail = 5
	}
	if opt.CircuitOpen <= 0 {
		opt.CircuitOpen = 5 * time.Second
	}
	return &Client{hc: hc, opt: opt, log: log.Named("httpx")}
}

func (c *Client) allowed(u *url.URL) bool {
	if len(c.opt.HostAllowlist) == 0 {
		return true
	}
	host := u.Hostname()
	for _, h := range c.opt.HostAllowlist {
		if matchHost(h, host) {
			return true
		}
	}
	return false
}

func matchHost(pattern, host string) bool {
	if pattern == "*" {
		return true
	}
	if strings.EqualFold(pattern, host) {
		return true
	}
	if strings.HasPrefix(pattern, "*.") {
		suf := strings.TrimPrefix(pattern, "*.")
		return strings.HasSuffix(host, "."+suf) || host == suf
	}
	return false
}

var ErrCircuitOpen = errors.New("circuit open")
var ErrHostNotAllowed = errors.New("host not allowed")

// retryableStatus marks a 5xx answer so the retry loop tries again.
type retryableStatus struct{ code int }

func (e retryableStatus) Error() string { return fmt.Sprintf("server status %d", e.code) }

// Do sends the request. Transport errors and 5xx responses are retried with
// jittered backoff; any response below 500 is returned to the caller as is.
// After the retries are spent a 5xx response is returned with a nil error.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if !c.allowed(req.URL) {
		c.log.Warnf("blocked outbound host: %s", req.URL.Host)
		return nil, ErrHostNotAllowed
	}
	if atomic.LoadInt64(&c.openUntil) > time.Now().UnixNano() {
		return nil, ErrCircuitOpen
	}

	ctx := req.Context()
	attempts := uint(c.opt.Retry + 1)
	var last *http.Response
	err := retry.Do(
		func() error {
			if last != nil {
				_ = last.Body.Close()
				last = nil
			}
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return retry.Unrecoverable(err)
				}
				req.Body = body
			}
			resp, err := c.hc.Do(req)
			if err != nil {
				return err
			}
			if resp.StatusCode >= 500 {
				last = resp
				return retryableStatus{code: resp.StatusCode}
			}
			last = resp
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(c.opt.BackoffMin),
		retry.MaxJitter(jitter(c.opt.BackoffMin, c.opt.BackoffMax)),
		retry.DelayType(retry.CombineDelay(retry.FixedDelay, retry.RandomDelay)),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return ctx.Err() == nil
		}),
		retry.OnRetry(func(n uint, err error) {
			c.log.Warnf("request failed (try %d/%d) to %s: %v", n+1, attempts, req.URL.Redacted(), err)
		}),
	)

	var rs retryableStatus
	if err == nil || errors.As(err, &rs) {
		if err == nil {
			atomic.StoreInt32(&c.fail, 0)
		} else {
			c.recordFailure()
		}
		return last, nil
	}
	if last != nil {
		_ = last.Body.Close()
	}
	if !errors.Is(err, context.Canceled) {
		c.recordFailure()
	}
	return nil, err
}

func (c *Client) recordFailure() {
	if atomic.AddInt32(&c.fail, 1) >= int32(c.opt.MaxConsecutiveFail) {
		atomic.StoreInt64(&c.openUntil, time.Now().Add(c.opt.CircuitOpen).UnixNano())
		atomic.StoreInt32(&c.fail, 0)
		c.log.Warnf("circuit opened for %v", c.opt.CircuitOpen)
	}
}

func jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return 1
	}
	return max - min
}
