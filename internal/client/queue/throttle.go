package queue

import (
	"math"
	"time"

	"golang.org/x/time/rate"
)

// ThrottleConfig describes a token bucket: Burst messages may go at once,
// then one per Interval.
type ThrottleConfig struct {
	Interval time.Duration
	Burst    int
}

// DefaultThrottleConfig follows RFC 1459: bursts of five, then one message
// every two seconds.
func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{Interval: 2 * time.Second, Burst: 5}
}

type Throttle struct {
	cfg ThrottleConfig
	lim *rate.Limiter
}

func NewThrottle(cfg ThrottleConfig) *Throttle {
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	t := &Throttle{cfg: cfg}
	t.lim = t.newLimiter()
	return t
}

func (t *Throttle) Config() ThrottleConfig { return t.cfg }

func (t *Throttle) newLimiter() *rate.Limiter {
	if t.cfg.Interval <= 0 {
		return rate.NewLimiter(rate.Inf, t.cfg.Burst)
	}
	return rate.NewLimiter(rate.Every(t.cfg.Interval), t.cfg.Burst)
}

// delay reports how long until one token is available at now.
func (t *Throttle) delay(now time.Time) time.Duration {
	if t.lim.Limit() == rate.Inf {
		return 0
	}
	tokens := t.lim.TokensAt(now)
	if tokens >= 1 {
		return 0
	}
	d := time.Duration(math.Ceil((1 - tokens) * float64(t.cfg.Interval)))
	if d <= 0 {
		d = time.Nanosecond
	}
	return d
}

func (t *Throttle) take(now time.Time) {
	t.lim.AllowN(now, 1)
}

// reset refills the bucket as of now.
func (t *Throttle) reset(now time.Time) {
	t.lim = t.newLimiter()
	t.lim.SetBurstAt(now, t.cfg.Burst)
}
