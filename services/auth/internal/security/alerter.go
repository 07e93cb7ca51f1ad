// Package security counts failed auth attempts per client IP and reports
// when a burst crosses its alert threshold.
package security

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultAlertPrefix = "lms:auth:alerts"

// INCR then arm the expiry on the first hit of a window.
var burstCounter = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

type burstRule struct {
	threshold int64
	window    time.Duration
}

var (
	rateLimitedRule = burstRule{threshold: 20, window: time.Minute}

	failureRules = map[string]burstRule{
		// code and password guessing
		"auth.login":          {threshold: 10, window: 5 * time.Minute},
		"auth.verify_otp":     {threshold: 10, window: 5 * time.Minute},
		"auth.reset_password": {threshold: 10, window: 5 * time.Minute},
		// mail bombing
		"auth.register":        {threshold: 15, window: 5 * time.Minute},
		"auth.forgot_password": {threshold: 15, window: 5 * time.Minute},
		"auth.authorize":       {threshold: 25, window: 5 * time.Minute},
		"auth.logout":          {threshold: 25, window: 5 * time.Minute},
	}
)

// AlertResult is the state of the burst window an event landed in.
type AlertResult struct {
	Triggered bool
	Count     int64
	Threshold int64
	Window    time.Duration
}

// AuditAlerter counts security events in fixed Redis windows.
type AuditAlerter struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewAuditAlerter returns nil without a client; a nil alerter observes nothing.
func NewAuditAlerter(client *redis.Client, prefix string) *AuditAlerter {
	if client == nil {
		return nil
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultAlertPrefix
	}
	return &AuditAlerter{client: client, prefix: prefix, now: time.Now}
}

// Observe counts one event for ip. Outcomes other than "fail" and
// "rate_limited" are ignored.
func (a *AuditAlerter) Observe(ctx context.Context, event, outcome, ip string) (AlertResult, error) {
	if a == nil {
		return AlertResult{}, nil
	}
	rule, ok := ruleFor(strings.TrimSpace(event), strings.TrimSpace(outcome))
	if !ok {
		return AlertResult{}, nil
	}

	windowMs := rule.window.Milliseconds()
	slot := a.now().UTC().UnixMilli() / windowMs
	key := strings.Join([]string{
		a.prefix,
		keySegment(event),
		keySegment(outcome),
		keySegment(ip),
		strconv.FormatInt(slot, 10),
	}, ":")

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	count, err := burstCounter.Run(ctx, a.client, []string{key}, windowMs).Int64()
	if err != nil {
		return AlertResult{}, err
	}
	return AlertResult{
		Triggered: count >= rule.threshold,
		Count:     count,
		Threshold: rule.threshold,
		Window:    rule.window,
	}, nil
}

func ruleFor(event, outcome string) (burstRule, bool) {
	switch outcome {
	case "rate_limited":
		return rateLimitedRule, true
	case "fail":
		rule, ok := failureRules[event]
		return rule, ok
	default:
		return burstRule{}, false
	}
}

var segmentReplacer = strings.NewReplacer(":", "_", "|", "_", " ", "_")

func keySegment(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}
	return segmentReplacer.Replace(in)
}
