package worker

import (
	"time"

	"github.com/routerforge/acctrouter/internal/account"
)

// pacer computes the inter-request delay for one account, mirroring
// worker.py's _get_interval_cooldown/_get_window_cooldown: it owns the
// request-timestamp history and the INTERVAL cycle position, since both
// are properties of this Worker's own call pattern, not of the Account.
type pacer struct {
	mode  account.CooldownMode
	param account.CooldownParam

	values []float64 // one full INTERVAL cycle, expanded
	idx    int

	timestamps []time.Time
}

func newPacer(mode account.CooldownMode, param account.CooldownParam) *pacer {
	return &pacer{mode: mode, param: param}
}

// recordRequest appends now to the history and trims entries no longer
// needed by either cooldown mode.
func (p *pacer) recordRequest(now time.Time) {
	p.timestamps = append(p.timestamps, now)
	horizon := p.param.TotalDuration()
	if p.param.Period > horizon {
		horizon = p.param.Period
	}
	if horizon <= 0 {
		return
	}
	cutoff := now.Add(-time.Duration(horizon * float64(time.Second)))
	i := 0
	for ; i < len(p.timestamps); i++ {
		if p.timestamps[i].After(cutoff) {
			break
		}
	}
	p.timestamps = p.timestamps[i:]
}

// cooldown returns how long the Worker should sleep before dequeuing
// its next task.
func (p *pacer) cooldown(now time.Time) time.Duration {
	switch p.mode {
	case account.CooldownWindow:
		return p.windowCooldown(now)
	default:
		return p.intervalCooldown(now)
	}
}

// intervalCooldown walks a cyclic schedule, restarting the cycle
// whenever the gap since the last request exceeds the schedule's total
// duration (a quiet period resets the accelerator).
func (p *pacer) intervalCooldown(now time.Time) time.Duration {
	if p.values == nil {
		p.values = p.param.Expand()
	}
	if len(p.timestamps) > 0 {
		last := p.timestamps[len(p.timestamps)-1]
		if now.Sub(last).Seconds() > p.param.TotalDuration() {
			p.idx = 0
		}
	}
	if len(p.values) == 0 {
		return 0
	}
	v := p.values[p.idx%len(p.values)]
	p.idx++
	return time.Duration(v * float64(time.Second))
}

// windowCooldown enforces at most one request per WindowSize within any
// rolling Period: it walks the recorded timestamps newest-first,
// counting how many WindowSize-wide buckets (anchored at now) have seen
// more than one request, and paces once the period's worth of windows
// has been used up.
func (p *pacer) windowCooldown(now time.Time) time.Duration {
	windowSize, period := p.param.WindowSize, p.param.Period
	if windowSize <= 0 {
		return 0
	}
	windowNum, windowReq := 1, 0
	for i := len(p.timestamps) - 1; i >= 0; i-- {
		age := now.Sub(p.timestamps[i]).Seconds()
		if age > float64(windowNum)*windowSize {
			if windowReq <= 1 {
				break
			}
			windowNum++
			windowReq = 1
		} else {
			windowReq++
		}
		if age > period {
			break
		}
	}
	if windowReq <= 1 || float64(windowNum) < period/windowSize {
		return 0
	}
	return time.Duration(windowSize * float64(time.Second))
}
