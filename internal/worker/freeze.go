package worker

import "time"

// freezeController tracks the exponential back-off applied after a
// freeze-status-code response (or a request that produced no status at
// all), grounded on worker.py's freeze_time/freeze_left bookkeeping.
type freezeController struct {
	initial time.Duration
	max     time.Duration
	factor  float64

	time time.Duration
	left time.Duration
}

func newFreezeController(initial, max time.Duration, factor float64) *freezeController {
	return &freezeController{initial: initial, max: max, factor: factor, time: initial}
}

// observe updates the back-off state after one dispatched request.
// trigger is true when the call produced no HTTP status at all (connect
// failure) or a freeze-status-code response.
func (f *freezeController) observe(trigger bool) {
	if !trigger {
		if f.left <= 0 {
			f.time = f.initial
		}
		return
	}
	f.left = f.time
	f.time = time.Duration(float64(f.time) * f.factor)
	if f.time > f.max {
		f.time = f.max
	}
}

// frozenFor reports the remaining freeze duration, zero if not frozen.
func (f *freezeController) frozenFor() time.Duration { return f.left }

// tick decrements the remaining freeze time by one slice, floored at 0.
func (f *freezeController) tick(slice time.Duration) {
	f.left -= slice
	if f.left < 0 {
		f.left = 0
	}
}
