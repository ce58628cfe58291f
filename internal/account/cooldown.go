package account

// CooldownMode selects how GetAPICooldown interprets CooldownParam.
type CooldownMode string

const (
	CooldownInterval CooldownMode = "interval"
	CooldownWindow   CooldownMode = "window"
)

// CooldownKind discriminates the shape of a CooldownParam value (see
// DESIGN NOTE 9.2: a tagged union rather than an any/interface{} field).
type CooldownKind int

const (
	CooldownKindNone CooldownKind = iota
	CooldownKindScalar
	CooldownKindSchedule
	CooldownKindWindow
)

// ScheduleEntry is one (repeat, seconds) step of a cyclic INTERVAL
// schedule: seconds is used repeat times before advancing.
type ScheduleEntry struct {
	Repeat  int
	Seconds float64
}

// CooldownParam is the account's pacing configuration. Exactly one of
// Scalar, Schedule, or (WindowSize, Period) is meaningful, selected by
// Kind and cross-checked against the account's CooldownMode.
type CooldownParam struct {
	Kind Kind

	// CooldownKindScalar / INTERVAL with a single value.
	Scalar float64

	// CooldownKindSchedule / INTERVAL with a cyclic list.
	Schedule []ScheduleEntry

	// CooldownKindWindow / WINDOW mode: no more than 1 request per
	// WindowSize within any rolling Period.
	WindowSize float64
	Period     float64
}

// Kind is an alias so call sites read account.CooldownParam{Kind: account.CooldownKindScalar, ...}.
type Kind = CooldownKind

// ScalarCooldown builds a flat-interval CooldownParam.
func ScalarCooldown(seconds float64) CooldownParam {
	return CooldownParam{Kind: CooldownKindScalar, Scalar: seconds}
}

// ScheduleCooldown builds a cyclic-schedule CooldownParam.
func ScheduleCooldown(entries ...ScheduleEntry) CooldownParam {
	return CooldownParam{Kind: CooldownKindSchedule, Schedule: entries}
}

// WindowCooldown builds a rolling-window CooldownParam.
func WindowCooldown(windowSize, period float64) CooldownParam {
	return CooldownParam{Kind: CooldownKindWindow, WindowSize: windowSize, Period: period}
}

// TotalDuration returns the sum of one full cycle of a schedule, used to
// decide when an idle gap should restart the cycle.
func (c CooldownParam) TotalDuration() float64 {
	switch c.Kind {
	case CooldownKindScalar:
		return c.Scalar
	case CooldownKindSchedule:
		var total float64
		for _, e := range c.Schedule {
			total += float64(e.Repeat) * e.Seconds
		}
		return total
	default:
		return 0
	}
}

// Expand flattens a cyclic schedule into one period's worth of sleep
// values, e.g. [(2, 1.0), (1, 5.0)] -> [1.0, 1.0, 5.0].
func (c CooldownParam) Expand() []float64 {
	switch c.Kind {
	case CooldownKindScalar:
		return []float64{c.Scalar}
	case CooldownKindSchedule:
		var out []float64
		for _, e := range c.Schedule {
			for i := 0; i < e.Repeat; i++ {
				out = append(out, e.Seconds)
			}
		}
		if len(out) == 0 {
			return []float64{0}
		}
		return out
	default:
		return []float64{0}
	}
}
