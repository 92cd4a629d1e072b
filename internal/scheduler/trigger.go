package scheduler

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Trigger describes when a job fires. Exactly one of the three concrete
// kinds is used per job; construction is resolved with a type switch at
// the scheduling boundary.
type Trigger interface {
	// Kind returns the wire tag: "cron", "interval" or "date".
	Kind() string
	// Describe renders a short human-readable form for job listings.
	Describe() string
}

// CronTrigger holds the five standard cron fields. Empty fields default
// to "*". Each field accepts "*", a value, a range or a comma list.
type CronTrigger struct {
	Minute string `json:"minute,omitempty"`
	Hour   string `json:"hour,omitempty"`
	Dom    string `json:"day,omitempty"`
	Month  string `json:"month,omitempty"`
	Dow    string `json:"day_of_week,omitempty"`
}

func (t CronTrigger) Kind() string { return "cron" }

func (t CronTrigger) Describe() string { return "cron(" + t.spec() + ")" }

// spec renders the robfig/cron five-field expression.
func (t CronTrigger) spec() string {
	f := func(v string) string {
		v = strings.TrimSpace(v)
		if v == "" {
			return "*"
		}
		return v
	}
	return fmt.Sprintf("%s %s %s %s %s", f(t.Minute), f(t.Hour), f(t.Dom), f(t.Month), f(t.Dow))
}

var cronFieldRe = regexp.MustCompile(`^(\*|[0-9]+(-[0-9]+)?)(,(\*|[0-9]+(-[0-9]+)?))*(/[0-9]+)?$`)

func (t CronTrigger) validate() error {
	for _, v := range []string{t.Minute, t.Hour, t.Dom, t.Month, t.Dow} {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if !cronFieldRe.MatchString(v) {
			return fmt.Errorf("invalid cron field %q", v)
		}
	}
	return nil
}

// IntervalTrigger fires repeatedly at a fixed period.
type IntervalTrigger struct {
	Every time.Duration `json:"every"`
}

func (t IntervalTrigger) Kind() string { return "interval" }

func (t IntervalTrigger) Describe() string { return "every " + t.Every.String() }

func (t IntervalTrigger) validate() error {
	if t.Every <= 0 {
		return fmt.Errorf("interval must be positive, got %s", t.Every)
	}
	return nil
}

// DateTrigger fires exactly once at an absolute instant, then the job
// removes itself.
type DateTrigger struct {
	At time.Time `json:"at"`
}

func (t DateTrigger) Kind() string { return "date" }

func (t DateTrigger) Describe() string { return "at " + t.At.Format(time.RFC3339) }

func (t DateTrigger) validate() error {
	if t.At.IsZero() {
		return fmt.Errorf("date trigger requires a timestamp")
	}
	return nil
}

func validateTrigger(trig Trigger) error {
	switch t := trig.(type) {
	case CronTrigger:
		return t.validate()
	case IntervalTrigger:
		return t.validate()
	case DateTrigger:
		return t.validate()
	case nil:
		return fmt.Errorf("trigger is required")
	default:
		return fmt.Errorf("unknown trigger type %T", trig)
	}
}
