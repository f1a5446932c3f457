package refetch

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "refetch/pkg/logx"
)

// SpecKind is the normalized kind of a schedule string.
type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
)

// ParsedSpec is a parsed schedule string.
//
// Supported forms:
//   - Cron: "*/5 * * * *", "0 */10 * * * *" (with seconds), "@hourly", "@every 30s"
//   - Interval duration: "30s", "2h30m"
//   - Interval HH:MM: "00:05" (5 minutes), "01:30" (90 minutes)
//
// Optional prefixes:
//   - "cron:" forces cron parsing
//   - "interval:" or "every:" forces interval parsing
type ParsedSpec struct {
	Kind   SpecKind
	Cron   string
	Every  time.Duration
	Source string // "cron" | "duration" | "hhmm"
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// cronParser accepts both 5-field and 6-field (leading seconds) specs.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses a schedule string into a cron expression or a fixed
// interval. Cron expressions are validated here, not at start time.
func ParseSchedule(raw string) (ParsedSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSpec{}, fmt.Errorf("%w: schedule required", ErrInvalidSchedule)
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		return parseCron(strings.TrimSpace(s[len("cron:"):]))
	case strings.HasPrefix(low, "interval:"):
		return parseInterval(s[len("interval:"):])
	case strings.HasPrefix(low, "every:"):
		return parseInterval(s[len("every:"):])
	}

	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return parseCron(s)
	}
	if reHHMM.MatchString(s) || isDuration(s) {
		return parseInterval(s)
	}
	return ParsedSpec{}, fmt.Errorf(
		"%w: %q (use cron like '*/5 * * * *', HH:MM like '00:05', or duration like '30s')",
		ErrInvalidSchedule, raw,
	)
}

func isDuration(s string) bool {
	_, err := time.ParseDuration(s)
	return err == nil
}

func parseCron(expr string) (ParsedSpec, error) {
	if expr == "" {
		return ParsedSpec{}, fmt.Errorf("%w: cron expression required", ErrInvalidSchedule)
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return ParsedSpec{}, fmt.Errorf("%w: cron %q: %v", ErrInvalidSchedule, expr, err)
	}
	return ParsedSpec{Kind: SpecCron, Cron: expr, Source: "cron"}, nil
}

func parseInterval(v string) (ParsedSpec, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return ParsedSpec{}, fmt.Errorf("%w: interval required", ErrInvalidSchedule)
	}
	if m := reHHMM.FindStringSubmatch(v); len(m) == 3 {
		var hh int
		for i := 0; i < len(m[1]); i++ {
			hh = hh*10 + int(m[1][i]-'0')
		}
		mm := int(m[2][0]-'0')*10 + int(m[2][1]-'0')
		if mm > 59 {
			return ParsedSpec{}, fmt.Errorf("%w: invalid minutes in %q", ErrInvalidSchedule, v)
		}
		d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
		if d <= 0 {
			return ParsedSpec{}, fmt.Errorf("%w: interval must be > 0", ErrInvalidSchedule)
		}
		return ParsedSpec{Kind: SpecInterval, Every: d, Source: "hhmm"}, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return ParsedSpec{}, fmt.Errorf("%w: invalid interval %q", ErrInvalidSchedule, v)
	}
	if d <= 0 {
		return ParsedSpec{}, fmt.Errorf("%w: interval must be > 0", ErrInvalidSchedule)
	}
	return ParsedSpec{Kind: SpecInterval, Every: d, Source: "duration"}, nil
}

// Schedule emits a refetch whenever spec fires. Interval specs run through
// Every (and therefore the controller's Clock); cron specs run on a
// dedicated robfig/cron instance in local time. Overlapping cron firings are
// skipped rather than run concurrently.
func (c *Controller) Schedule(spec string) (cancel func(), err error) {
	ps, err := ParseSchedule(spec)
	if err != nil {
		return func() {}, err
	}
	if c == nil || c.closed.Load() {
		return func() {}, nil
	}
	if ps.Kind == SpecInterval {
		return c.Every(ps.Every), nil
	}

	cl := cronLogger{log: c.log}
	cr := cron.New(
		cron.WithParser(cronParser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := cr.AddFunc(ps.Cron, func() { c.emit(SourceSchedule) }); err != nil {
		return func() {}, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	cr.Start()

	var once sync.Once
	return func() {
		// Stop without waiting: a listener may be the one cancelling.
		once.Do(func() { cr.Stop() })
	}, nil
}

// cronLogger routes robfig/cron's logr-style logging into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Trace("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Warn("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
