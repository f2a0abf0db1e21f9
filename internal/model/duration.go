package model

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ParseCron validates a schedule.cron value: five fields or a macro such
// as @hourly or @every 5m.
func ParseCron(expr string) error {
	e := strings.TrimSpace(expr)
	if e == "" {
		return errors.New("empty cron expression")
	}
	if strings.HasPrefix(e, "@") {
		_, err := cron.ParseStandard(e)
		return err
	}
	_, err := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow).Parse(e)
	return err
}

// durationRx mirrors #Duration in config.cue.
var durationRx = regexp.MustCompile(`^(?:(\d+)d)?(?:(\d+)h)?(?:(\d+)m)?(?:(\d+)s)?(?:(\d+)ms)?$`)

var durationUnits = [...]time.Duration{24 * time.Hour, time.Hour, time.Minute, time.Second, time.Millisecond}

// ParseCueDuration converts a #Duration value such as 1d2h, 15m or 1s500ms.
func ParseCueDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, errors.New("empty duration")
	}
	m := durationRx.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	var total time.Duration
	for i, seg := range m[1:] {
		if seg == "" {
			continue
		}
		n, err := strconv.ParseInt(seg, 10, 64)
		if err != nil || n > math.MaxInt64/int64(durationUnits[i]) {
			return 0, fmt.Errorf("duration %q overflows", s)
		}
		add := time.Duration(n) * durationUnits[i]
		if total > math.MaxInt64-add {
			return 0, fmt.Errorf("duration %q overflows", s)
		}
		total += add
	}
	return total, nil
}
