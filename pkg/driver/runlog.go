package driver

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// RunDuration is one line of a run duration log.
type RunDuration struct {
	Time    time.Time
	Actions uint64
}

// writeRunDurationLogs appends "<unix seconds>\t<action count>" to every
// configured log file. A file that fails does not stop the others.
func (d *Driver) writeRunDurationLogs() []error {
	ts := d.now().Unix()
	count := d.actions.Load()

	var errs []error
	for _, name := range d.cfg.RunDurationLogfiles {
		d.logger.Info("write run duration log %s", name)
		if err := appendRunDuration(name, ts, count); err != nil {
			d.logger.WithError(err).WithField("file", name).Error("failed to write run duration log")
			errs = append(errs, err)
		}
	}
	return errs
}

func appendRunDuration(name string, ts int64, count uint64) error {
	f, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open run duration log: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%d\t%d\n", ts, count); err != nil {
		f.Close()
		return fmt.Errorf("write run duration log %s: %w", name, err)
	}
	return f.Close()
}

// ReadRunDurationLog parses a run duration log file.
func ReadRunDurationLog(name string) ([]RunDuration, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []RunDuration
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) != 2 {
			return nil, fmt.Errorf("%s:%d: expected 2 tab separated fields, got %d", name, line, len(fields))
		}
		ts, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: invalid timestamp: %w", name, line, err)
		}
		count, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: invalid action count: %w", name, line, err)
		}
		out = append(out, RunDuration{Time: time.Unix(ts, 0), Actions: count})
	}
	return out, scanner.Err()
}

// TotalActions sums the action counts of a run duration log.
func TotalActions(entries []RunDuration) uint64 {
	var total uint64
	for _, e := range entries {
		total += e.Actions
	}
	return total
}
