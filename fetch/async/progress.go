package async

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02 15:04:05"

	// countdownInterval throttles how often backoff countdown lines update
	// the job record. The fetcher prints one per second.
	countdownInterval = 10 * time.Second
)

// scriptCSV maps pipeline fetcher scripts to the CSV file each one writes.
var scriptCSV = map[string]string{
	"fetch_steps.py":                        "fitbit_activity.csv",
	"fetch_rhr_data.py":                     "fitbit_rhr.csv",
	"fetch_hrv_data.py":                     "fitbit_hrv.csv",
	"fetch_sleep_data.py":                   "fitbit_sleep.csv",
	"fetch_sleep_data_alternate_version.py": "fitbit_sleep.csv",
}

// fetchStarts are the per-metric range announcements each fetcher script
// prints once it knows its start date.
var fetchStarts = []struct {
	prefix string
	label  string
}{
	{"starting activity data fetch from ", "Activity"},
	{"starting resting hr fetch from ", "RHR"},
	{"starting hrv fetch from ", "HRV"},
	{"starting sleep data fetch from ", "Sleep"},
}

var (
	headerResetInRe  = regexp.MustCompile(`reset in\s+(\d+)s`)
	headerResetForRe = regexp.MustCompile(`header reset for\s+(\d+)s`)
)

// Parser derives progress updates from pipeline output lines. The pipeline
// scripts were written for humans watching a terminal, so this is pattern
// matching over informal text rather than a structured protocol.
//
// A Parser belongs to a single job; the countdown limiter carries per-job
// state.
type Parser struct {
	now       func() time.Time
	countdown *rate.Limiter
}

// NewParser returns a Parser using the wall clock.
func NewParser() *Parser {
	return &Parser{
		now:       time.Now,
		countdown: rate.NewLimiter(rate.Every(countdownInterval), 1),
	}
}

// Apply inspects one output line and updates the job's progress fields.
// Patterns are checked independently: a "Saved ... to x.csv up to <date>"
// line advances both the CSV name and the date fraction. Reports whether
// anything visible changed, which gates subscriber notification in the
// registry.
func (p *Parser) Apply(j *Job, line string) bool {
	line = strings.TrimSpace(line)
	low := strings.ToLower(line)
	changed := false

	// "[i/N] Starting fetch_xxx.py..." from the pipeline driver
	if strings.Contains(low, "starting") && strings.Contains(low, "fetch_") && strings.HasSuffix(low, "...") {
		changed = p.applyScriptStart(j, line) || changed
	}

	for _, fs := range fetchStarts {
		if strings.Contains(low, fs.prefix) {
			changed = p.applyFetchStart(j, low, fs.prefix, fs.label) || changed
		}
	}

	// Chunk lines print the target end of the window before any data is
	// saved, so they update the message only. Progress advances on the
	// "up to" confirmations below.
	if strings.Contains(low, "fetching ") && strings.Contains(low, " to ") {
		changed = p.applyFetchWindow(j, line) || changed
	}

	if strings.Contains(low, "saved ") && strings.Contains(low, " to ") {
		changed = p.applySavedCSV(j, line) || changed
	}

	if strings.Contains(low, " up to ") {
		changed = p.applyLastDate(j, low) || changed
	}

	if strings.Contains(low, "rate-limit headers indicate reset in ") {
		if m := headerResetInRe.FindStringSubmatch(low); m != nil {
			changed = p.applyHeaderReset(j, m[1]) || changed
		}
	}

	if strings.Contains(low, "header reset for ") && strings.Contains(low, "s...") {
		if m := headerResetForRe.FindStringSubmatch(low); m != nil {
			changed = p.applyHeaderReset(j, m[1]) || changed
		}
	}

	if strings.Contains(low, "waiting until ") && strings.Contains(low, "top of hour") {
		changed = p.applyWaitUntil(j, line, low) || changed
	}

	if strings.Contains(low, "retrying in ") {
		changed = p.applyCountdown(j, line) || changed
	}

	if low == "resuming..." {
		j.ThrottleActive = false
		j.ThrottleReason = ""
		j.ThrottleMMSS = ""
		j.ThrottleUntil = ""
		changed = true
	}

	return changed
}

// applyScriptStart handles "Starting fetch_steps.py..." announcements.
// Unknown script names are ignored.
func (p *Parser) applyScriptStart(j *Job, line string) bool {
	parts := strings.SplitN(line, "Starting", 2)
	if len(parts) != 2 {
		return false
	}
	name := strings.TrimSpace(strings.Trim(strings.TrimSpace(parts[1]), "."))
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return false
	}
	csv, ok := scriptCSV[fields[0]]
	if !ok {
		return false
	}
	j.CurrentScript = fields[0]
	j.CurrentCSV = csv
	j.Message = "Running " + fields[0]
	return true
}

// applyFetchStart handles the per-metric "fetch from <date>" announcement.
// The date token is recorded as-is; recomputeProgress validates it.
func (p *Parser) applyFetchStart(j *Job, low, prefix, label string) bool {
	parts := strings.SplitN(low, prefix, 2)
	if len(parts) != 2 {
		return false
	}
	fields := strings.Fields(parts[1])
	if len(fields) == 0 {
		return false
	}
	j.StartDate = fields[0]
	j.Message = label + " from " + fields[0]
	p.recomputeProgress(j, "")
	return true
}

// applyFetchWindow handles "Fetching <date> to <date>" chunk lines. The
// first two date-shaped tokens must both parse or the line is ignored.
func (p *Parser) applyFetchWindow(j *Job, line string) bool {
	var dates []string
	for _, f := range strings.Fields(line) {
		if dateShaped(f) {
			dates = append(dates, f)
		}
	}
	if len(dates) < 2 || !isDate(dates[0]) || !isDate(dates[1]) {
		return false
	}
	j.Message = fmt.Sprintf("Fetching %s → %s", dates[0], dates[1])
	return true
}

// applySavedCSV picks the last .csv token out of "Saved N rows to <path>"
// lines. The path may be followed by an "up to <date>" suffix, so the CSV
// is not necessarily the final token.
func (p *Parser) applySavedCSV(j *Job, line string) bool {
	csv := ""
	for _, f := range strings.Fields(line) {
		if strings.HasSuffix(f, ".csv") {
			csv = f
		}
	}
	if csv == "" {
		return false
	}
	j.CurrentCSV = filepath.Base(csv)
	return true
}

// applyLastDate handles "... up to <date>" confirmations, which advance
// the per-day progress fraction.
func (p *Parser) applyLastDate(j *Job, low string) bool {
	parts := strings.SplitN(low, " up to ", 2)
	if len(parts) != 2 {
		return false
	}
	fields := strings.Fields(parts[1])
	if len(fields) == 0 || !isDate(fields[0]) {
		return false
	}
	j.LastDate = fields[0]
	p.recomputeProgress(j, fields[0])
	return true
}

// applyHeaderReset handles rate-limit responses that carry a reset delay in
// seconds. The absolute resume time is surfaced instead of the raw delay.
func (p *Parser) applyHeaderReset(j *Job, secondsField string) bool {
	seconds, err := strconv.Atoi(secondsField)
	if err != nil {
		return false
	}
	until := p.now().Add(time.Duration(seconds) * time.Second)
	j.ThrottleActive = true
	j.ThrottleReason = "Header reset"
	j.ThrottleUntil = until.Format(timestampLayout)
	j.ThrottleMMSS = ""
	return true
}

// applyWaitUntil handles top-of-hour waits. The sentence before the wait
// announcement explains the cause and becomes the throttle reason.
func (p *Parser) applyWaitUntil(j *Job, line, low string) bool {
	parts := strings.SplitN(low, "waiting until ", 2)
	if len(parts) != 2 {
		return false
	}
	fields := strings.Fields(parts[1])
	if len(fields) == 0 {
		return false
	}
	reason := line
	if idx := strings.Index(line, ". Waiting"); idx >= 0 {
		reason = line[:idx]
	}
	j.ThrottleActive = true
	j.ThrottleReason = reason
	j.ThrottleUntil = fields[0]
	j.ThrottleMMSS = ""
	return true
}

// applyCountdown handles per-second "Retrying in MM:SS" lines. Updates are
// rate limited so a minutes-long backoff does not flood subscribers; the
// limiter is consumed only when a countdown token was actually found.
func (p *Parser) applyCountdown(j *Job, line string) bool {
	mmss := findCountdown(strings.Fields(line))
	if mmss == "" {
		return false
	}
	if !p.countdown.Allow() {
		return false
	}
	j.ThrottleActive = true
	if j.ThrottleReason == "" {
		j.ThrottleReason = "Backoff"
	}
	j.ThrottleMMSS = mmss
	return true
}

// recomputeProgress rederives the completion fraction from the recorded
// start date. An empty lastDate means no day of the current range has
// completed yet. Progress never moves backwards: each fetcher script
// restarts its own date range, and a bar that drops back to zero four
// times per run reads as a bug.
func (p *Parser) recomputeProgress(j *Job, lastDate string) bool {
	if j.StartDate == "" {
		return false
	}
	start, err := time.Parse(dateLayout, j.StartDate)
	if err != nil {
		return false
	}
	today := dayOf(p.now())

	last := start
	if lastDate != "" {
		if d, perr := time.Parse(dateLayout, lastDate); perr == nil {
			last = d
		}
	}
	if last.After(today) {
		last = today
	}

	total := daysBetween(start, today)
	if total < 1 {
		total = 1
	}
	done := daysBetween(start, last)
	if done < 0 {
		done = 0
	}

	progress := float64(done) / float64(total)
	if progress > 1 {
		progress = 1
	}
	if progress > j.Progress {
		j.Progress = progress
		return true
	}
	return false
}

// dayOf truncates a wall-clock time to its calendar day in UTC, matching
// how the parsed date tokens are interpreted.
func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

func dateShaped(tok string) bool {
	return len(tok) == 10 && tok[4] == '-' && tok[7] == '-'
}

func isDate(tok string) bool {
	_, err := time.Parse(dateLayout, tok)
	return err == nil
}

// findCountdown scans fields from the end for an MM:SS token. Countdown
// lines put the remaining time last, but a trailing ellipsis sometimes
// follows it.
func findCountdown(fields []string) string {
	for i := len(fields) - 1; i >= 0; i-- {
		f := fields[i]
		if len(f) == 5 && f[2] == ':' && isDigits(f[:2]) && isDigits(f[3:]) {
			return f
		}
	}
	return ""
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
