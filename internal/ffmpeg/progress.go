package ffmpeg

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Progress is one normalized progress snapshot from an ffmpeg run.
type Progress struct {
	Frames   int64
	FPS      *float64
	Timemark time.Duration
	Percent  float64
	Done     bool
}

var kvPattern = regexp.MustCompile(`([a-z_]+)=\s*(\S+)`)

// ProgressParser accumulates ffmpeg progress output. It understands both the
// "-progress pipe:1" key=value blocks terminated by a progress= line and the classic
// "frame=  120 fps= 30 ... time=00:00:04.00" stats lines. One parser serves one run.
type ProgressParser struct {
	duration    time.Duration
	totalFrames int64
	cur         Progress
}

// NewProgressParser creates a parser. Percent is derived from the timemark when duration
// is known, else from the frame count when totalFrames is known, else stays at 0.
func NewProgressParser(duration time.Duration, totalFrames int64) *ProgressParser {
	return &ProgressParser{duration: duration, totalFrames: totalFrames}
}

// Feed consumes one line and returns a snapshot when the line completes one.
func (p *ProgressParser) Feed(line string) (Progress, bool) {
	pairs := kvPattern.FindAllStringSubmatch(strings.TrimSpace(line), -1)
	if len(pairs) == 0 {
		return Progress{}, false
	}

	complete := len(pairs) > 1 // classic stats line
	for _, kv := range pairs {
		key, val := kv[1], kv[2]
		switch key {
		case "frame":
			if n, err := strconv.ParseInt(val, 10, 64); err == nil {
				p.cur.Frames = n
			}
		case "fps":
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				p.cur.FPS = &f
			}
		case "out_time_us", "out_time_ms":
			// ffmpeg reports both in microseconds
			if n, err := strconv.ParseInt(val, 10, 64); err == nil && n >= 0 {
				p.cur.Timemark = time.Duration(n) * time.Microsecond
			}
		case "out_time", "time":
			if d, ok := parseTimemark(val); ok {
				p.cur.Timemark = d
			}
		case "progress":
			complete = true
			if val == "end" {
				p.cur.Done = true
			}
		}
	}
	if !complete {
		return Progress{}, false
	}

	p.cur.Percent = p.percent()
	snap := p.cur
	if snap.FPS != nil {
		f := *snap.FPS
		snap.FPS = &f
	}
	return snap, true
}

func (p *ProgressParser) percent() float64 {
	var pct float64
	switch {
	case p.cur.Done:
		pct = 100
	case p.duration > 0:
		pct = float64(p.cur.Timemark) / float64(p.duration) * 100
	case p.totalFrames > 0:
		pct = float64(p.cur.Frames) / float64(p.totalFrames) * 100
	}
	return clampPercent(pct)
}

// parseTimemark parses HH:MM:SS(.frac), tolerating "N/A" and negative values.
func parseTimemark(s string) (time.Duration, bool) {
	if s == "N/A" || strings.HasPrefix(s, "-") {
		return 0, false
	}
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	sec, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}
	total := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
	return total + time.Duration(sec*float64(time.Second)), true
}

func clampPercent(p float64) float64 {
	if p < 0 || p != p {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
