package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"storyboard-ai/pkg/util"
	"strconv"
	"strings"
	"time"
)

// Cue is one subtitle entry.
type Cue struct {
	Index int
	Start time.Duration
	End   time.Duration
	Text  string
}

// ParseTimestamp reads HH:MM:SS,mmm. A dot is accepted as the millisecond
// separator too.
func ParseTimestamp(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	clock, frac, ok := strings.Cut(strings.Replace(s, ".", ",", 1), ",")
	if !ok {
		return 0, fmt.Errorf("invalid srt timestamp %q", s)
	}
	hms := strings.Split(clock, ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid srt timestamp %q", s)
	}
	var parts [4]int
	for i, field := range append(hms, frac) {
		v, err := strconv.Atoi(field)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid srt timestamp %q", s)
		}
		parts[i] = v
	}
	return time.Duration(parts[0])*time.Hour +
		time.Duration(parts[1])*time.Minute +
		time.Duration(parts[2])*time.Second +
		time.Duration(parts[3])*time.Millisecond, nil
}

func parseTiming(line string) (time.Duration, time.Duration, error) {
	from, to, ok := strings.Cut(line, "-->")
	if !ok {
		return 0, 0, fmt.Errorf("invalid srt timing line %q", line)
	}
	start, err := ParseTimestamp(from)
	if err != nil {
		return 0, 0, err
	}
	// Some tools append position hints after the end time.
	fields := strings.Fields(to)
	if len(fields) == 0 {
		return 0, 0, fmt.Errorf("invalid srt timing line %q", line)
	}
	end, err := ParseTimestamp(fields[0])
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// Parse reads SRT cues. It tolerates a UTF-8 BOM, CRLF line endings and a
// missing final blank line. A block whose timing line cannot be read makes
// the whole input invalid.
func Parse(r io.Reader) ([]Cue, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var (
		cues    []Cue
		current Cue
		state   int // 0: index, 1: timing, 2: text
		lineNo  int
	)
	flush := func() {
		if state == 2 {
			cues = append(cues, current)
		}
		current = Cue{}
		state = 0
	}

	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if lineNo == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		trimmed := strings.TrimSpace(line)

		if trimmed == "" {
			if state == 1 {
				return nil, fmt.Errorf("line %d: cue %d has no timing line", lineNo, current.Index)
			}
			flush()
			continue
		}

		switch state {
		case 0:
			idx, err := strconv.Atoi(trimmed)
			if err != nil {
				return nil, fmt.Errorf("line %d: expected cue number, got %q", lineNo, trimmed)
			}
			current.Index = idx
			state = 1
		case 1:
			start, end, err := parseTiming(trimmed)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			current.Start, current.End = start, end
			state = 2
		case 2:
			if current.Text == "" {
				current.Text = trimmed
			} else {
				current.Text += "\n" + trimmed
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if state == 1 {
		return nil, fmt.Errorf("cue %d has no timing line", current.Index)
	}
	flush()
	return cues, nil
}

func ParseFile(path string) ([]Cue, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Format renders cues as SRT with a blank line after every cue.
func Format(cues []Cue) string {
	var sb strings.Builder
	for _, c := range cues {
		fmt.Fprintf(&sb, "%d\n%s --> %s\n%s\n\n", c.Index, util.SrtTimestamp(c.Start), util.SrtTimestamp(c.End), c.Text)
	}
	return sb.String()
}
