package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// JSON keys of a storyboard shot. Files written by older tooling use the
// same names, so they must not change.
const (
	KeyText         = "text"
	KeyAudio        = "audio"
	KeyDuration     = "duration"
	KeyChapter      = "chapter"
	KeyDescription  = "description"
	KeyPromptFigure = "Prompt_Figure"
	KeyPromptVideo  = "Prompt_Video"
	KeyFigure       = "Figure"
	KeyVideo        = "Video"
	KeyPromptFlag   = "Prompt_Update_Flag"
	KeyFigureFlag   = "Figure_Update_Flag"
	KeyVideoFlag    = "Video_Update_Flag"
	KeySubtitlePath = "SRT_Path"
	KeySubtitleFlag = "SRT_Update_Flag"

	flagPending = 1
	flagDone    = 0
)

var knownKeys = []string{
	KeyText, KeyAudio, KeyDuration, KeyChapter, KeyDescription,
	KeyPromptFigure, KeyPromptVideo, KeyFigure, KeyVideo,
	KeyPromptFlag, KeyFigureFlag, KeyVideoFlag,
	KeySubtitlePath, KeySubtitleFlag,
}

// Shot is one narrated unit of a storyboard.
type Shot struct {
	// ID is the position in the storyboard. It is assigned on load and never
	// written back.
	ID int

	Text        string
	Audio       string
	Duration    float64
	Chapter     string
	Description string

	PromptFigure string
	PromptVideo  *PromptVideo
	Figure       *FigureRecord
	Video        *VideoRecord

	PromptPending bool
	FigurePending bool
	VideoPending  bool

	SubtitlePath    string
	SubtitlePending bool

	// Extra keeps keys this program does not interpret so a rewrite never
	// drops them.
	Extra map[string]json.RawMessage

	present map[string]bool
}

// Has reports whether key was present in the decoded record.
func (s *Shot) Has(key string) bool {
	return s.present[key]
}

// PromptStep is one entry of the per-segment video prompt.
type PromptStep struct {
	Index    int
	Text     string
	Duration float64
}

// PromptVideo maps 1-based segment indices to their prompt text and the
// length the prompt author intended for it.
type PromptVideo struct {
	Process  map[string]string  `json:"Process"`
	Duration map[string]float64 `json:"duration"`
}

func (p *PromptVideo) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var single string
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return err
		}
		p.Process = map[string]string{"1": single}
		p.Duration = map[string]float64{}
		return nil
	}

	var raw struct {
		Process  map[string]string          `json:"Process"`
		Duration map[string]json.RawMessage `json:"duration"`
	}
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return err
	}
	p.Process = raw.Process
	p.Duration = make(map[string]float64, len(raw.Duration))
	for k, v := range raw.Duration {
		d, err := parseLooseFloat(v)
		if err != nil {
			return fmt.Errorf("Prompt_Video.duration[%s]: %w", k, err)
		}
		p.Duration[k] = d
	}
	return nil
}

// Steps returns the prompt entries ordered by numeric index. Keys that are
// not positive integers are ignored.
func (p *PromptVideo) Steps() []PromptStep {
	if p == nil {
		return nil
	}
	steps := make([]PromptStep, 0, len(p.Process))
	for key, text := range p.Process {
		idx, err := strconv.Atoi(key)
		if err != nil || idx <= 0 {
			continue
		}
		steps = append(steps, PromptStep{Index: idx, Text: text, Duration: p.Duration[key]})
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Index < steps[j].Index })
	return steps
}

// FigureRecord describes the generated still image of a shot.
type FigureRecord struct {
	Filename         string `json:"filename"`
	Filepath         string `json:"filepath"`
	OriginalFilename string `json:"original_filename"`
	Prompt           string `json:"prompt"`
	Timestamp        string `json:"timestamp"`
}

// SegmentRecord is one chained sub-clip of a shot video.
type SegmentRecord struct {
	Index     int     `json:"index"`
	Filepath  string  `json:"filepath"`
	SeedImage string  `json:"seed_image"`
	LastFrame string  `json:"last_frame"`
	Duration  float64 `json:"duration"`
	Frames    int     `json:"frames"`
}

// VideoRecord describes the concatenated clip of a shot.
type VideoRecord struct {
	Filename        string          `json:"filename"`
	Filepath        string          `json:"filepath"`
	Steps           int             `json:"steps"`
	GeneratedVideos []string        `json:"generated_videos"`
	Segments        []SegmentRecord `json:"segments,omitempty"`
	Timestamp       string          `json:"timestamp"`
}

// SegmentSeconds sums the recorded segment lengths.
func (v *VideoRecord) SegmentSeconds() float64 {
	total := 0.0
	for _, seg := range v.Segments {
		total += seg.Duration
	}
	return total
}

func (s *Shot) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*s = Shot{present: make(map[string]bool, len(fields))}
	for key := range fields {
		s.present[key] = true
	}

	var err error
	decodeString := func(key string, dst *string) {
		if raw, ok := fields[key]; ok && err == nil && !isNull(raw) {
			if e := json.Unmarshal(raw, dst); e != nil {
				err = fmt.Errorf("field %s: %w", key, e)
			}
		}
	}
	decodeFlag := func(key string, dst *bool) {
		if raw, ok := fields[key]; ok && err == nil && !isNull(raw) {
			v, e := parseLooseFloat(raw)
			if e != nil {
				err = fmt.Errorf("field %s: %w", key, e)
				return
			}
			*dst = v != flagDone
		}
	}

	decodeString(KeyText, &s.Text)
	decodeString(KeyAudio, &s.Audio)
	decodeString(KeyChapter, &s.Chapter)
	decodeString(KeyDescription, &s.Description)
	decodeString(KeyPromptFigure, &s.PromptFigure)
	decodeString(KeySubtitlePath, &s.SubtitlePath)
	if raw, ok := fields[KeyDuration]; ok && err == nil && !isNull(raw) {
		if s.Duration, err = parseLooseFloat(raw); err != nil {
			err = fmt.Errorf("field %s: %w", KeyDuration, err)
		}
	}
	if raw, ok := fields[KeyPromptVideo]; ok && err == nil && !isNull(raw) {
		s.PromptVideo = &PromptVideo{}
		if e := json.Unmarshal(raw, s.PromptVideo); e != nil {
			err = fmt.Errorf("field %s: %w", KeyPromptVideo, e)
		}
	}
	if raw, ok := fields[KeyFigure]; ok && err == nil && !isNull(raw) {
		s.Figure = &FigureRecord{}
		if e := json.Unmarshal(raw, s.Figure); e != nil {
			err = fmt.Errorf("field %s: %w", KeyFigure, e)
		}
	}
	if raw, ok := fields[KeyVideo]; ok && err == nil && !isNull(raw) {
		s.Video = &VideoRecord{}
		if e := json.Unmarshal(raw, s.Video); e != nil {
			err = fmt.Errorf("field %s: %w", KeyVideo, e)
		}
	}
	decodeFlag(KeyPromptFlag, &s.PromptPending)
	decodeFlag(KeyFigureFlag, &s.FigurePending)
	decodeFlag(KeyVideoFlag, &s.VideoPending)
	decodeFlag(KeySubtitleFlag, &s.SubtitlePending)
	if err != nil {
		return err
	}

	for _, key := range knownKeys {
		delete(fields, key)
	}
	if len(fields) > 0 {
		s.Extra = fields
	}
	return nil
}

func (s Shot) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	write := func(key string, value any) error {
		encoded, err := marshalNoEscape(value)
		if err != nil {
			return fmt.Errorf("field %s: %w", key, err)
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, _ := marshalNoEscape(key)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(encoded)
		return nil
	}

	type kv struct {
		key   string
		value any
		keep  bool
	}
	ordered := []kv{
		{KeyText, s.Text, true},
		{KeyAudio, s.Audio, true},
		{KeyDuration, s.Duration, true},
		{KeyChapter, s.Chapter, true},
		{KeyDescription, s.Description, true},
		{KeyPromptFigure, s.PromptFigure, s.PromptFigure != "" || s.Has(KeyPromptFigure)},
		{KeyPromptVideo, s.PromptVideo, s.PromptVideo != nil},
		{KeyFigure, s.Figure, s.Figure != nil},
		{KeyVideo, s.Video, s.Video != nil},
		{KeyPromptFlag, flagValue(s.PromptPending), true},
		{KeyFigureFlag, flagValue(s.FigurePending), true},
		{KeyVideoFlag, flagValue(s.VideoPending), true},
		{KeySubtitlePath, s.SubtitlePath, s.SubtitlePath != "" || s.Has(KeySubtitlePath)},
		{KeySubtitleFlag, flagValue(s.SubtitlePending), s.SubtitlePending || s.Has(KeySubtitleFlag)},
	}
	for _, item := range ordered {
		if !item.keep {
			continue
		}
		if err := write(item.key, item.value); err != nil {
			return nil, err
		}
	}

	extraKeys := make([]string, 0, len(s.Extra))
	for key := range s.Extra {
		extraKeys = append(extraKeys, key)
	}
	sort.Strings(extraKeys)
	for _, key := range extraKeys {
		if err := write(key, s.Extra[key]); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Clone returns a deep copy so a stage can build a new record without
// touching the one held by the storyboard.
func (s Shot) Clone() Shot {
	out := s
	if s.PromptVideo != nil {
		pv := PromptVideo{
			Process:  make(map[string]string, len(s.PromptVideo.Process)),
			Duration: make(map[string]float64, len(s.PromptVideo.Duration)),
		}
		for k, v := range s.PromptVideo.Process {
			pv.Process[k] = v
		}
		for k, v := range s.PromptVideo.Duration {
			pv.Duration[k] = v
		}
		out.PromptVideo = &pv
	}
	if s.Figure != nil {
		fig := *s.Figure
		out.Figure = &fig
	}
	if s.Video != nil {
		vid := *s.Video
		vid.GeneratedVideos = append([]string(nil), s.Video.GeneratedVideos...)
		vid.Segments = append([]SegmentRecord(nil), s.Video.Segments...)
		out.Video = &vid
	}
	if s.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(s.Extra))
		for k, v := range s.Extra {
			out.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	if s.present != nil {
		out.present = make(map[string]bool, len(s.present))
		for k, v := range s.present {
			out.present[k] = v
		}
	}
	return out
}

// Storyboard is the ordered shot list of one storyboard file.
type Storyboard struct {
	Path  string
	Shots []Shot
}

func flagValue(pending bool) int {
	if pending {
		return flagPending
	}
	return flagDone
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// parseLooseFloat accepts JSON numbers and numeric strings; generated
// records are not always strict about the difference.
func parseLooseFloat(raw json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return 0, fmt.Errorf("not a number: %s", string(raw))
	}
	return strconv.ParseFloat(str, 64)
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
