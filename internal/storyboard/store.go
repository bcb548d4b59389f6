package storyboard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"storyboard-ai/internal/types"
	"storyboard-ai/log"
	apperrors "storyboard-ai/pkg/errors"
	"strings"

	"go.uber.org/zap"
)

// Load reads a storyboard file. Anything that is not a readable JSON list
// of objects aborts the batch.
func Load(path string) (*types.Storyboard, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.WrapWithDetail(apperrors.CodeStoryboardRead, "分镜文件读取失败 Storyboard read failed", path, err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	var shots []types.Shot
	if err = json.Unmarshal(data, &shots); err != nil {
		return nil, apperrors.WrapWithDetail(apperrors.CodeStoryboardRead, "分镜文件不是合法的 json 列表 Storyboard is not a json list", path, err)
	}
	for i := range shots {
		shots[i].ID = i
	}
	log.GetLogger().Debug("分镜已加载 Storyboard loaded", zap.String("path", path), zap.Int("shots", len(shots)))
	return &types.Storyboard{Path: path, Shots: shots}, nil
}

// Validate checks the fields every stage relies on. The returned error
// lists each offending shot.
func Validate(sb *types.Storyboard) error {
	if sb == nil {
		return apperrors.New(apperrors.CodeValidation, "分镜为空 Storyboard is empty")
	}
	var problems []string
	for i := range sb.Shots {
		if missing := MissingFields(&sb.Shots[i]); len(missing) > 0 {
			problems = append(problems, fmt.Sprintf("shot %d: %s", i, strings.Join(missing, ", ")))
		}
	}
	if len(problems) > 0 {
		return apperrors.Newf(apperrors.CodeValidation, "分镜字段缺失 Storyboard validation failed", "%s", strings.Join(problems, "; "))
	}
	return nil
}

// MissingFields names the required keys shot lacks.
func MissingFields(shot *types.Shot) []string {
	var missing []string
	if strings.TrimSpace(shot.Text) == "" {
		missing = append(missing, types.KeyText)
	}
	if shot.Duration <= 0 {
		missing = append(missing, types.KeyDuration)
	}
	if strings.TrimSpace(shot.Chapter) == "" {
		missing = append(missing, types.KeyChapter)
	}
	if strings.TrimSpace(shot.Description) == "" {
		missing = append(missing, types.KeyDescription)
	}
	return missing
}

// Marshal renders shots the way storyboard files are written: two-space
// indent, non-ASCII kept as is.
func Marshal(sb *types.Storyboard) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	shots := sb.Shots
	if shots == nil {
		shots = []types.Shot{}
	}
	if err := enc.Encode(shots); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save persists the storyboard with backup-before-overwrite. It returns the
// backup path, empty when the file did not exist.
func Save(sb *types.Storyboard) (string, error) {
	data, err := Marshal(sb)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeFileWriteError, "分镜序列化失败 Storyboard encode failed", err)
	}
	backup, err := WriteWithBackup(sb.Path, data)
	if err != nil {
		return "", apperrors.WrapWithDetail(apperrors.CodeFileWriteError, "分镜保存失败 Storyboard save failed", sb.Path, err)
	}
	log.GetLogger().Info("分镜已保存 Storyboard saved", zap.String("path", sb.Path), zap.String("backup", backup))
	return backup, nil
}

// ResolvePath makes p absolute against the storyboard directory. Older
// files store audio names relative to the json.
func ResolvePath(sb *types.Storyboard, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(sb.Path), p)
}

// SeedRecord is the minimal record the audio export writes for each shot.
type SeedRecord struct {
	Text        string  `json:"text"`
	Audio       string  `json:"audio"`
	Duration    float64 `json:"duration"`
	Chapter     string  `json:"chapter"`
	Description string  `json:"description"`
}

// LoadSeed reads the record list written by the audio export.
func LoadSeed(path string) ([]SeedRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.WrapWithDetail(apperrors.CodeStoryboardRead, "种子文件读取失败 Seed file read failed", path, err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	var records []SeedRecord
	if err = json.Unmarshal(data, &records); err != nil {
		return nil, apperrors.WrapWithDetail(apperrors.CodeStoryboardRead, "种子文件不是合法的 json 列表 Seed file is not a json list", path, err)
	}
	return records, nil
}

// ImportSeed builds a fresh storyboard with every stage pending.
func ImportSeed(path string, records []SeedRecord) *types.Storyboard {
	sb := &types.Storyboard{Path: path, Shots: make([]types.Shot, len(records))}
	for i, rec := range records {
		sb.Shots[i] = types.Shot{
			ID:            i,
			Text:          rec.Text,
			Audio:         rec.Audio,
			Duration:      rec.Duration,
			Chapter:       rec.Chapter,
			Description:   rec.Description,
			PromptPending: true,
			FigurePending: true,
			VideoPending:  true,
		}
	}
	return sb
}
