package types

// RunStatus values are stored as integers in the history database.
type RunStatus uint8

const (
	RunStatusQueued RunStatus = iota
	RunStatusRunning
	RunStatusSucceeded
	RunStatusFailed
)

func (s RunStatus) String() string {
	switch s {
	case RunStatusRunning:
		return "running"
	case RunStatusSucceeded:
		return "succeeded"
	case RunStatusFailed:
		return "failed"
	default:
		return "queued"
	}
}

// RunRecord is one storyboard run as kept in the history database.
type RunRecord struct {
	Id             uint64            `json:"-" gorm:"primaryKey;autoIncrement"`
	RunId          string            `json:"run_id" gorm:"uniqueIndex;not null"`
	StoryboardPath string            `json:"storyboard_path"`
	SaveDir        string            `json:"save_dir"`
	Status         RunStatus         `json:"status" gorm:"index"`
	StatusMsg      string            `json:"status_msg"`
	FailReason     string            `json:"fail_reason"`
	Stages         []StageReport     `json:"stages" gorm:"serializer:json"`
	Artifacts      map[string]string `json:"artifacts" gorm:"serializer:json"`
	Failures       []ShotFailure     `json:"failures" gorm:"foreignKey:RunId;references:RunId"`
	CreateTime     int64             `json:"create_time" gorm:"autoCreateTime:milli"`
	UpdateTime     int64             `json:"update_time" gorm:"autoUpdateTime:milli"`
}

// ApplyReport copies the outcome of a finished run onto the record.
func (r *RunRecord) ApplyReport(report *RunReport) {
	if report == nil {
		return
	}
	r.Stages = report.Stages
	r.Artifacts = report.Artifacts
	r.Failures = make([]ShotFailure, 0, len(report.Failures))
	for _, f := range report.Failures {
		f.Id = 0
		f.RunId = r.RunId
		r.Failures = append(r.Failures, f)
	}
}
