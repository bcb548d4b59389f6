package storage

import (
	"errors"
	"storyboard-ai/internal/types"

	"gorm.io/gorm"
)

var errDBNotInitialized = errors.New("database not initialized")

// Ready reports whether the history database is open.
func Ready() bool {
	return DB != nil
}

// SaveRun upserts run by RunId and replaces its failure rows.
func SaveRun(run *types.RunRecord) error {
	if DB == nil {
		return errDBNotInitialized
	}
	return DB.Transaction(func(tx *gorm.DB) error {
		var existing types.RunRecord
		err := tx.Where("run_id = ?", run.RunId).First(&existing).Error
		switch {
		case err == nil:
			run.Id = existing.Id
			run.CreateTime = existing.CreateTime
		case errors.Is(err, gorm.ErrRecordNotFound):
			run.Id = 0
		default:
			return err
		}

		if err = tx.Where("run_id = ?", run.RunId).Delete(&types.ShotFailure{}).Error; err != nil {
			return err
		}
		for i := range run.Failures {
			run.Failures[i].Id = 0
			run.Failures[i].RunId = run.RunId
		}
		if run.Id == 0 {
			return tx.Create(run).Error
		}
		return tx.Session(&gorm.Session{FullSaveAssociations: true}).Save(run).Error
	})
}

func GetRun(runId string) (*types.RunRecord, error) {
	if DB == nil {
		return nil, errDBNotInitialized
	}
	var run types.RunRecord
	if err := DB.Preload("Failures").Where("run_id = ?", runId).First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func GetRunHistory(limit int) ([]types.RunRecord, error) {
	if DB == nil {
		return nil, errDBNotInitialized
	}
	if limit <= 0 {
		limit = 50
	}
	var runs []types.RunRecord
	if err := DB.Preload("Failures").Order("create_time desc").Order("id desc").Limit(limit).Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func DeleteRun(runId string) error {
	if DB == nil {
		return errDBNotInitialized
	}
	return DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", runId).Delete(&types.ShotFailure{}).Error; err != nil {
			return err
		}
		return tx.Where("run_id = ?", runId).Delete(&types.RunRecord{}).Error
	})
}

// MarkStaleRuns fails every run left queued or running by a previous
// process. Call it on startup.
func MarkStaleRuns() (int64, error) {
	if DB == nil {
		return 0, errDBNotInitialized
	}
	result := DB.Model(&types.RunRecord{}).
		Where("status IN ?", []types.RunStatus{types.RunStatusQueued, types.RunStatusRunning}).
		Updates(map[string]interface{}{
			"status":      types.RunStatusFailed,
			"fail_reason": "服务重启，任务被中断 Run interrupted by server restart",
			"status_msg":  "任务中断 Interrupted",
		})
	return result.RowsAffected, result.Error
}
