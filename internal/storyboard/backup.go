package storyboard

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"storyboard-ai/log"
	"storyboard-ai/pkg/util"
	"strings"
	"time"

	"go.uber.org/zap"
)

// now is swapped in tests to get predictable backup names.
var now = time.Now

// BackupName returns <base>_<YYYYMMDD_HHMMSS_fff><ext> next to path.
func BackupName(path string, t time.Time) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	return base + "_" + util.Timestamp(t) + ext
}

// BackupFile copies an existing file to its timestamped backup name. It
// returns "" without error when there is nothing to back up.
func BackupFile(path string, t time.Time) (string, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}

	backup := BackupName(path, t)
	for {
		if _, err := os.Stat(backup); os.IsNotExist(err) {
			break
		}
		t = t.Add(time.Millisecond)
		backup = BackupName(path, t)
	}

	if err := copyFile(path, backup); err != nil {
		return "", err
	}
	log.GetLogger().Info("已备份文件 File backed up", zap.String("path", path), zap.String("backup", backup))
	return backup, nil
}

// WriteFileAtomic writes data to a temp file in the target directory and
// renames it into place.
func WriteFileAtomic(path string, data []byte) error {
	return ReplaceFile(path, func(tmp string) error {
		f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return err
		}
		if _, err = f.Write(data); err != nil {
			f.Close()
			return err
		}
		if err = f.Sync(); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	})
}

// ReplaceFile lets produce fill a temp file that carries the same
// extension as path, then renames it over path. Media tools pick the
// container from the extension, so it is kept.
func ReplaceFile(path string, produce func(tmp string) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(filepath.Base(path), ext)
	f, err := os.CreateTemp(dir, "."+base+".*"+ext)
	if err != nil {
		return err
	}
	tmp := f.Name()
	f.Close()

	if err = produce(tmp); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err = os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// WriteWithBackup backs up the current file at path, then writes data
// atomically. The returned backup path is empty for new files.
func WriteWithBackup(path string, data []byte) (string, error) {
	backup, err := BackupFile(path, now())
	if err != nil {
		return "", err
	}
	return backup, WriteFileAtomic(path, data)
}

// ReplaceWithBackup is WriteWithBackup for artifacts produced by an
// external tool.
func ReplaceWithBackup(path string, produce func(tmp string) error) (string, error) {
	backup, err := BackupFile(path, now())
	if err != nil {
		return "", err
	}
	return backup, ReplaceFile(path, produce)
}

// CopyFile copies src to dst, creating the parent directory.
func CopyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return copyFile(src, dst)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err = io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
