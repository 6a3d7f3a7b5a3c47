// Package statlog persists the file states a build engine observes, so
// the next run can tell whether an input changed without re-hashing
// everything up front.
package statlog

import (
	"errors"
	"os"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	buildfs "buildfs-go"
	"buildfs-go/model"
)

type Log struct {
	db *gorm.DB
}

func Open(path string) (*Log, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&model.FileState{}); err != nil {
		return nil, err
	}
	return &Log{db: db}, nil
}

func (l *Log) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record appends an observation for path. ttl bounds how long the row
// survives without being looked up again.
func (l *Log) Record(path string, mtime buildfs.TimeStamp, contentHash uint64, ttl time.Duration) error {
	now := time.Now().Unix()
	state := &model.FileState{
		PathKey:         int64(buildfs.PathKey(path)),
		Path:            path,
		Mtime:           int64(mtime),
		ContentHash:     int64(contentHash),
		CreatedAt:       now,
		LastAccess:      now,
		ExpiredDuration: int64(ttl / time.Second),
	}
	return l.db.Create(state).Error
}

// Latest returns the most recent observation for path and refreshes
// its access time. os.ErrNotExist when the path was never recorded.
func (l *Log) Latest(path string) (*model.FileState, error) {
	var items []*model.FileState
	err := l.db.Model(&model.FileState{}).
		Where("`path_key`=?", int64(buildfs.PathKey(path))).
		Order("id desc").
		Limit(1).Find(&items).Error
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, os.ErrNotExist
	}
	if err := l.Touch(items[0].ID); err != nil {
		return nil, err
	}
	return items[0], nil
}

func (l *Log) Touch(id int64) error {
	return l.db.Model(&model.FileState{}).Where("`id`=?", id).
		Update("last_access", time.Now().Unix()).Error
}

// Expired returns up to limit rows whose ttl has lapsed.
func (l *Log) Expired(limit int) ([]*model.FileState, error) {
	var items []*model.FileState
	err := l.db.Model(&model.FileState{}).
		Where("`last_access` + `expired_duration` < ?", time.Now().Unix()).
		Order("id desc").
		Limit(limit).Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// MarkCleaned flag-deletes the given rows.
func (l *Log) MarkCleaned(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return l.db.Where("`id` IN ?", ids).Delete(&model.FileState{}).Error
}

// Changed reports whether path differs from its latest recorded state,
// consulting the disk only through di. A never-recorded path counts as
// changed.
func (l *Log) Changed(di buildfs.DiskInterface, path string) (bool, error) {
	mtime, err := di.Stat(path)
	if err != nil {
		return false, err
	}
	last, err := l.Latest(path)
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return last.Mtime != int64(mtime), nil
}
