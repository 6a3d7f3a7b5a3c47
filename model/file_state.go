package model

import "gorm.io/plugin/soft_delete"

// FileState is one observed state of a file: its mtime and content
// hash at the moment the engine looked. History is append-only; rows
// are flag-deleted so cleanup can be audited.
type FileState struct {
	ID int64 `json:"id" gorm:"primarykey"`
	// 64-bit rapidhash of the path, the lookup key.
	PathKey int64  `json:"path_key" gorm:"index:idx_path_key"`
	Path    string `json:"path"`
	// Nanosecond mtime as reported by Stat.
	Mtime       int64 `json:"mtime"`
	ContentHash int64 `json:"content_hash"`
	CreatedAt   int64 `json:"created_at"`
	LastAccess  int64 `json:"last_access" gorm:"index:idx_last_access"`
	// Seconds after LastAccess at which the row may be cleaned.
	ExpiredDuration int64 `json:"expired_duration"`
	// 0 false 1 true
	Deleted soft_delete.DeletedAt `gorm:"softDelete:flag;default:0"`
}

func (FileState) TableName() string {
	return "file_state"
}
