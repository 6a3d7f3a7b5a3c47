package fsserve

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Artifact is one stored blob, addressed by its content hash.
type Artifact struct {
	ID              int64
	Path            string
	ContentHash     string
	Mtime           string
	CreatedAt       int64
	LastAccess      int64
	ExpiredDuration int64
}

// StoreName is the on-disk name the blob is saved under.
func (a *Artifact) StoreName() string {
	return fmt.Sprintf("%s_%s", a.ContentHash, a.Mtime)
}

// Index tracks stored artifacts in a sqlite database. A single
// connection serves all callers, so every operation takes the mutex.
type Index struct {
	mu              sync.Mutex
	conn            *sqlite.Conn
	stmtInsert      *sqlite.Stmt
	stmtExists      *sqlite.Stmt
	stmtFindExpired *sqlite.Stmt
	stmtTouch       *sqlite.Stmt
}

func OpenIndex(dbPath string) (*Index, error) {
	needCreateTable := false
	if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
		needCreateTable = true
	} else if err != nil {
		return nil, err
	}
	flag := sqlite.OpenReadWrite
	if needCreateTable {
		flag |= sqlite.OpenCreate
	}
	conn, err := sqlite.OpenConn(dbPath, flag)
	if err != nil {
		return nil, err
	}
	idx := &Index{conn: conn}
	if needCreateTable {
		stmt, err := conn.Prepare("CREATE TABLE IF NOT EXISTS artifact (`id` INTEGER PRIMARY KEY, " +
			"`path` TEXT, `content_hash` TEXT, `mtime` TEXT, " +
			"`created_at` INTEGER, `last_access` INTEGER, `expired_duration` INTEGER, " +
			"`deleted` INTEGER, " +
			" UNIQUE (`content_hash`, `mtime`, `deleted`) ON CONFLICT REPLACE " +
			");")
		if err != nil {
			conn.Close()
			return nil, err
		}
		if _, err := stmt.Step(); err != nil {
			conn.Close()
			return nil, err
		}
	}
	idx.stmtInsert, err = conn.Prepare("INSERT INTO artifact (`path`, `content_hash`, `mtime`, " +
		"`created_at`, `last_access`, `expired_duration`, `deleted`) VALUES " +
		"($path, $content_hash, $mtime, $created_at, $last_access, $expired_duration, $deleted);")
	if err != nil {
		conn.Close()
		return nil, err
	}
	idx.stmtExists, err = conn.Prepare("SELECT count(*) FROM artifact " +
		"WHERE `content_hash` = $content_hash AND `mtime` = $mtime AND `deleted` = 0;")
	if err != nil {
		conn.Close()
		return nil, err
	}
	idx.stmtFindExpired, err = conn.Prepare("SELECT `id`, `path`, `content_hash`, `mtime`, " +
		"`last_access` + `expired_duration` as `expired` FROM artifact " +
		"WHERE `deleted` = 0 AND expired < $now AND `id` < $before ORDER BY id DESC LIMIT $limit;")
	if err != nil {
		conn.Close()
		return nil, err
	}
	idx.stmtTouch, err = conn.Prepare("UPDATE artifact SET `last_access` = $last_access WHERE `id` = $id;")
	if err != nil {
		conn.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.conn.Close()
}

func (idx *Index) Insert(path, contentHash, mtime string, ttl time.Duration) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	defer idx.stmtInsert.Reset()
	now := time.Now().Unix()
	idx.stmtInsert.SetText("$path", path)
	idx.stmtInsert.SetText("$content_hash", contentHash)
	idx.stmtInsert.SetText("$mtime", mtime)
	idx.stmtInsert.SetInt64("$created_at", now)
	idx.stmtInsert.SetInt64("$last_access", now)
	idx.stmtInsert.SetInt64("$expired_duration", int64(ttl/time.Second))
	idx.stmtInsert.SetInt64("$deleted", 0)
	_, err := idx.stmtInsert.Step()
	return err
}

func (idx *Index) Exists(contentHash, mtime string) (bool, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	defer idx.stmtExists.Reset()
	idx.stmtExists.SetText("$content_hash", contentHash)
	idx.stmtExists.SetText("$mtime", mtime)
	hasRow, err := idx.stmtExists.Step()
	if err != nil {
		return false, err
	}
	if !hasRow {
		return false, nil
	}
	return idx.stmtExists.ColumnInt(0) > 0, nil
}

func (idx *Index) Touch(id int64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	defer idx.stmtTouch.Reset()
	idx.stmtTouch.SetInt64("$id", id)
	idx.stmtTouch.SetInt64("$last_access", time.Now().Unix())
	_, err := idx.stmtTouch.Step()
	return err
}

// FindExpired returns up to limit artifacts whose ttl has lapsed,
// newest first, restricted to ids below before. Passing the last id of
// one batch as the next call's before pages through the whole backlog.
func (idx *Index) FindExpired(before, limit int64) ([]*Artifact, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	defer idx.stmtFindExpired.Reset()
	idx.stmtFindExpired.SetInt64("$now", time.Now().Unix())
	idx.stmtFindExpired.SetInt64("$before", before)
	idx.stmtFindExpired.SetInt64("$limit", limit)
	var ret []*Artifact
	for {
		hasRow, err := idx.stmtFindExpired.Step()
		if err != nil {
			return nil, err
		}
		if !hasRow {
			break
		}
		ret = append(ret, &Artifact{
			ID:          idx.stmtFindExpired.GetInt64("id"),
			Path:        idx.stmtFindExpired.GetText("path"),
			ContentHash: idx.stmtFindExpired.GetText("content_hash"),
			Mtime:       idx.stmtFindExpired.GetText("mtime"),
		})
	}
	return ret, nil
}

// MarkCleaned flag-deletes the given artifact rows.
func (idx *Index) MarkCleaned(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	var quoted []string
	for _, id := range ids {
		if id > 0 {
			quoted = append(quoted, strconv.FormatInt(id, 10))
		}
	}
	query := fmt.Sprintf("UPDATE artifact SET `deleted` = 1 WHERE `id` in (%s);", strings.Join(quoted, ","))
	return sqlitex.ExecuteTransient(idx.conn, query, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			return nil
		},
	})
}
