package fsserve

import (
	"log"
	"math"
	"path/filepath"

	"github.com/edwingeng/deque"
	"github.com/go-co-op/gocron/v2"

	buildfs "buildfs-go"
)

func (s *Server) startCleanSchedule() error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	_, err = scheduler.NewJob(gocron.DurationJob(s.cfg.CleanInterval), gocron.NewTask(s.cleanTask))
	if err != nil {
		return err
	}
	scheduler.Start()
	s.stopClean = scheduler.Shutdown
	return nil
}

// cleanTask removes expired artifacts from disk and flag-deletes their
// index rows. The abool guard keeps overlapping timer fires from
// running two sweeps at once.
func (s *Server) cleanTask() {
	if s.cleanRunning.IsSet() {
		return
	}
	s.cleanRunning.Set()
	defer s.cleanRunning.UnSet()

	sw := buildfs.NewStopwatch()
	// Page the whole expired backlog into the queue first, then drain
	// it. The id cursor keeps batches disjoint even though nothing is
	// flag-deleted until the end of the sweep.
	pending := deque.NewDeque()
	before := int64(math.MaxInt64)
	for {
		expired, err := s.index.FindExpired(before, s.cfg.CleanBatch)
		if err != nil {
			log.Printf("clean: %v", err)
			return
		}
		if len(expired) == 0 {
			break
		}
		for _, artifact := range expired {
			pending.PushBack(artifact)
		}
		before = expired[len(expired)-1].ID
	}
	if pending.Empty() {
		return
	}
	var cleaned []int64
	for !pending.Empty() {
		artifact := pending.Front().(*Artifact)
		pending.PopFront()
		status, err := s.disk.RemoveFile(filepath.Join(s.cfg.RootDir, artifact.StoreName()))
		if status == buildfs.RemoveError {
			log.Printf("clean: %v", err)
			continue
		}
		// Removed or already absent: either way the row is stale.
		cleaned = append(cleaned, artifact.ID)
	}
	if err := s.index.MarkCleaned(cleaned); err != nil {
		log.Printf("clean: %v", err)
		return
	}
	log.Printf("cleaned %d artifacts in %.3fs", len(cleaned), sw.Elapsed())
}
