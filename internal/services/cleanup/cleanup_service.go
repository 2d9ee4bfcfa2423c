package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"facebot-go/internal/config"
	"facebot-go/internal/db/repository"
	"facebot-go/internal/util/timezone"

	log "github.com/sirupsen/logrus"
)

// CleanupService periodically removes data nothing references anymore:
// superseded model snapshots, enrollment images without a database row and
// backup files past the retention window.
type CleanupService struct {
	repo          repository.Repository
	cfg           config.CleanupConfig
	imageDir      string
	backupDir     string
	checkInterval time.Duration
}

func NewCleanupService(repo repository.Repository, cfg config.CleanupConfig, imageDir, backupDir string) *CleanupService {
	return &CleanupService{
		repo:          repo,
		cfg:           cfg,
		imageDir:      imageDir,
		backupDir:     backupDir,
		checkInterval: time.Duration(cfg.CheckIntervalHours) * time.Hour,
	}
}

// Start runs the cleanup loop until the context is cancelled. A first pass
// runs immediately.
func (s *CleanupService) Start(ctx context.Context) {
	log.Info("Cleanup service started")

	if err := s.RunCleanup(ctx); err != nil {
		log.Errorf("Initial cleanup failed: %v", err)
	}

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			log.Info("Running scheduled cleanup")
			if err := s.RunCleanup(ctx); err != nil {
				log.Errorf("Scheduled cleanup failed: %v", err)
			}
		case <-ctx.Done():
			log.Info("Cleanup service stopped")
			return
		}
	}
}

// RunCleanup performs a single cleanup pass.
func (s *CleanupService) RunCleanup(ctx context.Context) error {
	if err := s.repo.DeleteOutdatedSnapshots(); err != nil {
		return err
	}

	if err := s.removeOrphanedImages(ctx); err != nil {
		return err
	}

	return s.removeExpiredBackups()
}

// removeOrphanedImages deletes files in the image directory that no stored
// sample points at. Those appear when a sample row is removed manually.
func (s *CleanupService) removeOrphanedImages(ctx context.Context) error {
	samples, err := s.repo.GetSamples()
	if err != nil {
		return err
	}
	referenced := make(map[string]struct{}, len(samples))
	for _, sample := range samples {
		referenced[filepath.Base(sample.ImagePath)] = struct{}{}
	}

	entries, err := os.ReadDir(s.imageDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	removed := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() {
			continue
		}
		if _, ok := referenced[entry.Name()]; ok {
			continue
		}
		path := filepath.Join(s.imageDir, entry.Name())
		if err := os.Remove(path); err != nil {
			log.Warnf("Failed to remove orphaned image %s: %v", path, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Infof("Removed %d orphaned image file(s)", removed)
	}
	return nil
}

// removeExpiredBackups deletes backup files older than the retention window.
func (s *CleanupService) removeExpiredBackups() error {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	cutoff := timezone.Now().AddDate(0, 0, -s.cfg.RetentionDays)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.backupDir, entry.Name())
		if err := os.Remove(path); err != nil {
			log.Warnf("Failed to remove expired backup %s: %v", path, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Infof("Removed %d expired backup(s)", removed)
	}
	return nil
}
