package backup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"facebot-go/internal/config"
	"facebot-go/internal/util/timezone"
)

// Manager writes consistent snapshots of the SQLite database. VACUUM INTO
// produces a compacted copy without blocking readers.
type Manager struct {
	db  *gorm.DB
	cfg config.BackupConfig
}

func NewManager(db *gorm.DB, cfg config.BackupConfig) *Manager {
	return &Manager{db: db, cfg: cfg}
}

// Create writes a timestamped backup file and returns its path.
func (m *Manager) Create() (string, error) {
	if err := os.MkdirAll(m.cfg.Dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := fmt.Sprintf("facebot-%s.db", timezone.Now().Format("20060102-150405"))
	path := filepath.Join(m.cfg.Dir, name)

	if err := m.db.Exec("VACUUM INTO ?", path).Error; err != nil {
		return "", fmt.Errorf("failed to back up database: %w", err)
	}

	log.Infof("Database backed up to %s", path)
	return path, nil
}

// Restore replaces the live database file with a backup. The previous file is
// kept next to it with a .bak suffix. Must be run while the service is down.
func Restore(dbFile, backupPath string) error {
	if _, err := os.Stat(backupPath); err != nil {
		return fmt.Errorf("backup file not readable: %w", err)
	}

	if _, err := os.Stat(dbFile); err == nil {
		bak := dbFile + ".bak"
		if err := os.Rename(dbFile, bak); err != nil {
			return fmt.Errorf("failed to move current database aside: %w", err)
		}
		log.Infof("Previous database kept as %s", bak)
	}

	if err := copyFile(backupPath, dbFile); err != nil {
		return fmt.Errorf("failed to restore backup: %w", err)
	}

	log.Infof("Database restored from %s", backupPath)
	return nil
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
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
