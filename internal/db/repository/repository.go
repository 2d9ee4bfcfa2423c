package repository

import (
	"errors"

	"facebot-go/internal/core/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository defines the database operations used by the rest of the
// application. Lookup methods return (nil, nil) when no record exists.
type Repository interface {
	// Sample methods
	GetSamples() ([]models.FaceSample, error)
	GetSamplesByLabel(label string) ([]models.FaceSample, error)
	FirstSampleForLabel(label string) (*models.FaceSample, error)
	FindSampleByHash(hash string) (*models.FaceSample, error)
	SaveSample(sample *models.FaceSample) error
	LabelExists(label string) (bool, error)
	GetLabels() ([]string, error)

	// Note methods
	UpsertNote(label, note string) error
	GetNote(label string) (*models.LabelNote, error)

	// User methods
	FindUser(username string) (*models.BotUser, error)
	ListUsersByRole(role string) ([]models.BotUser, error)
	EnsureUser(username, role string) error
	DeleteUser(username, role string) error

	// Model snapshot methods
	SaveSnapshot(snapshot *models.ModelSnapshot) error
	LatestSnapshot() (*models.ModelSnapshot, error)
	DeleteOutdatedSnapshots() error

	// Counter methods
	IncrementCommand(date, command string) error

	// Statistics
	GetStatistics() (models.Statistics, error)
}

// SQLiteRepository implements Repository on top of GORM/SQLite.
type SQLiteRepository struct {
	db *gorm.DB
}

// NewSQLiteRepository creates a new SQLite repository instance.
func NewSQLiteRepository(db *gorm.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Sample methods

// GetSamples returns all enrolled face samples.
func (r *SQLiteRepository) GetSamples() ([]models.FaceSample, error) {
	var samples []models.FaceSample
	if result := r.db.Find(&samples); result.Error != nil {
		return nil, result.Error
	}
	return samples, nil
}

// GetSamplesByLabel returns all samples enrolled under a label.
func (r *SQLiteRepository) GetSamplesByLabel(label string) ([]models.FaceSample, error) {
	var samples []models.FaceSample
	if result := r.db.Where("label = ?", label).Find(&samples); result.Error != nil {
		return nil, result.Error
	}
	return samples, nil
}

// FirstSampleForLabel returns the oldest sample for a label, used as the
// reference image in prediction replies.
func (r *SQLiteRepository) FirstSampleForLabel(label string) (*models.FaceSample, error) {
	var sample models.FaceSample
	result := r.db.Where("label = ?", label).Order("created_at ASC").First(&sample)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &sample, nil
}

// FindSampleByHash looks up a sample by its image content hash.
func (r *SQLiteRepository) FindSampleByHash(hash string) (*models.FaceSample, error) {
	var sample models.FaceSample
	result := r.db.Where("content_hash = ?", hash).First(&sample)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &sample, nil
}

// SaveSample persists a face sample.
func (r *SQLiteRepository) SaveSample(sample *models.FaceSample) error {
	return r.db.Save(sample).Error
}

// LabelExists reports whether at least one sample carries the label.
func (r *SQLiteRepository) LabelExists(label string) (bool, error) {
	var count int64
	if err := r.db.Model(&models.FaceSample{}).Where("label = ?", label).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetLabels returns the distinct enrolled labels.
func (r *SQLiteRepository) GetLabels() ([]string, error) {
	var labels []string
	if err := r.db.Model(&models.FaceSample{}).Distinct("label").Order("label").Pluck("label", &labels).Error; err != nil {
		return nil, err
	}
	return labels, nil
}

// Note methods

// UpsertNote creates or replaces the note for a label.
func (r *SQLiteRepository) UpsertNote(label, note string) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "label"}},
		DoUpdates: clause.AssignmentColumns([]string{"note", "updated_at"}),
	}).Create(&models.LabelNote{Label: label, Note: note}).Error
}

// GetNote returns the note for a label, or nil when none exists.
func (r *SQLiteRepository) GetNote(label string) (*models.LabelNote, error) {
	var note models.LabelNote
	result := r.db.Where("label = ?", label).First(&note)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &note, nil
}

// User methods

// FindUser looks up a user by username.
func (r *SQLiteRepository) FindUser(username string) (*models.BotUser, error) {
	var user models.BotUser
	result := r.db.Where("username = ?", username).First(&user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &user, nil
}

// ListUsersByRole returns all users carrying a role.
func (r *SQLiteRepository) ListUsersByRole(role string) ([]models.BotUser, error) {
	var users []models.BotUser
	if result := r.db.Where("role = ?", role).Order("username").Find(&users); result.Error != nil {
		return nil, result.Error
	}
	return users, nil
}

// EnsureUser inserts a user with the role unless the username already exists.
// An existing user keeps its current role.
func (r *SQLiteRepository) EnsureUser(username, role string) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		DoNothing: true,
	}).Create(&models.BotUser{Username: username, Role: role}).Error
}

// DeleteUser removes a user, matching both username and role.
func (r *SQLiteRepository) DeleteUser(username, role string) error {
	return r.db.Unscoped().Where("username = ? AND role = ?", username, role).Delete(&models.BotUser{}).Error
}

// Model snapshot methods

// SaveSnapshot persists a trained model snapshot.
func (r *SQLiteRepository) SaveSnapshot(snapshot *models.ModelSnapshot) error {
	return r.db.Create(snapshot).Error
}

// LatestSnapshot returns the most recent snapshot, or nil when none exists.
func (r *SQLiteRepository) LatestSnapshot() (*models.ModelSnapshot, error) {
	var snapshot models.ModelSnapshot
	result := r.db.Order("created_at DESC, id DESC").First(&snapshot)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &snapshot, nil
}

// DeleteOutdatedSnapshots removes every snapshot except the newest one.
func (r *SQLiteRepository) DeleteOutdatedSnapshots() error {
	latest, err := r.LatestSnapshot()
	if err != nil {
		return err
	}
	if latest == nil {
		return nil
	}
	return r.db.Unscoped().Where("id <> ?", latest.ID).Delete(&models.ModelSnapshot{}).Error
}

// Counter methods

// IncrementCommand bumps the daily counter for a command.
func (r *SQLiteRepository) IncrementCommand(date, command string) error {
	res := r.db.Model(&models.CommandStat{}).
		Where("date = ? AND command = ?", date, command).
		UpdateColumn("count", gorm.Expr("count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.db.Create(&models.CommandStat{Date: date, Command: command, Count: 1}).Error
	}
	return nil
}

// Statistics

// GetStatistics summarizes the stored data.
func (r *SQLiteRepository) GetStatistics() (models.Statistics, error) {
	var stats models.Statistics

	if err := r.db.Model(&models.FaceSample{}).Count(&stats.TotalSamples).Error; err != nil {
		return stats, err
	}
	if err := r.db.Model(&models.FaceSample{}).Distinct("label").Count(&stats.LabelCount).Error; err != nil {
		return stats, err
	}
	if err := r.db.Model(&models.BotUser{}).Count(&stats.UserCount).Error; err != nil {
		return stats, err
	}

	type labelCount struct {
		Label string
		Count int64
	}
	var counts []labelCount
	if err := r.db.Model(&models.FaceSample{}).
		Select("label, COUNT(*) as count").
		Group("label").
		Scan(&counts).Error; err != nil {
		return stats, err
	}
	stats.SamplesByLabel = make(map[string]int64, len(counts))
	for _, c := range counts {
		stats.SamplesByLabel[c.Label] = c.Count
	}

	latest, err := r.LatestSnapshot()
	if err != nil {
		return stats, err
	}
	if latest != nil {
		stats.ModelFaceCount = latest.FaceCount
		stats.ModelTrainedAt = latest.CreatedAt
	}

	return stats, nil
}
