package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Role levels for bot users. Each level implies the ones below it.
const (
	RoleRootAdmin = "root_admin"
	RoleAdmin     = "admin"
	RoleUser      = "user"
)

// Sample sources.
const (
	SourceTelegram = "telegram"
	SourceMQTT     = "mqtt"
	SourceAPI      = "api"
)

// FaceSample is one enrolled face: a label plus the encoding extracted from a
// single training image.
type FaceSample struct {
	gorm.Model
	Label       string         `gorm:"index;not null"`
	Encoding    datatypes.JSON `gorm:"type:json;not null"` // JSON array of float32
	ImagePath   string         `gorm:"index"`              // Relative path of the stored training image
	ContentHash string         `gorm:"index"`              // Hash of the image content for deduplication
	Source      string         `gorm:"index"`              // telegram, mqtt or api
}

// SetEncoding stores the vector as the JSON payload.
func (s *FaceSample) SetEncoding(vec []float32) error {
	data, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("failed to marshal encoding: %w", err)
	}
	s.Encoding = datatypes.JSON(data)
	return nil
}

// GetEncoding decodes the stored JSON payload back into a vector.
func (s *FaceSample) GetEncoding() ([]float32, error) {
	var vec []float32
	if err := json.Unmarshal(s.Encoding, &vec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal encoding: %w", err)
	}
	return vec, nil
}

// LabelNote is a free-text note attached to an enrolled label.
type LabelNote struct {
	gorm.Model
	Label string `gorm:"uniqueIndex;not null"`
	Note  string
}

// BotUser is a Telegram user known to the bot. Usernames are stored
// lowercased with a leading '@'.
type BotUser struct {
	gorm.Model
	Username string `gorm:"uniqueIndex;not null"`
	Role     string `gorm:"index;not null"`
}

// ModelSnapshot is a serialized trained classifier. Only the newest snapshot
// is kept; older ones are deleted after each training run.
type ModelSnapshot struct {
	gorm.Model
	Blob      []byte `gorm:"not null"` // gob-encoded ensemble
	FaceCount int
}

// CommandStat counts executed commands per day.
type CommandStat struct {
	gorm.Model
	Date    string `gorm:"index:idx_command_stats_date_command,unique"` // YYYY-MM-DD in the bot's timezone
	Command string `gorm:"index:idx_command_stats_date_command,unique"`
	Count   int64
}

// Statistics summarizes the stored data for the stats endpoint.
type Statistics struct {
	TotalSamples   int64            `json:"total_samples"`
	LabelCount     int64            `json:"label_count"`
	UserCount      int64            `json:"user_count"`
	SamplesByLabel map[string]int64 `json:"samples_by_label"`
	ModelFaceCount int              `json:"model_face_count"`
	ModelTrainedAt time.Time        `json:"model_trained_at"`
}
