package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds the application configuration.
// Tags correspond to the keys in the YAML file.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Log        LogConfig        `koanf:"log"`
	DB         DBConfig         `koanf:"db"`
	Telegram   TelegramConfig   `koanf:"telegram"`
	Recognizer RecognizerConfig `koanf:"recognizer"`
	Classifier ClassifierConfig `koanf:"classifier"`
	MQTT       MQTTConfig       `koanf:"mqtt"`
	Cleanup    CleanupConfig    `koanf:"cleanup"`
	Backup     BackupConfig     `koanf:"backup"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	DataDir  string `koanf:"data_dir"`  // Base directory for sample images and indexes
	ImageDir string `koanf:"image_dir"` // Directory where enrollment images are stored
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `koanf:"level"`
	File  string `koanf:"file"` // Optional path to an additional log file
}

// DBConfig holds database settings.
type DBConfig struct {
	File string `koanf:"file"` // Path to the SQLite database file
}

// TelegramConfig holds settings for the Telegram bot surface.
type TelegramConfig struct {
	Mode           string `koanf:"mode"`             // "dev" or "prod"; selects token files when paths are unset
	TokenFile      string `koanf:"token_file"`       // File containing the bot token
	RootAdminsFile string `koanf:"root_admins_file"` // File with one root admin username per line
	Public         bool   `koanf:"public"`           // Allow prediction for unregistered users
	MaxPhotoBytes  int64  `koanf:"max_photo_bytes"`  // Reject photos larger than this
	PollTimeoutSec int    `koanf:"poll_timeout_sec"` // Long-poll timeout
}

// RecognizerConfig holds settings for the external face encoder service.
type RecognizerConfig struct {
	URL              string  `koanf:"url"`                // Base URL of the encoder API
	APIKey           string  `koanf:"api_key"`            // x-api-key header value
	DetProbThreshold float64 `koanf:"det_prob_threshold"` // Minimum detection probability
	TimeoutSec       int     `koanf:"timeout_sec"`
}

// ClassifierConfig holds settings for the KNN/SVM voting classifier.
type ClassifierConfig struct {
	KNNWeight     float64 `koanf:"knn_weight"`     // Vote weight of the KNN estimator
	SVMWeight     float64 `koanf:"svm_weight"`     // Vote weight of the linear SVM estimator
	DistThreshold float64 `koanf:"dist_threshold"` // Reject as unknown above this nearest distance
	ProbThreshold float64 `koanf:"prob_threshold"` // Reject as unknown below this probability
	Neighbors     int     `koanf:"neighbors"`      // 0 = choose automatically (round(sqrt(n)))
	MinSamples    int     `koanf:"min_samples"`    // Refuse to fit a model on fewer samples
}

// MQTTConfig holds settings for the MQTT ingest channel.
type MQTTConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Broker      string `koanf:"broker"`
	Port        int    `koanf:"port"`
	Username    string `koanf:"username"`
	Password    string `koanf:"password"`
	ClientID    string `koanf:"client_id"`
	IngestTopic string `koanf:"ingest_topic"` // Topic carrying snapshot payloads
	ResultTopic string `koanf:"result_topic"` // Topic where match results are published
}

// CleanupConfig holds settings for automatic data cleanup.
type CleanupConfig struct {
	RetentionDays      int `koanf:"retention_days"`
	CheckIntervalHours int `koanf:"check_interval_hours"`
}

// BackupConfig holds settings for database backups.
type BackupConfig struct {
	Dir string `koanf:"dir"` // Directory where backup files are written
}

const envPrefix = "FACEBOT_"

// Load reads configuration from the YAML file and FACEBOT_* environment
// variables. It applies defaults selectively after unmarshalling, so values
// from the file always win over defaults.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
		// A missing file is not fatal; env vars and defaults may still apply.
		fmt.Printf("Warning: failed to load configuration file '%s': %v\n", configPath, err)
	}

	// FACEBOT_TELEGRAM_MODE -> telegram.mode
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := resolveTokenFiles(&cfg.Telegram); err != nil {
		return nil, err
	}

	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Server.DataDir == "" {
		cfg.Server.DataDir = "/data"
	}
	if cfg.Server.ImageDir == "" {
		cfg.Server.ImageDir = filepath.Join(cfg.Server.DataDir, "faces")
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.DB.File == "" {
		cfg.DB.File = filepath.Join(cfg.Server.DataDir, "facebot.db")
	}
	if cfg.Telegram.Mode == "" {
		cfg.Telegram.Mode = "dev"
	}
	if cfg.Telegram.MaxPhotoBytes == 0 {
		cfg.Telegram.MaxPhotoBytes = 16 * 1024 * 1024
	}
	if cfg.Telegram.PollTimeoutSec == 0 {
		cfg.Telegram.PollTimeoutSec = 10
	}
	if cfg.Recognizer.DetProbThreshold == 0 {
		cfg.Recognizer.DetProbThreshold = 0.8
	}
	if cfg.Recognizer.TimeoutSec == 0 {
		cfg.Recognizer.TimeoutSec = 30
	}
	if cfg.Classifier.KNNWeight == 0 && cfg.Classifier.SVMWeight == 0 {
		cfg.Classifier.KNNWeight = 1.0
	}
	if cfg.Classifier.DistThreshold == 0 {
		cfg.Classifier.DistThreshold = 0.6
	}
	if cfg.Classifier.MinSamples == 0 {
		cfg.Classifier.MinSamples = 1
	}
	if cfg.MQTT.Broker == "" {
		cfg.MQTT.Broker = "localhost"
	}
	if cfg.MQTT.Port == 0 {
		cfg.MQTT.Port = 1883
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "facebot"
	}
	if cfg.MQTT.IngestTopic == "" {
		cfg.MQTT.IngestTopic = "facebot/snapshots"
	}
	if cfg.MQTT.ResultTopic == "" {
		cfg.MQTT.ResultTopic = "facebot/matches"
	}
	if cfg.Cleanup.RetentionDays == 0 {
		cfg.Cleanup.RetentionDays = 30
	}
	if cfg.Cleanup.CheckIntervalHours == 0 {
		cfg.Cleanup.CheckIntervalHours = 24
	}
	if cfg.Backup.Dir == "" {
		cfg.Backup.Dir = filepath.Join(cfg.Server.DataDir, "backups")
	}
}

// resolveTokenFiles fills in the token file paths from the configured mode.
// The original deployment shipped dev and prod token file pairs and renamed
// one pair to the active name at build time; here the mode picks them at load.
func resolveTokenFiles(tc *TelegramConfig) error {
	switch tc.Mode {
	case "dev", "prod":
	default:
		return fmt.Errorf("invalid telegram mode %q (want dev or prod)", tc.Mode)
	}
	if tc.TokenFile == "" {
		tc.TokenFile = tc.Mode + "_token.txt"
	}
	if tc.RootAdminsFile == "" {
		tc.RootAdminsFile = tc.Mode + "_root_token.txt"
	}
	return nil
}
