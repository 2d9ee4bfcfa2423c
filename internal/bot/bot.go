package bot

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"facebot-go/internal/config"
	"facebot-go/internal/core/models"
	"facebot-go/internal/core/pipeline"
	"facebot-go/internal/db/repository"

	log "github.com/sirupsen/logrus"
	tele "gopkg.in/telebot.v3"
)

// ErrPhotoTooLarge is returned when an incoming photo exceeds the configured
// size limit.
var ErrPhotoTooLarge = errors.New("photo exceeds maximum allowed size")

// Service is what the bot needs from the processing pipeline.
type Service interface {
	Train(ctx context.Context, imageData []byte, label, source string) error
	Predict(ctx context.Context, imageData []byte, source string) (*pipeline.Result, error)
	Retrain(ctx context.Context) error
	CheckLabel(label string) error
	SetNote(label, note string) error
}

// handlerTimeout bounds a single Telegram interaction, including the encoder
// round-trip.
const handlerTimeout = 2 * time.Minute

// Bot is the Telegram surface of the service.
type Bot struct {
	cfg      config.TelegramConfig
	repo     repository.Repository
	svc      Service
	tb       *tele.Bot
	state    *stateStore
	username string
}

// New reads the bot token, connects to Telegram, seeds the root admins from
// the configured file and registers all handlers.
func New(cfg config.TelegramConfig, repo repository.Repository, svc Service) (*Bot, error) {
	token, err := readToken(cfg.TokenFile)
	if err != nil {
		return nil, err
	}

	tb, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: time.Duration(cfg.PollTimeoutSec) * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Telegram: %w", err)
	}
	log.Infof("Connected to Telegram as @%s", tb.Me.Username)

	b := &Bot{
		cfg:      cfg,
		repo:     repo,
		svc:      svc,
		tb:       tb,
		state:    newStateStore(),
		username: tb.Me.Username,
	}

	if err := b.seedRootAdmins(cfg.RootAdminsFile); err != nil {
		return nil, err
	}

	b.registerHandlers()
	return b, nil
}

// Start begins long polling. It blocks until Stop is called.
func (b *Bot) Start() {
	log.Info("Telegram polling started")
	b.tb.Start()
}

// Stop ends long polling.
func (b *Bot) Stop() {
	log.Info("Stopping Telegram bot")
	b.tb.Stop()
}

// seedRootAdmins imports the root admin usernames from the token file, one
// per line.
func (b *Bot) seedRootAdmins(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot open root admins file '%s': %w", path, err)
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name == "" {
			continue
		}
		if err := b.repo.EnsureUser(normalizeUsername(name), models.RoleRootAdmin); err != nil {
			return fmt.Errorf("failed to seed root admin %q: %w", name, err)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read root admins file: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("root admins file '%s' contains no usernames", path)
	}
	log.Infof("Seeded %d root admin(s)", count)
	return nil
}

func readToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("cannot open token file '%s': %w", path, err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file '%s' is empty", path)
	}
	return token, nil
}

// normalizeUsername lowercases a Telegram username and ensures the leading @.
func normalizeUsername(username string) string {
	username = strings.ToLower(strings.TrimSpace(username))
	if username != "" && !strings.HasPrefix(username, "@") {
		username = "@" + username
	}
	return username
}
