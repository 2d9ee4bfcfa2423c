package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"facebot-go/internal/core/models"
	"facebot-go/internal/core/pipeline"
	"facebot-go/internal/recognizer"

	log "github.com/sirupsen/logrus"
	tele "gopkg.in/telebot.v3"
)

func (b *Bot) registerHandlers() {
	b.tb.Handle("/start", b.handleHelp, b.requireRole(models.RoleUser))
	b.tb.Handle("/help", b.handleHelp, b.requireRole(models.RoleUser))
	b.tb.Handle("/train", b.handleTrain, b.requireRole(models.RoleAdmin))
	b.tb.Handle("/done", b.handleDone, b.requireRole(models.RoleAdmin))
	b.tb.Handle("/note", b.handleNote, b.requireRole(models.RoleAdmin))
	b.tb.Handle("/retrain", b.handleRetrain, b.requireRole(models.RoleRootAdmin))
	b.tb.Handle(tele.OnPhoto, b.handlePhoto, b.requireRole(models.RoleUser))
	b.tb.Handle(tele.OnText, b.handleText, b.requireRole(models.RoleUser))

	b.registerAdminHandlers()
}

const userHelp = `Send me a photo and I will tell you who is on it.`

const adminHelp = userHelp + `

Admin commands:
/train <label> - start training photos for a label
/done - finish training
/note <label> - attach a note to a label, send the text mentioning me
/user - list users
/adduser <username> - register a user`

const rootHelp = adminHelp + `
/admin - list admins
/addadmin <username> - register an admin
/retrain - re-extract all stored photos and rebuild the model`

func (b *Bot) handleHelp(c tele.Context) error {
	b.state.Clear(c.Sender().ID)
	switch b.resolveRole(c.Sender().Username) {
	case models.RoleRootAdmin:
		return c.Send(rootHelp)
	case models.RoleAdmin:
		return c.Send(adminHelp)
	default:
		return c.Send(userHelp)
	}
}

func (b *Bot) handleTrain(c tele.Context) error {
	label := strings.TrimSpace(strings.Join(c.Args(), " "))
	if label == "" {
		return c.Send("Example: /train test1")
	}
	b.state.SetTrain(c.Sender().ID, label)
	return c.Send(fmt.Sprintf("Train is turned on with tag \"%s\", please send the photos.", label))
}

func (b *Bot) handleDone(c tele.Context) error {
	st := b.state.Get(c.Sender().ID)
	b.state.Clear(c.Sender().ID)
	if st.mode == modeTrain {
		return c.Send(fmt.Sprintf("Done with tag \"%s\".", st.label))
	}
	return c.Send("No training in progress.")
}

func (b *Bot) handleNote(c tele.Context) error {
	label := strings.TrimSpace(strings.Join(c.Args(), " "))
	if label == "" {
		return c.Send("Example: /note test1")
	}
	if err := b.svc.CheckLabel(label); err != nil {
		return b.replyError(c, err)
	}
	b.state.SetNote(c.Sender().ID, label)
	return c.Send(fmt.Sprintf("Send the note for \"%s\" mentioning @%s.", label, b.username))
}

// handleText completes the note flow. Plain chatter is ignored unless it
// mentions the bot, in which case a short hint is sent back. Only admins have
// a note state, everyone else's text is dropped silently.
func (b *Bot) handleText(c tele.Context) error {
	if roleRank[b.resolveRole(c.Sender().Username)] < roleRank[models.RoleAdmin] {
		return nil
	}
	st := b.state.Get(c.Sender().ID)
	text := c.Text()
	mention := "@" + b.username

	if st.mode == modeNote {
		note := strings.TrimSpace(strings.ReplaceAll(text, mention, ""))
		if note == "" {
			return c.Send("The note is empty, please try again.")
		}
		if err := b.svc.SetNote(st.label, note); err != nil {
			return b.replyError(c, err)
		}
		b.state.Clear(c.Sender().ID)
		return c.Send(fmt.Sprintf("Note updated for \"%s\".", st.label))
	}

	if strings.Contains(text, mention) {
		return c.Send("Not in note state.\nUse this first: /note label1")
	}
	return nil
}

func (b *Bot) handleRetrain(c tele.Context) error {
	if err := c.Notify(tele.Typing); err != nil {
		log.WithError(err).Warn("Failed to send chat action")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*handlerTimeout)
	defer cancel()
	if err := b.svc.Retrain(ctx); err != nil {
		return b.replyError(c, err)
	}
	return c.Send("Model extracted and retrained.")
}

// handlePhoto routes an incoming photo to training or prediction depending on
// the sender's state. Plain users always get a prediction.
func (b *Bot) handlePhoto(c tele.Context) error {
	st := b.state.Get(c.Sender().ID)
	role := b.resolveRole(c.Sender().Username)
	if st.mode == modeTrain && roleRank[role] >= roleRank[models.RoleAdmin] {
		return b.trainPhoto(c, st.label)
	}
	return b.predictPhoto(c)
}

func (b *Bot) trainPhoto(c tele.Context, label string) error {
	if err := c.Notify(tele.Typing); err != nil {
		log.WithError(err).Warn("Failed to send chat action")
	}
	data, err := b.downloadPhoto(c.Message().Photo)
	if err != nil {
		return b.replyError(c, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	if err := b.svc.Train(ctx, data, label, models.SourceTelegram); err != nil {
		return b.replyError(c, err)
	}
	return c.Send(fmt.Sprintf("Model trained for \"%s\". Send more photos or use /done.", label))
}

func (b *Bot) predictPhoto(c tele.Context) error {
	if err := c.Notify(tele.UploadingPhoto); err != nil {
		log.WithError(err).Warn("Failed to send chat action")
	}
	data, err := b.downloadPhoto(c.Message().Photo)
	if err != nil {
		return b.replyError(c, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	result, err := b.svc.Predict(ctx, data, models.SourceTelegram)
	if err != nil {
		return b.replyError(c, err)
	}
	return b.sendPrediction(c, data, result)
}

// sendPrediction replies with the original photo captioned with the matches,
// the stored notes and one reference photo per recognized label.
func (b *Bot) sendPrediction(c tele.Context, imageData []byte, result *pipeline.Result) error {
	reply := &tele.Photo{
		File:    tele.FromReader(bytes.NewReader(imageData)),
		Caption: result.Caption,
	}
	if err := c.Send(reply); err != nil {
		return err
	}

	for _, note := range result.Notes {
		if err := c.Send(fmt.Sprintf("%s: %s", note.Label, note.Note)); err != nil {
			return err
		}
	}
	for _, ref := range result.References {
		photo := &tele.Photo{
			File:    tele.FromDisk(ref.ImagePath),
			Caption: fmt.Sprintf("Reference for \"%s\"", ref.Label),
		}
		if err := c.Send(photo); err != nil {
			log.WithError(err).WithField("path", ref.ImagePath).Warn("Failed to send reference photo")
		}
	}
	return nil
}

func (b *Bot) downloadPhoto(photo *tele.Photo) ([]byte, error) {
	if photo == nil {
		return nil, errors.New("message carries no photo")
	}
	if photo.FileSize > b.cfg.MaxPhotoBytes {
		return nil, ErrPhotoTooLarge
	}
	rc, err := b.tb.File(&photo.File)
	if err != nil {
		return nil, fmt.Errorf("failed to download photo: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, b.cfg.MaxPhotoBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read photo: %w", err)
	}
	if int64(len(data)) > b.cfg.MaxPhotoBytes {
		return nil, ErrPhotoTooLarge
	}
	return data, nil
}

// replyError turns pipeline errors into the user-facing phrases the bot has
// always answered with.
func (b *Bot) replyError(c tele.Context, err error) error {
	switch {
	case errors.Is(err, ErrPhotoTooLarge):
		return c.Send("Image file size too large.")
	case errors.Is(err, recognizer.ErrNoFace):
		return c.Send("No face found.")
	case errors.Is(err, recognizer.ErrTooManyFaces):
		return c.Send("More than one face found.")
	case errors.Is(err, pipeline.ErrNoModel):
		return c.Send("No model trained for prediction.")
	case errors.Is(err, pipeline.ErrUnknownLabel):
		return c.Send("Label does not exist.\nUse this to train a label first: /train label1")
	default:
		log.WithError(err).Error("Telegram handler failed")
		return c.Send("Processing error, please try again.")
	}
}
