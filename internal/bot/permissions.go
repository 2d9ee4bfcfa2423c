package bot

import (
	"facebot-go/internal/core/models"

	log "github.com/sirupsen/logrus"
	tele "gopkg.in/telebot.v3"
)

var roleRank = map[string]int{
	models.RoleUser:      1,
	models.RoleAdmin:     2,
	models.RoleRootAdmin: 3,
}

// resolveRole looks up the sender's role. Unregistered senders get the user
// role when the bot runs in public mode and no role otherwise.
func (b *Bot) resolveRole(username string) string {
	if username == "" {
		if b.cfg.Public {
			return models.RoleUser
		}
		return ""
	}
	user, err := b.repo.FindUser(normalizeUsername(username))
	if err != nil {
		log.WithError(err).Error("Failed to look up bot user")
		return ""
	}
	if user == nil {
		if b.cfg.Public {
			return models.RoleUser
		}
		return ""
	}
	return user.Role
}

// requireRole gates a handler behind a minimum role. Unregistered senders are
// ignored silently so the bot stays invisible to strangers; registered senders
// below the required role get an explicit denial.
func (b *Bot) requireRole(minRole string) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil {
				return nil
			}
			role := b.resolveRole(sender.Username)
			if role == "" {
				return nil
			}
			if roleRank[role] < roleRank[minRole] {
				return c.Send("Permission denied.")
			}
			return next(c)
		}
	}
}
