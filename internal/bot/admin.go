package bot

import (
	"fmt"
	"strings"

	"facebot-go/internal/core/models"

	log "github.com/sirupsen/logrus"
	tele "gopkg.in/telebot.v3"
)

// Callback uniques for the user-removal flow.
var (
	btnPick   = tele.Btn{Unique: "pick"}
	btnRemove = tele.Btn{Unique: "remove"}
	btnBack   = tele.Btn{Unique: "backlist"}
)

func (b *Bot) registerAdminHandlers() {
	b.tb.Handle("/user", b.handleListUsers, b.requireRole(models.RoleAdmin))
	b.tb.Handle("/adduser", b.handleAddUser, b.requireRole(models.RoleAdmin))
	b.tb.Handle("/admin", b.handleListAdmins, b.requireRole(models.RoleRootAdmin))
	b.tb.Handle("/addadmin", b.handleAddAdmin, b.requireRole(models.RoleRootAdmin))

	b.tb.Handle(&btnPick, b.handlePick, b.requireRole(models.RoleAdmin))
	b.tb.Handle(&btnRemove, b.handleRemove, b.requireRole(models.RoleAdmin))
	b.tb.Handle(&btnBack, b.handleBackToList, b.requireRole(models.RoleAdmin))
}

func (b *Bot) handleListUsers(c tele.Context) error {
	return b.sendRoleList(c, models.RoleUser, false)
}

func (b *Bot) handleListAdmins(c tele.Context) error {
	return b.sendRoleList(c, models.RoleAdmin, false)
}

func (b *Bot) handleAddUser(c tele.Context) error {
	return b.addWithRole(c, models.RoleUser, "/adduser")
}

func (b *Bot) handleAddAdmin(c tele.Context) error {
	return b.addWithRole(c, models.RoleAdmin, "/addadmin")
}

func (b *Bot) addWithRole(c tele.Context, role, command string) error {
	username := strings.TrimSpace(strings.Join(c.Args(), " "))
	if username == "" {
		return c.Send(fmt.Sprintf("Example: %s @username", command))
	}
	username = normalizeUsername(username)
	if err := b.repo.EnsureUser(username, role); err != nil {
		return b.replyError(c, err)
	}
	return c.Send(fmt.Sprintf("Added %s %s.", roleNoun(role), username))
}

// sendRoleList shows the registered accounts of one role as an inline
// keyboard; tapping an entry opens the removal confirmation. With edit set the
// existing message is updated in place, which the back button uses.
func (b *Bot) sendRoleList(c tele.Context, role string, edit bool) error {
	users, err := b.repo.ListUsersByRole(role)
	if err != nil {
		return b.replyError(c, err)
	}
	if len(users) == 0 {
		text := fmt.Sprintf("No %ss registered.", roleNoun(role))
		if edit {
			return c.Edit(text)
		}
		return c.Send(text)
	}

	markup := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(users))
	for _, u := range users {
		rows = append(rows, markup.Row(markup.Data(u.Username, btnPick.Unique, role, u.Username)))
	}
	markup.Inline(rows...)

	text := fmt.Sprintf("List of %ss, tap one to remove it:", roleNoun(role))
	if edit {
		return c.Edit(text, markup)
	}
	return c.Send(text, markup)
}

// handlePick shows a confirmation keyboard for the tapped account.
func (b *Bot) handlePick(c tele.Context) error {
	role, username, err := splitRoleUser(c.Data())
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Invalid selection."})
	}
	if !b.canManage(c, role) {
		return c.Respond(&tele.CallbackResponse{Text: "Permission denied."})
	}

	markup := &tele.ReplyMarkup{}
	markup.Inline(markup.Row(
		markup.Data("Remove", btnRemove.Unique, role, username),
		markup.Data("Cancel", btnBack.Unique, role),
	))
	if err := c.Edit(fmt.Sprintf("Remove %s %s?", roleNoun(role), username), markup); err != nil {
		return err
	}
	return c.Respond()
}

func (b *Bot) handleRemove(c tele.Context) error {
	role, username, err := splitRoleUser(c.Data())
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Invalid selection."})
	}
	if !b.canManage(c, role) {
		return c.Respond(&tele.CallbackResponse{Text: "Permission denied."})
	}

	if err := b.repo.DeleteUser(username, role); err != nil {
		log.WithError(err).WithField("username", username).Error("Failed to remove bot user")
		return c.Respond(&tele.CallbackResponse{Text: "Removal failed."})
	}
	log.Infof("Removed %s %s", roleNoun(role), username)
	if err := b.sendRoleList(c, role, true); err != nil {
		return err
	}
	return c.Respond(&tele.CallbackResponse{Text: fmt.Sprintf("Removed %s.", username)})
}

func (b *Bot) handleBackToList(c tele.Context) error {
	role := strings.TrimSpace(c.Data())
	if roleRank[role] == 0 {
		return c.Respond(&tele.CallbackResponse{Text: "Invalid selection."})
	}
	if err := b.sendRoleList(c, role, true); err != nil {
		return err
	}
	return c.Respond()
}

// canManage reports whether the callback sender may manage accounts of the
// given role. Removing admins takes a root admin; root admins are only
// managed through the seed file.
func (b *Bot) canManage(c tele.Context, role string) bool {
	caller := b.resolveRole(c.Sender().Username)
	switch role {
	case models.RoleUser:
		return roleRank[caller] >= roleRank[models.RoleAdmin]
	case models.RoleAdmin:
		return caller == models.RoleRootAdmin
	default:
		return false
	}
}

func splitRoleUser(data string) (role, username string, err error) {
	parts := strings.SplitN(data, "|", 2)
	if len(parts) != 2 || roleRank[parts[0]] == 0 || parts[1] == "" {
		return "", "", fmt.Errorf("malformed callback data %q", data)
	}
	return parts[0], parts[1], nil
}

func roleNoun(role string) string {
	if role == models.RoleAdmin {
		return "admin"
	}
	return "user"
}
