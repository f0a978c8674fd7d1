package telegram

import (
	"context"
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Transport performs chat actions through the Bot API. It implements the
// dispatcher's transport contract and the scheduler's name resolver.
type Transport struct {
	BotAPI *tgbotapi.BotAPI
}

// NewTransport Constructor
func NewTransport(api *tgbotapi.BotAPI) *Transport {
	return &Transport{BotAPI: api}
}

func (t *Transport) sendHTML(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	_, err := t.BotAPI.Send(msg)
	return err
}

// Notify posts the suspicious-account warning to the chat.
func (t *Transport) Notify(_ context.Context, chatID, userID int64, fullName, reason string) error {
	return t.sendHTML(chatID, msgNotify(fullName, userID, reason))
}

// Ban removes the user from the chat.
func (t *Transport) Ban(_ context.Context, chatID, userID int64) error {
	cfg := tgbotapi.BanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID},
	}
	if _, err := t.BotAPI.Request(cfg); err != nil {
		return fmt.Errorf("ban %d in %d: %w", userID, chatID, err)
	}
	return nil
}

// Unban lifts a ban so the user can rejoin.
func (t *Transport) Unban(_ context.Context, chatID, userID int64) error {
	cfg := tgbotapi.UnbanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID},
		OnlyIfBanned:     true,
	}
	if _, err := t.BotAPI.Request(cfg); err != nil {
		return fmt.Errorf("unban %d in %d: %w", userID, chatID, err)
	}
	return nil
}

// DeleteMessages removes the user's cached messages. Individual delete
// failures (already gone, too old) are logged and skipped; the call fails
// only when every delete fails.
func (t *Transport) DeleteMessages(_ context.Context, chatID int64, messageIDs []int) error {
	if len(messageIDs) == 0 {
		return nil
	}
	failures := 0
	for _, id := range messageIDs {
		if _, err := t.BotAPI.Request(tgbotapi.NewDeleteMessage(chatID, id)); err != nil {
			failures++
			log.Printf("WARN: Failed to delete message %d in chat %d: %v", id, chatID, err)
		}
	}
	if failures == len(messageIDs) {
		return fmt.Errorf("all %d message deletes failed in chat %d", failures, chatID)
	}
	return nil
}

// AnnounceBan posts the removal notice to the chat.
func (t *Transport) AnnounceBan(_ context.Context, chatID, userID int64, fullName, reason string) error {
	return t.sendHTML(chatID, msgBanned(fullName, userID, reason))
}

// MemberName resolves a display name for a chat member, falling back to the
// numeric ID when the lookup fails.
func (t *Transport) MemberName(_ context.Context, chatID, userID int64) string {
	member, err := t.BotAPI.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: userID},
	})
	if err != nil || member.User == nil {
		return fmt.Sprintf("%d", userID)
	}
	return displayName(member.User)
}

// displayName builds "First Last" from a Telegram user, falling back to the
// username or ID.
func displayName(user *tgbotapi.User) string {
	name := user.FirstName
	if user.LastName != "" {
		name += " " + user.LastName
	}
	if name == "" {
		name = user.UserName
	}
	if name == "" {
		name = fmt.Sprintf("%d", user.ID)
	}
	return name
}
