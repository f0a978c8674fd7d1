// Package telegram handles the integration with the Telegram Bot API.
// It is responsible for receiving updates, routing admin commands and
// feeding group traffic through the detection pipeline.
package telegram

import (
	"context"
	"log"
	"strconv"
	"strings"
	"time"

	"casguard/backend/internal/config"
	"casguard/backend/internal/detector"
	"casguard/backend/internal/dispatch"
	"casguard/backend/internal/models"
	"casguard/backend/internal/scheduler"
	"casguard/backend/internal/storage"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Engine resolves verdicts for users seen in chats.
type Engine interface {
	Evaluate(ctx context.Context, userID int64) detector.Verdict
}

// Actioner applies verdicts and handles unban requests.
type Actioner interface {
	Dispatch(ctx context.Context, chatID, userID int64, fullName string, verdict detector.Verdict) (dispatch.Outcome, error)
	Unban(ctx context.Context, chatID, userID int64) error
}

// IndexSize reports the local blacklist size for /status.
type IndexSize interface {
	Size() int
}

// BotService receives Telegram updates and drives the detection pipeline.
type BotService struct {
	BotAPI   *tgbotapi.BotAPI
	Storage  storage.Storage
	Engine   Engine
	Actioner Actioner
	Index    IndexSize
	Cfg      *config.Config

	now func() time.Time
}

// NewBotService creates a new BotService instance.
func NewBotService(cfg *config.Config, s storage.Storage, engine Engine, actioner Actioner, index IndexSize) (*BotService, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, err
	}
	bot.Debug = false
	log.Printf("✅ Authorized on account %s", bot.Self.UserName)

	return &BotService{
		BotAPI:   bot,
		Storage:  s,
		Engine:   engine,
		Actioner: actioner,
		Index:    index,
		Cfg:      cfg,
		now:      time.Now,
	}, nil
}

// Run is the main loop for receiving Telegram updates.
func (s *BotService) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	// chat_member updates are only delivered when asked for explicitly.
	u.AllowedUpdates = []string{"message", "chat_member"}
	updates := s.BotAPI.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			s.BotAPI.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			switch {
			case update.Message != nil:
				s.handleMessage(ctx, update.Message)
			case update.ChatMember != nil:
				s.handleMemberUpdate(ctx, update.ChatMember)
			}
		}
	}
}

// handleMessage processes one group message: bookkeeping, commands and the
// gated evaluation of the sender.
func (s *BotService) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}
	if !msg.Chat.IsGroup() && !msg.Chat.IsSuperGroup() {
		return
	}
	chatID := msg.Chat.ID
	userID := msg.From.ID

	if err := s.Storage.UpsertChatInfo(chatID, msg.Chat.Title); err != nil {
		log.Printf("WARN: Failed to upsert chat info for %d: %v", chatID, err)
	}

	if msg.IsCommand() {
		s.handleCommand(ctx, msg)
		return
	}
	if msg.From.IsBot {
		return
	}

	// New members are evaluated immediately, bypassing the gate.
	for _, member := range msg.NewChatMembers {
		if member.IsBot {
			continue
		}
		s.evaluate(ctx, chatID, member.ID, displayName(&member), true)
	}

	if err := s.Storage.AddCachedMessage(chatID, userID, msg.MessageID, s.Cfg.MessageCacheLimit); err != nil {
		log.Printf("WARN: Failed to cache message %d for %d/%d: %v", msg.MessageID, chatID, userID, err)
	}

	s.evaluate(ctx, chatID, userID, displayName(msg.From), false)
}

// handleMemberUpdate evaluates users who just joined via a chat-member
// update (invite links, approvals).
func (s *BotService) handleMemberUpdate(ctx context.Context, upd *tgbotapi.ChatMemberUpdated) {
	if upd.NewChatMember.Status != "member" || upd.NewChatMember.User == nil {
		return
	}
	if upd.NewChatMember.User.IsBot {
		return
	}
	s.evaluate(ctx, upd.Chat.ID, upd.NewChatMember.User.ID, displayName(upd.NewChatMember.User), true)
}

// evaluate runs the detection gate and, when due, the verdict + dispatch.
func (s *BotService) evaluate(ctx context.Context, chatID, userID int64, fullName string, forced bool) {
	policy, err := s.Storage.GetChatPolicy(chatID)
	if err != nil {
		log.Printf("ERROR: Failed to load policy for chat %d: %v", chatID, err)
		return
	}
	rec, err := s.Storage.GetSeenRecord(chatID, userID)
	if err != nil {
		log.Printf("ERROR: Failed to load seen record for %d/%d: %v", chatID, userID, err)
		return
	}
	interval := policy.RecheckInterval(s.Cfg.RecheckInterval)
	if !scheduler.ShouldEvaluate(rec, interval, s.now(), forced) {
		return
	}

	verdict := s.Engine.Evaluate(ctx, userID)
	if _, err := s.Actioner.Dispatch(ctx, chatID, userID, fullName, verdict); err != nil {
		log.Printf("ERROR: Dispatch for %d/%d failed: %v", chatID, userID, err)
	}
}

// handleCommand routes admin commands. Every command is restricted to chat
// administrators.
func (s *BotService) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	command := msg.Command()
	switch command {
	case "notify", "quickban", "unban", "status", "stats", "silent_on", "silent_off":
	default:
		return
	}

	chatID := msg.Chat.ID
	if !s.isAdmin(chatID, msg.From.ID) {
		s.reply(msg, msgNotAdmin())
		return
	}

	switch command {
	case "notify":
		s.setMode(msg, models.ModeNotify)
	case "quickban":
		s.setMode(msg, models.ModeQuickban)
	case "silent_on":
		s.setSilent(msg, true)
	case "silent_off":
		s.setSilent(msg, false)
	case "unban":
		s.handleUnban(ctx, msg)
	case "status":
		s.handleStatus(msg)
	case "stats":
		s.handleStats(msg)
	}
}

func (s *BotService) setMode(msg *tgbotapi.Message, mode models.Mode) {
	if err := s.Storage.SetChatMode(msg.Chat.ID, mode); err != nil {
		log.Printf("ERROR: Failed to set mode %s for chat %d: %v", mode, msg.Chat.ID, err)
		return
	}
	s.reply(msg, msgModeSet(mode))
}

func (s *BotService) setSilent(msg *tgbotapi.Message, silent bool) {
	if err := s.Storage.SetChatSilent(msg.Chat.ID, silent); err != nil {
		log.Printf("ERROR: Failed to set silent=%t for chat %d: %v", silent, msg.Chat.ID, err)
		return
	}
	s.reply(msg, msgSilentSet(silent))
}

func (s *BotService) handleUnban(ctx context.Context, msg *tgbotapi.Message) {
	userID, err := parseUnbanTarget(msg.CommandArguments())
	if err != nil {
		s.reply(msg, msgUnbanUsage())
		return
	}
	if err := s.Actioner.Unban(ctx, msg.Chat.ID, userID); err != nil {
		log.Printf("ERROR: Unban of %d in chat %d failed: %v", userID, msg.Chat.ID, err)
		return
	}
	s.reply(msg, msgUnbanOK(userID))
}

func (s *BotService) handleStatus(msg *tgbotapi.Message) {
	policy, err := s.Storage.GetChatPolicy(msg.Chat.ID)
	if err != nil {
		log.Printf("ERROR: Failed to load policy for chat %d: %v", msg.Chat.ID, err)
		return
	}
	updates, err := s.Storage.ListSourceUpdates()
	if err != nil {
		log.Printf("WARN: Failed to list source updates: %v", err)
	}
	s.reply(msg, msgStatus(policy, s.Cfg.RecheckInterval, s.Index.Size(), s.canModerate(msg.Chat.ID), updates))
}

func (s *BotService) handleStats(msg *tgbotapi.Message) {
	now := s.now()
	windows := make([]models.ActionStats, 0, 3)
	for _, d := range []time.Duration{24 * time.Hour, 7 * 24 * time.Hour, 30 * 24 * time.Hour} {
		stats, err := s.Storage.ActionStatsSince(msg.Chat.ID, now.Add(-d))
		if err != nil {
			log.Printf("ERROR: Failed to load stats for chat %d: %v", msg.Chat.ID, err)
			return
		}
		windows = append(windows, stats)
	}
	s.reply(msg, msgStats(windows[0], windows[1], windows[2]))
}

// canModerate reports whether the bot itself holds the ban and delete rights
// it needs in a chat.
func (s *BotService) canModerate(chatID int64) bool {
	member, err := s.BotAPI.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: s.BotAPI.Self.ID},
	})
	if err != nil {
		log.Printf("WARN: Failed to check bot rights in chat %d: %v", chatID, err)
		return false
	}
	if member.IsCreator() {
		return true
	}
	return member.IsAdministrator() && member.CanRestrictMembers && member.CanDeleteMessages
}

// isAdmin checks for administrator or creator membership.
func (s *BotService) isAdmin(chatID, userID int64) bool {
	member, err := s.BotAPI.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: userID},
	})
	if err != nil {
		log.Printf("WARN: Failed to check admin status of %d in %d: %v", userID, chatID, err)
		return false
	}
	return member.IsAdministrator() || member.IsCreator()
}

func (s *BotService) reply(msg *tgbotapi.Message, text string) {
	reply := tgbotapi.NewMessage(msg.Chat.ID, text)
	reply.ParseMode = tgbotapi.ModeHTML
	reply.DisableWebPagePreview = true
	reply.ReplyToMessageID = msg.MessageID
	if _, err := s.BotAPI.Send(reply); err != nil {
		log.Printf("ERROR: Failed to reply in chat %d: %v", msg.Chat.ID, err)
	}
}

// parseUnbanTarget extracts the user ID argument of /unban.
func parseUnbanTarget(args string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(args), 10, 64)
}
