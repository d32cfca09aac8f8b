package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/solenne-labs/serene-bot/internal/actions"
	"github.com/solenne-labs/serene-bot/internal/conversation"
	"github.com/solenne-labs/serene-bot/internal/insight"
	"github.com/solenne-labs/serene-bot/internal/models"
	"github.com/solenne-labs/serene-bot/internal/storage"
	"go.uber.org/zap"
)

// streamEditInterval is how much new reply text accumulates before the
// in-progress Telegram message is edited again.
const streamEditInterval = 300

type Bot struct {
	api          *tgbotapi.BotAPI
	storage      storage.Storage
	orchestrator *conversation.Orchestrator
	insights     *insight.Cache
	workflow     *actions.Workflow
	extractor    actions.Extractor
	suggester    *actions.Suggester
	logger       *zap.Logger
}

func New(token string, store storage.Storage, orchestrator *conversation.Orchestrator, insights *insight.Cache, workflow *actions.Workflow, extractor actions.Extractor, suggester *actions.Suggester, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Bot{
		api:          api,
		storage:      store,
		orchestrator: orchestrator,
		insights:     insights,
		workflow:     workflow,
		extractor:    extractor,
		suggester:    suggester,
		logger:       logger,
	}, nil
}

func (b *Bot) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			go b.handleCallback(update.CallbackQuery)
		case update.Message != nil:
			go b.handleMessage(update.Message)
		}
	}

	return nil
}

func (b *Bot) handleMessage(message *tgbotapi.Message) {
	ctx := context.Background()

	if message.IsCommand() {
		b.handleCommand(ctx, message)
		return
	}

	b.handleConversation(ctx, message)
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		b.handleStart(message)
	case "help":
		b.handleHelp(message)
	case "mood":
		b.handleMood(ctx, message)
	case "insight":
		b.handleInsight(ctx, message)
	case "actions":
		b.handleActions(ctx, message)
	case "proposals":
		b.handleProposals(ctx, message)
	case "suggest":
		b.handleSuggest(ctx, message)
	default:
		b.sendMessage(message.Chat.ID, "Unknown command. Use /help to see available commands.")
	}
}

// handleConversation runs one orchestrated turn, editing the reply message
// in place as stream chunks arrive, then kicks off action extraction on the
// completed turn.
func (b *Bot) handleConversation(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID

	if conversation.DetectCrisis(message.Text) {
		b.sendMessage(message.Chat.ID, conversation.EmergencyResources)
	}

	placeholder, err := b.api.Send(tgbotapi.NewMessage(message.Chat.ID, "..."))
	if err != nil {
		b.logger.Error("Failed to send placeholder message",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
		return
	}

	var streamed strings.Builder
	lastEdit := 0
	turn, err := b.orchestrator.SendMessage(ctx, userID, message.Text, func(chunk string) error {
		streamed.WriteString(chunk)
		if streamed.Len()-lastEdit >= streamEditInterval {
			lastEdit = streamed.Len()
			edit := tgbotapi.NewEditMessageText(message.Chat.ID, placeholder.MessageID, streamed.String())
			b.api.Send(edit)
		}
		return nil
	})
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			b.sendErrorMessage(message.Chat.ID, "Please send a non-empty message.")
			return
		}
		b.logger.Error("Conversation turn failed",
			zap.Error(err),
			zap.Int64("user_id", userID))
		edit := tgbotapi.NewEditMessageText(message.Chat.ID, placeholder.MessageID,
			"I'm sorry, I'm having technical difficulties. Please try again.")
		b.api.Send(edit)
		return
	}

	edit := tgbotapi.NewEditMessageText(message.Chat.ID, placeholder.MessageID, turn.AIResponse)
	if _, err := b.api.Send(edit); err != nil {
		b.logger.Error("Failed to send reply",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
	}

	b.extractAndPropose(ctx, message.Chat.ID, userID, turn)
}

// extractAndPropose asks the extractor for candidate actions in the user's
// message and posts each persisted proposal with accept/reject buttons.
func (b *Bot) extractAndPropose(ctx context.Context, chatID int64, userID int64, turn *models.Turn) {
	candidates, err := b.extractor.Extract(ctx, turn.UserMsg)
	if err != nil {
		b.logger.Warn("Action extraction failed",
			zap.Error(err),
			zap.Int64("user_id", userID))
		return
	}
	if len(candidates) == 0 {
		return
	}

	proposals, err := b.workflow.ProposeExtracted(ctx, userID, turn.ID, candidates)
	if err != nil {
		b.logger.Error("Failed to save proposals",
			zap.Error(err),
			zap.Int64("user_id", userID))
		return
	}

	for _, p := range proposals {
		b.sendProposal(chatID, &p)
	}
}

func (b *Bot) sendProposal(chatID int64, p *models.Proposal) {
	text := fmt.Sprintf("💡 Suggested action:\n%s", p.Title)
	if p.Description != "" {
		text += "\n" + p.Description
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Accept", "accept:"+p.ID),
			tgbotapi.NewInlineKeyboardButtonData("❌ Reject", "reject:"+p.ID),
		),
	)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send proposal",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

// handleCallback resolves an accept/reject button press. A press on an
// already-reviewed proposal is reported as such, never as a failure.
func (b *Bot) handleCallback(query *tgbotapi.CallbackQuery) {
	ctx := context.Background()

	verb, proposalID, ok := strings.Cut(query.Data, ":")
	if !ok {
		return
	}

	var answer string
	switch verb {
	case "accept":
		item, err := b.workflow.Accept(ctx, proposalID, nil)
		switch {
		case err == nil:
			answer = "Added to your action items ✅"
			b.editProposalMessage(query, "✅ Accepted: "+item.Title)
		default:
			answer = b.reviewErrorAnswer(err, proposalID)
		}
	case "reject":
		err := b.workflow.Reject(ctx, proposalID)
		switch {
		case err == nil:
			answer = "Dismissed ❌"
			b.editProposalMessage(query, "❌ Rejected")
		default:
			answer = b.reviewErrorAnswer(err, proposalID)
		}
	default:
		return
	}

	if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, answer)); err != nil {
		b.logger.Error("Failed to answer callback", zap.Error(err))
	}
}

func (b *Bot) reviewErrorAnswer(err error, proposalID string) string {
	var stale *models.StaleStateError
	if errors.As(err, &stale) {
		return fmt.Sprintf("This suggestion was already %s.", stale.Status)
	}
	if errors.Is(err, storage.ErrNotFound) {
		return "This suggestion no longer exists."
	}
	b.logger.Error("Proposal review failed",
		zap.Error(err),
		zap.String("proposal_id", proposalID))
	return "Sorry, something went wrong. Please try again."
}

func (b *Bot) editProposalMessage(query *tgbotapi.CallbackQuery, text string) {
	if query.Message == nil {
		return
	}
	edit := tgbotapi.NewEditMessageText(query.Message.Chat.ID, query.Message.MessageID, text)
	b.api.Send(edit)
}

func (b *Bot) handleStart(message *tgbotapi.Message) {
	welcome := `Hi, I'm Serene 🌿
A caring companion for your mental well-being.

You can just talk to me, or:
/mood <0-10> [notes] - record a mood check-in
/insight - see your personalized insight
/suggest - get personalized action suggestions
Use /help for everything I can do.

Remember: I'm not a healthcare professional.`

	b.sendMessage(message.Chat.ID, welcome)
}

func (b *Bot) handleHelp(message *tgbotapi.Message) {
	help := `Available commands:
/start - Start the bot
/help - Show this help message
/mood <0-10> [notes] - Record a mood check-in
/insight - Your personalized insight
/actions - Your action items
/proposals - Suggestions awaiting your review
/suggest - Ask for new personalized suggestions

Anything else you send starts a conversation with me. When you mention
things you want to do, I may suggest tracking them as action items.`

	b.sendMessage(message.Chat.ID, help)
}

func (b *Bot) handleMood(ctx context.Context, message *tgbotapi.Message) {
	args := strings.Fields(message.CommandArguments())
	if len(args) == 0 {
		b.sendMessage(message.Chat.ID, "Usage: /mood <0-10> [notes]")
		return
	}

	score, err := strconv.Atoi(args[0])
	if err != nil || score < 0 || score > 10 {
		b.sendErrorMessage(message.Chat.ID, "The mood score must be a number between 0 and 10.")
		return
	}

	entry := &models.MoodEntry{
		ID:        uuid.New().String(),
		UserID:    message.From.ID,
		Score:     score,
		Notes:     strings.Join(args[1:], " "),
		CreatedAt: time.Now(),
	}
	if err := b.storage.AddMoodEntry(ctx, entry); err != nil {
		b.logger.Error("Failed to save mood entry",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't save your check-in. Please try again.")
		return
	}

	b.sendMessage(message.Chat.ID, fmt.Sprintf("Got it — mood %d/10 recorded. Thanks for checking in 💚", score))
}

func (b *Bot) handleInsight(ctx context.Context, message *tgbotapi.Message) {
	b.api.Send(tgbotapi.NewChatAction(message.Chat.ID, tgbotapi.ChatTyping))

	content, err := b.insights.Get(ctx, message.From.ID, insight.TypeWeekly)
	if err != nil {
		b.logger.Error("Failed to get insight",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't retrieve your insight. Please try again later.")
		return
	}

	b.sendMessage(message.Chat.ID, content)
}

func (b *Bot) handleActions(ctx context.Context, message *tgbotapi.Message) {
	items, err := b.storage.ActionItems(ctx, message.From.ID, "", 20)
	if err != nil {
		b.logger.Error("Failed to get action items",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't retrieve your action items.")
		return
	}

	if len(items) == 0 {
		b.sendMessage(message.Chat.ID, "You don't have any action items yet.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Your action items:\n\n")
	for _, item := range items {
		sb.WriteString(fmt.Sprintf("%s %s (%s)\n", statusEmoji(item.Status), item.Title, item.Status))
	}
	b.sendMessage(message.Chat.ID, sb.String())
}

func (b *Bot) handleProposals(ctx context.Context, message *tgbotapi.Message) {
	pending, err := b.workflow.Pending(ctx, message.From.ID)
	if err != nil {
		b.logger.Error("Failed to get proposals",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't retrieve your pending suggestions.")
		return
	}

	if len(pending) == 0 {
		b.sendMessage(message.Chat.ID, "No suggestions waiting for your review.")
		return
	}

	for _, p := range pending {
		b.sendProposal(message.Chat.ID, &p)
	}
}

func (b *Bot) handleSuggest(ctx context.Context, message *tgbotapi.Message) {
	b.api.Send(tgbotapi.NewChatAction(message.Chat.ID, tgbotapi.ChatTyping))

	result, err := b.suggester.Suggest(ctx, message.From.ID, "")
	if err != nil {
		b.logger.Error("Suggestion run failed",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't come up with suggestions right now.")
		return
	}

	if len(result.Proposals) == 0 {
		b.sendMessage(message.Chat.ID, "I don't have new suggestions right now — keep checking in!")
		return
	}

	if result.Message != "" {
		b.sendMessage(message.Chat.ID, result.Message)
	}
	for _, p := range result.Proposals {
		b.sendProposal(message.Chat.ID, &p)
	}
}

func statusEmoji(status models.ActionStatus) string {
	switch status {
	case models.ActionCompleted:
		return "✅"
	case models.ActionInProgress:
		return "⏳"
	case models.ActionAbandoned:
		return "🚫"
	default:
		return "▫️"
	}
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendErrorMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, "⚠️ "+text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send error message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}
