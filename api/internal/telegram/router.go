package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"disposal-bot/api/internal/backend"
	"disposal-bot/api/internal/predict"
	"disposal-bot/api/internal/session"
	"disposal-bot/api/internal/store"
	"disposal-bot/api/internal/workflow"
)

// Bot is the part of *tgbotapi.BotAPI the router uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// EnginePrefs remembers a chat's engine choice across restarts.
// *store.SessionRepo implements it.
type EnginePrefs interface {
	Load(ctx context.Context, chatID int64) (*store.SessionRow, error)
	SetEngine(ctx context.Context, chatID int64, engine string) error
}

// SavedMarker flags a cached prediction once it became a disposal record.
type SavedMarker interface {
	MarkSaved(ctx context.Context, inputHash, engine, model, disposalID string) error
}

type Router struct {
	Bot      Bot
	Engines  *predict.Manager
	Sessions *session.Manager

	// optional
	Prefs EnginePrefs
	Cache SavedMarker

	RefreshInterval time.Duration
	IdleTimeout     time.Duration
	Log             *slog.Logger
}

func (r *Router) log() *slog.Logger {
	if r.Log != nil {
		return r.Log
	}
	return slog.Default()
}

func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.CallbackQuery != nil {
		if upd.CallbackQuery.Message == nil {
			return
		}
		r.touchView(upd.CallbackQuery.Message.Chat.ID)
		r.handleCallback(ctx, *upd.CallbackQuery)
		return
	}
	msg := upd.Message
	if msg == nil {
		return
	}
	cid := msg.Chat.ID
	r.touchView(cid)

	if msg.IsCommand() {
		r.HandleCommand(ctx, msg)
		return
	}
	if len(msg.Photo) > 0 {
		r.acceptPhoto(ctx, msg)
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	if r.formStep(ctx, cid, text) {
		return
	}
	r.predictText(ctx, cid, text)
}

func (r *Router) HandleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	args := strings.Fields(msg.CommandArguments())

	switch msg.Command() {
	case "start", "help":
		r.send(cid, r.helpText(ctx, cid))
	case "login":
		r.onLogin(ctx, msg, args)
	case "logout":
		r.forget(cid)
		if err := r.Sessions.Logout(ctx, cid); err != nil {
			r.log().Warn("logout", "chat_id", cid, "err", err)
		}
		r.send(cid, "You are logged out.")
	case "profile":
		r.onProfile(ctx, cid, msg.CommandArguments())
	case "engine":
		r.onEngine(ctx, cid, args)
	case "history":
		r.openView(ctx, cid, viewHistory)
	case "pickups":
		r.openView(ctx, cid, viewPickups)
	case "dashboard":
		r.openView(ctx, cid, viewDashboard)
	case "pickup":
		r.openStandaloneForm(ctx, cid)
	case "cancel":
		forms.Delete(cid)
		r.send(cid, "Cancelled.")
	default:
		r.send(cid, "Unknown command. Send /help for the list.")
	}
}

func (r *Router) helpText(ctx context.Context, cid int64) string {
	var b strings.Builder
	b.WriteString("Send a medicine name or a photo of the package and I will tell you how to dispose of it safely.\n\n")
	b.WriteString("/login <email> <password> — sign in\n/profile — show or update your profile\n")
	b.WriteString("/engine — choose the prediction engine\n/history — your saved disposals\n")
	b.WriteString("/pickups — pickup requests\n/pickup — request a pickup for a saved disposal\n")
	if s, err := r.Sessions.Hydrate(ctx, cid); err == nil {
		switch s.Role() {
		case backend.RoleCHW:
			b.WriteString("\nAs a community health worker you can accept, start and complete pickups from /pickups.")
		case backend.RoleAdmin:
			b.WriteString("/dashboard — programme statistics and pending approvals\n")
		}
	}
	return b.String()
}

func (r *Router) onLogin(ctx context.Context, msg *tgbotapi.Message, args []string) {
	cid := msg.Chat.ID
	// the message carries a password
	_, _ = r.Bot.Request(tgbotapi.NewDeleteMessage(cid, msg.MessageID))
	if len(args) != 2 {
		r.send(cid, "Usage: /login <email> <password>")
		return
	}
	s, err := r.Sessions.Login(ctx, cid, args[0], args[1])
	if err != nil {
		r.send(cid, "❌ Login failed: "+backend.MessageOf(err, err.Error()))
		return
	}
	r.send(cid, fmt.Sprintf("✅ Logged in as %s (%s).", firstNonEmpty(s.User.Name, s.User.Email), s.Role()))
}

// onProfile shows the profile, or updates it from "name=… phone=… sector=…".
func (r *Router) onProfile(ctx context.Context, cid int64, arg string) {
	s, err := r.Sessions.Hydrate(ctx, cid)
	if err != nil {
		r.send(cid, userMessage(err))
		return
	}
	upd, ok := parseProfileUpdate(arg)
	if !ok {
		r.send(cid, formatProfile(s.User)+"\n\nUpdate with: /profile name=<name> phone=<phone> sector=<sector>")
		return
	}
	s, err = r.Sessions.UpdateProfile(ctx, cid, upd)
	if err != nil {
		r.send(cid, "❌ "+backend.MessageOf(err, "Could not update the profile."))
		return
	}
	r.send(cid, "✅ Profile updated.\n\n"+formatProfile(s.User))
}

// onEngine switches the chat's engine: /engine mlservice | /engine gemini [model] | /engine openai [model].
func (r *Router) onEngine(ctx context.Context, cid int64, args []string) {
	if len(args) == 0 {
		cur := r.Engines.Get(cid)
		r.send(cid, fmt.Sprintf("Current engine: %s (%s)\nAvailable: %s\nUsage: /engine <name> [model]",
			cur.Name(), cur.GetModel(), strings.Join(r.Engines.Names(), " | ")))
		return
	}
	e, ok := r.Engines.Use(cid, args[0])
	if !ok {
		r.send(cid, "Unknown engine. Available: "+strings.Join(r.Engines.Names(), " | "))
		return
	}
	type modelSetter interface{ SetModel(string) }
	if len(args) > 1 {
		if ms, ok := e.(modelSetter); ok {
			ms.SetModel(args[1])
		}
	}
	if r.Prefs != nil {
		if err := r.Prefs.SetEngine(ctx, cid, e.Name()); err != nil {
			r.log().Warn("save engine choice", "chat_id", cid, "err", err)
		}
	}
	r.send(cid, fmt.Sprintf("✅ Engine: %s (%s).", e.Name(), e.GetModel()))
}

func (r *Router) send(chatID int64, text string) {
	_, _ = r.Bot.Send(tgbotapi.NewMessage(chatID, text))
}

func (r *Router) sendWithKeyboard(chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	if len(kb.InlineKeyboard) > 0 {
		msg.ReplyMarkup = kb
	}
	return r.Bot.Send(msg)
}

// userMessage turns an error into the text shown in the chat.
func userMessage(err error) string {
	var ue *workflow.UserError
	switch {
	case errors.As(err, &ue):
		return "❌ " + ue.Message
	case errors.Is(err, session.ErrNoSession):
		return "🔒 Please log in first: /login <email> <password>"
	default:
		return "❌ " + backend.MessageOf(err, "Something went wrong. Please try again.")
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
