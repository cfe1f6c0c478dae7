package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"disposal-bot/api/internal/backend"
)

func (r *Router) handleCallback(ctx context.Context, cb tgbotapi.CallbackQuery) {
	cid := cb.Message.Chat.ID
	msgID := cb.Message.MessageID
	data := cb.Data
	_, _ = r.Bot.Request(tgbotapi.NewCallback(cb.ID, "")) // ack

	switch {
	case data == cbSave:
		r.onSave(ctx, cid)
	case data == cbPickup:
		r.onRequestPickup(ctx, cid)
	case data == cbConsentYes:
		r.dropKeyboard(cid, msgID)
		r.submitForm(ctx, cid, true)
	case data == cbConsentNo:
		r.dropKeyboard(cid, msgID)
		r.submitForm(ctx, cid, false)
	case data == cbPause:
		r.setViewPaused(cid, true)
	case data == cbResume:
		r.setViewPaused(cid, false)
	case data == cbClose:
		r.closeView(cid)
		r.dropKeyboard(cid, msgID)
	case strings.HasPrefix(data, prefixCHW):
		r.dropKeyboard(cid, msgID)
		r.chooseCHW(cid, backend.ID(strings.TrimPrefix(data, prefixCHW)))
	case strings.HasPrefix(data, prefixDisposal):
		r.dropKeyboard(cid, msgID)
		r.chooseDisposal(ctx, cid, backend.ID(strings.TrimPrefix(data, prefixDisposal)))
	case strings.HasPrefix(data, prefixStatus):
		r.onPickupStatus(ctx, cid, strings.TrimPrefix(data, prefixStatus))
	}
}

// onPickupStatus handles "<pickupID>:<status>" from a pickup list button.
func (r *Router) onPickupStatus(ctx context.Context, cid int64, arg string) {
	id, raw, ok := strings.Cut(arg, ":")
	st, known := backend.ParsePickupStatus(raw)
	if !ok || !known || id == "" {
		r.send(cid, "Unknown pickup action.")
		return
	}
	s, err := r.Sessions.Hydrate(ctx, cid)
	if err != nil {
		r.send(cid, userMessage(err))
		return
	}
	p, err := s.Client.UpdatePickupStatus(ctx, backend.ID(id), st, "")
	if err != nil {
		r.send(cid, "❌ "+backend.MessageOf(err, "Could not update the pickup."))
		return
	}
	r.send(cid, fmt.Sprintf("✅ Pickup for %s is now %s.", firstNonEmpty(p.MedicineName, "the medicine"), p.Status))
	r.refreshView(cid)
}

func (r *Router) dropKeyboard(cid int64, msgID int) {
	edit := tgbotapi.NewEditMessageReplyMarkup(cid, msgID, tgbotapi.InlineKeyboardMarkup{
		InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{},
	})
	_, _ = r.Bot.Request(edit)
}
