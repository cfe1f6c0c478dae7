package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"disposal-bot/api/internal/predict"
	"disposal-bot/api/internal/workflow"
)

func (r *Router) predictText(ctx context.Context, cid int64, name string) {
	_, _ = r.Bot.Request(typing(cid))
	f := r.flowFor(cid)
	e := r.Engines.Get(cid)
	lastPred.Store(cid, lastPrediction{Key: predict.TextKey(name), Engine: e.Name(), Model: e.GetModel()})

	p, err := f.PredictText(ctx, name)
	if err != nil {
		lastPred.Delete(cid)
		r.send(cid, userMessage(err))
		return
	}
	_, _ = r.sendWithKeyboard(cid, formatPrediction(p), predictionKeyboard())
}

func (r *Router) predictImage(ctx context.Context, cid int64, data []byte, caption string) {
	_, _ = r.Bot.Request(typing(cid))
	f := r.flowFor(cid)
	e := r.Engines.Get(cid)
	lastPred.Store(cid, lastPrediction{Key: predict.ImageKey(data), Engine: e.Name(), Model: e.GetModel()})

	p, err := f.PredictImage(ctx, photoFile(data), caption)
	if err != nil {
		lastPred.Delete(cid)
		r.send(cid, userMessage(err))
		return
	}
	_, _ = r.sendWithKeyboard(cid, formatPrediction(p), predictionKeyboard())
}

func (r *Router) onSave(ctx context.Context, cid int64) {
	if _, err := r.Sessions.Hydrate(ctx, cid); err != nil {
		r.send(cid, userMessage(err))
		return
	}
	d, nav, err := r.flowFor(cid).SaveDisposal(ctx)
	if err != nil {
		r.send(cid, userMessage(err))
		return
	}
	r.markSaved(ctx, cid, d.ID.String())
	r.send(cid, fmt.Sprintf("✅ Disposal saved (status: %s).", d.Status))
	if nav == workflow.NavHistory {
		r.openView(ctx, cid, viewHistory)
	}
}

func (r *Router) onRequestPickup(ctx context.Context, cid int64) {
	if _, err := r.Sessions.Hydrate(ctx, cid); err != nil {
		r.send(cid, userMessage(err))
		return
	}
	f := r.flowFor(cid)
	wasSaved := f.State() == workflow.DisposalSaved
	draft, nav, err := f.RequestPickup(ctx)
	if err != nil {
		r.send(cid, userMessage(err))
		return
	}
	if !wasSaved {
		r.markSaved(ctx, cid, draft.DisposalID.String())
	}
	if nav == workflow.NavPickupForm {
		r.openPickupForm(ctx, cid, &draft)
	}
}

func (r *Router) markSaved(ctx context.Context, cid int64, disposalID string) {
	if r.Cache == nil {
		return
	}
	v, ok := lastPred.Load(cid)
	if !ok {
		return
	}
	lp := v.(lastPrediction)
	if err := r.Cache.MarkSaved(ctx, lp.Key, lp.Engine, lp.Model, disposalID); err != nil {
		r.log().Debug("mark prediction saved", "chat_id", cid, "err", err)
	}
}

func typing(cid int64) tgbotapi.ChatActionConfig {
	return tgbotapi.NewChatAction(cid, tgbotapi.ChatTyping)
}
