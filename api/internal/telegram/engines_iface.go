package telegram

import (
	"context"

	"disposal-bot/api/internal/backend"
	"disposal-bot/api/internal/disposal"
	"disposal-bot/api/internal/normalize"
	"disposal-bot/api/internal/predict"
)

// chatEngine resolves the chat's current engine on every call, so an
// /engine switch applies to the chat's flow without rebuilding it.
type chatEngine struct {
	r      *Router
	chatID int64
}

func (e chatEngine) cur() predict.Engine { return e.r.Engines.Get(e.chatID) }

func (e chatEngine) Name() string     { return e.cur().Name() }
func (e chatEngine) GetModel() string { return e.cur().GetModel() }

func (e chatEngine) PredictText(ctx context.Context, name string) (*normalize.Object, error) {
	return e.cur().PredictText(ctx, name)
}

func (e chatEngine) PredictImage(ctx context.Context, img []byte, mime string) (*normalize.Object, error) {
	return e.cur().PredictImage(ctx, img, mime)
}

// chatBackend calls the REST backend as the chat's logged-in user.
type chatBackend struct {
	r      *Router
	chatID int64
}

func (b chatBackend) client(ctx context.Context) (*backend.Client, error) {
	s, err := b.r.Sessions.Hydrate(ctx, b.chatID)
	if err != nil {
		return nil, err
	}
	return s.Client, nil
}

func (b chatBackend) CreateDisposal(ctx context.Context, p *disposal.Payload) (*backend.Disposal, error) {
	c, err := b.client(ctx)
	if err != nil {
		return nil, err
	}
	return c.CreateDisposal(ctx, p)
}

func (b chatBackend) CreatePickup(ctx context.Context, req backend.PickupRequest) (*backend.Pickup, error) {
	c, err := b.client(ctx)
	if err != nil {
		return nil, err
	}
	return c.CreatePickup(ctx, req)
}

func (b chatBackend) UpdateDisposal(ctx context.Context, id backend.ID, upd backend.DisposalUpdate) (*backend.Disposal, error) {
	c, err := b.client(ctx)
	if err != nil {
		return nil, err
	}
	return c.UpdateDisposal(ctx, id, upd)
}
