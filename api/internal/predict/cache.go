package predict

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"disposal-bot/api/internal/normalize"
	"disposal-bot/api/internal/util"
)

// Cache stores raw predictions keyed by input hash, engine and model.
type Cache interface {
	Find(ctx context.Context, inputHash, engine, model string, maxAge time.Duration) (*normalize.Object, error)
	Save(ctx context.Context, inputHash, engine, model string, channel normalize.Channel, raw *normalize.Object) error
}

// Cached wraps an engine with a read-through cache. Cache errors are logged
// and never fail the prediction.
type Cached struct {
	Engine
	Cache  Cache
	MaxAge time.Duration
	Log    *slog.Logger
}

func NewCached(e Engine, c Cache, maxAge time.Duration) *Cached {
	return &Cached{Engine: e, Cache: c, MaxAge: maxAge, Log: slog.Default()}
}

// TextKey hashes a medicine name the way the cache expects it.
func TextKey(name string) string {
	return util.SHA256Hex([]byte("text:" + strings.ToLower(strings.Join(strings.Fields(name), " "))))
}

// ImageKey hashes raw image bytes.
func ImageKey(img []byte) string {
	return util.SHA256Hex(img)
}

func (c *Cached) PredictText(ctx context.Context, name string) (*normalize.Object, error) {
	return c.through(ctx, TextKey(name), normalize.ChannelText, func() (*normalize.Object, error) {
		return c.Engine.PredictText(ctx, name)
	})
}

func (c *Cached) PredictImage(ctx context.Context, img []byte, mime string) (*normalize.Object, error) {
	return c.through(ctx, ImageKey(img), normalize.ChannelImage, func() (*normalize.Object, error) {
		return c.Engine.PredictImage(ctx, img, mime)
	})
}

func (c *Cached) through(ctx context.Context, key string, ch normalize.Channel, call func() (*normalize.Object, error)) (*normalize.Object, error) {
	log := c.Log
	if log == nil {
		log = slog.Default()
	}
	name, model := c.Engine.Name(), c.Engine.GetModel()
	if c.Cache != nil {
		if raw, err := c.Cache.Find(ctx, key, name, model, c.MaxAge); err == nil && raw != nil {
			log.Debug("prediction cache hit", "engine", name, "model", model, "channel", ch)
			return raw, nil
		}
	}
	raw, err := call()
	if err != nil {
		return nil, err
	}
	if c.Cache != nil {
		if err := c.Cache.Save(ctx, key, name, model, ch, raw); err != nil {
			log.Warn("prediction cache save failed", "engine", name, "err", err)
		}
	}
	return raw, nil
}

// SetModel forwards to the wrapped engine when it supports model switching.
func (c *Cached) SetModel(model string) {
	if ms, ok := c.Engine.(interface{ SetModel(string) }); ok {
		ms.SetModel(model)
	}
}
