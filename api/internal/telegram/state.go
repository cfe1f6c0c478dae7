package telegram

import (
	"context"
	"sync"
	"time"

	"disposal-bot/api/internal/workflow"
)

const (
	albumDebounce = 1200 * time.Millisecond
	maxPixels     = 18_000_000
)

// lastPrediction is the cache key of the chat's current prediction.
type lastPrediction struct {
	Key    string
	Engine string
	Model  string
}

type photoAlbum struct {
	ChatID  int64
	Caption string

	mu     sync.Mutex
	images [][]byte
	timer  *time.Timer
}

var (
	flows     sync.Map // chatID -> *workflow.Flow
	lastPred  sync.Map // chatID -> lastPrediction
	albums    sync.Map // mediaGroupID -> *photoAlbum
	forms     sync.Map // chatID -> *pickupForm
	liveViews sync.Map // chatID -> *liveView
)

func (r *Router) flowFor(chatID int64) *workflow.Flow {
	if v, ok := flows.Load(chatID); ok {
		return v.(*workflow.Flow)
	}
	f := workflow.New(chatEngine{r: r, chatID: chatID}, chatBackend{r: r, chatID: chatID}, r.log())
	v, loaded := flows.LoadOrStore(chatID, f)
	if !loaded {
		r.restoreEngine(chatID)
	}
	return v.(*workflow.Flow)
}

// restoreEngine applies the engine the chat chose before a restart.
func (r *Router) restoreEngine(chatID int64) {
	if r.Prefs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	row, err := r.Prefs.Load(ctx, chatID)
	if err != nil || row.Engine == "" {
		return
	}
	r.Engines.Use(chatID, row.Engine)
}

// forget drops every piece of per-chat state.
func (r *Router) forget(chatID int64) {
	if v, ok := flows.Load(chatID); ok {
		v.(*workflow.Flow).Reset()
	}
	lastPred.Delete(chatID)
	forms.Delete(chatID)
	r.closeView(chatID)
}
