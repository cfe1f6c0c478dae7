package handle

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"disposal-bot/api/internal/disposal"
	"disposal-bot/api/internal/normalize"
	"disposal-bot/api/internal/predict"
)

type Handle struct {
	engs *predict.Manager
	log  *slog.Logger
}

func New(engs *predict.Manager, log *slog.Logger) *Handle {
	if log == nil {
		log = slog.Default()
	}
	return &Handle{engs: engs, log: log}
}

// Routes registers the handlers on mux.
func (h *Handle) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", h.Healthz)
	mux.HandleFunc("/v1/normalize", h.Normalize)
	mux.HandleFunc("/v1/predict/text", h.PredictText)
	mux.HandleFunc("/v1/predict/image", h.PredictImage)
}

// Result is the response of every prediction endpoint.
type Result struct {
	Engine         string                `json:"engine,omitempty"`
	Model          string                `json:"model,omitempty"`
	Prediction     *normalize.Prediction `json:"prediction"`
	Sections       []disposal.Section    `json:"sections"`
	QuickReference []disposal.QuickRef   `json:"quickReference"`
	CallToAction   string                `json:"callToAction"`
	Payload        *disposal.Payload     `json:"payload"`
}

// BuildResult assembles the response for a normalized prediction.
func BuildResult(p *normalize.Prediction, typed string, img *disposal.ImageFile) Result {
	return Result{
		Prediction:     p,
		Sections:       disposal.BuildSummarySections(p),
		QuickReference: disposal.BuildQuickReference(p),
		CallToAction:   disposal.CallToAction(p),
		Payload:        disposal.BuildDisposalPayload(p, disposal.FormInputs{GenericName: typed}, img),
	}
}

func (h *Handle) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "engines": h.engs.Names()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// requestDeadline reads X-Request-Timeout or ?timeoutSec= (seconds).
func requestDeadline(r *http.Request, def time.Duration) time.Duration {
	ts := r.Header.Get("X-Request-Timeout")
	if ts == "" {
		ts = r.URL.Query().Get("timeoutSec")
	}
	if v, _ := strconv.Atoi(ts); v > 0 {
		return time.Duration(v) * time.Second
	}
	return def
}
