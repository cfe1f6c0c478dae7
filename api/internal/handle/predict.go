package handle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"disposal-bot/api/internal/disposal"
	"disposal-bot/api/internal/normalize"
	"disposal-bot/api/internal/predict"
	"disposal-bot/api/internal/util"
)

const (
	textDeadline  = 60 * time.Second
	imageDeadline = 180 * time.Second
)

// --- NORMALIZE ---------------------------------------------------------------

type normalizeReq struct {
	Prediction   *normalize.Object `json:"prediction"`
	InputChannel string            `json:"input_channel"`
	GenericName  string            `json:"generic_name"`
}

// Normalize runs an already obtained raw prediction through the extractor.
func (h *Handle) Normalize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var req normalizeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json: "+err.Error())
		return
	}
	if req.Prediction == nil {
		writeError(w, http.StatusBadRequest, "prediction is required")
		return
	}
	ch := normalize.Channel(strings.ToLower(strings.TrimSpace(req.InputChannel)))
	if ch != "" && ch != normalize.ChannelText && ch != normalize.ChannelImage {
		writeError(w, http.StatusBadRequest, "input_channel must be text or image")
		return
	}
	p := normalize.Normalize(req.Prediction, normalize.Input{Channel: ch, TypedName: req.GenericName})
	writeJSON(w, http.StatusOK, BuildResult(p, req.GenericName, nil))
}

// --- PREDICT -----------------------------------------------------------------

type predictTextReq struct {
	Engine      string `json:"engine"`
	GenericName string `json:"generic_name"`
}

type predictImageReq struct {
	Engine      string `json:"engine"`
	ImageB64    string `json:"image_b64"`
	Mime        string `json:"mime,omitempty"`
	GenericName string `json:"generic_name,omitempty"`
}

func (h *Handle) PredictText(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var req predictTextReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json: "+err.Error())
		return
	}
	if strings.TrimSpace(req.GenericName) == "" {
		writeError(w, http.StatusBadRequest, "generic_name is required")
		return
	}
	engine, ok := h.engine(req.Engine)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown engine: "+req.Engine)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestDeadline(r, textDeadline))
	defer cancel()

	raw, err := engine.PredictText(ctx, req.GenericName)
	if err != nil {
		h.predictError(w, engine, err)
		return
	}
	p := normalize.Normalize(raw, normalize.Input{Channel: normalize.ChannelText, TypedName: req.GenericName})
	res := BuildResult(p, req.GenericName, nil)
	res.Engine, res.Model = engine.Name(), engine.GetModel()
	writeJSON(w, http.StatusOK, res)
}

func (h *Handle) PredictImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var req predictImageReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json: "+err.Error())
		return
	}
	img, hint, err := util.DecodeBase64MaybeDataURL(req.ImageB64)
	if err != nil || len(img) == 0 {
		writeError(w, http.StatusBadRequest, "bad image_b64")
		return
	}
	engine, ok := h.engine(req.Engine)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown engine: "+req.Engine)
		return
	}
	mime := util.PickMIME(req.Mime, hint, img)

	ctx, cancel := context.WithTimeout(r.Context(), requestDeadline(r, imageDeadline))
	defer cancel()

	raw, err := engine.PredictImage(ctx, img, mime)
	if err != nil {
		h.predictError(w, engine, err)
		return
	}
	p := normalize.Normalize(raw, normalize.Input{Channel: normalize.ChannelImage, TypedName: req.GenericName})
	file := &disposal.ImageFile{Name: "medicine" + util.ExtForMIME(mime), MIME: mime, Data: img}
	res := BuildResult(p, req.GenericName, file)
	res.Engine, res.Model = engine.Name(), engine.GetModel()
	writeJSON(w, http.StatusOK, res)
}

func (h *Handle) engine(name string) (predict.Engine, bool) {
	if strings.TrimSpace(name) == "" {
		return h.engs.Default(), h.engs.Default() != nil
	}
	return h.engs.Lookup(name)
}

// predictError maps a rejected prediction to 422 and everything else to 502.
func (h *Handle) predictError(w http.ResponseWriter, e predict.Engine, err error) {
	var fe *predict.FailedError
	if errors.As(err, &fe) {
		writeError(w, http.StatusUnprocessableEntity, predict.MessageOf(err, "prediction failed"))
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		writeError(w, http.StatusGatewayTimeout, "prediction timed out")
		return
	}
	h.log.Warn("prediction failed", "engine", e.Name(), "err", err)
	writeError(w, http.StatusBadGateway, "predict error: "+err.Error())
}
