package mlservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"disposal-bot/api/internal/normalize"
	"disposal-bot/api/internal/predict"
	"disposal-bot/api/internal/util"
)

const name = "mlservice"

// Engine calls the disposal ML inference service over HTTP.
type Engine struct {
	BaseURL string
	Model   string

	httpc *http.Client
	log   *slog.Logger
}

func New(baseURL, model string) *Engine {
	if strings.TrimSpace(model) == "" {
		model = "default"
	}
	return &Engine{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		Model:   strings.TrimSpace(model),
		httpc:   &http.Client{Timeout: 120 * time.Second},
		log:     slog.Default(),
	}
}

func (e *Engine) Name() string     { return name }
func (e *Engine) GetModel() string { return e.Model }

func (e *Engine) PredictText(ctx context.Context, genericName string) (*normalize.Object, error) {
	genericName = strings.TrimSpace(genericName)
	if genericName == "" {
		return nil, &predict.FailedError{Engine: name, Message: "Please enter a medicine name."}
	}
	body, _ := json.Marshal(map[string]string{"generic_name": genericName})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL+"/predict/text", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("mlservice: text request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return e.call(req)
}

func (e *Engine) PredictImage(ctx context.Context, img []byte, mime string) (*normalize.Object, error) {
	if len(img) == 0 {
		return nil, &predict.FailedError{Engine: name, Message: "The photo is empty."}
	}
	mime = util.PickMIME(mime, "", img)

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="medicine%s"`, util.ExtForMIME(mime)))
	h.Set("Content-Type", mime)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("mlservice: create form file: %w", err)
	}
	if _, err := part.Write(img); err != nil {
		return nil, fmt.Errorf("mlservice: copy image data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("mlservice: close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL+"/predict/image", body)
	if err != nil {
		return nil, fmt.Errorf("mlservice: image request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return e.call(req)
}

func (e *Engine) call(req *http.Request) (*normalize.Object, error) {
	start := time.Now()
	resp, err := e.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mlservice: call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("mlservice: read response: %w", err)
	}
	e.log.Debug("mlservice response", "path", req.URL.Path, "status", resp.StatusCode, "took", time.Since(start))

	obj, perr := normalize.ParseObject(raw)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := ""
		if perr == nil {
			msg = errorMessage(obj)
		}
		if msg == "" {
			msg = fmt.Sprintf("the prediction service returned status %d", resp.StatusCode)
		}
		return nil, &predict.FailedError{Engine: name, Status: resp.StatusCode, Message: msg}
	}
	if perr != nil {
		return nil, fmt.Errorf("mlservice: parse response: %w", perr)
	}
	if v, _ := obj.Get("success"); v == any(false) {
		return nil, &predict.FailedError{Engine: name, Status: resp.StatusCode, Message: errorMessage(obj)}
	}
	return Predictions(obj), nil
}

var envelopeKeys = map[string]bool{
	"success": true, "predictions": true, "prediction": true, "result": true,
	"error": true, "message": true, "status": true,
}

// Predictions extracts the predictions object from a service response.
// Fields the service returns beside it (OCR output, similarity match) are
// merged in when the predictions object does not already carry them.
func Predictions(resp *normalize.Object) *normalize.Object {
	pred := resp.Object("predictions", "prediction", "result")
	if pred == nil {
		pred = normalize.NewObject()
	}
	for _, k := range resp.Keys() {
		if envelopeKeys[k] {
			continue
		}
		if _, ok := pred.Get(k); ok {
			continue
		}
		v, _ := resp.Get(k)
		pred.Set(k, v)
	}
	return pred
}

func errorMessage(o *normalize.Object) string {
	if v, ok := o.Get("error"); ok {
		switch t := v.(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" {
				return s
			}
		case *normalize.Object:
			if s := t.String("message", "detail"); s != "" {
				return s
			}
		}
	}
	return o.String("message", "detail")
}
