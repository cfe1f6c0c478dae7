package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"disposal-bot/api/internal/normalize"
	"disposal-bot/api/internal/predict"
	"disposal-bot/api/internal/predict/prompt"
	"disposal-bot/api/internal/util"
)

const DefaultBaseURL = "https://api.openai.com/v1"

// Engine asks the OpenAI chat completions API for a prediction in JSON mode.
type Engine struct {
	APIKey  string
	Model   string
	BaseURL string

	mu    sync.RWMutex
	httpc *http.Client
}

func New(key, model string) *Engine {
	return &Engine{
		APIKey:  strings.TrimSpace(key),
		Model:   strings.TrimSpace(model),
		BaseURL: DefaultBaseURL,
		httpc:   &http.Client{Timeout: 60 * time.Second},
	}
}

func (e *Engine) Name() string { return "openai" }

func (e *Engine) GetModel() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.Model
}

func (e *Engine) SetModel(m string) {
	if m = strings.TrimSpace(m); m == "" {
		return
	}
	e.mu.Lock()
	e.Model = m
	e.mu.Unlock()
}

func (e *Engine) PredictText(ctx context.Context, genericName string) (*normalize.Object, error) {
	genericName = strings.TrimSpace(genericName)
	if genericName == "" {
		return nil, &predict.FailedError{Engine: e.Name(), Message: "Please enter a medicine name."}
	}
	return e.chat(ctx, "text", prompt.TextInput(genericName))
}

func (e *Engine) PredictImage(ctx context.Context, img []byte, mime string) (*normalize.Object, error) {
	if len(img) == 0 {
		return nil, &predict.FailedError{Engine: e.Name(), Message: "The photo is empty."}
	}
	dataURL := "data:" + util.PickMIME(mime, "", img) + ";base64," + base64.StdEncoding.EncodeToString(img)
	return e.chat(ctx, "image", []any{
		map[string]any{"type": "text", "text": prompt.ImageTask},
		map[string]any{"type": "image_url", "image_url": map[string]any{"url": dataURL, "detail": "high"}},
	})
}

func (e *Engine) chat(ctx context.Context, op string, user any) (*normalize.Object, error) {
	if e.APIKey == "" {
		return nil, errors.New("OPENAI_API_KEY is empty")
	}
	sch, err := prompt.Load()
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"model": e.GetModel(),
		"messages": []any{
			map[string]any{"role": "system", "content": prompt.System + "\n\nprediction.schema.json:\n" + sch.Text},
			map[string]any{"role": "user", "content": user},
		},
		"temperature":     0,
		"response_format": map[string]any{"type": "json_object"},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("openai %s: encode: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(e.BaseURL, "/")+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("openai %s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.APIKey)

	resp, err := e.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai %s: %w", op, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("openai %s: read: %w", op, err)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Error util.FlexMessage `json:"error"`
	}
	decErr := json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := ""
		if decErr == nil {
			msg = out.Error.String()
		}
		if msg == "" {
			msg = fmt.Sprintf("the prediction service returned status %d", resp.StatusCode)
		}
		return nil, &predict.FailedError{Engine: e.Name(), Status: resp.StatusCode, Message: msg}
	}
	if decErr != nil {
		return nil, fmt.Errorf("openai %s: decode: %w", op, decErr)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return nil, fmt.Errorf("openai %s: empty response", op)
	}
	obj, err := sch.Decode(out.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("openai %s: %w", op, err)
	}
	return obj, nil
}
