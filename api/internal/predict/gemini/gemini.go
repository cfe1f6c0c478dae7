package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"disposal-bot/api/internal/normalize"
	"disposal-bot/api/internal/predict"
	"disposal-bot/api/internal/predict/prompt"
	"disposal-bot/api/internal/util"
)

// Engine asks Gemini for a prediction in the same shape the ML service returns.
type Engine struct {
	APIKey string
	Model  string

	mu sync.RWMutex
}

func New(apiKey, model string) *Engine {
	return &Engine{
		APIKey: strings.TrimSpace(apiKey),
		Model:  strings.TrimSpace(model),
	}
}

func (e *Engine) Name() string { return "gemini" }

func (e *Engine) GetModel() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.Model
}

// SetModel switches the model used for subsequent calls.
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
	return e.generate(ctx, "text", genai.Text(prompt.TextInput(genericName)))
}

func (e *Engine) PredictImage(ctx context.Context, img []byte, mime string) (*normalize.Object, error) {
	if len(img) == 0 {
		return nil, &predict.FailedError{Engine: e.Name(), Message: "The photo is empty."}
	}
	return e.generate(ctx, "image",
		genai.Text(prompt.ImageTask),
		&genai.Blob{MIMEType: util.PickMIME(mime, "", img), Data: img},
	)
}

func (e *Engine) generate(ctx context.Context, op string, parts ...genai.Part) (*normalize.Object, error) {
	if e.APIKey == "" {
		return nil, errors.New("GEMINI_API_KEY is empty")
	}
	sch, err := prompt.Load()
	if err != nil {
		return nil, err
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(e.APIKey))
	if err != nil {
		return nil, err
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.GetModel())
	if m == nil {
		return nil, fmt.Errorf("gemini: model is nil")
	}
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0),
		ResponseMIMEType: "application/json",
	}
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{
			genai.Text(prompt.System),
			genai.Text("prediction.schema.json:\n" + sch.Text),
		},
	}

	// retries for 5xx and transient failures
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		resp, err := m.GenerateContent(ctx, parts...)
		if err != nil {
			lastErr = err
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
			}
			continue
		}
		txt := firstText(resp)
		if txt == "" {
			return nil, fmt.Errorf("gemini %s: empty response", op)
		}
		out, err := sch.Decode(txt)
		if err != nil {
			return nil, fmt.Errorf("gemini %s: %w", op, err)
		}
		return out, nil
	}
	return nil, lastErr
}

// Decode parses the model text and validates it against the prediction schema.
func (e *Engine) Decode(txt string) (*normalize.Object, error) {
	sch, err := prompt.Load()
	if err != nil {
		return nil, err
	}
	return sch.Decode(txt)
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
