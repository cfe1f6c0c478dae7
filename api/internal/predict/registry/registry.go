// Package registry builds the prediction engines named in the configuration.
package registry

import (
	"fmt"
	"log/slog"
	"strings"

	"disposal-bot/api/internal/config"
	"disposal-bot/api/internal/predict"
	"disposal-bot/api/internal/predict/gemini"
	"disposal-bot/api/internal/predict/mlservice"
	"disposal-bot/api/internal/predict/openai"
)

// Build returns a Manager with the ML service engine and, for each API key
// that is set, the Gemini and OpenAI engines. A non-nil cache wraps every engine.
func Build(cfg *config.Config, cache predict.Cache, log *slog.Logger) (*predict.Manager, error) {
	if log == nil {
		log = slog.Default()
	}
	var all []predict.Engine
	if strings.TrimSpace(cfg.MLServiceURL) != "" {
		all = append(all, mlservice.New(cfg.MLServiceURL, ""))
	}
	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		all = append(all, gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel))
	}
	if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
		all = append(all, openai.New(cfg.OpenAIAPIKey, cfg.OpenAIModel))
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("no prediction engine configured: set ML_SERVICE_URL, GEMINI_API_KEY or OPENAI_API_KEY")
	}
	if cache != nil {
		for i, e := range all {
			c := predict.NewCached(e, cache, cfg.CacheTTL)
			c.Log = log.With("engine", e.Name())
			all[i] = c
		}
	}

	def := all[0]
	for _, e := range all {
		if e.Name() == cfg.DefaultEngine {
			def = e
		}
	}
	if def.Name() != cfg.DefaultEngine {
		log.Warn("default engine unavailable", "want", cfg.DefaultEngine, "using", def.Name())
	}
	return predict.NewManager(def, all...), nil
}
