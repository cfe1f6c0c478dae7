package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver

	"disposal-bot/api/internal/backend"
	"disposal-bot/api/internal/config"
	"disposal-bot/api/internal/httpserver"
	"disposal-bot/api/internal/predict/registry"
	"disposal-bot/api/internal/session"
	"disposal-bot/api/internal/store"
	"disposal-bot/api/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(log)
	if err := cfg.Require("TELEGRAM_BOT_TOKEN", "BACKEND_URL"); err != nil {
		log.Error("config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Postgres ---
	dsn := resolveDSN()
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Error("sql.Open", "err", err)
		os.Exit(1)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(1 * time.Hour)
	{
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := db.PingContext(pctx)
		if err == nil {
			err = store.Migrate(pctx, db)
		}
		cancel()
		if err != nil {
			log.Error("db", "err", err, "dsn", safeDSNSummary(dsn))
			os.Exit(1)
		}
		log.Info("db connected", "dsn", safeDSNSummary(dsn))
	}
	predRepo := store.NewPredictionRepo(db)
	sessRepo := store.NewSessionRepo(db)
	go purgeLoop(ctx, predRepo, cfg.CacheTTL, log)

	// --- engines and backend ---
	engines, err := registry.Build(cfg, predRepo, log)
	if err != nil {
		log.Error("engines", "err", err)
		os.Exit(1)
	}
	api := backend.New(cfg.BackendURL,
		backend.WithRateLimit(cfg.BackendRPS, 5),
		backend.WithLogger(log.With("component", "backend")),
	)

	// --- Telegram bot ---
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		log.Error("telegram", "err", err)
		os.Exit(1)
	}
	bot.Debug = false

	r := &telegram.Router{
		Bot:             bot,
		Engines:         engines,
		Sessions:        session.NewManager(api, sessRepo, log.With("component", "session")),
		Prefs:           sessRepo,
		Cache:           predRepo,
		RefreshInterval: cfg.RefreshInterval,
		IdleTimeout:     cfg.ListIdleTimeout,
		Log:             log.With("component", "telegram"),
	}

	// DefaultServeMux, because ListenForWebhook registers on it.
	http.HandleFunc("/healthz", httpserver.Healthz(db.PingContext))
	addr := "0.0.0.0:" + cfg.Port

	if webhookURL := strings.TrimSpace(cfg.WebhookURL); webhookURL != "" {
		err = startWebhookMode(ctx, addr, bot, r, webhookURL, log)
	} else {
		err = startPollingMode(ctx, addr, bot, r, log)
	}
	if err != nil {
		log.Error("bot stopped", "err", err)
		os.Exit(1)
	}
}

// ---------------- Modes -----------------

func startWebhookMode(ctx context.Context, addr string, bot *tgbotapi.BotAPI, r *telegram.Router, baseURL string, log *slog.Logger) error {
	path := "/webhook/" + shortHash(bot.Token)
	public := strings.TrimRight(baseURL, "/") + path

	wh, err := tgbotapi.NewWebhook(public)
	if err != nil {
		return err
	}
	wh.DropPendingUpdates = true
	if _, err := bot.Request(wh); err != nil {
		return err
	}

	updates := bot.ListenForWebhook(path)
	go func() {
		for upd := range updates {
			r.HandleUpdate(ctx, upd)
		}
		log.Info("webhook updates channel closed")
	}()

	log.Info("webhook listening", "addr", addr, "path", path)
	return httpserver.Serve(ctx, addr, http.DefaultServeMux, log)
}

func startPollingMode(ctx context.Context, addr string, bot *tgbotapi.BotAPI, r *telegram.Router, log *slog.Logger) error {
	go func() {
		if err := httpserver.Serve(ctx, addr, http.DefaultServeMux, log); err != nil {
			log.Error("health server", "err", err)
		}
	}()
	runPolling(ctx, bot, func(upd tgbotapi.Update) { r.HandleUpdate(ctx, upd) }, log)
	return nil
}

// ---------------- Polling loop -----------------

var reRetryAfter = regexp.MustCompile(`(?i)retry after\s+(\d+)`)

func retryDelayFromError(err error) time.Duration {
	if err == nil {
		return 0
	}
	s := strings.ToLower(err.Error())
	if strings.Contains(s, "too many requests") {
		if m := reRetryAfter.FindStringSubmatch(s); len(m) == 2 {
			if n, _ := strconv.Atoi(m[1]); n > 0 {
				return time.Duration(n) * time.Second
			}
		}
		return 3 * time.Second
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return 2 * time.Second
	}
	return 1 * time.Second
}

func runPolling(ctx context.Context, bot *tgbotapi.BotAPI, handle func(tgbotapi.Update), log *slog.Logger) {
	offset := 0
	baseDelay := 1 * time.Second
	maxDelay := 15 * time.Second

	for {
		if ctx.Err() != nil {
			log.Info("polling stopped")
			return
		}

		u := tgbotapi.NewUpdate(offset)
		u.Timeout = 30

		updates, err := bot.GetUpdates(u)
		if err != nil {
			d := min(max(retryDelayFromError(err), baseDelay), maxDelay)
			log.Warn("polling error", "err", err, "retry_in", d)
			sleep(ctx, d)
			continue
		}

		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			handle(upd)
		}
		if len(updates) == 0 {
			sleep(ctx, 200*time.Millisecond)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// purgeLoop drops cached predictions older than ttl once an hour.
func purgeLoop(ctx context.Context, repo *store.PredictionRepo, ttl time.Duration, log *slog.Logger) {
	if ttl <= 0 {
		return
	}
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := repo.PurgeOlderThan(ctx, ttl)
			if err != nil {
				log.Warn("purge prediction cache", "err", err)
				continue
			}
			log.Debug("purged prediction cache", "rows", n)
		}
	}
}

// ---------------- Helpers -----------------

func resolveDSN() string {
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		return v
	}
	user := getenvDefault("POSTGRES_USER", "disposal")
	pass := os.Getenv("POSTGRES_PASSWORD")
	host := getenvDefault("PGHOST", "db")
	port := getenvDefault("PGPORT", "5432")
	db := getenvDefault("POSTGRES_DB", "disposal")

	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, pass),
		Host:     net.JoinHostPort(host, port),
		Path:     "/" + db,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func getenvDefault(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

// shortHash is FNV-1a, 16 hex digits; stable for a given token.
func shortHash(s string) string {
	h := uint64(1469598103934665603)
	const prime = 1099511628211
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime
	}
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		out[i] = hexdigits[h&0xF]
		h >>= 4
	}
	return string(out)
}

func safeDSNSummary(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "dsn: parse error"
	}
	user := u.User.Username()
	host := u.Host
	port := ""
	if h, p, err := net.SplitHostPort(u.Host); err == nil {
		host, port = h, p
	}
	db := strings.TrimPrefix(u.Path, "/")
	if port == "" {
		return fmt.Sprintf("host=%s db=%s user=%s", host, db, user)
	}
	return fmt.Sprintf("host=%s port=%s db=%s user=%s", host, port, db, user)
}
