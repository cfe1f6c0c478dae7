package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"disposal-bot/api/internal/backend"
)

type SessionRepo struct{ DB *sql.DB }

func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{DB: db} }

type SessionRow struct {
	ChatID    int64
	Token     string
	User      backend.User
	Engine    string
	UpdatedAt time.Time
}

// Load returns the stored session of a chat, or ErrNotFound.
func (r *SessionRepo) Load(ctx context.Context, chatID int64) (*SessionRow, error) {
	const q = `select token, user_json, coalesce(engine,''), updated_at from chat_sessions where chat_id=$1`
	row := SessionRow{ChatID: chatID}
	var js []byte
	if err := r.DB.QueryRowContext(ctx, q, chatID).Scan(&row.Token, &js, &row.Engine, &row.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(js, &row.User); err != nil {
		// an unreadable user means the login has to be repeated
		return nil, ErrNotFound
	}
	return &row, nil
}

// Save upserts token and user. The engine choice is left untouched.
func (r *SessionRepo) Save(ctx context.Context, chatID int64, token string, u backend.User) error {
	if token == "" {
		return errors.New("store: empty token")
	}
	js, err := json.Marshal(u)
	if err != nil {
		return err
	}
	const q = `
insert into chat_sessions(chat_id, token, user_json)
values ($1,$2,$3)
on conflict (chat_id)
do update set token=excluded.token, user_json=excluded.user_json, updated_at=now()`
	_, err = r.DB.ExecContext(ctx, q, chatID, token, js)
	return err
}

// SetEngine remembers the chat's engine choice. It is a no-op for chats without a session.
func (r *SessionRepo) SetEngine(ctx context.Context, chatID int64, engine string) error {
	const q = `update chat_sessions set engine=$2, updated_at=now() where chat_id=$1`
	_, err := r.DB.ExecContext(ctx, q, chatID, engine)
	return err
}

func (r *SessionRepo) Delete(ctx context.Context, chatID int64) error {
	const q = `delete from chat_sessions where chat_id=$1`
	_, err := r.DB.ExecContext(ctx, q, chatID)
	return err
}
