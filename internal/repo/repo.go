package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"prepcal/internal/domain"
)

// ErrNotFound signals a missing row.
var ErrNotFound = errors.New("not found")

// Repo wraps DB access. Methods are thin; callers own transactions when they
// need more than one statement.
type Repo struct {
	DB  *sql.DB
	Now func() time.Time
}

func (r Repo) now() string {
	if r.Now != nil {
		return r.Now().UTC().Format(time.RFC3339)
	}
	return time.Now().UTC().Format(time.RFC3339)
}

// UpsertUser finds a user by email or creates one.
func (r Repo) UpsertUser(ctx context.Context, email, name string) (domain.User, error) {
	var u domain.User
	err := r.DB.QueryRowContext(ctx, `SELECT id,email,name,created_at FROM users WHERE email=?`, email).
		Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt)
	if err == nil {
		if name != "" && name != u.Name {
			if _, err := r.DB.ExecContext(ctx, `UPDATE users SET name=? WHERE id=?`, name, u.ID); err != nil {
				return domain.User{}, err
			}
			u.Name = name
		}
		return u, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, err
	}
	u = domain.User{ID: uuid.NewString(), Email: email, Name: name, CreatedAt: r.now()}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO users(id,email,name,created_at) VALUES (?,?,?,?)`,
		u.ID, u.Email, u.Name, u.CreatedAt)
	if err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// GetUser fetches a user by id.
func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	err := r.DB.QueryRowContext(ctx, `SELECT id,email,name,created_at FROM users WHERE id=?`, id).
		Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, ErrNotFound
	}
	return u, err
}

// UpsertAccount stores or refreshes the linked OAuth identity for a user.
func (r Repo) UpsertAccount(ctx context.Context, userID, provider, accessToken, refreshToken string, expiry time.Time) (domain.Account, error) {
	now := r.now()
	existing, err := r.GetAccount(ctx, userID, provider)
	if err == nil {
		if refreshToken == "" {
			// Google omits the refresh token on repeat consent; keep the
			// one we already have.
			refreshToken = existing.RefreshToken
		}
		_, err = r.DB.ExecContext(ctx,
			`UPDATE accounts SET access_token=?,refresh_token=?,expiry=?,updated_at=? WHERE id=?`,
			accessToken, refreshToken, expiry.UTC().Format(time.RFC3339), now, existing.ID)
		if err != nil {
			return domain.Account{}, err
		}
		existing.AccessToken = accessToken
		existing.RefreshToken = refreshToken
		existing.Expiry = expiry.UTC().Format(time.RFC3339)
		existing.UpdatedAt = now
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return domain.Account{}, err
	}
	a := domain.Account{
		ID:           uuid.NewString(),
		UserID:       userID,
		Provider:     provider,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Expiry:       expiry.UTC().Format(time.RFC3339),
		UpdatedAt:    now,
	}
	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO accounts(id,user_id,provider,access_token,refresh_token,expiry,updated_at) VALUES (?,?,?,?,?,?,?)`,
		a.ID, a.UserID, a.Provider, a.AccessToken, a.RefreshToken, a.Expiry, a.UpdatedAt)
	if err != nil {
		return domain.Account{}, fmt.Errorf("insert account: %w", err)
	}
	return a, nil
}

// GetAccount fetches the linked account for user+provider.
func (r Repo) GetAccount(ctx context.Context, userID, provider string) (domain.Account, error) {
	var a domain.Account
	err := r.DB.QueryRowContext(ctx,
		`SELECT id,user_id,provider,access_token,refresh_token,expiry,updated_at FROM accounts WHERE user_id=? AND provider=?`,
		userID, provider).
		Scan(&a.ID, &a.UserID, &a.Provider, &a.AccessToken, &a.RefreshToken, &a.Expiry, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, ErrNotFound
	}
	return a, err
}

// SaveToken persists a refreshed access token for an account. Implements
// the calendar token store.
func (r Repo) SaveToken(ctx context.Context, accountID, accessToken string, expiry time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE accounts SET access_token=?,expiry=?,updated_at=? WHERE id=?`,
		accessToken, expiry.UTC().Format(time.RFC3339), r.now(), accountID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateChatRequest records a submitted message as pending.
func (r Repo) CreateChatRequest(ctx context.Context, id, message string) (domain.ChatRequest, error) {
	req := domain.ChatRequest{ID: id, Message: message, Status: "pending", CreatedAt: r.now()}
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO chat_requests(id,message,status,created_at) VALUES (?,?,?,?)`,
		req.ID, req.Message, req.Status, req.CreatedAt)
	if err != nil {
		return domain.ChatRequest{}, fmt.Errorf("insert chat request: %w", err)
	}
	return req, nil
}

// DeleteChatRequest removes a request and, via cascade, any replies.
func (r Repo) DeleteChatRequest(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM chat_requests WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetChatRequest fetches a request by id.
func (r Repo) GetChatRequest(ctx context.Context, id string) (domain.ChatRequest, error) {
	var req domain.ChatRequest
	err := r.DB.QueryRowContext(ctx,
		`SELECT id,message,status,created_at FROM chat_requests WHERE id=?`, id).
		Scan(&req.ID, &req.Message, &req.Status, &req.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ChatRequest{}, ErrNotFound
	}
	return req, err
}

// LatestPendingRequest returns the most recent unanswered request. Inbound
// replies without an explicit request id attach to it.
func (r Repo) LatestPendingRequest(ctx context.Context) (domain.ChatRequest, error) {
	var req domain.ChatRequest
	err := r.DB.QueryRowContext(ctx,
		`SELECT id,message,status,created_at FROM chat_requests WHERE status='pending' ORDER BY created_at DESC, id DESC LIMIT 1`).
		Scan(&req.ID, &req.Message, &req.Status, &req.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ChatRequest{}, ErrNotFound
	}
	return req, err
}

// RecordReply stores an inbound reply and marks its request answered.
func (r Repo) RecordReply(ctx context.Context, requestID, message string) (domain.ChatReply, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ChatReply{}, err
	}
	defer tx.Rollback()
	reply := domain.ChatReply{
		ID:        uuid.NewString(),
		RequestID: requestID,
		Message:   message,
		CreatedAt: r.now(),
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chat_replies(id,request_id,message,created_at) VALUES (?,?,?,?)`,
		reply.ID, reply.RequestID, reply.Message, reply.CreatedAt); err != nil {
		return domain.ChatReply{}, fmt.Errorf("insert chat reply: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE chat_requests SET status='answered' WHERE id=?`, requestID); err != nil {
		return domain.ChatReply{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ChatReply{}, err
	}
	return reply, nil
}

// ReplyForRequest returns the stored reply for a request, if any.
func (r Repo) ReplyForRequest(ctx context.Context, requestID string) (domain.ChatReply, error) {
	var reply domain.ChatReply
	err := r.DB.QueryRowContext(ctx,
		`SELECT id,request_id,message,created_at FROM chat_replies WHERE request_id=? ORDER BY created_at LIMIT 1`,
		requestID).
		Scan(&reply.ID, &reply.RequestID, &reply.Message, &reply.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ChatReply{}, ErrNotFound
	}
	return reply, err
}

// PruneAnsweredBefore deletes answered requests (and their replies) created
// before the cutoff. Pending requests are never pruned.
func (r Repo) PruneAnsweredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		`DELETE FROM chat_requests WHERE status='answered' AND created_at < ?`,
		cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
