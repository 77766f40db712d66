package memo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository defines memo persistence operations.
type Repository interface {
	Insert(ctx context.Context, m *Memo) error
	GetByID(ctx context.Context, id, userID uuid.UUID) (*Memo, error)
	ListByUser(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]Memo, int64, error)
}

// memoChannel is the pg_notify channel that realtime list consumers
// listen on.
const memoChannel = "memo_events"

// PostgresRepository implements Repository using pgx.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new memo repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Insert persists a fully-validated memo and notifies listeners in the
// same transaction, so a consumer can never observe a committed row
// whose notification was lost.
func (r *PostgresRepository) Insert(ctx context.Context, m *Memo) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}

	entities, err := json.Marshal(m.Entities)
	if err != nil {
		return fmt.Errorf("marshaling entities: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning insert transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO memos (id, user_id, raw_text, summary, content_body, primary_type, entities, status, audio_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at`,
		m.ID, m.UserID, m.RawText, m.Summary, m.ContentBody, m.PrimaryType, entities, m.Status, m.AudioURL,
	).Scan(&m.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting memo: %w", err)
	}

	notification, err := json.Marshal(map[string]string{
		"event":   "memo_inserted",
		"memo_id": m.ID.String(),
		"user_id": m.UserID.String(),
	})
	if err != nil {
		return fmt.Errorf("marshaling notification: %w", err)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, memoChannel, string(notification)); err != nil {
		return fmt.Errorf("notifying memo listeners: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing memo insert: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id, userID uuid.UUID) (*Memo, error) {
	var m Memo
	var entities []byte
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, raw_text, summary, content_body, primary_type, entities, status, audio_url, created_at
		 FROM memos
		 WHERE id = $1 AND user_id = $2`,
		id, userID,
	).Scan(&m.ID, &m.UserID, &m.RawText, &m.Summary, &m.ContentBody, &m.PrimaryType, &entities, &m.Status, &m.AudioURL, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting memo: %w", err)
	}
	if err := json.Unmarshal(entities, &m.Entities); err != nil {
		return nil, fmt.Errorf("unmarshaling memo entities: %w", err)
	}
	return &m, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]Memo, int64, error) {
	offset := (page - 1) * pageSize
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, raw_text, summary, content_body, primary_type, entities, status, audio_url, created_at
		 FROM memos
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		userID, pageSize, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("listing memos: %w", err)
	}
	defer rows.Close()

	var memos []Memo
	for rows.Next() {
		var m Memo
		var entities []byte
		if err := rows.Scan(&m.ID, &m.UserID, &m.RawText, &m.Summary, &m.ContentBody, &m.PrimaryType, &entities, &m.Status, &m.AudioURL, &m.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning memo: %w", err)
		}
		if err := json.Unmarshal(entities, &m.Entities); err != nil {
			return nil, 0, fmt.Errorf("unmarshaling memo entities: %w", err)
		}
		memos = append(memos, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM memos WHERE user_id = $1`, userID).Scan(&count); err != nil {
		return nil, 0, fmt.Errorf("counting memos: %w", err)
	}
	return memos, count, nil
}

var _ Repository = (*PostgresRepository)(nil)
