package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/foxseedlab/mojinote/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) repository.Repository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) CreateSession(ctx context.Context, input repository.CreateSessionInput) (*repository.Session, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO sessions (id, guild_id, channel_id, started_at, status)
		 VALUES ($1, $2, $3, $4, 'running')
		 RETURNING id, guild_id, channel_id, started_at, ended_at, status, stop_reason`,
		input.ID, input.GuildID, input.ChannelID, input.StartedAt)
	s, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) UpdateSessionCompleted(ctx context.Context, input repository.CompleteSessionInput) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE sessions SET status = 'completed', ended_at = $2, stop_reason = $3 WHERE id = $1`,
		input.SessionID, input.EndedAt, input.StopReason)
	return err
}

func (r *PostgresRepository) GetRunningSessionByChannel(ctx context.Context, guildID, channelID string) (*repository.Session, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, guild_id, channel_id, started_at, ended_at, status, stop_reason
		 FROM sessions WHERE guild_id = $1 AND channel_id = $2 AND status = 'running'
		 LIMIT 1`,
		guildID, channelID)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

func (r *PostgresRepository) InsertSegment(ctx context.Context, input repository.InsertSegmentInput) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO transcript_segments (session_id, chunk_id, sequence, content, spoken_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (session_id, chunk_id) DO NOTHING`,
		input.SessionID, input.ChunkID, input.Sequence, input.Content, input.SpokenAt)
	return err
}

func (r *PostgresRepository) ListSegmentsBySessionID(ctx context.Context, sessionID string) ([]repository.TranscriptSegment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, chunk_id, sequence, content, spoken_at, created_at
		 FROM transcript_segments WHERE session_id = $1 ORDER BY sequence ASC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []repository.TranscriptSegment
	for rows.Next() {
		var seg repository.TranscriptSegment
		if err := rows.Scan(&seg.ID, &seg.SessionID, &seg.ChunkID, &seg.Sequence, &seg.Content, &seg.SpokenAt, &seg.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, seg)
	}
	return list, rows.Err()
}

func (r *PostgresRepository) SaveNote(ctx context.Context, input repository.SaveNoteInput) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin note transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO notes (guild_id, channel_id, session_id, content, format_boundary, polish_boundary, updated_at)
		 VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6, $7)
		 ON CONFLICT (guild_id, channel_id) DO UPDATE SET
		   session_id = EXCLUDED.session_id,
		   content = EXCLUDED.content,
		   format_boundary = EXCLUDED.format_boundary,
		   polish_boundary = EXCLUDED.polish_boundary,
		   updated_at = EXCLUDED.updated_at`,
		input.GuildID, input.ChannelID, input.SessionID, input.Content,
		input.FormatBoundary, input.PolishBoundary, input.SavedAt); err != nil {
		return fmt.Errorf("upsert note: %w", err)
	}

	if input.Final && input.SessionID != "" {
		if _, err := tx.Exec(ctx,
			`INSERT INTO session_notes (session_id, content, created_at)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (session_id) DO UPDATE SET content = EXCLUDED.content, created_at = EXCLUDED.created_at`,
			input.SessionID, input.Content, input.SavedAt); err != nil {
			return fmt.Errorf("insert session note: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (r *PostgresRepository) GetNote(ctx context.Context, guildID, channelID string) (*repository.Note, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT guild_id, channel_id, COALESCE(session_id::text, ''), content, format_boundary, polish_boundary, updated_at
		 FROM notes WHERE guild_id = $1 AND channel_id = $2`,
		guildID, channelID)
	var n repository.Note
	err := row.Scan(&n.GuildID, &n.ChannelID, &n.SessionID, &n.Content, &n.FormatBoundary, &n.PolishBoundary, &n.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select note: %w", err)
	}
	return &n, nil
}

func scanSession(row pgx.Row) (*repository.Session, error) {
	var s repository.Session
	var endedAt *time.Time
	if err := row.Scan(&s.ID, &s.GuildID, &s.ChannelID, &s.StartedAt, &endedAt, &s.Status, &s.StopReason); err != nil {
		return nil, err
	}
	s.EndedAt = endedAt
	return &s, nil
}
