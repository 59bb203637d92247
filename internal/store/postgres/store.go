// Package postgres implements the stores on PostgreSQL through pgx.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/domain"
)

//go:embed schema.sql
var schema string

type Config struct {
	DSN         string
	MaxConns    int
	AutoMigrate bool
}

type Store struct {
	db *pgxpool.Pool
}

// Open connects and, when asked to, creates missing tables.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	poolConfig.MaxConnIdleTime = 10 * time.Minute

	db, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	s := &Store{db: db}
	if cfg.AutoMigrate {
		if err := s.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}
	log.Info().Str("module", "store.postgres").Str("host", poolConfig.ConnConfig.Host).Msg("connected")
	return s, nil
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) Append(ctx context.Context, msg domain.Message) (domain.Message, error) {
	query := `
		INSERT INTO messages (group_id, user_id, author_name, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	var id int64
	err := s.db.QueryRow(ctx, query,
		int64(msg.GroupID),
		int64(msg.AuthorID),
		msg.AuthorName,
		msg.Content,
		msg.CreatedAt,
	).Scan(&id)
	if err != nil {
		return domain.Message{}, fmt.Errorf("insert message: %w", err)
	}
	msg.ID = domain.MessageID(id)
	return msg, nil
}

func (s *Store) History(ctx context.Context, groupID domain.GroupID, after domain.MessageID, limit int) ([]domain.Message, error) {
	// A cursor that left the hot table (archived) compares as "before
	// everything", so the read starts from the oldest remaining row.
	query := `
		SELECT m.id, m.group_id, m.user_id, m.author_name, m.content, m.created_at
		FROM messages m
		LEFT JOIN messages c ON c.id = $2 AND c.group_id = m.group_id
		WHERE m.group_id = $1
		  AND (c.id IS NULL OR (m.created_at, m.id) > (c.created_at, c.id))
		ORDER BY m.created_at, m.id
		LIMIT $3
	`
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.db.Query(ctx, query, int64(groupID), int64(after), lim)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) ArchiveBefore(ctx context.Context, cutoff time.Time, batchSize int, archivedAt time.Time) (int, error) {
	query := `
		WITH batch AS (
			SELECT id FROM messages
			WHERE created_at < $1
			ORDER BY created_at, id
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		), moved AS (
			DELETE FROM messages m USING batch
			WHERE m.id = batch.id
			RETURNING m.id, m.group_id, m.user_id, m.author_name, m.content, m.created_at
		)
		INSERT INTO archived_messages (id, group_id, user_id, author_name, content, created_at, archived_at)
		SELECT id, group_id, user_id, author_name, content, created_at, $3 FROM moved
	`
	var lim any
	if batchSize > 0 {
		lim = batchSize
	}
	var moved int64
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query, cutoff, lim, archivedAt)
		if err != nil {
			return err
		}
		moved = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("archive batch: %w", err)
	}
	return int(moved), nil
}

func (s *Store) Archived(ctx context.Context, groupID domain.GroupID) ([]domain.ArchivedMessage, error) {
	query := `
		SELECT id, group_id, user_id, author_name, content, created_at, archived_at
		FROM archived_messages
		WHERE group_id = $1
		ORDER BY created_at, id
	`
	rows, err := s.db.Query(ctx, query, int64(groupID))
	if err != nil {
		return nil, fmt.Errorf("query archive: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ArchivedMessage, 0)
	for rows.Next() {
		var (
			a                     domain.ArchivedMessage
			id, gid, uid          int64
			createdAt, archivedAt time.Time
		)
		if err := rows.Scan(&id, &gid, &uid, &a.AuthorName, &a.Content, &createdAt, &archivedAt); err != nil {
			return nil, fmt.Errorf("scan archived message: %w", err)
		}
		a.ID = domain.MessageID(id)
		a.GroupID = domain.GroupID(gid)
		a.AuthorID = domain.UserID(uid)
		a.CreatedAt = createdAt.UTC()
		a.ArchivedAt = archivedAt.UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) IsMember(ctx context.Context, userID domain.UserID, groupID domain.GroupID) (bool, error) {
	query := `SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2 LIMIT 1`

	var exists int
	err := s.db.QueryRow(ctx, query, int64(groupID), int64(userID)).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return true, nil
}

func (s *Store) IsAdmin(ctx context.Context, userID domain.UserID, groupID domain.GroupID) (bool, error) {
	query := `SELECT is_admin FROM group_members WHERE group_id = $1 AND user_id = $2`

	var admin bool
	err := s.db.QueryRow(ctx, query, int64(groupID), int64(userID)).Scan(&admin)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check admin: %w", err)
	}
	return admin, nil
}

func (s *Store) MembersOf(ctx context.Context, groupID domain.GroupID) ([]domain.Member, error) {
	query := `SELECT user_id, is_admin FROM group_members WHERE group_id = $1 ORDER BY user_id`

	rows, err := s.db.Query(ctx, query, int64(groupID))
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Member, 0)
	for rows.Next() {
		var (
			uid   int64
			admin bool
		)
		if err := rows.Scan(&uid, &admin); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, domain.Member{UserID: domain.UserID(uid), IsAdmin: admin})
	}
	return out, rows.Err()
}

func (s *Store) CreateGroup(ctx context.Context, name string, creator domain.UserID) (domain.Group, error) {
	g := domain.Group{Name: name, CreatorID: creator}
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var id int64
		err := tx.QueryRow(ctx,
			`INSERT INTO groups (name, creator_id) VALUES ($1, $2) RETURNING id, created_at`,
			name, int64(creator),
		).Scan(&id, &g.CreatedAt)
		if err != nil {
			return err
		}
		g.ID = domain.GroupID(id)
		_, err = tx.Exec(ctx,
			`INSERT INTO group_members (user_id, group_id, is_admin) VALUES ($1, $2, TRUE)`,
			int64(creator), id,
		)
		return err
	})
	if err != nil {
		return domain.Group{}, fmt.Errorf("create group: %w", err)
	}
	g.CreatedAt = g.CreatedAt.UTC()
	return g, nil
}

func (s *Store) AddMember(ctx context.Context, groupID domain.GroupID, userID domain.UserID) error {
	query := `
		INSERT INTO group_members (user_id, group_id)
		SELECT $2, id FROM groups WHERE id = $1
		ON CONFLICT (user_id, group_id) DO NOTHING
	`
	tag, err := s.db.Exec(ctx, query, int64(groupID), int64(userID))
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		exists, err := s.IsMember(ctx, userID, groupID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrNotFound
		}
	}
	return nil
}

func (s *Store) RemoveMember(ctx context.Context, groupID domain.GroupID, userID domain.UserID) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`,
		int64(groupID), int64(userID),
	)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) SetAdmin(ctx context.Context, groupID domain.GroupID, userID domain.UserID, isAdmin bool) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE group_members SET is_admin = $3 WHERE group_id = $1 AND user_id = $2`,
		int64(groupID), int64(userID), isAdmin,
	)
	if err != nil {
		return fmt.Errorf("set admin: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) DisplayName(ctx context.Context, userID domain.UserID) (string, error) {
	var name string
	err := s.db.QueryRow(ctx, `SELECT name FROM users WHERE id = $1`, int64(userID)).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("find user: %w", err)
	}
	return name, nil
}

func (s *Store) PutUser(ctx context.Context, user domain.User) error {
	query := `
		INSERT INTO users (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
	`
	if _, err := s.db.Exec(ctx, query, int64(user.ID), user.Username); err != nil {
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Store) Close() error {
	s.db.Close()
	return nil
}

func scanMessage(rows pgx.Rows) (domain.Message, error) {
	var (
		m            domain.Message
		id, gid, uid int64
	)
	if err := rows.Scan(&id, &gid, &uid, &m.AuthorName, &m.Content, &m.CreatedAt); err != nil {
		return domain.Message{}, fmt.Errorf("scan message: %w", err)
	}
	m.ID = domain.MessageID(id)
	m.GroupID = domain.GroupID(gid)
	m.AuthorID = domain.UserID(uid)
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}
