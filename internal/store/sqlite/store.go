// Package sqlite implements the stores on an embedded SQLite database
// through gorm. Suitable for single-node deployments.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/dkeye/Parley/internal/domain"
)

type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the database at dsn, e.g. "file:parley.db" or
// ":memory:". Writes are serialized on a single connection.
func Open(dsn string, autoMigrate bool) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if autoMigrate {
		if err := db.AutoMigrate(&userRow{}, &groupRow{}, &memberRow{}, &messageRow{}, &archivedRow{}); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	log.Info().Str("module", "store.sqlite").Str("dsn", dsn).Msg("opened")
	return &Store{db: db}, nil
}

func (s *Store) Append(ctx context.Context, msg domain.Message) (domain.Message, error) {
	row := messageRow{
		GroupID:     int64(msg.GroupID),
		UserID:      int64(msg.AuthorID),
		AuthorName:  msg.AuthorName,
		Content:     msg.Content,
		CreatedAtUs: msg.CreatedAt.UnixMicro(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return domain.Message{}, fmt.Errorf("insert message: %w", err)
	}
	msg.ID = domain.MessageID(row.ID)
	return msg, nil
}

func (s *Store) History(ctx context.Context, groupID domain.GroupID, after domain.MessageID, limit int) ([]domain.Message, error) {
	q := s.db.WithContext(ctx).Where("group_id = ?", int64(groupID))
	if after > 0 {
		var cursor messageRow
		err := s.db.WithContext(ctx).
			Where("id = ? AND group_id = ?", int64(after), int64(groupID)).
			Limit(1).Find(&cursor).Error
		if err != nil {
			return nil, fmt.Errorf("find cursor: %w", err)
		}
		if cursor.ID != 0 {
			q = q.Where("(created_at_us > ? OR (created_at_us = ? AND id > ?))",
				cursor.CreatedAtUs, cursor.CreatedAtUs, cursor.ID)
		}
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []messageRow
	if err := q.Order("created_at_us, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	out := make([]domain.Message, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (s *Store) ArchiveBefore(ctx context.Context, cutoff time.Time, batchSize int, archivedAt time.Time) (int, error) {
	moved := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("created_at_us < ?", cutoff.UnixMicro()).Order("created_at_us, id")
		if batchSize > 0 {
			q = q.Limit(batchSize)
		}
		var rows []messageRow
		if err := q.Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		archived := make([]archivedRow, len(rows))
		ids := make([]int64, len(rows))
		for i, r := range rows {
			ids[i] = r.ID
			archived[i] = archivedRow{
				ID:           r.ID,
				GroupID:      r.GroupID,
				UserID:       r.UserID,
				AuthorName:   r.AuthorName,
				Content:      r.Content,
				CreatedAtUs:  r.CreatedAtUs,
				ArchivedAtUs: archivedAt.UnixMicro(),
			}
		}
		if err := tx.Create(&archived).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&messageRow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != int64(len(ids)) {
			return fmt.Errorf("deleted %d of %d archived rows", res.RowsAffected, len(ids))
		}
		moved = len(rows)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("archive batch: %w", err)
	}
	return moved, nil
}

func (s *Store) Archived(ctx context.Context, groupID domain.GroupID) ([]domain.ArchivedMessage, error) {
	var rows []archivedRow
	err := s.db.WithContext(ctx).
		Where("group_id = ?", int64(groupID)).
		Order("created_at_us, id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query archive: %w", err)
	}
	out := make([]domain.ArchivedMessage, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (s *Store) membership(ctx context.Context, userID domain.UserID, groupID domain.GroupID) (memberRow, bool, error) {
	var row memberRow
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND group_id = ?", int64(userID), int64(groupID)).
		Limit(1).Find(&row)
	if res.Error != nil {
		return memberRow{}, false, fmt.Errorf("check membership: %w", res.Error)
	}
	return row, res.RowsAffected > 0, nil
}

func (s *Store) IsMember(ctx context.Context, userID domain.UserID, groupID domain.GroupID) (bool, error) {
	_, ok, err := s.membership(ctx, userID, groupID)
	return ok, err
}

func (s *Store) IsAdmin(ctx context.Context, userID domain.UserID, groupID domain.GroupID) (bool, error) {
	row, ok, err := s.membership(ctx, userID, groupID)
	return ok && row.IsAdmin, err
}

func (s *Store) MembersOf(ctx context.Context, groupID domain.GroupID) ([]domain.Member, error) {
	var rows []memberRow
	err := s.db.WithContext(ctx).Where("group_id = ?", int64(groupID)).Order("user_id").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	out := make([]domain.Member, len(rows))
	for i, r := range rows {
		out[i] = domain.Member{UserID: domain.UserID(r.UserID), IsAdmin: r.IsAdmin}
	}
	return out, nil
}

func (s *Store) CreateGroup(ctx context.Context, name string, creator domain.UserID) (domain.Group, error) {
	row := groupRow{Name: name, CreatorID: int64(creator), CreatedAtUs: time.Now().UnixMicro()}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return tx.Create(&memberRow{UserID: int64(creator), GroupID: row.ID, IsAdmin: true}).Error
	})
	if err != nil {
		return domain.Group{}, fmt.Errorf("create group: %w", err)
	}
	return domain.Group{
		ID:        domain.GroupID(row.ID),
		Name:      row.Name,
		CreatorID: creator,
		CreatedAt: fromMicros(row.CreatedAtUs),
	}, nil
}

func (s *Store) AddMember(ctx context.Context, groupID domain.GroupID, userID domain.UserID) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&groupRow{}).Where("id = ?", int64(groupID)).Count(&count).Error; err != nil {
		return fmt.Errorf("find group: %w", err)
	}
	if count == 0 {
		return domain.ErrNotFound
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&memberRow{UserID: int64(userID), GroupID: int64(groupID)}).Error
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

func (s *Store) RemoveMember(ctx context.Context, groupID domain.GroupID, userID domain.UserID) error {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND group_id = ?", int64(userID), int64(groupID)).
		Delete(&memberRow{})
	if res.Error != nil {
		return fmt.Errorf("remove member: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) SetAdmin(ctx context.Context, groupID domain.GroupID, userID domain.UserID, isAdmin bool) error {
	res := s.db.WithContext(ctx).Model(&memberRow{}).
		Where("user_id = ? AND group_id = ?", int64(userID), int64(groupID)).
		Update("is_admin", isAdmin)
	if res.Error != nil {
		return fmt.Errorf("set admin: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) DisplayName(ctx context.Context, userID domain.UserID) (string, error) {
	var row userRow
	err := s.db.WithContext(ctx).First(&row, int64(userID)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("find user: %w", err)
	}
	return row.Name, nil
}

func (s *Store) PutUser(ctx context.Context, user domain.User) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name"}),
		}).
		Create(&userRow{ID: int64(user.ID), Name: user.Username}).Error
	if err != nil {
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
