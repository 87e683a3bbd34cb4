package archive

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
)

var ErrEmptySegment = errors.New("segment text is empty")

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&Segment{})
}

func (s *Store) Append(ctx context.Context, seg *Segment) error {
	seg.Text = strings.TrimSpace(seg.Text)
	if seg.Text == "" {
		return ErrEmptySegment
	}
	return s.db.WithContext(ctx).Create(seg).Error
}

func (s *Store) ListBySession(ctx context.Context, sessionID string) ([]Segment, error) {
	var segments []Segment
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("offset_ms ASC").
		Order("id ASC").
		Find(&segments).Error
	return segments, err
}

func (s *Store) CountBySession(ctx context.Context, sessionID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Segment{}).Where("session_id = ?", sessionID).Count(&count).Error
	return count, err
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
