package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stake-plus/dao-monitor/src/gov"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLStore keeps notified flags in the notified_proposals table.
type SQLStore struct {
	db  *gorm.DB
	now func() time.Time
}

// OpenSQL migrates the notified_proposals table and returns a store on db.
// Migration failures surface as ErrCorrupt since the state cannot be trusted.
func OpenSQL(db *gorm.DB) (*SQLStore, error) {
	if db == nil {
		return nil, errors.New("store: nil database")
	}
	if err := db.AutoMigrate(&gov.NotifiedProposal{}); err != nil {
		return nil, fmt.Errorf("%w: migrate notified_proposals: %v", ErrCorrupt, err)
	}
	return &SQLStore{db: db, now: time.Now}, nil
}

func (s *SQLStore) IsNotified(ctx context.Context, voteID int64, category gov.Category) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&gov.NotifiedProposal{}).
		Where("vote_id = ? AND category = ?", voteID, string(category)).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("query notified flag: %w", err)
	}
	return count > 0, nil
}

func (s *SQLStore) MarkNotified(ctx context.Context, voteID int64, category gov.Category) error {
	row := gov.NotifiedProposal{
		VoteID:     voteID,
		Category:   string(category),
		NotifiedAt: s.now().UTC(),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("insert notified flag: %w", err)
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context, category gov.Category) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).
		Model(&gov.NotifiedProposal{}).
		Where("category = ?", string(category)).
		Order("notified_at ASC, id ASC").
		Pluck("vote_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list notified flags: %w", err)
	}
	return ids, nil
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
