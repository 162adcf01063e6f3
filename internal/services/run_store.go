/**
 * @description
 * Persistence for analysis runs.
 * A run summary and all of its prompt results are written in one transaction,
 * so a run is either fully visible or absent.
 *
 * @dependencies
 * - gorm.io/gorm
 * - github.com/jackc/pgx/v5/pgconn (error inspection)
 */

package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stockscope/backend/internal/logger"
	"github.com/stockscope/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrRunNotFound = errors.New("run not found")

// PersistenceError means the store could not durably record or read a run.
// It is the only error that fails an analysis.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

type RunStore struct {
	DB *gorm.DB
}

func NewRunStore(db *gorm.DB) *RunStore {
	return &RunStore{DB: db}
}

// SaveRun inserts the run summary and its results atomically.
func (s *RunStore) SaveRun(ctx context.Context, run *models.Run) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(run).Error; err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		if len(run.Results) == 0 {
			return nil
		}
		for i := range run.Results {
			run.Results[i].RunID = run.RunID
		}
		if err := tx.CreateInBatches(run.Results, 100).Error; err != nil {
			return fmt.Errorf("insert prompt results: %w", err)
		}
		return nil
	})
	if err != nil {
		logStoreError("save run", err)
		return &PersistenceError{Op: "save run", Err: err}
	}
	return nil
}

// GetRun loads a run with its results in prompt order.
func (s *RunStore) GetRun(ctx context.Context, runID uuid.UUID) (*models.Run, error) {
	var run models.Run
	err := s.DB.WithContext(ctx).
		Preload("Results", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("run_id = ?", runID).
		First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		logStoreError("get run", err)
		return nil, &PersistenceError{Op: "get run", Err: err}
	}
	return &run, nil
}

// ListRecentRuns returns the newest run summaries, without results.
func (s *RunStore) ListRecentRuns(ctx context.Context, limit int) ([]models.Run, error) {
	if limit <= 0 {
		limit = 10
	}
	var runs []models.Run
	if err := s.DB.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		logStoreError("list runs", err)
		return nil, &PersistenceError{Op: "list runs", Err: err}
	}
	return runs, nil
}

// ListRunsForTicker returns a ticker's run history, newest first.
func (s *RunStore) ListRunsForTicker(ctx context.Context, ticker string, limit int) ([]models.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []models.Run
	err := s.DB.WithContext(ctx).
		Where("ticker = ?", ticker).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		logStoreError("list ticker runs", err)
		return nil, &PersistenceError{Op: "list ticker runs", Err: err}
	}
	return runs, nil
}

func logStoreError(op string, err error) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		logger.Error("Run store %s failed: SQLSTATE %s: %s (%s)", op, pgErr.Code, pgErr.Message, pgErr.Detail)
		return
	}
	logger.Error("Run store %s failed: %v", op, err)
}
