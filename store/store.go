// Package store persists the workflow audit trail to SQLite: run records,
// per-attempt spec results and state snapshots, and the extracted items.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/specflow/engine"
)

// ErrRunNotFound is returned when a run ID has no persisted record.
var ErrRunNotFound = errors.New("run not found")

// Store wraps the database handle. It is safe for concurrent use.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open opens (or creates) the SQLite database at path and migrates the
// schema. Use ":memory:" for an ephemeral database.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&runRow{}, &attemptRow{}, &itemRow{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	logger.Debug("store opened", zap.String("path", path))
	return &Store{db: db, logger: logger.With(zap.String("component", "store"))}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveRun persists a finished run record with all of its step attempts.
// Saving the same run ID again replaces the previous record.
func (s *Store) SaveRun(ctx context.Context, record *engine.RunRecord) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", record.RunID).Delete(&attemptRow{}).Error; err != nil {
			return err
		}
		row := runRow{
			RunID:        record.RunID,
			WorkflowName: record.WorkflowName,
			Status:       string(record.Status),
			Error:        record.Error,
			StartedAt:    record.StartedAt,
			FinishedAt:   record.FinishedAt,
		}
		if err := tx.Save(&row).Error; err != nil {
			return fmt.Errorf("save run: %w", err)
		}
		for _, attempt := range record.Steps {
			ar := newAttemptRow(record.RunID, attempt)
			if err := tx.Create(&ar).Error; err != nil {
				return fmt.Errorf("save attempt %s#%d: %w", attempt.StepID, attempt.Attempt, err)
			}
		}
		s.logger.Debug("run saved",
			zap.String("run_id", record.RunID),
			zap.Int("attempts", len(record.Steps)),
		)
		return nil
	})
}

// SaveItems persists the extracted items of a run. Items missing a title or
// carrying unexpected shapes are stored with zero values rather than
// rejected; the pipeline's specs gate quality upstream.
func (s *Store) SaveItems(ctx context.Context, runID string, items []any) error {
	if len(items) == 0 {
		return nil
	}
	rows := make([]itemRow, 0, len(items))
	for _, raw := range items {
		item, _ := raw.(map[string]any)
		title, _ := item["title"].(string)
		itemType, _ := item["item_type"].(string)
		desc, _ := item["description"].(string)
		conf, _ := item["confidence"].(float64)
		src, _ := item["source_file"].(string)
		rows = append(rows, itemRow{
			RunID:       runID,
			Title:       title,
			ItemType:    itemType,
			Description: desc,
			Tags:        toJSON(item["tags"]),
			Confidence:  conf,
			SourceFile:  src,
		})
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("save items: %w", err)
	}
	return nil
}

// GetRun loads a run record and its attempts, ordered as executed.
func (s *Store) GetRun(ctx context.Context, runID string) (*engine.RunRecord, error) {
	var row runRow
	err := s.db.WithContext(ctx).First(&row, "run_id = ?", runID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}

	var attempts []attemptRow
	if err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("id asc").
		Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("load attempts: %w", err)
	}

	record := &engine.RunRecord{
		RunID:        row.RunID,
		WorkflowName: row.WorkflowName,
		Status:       engine.RunStatus(row.Status),
		Error:        row.Error,
		StartedAt:    row.StartedAt,
		FinishedAt:   row.FinishedAt,
		Steps:        make([]*engine.StepAttempt, 0, len(attempts)),
	}
	for _, ar := range attempts {
		record.Steps = append(record.Steps, ar.toAttempt())
	}
	return record, nil
}

// RunSummary is a listing row for recent runs.
type RunSummary struct {
	RunID        string
	WorkflowName string
	Status       engine.RunStatus
	Attempts     int
	Error        string
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []runRow
	if err := s.db.WithContext(ctx).
		Order("started_at desc").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	summaries := make([]RunSummary, 0, len(rows))
	for _, row := range rows {
		var count int64
		if err := s.db.WithContext(ctx).
			Model(&attemptRow{}).
			Where("run_id = ?", row.RunID).
			Count(&count).Error; err != nil {
			return nil, fmt.Errorf("count attempts: %w", err)
		}
		summaries = append(summaries, RunSummary{
			RunID:        row.RunID,
			WorkflowName: row.WorkflowName,
			Status:       engine.RunStatus(row.Status),
			Attempts:     int(count),
			Error:        row.Error,
		})
	}
	return summaries, nil
}

// ListItems returns the extracted items persisted for a run.
func (s *Store) ListItems(ctx context.Context, runID string) ([]map[string]any, error) {
	var rows []itemRow
	if err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("id asc").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	items := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		items = append(items, map[string]any{
			"title":       row.Title,
			"item_type":   row.ItemType,
			"description": row.Description,
			"tags":        fromJSON[[]any](row.Tags),
			"confidence":  row.Confidence,
			"source_file": row.SourceFile,
		})
	}
	return items, nil
}
