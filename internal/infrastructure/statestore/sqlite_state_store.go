package statestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"eavview/internal/errs"
	"eavview/internal/infrastructure/persistence/model"
	"eavview/internal/ports"
)

type SQLiteStateStore struct {
	db *gorm.DB
}

var _ ports.ViewStateStore = (*SQLiteStateStore)(nil)

func NewSQLiteStateStore(db *gorm.DB) *SQLiteStateStore {
	return &SQLiteStateStore{db: db}
}

// Migrate creates the state table.
func (s *SQLiteStateStore) Migrate(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := s.db.WithContext(ctx).AutoMigrate(&model.ViewState{}); err != nil {
		return errs.Wrap(err, "auto migrate view state")
	}
	return nil
}

func (s *SQLiteStateStore) Get(ctx context.Context, view string) (ports.ViewState, bool, error) {
	if err := checkContext(ctx); err != nil {
		return ports.ViewState{}, false, err
	}

	name := strings.TrimSpace(view)
	if name == "" {
		return ports.ViewState{}, false, errors.New("view is required")
	}

	var row model.ViewState
	if err := s.db.WithContext(ctx).Where("view_name = ?", name).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.ViewState{}, false, nil
		}
		return ports.ViewState{}, false, errs.Wrap(err, "query view state")
	}

	return mapViewState(row), true, nil
}

func (s *SQLiteStateStore) Put(ctx context.Context, state ports.ViewState) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	name := strings.TrimSpace(state.View)
	if name == "" {
		return errors.New("view is required")
	}

	appliedAt := state.AppliedAt
	if appliedAt.IsZero() {
		appliedAt = time.Now()
	}
	row := model.ViewState{
		ViewName:    name,
		Fingerprint: state.Fingerprint,
		Dialect:     state.Dialect,
		DDL:         state.DDL,
		RunID:       state.RunID,
		RowCount:    state.RowCount,
		AppliedAt:   appliedAt.UTC().Format(time.RFC3339Nano),
	}

	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "view_name"}},
		DoUpdates: clause.Assignments(map[string]any{
			"fingerprint": row.Fingerprint,
			"dialect":     row.Dialect,
			"ddl":         row.DDL,
			"run_id":      row.RunID,
			"row_count":   row.RowCount,
			"applied_at":  row.AppliedAt,
		}),
	}).Create(&row).Error; err != nil {
		return errs.Wrap(err, "upsert view state")
	}

	return nil
}

func (s *SQLiteStateStore) Delete(ctx context.Context, view string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	name := strings.TrimSpace(view)
	if name == "" {
		return errors.New("view is required")
	}

	if err := s.db.WithContext(ctx).Where("view_name = ?", name).Delete(&model.ViewState{}).Error; err != nil {
		return errs.Wrap(err, "delete view state")
	}
	return nil
}

func (s *SQLiteStateStore) List(ctx context.Context) ([]ports.ViewState, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	var rows []model.ViewState
	if err := s.db.WithContext(ctx).Order("view_name asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "list view states")
	}

	items := make([]ports.ViewState, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapViewState(row))
	}
	return items, nil
}

func checkContext(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}
	return nil
}

func mapViewState(row model.ViewState) ports.ViewState {
	appliedAt, _ := time.Parse(time.RFC3339Nano, row.AppliedAt)
	return ports.ViewState{
		View:        row.ViewName,
		Fingerprint: row.Fingerprint,
		Dialect:     row.Dialect,
		DDL:         row.DDL,
		RunID:       row.RunID,
		RowCount:    row.RowCount,
		AppliedAt:   appliedAt,
	}
}
