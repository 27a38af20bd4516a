package projector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"eavview/internal/bootstrap/logging"
	"eavview/internal/domain/eav"
	"eavview/internal/errs"
	"eavview/internal/ports"
)

// ProjectView installs spec as a view, replacing any view of the same name.
// The spec does not have to be part of the catalog.
func (s *Service) ProjectView(ctx context.Context, spec eav.ViewSpec) (ViewResult, error) {
	if err := checkContext(ctx); err != nil {
		return ViewResult{}, err
	}

	s.projectMu.Lock()
	defer s.projectMu.Unlock()

	result := s.project(ctx, s.newRunID(), spec, true)
	return result, result.Err
}

// ProjectAll projects every catalog view in catalog order. Views whose
// definition is unchanged since the last run are skipped unless force is
// set. A failing view does not stop the batch.
func (s *Service) ProjectAll(ctx context.Context, force bool) (BatchResult, error) {
	return s.Apply(ctx, nil, force)
}

// Apply projects the named catalog views, or all of them when names is
// empty.
func (s *Service) Apply(ctx context.Context, names []string, force bool) (BatchResult, error) {
	if err := checkContext(ctx); err != nil {
		return BatchResult{}, err
	}

	specs, err := s.selectViews(names)
	if err != nil {
		return BatchResult{}, err
	}

	s.projectMu.Lock()
	defer s.projectMu.Unlock()

	batch := BatchResult{RunID: s.newRunID()}
	logCtx := logging.WithAttrs(ctx,
		slog.String("component", "usecase.projector"),
		slog.String("run_id", batch.RunID),
	)
	logging.Info(logCtx, "projection started", slog.Int("views", len(specs)), slog.Bool("force", force))

	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			batch.Results = append(batch.Results, ViewResult{
				View:    spec.Name,
				Outcome: OutcomeFailed,
				Err:     errs.Wrap(err, "check context"),
			})
			continue
		}
		batch.Results = append(batch.Results, s.project(logCtx, batch.RunID, spec, force))
	}

	logging.Info(logCtx, "projection finished",
		slog.Int("applied", batch.Count(OutcomeApplied)),
		slog.Int("unchanged", batch.Count(OutcomeUnchanged)),
		slog.Int("failed", batch.Count(OutcomeFailed)),
	)
	return batch, batch.Err()
}

func (s *Service) selectViews(names []string) ([]eav.ViewSpec, error) {
	catalog := s.Catalog()
	if len(names) == 0 {
		return catalog.Views, nil
	}

	specs := make([]eav.ViewSpec, 0, len(names))
	for _, name := range names {
		spec, ok := catalog.View(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", eav.ErrUnknownView, name)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func (s *Service) project(ctx context.Context, runID string, spec eav.ViewSpec, force bool) ViewResult {
	logCtx := logging.WithAttrs(ctx,
		slog.String("component", "usecase.projector"),
		slog.String("run_id", runID),
		slog.String("view", spec.Name),
	)
	result := ViewResult{View: spec.Name, Outcome: OutcomeFailed}

	def, err := eav.Build(spec, s.dialect)
	if err != nil {
		result.Err = err
		logging.Error(logCtx, "view spec rejected", slog.Any("err", errs.Loggable(err)))
		return result
	}
	spec = spec.Normalized()
	result.View = def.View
	result.Fingerprint = def.Fingerprint

	if !force {
		unchanged, err := s.unchanged(ctx, def)
		if err != nil {
			logging.Warn(logCtx, "view state lookup failed, projecting anyway", slog.Any("err", errs.Loggable(err)))
		} else if unchanged {
			result.Outcome = OutcomeUnchanged
			logging.Debug(logCtx, "view unchanged, skipped")
			return result
		}
	}

	if err := s.checkSources(ctx, spec); err != nil {
		result.Err = err
		logging.Error(logCtx, "view not projected", slog.Any("err", errs.Loggable(err)))
		return result
	}

	err = s.uow.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.ExecDDL(txCtx, def.Statements); err != nil {
			return err
		}
		if s.opts.VerifyColumns {
			if err := s.checkColumns(txCtx, def); err != nil {
				return err
			}
		}
		rows, err := s.repo.CountRows(txCtx, def.View)
		if err != nil {
			return err
		}
		result.Rows = rows
		return nil
	})
	if err != nil {
		result.Err = asSchemaError(def.View, err)
		logging.Error(logCtx, "view not projected", slog.Any("err", errs.Loggable(result.Err)))
		return result
	}

	if s.opts.AuditCoercions {
		result.Nulled = s.auditCoercions(logCtx, spec, def)
	}

	if err := s.state.Put(ctx, ports.ViewState{
		View:        def.View,
		Fingerprint: def.Fingerprint,
		Dialect:     def.Dialect,
		DDL:         strings.Join(def.Statements, ";\n"),
		RunID:       runID,
		RowCount:    result.Rows,
		AppliedAt:   s.now(),
	}); err != nil {
		result.Err = errs.Wrapf(err, "record state of %s", def.View)
		logging.Error(logCtx, "view projected but state not recorded", slog.Any("err", errs.Loggable(result.Err)))
		return result
	}

	result.Outcome = OutcomeApplied
	logging.Info(logCtx, "view projected", slog.Int64("rows", result.Rows), slog.String("fingerprint", shortFingerprint(def.Fingerprint)))
	return result
}

func (s *Service) unchanged(ctx context.Context, def eav.ViewDefinition) (bool, error) {
	state, found, err := s.state.Get(ctx, def.View)
	if err != nil || !found || state.Fingerprint != def.Fingerprint {
		return false, err
	}
	return s.repo.HasView(ctx, def.View)
}

func (s *Service) checkSources(ctx context.Context, spec eav.ViewSpec) error {
	for _, table := range spec.SourceTables() {
		exists, err := s.repo.HasTable(ctx, table)
		if err != nil {
			return errs.Wrapf(err, "check table %s", table)
		}
		if !exists {
			return eav.NewSchemaError(spec.Name, &eav.MissingTableError{Table: table})
		}
	}
	return nil
}

func (s *Service) checkColumns(ctx context.Context, def eav.ViewDefinition) error {
	columns, err := s.repo.Columns(ctx, def.View)
	if err != nil {
		return err
	}
	got := make([]string, 0, len(columns))
	for _, column := range columns {
		got = append(got, column.Name)
	}
	if !sameColumns(got, def.Columns) {
		return eav.NewSchemaError(def.View, fmt.Errorf("columns are [%s], declared [%s]",
			strings.Join(got, ", "), strings.Join(def.Columns, ", ")))
	}
	return nil
}

// auditCoercions never fails the projection; problems are logged.
func (s *Service) auditCoercions(ctx context.Context, spec eav.ViewSpec, def eav.ViewDefinition) map[string]int64 {
	nulled := make(map[string]int64)
	for _, column := range spec.Columns {
		if !column.Coerced() {
			continue
		}
		count, err := s.repo.Count(ctx, eav.AuditQuery(def, column, s.dialect))
		if err != nil {
			logging.Warn(ctx, "coercion audit failed", slog.String("column", column.Name), slog.Any("err", errs.Loggable(err)))
			continue
		}
		nulled[column.Name] = count
		if count > 0 {
			logging.Warn(ctx, "coercion nulled cells",
				slog.String("column", column.Name),
				slog.String("type", string(column.Type)),
				slog.Int64("cells", count),
			)
		}
	}
	return nulled
}

func asSchemaError(view string, err error) error {
	var schemaErr *eav.SchemaError
	if errors.As(err, &schemaErr) {
		return err
	}
	if errors.Is(err, ports.ErrMissingObject) {
		return eav.NewSchemaError(view, err)
	}
	return errs.Wrapf(err, "project %s", view)
}

func sameColumns(got []string, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if !strings.EqualFold(got[i], want[i]) {
			return false
		}
	}
	return true
}

func shortFingerprint(fingerprint string) string {
	if len(fingerprint) > 12 {
		return fingerprint[:12]
	}
	return fingerprint
}
