package projector

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"eavview/internal/bootstrap/logging"
	"eavview/internal/domain/eav"
	"eavview/internal/errs"
)

// Plan returns the generated definitions for the named views (all when
// names is empty) without touching the database.
func (s *Service) Plan(names ...string) ([]eav.ViewDefinition, error) {
	specs, err := s.selectViews(names)
	if err != nil {
		return nil, err
	}

	defs := make([]eav.ViewDefinition, 0, len(specs))
	for _, spec := range specs {
		def, err := eav.Build(spec, s.dialect)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Describe returns what a query agent needs to know about every catalog
// view.
func (s *Service) Describe() []eav.ViewDescription {
	catalog := s.Catalog()
	items := make([]eav.ViewDescription, 0, len(catalog.Views))
	for _, spec := range catalog.Views {
		items = append(items, eav.Describe(spec, s.dialect))
	}
	return items
}

type ViewStatus struct {
	View      string
	Installed bool
	// Recorded is set when the state store knows about the view.
	Recorded bool
	// Current holds when the recorded definition equals the one the
	// catalog generates now.
	Current   bool
	RunID     string
	Rows      int64
	AppliedAt time.Time
}

func (s *Service) Status(ctx context.Context) ([]ViewStatus, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	catalog := s.Catalog()
	items := make([]ViewStatus, 0, len(catalog.Views))
	for _, spec := range catalog.Views {
		def, err := eav.Build(spec, s.dialect)
		if err != nil {
			return nil, err
		}
		installed, err := s.repo.HasView(ctx, def.View)
		if err != nil {
			return nil, err
		}
		state, found, err := s.state.Get(ctx, def.View)
		if err != nil {
			return nil, err
		}

		items = append(items, ViewStatus{
			View:      def.View,
			Installed: installed,
			Recorded:  found,
			Current:   found && installed && state.Fingerprint == def.Fingerprint,
			RunID:     state.RunID,
			Rows:      state.RowCount,
			AppliedAt: state.AppliedAt,
		})
	}
	return items, nil
}

type Verification struct {
	View    string
	Columns []string
	Rows    int64
}

// Verify checks an installed view against its declaration. A missing view
// or a column mismatch is a SchemaError.
func (s *Service) Verify(ctx context.Context, name string) (Verification, error) {
	if err := checkContext(ctx); err != nil {
		return Verification{}, err
	}

	spec, err := s.view(name)
	if err != nil {
		return Verification{}, err
	}
	def, err := eav.Build(spec, s.dialect)
	if err != nil {
		return Verification{}, err
	}

	installed, err := s.repo.HasView(ctx, def.View)
	if err != nil {
		return Verification{}, err
	}
	if !installed {
		return Verification{}, eav.NewSchemaError(def.View, errors.New("view is not installed"))
	}

	if err := s.checkColumns(ctx, def); err != nil {
		return Verification{}, asSchemaError(def.View, err)
	}
	rows, err := s.repo.CountRows(ctx, def.View)
	if err != nil {
		return Verification{}, asSchemaError(def.View, err)
	}
	return Verification{View: def.View, Columns: def.Columns, Rows: rows}, nil
}

// VerifyAll verifies every catalog view and joins the failures.
func (s *Service) VerifyAll(ctx context.Context) ([]Verification, error) {
	catalog := s.Catalog()
	items := make([]Verification, 0, len(catalog.Views))
	failures := make([]error, 0)
	for _, spec := range catalog.Views {
		verification, err := s.Verify(ctx, spec.Name)
		if err != nil {
			failures = append(failures, err)
			continue
		}
		items = append(items, verification)
	}
	return items, errs.Collect(failures...)
}

type JoinCastInput struct {
	From      string
	RefColumn string
	// To defaults to the view the reference column declares.
	To string
	// Limit > 0 runs the join and returns at most Limit rows.
	Limit int
}

type JoinCastResult struct {
	Join eav.CastJoin
	Rows *QueryRows
}

type QueryRows struct {
	Columns   []string
	Rows      [][]any
	Truncated bool
}

// JoinCast builds the cast join between two catalog views and optionally
// runs it. References that are NULL or not numeric simply do not match.
func (s *Service) JoinCast(ctx context.Context, input JoinCastInput) (JoinCastResult, error) {
	if err := checkContext(ctx); err != nil {
		return JoinCastResult{}, err
	}

	join, err := eav.BuildCastJoin(s.Catalog(), s.dialect, input.From, input.RefColumn, input.To)
	if err != nil {
		return JoinCastResult{}, err
	}
	result := JoinCastResult{Join: join}
	if input.Limit <= 0 {
		return result, nil
	}

	rows, err := s.repo.Query(ctx, join.Query, input.Limit)
	if err != nil {
		return JoinCastResult{}, errs.Wrapf(err, "run join %s -> %s", join.From, join.To)
	}
	result.Rows = &QueryRows{Columns: rows.Columns, Rows: rows.Rows, Truncated: rows.Truncated}
	return result, nil
}

// Query runs a single read-only statement and returns at most limit rows.
func (s *Service) Query(ctx context.Context, query string, limit int) (QueryRows, error) {
	if err := checkContext(ctx); err != nil {
		return QueryRows{}, err
	}

	statement, err := eav.CheckReadOnly(query)
	if err != nil {
		return QueryRows{}, err
	}
	rows, err := s.repo.Query(ctx, statement, limit)
	if err != nil {
		return QueryRows{}, err
	}
	return QueryRows{Columns: rows.Columns, Rows: rows.Rows, Truncated: rows.Truncated}, nil
}

// DropView removes a catalog view and forgets its recorded state.
func (s *Service) DropView(ctx context.Context, name string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	spec, err := s.view(name)
	if err != nil {
		return err
	}

	s.projectMu.Lock()
	defer s.projectMu.Unlock()

	if err := s.repo.ExecDDL(ctx, []string{s.dialect.DropView(spec.Name)}); err != nil {
		return errs.Wrapf(err, "drop view %s", spec.Name)
	}
	if err := s.state.Delete(ctx, spec.Name); err != nil {
		return errs.Wrapf(err, "forget state of %s", spec.Name)
	}

	logging.Info(logging.WithAttrs(ctx, slog.String("component", "usecase.projector")), "view dropped", slog.String("view", spec.Name))
	return nil
}

// Definition returns the normalized catalog spec and its generated SQL.
func (s *Service) Definition(name string) (eav.ViewSpec, eav.ViewDefinition, error) {
	spec, err := s.view(name)
	if err != nil {
		return eav.ViewSpec{}, eav.ViewDefinition{}, err
	}
	def, err := eav.Build(spec, s.dialect)
	if err != nil {
		return eav.ViewSpec{}, eav.ViewDefinition{}, errs.Wrapf(err, "build %s", name)
	}
	return spec.Normalized(), def, nil
}
