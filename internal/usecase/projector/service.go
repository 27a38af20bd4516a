package projector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"eavview/internal/domain/eav"
	"eavview/internal/errs"
	"eavview/internal/ports"
)

type Options struct {
	// VerifyColumns compares a freshly installed view with its declaration
	// before the change is committed.
	VerifyColumns bool
	// AuditCoercions logs how many cells every typed column nulls out.
	AuditCoercions bool
}

type Service struct {
	repo    ports.ViewRepository
	uow     ports.UnitOfWork
	state   ports.ViewStateStore
	dialect eav.Dialect
	opts    Options

	catalogMu sync.RWMutex
	catalog   eav.Catalog

	// projectMu keeps projections strictly sequential across callers.
	projectMu sync.Mutex

	now      func() time.Time
	newRunID func() string
}

func NewService(repo ports.ViewRepository, uow ports.UnitOfWork, state ports.ViewStateStore, catalog eav.Catalog, opts Options) (*Service, error) {
	if repo == nil {
		return nil, errors.New("view repository is required")
	}
	if uow == nil {
		return nil, errors.New("unit of work is required")
	}
	if state == nil {
		return nil, errors.New("view state store is required")
	}
	dialect, err := eav.DialectFor(repo.Driver())
	if err != nil {
		return nil, err
	}

	catalog = catalog.Normalized()
	if err := catalog.Validate(); err != nil {
		return nil, errs.Wrap(err, "validate catalog")
	}

	return &Service{
		repo:     repo,
		uow:      uow,
		state:    state,
		dialect:  dialect,
		opts:     opts,
		catalog:  catalog,
		now:      time.Now,
		newRunID: uuid.NewString,
	}, nil
}

type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeFailed    Outcome = "failed"
)

// ViewResult is the outcome of projecting one view.
type ViewResult struct {
	View        string
	Outcome     Outcome
	Fingerprint string
	Rows        int64
	// Nulled counts, per typed column, the source values the coercion
	// turned into NULL. Only filled when coercions are audited.
	Nulled map[string]int64
	Err    error
}

type BatchResult struct {
	RunID   string
	Results []ViewResult
}

// Err joins the errors of every failed view.
func (b BatchResult) Err() error {
	items := make([]error, 0, len(b.Results))
	for _, result := range b.Results {
		items = append(items, result.Err)
	}
	return errs.Collect(items...)
}

func (b BatchResult) Count(outcome Outcome) int {
	n := 0
	for _, result := range b.Results {
		if result.Outcome == outcome {
			n++
		}
	}
	return n
}

// Catalog returns the active catalog.
func (s *Service) Catalog() eav.Catalog {
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()
	return s.catalog
}

// SetCatalog swaps the active catalog. An invalid catalog is rejected and
// the current one stays.
func (s *Service) SetCatalog(catalog eav.Catalog) error {
	catalog = catalog.Normalized()
	if err := catalog.Validate(); err != nil {
		return err
	}
	s.catalogMu.Lock()
	s.catalog = catalog
	s.catalogMu.Unlock()
	return nil
}

func (s *Service) Dialect() eav.Dialect {
	return s.dialect
}

func (s *Service) view(name string) (eav.ViewSpec, error) {
	spec, ok := s.Catalog().View(name)
	if !ok {
		return eav.ViewSpec{}, fmt.Errorf("%w: %s", eav.ErrUnknownView, name)
	}
	return spec, nil
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
