package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"eavview/internal/bootstrap/config"
	"eavview/internal/bootstrap/database"
	"eavview/internal/domain/eav"
	"eavview/internal/errs"
	"eavview/internal/ports"
)

const (
	mysqlErrNoSuchTable   = 1146
	mysqlErrUnknownColumn = 1054
)

// ViewRepository talks to the database holding the lookup tables.
type ViewRepository struct {
	db             *gorm.DB
	driver         string
	dialect        eav.Dialect
	commandTimeout time.Duration
}

var _ ports.ViewRepository = (*ViewRepository)(nil)

func NewViewRepository(db *gorm.DB, cfg config.DatabaseConfig) (*ViewRepository, error) {
	if db == nil {
		return nil, errors.New("target db is required")
	}
	driver := database.NormalizeDriver(cfg.Driver)
	dialect, err := eav.DialectFor(driver)
	if err != nil {
		return nil, err
	}
	return &ViewRepository{
		db:             db,
		driver:         driver,
		dialect:        dialect,
		commandTimeout: cfg.CommandTimeout,
	}, nil
}

func (r *ViewRepository) Driver() string {
	return r.driver
}

func (r *ViewRepository) dbFromContext(ctx context.Context) (*gorm.DB, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	tx := ports.TxFromContext(ctx)
	if tx == nil {
		return r.db.WithContext(ctx), nil
	}

	gormTx, ok := tx.(*gorm.DB)
	if !ok || gormTx == nil {
		return nil, fmt.Errorf("invalid tx in context: %T", tx)
	}
	return gormTx.WithContext(ctx), nil
}

func (r *ViewRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.commandTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.commandTimeout)
}

func (r *ViewRepository) HasTable(ctx context.Context, name string) (bool, error) {
	if !eav.IsIdentifier(name) {
		return false, fmt.Errorf("invalid table name %q", name)
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	db, err := r.dbFromContext(ctx)
	if err != nil {
		return false, err
	}
	return db.Migrator().HasTable(name), nil
}

func (r *ViewRepository) HasView(ctx context.Context, name string) (bool, error) {
	if !eav.IsIdentifier(name) {
		return false, fmt.Errorf("invalid view name %q", name)
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	db, err := r.dbFromContext(ctx)
	if err != nil {
		return false, err
	}

	query := "SELECT COUNT(*) FROM sqlite_master WHERE type = 'view' AND name = ?"
	if r.driver == database.DriverMySQL {
		query = "SELECT COUNT(*) FROM information_schema.views WHERE table_schema = DATABASE() AND table_name = ?"
	}
	var count int64
	if err := db.Raw(query, name).Scan(&count).Error; err != nil {
		return false, errs.Wrap(err, "query view existence")
	}
	return count > 0, nil
}

type relationRow struct {
	Name string `gorm:"column:name"`
	Kind string `gorm:"column:kind"`
}

func (r *ViewRepository) ListRelations(ctx context.Context) ([]ports.Relation, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := "SELECT name AS name, type AS kind FROM sqlite_master WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%' ORDER BY name"
	if r.driver == database.DriverMySQL {
		query = "SELECT table_name AS name, CASE WHEN table_type = 'VIEW' THEN 'view' ELSE 'table' END AS kind " +
			"FROM information_schema.tables WHERE table_schema = DATABASE() ORDER BY table_name"
	}

	var rows []relationRow
	if err := db.Raw(query).Scan(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query relations")
	}

	items := make([]ports.Relation, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.Relation{Name: row.Name, Kind: row.Kind})
	}
	return items, nil
}

func (r *ViewRepository) Columns(ctx context.Context, relation string) ([]ports.Column, error) {
	if !eav.IsIdentifier(relation) {
		return nil, fmt.Errorf("invalid relation name %q", relation)
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.Raw("SELECT * FROM " + r.dialect.QuoteIdent(relation) + " LIMIT 0").Rows()
	if err != nil {
		return nil, classify(errs.Wrapf(err, "read columns of %s", relation))
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, errs.Wrapf(err, "read columns of %s", relation)
	}

	columns := make([]ports.Column, 0, len(types))
	for _, columnType := range types {
		column := ports.Column{
			Name:         columnType.Name(),
			DatabaseType: columnType.DatabaseTypeName(),
		}
		if nullable, ok := columnType.Nullable(); ok {
			column.Nullable = &nullable
		}
		columns = append(columns, column)
	}
	return columns, nil
}

func (r *ViewRepository) CountRows(ctx context.Context, relation string) (int64, error) {
	if !eav.IsIdentifier(relation) {
		return 0, fmt.Errorf("invalid relation name %q", relation)
	}
	return r.Count(ctx, "SELECT COUNT(*) FROM "+r.dialect.QuoteIdent(relation))
}

func (r *ViewRepository) Count(ctx context.Context, query string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	db, err := r.dbFromContext(ctx)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := db.Raw(query).Scan(&count).Error; err != nil {
		return 0, classify(errs.Wrap(err, "count rows"))
	}
	return count, nil
}

// Query reads at most limit rows; Truncated reports whether more were
// available. Byte slices are returned as strings. The statement runs in a
// read-only transaction; SQLite ignores that flag, so query_only is held on
// the connection for the duration. Only the statement carries the deadline,
// so a timeout cannot end the transaction before query_only is reset.
func (r *ViewRepository) Query(ctx context.Context, query string, limit int) (ports.QueryResult, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.QueryResult{}, err
	}

	var result ports.QueryResult
	err = db.WithContext(context.WithoutCancel(ctx)).Transaction(func(tx *gorm.DB) (err error) {
		if r.driver == database.DriverSQLite {
			if err := tx.Exec("PRAGMA query_only = ON").Error; err != nil {
				return errs.Wrap(err, "enable query_only")
			}
			defer func() {
				reset := tx.Exec("PRAGMA query_only = OFF").Error
				if err == nil && reset != nil {
					err = errs.Wrap(reset, "disable query_only")
				}
			}()
		}
		result, err = scanQuery(tx.WithContext(ctx), eav.LimitQuery(query, limit), limit)
		return err
	}, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return ports.QueryResult{}, err
	}
	return result, nil
}

func scanQuery(db *gorm.DB, query string, limit int) (ports.QueryResult, error) {
	rows, err := db.Raw(query).Rows()
	if err != nil {
		return ports.QueryResult{}, classify(errs.Wrap(err, "run query"))
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return ports.QueryResult{}, errs.Wrap(err, "read result columns")
	}

	result := ports.QueryResult{Columns: columns}
	for rows.Next() {
		if limit > 0 && len(result.Rows) == limit {
			result.Truncated = true
			break
		}
		values := make([]any, len(columns))
		targets := make([]any, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return ports.QueryResult{}, errs.Wrap(err, "scan result row")
		}
		for i, value := range values {
			if raw, ok := value.([]byte); ok {
				values[i] = string(raw)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return ports.QueryResult{}, errs.Wrap(err, "iterate result rows")
	}
	return result, nil
}

func (r *ViewRepository) ExecDDL(ctx context.Context, statements []string) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	for i, statement := range statements {
		if strings.TrimSpace(statement) == "" {
			continue
		}
		if err := r.exec(ctx, db, statement); err != nil {
			return classify(errs.Wrapf(err, "exec statement %d of %d", i+1, len(statements)))
		}
	}
	return nil
}

func (r *ViewRepository) exec(ctx context.Context, db *gorm.DB, statement string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return db.WithContext(ctx).Exec(statement).Error
}

// classify tags driver errors about absent tables or columns with
// ports.ErrMissingObject.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var mysqlErr *mysqldriver.MySQLError
	if errors.As(err, &mysqlErr) {
		if mysqlErr.Number == mysqlErrNoSuchTable || mysqlErr.Number == mysqlErrUnknownColumn {
			return fmt.Errorf("%w: %w", ports.ErrMissingObject, err)
		}
		return err
	}

	message := strings.ToLower(err.Error())
	if strings.Contains(message, "no such table") || strings.Contains(message, "no such column") {
		return fmt.Errorf("%w: %w", ports.ErrMissingObject, err)
	}
	return err
}
