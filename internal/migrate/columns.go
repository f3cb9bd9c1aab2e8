// Package migrate holds the one-off schema and source migrations run by
// cmd/migrate.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"memberportal/internal/database"
)

var ErrInvalidIdentifier = errors.New("invalid identifier")

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// DefaultTalkTable is the table AddColumns extends by default.
const DefaultTalkTable = "Refpool"

type Column struct {
	Name       string
	Definition string
}

// TalkColumns are the nullable columns talks gained after the original
// schema.
var TalkColumns = []Column{
	{Name: "location", Definition: "VARCHAR(255)"},
	{Name: "video_link", Definition: "VARCHAR(500)"},
	{Name: "duration", Definition: "INT"},
}

type Outcome string

const (
	OutcomeAdded   Outcome = "added"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "error"
)

type ColumnResult struct {
	Column  string
	Outcome Outcome
	Err     error
}

// ColumnMigrator adds columns to an existing table when they are missing.
type ColumnMigrator struct {
	db     *sqlx.DB
	tracer trace.Tracer
}

func NewColumnMigrator(db *sqlx.DB) *ColumnMigrator {
	return &ColumnMigrator{
		db:     db,
		tracer: otel.Tracer("memberportal/migrate"),
	}
}

// AddColumns adds each column of cols to table unless it already exists.
// Per-column failures are reported in the result, not returned; the error
// is reserved for invalid identifiers.
func (m *ColumnMigrator) AddColumns(ctx context.Context, table string, cols []Column) ([]ColumnResult, error) {
	if !identifierPattern.MatchString(table) {
		return nil, fmt.Errorf("%w: table %q", ErrInvalidIdentifier, table)
	}
	for _, c := range cols {
		if !identifierPattern.MatchString(c.Name) {
			return nil, fmt.Errorf("%w: column %q", ErrInvalidIdentifier, c.Name)
		}
	}

	ctx, span := m.tracer.Start(ctx, "migrate.add_columns",
		trace.WithAttributes(
			attribute.String("table", table),
			attribute.Int("column.count", len(cols)),
		),
	)
	defer span.End()

	results := make([]ColumnResult, 0, len(cols))
	for _, c := range cols {
		res := m.addColumn(ctx, table, c)
		span.AddEvent("column."+string(res.Outcome), trace.WithAttributes(attribute.String("column", c.Name)))
		results = append(results, res)
	}
	return results, nil
}

func (m *ColumnMigrator) addColumn(ctx context.Context, table string, c Column) ColumnResult {
	exists, err := m.columnExists(ctx, table, c.Name)
	if err != nil {
		return ColumnResult{Column: c.Name, Outcome: OutcomeFailed, Err: err}
	}
	if exists {
		log.Debug().Str("table", table).Str("column", c.Name).Msg("column already exists")
		return ColumnResult{Column: c.Name, Outcome: OutcomeSkipped}
	}

	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, c.Name, c.Definition)
	if _, err := m.db.ExecContext(ctx, stmt); err != nil {
		if database.IsDuplicateColumn(err) {
			return ColumnResult{Column: c.Name, Outcome: OutcomeSkipped}
		}
		return ColumnResult{Column: c.Name, Outcome: OutcomeFailed, Err: err}
	}

	log.Info().Str("table", table).Str("column", c.Name).Msg("column added")
	return ColumnResult{Column: c.Name, Outcome: OutcomeAdded}
}

func (m *ColumnMigrator) columnExists(ctx context.Context, table, column string) (bool, error) {
	var query string
	switch m.db.DriverName() {
	case "mysql":
		query = `SELECT COUNT(*) FROM information_schema.COLUMNS
			WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND COLUMN_NAME = ?`
	case "postgres":
		query = `SELECT COUNT(*) FROM information_schema.columns
			WHERE table_schema = current_schema() AND table_name = ? AND column_name = ?`
		table = strings.ToLower(table)
	default:
		query = `SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`
	}

	var n int
	if err := m.db.GetContext(ctx, &n, m.db.Rebind(query), table, column); err != nil {
		return false, fmt.Errorf("check column %s: %w", column, err)
	}
	return n > 0, nil
}
