// internal/membership/legacy.go
package membership

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"memberportal/internal/database"
)

// Status codes stored in berechtigte.aktiv.
const (
	StatusRetired      = 0
	StatusActive       = 1
	StatusAdmin        = 18
	StatusConfidential = 19
)

// AdminMembershipNumber is always treated as an administrator.
// Remove once admin rights live in a roles table.
const AdminMembershipNumber = "0495018"

// DefaultRole is used when the legacy row carries no function.
const DefaultRole = "Mitglied"

var legacyRoles = map[string]string{
	"admin":         "Administrator",
	"administrator": "Administrator",
	"board":         "Vorstand",
	"vorstand":      "Vorstand",
	"speaker":       "Referent",
	"referent":      "Referent",
	"member":        "Mitglied",
	"mitglied":      "Mitglied",
}

const legacyColumns = `id, mnr, vorname, name, email, funktion, aktiv, erstellt_am`

type legacyRow struct {
	ID         int64          `db:"id"`
	MNr        string         `db:"mnr"`
	Vorname    string         `db:"vorname"`
	Name       string         `db:"name"`
	Email      sql.NullString `db:"email"`
	Funktion   sql.NullString `db:"funktion"`
	Aktiv      int            `db:"aktiv"`
	ErstelltAm time.Time      `db:"erstellt_am"`
}

func isConfidential(status int) bool {
	return status > 17
}

func isAdmin(status int, mnr string) bool {
	return status == StatusAdmin || mnr == AdminMembershipNumber
}

// legacyRole translates a canonical role into the label stored in funktion.
func legacyRole(role string) string {
	if label, ok := legacyRoles[strings.ToLower(strings.TrimSpace(role))]; ok {
		return label
	}
	return DefaultRole
}

// statusFor derives aktiv from the member's flags. The legacy table cannot
// express an administrator who is not confidential unless the admin right
// comes from AdminMembershipNumber.
func statusFor(m *Member) int {
	switch {
	case m.IsAdmin && (m.IsConfidential || m.MembershipNumber != AdminMembershipNumber):
		return StatusAdmin
	case m.IsConfidential:
		return StatusConfidential
	default:
		return StatusActive
	}
}

func mapToStandard(r legacyRow) *Member {
	role := strings.TrimSpace(r.Funktion.String)
	if role == "" {
		role = DefaultRole
	}
	return &Member{
		ID:               r.ID,
		MembershipNumber: r.MNr,
		FirstName:        r.Vorname,
		LastName:         r.Name,
		Email:            r.Email.String,
		Role:             role,
		IsAdmin:          isAdmin(r.Aktiv, r.MNr),
		IsConfidential:   isConfidential(r.Aktiv),
		CreatedAt:        r.ErstelltAm,
	}
}

// LegacyAdapter works on the berechtigte authorization table. Rows with a
// non-positive aktiv are retired and invisible to every read.
type LegacyAdapter struct {
	db     *sqlx.DB
	tracer trace.Tracer
}

// NewLegacyAdapter creates an adapter over the berechtigte table.
func NewLegacyAdapter(db *sqlx.DB) *LegacyAdapter {
	return &LegacyAdapter{
		db:     db,
		tracer: otel.Tracer("memberportal/membership"),
	}
}

func (a *LegacyAdapter) GetByID(ctx context.Context, id int64) (*Member, error) {
	row, err := a.getRow(ctx, "berechtigte.get_by_id", "id = ?", id)
	if err != nil {
		return nil, err
	}
	return mapToStandard(*row), nil
}

// GetByEmail matches case-insensitively; legacy rows keep the address as
// it was typed.
func (a *LegacyAdapter) GetByEmail(ctx context.Context, email string) (*Member, error) {
	row, err := a.getRow(ctx, "berechtigte.get_by_email", "LOWER(email) = LOWER(?)", email)
	if err != nil {
		return nil, err
	}
	return mapToStandard(*row), nil
}

func (a *LegacyAdapter) GetByMembershipNumber(ctx context.Context, mnr string) (*Member, error) {
	row, err := a.getRow(ctx, "berechtigte.get_by_number", "mnr = ?", mnr)
	if err != nil {
		return nil, err
	}
	return mapToStandard(*row), nil
}

func (a *LegacyAdapter) getRow(ctx context.Context, op, where string, arg any) (*legacyRow, error) {
	ctx, span := a.tracer.Start(ctx, op)
	defer span.End()

	query := a.db.Rebind(`SELECT ` + legacyColumns + ` FROM berechtigte WHERE ` + where + ` AND aktiv > 0`)

	var row legacyRow
	if err := a.db.GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query berechtigte: %w", err)
	}
	return &row, nil
}

func (a *LegacyAdapter) List(ctx context.Context) ([]*Member, error) {
	ctx, span := a.tracer.Start(ctx, "berechtigte.list")
	defer span.End()

	var rows []legacyRow
	query := `SELECT ` + legacyColumns + ` FROM berechtigte WHERE aktiv > 0 ORDER BY name, vorname`
	if err := a.db.SelectContext(ctx, &rows, query); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list berechtigte: %w", err)
	}

	members := make([]*Member, 0, len(rows))
	for _, r := range rows {
		members = append(members, mapToStandard(r))
	}
	span.SetAttributes(attribute.Int("member.count", len(members)))
	return members, nil
}

func (a *LegacyAdapter) Create(ctx context.Context, m *Member) (*Member, error) {
	ctx, span := a.tracer.Start(ctx, "berechtigte.create",
		trace.WithAttributes(attribute.String("member.number", m.MembershipNumber)))
	defer span.End()

	id, err := database.InsertID(ctx, a.db, `
		INSERT INTO berechtigte (mnr, vorname, name, email, funktion, aktiv)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.MembershipNumber, m.FirstName, m.LastName, nullable(m.Email), legacyRole(m.Role), statusFor(m),
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to insert berechtigte: %w", err)
	}

	if m.PasswordHash != "" {
		if err := a.storeCredential(ctx, id, m.PasswordHash); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	log.Debug().Int64("member_id", id).Msg("berechtigte inserted")
	return a.GetByID(ctx, id)
}

func (a *LegacyAdapter) Update(ctx context.Context, m *Member) error {
	ctx, span := a.tracer.Start(ctx, "berechtigte.update",
		trace.WithAttributes(attribute.Int64("member.id", m.ID)))
	defer span.End()

	current, err := a.getRow(ctx, "berechtigte.get_by_id", "id = ?", m.ID)
	if err != nil {
		return err
	}

	status := current.Aktiv
	if m.IsAdmin != isAdmin(status, m.MembershipNumber) || m.IsConfidential != isConfidential(status) {
		status = statusFor(m)
	}

	query := a.db.Rebind(`UPDATE berechtigte SET mnr = ?, vorname = ?, name = ?, email = ?, funktion = ?, aktiv = ?
		WHERE id = ? AND aktiv > 0`)
	if _, err := a.db.ExecContext(ctx, query,
		m.MembershipNumber, m.FirstName, m.LastName, nullable(m.Email), legacyRole(m.Role), status, m.ID,
	); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update berechtigte: %w", err)
	}

	if m.PasswordHash != "" {
		if err := a.storeCredential(ctx, m.ID, m.PasswordHash); err != nil {
			span.RecordError(err)
			return err
		}
	}
	return nil
}

// Delete retires the row by setting aktiv to 0. The row stays in place.
func (a *LegacyAdapter) Delete(ctx context.Context, id int64) error {
	ctx, span := a.tracer.Start(ctx, "berechtigte.delete",
		trace.WithAttributes(attribute.Int64("member.id", id)))
	defer span.End()

	query := a.db.Rebind(`UPDATE berechtigte SET aktiv = ? WHERE id = ?`)
	if _, err := a.db.ExecContext(ctx, query, StatusRetired, id); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to retire berechtigte: %w", err)
	}
	return nil
}

// Authenticate checks secret against berechtigte_credentials. A row without
// a stored credential never authenticates.
func (a *LegacyAdapter) Authenticate(ctx context.Context, email, secret string) (*Member, bool, error) {
	m, err := a.GetByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var encoded string
	query := a.db.Rebind(`SELECT password_hash FROM berechtigte_credentials WHERE berechtigte_id = ?`)
	if err := a.db.GetContext(ctx, &encoded, query, m.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to query credential: %w", err)
	}

	if !checkSecret(secret, encoded, m.ID) {
		return nil, false, nil
	}
	return m, true, nil
}

// storeCredential replaces the stored hash for id.
func (a *LegacyAdapter) storeCredential(ctx context.Context, id int64, encoded string) error {
	if _, err := a.db.ExecContext(ctx,
		a.db.Rebind(`DELETE FROM berechtigte_credentials WHERE berechtigte_id = ?`), id); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	if _, err := a.db.ExecContext(ctx,
		a.db.Rebind(`INSERT INTO berechtigte_credentials (berechtigte_id, password_hash) VALUES (?, ?)`),
		id, encoded); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
