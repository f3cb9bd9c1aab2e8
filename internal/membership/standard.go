// internal/membership/standard.go
package membership

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"memberportal/internal/database"
)

const memberColumns = `id, membership_number, first_name, last_name, email, role, is_admin, is_confidential, password_hash, created_at`

// StandardAdapter works on the members table, whose columns already match
// Member one to one.
type StandardAdapter struct {
	db     *sqlx.DB
	tracer trace.Tracer
}

// NewStandardAdapter creates an adapter over the members table.
func NewStandardAdapter(db *sqlx.DB) *StandardAdapter {
	return &StandardAdapter{
		db:     db,
		tracer: otel.Tracer("memberportal/membership"),
	}
}

func (a *StandardAdapter) GetByID(ctx context.Context, id int64) (*Member, error) {
	return a.getOne(ctx, "members.get_by_id", "id = ?", id)
}

func (a *StandardAdapter) GetByEmail(ctx context.Context, email string) (*Member, error) {
	return a.getOne(ctx, "members.get_by_email", "email = ?", email)
}

func (a *StandardAdapter) GetByMembershipNumber(ctx context.Context, mnr string) (*Member, error) {
	return a.getOne(ctx, "members.get_by_number", "membership_number = ?", mnr)
}

func (a *StandardAdapter) getOne(ctx context.Context, op, where string, arg any) (*Member, error) {
	ctx, span := a.tracer.Start(ctx, op)
	defer span.End()

	query := a.db.Rebind(`SELECT ` + memberColumns + ` FROM members WHERE ` + where)

	var m Member
	if err := a.db.GetContext(ctx, &m, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query member: %w", err)
	}
	return &m, nil
}

func (a *StandardAdapter) List(ctx context.Context) ([]*Member, error) {
	ctx, span := a.tracer.Start(ctx, "members.list")
	defer span.End()

	var members []*Member
	query := `SELECT ` + memberColumns + ` FROM members ORDER BY last_name, first_name`
	if err := a.db.SelectContext(ctx, &members, query); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	span.SetAttributes(attribute.Int("member.count", len(members)))
	return members, nil
}

func (a *StandardAdapter) Create(ctx context.Context, m *Member) (*Member, error) {
	ctx, span := a.tracer.Start(ctx, "members.create",
		trace.WithAttributes(attribute.String("member.number", m.MembershipNumber)))
	defer span.End()

	id, err := database.InsertID(ctx, a.db, `
		INSERT INTO members (membership_number, first_name, last_name, email, role, is_admin, is_confidential, password_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.MembershipNumber, m.FirstName, m.LastName, m.Email, m.Role, m.IsAdmin, m.IsConfidential, m.PasswordHash,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to insert member: %w", err)
	}

	log.Debug().Int64("member_id", id).Msg("member inserted")
	return a.GetByID(ctx, id)
}

// Update rewrites every column of m. An empty PasswordHash leaves the stored
// hash alone.
func (a *StandardAdapter) Update(ctx context.Context, m *Member) error {
	ctx, span := a.tracer.Start(ctx, "members.update",
		trace.WithAttributes(attribute.Int64("member.id", m.ID)))
	defer span.End()

	query := `UPDATE members SET membership_number = ?, first_name = ?, last_name = ?, email = ?,
		role = ?, is_admin = ?, is_confidential = ?`
	args := []any{m.MembershipNumber, m.FirstName, m.LastName, m.Email, m.Role, m.IsAdmin, m.IsConfidential}
	if m.PasswordHash != "" {
		query += `, password_hash = ?`
		args = append(args, m.PasswordHash)
	}
	query += ` WHERE id = ?`
	args = append(args, m.ID)

	if _, err := a.db.ExecContext(ctx, a.db.Rebind(query), args...); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update member: %w", err)
	}
	return nil
}

// Delete removes the row.
func (a *StandardAdapter) Delete(ctx context.Context, id int64) error {
	ctx, span := a.tracer.Start(ctx, "members.delete",
		trace.WithAttributes(attribute.Int64("member.id", id)))
	defer span.End()

	if _, err := a.db.ExecContext(ctx, a.db.Rebind(`DELETE FROM members WHERE id = ?`), id); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete member: %w", err)
	}
	return nil
}

func (a *StandardAdapter) Authenticate(ctx context.Context, email, secret string) (*Member, bool, error) {
	m, err := a.GetByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !checkSecret(secret, m.PasswordHash, m.ID) {
		return nil, false, nil
	}
	return m, true, nil
}

// checkSecret verifies secret against encoded. A malformed hash is a failed
// login, not an error.
func checkSecret(secret, encoded string, id int64) bool {
	if encoded == "" {
		return false
	}
	ok, err := VerifyPassword(secret, encoded)
	if err != nil {
		log.Warn().Err(err).Int64("member_id", id).Msg("stored password hash unreadable")
		return false
	}
	return ok
}
