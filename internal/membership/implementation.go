// internal/membership/implementation.go
package membership

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"memberportal/internal/journal"
	"memberportal/internal/security"
)

// service implements the Service interface.
type service struct {
	adapter      Adapter
	kind         string
	journal      *journal.Journal
	rateLimiter  *rate.Limiter
	authAttempts metric.Int64Counter
}

// NewService creates a new membership service instance. kind names the
// adapter for journal entries; j may be nil. attemptsPerMinute bounds
// Authenticate calls across all callers.
func NewService(adapter Adapter, kind string, j *journal.Journal, attemptsPerMinute int) Service {
	if attemptsPerMinute <= 0 {
		attemptsPerMinute = 5
	}

	counter, err := otel.Meter("memberportal/membership").Int64Counter(
		"member.auth.attempts",
		metric.WithDescription("Login attempts by result"),
	)
	if err != nil {
		log.Warn().Err(err).Msg("failed to create auth attempts counter")
	}

	return &service{
		adapter:      adapter,
		kind:         kind,
		journal:      j,
		rateLimiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(attemptsPerMinute)), attemptsPerMinute),
		authAttempts: counter,
	}
}

// Register validates req, hashes the password and creates the member.
func (s *service) Register(ctx context.Context, req RegisterRequest) (*Member, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := security.ValidateStruct(req); err != nil {
		return nil, err
	}

	m := &Member{
		MembershipNumber: req.MembershipNumber,
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		Email:            req.Email,
		Role:             roleOrDefault(req.Role),
		IsAdmin:          req.IsAdmin,
		IsConfidential:   req.IsConfidential,
	}
	if req.Password != "" {
		hash, err := HashPassword(req.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		m.PasswordHash = hash
	}

	created, err := s.adapter.Create(ctx, m)
	if err != nil {
		return nil, err
	}

	s.record(ctx, created, EventMemberCreated)
	log.Info().Int64("member_id", created.ID).Str("adapter", s.kind).Msg("member registered")
	return created, nil
}

// Authenticate verifies a member's credentials. A wrong password or unknown
// email yields ok == false with a nil error.
func (s *service) Authenticate(ctx context.Context, email, password string) (*Member, bool, error) {
	if !s.rateLimiter.Allow() {
		s.countAttempt(ctx, "rate_limited")
		return nil, false, ErrRateLimited
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		s.countAttempt(ctx, "failure")
		return nil, false, nil
	}

	m, ok, err := s.adapter.Authenticate(ctx, email, password)
	if err != nil {
		s.countAttempt(ctx, "error")
		return nil, false, fmt.Errorf("authentication failed: %w", err)
	}
	if !ok {
		s.countAttempt(ctx, "failure")
		return nil, false, nil
	}

	s.countAttempt(ctx, "success")
	return m, true, nil
}

// GetMember retrieves a member by their ID.
func (s *service) GetMember(ctx context.Context, id int64) (*Member, error) {
	return s.adapter.GetByID(ctx, id)
}

// GetMemberByNumber looks a member up by any stored number. Only new
// registrations are held to the 9-digit format.
func (s *service) GetMemberByNumber(ctx context.Context, mnr string) (*Member, error) {
	mnr = strings.TrimSpace(mnr)
	if mnr == "" || strings.IndexFunc(mnr, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return nil, fmt.Errorf("%w: membership number must be numeric", security.ErrInvalidInput)
	}
	return s.adapter.GetByMembershipNumber(ctx, mnr)
}

func (s *service) ListMembers(ctx context.Context) ([]*Member, error) {
	return s.adapter.List(ctx)
}

// UpdateMember replaces the member's fields. The member must exist.
func (s *service) UpdateMember(ctx context.Context, id int64, req UpdateRequest) (*Member, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := security.ValidateStruct(req); err != nil {
		return nil, err
	}

	current, err := s.adapter.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.MembershipNumber != current.MembershipNumber && !security.ValidMembershipNumber(req.MembershipNumber) {
		return nil, fmt.Errorf("%w: membership_number must be a 9-digit membership number", security.ErrInvalidInput)
	}

	m := &Member{
		ID:               id,
		MembershipNumber: req.MembershipNumber,
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		Email:            req.Email,
		Role:             roleOrDefault(req.Role),
		IsAdmin:          req.IsAdmin,
		IsConfidential:   req.IsConfidential,
	}
	if req.Password != "" {
		hash, err := HashPassword(req.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		m.PasswordHash = hash
	}

	if err := s.adapter.Update(ctx, m); err != nil {
		return nil, err
	}

	updated, err := s.adapter.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.record(ctx, updated, EventMemberUpdated)
	return updated, nil
}

func (s *service) DeleteMember(ctx context.Context, id int64) error {
	m, err := s.adapter.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.adapter.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, m, EventMemberDeleted)
	log.Info().Int64("member_id", id).Str("adapter", s.kind).Msg("member deleted")
	return nil
}

// record appends a lifecycle event. Journal failures are logged and do not
// fail the operation.
func (s *service) record(ctx context.Context, m *Member, eventType string) {
	if s.journal == nil {
		return
	}
	_, err := s.journal.Append(ctx, m.ID, eventType, MemberChangedEvent{
		ID:               m.ID,
		MembershipNumber: m.MembershipNumber,
		Email:            m.Email,
		Role:             m.Role,
		Adapter:          s.kind,
	})
	if err != nil {
		log.Warn().Err(err).Int64("member_id", m.ID).Str("event_type", eventType).Msg("failed to append member event")
	}
}

func (s *service) countAttempt(ctx context.Context, result string) {
	if s.authAttempts == nil {
		return
	}
	s.authAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
		attribute.String("adapter", s.kind),
	))
}

func roleOrDefault(role string) string {
	if strings.TrimSpace(role) == "" {
		return DefaultRole
	}
	return role
}
