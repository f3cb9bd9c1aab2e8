package membership

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"memberportal/internal/database/dbtest"
	"memberportal/internal/journal"
	"memberportal/internal/security"
	"memberportal/internal/telemetry"
)

func newTestService(t *testing.T, kind string, attempts int) (Service, *journal.Journal) {
	t.Helper()
	db := dbtest.Open(t)
	j := journal.New(db)
	return NewService(NewAdapter(kind, db), kind, j, attempts), j
}

func validRegistration() RegisterRequest {
	return RegisterRequest{
		MembershipNumber: "123456789",
		FirstName:        "Anna",
		LastName:         "Schmidt",
		Email:            "  Anna@Example.de ",
		Password:         "geheim123",
	}
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()
	for _, kind := range Kinds() {
		t.Run(kind, func(t *testing.T) {
			svc, j := newTestService(t, kind, 10)

			m, err := svc.Register(ctx, validRegistration())
			require.NoError(t, err)
			assert.Equal(t, "anna@example.de", m.Email)
			assert.Equal(t, "Mitglied", m.Role)

			events, err := j.Load(ctx, m.ID)
			require.NoError(t, err)
			require.Len(t, events, 1)
			assert.Equal(t, EventMemberCreated, events[0].Type)

			var payload MemberChangedEvent
			require.NoError(t, json.Unmarshal(events[0].Data, &payload))
			assert.Equal(t, kind, payload.Adapter)
			assert.Equal(t, "123456789", payload.MembershipNumber)

			got, ok, err := svc.Authenticate(ctx, "ANNA@example.de", "geheim123")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, m.ID, got.ID)
		})
	}
}

func TestService_RegisterValidation(t *testing.T) {
	svc, _ := newTestService(t, KindStandard, 10)

	tests := map[string]func(r *RegisterRequest){
		"short number":   func(r *RegisterRequest) { r.MembershipNumber = "12345" },
		"bad email":      func(r *RegisterRequest) { r.Email = "anna" },
		"missing name":   func(r *RegisterRequest) { r.LastName = "" },
		"short password": func(r *RegisterRequest) { r.Password = "kurz" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			req := validRegistration()
			mutate(&req)
			_, err := svc.Register(context.Background(), req)
			assert.ErrorIs(t, err, security.ErrInvalidInput)
		})
	}
}

func TestService_AuthenticateRateLimited(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, KindStandard, 2)

	_, ok, err := svc.Authenticate(ctx, "x@example.de", "nope")
	require.NoError(t, err)
	assert.False(t, ok)
	_, _, err = svc.Authenticate(ctx, "x@example.de", "nope")
	require.NoError(t, err)

	_, ok, err = svc.Authenticate(ctx, "x@example.de", "nope")
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.False(t, ok)
}

func TestService_AuthenticateEmptyInput(t *testing.T) {
	svc, _ := newTestService(t, KindStandard, 10)
	m, ok, err := svc.Authenticate(context.Background(), "  ", "")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, m)
}

func TestService_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	svc, j := newTestService(t, KindLegacy, 10)

	m, err := svc.Register(ctx, validRegistration())
	require.NoError(t, err)

	updated, err := svc.UpdateMember(ctx, m.ID, UpdateRequest{
		MembershipNumber: m.MembershipNumber,
		FirstName:        "Annika",
		LastName:         m.LastName,
		Email:            m.Email,
		Role:             "board",
	})
	require.NoError(t, err)
	assert.Equal(t, "Annika", updated.FirstName)
	assert.Equal(t, "Vorstand", updated.Role)

	_, ok, err := svc.Authenticate(ctx, m.Email, "geheim123")
	require.NoError(t, err)
	assert.True(t, ok, "update without password keeps the credential")

	_, err = svc.UpdateMember(ctx, 999, UpdateRequest{
		MembershipNumber: "123456789", FirstName: "X", LastName: "Y", Email: "x@example.de",
	})
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, svc.DeleteMember(ctx, m.ID))
	_, err = svc.GetMember(ctx, m.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, svc.DeleteMember(ctx, m.ID), ErrNotFound)

	events, err := j.Load(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, EventMemberUpdated, events[1].Type)
	assert.Equal(t, EventMemberDeleted, events[2].Type)
}

func TestService_GetMemberByNumber(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, KindStandard, 10)

	for _, bad := range []string{"", "  ", "12ab", "' OR 1=1"} {
		_, err := svc.GetMemberByNumber(ctx, bad)
		assert.ErrorIs(t, err, security.ErrInvalidInput, bad)
	}

	_, err := svc.GetMemberByNumber(ctx, "12")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.GetMemberByNumber(ctx, "123456789")
	assert.ErrorIs(t, err, ErrNotFound)

	m, err := svc.Register(ctx, validRegistration())
	require.NoError(t, err)
	got, err := svc.GetMemberByNumber(ctx, "123456789")
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)

	list, err := svc.ListMembers(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestService_NilJournal(t *testing.T) {
	db := dbtest.Open(t)
	svc := NewService(NewStandardAdapter(db), KindStandard, nil, 0)
	_, err := svc.Register(context.Background(), validRegistration())
	assert.NoError(t, err)
}

func TestService_ReservedAdminNumber(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	dbtest.Exec(t, db, `INSERT INTO berechtigte (mnr, vorname, name, email, aktiv) VALUES ('0495018', 'Karl', 'Kern', 'k@example.de', 1)`)
	svc := NewService(NewLegacyAdapter(db), KindLegacy, journal.New(db), 10)

	m, err := svc.GetMemberByNumber(ctx, AdminMembershipNumber)
	require.NoError(t, err)
	assert.True(t, m.IsAdmin)

	updated, err := svc.UpdateMember(ctx, m.ID, UpdateRequest{
		MembershipNumber: AdminMembershipNumber,
		FirstName:        "Karla",
		LastName:         m.LastName,
		Email:            m.Email,
		IsAdmin:          true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Karla", updated.FirstName)
	assert.True(t, updated.IsAdmin)
	assert.False(t, updated.IsConfidential)

	var status int
	require.NoError(t, db.Get(&status, `SELECT aktiv FROM berechtigte WHERE mnr = '0495018'`))
	assert.Equal(t, StatusActive, status, "the number alone carries the admin right")

	_, err = svc.UpdateMember(ctx, m.ID, UpdateRequest{
		MembershipNumber: "0495019",
		FirstName:        "Karla",
		LastName:         m.LastName,
		Email:            m.Email,
	})
	assert.ErrorIs(t, err, security.ErrInvalidInput, "a changed number must have 9 digits")

	_, err = svc.UpdateMember(ctx, m.ID, UpdateRequest{
		MembershipNumber: "04950x8",
		FirstName:        "Karla",
		LastName:         m.LastName,
		Email:            m.Email,
	})
	assert.ErrorIs(t, err, security.ErrInvalidInput)
}

func authAttempts(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	counts := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "member.auth.attempts" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "member.auth.attempts is an int64 sum")
			for _, dp := range sum.DataPoints {
				result, _ := dp.Attributes.Value("result")
				counts[result.AsString()] += dp.Value
			}
		}
	}
	return counts
}

func TestService_AuthAttemptsMetric(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	otel.SetMeterProvider(telemetry.NewMeterProvider(nil, reader))

	ctx := context.Background()
	svc, _ := newTestService(t, KindStandard, 3)
	_, err := svc.Register(ctx, validRegistration())
	require.NoError(t, err)

	_, ok, err := svc.Authenticate(ctx, "anna@example.de", "geheim123")
	require.NoError(t, err)
	require.True(t, ok)
	_, ok, err = svc.Authenticate(ctx, "anna@example.de", "falsch")
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = svc.Authenticate(ctx, "anna@example.de", "geheim123")
	require.NoError(t, err)
	require.True(t, ok)
	_, _, err = svc.Authenticate(ctx, "anna@example.de", "geheim123")
	require.ErrorIs(t, err, ErrRateLimited)

	assert.Equal(t, map[string]int64{
		"success":      2,
		"failure":      1,
		"rate_limited": 1,
	}, authAttempts(t, reader))
}
