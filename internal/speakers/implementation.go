// internal/speakers/implementation.go
package speakers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"memberportal/internal/database"
	"memberportal/internal/security"
)

var (
	ErrSpeakerNotFound = errors.New("speaker not found")
	ErrTalkNotFound    = errors.New("talk not found")
)

type speakerRow struct {
	MNr     string         `db:"mnr"`
	Vorname string         `db:"vorname"`
	Name    string         `db:"name"`
	Email   sql.NullString `db:"email"`
	Telefon sql.NullString `db:"telefon"`
	PLZ     sql.NullString `db:"plz"`
	Ort     sql.NullString `db:"ort"`
}

func (r speakerRow) speaker() *Speaker {
	return &Speaker{
		MembershipNumber: r.MNr,
		FirstName:        r.Vorname,
		LastName:         r.Name,
		Email:            r.Email.String,
		Phone:            r.Telefon.String,
		PostalCode:       r.PLZ.String,
		City:             r.Ort.String,
		Talks:            []Talk{},
	}
}

type talkRow struct {
	ID           int64          `db:"id"`
	MNr          string         `db:"mnr"`
	Thema        string         `db:"thema"`
	Beschreibung sql.NullString `db:"beschreibung"`
	Location     sql.NullString `db:"location"`
	VideoLink    sql.NullString `db:"video_link"`
	Duration     sql.NullInt64  `db:"duration"`
}

func (r talkRow) talk() Talk {
	t := Talk{
		ID:               r.ID,
		MembershipNumber: r.MNr,
		Title:            r.Thema,
		Description:      r.Beschreibung.String,
		Location:         r.Location.String,
		VideoLink:        r.VideoLink.String,
	}
	if r.Duration.Valid {
		d := int(r.Duration.Int64)
		t.Duration = &d
	}
	return t
}

// listRow is one line of the speaker/talk LEFT JOIN.
type listRow struct {
	speakerRow
	TalkID       sql.NullInt64  `db:"talk_id"`
	Thema        sql.NullString `db:"thema"`
	Beschreibung sql.NullString `db:"beschreibung"`
	Location     sql.NullString `db:"location"`
	VideoLink    sql.NullString `db:"video_link"`
	Duration     sql.NullInt64  `db:"duration"`
}

const (
	speakerColumns = `mnr, vorname, name, email, telefon, plz, ort`
	talkColumns    = `id, mnr, thema, beschreibung, location, video_link, duration`
)

// service implements the Service interface.
type service struct {
	db     *sqlx.DB
	tracer trace.Tracer
}

// NewService creates a new speaker directory service instance.
func NewService(db *sqlx.DB) Service {
	return &service{
		db:     db,
		tracer: otel.Tracer("memberportal/speakers"),
	}
}

func (s *service) CreateSpeaker(ctx context.Context, req SpeakerRequest) (*Speaker, error) {
	if err := security.ValidateStruct(req); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "speakers.create",
		trace.WithAttributes(attribute.String("speaker.mnr", req.MembershipNumber)))
	defer span.End()

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO Refname (`+speakerColumns+`, aktiv)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1)`),
		req.MembershipNumber, req.FirstName, req.LastName,
		nullable(req.Email), nullable(req.Phone), nullable(req.PostalCode), nullable(req.City),
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to insert speaker: %w", err)
	}

	log.Info().Str("mnr", req.MembershipNumber).Msg("speaker created")
	return s.GetSpeaker(ctx, req.MembershipNumber)
}

// GetSpeaker returns an active speaker with their active talks.
func (s *service) GetSpeaker(ctx context.Context, mnr string) (*Speaker, error) {
	ctx, span := s.tracer.Start(ctx, "speakers.get",
		trace.WithAttributes(attribute.String("speaker.mnr", mnr)))
	defer span.End()

	var row speakerRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(
		`SELECT `+speakerColumns+` FROM Refname WHERE mnr = ? AND aktiv > 0`), mnr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSpeakerNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query speaker: %w", err)
	}

	var talks []talkRow
	err = s.db.SelectContext(ctx, &talks, s.db.Rebind(
		`SELECT `+talkColumns+` FROM Refpool WHERE mnr = ? AND aktiv > 0 ORDER BY thema`), mnr)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query talks: %w", err)
	}

	sp := row.speaker()
	for _, t := range talks {
		sp.Talks = append(sp.Talks, t.talk())
	}
	return sp, nil
}

func (s *service) UpdateSpeaker(ctx context.Context, mnr string, req SpeakerRequest) (*Speaker, error) {
	req.MembershipNumber = mnr
	if err := security.ValidateStruct(req); err != nil {
		return nil, err
	}
	if _, err := s.GetSpeaker(ctx, mnr); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "speakers.update",
		trace.WithAttributes(attribute.String("speaker.mnr", mnr)))
	defer span.End()

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE Refname SET vorname = ?, name = ?, email = ?, telefon = ?, plz = ?, ort = ?
		WHERE mnr = ?`),
		req.FirstName, req.LastName,
		nullable(req.Email), nullable(req.Phone), nullable(req.PostalCode), nullable(req.City),
		mnr,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to update speaker: %w", err)
	}
	return s.GetSpeaker(ctx, mnr)
}

// DeleteSpeaker removes the speaker's talks and then the speaker.
func (s *service) DeleteSpeaker(ctx context.Context, mnr string) error {
	ctx, span := s.tracer.Start(ctx, "speakers.delete",
		trace.WithAttributes(attribute.String("speaker.mnr", mnr)))
	defer span.End()

	var count int
	if err := s.db.GetContext(ctx, &count, s.db.Rebind(`SELECT COUNT(*) FROM Refname WHERE mnr = ?`), mnr); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to query speaker: %w", err)
	}
	if count == 0 {
		return ErrSpeakerNotFound
	}

	if _, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM Refpool WHERE mnr = ?`), mnr); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete talks: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM Refname WHERE mnr = ?`), mnr); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete speaker: %w", err)
	}

	log.Info().Str("mnr", mnr).Msg("speaker deleted")
	return nil
}

// ListSpeakers returns active speakers with their active talks ordered by
// name, first name and talk title.
func (s *service) ListSpeakers(ctx context.Context, opts ListOptions) ([]*Speaker, error) {
	ctx, span := s.tracer.Start(ctx, "speakers.list",
		trace.WithAttributes(
			attribute.String("plz.from", opts.FromPostalCode),
			attribute.Int("max.distance", opts.MaxDistance),
		),
	)
	defer span.End()

	var rows []listRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT r.mnr, r.vorname, r.name, r.email, r.telefon, r.plz, r.ort,
		       p.id AS talk_id, p.thema, p.beschreibung, p.location, p.video_link, p.duration
		FROM Refname r
		LEFT JOIN Refpool p ON p.mnr = r.mnr AND p.aktiv > 0
		WHERE r.aktiv > 0
		ORDER BY r.name, r.vorname, p.thema`)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list speakers: %w", err)
	}

	var speakers []*Speaker
	index := make(map[string]*Speaker)
	for _, row := range rows {
		sp, ok := index[row.MNr]
		if !ok {
			sp = row.speaker()
			index[row.MNr] = sp
			speakers = append(speakers, sp)
		}
		if row.TalkID.Valid {
			sp.Talks = append(sp.Talks, talkRow{
				ID:           row.TalkID.Int64,
				MNr:          row.MNr,
				Thema:        row.Thema.String,
				Beschreibung: row.Beschreibung,
				Location:     row.Location,
				VideoLink:    row.VideoLink,
				Duration:     row.Duration,
			}.talk())
		}
	}

	if opts.FromPostalCode != "" {
		speakers, err = s.withDistances(ctx, speakers, opts)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	span.SetAttributes(attribute.Int("speaker.count", len(speakers)))
	return speakers, nil
}

func (s *service) withDistances(ctx context.Context, speakers []*Speaker, opts ListOptions) ([]*Speaker, error) {
	origin, ok, err := s.lookup(ctx, opts.FromPostalCode)
	if err != nil {
		return nil, err
	}
	if !ok {
		if opts.MaxDistance > 0 {
			return []*Speaker{}, nil
		}
		return speakers, nil
	}

	type resolved struct {
		c  Coordinates
		ok bool
	}
	cache := make(map[string]resolved)

	kept := speakers[:0]
	for _, sp := range speakers {
		r, seen := cache[sp.PostalCode]
		if !seen {
			r.c, r.ok, err = s.lookup(ctx, sp.PostalCode)
			if err != nil {
				return nil, err
			}
			cache[sp.PostalCode] = r
		}

		if r.ok {
			d := greatCircle(origin, r.c)
			sp.DistanceKM = &d
		}
		if opts.MaxDistance > 0 && (sp.DistanceKM == nil || *sp.DistanceKM > opts.MaxDistance) {
			continue
		}
		kept = append(kept, sp)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		a, b := kept[i].DistanceKM, kept[j].DistanceKM
		if a == nil || b == nil {
			return a != nil && b == nil
		}
		return *a < *b
	})
	return kept, nil
}

func (s *service) AddTalk(ctx context.Context, mnr string, req TalkRequest) (*Talk, error) {
	if err := security.ValidateStruct(req); err != nil {
		return nil, err
	}
	if _, err := s.GetSpeaker(ctx, mnr); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "speakers.add_talk",
		trace.WithAttributes(attribute.String("speaker.mnr", mnr)))
	defer span.End()

	id, err := database.InsertID(ctx, s.db, `
		INSERT INTO Refpool (mnr, thema, beschreibung, location, video_link, duration, aktiv)
		VALUES (?, ?, ?, ?, ?, ?, 1)`,
		mnr, req.Title, nullable(req.Description), nullable(req.Location), nullable(req.VideoLink), nullableInt(req.Duration),
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to insert talk: %w", err)
	}
	return s.getTalk(ctx, id)
}

func (s *service) UpdateTalk(ctx context.Context, id int64, req TalkRequest) (*Talk, error) {
	if err := security.ValidateStruct(req); err != nil {
		return nil, err
	}
	if _, err := s.getTalk(ctx, id); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "speakers.update_talk",
		trace.WithAttributes(attribute.Int64("talk.id", id)))
	defer span.End()

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE Refpool SET thema = ?, beschreibung = ?, location = ?, video_link = ?, duration = ?
		WHERE id = ?`),
		req.Title, nullable(req.Description), nullable(req.Location), nullable(req.VideoLink), nullableInt(req.Duration),
		id,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to update talk: %w", err)
	}
	return s.getTalk(ctx, id)
}

func (s *service) DeleteTalk(ctx context.Context, id int64) error {
	if _, err := s.getTalk(ctx, id); err != nil {
		return err
	}

	ctx, span := s.tracer.Start(ctx, "speakers.delete_talk",
		trace.WithAttributes(attribute.Int64("talk.id", id)))
	defer span.End()

	if _, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM Refpool WHERE id = ?`), id); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete talk: %w", err)
	}
	return nil
}

func (s *service) getTalk(ctx context.Context, id int64) (*Talk, error) {
	var row talkRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(
		`SELECT `+talkColumns+` FROM Refpool WHERE id = ? AND aktiv > 0`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTalkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query talk: %w", err)
	}
	t := row.talk()
	return &t, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
