// internal/speakers/distance.go
package speakers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const earthRadiusKM = 6371.0

// Distance returns the great-circle distance in whole kilometres between two
// postal codes, or 0 when either code cannot be resolved.
func (s *service) Distance(ctx context.Context, from, to string) (int, error) {
	ctx, span := s.tracer.Start(ctx, "speakers.distance",
		trace.WithAttributes(
			attribute.String("plz.from", from),
			attribute.String("plz.to", to),
		),
	)
	defer span.End()

	a, ok, err := s.lookup(ctx, from)
	if err != nil || !ok {
		return 0, err
	}
	b, ok, err := s.lookup(ctx, to)
	if err != nil || !ok {
		return 0, err
	}
	return greatCircle(a, b), nil
}

// lookup resolves code by prefix match. When nothing matches it retries
// with the last character dropped until the code is empty.
func (s *service) lookup(ctx context.Context, code string) (Coordinates, bool, error) {
	if code == "" {
		return Coordinates{}, false, nil
	}
	if strings.ContainsAny(code, `%_\`) {
		return s.lookup(ctx, code[:len(code)-1])
	}

	var c Coordinates
	query := s.db.Rebind(`SELECT lat, lon FROM PLZ WHERE plz LIKE ? ORDER BY plz LIMIT 1`)
	err := s.db.GetContext(ctx, &c, query, code+"%")
	if errors.Is(err, sql.ErrNoRows) {
		return s.lookup(ctx, code[:len(code)-1])
	}
	if err != nil {
		return Coordinates{}, false, fmt.Errorf("failed to look up postal code: %w", err)
	}
	return c, true, nil
}

// greatCircle applies the spherical law of cosines.
func greatCircle(a, b Coordinates) int {
	lat1, lat2 := radians(a.Lat), radians(b.Lat)
	dLon := radians(b.Lon - a.Lon)

	cos := math.Sin(lat1)*math.Sin(lat2) + math.Cos(lat1)*math.Cos(lat2)*math.Cos(dLon)
	cos = math.Max(-1, math.Min(1, cos))

	return int(math.Round(math.Acos(cos) * earthRadiusKM))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
