// internal/membership/adapter.go
package membership

import (
	"context"
	"errors"
	"sort"

	"github.com/jmoiron/sqlx"
)

var (
	ErrNotFound    = errors.New("member not found")
	ErrRateLimited = errors.New("rate limit exceeded")
)

// Adapter is the capability set every member table layout has to provide.
// Authenticate reports a failed login as (nil, false, nil); the error is
// reserved for database failures.
type Adapter interface {
	GetByID(ctx context.Context, id int64) (*Member, error)
	GetByEmail(ctx context.Context, email string) (*Member, error)
	GetByMembershipNumber(ctx context.Context, mnr string) (*Member, error)
	List(ctx context.Context) ([]*Member, error)
	Create(ctx context.Context, m *Member) (*Member, error)
	Update(ctx context.Context, m *Member) error
	Delete(ctx context.Context, id int64) error
	Authenticate(ctx context.Context, email, secret string) (*Member, bool, error)
}

const (
	KindStandard = "standard"
	KindLegacy   = "berechtigte"
)

var adapters = map[string]func(db *sqlx.DB) Adapter{
	KindStandard: func(db *sqlx.DB) Adapter { return NewStandardAdapter(db) },
	KindLegacy:   func(db *sqlx.DB) Adapter { return NewLegacyAdapter(db) },
}

// NewAdapter returns the adapter registered under kind. Unknown kinds get
// the standard adapter.
func NewAdapter(kind string, db *sqlx.DB) Adapter {
	if ctor, ok := adapters[kind]; ok {
		return ctor(db)
	}
	return NewStandardAdapter(db)
}

// Kinds lists the registered adapter keys.
func Kinds() []string {
	kinds := make([]string, 0, len(adapters))
	for k := range adapters {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
