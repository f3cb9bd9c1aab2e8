// internal/membership/service.go
package membership

import (
	"context"
)

// Service defines the interface for the membership service.
type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*Member, error)
	Authenticate(ctx context.Context, email, password string) (*Member, bool, error)
	GetMember(ctx context.Context, id int64) (*Member, error)
	GetMemberByNumber(ctx context.Context, mnr string) (*Member, error)
	ListMembers(ctx context.Context) ([]*Member, error)
	UpdateMember(ctx context.Context, id int64, req UpdateRequest) (*Member, error)
	DeleteMember(ctx context.Context, id int64) error
}
