// internal/speakers/service.go
package speakers

import (
	"context"
)

// Service defines the interface for the speaker directory.
type Service interface {
	CreateSpeaker(ctx context.Context, req SpeakerRequest) (*Speaker, error)
	GetSpeaker(ctx context.Context, mnr string) (*Speaker, error)
	UpdateSpeaker(ctx context.Context, mnr string, req SpeakerRequest) (*Speaker, error)
	DeleteSpeaker(ctx context.Context, mnr string) error
	ListSpeakers(ctx context.Context, opts ListOptions) ([]*Speaker, error)
	AddTalk(ctx context.Context, mnr string, req TalkRequest) (*Talk, error)
	UpdateTalk(ctx context.Context, id int64, req TalkRequest) (*Talk, error)
	DeleteTalk(ctx context.Context, id int64) error
	Distance(ctx context.Context, from, to string) (int, error)
}
