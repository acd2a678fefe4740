package ports

import (
	"context"

	"gamefinder/internal/core/domain"
)

// TokenProvider defines the contract for obtaining an app access token.
type TokenProvider interface {
	// Token performs the credential exchange and returns a bearer token.
	Token(ctx context.Context) (string, error)
}

// Platform defines the read-only lookups a work unit performs.
// Implementations degrade failures into the returned Outcome.
type Platform interface {
	// ResolveUserID maps a login name to a platform user id.
	ResolveUserID(ctx context.Context, token, username string) domain.Outcome[string]

	// ListVideos returns the first page of videos owned by userID.
	ListVideos(ctx context.Context, token, userID string) domain.Outcome[[]domain.VideoRecord]

	// ListClips returns the first page of clips from userID's channel.
	ListClips(ctx context.Context, token, userID string) domain.Outcome[[]domain.ClipRecord]
}

// UsernameSource loads the input table.
type UsernameSource interface {
	Load(ctx context.Context) (*domain.InputTable, error)
}

// PlayerSink receives qualifying input rows in batches.
type PlayerSink interface {
	// WritePlayers writes one batch. The first call creates or truncates the
	// destination and writes header; later calls append rows only.
	WritePlayers(ctx context.Context, header []string, rows []domain.InputRow) error
}

// LinkSink receives the qualifying clip and video URLs once, at the end of a run.
type LinkSink interface {
	WriteLinks(ctx context.Context, links []domain.ContentLink) error
}
