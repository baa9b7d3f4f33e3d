// Package publish pushes completed rankings to external consumers.
package publish

import (
	"context"

	"airquality-service/models"
)

// Publisher receives every completed ranking
type Publisher interface {
	Publish(ctx context.Context, result models.RankingResult) error
}

// PublisherFunc adapts a function into a Publisher
type PublisherFunc func(ctx context.Context, result models.RankingResult) error

// Publish calls f
func (f PublisherFunc) Publish(ctx context.Context, result models.RankingResult) error {
	return f(ctx, result)
}
