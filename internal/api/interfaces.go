package api

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"listing_syncer/internal/domain"
	"listing_syncer/internal/service"
)

// Engine is the part of the sync service exposed over HTTP.
type Engine interface {
	Start(ctx context.Context, mode domain.Mode, opts service.StartOptions) error
	Cancel(ctx context.Context) error
	NoBulk(ctx context.Context) error
	Status(ctx context.Context) (*service.Status, error)
	Report(ctx context.Context) (*domain.Report, error)
}
