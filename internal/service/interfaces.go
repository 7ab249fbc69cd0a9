package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"listing_syncer/internal/domain"
)

type Source interface {
	ID() string
	Name() string
	Listings(ctx context.Context, q domain.ListingQuery) (*domain.ListingPage, error)
	Listing(ctx context.Context, uuid string) (*domain.Listing, error)
	History(ctx context.Context, q domain.HistoryQuery) (*domain.HistoryPage, error)
	ActiveIDs(ctx context.Context, page int) (*domain.IDPage, error)
	DeletedIDs(ctx context.Context, q domain.DeletedQuery) (*domain.IDPage, error)
	Collections(ctx context.Context) ([]domain.Collection, error)
	Activities(ctx context.Context) ([]domain.TermValue, error)
	AttributeChoices(ctx context.Context, id int64) (domain.TermValue, []domain.TermValue, error)
	GlobalCategories(ctx context.Context) ([]domain.TermValue, error)
	Attributes(ctx context.Context) ([]domain.AttributeDef, error)
}

type Translator interface {
	Translate(ctx context.Context, listing *domain.Listing) (*domain.Record, error)
	Reset()
}

type TermResolver interface {
	Resolve(ctx context.Context, taxonomy string, value domain.TermValue, parentID int64) (int64, error)
	ResolveAll(ctx context.Context, taxonomy string, values []domain.TermValue) ([]int64, error)
	Reset()
}

type RecordStore interface {
	FindByUUID(ctx context.Context, uuid string) (*domain.RecordRef, error)
	FindByUUIDs(ctx context.Context, uuids []string) (map[string]domain.RecordRef, error)
	Save(ctx context.Context, record *domain.Record) (int64, error)
	ReplaceRelations(ctx context.Context, recordID int64, links []domain.RelatedLink) error
	SetTerms(ctx context.Context, recordID int64, taxonomy string, termIDs []int64) error
	SetStatus(ctx context.Context, recordID int64, status domain.Status) error
	SoftDelete(ctx context.Context, recordID int64) error
	PublishedAfter(ctx context.Context, afterID int64, limit int) ([]domain.RecordRef, error)
	ExpiredPublished(ctx context.Context, endedBefore time.Time) ([]domain.RecordRef, error)
}

type FieldStore interface {
	List(ctx context.Context) ([]domain.FieldDef, error)
	Insert(ctx context.Context, defs []domain.FieldDef) (int64, error)
}

type SyncStateStore interface {
	Get(ctx context.Context, sourceID string) (*domain.SyncState, error)
	Update(ctx context.Context, state *domain.SyncState) error
}

// StateStore is the TTL-bound store for flags and cursors shared between units.
type StateStore interface {
	LoadState(ctx context.Context) (*domain.ImportState, error)
	SaveState(ctx context.Context, state *domain.ImportState) error
	Load(ctx context.Context, key string, dst any) (bool, error)
	Store(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, keys ...string) error
}

type TaskScheduler interface {
	Schedule(ctx context.Context, family string, payload domain.Cursor) error
	UnscheduleAll(ctx context.Context, family string) (int64, error)
	NextScheduled(ctx context.Context, family string) (*time.Time, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	Publish(ctx context.Context, event *domain.ListingEvent) error
	Close() error
}
