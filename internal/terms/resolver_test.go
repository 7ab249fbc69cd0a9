package terms

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"listing_syncer/internal/domain"
)

type memoryStore struct {
	terms   []domain.Term
	lookups int
	fail    error
}

func (m *memoryStore) FindByPath(_ context.Context, taxonomy, path string) (*domain.Term, error) {
	m.lookups++
	if m.fail != nil {
		return nil, m.fail
	}
	for i := range m.terms {
		if m.terms[i].Taxonomy == taxonomy && m.terms[i].ExternalPath == path {
			return &m.terms[i], nil
		}
	}
	return nil, nil
}

func (m *memoryStore) FindByName(_ context.Context, taxonomy, name string) (*domain.Term, error) {
	m.lookups++
	for i := range m.terms {
		if m.terms[i].Taxonomy == taxonomy && m.terms[i].Name == name {
			return &m.terms[i], nil
		}
	}
	return nil, nil
}

func (m *memoryStore) FindUnmapped(_ context.Context, taxonomy, name string) (*domain.Term, error) {
	m.lookups++
	for i := range m.terms {
		if m.terms[i].Taxonomy == taxonomy && m.terms[i].Name == name && m.terms[i].ExternalPath == "" {
			return &m.terms[i], nil
		}
	}
	return nil, nil
}

func (m *memoryStore) SetPath(_ context.Context, id int64, path string) error {
	for i := range m.terms {
		if m.terms[i].ID == id {
			m.terms[i].ExternalPath = path
			return nil
		}
	}
	return errors.New("term not found")
}

func (m *memoryStore) Create(_ context.Context, term *domain.Term) (int64, error) {
	t := *term
	t.ID = int64(len(m.terms) + 1)
	m.terms = append(m.terms, t)
	return t.ID, nil
}

type ResolverTestSuite struct {
	suite.Suite
	store    *memoryStore
	resolver *Resolver
}

func (s *ResolverTestSuite) SetupTest() {
	s.store = &memoryStore{}
	s.resolver = NewResolver(s.store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestResolverTestSuite(t *testing.T) {
	suite.Run(t, new(ResolverTestSuite))
}

func (s *ResolverTestSuite) TestConvergesAcrossRuns() {
	ctx := context.Background()
	value := domain.TermValue{Name: "Attractions", Path: "/listings-types/7/"}

	first, err := s.resolver.Resolve(ctx, domain.TaxonomyType, value, 0)
	s.Require().NoError(err)

	for run := 0; run < 5; run++ {
		resolver := NewResolver(s.store, slog.New(slog.NewTextHandler(io.Discard, nil)))
		id, err := resolver.Resolve(ctx, domain.TaxonomyType, value, 0)
		s.Require().NoError(err)
		s.Equal(first, id)
	}

	s.Len(s.store.terms, 1)
}

func (s *ResolverTestSuite) TestAdoptsUnmappedTerm() {
	ctx := context.Background()
	s.store.terms = []domain.Term{{ID: 42, Taxonomy: domain.TaxonomyType, Name: "Dining"}}

	id, err := s.resolver.Resolve(ctx, domain.TaxonomyType, domain.TermValue{Name: "Dining", Path: "/listings-types/9/"}, 0)
	s.Require().NoError(err)

	s.Equal(int64(42), id)
	s.Len(s.store.terms, 1)
	s.Equal("/listings-types/9/", s.store.terms[0].ExternalPath)
}

func (s *ResolverTestSuite) TestDoesNotAdoptMappedTermWithSameName() {
	ctx := context.Background()
	s.store.terms = []domain.Term{{ID: 1, Taxonomy: domain.TaxonomyType, Name: "Dining", ExternalPath: "/listings-types/1/"}}

	id, err := s.resolver.Resolve(ctx, domain.TaxonomyType, domain.TermValue{Name: "Dining", Path: "/listings-types/2/"}, 0)
	s.Require().NoError(err)

	s.NotEqual(int64(1), id)
	s.Len(s.store.terms, 2)
}

func (s *ResolverTestSuite) TestNameLookupAndParent() {
	ctx := context.Background()

	parent, err := s.resolver.Resolve(ctx, "activities", domain.TermValue{Name: "Activities", Path: "/listings-activities/parent/"}, 0)
	s.Require().NoError(err)

	child, err := s.resolver.Resolve(ctx, "activities", domain.TermValue{Name: "Hiking"}, parent)
	s.Require().NoError(err)

	again, err := NewResolver(s.store, slog.New(slog.NewTextHandler(io.Discard, nil))).
		Resolve(ctx, "activities", domain.TermValue{Name: "Hiking"}, parent)
	s.Require().NoError(err)

	s.Equal(child, again)
	s.Equal(parent, s.store.terms[1].ParentID)
}

func (s *ResolverTestSuite) TestMemoizesWithinRun() {
	ctx := context.Background()
	value := domain.TermValue{Name: "Outdoors", Path: "/global-categories/3/"}

	_, err := s.resolver.Resolve(ctx, domain.TaxonomyGlocats, value, 0)
	s.Require().NoError(err)
	lookups := s.store.lookups

	_, err = s.resolver.Resolve(ctx, domain.TaxonomyGlocats, value, 0)
	s.Require().NoError(err)
	s.Equal(lookups, s.store.lookups)

	s.resolver.Reset()
	_, err = s.resolver.Resolve(ctx, domain.TaxonomyGlocats, value, 0)
	s.Require().NoError(err)
	s.Greater(s.store.lookups, lookups)
}

func (s *ResolverTestSuite) TestResolveAllSkipsBlanksAndDuplicates() {
	ids, err := s.resolver.ResolveAll(context.Background(), "amenities", []domain.TermValue{
		{Name: "Wifi"}, {Name: " "}, {Name: "Parking"}, {Name: "Wifi"},
	})
	s.Require().NoError(err)
	s.Len(ids, 2)
}

func (s *ResolverTestSuite) TestStoreErrorIsWrapped() {
	s.store.fail = errors.New("connection refused")

	_, err := s.resolver.Resolve(context.Background(), domain.TaxonomyType, domain.TermValue{Name: "x", Path: "/x/"}, 0)
	s.Require().Error(err)
	s.ErrorIs(err, s.store.fail)
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"pipe", "Hiking| Camping", []string{"Hiking", "Camping"}},
		{"comma", "Hiking, Camping", []string{"Hiking", "Camping"}},
		{"single", "Hiking", []string{"Hiking"}},
		{"pipe wins over comma", "Food, Drink| Lodging", []string{"Food, Drink", "Lodging"}},
		{"empty entries dropped", "A| | B| ", []string{"A", "B"}},
		{"empty", "", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Split(tt.raw)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got)
		})
	}
}
