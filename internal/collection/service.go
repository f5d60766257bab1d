package collection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/mmcdole/rolodex/internal/domain"
)

// ErrAmbiguous indicates a name matched more than one collection equally well
var ErrAmbiguous = errors.New("ambiguous collection name")

// Repository is the backend surface the service reads from
type Repository interface {
	domain.CollectionRepository
	domain.SearchRepository
}

// Service orchestrates collection listing, the role table and page loads
type Service struct {
	repo   Repository
	store  domain.Store
	names  RoleNames
	roles  *Roles
	logger *slog.Logger
}

// NewService creates a new collection service.
func NewService(repo Repository, store domain.Store, names RoleNames, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, store: store, names: names, roles: NewRoles(nil), logger: logger}
}

// Roles returns the role table; it is empty until LoadRoles runs
func (s *Service) Roles() *Roles {
	return s.roles
}

// Collections returns the cached collection list, fetching on a miss
func (s *Service) Collections(ctx context.Context) ([]domain.Collection, error) {
	if colls, ok := s.store.GetCollections(); ok {
		return colls, nil
	}
	return s.Refresh(ctx)
}

// Refresh fetches the collection list and replaces the cache
func (s *Service) Refresh(ctx context.Context) ([]domain.Collection, error) {
	colls, err := s.repo.GetCollections(ctx)
	if err != nil {
		s.logger.Error("failed to fetch collections", "error", err)
		return nil, err
	}
	if err := s.store.SaveCollections(colls); err != nil {
		s.logger.Error("failed to save collections", "error", err)
	}
	s.logger.Debug("fetched collections", "count", len(colls))
	return colls, nil
}

// LoadRoles resolves the configured role names against a fresh collection
// list. When the backend is unreachable the last cached table is used.
func (s *Service) LoadRoles(ctx context.Context) (*Roles, error) {
	colls, err := s.Refresh(ctx)
	if err != nil {
		cached, ok := s.store.GetRoles()
		if !ok {
			return s.roles, fmt.Errorf("failed to load collection roles: %w", err)
		}
		s.logger.Warn("using cached collection roles", "error", err)
		s.roles.Replace(cached)
		return s.roles, nil
	}

	table := BuildRoles(colls, s.names)
	for _, role := range []domain.CollectionRole{domain.RoleLiked, domain.RoleIgnored} {
		if _, ok := table[role]; !ok {
			s.logger.Warn("collection role not found", "role", role.String(), "name", s.names.name(role))
		}
	}
	s.roles.Replace(table)
	if err := s.store.SaveRoles(table); err != nil {
		s.logger.Error("failed to save collection roles", "error", err)
	}
	return s.roles, nil
}

// Resolve finds a collection by id, exact name, or fuzzy name.
func (s *Service) Resolve(ctx context.Context, name string) (domain.Collection, error) {
	colls, err := s.Collections(ctx)
	if err != nil {
		return domain.Collection{}, err
	}
	return resolve(colls, name)
}

func resolve(colls []domain.Collection, name string) (domain.Collection, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Collection{}, fmt.Errorf("%w: empty collection name", domain.ErrValidation)
	}

	if id, err := uuid.Parse(name); err == nil {
		for _, c := range colls {
			if c.ID == id {
				return c, nil
			}
		}
	}
	for _, c := range colls {
		if strings.EqualFold(c.Name, name) {
			return c, nil
		}
	}

	names := make([]string, len(colls))
	for i, c := range colls {
		names[i] = c.Name
	}
	ranks := fuzzy.RankFindFold(name, names)
	if len(ranks) == 0 {
		return domain.Collection{}, fmt.Errorf("%w: no collection matches %q", domain.ErrNotFound, name)
	}
	sort.Sort(ranks)
	if len(ranks) > 1 && ranks[0].Distance == ranks[1].Distance {
		return domain.Collection{}, fmt.Errorf("%w: %q matches %q and %q", ErrAmbiguous, name, ranks[0].Target, ranks[1].Target)
	}
	return colls[ranks[0].OriginalIndex], nil
}

// Page loads one page of the scope: the collection listing, or search
// results when the scope carries a query.
func (s *Service) Page(ctx context.Context, scope domain.Scope, offset, limit int) (domain.CompanyPage, error) {
	var (
		page domain.CompanyPage
		err  error
	)
	if scope.IsFiltered() {
		page, err = s.repo.SearchPage(ctx, scope, offset, limit)
	} else {
		page, err = s.repo.GetCollectionPage(ctx, scope.CollectionID, offset, limit)
	}
	if err != nil {
		s.logger.Error("failed to fetch page", "error", err, "collectionID", scope.CollectionID, "query", scope.Query, "offset", offset)
		return domain.CompanyPage{}, err
	}
	return page, nil
}
