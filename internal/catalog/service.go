package catalog

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tramitex/tramitex/internal/shared"
)

const cacheTTL = 10 * time.Minute

// RepositoryPort abstracts catalog persistence.
type RepositoryPort interface {
	GetDealer(ctx context.Context, id uuid.UUID) (*Dealer, error)
	ListDealers(ctx context.Context) ([]Dealer, error)
	CreateDealer(ctx context.Context, d *Dealer) error
	GetCity(ctx context.Context, id uuid.UUID) (*City, error)
	ListCities(ctx context.Context) ([]City, error)
	CreateCity(ctx context.Context, c *City) error
}

// Service serves catalog reads through a redis read-through cache. Cache
// failures degrade to direct repository reads, never to request failures.
type Service struct {
	repo   RepositoryPort
	cache  *redis.Client
	logger *slog.Logger
}

// NewService wires the catalog service. cache may be nil to disable caching.
func NewService(repo RepositoryPort, cache *redis.Client, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger}
}

func (s *Service) cached(ctx context.Context, key string, dest any, load func() (any, error)) error {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, key).Bytes()
		if err == nil {
			if err := json.Unmarshal(raw, dest); err == nil {
				return nil
			}
		} else if err != redis.Nil {
			s.logger.Warn("catalog cache read failed", "key", key, "error", err)
		}
	}
	fresh, err := load()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(fresh)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, raw, cacheTTL).Err(); err != nil {
			s.logger.Warn("catalog cache write failed", "key", key, "error", err)
		}
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context, keys ...string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, keys...).Err(); err != nil {
		s.logger.Warn("catalog cache invalidation failed", "keys", keys, "error", err)
	}
}

// GetDealer returns a dealer, serving repeat reads from cache.
func (s *Service) GetDealer(ctx context.Context, id uuid.UUID) (*Dealer, error) {
	var d Dealer
	err := s.cached(ctx, "catalog:dealer:"+id.String(), &d, func() (any, error) {
		return s.repo.GetDealer(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDealers returns all active dealers.
func (s *Service) ListDealers(ctx context.Context) ([]Dealer, error) {
	var out []Dealer
	err := s.cached(ctx, "catalog:dealers", &out, func() (any, error) {
		return s.repo.ListDealers(ctx)
	})
	return out, err
}

// CreateDealer registers a dealer and drops the list cache.
func (s *Service) CreateDealer(ctx context.Context, d *Dealer) error {
	d.Code = strings.ToUpper(strings.TrimSpace(d.Code))
	d.Name = strings.TrimSpace(d.Name)
	if d.Code == "" || d.Name == "" {
		return shared.E(shared.ErrValidation, "dealer code and name are required", nil)
	}
	if err := s.repo.CreateDealer(ctx, d); err != nil {
		return err
	}
	s.invalidate(ctx, "catalog:dealers")
	s.logger.Info("dealer created", "dealer_id", d.ID, "code", d.Code)
	return nil
}

// GetCity returns a city, serving repeat reads from cache.
func (s *Service) GetCity(ctx context.Context, id uuid.UUID) (*City, error) {
	var c City
	err := s.cached(ctx, "catalog:city:"+id.String(), &c, func() (any, error) {
		return s.repo.GetCity(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCities returns all active cities.
func (s *Service) ListCities(ctx context.Context) ([]City, error) {
	var out []City
	err := s.cached(ctx, "catalog:cities", &out, func() (any, error) {
		return s.repo.ListCities(ctx)
	})
	return out, err
}

// CreateCity registers a city and drops the list cache.
func (s *Service) CreateCity(ctx context.Context, c *City) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return shared.E(shared.ErrValidation, "city name is required", nil)
	}
	if err := s.repo.CreateCity(ctx, c); err != nil {
		return err
	}
	s.invalidate(ctx, "catalog:cities")
	s.logger.Info("city created", "city_id", c.ID, "name", c.Name)
	return nil
}
