// Package shipping serves courier cost and destination lookups through a
// Redis read-through cache.
package shipping

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	pkgerrors "github.com/mmararief/dante-propolis/pkg/errors"
	"github.com/mmararief/dante-propolis/pkg/logger"
	"github.com/mmararief/dante-propolis/pkg/rajaongkir"
)

const defaultTTL = 12 * time.Hour

// Provider is the upstream shipping API.
type Provider interface {
	Cost(ctx context.Context, req rajaongkir.CostRequest) (json.RawMessage, error)
	Provinces(ctx context.Context) (json.RawMessage, error)
	Cities(ctx context.Context, provinceID int) (json.RawMessage, error)
}

// Cache is the key/value store plus the shipping key builders.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	ShippingCostKey(origin, destination string, weight int, courier string) string
	ShippingPrefix(parts ...string) string
}

// CostQuery identifies one cost lookup.
type CostQuery struct {
	Origin      string
	Destination string
	Weight      int
	Courier     string
}

// Service exposes cached shipping lookups.
type Service interface {
	Cost(ctx context.Context, q CostQuery) (json.RawMessage, error)
	Provinces(ctx context.Context) (json.RawMessage, error)
	Cities(ctx context.Context, provinceID int) (json.RawMessage, error)
	Invalidate(ctx context.Context, parts ...string) (int, error)
}

// Params wires the shipping service.
type Params struct {
	Provider Provider
	Cache    Cache
	TTL      time.Duration
	Logger   *logger.Logger
}

type service struct {
	provider Provider
	cache    Cache
	ttl      time.Duration
	logg     *logger.Logger
	group    singleflight.Group
}

// NewService builds the cached shipping service. A nil cache disables caching.
func NewService(params Params) (Service, error) {
	if params.Provider == nil {
		return nil, fmt.Errorf("shipping provider required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &service{provider: params.Provider, cache: params.Cache, ttl: ttl, logg: params.Logger}, nil
}

func (s *service) Cost(ctx context.Context, q CostQuery) (json.RawMessage, error) {
	q.Origin = strings.TrimSpace(q.Origin)
	q.Destination = strings.TrimSpace(q.Destination)
	q.Courier = strings.ToLower(strings.TrimSpace(q.Courier))
	if q.Origin == "" || q.Destination == "" || q.Courier == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "origin, destination and courier are required")
	}
	if q.Weight <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "weight must be positive")
	}

	key := s.costKey(q)
	return s.remember(ctx, key, func(ctx context.Context) (json.RawMessage, error) {
		return s.provider.Cost(ctx, rajaongkir.CostRequest{
			Origin:      q.Origin,
			Destination: q.Destination,
			Weight:      q.Weight,
			Courier:     q.Courier,
		})
	})
}

func (s *service) Provinces(ctx context.Context) (json.RawMessage, error) {
	return s.remember(ctx, s.prefix("provinces"), s.provider.Provinces)
}

func (s *service) Cities(ctx context.Context, provinceID int) (json.RawMessage, error) {
	if provinceID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "province id is required")
	}
	return s.remember(ctx, s.prefix("cities", strconv.Itoa(provinceID)), func(ctx context.Context) (json.RawMessage, error) {
		return s.provider.Cities(ctx, provinceID)
	})
}

// Invalidate drops every cached shipping key under the given prefix parts.
// No parts clears the whole shipping namespace.
func (s *service) Invalidate(ctx context.Context, parts ...string) (int, error) {
	if s.cache == nil {
		return 0, nil
	}
	deleted, err := s.cache.DeletePrefix(ctx, s.cache.ShippingPrefix(parts...))
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "invalidate shipping cache")
	}
	return deleted, nil
}

// remember serves key from cache or loads it once per key across concurrent
// callers. Cache failures degrade to a direct provider call.
func (s *service) remember(ctx context.Context, key string, load func(context.Context) (json.RawMessage, error)) (json.RawMessage, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, key)
		switch {
		case err == nil:
			return json.RawMessage(cached), nil
		case !errors.Is(err, redis.Nil):
			s.logg.Warn(s.logg.WithField(ctx, "cache_key", key), "shipping cache read failed: "+err.Error())
		}
	}

	value, err, _ := s.group.Do(key, func() (any, error) {
		data, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, key, string(data), s.ttl); err != nil {
				s.logg.Warn(s.logg.WithField(ctx, "cache_key", key), "shipping cache write failed: "+err.Error())
			}
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(json.RawMessage), nil
}

func (s *service) costKey(q CostQuery) string {
	if s.cache == nil {
		return strings.Join([]string{"cost", q.Origin, q.Destination, strconv.Itoa(q.Weight), q.Courier}, ":")
	}
	return s.cache.ShippingCostKey(q.Origin, q.Destination, q.Weight, q.Courier)
}

func (s *service) prefix(parts ...string) string {
	if s.cache == nil {
		return strings.Join(parts, ":")
	}
	return s.cache.ShippingPrefix(parts...)
}
