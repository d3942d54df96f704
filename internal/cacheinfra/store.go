package cacheinfra

import (
	gocache "github.com/patrickmn/go-cache"
	"github.com/viccon/sturdyc"

	"github.com/goliatone/go-rpc-query/cache"
)

// store holds query data addressed by serialized cache keys.
type store interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	Delete(key string)
	Keys() []string
}

// newStore builds the store selected by cfg.Backend. cfg must be valid.
func newStore(cfg cache.Config) store {
	if cfg.Backend == cache.BackendMemory {
		return &memoryStore{client: gocache.New(cfg.TTL, cfg.CleanupInterval)}
	}
	return newSturdycStore(cfg)
}

// sturdycOptions maps the configuration to sturdyc options.
// Capacity, NumShards, TTL and EvictionPercentage are passed to sturdyc.New directly.
func sturdycOptions(cfg cache.Config) []sturdyc.Option {
	var options []sturdyc.Option
	if cfg.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(cfg.EvictionInterval))
	}
	return options
}

// sturdycStore wraps a sturdyc client.
type sturdycStore struct {
	client *sturdyc.Client[any]
}

func newSturdycStore(cfg cache.Config) *sturdycStore {
	client := sturdyc.New[any](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		sturdycOptions(cfg)...,
	)
	return &sturdycStore{client: client}
}

func (s *sturdycStore) Get(key string) (any, bool) {
	return s.client.Get(key)
}

func (s *sturdycStore) Set(key string, value any) {
	s.client.Set(key, value)
}

func (s *sturdycStore) Delete(key string) {
	s.client.Delete(key)
}

func (s *sturdycStore) Keys() []string {
	return s.client.ScanKeys()
}

// memoryStore wraps a go-cache instance; entries expire after the configured TTL.
type memoryStore struct {
	client *gocache.Cache
}

func (s *memoryStore) Get(key string) (any, bool) {
	return s.client.Get(key)
}

func (s *memoryStore) Set(key string, value any) {
	s.client.Set(key, value, gocache.DefaultExpiration)
}

func (s *memoryStore) Delete(key string) {
	s.client.Delete(key)
}

func (s *memoryStore) Keys() []string {
	items := s.client.Items()
	keys := make([]string, 0, len(items))
	for key := range items {
		keys = append(keys, key)
	}
	return keys
}
