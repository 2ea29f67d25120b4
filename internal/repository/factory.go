package repository

import (
	"log"

	"github.com/navikt/liveroom/internal/config"
	"github.com/navikt/liveroom/internal/repository/memory"
	"github.com/navikt/liveroom/internal/repository/redis"
)

// NewRepository returns a Redis-backed repository when Redis is enabled,
// otherwise an in-memory one
func NewRepository(cfg config.RedisConfig) (Repository, error) {
	if !cfg.Enabled {
		log.Printf("Redis disabled, storing credentials in memory")
		return memory.NewRepository(), nil
	}

	repo, err := redis.NewRepository(cfg)
	if err != nil {
		return nil, err
	}
	log.Printf("Storing credentials in Redis (prefix %q)", cfg.KeyPrefix)
	return repo, nil
}
