package config

import (
	"context"
	"fmt"
	"log"

	"clinic-queue/internal/store"
	"clinic-queue/internal/store/memory"
	redisstore "clinic-queue/internal/store/redis"
)

// OpenStore builds the store selected by STORE_BACKEND. The memory backend is
// only shared within one process.
func OpenStore(ctx context.Context, cfg Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case "memory":
		log.Println("[store] using in-memory store, state is not shared between processes")
		return memory.New(), nil
	case "redis", "":
		client, err := NewRedis(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return redisstore.New(client, redisstore.Options{
			Prefix:       cfg.StorePrefix,
			PingInterval: cfg.ConnectivityInterval,
		}), nil
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}
