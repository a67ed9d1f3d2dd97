// Package redis backs store.Store with Redis.
//
// Layout under the configured prefix:
//
//	<prefix>doc:<path>     JSON document
//	<prefix>idx:<parent>   set of child names, used by Children
//	<prefix>changes        pub/sub channel carrying one message per write
//
// Transact uses WATCH/MULTI/EXEC and retries when another client modified the
// key between the read and the commit.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"clinic-queue/internal/store"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultPrefix       = "clinicq:"
	defaultMaxRetries   = 25
	defaultPingInterval = 5 * time.Second
	watchBuffer         = 64
)

var tracer = otel.Tracer("clinic-queue/store/redis")

type Options struct {
	Prefix       string
	MaxRetries   int
	PingInterval time.Duration
}

type Store struct {
	client       *redis.Client
	prefix       string
	maxRetries   int
	pingInterval time.Duration
}

type changeMessage struct {
	Path    string `json:"path"`
	Deleted bool   `json:"deleted,omitempty"`
}

func New(client *redis.Client, options Options) *Store {
	prefix := options.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	retries := options.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}
	interval := options.PingInterval
	if interval <= 0 {
		interval = defaultPingInterval
	}
	return &Store{
		client:       client,
		prefix:       prefix,
		maxRetries:   retries,
		pingInterval: interval,
	}
}

func (s *Store) Get(ctx context.Context, path string) ([]byte, error) {
	path, err := clean(path)
	if err != nil {
		return nil, err
	}
	value, err := s.client.Get(ctx, s.docKey(path)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	return value, nil
}

func (s *Store) Children(ctx context.Context, path string) (map[string][]byte, error) {
	path, err := clean(path)
	if err != nil {
		return nil, err
	}
	names, err := s.client.SMembers(ctx, s.idxKey(path)).Result()
	if err != nil {
		return nil, fmt.Errorf("children %s: %w", path, err)
	}
	out := make(map[string][]byte, len(names))
	if len(names) == 0 {
		return out, nil
	}

	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = s.docKey(store.Join(path, name))
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("children %s: %w", path, err)
	}
	for i, value := range values {
		// a nil entry is an index member whose document was removed concurrently
		str, ok := value.(string)
		if !ok {
			continue
		}
		out[names[i]] = []byte(str)
	}
	return out, nil
}

func (s *Store) Set(ctx context.Context, path string, value []byte) error {
	path, err := clean(path)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.queueWrite(ctx, pipe, path, value)
		return nil
	})
	if err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	path, err := clean(path)
	if err != nil {
		return err
	}
	parent, name := store.Split(path)
	payload, _ := json.Marshal(changeMessage{Path: path, Deleted: true})
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.docKey(path))
		if parent != "" {
			pipe.SRem(ctx, s.idxKey(parent), name)
		}
		pipe.Publish(ctx, s.channel(), payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

func (s *Store) Transact(ctx context.Context, path string, fn store.TxFunc) ([]byte, error) {
	path, err := clean(path)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "store.Transact", trace.WithAttributes(attribute.String("store.path", path)))
	defer span.End()

	key := s.docKey(path)
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		var result []byte
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			current, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				current = nil
			} else if err != nil {
				return err
			}

			next, err := fn(current)
			if err != nil {
				return err
			}
			if next == nil {
				result = current
				return nil
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				s.queueWrite(ctx, pipe, path, next)
				return nil
			})
			if err != nil {
				return err
			}
			result = next
			return nil
		}, key)

		if err == nil {
			span.SetAttributes(attribute.Int("store.attempts", attempt))
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Error, store.ErrTxConflict.Error())
	return nil, fmt.Errorf("transact %s: %w", path, store.ErrTxConflict)
}

func (s *Store) Watch(ctx context.Context, path string) (<-chan store.Change, error) {
	path = strings.Trim(path, "/")
	pubsub := s.client.Subscribe(ctx, s.channel())
	// wait for the subscription to be confirmed so no write after Watch returns is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}

	out := make(chan store.Change, watchBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var change changeMessage
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					log.Printf("[store] bad change message: %v", err)
					continue
				}
				if !store.Matches(path, change.Path) {
					continue
				}
				select {
				case out <- store.Change{Path: change.Path, Deleted: change.Deleted}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Connectivity probes the server with PING and emits the link state whenever it
// flips. The first value is emitted immediately.
func (s *Store) Connectivity(ctx context.Context) <-chan bool {
	out := make(chan bool, 1)
	go func() {
		defer close(out)
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()

		last := s.ping(ctx)
		out <- last
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				live := s.ping(ctx)
				if live == last {
					continue
				}
				last = live
				select {
				case out <- live:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) ping(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, s.pingInterval)
	defer cancel()
	return s.client.Ping(pingCtx).Err() == nil
}

func (s *Store) queueWrite(ctx context.Context, pipe redis.Pipeliner, path string, value []byte) {
	parent, name := store.Split(path)
	payload, _ := json.Marshal(changeMessage{Path: path})
	pipe.Set(ctx, s.docKey(path), value, 0)
	if parent != "" {
		pipe.SAdd(ctx, s.idxKey(parent), name)
	}
	pipe.Publish(ctx, s.channel(), payload)
}

func (s *Store) docKey(path string) string {
	return s.prefix + "doc:" + path
}

func (s *Store) idxKey(path string) string {
	return s.prefix + "idx:" + path
}

func (s *Store) channel() string {
	return s.prefix + "changes"
}

func clean(path string) (string, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return "", store.ErrInvalidPath
	}
	return path, nil
}
