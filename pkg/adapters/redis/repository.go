package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/scenaria/pkg/domain"
	"github.com/aretw0/scenaria/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by the repository and the locker.
const DefaultPrefix = "scenaria:"

// farFuture is the index score of documents without expiry (2100-01-01).
const farFuture = 4102444800

// Repository implements ports.ScenarioRepository using Redis.
// Each scenario is one JSON document; a ZSET indexes the stored ids.
type Repository struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Repository)

// WithTTL sets the expiration of stored scenarios. Every Apply refreshes it.
func WithTTL(ttl time.Duration) Option {
	return func(r *Repository) {
		r.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(r *Repository) {
		r.prefix = prefix
	}
}

// New creates a new Redis repository with options.
func New(address, password string, db int, opts ...Option) *Repository {
	return NewFromClient(backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	}), opts...)
}

// NewFromClient creates a new Redis repository from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Repository {
	r := &Repository{
		client: client,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Repository) key(scenarioID string) string {
	return r.prefix + "scenario:" + scenarioID
}

func (r *Repository) indexKey() string {
	return r.prefix + "index"
}

func (r *Repository) get(ctx context.Context, c backend.Cmdable, scenarioID string) (*domain.Document, error) {
	val, err := c.Get(ctx, r.key(scenarioID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrScenarioNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}
	var doc domain.Document
	if err := json.Unmarshal(val, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scenario: %w", err)
	}
	return &doc, nil
}

// Apply reads, checks and rewrites the document inside a WATCH transaction.
// A concurrent write between the read and the write is reported as a conflict.
func (r *Repository) Apply(ctx context.Context, scenarioID string, baseVersion int, ops []domain.Operation) (int, error) {
	key := r.key(scenarioID)
	var version int

	err := r.client.Watch(ctx, func(tx *backend.Tx) error {
		current := domain.Document{ScenarioID: scenarioID}
		stored, err := r.get(ctx, tx, scenarioID)
		switch {
		case err == nil:
			current = *stored
		case !errors.Is(err, domain.ErrScenarioNotFound):
			return err
		}
		if current.Version != baseVersion {
			return &domain.SyncConflictError{
				ScenarioID: scenarioID,
				Err:        fmt.Errorf("stored version %d, expected %d", current.Version, baseVersion),
			}
		}

		next, err := current.Next(ops)
		if err != nil {
			return err
		}
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to marshal scenario: %w", err)
		}

		score := float64(time.Now().Add(r.ttl).Unix())
		if r.ttl == 0 {
			score = farFuture
		}
		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.Set(ctx, key, data, r.ttl)
			pipe.ZAdd(ctx, r.indexKey(), backend.Z{Score: score, Member: scenarioID})
			return nil
		})
		if err != nil {
			return err
		}
		version = next.Version
		return nil
	}, key)

	if errors.Is(err, backend.TxFailedErr) {
		return 0, &domain.SyncConflictError{ScenarioID: scenarioID, Err: fmt.Errorf("concurrent write: %w", err)}
	}
	if err != nil {
		return 0, err
	}
	return version, nil
}

// Load retrieves the document from Redis.
func (r *Repository) Load(ctx context.Context, scenarioID string) (*domain.Document, error) {
	doc, err := r.get(ctx, r.client, scenarioID)
	if err != nil {
		return nil, err
	}
	domain.SortRecords(doc.Records)
	return doc, nil
}

// Delete removes the document and its index entry.
func (r *Repository) Delete(ctx context.Context, scenarioID string) error {
	pipe := r.client.Pipeline()
	pipe.Del(ctx, r.key(scenarioID))
	pipe.ZRem(ctx, r.indexKey(), scenarioID)
	_, err := pipe.Exec(ctx)
	return err
}

// List returns the stored ids, pruning index entries whose document expired.
func (r *Repository) List(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())
	if err := r.client.ZRemRangeByScore(ctx, r.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err(); err != nil {
		return nil, fmt.Errorf("failed to prune expired scenarios: %w", err)
	}
	ids, err := r.client.ZRange(ctx, r.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list scenarios: %w", err)
	}
	return ids, nil
}

// Close closes the redis client.
func (r *Repository) Close() error {
	return r.client.Close()
}

var _ ports.ScenarioRepository = (*Repository)(nil)
