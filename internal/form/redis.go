package form

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"github.com/symptom-checker-server/internal/domain"
)

// RedisSnapshotter stores session snapshots in Redis with an idle TTL. The state goes
// under prefix+id as JSON and the image bytes under prefix+id+":image". The image key is
// rewritten only when the accepted image changes, so field edits do not re-send the upload.
type RedisSnapshotter struct {
	client *redis.Client
	prefix string
	ttl    time.Duration

	// session id -> token of the image last written for it ("" for none)
	written *expirable.LRU[string, string]
}

const imageTokenCacheSize = 10000

// NewRedisSnapshotter connects to Redis using the forms configuration.
func NewRedisSnapshotter(cfg domain.FormsConfig) (*RedisSnapshotter, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisSnapshotterFromClient(client, cfg.KeyPrefix, cfg.SessionTTL), nil
}

// NewRedisSnapshotterFromClient wraps an existing client.
func NewRedisSnapshotterFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisSnapshotter {
	if prefix == "" {
		prefix = "symptom-checker:form:"
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisSnapshotter{
		client:  client,
		prefix:  prefix,
		ttl:     ttl,
		written: expirable.NewLRU[string, string](imageTokenCacheSize, nil, ttl),
	}
}

func (r *RedisSnapshotter) key(id string) string {
	return r.prefix + id
}

func (r *RedisSnapshotter) imageKey(id string) string {
	return r.key(id) + ":image"
}

// Save writes the state and refreshes both TTLs. The image bytes are written only when
// the accepted image differs from the one last saved for this session.
func (r *RedisSnapshotter) Save(ctx context.Context, id string, s State) error {
	snap := s.clone()
	snap.Image.Preview = ""
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	token := ""
	if s.Image.Accepted != nil {
		token = s.Image.Accepted.Token
	}
	if last, known := r.written.Get(id); known && last == token {
		done, err := r.refresh(ctx, id, payload, token)
		if done || err != nil {
			return err
		}
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.key(id), payload, r.ttl)
	if token == "" {
		pipe.Del(ctx, r.imageKey(id))
	} else {
		data, err := readImage(s.Image.Accepted)
		if err != nil {
			return fmt.Errorf("reading image for snapshot: %w", err)
		}
		pipe.Set(ctx, r.imageKey(id), data, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		r.written.Remove(id)
		return err
	}
	r.written.Add(id, token)
	return nil
}

// refresh writes the state and extends the stored image's TTL. It reports false when the
// image key is gone, in which case the caller writes the image again.
func (r *RedisSnapshotter) refresh(ctx context.Context, id string, payload []byte, token string) (bool, error) {
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.key(id), payload, r.ttl)
	var expire *redis.BoolCmd
	if token != "" {
		expire = pipe.Expire(ctx, r.imageKey(id), r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		r.written.Remove(id)
		return false, err
	}
	if expire != nil && !expire.Val() {
		r.written.Remove(id)
		return false, nil
	}
	return true, nil
}

// Load returns nil, nil when no snapshot exists. A state whose image bytes are gone is
// restored without the image.
func (r *RedisSnapshotter) Load(ctx context.Context, id string) (*State, error) {
	payload, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var state State
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	if state.Errors == nil {
		state.Errors = map[string][]string{}
	}

	token := ""
	if meta := state.Image.Accepted; meta != nil {
		data, err := r.client.Get(ctx, r.imageKey(id)).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			state.Image.Accepted = nil
		case err != nil:
			return nil, err
		default:
			file := domain.NewBytesImage(meta.Filename, meta.MediaType, data)
			state.Image.Accepted = domain.NewAcceptedImage(meta.Token, meta.MediaType, file)
			token = meta.Token
		}
	}
	r.written.Add(id, token)
	return &state, nil
}

// Delete removes a snapshot and its image.
func (r *RedisSnapshotter) Delete(ctx context.Context, id string) error {
	r.written.Remove(id)
	return r.client.Del(ctx, r.key(id), r.imageKey(id)).Err()
}

// Close closes the Redis client.
func (r *RedisSnapshotter) Close() error {
	return r.client.Close()
}

func readImage(img *domain.AcceptedImage) ([]byte, error) {
	if b, ok := img.File().(*domain.BytesImage); ok {
		return b.Bytes(), nil
	}
	rc, err := img.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, domain.MaxImageBytes))
}
