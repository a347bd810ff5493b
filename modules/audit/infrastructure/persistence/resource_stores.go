package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/iota-uz/backoffice/modules/audit/domain/resource"
	"github.com/iota-uz/backoffice/modules/audit/domain/value_objects/fieldvalue"
	"github.com/iota-uz/backoffice/modules/audit/infrastructure/persistence/models"
	"github.com/iota-uz/backoffice/pkg/composables"
	"github.com/iota-uz/backoffice/pkg/repo"
)

// UpdatedAtKey is stamped by every store on Write.
const UpdatedAtKey = "updated_at"

// Seeder stores a complete record, replacing any previous version.
type Seeder interface {
	Put(ctx context.Context, ref resource.Ref, fields *fieldvalue.Object) error
}

type clock func() time.Time

func applyPatch(current, patch *fieldvalue.Object, now time.Time) *fieldvalue.Object {
	next := current.Merge(patch)
	next.Set(UpdatedAtKey, fieldvalue.String(now.UTC().Format(time.RFC3339Nano)))
	return next
}

// MemoryResourceStore keeps records in process memory.
type MemoryResourceStore struct {
	mu      sync.RWMutex
	records map[resource.Ref]*fieldvalue.Object
	now     clock
}

func NewMemoryResourceStore() *MemoryResourceStore {
	return &MemoryResourceStore{records: map[resource.Ref]*fieldvalue.Object{}, now: time.Now}
}

func (s *MemoryResourceStore) Put(_ context.Context, ref resource.Ref, fields *fieldvalue.Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[ref] = fields.Clone()
	return nil
}

func (s *MemoryResourceStore) Read(_ context.Context, ref resource.Ref) (*fieldvalue.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[ref]
	if !ok {
		return nil, resource.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *MemoryResourceStore) Write(_ context.Context, ref resource.Ref, patch *fieldvalue.Object) (*fieldvalue.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[ref]
	if !ok {
		return nil, resource.ErrNotFound
	}
	next := applyPatch(rec, patch, s.now())
	s.records[ref] = next
	return next.Clone(), nil
}

func (s *MemoryResourceStore) Delete(_ context.Context, ref resource.Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[ref]; !ok {
		return resource.ErrNotFound
	}
	delete(s.records, ref)
	return nil
}

// RedisResourceStore keeps each resource type in one hash, one JSON document per record.
type RedisResourceStore struct {
	redis  *redis.Client
	prefix string
	now    clock
}

// Optimistic transaction retries before Write gives up.
const redisWriteAttempts = 5

func NewRedisResourceStore(client *redis.Client) *RedisResourceStore {
	return &RedisResourceStore{redis: client, prefix: "backoffice:resources", now: time.Now}
}

func (s *RedisResourceStore) hashKey(t resource.Type) string {
	return s.prefix + ":" + string(t)
}

func (s *RedisResourceStore) Put(ctx context.Context, ref resource.Ref, fields *fieldvalue.Object) error {
	raw, err := encodeMetadata(fields)
	if err != nil {
		return err
	}
	return s.redis.HSet(ctx, s.hashKey(ref.Type), ref.ID, raw).Err()
}

type hashGetter interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
}

func (s *RedisResourceStore) read(ctx context.Context, c hashGetter, ref resource.Ref) (*fieldvalue.Object, error) {
	raw, err := c.HGet(ctx, s.hashKey(ref.Type), ref.ID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, resource.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "redis hget %s", ref)
	}
	obj, err := fieldvalue.ParseObject(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", ref)
	}
	if obj == nil {
		obj = fieldvalue.NewObject()
	}
	return obj, nil
}

func (s *RedisResourceStore) Read(ctx context.Context, ref resource.Ref) (*fieldvalue.Object, error) {
	return s.read(ctx, s.redis, ref)
}

// Write runs a WATCH/MULTI transaction so concurrent writers do not lose updates.
func (s *RedisResourceStore) Write(ctx context.Context, ref resource.Ref, patch *fieldvalue.Object) (*fieldvalue.Object, error) {
	key := s.hashKey(ref.Type)
	var next *fieldvalue.Object
	txf := func(tx *redis.Tx) error {
		current, err := s.read(ctx, tx, ref)
		if err != nil {
			return err
		}
		next = applyPatch(current, patch, s.now())
		raw, err := next.MarshalJSON()
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, ref.ID, raw)
			return nil
		})
		return err
	}
	for attempt := 0; attempt < redisWriteAttempts; attempt++ {
		err := s.redis.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return next, nil
	}
	return nil, errors.Errorf("redis write %s: too much contention", ref)
}

func (s *RedisResourceStore) Delete(ctx context.Context, ref resource.Ref) error {
	n, err := s.redis.HDel(ctx, s.hashKey(ref.Type), ref.ID).Result()
	if err != nil {
		return errors.Wrapf(err, "redis hdel %s", ref)
	}
	if n == 0 {
		return resource.ErrNotFound
	}
	return nil
}

const resourcesTable = "resources"

// PostgresResourceStore keeps records in the resources table. Fields are stored as
// json (not jsonb) so key order survives.
type PostgresResourceStore struct {
	now clock
}

func NewPostgresResourceStore() *PostgresResourceStore {
	return &PostgresResourceStore{now: time.Now}
}

func (s *PostgresResourceStore) Put(ctx context.Context, ref resource.Ref, fields *fieldvalue.Object) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	raw, err := encodeMetadata(fields)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	_, err = tx.Exec(ctx, repo.Join(
		repo.Insert(resourcesTable, []string{"resource_type", "resource_id", "fields", "created_at", "updated_at"}),
		"ON CONFLICT (resource_type, resource_id) DO UPDATE SET fields = EXCLUDED.fields, updated_at = EXCLUDED.updated_at",
	), string(ref.Type), ref.ID, string(raw), now, now)
	if err != nil {
		return errors.Wrap(err, "upsert resources")
	}
	return nil
}

func (s *PostgresResourceStore) scan(row pgx.Row, ref resource.Ref) (*fieldvalue.Object, error) {
	var m models.Resource
	if err := row.Scan(&m.Fields); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, resource.ErrNotFound
		}
		return nil, errors.Wrapf(err, "select resources %s", ref)
	}
	obj, err := fieldvalue.ParseObject(m.Fields)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", ref)
	}
	if obj == nil {
		obj = fieldvalue.NewObject()
	}
	return obj, nil
}

func (s *PostgresResourceStore) Read(ctx context.Context, ref resource.Ref) (*fieldvalue.Object, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	return s.scan(tx.QueryRow(ctx,
		"SELECT fields FROM resources WHERE resource_type = $1 AND resource_id = $2",
		string(ref.Type), ref.ID,
	), ref)
}

// Write locks the row for the read-modify-write.
func (s *PostgresResourceStore) Write(ctx context.Context, ref resource.Ref, patch *fieldvalue.Object) (*fieldvalue.Object, error) {
	return composables.InTxResult(ctx, func(txCtx context.Context) (*fieldvalue.Object, error) {
		tx, err := composables.UseTx(txCtx)
		if err != nil {
			return nil, err
		}
		current, err := s.scan(tx.QueryRow(txCtx,
			"SELECT fields FROM resources WHERE resource_type = $1 AND resource_id = $2 FOR UPDATE",
			string(ref.Type), ref.ID,
		), ref)
		if err != nil {
			return nil, err
		}
		now := s.now().UTC()
		next := applyPatch(current, patch, now)
		raw, err := next.MarshalJSON()
		if err != nil {
			return nil, err
		}
		if _, err := tx.Exec(txCtx,
			"UPDATE resources SET fields = $3, updated_at = $4 WHERE resource_type = $1 AND resource_id = $2",
			string(ref.Type), ref.ID, string(raw), now,
		); err != nil {
			return nil, errors.Wrapf(err, "update resources %s", ref)
		}
		return next, nil
	})
}

func (s *PostgresResourceStore) Delete(ctx context.Context, ref resource.Ref) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx,
		"DELETE FROM resources WHERE resource_type = $1 AND resource_id = $2",
		string(ref.Type), ref.ID,
	)
	if err != nil {
		return errors.Wrapf(err, "delete resources %s", ref)
	}
	if tag.RowsAffected() == 0 {
		return resource.ErrNotFound
	}
	return nil
}
