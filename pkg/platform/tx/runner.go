package tx

import (
	"context"
	"database/sql"
	"hash/fnv"
	"sync"
	"time"

	dErrors "lexlink/pkg/domain-errors"
)

// Runner provides a per-owner unit of work. Everything fn does through stores
// that honour the context (see ExecutorFrom) commits or rolls back together,
// and two units of work for the same key never interleave.
type Runner interface {
	RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// defaultTxTimeout bounds a unit of work when the caller set no deadline.
const defaultTxTimeout = 5 * time.Second

func withDefaultTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func aborted(err error) error {
	return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
}

// numShards spreads owners over independent mutexes so unrelated owners do
// not contend.
const numShards = 128

// ShardedRunner serializes units of work per key with sharded mutexes. It is
// the in-memory counterpart of SQLRunner.
type ShardedRunner struct {
	shards  [numShards]sync.Mutex
	timeout time.Duration
}

func NewShardedRunner() *ShardedRunner {
	return &ShardedRunner{}
}

func (r *ShardedRunner) RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return aborted(err)
	}
	ctx, cancel := withDefaultTimeout(ctx, r.timeout)
	defer cancel()

	shard := shardFor(key)
	r.shards[shard].Lock()
	defer r.shards[shard].Unlock()

	// Re-check after waiting on the lock.
	if err := ctx.Err(); err != nil {
		return aborted(err)
	}

	ctx, uow := withUnitOfWork(ctx)
	if err := fn(ctx); err != nil {
		uow.rollback()
		return err
	}
	uow.commit()
	return nil
}

func shardFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % numShards)
}

// SQLRunner wraps fn in a database transaction carried on the context.
type SQLRunner struct {
	db      *sql.DB
	timeout time.Duration
}

func NewSQLRunner(db *sql.DB) *SQLRunner {
	return &SQLRunner{db: db}
}

// RunInTx ignores key: row locks taken by the stores (SELECT ... FOR UPDATE)
// provide per-owner isolation.
func (r *SQLRunner) RunInTx(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return aborted(err)
	}
	ctx, cancel := withDefaultTimeout(ctx, r.timeout)
	defer cancel()

	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	ctx, uow := withUnitOfWork(WithTx(ctx, sqlTx))
	if err := fn(ctx); err != nil {
		uow.rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		uow.rollback()
		return err
	}
	uow.commit()
	return nil
}
