package database

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubTx embeds pgx.Tx for the methods runInTransaction never touches
type stubTx struct {
	pgx.Tx
	commitErr  error
	committed  bool
	rolledBack bool
}

func (t *stubTx) Commit(ctx context.Context) error {
	t.committed = true
	return t.commitErr
}

func (t *stubTx) Rollback(ctx context.Context) error {
	t.rolledBack = true
	return nil
}

type stubBeginner struct {
	tx       *stubTx
	beginErr error
}

func (b *stubBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	if b.beginErr != nil {
		return nil, b.beginErr
	}
	return b.tx, nil
}

func TestRunInTransaction_Commits(t *testing.T) {
	tx := &stubTx{}
	pool := &stubBeginner{tx: tx}

	err := runInTransaction(context.Background(), pool, func(pgx.Tx) error {
		return nil
	})

	require.NoError(t, err)
	assert.True(t, tx.committed)
	assert.False(t, tx.rolledBack)
}

func TestRunInTransaction_SurfacesCommitError(t *testing.T) {
	commitErr := errors.New("connection reset during commit")
	tx := &stubTx{commitErr: commitErr}
	pool := &stubBeginner{tx: tx}

	err := runInTransaction(context.Background(), pool, func(pgx.Tx) error {
		return nil
	})

	// A commit that never persisted must not be reported as success
	assert.ErrorIs(t, err, commitErr)
	assert.True(t, tx.committed)
}

func TestRunInTransaction_RollsBackOnError(t *testing.T) {
	fnErr := errors.New("constraint violation")
	tx := &stubTx{}
	pool := &stubBeginner{tx: tx}

	err := runInTransaction(context.Background(), pool, func(pgx.Tx) error {
		return fnErr
	})

	assert.ErrorIs(t, err, fnErr)
	assert.True(t, tx.rolledBack)
	assert.False(t, tx.committed)
}

func TestRunInTransaction_BeginError(t *testing.T) {
	beginErr := errors.New("pool exhausted")
	pool := &stubBeginner{beginErr: beginErr}

	err := runInTransaction(context.Background(), pool, func(pgx.Tx) error {
		t.Fatal("fn must not run when begin fails")
		return nil
	})

	assert.ErrorIs(t, err, beginErr)
}

func TestRunInTransaction_RollsBackOnPanic(t *testing.T) {
	tx := &stubTx{}
	pool := &stubBeginner{tx: tx}

	assert.Panics(t, func() {
		_ = runInTransaction(context.Background(), pool, func(pgx.Tx) error {
			panic("boom")
		})
	})

	assert.True(t, tx.rolledBack)
	assert.False(t, tx.committed)
}
