package instruction

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeQuerier satisfies Querier for unit tests that only need the Exec and
// QueryRow paths.
type fakeQuerier struct {
	execTag pgconn.CommandTag
	execErr error
	rowErr  error
}

func (f *fakeQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return f.execTag, f.execErr
}

func (f *fakeQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return fakeRow{err: f.rowErr}
}

type fakeRow struct{ err error }

func (r fakeRow) Scan(dest ...any) error { return r.err }

func newTestStore(t *testing.T, db Querier) *Store {
	t.Helper()
	s, err := NewStore(db, nil)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestNewStoreRequiresQuerier(t *testing.T) {
	if _, err := NewStore(nil, nil); err == nil {
		t.Error("NewStore(nil) should fail")
	}
}

func TestCreateRejectsEmptyContentBeforeDB(t *testing.T) {
	s := newTestStore(t, &fakeQuerier{rowErr: errors.New("db should not be reached")})

	if _, err := s.Create(context.Background(), "title", "", "general"); !errors.Is(err, ErrEmptyContent) {
		t.Errorf("err = %v, want ErrEmptyContent", err)
	}
}

func TestGetMissingInstructionIsNotFound(t *testing.T) {
	s := newTestStore(t, &fakeQuerier{rowErr: pgx.ErrNoRows})

	if _, err := s.Get(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteMissingInstructionIsNotFound(t *testing.T) {
	s := newTestStore(t, &fakeQuerier{execTag: pgconn.NewCommandTag("DELETE 0")})

	if err := s.Delete(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSetEmbeddingMissingInstructionIsNotFound(t *testing.T) {
	s := newTestStore(t, &fakeQuerier{execTag: pgconn.NewCommandTag("UPDATE 0")})

	err := s.SetEmbedding(context.Background(), uuid.New(), []float32{0.1, 0.2})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
