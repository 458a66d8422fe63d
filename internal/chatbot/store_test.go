package chatbot

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

func TestAttachNodeRejectsUnknownKeyBeforeDB(t *testing.T) {
	s := newTestStore(t, &fakeQuerier{execErr: errors.New("db should not be reached")})

	err := s.AttachNode(context.Background(), uuid.New(), "hologram", 0, nil)
	if !errors.Is(err, ErrUnknownNode) {
		t.Errorf("err = %v, want ErrUnknownNode", err)
	}
}

func TestAttachNodeMapsConstraintErrors(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantErr error
	}{
		{"duplicate link", "23505", ErrDuplicateNode},
		{"missing chatbot", "23503", ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t, &fakeQuerier{execErr: &pgconn.PgError{Code: tt.code}})

			err := s.AttachNode(context.Background(), uuid.New(), KeyVoice, 0, nil)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDetachNodeMissingLinkIsNotFound(t *testing.T) {
	s := newTestStore(t, &fakeQuerier{execTag: pgconn.NewCommandTag("DELETE 0")})

	err := s.DetachNode(context.Background(), uuid.New(), KeyVoice)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestGetMissingChatbotIsNotFound(t *testing.T) {
	s := newTestStore(t, &fakeQuerier{rowErr: pgx.ErrNoRows})

	if _, err := s.Get(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
