package sqlite_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/farum-chats/internal/adapters/storage/sqlite"
	"github.com/PabloGalante/farum-chats/internal/domain"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	s, err := sqlite.NewStore(context.Background(), filepath.Join(t.TempDir(), "chats.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func msg(id, user, persona, session string, at time.Duration) *domain.Message {
	return &domain.Message{
		ID:          domain.MessageID(id),
		User:        domain.UserID(user),
		Persona:     domain.PersonaID(persona),
		SessionID:   domain.SessionID(session),
		UserMessage: "q-" + id,
		AIResponse:  "a-" + id,
		Timestamp:   base.Add(at),
	}
}

func ids(msgs []*domain.Message) []domain.MessageID {
	out := make([]domain.MessageID, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestStore_AppendAndQuery(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	in := msg("m1", "u1", "p1", "s1", time.Second)
	in.FileURL = "https://files.example/a.png"
	in.FileType = "image/png"
	require.NoError(t, s.AppendMessage(ctx, in))
	require.NoError(t, s.AppendMessage(ctx, msg("m0", "u1", "p1", "s1", 0)))
	require.NoError(t, s.AppendMessage(ctx, msg("m2", "u1", "p1", "s1", time.Second)))

	got, err := s.QueryMessages(ctx, "u1", domain.MessageFilter{})
	require.NoError(t, err)
	require.Equal(t, []domain.MessageID{"m0", "m1", "m2"}, ids(got))

	first := got[1]
	require.Equal(t, domain.UserID("u1"), first.User)
	require.Equal(t, domain.PersonaID("p1"), first.Persona)
	require.Equal(t, domain.SessionID("s1"), first.SessionID)
	require.Equal(t, "https://files.example/a.png", first.FileURL)
	require.Equal(t, "image/png", first.FileType)
	require.True(t, first.Timestamp.Equal(base.Add(time.Second)))
	require.False(t, first.Archived)
}

func TestStore_QueryFilters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.AppendMessage(ctx, msg("a", "u1", "p1", "s1", 1)))
	require.NoError(t, s.AppendMessage(ctx, msg("b", "u1", "p2", "s2", 2)))
	require.NoError(t, s.AppendMessage(ctx, msg("c", "u2", "p1", "s1", 3)))

	n, err := s.SetArchived(ctx, "u1", "s2", true)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := s.QueryMessages(ctx, "u1", domain.MessageFilter{Archived: domain.Ptr(false)})
	require.NoError(t, err)
	require.Equal(t, []domain.MessageID{"a"}, ids(got))

	got, err = s.QueryMessages(ctx, "u1", domain.MessageFilter{Persona: domain.Ptr(domain.PersonaID("p2"))})
	require.NoError(t, err)
	require.Equal(t, []domain.MessageID{"b"}, ids(got))
	require.True(t, got[0].Archived)

	got, err = s.QueryMessages(ctx, "u2", domain.MessageFilter{SessionID: domain.Ptr(domain.SessionID("s1"))})
	require.NoError(t, err)
	require.Equal(t, []domain.MessageID{"c"}, ids(got))
}

func TestStore_SetArchivedIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.AppendMessage(ctx, msg("a", "u1", "p1", "s1", 1)))
	require.NoError(t, s.AppendMessage(ctx, msg("b", "u1", "p1", "s1", 2)))
	require.NoError(t, s.AppendMessage(ctx, msg("c", "u2", "p1", "s1", 3)))

	n, err := s.SetArchived(ctx, "u1", "s1", true)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = s.SetArchived(ctx, "u1", "s1", true)
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = s.SetArchived(ctx, "u1", "s1", false)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	other, err := s.QueryMessages(ctx, "u2", domain.MessageFilter{Archived: domain.Ptr(true)})
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestStore_UpdateMessageText(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.AppendMessage(ctx, msg("a", "u1", "p1", "s1", time.Second)))

	_, err := s.UpdateMessageText(ctx, "a", "u2", "hijack", nil)
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.UpdateMessageText(ctx, "missing", "u1", "x", nil)
	require.ErrorIs(t, err, domain.ErrNotFound)

	updated, err := s.UpdateMessageText(ctx, "a", "u1", "edited", nil)
	require.NoError(t, err)
	require.Equal(t, "edited", updated.UserMessage)
	require.Equal(t, "a-a", updated.AIResponse)

	ai := "new answer"
	updated, err = s.UpdateMessageText(ctx, "a", "u1", "edited", &ai)
	require.NoError(t, err)
	require.Equal(t, "new answer", updated.AIResponse)
	require.Equal(t, domain.SessionID("s1"), updated.SessionID)
	require.True(t, updated.Timestamp.Equal(base.Add(time.Second)))
}

func TestStore_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	errs := make(chan error, 20)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			errs <- s.AppendMessage(ctx, msg(id, "u1", "p1", "s1", time.Duration(i)))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.QueryMessages(ctx, "u1", domain.MessageFilter{})
	require.NoError(t, err)
	require.Len(t, got, 20)
	for i := 1; i < len(got); i++ {
		require.False(t, got[i].Timestamp.Before(got[i-1].Timestamp))
	}
}

func TestStore_Personas(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Resolve(ctx, "p1")
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.UpsertPersona(ctx, domain.Persona{ID: "p1", Name: "Dana"}))
	require.NoError(t, s.UpsertPersona(ctx, domain.Persona{ID: "p1", Name: "Dana R."}))

	p, err := s.Resolve(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, "Dana R.", p.Name)
}

func TestStore_CanceledContextIsNotUnavailable(t *testing.T) {
	s := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.QueryMessages(ctx, "u1", domain.MessageFilter{})
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, domain.ErrStorageUnavailable)
}
