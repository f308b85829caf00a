package chats

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/PabloGalante/farum-chats/internal/domain"
)

type sessionKey struct {
	session domain.SessionID
	persona domain.PersonaID
}

// RankRecent picks the latest message of every (session, persona) pair in an
// ascending slice and returns at most limit summaries, newest first.
//
// "Latest" is the last element of the group in input order, so timestamp ties
// resolve to insertion order. PersonaName is left empty.
func RankRecent(msgs []*domain.Message, limit int) []domain.SessionSummary {
	var order []sessionKey
	last := make(map[sessionKey]*domain.Message)

	for _, m := range msgs {
		k := sessionKey{session: m.SessionID, persona: m.Persona}
		if _, seen := last[k]; !seen {
			order = append(order, k)
		}
		last[k] = m
	}

	out := make([]domain.SessionSummary, 0, len(order))
	for _, k := range order {
		m := last[k]
		out = append(out, domain.SessionSummary{
			SessionID:      k.session,
			PersonaID:      k.persona,
			LastMessage:    m.Preview(),
			LastAIResponse: m.AIResponse,
			UpdatedAt:      m.Timestamp,
		})
	}

	sortByRecency(out)

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func sortByRecency(s []domain.SessionSummary) {
	sort.SliceStable(s, func(i, j int) bool {
		return s[i].UpdatedAt.After(s[j].UpdatedAt)
	})
}

// resolvePersonaNames fills PersonaName in place. Lookups that fail degrade to
// UnknownPersonaName; the error is logged and dropped.
func resolvePersonaNames(ctx context.Context, dir domain.PersonaDirectory, log *slog.Logger, summaries []domain.SessionSummary) {
	cache := make(map[domain.PersonaID]string)

	for i := range summaries {
		id := summaries[i].PersonaID
		if name, ok := cache[id]; ok {
			summaries[i].PersonaName = name
			continue
		}

		name, err := lookupPersonaName(ctx, dir, id)
		if err != nil {
			log.Warn("persona name unresolved", "persona", id, "error", err)
			name = domain.UnknownPersonaName
		}
		cache[id] = name
		summaries[i].PersonaName = name
	}
}

func lookupPersonaName(ctx context.Context, dir domain.PersonaDirectory, id domain.PersonaID) (string, error) {
	if dir == nil {
		return "", errors.Join(domain.ErrPersonaResolution, errors.New("no persona directory configured"))
	}

	p, err := dir.Resolve(ctx, id)
	if err != nil {
		return "", errors.Join(domain.ErrPersonaResolution, err)
	}
	if p == nil || p.Name == "" {
		return "", errors.Join(domain.ErrPersonaResolution, domain.ErrNotFound)
	}
	return p.Name, nil
}
