package chats

import "github.com/PabloGalante/farum-chats/internal/domain"

// GroupBySession partitions an already ordered slice by session id.
// It keeps the input order inside each group and returns the session ids in
// order of first appearance. Nothing is re-sorted.
func GroupBySession(msgs []*domain.Message) ([]domain.SessionID, map[domain.SessionID][]*domain.Message) {
	order := make([]domain.SessionID, 0)
	groups := make(map[domain.SessionID][]*domain.Message)

	for _, m := range msgs {
		if _, seen := groups[m.SessionID]; !seen {
			order = append(order, m.SessionID)
		}
		groups[m.SessionID] = append(groups[m.SessionID], m)
	}
	return order, groups
}

// BuildThreads turns an ordered slice into the history view: one thread per
// session, dated by its first message.
func BuildThreads(msgs []*domain.Message) []domain.SessionThread {
	order, groups := GroupBySession(msgs)

	out := make([]domain.SessionThread, 0, len(order))
	for _, id := range order {
		group := groups[id]
		out = append(out, domain.SessionThread{
			SessionID: id,
			Messages:  group,
			Date:      group[0].Timestamp,
		})
	}
	return out
}
