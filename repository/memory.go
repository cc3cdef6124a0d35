package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"messenger-core/errs"
	"messenger-core/model"
)

// MemoryUsers is a process-local user directory. It backs MESSAGE_STORE=memory
// and the tests of packages built on Users.
type MemoryUsers struct {
	mu     sync.RWMutex
	users  map[string]model.User
	blocks map[[2]string]struct{}
	nextID uint
}

var _ Users = (*MemoryUsers)(nil)

func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{
		users:  make(map[string]model.User),
		blocks: make(map[[2]string]struct{}),
	}
}

// Put inserts or replaces u, assigning the next id when u.ID is zero.
func (r *MemoryUsers) Put(u *model.User) *model.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.ID == 0 {
		r.nextID++
		u.ID = r.nextID
	} else if u.ID > r.nextID {
		r.nextID = u.ID
	}
	r.users[u.StringID()] = *u
	return u
}

func (r *MemoryUsers) GetByID(_ context.Context, id string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, errs.ErrUserNotFound
	}
	return &u, nil
}

func (r *MemoryUsers) Profiles(_ context.Context, ids []string) (map[string]model.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]model.Profile, len(ids))
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			out[id] = u.Profile()
		}
	}
	return out, nil
}

func (r *MemoryUsers) IsBlocked(_ context.Context, blockerID, blockedID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.blocks[[2]string{blockerID, blockedID}]
	return ok, nil
}

func (r *MemoryUsers) Block(_ context.Context, userID, blockedID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocks[[2]string{userID, blockedID}] = struct{}{}
	return nil
}

func (r *MemoryUsers) Unblock(_ context.Context, userID, blockedID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.blocks, [2]string{userID, blockedID})
	return nil
}

func (r *MemoryUsers) SetPushToken(_ context.Context, userID, token string) error {
	return r.update(userID, func(u *model.User) { u.PushToken = token })
}

func (r *MemoryUsers) SetPublicKey(_ context.Context, userID, key string) error {
	return r.update(userID, func(u *model.User) {
		u.PublicKey = key
		u.E2EEEnabled = true
	})
}

func (r *MemoryUsers) TouchLastSeen(_ context.Context, userID string, at time.Time) error {
	return r.update(userID, func(u *model.User) { u.LastSeen = &at })
}

func (r *MemoryUsers) PushTokens(_ context.Context, ids []string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var tokens []string
	for _, id := range ids {
		if u, ok := r.users[id]; ok && u.PushToken != "" {
			tokens = append(tokens, u.PushToken)
		}
	}
	return tokens, nil
}

func (r *MemoryUsers) update(id string, fn func(u *model.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return errs.ErrUserNotFound
	}
	fn(&u)
	r.users[id] = u
	return nil
}

// MemoryMessages keeps messages in insertion order in a single slice.
type MemoryMessages struct {
	mu       sync.RWMutex
	messages []model.Message
}

var _ Messages = (*MemoryMessages)(nil)

func NewMemoryMessages() *MemoryMessages {
	return &MemoryMessages{}
}

func inPair(m *model.Message, a, b string) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

// newestFirst orders by creation time, then id, both descending.
func newestFirst(ms []model.Message) {
	sort.SliceStable(ms, func(i, j int) bool {
		if !ms[i].CreatedAt.Equal(ms[j].CreatedAt) {
			return ms[i].CreatedAt.After(ms[j].CreatedAt)
		}
		return ms[i].ID > ms[j].ID
	})
}

func (r *MemoryMessages) Create(_ context.Context, m *model.Message) error {
	prepare(m)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, *m)
	return nil
}

func (r *MemoryMessages) Get(_ context.Context, id string) (*model.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := range r.messages {
		if r.messages[i].ID == id {
			m := r.messages[i]
			return &m, nil
		}
	}
	return nil, errs.ErrMessageNotFound
}

func (r *MemoryMessages) FindConversation(_ context.Context, a, b string, before *Cursor, limit int) ([]model.Message, error) {
	r.mu.RLock()
	var out []model.Message
	for i := range r.messages {
		m := &r.messages[i]
		if !inPair(m, a, b) {
			continue
		}
		if before.After(m) {
			continue
		}
		out = append(out, *m)
	}
	r.mu.RUnlock()

	newestFirst(out)
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	reverse(out)
	return out, nil
}

func (r *MemoryMessages) ListConversations(_ context.Context, userID string) ([]model.ConversationSummary, error) {
	r.mu.RLock()
	var touching []model.Message
	for i := range r.messages {
		if m := &r.messages[i]; m.SenderID == userID || m.ReceiverID == userID {
			touching = append(touching, *m)
		}
	}
	r.mu.RUnlock()

	newestFirst(touching)
	index := make(map[string]int)
	var out []model.ConversationSummary
	for _, m := range touching {
		cp := m.Counterpart(userID)
		i, seen := index[cp]
		if !seen {
			i = len(out)
			index[cp] = i
			out = append(out, model.ConversationSummary{CounterpartID: cp, Last: m})
		}
		if m.ReceiverID == userID && !m.Read {
			out[i].Unread++
		}
	}
	return out, nil
}

func (r *MemoryMessages) MarkRead(_ context.Context, senderID, receiverID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for i := range r.messages {
		m := &r.messages[i]
		if m.SenderID == senderID && m.ReceiverID == receiverID && !m.Read {
			m.Read = true
			ids = append(ids, m.ID)
		}
	}
	return ids, nil
}

func (r *MemoryMessages) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.messages {
		if r.messages[i].ID == id {
			r.messages = append(r.messages[:i], r.messages[i+1:]...)
			return nil
		}
	}
	return errs.ErrMessageNotFound
}

func (r *MemoryMessages) ConversationAttachmentKeys(_ context.Context, a, b string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var keys []string
	for i := range r.messages {
		if m := &r.messages[i]; inPair(m, a, b) && m.VoiceStorageKey != "" {
			keys = append(keys, m.VoiceStorageKey)
		}
	}
	return keys, nil
}

func (r *MemoryMessages) DeleteConversation(_ context.Context, a, b string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.messages[:0]
	var n int64
	for _, m := range r.messages {
		if inPair(&m, a, b) {
			n++
			continue
		}
		kept = append(kept, m)
	}
	r.messages = kept
	return n, nil
}
