package pin

import (
	"context"
	"sort"
	"sync"
	"time"

	"pinbot/internal/storage"
	"pinbot/internal/transport"
	"pinbot/pkg/logx"
)

// fakeMessenger scripts per-chat error sequences and records call counts
// plus the peak number of concurrent operations.
type fakeMessenger struct {
	mu sync.Mutex

	sendErrs  map[int64][]error
	pinErrs   map[int64][]error
	unpinErrs map[int64][]error

	sendCalls  map[int64]int
	pinCalls   map[int64]int
	unpinCalls map[int64]int

	// texts records the body of every SendText per chat, in call order.
	texts map[int64][]string

	photoCalls int
	videoCalls int

	inflight    int
	maxInflight int

	// sendDelay holds each send open, making concurrency observable.
	sendDelay time.Duration
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{
		sendErrs:   map[int64][]error{},
		pinErrs:    map[int64][]error{},
		unpinErrs:  map[int64][]error{},
		sendCalls:  map[int64]int{},
		pinCalls:   map[int64]int{},
		unpinCalls: map[int64]int{},
		texts:      map[int64][]string{},
	}
}

func (m *fakeMessenger) enter() {
	m.mu.Lock()
	m.inflight++
	if m.inflight > m.maxInflight {
		m.maxInflight = m.inflight
	}
	m.mu.Unlock()
}

func (m *fakeMessenger) leave() {
	m.mu.Lock()
	m.inflight--
	m.mu.Unlock()
}

func (m *fakeMessenger) pop(q map[int64][]error, chatID int64) error {
	errs := q[chatID]
	if len(errs) == 0 {
		return nil
	}
	err := errs[0]
	q[chatID] = errs[1:]
	return err
}

func (m *fakeMessenger) send(chatID int64) (transport.MessageRef, error) {
	m.enter()
	defer m.leave()
	if m.sendDelay > 0 {
		time.Sleep(m.sendDelay)
	}
	m.mu.Lock()
	m.sendCalls[chatID]++
	err := m.pop(m.sendErrs, chatID)
	m.mu.Unlock()
	if err != nil {
		return transport.MessageRef{}, err
	}
	return transport.MessageRef{ChatID: chatID, MessageID: 777}, nil
}

func (m *fakeMessenger) SendText(_ context.Context, chatID int64, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	m.mu.Lock()
	m.texts[chatID] = append(m.texts[chatID], text)
	m.mu.Unlock()
	return m.send(chatID)
}

func (m *fakeMessenger) SendPhoto(_ context.Context, chatID int64, _, _ string, _ *transport.SendOptions) (transport.MessageRef, error) {
	m.mu.Lock()
	m.photoCalls++
	m.mu.Unlock()
	return m.send(chatID)
}

func (m *fakeMessenger) SendVideo(_ context.Context, chatID int64, _, _ string, _ *transport.SendOptions) (transport.MessageRef, error) {
	m.mu.Lock()
	m.videoCalls++
	m.mu.Unlock()
	return m.send(chatID)
}

func (m *fakeMessenger) Pin(_ context.Context, ref transport.MessageRef, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pinCalls[ref.ChatID]++
	return m.pop(m.pinErrs, ref.ChatID)
}

func (m *fakeMessenger) UnpinAll(_ context.Context, chatID int64) error {
	m.enter()
	defer m.leave()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unpinCalls[chatID]++
	return m.pop(m.unpinErrs, chatID)
}

func (m *fakeMessenger) totalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.sendCalls {
		n += c
	}
	for _, c := range m.pinCalls {
		n += c
	}
	for _, c := range m.unpinCalls {
		n += c
	}
	return n
}

// fakeStore is an in-memory storage.Store for orchestrator tests.
type fakeStore struct {
	mu         sync.Mutex
	nextID     int64
	msgs       map[int64]storage.PinnedMessage
	activeID   int64
	recipients map[int64]storage.Recipient // by UserID
	markErr    error
	pageErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		msgs:       map[int64]storage.PinnedMessage{},
		recipients: map[int64]storage.Recipient{},
	}
}

func (f *fakeStore) addRecipients(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < n; i++ {
		id := int64(len(f.recipients) + 1)
		f.recipients[id] = storage.Recipient{UserID: id, ChatID: 1000 + id}
	}
}

func (f *fakeStore) seedActive(msg storage.PinnedMessage) storage.PinnedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	msg.ID = f.nextID
	msg.Active = true
	f.msgs[msg.ID] = msg
	f.activeID = msg.ID
	return msg
}

func (f *fakeStore) CreatePinnedMessage(_ context.Context, m storage.NewPinnedMessage, activate bool) (storage.PinnedMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	msg := storage.PinnedMessage{
		ID:               f.nextID,
		Content:          m.Content,
		MediaType:        m.MediaType,
		MediaFileID:      m.MediaFileID,
		SendBeforeMenu:   m.SendBeforeMenu,
		SendOnEveryStart: m.SendOnEveryStart,
		CreatedBy:        m.CreatedBy,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
	if activate {
		if f.activeID != 0 {
			prev := f.msgs[f.activeID]
			prev.Active = false
			f.msgs[f.activeID] = prev
		}
		msg.Active = true
		f.activeID = msg.ID
	}
	f.msgs[msg.ID] = msg
	return msg, nil
}

func (f *fakeStore) ActivatePinnedMessage(_ context.Context, id int64) (storage.PinnedMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.msgs[id]
	if !ok {
		return storage.PinnedMessage{}, storage.ErrNotFound
	}
	if f.activeID != 0 && f.activeID != id {
		prev := f.msgs[f.activeID]
		prev.Active = false
		f.msgs[f.activeID] = prev
	}
	msg.Active = true
	f.msgs[id] = msg
	f.activeID = id
	return msg, nil
}

func (f *fakeStore) DeactivateActive(_ context.Context) (*storage.PinnedMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.activeID == 0 {
		return nil, nil
	}
	msg := f.msgs[f.activeID]
	msg.Active = false
	f.msgs[f.activeID] = msg
	f.activeID = 0
	return &msg, nil
}

func (f *fakeStore) ActiveMessage(_ context.Context) (*storage.PinnedMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.activeID == 0 {
		return nil, nil
	}
	msg := f.msgs[f.activeID]
	return &msg, nil
}

func (f *fakeStore) PinnedMessageByID(_ context.Context, id int64) (storage.PinnedMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.msgs[id]
	if !ok {
		return storage.PinnedMessage{}, storage.ErrNotFound
	}
	return msg, nil
}

func (f *fakeStore) DeletePinnedMessage(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.msgs[id]; !ok {
		return storage.ErrNotFound
	}
	if f.activeID == id {
		return storage.ErrMessageActive
	}
	delete(f.msgs, id)
	return nil
}

func (f *fakeStore) RecipientPage(_ context.Context, afterID int64, limit int) ([]storage.Recipient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pageErr != nil {
		return nil, f.pageErr
	}
	ids := make([]int64, 0, len(f.recipients))
	for id := range f.recipients {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]storage.Recipient, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.recipients[id])
	}
	return out, nil
}

func (f *fakeStore) MarkDelivered(_ context.Context, userID, messageID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	r, ok := f.recipients[userID]
	if !ok {
		return storage.ErrNotFound
	}
	r.LastDeliveredID = messageID
	f.recipients[userID] = r
	return nil
}

func (f *fakeStore) UpsertUser(_ context.Context, chatID int64, _ string) (storage.Recipient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.recipients {
		if r.ChatID == chatID {
			return r, nil
		}
	}
	id := int64(len(f.recipients) + 1)
	r := storage.Recipient{UserID: id, ChatID: chatID}
	f.recipients[id] = r
	return r, nil
}

func (f *fakeStore) RecipientByChat(_ context.Context, chatID int64) (storage.Recipient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.recipients {
		if r.ChatID == chatID {
			return r, nil
		}
	}
	return storage.Recipient{}, storage.ErrNotFound
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) lastDelivered(userID int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recipients[userID].LastDeliveredID
}

// newTestService wires a service over the fakes with instant sleeps and a
// cooldown window short enough to never interfere unless a test arms it
// deliberately.
func newTestService(st storage.Store, msgr transport.Messenger, opts Options) *Service {
	if opts.Cooldown == 0 {
		opts.Cooldown = time.Nanosecond
	}
	svc := NewService(st, msgr, nil, logx.Nop(), opts)
	svc.sleep = func(context.Context, time.Duration) bool { return true }
	svc.engine.sleep = func(context.Context, time.Duration) bool { return true }
	return svc
}
