package delivery

import (
	"context"
	"errors"
	"sync"
	"time"

	mqcontracts "dailyverse/contracts/mq"
	"dailyverse/internal/channel"
	"dailyverse/internal/model"
	"dailyverse/internal/repository"
)

// memStore stands in for the pgx repositories.
type memStore struct {
	mu          sync.Mutex
	prefs       []model.RecipientPreference
	reloaded    map[string]*model.RecipientPreference
	subs        map[string][]model.PushSubscription
	records     []*model.DeliveryRecord
	deactivated []int64
	listErr     error
	historyErr  error
	forceDup    bool
}

func newMemStore(prefs ...model.RecipientPreference) *memStore {
	return &memStore{
		prefs:    prefs,
		reloaded: map[string]*model.RecipientPreference{},
		subs:     map[string][]model.PushSubscription{},
	}
}

func (m *memStore) addSub(userID string, id int64, endpoint string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[userID] = append(m.subs[userID], model.PushSubscription{
		ID:       id,
		UserID:   userID,
		Endpoint: endpoint,
		IsActive: true,
	})
}

func (m *memStore) ListEligible(_ context.Context) ([]model.RecipientPreference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]model.RecipientPreference, len(m.prefs))
	copy(out, m.prefs)
	return out, nil
}

func (m *memStore) GetByUserID(_ context.Context, userID string) (*model.RecipientPreference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.reloaded[userID]; ok {
		if p == nil {
			return nil, repository.ErrNotFound
		}
		cp := *p
		return &cp, nil
	}
	for _, p := range m.prefs {
		if p.UserID == userID {
			cp := p
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memStore) ListActiveByUser(_ context.Context, userID string) ([]model.PushSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.PushSubscription
	for _, s := range m.subs[userID] {
		if s.IsActive {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) Deactivate(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for userID, subs := range m.subs {
		for i := range subs {
			if subs[i].ID == id && subs[i].IsActive {
				m.subs[userID][i].IsActive = false
				m.deactivated = append(m.deactivated, id)
			}
		}
	}
	return nil
}

func (m *memStore) HasSentToday(_ context.Context, userID string, day time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.historyErr != nil {
		return false, m.historyErr
	}
	return m.sentLocked(userID, model.UTCDay(day)), nil
}

func (m *memStore) HasRecordToday(_ context.Context, userID string, day time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.historyErr != nil {
		return false, m.historyErr
	}
	for _, r := range m.records {
		if r.UserID == userID && r.DeliveryDate.Equal(model.UTCDay(day)) && !r.IsTest {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) sentLocked(userID string, day time.Time) bool {
	for _, r := range m.records {
		if r.UserID == userID && r.DeliveryDate.Equal(day) && r.Status == model.DeliveryStatusSent && !r.IsTest {
			return true
		}
	}
	return false
}

// Insert mirrors the partial unique index on (user_id, delivery_date).
func (m *memStore) Insert(_ context.Context, rec *model.DeliveryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.Status == model.DeliveryStatusSent && !rec.IsTest {
		if m.forceDup || m.sentLocked(rec.UserID, rec.DeliveryDate) {
			return repository.ErrDuplicateDelivery
		}
	}
	rec.ID = int64(len(m.records) + 1)
	m.records = append(m.records, rec)
	return nil
}

func (m *memStore) recordsFor(userID string) []*model.DeliveryRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.DeliveryRecord
	for _, r := range m.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out
}

type memRuns struct {
	mu        sync.Mutex
	summaries []*model.RunSummary
	alerts    []*mqcontracts.ErrorRateAlertPayload
}

func (m *memRuns) Insert(_ context.Context, s *model.RunSummary, alert *mqcontracts.ErrorRateAlertPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries = append(m.summaries, s)
	if alert != nil {
		m.alerts = append(m.alerts, alert)
	}
	return nil
}

// fakePush replays a script of outcomes per endpoint; the last entry repeats.
type fakePush struct {
	mu      sync.Mutex
	scripts map[string][]channel.Outcome
	calls   map[string]int
	panicOn map[string]bool
}

func newFakePush() *fakePush {
	return &fakePush{
		scripts: map[string][]channel.Outcome{},
		calls:   map[string]int{},
		panicOn: map[string]bool{},
	}
}

func (f *fakePush) script(endpoint string, outcomes ...channel.Outcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[endpoint] = outcomes
}

func (f *fakePush) Send(_ context.Context, sub model.PushSubscription, _ model.GeneratedMessage) channel.Outcome {
	f.mu.Lock()
	n := f.calls[sub.Endpoint]
	f.calls[sub.Endpoint] = n + 1
	script := f.scripts[sub.Endpoint]
	doPanic := f.panicOn[sub.UserID]
	f.mu.Unlock()

	if doPanic {
		panic("push transport exploded")
	}
	if len(script) == 0 {
		return channel.Success()
	}
	if n >= len(script) {
		n = len(script) - 1
	}
	return script[n]
}

func (f *fakePush) callsTo(endpoint string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[endpoint]
}

type fakeEmail struct {
	mu      sync.Mutex
	outcome channel.Outcome
	sent    []string
}

func (f *fakeEmail) Send(_ context.Context, to string, _ model.GeneratedMessage) channel.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, to)
	return f.outcome
}

type fixedMessages struct{}

func (fixedMessages) Generate(tier model.ExperienceTier) model.GeneratedMessage {
	return model.GeneratedMessage{
		Title:              "Morning Light",
		Body:               "Be still.",
		ScriptureText:      "Be still, and know that I am God",
		ScriptureReference: "Psalm 46:10",
		Tier:               model.ParseTier(string(tier)),
	}
}

type denyClaims struct{}

func (denyClaims) AcquireOnce(context.Context, string, string) bool { return false }
func (denyClaims) Release(context.Context, string, string)          {}

var errBoom = errors.New("connection refused")
