package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/simplyinspect/permwatch/internal/domain/baseline"
	"github.com/simplyinspect/permwatch/internal/domain/change"
	"github.com/simplyinspect/permwatch/internal/domain/notification"
	"github.com/simplyinspect/permwatch/internal/domain/permission"
	"github.com/simplyinspect/permwatch/internal/pkg/errors"
)

// MockBaselineRepository is an in-memory baseline.Repository
type MockBaselineRepository struct {
	mu        sync.Mutex
	Baselines map[int64]*baseline.Baseline
	NextID    int64

	CreateError   error
	GetError      error
	ActivateError error
	// ConflictOnce makes the next Activate call fail with a conflict,
	// mimicking a concurrent activation racing the unique index
	ConflictOnce bool
}

func NewMockBaselineRepository() *MockBaselineRepository {
	return &MockBaselineRepository{
		Baselines: make(map[int64]*baseline.Baseline),
		NextID:    1,
	}
}

func (m *MockBaselineRepository) Create(ctx context.Context, b *baseline.Baseline) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateError != nil {
		return 0, m.CreateError
	}
	b.ID = m.NextID
	m.NextID++
	b.EntryCount = len(b.Entries)
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	cp := *b
	m.Baselines[b.ID] = &cp
	return b.ID, nil
}

func (m *MockBaselineRepository) GetByID(ctx context.Context, id int64) (*baseline.Baseline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetError != nil {
		return nil, m.GetError
	}
	b, ok := m.Baselines[id]
	if !ok {
		return nil, errors.NotFound("Baseline")
	}
	cp := *b
	return &cp, nil
}

func (m *MockBaselineRepository) GetActive(ctx context.Context, siteID string) (*baseline.Baseline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetError != nil {
		return nil, m.GetError
	}
	for _, b := range m.Baselines {
		if b.SiteID == siteID && b.IsActive {
			cp := *b
			return &cp, nil
		}
	}
	return nil, errors.NotFound("Baseline")
}

func (m *MockBaselineRepository) List(ctx context.Context, siteID string, limit, offset int) ([]*baseline.Baseline, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*baseline.Baseline
	for _, b := range m.Baselines {
		if b.SiteID == siteID {
			cp := *b
			cp.Entries = nil
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, int64(len(result)), nil
}

func (m *MockBaselineRepository) Activate(ctx context.Context, siteID string, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ConflictOnce {
		m.ConflictOnce = false
		return errors.Conflict("Another baseline was activated concurrently")
	}
	if m.ActivateError != nil {
		return m.ActivateError
	}

	target, ok := m.Baselines[id]
	if !ok || target.SiteID != siteID {
		return errors.NotFound("Baseline")
	}
	for _, b := range m.Baselines {
		if b.SiteID == siteID {
			b.IsActive = false
		}
	}
	target.IsActive = true
	return nil
}

func (m *MockBaselineRepository) Deactivate(ctx context.Context, siteID string, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.Baselines[id]
	if !ok || b.SiteID != siteID {
		return errors.NotFound("Baseline")
	}
	b.IsActive = false
	return nil
}

func (m *MockBaselineRepository) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.Baselines[id]; !ok {
		return errors.NotFound("Baseline")
	}
	delete(m.Baselines, id)
	return nil
}

func (m *MockBaselineRepository) ListActiveSites(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sites []string
	for _, b := range m.Baselines {
		if b.IsActive {
			sites = append(sites, b.SiteID)
		}
	}
	sort.Strings(sites)
	return sites, nil
}

// ActiveCount returns how many baselines are active for a site
func (m *MockBaselineRepository) ActiveCount(siteID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, b := range m.Baselines {
		if b.SiteID == siteID && b.IsActive {
			count++
		}
	}
	return count
}

// MockChangeRepository is an in-memory change.Repository
type MockChangeRepository struct {
	mu      sync.Mutex
	Records map[int64]*change.Record
	NextID  int64

	PersistError error
}

func NewMockChangeRepository() *MockChangeRepository {
	return &MockChangeRepository{
		Records: make(map[int64]*change.Record),
		NextID:  1,
	}
}

func (m *MockChangeRepository) PersistSet(ctx context.Context, set *change.Set) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.PersistError != nil {
		return 0, m.PersistError
	}

	now := time.Now().UTC()
	stored := 0
	for i := range set.Records {
		rec := &set.Records[i]
		if m.hasUnreviewedDuplicate(rec) {
			continue
		}
		rec.ID = m.NextID
		m.NextID++
		rec.DetectedAt = now
		cp := *rec
		m.Records[rec.ID] = &cp
		stored++
	}
	return stored, nil
}

func (m *MockChangeRepository) hasUnreviewedDuplicate(rec *change.Record) bool {
	for _, existing := range m.Records {
		if !existing.Reviewed &&
			existing.BaselineID == rec.BaselineID &&
			existing.ResourceID == rec.ResourceID &&
			existing.PrincipalID == rec.PrincipalID &&
			existing.ChangeType == rec.ChangeType {
			return true
		}
	}
	return false
}

func (m *MockChangeRepository) List(ctx context.Context, f change.Filter) ([]*change.Record, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*change.Record
	for _, rec := range m.Records {
		if f.SiteID != "" && rec.SiteID != f.SiteID {
			continue
		}
		if f.BaselineID != 0 && rec.BaselineID != f.BaselineID {
			continue
		}
		if f.Reviewed != nil && rec.Reviewed != *f.Reviewed {
			continue
		}
		if f.Since != nil && !rec.DetectedAt.After(*f.Since) {
			continue
		}
		if len(f.Types) > 0 && !containsType(f.Types, rec.ChangeType) {
			continue
		}
		cp := *rec
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	return result, int64(len(result)), nil
}

func containsType(types []change.Type, t change.Type) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

func (m *MockChangeRepository) GetByID(ctx context.Context, id int64) (*change.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.Records[id]
	if !ok {
		return nil, errors.NotFound("Change record")
	}
	cp := *rec
	return &cp, nil
}

func (m *MockChangeRepository) MarkReviewed(ctx context.Context, ids []int64, reviewedBy, notes string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	updated := 0
	for _, id := range ids {
		rec, ok := m.Records[id]
		if !ok || rec.Reviewed {
			continue
		}
		rec.Reviewed = true
		rec.ReviewedBy = reviewedBy
		rec.ReviewedAt = &now
		rec.ReviewNotes = notes
		updated++
	}
	return updated, nil
}

func (m *MockChangeRepository) MarkNotified(ctx context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range ids {
		if rec, ok := m.Records[id]; ok {
			rec.Notified = true
		}
	}
	return nil
}

func (m *MockChangeRepository) ListUnreviewedSince(ctx context.Context, siteID string, since time.Time) ([]*change.Record, error) {
	reviewed := false
	records, _, err := m.List(ctx, change.Filter{
		SiteID:   siteID,
		Reviewed: &reviewed,
		Since:    &since,
	})
	return records, err
}

// MockCacheRepository is an in-memory change.CacheRepository
type MockCacheRepository struct {
	mu      sync.Mutex
	Entries map[int64]*change.CacheEntry

	SaveError error
}

func NewMockCacheRepository() *MockCacheRepository {
	return &MockCacheRepository{Entries: make(map[int64]*change.CacheEntry)}
}

func (m *MockCacheRepository) Save(ctx context.Context, entry *change.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveError != nil {
		return m.SaveError
	}
	cp := *entry
	m.Entries[entry.BaselineID] = &cp
	return nil
}

func (m *MockCacheRepository) Get(ctx context.Context, baselineID int64, maxAge time.Duration) (*change.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.Entries[baselineID]
	if !ok || time.Since(entry.ComputedAt) > maxAge {
		return nil, errors.NotFound("Comparison cache entry")
	}
	cp := *entry
	return &cp, nil
}

func (m *MockCacheRepository) Invalidate(ctx context.Context, baselineID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.Entries, baselineID)
	return nil
}

// MockNotificationRepository is an in-memory notification.Repository
type MockNotificationRepository struct {
	mu       sync.Mutex
	Messages map[string]*notification.Message
	Rules    map[int64]*notification.RecipientRule
	NextRule int64

	EnqueueError error
}

func NewMockNotificationRepository() *MockNotificationRepository {
	return &MockNotificationRepository{
		Messages: make(map[string]*notification.Message),
		Rules:    make(map[int64]*notification.RecipientRule),
		NextRule: 1,
	}
}

func (m *MockNotificationRepository) Enqueue(ctx context.Context, msg *notification.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.EnqueueError != nil {
		return m.EnqueueError
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Status == "" {
		msg.Status = notification.StatusPending
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.ScheduledFor.IsZero() {
		msg.ScheduledFor = msg.CreatedAt
	}
	cp := *msg
	m.Messages[msg.ID] = &cp
	return nil
}

func (m *MockNotificationRepository) ClaimPending(ctx context.Context, now time.Time, limit int) ([]*notification.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []*notification.Message
	for _, msg := range m.Messages {
		if msg.Status == notification.StatusPending && !msg.ScheduledFor.After(now) {
			due = append(due, msg)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].Priority != due[j].Priority {
			return due[i].Priority < due[j].Priority
		}
		return due[i].ScheduledFor.Before(due[j].ScheduledFor)
	})
	if len(due) > limit {
		due = due[:limit]
	}

	var claimed []*notification.Message
	for _, msg := range due {
		claimedAt := now.UTC()
		msg.Status = notification.StatusSending
		msg.ClaimedAt = &claimedAt
		cp := *msg
		claimed = append(claimed, &cp)
	}
	return claimed, nil
}

func (m *MockNotificationRepository) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	return m.transition(id, notification.StatusSending, func(msg *notification.Message) {
		msg.Status = notification.StatusSent
		msg.SentAt = &sentAt
		msg.ClaimedAt = nil
		msg.LastError = ""
	})
}

func (m *MockNotificationRepository) Reschedule(ctx context.Context, id string, retryCount int, nextAttempt time.Time, lastError string) error {
	return m.transition(id, notification.StatusSending, func(msg *notification.Message) {
		msg.Status = notification.StatusPending
		msg.RetryCount = retryCount
		msg.ScheduledFor = nextAttempt
		msg.ClaimedAt = nil
		msg.LastError = lastError
	})
}

func (m *MockNotificationRepository) MarkFailed(ctx context.Context, id string, lastError string) error {
	return m.transition(id, notification.StatusSending, func(msg *notification.Message) {
		msg.Status = notification.StatusFailed
		msg.ClaimedAt = nil
		msg.LastError = lastError
	})
}

func (m *MockNotificationRepository) transition(id string, from notification.Status, apply func(*notification.Message)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.Messages[id]
	if !ok || msg.Status != from {
		return errors.NotFound("Notification")
	}
	apply(msg)
	return nil
}

func (m *MockNotificationRepository) ReclaimStale(ctx context.Context, now time.Time, timeout time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reclaimed := 0
	for _, msg := range m.Messages {
		if msg.Status == notification.StatusSending && msg.ClaimedAt != nil &&
			now.Sub(*msg.ClaimedAt) > timeout {
			msg.Status = notification.StatusPending
			msg.ClaimedAt = nil
			reclaimed++
		}
	}
	return reclaimed, nil
}

func (m *MockNotificationRepository) CancelMessage(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.Messages[id]
	if !ok {
		return errors.NotFound("Notification")
	}
	if msg.Status != notification.StatusPending {
		return errors.Conflict("Only pending notifications can be cancelled")
	}
	msg.Status = notification.StatusCancelled
	return nil
}

func (m *MockNotificationRepository) HasUndelivered(ctx context.Context, recipient, msgType string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, msg := range m.Messages {
		if msg.Recipient == recipient && msg.Type == msgType &&
			(msg.Status == notification.StatusPending || msg.Status == notification.StatusSending) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockNotificationRepository) GetMessage(ctx context.Context, id string) (*notification.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.Messages[id]
	if !ok {
		return nil, errors.NotFound("Notification")
	}
	cp := *msg
	return &cp, nil
}

func (m *MockNotificationRepository) ListMessages(ctx context.Context, status notification.Status, limit, offset int) ([]*notification.Message, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*notification.Message
	for _, msg := range m.Messages {
		if status != "" && msg.Status != status {
			continue
		}
		cp := *msg
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, int64(len(result)), nil
}

func (m *MockNotificationRepository) CountByStatus(ctx context.Context) (map[notification.Status]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[notification.Status]int64)
	for _, msg := range m.Messages {
		counts[msg.Status]++
	}
	return counts, nil
}

func (m *MockNotificationRepository) UpsertRule(ctx context.Context, rule *notification.RecipientRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.Rules {
		if existing.SiteID == rule.SiteID && existing.Email == rule.Email {
			existing.Name = rule.Name
			existing.Frequency = rule.Frequency
			existing.NotificationTypes = rule.NotificationTypes
			existing.Active = rule.Active
			rule.ID = existing.ID
			return nil
		}
	}
	rule.ID = m.NextRule
	m.NextRule++
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	cp := *rule
	m.Rules[rule.ID] = &cp
	return nil
}

func (m *MockNotificationRepository) DeactivateRule(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rule, ok := m.Rules[id]
	if !ok {
		return errors.NotFound("Recipient rule")
	}
	rule.Active = false
	return nil
}

func (m *MockNotificationRepository) ListRules(ctx context.Context) ([]*notification.RecipientRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rules []*notification.RecipientRule
	for _, rule := range m.Rules {
		cp := *rule
		rules = append(rules, &cp)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules, nil
}

func (m *MockNotificationRepository) RulesForSite(ctx context.Context, siteID string) ([]*notification.RecipientRule, error) {
	all, _ := m.ListRules(ctx)
	var rules []*notification.RecipientRule
	for _, rule := range all {
		if rule.AppliesTo(siteID) {
			rules = append(rules, rule)
		}
	}
	return rules, nil
}

func (m *MockNotificationRepository) ListRulesByFrequency(ctx context.Context, freq notification.Frequency) ([]*notification.RecipientRule, error) {
	all, _ := m.ListRules(ctx)
	var rules []*notification.RecipientRule
	for _, rule := range all {
		if rule.Active && rule.Frequency == freq {
			rules = append(rules, rule)
		}
	}
	return rules, nil
}

func (m *MockNotificationRepository) UpdateLastNotified(ctx context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rule, ok := m.Rules[id]
	if !ok {
		return errors.NotFound("Recipient rule")
	}
	rule.LastNotificationAt = &at
	return nil
}

// MockSource is an in-memory collector.Source
type MockSource struct {
	mu      sync.Mutex
	Entries map[string][]permission.Entry
	Err     error
}

func NewMockSource() *MockSource {
	return &MockSource{Entries: make(map[string][]permission.Entry)}
}

// SetEntries replaces the current permission state for a site
func (m *MockSource) SetEntries(siteID string, entries []permission.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries[siteID] = entries
}

func (m *MockSource) CollectPermissions(ctx context.Context, siteID string) ([]permission.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	return append([]permission.Entry(nil), m.Entries[siteID]...), nil
}

// MockSender is an in-memory transport.Sender
type MockSender struct {
	mu   sync.Mutex
	Sent []*notification.Message
	// Errs maps recipient to the error its deliveries fail with
	Errs map[string]error
	// FailuresLeft maps recipient to a countdown of failures before
	// deliveries start succeeding
	FailuresLeft map[string]int
}

func NewMockSender() *MockSender {
	return &MockSender{
		Errs:         make(map[string]error),
		FailuresLeft: make(map[string]int),
	}
}

func (m *MockSender) Send(ctx context.Context, msg *notification.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if left, ok := m.FailuresLeft[msg.Recipient]; ok && left > 0 {
		m.FailuresLeft[msg.Recipient] = left - 1
		return errors.TransientDelivery("simulated transient failure", nil)
	}
	if err, ok := m.Errs[msg.Recipient]; ok && err != nil {
		return err
	}

	cp := *msg
	m.Sent = append(m.Sent, &cp)
	return nil
}

// SentCount returns how many messages were delivered
func (m *MockSender) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}
