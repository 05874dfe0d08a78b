package application

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wms-platform/returns-service/internal/domain"
)

// memoryReturns is an in-memory ReturnRepository with the same version check as the Mongo one
type memoryReturns struct {
	mu        sync.Mutex
	byID      map[string]domain.Return
	conflicts int // number of upcoming updates to fail with ErrConcurrentModification
	saves     int
	events    []domain.DomainEvent
	history   *domain.CustomerProfile
}

func newMemoryReturns() *memoryReturns {
	return &memoryReturns{byID: map[string]domain.Return{}}
}

func (m *memoryReturns) Save(_ context.Context, r *domain.Return) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++

	if r.Version > 0 {
		if m.conflicts > 0 {
			m.conflicts--
			return domain.ErrConcurrentModification
		}
		stored, ok := m.byID[r.ReturnID]
		if !ok || stored.Version != r.Version {
			return domain.ErrConcurrentModification
		}
	}
	r.Version++
	m.events = append(m.events, r.DomainEvents()...)
	r.ClearDomainEvents()

	copied := *r
	copied.Items = append([]domain.ReturnLineItem(nil), r.Items...)
	copied.Audit = append([]domain.AuditEntry(nil), r.Audit...)
	m.byID[r.ReturnID] = copied
	return nil
}

func (m *memoryReturns) FindByID(_ context.Context, tenantID, returnID string) (*domain.Return, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.byID[returnID]
	if !ok {
		return nil, domain.ErrReturnNotFound
	}
	if stored.TenantID != tenantID {
		return nil, domain.ErrCrossTenantAccess
	}
	r := stored
	r.Items = append([]domain.ReturnLineItem(nil), stored.Items...)
	r.Audit = append([]domain.AuditEntry(nil), stored.Audit...)
	return &r, nil
}

func (m *memoryReturns) Search(_ context.Context, filter domain.ReturnFilter, p domain.Pagination) ([]*domain.Return, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []*domain.Return
	for _, stored := range m.byID {
		r := stored
		if r.TenantID != filter.TenantID {
			continue
		}
		if filter.Status != nil && r.Status != *filter.Status {
			continue
		}
		if filter.CustomerEmail != nil && r.CustomerEmail != *filter.CustomerEmail {
			continue
		}
		matched = append(matched, &r)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ReturnID < matched[j].ReturnID })

	total := int64(len(matched))
	start := p.Skip()
	if start > total {
		start = total
	}
	end := start + p.Limit()
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (m *memoryReturns) CustomerHistory(_ context.Context, _, email string, _ time.Time) (*domain.CustomerProfile, error) {
	if m.history != nil {
		h := *m.history
		return &h, nil
	}
	return &domain.CustomerProfile{Email: email}, nil
}

// memoryPolicies keeps every saved version and marks the newest active
type memoryPolicies struct {
	versions map[string][]domain.PolicyVersion
}

func newMemoryPolicies() *memoryPolicies {
	return &memoryPolicies{versions: map[string][]domain.PolicyVersion{}}
}

func (m *memoryPolicies) Save(_ context.Context, tenantID string, cfg domain.PolicyConfig, activatedBy string) (*domain.PolicyVersion, error) {
	existing := m.versions[tenantID]
	for i := range existing {
		existing[i].Active = false
	}
	v := domain.PolicyVersion{
		TenantID:    tenantID,
		Version:     len(existing) + 1,
		Config:      cfg,
		Active:      true,
		ActivatedBy: activatedBy,
		ActivatedAt: time.Now().UTC(),
	}
	m.versions[tenantID] = append(existing, v)
	return &v, nil
}

func (m *memoryPolicies) GetActive(_ context.Context, tenantID string) (*domain.PolicyVersion, error) {
	for _, v := range m.versions[tenantID] {
		if v.Active {
			active := v
			return &active, nil
		}
	}
	return nil, domain.ErrPolicyNotFound
}

type staticOrders map[string]domain.OrderSnapshot

func (s staticOrders) GetOrder(_ context.Context, _, orderID string) (*domain.OrderSnapshot, error) {
	o, ok := s[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return &o, nil
}

type recordingScheduler struct {
	scheduled []string
	completed []string
	window    time.Duration
}

func (s *recordingScheduler) ScheduleAuthorizationExpiry(_ context.Context, _, returnID string, window time.Duration) error {
	s.scheduled = append(s.scheduled, returnID)
	s.window = window
	return nil
}

func (s *recordingScheduler) CompleteAuthorization(_ context.Context, returnID string) error {
	s.completed = append(s.completed, returnID)
	return nil
}

// jsonDecoder decodes plain JSON with no schema checks
type jsonDecoder struct {
	cfg    domain.PolicyConfig
	result domain.ValidationResult
}

func (d jsonDecoder) Decode([]byte) (domain.PolicyConfig, domain.ValidationResult) {
	return d.cfg, d.result
}

func usd(amount string) domain.Money { return domain.MustMoney(amount, "USD") }

// standardPolicy: 30-day window, refunds and exchanges, fraud screening, $100 auto-approve
func standardPolicy() domain.PolicyConfig {
	return domain.PolicyConfig{
		Name:         "standard",
		Currency:     "USD",
		ReturnWindow: domain.WindowConfig{Type: domain.WindowTypeLimited, Days: []int{30}, CalculationFrom: string(domain.AnchorFulfillmentDate)},
		Refunds:      domain.RefundConfig{Enabled: true, Methods: domain.RefundMethods{OriginalPayment: true}},
		Exchanges:    domain.ToggleConfig{Enabled: true},
		Fraud:        domain.FraudConfig{Enabled: true},
		Automation:   domain.AutomationConfig{AutoApproveEnabled: true, AutoApproveThreshold: domain.DecimalFromInt(100)},
	}
}

// orderFulfilled builds an order fulfilled the given number of days before the real clock
func orderFulfilled(daysAgo int) domain.OrderSnapshot {
	fulfilled := time.Now().UTC().Add(-time.Duration(daysAgo) * 24 * time.Hour)
	return domain.OrderSnapshot{
		OrderID:       "ORD-1001",
		TenantID:      "tenant-a",
		CustomerEmail: "Shopper@Example.com",
		Currency:      "USD",
		Dates: domain.OrderDates{
			OrderDate:   fulfilled.Add(-48 * time.Hour),
			FulfilledAt: &fulfilled,
		},
		Items: []domain.FulfilledItem{
			{LineItemID: "LI-1", SKU: "SKU-SHIRT", Title: "Shirt", Quantity: 2, UnitPrice: usd("50"), Category: "apparel"},
			{LineItemID: "LI-2", SKU: "SKU-COAT", Title: "Coat", Quantity: 1, UnitPrice: usd("250"), Category: "apparel"},
		},
	}
}

func shirt(qty int) LineItemInput {
	return LineItemInput{LineItemID: "LI-1", Quantity: qty, ReasonCode: "wrong_size", Condition: "new"}
}

func coat() LineItemInput {
	return LineItemInput{LineItemID: "LI-2", Quantity: 1, ReasonCode: "not_as_described", Condition: "new"}
}
