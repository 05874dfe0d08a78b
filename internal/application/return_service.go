package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/wms-platform/returns-service/internal/domain"
	"github.com/wms-platform/returns-service/pkg/logging"
	"github.com/wms-platform/returns-service/pkg/metrics"
)

// System actors recorded in the audit log
const (
	ActorAutoApprove = "system:auto-approve"
	ActorExpiry      = "system:authorization-expiry"
)

const (
	maxSaveAttempts            = 3
	defaultAuthorizationWindow = 30 * 24 * time.Hour
	customerHistoryWindow      = 90 * 24 * time.Hour
)

var errAlreadyResolved = errors.New("return is no longer awaiting shipment")

// ReturnService handles return use cases
type ReturnService struct {
	returns             domain.ReturnRepository
	orders              domain.OrderLookup
	policies            policySource
	evaluator           *domain.EligibilityEvaluator
	scheduler           LifecycleScheduler
	metrics             *metrics.Metrics
	logger              *logging.Logger
	now                 func() time.Time
	authorizationWindow time.Duration
	newBackOff          func() backoff.BackOff
}

// ReturnServiceOption configures a ReturnService
type ReturnServiceOption func(*ReturnService)

// WithScheduler sets the lifecycle scheduler
func WithScheduler(s LifecycleScheduler) ReturnServiceOption {
	return func(svc *ReturnService) { svc.scheduler = s }
}

// WithDefaultPolicy serves cfg to tenants without an active policy
func WithDefaultPolicy(cfg *domain.PolicyConfig) ReturnServiceOption {
	return func(svc *ReturnService) { svc.policies.fallback = cfg }
}

// WithMetrics records decision and transition metrics
func WithMetrics(m *metrics.Metrics) ReturnServiceOption {
	return func(svc *ReturnService) { svc.metrics = m }
}

// WithAuthorizationWindow sets how long an approved return may wait for shipment
func WithAuthorizationWindow(d time.Duration) ReturnServiceOption {
	return func(svc *ReturnService) {
		if d > 0 {
			svc.authorizationWindow = d
		}
	}
}

// WithRetryBackOff replaces the backoff used between conflict retries
func WithRetryBackOff(fn func() backoff.BackOff) ReturnServiceOption {
	return func(svc *ReturnService) { svc.newBackOff = fn }
}

// WithServiceClock overrides the clock used for eligibility decisions
func WithServiceClock(now func() time.Time) ReturnServiceOption {
	return func(svc *ReturnService) {
		svc.now = now
		svc.evaluator = domain.NewEligibilityEvaluator(domain.WithClock(now))
	}
}

// NewReturnService creates a new ReturnService
func NewReturnService(
	returns domain.ReturnRepository,
	orders domain.OrderLookup,
	policies domain.PolicyRepository,
	logger *logging.Logger,
	opts ...ReturnServiceOption,
) *ReturnService {
	s := &ReturnService{
		returns:             returns,
		orders:              orders,
		policies:            policySource{repo: policies},
		evaluator:           domain.NewEligibilityEvaluator(),
		scheduler:           NopScheduler{},
		logger:              logger.WithComponent("return-service"),
		now:                 func() time.Time { return time.Now().UTC() },
		authorizationWindow: defaultAuthorizationWindow,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxInterval = 500 * time.Millisecond
			return b
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateReturn opens a draft return for an order
func (s *ReturnService) CreateReturn(ctx context.Context, cmd CreateReturnCommand) (*ReturnDTO, error) {
	order, err := s.loadOrder(ctx, cmd.TenantID, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	policy, err := s.policies.snapshot(ctx, cmd.TenantID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to load return policy: %w", err)
	}

	email := cmd.CustomerEmail
	if email == "" {
		email = order.CustomerEmail
	}
	channel := domain.Channel(cmd.Channel)
	if channel == "" {
		channel = domain.ChannelCustomer
	}

	r, err := domain.NewReturn(cmd.TenantID, *order, email, channel, domain.ReturnMethod(cmd.Method), policy)
	if err != nil {
		return nil, err
	}
	r.SetCorrelationID(cmd.CorrelationID)

	if cmd.PreferredOutcome != "" {
		if err := r.SetPreferredOutcome(domain.Outcome(cmd.PreferredOutcome)); err != nil {
			return nil, err
		}
	}
	items, err := buildLineItems(order, cmd.Items)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if err := r.AddLineItem(item); err != nil {
			return nil, err
		}
	}

	if err := s.returns.Save(ctx, r); err != nil {
		s.logger.WithError(err).Error("Failed to save return", "returnId", r.ReturnID)
		return nil, fmt.Errorf("failed to save return: %w", err)
	}

	s.logger.WithContext(ctx).Info("Return created",
		"returnId", r.ReturnID,
		"orderId", r.OrderID,
		"items", len(r.Items),
		"policyVersion", policy.PolicyVersion(),
	)
	return ToReturnDTO(r), nil
}

// AddLineItem adds an item to a draft return
func (s *ReturnService) AddLineItem(ctx context.Context, cmd AddLineItemCommand) (*ReturnDTO, error) {
	ref := ReturnCommand{TenantID: cmd.TenantID, ReturnID: cmd.ReturnID, CorrelationID: cmd.CorrelationID}
	return s.mutate(ctx, ref, "add-item", func(r *domain.Return) error {
		order, err := s.loadOrder(ctx, r.TenantID, r.OrderID)
		if err != nil {
			return err
		}
		item, err := buildLineItem(order, cmd.Item)
		if err != nil {
			return err
		}
		return r.AddLineItem(item)
	})
}

// RemoveLineItem removes an item from a draft return
func (s *ReturnService) RemoveLineItem(ctx context.Context, cmd RemoveLineItemCommand) (*ReturnDTO, error) {
	ref := ReturnCommand{TenantID: cmd.TenantID, ReturnID: cmd.ReturnID, CorrelationID: cmd.CorrelationID}
	return s.mutate(ctx, ref, "remove-item", func(r *domain.Return) error {
		return r.RemoveLineItem(cmd.LineItemID)
	})
}

// SubmitReturn evaluates a draft and moves it to REQUESTED, approving it
// straight away when the decision allows auto-approval
func (s *ReturnService) SubmitReturn(ctx context.Context, cmd ReturnCommand) (*ReturnDTO, error) {
	return s.mutate(ctx, cmd, "submit", func(r *domain.Return) error {
		return s.submit(ctx, r, cmd.Actor)
	})
}

// submit runs the eligibility pipeline, fraud gate included, against the return's own snapshot
func (s *ReturnService) submit(ctx context.Context, r *domain.Return, actor string) error {
	order, err := s.loadOrder(ctx, r.TenantID, r.OrderID)
	if err != nil {
		return err
	}
	var customer *domain.CustomerProfile
	if r.Policy.FraudEnabled() {
		if customer, err = customerProfile(ctx, s.returns, r.TenantID, order, s.now()); err != nil {
			return err
		}
	}
	decision := s.evaluator.EvaluateFor(r.Items, *order, r.Policy, customer)
	s.recordEligibility(ctx, r.ReturnID, decision)

	if err := r.Submit(actor, decision); err != nil {
		return err
	}
	if decision.AutoApprove {
		if err := r.Approve(ActorAutoApprove, false, ""); err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("Auto-approval skipped", "returnId", r.ReturnID)
		}
	}
	return nil
}

// ApproveReturn approves a requested return
func (s *ReturnService) ApproveReturn(ctx context.Context, cmd ApproveReturnCommand) (*ReturnDTO, error) {
	return s.mutate(ctx, cmd.ReturnCommand, "approve", func(r *domain.Return) error {
		return r.Approve(cmd.Actor, cmd.OverridePolicy, cmd.Notes)
	})
}

// RejectReturn declines a requested return
func (s *ReturnService) RejectReturn(ctx context.Context, cmd ReturnCommand) (*ReturnDTO, error) {
	return s.mutate(ctx, cmd, "reject", func(r *domain.Return) error {
		return r.Reject(cmd.Actor, cmd.Reason)
	})
}

// ChangeStatus moves a return to any status the state machine allows. Targets with their own
// guards (submit, approve, decline, cancel, refund, exchange) go through those operations.
func (s *ReturnService) ChangeStatus(ctx context.Context, cmd ChangeStatusCommand) (*ReturnDTO, error) {
	target := domain.Status(strings.ToUpper(strings.TrimSpace(cmd.Status)))
	if !target.IsValid() {
		return nil, &domain.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", cmd.Status)}
	}
	return s.mutate(ctx, cmd.ReturnCommand, "change-status", func(r *domain.Return) error {
		switch target {
		case domain.StatusRequested:
			return s.submit(ctx, r, cmd.Actor)
		case domain.StatusApproved:
			return r.Approve(cmd.Actor, false, cmd.Reason)
		case domain.StatusDeclined:
			return r.Reject(cmd.Actor, cmd.Reason)
		case domain.StatusCanceled:
			return r.Cancel(cmd.Actor, cmd.Reason)
		case domain.StatusRefunded:
			return r.Refund(cmd.Actor, r.EstimatedRefund)
		case domain.StatusExchanged:
			return r.Exchange(cmd.Actor, cmd.ReplacementOrderID)
		default:
			return r.ChangeStatus(target, cmd.Actor, cmd.Reason)
		}
	})
}

// MarkInTransit records the shipment. Reason carries the tracking number.
func (s *ReturnService) MarkInTransit(ctx context.Context, cmd ReturnCommand) (*ReturnDTO, error) {
	return s.mutate(ctx, cmd, "in-transit", func(r *domain.Return) error {
		return r.MarkInTransit(cmd.Actor, cmd.Reason)
	})
}

// ReceiveReturn records arrival at the warehouse
func (s *ReturnService) ReceiveReturn(ctx context.Context, cmd ReturnCommand) (*ReturnDTO, error) {
	return s.mutate(ctx, cmd, "receive", func(r *domain.Return) error {
		return r.Receive(cmd.Actor, cmd.Reason)
	})
}

// RefundReturn records the final refund
func (s *ReturnService) RefundReturn(ctx context.Context, cmd RefundReturnCommand) (*ReturnDTO, error) {
	return s.mutate(ctx, cmd.ReturnCommand, "refund", func(r *domain.Return) error {
		amount := r.EstimatedRefund
		if cmd.Amount != nil {
			amount = *cmd.Amount
		}
		return r.Refund(cmd.Actor, amount)
	})
}

// ExchangeReturn records the replacement order. Reason carries its id.
func (s *ReturnService) ExchangeReturn(ctx context.Context, cmd ReturnCommand) (*ReturnDTO, error) {
	return s.mutate(ctx, cmd, "exchange", func(r *domain.Return) error {
		return r.Exchange(cmd.Actor, cmd.Reason)
	})
}

// CloseReturn closes a refunded or exchanged return
func (s *ReturnService) CloseReturn(ctx context.Context, cmd ReturnCommand) (*ReturnDTO, error) {
	return s.mutate(ctx, cmd, "close", func(r *domain.Return) error {
		return r.Close(cmd.Actor)
	})
}

// CancelReturn abandons a return
func (s *ReturnService) CancelReturn(ctx context.Context, cmd ReturnCommand) (*ReturnDTO, error) {
	return s.mutate(ctx, cmd, "cancel", func(r *domain.Return) error {
		return r.Cancel(cmd.Actor, cmd.Reason)
	})
}

// ExpireAuthorization cancels a return still waiting for shipment. It reports false
// when the return already moved on.
func (s *ReturnService) ExpireAuthorization(ctx context.Context, tenantID, returnID string) (bool, error) {
	cmd := ReturnCommand{TenantID: tenantID, ReturnID: returnID, Actor: ActorExpiry}
	_, err := s.mutate(ctx, cmd, "expire-authorization", func(r *domain.Return) error {
		if r.Status != domain.StatusApproved {
			return errAlreadyResolved
		}
		return r.Cancel(ActorExpiry, "return authorization expired before shipment")
	})
	if errors.Is(err, errAlreadyResolved) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// PreviewEligibility evaluates items against the active policy without creating a return
func (s *ReturnService) PreviewEligibility(ctx context.Context, q PreviewEligibilityQuery) (*domain.EligibilityResult, error) {
	order, err := s.loadOrder(ctx, q.TenantID, q.OrderID)
	if err != nil {
		return nil, err
	}
	policy, err := s.policies.snapshot(ctx, q.TenantID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to load return policy: %w", err)
	}
	items, err := buildLineItems(order, q.Items)
	if err != nil {
		return nil, err
	}

	result := s.evaluator.Evaluate(items, *order, policy)
	if q.Method != "" && !policy.AllowsMethod(domain.ReturnMethod(q.Method)) {
		result.Eligible = false
		result.AutoApprove = false
		result.Reasons = append(result.Reasons, fmt.Sprintf("return method %q is not offered by the policy", q.Method))
	}
	s.recordEligibility(ctx, q.OrderID, result)
	return &result, nil
}

// GetReturn loads one return
func (s *ReturnService) GetReturn(ctx context.Context, tenantID, returnID string) (*ReturnDTO, error) {
	r, err := s.returns.FindByID(ctx, tenantID, returnID)
	if err != nil {
		return nil, err
	}
	return ToReturnDTO(r), nil
}

// ListReturns searches a tenant's returns
func (s *ReturnService) ListReturns(ctx context.Context, q ListReturnsQuery) (*ReturnListResponse, error) {
	filter := domain.ReturnFilter{
		TenantID:      q.TenantID,
		OrderID:       q.OrderID,
		CustomerEmail: q.CustomerEmail,
		CreatedFrom:   q.CreatedFrom,
		CreatedTo:     q.CreatedTo,
	}
	if q.Status != nil {
		status := domain.Status(strings.ToUpper(*q.Status))
		if !status.IsValid() {
			return nil, &domain.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", *q.Status)}
		}
		filter.Status = &status
	}
	if filter.CustomerEmail != nil {
		email := strings.ToLower(strings.TrimSpace(*filter.CustomerEmail))
		filter.CustomerEmail = &email
	}

	pagination := domain.Pagination{Page: q.Page, PageSize: q.PageSize}
	if pagination.Page < 1 {
		pagination.Page = 1
	}
	returns, total, err := s.returns.Search(ctx, filter, pagination)
	if err != nil {
		return nil, fmt.Errorf("failed to list returns: %w", err)
	}

	dtos := make([]ReturnDTO, len(returns))
	for i, r := range returns {
		dtos[i] = *ToReturnDTO(r)
	}
	limit := pagination.Limit()
	return &ReturnListResponse{
		Returns:    dtos,
		Total:      total,
		Page:       pagination.Page,
		PageSize:   limit,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}

type transition struct {
	from, to domain.Status
	actor    string
}

// mutate loads a return, applies fn and saves it, retrying the whole cycle when
// another writer got there first
func (s *ReturnService) mutate(ctx context.Context, cmd ReturnCommand, operation string, fn func(r *domain.Return) error) (*ReturnDTO, error) {
	var (
		saved   *domain.Return
		applied []transition
	)

	attempt := func() error {
		r, err := s.returns.FindByID(ctx, cmd.TenantID, cmd.ReturnID)
		if err != nil {
			return backoff.Permanent(err)
		}
		r.SetCorrelationID(cmd.CorrelationID)
		auditBefore := len(r.Audit)

		if err := fn(r); err != nil {
			return backoff.Permanent(err)
		}
		if err := s.returns.Save(ctx, r); err != nil {
			if errors.Is(err, domain.ErrConcurrentModification) {
				s.logger.WithContext(ctx).Warn("Concurrent modification, retrying",
					"returnId", cmd.ReturnID,
					"operation", operation,
				)
				return err
			}
			return backoff.Permanent(fmt.Errorf("failed to save return: %w", err))
		}

		saved = r
		applied = transitionsSince(r, auditBefore)
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), maxSaveAttempts-1), ctx)
	if err := backoff.Retry(attempt, policy); err != nil {
		return nil, err
	}

	s.afterCommit(ctx, saved, applied)
	return ToReturnDTO(saved), nil
}

func transitionsSince(r *domain.Return, from int) []transition {
	var out []transition
	for _, entry := range r.Audit[from:] {
		if entry.Action != domain.AuditActionStatusChanged {
			continue
		}
		fromStatus, _ := entry.Details["fromStatus"].(string)
		toStatus, _ := entry.Details["toStatus"].(string)
		out = append(out, transition{from: domain.Status(fromStatus), to: domain.Status(toStatus), actor: entry.Actor})
	}
	return out
}

// afterCommit records transitions and drives the authorization timer. Failures here
// never undo the committed change.
func (s *ReturnService) afterCommit(ctx context.Context, r *domain.Return, applied []transition) {
	for _, t := range applied {
		if s.metrics != nil {
			s.metrics.RecordTransition(string(t.from), string(t.to))
		}
		s.logger.Transition(ctx, r.ReturnID, string(t.from), string(t.to), t.actor)

		switch {
		case t.to == domain.StatusApproved:
			if err := s.scheduler.ScheduleAuthorizationExpiry(ctx, r.TenantID, r.ReturnID, s.authorizationWindow); err != nil {
				s.logger.WithContext(ctx).WithError(err).Warn("Failed to schedule authorization expiry", "returnId", r.ReturnID)
			}
		case t.from == domain.StatusApproved:
			if err := s.scheduler.CompleteAuthorization(ctx, r.ReturnID); err != nil {
				s.logger.WithContext(ctx).WithError(err).Warn("Failed to complete authorization", "returnId", r.ReturnID)
			}
		}
	}
}

func (s *ReturnService) recordEligibility(ctx context.Context, subject string, decision domain.EligibilityResult) {
	outcome := "ineligible"
	switch {
	case decision.Eligible && decision.AutoApprove:
		outcome = "auto_approve"
	case decision.Eligible:
		outcome = "eligible"
	}
	if s.metrics != nil {
		s.metrics.RecordEligibility(decision.Eligible)
		if decision.Fraud != nil {
			s.metrics.RecordFraudScore(decision.Fraud.Score)
		}
	}
	s.logger.Decision(ctx, "eligibility", subject, outcome, decision.Reasons)
}

func (s *ReturnService) loadOrder(ctx context.Context, tenantID, orderID string) (*domain.OrderSnapshot, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, &domain.ValidationError{Field: "orderId", Message: "is required"}
	}
	order, err := s.orders.GetOrder(ctx, tenantID, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order %s: %w", orderID, err)
	}
	if order.TenantID != "" && order.TenantID != tenantID {
		return nil, fmt.Errorf("failed to load order %s: %w", orderID, domain.ErrOrderNotFound)
	}
	return order, nil
}

// customerProfile combines the order's account data with the customer's recent returns
func customerProfile(ctx context.Context, returns domain.ReturnRepository, tenantID string, order *domain.OrderSnapshot, now time.Time) (*domain.CustomerProfile, error) {
	profile, err := returns.CustomerHistory(ctx, tenantID, strings.ToLower(order.CustomerEmail), now.Add(-customerHistoryWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to load customer history: %w", err)
	}
	if profile.AccountCreatedAt == nil {
		profile.AccountCreatedAt = order.CustomerSince
	}
	return profile, nil
}
