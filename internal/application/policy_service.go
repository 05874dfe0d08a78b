package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wms-platform/returns-service/internal/domain"
	"github.com/wms-platform/returns-service/pkg/logging"
	"github.com/wms-platform/returns-service/pkg/metrics"
)

// PolicyDecoder turns a raw policy document into a config. Structural problems
// are reported in the result rather than as an error.
type PolicyDecoder interface {
	Decode(data []byte) (domain.PolicyConfig, domain.ValidationResult)
}

// InvalidPolicyError carries every finding that blocked a policy document
type InvalidPolicyError struct {
	Result domain.ValidationResult
}

func (e *InvalidPolicyError) Error() string {
	msgs := make([]string, len(e.Result.Errors))
	for i, issue := range e.Result.Errors {
		msgs[i] = issue.String()
	}
	return "invalid return policy: " + strings.Join(msgs, "; ")
}

// Issues lists the blocking findings as readable strings
func (e *InvalidPolicyError) Issues() []string {
	out := make([]string, len(e.Result.Errors))
	for i, issue := range e.Result.Errors {
		out[i] = issue.String()
	}
	return out
}

// PolicyService handles return policy use cases
type PolicyService struct {
	policies  policySource
	returns   domain.ReturnRepository
	orders    domain.OrderLookup
	decoder   PolicyDecoder
	validator *domain.PolicyValidator
	metrics   *metrics.Metrics
	logger    *logging.Logger
	now       func() time.Time
}

// NewPolicyService creates a new PolicyService. fallback may be nil.
func NewPolicyService(
	policies domain.PolicyRepository,
	returns domain.ReturnRepository,
	orders domain.OrderLookup,
	decoder PolicyDecoder,
	fallback *domain.PolicyConfig,
	m *metrics.Metrics,
	logger *logging.Logger,
) *PolicyService {
	return &PolicyService{
		policies:  policySource{repo: policies, fallback: fallback},
		returns:   returns,
		orders:    orders,
		decoder:   decoder,
		validator: domain.NewPolicyValidator(),
		metrics:   m,
		logger:    logger.WithComponent("policy-service"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ValidatePolicy checks a document against the schema and the policy rules.
// Every finding is returned; nothing is stored.
func (s *PolicyService) ValidatePolicy(ctx context.Context, document []byte) (domain.PolicyConfig, domain.ValidationResult) {
	cfg, result := s.decoder.Decode(document)
	if !result.Valid {
		return cfg, result
	}
	result.Merge(s.validator.Validate(cfg))
	return cfg, result
}

// ActivatePolicy validates a document and stores it as the tenant's next version.
// Returns already decided keep the snapshot they were created with.
func (s *PolicyService) ActivatePolicy(ctx context.Context, cmd ActivatePolicyCommand) (*PolicyDTO, error) {
	cfg, result := s.ValidatePolicy(ctx, cmd.Document)
	if !result.Valid {
		return nil, &InvalidPolicyError{Result: result}
	}

	version, err := s.policies.repo.Save(ctx, cmd.TenantID, cfg, cmd.Actor)
	if err != nil {
		s.logger.WithError(err).Error("Failed to save policy", "tenantId", cmd.TenantID)
		return nil, fmt.Errorf("failed to save policy: %w", err)
	}

	s.logger.WithContext(ctx).Info("Return policy activated",
		"tenantId", cmd.TenantID,
		"version", version.Version,
		"warnings", len(result.Warnings),
	)
	dto := ToPolicyDTO(version)
	dto.Warnings = result.Warnings
	return dto, nil
}

// GetActivePolicy returns the tenant's active policy or the configured default
func (s *PolicyService) GetActivePolicy(ctx context.Context, tenantID string) (*PolicyDTO, error) {
	version, err := s.policies.active(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return ToPolicyDTO(version), nil
}

// PreviewDecision runs the configurable rules engine against a draft or the active policy
func (s *PolicyService) PreviewDecision(ctx context.Context, q PreviewDecisionQuery) (*domain.PolicyDecision, error) {
	var cfg domain.PolicyConfig
	if len(q.Policy) > 0 {
		draft, result := s.ValidatePolicy(ctx, q.Policy)
		if !result.Valid {
			return nil, &InvalidPolicyError{Result: result}
		}
		cfg = draft
	} else {
		active, err := s.policies.active(ctx, q.TenantID)
		if err != nil {
			return nil, err
		}
		cfg = active.Config
	}

	engine, err := domain.NewRulesEngine(cfg, domain.WithEngineClock(s.now))
	if err != nil {
		return nil, err
	}

	order, err := s.orders.GetOrder(ctx, q.TenantID, q.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order %s: %w", q.OrderID, err)
	}
	if order.TenantID != "" && order.TenantID != q.TenantID {
		return nil, fmt.Errorf("failed to load order %s: %w", q.OrderID, domain.ErrOrderNotFound)
	}
	items, err := buildLineItems(order, q.Items)
	if err != nil {
		return nil, err
	}
	customer, err := customerProfile(ctx, s.returns, q.TenantID, order, s.now())
	if err != nil {
		return nil, err
	}

	decision := engine.Evaluate(domain.RuleInput{
		Items:            items,
		Order:            *order,
		Customer:         customer,
		PreferredOutcome: domain.Outcome(q.PreferredOutcome),
	})

	if s.metrics != nil {
		var score *int
		if decision.Fraud != nil {
			score = &decision.Fraud.Score
		}
		s.metrics.RecordDecision(string(decision.Outcome), score)
	}
	s.logger.Decision(ctx, "rules", q.OrderID, string(decision.Outcome), decision.Reasons)
	return &decision, nil
}
