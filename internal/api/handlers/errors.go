package handlers

import (
	stderrors "errors"

	"github.com/wms-platform/returns-service/internal/application"
	"github.com/wms-platform/returns-service/internal/domain"
	"github.com/wms-platform/returns-service/pkg/errors"
	"github.com/wms-platform/returns-service/pkg/resilience"
	"github.com/wms-platform/returns-service/pkg/tenant"
)

// toAppError maps domain and application errors onto the API error taxonomy.
// Anything unrecognised becomes a 500.
func toAppError(err error) *errors.AppError {
	if appErr, ok := errors.AsAppError(err); ok {
		return appErr
	}

	var (
		invalidPolicy *application.InvalidPolicyError
		validation    *domain.ValidationError
		ineligible    *domain.IneligibleReturnError
		transition    *domain.InvalidTransitionError
		notApprovable *domain.NotApprovableError
	)

	switch {
	case stderrors.As(err, &invalidPolicy):
		return errors.ErrValidation("policy document is invalid").
			WithReasons(invalidPolicy.Issues()).
			Wrap(err)

	case stderrors.As(err, &validation):
		appErr := errors.ErrValidation(validation.Error()).Wrap(err)
		if validation.Field != "" {
			appErr.WithDetail(validation.Field, validation.Message)
		}
		return appErr

	case stderrors.As(err, &ineligible):
		return errors.ErrIneligible("return is not eligible", ineligible.Reasons).Wrap(err)

	case stderrors.As(err, &transition):
		return errors.ErrInvalidState(transition.Error()).
			WithDetail("from", string(transition.From)).
			WithDetail("to", string(transition.To)).
			Wrap(err)

	case stderrors.As(err, &notApprovable):
		return errors.ErrInvalidState("return cannot be approved").
			WithReasons(notApprovable.Reasons).
			WithDetail("status", string(notApprovable.Status)).
			Wrap(err)

	case stderrors.Is(err, domain.ErrPolicyOverrideRequiresNotes),
		stderrors.Is(err, domain.ErrReasonRequired),
		stderrors.Is(err, domain.ErrItemsFrozen),
		stderrors.Is(err, domain.ErrNoLineItems),
		stderrors.Is(err, domain.ErrDuplicateLineItem),
		stderrors.Is(err, domain.ErrCurrencyMismatch),
		stderrors.Is(err, domain.ErrNegativeMoney),
		stderrors.Is(err, domain.ErrInvalidCurrency):
		return errors.ErrValidation(err.Error()).Wrap(err)

	case stderrors.Is(err, domain.ErrReturnNotFound):
		return errors.ErrNotFound("return").Wrap(err)
	case stderrors.Is(err, domain.ErrOrderNotFound):
		return errors.ErrNotFound("order").Wrap(err)
	case stderrors.Is(err, domain.ErrPolicyNotFound):
		return errors.ErrNotFound("active return policy").Wrap(err)
	case stderrors.Is(err, domain.ErrLineItemNotFound):
		return errors.ErrNotFound("line item").Wrap(err)

	case stderrors.Is(err, domain.ErrCrossTenantAccess),
		stderrors.Is(err, tenant.ErrTenantMismatch):
		return errors.ErrForbidden("return belongs to another tenant").Wrap(err)

	case stderrors.Is(err, domain.ErrConcurrentModification):
		return errors.ErrConflict("return was modified concurrently, retry the request").Wrap(err)

	case stderrors.Is(err, resilience.ErrCircuitOpen):
		return errors.ErrServiceUnavailable("order service").Wrap(err)
	}

	return errors.ErrInternal("").Wrap(err)
}
