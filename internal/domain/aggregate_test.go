package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReturn(t *testing.T) {
	policy := testPolicy(t)
	order := recentOrder()

	r, err := NewReturn("tenant-a", order, "Shopper@Example.com", ChannelCustomer, MethodPrepaidLabel, policy)
	require.NoError(t, err)

	assert.Equal(t, StatusDraft, r.Status)
	assert.Equal(t, "shopper@example.com", r.CustomerEmail)
	assert.Equal(t, "ORD-1001", r.OrderID)
	assert.Contains(t, r.ReturnID, "RMA-")
	assert.Empty(t, r.Items)
	assert.Empty(t, r.DomainEvents())
	assert.True(t, r.EstimatedRefund.Equal(usd("0")))
}

func TestNewReturn_Validation(t *testing.T) {
	policy := testPolicy(t, func(p *PolicySnapshotParams) {
		p.EligibleMethods = []ReturnMethod{MethodPrepaidLabel}
	})
	order := recentOrder()

	tests := []struct {
		name   string
		tenant string
		email  string
		ch     Channel
		method ReturnMethod
		policy PolicySnapshot
	}{
		{name: "missing tenant", tenant: "", email: "a@b.c", ch: ChannelCustomer, method: MethodPrepaidLabel, policy: policy},
		{name: "bad email", tenant: "t", email: "nope", ch: ChannelCustomer, method: MethodPrepaidLabel, policy: policy},
		{name: "bad channel", tenant: "t", email: "a@b.c", ch: "fax", method: MethodPrepaidLabel, policy: policy},
		{name: "method not offered", tenant: "t", email: "a@b.c", ch: ChannelAPI, method: MethodInStore, policy: policy},
		{name: "missing policy", tenant: "t", email: "a@b.c", ch: ChannelAPI, method: MethodPrepaidLabel, policy: PolicySnapshot{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReturn(tt.tenant, order, tt.email, tt.ch, tt.method, tt.policy)
			var vErr *ValidationError
			assert.True(t, errors.As(err, &vErr), "expected ValidationError, got %v", err)
		})
	}
}

func TestReturn_LineItemsFrozenAfterSubmit(t *testing.T) {
	r := requestedReturn(t, testPolicy(t), recentOrder())

	err := r.AddLineItem(testItem("LI-2", 1, "25", "changed_mind"))
	assert.ErrorIs(t, err, ErrItemsFrozen)

	err = r.RemoveLineItem("LI-1")
	assert.ErrorIs(t, err, ErrItemsFrozen)
	assert.Len(t, r.Items, 1)
}

func TestReturn_AddLineItem(t *testing.T) {
	r, err := NewReturn("tenant-a", recentOrder(), "a@b.c", ChannelCustomer, MethodPrepaidLabel, testPolicy(t))
	require.NoError(t, err)

	require.NoError(t, r.AddLineItem(testItem("LI-1", 2, "50", "wrong_size")))
	assert.ErrorIs(t, r.AddLineItem(testItem("LI-1", 1, "50", "wrong_size")), ErrDuplicateLineItem)

	eurItem := testItem("LI-3", 1, "10", "wrong_size")
	eurItem.UnitPrice = MustMoney("10", "EUR")
	assert.ErrorIs(t, r.AddLineItem(eurItem), ErrCurrencyMismatch)

	noReason := testItem("LI-4", 1, "10", "")
	var vErr *ValidationError
	assert.True(t, errors.As(r.AddLineItem(noReason), &vErr))

	zeroQty := testItem("LI-5", 0, "10", "wrong_size")
	assert.True(t, errors.As(r.AddLineItem(zeroQty), &vErr))

	assert.Equal(t, 2, r.TotalQuantity())
	total, err := r.TotalValue()
	require.NoError(t, err)
	assert.True(t, total.Equal(usd("100")))

	require.NoError(t, r.RemoveLineItem("LI-1"))
	assert.Empty(t, r.Items)
	assert.ErrorIs(t, r.RemoveLineItem("LI-1"), ErrLineItemNotFound)
}

func TestReturnLineItem_Value(t *testing.T) {
	item := testItem("LI-1", 3, "19.99", "defective")
	assert.True(t, item.Value().Equal(usd("59.97")))
}

func TestReturn_Submit(t *testing.T) {
	policy := testPolicy(t)
	order := recentOrder()

	t.Run("emits created event", func(t *testing.T) {
		r, err := NewReturn("tenant-a", order, "a@b.c", ChannelCustomer, MethodPrepaidLabel, policy)
		require.NoError(t, err)
		r.SetCorrelationID("corr-1")
		require.NoError(t, r.AddLineItem(testItem("LI-1", 2, "50", "wrong_size")))

		decision := NewEligibilityEvaluator().Evaluate(r.Items, order, policy)
		require.NoError(t, r.Submit("a@b.c", decision))

		assert.Equal(t, StatusRequested, r.Status)
		assert.True(t, r.EstimatedRefund.Equal(usd("100")))
		assert.NotNil(t, r.SubmittedAt)
		require.Len(t, r.AuditLog(), 1)
		assert.Equal(t, "corr-1", r.AuditLog()[0].CorrelationID)

		events := r.DomainEvents()
		require.Len(t, events, 1)
		created, ok := events[0].(*ReturnCreatedEvent)
		require.True(t, ok)
		assert.Equal(t, EventTypeReturnCreated, created.EventType())
		assert.Equal(t, "tenant-a", created.Tenant())
		assert.Equal(t, "corr-1", created.Correlation())
		assert.True(t, created.EstimatedRefund.Equal(usd("100")))
	})

	t.Run("requires items", func(t *testing.T) {
		r, err := NewReturn("tenant-a", order, "a@b.c", ChannelCustomer, MethodPrepaidLabel, policy)
		require.NoError(t, err)
		assert.ErrorIs(t, r.Submit("a@b.c", EligibilityResult{Eligible: true, EstimatedRefund: usd("0")}), ErrNoLineItems)
		assert.Equal(t, StatusDraft, r.Status)
	})

	t.Run("ineligible decision carries all reasons", func(t *testing.T) {
		r, err := NewReturn("tenant-a", order, "a@b.c", ChannelCustomer, MethodPrepaidLabel, policy)
		require.NoError(t, err)
		require.NoError(t, r.AddLineItem(testItem("LI-1", 2, "50", "wrong_size")))

		err = r.Submit("a@b.c", EligibilityResult{Reasons: []string{"one", "two"}})
		var inel *IneligibleReturnError
		require.True(t, errors.As(err, &inel))
		assert.Equal(t, []string{"one", "two"}, inel.Reasons)
		assert.Equal(t, StatusDraft, r.Status)
		assert.Empty(t, r.AuditLog())
		assert.Empty(t, r.DomainEvents())
	})
}

func TestReturn_ChangeStatus_Transitions(t *testing.T) {
	for _, from := range AllStatuses {
		for _, to := range AllStatuses {
			from, to := from, to
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				r := &Return{ReturnID: "RMA-1", TenantID: "tenant-a", Status: from, Policy: testPolicy(t), EstimatedRefund: usd("10")}

				err := r.ChangeStatus(to, "agent-1", "test")
				if from.CanTransitionTo(to) {
					require.NoError(t, err)
					assert.Equal(t, to, r.Status)
					require.Len(t, r.AuditLog(), 1)
					assert.Equal(t, string(from), r.AuditLog()[0].Details["fromStatus"])
					assert.Equal(t, string(to), r.AuditLog()[0].Details["toStatus"])
					assert.Len(t, r.DomainEvents(), 1)
					return
				}

				var invalid *InvalidTransitionError
				require.True(t, errors.As(err, &invalid))
				assert.Equal(t, from, invalid.From)
				assert.Equal(t, to, invalid.To)
				assert.Equal(t, from, r.Status)
				assert.Empty(t, r.AuditLog())
				assert.Empty(t, r.DomainEvents())
			})
		}
	}
}

func TestReturn_ChangeStatus_EventTypes(t *testing.T) {
	tests := []struct {
		from      Status
		to        Status
		eventType string
	}{
		{StatusDraft, StatusRequested, EventTypeReturnCreated},
		{StatusRequested, StatusApproved, EventTypeReturnApproved},
		{StatusRequested, StatusDeclined, EventTypeReturnRejected},
		{StatusApproved, StatusInTransit, EventTypeReturnStatusChanged},
		{StatusReceived, StatusRefunded, EventTypeReturnStatusChanged},
	}
	for _, tt := range tests {
		r := &Return{ReturnID: "RMA-1", TenantID: "tenant-a", Status: tt.from, Policy: testPolicy(t), EstimatedRefund: usd("10")}
		require.NoError(t, r.ChangeStatus(tt.to, "agent-1", "because"))
		events := r.DomainEvents()
		require.Len(t, events, 1)
		assert.Equal(t, tt.eventType, events[0].EventType())
		assert.Equal(t, "RMA-1", events[0].AggregateID())
	}
}

func TestReturn_TerminalStates(t *testing.T) {
	for _, s := range []Status{StatusDeclined, StatusCanceled, StatusClosed} {
		assert.True(t, s.IsTerminal())
		assert.Empty(t, s.AllowedTransitions())
	}
	assert.False(t, StatusReceived.IsTerminal())
}

func TestReturn_Approve_OverrideRequiresNotes(t *testing.T) {
	r := requestedReturn(t, testPolicy(t), recentOrder())

	err := r.Approve("agent-1", true, "   ")
	assert.ErrorIs(t, err, ErrPolicyOverrideRequiresNotes)
	assert.Equal(t, StatusRequested, r.Status)
	assert.Empty(t, r.DomainEvents())

	require.NoError(t, r.Approve("agent-1", true, "loyal customer"))
	assert.Equal(t, StatusApproved, r.Status)
	assert.True(t, r.PolicyOverridden)
	assert.Equal(t, "loyal customer", r.ApprovalNotes)
	assert.Equal(t, "agent-1", r.ProcessedBy)

	events := r.DomainEvents()
	require.Len(t, events, 1)
	approved, ok := events[0].(*ReturnApprovedEvent)
	require.True(t, ok)
	assert.Equal(t, "agent-1", approved.ApprovedBy)
	assert.True(t, approved.PolicyOverridden)
}

func TestReturn_Approve_NotApprovable(t *testing.T) {
	t.Run("wrong status", func(t *testing.T) {
		r, err := NewReturn("tenant-a", recentOrder(), "a@b.c", ChannelCustomer, MethodPrepaidLabel, testPolicy(t))
		require.NoError(t, err)

		var notApprovable *NotApprovableError
		assert.True(t, errors.As(r.Approve("agent-1", false, ""), &notApprovable))
		assert.Equal(t, StatusDraft, r.Status)
	})

	t.Run("window expired since submission", func(t *testing.T) {
		r := requestedReturn(t, testPolicy(t), recentOrder())
		expired := *r.OrderDates.FulfilledAt
		expired = expired.AddDate(0, 0, -60)
		r.OrderDates.FulfilledAt = &expired

		var notApprovable *NotApprovableError
		require.True(t, errors.As(r.Approve("agent-1", false, ""), &notApprovable))
		assert.Contains(t, notApprovable.Reasons[0], "return window expired")
		assert.Equal(t, StatusRequested, r.Status)

		require.NoError(t, r.Approve("agent-1", true, "goodwill exception"))
		assert.Equal(t, StatusApproved, r.Status)
	})

	t.Run("missing reason code", func(t *testing.T) {
		r := requestedReturn(t, testPolicy(t), recentOrder())
		r.Items[0].Reason.Code = ""

		var notApprovable *NotApprovableError
		require.True(t, errors.As(r.Approve("agent-1", false, ""), &notApprovable))
		assert.Contains(t, notApprovable.Reasons[0], "no reason code")
	})
}

func TestReturn_Reject(t *testing.T) {
	r := requestedReturn(t, testPolicy(t), recentOrder())

	assert.ErrorIs(t, r.Reject("agent-1", ""), ErrReasonRequired)
	assert.Equal(t, StatusRequested, r.Status)

	require.NoError(t, r.Reject("agent-1", "item shows wear"))
	assert.Equal(t, StatusDeclined, r.Status)
	assert.Equal(t, "item shows wear", r.DeclineReason)

	events := r.DomainEvents()
	require.Len(t, events, 1)
	rejected, ok := events[0].(*ReturnRejectedEvent)
	require.True(t, ok)
	assert.Equal(t, "item shows wear", rejected.Reason)

	var invalid *InvalidTransitionError
	assert.True(t, errors.As(r.Reject("agent-1", "again"), &invalid))
}

func TestReturn_FullLifecycle(t *testing.T) {
	r := requestedReturn(t, testPolicy(t), recentOrder())

	require.NoError(t, r.Approve("agent-1", false, ""))
	require.NoError(t, r.MarkInTransit("carrier", "1Z999"))
	require.NoError(t, r.Receive("dock-7", "box intact"))

	assert.ErrorIs(t, r.Refund("agent-1", MustMoney("90", "EUR")), ErrCurrencyMismatch)
	require.NoError(t, r.Refund("agent-1", usd("90")))
	require.NoError(t, r.Close("agent-1"))

	assert.Equal(t, StatusClosed, r.Status)
	assert.Equal(t, "1Z999", r.TrackingNumber)
	require.NotNil(t, r.FinalRefund)
	assert.True(t, r.FinalRefund.Equal(usd("90")))
	assert.NotNil(t, r.ClosedAt)
	// submit + five transitions
	assert.Len(t, r.AuditLog(), 6)
	assert.Len(t, r.DomainEvents(), 5)
}

func TestReturn_ExchangeAndCancel(t *testing.T) {
	r := &Return{ReturnID: "RMA-1", TenantID: "tenant-a", Status: StatusReceived, Policy: testPolicy(t)}
	var vErr *ValidationError
	assert.True(t, errors.As(r.Exchange("agent-1", ""), &vErr))
	require.NoError(t, r.Exchange("agent-1", "ORD-2002"))
	assert.Equal(t, StatusExchanged, r.Status)

	c := requestedReturn(t, testPolicy(t), recentOrder())
	assert.ErrorIs(t, c.Cancel("shopper", ""), ErrReasonRequired)
	require.NoError(t, c.Cancel("shopper", "changed my mind"))
	assert.Equal(t, StatusCanceled, c.Status)
	assert.NotNil(t, c.CanceledAt)
}

func TestReturn_ClearDomainEvents_Idempotent(t *testing.T) {
	r := &Return{ReturnID: "RMA-1", TenantID: "tenant-a", Status: StatusRequested, Policy: testPolicy(t)}
	require.NoError(t, r.ChangeStatus(StatusCanceled, "agent", "dup"))
	require.Len(t, r.DomainEvents(), 1)

	r.ClearDomainEvents()
	assert.Empty(t, r.DomainEvents())
	r.ClearDomainEvents()
	assert.Empty(t, r.DomainEvents())
}
