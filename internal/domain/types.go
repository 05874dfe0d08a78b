package domain

import "strings"

// Channel identifies who initiated a return
type Channel string

const (
	ChannelCustomer Channel = "customer"
	ChannelMerchant Channel = "merchant"
	ChannelAPI      Channel = "api"
)

func (c Channel) IsValid() bool {
	return c == ChannelCustomer || c == ChannelMerchant || c == ChannelAPI
}

// Condition is the reported state of a returned item
type Condition string

const (
	ConditionNew     Condition = "new"
	ConditionUsed    Condition = "used"
	ConditionDamaged Condition = "damaged"
)

func (c Condition) IsValid() bool {
	return c == ConditionNew || c == ConditionUsed || c == ConditionDamaged
}

// Outcome is what the customer receives for a return
type Outcome string

const (
	OutcomeRefund      Outcome = "refund"
	OutcomeExchange    Outcome = "exchange"
	OutcomeStoreCredit Outcome = "store_credit"
	OutcomeKeepItem    Outcome = "keep_item"
)

func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeRefund, OutcomeExchange, OutcomeStoreCredit, OutcomeKeepItem:
		return true
	}
	return false
}

// ReturnMethod is how the item travels back to the merchant
type ReturnMethod string

const (
	MethodPrepaidLabel    ReturnMethod = "prepaid_label"
	MethodCustomerShipped ReturnMethod = "customer_shipped"
	MethodDropOff         ReturnMethod = "drop_off"
	MethodInStore         ReturnMethod = "in_store"
	MethodKeepItem        ReturnMethod = "keep_item"
)

func (m ReturnMethod) IsValid() bool {
	switch m {
	case MethodPrepaidLabel, MethodCustomerShipped, MethodDropOff, MethodInStore, MethodKeepItem:
		return true
	}
	return false
}

// ReturnReason is a reason code plus a human description
type ReturnReason struct {
	Code        string `json:"code" bson:"code"`
	Description string `json:"description,omitempty" bson:"description,omitempty"`
}

// HighRiskReasonCodes veto auto-approval regardless of refund amount
var HighRiskReasonCodes = []string{"fraud", "chargeback", "abuse"}

// IsHighRisk reports whether the reason code is on the high-risk list
func (r ReturnReason) IsHighRisk() bool {
	code := strings.ToLower(strings.TrimSpace(r.Code))
	for _, risky := range HighRiskReasonCodes {
		if code == risky {
			return true
		}
	}
	return false
}

func normalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
