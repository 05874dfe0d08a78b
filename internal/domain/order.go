package domain

import "time"

// OrderDates are the order milestones a return window can be anchored to
type OrderDates struct {
	OrderDate              time.Time  `json:"orderDate" bson:"orderDate"`
	FulfilledAt            *time.Time `json:"fulfilledAt,omitempty" bson:"fulfilledAt,omitempty"`
	DeliveredAt            *time.Time `json:"deliveredAt,omitempty" bson:"deliveredAt,omitempty"`
	FirstDeliveryAttemptAt *time.Time `json:"firstDeliveryAttemptAt,omitempty" bson:"firstDeliveryAttemptAt,omitempty"`
}

// FulfilledItem is an order line as reported by the order lookup
type FulfilledItem struct {
	LineItemID       string   `json:"lineItemId"`
	SKU              string   `json:"sku"`
	Title            string   `json:"title"`
	Variant          string   `json:"variant,omitempty"`
	Quantity         int      `json:"quantity"`
	ReturnedQuantity int      `json:"returnedQuantity"`
	UnitPrice        Money    `json:"unitPrice"`
	Category         string   `json:"category,omitempty"`
	Tags             []string `json:"tags,omitempty"`
}

// ReturnableQuantity is what remains after earlier returns
func (i FulfilledItem) ReturnableQuantity() int {
	q := i.Quantity - i.ReturnedQuantity
	if q < 0 {
		return 0
	}
	return q
}

// OrderSnapshot is the read-only view of an order used for eligibility decisions
type OrderSnapshot struct {
	OrderID         string          `json:"orderId"`
	TenantID        string          `json:"tenantId"`
	CustomerEmail   string          `json:"customerEmail"`
	CustomerSince   *time.Time      `json:"customerSince,omitempty"`
	Currency        string          `json:"currency"`
	ShippingCountry string          `json:"shippingCountry,omitempty"`
	BillingCountry  string          `json:"billingCountry,omitempty"`
	Dates           OrderDates      `json:"dates"`
	Items           []FulfilledItem `json:"items"`
}

// FindItem returns the fulfilled item for a line item id
func (o OrderSnapshot) FindItem(lineItemID string) (FulfilledItem, bool) {
	for _, item := range o.Items {
		if item.LineItemID == lineItemID {
			return item, true
		}
	}
	return FulfilledItem{}, false
}

// CustomerProfile is the return history used as fraud signal input
type CustomerProfile struct {
	Email             string     `json:"email"`
	AccountCreatedAt  *time.Time `json:"accountCreatedAt,omitempty"`
	ReturnsLast90Days int        `json:"returnsLast90Days"`
	PriorReasonCodes  []string   `json:"priorReasonCodes,omitempty"`
}
