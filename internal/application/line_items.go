package application

import (
	"fmt"
	"strings"

	"github.com/wms-platform/returns-service/internal/domain"
)

// buildLineItem resolves an input against the order. Known lines take product data from
// the order; unknown lines keep what the caller sent so eligibility can deny them by name.
func buildLineItem(order *domain.OrderSnapshot, in LineItemInput) (domain.ReturnLineItem, error) {
	item := domain.ReturnLineItem{
		LineItemID: strings.TrimSpace(in.LineItemID),
		Quantity:   in.Quantity,
		Reason:     domain.ReturnReason{Code: in.ReasonCode, Description: in.ReasonText},
		Condition:  domain.Condition(in.Condition),
		Photos:     in.Photos,
		Notes:      in.Notes,
	}

	if fulfilled, ok := order.FindItem(item.LineItemID); ok {
		item.SKU = fulfilled.SKU
		item.Title = fulfilled.Title
		item.Variant = fulfilled.Variant
		item.UnitPrice = fulfilled.UnitPrice
		item.Category = fulfilled.Category
		item.Tags = append([]string(nil), fulfilled.Tags...)
		return item, nil
	}

	if in.SKU == "" || in.UnitPrice == nil {
		return domain.ReturnLineItem{}, &domain.ValidationError{
			Field:   "lineItemId",
			Message: fmt.Sprintf("line item %s is not on order %s; sku and unitPrice are required", item.LineItemID, order.OrderID),
		}
	}
	item.SKU = in.SKU
	item.Title = in.Title
	item.UnitPrice = *in.UnitPrice
	return item, nil
}

func buildLineItems(order *domain.OrderSnapshot, inputs []LineItemInput) ([]domain.ReturnLineItem, error) {
	items := make([]domain.ReturnLineItem, 0, len(inputs))
	for _, in := range inputs {
		item, err := buildLineItem(order, in)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}
