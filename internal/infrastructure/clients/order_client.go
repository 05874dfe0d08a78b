package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/wms-platform/returns-service/internal/domain"
	"github.com/wms-platform/returns-service/pkg/logging"
	"github.com/wms-platform/returns-service/pkg/middleware"
	"github.com/wms-platform/returns-service/pkg/resilience"
	"github.com/wms-platform/returns-service/pkg/tracing"
)

// errNotFound marks a 404 so the breaker does not count it as a failure
var errNotFound = errors.New("order not found")

// OrderServiceClient is an HTTP client for the order service
type OrderServiceClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
}

// NewOrderServiceClient creates a new OrderServiceClient. breaker may be nil.
func NewOrderServiceClient(baseURL string, breaker *resilience.CircuitBreaker) *OrderServiceClient {
	return &OrderServiceClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		breaker: breaker,
	}
}

// orderResponse is the order service's representation of an order
type orderResponse struct {
	OrderID                string              `json:"orderId"`
	TenantID               string              `json:"tenantId"`
	CustomerEmail          string              `json:"customerEmail"`
	CustomerSince          *time.Time          `json:"customerSince,omitempty"`
	Currency               string              `json:"currency"`
	ShippingCountry        string              `json:"shippingCountry,omitempty"`
	BillingCountry         string              `json:"billingCountry,omitempty"`
	OrderDate              time.Time           `json:"orderDate"`
	FulfilledAt            *time.Time          `json:"fulfilledAt,omitempty"`
	DeliveredAt            *time.Time          `json:"deliveredAt,omitempty"`
	FirstDeliveryAttemptAt *time.Time          `json:"firstDeliveryAttemptAt,omitempty"`
	Items                  []orderItemResponse `json:"items"`
}

type orderItemResponse struct {
	LineItemID       string       `json:"lineItemId"`
	SKU              string       `json:"sku"`
	Title            string       `json:"title"`
	Variant          string       `json:"variant,omitempty"`
	Quantity         int          `json:"quantity"`
	ReturnedQuantity int          `json:"returnedQuantity"`
	UnitPrice        domain.Money `json:"unitPrice"`
	Category         string       `json:"category,omitempty"`
	Tags             []string     `json:"tags,omitempty"`
}

func (o orderResponse) toSnapshot() *domain.OrderSnapshot {
	snapshot := &domain.OrderSnapshot{
		OrderID:         o.OrderID,
		TenantID:        o.TenantID,
		CustomerEmail:   o.CustomerEmail,
		CustomerSince:   o.CustomerSince,
		Currency:        o.Currency,
		ShippingCountry: o.ShippingCountry,
		BillingCountry:  o.BillingCountry,
		Dates: domain.OrderDates{
			OrderDate:              o.OrderDate,
			FulfilledAt:            o.FulfilledAt,
			DeliveredAt:            o.DeliveredAt,
			FirstDeliveryAttemptAt: o.FirstDeliveryAttemptAt,
		},
		Items: make([]domain.FulfilledItem, 0, len(o.Items)),
	}
	for _, item := range o.Items {
		snapshot.Items = append(snapshot.Items, domain.FulfilledItem{
			LineItemID:       item.LineItemID,
			SKU:              item.SKU,
			Title:            item.Title,
			Variant:          item.Variant,
			Quantity:         item.Quantity,
			ReturnedQuantity: item.ReturnedQuantity,
			UnitPrice:        item.UnitPrice,
			Category:         item.Category,
			Tags:             item.Tags,
		})
	}
	return snapshot
}

// GetOrder retrieves an order by ID on behalf of tenantID
func (c *OrderServiceClient) GetOrder(ctx context.Context, tenantID, orderID string) (*domain.OrderSnapshot, error) {
	call := func() (interface{}, error) {
		return c.fetch(ctx, tenantID, orderID)
	}

	var (
		result interface{}
		err    error
	)
	if c.breaker != nil {
		result, err = c.breaker.Execute(ctx, func() (interface{}, error) {
			order, err := call()
			if errors.Is(err, errNotFound) {
				// a missing order is an answer, not an outage
				return nil, nil
			}
			return order, err
		})
	} else {
		result, err = call()
	}
	if err != nil {
		if errors.Is(err, errNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, orderID)
		}
		return nil, err
	}

	order, ok := result.(*orderResponse)
	if !ok || order == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, orderID)
	}
	if order.TenantID == "" {
		order.TenantID = tenantID
	}
	return order.toSnapshot(), nil
}

func (c *OrderServiceClient) fetch(ctx context.Context, tenantID, orderID string) (*orderResponse, error) {
	reqURL := fmt.Sprintf("%s/api/v1/orders/%s", c.baseURL, url.PathEscape(orderID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(middleware.HeaderWMSTenantID, tenantID)
	if correlationID, ok := ctx.Value(logging.CorrelationIDKey).(string); ok && correlationID != "" {
		req.Header.Set(middleware.HeaderCorrelationID, correlationID)
	}
	carrier := make(map[string]string)
	tracing.InjectTraceContext(ctx, carrier)
	for k, v := range carrier {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call order service: %w", err)
	}
	defer resp.Body.Close()

	slog.DebugContext(ctx, "Order service responded",
		"orderId", orderID,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode == http.StatusNotFound {
		return nil, errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("order service returned status %d", resp.StatusCode)
	}

	var order orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &order, nil
}
