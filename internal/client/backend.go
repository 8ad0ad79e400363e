package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"dropified/tracksync/internal/config"
	"dropified/tracksync/internal/domain"

	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"
	"resty.dev/v3"
)

var ErrBackend = errors.New("backend request failed")

// BackendError carries the status and message the backend returned.
type BackendError struct {
	StatusCode int
	Message    string
}

func (e *BackendError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned HTTP %d", e.StatusCode)
	}
	return e.Message
}

func (e *BackendError) Unwrap() error {
	return ErrBackend
}

// OrderFilter selects the orders of a store to reconcile.
type OrderFilter struct {
	StoreID         string
	StoreType       string
	UnfulfilledOnly bool
	CreatedAt       string
}

// OrderUpdate is the payload persisted when a supplier status changed.
type OrderUpdate struct {
	OrderID        string
	Status         string
	EndReason      string
	TrackingNumber string
	OrderDetails   json.RawMessage
	Bundle         bool
	SourceID       string
}

// SupplementSync identifies one supplements order to refresh.
type SupplementSync struct {
	StoreID   string `json:"store_id"`
	StoreType string `json:"store_type"`
	SourceID  string `json:"source_id"`
	TrackID   string `json:"track_id"`
}

type Backend interface {
	CountPending(ctx context.Context, filter OrderFilter) (int, error)
	ListOrders(ctx context.Context, filter OrderFilter, ids []string) ([]domain.OrderTrackingTask, error)
	UpdateOrder(ctx context.Context, update OrderUpdate) error
	SyncSupplementOrder(ctx context.Context, req SupplementSync) ([]domain.SupplierStatus, error)
	GetPrintOrder(ctx context.Context, storeID, sourceID string) (*domain.SupplierStatus, error)
	GetUserConfig(ctx context.Context, names []string) (map[string]string, error)
	SetUserConfig(ctx context.Context, name, value string) error
}

type backendClient struct {
	rl         ratelimit.Limiter
	httpClient *resty.Client
}

func NewBackendClient(cfg config.BackendConfig) Backend {
	rps := cfg.MaxRequestsPerSecond
	if rps <= 0 {
		rps = 10
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(time.Duration(cfg.Timeout)*time.Second).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(5*time.Second).
		SetHeader("Accept", "application/json")

	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}

	return &backendClient{
		rl:         ratelimit.New(rps),
		httpClient: client,
	}
}

func (c *backendClient) CountPending(ctx context.Context, filter OrderFilter) (int, error) {
	params := filterParams(filter)
	params["count_only"] = "true"

	var out struct {
		Pending int `json:"pending"`
	}
	if err := c.get(ctx, "/order-fulfill", params, &out); err != nil {
		return 0, fmt.Errorf("failed to count pending orders: %w", err)
	}

	log.Debugf("Backend reports %d pending orders for store %s", out.Pending, filter.StoreID)
	return out.Pending, nil
}

func (c *backendClient) ListOrders(ctx context.Context, filter OrderFilter, ids []string) ([]domain.OrderTrackingTask, error) {
	params := filterParams(filter)
	if len(ids) > 0 {
		params["ids"] = strings.Join(ids, ",")
	}

	var out []wireOrder
	if err := c.get(ctx, "/order-fulfill", params, &out); err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	tasks := make([]domain.OrderTrackingTask, 0, len(out))
	for _, o := range out {
		tasks = append(tasks, o.toTask())
	}
	return tasks, nil
}

func (c *backendClient) UpdateOrder(ctx context.Context, update OrderUpdate) error {
	details := "{}"
	if len(update.OrderDetails) > 0 {
		details = string(update.OrderDetails)
	}

	body := map[string]interface{}{
		"order":           update.OrderID,
		"status":          update.Status,
		"end_reason":      update.EndReason,
		"tracking_number": update.TrackingNumber,
		"order_details":   details,
		"bundle":          update.Bundle,
		"source_id":       update.SourceID,
	}
	if err := c.postOnce(ctx, "/order-fulfill-update", body, nil); err != nil {
		return fmt.Errorf("failed to update order %s: %w", update.OrderID, err)
	}
	return nil
}

func (c *backendClient) SyncSupplementOrder(ctx context.Context, req SupplementSync) ([]domain.SupplierStatus, error) {
	var out struct {
		Orders []struct {
			SourceID string `json:"source_id"`
			Source   struct {
				OrderStatus    string `json:"orderStatus"`
				TrackingNumber string `json:"tracking_number"`
				SourceURL      string `json:"source_url"`
				SourceID       string `json:"source_id"`
			} `json:"source"`
		} `json:"orders"`
	}
	if err := c.postOnce(ctx, "/sync-order", req, &out); err != nil {
		return nil, fmt.Errorf("failed to sync supplements order %s: %w", req.SourceID, err)
	}

	statuses := make([]domain.SupplierStatus, 0, len(out.Orders))
	for _, o := range out.Orders {
		sourceID := o.Source.SourceID
		if sourceID == "" {
			sourceID = o.SourceID
		}
		statuses = append(statuses, domain.SupplierStatus{
			OrderStatus:    o.Source.OrderStatus,
			TrackingNumber: o.Source.TrackingNumber,
			SourceURL:      o.Source.SourceURL,
			SourceID:       sourceID,
		})
	}
	return statuses, nil
}

func (c *backendClient) GetPrintOrder(ctx context.Context, storeID, sourceID string) (*domain.SupplierStatus, error) {
	var raw json.RawMessage
	params := map[string]string{"store": storeID, "source_id": sourceID}
	if err := c.getOnce(ctx, "/print-order-status", params, &raw); err != nil {
		return nil, fmt.Errorf("failed to get print order %s: %w", sourceID, err)
	}

	var out struct {
		Order struct {
			Status         string `json:"status"`
			TrackingNumber string `json:"tracking_number"`
			URL            string `json:"url"`
		} `json:"order"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode print order %s: %w", sourceID, err)
	}

	return &domain.SupplierStatus{
		OrderStatus:    out.Order.Status,
		TrackingNumber: out.Order.TrackingNumber,
		SourceURL:      out.Order.URL,
		OrderDetails:   raw,
	}, nil
}

func (c *backendClient) GetUserConfig(ctx context.Context, names []string) (map[string]string, error) {
	var raw map[string]interface{}
	if err := c.get(ctx, "/user-config", map[string]string{"name": strings.Join(names, ",")}, &raw); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}

	values := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			values[k] = val
		case bool:
			values[k] = strconv.FormatBool(val)
		case float64:
			values[k] = strconv.FormatFloat(val, 'f', -1, 64)
		default:
			values[k] = fmt.Sprint(val)
		}
	}
	return values, nil
}

func (c *backendClient) SetUserConfig(ctx context.Context, name, value string) error {
	body := map[string]interface{}{"single": true, "name": name, "value": value}
	if err := c.post(ctx, "/user-config", body, nil); err != nil {
		return fmt.Errorf("failed to save user config %s: %w", name, err)
	}
	return nil
}

func (c *backendClient) get(ctx context.Context, path string, params map[string]string, out interface{}) error {
	return c.doGet(ctx, c.httpClient.R(), path, params, out)
}

func (c *backendClient) post(ctx context.Context, path string, body, out interface{}) error {
	return c.doPost(ctx, c.httpClient.R(), path, body, out)
}

// getOnce and postOnce serve per-order fetches and writes, whose first
// failure is final for the order.
func (c *backendClient) getOnce(ctx context.Context, path string, params map[string]string, out interface{}) error {
	return c.doGet(ctx, c.httpClient.R().SetRetryCount(0), path, params, out)
}

func (c *backendClient) postOnce(ctx context.Context, path string, body, out interface{}) error {
	return c.doPost(ctx, c.httpClient.R().SetRetryCount(0), path, body, out)
}

func (c *backendClient) doGet(ctx context.Context, req *resty.Request, path string, params map[string]string, out interface{}) error {
	c.rl.Take()

	resp, err := req.
		SetContext(ctx).
		SetQueryParams(params).
		Get(path)
	return decodeResponse(ctx, resp, err, out)
}

func (c *backendClient) doPost(ctx context.Context, req *resty.Request, path string, body, out interface{}) error {
	c.rl.Take()

	resp, err := req.
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(path)
	return decodeResponse(ctx, resp, err, out)
}

func decodeResponse(ctx context.Context, resp *resty.Response, err error, out interface{}) error {
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("request cancelled: %w", ctx.Err())
		}
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}

	if resp.IsError() {
		return &BackendError{StatusCode: resp.StatusCode(), Message: errorMessage(resp.String())}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(resp.String()), out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// errorMessage pulls the human message out of a backend error payload.
func errorMessage(body string) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return strings.TrimSpace(body)
}

func filterParams(filter OrderFilter) map[string]string {
	params := map[string]string{
		"store":            filter.StoreID,
		"all":              "true",
		"unfulfilled_only": strconv.FormatBool(filter.UnfulfilledOnly),
	}
	if filter.StoreType != "" {
		params["store_type"] = filter.StoreType
	}
	if filter.CreatedAt != "" {
		params["created_at"] = filter.CreatedAt
	}
	return params
}
