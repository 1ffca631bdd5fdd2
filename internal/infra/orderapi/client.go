package orderapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"swap_calc/internal/domain"
	"swap_calc/internal/infra"
)

// Client talks to the order service that backs the mini-app.
// It performs exactly one HTTP request per call and never retries.
type Client struct {
	baseURL    string
	initPath   string
	createPath string
	httpClient *http.Client
	metrics    *infra.Metrics
	logger     *slog.Logger
}

// NewClient creates a new order service client from configuration.
func NewClient(cfg *infra.Config, metrics *infra.Metrics) *Client {
	return NewClientWithURL(cfg.API.BaseURL, cfg.API.InitPath, cfg.API.CreatePath, cfg.RequestTimeout(), metrics)
}

// NewClientWithURL creates a client with explicit endpoints.
func NewClientWithURL(baseURL, initPath, createPath string, timeout time.Duration, metrics *infra.Metrics) *Client {
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	return &Client{
		baseURL:    baseURL,
		initPath:   initPath,
		createPath: createPath,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		metrics: metrics,
		logger:  infra.Module(nil, "order_api"),
	}
}

// FetchTerms performs the terms-init call.
func (c *Client) FetchTerms(ctx context.Context, req domain.TermsRequest) (domain.TermsReply, error) {
	var resp termsResponse
	code, err := c.post(ctx, opTermsInit, c.initPath, req, &resp)
	if err != nil {
		return domain.TermsReply{}, err
	}

	if code != "" {
		c.logger.Info("Terms rejected", "order_id", req.OrderID, "code", code)
		return domain.TermsReply{ErrorCode: code}, nil
	}

	if resp.Min == nil || resp.Min.IsNegative() {
		return domain.TermsReply{}, domain.NewNetworkError(opTermsInit, fmt.Errorf("response without a valid minimum amount"))
	}

	return domain.TermsReply{Terms: domain.OrderTerms{
		PaymentMethodName: resp.PMName,
		SellerNickname:    resp.Nickname,
		SellerRating:      ratingText(resp.Rating),
		MinimumAmount:     *resp.Min,
	}}, nil
}

// CreateOrder performs the order-create call.
func (c *Client) CreateOrder(ctx context.Context, req domain.CreateRequest) (domain.CreateReply, error) {
	body := createOrderRequest{
		OrderID:   req.OrderID,
		MethodID:  req.MethodID,
		AmountRub: json.Number(req.Amount.String()),
		InitData:  req.InitData,
	}

	code, err := c.post(ctx, opOrderCreate, c.createPath, body, nil)
	if err != nil {
		return domain.CreateReply{}, err
	}

	if code != "" {
		c.logger.Info("Order rejected", "order_id", req.OrderID, "code", code)
	} else {
		c.logger.Info("Order created", "order_id", req.OrderID, "amount", req.Amount.String())
	}
	return domain.CreateReply{ErrorCode: code}, nil
}

// post handles serialization and maps every failure to a NetworkError.
// A body carrying an error code is a business reply whatever the HTTP
// status; a non-2xx status without one is a transport failure.
func (c *Client) post(ctx context.Context, op, path string, body, out interface{}) (string, error) {
	jsonBytes, err := json.Marshal(body)
	if err != nil {
		return "", domain.NewNetworkError(op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBytes))
	if err != nil {
		return "", domain.NewNetworkError(op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", infra.DefaultUserAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.RecordRequest(time.Since(start))
	if err != nil {
		return "", domain.NewNetworkError(op, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", domain.NewNetworkError(op, err)
	}
	statusOK := resp.StatusCode >= 200 && resp.StatusCode <= 299

	var env envelope
	if err := json.Unmarshal(bodyBytes, &env); err != nil {
		if !statusOK {
			return "", domain.NewNetworkError(op, fmt.Errorf("unexpected status code: %d", resp.StatusCode))
		}
		return "", domain.NewNetworkError(op, fmt.Errorf("failed to parse response: %w", err))
	}

	if code := errorCode(env.Error); code != "" {
		return code, nil
	}
	if !statusOK {
		return "", domain.NewNetworkError(op, fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}

	if out != nil {
		if err := json.Unmarshal(bodyBytes, out); err != nil {
			return "", domain.NewNetworkError(op, fmt.Errorf("failed to parse response: %w", err))
		}
	}
	return "", nil
}
