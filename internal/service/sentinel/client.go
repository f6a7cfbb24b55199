// Package sentinel is the transport to the Sentinel-X backend API. Every
// method performs exactly one HTTP call and reports failures as
// *models.FetchError.
package sentinel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"SentinelX/internal/domain/models"
	"SentinelX/internal/domain/repository"
	"SentinelX/pkg/clock"
	xhttp "SentinelX/pkg/http"
)

const (
	DefaultBaseURL = "http://localhost:3000/api"
	DefaultTimeout = 10 * time.Second
)

var (
	ErrUnknownOperation = errors.New("unknown operation")
	ErrInvalidParams    = errors.New("invalid params")
)

// Option configures Client.
type Option func(*Client)

// WithTimeout sets the per call deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *xhttp.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// WithClock sets the clock used to measure call latency.
func WithClock(cl clock.Clock) Option {
	return func(c *Client) {
		c.clock = cl
	}
}

// Client is a typed client for the backend API.
type Client struct {
	baseURL  string
	timeout  time.Duration
	http     *xhttp.Client
	clock    clock.Clock
	validate *validator.Validate
}

// New creates a client for baseURL, defaulting to DefaultBaseURL when empty.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		timeout:  DefaultTimeout,
		clock:    clock.SystemClock{},
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		// the per call context deadline is authoritative
		c.http = xhttp.NewClient(xhttp.WithTimeout(0))
	}
	return c
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// Health fetches GET /health.
func (c *Client) Health(ctx context.Context) (*models.HealthSnapshot, error) {
	var w wireHealth
	if _, err := c.call(ctx, models.KindHealth, xhttp.MethodGet, "/health", nil, nil, &w); err != nil {
		return nil, err
	}
	return w.snapshot(), nil
}

// Metrics fetches GET /indexer/metrics.
func (c *Client) Metrics(ctx context.Context) (*models.IndexerMetricsSnapshot, error) {
	var w wireMetrics
	if _, err := c.call(ctx, models.KindMetrics, xhttp.MethodGet, "/indexer/metrics", nil, nil, &w); err != nil {
		return nil, err
	}
	return w.snapshot(), nil
}

// Blocks fetches GET /blocks?limit=&offset=.
func (c *Client) Blocks(ctx context.Context, limit, offset int) (*models.BlockList, error) {
	q := map[string][]string{"limit": {strconv.Itoa(limit)}}
	if offset > 0 {
		q["offset"] = []string{strconv.Itoa(offset)}
	}
	var w wireBlocks
	if _, err := c.call(ctx, models.KindBlocks, xhttp.MethodGet, "/blocks", q, nil, &w); err != nil {
		return nil, err
	}
	return w.list(), nil
}

// Block fetches GET /blocks/:number.
func (c *Client) Block(ctx context.Context, number uint64) (*models.BlockLookup, error) {
	var w wireBlockLookup
	path := "/blocks/" + strconv.FormatUint(number, 10)
	if _, err := c.call(ctx, models.KindBlock, xhttp.MethodGet, path, nil, nil, &w); err != nil {
		return nil, err
	}
	return &models.BlockLookup{Block: w.Block.record(), Source: w.Source}, nil
}

// Transactions fetches GET /transactions?limit=.
func (c *Client) Transactions(ctx context.Context, limit int) (*models.TransactionList, error) {
	q := map[string][]string{"limit": {strconv.Itoa(limit)}}
	var w wireTransactions
	if _, err := c.call(ctx, models.KindTransactions, xhttp.MethodGet, "/transactions", q, nil, &w); err != nil {
		return nil, err
	}
	return w.list(), nil
}

// QueryRequest is a free form AI question.
type QueryRequest struct {
	Prompt      string
	TaskType    models.TaskType
	Context     []string
	MaxTokens   *int
	Temperature *float64
}

// Query posts /ai/query.
func (c *Client) Query(ctx context.Context, req QueryRequest) (*models.InferenceResult, error) {
	if req.TaskType == "" {
		req.TaskType = models.TaskGeneralQuery
	}
	body := queryBody{
		Prompt:      req.Prompt,
		TaskType:    req.TaskType,
		Context:     req.Context,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	return c.infer(ctx, models.KindAIQuery, "/ai/query", body)
}

// AnalyzeContract posts /ai/contract/analyze.
func (c *Client) AnalyzeContract(ctx context.Context, address string) (*models.InferenceResult, error) {
	return c.infer(ctx, models.KindContractAnalyze, "/ai/contract/analyze", contractBody{ContractAddress: address})
}

// ExplainContract posts /contract/explain. The explanation lands in
// OutputText; the response carries no confidence.
func (c *Client) ExplainContract(ctx context.Context, address string) (*models.InferenceResult, error) {
	var w wireExplanation
	took, err := c.call(ctx, models.KindContractExplain, xhttp.MethodPost, "/contract/explain", nil, contractBody{ContractAddress: address}, &w)
	if err != nil {
		return nil, err
	}
	return w.result(float64(took.Milliseconds())), nil
}

// Audit posts /ai/security/audit.
func (c *Client) Audit(ctx context.Context, code string) (*models.InferenceResult, error) {
	return c.infer(ctx, models.KindSecurityAudit, "/ai/security/audit", auditBody{Code: code})
}

// PredictPrice posts /ai/price/predict.
func (c *Client) PredictPrice(ctx context.Context, asset string) (*models.InferenceResult, error) {
	return c.infer(ctx, models.KindPricePredict, "/ai/price/predict", assetBody{Asset: asset})
}

// Price fetches GET /price/:asset.
func (c *Client) Price(ctx context.Context, asset string) (*models.PriceSnapshot, error) {
	var w wirePrice
	if _, err := c.call(ctx, models.KindPriceCurrent, xhttp.MethodGet, "/price/"+url.PathEscape(asset), nil, nil, &w); err != nil {
		return nil, err
	}
	return w.snapshot(), nil
}

func (c *Client) infer(ctx context.Context, op models.Kind, path string, body any) (*models.InferenceResult, error) {
	var w wireInference
	took, err := c.call(ctx, op, xhttp.MethodPost, path, nil, body, &w)
	if err != nil {
		return nil, err
	}
	return w.result(float64(took.Milliseconds())), nil
}

// call performs one request, validates the decoded body and classifies
// failures. It returns the observed duration.
func (c *Client) call(
	ctx context.Context,
	op models.Kind,
	method, path string,
	query map[string][]string,
	body any,
	dest any,
) (time.Duration, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := c.clock.Now()
	err := c.http.SendAndParse(callCtx, &xhttp.RequestOptions{
		Method:      method,
		URL:         c.baseURL + path,
		QueryParams: query,
		Body:        body,
	}, dest)
	took := c.clock.Now().Sub(start)
	if err != nil {
		return took, classify(ctx, op, err)
	}
	if err := c.validate.StructCtx(ctx, dest); err != nil {
		return took, models.DecodeError(op, fmt.Errorf("schema: %w", err))
	}
	return took, nil
}

// classify maps a raw client error onto the slot error taxonomy. parent is
// the caller context: a deadline hit only by the per call timeout is a
// timeout, a cancelled caller is reported as a network failure.
func classify(parent context.Context, op models.Kind, err error) error {
	var se *xhttp.StatusError
	if errors.As(err, &se) {
		return models.HTTPError(op, se.StatusCode, err)
	}
	if errors.Is(err, xhttp.ErrDecode) {
		return models.DecodeError(op, err)
	}
	if parent.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return models.TimeoutError(op, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() && parent.Err() == nil {
		return models.TimeoutError(op, err)
	}
	return models.NetworkError(op, err)
}

// Execute dispatches op with string encoded params. It is the generic entry
// point used by pollers and actions.
func (c *Client) Execute(ctx context.Context, op models.Kind, params repository.Params) (any, error) {
	switch op {
	case models.KindHealth:
		return c.Health(ctx)
	case models.KindMetrics:
		return c.Metrics(ctx)
	case models.KindBlocks:
		limit, err := intParam(params, "limit", 10)
		if err != nil {
			return nil, err
		}
		offset, err := intParam(params, "offset", 0)
		if err != nil {
			return nil, err
		}
		return c.Blocks(ctx, limit, offset)
	case models.KindBlock:
		n, err := strconv.ParseUint(params["number"], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: number: %v", ErrInvalidParams, err)
		}
		return c.Block(ctx, n)
	case models.KindTransactions:
		limit, err := intParam(params, "limit", 10)
		if err != nil {
			return nil, err
		}
		return c.Transactions(ctx, limit)
	case models.KindAIQuery:
		req, err := queryParams(params)
		if err != nil {
			return nil, err
		}
		return c.Query(ctx, req)
	case models.KindContractAnalyze:
		return c.AnalyzeContract(ctx, params["contract_address"])
	case models.KindContractExplain:
		return c.ExplainContract(ctx, params["contract_address"])
	case models.KindSecurityAudit:
		return c.Audit(ctx, params["code"])
	case models.KindPricePredict:
		return c.PredictPrice(ctx, params["asset"])
	case models.KindPriceCurrent:
		asset := params["asset"]
		if asset == "" {
			return nil, fmt.Errorf("%w: asset is required", ErrInvalidParams)
		}
		return c.Price(ctx, asset)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, op)
	}
}

func intParam(params repository.Params, name string, def int) (int, error) {
	s, ok := params[name]
	if !ok || s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidParams, name, s)
	}
	return v, nil
}

func queryParams(params repository.Params) (QueryRequest, error) {
	req := QueryRequest{
		Prompt:   params["prompt"],
		TaskType: models.TaskType(params["task_type"]),
	}
	if req.Prompt == "" {
		return req, fmt.Errorf("%w: prompt is required", ErrInvalidParams)
	}
	if s := params["context"]; s != "" {
		req.Context = strings.Split(s, "\n")
	}
	if s := params["max_tokens"]; s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return req, fmt.Errorf("%w: max_tokens=%q", ErrInvalidParams, s)
		}
		req.MaxTokens = &v
	}
	if s := params["temperature"]; s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return req, fmt.Errorf("%w: temperature=%q", ErrInvalidParams, s)
		}
		req.Temperature = &v
	}
	return req, nil
}

var _ repository.Backend = (*Client)(nil)
