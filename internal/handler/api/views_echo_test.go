package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SentinelX/internal/domain/models"
	"SentinelX/internal/domain/repository"
	"SentinelX/internal/handler/api"
	"SentinelX/internal/service/ratelimit"
	"SentinelX/internal/usecase"
	"SentinelX/pkg/logger"
	"SentinelX/pkg/metrics"
)

// stubBackend answers every kind immediately, except ai-query which waits
// for release.
type stubBackend struct {
	release chan struct{}
	once    sync.Once
}

func newStubBackend() *stubBackend {
	return &stubBackend{release: make(chan struct{})}
}

func (b *stubBackend) Open() { b.once.Do(func() { close(b.release) }) }

func (b *stubBackend) Execute(ctx context.Context, op models.Kind, p repository.Params) (any, error) {
	switch op {
	case models.KindHealth:
		return &models.HealthSnapshot{Status: models.HealthOK}, nil
	case models.KindMetrics:
		return &models.IndexerMetricsSnapshot{TotalFeedsProcessed: 42}, nil
	case models.KindBlocks:
		return &models.BlockList{}, nil
	case models.KindAIQuery:
		select {
		case <-b.release:
			return &models.InferenceResult{OutputText: "answer to " + p["prompt"]}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	case models.KindPriceCurrent:
		return &models.PriceSnapshot{Asset: p["asset"], PriceUSD: 0.7}, nil
	case models.KindPricePredict:
		return &models.InferenceResult{OutputText: "flat", Confidence: 0.5}, nil
	}
	return nil, errors.New("unexpected op " + string(op))
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type apiHarness struct {
	echo    *echo.Echo
	views   *usecase.ViewManager
	backend *stubBackend
}

func newAPIHarness(t *testing.T, capacity float64) *apiHarness {
	t.Helper()

	b := newStubBackend()
	views := usecase.NewViewManager(usecase.DefaultCatalog(usecase.CatalogOptions{
		OverviewInterval: time.Hour,
		LiveInterval:     time.Hour,
		ExplorerInterval: time.Hour,
		BlocksLimit:      5,
		TxLimit:          10,
		DefaultAsset:     "CELO",
	}), b, metrics.Nop{}, logger.Nop())
	t.Cleanup(func() {
		b.Open()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, views.Close(ctx))
	})

	e := echo.New()
	api.NewViewsHandler(logger.Nop(), views, ratelimit.New(capacity, 0, nil)).RegisterRoutes(e)
	api.NewStreamHandler(logger.Nop(), views, time.Second).RegisterRoutes(e)
	return &apiHarness{echo: e, views: views, backend: b}
}

func (h *apiHarness) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.echo.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func TestMountLifecycle(t *testing.T) {
	t.Parallel()

	h := newAPIHarness(t, 10)

	rec, _ := h.do(t, http.MethodPost, "/api/views/dashboard", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env := h.do(t, http.MethodPost, "/api/views/overview", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var info usecase.ViewInfo
	require.NoError(t, json.Unmarshal(env.Data, &info))
	assert.Equal(t, usecase.ViewOverview, info.Name)

	rec, _ = h.do(t, http.MethodPost, "/api/views/overview", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = h.do(t, http.MethodGet, "/api/views", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Rows  []usecase.ViewInfo `json:"rows"`
		Total int64              `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, int64(1), list.Total)

	require.Eventually(t, func() bool {
		v, err := h.views.Get(usecase.ViewOverview)
		return err == nil && v.Read(models.KindMetrics).Status == models.StatusSuccess
	}, 2*time.Second, 10*time.Millisecond)

	rec, env = h.do(t, http.MethodGet, "/api/views/overview", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var detail struct {
		Name  string                          `json:"name"`
		Slots map[models.Kind]json.RawMessage `json:"slots"`
		Stats usecase.DisplayStats            `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	assert.Equal(t, usecase.ViewOverview, detail.Name)
	assert.Contains(t, detail.Slots, models.KindMetrics)
	require.NotNil(t, detail.Stats.Feeds)
	assert.Equal(t, int64(42), detail.Stats.Feeds.TotalProcessed)

	rec, env = h.do(t, http.MethodGet, "/api/views/overview/slots/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var slot models.Slot
	require.NoError(t, json.Unmarshal(env.Data, &slot))
	assert.Equal(t, models.StatusSuccess, slot.Status)
	ms := models.Typed[models.IndexerMetricsSnapshot](slot)
	require.NotNil(t, ms.Value)
	assert.Equal(t, int64(42), ms.Value.TotalFeedsProcessed)

	rec, _ = h.do(t, http.MethodGet, "/api/views/overview/slots/weather", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = h.do(t, http.MethodDelete, "/api/views/overview", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, _ = h.do(t, http.MethodDelete, "/api/views/overview", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = h.do(t, http.MethodGet, "/api/views/overview", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestActions(t *testing.T) {
	t.Parallel()

	t.Run("it accepts and refuses duplicates in flight", func(t *testing.T) {
		t.Parallel()

		h := newAPIHarness(t, 10)
		rec, _ := h.do(t, http.MethodPost, "/api/views/playground", "")
		require.Equal(t, http.StatusCreated, rec.Code)

		body := `{"prompt":"what is celo"}`
		rec, env := h.do(t, http.MethodPost, "/api/views/playground/actions/ai-query", body)
		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
		var accepted models.ActionAccepted
		require.NoError(t, json.Unmarshal(env.Data, &accepted))
		assert.Equal(t, uint64(1), accepted.Tick)
		require.Len(t, accepted.Slots, 1)
		assert.Equal(t, models.KindAIQuery, accepted.Slots[0].Kind)
		assert.Equal(t, models.StatusLoading, accepted.Slots[0].Status)

		rec, _ = h.do(t, http.MethodPost, "/api/views/playground/actions/ai-query", body)
		assert.Equal(t, http.StatusConflict, rec.Code)

		h.backend.Open()
		require.Eventually(t, func() bool {
			v, err := h.views.Get(usecase.ViewPlayground)
			return err == nil && v.Read(models.KindAIQuery).Status == models.StatusSuccess
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("it validates arguments", func(t *testing.T) {
		t.Parallel()

		h := newAPIHarness(t, 10)
		h.do(t, http.MethodPost, "/api/views/playground", "")

		rec, _ := h.do(t, http.MethodPost, "/api/views/playground/actions/ai-query", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec, _ = h.do(t, http.MethodPost, "/api/views/playground/actions/contract-analyze", `{"contract_address":"celo"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec, _ = h.do(t, http.MethodPost, "/api/views/playground/actions/launch", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec, _ = h.do(t, http.MethodPost, "/api/views/playground/actions/block-search", `{"number":"12"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "block search is an explorer action")
	})

	t.Run("it fills the default asset", func(t *testing.T) {
		t.Parallel()

		h := newAPIHarness(t, 10)
		h.do(t, http.MethodPost, "/api/views/live", "")

		rec, env := h.do(t, http.MethodPost, "/api/views/live/actions/price-predict", `{}`)
		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
		var accepted models.ActionAccepted
		require.NoError(t, json.Unmarshal(env.Data, &accepted))
		assert.Len(t, accepted.Slots, 2)

		require.Eventually(t, func() bool {
			v, err := h.views.Get(usecase.ViewLive)
			if err != nil {
				return false
			}
			p := models.Typed[models.PriceSnapshot](v.Read(models.KindPriceCurrent))
			return p.Value != nil && p.Value.Asset == "CELO"
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("it requires a mounted view", func(t *testing.T) {
		t.Parallel()

		h := newAPIHarness(t, 10)
		rec, _ := h.do(t, http.MethodPost, "/api/views/playground/actions/ai-query", `{"prompt":"hi"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("it rate limits per client", func(t *testing.T) {
		t.Parallel()

		h := newAPIHarness(t, 1)
		h.do(t, http.MethodPost, "/api/views/playground", "")

		rec, _ := h.do(t, http.MethodPost, "/api/views/playground/actions/security-audit", `{"code":"contract A {}"}`)
		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

		rec, _ = h.do(t, http.MethodPost, "/api/views/playground/actions/security-audit", `{"code":"contract B {}"}`)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	})
}

func TestHealth(t *testing.T) {
	t.Parallel()

	views := usecase.NewViewManager(usecase.Catalog{}, newStubBackend(), metrics.Nop{}, logger.Nop())
	rl := ratelimit.New(1, 1, nil)

	t.Run("ok", func(t *testing.T) {
		e := echo.New()
		api.NewViewsHandler(logger.Nop(), views, rl,
			api.HealthCheck{Name: "clickhouse", Check: func(context.Context) error { return nil }},
		).RegisterRoutes(e)

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"clickhouse":"ok"`)
	})

	t.Run("degraded", func(t *testing.T) {
		e := echo.New()
		api.NewViewsHandler(logger.Nop(), views, rl,
			api.HealthCheck{Name: "clickhouse", Check: func(context.Context) error { return errors.New("connection refused") }},
		).RegisterRoutes(e)

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "connection refused")
	})
}
