package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmScope/internal/cache"
	"farmScope/internal/cache/memory"
	"farmScope/internal/model"
	"farmScope/internal/refresh"
)

type stubRefresher struct {
	report *model.RefreshReport
	err    error
	ctxErr chan error
}

func (s stubRefresher) RefreshAll(ctx context.Context) (*model.RefreshReport, error) {
	if s.ctxErr != nil {
		_, hasDeadline := ctx.Deadline()
		if !hasDeadline {
			s.ctxErr <- errors.New("refresh has no deadline")
		} else {
			s.ctxErr <- ctx.Err()
		}
	}
	return s.report, s.err
}

func (s stubRefresher) LastReport(context.Context) (*model.RefreshReport, bool, error) {
	return s.report, s.report != nil, nil
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestListEndpointsOnEmptyCache(t *testing.T) {
	h := NewServer(cache.NewCollections(memory.NewStore(), ""), nil, nil, nil).Handler()

	for _, path := range []string{"/list-farms", "/list-pools", "/whitelisted-tokens"} {
		rec := do(t, h, http.MethodGet, path)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()), path)
	}

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodGet, "/last-refresh").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/refresh").Code)
}

func TestListPools(t *testing.T) {
	cols := cache.NewCollections(memory.NewStore(), "")
	require.NoError(t, cols.PutPools(context.Background(), []model.Pool{
		{ID: 1, Farming: true, TokenAccountIDs: []string{"a", "b"}, TokenSymbols: []string{"A", "B"}},
		{ID: 0, TokenAccountIDs: []string{"c", "d"}, TokenSymbols: []string{}},
	}))
	h := NewServer(cols, nil, nil, nil).Handler()

	rec := do(t, h, http.MethodGet, "/list-pools")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var pools []model.Pool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pools))
	require.Len(t, pools, 2)
	assert.Equal(t, uint64(0), pools[0].ID)
	assert.True(t, pools[1].Farming)
}

func TestWhitelistedTokens(t *testing.T) {
	cols := cache.NewCollections(memory.NewStore(), "")
	require.NoError(t, cols.PutTokens(context.Background(), map[string]model.TokenMetadata{
		"wrap.testnet": {Symbol: "wNEAR", Decimals: 24},
	}))
	h := NewServer(cols, nil, nil, nil).Handler()

	rec := do(t, h, http.MethodGet, "/whitelisted-tokens")
	assert.JSONEq(t, `[{"id":"wrap.testnet","spec":"","name":"","symbol":"wNEAR","decimals":24}]`, rec.Body.String())
}

func TestRefreshEndpoint(t *testing.T) {
	cols := cache.NewCollections(memory.NewStore(), "")
	report := &model.RefreshReport{Steps: []model.StepReport{{Name: model.StepPools, Status: model.StepCommitted}}}

	rec := do(t, NewServer(cols, stubRefresher{report: report}, nil, nil).Handler(), http.MethodPost, "/refresh")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"committed"`)

	rec = do(t, NewServer(cols, stubRefresher{err: refresh.ErrRefreshInProgress}, nil, nil).Handler(), http.MethodPost, "/refresh")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, NewServer(cols, stubRefresher{err: errors.New("lease store down")}, nil, nil).Handler(), http.MethodPost, "/refresh")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRefreshOutlivesClientDisconnect(t *testing.T) {
	cols := cache.NewCollections(memory.NewStore(), "")
	stub := stubRefresher{
		report: &model.RefreshReport{},
		ctxErr: make(chan error, 1),
	}
	h := NewServer(cols, stub, nil, nil, WithRefreshTimeout(time.Minute)).Handler()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/refresh", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.NoError(t, <-stub.ctxErr, "refresh context is detached from the request but bounded")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLastRefreshUsesRefresher(t *testing.T) {
	cols := cache.NewCollections(memory.NewStore(), "")
	report := &model.RefreshReport{Steps: []model.StepReport{{Name: model.StepFarms, Status: model.StepFailed}}}

	rec := do(t, NewServer(cols, stubRefresher{report: report}, nil, nil).Handler(), http.MethodGet, "/last-refresh")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"failed"`)

	rec = do(t, NewServer(cols, stubRefresher{}, nil, nil).Handler(), http.MethodGet, "/last-refresh")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHealthzAndMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("farmscope_up 1\n"))
	})
	h := NewServer(cache.NewCollections(memory.NewStore(), ""), nil, metrics, nil).Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz").Code)
	rec := do(t, h, http.MethodGet, "/metrics")
	assert.Equal(t, "farmscope_up 1\n", rec.Body.String())
}
