package reporting

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	orderSrc, appealSrc := fixtureSources()
	r := chi.NewRouter()
	NewHandler(nil, NewService(orderSrc, appealSrc)).MountRoutes(r)
	return r
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestSummaryEndpoint(t *testing.T) {
	h := newTestRouter(t)

	rec := get(t, h, "/summary?from=2026-08-20&to=2026-08-21")
	require.Equal(t, http.StatusOK, rec.Code)

	var sum Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	require.Equal(t, 4, sum.OrderCount)

	// both bounds are required
	rec = get(t, h, "/summary?from=2026-08-20")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = get(t, h, "/summary")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSummaryChartEndpoint(t *testing.T) {
	h := newTestRouter(t)

	rec := get(t, h, "/summary/chart?from=2026-08-20&to=2026-08-21")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Body.String(), "<svg")

	// a window with no orders has nothing to draw
	rec = get(t, h, "/summary/chart?from=2025-01-01&to=2025-01-02")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMasterEndpoint(t *testing.T) {
	h := newTestRouter(t)

	rec := get(t, h, "/master?from=2026-08-20&to=2026-08-21&search=rappi")
	require.Equal(t, http.StatusOK, rec.Code)

	var page MasterPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Equal(t, 1, page.Total)
	require.Equal(t, "379007", page.Rows[0].Order.ChannelOrderCode)

	rec = get(t, h, "/master?from=2026-08-20&to=2026-08-21&page=2&page_size=3")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Rows, 1)
}
