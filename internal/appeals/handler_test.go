package appeals

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) (http.Handler, *Service) {
	t.Helper()
	svc, _, _, _ := newTestService(t)
	r := chi.NewRouter()
	NewHandler(nil, svc).MountRoutes(r)
	return r, svc
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerMarkAndShow(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/379006/mark",
		`{"channel":"didi","site":"site-1","day":"2026-08-20","amount":50000}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/379006", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var view struct {
		Code            string   `json:"code"`
		AmountWithheld  float64  `json:"amount_withheld"`
		States          []string `json:"states"`
		OutstandingLoss float64  `json:"outstanding_loss"`
		SiteOwed        float64  `json:"site_owed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Equal(t, "379006", view.Code)
	require.Equal(t, 50000.0, view.AmountWithheld)
	require.Equal(t, []string{"PENDING_APPEAL"}, view.States)
	require.Equal(t, 50000.0, view.OutstandingLoss)
	require.Equal(t, 50000.0, view.SiteOwed)
}

func TestHandlerShowNotFound(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := doJSON(t, h, http.MethodGet, "/999999", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerMarkValidation(t *testing.T) {
	h, _ := newTestHandler(t)

	// missing required fields
	rec := doJSON(t, h, http.MethodPost, "/379006/mark", `{"amount":50000}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// unknown fields rejected
	rec = doJSON(t, h, http.MethodPost, "/379006/mark",
		`{"channel":"didi","site":"s","day":"d","amount":1,"bogus":true}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// malformed body
	rec = doJSON(t, h, http.MethodPost, "/379006/mark", `{not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerRefundFlow(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/379006/mark",
		`{"channel":"didi","site":"site-1","day":"2026-08-20","amount":50000}`)
	require.Equal(t, http.StatusOK, rec.Code)

	// refund before any response conflicts
	rec = doJSON(t, h, http.MethodPost, "/379006/refunds", `{"amount":10000}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/379006/response",
		`{"promised":30000,"estimated_refund_date":"2026-08-27"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/379006/refunds", `{"fill_remaining":true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var view struct {
		States        []string `json:"states"`
		TotalRefunded float64  `json:"total_refunded"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Contains(t, view.States, "REFUNDED")
	require.Equal(t, 30000.0, view.TotalRefunded)
}

func TestHandlerDebitFlow(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/379006/mark",
		`{"channel":"didi","site":"site-1","day":"2026-08-20","amount":50000}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, h, http.MethodPost, "/379006/decline", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/379006/debits",
		`{"amount":50000,"period":"2026-08-2"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var event DebitEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &event))
	require.NotEmpty(t, event.ID)

	rec = doJSON(t, h, http.MethodPost, "/379006/debits/"+event.ID+"/execute", "")
	require.Equal(t, http.StatusOK, rec.Code)

	// over-collection is a 400
	rec = doJSON(t, h, http.MethodPost, "/379006/debits",
		`{"amount":1,"period":"2026-08-2"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// unknown debit id is a 404
	rec = doJSON(t, h, http.MethodPost, "/379006/debits/nope/execute", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerListings(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/100001/mark",
		`{"channel":"didi","site":"site-1","day":"2026-08-20","amount":10000}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, h, http.MethodPost, "/100002/mark",
		`{"channel":"didi","site":"site-2","day":"2026-08-21","amount":20000}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/?site=site-2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)

	rec = doJSON(t, h, http.MethodGet, "/pending-response", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 2)
}
