package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentHandler_LabelsByRouteTemplate(t *testing.T) {
	r := mux.NewRouter()
	r.Use(InstrumentHandler)
	r.HandleFunc("/history/{userId}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/history/{userId}", "418"))
	for _, id := range []string{"u1", "u2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/history/"+id, nil))
	}
	after := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/history/{userId}", "418"))
	assert.Equal(t, before+2, after)
}

func TestRecordOperation(t *testing.T) {
	before := testutil.ToFloat64(operations.WithLabelValues("RequestMatching", "ok"))
	RecordOperation("RequestMatching", "ok", 0)
	assert.Equal(t, before+1, testutil.ToFloat64(operations.WithLabelValues("RequestMatching", "ok")))
}

func TestHandler_Exposes(t *testing.T) {
	RecordEventDropped()
	RecordAutoProcess(1, 2)
	RecordOperation("x", "ok", time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "matchmaker_events_dropped_total"))
	assert.True(t, strings.Contains(body, "matchmaker_auto_process_transitions_total"))
}

func TestCanonicalPath(t *testing.T) {
	assert.Equal(t, "/", canonicalPath(""))
	assert.Equal(t, "/match-detail", canonicalPath("/match-detail/abc"))
}
