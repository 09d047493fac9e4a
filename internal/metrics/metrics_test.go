package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigertag/tigertag-server/internal/domain"
)

func TestRecordOutcome(t *testing.T) {
	before := testutil.ToFloat64(resourcesTotal.WithLabelValues("deferred"))

	RecordOutcome(domain.OutcomeDeferred)
	RecordOutcome(domain.OutcomeDeferred)

	assert.Equal(t, before+2, testutil.ToFloat64(resourcesTotal.WithLabelValues("deferred")))
}

func TestRecordSync_SkipsZero(t *testing.T) {
	added := testutil.ToFloat64(syncTags.WithLabelValues("PLEX", "added"))
	removed := testutil.ToFloat64(syncTags.WithLabelValues("PLEX", "removed"))

	RecordSync("PLEX", 3, 0)

	assert.Equal(t, added+3, testutil.ToFloat64(syncTags.WithLabelValues("PLEX", "added")))
	assert.Equal(t, removed, testutil.ToFloat64(syncTags.WithLabelValues("PLEX", "removed")))
}

func TestRecordRun(t *testing.T) {
	ok := testutil.ToFloat64(runsTotal.WithLabelValues("ok"))
	failed := testutil.ToFloat64(runsTotal.WithLabelValues("error"))

	RecordRun(nil)
	RecordRun(errors.New("store unreachable"))

	assert.Equal(t, ok+1, testutil.ToFloat64(runsTotal.WithLabelValues("ok")))
	assert.Equal(t, failed+1, testutil.ToFloat64(runsTotal.WithLabelValues("error")))
}

func TestHandler(t *testing.T) {
	RecordEngineCall("IMAGGA", EngineTagged)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `tigertag_engine_calls_total{engine="IMAGGA",result="tagged"}`)
}
