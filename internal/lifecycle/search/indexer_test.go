package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-lifecycle/internal/common/errors"
	"loan-lifecycle/internal/common/logger"
	"loan-lifecycle/internal/models"
)

type recorded struct {
	method string
	path   string
	body   map[string]interface{}
}

func newTestIndexer(t *testing.T, status int, response string) (*Indexer, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		_ = json.Unmarshal(raw, &body)
		calls = append(calls, recorded{method: r.Method, path: r.URL.Path, body: body})

		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return NewIndexer(client, "loan-applications", logger.NewTestLogger(t)), &calls
}

func TestIndexer_Index(t *testing.T) {
	idx, calls := newTestIndexer(t, http.StatusCreated, `{"result":"created"}`)
	app := &models.LoanApplication{
		ID:              42,
		TrackingNumber:  "LN-42",
		IdentityKey:     "secret-key",
		Status:          models.StatusApproved,
		RequestedAmount: 100000,
		CreatedAt:       time.Now(),
	}

	require.NoError(t, idx.Index(context.Background(), app))

	require.Len(t, *calls, 1)
	c := (*calls)[0]
	assert.Equal(t, http.MethodPut, c.method)
	assert.Equal(t, "/loan-applications/_doc/42", c.path)
	assert.Equal(t, "approved", c.body["status"])
	for k := range c.body {
		assert.False(t, strings.Contains(strings.ToLower(k), "identity"), k)
	}
}

func TestIndexer_Index_ErrorResponse(t *testing.T) {
	idx, _ := newTestIndexer(t, http.StatusServiceUnavailable, `{"error":"unavailable"}`)

	err := idx.Index(context.Background(), &models.LoanApplication{ID: 1})

	assert.ErrorIs(t, err, errors.AsStandard(errors.NewSearchIndexFailedError(nil)))
}

func TestIndexer_Search(t *testing.T) {
	idx, calls := newTestIndexer(t, http.StatusOK, `{
		"hits": {
			"total": {"value": 1},
			"hits": [{"_source": {"id": 7, "trackingNumber": "LN-7", "status": "pending", "riskScore": 12}}]
		}
	}`)

	res, err := idx.Search(context.Background(), Query{Text: "LN-7", Statuses: []string{"pending"}, Size: 500})

	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Total)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "LN-7", res.Hits[0].TrackingNumber)

	c := (*calls)[0]
	assert.Equal(t, "/loan-applications/_search", c.path)
	assert.Equal(t, float64(maxSize), c.body["size"])
	query := c.body["query"].(map[string]interface{})
	assert.Contains(t, query, "bool")
}

func TestBuildQuery_MatchAllWhenEmpty(t *testing.T) {
	q := buildQuery(Query{}, defaultSize)
	assert.Equal(t, map[string]interface{}{"match_all": map[string]interface{}{}}, q["query"])
}
