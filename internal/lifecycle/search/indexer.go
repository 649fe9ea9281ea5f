// Package search keeps a denormalized copy of each application in
// Elasticsearch for the admin listing. The database stays authoritative:
// indexing is best effort and a failure never affects a transition.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"loan-lifecycle/internal/common/errors"
	"loan-lifecycle/internal/common/logger"
	"loan-lifecycle/internal/models"
)

const (
	defaultSize = 20
	maxSize     = 100
)

// Mapping is the index definition for Document.
var Mapping = []byte(`{
  "mappings": {
    "properties": {
      "id":               {"type": "long"},
      "trackingNumber":   {"type": "keyword"},
      "status":           {"type": "keyword"},
      "applicantName":    {"type": "text", "fields": {"raw": {"type": "keyword"}}},
      "applicantEmail":   {"type": "keyword"},
      "loanType":         {"type": "keyword"},
      "requestedAmount":  {"type": "long"},
      "approvedAmount":   {"type": "long"},
      "riskScore":        {"type": "integer"},
      "riskReviewStatus": {"type": "keyword"},
      "dueDate":          {"type": "date"},
      "createdAt":        {"type": "date"},
      "updatedAt":        {"type": "date"}
    }
  }
}`)

// Document is the indexed form. Identity material is never indexed.
type Document struct {
	ID               int64      `json:"id"`
	TrackingNumber   string     `json:"trackingNumber"`
	Status           string     `json:"status"`
	ApplicantName    string     `json:"applicantName"`
	ApplicantEmail   string     `json:"applicantEmail"`
	LoanType         string     `json:"loanType"`
	RequestedAmount  int64      `json:"requestedAmount"`
	ApprovedAmount   int64      `json:"approvedAmount,omitempty"`
	RiskScore        int        `json:"riskScore"`
	RiskReviewStatus string     `json:"riskReviewStatus,omitempty"`
	DueDate          *time.Time `json:"dueDate,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

type Query struct {
	Text     string
	Statuses []string
	LoanType string
	From     int
	Size     int
}

type Result struct {
	Total int64      `json:"total"`
	Hits  []Document `json:"hits"`
}

type Indexer struct {
	client *elasticsearch.Client
	index  string
	log    logger.Logger
}

func NewIndexer(client *elasticsearch.Client, index string, log logger.Logger) *Indexer {
	return &Indexer{
		client: client,
		index:  index,
		log:    log.With(map[string]interface{}{"component": "search-indexer"}),
	}
}

func DocumentFor(app *models.LoanApplication) Document {
	return Document{
		ID:               app.ID,
		TrackingNumber:   app.TrackingNumber,
		Status:           string(app.Status),
		ApplicantName:    app.Applicant.Name,
		ApplicantEmail:   app.Applicant.Email,
		LoanType:         app.LoanType,
		RequestedAmount:  app.RequestedAmount,
		ApprovedAmount:   app.ApprovedAmount,
		RiskScore:        app.RiskScore,
		RiskReviewStatus: string(app.RiskReviewStatus),
		DueDate:          app.DueDate,
		CreatedAt:        app.CreatedAt,
		UpdatedAt:        app.UpdatedAt,
	}
}

// Index upserts the snapshot. Errors are logged and returned for callers
// that care; the lifecycle engine ignores them.
func (i *Indexer) Index(ctx context.Context, app *models.LoanApplication) error {
	body, err := json.Marshal(DocumentFor(app))
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      i.index,
		DocumentID: strconv.FormatInt(app.ID, 10),
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		i.log.Warn("index application failed", map[string]interface{}{"applicationId": app.ID, "error": err})
		return errors.NewSearchIndexFailedError(err)
	}
	defer res.Body.Close()

	if res.IsError() {
		err := fmt.Errorf("index response: %s", res.Status())
		i.log.Warn("index application rejected", map[string]interface{}{"applicationId": app.ID, "status": res.StatusCode})
		return errors.NewSearchIndexFailedError(err)
	}
	return nil
}

func (i *Indexer) Search(ctx context.Context, q Query) (*Result, error) {
	size := q.Size
	if size < 1 {
		size = defaultSize
	}
	if size > maxSize {
		size = maxSize
	}

	body, err := json.Marshal(buildQuery(q, size))
	if err != nil {
		return nil, err
	}

	req := esapi.SearchRequest{
		Index: []string{i.index},
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return nil, errors.NewExternalServiceError("elasticsearch", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, errors.NewExternalServiceError("elasticsearch", fmt.Errorf("search failed: %s", res.Status()))
	}

	var raw struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source Document `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&raw); err != nil {
		return nil, errors.NewExternalServiceError("elasticsearch", err)
	}

	out := &Result{Total: raw.Hits.Total.Value, Hits: make([]Document, 0, len(raw.Hits.Hits))}
	for _, h := range raw.Hits.Hits {
		out.Hits = append(out.Hits, h.Source)
	}
	return out, nil
}

func buildQuery(q Query, size int) map[string]interface{} {
	var must []interface{}
	var filter []interface{}

	if q.Text != "" {
		must = append(must, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  q.Text,
				"fields": []string{"trackingNumber", "applicantName", "applicantEmail"},
			},
		})
	}
	if len(q.Statuses) > 0 {
		filter = append(filter, map[string]interface{}{"terms": map[string]interface{}{"status": q.Statuses}})
	}
	if q.LoanType != "" {
		filter = append(filter, map[string]interface{}{"term": map[string]interface{}{"loanType": q.LoanType}})
	}

	boolQuery := map[string]interface{}{}
	if len(must) > 0 {
		boolQuery["must"] = must
	}
	if len(filter) > 0 {
		boolQuery["filter"] = filter
	}
	query := map[string]interface{}{"match_all": map[string]interface{}{}}
	if len(boolQuery) > 0 {
		query = map[string]interface{}{"bool": boolQuery}
	}

	return map[string]interface{}{
		"from":  q.From,
		"size":  size,
		"sort":  []interface{}{map[string]interface{}{"updatedAt": "desc"}},
		"query": query,
	}
}
