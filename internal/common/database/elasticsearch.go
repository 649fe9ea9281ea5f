package database

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"

	"loan-lifecycle/internal/common/config"
)

// ElasticsearchClient holds the search index client. The index is a
// secondary read model; Postgres stays authoritative.
type ElasticsearchClient struct {
	Client *elasticsearch.Client
	index  string
}

func NewElasticsearch(cfg config.ElasticsearchConfig) (*ElasticsearchClient, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("elasticsearch: no addresses configured")
	}
	esCfg := elasticsearch.Config{
		Addresses:  cfg.Addresses,
		MaxRetries: 2,
	}
	if cfg.Username != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return &ElasticsearchClient{Client: es, index: cfg.Index}, nil
}

func (c *ElasticsearchClient) Index() string {
	return c.index
}

func (c *ElasticsearchClient) Ping(ctx context.Context) error {
	res, err := c.Client.Ping(c.Client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping error: %s", res.Status())
	}
	return nil
}

// EnsureIndex creates the application index with mapping unless it already
// exists. An existing index is left untouched, mapping drift included.
func (c *ElasticsearchClient) EnsureIndex(ctx context.Context, mapping []byte) (bool, error) {
	exists, err := c.Client.Indices.Exists([]string{c.index}, c.Client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("check index %s: %w", c.index, err)
	}
	exists.Body.Close()

	switch exists.StatusCode {
	case http.StatusOK:
		return false, nil
	case http.StatusNotFound:
	default:
		return false, fmt.Errorf("check index %s: %s", c.index, exists.Status())
	}

	res, err := c.Client.Indices.Create(c.index,
		c.Client.Indices.Create.WithContext(ctx),
		c.Client.Indices.Create.WithBody(bytes.NewReader(mapping)),
	)
	if err != nil {
		return false, fmt.Errorf("create index %s: %w", c.index, err)
	}
	defer res.Body.Close()

	// Another instance may have won the race.
	if res.StatusCode == http.StatusBadRequest {
		return false, nil
	}
	if res.IsError() {
		return false, fmt.Errorf("create index %s: %s", c.index, res.Status())
	}
	return true, nil
}
