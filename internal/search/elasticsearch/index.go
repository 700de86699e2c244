// Package elasticsearch purges a job's documents from the full-text index.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	es "github.com/elastic/go-elasticsearch/v8"

	"github.com/JakeFAU/crawl-pipeline/internal/jobs"
)

const storeName = "elasticsearch"

// Config holds the connection and index settings.
type Config struct {
	Addresses []string
	Username  string
	Password  string
	APIKey    string
	Index     string
}

// Index implements jobs.SearchIndex. Every failure it returns is secondary.
type Index struct {
	client *es.Client
	index  string
}

// NewClient builds an Elasticsearch client from cfg.
func NewClient(cfg Config) (*es.Client, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("elasticsearch addresses are required")
	}
	client, err := es.NewClient(es.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIKey:    cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	return client, nil
}

// New wraps client for index.
func New(client *es.Client, index string) (*Index, error) {
	if client == nil {
		return nil, fmt.Errorf("elasticsearch client is required")
	}
	if index == "" {
		return nil, fmt.Errorf("index name is required")
	}
	return &Index{client: client, index: index}, nil
}

// DeleteByJob removes every document whose job_id matches. A missing index is success.
func (i *Index) DeleteByJob(ctx context.Context, jobID int64) error {
	query := map[string]any{
		"query": map[string]any{
			"term": map[string]any{"job_id": jobID},
		},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return jobs.SecondaryError(storeName, "delete by job", err)
	}

	res, err := i.client.DeleteByQuery(
		[]string{i.index},
		bytes.NewReader(body),
		i.client.DeleteByQuery.WithContext(ctx),
		i.client.DeleteByQuery.WithRefresh(true),
		i.client.DeleteByQuery.WithConflicts("proceed"),
	)
	if err != nil {
		return jobs.SecondaryError(storeName, "delete by job", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return jobs.SecondaryError(storeName, "delete by job",
			fmt.Errorf("status %d: %s", res.StatusCode, bytes.TrimSpace(msg)))
	}
	return nil
}
