package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smallbiznis/ambassador/internal/config"
	"github.com/smallbiznis/ambassador/internal/observability/tracing"
	"go.uber.org/zap"
)

const maxErrorBody = 512

type httpClient struct {
	baseURL string
	token   string
	client  *http.Client
	log     *zap.Logger
}

// NewClient returns a Client for the knowledge-graph service.
func NewClient(cfg config.Config, log *zap.Logger) Client {
	return newHTTPClient(cfg.Graph, tracing.WrapHTTPClient(&http.Client{Timeout: cfg.Graph.Timeout}), log)
}

func newHTTPClient(cfg config.GraphConfig, client *http.Client, log *zap.Logger) *httpClient {
	return &httpClient{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		token:   strings.TrimSpace(cfg.Token),
		client:  client,
		log:     log.Named("graph.client"),
	}
}

func (c *httpClient) GetGraph(ctx context.Context, id string) (*Graph, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrInvalidGraph
	}

	query := url.Values{}
	query.Set("id", id)
	resp, err := c.do(ctx, http.MethodGet, "/getknowgraph?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrGraphNotFound
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read graph: %v", ErrUpstream, err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrGraphNotFound
	}

	var document map[string]any
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	if err := decoder.Decode(&document); err != nil {
		return nil, fmt.Errorf("%w: decode graph: %v", ErrUpstream, err)
	}
	if len(document) == 0 {
		return nil, ErrGraphNotFound
	}
	return &Graph{ID: id, Document: document}, nil
}

func (c *httpClient) Exists(ctx context.Context, id string) (bool, error) {
	_, err := c.GetGraph(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrGraphNotFound):
		return false, nil
	default:
		return false, err
	}
}

type saveGraphRequest struct {
	ID        string         `json:"id"`
	GraphData map[string]any `json:"graphData"`
	Override  bool           `json:"override"`
}

// SaveAffiliateMetadata writes meta under metadata.affiliates of the graph and
// saves the document through the versioned write endpoint.
func (c *httpClient) SaveAffiliateMetadata(ctx context.Context, id string, meta AffiliateMetadata) error {
	g, err := c.GetGraph(ctx, id)
	if err != nil {
		return err
	}

	g.Metadata()["affiliates"] = map[string]any{
		"hasAffiliates":  meta.HasAffiliates,
		"affiliateCount": meta.AffiliateCount,
		"lastUpdated":    meta.LastUpdated.UTC().Format(time.RFC3339),
	}

	payload, err := json.Marshal(saveGraphRequest{ID: g.ID, GraphData: g.Document, Override: true})
	if err != nil {
		return err
	}

	resp, err := c.do(ctx, http.MethodPost, "/saveGraphWithHistory", payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrGraphNotFound
	}
	if err := checkStatus(resp); err != nil {
		return err
	}

	c.log.Debug("graph affiliate metadata saved",
		zap.String("graph_id", g.ID),
		zap.Int64("affiliate_count", meta.AffiliateCount),
	)
	return nil
}

func (c *httpClient) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return resp, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, strings.TrimSpace(string(snippet)))
}
