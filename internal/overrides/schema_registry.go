package overrides

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
)

const registryContentType = "application/vnd.schemaregistry.v1+json"

// errNotRegistered covers both an unknown subject and a schema missing under a known subject.
var errNotRegistered = errors.New("schema not registered")

// SchemaRegistryClient resolves schema ids against a Confluent compatible Schema Registry.
type SchemaRegistryClient struct {
	endpoint *url.URL
	client   *http.Client
}

// NewSchemaRegistryClient builds a client for the registry at baseURL.
func NewSchemaRegistryClient(baseURL string) *SchemaRegistryClient {
	endpoint, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		endpoint = &url.URL{Path: baseURL}
	}
	return &SchemaRegistryClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type registryRequest struct {
	SchemaType string `json:"schemaType"`
	Schema     string `json:"schema"`
}

type registryError struct {
	Code    int    `json:"error_code"`
	Message string `json:"message"`
}

// EnsureSchema returns the id schema has under subject. A schema the registry does not know is
// registered as a new version.
func (c *SchemaRegistryClient) EnsureSchema(ctx context.Context, subject, schema string) (int, error) {
	body := registryRequest{SchemaType: "JSON", Schema: schema}

	id, err := c.post(ctx, "lookup", body, "subjects", subject)
	if !errors.Is(err, errNotRegistered) {
		return id, err
	}
	return c.post(ctx, "register", body, "subjects", subject, "versions")
}

func (c *SchemaRegistryClient) post(ctx context.Context, op string, body registryRequest, segments ...string) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("encode schema registry %s request: %w", op, err)
	}

	target := c.endpoint.JoinPath(segments...)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", registryContentType)
	req.Header.Set("Accept", registryContentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("schema registry %s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read schema registry %s response: %w", op, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound && op == "lookup":
		return 0, errNotRegistered
	case resp.StatusCode >= http.StatusMultipleChoices:
		var regErr registryError
		if json.Unmarshal(raw, &regErr) == nil && regErr.Message != "" {
			return 0, fmt.Errorf("schema registry %s error (%d): %s", op, resp.StatusCode, regErr.Message)
		}
		return 0, fmt.Errorf("schema registry %s error (%d): %s", op, resp.StatusCode, bytes.TrimSpace(raw))
	}

	var result struct {
		ID int `json:"id"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return 0, fmt.Errorf("decode schema registry %s response: %w", op, err)
	}
	return result.ID, nil
}
