package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/vibewaybusiness-oss/chatflow/runtime"
)

// DefinitionClient fetches workflow, processor and node definitions from
// the remote definition store. It never caches: definitions may change
// between loads of the same flow, so every call hits the store with
// no-store semantics.
type DefinitionClient struct {
	client *resty.Client
}

var _ runtime.DefinitionSource = (*DefinitionClient)(nil)

func NewDefinitionClient(baseURL string, timeout time.Duration) *DefinitionClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Cache-Control", "no-store").
		SetHeader("Pragma", "no-cache")

	return &DefinitionClient{client: client}
}

func (c *DefinitionClient) Workflow(ctx context.Context, key string) (*runtime.FlowDefinition, error) {
	var def runtime.FlowDefinition
	if err := c.fetch(ctx, "workflow", key, &def); err != nil {
		return nil, err
	}
	return &def, nil
}

func (c *DefinitionClient) Processor(ctx context.Context, key string) (*runtime.ProcessorDefinition, error) {
	var def runtime.ProcessorDefinition
	if err := c.fetch(ctx, "processor", key, &def); err != nil {
		return nil, err
	}
	return &def, nil
}

func (c *DefinitionClient) Node(ctx context.Context, key string) (*runtime.NodeDefinition, error) {
	var def runtime.NodeDefinition
	if err := c.fetch(ctx, "node", key, &def); err != nil {
		return nil, err
	}
	return &def, nil
}

// fetch GETs {base}/{kind}/{key} and decodes the JSON definition. A null
// body or a non-2xx status is reported as an error; the interpreter
// treats any error here as definition-unavailable.
func (c *DefinitionClient) fetch(ctx context.Context, kind, key string, target any) error {
	resp, err := c.client.R().
		SetContext(ctx).
		Get(fmt.Sprintf("/%s/%s", kind, key))
	if err != nil {
		return fmt.Errorf("fetching %s %q: %w", kind, key, err)
	}
	if resp.IsError() {
		return fmt.Errorf("fetching %s %q: store returned %s", kind, key, resp.Status())
	}

	body := bytes.TrimSpace(resp.Body())
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return fmt.Errorf("%s %q not found", kind, key)
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("decoding %s %q: %w", kind, key, err)
	}
	return nil
}
