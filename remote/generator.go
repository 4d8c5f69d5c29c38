package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/Jeffail/gabs/v2"
	"github.com/go-resty/resty/v2"

	"github.com/vibewaybusiness-oss/chatflow/runtime"
)

// GeneratorClient invokes the remote generation and agent feedback
// endpoints. Responses are dynamic JSON whose shape depends on the node
// behind the endpoint, so they are parsed leniently and normalized into
// runtime.GeneratorResponse.
type GeneratorClient struct {
	client      *resty.Client
	generateURL string
	feedbackURL string
}

var _ runtime.Generator = (*GeneratorClient)(nil)

func NewGeneratorClient(generateURL, feedbackURL string, timeout time.Duration) *GeneratorClient {
	if feedbackURL == "" {
		feedbackURL = generateURL
	}
	return &GeneratorClient{
		client:      resty.New().SetTimeout(timeout),
		generateURL: generateURL,
		feedbackURL: feedbackURL,
	}
}

func (c *GeneratorClient) Generate(ctx context.Context, req runtime.GenerateRequest) (*runtime.GeneratorResponse, error) {
	body := map[string]any{
		"generatorKey": req.GeneratorKey,
		"workflow_data": map[string]any{
			"node_outputs": req.NodeOutputs,
		},
	}
	// Flow step params ride along at the top level of the request.
	for k, v := range req.Params {
		if _, reserved := body[k]; !reserved {
			body[k] = v
		}
	}
	if req.AgentMode {
		body["agent_mode"] = true
		body["json_prompts_reference"] = req.JSONPromptsReference
		body["prompt"] = req.Prompt
	}

	return c.post(ctx, c.generateURL, body)
}

func (c *GeneratorClient) SubmitFeedback(ctx context.Context, req runtime.FeedbackRequest) (*runtime.GeneratorResponse, error) {
	body := map[string]any{
		"agent_session_id": req.AgentSessionID,
		"user_feedback":    req.UserFeedback,
		"generator_key":    req.GeneratorKey,
	}
	for k, v := range req.Metadata {
		if _, reserved := body[k]; !reserved {
			body[k] = v
		}
	}

	return c.post(ctx, c.feedbackURL, body)
}

func (c *GeneratorClient) post(ctx context.Context, url string, body map[string]any) (*runtime.GeneratorResponse, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(url)
	if err != nil {
		return nil, fmt.Errorf("generator request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("generator returned %s", resp.Status())
	}

	return ParseGeneratorResponse(resp.Body())
}

// ParseGeneratorResponse normalizes a raw generator/feedback response
// body. Fields are extracted leniently: absent or mistyped fields are
// treated as unset rather than errors.
func ParseGeneratorResponse(body []byte) (*runtime.GeneratorResponse, error) {
	c, err := gabs.ParseJSON(body)
	if err != nil {
		return nil, fmt.Errorf("decoding generator response: %w", err)
	}

	r := &runtime.GeneratorResponse{
		Error:           stringAt(c, "error"),
		Result:          stringAt(c, "result"),
		GeneratedText:   stringAt(c, "generated_text"),
		S3URL:           stringAt(c, "s3_url"),
		RequestID:       stringAt(c, "request_id"),
		AgentMode:       boolAt(c, "agent_mode"),
		WaitingFeedback: boolAt(c, "waiting_feedback"),
		AgentSessionID:  stringAt(c, "agent_session_id"),
		FinalOutput:     stringAt(c, "final_output"),
		Validated:       boolAt(c, "validated"),
	}
	if raw, ok := c.Data().(map[string]any); ok {
		r.Raw = raw
	}
	if v, ok := c.Path("success").Data().(bool); ok {
		r.Success = &v
	}

	for _, child := range c.Path("conversation").Children() {
		iter := runtime.AgentIteration{
			Input:        stringAt(child, "input"),
			RawOutput:    stringAt(child, "raw_output"),
			ParsedOutput: stringAt(child, "parsed_output"),
			Valid:        boolAt(child, "validated") || boolAt(child, "valid"),
		}
		r.Conversation = append(r.Conversation, iter)
	}

	return r, nil
}

func stringAt(c *gabs.Container, path string) string {
	s, _ := c.Path(path).Data().(string)
	return s
}

func boolAt(c *gabs.Container, path string) bool {
	b, _ := c.Path(path).Data().(bool)
	return b
}
