package runtime

import "context"

// DefinitionSource loads immutable flow, processor and node definitions by
// key. Implementations must not cache: definitions may change between
// loads of the same flow. A nil definition with a nil error is treated the
// same as an error (definition unavailable).
type DefinitionSource interface {
	Workflow(ctx context.Context, key string) (*FlowDefinition, error)
	Processor(ctx context.Context, key string) (*ProcessorDefinition, error)
	Node(ctx context.Context, key string) (*NodeDefinition, error)
}

// Generator invokes the remote generation and agent feedback endpoints.
// Both calls return the same response shape; the invoker classifies it.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*GeneratorResponse, error)
	SubmitFeedback(ctx context.Context, req FeedbackRequest) (*GeneratorResponse, error)
}
