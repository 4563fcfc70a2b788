package domain

import (
	"context"
	"iter"
)

// Engine node names.
const (
	NodeAssistant = "assistant"
	NodeTools     = "tools"
)

// EngineState is the state threaded through one engine invocation.
type EngineState struct {
	Messages     []Message
	ToolSteps    int
	MaxToolSteps int
}

// RunOptions bound a single engine invocation.
type RunOptions struct {
	// RecursionLimit is the maximum number of node executions. Exceeding it
	// fails with ErrRecursionLimit.
	RecursionLimit int
	SessionKey     string
}

// Fragment is one raw item of an engine stream, tagged with the node that
// produced it.
//
// Assistant fragments with Complete unset are incremental: Message holds a
// text delta and ToolCallChunks any partial tool calls. A Complete assistant
// fragment carries the fully assembled message. Tools fragments always carry
// a finished tool message.
type Fragment struct {
	Node           string
	Message        Message
	ToolCallChunks []ToolCallChunk
	Complete       bool
}

// Engine sequences model inference and tool execution until the model
// answers without tool calls or the step budget forbids more tools.
type Engine interface {
	// Run returns the final state. On ErrRecursionLimit the returned state
	// holds the progress made before the limit was hit.
	Run(ctx context.Context, state EngineState, opts RunOptions) (EngineState, error)
	// Stream yields fragments as they are produced. A non-nil error is the
	// last item of the sequence.
	Stream(ctx context.Context, state EngineState, opts RunOptions) iter.Seq2[Fragment, error]
}
