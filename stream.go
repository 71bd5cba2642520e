package litellm

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/BerriAI/litellm-go/internal/tokenizer"
	"github.com/BerriAI/litellm-go/internal/transport"
	llmerrors "github.com/BerriAI/litellm-go/pkg/errors"
	"github.com/BerriAI/litellm-go/pkg/provider"
	"github.com/BerriAI/litellm-go/pkg/router"
	"github.com/BerriAI/litellm-go/pkg/types"
)

// StreamReader provides an iterator interface for streaming responses.
// It handles SSE parsing and provides a simple Recv() method for consuming chunks.
//
// Example:
//
//	stream, err := client.ChatCompletionStream(ctx, req)
//	if err != nil {
//	    return err
//	}
//	defer stream.Close()
//
//	for {
//	    chunk, err := stream.Recv()
//	    if err == io.EOF {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Print(chunk.Choices[0].Delta.Content)
//	}
type StreamReader struct {
	sse        *transport.SSEReader
	provider   provider.Provider
	deployment *provider.Deployment
	router     router.Router

	// replay serves pre-materialized chunks: force-non-streaming
	// downgrades and cached transcripts.
	replay []*types.StreamChunk

	// deadline is the absolute streaming cutoff; zero means uncapped.
	deadline time.Time

	// nextToolIndex assigns synthetic sequential tool-call indices per
	// choice when the upstream omits them.
	nextToolIndex map[int]int
	lastToolIndex map[int]int

	// Recovery state. A reader opened by the client can redial a new
	// deployment when the upstream connection is cut before [DONE].
	client        *Client
	reqCtx        context.Context
	origReq       *types.ChatRequest
	mode          StreamRecoveryMode
	maxAccum      int
	accumulated   strings.Builder
	accumOverflow bool
	// dedupePending holds already-delivered content that the replacement
	// stream is expected to repeat; matching prefixes are swallowed.
	dedupePending string

	closed     bool
	firstChunk bool
	startTime  time.Time
	ttft       time.Duration // Time To First Token
	usage      *types.Usage

	mu sync.Mutex
}

// newStreamReader creates a StreamReader over a live upstream SSE body.
func newStreamReader(
	body io.ReadCloser,
	prov provider.Provider,
	deployment *provider.Deployment,
	r router.Router,
	maxDuration time.Duration,
) *StreamReader {
	sr := &StreamReader{
		sse:           transport.NewSSEReader(body),
		provider:      prov,
		deployment:    deployment,
		router:        r,
		nextToolIndex: make(map[int]int),
		lastToolIndex: make(map[int]int),
		firstChunk:    true,
		startTime:     time.Now(),
	}
	if maxDuration > 0 {
		sr.deadline = sr.startTime.Add(maxDuration)
	}
	return sr
}

// enableRecovery arms mid-stream recovery for a client-owned reader.
// The original request and context are retained so a replacement
// upstream can be dialed with the partial output as context.
func (s *StreamReader) enableRecovery(c *Client, ctx context.Context, req *types.ChatRequest) {
	s.client = c
	s.reqCtx = ctx
	s.origReq = req
	s.mode = c.config.StreamRecoveryMode
	s.maxAccum = c.config.StreamRecoveryMaxAccumulatedBytes
}

// newReplayStreamReader creates a StreamReader serving pre-built chunks.
// It backs the force-non-streaming downgrade and cached stream replay:
// the consumer iterates a normal stream while no upstream connection
// exists.
func newReplayStreamReader(chunks []*types.StreamChunk) *StreamReader {
	return &StreamReader{
		replay:     chunks,
		firstChunk: true,
		startTime:  time.Now(),
	}
}

// singleChunkFromResponse converts a buffered response into the one
// terminal chunk a downgraded stream delivers.
func singleChunkFromResponse(resp *types.ChatResponse) *types.StreamChunk {
	chunk := &types.StreamChunk{
		ID:      resp.ID,
		Object:  "chat.completion.chunk",
		Created: resp.Created,
		Model:   resp.Model,
		Usage:   resp.Usage,
	}
	for _, choice := range resp.Choices {
		finish := choice.FinishReason
		if finish == "" {
			finish = "stop"
		}
		chunk.Choices = append(chunk.Choices, types.StreamChoice{
			Index: choice.Index,
			Delta: types.StreamDelta{
				Role:      choice.Message.Role,
				Content:   types.TextContent(choice.Message.Content),
				ToolCalls: choice.Message.ToolCalls,
			},
			FinishReason: finish,
		})
	}
	return chunk
}

// Recv returns the next chunk from the stream.
// Returns io.EOF when the stream is complete.
func (s *StreamReader) Recv() (*types.StreamChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, io.EOF
	}

	if s.sse == nil {
		return s.recvReplay()
	}

	if !s.deadline.IsZero() && time.Now().After(s.deadline) {
		err := llmerrors.NewTimeoutError(
			s.provider.Name(), s.deployment.ModelName,
			"stream exceeded the maximum streaming duration")
		s.fail(err)
		return nil, err
	}

	for {
		line, err := s.sse.Next()
		if err != nil {
			// An EOF or read error before the [DONE] sentinel means the
			// upstream connection was cut mid-stream.
			if !s.sse.Terminated() && s.canRecover() {
				if s.tryRecover(err) {
					continue
				}
				// Recovery exhausted. Every deployment involved has
				// already been reported inside tryRecover; just seal
				// the reader.
				s.closed = true
				if err == io.EOF {
					err = io.ErrUnexpectedEOF
				}
				return nil, err
			}
			if err == io.EOF {
				s.finish()
				return nil, io.EOF
			}
			s.fail(err)
			return nil, err
		}

		chunk, err := s.provider.ParseStreamChunk(line)
		if err != nil || chunk == nil || chunk.IsEmpty() {
			// Keep-alives, unparseable comment payloads and no-op deltas
			// never reach the consumer.
			continue
		}

		s.fillToolCallIndices(chunk)

		if s.dedupePending != "" && s.trimReplayedContent(chunk) {
			continue
		}
		s.noteContent(chunk)

		if chunk.Usage != nil {
			s.usage = chunk.Usage
		}
		if s.firstChunk {
			s.ttft = time.Since(s.startTime)
			s.firstChunk = false
		}
		return chunk, nil
	}
}

func (s *StreamReader) recvReplay() (*types.StreamChunk, error) {
	if len(s.replay) == 0 {
		s.closed = true
		return nil, io.EOF
	}
	chunk := s.replay[0]
	s.replay = s.replay[1:]
	if chunk.Usage != nil {
		s.usage = chunk.Usage
	}
	if s.firstChunk {
		s.ttft = time.Since(s.startTime)
		s.firstChunk = false
	}
	return chunk, nil
}

// fillToolCallIndices preserves upstream tool-call indices and assigns
// synthetic sequential ones, starting at 0 per choice, when the upstream
// omits them. A fragment with an ID opens a new call; fragments without
// one continue the choice's current call.
func (s *StreamReader) fillToolCallIndices(chunk *types.StreamChunk) {
	for ci := range chunk.Choices {
		choice := &chunk.Choices[ci]
		for ti := range choice.Delta.ToolCalls {
			tc := &choice.Delta.ToolCalls[ti]
			if tc.Index != nil {
				s.lastToolIndex[choice.Index] = *tc.Index
				if *tc.Index >= s.nextToolIndex[choice.Index] {
					s.nextToolIndex[choice.Index] = *tc.Index + 1
				}
				continue
			}
			var idx int
			if tc.ID != "" || tc.Function.Name != "" {
				idx = s.nextToolIndex[choice.Index]
				s.nextToolIndex[choice.Index] = idx + 1
			} else {
				idx = s.lastToolIndex[choice.Index]
			}
			s.lastToolIndex[choice.Index] = idx
			tc.Index = &idx
		}
	}
}

func (s *StreamReader) canRecover() bool {
	return s.client != nil && s.mode != StreamRecoveryOff && !s.accumOverflow
}

// noteContent accumulates the delivered choice-0 content so a
// replacement stream can be primed with it. Crossing the accumulation
// cap disables recovery for the rest of the stream rather than holding
// unbounded output in memory.
func (s *StreamReader) noteContent(chunk *types.StreamChunk) {
	if !s.canRecover() {
		return
	}
	for _, choice := range chunk.Choices {
		if choice.Index != 0 || choice.Delta.Content == "" {
			continue
		}
		if s.maxAccum > 0 && s.accumulated.Len()+len(choice.Delta.Content) > s.maxAccum {
			s.accumOverflow = true
			s.accumulated.Reset()
			return
		}
		s.accumulated.WriteString(choice.Delta.Content)
	}
}

// trimReplayedContent swallows the leading portion of a recovered
// stream that repeats content already delivered to the consumer.
// Returns true when the whole chunk was replayed and must be skipped.
func (s *StreamReader) trimReplayedContent(chunk *types.StreamChunk) bool {
	for ci := range chunk.Choices {
		choice := &chunk.Choices[ci]
		if choice.Index != 0 || choice.Delta.Content == "" {
			continue
		}
		if s.dedupePending == "" {
			break
		}
		content := choice.Delta.Content
		switch {
		case strings.HasPrefix(s.dedupePending, content):
			s.dedupePending = s.dedupePending[len(content):]
			choice.Delta.Content = ""
		case strings.HasPrefix(content, s.dedupePending):
			choice.Delta.Content = content[len(s.dedupePending):]
			s.dedupePending = ""
		default:
			// The replacement diverged from the delivered prefix; stop
			// deduplicating and pass everything through.
			s.dedupePending = ""
		}
	}
	return chunk.IsEmpty()
}

// tryRecover redials the stream on a fresh deployment after a
// mid-stream cut. The broken deployment is retired first, then up to
// RetryCount replacement attempts are made, each priming the upstream
// with the content delivered so far as an assistant message. Returns
// true when a replacement stream is live.
func (s *StreamReader) tryRecover(cause error) bool {
	c := s.client
	ctx := s.reqCtx
	if ctx == nil {
		ctx = context.Background()
	}

	// Retire the broken upstream. The body is closed directly so the
	// reader itself stays open for the replacement stream.
	if s.router != nil {
		s.router.ReportRequestEnd(context.Background(), s.deployment)
		s.router.ReportFailure(context.Background(), s.deployment, cause)
	}
	_ = s.sse.Close()
	s.sse = nil

	promptTokens := tokenizer.EstimatePromptTokens(s.origReq.Model, s.origReq)
	lastErr := cause

	for attempt := 1; attempt <= c.config.RetryCount; attempt++ {
		if err := c.waitBackoff(ctx, attempt, lastErr); err != nil {
			return false
		}

		deployment, prov, err := c.selectDeployment(ctx, s.origReq, promptTokens, true)
		if err != nil {
			return false
		}

		httpReq, err := prov.BuildRequest(ctx, sanitizeChatRequestForProvider(s.recoveryRequest()))
		if err != nil {
			lastErr = err
			continue
		}

		c.router.ReportRequestStart(ctx, deployment)

		resp, err := c.streamClient.Do(httpReq)
		if err != nil {
			c.router.ReportRequestEnd(ctx, deployment)
			if ctx.Err() != nil {
				return false
			}
			lastErr = llmerrors.NewAPIConnectionError(deployment.ProviderName, deployment.ModelName, err.Error())
			c.router.ReportFailure(ctx, deployment, lastErr)
			continue
		}
		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			c.router.ReportRequestEnd(ctx, deployment)
			llmErr := c.normalizeUpstreamError(prov, deployment, resp.StatusCode, resp.Header, body)
			c.router.ReportFailure(ctx, deployment, llmErr)
			lastErr = llmErr
			if !llmErr.Retryable {
				return false
			}
			continue
		}

		s.sse = transport.NewSSEReader(resp.Body)
		s.provider = prov
		s.deployment = deployment
		s.router = c.router
		if s.mode == StreamRecoveryRetry {
			s.dedupePending = s.accumulated.String()
		}
		return true
	}
	return false
}

// recoveryRequest clones the original request with the accumulated
// partial output appended as an assistant message, so the replacement
// deployment continues where the broken one stopped.
func (s *StreamReader) recoveryRequest() *types.ChatRequest {
	cloned := *s.origReq
	messages := make([]types.ChatMessage, len(s.origReq.Messages), len(s.origReq.Messages)+1)
	copy(messages, s.origReq.Messages)
	if partial := s.accumulated.String(); partial != "" {
		content, err := json.Marshal(partial)
		if err == nil {
			messages = append(messages, types.ChatMessage{
				Role:    "assistant",
				Content: content,
			})
		}
	}
	cloned.Messages = messages
	return &cloned
}

// Close releases resources associated with the stream.
// It's safe to call Close multiple times.
func (s *StreamReader) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.close()
}

// TTFT returns the Time To First Token duration.
// Returns 0 if no chunks have been received yet.
func (s *StreamReader) TTFT() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ttft
}

// Usage returns the usage block from the terminal chunk, when the
// upstream reported one.
func (s *StreamReader) Usage() *types.Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

// close releases resources (must be called with lock held).
func (s *StreamReader) close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.sse == nil {
		return nil
	}
	if s.router != nil {
		// The request context may already be done when a stream winds down.
		s.router.ReportRequestEnd(context.Background(), s.deployment)
	}
	return s.sse.Close()
}

// finish reports success metrics and closes the stream.
func (s *StreamReader) finish() {
	if s.closed {
		return
	}
	metrics := &router.ResponseMetrics{
		Latency:          time.Since(s.startTime),
		TimeToFirstToken: s.ttft,
	}
	if s.usage != nil {
		metrics.InputTokens = s.usage.PromptTokens
		metrics.OutputTokens = s.usage.CompletionTokens
		metrics.TotalTokens = s.usage.TotalTokens
	}
	if s.router != nil {
		s.router.ReportSuccess(context.Background(), s.deployment, metrics)
	}
	_ = s.close()
}

// fail reports the failure and closes the stream.
func (s *StreamReader) fail(err error) {
	if s.closed {
		return
	}
	if s.router != nil {
		s.router.ReportFailure(context.Background(), s.deployment, err)
	}
	_ = s.close()
}
