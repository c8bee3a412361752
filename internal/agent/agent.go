// Package agent drives the model. It streams completions, runs canvas tools
// and reports everything to the bus as chat-stream chunks.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"

	"genesis/internal/bus"
	"genesis/internal/models"
	"genesis/internal/tools"
)

const SystemPrompt = `You are Genesis, a note-taking and research assistant with two canvases beside the chat.

Tools:
- canvas_update: show previews, add markdown or code blocks, or clear a canvas. target is "main" (default) or "left".
- display_media: show a video, image, web page or HTML document on the main canvas.

Guidelines:
- Put notes, summaries and longer material on a canvas and keep the chat reply short.
- Use the left canvas for side material the user asked to keep apart.
- Text between <<<attachment ...>>> or <<<context ...>>> markers is material the user supplied.`

const DefaultMaxIterations = 8

// Stream is the subset of the SSE stream the runner reads.
type Stream interface {
	Next() bool
	Current() openai.ChatCompletionChunk
	Err() error
	Close() error
}

type Streamer interface {
	Stream(ctx context.Context, params openai.ChatCompletionNewParams) Stream
}

type clientStreamer struct {
	client openai.Client
}

func (s clientStreamer) Stream(ctx context.Context, params openai.ChatCompletionNewParams) Stream {
	return s.client.Chat.Completions.NewStreaming(ctx, params)
}

// NewClientStreamer returns a Streamer for an OpenAI compatible endpoint.
func NewClientStreamer(apiKey, baseURL string) Streamer {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHeader("X-Title", "Genesis"),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return clientStreamer{client: openai.NewClient(opts...)}
}

type Options struct {
	Model         string
	MaxIterations int
	SystemPrompt  string
	Logger        *zap.Logger
}

type Runner struct {
	streamer Streamer
	bus      bus.Bus
	log      *zap.Logger
	prompt   string
	maxIter  int

	mu    sync.Mutex
	model string
}

func NewRunner(s Streamer, b bus.Bus, opts Options) *Runner {
	r := &Runner{
		streamer: s,
		bus:      b,
		log:      opts.Logger,
		prompt:   opts.SystemPrompt,
		maxIter:  opts.MaxIterations,
		model:    opts.Model,
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	r.log = r.log.Named("agent")
	if r.prompt == "" {
		r.prompt = SystemPrompt
	}
	if r.maxIter < 1 {
		r.maxIter = DefaultMaxIterations
	}
	return r
}

func (r *Runner) Model() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.model
}

func (r *Runner) SetModel(model string) {
	r.mu.Lock()
	r.model = model
	r.mu.Unlock()
}

// Run answers the conversation in history under streamID. Failures are
// reported as chat-error; a cancelled ctx ends the run quietly.
func (r *Runner) Run(ctx context.Context, streamID string, history []models.Message) error {
	err := r.run(ctx, streamID, history)
	switch {
	case err == nil:
		r.emit(models.Chunk{Done: true, StreamID: streamID})
		return nil
	case ctx.Err() != nil:
		r.log.Debug("run cancelled", zap.String("stream", streamID))
		return ctx.Err()
	default:
		r.log.Warn("run failed", zap.String("stream", streamID), zap.Error(err))
		r.bus.Emit(models.EventChatError, models.StreamError{StreamID: streamID, Error: err.Error()})
		return err
	}
}

func (r *Runner) run(ctx context.Context, streamID string, history []models.Message) error {
	model := r.Model()
	params := BuildHistory(r.prompt, history)
	wrote := false

	for iteration := 1; ; iteration++ {
		sep := wrote
		acc, err := r.streamOnce(ctx, streamID, model, params, func(delta string) {
			if sep {
				delta = "\n\n" + delta
				sep = false
			}
			wrote = true
			r.emit(models.Chunk{Content: delta, StreamID: streamID})
		})
		if err != nil {
			return err
		}
		if len(acc.Choices) == 0 {
			return errors.New("empty response from model")
		}

		msg := acc.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			return nil
		}

		// Text streamed next to tool calls stays visible but is kept out of
		// the model's history.
		assistant := msg
		assistant.Content = ""
		params = append(params, assistant.ToParam())

		if iteration >= r.maxIter {
			r.emit(models.Chunk{
				Content:  fmt.Sprintf("\n\n*[Stopped after %d tool iterations]*", r.maxIter),
				StreamID: streamID,
			})
			return nil
		}

		for _, tc := range msg.ToolCalls {
			name, args := tc.Function.Name, tc.Function.Arguments
			result, err := tools.ExecuteTool(r.bus, name, args)
			if err != nil {
				result = fmt.Sprintf("error: %v", err)
			}
			r.log.Debug("tool executed",
				zap.String("tool", name),
				zap.String("summary", tools.GenerateToolSummary(name, args, result)),
			)
			r.emit(models.Chunk{
				ToolCalls: []models.ToolCall{{Name: name, Arguments: args}},
				StreamID:  streamID,
			})
			params = append(params, openai.ToolMessage(result, tc.ID))
		}
	}
}

func (r *Runner) streamOnce(ctx context.Context, streamID, model string, history []openai.ChatCompletionMessageParamUnion, onDelta func(string)) (openai.ChatCompletionAccumulator, error) {
	stream := r.streamer.Stream(ctx, openai.ChatCompletionNewParams{
		Model:    model,
		Messages: history,
		Tools:    tools.Definitions,
	})
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			onDelta(chunk.Choices[0].Delta.Content)
		}
	}
	if err := stream.Err(); err != nil {
		return acc, err
	}
	if err := ctx.Err(); err != nil {
		return acc, err
	}
	r.log.Debug("completion streamed", zap.String("stream", streamID), zap.String("model", model))
	return acc, nil
}

func (r *Runner) emit(c models.Chunk) {
	r.bus.Emit(models.EventChatStream, c)
}

// BuildHistory converts the closed conversation into request messages.
// Assistant turns without text and tool rows are skipped; the stored tool
// call records carry no ids to pair them with results.
func BuildHistory(prompt string, history []models.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	out = append(out, openai.SystemMessage(prompt))
	for _, m := range history {
		if m.Streaming {
			continue
		}
		switch m.Role {
		case models.RoleUser:
			out = append(out, openai.UserMessage(m.ModelContent))
		case models.RoleAssistant:
			if m.ModelContent == "" {
				continue
			}
			out = append(out, openai.AssistantMessage(m.ModelContent))
		}
	}
	return out
}
