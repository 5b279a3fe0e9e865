package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"

	contractx "github.com/knearme/portfolio-agent/agent/contract"
	toolx "github.com/knearme/portfolio-agent/agent/tool"
)

// ErrToolRoundsExceeded ends an interaction that keeps asking for tools past
// the round cap. The cap prevents unbounded recursion and runaway cost.
var ErrToolRoundsExceeded = errors.New("tool round limit reached")

const defaultMaxToolRounds = 5

// Turn is one bounded model interaction: trusted system instructions, the
// filtered conversation, and the tool registry bound to this request.
type Turn struct {
	System   string
	Messages []Message
	Tools    *toolx.Registry
}

// RunOutcome summarizes a finished interaction for telemetry.
type RunOutcome struct {
	Rounds     int
	ToolCalls  int
	ToolErrors int
}

// ModelRunner drives one streaming interaction, reporting increments through
// emit as they happen.
type ModelRunner interface {
	Run(ctx context.Context, turn Turn, emit func(Event)) (RunOutcome, error)
}

// OpenAIRunner streams chat completions through the OpenAI SDK, executing
// tool calls between rounds until the model stops asking or the round cap is
// hit.
type OpenAIRunner struct {
	client      *openai.Client
	model       string
	maxTokens   int64
	temperature float64
	maxRounds   int
}

func NewOpenAIRunner(client *openai.Client, model string, maxTokens int64, temperature float64) (*OpenAIRunner, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: no client configured", contractx.ErrBackendUnavailable)
	}
	if model == "" {
		return nil, fmt.Errorf("%w: no model configured", contractx.ErrBackendUnavailable)
	}
	return &OpenAIRunner{
		client:      client,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		maxRounds:   defaultMaxToolRounds,
	}, nil
}

func (r *OpenAIRunner) Run(ctx context.Context, turn Turn, emit func(Event)) (RunOutcome, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(r.model),
		Messages: r.buildMessages(turn),
	}
	if turn.Tools != nil {
		params.Tools = turn.Tools.Specs()
	}
	if r.maxTokens > 0 {
		params.MaxTokens = openai.Int(r.maxTokens)
	}
	if r.temperature >= 0 {
		params.Temperature = openai.Float(r.temperature)
	}

	var outcome RunOutcome
	for round := 0; round < r.maxRounds; round++ {
		outcome.Rounds = round + 1

		stream := r.client.Chat.Completions.NewStreaming(ctx, params)
		acc := openai.ChatCompletionAccumulator{}
		for stream.Next() {
			chunk := stream.Current()
			acc.AddChunk(chunk)
			if len(chunk.Choices) > 0 {
				if delta := chunk.Choices[0].Delta.Content; delta != "" {
					emit(textEvent(delta))
				}
			}
		}
		if err := stream.Err(); err != nil {
			return outcome, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
		}
		if len(acc.Choices) == 0 {
			return outcome, fmt.Errorf("%w: empty completion", contractx.ErrModelInvoke)
		}

		message := acc.Choices[0].Message
		if len(message.ToolCalls) == 0 {
			return outcome, nil
		}

		params.Messages = append(params.Messages, message.ToParam())
		for _, call := range message.ToolCalls {
			emit(toolCallEvent(call.Function.Name, call.ID))

			result := turn.Tools.Execute(ctx, call.Function.Name, json.RawMessage(call.Function.Arguments))
			outcome.ToolCalls++
			if !result.Success {
				outcome.ToolErrors++
			}
			emit(toolResultEvent(call.Function.Name, call.ID, result))

			payload, err := json.Marshal(result)
			if err != nil {
				payload = []byte(`{"success":false,"error":"result serialization failed"}`)
			}
			params.Messages = append(params.Messages, openai.ToolMessage(string(payload), call.ID))
		}
	}

	return outcome, ErrToolRoundsExceeded
}

func (r *OpenAIRunner) buildMessages(turn Turn) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(turn.Messages)+1)
	if turn.System != "" {
		messages = append(messages, openai.SystemMessage(turn.System))
	}
	for _, msg := range turn.Messages {
		text := textOf(msg)
		if text == "" {
			continue
		}
		switch msg.Role {
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(text))
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(text))
		default:
			messages = append(messages, openai.UserMessage(text))
		}
	}
	return messages
}
