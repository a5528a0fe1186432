package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"scholarchat-backend/internal/config"
)

// SystemPrompt is the fixed instruction given to the research agent.
const SystemPrompt = "You are an assistant on a researchers website. Your task is to answer questions related to research done by Grgur Kovac (Flowers Team)."

// ToolSet is the capability registry the agent may call during a turn.
type ToolSet interface {
	GenaiTools() []*genai.Tool
	Call(ctx context.Context, name string, args map[string]any) string
}

// responseStream is satisfied by *genai.GenerateContentResponseIterator.
type responseStream interface {
	Next() (*genai.GenerateContentResponse, error)
}

type chatSession interface {
	SendMessageStream(ctx context.Context, parts ...genai.Part) responseStream
}

type sessionFactory func(history []*genai.Content) chatSession

type genaiSession struct {
	cs *genai.ChatSession
}

func (g genaiSession) SendMessageStream(ctx context.Context, parts ...genai.Part) responseStream {
	return g.cs.SendMessageStream(ctx, parts...)
}

// AgentService runs one agent turn at a time per request against Gemini,
// executing tool calls until the model produces a final answer.
type AgentService struct {
	client     *genai.Client
	newSession sessionFactory
	tools      ToolSet
	maxRounds  int
	rateChan   chan struct{} // Token bucket
	log        *slog.Logger
}

func NewAgentService(cfg *config.Config, tools ToolSet, logger *slog.Logger) (*AgentService, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.GeminiModel)
	model.SetTemperature(0.3)
	model.SetTopP(0.95)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(SystemPrompt)}}
	model.Tools = tools.GenaiTools()

	factory := func(history []*genai.Content) chatSession {
		cs := model.StartChat()
		cs.History = append([]*genai.Content(nil), history...)
		return genaiSession{cs: cs}
	}

	s := newAgentService(factory, tools, cfg.GeminiConcurrentReqs, cfg.AgentMaxToolRounds, logger)
	s.client = client
	return s, nil
}

func newAgentService(factory sessionFactory, tools ToolSet, concurrentReqs, maxRounds int, logger *slog.Logger) *AgentService {
	if concurrentReqs <= 0 {
		concurrentReqs = 1
	}
	if maxRounds <= 0 {
		maxRounds = 1
	}

	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	return &AgentService{
		newSession: factory,
		tools:      tools,
		maxRounds:  maxRounds,
		rateChan:   rateChan,
		log:        logger,
	}
}

func (s *AgentService) Close() {
	if s.client != nil {
		s.client.Close()
	}
}

// acquireRate blocks until a rate slot is available
func (s *AgentService) acquireRate(ctx context.Context) error {
	select {
	case <-s.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Minute):
		return fmt.Errorf("timeout waiting for Gemini rate slot")
	}
}

func (s *AgentService) releaseRate() {
	s.rateChan <- struct{}{}
}

// StreamReply sends message on top of history and streams the answer. yield
// receives the cumulative reply text after every new text chunk; a non-nil
// error from yield aborts the turn and is returned as is. The returned string
// is the complete reply.
func (s *AgentService) StreamReply(ctx context.Context, history []*genai.Content, message string, yield func(snapshot string) error) (string, error) {
	if err := s.acquireRate(ctx); err != nil {
		return "", err
	}
	defer s.releaseRate()

	session := s.newSession(history)
	parts := []genai.Part{genai.Text(message)}

	var reply strings.Builder
	for round := 0; round < s.maxRounds; round++ {
		calls, err := s.drain(ctx, session.SendMessageStream(ctx, parts...), round > 0, &reply, yield)
		if err != nil {
			return reply.String(), err
		}
		if len(calls) == 0 {
			return reply.String(), nil
		}

		parts = make([]genai.Part, 0, len(calls))
		for _, call := range calls {
			if err := ctx.Err(); err != nil {
				return reply.String(), err
			}
			s.log.Info("tool call", "tool", call.Name, "round", round+1)
			result := s.tools.Call(ctx, call.Name, call.Args)
			parts = append(parts, genai.FunctionResponse{
				Name:     call.Name,
				Response: map[string]any{"result": result},
			})
		}
	}
	return reply.String(), fmt.Errorf("agent exceeded %d tool rounds", s.maxRounds)
}

// drain reads one streamed response to the end, feeding text to yield and
// collecting any function calls. With separate set, the first text of this
// response starts on a new line of the reply.
func (s *AgentService) drain(ctx context.Context, it responseStream, separate bool, reply *strings.Builder, yield func(string) error) ([]genai.FunctionCall, error) {
	var calls []genai.FunctionCall
	for {
		resp, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return calls, nil
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("Gemini API error: %w", err)
		}

		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				switch p := part.(type) {
				case genai.Text:
					if p == "" {
						continue
					}
					if separate && reply.Len() > 0 && !strings.HasSuffix(reply.String(), "\n") {
						reply.WriteString("\n")
					}
					separate = false
					reply.WriteString(string(p))
					if err := yield(reply.String()); err != nil {
						return nil, err
					}
				case genai.FunctionCall:
					calls = append(calls, p)
				case *genai.FunctionCall:
					calls = append(calls, *p)
				}
			}
		}
	}
}
