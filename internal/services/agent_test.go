package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/iterator"

	"scholarchat-backend/internal/logging"
)

type scriptedStream struct {
	responses []*genai.GenerateContentResponse
	err       error
}

func (s *scriptedStream) Next() (*genai.GenerateContentResponse, error) {
	if len(s.responses) == 0 {
		if s.err != nil {
			return nil, s.err
		}
		return nil, iterator.Done
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

// scriptedSession replays one stream per SendMessageStream call.
type scriptedSession struct {
	streams []*scriptedStream
	sent    [][]genai.Part
}

func (s *scriptedSession) SendMessageStream(_ context.Context, parts ...genai.Part) responseStream {
	s.sent = append(s.sent, parts)
	if len(s.streams) == 0 {
		return &scriptedStream{}
	}
	st := s.streams[0]
	s.streams = s.streams[1:]
	return st
}

type recordingTools struct {
	calls []string
}

func (r *recordingTools) GenaiTools() []*genai.Tool { return nil }

func (r *recordingTools) Call(_ context.Context, name string, _ map[string]any) string {
	r.calls = append(r.calls, name)
	return "result of " + name
}

func chunk(parts ...genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Role: "model", Parts: parts}}},
	}
}

func newTestAgent(session *scriptedSession, tools ToolSet, maxRounds int) *AgentService {
	factory := func([]*genai.Content) chatSession { return session }
	return newAgentService(factory, tools, 1, maxRounds, logging.Discard())
}

func TestStreamReply_YieldsCumulativeSnapshots(t *testing.T) {
	session := &scriptedSession{streams: []*scriptedStream{{
		responses: []*genai.GenerateContentResponse{
			chunk(genai.Text("Hello")),
			chunk(genai.Text(", world")),
		},
	}}}
	agent := newTestAgent(session, &recordingTools{}, 4)

	var snapshots []string
	reply, err := agent.StreamReply(context.Background(), nil, "hi", func(s string) error {
		snapshots = append(snapshots, s)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, "Hello, world", reply)
	assert.Equal(t, []string{"Hello", "Hello, world"}, snapshots)
	require.Len(t, session.sent, 1)
	assert.Equal(t, genai.Text("hi"), session.sent[0][0])
}

func TestStreamReply_RunsToolCallsAndSendsResults(t *testing.T) {
	session := &scriptedSession{streams: []*scriptedStream{
		{responses: []*genai.GenerateContentResponse{
			chunk(genai.FunctionCall{Name: "get_website_content", Args: map[string]any{}}),
		}},
		{responses: []*genai.GenerateContentResponse{
			chunk(genai.Text("Grgur works on LLM values.")),
		}},
	}}
	tools := &recordingTools{}
	agent := newTestAgent(session, tools, 4)

	reply, err := agent.StreamReply(context.Background(), nil, "what does he do?", func(string) error { return nil })

	require.NoError(t, err)
	assert.Equal(t, "Grgur works on LLM values.", reply)
	assert.Equal(t, []string{"get_website_content"}, tools.calls)

	require.Len(t, session.sent, 2)
	resp, ok := session.sent[1][0].(genai.FunctionResponse)
	require.True(t, ok)
	assert.Equal(t, "get_website_content", resp.Name)
	assert.Equal(t, "result of get_website_content", resp.Response["result"])
}

func TestStreamReply_SeparatesTextOfToolRounds(t *testing.T) {
	session := &scriptedSession{streams: []*scriptedStream{
		{responses: []*genai.GenerateContentResponse{
			chunk(genai.Text("Let me check the CV."), genai.FunctionCall{Name: "get_cv_paper_pdf", Args: map[string]any{}}),
		}},
		{responses: []*genai.GenerateContentResponse{
			chunk(genai.Text("Here is what it says.")),
			chunk(genai.Text(" More detail.")),
		}},
	}}
	agent := newTestAgent(session, &recordingTools{}, 4)

	var snapshots []string
	reply, err := agent.StreamReply(context.Background(), nil, "cv?", func(s string) error {
		snapshots = append(snapshots, s)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, "Let me check the CV.\nHere is what it says. More detail.", reply)
	assert.Equal(t, []string{
		"Let me check the CV.",
		"Let me check the CV.\nHere is what it says.",
		"Let me check the CV.\nHere is what it says. More detail.",
	}, snapshots)
}

func TestStreamReply_StopsAfterMaxRounds(t *testing.T) {
	call := func() *scriptedStream {
		return &scriptedStream{responses: []*genai.GenerateContentResponse{
			chunk(&genai.FunctionCall{Name: "fetch_website_content", Args: map[string]any{"url": "https://example.com"}}),
		}}
	}
	session := &scriptedSession{streams: []*scriptedStream{call(), call(), call()}}
	tools := &recordingTools{}
	agent := newTestAgent(session, tools, 2)

	_, err := agent.StreamReply(context.Background(), nil, "loop", func(string) error { return nil })

	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 tool rounds")
	assert.Len(t, tools.calls, 2)
}

func TestStreamReply_YieldErrorAbortsTurn(t *testing.T) {
	stop := errors.New("stop")
	session := &scriptedSession{streams: []*scriptedStream{{
		responses: []*genai.GenerateContentResponse{
			chunk(genai.Text("one")),
			chunk(genai.Text("two")),
		},
	}}}
	agent := newTestAgent(session, &recordingTools{}, 4)

	yields := 0
	reply, err := agent.StreamReply(context.Background(), nil, "hi", func(string) error {
		yields++
		return stop
	})

	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, yields)
	assert.Equal(t, "one", reply)
}

func TestStreamReply_WrapsStreamErrors(t *testing.T) {
	session := &scriptedSession{streams: []*scriptedStream{{err: errors.New("quota exceeded")}}}
	agent := newTestAgent(session, &recordingTools{}, 4)

	_, err := agent.StreamReply(context.Background(), nil, "hi", func(string) error { return nil })

	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestStreamReply_CancelledBeforeSlot(t *testing.T) {
	session := &scriptedSession{}
	agent := newTestAgent(session, &recordingTools{}, 4)
	<-agent.rateChan

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := agent.StreamReply(ctx, nil, "hi", func(string) error { return nil })

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, session.sent)
}
