package gemini

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/rizz_server/config"
	"github.com/qs3c/rizz_server/internal/model"
	"github.com/qs3c/rizz_server/internal/pkg/logging"
)

type call struct {
	resp *genai.GenerateContentResponse
	err  error
}

// fakeModel 按顺序返回预设结果
type fakeModel struct {
	mu    sync.Mutex
	calls []call
	parts [][]genai.Part
	block bool
}

func (f *fakeModel) GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	f.parts = append(f.parts, parts)
	n := len(f.parts)
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if n > len(f.calls) {
		return nil, errors.New("unexpected call")
	}
	c := f.calls[n-1]
	return c.resp, c.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Parts: []genai.Part{genai.Text(text)}},
			FinishReason: genai.FinishReasonStop,
		}},
	}
}

func newTestClient(m contentModel) *Client {
	return newClient(m, m, config.GeminiConfig{TimeoutSeconds: 1, MaxAttempts: 2}, logging.Discard())
}

func TestClient_GenerateReply_Success(t *testing.T) {
	m := &fakeModel{calls: []call{{resp: textResponse(
		`{"replies":["hey you","what's up","tell me more"],"score":87,"status":"Vibing","analysis":"Good energy."}`,
	)}}}
	c := newTestClient(m)

	result, err := c.GenerateReply(context.Background(), "she said hi", nil, "playful")
	require.NoError(t, err)

	assert.Equal(t, model.ResultSuccess, result.Kind)
	assert.False(t, result.SoftFailure)
	require.NotNil(t, result.Reply)
	assert.Equal(t, [3]string{"hey you", "what's up", "tell me more"}, result.Reply.Options)
	assert.Equal(t, 87, result.Reply.Score)
	assert.Equal(t, "Vibing", result.Reply.StatusLabel)
	assert.Equal(t, "Good energy.", result.Analysis)
	assert.True(t, result.Genuine())
}

func TestClient_GenerateReply_WithImageSendsBlob(t *testing.T) {
	m := &fakeModel{calls: []call{{resp: textResponse(
		`{"replies":["a","b","c"],"score":50,"status":"Neutral","analysis":"ok"}`,
	)}}}
	c := newTestClient(m)

	_, err := c.GenerateReply(context.Background(), "", &model.Image{MIMEType: "image/png", Data: []byte{1, 2, 3}}, "")
	require.NoError(t, err)

	require.Len(t, m.parts, 1)
	require.Len(t, m.parts[0], 2)
	blob, ok := m.parts[0][1].(genai.Blob)
	require.True(t, ok)
	assert.Equal(t, "image/png", blob.MIMEType)
}

func TestClient_GenerateReply_FencedJSON(t *testing.T) {
	m := &fakeModel{calls: []call{{resp: textResponse(
		"```json\n{\"replies\":[\"a\",\"b\",\"c\"],\"score\":120,\"status\":\"Hot\",\"analysis\":\"x\"}\n```",
	)}}}
	c := newTestClient(m)

	result, _ := c.GenerateReply(context.Background(), "hi", nil, "")
	assert.Equal(t, model.ResultSuccess, result.Kind)
	assert.Equal(t, 100, result.Reply.Score)
}

func TestClient_GenerateReply_MissingOptionIsSoftFailure(t *testing.T) {
	m := &fakeModel{calls: []call{{resp: textResponse(
		`{"replies":["only one",""],"score":40,"status":"Dry","analysis":""}`,
	)}}}
	c := newTestClient(m)

	result, _ := c.GenerateReply(context.Background(), "hi", nil, "")
	assert.Equal(t, model.ResultSuccess, result.Kind)
	assert.True(t, result.SoftFailure)
	assert.False(t, result.Genuine())
	assert.Equal(t, FallbackReply, result.Reply.Options[1])
	assert.Equal(t, FallbackReply, result.Reply.Options[2])
	assert.Equal(t, FallbackAnalysis, result.Analysis)
}

func TestClient_GenerateReply_BlockedError(t *testing.T) {
	m := &fakeModel{calls: []call{{err: &genai.BlockedError{
		PromptFeedback: &genai.PromptFeedback{BlockReason: genai.BlockReasonSafety},
	}}}}
	c := newTestClient(m)

	result, err := c.GenerateReply(context.Background(), "something nasty", nil, "")
	require.NoError(t, err)
	assert.Equal(t, model.ResultBlocked, result.Kind)
	assert.Equal(t, BlockedMessage, result.Analysis)
	// blocked 不重试
	assert.Len(t, m.parts, 1)
}

func TestClient_GenerateReply_PromptFeedbackBlocked(t *testing.T) {
	m := &fakeModel{calls: []call{{resp: &genai.GenerateContentResponse{
		PromptFeedback: &genai.PromptFeedback{BlockReason: genai.BlockReasonOther},
	}}}}
	c := newTestClient(m)

	result, _ := c.GenerateReply(context.Background(), "x", nil, "")
	assert.Equal(t, model.ResultBlocked, result.Kind)
}

func TestClient_GenerateBio_FinishReasonSafety(t *testing.T) {
	m := &fakeModel{calls: []call{{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}},
	}}}}
	c := newTestClient(m)

	result, _ := c.GenerateBio(context.Background(), "about me", "")
	assert.Equal(t, model.ResultBlocked, result.Kind)
}

func TestClient_RetriesOnceThenSucceeds(t *testing.T) {
	m := &fakeModel{calls: []call{
		{err: errors.New("connection reset")},
		{resp: textResponse(`{"bio":"Dog dad. Taco critic.","analysis":"Specific and fun."}`)},
	}}
	c := newTestClient(m)

	result, _ := c.GenerateBio(context.Background(), "I like dogs and tacos", "witty")
	assert.Equal(t, model.ResultSuccess, result.Kind)
	assert.Equal(t, "Dog dad. Taco critic.", result.Bio)
	assert.Len(t, m.parts, 2)
}

func TestClient_ServiceErrorAfterRetries(t *testing.T) {
	m := &fakeModel{calls: []call{
		{resp: textResponse("not json")},
		{resp: &genai.GenerateContentResponse{}},
	}}
	c := newTestClient(m)

	result, _ := c.GenerateReply(context.Background(), "hi", nil, "")
	assert.Equal(t, model.ResultServiceError, result.Kind)
	assert.Equal(t, "no candidates", result.Reason)
	assert.Equal(t, FallbackReply, result.Reply.Options[0])
	assert.Len(t, m.parts, 2)
}

func TestClient_IncompleteReplyIsServiceError(t *testing.T) {
	m := &fakeModel{calls: []call{
		{resp: textResponse(`{"replies":["a","b","c"]}`)},
		{resp: textResponse(`{"replies":["a","b","c"],"status":"x"}`)},
	}}
	c := newTestClient(m)

	result, _ := c.GenerateReply(context.Background(), "hi", nil, "")
	assert.Equal(t, model.ResultServiceError, result.Kind)
	assert.Equal(t, "incomplete response", result.Reason)
}

func TestClient_Timeout(t *testing.T) {
	m := &fakeModel{block: true}
	c := newClient(m, m, config.GeminiConfig{MaxAttempts: 1}, logging.Discard())
	c.timeout = 20 * time.Millisecond

	result, _ := c.GenerateBio(context.Background(), "me", "")
	assert.Equal(t, model.ResultServiceError, result.Kind)
	assert.Equal(t, "timeout", result.Reason)
	assert.Equal(t, FallbackBio, result.Bio)
}

func TestClient_EmptyBioIsSoftFailure(t *testing.T) {
	m := &fakeModel{calls: []call{{resp: textResponse(`{"bio":"  ","analysis":"hm"}`)}}}
	c := newTestClient(m)

	result, _ := c.GenerateBio(context.Background(), "me", "")
	assert.Equal(t, model.ResultSuccess, result.Kind)
	assert.True(t, result.SoftFailure)
	assert.Equal(t, FallbackBio, result.Bio)
}

func TestImageFormat(t *testing.T) {
	assert.Equal(t, "png", imageFormat("image/png"))
	assert.Equal(t, "webp", imageFormat("image/webp"))
	assert.Equal(t, "jpeg", imageFormat(""))
	assert.Equal(t, "jpeg", imageFormat("application/octet-stream"))
}

func TestBuildReplyPrompt(t *testing.T) {
	p := buildReplyPrompt("  hi there ", "flirty", true)
	assert.Contains(t, p, "screenshot")
	assert.Contains(t, p, "hi there")
	assert.Contains(t, p, "Tone: flirty")

	p = buildReplyPrompt("", "", false)
	assert.Empty(t, p)
}
