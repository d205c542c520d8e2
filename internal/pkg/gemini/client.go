package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/qs3c/rizz_server/config"
	"github.com/qs3c/rizz_server/internal/model"
)

// 客户端自身的占位文案。出现这些文案时结果会标记 SoftFailure
const (
	FallbackReply    = "I couldn't come up with a reply this time. Give it another shot!"
	FallbackBio      = "I couldn't write a bio right now. Please try again."
	FallbackAnalysis = "No analysis available for this one."
	BlockedMessage   = "This request can't be answered because it may go against our content guidelines."
)

// contentModel *genai.GenerativeModel 的最小接口，便于测试替换
type contentModel interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type Client struct {
	client      *genai.Client
	replyModel  contentModel
	bioModel    contentModel
	timeout     time.Duration
	maxAttempts int
	logger      *slog.Logger
}

func NewClient(ctx context.Context, cfg config.GeminiConfig, logger *slog.Logger) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	newModel := func(instruction string) *genai.GenerativeModel {
		m := client.GenerativeModel(cfg.Model)
		m.SetTemperature(cfg.Temperature)
		m.SetTopP(0.95)
		m.SetMaxOutputTokens(cfg.MaxTokens)
		m.ResponseMIMEType = "application/json"
		m.SystemInstruction = genai.NewUserContent(genai.Text(instruction))
		return m
	}

	c := newClient(newModel(replyInstruction), newModel(bioInstruction), cfg, logger)
	c.client = client
	return c, nil
}

func newClient(replyModel, bioModel contentModel, cfg config.GeminiConfig, logger *slog.Logger) *Client {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 2
	}
	return &Client{
		replyModel:  replyModel,
		bioModel:    bioModel,
		timeout:     cfg.Timeout(),
		maxAttempts: attempts,
		logger:      logger,
	}
}

func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// GenerateReply 根据聊天文本和/或截图生成三条候选回复
func (c *Client) GenerateReply(ctx context.Context, text string, image *model.Image, style string) (*model.GenerationResult, error) {
	parts := []genai.Part{genai.Text(buildReplyPrompt(text, style, image != nil))}
	if image != nil && len(image.Data) > 0 {
		parts = append(parts, genai.ImageData(imageFormat(image.MIMEType), image.Data))
	}
	return c.generate(ctx, c.replyModel, parts, model.ModeReply), nil
}

// GenerateBio 生成交友资料简介
func (c *Client) GenerateBio(ctx context.Context, text, style string) (*model.GenerationResult, error) {
	parts := []genai.Part{genai.Text(buildBioPrompt(text, style))}
	return c.generate(ctx, c.bioModel, parts, model.ModeBio), nil
}

// generate service_error 时内部重试一次，blocked 不重试
func (c *Client) generate(ctx context.Context, m contentModel, parts []genai.Part, mode model.GenerationMode) *model.GenerationResult {
	var result *model.GenerationResult
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		result = c.attempt(ctx, m, parts, mode)
		if result.Kind != model.ResultServiceError || ctx.Err() != nil {
			return result
		}
		c.logger.Warn("gemini generation failed",
			"mode", mode, "attempt", attempt, "reason", result.Reason)
	}
	return result
}

func (c *Client) attempt(ctx context.Context, m contentModel, parts []genai.Part, mode model.GenerationMode) *model.GenerationResult {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := m.GenerateContent(callCtx, parts...)
	return classify(resp, err, mode)
}

// classify 在边界处一次性确定结果类型
func classify(resp *genai.GenerateContentResponse, err error, mode model.GenerationMode) *model.GenerationResult {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return blockedResult(blockedReason(blocked))
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return serviceError(mode, "timeout")
		}
		return serviceError(mode, err.Error())
	}
	if resp == nil {
		return serviceError(mode, "empty response")
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != genai.BlockReasonUnspecified {
		return blockedResult(fmt.Sprintf("prompt blocked: %v", fb.BlockReason))
	}
	if len(resp.Candidates) == 0 {
		return serviceError(mode, "no candidates")
	}

	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonSafety {
		return blockedResult("response blocked: safety")
	}

	text := candidateText(cand)
	if strings.TrimSpace(text) == "" {
		return serviceError(mode, "empty content")
	}

	if mode == model.ModeBio {
		return parseBio(text)
	}
	return parseReply(text)
}

func blockedReason(err *genai.BlockedError) string {
	if err.PromptFeedback != nil {
		return fmt.Sprintf("prompt blocked: %v", err.PromptFeedback.BlockReason)
	}
	if err.Candidate != nil {
		return fmt.Sprintf("response blocked: %v", err.Candidate.FinishReason)
	}
	return "blocked"
}

func candidateText(cand *genai.Candidate) string {
	if cand == nil || cand.Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return sb.String()
}

type replyPayload struct {
	Replies  []string `json:"replies"`
	Score    *int     `json:"score"`
	Status   string   `json:"status"`
	Analysis string   `json:"analysis"`
}

type bioPayload struct {
	Bio      string `json:"bio"`
	Analysis string `json:"analysis"`
}

func parseReply(text string) *model.GenerationResult {
	var payload replyPayload
	if err := json.Unmarshal([]byte(stripFences(text)), &payload); err != nil {
		return serviceError(model.ModeReply, "unparseable response")
	}
	if len(payload.Replies) == 0 || payload.Score == nil || strings.TrimSpace(payload.Status) == "" {
		return serviceError(model.ModeReply, "incomplete response")
	}

	result := &model.GenerationResult{
		Kind:     model.ResultSuccess,
		Reply:    &model.ReplySet{Score: clampScore(*payload.Score), StatusLabel: strings.TrimSpace(payload.Status)},
		Analysis: strings.TrimSpace(payload.Analysis),
	}
	for i := range result.Reply.Options {
		if i < len(payload.Replies) && strings.TrimSpace(payload.Replies[i]) != "" {
			result.Reply.Options[i] = strings.TrimSpace(payload.Replies[i])
			continue
		}
		result.Reply.Options[i] = FallbackReply
		result.SoftFailure = true
	}
	if result.Analysis == "" {
		result.Analysis = FallbackAnalysis
	}
	return result
}

func parseBio(text string) *model.GenerationResult {
	var payload bioPayload
	if err := json.Unmarshal([]byte(stripFences(text)), &payload); err != nil {
		return serviceError(model.ModeBio, "unparseable response")
	}

	result := &model.GenerationResult{
		Kind:     model.ResultSuccess,
		Bio:      strings.TrimSpace(payload.Bio),
		Analysis: strings.TrimSpace(payload.Analysis),
	}
	if result.Bio == "" {
		result.Bio = FallbackBio
		result.SoftFailure = true
	}
	if result.Analysis == "" {
		result.Analysis = FallbackAnalysis
	}
	return result
}

func blockedResult(reason string) *model.GenerationResult {
	return &model.GenerationResult{
		Kind:     model.ResultBlocked,
		Analysis: BlockedMessage,
		Reason:   reason,
	}
}

func serviceError(mode model.GenerationMode, reason string) *model.GenerationResult {
	result := &model.GenerationResult{
		Kind:     model.ResultServiceError,
		Analysis: FallbackAnalysis,
		Reason:   reason,
	}
	if mode == model.ModeBio {
		result.Bio = FallbackBio
	} else {
		result.Reply = &model.ReplySet{Options: [3]string{FallbackReply, FallbackReply, FallbackReply}}
	}
	return result
}

// stripFences 去掉模型偶尔附带的 ```json 代码块
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func imageFormat(mimeType string) string {
	format := strings.TrimPrefix(mimeType, "image/")
	if format == "" || format == mimeType {
		return "jpeg"
	}
	return format
}
