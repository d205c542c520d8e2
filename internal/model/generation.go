package model

import "strings"

type GenerationMode string

const (
	ModeReply GenerationMode = "reply"
	ModeBio   GenerationMode = "bio"
)

// ResultKind GenerationResult 的判别字段，在解析远端响应时确定一次
type ResultKind string

const (
	ResultSuccess      ResultKind = "success"
	ResultBlocked      ResultKind = "blocked"
	ResultServiceError ResultKind = "service_error"
)

type Image struct {
	MIMEType string
	Data     []byte
}

type GenerationRequest struct {
	Mode  GenerationMode
	Text  string
	Image *Image
	Style string
}

func (r *GenerationRequest) HasImage() bool {
	return r.Image != nil && len(r.Image.Data) > 0
}

func (r *GenerationRequest) HasText() bool {
	return strings.TrimSpace(r.Text) != ""
}

// ReplySet 三条候选回复 + 契合度评分
type ReplySet struct {
	Options     [3]string `json:"options"`
	Score       int       `json:"score"`
	StatusLabel string    `json:"status_label"`
}

type GenerationResult struct {
	Kind     ResultKind `json:"kind"`
	Reply    *ReplySet  `json:"reply,omitempty"`
	Bio      string     `json:"bio,omitempty"`
	Analysis string     `json:"analysis"`
	Reason   string     `json:"reason,omitempty"`
	// SoftFailure 客户端用占位文案替代了生成内容
	SoftFailure bool `json:"soft_failure,omitempty"`
}

// Genuine 只有真实生成成功才算扣费成立
func (r *GenerationResult) Genuine() bool {
	return r != nil && r.Kind == ResultSuccess && !r.SoftFailure
}
