package gemini

import (
	"fmt"
	"strings"
)

const replyInstruction = `You help people keep a dating conversation going.
Return JSON only: {"replies": [three short reply options], "score": 0-100 compatibility score,
"status": a two or three word label for where the conversation stands, "analysis": one or two sentences}.`

const bioInstruction = `You write short, specific dating profile bios.
Return JSON only: {"bio": the bio, "analysis": one sentence on why it works}.`

func buildReplyPrompt(text, style string, hasImage bool) string {
	var sb strings.Builder
	if hasImage {
		sb.WriteString("The attached screenshot shows the conversation so far.\n")
	}
	if t := strings.TrimSpace(text); t != "" {
		fmt.Fprintf(&sb, "Conversation / context:\n%s\n", t)
	}
	if s := strings.TrimSpace(style); s != "" {
		fmt.Fprintf(&sb, "Tone: %s\n", s)
	}
	return sb.String()
}

func buildBioPrompt(text, style string) string {
	prompt := fmt.Sprintf("About me:\n%s\n", strings.TrimSpace(text))
	if s := strings.TrimSpace(style); s != "" {
		prompt += fmt.Sprintf("Tone: %s\n", s)
	}
	return prompt
}
