package errors

import (
	"errors"
	"strings"
)

// User-facing rewrites of upstream service failures
const (
	MsgRateLimited   = "Requests are too frequent, please retry later."
	MsgQuotaExceeded = "The AI service quota is exhausted, please check your plan."
	MsgUnknownModel  = "The selected model is unavailable, please choose another one."
	MsgTimeout       = "The AI service timed out, please retry."
	MsgRequestFailed = "Request failed, please retry."
)

type friendlyRule struct {
	patterns []string
	message  string
}

// Order matters: the first matching rule wins.
var friendlyRules = []friendlyRule{
	{
		patterns: []string{"rate limit", "rate_limit", "too many requests", "频率限制", "请求过于频繁"},
		message:  MsgRateLimited,
	},
	{
		patterns: []string{"insufficient quota", "insufficient_quota", "quota exceeded", "余额不足", "配额"},
		message:  MsgQuotaExceeded,
	},
	{
		patterns: []string{"model not found", "model_not_found", "unknown model", "模型不存在"},
		message:  MsgUnknownModel,
	},
	{
		patterns: []string{"timeout", "timed out", "deadline exceeded", "超时"},
		message:  MsgTimeout,
	},
}

// FriendlyMessage rewrites known upstream error texts into a user-facing
// message. Unmatched text is returned unchanged.
func FriendlyMessage(text string) string {
	lower := strings.ToLower(text)
	for _, rule := range friendlyRules {
		for _, p := range rule.patterns {
			if strings.Contains(lower, p) {
				return rule.message
			}
		}
	}
	return text
}

// UserMessage returns the text to show for err, or "" when nothing should be
// shown (user aborts).
func UserMessage(err error) string {
	if err == nil || IsAborted(err) {
		return ""
	}

	var streamErr *StreamError
	if errors.As(err, &streamErr) {
		return FriendlyMessage(streamErr.Message)
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return MsgTimeout
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if rewritten := FriendlyMessage(apiErr.Body); rewritten != apiErr.Body {
			return rewritten
		}
		if apiErr.StatusCode == 429 {
			return MsgRateLimited
		}
		return MsgRequestFailed
	}

	return FriendlyMessage(err.Error())
}
