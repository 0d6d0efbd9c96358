package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/mandalnilabja/chatgate/internal/types"
)

const maxErrorBody = 64 * 1024

// apiErrorResponse covers the error envelopes of OpenAI, Anthropic and Vertex AI.
type apiErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseAPIError reads a failed upstream response into an UpstreamError.
func ParseAPIError(name string, resp *http.Response) *types.UpstreamError {
	upErr := &types.UpstreamError{Provider: name, Status: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		upErr.Message = "failed to read error body"
		upErr.Err = err
		return upErr
	}

	body = bytes.TrimSpace(body)
	// Vertex AI wraps errors of streaming calls in a JSON array.
	if bytes.HasPrefix(body, []byte("[")) {
		var list []apiErrorResponse
		if json.Unmarshal(body, &list) == nil && len(list) > 0 && list[0].Error.Message != "" {
			upErr.Message = list[0].Error.Message
			return upErr
		}
	}

	var apiErr apiErrorResponse
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
		upErr.Message = apiErr.Error.Message
		return upErr
	}

	upErr.Message = strings.TrimSpace(string(body))
	if upErr.Message == "" {
		upErr.Message = http.StatusText(resp.StatusCode)
	}
	return upErr
}

// PostJSON sends body as JSON and returns the response when the status is below 400.
// Failed calls are returned as *types.UpstreamError.
func PostJSON(ctx context.Context, client *http.Client, name, url string, header http.Header, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", name, err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, &types.UpstreamError{Provider: name, Message: err.Error(), Err: err}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		return nil, ParseAPIError(name, resp)
	}
	return resp, nil
}

// Client-facing messages for upstream failures.
const (
	MsgRateLimited       = "APIプロバイダー側の利用制限に達しています。しばらく時間をおいてから再度お試しください。解消しない場合は管理者にご連絡ください。"
	MsgMonthlyCap        = "APIプロバイダー側の月間利用上限に達しています。管理者にご連絡ください。"
	MsgBilling           = "APIプロバイダー側の課金設定に問題があります。管理者にご連絡ください。"
	MsgAuth              = "APIの認証に失敗しました。管理者にご連絡ください。"
	MsgContentPolicy     = "コンテンツポリシーにより、リクエストが拒否されました。入力内容を変更して再度お試しください。"
	MsgModelUnavailable  = "指定されたモデルが現在利用できません。管理者にご連絡ください。"
	MsgTooLong           = "入力が長すぎます。メッセージやファイルのサイズを減らして再度お試しください。"
	MsgServerUnavailable = "AIサービスが一時的に利用できません。しばらく時間をおいてから再度お試しください。"
	MsgTimeout           = "リクエストがタイムアウトしました。入力を短くするか、しばらく時間をおいてから再度お試しください。"
	MsgGeneric           = "エラーが発生しました。しばらく時間をおいてから再度お試しください。解消しない場合は管理者にご連絡ください。"
)

var (
	reMonthlyCap    = regexp.MustCompile(`(?i)reached your specified API usage limits`)
	reRateLimit     = regexp.MustCompile(`(?i)usage.?limit|rate.?limit|quota.?exceed|resource.?exhaust|too many requests`)
	reBilling       = regexp.MustCompile(`(?i)insufficient.?quota|billing|payment`)
	reAuth          = regexp.MustCompile(`(?i)auth|permission|forbidden|api.?key`)
	reContentPolicy = regexp.MustCompile(`(?i)content.?policy|safety|blocked|harmful|moderation`)
	reModel         = regexp.MustCompile(`(?i)model.*not found|model.*not available|does not exist`)
	reTooLong       = regexp.MustCompile(`(?i)too long|too large|max.*token|context.?length|payload`)
	reServer        = regexp.MustCompile(`(?i)server.?error|service.?unavailable|internal.?error`)
	reTimeout       = regexp.MustCompile(`(?i)timeout|deadline`)
)

// UserMessage turns an upstream failure into the message shown to the end user.
// Raw provider messages are never exposed.
func UserMessage(err error) string {
	if err == nil {
		return MsgGeneric
	}
	raw := err.Error()
	status := 0
	var upErr *types.UpstreamError
	if errors.As(err, &upErr) {
		status = upErr.Status
		raw = upErr.Message
	}

	switch {
	case reMonthlyCap.MatchString(raw):
		return MsgMonthlyCap
	case status == http.StatusTooManyRequests || reRateLimit.MatchString(raw):
		return MsgRateLimited
	case reBilling.MatchString(raw):
		return MsgBilling
	case status == http.StatusUnauthorized || status == http.StatusForbidden || reAuth.MatchString(raw):
		return MsgAuth
	case reContentPolicy.MatchString(raw):
		return MsgContentPolicy
	case reModel.MatchString(raw):
		return MsgModelUnavailable
	case reTooLong.MatchString(raw):
		return MsgTooLong
	case status == http.StatusInternalServerError || status == http.StatusBadGateway ||
		status == http.StatusServiceUnavailable || reServer.MatchString(raw):
		return MsgServerUnavailable
	case status == http.StatusGatewayTimeout || errors.Is(err, context.DeadlineExceeded) || reTimeout.MatchString(raw):
		return MsgTimeout
	}
	return MsgGeneric
}
