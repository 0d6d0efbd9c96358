package chat

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mandalnilabja/chatgate/internal/types"
)

type fakeDispatcher struct {
	called bool
	req    *types.ChatRequest
	err    error
}

func (f *fakeDispatcher) Handle(ctx context.Context, req *types.ChatRequest, w http.ResponseWriter) error {
	f.called = true
	f.req = req
	if f.err != nil {
		return f.err
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "0:\"hi\"\n")
	return nil
}

func TestChat(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		dispatch   *fakeDispatcher
		wantStatus int
		wantCalled bool
		wantBody   string
	}{
		{
			name:       "streams through dispatcher",
			body:       `{"modelId":"gpt-4.1","messages":[{"role":"user","content":"hi"}]}`,
			dispatch:   &fakeDispatcher{},
			wantStatus: http.StatusOK,
			wantCalled: true,
			wantBody:   "0:\"hi\"\n",
		},
		{
			name:       "malformed json",
			body:       `{"modelId":`,
			dispatch:   &fakeDispatcher{},
			wantStatus: http.StatusBadRequest,
			wantCalled: false,
		},
		{
			name:       "dispatcher rejects",
			body:       `{"modelId":"o3","messages":[{"role":"user","content":"hi"}]}`,
			dispatch:   &fakeDispatcher{err: types.NewUsageLimitExceeded("o3", 300)},
			wantStatus: http.StatusTooManyRequests,
			wantCalled: true,
			wantBody:   `{"error":"Monthly usage limit of 300 for o3 has been reached."}` + "\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(tt.dispatch, slog.New(slog.NewTextHandler(io.Discard, nil)))
			req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.Chat(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.dispatch.called != tt.wantCalled {
				t.Errorf("dispatcher called = %v, want %v", tt.dispatch.called, tt.wantCalled)
			}
			if tt.wantBody != "" && w.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestChat_DecodesRequest(t *testing.T) {
	d := &fakeDispatcher{}
	h := New(d, nil)
	body := `{"modelId":"gemini-2.5-pro","messages":[{"role":"user","content":"hi"}],"temperaturePreset":"creative","geminiGroundingEnabled":true}`
	h.Chat(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body)))

	if d.req == nil {
		t.Fatal("dispatcher not called")
	}
	if d.req.ModelID != "gemini-2.5-pro" || d.req.TemperaturePreset != types.PresetCreative || !d.req.GeminiGroundingEnabled {
		t.Errorf("decoded request = %+v", d.req)
	}
}

func TestChat_ErrorBodyShape(t *testing.T) {
	h := New(&fakeDispatcher{}, nil)
	w := httptest.NewRecorder()
	h.Chat(w, httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader("not json")))

	var body types.ErrorBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid error body: %v", err)
	}
	if !strings.HasPrefix(body.Error, "invalid request body") {
		t.Errorf("error = %q", body.Error)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}
