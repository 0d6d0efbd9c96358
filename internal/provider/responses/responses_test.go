package responses

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/mandalnilabja/chatgate/internal/provider"
	"github.com/mandalnilabja/chatgate/internal/types"
)

func collect(seq func(func(types.Event) bool)) []types.Event {
	var events []types.Event
	for ev := range seq {
		events = append(events, ev)
	}
	return events
}

func textRequest(model string) *provider.Request {
	return &provider.Request{
		ModelID: model,
		Messages: []types.NormalizedMessage{
			{Role: types.RoleUser, Parts: []types.Part{types.TextPart("Hi")}},
		},
	}
}

func imageRequest(model string) *provider.Request {
	return &provider.Request{
		ModelID: model,
		Messages: []types.NormalizedMessage{
			{Role: types.RoleUser, Parts: []types.Part{
				types.TextPart("what is this?"),
				{Type: types.PartImage, MIMEType: "image/png", Data: "iVBORw0KGgo"},
			}},
		},
	}
}

func TestBuildRequestDefaults(t *testing.T) {
	a := New(Config{})
	body := a.buildRequest(textRequest("gpt-5"), "gpt-5")

	if body.Reasoning == nil || body.Reasoning.Effort != "low" {
		t.Errorf("reasoning = %+v, want low", body.Reasoning)
	}
	if body.Text == nil || body.Text.Verbosity != "low" {
		t.Errorf("text = %+v, want low", body.Text)
	}
	if body.Tools != nil {
		t.Errorf("tools = %+v, want none", body.Tools)
	}
	if len(body.Input) != 1 || body.Input[0].Content[0].Type != "input_text" {
		t.Errorf("input = %+v", body.Input)
	}
}

func TestBuildRequestOptions(t *testing.T) {
	a := New(Config{})
	req := imageRequest("gpt-5")
	req.SystemPrompt = "sys"
	req.Config = provider.GenerationConfig{ReasoningEffort: "none", Verbosity: "high", Grounding: true}
	body := a.buildRequest(req, "gpt-5")

	if body.Reasoning != nil {
		t.Errorf("reasoning = %+v, want omitted for none", body.Reasoning)
	}
	if body.Text.Verbosity != "high" {
		t.Errorf("verbosity = %q", body.Text.Verbosity)
	}
	if len(body.Tools) != 1 || body.Tools[0].Type != "web_search" {
		t.Errorf("tools = %+v", body.Tools)
	}
	if body.Instructions != "sys" {
		t.Errorf("instructions = %q", body.Instructions)
	}
	img := body.Input[0].Content[1]
	if img.Type != "input_image" || img.ImageURL != "data:image/png;base64,iVBORw0KGgo" || img.Detail != "auto" {
		t.Errorf("image part = %+v", img)
	}
}

func writeEvents(w http.ResponseWriter, events ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, e := range events {
		fmt.Fprintf(w, "data: %s\n\n", e)
	}
}

func TestStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/responses" {
			t.Errorf("path = %s", r.URL.Path)
		}
		writeEvents(w,
			`{"type":"response.created"}`,
			`{"type":"response.output_text.delta","delta":"Hel"}`,
			`{"type":"response.output_text.delta","delta":"lo"}`,
			`{"type":"response.completed","response":{"usage":{"input_tokens":10,"output_tokens":2}}}`,
		)
	}))
	defer srv.Close()

	events := collect(New(Config{BaseURL: srv.URL}).Stream(context.Background(), textRequest("gpt-5")))
	want := []types.Event{
		types.TextDelta("Hel"),
		types.TextDelta("lo"),
		types.UsageReport(10, 2),
		types.FinishEvent(types.FinishStop),
	}
	if len(events) != len(want) {
		t.Fatalf("events = %+v", events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, events[i], want[i])
		}
	}
}

func TestUsageTextTokenFallback(t *testing.T) {
	var u usage
	if err := json.Unmarshal([]byte(`{"input_text_tokens":7,"output_text_tokens":3}`), &u); err != nil {
		t.Fatal(err)
	}
	in, out := u.tokens()
	if in != 7 || out != 3 {
		t.Errorf("tokens = %d/%d, want 7/3", in, out)
	}
}

func TestStreamErrorEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEvents(w,
			`{"type":"response.output_text.delta","delta":"partial"}`,
			`{"type":"error","message":"server_error"}`,
		)
	}))
	defer srv.Close()

	events := collect(New(Config{BaseURL: srv.URL}).Stream(context.Background(), textRequest("gpt-5")))
	if len(events) != 2 || events[0].Text != "partial" || events[1].Kind != types.EventError {
		t.Fatalf("events = %+v", events)
	}
}

func TestVisionFallback(t *testing.T) {
	var mu sync.Mutex
	var models []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body responsesRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		models = append(models, body.Model)
		mu.Unlock()

		if body.Model != FallbackModel {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":{"message":"Invalid content type. image_url is not supported for this model."}}`)
			return
		}
		writeEvents(w,
			`{"type":"response.output_text.delta","delta":"a cat"}`,
			`{"type":"response.completed","response":{"usage":{"input_tokens":5,"output_tokens":2}}}`,
		)
	}))
	defer srv.Close()

	events := collect(New(Config{BaseURL: srv.URL}).Stream(context.Background(), imageRequest("gpt-5-mini")))

	if len(models) != 2 || models[0] != "gpt-5-mini" || models[1] != FallbackModel {
		t.Fatalf("models called = %v", models)
	}
	if len(events) != 3 || events[0].Text != "a cat" || events[2].Kind != types.EventFinish {
		t.Errorf("events = %+v", events)
	}
}

func TestNoFallbackWithoutImage(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"unsupported parameter"}}`)
	}))
	defer srv.Close()

	events := collect(New(Config{BaseURL: srv.URL}).Stream(context.Background(), textRequest("gpt-5")))
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if len(events) != 1 || events[0].Kind != types.EventError {
		t.Errorf("events = %+v", events)
	}
}

func TestFallbackModelIsNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"image not supported"}}`)
	}))
	defer srv.Close()

	req := imageRequest("gpt-5")
	req.UpstreamModel = FallbackModel
	events := collect(New(Config{BaseURL: srv.URL}).Stream(context.Background(), req))
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if len(events) != 1 || events[0].Kind != types.EventError {
		t.Errorf("events = %+v", events)
	}
}
