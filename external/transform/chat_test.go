package transform

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/foxseedlab/mojinote/internal/transform"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newChatServer(t *testing.T, reply string, got *chatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if got != nil {
			if err := json.Unmarshal(body, got); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 0,
			"model":   "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": reply},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestChatTransformer_SendsProfileAndContext(t *testing.T) {
	var got chatRequest
	srv := newChatServer(t, "<p>Cells divide.</p>", &got)

	tr := NewChatTransformer(ClientConfig{APIKey: "sk-test", BaseURL: srv.URL + "/"}, "test-model", FormatProfile)
	res, err := tr.Transform(context.Background(), transform.Request{
		Text:    "cells divide by mitosis",
		Context: "<h2>Biology</h2>",
	})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if res.Text != "<p>Cells divide.</p>" {
		t.Fatalf("Text = %q", res.Text)
	}
	if got.Model != "test-model" || len(got.Messages) != 2 {
		t.Fatalf("request = %+v", got)
	}
	if got.Messages[0].Role != "system" || got.Messages[0].Content != FormatProfile.System {
		t.Fatalf("system message = %+v", got.Messages[0])
	}
	user := got.Messages[1].Content
	if !strings.Contains(user, "<h2>Biology</h2>") || !strings.HasSuffix(user, "cells divide by mitosis") {
		t.Fatalf("user message = %q", user)
	}
}

func TestChatTransformer_TidiesOrganizeOutput(t *testing.T) {
	srv := newChatServer(t, "```html\n<p>a</p>\n\n   <p>b   c</p>\n```", nil)

	tr := NewChatTransformer(ClientConfig{APIKey: "sk-test", BaseURL: srv.URL + "/"}, "test-model", OrganizeProfile)
	res, err := tr.Transform(context.Background(), transform.Request{Text: "a and then b c said twice"})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if res.Text != "<p>a</p><p>b c</p>" {
		t.Fatalf("Text = %q", res.Text)
	}
}

func TestChatTransformer_EmptyReplyIsAnError(t *testing.T) {
	srv := newChatServer(t, "   ", nil)

	tr := NewChatTransformer(ClientConfig{APIKey: "sk-test", BaseURL: srv.URL + "/"}, "test-model", PolishProfile)
	_, err := tr.Transform(context.Background(), transform.Request{Text: "some formatted text here"})
	if !errors.Is(err, transform.ErrEmptyResult) {
		t.Fatalf("Transform() error = %v, want ErrEmptyResult", err)
	}
}

func TestNewSet_ShortInputSkipsRequest(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	set := NewSet(ClientConfig{APIKey: "sk-test", BaseURL: srv.URL + "/"}, "m", "m", "m", "m")
	res, err := set.Organize.Transform(context.Background(), transform.Request{Text: "ok"})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if res.Text != "ok" || calls != 0 {
		t.Fatalf("text=%q calls=%d", res.Text, calls)
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := map[string]string{
		"<p>x</p>":               "<p>x</p>",
		"```\n<p>x</p>\n```":     "<p>x</p>",
		"```html\n<p>x</p>\n```": "<p>x</p>",
		"```<p>inline</p>```":    "<p>inline</p>",
	}
	for in, want := range tests {
		if got := stripCodeFence(in); got != want {
			t.Fatalf("stripCodeFence(%q) = %q, want %q", in, got, want)
		}
	}
}
