package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/foxseedlab/mojinote/internal/webhook"
)

func TestSendNote_EmptyWebhookURL(t *testing.T) {
	sender := NewHTTPSender("")
	if err := sender.SendNote(context.Background(), webhook.NotePayload{SessionID: "s1"}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestSendNote_Success(t *testing.T) {
	var got webhook.NotePayload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type: %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	sender := NewHTTPSender(server.URL)
	payload := webhook.NotePayload{
		SchemaVersion: webhook.NotePayloadSchemaVersion,
		SessionID:     "s1",
		Note:          "<h2>Mitosis</h2><p>Cells divide.</p>",
		Transcript: []webhook.SegmentRecord{
			{ChunkID: "c1", Sequence: 0, Text: "cells divide"},
		},
	}
	if err := sender.SendNote(context.Background(), payload); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if got.SessionID != "s1" || got.Note != payload.Note {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if len(got.Transcript) != 1 || got.Transcript[0].ChunkID != "c1" {
		t.Fatalf("unexpected transcript: %+v", got.Transcript)
	}
}

func TestSendNote_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	sender := NewHTTPSender(server.URL)
	if err := sender.SendNote(context.Background(), webhook.NotePayload{SessionID: "s1"}); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}
