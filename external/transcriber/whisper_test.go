package transcriber

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/foxseedlab/mojinote/internal/audio"
)

func TestWhisperTranscriber_PostsWAVChunk(t *testing.T) {
	var gotModel, gotLanguage, gotFilename string
	var gotHeader []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		gotModel = r.FormValue("model")
		gotLanguage = r.FormValue("language")
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("read file: %v", err)
			return
		}
		defer file.Close()
		gotFilename = header.Filename
		gotHeader, _ = io.ReadAll(io.LimitReader(file, 12))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"text": "  hello world \n"})
	}))
	defer srv.Close()

	tr := NewWhisperTranscriber(WhisperConfig{
		APIKey:   "sk-test",
		BaseURL:  srv.URL + "/",
		Model:    "whisper-1",
		Language: "en-US",
	})
	text, err := tr.Transcribe(context.Background(), audio.Chunk{
		ID:         "chunk-1",
		Payload:    make([]byte, audio.FrameBytes),
		SampleRate: audio.SampleRate,
		Channels:   audio.Channels,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hello world" {
		t.Fatalf("unexpected text: %q", text)
	}
	if gotModel != "whisper-1" || gotLanguage != "en" || gotFilename != "chunk-1.wav" {
		t.Fatalf("unexpected request: model=%q language=%q filename=%q", gotModel, gotLanguage, gotFilename)
	}
	if len(gotHeader) != 12 || string(gotHeader[:4]) != "RIFF" || string(gotHeader[8:12]) != "WAVE" {
		t.Fatalf("expected a WAV upload, got header %q", gotHeader)
	}
}

func TestWhisperTranscriber_ReturnsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"bad audio"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	tr := NewWhisperTranscriber(WhisperConfig{APIKey: "sk-test", BaseURL: srv.URL + "/", Model: "whisper-1"})
	if _, err := tr.Transcribe(context.Background(), audio.Chunk{ID: "c", SampleRate: audio.SampleRate, Channels: audio.Channels}); err == nil {
		t.Fatal("expected an error for a failed request")
	}
}

func TestWhisperLanguage(t *testing.T) {
	tests := map[string]string{
		"en-US": "en",
		"ja_JP": "ja",
		"DE":    "de",
		"":      "",
	}
	for in, want := range tests {
		if got := whisperLanguage(in); got != want {
			t.Fatalf("whisperLanguage(%q) = %q, want %q", in, got, want)
		}
	}
}
