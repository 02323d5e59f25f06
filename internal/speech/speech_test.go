package speech

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type slowReader struct {
	reads [][]byte
	pos   int
}

func (r *slowReader) Read(p []byte) (int, error) {
	// Exercise the n==0, err==nil path Recv must loop over.
	if r.pos%2 == 0 && r.pos < len(r.reads) {
		r.pos++
		return 0, nil
	}
	idx := r.pos / 2
	if idx >= len(r.reads) {
		return 0, io.EOF
	}
	n := copy(p, r.reads[idx])
	r.pos++
	return n, nil
}

func (r *slowReader) Close() error { return nil }

func TestReaderStreamChunksAndEOF(t *testing.T) {
	rc := &slowReader{reads: [][]byte{[]byte("first"), []byte("second")}}
	s := newReaderStream(rc)

	got1, err := s.Recv()
	if err != nil || string(got1) != "first" {
		t.Fatalf("Recv 1 = (%q, %v), want first", got1, err)
	}
	got2, err := s.Recv()
	if err != nil || string(got2) != "second" {
		t.Fatalf("Recv 2 = (%q, %v), want second", got2, err)
	}
	if _, err := s.Recv(); err != io.EOF {
		t.Fatalf("Recv 3 err = %v, want io.EOF", err)
	}
}

func TestElevenLabsStreamDecodesChunks(t *testing.T) {
	audio1 := []byte{1, 2, 3, 4}
	audio2 := []byte{9, 8, 7}

	var gotPath, gotKey string
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("xi-api-key")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)

		w.Header().Set("Content-Type", "application/json")
		// Stream of JSON objects: audio, timestamp-only, audio.
		fmt.Fprintf(w, `{"audio_base64":%q}`, base64.StdEncoding.EncodeToString(audio1))
		fmt.Fprint(w, `{"alignment":{"chars":["a"]}}`)
		fmt.Fprintf(w, `{"audio_base64":%q}`, base64.StdEncoding.EncodeToString(audio2))
	}))
	defer srv.Close()

	synth := NewElevenLabs("secret-key", "voice-1")
	synth.baseURL = srv.URL

	stream, err := synth.Synthesize(context.Background(), "hello there")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	defer stream.Close()

	chunk, err := stream.Recv()
	if err != nil || string(chunk) != string(audio1) {
		t.Fatalf("Recv 1 = (%v, %v), want %v", chunk, err, audio1)
	}
	chunk, err = stream.Recv()
	if err != nil || string(chunk) != string(audio2) {
		t.Fatalf("Recv 2 = (%v, %v), want %v (timestamp object skipped)", chunk, err, audio2)
	}
	if _, err := stream.Recv(); err != io.EOF {
		t.Fatalf("Recv 3 err = %v, want io.EOF", err)
	}

	if gotPath != "/v1/text-to-speech/voice-1/stream/with-timestamps" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "secret-key" {
		t.Errorf("xi-api-key = %q", gotKey)
	}
	if !strings.Contains(gotBody, `"text":"hello there"`) {
		t.Errorf("request body = %q, missing text", gotBody)
	}
}

func TestElevenLabsSurfacesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "voice not found", http.StatusNotFound)
	}))
	defer srv.Close()

	synth := NewElevenLabs("k", "missing-voice")
	synth.baseURL = srv.URL

	_, err := synth.Synthesize(context.Background(), "hi")
	if err == nil {
		t.Fatal("Synthesize should fail on non-200")
	}
	if !strings.Contains(err.Error(), "voice not found") {
		t.Errorf("error %q should carry the response detail", err)
	}
}

func TestFakeSynthesizerHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stream, err := NewFake(2).Synthesize(ctx, "x")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	if _, err := stream.Recv(); err != nil {
		t.Fatalf("Recv 1 failed: %v", err)
	}

	cancel()
	if _, err := stream.Recv(); err == nil {
		t.Fatal("Recv after cancel should fail")
	}
}
