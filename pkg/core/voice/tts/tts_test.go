package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestElevenLabs_SynthesizeCollectsFrames(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("xi-api-key") != "k" {
			t.Errorf("xi-api-key=%q", r.Header.Get("xi-api-key"))
		}
		if !strings.Contains(r.URL.Path, "/voice-1/") {
			t.Errorf("path=%q", r.URL.Path)
		}
		if got := r.URL.Query().Get("output_format"); got != "pcm_24000" {
			t.Errorf("output_format=%q", got)
		}
		if got := r.URL.Query().Get("model_id"); got != "eleven_flash_v2_5" {
			t.Errorf("model_id=%q", got)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var texts []string
		for i := 0; i < 3; i++ {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				t.Errorf("read: %v", err)
				return
			}
			texts = append(texts, msg["text"].(string))
		}
		if texts[1] != "Stay calm. " || texts[2] != "" {
			t.Errorf("texts=%q", texts)
		}
		for _, chunk := range [][]byte{{1, 2}, {3, 4}} {
			_ = conn.WriteJSON(map[string]any{"audio": base64.StdEncoding.EncodeToString(chunk)})
		}
		_ = conn.WriteJSON(map[string]any{"isFinal": true})
	}))
	defer srv.Close()

	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/text-to-speech/{voice_id}/stream-input"
	p := NewElevenLabs("k").WithWSBaseURL(base)
	got, err := p.Synthesize(context.Background(), "Stay calm.", SynthesizeOptions{Voice: "voice-1"})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if !bytes.Equal(got.Audio, []byte{1, 2, 3, 4}) || got.SampleRate != 24000 {
		t.Fatalf("synthesis=%+v", got)
	}
}

func TestElevenLabs_ServerErrorMessage(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(map[string]any{"error": "quota_exceeded", "message": "no credits"})
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/text-to-speech/{voice_id}/stream-input"
	_, err := NewElevenLabs("k").WithWSBaseURL(base).Synthesize(context.Background(), "hi", SynthesizeOptions{})
	if err == nil || !strings.Contains(err.Error(), "quota_exceeded") {
		t.Fatalf("err=%v", err)
	}
}

func TestBuildElevenLabsWSURL(t *testing.T) {
	got, err := buildElevenLabsWSURL("", "abc", 16000, "es")
	if err != nil {
		t.Fatalf("buildElevenLabsWSURL() error = %v", err)
	}
	for _, want := range []string{"wss://api.elevenlabs.io/v1/text-to-speech/abc/stream-input", "output_format=pcm_16000", "language_code=es"} {
		if !strings.Contains(got, want) {
			t.Fatalf("url=%q missing %q", got, want)
		}
	}
}

func TestCartesia_SynthesizeRequestsRawPCM(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tts/bytes" {
			t.Errorf("path=%q", r.URL.Path)
		}
		var req cartesiaTTSRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
			return
		}
		if req.OutputFormat.Container != "raw" || req.OutputFormat.Encoding != "pcm_s16le" || req.OutputFormat.SampleRate != 24000 {
			t.Errorf("output_format=%+v", req.OutputFormat)
		}
		if req.Voice.ID != defaultVoiceID || req.Transcript != "Move uphill." {
			t.Errorf("request=%+v", req)
		}
		_, _ = w.Write([]byte{9, 9, 9, 9})
	}))
	defer srv.Close()

	p := NewCartesiaWithClient("k", srv.Client()).WithBaseURL(srv.URL)
	got, err := p.Synthesize(context.Background(), "Move uphill.", SynthesizeOptions{})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if len(got.Audio) != 4 {
		t.Fatalf("audio=%v", got.Audio)
	}
}

func TestCartesia_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad voice", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewCartesiaWithClient("k", srv.Client()).WithBaseURL(srv.URL).Synthesize(context.Background(), "x", SynthesizeOptions{})
	if err == nil || !strings.Contains(err.Error(), "cartesia error 400") {
		t.Fatalf("err=%v", err)
	}
}

func TestSynthesisDuration(t *testing.T) {
	s := &Synthesis{Audio: make([]byte, 48000), SampleRate: 24000}
	if s.Duration() != time.Second {
		t.Fatalf("duration=%v", s.Duration())
	}
	var nilSynth *Synthesis
	if nilSynth.Duration() != 0 {
		t.Fatal("nil synthesis should have zero duration")
	}
}

func TestUnavailable(t *testing.T) {
	if _, err := (Unavailable{}).Synthesize(context.Background(), "x", SynthesizeOptions{}); err != ErrUnavailable {
		t.Fatalf("err=%v", err)
	}
}
