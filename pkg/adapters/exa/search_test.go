package exa

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vango-go/vai-triage/pkg/core/lookup"
)

func TestClientSearchWeb_Success(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "exa-key" {
			t.Errorf("x-api-key=%q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[
			{"title":"Levee breach","url":"https://www.example.com/a","summary":"River over banks"},
			{"title":"Shelter open","url":"https://news.example.org/b","highlights":["Gym open tonight"],"text":"long"},
			{"title":"Road closed","url":"https://example.net/c","text":"Route 9 closed"}
		]}`))
	}))
	defer ts.Close()

	client := NewClient("exa-key", ts.URL, ts.Client())
	got, err := client.SearchWeb(context.Background(), "flood Amherst", 8)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len=%d", len(got))
	}
	if got[0].Source != "example.com" || got[0].Description != "River over banks" {
		t.Fatalf("first=%+v", got[0])
	}
	if got[1].Description != "Gym open tonight" || got[2].Description != "Route 9 closed" {
		t.Fatalf("descriptions=%q %q", got[1].Description, got[2].Description)
	}
	if gotBody["query"] != "flood Amherst" || gotBody["numResults"] != float64(8) || gotBody["category"] != "news" {
		t.Fatalf("body=%v", gotBody)
	}
}

func TestClientSearchWeb_Non200(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`upstream exploded`))
	}))
	defer ts.Close()

	client := NewClient("exa-key", ts.URL, ts.Client())
	if _, err := client.SearchWeb(context.Background(), "flood", 5); err == nil {
		t.Fatal("expected error")
	}
}

func TestClientSearchWeb_Unconfigured(t *testing.T) {
	_, err := NewClient(" ", "", nil).SearchWeb(context.Background(), "flood", 5)
	if !errors.Is(err, lookup.ErrUnavailable) {
		t.Fatalf("err=%v, want unavailable", err)
	}
}
