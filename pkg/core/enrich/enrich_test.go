package enrich

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vango-go/vai-triage/pkg/core/lookup"
	"github.com/vango-go/vai-triage/pkg/core/memory"
)

type scriptedNews struct {
	mu      sync.Mutex
	byQuery map[string][]lookup.Article
	queries []string
	err     error
}

func (n *scriptedNews) SearchNews(_ context.Context, q string, _ int) ([]lookup.Article, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.queries = append(n.queries, q)
	return n.byQuery[q], n.err
}

type scriptedWeb struct {
	out   []lookup.Article
	calls int
}

func (w *scriptedWeb) SearchWeb(context.Context, string, int) ([]lookup.Article, error) {
	w.calls++
	return w.out, nil
}

func TestBuildQueries(t *testing.T) {
	c := &lookup.Coords{Lat: 42.37361, Lon: -72.51994}
	tests := []struct {
		name   string
		loc    string
		city   string
		coords *lookup.Coords
		want   []string
	}{
		{
			name: "location and city",
			loc:  "Olympia Drive",
			city: "Amherst",
			want: []string{
				`"Olympia Drive" fire`,
				"Olympia Drive fire",
				"Olympia Drive fire last night",
				`"Olympia Drive Amherst" fire`,
				"Olympia Drive Amherst fire",
			},
		},
		{
			name:   "coords only",
			coords: c,
			want:   []string{"fire near 42.3736,-72.5199"},
		},
		{
			name: "city only",
			city: "Amherst",
			want: []string{"Amherst fire"},
		},
		{
			name: "nothing",
			want: []string{"fire"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildQueries("fire", tt.loc, tt.city, tt.coords)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("queries=%q, want %q", got, tt.want)
			}
		})
	}
}

func TestScore(t *testing.T) {
	tokens := LocationTokens("Olympia Drive")
	tests := []struct {
		blob string
		want int
	}{
		{"Fire on Olympia Drive in Amherst", 2 + 1 + 3 + 3},
		{"Apartment fire downtown", 2},
		{"Olympia team wins", 3},
		{"weather", 0},
	}
	for _, tt := range tests {
		if got := Score(tt.blob, "fire", "Amherst", tokens); got != tt.want {
			t.Fatalf("Score(%q)=%d, want %d", tt.blob, got, tt.want)
		}
	}
}

func TestLocationTokensKeepsShortTokens(t *testing.T) {
	got := LocationTokens("12 St. Mark's Pl, NY")
	want := []string{"12", "st", "mark", "s", "pl", "ny"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("tokens=%q, want %q", got, want)
	}
	if got := Score("Fire at 12 Mark Pl", "fire", "", LocationTokens("12 Mark Pl")); got != 2+3+3+3 {
		t.Fatalf("score=%d, want %d", got, 2+3+3+3)
	}
}

func TestFormatFollowUp(t *testing.T) {
	got := FormatFollowUp([]Result{
		{Title: "Fire on Olympia Drive", Source: "Gazette", URL: "https://g/1", Score: 8},
		{Title: "Low match", Score: 2},
		{Title: "Olympia Drive blaze", Score: 5},
		{Title: "Third", Score: 9},
	})
	want := "I found recent reports that may match your incident:\n" +
		"- Fire on Olympia Drive (Gazette) - https://g/1\n" +
		"- Olympia Drive blaze\n" +
		"Is any of these the incident you're experiencing? Reply 'yes' to confirm or give the exact address."
	if got != want {
		t.Fatalf("follow-up=%q\nwant %q", got, want)
	}
	if FormatFollowUp([]Result{{Title: "x", Score: 2}}) != "" {
		t.Fatal("expected no follow-up without high-confidence results")
	}
}

func TestSearch_DedupesAndStopsAtThree(t *testing.T) {
	news := &scriptedNews{byQuery: map[string][]lookup.Article{
		`"Olympia Drive" fire`: {
			{Title: "Fire on Olympia Drive"},
			{Title: "Fire on Olympia Drive"},
			{Title: "City council meets"},
		},
		"Olympia Drive fire": {
			{Title: "Olympia Drive blaze contained", Description: "fire crews"},
			{Title: "Another"},
		},
	}}
	out := Searcher{News: news}.Search(context.Background(), Request{EmergencyType: "fire", Location: "Olympia Drive"})

	if len(out) != 3 {
		t.Fatalf("results=%+v, want 3", out)
	}
	if out[0].Title != "Fire on Olympia Drive" {
		t.Fatalf("top=%q", out[0].Title)
	}
	if len(news.queries) != 2 {
		t.Fatalf("queries=%q, want stop after second", news.queries)
	}
}

func TestSearch_WebFallbackOnlyWithoutHighConfidence(t *testing.T) {
	news := &scriptedNews{err: errors.New("newsapi down")}
	web := &scriptedWeb{out: []lookup.Article{{Title: "Olympia Drive fire update", URL: "https://w/1"}}}

	out := Searcher{News: news, Web: web}.Search(context.Background(), Request{EmergencyType: "fire", Location: "Olympia Drive"})
	if len(out) != 1 || out[0].Score < 3 {
		t.Fatalf("results=%+v", out)
	}
	if web.calls != 3 {
		t.Fatalf("web calls=%d, want one per query", web.calls)
	}

	news = &scriptedNews{byQuery: map[string][]lookup.Article{
		`"Olympia Drive" fire`: {{Title: "Olympia Drive fire"}},
	}}
	web.calls = 0
	Searcher{News: news, Web: web}.Search(context.Background(), Request{EmergencyType: "fire", Location: "Olympia Drive"})
	if web.calls != 0 {
		t.Fatalf("web calls=%d, want 0 when news is confident", web.calls)
	}
}

func TestWorkerRun_AppendsFollowUp(t *testing.T) {
	sess := memory.NewSession(memory.SessionOptions{})
	news := &scriptedNews{byQuery: map[string][]lookup.Article{
		`"Olympia Drive" fire`: {{Title: "Fire on Olympia Drive", Source: "Gazette"}},
	}}
	var notified []FollowUp
	w := &Worker{Searcher: Searcher{News: news}, Notify: func(f FollowUp) { notified = append(notified, f) }}

	got := w.Run(context.Background(), sess, Request{Generation: sess.Generation(), EmergencyType: "fire", Location: "Olympia Drive"})
	if got != OutcomeFollowUp {
		t.Fatalf("outcome=%s", got)
	}
	last, _ := sess.Log.Last()
	if last.Role != memory.RoleAssistant || !strings.Contains(last.Content, "Fire on Olympia Drive (Gazette)") {
		t.Fatalf("last turn=%+v", last)
	}
	if len(notified) != 1 || len(notified[0].Results) != 1 {
		t.Fatalf("notified=%+v", notified)
	}
}

func TestWorkerRun_SilentWithoutMatch(t *testing.T) {
	sess := memory.NewSession(memory.SessionOptions{})
	w := &Worker{Searcher: Searcher{News: &scriptedNews{}}}

	if got := w.Run(context.Background(), sess, Request{EmergencyType: "fire"}); got != OutcomeNoMatch {
		t.Fatalf("outcome=%s", got)
	}
	if sess.Log.Len() != 1 {
		t.Fatalf("log len=%d, want 1", sess.Log.Len())
	}
}

func TestWorkerRun_DropsFollowUpAfterReset(t *testing.T) {
	sess := memory.NewSession(memory.SessionOptions{})
	gen := sess.Generation()
	sess.Reset()

	news := &scriptedNews{byQuery: map[string][]lookup.Article{
		`"Olympia Drive" fire`: {{Title: "Fire on Olympia Drive"}},
	}}
	w := &Worker{Searcher: Searcher{News: news}}
	if got := w.Run(context.Background(), sess, Request{Generation: gen, EmergencyType: "fire", Location: "Olympia Drive"}); got != OutcomeStale {
		t.Fatalf("outcome=%s", got)
	}
	if sess.Log.Len() != 1 {
		t.Fatalf("log len=%d, want 1", sess.Log.Len())
	}
}

func TestSupervisor_SpawnAndDrain(t *testing.T) {
	sess := memory.NewSession(memory.SessionOptions{})
	sess.Memory.Set(memory.FactIPHint, "Amherst, Massachusetts, United States")

	news := &scriptedNews{byQuery: map[string][]lookup.Article{
		`"Olympia Drive Amherst" fire`: {{Title: "Olympia Drive fire in Amherst"}},
	}}
	w := &Worker{Searcher: Searcher{News: news}, StartDelay: 10 * time.Millisecond}
	sup, err := NewSupervisor(w, 2, 4, nil)
	if err != nil {
		t.Fatalf("NewSupervisor() error = %v", err)
	}
	var mu sync.Mutex
	var outcomes []Outcome
	sup.OnOutcome = func(o Outcome) {
		mu.Lock()
		outcomes = append(outcomes, o)
		mu.Unlock()
	}

	if err := sup.Spawn(sess, "fire", "Olympia Drive"); err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sup.Drain(ctx); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}

	select {
	case f := <-sup.FollowUps():
		if f.SessionID != sess.ID {
			t.Fatalf("follow-up session=%q", f.SessionID)
		}
	default:
		t.Fatal("expected a follow-up on the channel")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(outcomes) != 1 || outcomes[0] != OutcomeFollowUp {
		t.Fatalf("outcomes=%v", outcomes)
	}
	if err := sup.Spawn(sess, "fire", ""); !errors.Is(err, ErrClosed) {
		t.Fatalf("err=%v, want ErrClosed", err)
	}
}

func TestSupervisor_RecoversPanics(t *testing.T) {
	sess := memory.NewSession(memory.SessionOptions{})
	w := &Worker{Searcher: Searcher{News: panicNews{}}}
	sup, err := NewSupervisor(w, 1, 1, nil)
	if err != nil {
		t.Fatalf("NewSupervisor() error = %v", err)
	}
	if err := sup.Spawn(sess, "fire", "x"); err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sup.Drain(ctx); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
}

type panicNews struct{}

func (panicNews) SearchNews(context.Context, string, int) ([]lookup.Article, error) {
	panic("boom")
}
