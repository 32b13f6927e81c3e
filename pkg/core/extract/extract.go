// Package extract turns free-form utterances into structured conversation facts.
package extract

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/vango-go/vai-triage/pkg/core/lookup"
	"github.com/vango-go/vai-triage/pkg/core/memory"
)

// DefaultGeocodeTimeout bounds the geocoding call made for a location candidate.
const DefaultGeocodeTimeout = 4 * time.Second

type category struct {
	name     string
	keywords []string
	patterns []*regexp.Regexp
}

func newCategory(name string, keywords ...string) category {
	c := category{name: name, keywords: keywords}
	for _, k := range keywords {
		c.patterns = append(c.patterns, wordPattern(k))
	}
	return c
}

func (c category) matches(text string) bool {
	for _, p := range c.patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

func wordPattern(word string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
}

// EmergencyCategories are evaluated in order; the first match wins.
var EmergencyCategories = []category{
	newCategory("fire", "fire", "smoke", "burning"),
	newCategory("flood", "flood", "flooding", "water rising"),
	newCategory("earthquake", "earthquake", "tremor", "shaking"),
	newCategory("medical", "injured", "bleeding", "unconscious", "heart attack", "collapse"),
	newCategory("storm", "tornado", "hurricane", "storm", "wind"),
}

var vulnerabilityCategories = []category{
	newCategory("child", "child", "kid", "baby"),
	newCategory("elderly", "elderly", "old", "senior"),
	newCategory("pregnant", "pregnant", "expecting"),
}

var (
	hazardKeywords      = wordList("gas leak", "weapon", "gun", "knife", "electric", "collapsed")
	environmentKeywords = wordList("apartment", "house", "room", "bathroom", "kitchen", "garage", "car", "building", "office", "school", "street")

	prepositionPattern = regexp.MustCompile(`(?i)\b(?:at|near|around|by|in|on)\b`)
	candidateStop      = regexp.MustCompile(`[.,;?!\n]`)
	whitespace         = regexp.MustCompile(`\s+`)
	alonePattern       = wordPattern("alone")
	countPattern       = regexp.MustCompile(`(?i)\b(\d+)\s+(?:people|persons|others)\b`)
)

var possessives = map[string]bool{
	"my": true, "our": true, "your": true, "his": true, "her": true, "their": true,
}

type keyword struct {
	word    string
	pattern *regexp.Regexp
}

func wordList(words ...string) []keyword {
	out := make([]keyword, 0, len(words))
	for _, w := range words {
		out = append(out, keyword{word: w, pattern: wordPattern(w)})
	}
	return out
}

func firstKeyword(list []keyword, text string) string {
	for _, k := range list {
		if k.pattern.MatchString(text) {
			return k.word
		}
	}
	return ""
}

// KeywordsFor returns the trigger keywords of an emergency type.
func KeywordsFor(emergencyType string) []string {
	for _, c := range EmergencyCategories {
		if c.name == emergencyType {
			return c.keywords
		}
	}
	return nil
}

// MentionsType reports whether text contains one of the trigger keywords of
// emergencyType as a whole word.
func MentionsType(emergencyType, text string) bool {
	for _, c := range EmergencyCategories {
		if c.name == emergencyType {
			return c.matches(text)
		}
	}
	return false
}

// Extractor updates a Memory from one utterance.
type Extractor struct {
	geocoder lookup.Geocoder
	timeout  time.Duration
	logger   *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithGeocodeTimeout overrides DefaultGeocodeTimeout.
func WithGeocodeTimeout(d time.Duration) Option {
	return func(e *Extractor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an extractor. A nil geocoder behaves like lookup.Unavailable.
func New(geocoder lookup.Geocoder, opts ...Option) *Extractor {
	if geocoder == nil {
		geocoder = lookup.Unavailable{}
	}
	e := &Extractor{
		geocoder: geocoder,
		timeout:  DefaultGeocodeTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract applies every rule to text in a fixed order and returns the mutations it
// made. Extraction never fails; provider errors only narrow what gets stored.
func (e *Extractor) Extract(ctx context.Context, mem *memory.Memory, text string) (changes []memory.Change) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("extraction panicked", "panic", r)
		}
	}()

	set := func(f memory.Fact, v string) {
		if mem.Set(f, v) {
			changes = append(changes, memory.Change{Fact: f, Value: v})
		}
	}

	for _, c := range EmergencyCategories {
		if c.matches(text) {
			set(memory.FactEmergencyType, c.name)
			break
		}
	}
	for _, c := range vulnerabilityCategories {
		if c.matches(text) {
			set(memory.FactVulnerability, c.name)
			break
		}
	}

	if loc := LocationCandidate(text); loc != "" && loc != mem.Get(memory.FactLocation) {
		changes = append(changes, e.resolveLocation(ctx, mem, loc)...)
	}

	if alonePattern.MatchString(text) {
		set(memory.FactPeople, "alone")
	} else if m := countPattern.FindStringSubmatch(text); m != nil {
		set(memory.FactPeople, m[1]+" people")
	}

	if h := firstKeyword(hazardKeywords, text); h != "" {
		set(memory.FactHazards, h)
	}
	if env := firstKeyword(environmentKeywords, text); env != "" {
		set(memory.FactEnvironment, env)
	}
	return changes
}

func (e *Extractor) resolveLocation(ctx context.Context, mem *memory.Memory, loc string) []memory.Change {
	var changes []memory.Change
	set := func(f memory.Fact, v string) {
		if mem.Set(f, v) {
			changes = append(changes, memory.Change{Fact: f, Value: v})
		}
	}

	gctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	coords, err := e.geocoder.Geocode(gctx, loc)
	switch {
	case err == nil:
		set(memory.FactLocation, loc)
		if mem.SetCoords(coords) {
			changes = append(changes, memory.Change{Fact: memory.FactCoords, Value: coords.String()})
		}
		set(memory.FactLocationPartial, "")
	case isFragment(loc):
		e.logger.Debug("location not resolved; keeping partial", "candidate", loc, "error", err)
		set(memory.FactLocationPartial, loc)
	default:
		e.logger.Debug("location not resolved", "candidate", loc, "error", err)
		set(memory.FactLocation, loc)
		set(memory.FactLocationPartial, "")
	}
	return changes
}

func isFragment(loc string) bool {
	return len(loc) < 6 || len(strings.Fields(loc)) == 1
}

// LocationCandidate returns the last place phrase introduced by a preposition, or ""
// when there is none. Phrases about the caller's own premises ("in my kitchen") are
// not locations.
func LocationCandidate(text string) string {
	idx := prepositionPattern.FindAllStringIndex(text, -1)
	candidate := ""
	for i, m := range idx {
		end := len(text)
		if i+1 < len(idx) {
			end = idx[i+1][0]
		}
		span := text[m[1]:end]
		if cut := candidateStop.FindStringIndex(span); cut != nil {
			span = span[:cut[0]]
		}
		span = strings.TrimSpace(whitespace.ReplaceAllString(span, " "))
		if span == "" {
			continue
		}
		first := strings.ToLower(strings.Fields(span)[0])
		if possessives[first] {
			continue
		}
		candidate = span
	}
	return candidate
}
