// Package flow decides how to answer each user utterance: a fixed clarification, an
// immediate safety hint, a nearby-places list, a news summary, or a model reply.
package flow

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-go/vai-triage/pkg/core/extract"
	"github.com/vango-go/vai-triage/pkg/core/llm"
	"github.com/vango-go/vai-triage/pkg/core/lookup"
	"github.com/vango-go/vai-triage/pkg/core/memory"
)

// DefaultWorkingLang is the language the conversation log and memory are kept in.
const DefaultWorkingLang = "en"

// Utterance is one transcribed or typed user turn.
type Utterance struct {
	Text string
	Lang string
	At   time.Time
}

// Branch identifies which rule produced a reply.
type Branch int

const (
	BranchLLM Branch = iota
	BranchClarify
	BranchConfirmLocation
	BranchPlaces
	BranchImmediate
	BranchNews
)

func (b Branch) String() string {
	switch b {
	case BranchClarify:
		return "clarify"
	case BranchConfirmLocation:
		return "confirm_location"
	case BranchPlaces:
		return "places"
	case BranchImmediate:
		return "immediate"
	case BranchNews:
		return "news"
	default:
		return "llm"
	}
}

// Reply is the engine's answer to one utterance.
type Reply struct {
	// Text is what should be shown or spoken, in Lang.
	Text string
	// Working is the reply in the working language, as stored in the log.
	Working string
	Lang    string
	Branch  Branch
}

// Spawner starts background enrichment without blocking the caller.
type Spawner interface {
	Spawn(sess *memory.Session, emergencyType, location string) error
}

type noopSpawner struct{}

func (noopSpawner) Spawn(*memory.Session, string, string) error { return nil }

// Config holds the Engine collaborators. Nil collaborators are treated as
// unavailable.
type Config struct {
	Extractor  *extract.Extractor
	Geocoder   lookup.Geocoder
	Places     lookup.Places
	News       lookup.News
	Prompt     *PromptBuilder
	Generator  llm.Generator
	Translator llm.Translator
	Spawner    Spawner

	WorkingLang   string
	LookupTimeout time.Duration
	// ModelTimeout bounds each Generate and Translate call.
	ModelTimeout  time.Duration
	Logger        *slog.Logger
	Tracer        trace.Tracer
}

// Engine is the response decision tree for one session.
type Engine struct {
	sess *memory.Session
	cfg  Config
}

var wherePattern = regexp.MustCompile(`(?i)\bwhere\b`)

// New creates an engine bound to sess.
func New(sess *memory.Session, cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = sess.Logger()
	}
	if cfg.Geocoder == nil {
		cfg.Geocoder = lookup.Unavailable{}
	}
	if cfg.Extractor == nil {
		cfg.Extractor = extract.New(cfg.Geocoder, extract.WithLogger(cfg.Logger))
	}
	if cfg.Places == nil {
		cfg.Places = lookup.Unavailable{}
	}
	if cfg.News == nil {
		cfg.News = lookup.Unavailable{}
	}
	if cfg.Prompt == nil {
		cfg.Prompt = &PromptBuilder{News: cfg.News, Places: cfg.Places, Logger: cfg.Logger}
	}
	if cfg.Generator == nil {
		cfg.Generator = llm.Unavailable{}
	}
	if cfg.Translator == nil {
		cfg.Translator = llm.IdentityTranslator{}
	}
	if cfg.Spawner == nil {
		cfg.Spawner = noopSpawner{}
	}
	if cfg.WorkingLang == "" {
		cfg.WorkingLang = DefaultWorkingLang
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = DefaultLookupTimeout
	}
	if cfg.ModelTimeout <= 0 {
		cfg.ModelTimeout = DefaultModelTimeout
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("github.com/vango-go/vai-triage/pkg/core/flow")
	}
	return &Engine{sess: sess, cfg: cfg}
}

// Session returns the session the engine operates on.
func (e *Engine) Session() *memory.Session { return e.sess }

// Respond records the utterance, updates memory and produces the reply. Only a
// cancelled context is reported as an error; every collaborator failure degrades to
// a fixed reply.
func (e *Engine) Respond(ctx context.Context, u Utterance) (Reply, error) {
	ctx, span := e.cfg.Tracer.Start(ctx, "flow.respond")
	defer span.End()

	lang := u.Lang
	if lang == "" {
		lang = e.cfg.WorkingLang
	}
	e.sess.Memory.Set(memory.FactUserLang, lang)

	text := u.Text
	if lang != e.cfg.WorkingLang {
		if tr, err := e.translate(ctx, text, e.cfg.WorkingLang); err != nil {
			e.cfg.Logger.Warn("inbound translation failed; using original text", "lang", lang, "error", err)
		} else if tr != "" {
			text = tr
		}
	}

	e.sess.Log.Append(memory.RoleUser, text)
	e.cfg.Extractor.Extract(ctx, e.sess.Memory, text)

	working, branch := e.decide(ctx, text)
	if err := ctx.Err(); err != nil {
		return Reply{}, err
	}
	e.sess.Log.Append(memory.RoleAssistant, working)
	span.SetAttributes(attribute.String("branch", branch.String()))
	e.cfg.Logger.Info("reply ready", "branch", branch.String(), "lang", lang)

	out := working
	if lang != e.cfg.WorkingLang {
		if tr, err := e.translate(ctx, working, lang); err != nil {
			e.cfg.Logger.Warn("outbound translation failed; replying untranslated", "lang", lang, "error", err)
		} else if tr != "" {
			out = tr
		}
	}
	return Reply{Text: out, Working: working, Lang: lang, Branch: branch}, nil
}

func (e *Engine) decide(ctx context.Context, text string) (string, Branch) {
	mem := e.sess.Memory
	snap := mem.Snapshot()
	where := wherePattern.MatchString(text)
	loc := snap.Get(memory.FactLocation)
	partial := snap.Get(memory.FactLocationPartial)
	et := snap.Get(memory.FactEmergencyType)
	hasCoords := snap.Coords != nil

	if where && !hasCoords && (loc == "" || partial != "") {
		return clarifyText, BranchClarify
	}
	if partial != "" && !hasCoords {
		return confirmLocationText(partial), BranchConfirmLocation
	}
	if where {
		if coords, ok := e.resolveCoords(ctx, snap); ok {
			return e.placesReply(ctx, et, coords), BranchPlaces
		}
	}
	if et != "" && extract.MentionsType(et, text) {
		if err := e.cfg.Spawner.Spawn(e.sess, et, loc); err != nil {
			e.cfg.Logger.Warn("enrichment not spawned", "error", err)
		}
		return ImmediateHint(et), BranchImmediate
	}
	if where && loc != "" {
		if reply, ok := e.newsReply(ctx, loc, et, snap.City()); ok {
			return reply, BranchNews
		}
	}
	return e.generate(ctx), BranchLLM
}

func (e *Engine) resolveCoords(ctx context.Context, snap memory.Snapshot) (lookup.Coords, bool) {
	if snap.Coords != nil {
		return *snap.Coords, true
	}
	loc := snap.Get(memory.FactLocation)
	if loc == "" {
		return lookup.Coords{}, false
	}
	gctx, cancel := context.WithTimeout(ctx, e.cfg.LookupTimeout)
	defer cancel()
	c, err := e.cfg.Geocoder.Geocode(gctx, loc)
	if err != nil {
		e.cfg.Logger.Debug("stored location not geocoded", "location", loc, "error", err)
		return lookup.Coords{}, false
	}
	e.sess.Memory.SetCoords(c)
	return c, true
}

func (e *Engine) placesReply(ctx context.Context, et string, at lookup.Coords) string {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.LookupTimeout)
	defer cancel()

	places, err := e.cfg.Places.Nearby(ctx, at, PlaceIntents(et))
	if err != nil {
		if !errors.Is(err, lookup.ErrUnavailable) {
			e.cfg.Logger.Warn("places lookup failed", "error", err)
			return placesErrorText
		}
		return placesEmptyText
	}
	return FormatPlaces(RankPlaces(et, places))
}

func (e *Engine) newsReply(ctx context.Context, loc, et, city string) (string, bool) {
	if lookup.IsUnavailable(e.cfg.News) {
		return "", false
	}
	ctx, cancel := context.WithTimeout(ctx, e.cfg.LookupTimeout)
	defer cancel()

	articles, err := collectNews(ctx, e.cfg.News, NewsQueries(loc, et, city), newsPageSize, maxNewsItems, e.cfg.Logger)
	if err != nil || len(articles) == 0 {
		return "", false
	}
	return FormatNews(articles), true
}

func (e *Engine) generate(ctx context.Context) string {
	prompt := e.cfg.Prompt.Build(ctx, e.sess)
	gctx, cancel := context.WithTimeout(ctx, e.cfg.ModelTimeout)
	defer cancel()
	out, err := e.cfg.Generator.Generate(gctx, prompt)
	if err != nil {
		e.cfg.Logger.Warn("model reply failed; using fallback", "error", err)
		return FallbackText
	}
	return out
}

func (e *Engine) translate(ctx context.Context, text, lang string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ModelTimeout)
	defer cancel()
	return e.cfg.Translator.Translate(ctx, text, lang)
}
