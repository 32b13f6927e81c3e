package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/vango-go/vai-triage/pkg/adapters/exa"
	"github.com/vango-go/vai-triage/pkg/adapters/gnews"
	"github.com/vango-go/vai-triage/pkg/adapters/gplaces"
	"github.com/vango-go/vai-triage/pkg/adapters/ipapi"
	"github.com/vango-go/vai-triage/pkg/adapters/newsapi"
	"github.com/vango-go/vai-triage/pkg/adapters/nominatim"
	"github.com/vango-go/vai-triage/pkg/adapters/nws"
	"github.com/vango-go/vai-triage/pkg/adapters/tavily"
	"github.com/vango-go/vai-triage/pkg/config"
	"github.com/vango-go/vai-triage/pkg/core/enrich"
	"github.com/vango-go/vai-triage/pkg/core/extract"
	"github.com/vango-go/vai-triage/pkg/core/flow"
	"github.com/vango-go/vai-triage/pkg/core/live"
	"github.com/vango-go/vai-triage/pkg/core/llm"
	"github.com/vango-go/vai-triage/pkg/core/lookup"
	"github.com/vango-go/vai-triage/pkg/core/memory"
	"github.com/vango-go/vai-triage/pkg/core/turn"
	"github.com/vango-go/vai-triage/pkg/core/voice/stt"
	"github.com/vango-go/vai-triage/pkg/core/voice/tts"
	"github.com/vango-go/vai-triage/pkg/sink"
)

// providers are the external collaborators, selected once from configuration.
type providers struct {
	Generator  llm.Generator
	Translator llm.Translator
	STT        stt.Provider
	TTS        tts.Provider
	Geocoder   lookup.Geocoder
	Alerts     lookup.Alerts
	News       lookup.News
	Places     lookup.Places
	Web        lookup.WebSearch
	IP         lookup.IPLocator
}

func newProviders(ctx context.Context, cfg config.Config, rt *runtime) (*providers, error) {
	logger := rt.logger
	hc := &http.Client{Timeout: cfg.LookupTimeout + 2*time.Second}
	llmHC := &http.Client{Timeout: cfg.LLMTimeout + 5*time.Second}
	p := &providers{}

	switch cfg.LLMProvider {
	case "gemini":
		if cfg.Keys.Gemini == "" {
			logger.Warn("GEMINI_API_KEY not set; model replies use the fallback text")
			break
		}
		opts := []llm.GeminiOption{llm.WithGeminiHTTPClient(llmHC)}
		if cfg.LLMModel != "" {
			opts = append(opts, llm.WithGeminiModel(cfg.LLMModel))
		}
		g, err := llm.NewGemini(ctx, cfg.Keys.Gemini, opts...)
		if err != nil {
			return nil, err
		}
		p.Generator = g
	case "openai":
		if cfg.Keys.OpenAI == "" {
			logger.Warn("OPENAI_API_KEY not set; model replies use the fallback text")
			break
		}
		p.Generator = llm.NewOpenAI(cfg.Keys.OpenAI, cfg.OpenAIBaseURL, cfg.LLMModel, llmHC)
	}
	if p.Generator == nil {
		p.Generator = llm.Unavailable{}
		p.Translator = llm.IdentityTranslator{}
	} else {
		p.Translator = llm.GeneratorTranslator{Generator: p.Generator}
	}

	p.STT = stt.Unavailable{}
	switch {
	case cfg.STTProvider == "elevenlabs" && cfg.Keys.ElevenLabs != "":
		p.STT = stt.NewElevenLabs(cfg.Keys.ElevenLabs)
	case cfg.STTProvider == "cartesia" && cfg.Keys.Cartesia != "":
		p.STT = stt.NewCartesia(cfg.Keys.Cartesia)
	case cfg.STTProvider != "none":
		logger.Warn("speech recognition key not set; captured speech is ignored", "provider", cfg.STTProvider)
	}

	p.TTS = tts.Unavailable{}
	switch {
	case cfg.TTSProvider == "elevenlabs" && cfg.Keys.ElevenLabs != "":
		p.TTS = tts.NewElevenLabs(cfg.Keys.ElevenLabs)
	case cfg.TTSProvider == "cartesia" && cfg.Keys.Cartesia != "":
		p.TTS = tts.NewCartesia(cfg.Keys.Cartesia)
	case cfg.TTSProvider != "none":
		logger.Warn("speech synthesis key not set; replies are not spoken", "provider", cfg.TTSProvider)
	}

	cache := newCache(ctx, cfg, rt)
	cached := lookup.Cached{Cache: cache, TTL: cfg.CacheTTL}
	observe := func(name string) lookup.Observed {
		return lookup.Observed{Provider: name, Observe: rt.metrics.RecordLookup}
	}

	var geocoder lookup.Geocoder = nominatim.NewClient(cfg.UserAgent, "", hc)
	geocoder = observe("nominatim").Geocoder(geocoder)
	geocoder = lookup.NewRateLimitedGeocoder(geocoder, rate.Limit(cfg.GeocodeRPS), 1)
	p.Geocoder = cached.Geocoder(geocoder)

	p.Alerts = cached.Alerts(observe("nws").Alerts(nws.NewClient(cfg.UserAgent, "", hc)))

	news := lookup.FallbackNews{Secondary: observe("google_news").News(gnews.NewClient("", hc))}
	if na := newsapi.NewClient(cfg.Keys.NewsAPI, "", hc); na.Configured() {
		news.Primary = observe("newsapi").News(na)
	}
	p.News = cached.News(news)

	p.Places = lookup.Unavailable{}
	if gp := gplaces.NewClient(cfg.Keys.GoogleMaps, "", hc); gp.Configured() {
		p.Places = cached.Places(observe("google_places").Places(gp))
	}

	var web lookup.FallbackWeb
	if tv := tavily.NewClient(cfg.Keys.Tavily, "", hc); tv.Configured() {
		web.Primary = observe("tavily").Web(tv)
	}
	if ex := exa.NewClient(cfg.Keys.Exa, "", hc); ex.Configured() {
		web.Secondary = observe("exa").Web(ex)
	}
	switch {
	case web.Primary == nil && web.Secondary == nil:
		p.Web = lookup.Unavailable{}
	case web.Primary == nil:
		p.Web = web.Secondary
	default:
		p.Web = web
	}

	p.IP = lookup.Unavailable{}
	if cfg.DetectIP {
		p.IP = ipapi.NewClient("", hc)
	}
	return p, nil
}

// newCache returns a Redis cache when one is configured and reachable, otherwise
// an in-process cache. A zero TTL disables caching.
func newCache(ctx context.Context, cfg config.Config, rt *runtime) lookup.Cache {
	if cfg.CacheTTL <= 0 {
		return nil
	}
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			rt.logger.Warn("invalid redis url; using in-memory cache", "error", err)
			return lookup.NewMemoryCache(time.Now)
		}
		client := redis.NewClient(opts)
		rc := lookup.NewRedisCache(client, "triage:")
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := rc.Ping(pingCtx); err != nil {
			rt.logger.Warn("redis unreachable; using in-memory cache", "error", err)
			_ = client.Close()
			return lookup.NewMemoryCache(time.Now)
		}
		rt.onClose(func(context.Context) error { return client.Close() })
		return rc
	}
	return lookup.NewMemoryCache(time.Now)
}

// app is one assistant session and everything that serves it.
type app struct {
	cfg       config.Config
	logger    *slog.Logger
	rt        *runtime
	p         *providers
	session   *memory.Session
	extractor *extract.Extractor
	prompt    *flow.PromptBuilder
	engine    *flow.Engine
	enrich    *enrich.Supervisor
	sink      sink.Sink
}

func newApp(ctx context.Context, rt *runtime, p *providers) (*app, error) {
	cfg, logger := rt.cfg, rt.logger

	var defaults memory.IPDefaults
	if !lookup.IsUnavailable(p.IP) {
		ipCtx, cancel := context.WithTimeout(ctx, cfg.LookupTimeout)
		info, err := p.IP.Locate(ipCtx)
		cancel()
		if err != nil {
			logger.Warn("ip geolocation failed", "error", err)
		} else {
			defaults = memory.DefaultsFromIP(info)
			logger.Info("ip location", "hint", defaults.Hint)
		}
	}
	sess := memory.NewSession(memory.SessionOptions{Defaults: defaults, Logger: logger})

	a := &app{cfg: cfg, logger: sess.Logger(), rt: rt, p: p, session: sess}
	a.extractor = extract.New(p.Geocoder, extract.WithGeocodeTimeout(cfg.LookupTimeout), extract.WithLogger(a.logger))
	a.prompt = &flow.PromptBuilder{
		Alerts:        p.Alerts,
		News:          p.News,
		Places:        p.Places,
		LookupTimeout: cfg.LookupTimeout,
		Logger:        a.logger,
	}

	worker := &enrich.Worker{
		Searcher:   enrich.Searcher{News: p.News, Web: p.Web, Logger: a.logger},
		StartDelay: cfg.EnrichStartDelay,
		Timeout:    cfg.EnrichTimeout,
		Logger:     a.logger,
	}
	sup, err := enrich.NewSupervisor(worker, cfg.EnrichPoolSize, 8, a.logger)
	if err != nil {
		return nil, err
	}
	sup.OnOutcome = func(o enrich.Outcome) {
		rt.metrics.RecordEnrichment(string(o))
		rt.metrics.SetEnrichmentRunning(sup.Running())
	}
	a.enrich = sup
	rt.onClose(sup.Drain)

	a.engine = flow.New(sess, flow.Config{
		Extractor:     a.extractor,
		Geocoder:      p.Geocoder,
		Places:        p.Places,
		News:          p.News,
		Prompt:        a.prompt,
		Generator:     p.Generator,
		Translator:    p.Translator,
		Spawner:       sup,
		WorkingLang:   cfg.WorkingLang,
		LookupTimeout: cfg.LookupTimeout,
		ModelTimeout:  cfg.LLMTimeout,
		Logger:        a.logger,
	})

	s, err := newSink(cfg)
	if err != nil {
		return nil, err
	}
	a.sink = s
	rt.onClose(func(context.Context) error { return s.Close() })
	return a, nil
}

func newSink(cfg config.Config) (sink.Sink, error) {
	var sinks sink.Tee
	if cfg.StateFile != "" {
		fs, err := sink.NewFileSink(cfg.StateFile)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, fs)
	}
	if cfg.HistoryDB != "" {
		db, err := sink.NewSQLiteSink(cfg.HistoryDB)
		if err != nil {
			return nil, fmt.Errorf("open history db: %w", err)
		}
		sinks = append(sinks, db)
	}
	return sinks, nil
}

// newController builds a turn controller for the session. player may be nil.
func (a *app) newController(player turn.Player, mute *live.MuteWindow) (*turn.Controller, error) {
	gran, err := turn.ParseGranularity(a.cfg.Granularity)
	if err != nil {
		return nil, err
	}
	return turn.New(turn.Config{
		SessionID:     a.session.ID,
		Responder:     a.engine,
		STT:           a.p.STT,
		TTS:           a.p.TTS,
		Player:        player,
		Mute:          mute,
		Voice:         a.cfg.Voice,
		CaptureRate:   live.DefaultAudioConfig().SampleRate,
		PlaybackRate:  a.cfg.PlaybackRate,
		MaxChunkChars: a.cfg.MaxChunkChars,
		MuteGuard:     a.cfg.MuteGuard,
		Granularity:   gran,
		PollInterval:  a.cfg.PollInterval,
		Logger:        a.logger,
	})
}

// record persists and counts a finished turn.
func (a *app) record(ctx context.Context, ev turn.TurnEvent) {
	a.rt.metrics.RecordTurn(ev)
	entry := sink.Entry{
		TurnID:    ev.ID,
		SessionID: ev.SessionID,
		Branch:    ev.Branch,
		At:        ev.StartedAt,
		Record:    sink.RecordFromSnapshot(ev.Reply, a.session.Memory.Snapshot()),
	}
	if err := a.sink.Save(context.WithoutCancel(ctx), entry); err != nil {
		a.logger.Warn("state not persisted", "error", err)
	}
}

// serve runs the controller until ctx is done, recording every turn and handing
// it to onTurn. Follow-ups are handed to onFollowUp.
func (a *app) serve(ctx context.Context, ctrl *turn.Controller, segments <-chan live.Segment, onTurn func(turn.TurnEvent), onFollowUp func(enrich.FollowUp)) error {
	errCh := make(chan error, 1)
	go func() { errCh <- ctrl.Run(ctx, segments) }()

	for {
		select {
		case ev, ok := <-ctrl.Events():
			if !ok {
				return <-errCh
			}
			a.record(ctx, ev)
			if onTurn != nil {
				onTurn(ev)
			}
		case f := <-a.enrich.FollowUps():
			if onFollowUp != nil {
				onFollowUp(f)
			}
		}
	}
}
