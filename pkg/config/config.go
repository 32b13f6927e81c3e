// Package config resolves runtime settings from defaults, an optional config
// file and the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every setting's environment variable, e.g. TRIAGE_LLM_PROVIDER.
const EnvPrefix = "TRIAGE"

type Keys struct {
	Gemini     string
	OpenAI     string
	ElevenLabs string
	Cartesia   string
	NewsAPI    string
	GoogleMaps string
	Tavily     string
	Exa        string
}

type Config struct {
	Keys Keys

	// Collaborator selection: "gemini", "openai" or "none" for the LLM;
	// "elevenlabs", "cartesia" or "none" for speech.
	LLMProvider   string
	LLMModel      string
	OpenAIBaseURL string
	// LLMTimeout bounds each model or translation call.
	LLMTimeout    time.Duration
	STTProvider   string
	TTSProvider   string
	Voice         string
	WorkingLang   string

	// Capture and playback.
	SilenceTimeout  time.Duration
	MinUtterance    time.Duration
	MaxSegment      time.Duration
	EnergyThreshold float64
	PeakThreshold   float64
	PlaybackRate    int
	MaxChunkChars   int
	MuteGuard       time.Duration
	Granularity     string
	PollInterval    time.Duration

	// Lookups.
	LookupTimeout time.Duration
	CacheTTL      time.Duration
	RedisURL      string
	UserAgent     string
	GeocodeRPS    float64
	DetectIP      bool

	// Enrichment.
	EnrichPoolSize   int
	EnrichStartDelay time.Duration
	EnrichTimeout    time.Duration

	// Outputs.
	StateFile   string
	HistoryDB   string
	LogLevel    slog.Level
	LogFile     string
	MetricsAddr string
	Trace       bool
}

// keyEnv lists the conventional variable names accepted for each provider key
// in addition to the prefixed one.
var keyEnv = map[string][]string{
	"keys.gemini":     {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"keys.openai":     {"OPENAI_API_KEY"},
	"keys.elevenlabs": {"ELEVEN_API_KEY", "ELEVENLABS_API_KEY"},
	"keys.cartesia":   {"CARTESIA_API_KEY"},
	"keys.newsapi":    {"NEWS_API_KEY", "NEWSAPI_KEY"},
	"keys.googlemaps": {"GOOGLE_MAPS_API_KEY"},
	"keys.tavily":     {"TAVILY_API_KEY"},
	"keys.exa":        {"EXA_API_KEY"},
}

// SetDefaults registers the default for every setting on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.openai_base_url", "")
	v.SetDefault("llm.timeout", 15*time.Second)
	v.SetDefault("stt.provider", "elevenlabs")
	v.SetDefault("tts.provider", "elevenlabs")
	v.SetDefault("tts.voice", "")
	v.SetDefault("lang.working", "en")

	v.SetDefault("capture.silence_timeout", 2800*time.Millisecond)
	v.SetDefault("capture.min_utterance", 800*time.Millisecond)
	v.SetDefault("capture.max_segment", 15*time.Second)
	v.SetDefault("capture.energy_threshold", 0.02)
	v.SetDefault("capture.peak_threshold", 0.0)
	v.SetDefault("playback.sample_rate", 24000)
	v.SetDefault("playback.max_chunk_chars", 240)
	v.SetDefault("playback.mute_guard", 500*time.Millisecond)
	v.SetDefault("playback.granularity", "chunk")
	v.SetDefault("playback.poll_interval", 50*time.Millisecond)

	v.SetDefault("lookup.timeout", 6*time.Second)
	v.SetDefault("lookup.cache_ttl", 10*time.Minute)
	v.SetDefault("lookup.redis_url", "")
	v.SetDefault("lookup.user_agent", "vai-triage/1.0 (+https://github.com/vango-go/vai-triage)")
	v.SetDefault("lookup.geocode_rps", 1.0)
	v.SetDefault("lookup.detect_ip", true)

	v.SetDefault("enrich.pool_size", 8)
	v.SetDefault("enrich.start_delay", 500*time.Millisecond)
	v.SetDefault("enrich.timeout", 20*time.Second)

	v.SetDefault("state.file", "conversation_state.json")
	v.SetDefault("state.history_db", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("trace.enabled", false)
}

// Bind wires v to the environment: TRIAGE_SECTION_KEY for every setting plus the
// conventional provider key names.
func Bind(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, aliases := range keyEnv {
		names := append([]string{EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, aliases...)
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}

// New returns a viper instance with defaults and environment bindings. A
// non-empty path is read as a config file.
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	if err := Bind(v); err != nil {
		return nil, err
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
	}
	return v, nil
}

// Load decodes and validates the settings held by v.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Keys: Keys{
			Gemini:     strings.TrimSpace(v.GetString("keys.gemini")),
			OpenAI:     strings.TrimSpace(v.GetString("keys.openai")),
			ElevenLabs: strings.TrimSpace(v.GetString("keys.elevenlabs")),
			Cartesia:   strings.TrimSpace(v.GetString("keys.cartesia")),
			NewsAPI:    strings.TrimSpace(v.GetString("keys.newsapi")),
			GoogleMaps: strings.TrimSpace(v.GetString("keys.googlemaps")),
			Tavily:     strings.TrimSpace(v.GetString("keys.tavily")),
			Exa:        strings.TrimSpace(v.GetString("keys.exa")),
		},
		LLMProvider:      strings.ToLower(strings.TrimSpace(v.GetString("llm.provider"))),
		LLMModel:         strings.TrimSpace(v.GetString("llm.model")),
		OpenAIBaseURL:    strings.TrimSpace(v.GetString("llm.openai_base_url")),
		LLMTimeout:       v.GetDuration("llm.timeout"),
		STTProvider:      strings.ToLower(strings.TrimSpace(v.GetString("stt.provider"))),
		TTSProvider:      strings.ToLower(strings.TrimSpace(v.GetString("tts.provider"))),
		Voice:            strings.TrimSpace(v.GetString("tts.voice")),
		WorkingLang:      strings.ToLower(strings.TrimSpace(v.GetString("lang.working"))),
		SilenceTimeout:   v.GetDuration("capture.silence_timeout"),
		MinUtterance:     v.GetDuration("capture.min_utterance"),
		MaxSegment:       v.GetDuration("capture.max_segment"),
		EnergyThreshold:  v.GetFloat64("capture.energy_threshold"),
		PeakThreshold:    v.GetFloat64("capture.peak_threshold"),
		PlaybackRate:     v.GetInt("playback.sample_rate"),
		MaxChunkChars:    v.GetInt("playback.max_chunk_chars"),
		MuteGuard:        v.GetDuration("playback.mute_guard"),
		Granularity:      strings.ToLower(strings.TrimSpace(v.GetString("playback.granularity"))),
		PollInterval:     v.GetDuration("playback.poll_interval"),
		LookupTimeout:    v.GetDuration("lookup.timeout"),
		CacheTTL:         v.GetDuration("lookup.cache_ttl"),
		RedisURL:         strings.TrimSpace(v.GetString("lookup.redis_url")),
		UserAgent:        strings.TrimSpace(v.GetString("lookup.user_agent")),
		GeocodeRPS:       v.GetFloat64("lookup.geocode_rps"),
		DetectIP:         v.GetBool("lookup.detect_ip"),
		EnrichPoolSize:   v.GetInt("enrich.pool_size"),
		EnrichStartDelay: v.GetDuration("enrich.start_delay"),
		EnrichTimeout:    v.GetDuration("enrich.timeout"),
		StateFile:        strings.TrimSpace(v.GetString("state.file")),
		HistoryDB:        strings.TrimSpace(v.GetString("state.history_db")),
		LogFile:          strings.TrimSpace(v.GetString("log.file")),
		MetricsAddr:      strings.TrimSpace(v.GetString("metrics.addr")),
		Trace:            v.GetBool("trace.enabled"),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString("log.level"))); err != nil {
		return Config{}, fmt.Errorf("TRIAGE_LOG_LEVEL must be one of debug|info|warn|error")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	switch c.LLMProvider {
	case "gemini", "openai", "none":
	default:
		return fmt.Errorf("TRIAGE_LLM_PROVIDER must be one of gemini|openai|none")
	}
	switch c.STTProvider {
	case "elevenlabs", "cartesia", "none":
	default:
		return fmt.Errorf("TRIAGE_STT_PROVIDER must be one of elevenlabs|cartesia|none")
	}
	switch c.TTSProvider {
	case "elevenlabs", "cartesia", "none":
	default:
		return fmt.Errorf("TRIAGE_TTS_PROVIDER must be one of elevenlabs|cartesia|none")
	}
	switch c.Granularity {
	case "chunk", "poll":
	default:
		return fmt.Errorf("TRIAGE_PLAYBACK_GRANULARITY must be one of chunk|poll")
	}
	if c.LLMTimeout <= 0 {
		return fmt.Errorf("TRIAGE_LLM_TIMEOUT must be > 0")
	}
	if c.WorkingLang == "" {
		return fmt.Errorf("TRIAGE_LANG_WORKING must not be empty")
	}
	if c.SilenceTimeout <= 0 {
		return fmt.Errorf("TRIAGE_CAPTURE_SILENCE_TIMEOUT must be > 0")
	}
	if c.MinUtterance < 0 {
		return fmt.Errorf("TRIAGE_CAPTURE_MIN_UTTERANCE must be >= 0")
	}
	if c.MaxSegment <= c.MinUtterance {
		return fmt.Errorf("TRIAGE_CAPTURE_MAX_SEGMENT must be > TRIAGE_CAPTURE_MIN_UTTERANCE")
	}
	if c.EnergyThreshold < 0 || c.EnergyThreshold > 1 {
		return fmt.Errorf("TRIAGE_CAPTURE_ENERGY_THRESHOLD must be within [0,1]")
	}
	if c.PeakThreshold < 0 || c.PeakThreshold > 1 {
		return fmt.Errorf("TRIAGE_CAPTURE_PEAK_THRESHOLD must be within [0,1]")
	}
	if c.PlaybackRate <= 0 {
		return fmt.Errorf("TRIAGE_PLAYBACK_SAMPLE_RATE must be > 0")
	}
	if c.MaxChunkChars <= 0 {
		return fmt.Errorf("TRIAGE_PLAYBACK_MAX_CHUNK_CHARS must be > 0")
	}
	if c.MuteGuard < 0 {
		return fmt.Errorf("TRIAGE_PLAYBACK_MUTE_GUARD must be >= 0")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("TRIAGE_PLAYBACK_POLL_INTERVAL must be > 0")
	}
	if c.LookupTimeout <= 0 {
		return fmt.Errorf("TRIAGE_LOOKUP_TIMEOUT must be > 0")
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("TRIAGE_LOOKUP_CACHE_TTL must be >= 0")
	}
	if c.GeocodeRPS <= 0 {
		return fmt.Errorf("TRIAGE_LOOKUP_GEOCODE_RPS must be > 0")
	}
	if c.EnrichPoolSize <= 0 {
		return fmt.Errorf("TRIAGE_ENRICH_POOL_SIZE must be > 0")
	}
	if c.EnrichStartDelay < 0 {
		return fmt.Errorf("TRIAGE_ENRICH_START_DELAY must be >= 0")
	}
	if c.EnrichTimeout <= 0 {
		return fmt.Errorf("TRIAGE_ENRICH_TIMEOUT must be > 0")
	}
	return nil
}
