package config

import (
	"os"
	"strings"
	"time"

	"github.com/go-go-golems/waldo/pkg/embeddings"
	"github.com/go-go-golems/waldo/pkg/llm"
	"github.com/go-go-golems/waldo/pkg/rag"
	"github.com/go-go-golems/waldo/pkg/room"
	"github.com/go-go-golems/waldo/pkg/session"
	"github.com/go-go-golems/waldo/pkg/supervisor"
	"github.com/go-go-golems/waldo/pkg/turn"
	"github.com/go-go-golems/waldo/pkg/web"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const EnvPrefix = "waldo"

// LocalConfigFile is picked up from the working directory when no --config is given.
const LocalConfigFile = "waldo.yaml"

const (
	BackendChromem  = "chromem"
	BackendWeaviate = "weaviate"
)

type PersonaSettings struct {
	Instructions string `mapstructure:"instructions" yaml:"instructions"`
}

type RetrievalSettings struct {
	Backend        string             `mapstructure:"backend" yaml:"backend"`
	TopK           int                `mapstructure:"top-k" yaml:"top-k"`
	MaxCharsPerDoc int                `mapstructure:"max-chars-per-doc" yaml:"max-chars-per-doc"`
	Store          rag.StoreConfig    `mapstructure:"store" yaml:"store"`
	Weaviate       rag.WeaviateConfig `mapstructure:"weaviate" yaml:"weaviate"`
}

type SessionSettings struct {
	MinEndpointingDelay time.Duration `mapstructure:"min-endpointing-delay" yaml:"min-endpointing-delay"`
	MaxEndpointingDelay time.Duration `mapstructure:"max-endpointing-delay" yaml:"max-endpointing-delay"`
	NoiseCancellation   bool          `mapstructure:"noise-cancellation" yaml:"noise-cancellation"`
	DrainTimeout        time.Duration `mapstructure:"drain-timeout" yaml:"drain-timeout"`
}

func (s SessionSettings) Options() session.Options {
	return session.Options{
		MinEndpointingDelay: s.MinEndpointingDelay,
		MaxEndpointingDelay: s.MaxEndpointingDelay,
		NoiseCancellation:   s.NoiseCancellation,
	}
}

type SupervisorSettings struct {
	RestartDelay time.Duration `mapstructure:"restart-delay" yaml:"restart-delay"`
	// StopTimeout is how long the child may drain after SIGTERM before it is killed.
	StopTimeout time.Duration `mapstructure:"stop-timeout" yaml:"stop-timeout"`
	// Command is the child command line. Empty re-executes this binary with "agent".
	Command []string `mapstructure:"command" yaml:"command"`
}

type MetricsSettings struct {
	// Addr enables a Prometheus listener on the agent process when set.
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// Settings is the complete configuration of the agent and its supervisor.
type Settings struct {
	Persona    PersonaSettings     `mapstructure:"persona" yaml:"persona"`
	Retrieval  RetrievalSettings   `mapstructure:"retrieval" yaml:"retrieval"`
	Embeddings embeddings.Settings `mapstructure:"embeddings" yaml:"embeddings"`
	LLM        llm.Settings        `mapstructure:"llm" yaml:"llm"`
	Room       room.Config         `mapstructure:"room" yaml:"room"`
	Session    SessionSettings     `mapstructure:"session" yaml:"session"`
	Supervisor SupervisorSettings  `mapstructure:"supervisor" yaml:"supervisor"`
	HTTP       web.Config          `mapstructure:"http" yaml:"http"`
	Metrics    MetricsSettings     `mapstructure:"metrics" yaml:"metrics"`
}

// SetDefaults registers a default for every key so that each one can also be set from the
// environment, e.g. WALDO_ROOM_API_KEY for room.api-key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("persona.instructions", turn.DefaultPersona)

	v.SetDefault("retrieval.backend", BackendChromem)
	v.SetDefault("retrieval.top-k", rag.DefaultTopK)
	v.SetDefault("retrieval.max-chars-per-doc", rag.DefaultMaxCharsPerDoc)
	v.SetDefault("retrieval.store.persist-path", "webmd_index")
	v.SetDefault("retrieval.store.collection", rag.DefaultCollection)
	v.SetDefault("retrieval.store.compress", false)
	v.SetDefault("retrieval.weaviate.host", "")
	v.SetDefault("retrieval.weaviate.scheme", "http")
	v.SetDefault("retrieval.weaviate.api-key", "")
	v.SetDefault("retrieval.weaviate.class", "WebMD")

	v.SetDefault("embeddings.type", embeddings.TypeOpenAI)
	v.SetDefault("embeddings.engine", "text-embedding-3-small")
	v.SetDefault("embeddings.dimensions", 0)
	v.SetDefault("embeddings.api-key", "")
	v.SetDefault("embeddings.base-url", "")
	v.SetDefault("embeddings.cache-size", 1024)

	v.SetDefault("llm.type", llm.TypeGemini)
	v.SetDefault("llm.engine", "")
	v.SetDefault("llm.api-key", "")
	v.SetDefault("llm.base-url", "")
	v.SetDefault("llm.temperature", llm.DefaultTemperature)

	v.SetDefault("room.url", "ws://localhost:7880/agent")
	v.SetDefault("room.api-key", "")
	v.SetDefault("room.name", "waldo")
	v.SetDefault("room.agent-name", "waldo")
	v.SetDefault("room.voice", "Puck")
	v.SetDefault("room.join-timeout", 10*time.Second)

	defaults := session.DefaultOptions()
	v.SetDefault("session.min-endpointing-delay", defaults.MinEndpointingDelay)
	v.SetDefault("session.max-endpointing-delay", defaults.MaxEndpointingDelay)
	v.SetDefault("session.noise-cancellation", defaults.NoiseCancellation)
	v.SetDefault("session.drain-timeout", 5*time.Second)

	v.SetDefault("supervisor.restart-delay", supervisor.DefaultRestartDelay)
	v.SetDefault("supervisor.stop-timeout", supervisor.DefaultStopTimeout)
	v.SetDefault("supervisor.command", []string{})

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", web.DefaultPort)
	v.SetDefault("http.debug", false)

	v.SetDefault("metrics.addr", "")
}

// InitViper registers the settings defaults on v and enables environment overrides with
// the WALDO_ prefix for nested keys. PORT sets the HTTP port. When no config file was
// loaded yet, ./waldo.yaml is read if present.
func InitViper(v *viper.Viper) error {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("http.port", "WALDO_HTTP_PORT", "PORT"); err != nil {
		return errors.Wrap(err, "bind PORT")
	}
	if v.ConfigFileUsed() == "" {
		if _, err := os.Stat(LocalConfigFile); err == nil {
			return ReadConfigFile(v, LocalConfigFile)
		}
	}
	return nil
}

// ReadConfigFile merges the yaml file at path into v.
func ReadConfigFile(v *viper.Viper, path string) error {
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "read config %s", path)
	}
	log.Debug().Str("config", v.ConfigFileUsed()).Msg("Loaded configuration")
	return nil
}

// Load decodes the settings from v.
func Load(v *viper.Viper) (*Settings, error) {
	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, errors.Wrap(err, "decode settings")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) Validate() error {
	switch s.Retrieval.Backend {
	case BackendChromem, BackendWeaviate:
	default:
		return errors.Errorf("unknown retrieval backend %q", s.Retrieval.Backend)
	}
	if s.Session.MinEndpointingDelay > s.Session.MaxEndpointingDelay {
		return errors.New("session.min-endpointing-delay exceeds session.max-endpointing-delay")
	}
	if s.Supervisor.RestartDelay <= 0 {
		return errors.New("supervisor.restart-delay must be positive")
	}
	return nil
}
