// Package config loads the settings of a sourcing process.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	delta "github.com/hanpama/graphsync/internal/delta"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "GRAPHSYNC_"

// ErrMissingEndpoint is returned when no remote endpoint is configured.
var ErrMissingEndpoint = errors.New("remote endpoint is not configured")

// Config holds the recognized options.
type Config struct {
	Token        string        `yaml:"token"`
	Endpoint     string        `yaml:"endpoint" validate:"required,url"`
	Concurrency  int           `yaml:"concurrency" validate:"min=1"`
	PageSize     int           `yaml:"pageSize" validate:"min=1"`
	DebugDir     string        `yaml:"debugDir"`
	FragmentsDir string        `yaml:"fragmentsDir" validate:"required"`
	TypePrefix   string        `yaml:"typePrefix" validate:"required"`
	Discovery    string        `yaml:"discovery" validate:"oneof=auto static dynamic"`
	SyncPolicy   string        `yaml:"syncPolicy" validate:"oneof=auto flag watermark"`
	RateLimit    float64       `yaml:"rateLimit" validate:"min=0"`
	Timeout      time.Duration `yaml:"timeout"`
	SchemaOutput string        `yaml:"schemaOutput"`
	Store        StoreConfig   `yaml:"store"`
	// StaticEvents feed delta syncs under the flag policy.
	StaticEvents []delta.Event `yaml:"staticEvents" validate:"dive"`
}

// StoreConfig locates the badger database holding nodes and sync state.
type StoreConfig struct {
	Path     string `yaml:"path" validate:"required_without=InMemory"`
	InMemory bool   `yaml:"inMemory"`
}

func Default() Config {
	return Config{
		Concurrency:  10,
		PageSize:     100,
		DebugDir:     ".cache/graphql-documents",
		FragmentsDir: "src/fragments",
		TypePrefix:   "Craft_",
		Discovery:    "auto",
		SyncPolicy:   "auto",
		Timeout:      30 * time.Second,
		SchemaOutput: "schema.graphql",
		Store:        StoreConfig{Path: ".cache/graphsync"},
	}
}

var validate = validator.New()

// Load reads defaults, then the YAML file at path if it is not empty, then
// the environment. The result is not validated; call Validate once flags
// have been applied.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration. A missing endpoint is reported as
// ErrMissingEndpoint.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return ErrMissingEndpoint
	}
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	str("TOKEN", &cfg.Token)
	str("ENDPOINT", &cfg.Endpoint)
	str("DEBUG_DIR", &cfg.DebugDir)
	str("FRAGMENTS_DIR", &cfg.FragmentsDir)
	str("TYPE_PREFIX", &cfg.TypePrefix)
	str("DISCOVERY", &cfg.Discovery)
	str("SYNC_POLICY", &cfg.SyncPolicy)
	str("SCHEMA_OUTPUT", &cfg.SchemaOutput)
	str("STORE_PATH", &cfg.Store.Path)

	for name, dst := range map[string]*int{"CONCURRENCY": &cfg.Concurrency, "PAGE_SIZE": &cfg.PageSize} {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = n
		}
	}
	if v, ok := lookup(EnvPrefix + "RATE_LIMIT"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sRATE_LIMIT: %w", EnvPrefix, err)
		}
		cfg.RateLimit = f
	}
	if v, ok := lookup(EnvPrefix + "TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sTIMEOUT: %w", EnvPrefix, err)
		}
		cfg.Timeout = d
	}
	if v, ok := lookup(EnvPrefix + "STORE_IN_MEMORY"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sSTORE_IN_MEMORY: %w", EnvPrefix, err)
		}
		cfg.Store.InMemory = b
	}
	return nil
}
