// Package config loads the local-compose YAML file into service specs.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/loykin/localcompose/internal/env"
	"github.com/loykin/localcompose/internal/logger"
	"github.com/loykin/localcompose/internal/printer"
	"github.com/loykin/localcompose/internal/process"
	"github.com/loykin/localcompose/internal/readiness"
)

// FileName is the configuration file looked up by default.
const FileName = "local-compose.yaml"

// EnvPrefix prefixes environment variables overriding global settings.
const EnvPrefix = "LOCAL_COMPOSE"

// Global setting defaults.
const (
	DefaultKillWait = 5 * time.Second
)

var ErrEmptyFile = errors.New("empty file")

// Config is a parsed and validated configuration file.
type Config struct {
	Path     string
	WorkDir  string
	Version  string
	Global   Global
	Services []process.Spec // sorted by name
}

// Global holds the settings under the "global" key.
type Global struct {
	TimeFormat string
	UsePrefix  bool
	KillWait   time.Duration
	Log        logger.FileConfig
	History    string // DSN of the lifecycle event sink, empty for none
}

// document mirrors the file layout. Services are decoded with yaml.v3 so
// names and env keys keep their case.
type document struct {
	Version  scalar                  `yaml:"version" validate:"required,oneof=1"`
	Services map[string]*serviceFile `yaml:"services" validate:"required,min=1,dive,keys,required,endkeys,required"`
}

type serviceFile struct {
	Run       Run            `yaml:"run"`
	Cwd       string         `yaml:"cwd"`
	Color     string         `yaml:"color" validate:"omitempty,palette"`
	Env       map[string]any `yaml:"env"`
	Quiet     bool           `yaml:"quiet"`
	Shell     bool           `yaml:"shell"`
	Readiness *readinessFile `yaml:"readiness"`
}

type readinessFile struct {
	Retry *retryFile `yaml:"retry"`
}

type retryFile struct {
	Attempts *int     `yaml:"attempts" validate:"omitempty,gte=0"`
	Wait     *float64 `yaml:"wait" validate:"omitempty,gte=0"`
}

type globalFile struct {
	TimeFormat string  `validate:"required"`
	UsePrefix  bool
	KillWait   float64 `validate:"gte=0"`
	Log        logger.FileConfig
	History    string
}

// scalar accepts any YAML scalar as text, so version: 1 and version: '1'
// read the same.
type scalar string

func (s *scalar) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar", n.Line)
	}
	*s = scalar(n.Value)
	return nil
}

// Run is a service command given either as a string or as a list.
type Run struct {
	Line string
	Args []string
}

func (r *Run) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		r.Line = n.Value
		return nil
	case yaml.SequenceNode:
		return n.Decode(&r.Args)
	}
	return fmt.Errorf("line %d: run must be a string or a list", n.Line)
}

func (r Run) empty() bool { return strings.TrimSpace(r.Line) == "" && len(r.Args) == 0 }

// Load reads, validates and resolves the configuration at path. Relative
// service directories are resolved against workDir.
func Load(path, workDir string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("read configuration: %w", err)
	}
	cfg, err := parse(data, workDir, env.New())
	if err != nil {
		return nil, fmt.Errorf("configuration file %q is invalid: %w", path, err)
	}
	cfg.Path = path
	return cfg, nil
}

func parse(data []byte, workDir string, base *env.Env) (*Config, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	validate := newValidator()
	if err := validate.Struct(doc); err != nil {
		return nil, err
	}

	g, err := loadGlobal(data)
	if err != nil {
		return nil, err
	}
	if err := validate.Struct(g); err != nil {
		return nil, err
	}

	wd, err := filepath.Abs(workDir)
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		WorkDir: wd,
		Version: string(doc.Version),
		Global: Global{
			TimeFormat: g.TimeFormat,
			UsePrefix:  g.UsePrefix,
			KillWait:   seconds(g.KillWait),
			Log:        g.Log,
			History:    g.History,
		},
	}

	names := make([]string, 0, len(doc.Services))
	for name := range doc.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		spec, err := doc.Services[name].spec(name, wd, base)
		if err != nil {
			return nil, fmt.Errorf("service %q: %w", name, err)
		}
		cfg.Services = append(cfg.Services, spec)
	}
	return cfg, nil
}

func (s *serviceFile) spec(name, workDir string, base *env.Env) (process.Spec, error) {
	if s.Run.empty() {
		return process.Spec{}, errors.New("run is required")
	}
	dir, err := resolveDir(s.Cwd, workDir)
	if err != nil {
		return process.Spec{}, err
	}
	vars := make(map[string]string, len(s.Env))
	for k, v := range s.Env {
		if v == nil {
			vars[k] = ""
			continue
		}
		vars[k] = fmt.Sprint(v)
	}
	spec := process.Spec{
		Name:    name,
		Command: s.Run.Line,
		Args:    s.Run.Args,
		Dir:     dir,
		Env:     base.Merge(vars),
		Shell:   s.Shell,
		Quiet:   s.Quiet,
		Color:   s.Color,
	}
	if s.Readiness != nil {
		rc := &readiness.Config{}
		if r := s.Readiness.Retry; r != nil {
			rc.Attempts = r.Attempts
			if r.Wait != nil {
				w := seconds(*r.Wait)
				rc.Wait = &w
			}
		}
		spec.Readiness = rc
	}
	return spec, nil
}

func resolveDir(cwd, workDir string) (string, error) {
	if cwd == "" {
		return workDir, nil
	}
	if cwd == "~" || strings.HasPrefix(cwd, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		cwd = filepath.Join(home, strings.TrimPrefix(cwd, "~"))
	}
	if !filepath.IsAbs(cwd) {
		cwd = filepath.Join(workDir, cwd)
	}
	return filepath.Clean(cwd), nil
}

// loadGlobal reads the "global" settings through viper so that each of them
// can be overridden by a LOCAL_COMPOSE_* environment variable. Values that do
// not convert to the setting's type are errors.
func loadGlobal(data []byte) (globalFile, error) {
	v, err := newViper(data)
	if err != nil {
		return globalFile{}, err
	}
	usePrefix, err := cast.ToBoolE(v.Get("global.use-prefix"))
	if err != nil {
		return globalFile{}, fmt.Errorf("global.use-prefix: %w", err)
	}
	killWait, err := cast.ToFloat64E(v.Get("global.kill-wait"))
	if err != nil {
		return globalFile{}, fmt.Errorf("global.kill-wait: %w", err)
	}
	return globalFile{
		TimeFormat: v.GetString("global.time-format"),
		UsePrefix:  usePrefix,
		KillWait:   killWait,
		Log: logger.FileConfig{
			Path:       v.GetString("global.log.file"),
			MaxSizeMB:  v.GetInt("global.log.max-size-mb"),
			MaxBackups: v.GetInt("global.log.max-backups"),
			MaxAgeDays: v.GetInt("global.log.max-age-days"),
			Compress:   v.GetBool("global.log.compress"),
		},
		History: v.GetString("global.history"),
	}, nil
}

func newViper(data []byte) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetDefault("global.time-format", printer.DefaultTimeFormat)
	v.SetDefault("global.use-prefix", true)
	v.SetDefault("global.kill-wait", DefaultKillWait.Seconds())
	v.SetDefault("global.log.max-size-mb", logger.DefaultMaxSizeMB)
	v.SetDefault("global.log.max-backups", logger.DefaultMaxBackups)
	v.SetDefault("global.log.max-age-days", logger.DefaultMaxAgeDays)
	for key, name := range map[string]string{
		"global.time-format": "TIME_FORMAT",
		"global.use-prefix":  "USE_PREFIX",
		"global.kill-wait":   "KILL_WAIT",
		"global.log.file":    "LOG_FILE",
		"global.history":     "HISTORY",
	} {
		if err := v.BindEnv(key, EnvPrefix+"_"+name); err != nil {
			return nil, err
		}
	}
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return v, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("palette", func(fl validator.FieldLevel) bool {
		return printer.ValidColor(fl.Field().String())
	})
	return v
}
