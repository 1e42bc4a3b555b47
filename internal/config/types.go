// Package config resolves, parses, validates, and defaults ditado configuration.
package config

import (
	"time"

	"github.com/ditado/ditado/internal/localengine"
)

// Config is the fully materialized runtime configuration used by ditado.
type Config struct {
	Routing    RoutingConfig    `yaml:"routing"`
	Remote     RemoteConfig     `yaml:"remote"`
	Local      LocalConfig      `yaml:"local"`
	Probe      ProbeConfig      `yaml:"probe"`
	Audio      AudioConfig      `yaml:"audio"`
	Glossary   GlossaryConfig   `yaml:"glossary"`
	History    HistoryConfig    `yaml:"history"`
	Transcript TranscriptConfig `yaml:"transcript"`
	Notify     NotifyConfig     `yaml:"notify"`
	Paste      PasteConfig      `yaml:"paste"`

	ClipboardCmd string `yaml:"clipboard_cmd"`
	PasteCmd     string `yaml:"paste_cmd"`

	// Parsed argv forms of the command strings above, populated by Load.
	ClipboardArgv []string `yaml:"-"`
	PasteArgv     []string `yaml:"-"`
}

// RoutingConfig selects the engine dispatch policy.
type RoutingConfig struct {
	Policy string `yaml:"policy"`
}

// RemoteConfig describes the hosted transcription endpoint. The credential
// is read from the named environment variable, never from the file itself.
type RemoteConfig struct {
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	APIKeyEnv      string `yaml:"api_key_env"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the per-call remote bound.
func (c RemoteConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LocalConfig describes the whisper sidecar engine and its capability ladder.
type LocalConfig struct {
	ServerBinary          string                   `yaml:"server_binary"`
	ModelPath             string                   `yaml:"model_path"`
	ListenAddr            string                   `yaml:"listen_addr"`
	HealthPath            string                   `yaml:"health_path"`
	StartupTimeoutSeconds int                      `yaml:"startup_timeout_seconds"`
	InferTimeoutSeconds   int                      `yaml:"infer_timeout_seconds"`
	Ladder                []localengine.Capability `yaml:"ladder"`
}

func (c LocalConfig) StartupTimeout() time.Duration {
	return time.Duration(c.StartupTimeoutSeconds) * time.Second
}

func (c LocalConfig) InferTimeout() time.Duration {
	return time.Duration(c.InferTimeoutSeconds) * time.Second
}

// ProbeConfig controls the background reachability probe.
type ProbeConfig struct {
	Target          string `yaml:"target"`
	IntervalSeconds int    `yaml:"interval_seconds"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
}

func (c ProbeConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

func (c ProbeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// AudioConfig controls preferred and fallback input-source selection.
type AudioConfig struct {
	Input    string `yaml:"input"`
	Fallback string `yaml:"fallback"`
}

// GlossaryConfig shapes the steering prompt handed to both engines.
type GlossaryConfig struct {
	Keywords     []string `yaml:"keywords"`
	Instructions string   `yaml:"instructions"`
}

// HistoryConfig controls the session history store.
type HistoryConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"` // empty means the XDG state default
}

// TranscriptConfig controls transcript assembly formatting.
type TranscriptConfig struct {
	TrailingSpace       bool `yaml:"trailing_space"`
	CapitalizeSentences bool `yaml:"capitalize_sentences"`
}

// NotifyConfig controls desktop notifications for degraded-mode events.
type NotifyConfig struct {
	Enable  bool   `yaml:"enable"`
	AppName string `yaml:"app_name"`
}

// PasteConfig controls post-commit paste behavior.
type PasteConfig struct {
	Enable   bool   `yaml:"enable"`
	Shortcut string `yaml:"shortcut"`
}

// Warning is a non-fatal load/validation message.
type Warning struct {
	Message string
}
