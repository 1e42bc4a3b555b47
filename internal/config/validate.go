package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/ditado/ditado/internal/routing"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if _, err := routing.ParsePolicy(strings.TrimSpace(cfg.Routing.Policy)); err != nil {
		return nil, fmt.Errorf("routing.policy: %w", err)
	}

	if strings.TrimSpace(cfg.Remote.BaseURL) == "" {
		return nil, fmt.Errorf("remote.base_url must not be empty")
	}
	if !strings.HasPrefix(cfg.Remote.BaseURL, "http://") && !strings.HasPrefix(cfg.Remote.BaseURL, "https://") {
		return nil, fmt.Errorf("remote.base_url must start with http:// or https://")
	}
	if strings.TrimSpace(cfg.Remote.Model) == "" {
		return nil, fmt.Errorf("remote.model must not be empty")
	}
	if strings.TrimSpace(cfg.Remote.APIKeyEnv) == "" {
		return nil, fmt.Errorf("remote.api_key_env must not be empty")
	}
	if cfg.Remote.TimeoutSeconds <= 0 {
		return nil, fmt.Errorf("remote.timeout_seconds must be > 0")
	}
	if os.Getenv(cfg.Remote.APIKeyEnv) == "" {
		warnings = append(warnings, Warning{
			Message: fmt.Sprintf("%s is not set; remote transcription will fail authentication", cfg.Remote.APIKeyEnv),
		})
	}

	if strings.TrimSpace(cfg.Local.ServerBinary) == "" {
		return nil, fmt.Errorf("local.server_binary must not be empty")
	}
	if strings.TrimSpace(cfg.Local.ModelPath) == "" {
		return nil, fmt.Errorf("local.model_path must not be empty")
	}
	if !strings.Contains(cfg.Local.ListenAddr, ":") {
		return nil, fmt.Errorf("local.listen_addr must be host:port")
	}
	if !strings.HasPrefix(strings.TrimSpace(cfg.Local.HealthPath), "/") {
		return nil, fmt.Errorf("local.health_path must start with '/'")
	}
	if cfg.Local.StartupTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("local.startup_timeout_seconds must be > 0")
	}
	if cfg.Local.InferTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("local.infer_timeout_seconds must be > 0")
	}
	if len(cfg.Local.Ladder) == 0 {
		return nil, fmt.Errorf("local.ladder must name at least one capability")
	}
	for i, capability := range cfg.Local.Ladder {
		device := strings.TrimSpace(capability.Device)
		precision := strings.TrimSpace(capability.Precision)
		if device != "cuda" && device != "cpu" {
			return nil, fmt.Errorf("local.ladder[%d].device must be one of: cuda, cpu", i)
		}
		if precision != "float16" && precision != "int8" {
			return nil, fmt.Errorf("local.ladder[%d].precision must be one of: float16, int8", i)
		}
	}

	if !strings.Contains(cfg.Probe.Target, ":") {
		return nil, fmt.Errorf("probe.target must be host:port")
	}
	if cfg.Probe.IntervalSeconds <= 0 {
		return nil, fmt.Errorf("probe.interval_seconds must be > 0")
	}
	if cfg.Probe.TimeoutSeconds <= 0 {
		return nil, fmt.Errorf("probe.timeout_seconds must be > 0")
	}
	if cfg.Probe.TimeoutSeconds >= cfg.Probe.IntervalSeconds {
		warnings = append(warnings, Warning{
			Message: "probe.timeout_seconds >= probe.interval_seconds; checks may overlap their schedule",
		})
	}

	if len(cfg.ClipboardArgv) == 0 {
		return nil, fmt.Errorf("clipboard_cmd must not be empty")
	}
	if cfg.Paste.Enable && cfg.PasteCmd != "" && len(cfg.PasteArgv) == 0 {
		return nil, fmt.Errorf("paste_cmd is configured but empty")
	}
	if cfg.Paste.Enable && len(cfg.PasteArgv) == 0 && strings.TrimSpace(cfg.Paste.Shortcut) == "" {
		return nil, fmt.Errorf("paste.shortcut must not be empty when paste.enable=true and paste_cmd is unset")
	}

	if cfg.Notify.Enable && strings.TrimSpace(cfg.Notify.AppName) == "" {
		return nil, fmt.Errorf("notify.app_name must not be empty when notify.enable=true")
	}

	return warnings, nil
}

// BuildPrompt merges the glossary into one steering prompt shared by both
// engines. Empty glossary yields an empty prompt.
func BuildPrompt(cfg GlossaryConfig) string {
	var parts []string
	if instructions := strings.TrimSpace(cfg.Instructions); instructions != "" {
		parts = append(parts, instructions)
	}

	keywords := make([]string, 0, len(cfg.Keywords))
	for _, keyword := range cfg.Keywords {
		if keyword = strings.TrimSpace(keyword); keyword != "" {
			keywords = append(keywords, keyword)
		}
	}
	if len(keywords) > 0 {
		parts = append(parts, "Vocabulary: "+strings.Join(keywords, ", "))
	}

	return strings.Join(parts, "\n")
}
