package config

import "github.com/ditado/ditado/internal/localengine"

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	clipboard := "wl-copy --trim-newline"

	return Config{
		Routing: RoutingConfig{Policy: "auto"},
		Remote: RemoteConfig{
			BaseURL:        "https://api.openai.com/v1",
			Model:          "whisper-1",
			APIKeyEnv:      "DITADO_REMOTE_API_KEY",
			TimeoutSeconds: 30,
		},
		Local: LocalConfig{
			ServerBinary:          "whisper-server",
			ModelPath:             "~/.local/share/ditado/models/ggml-base.bin",
			ListenAddr:            "127.0.0.1:8178",
			HealthPath:            "/health",
			StartupTimeoutSeconds: 45,
			InferTimeoutSeconds:   300,
			Ladder:                localengine.DefaultLadder(),
		},
		Probe: ProbeConfig{
			Target:          "8.8.8.8:53",
			IntervalSeconds: 10,
			TimeoutSeconds:  3,
		},
		Audio: AudioConfig{
			Input:    "default",
			Fallback: "default",
		},
		Glossary: GlossaryConfig{},
		History:  HistoryConfig{Enable: true},
		Transcript: TranscriptConfig{
			TrailingSpace:       true,
			CapitalizeSentences: true,
		},
		Notify: NotifyConfig{Enable: true, AppName: "ditado"},
		Paste:  PasteConfig{Enable: true, Shortcut: "CTRL,V"},

		ClipboardCmd:  clipboard,
		ClipboardArgv: mustParseArgv(clipboard),
	}
}
