package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Service struct {
	URL string `mapstructure:"url" yaml:"url"`
}
type Services struct {
	ASR     Service `mapstructure:"asr" yaml:"asr"`
	Emotion Service `mapstructure:"emotion" yaml:"emotion"`
}
type Audio struct {
	SampleRate   int     `mapstructure:"sample_rate" yaml:"sample_rate"`
	SilenceFloor float64 `mapstructure:"silence_floor" yaml:"silence_floor"`
	MinPitchHz   float64 `mapstructure:"min_pitch_hz" yaml:"min_pitch_hz"`
	FrameSize    int     `mapstructure:"frame_size" yaml:"frame_size"`
	HopSize      int     `mapstructure:"hop_size" yaml:"hop_size"`
}
type Server struct {
	Addr           string        `mapstructure:"addr" yaml:"addr"`
	WSPath         string        `mapstructure:"ws_path" yaml:"ws_path"`
	ReadLimitBytes int64         `mapstructure:"read_limit_bytes" yaml:"read_limit_bytes"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	PingInterval   time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}
type Emotion struct {
	Threshold    float64 `mapstructure:"threshold" yaml:"threshold"`
	LabelMapPath string  `mapstructure:"label_map_path" yaml:"label_map_path"`
}
type Gemini struct {
	APIKey string `mapstructure:"api_key" yaml:"api_key"`
	Model  string `mapstructure:"model" yaml:"model"`
}
type TTS struct {
	AccessToken  string `mapstructure:"access_token" yaml:"access_token"`
	ProjectID    string `mapstructure:"project_id" yaml:"project_id"`
	LanguageCode string `mapstructure:"language_code" yaml:"language_code"`
	VoiceName    string `mapstructure:"voice_name" yaml:"voice_name"`
	SampleRate   int    `mapstructure:"sample_rate" yaml:"sample_rate"`
}

// Timeouts bound each external stage of a turn. A stage that runs out of
// time is treated exactly like a failed one.
type Timeouts struct {
	Transcribe time.Duration `mapstructure:"transcribe" yaml:"transcribe"`
	Classify   time.Duration `mapstructure:"classify" yaml:"classify"`
	Generate   time.Duration `mapstructure:"generate" yaml:"generate"`
	Synthesize time.Duration `mapstructure:"synthesize" yaml:"synthesize"`
}
type Session struct {
	MaxQueuedUtterances int `mapstructure:"max_queued_utterances" yaml:"max_queued_utterances"`
}
type Root struct {
	Pipeline struct {
		Name      string `mapstructure:"name" yaml:"name"`
		Version   string `mapstructure:"version" yaml:"version"`
		LogLvl    string `mapstructure:"log_level" yaml:"log_level"`
		LogFormat string `mapstructure:"log_format" yaml:"log_format"`
	} `mapstructure:"pipeline" yaml:"pipeline"`
	Server   Server   `mapstructure:"server" yaml:"server"`
	Audio    Audio    `mapstructure:"audio" yaml:"audio"`
	Services Services `mapstructure:"services" yaml:"services"`
	Emotion  Emotion  `mapstructure:"emotion" yaml:"emotion"`
	Gemini   Gemini   `mapstructure:"gemini" yaml:"gemini"`
	TTS      TTS      `mapstructure:"tts" yaml:"tts"`
	Timeouts Timeouts `mapstructure:"timeouts" yaml:"timeouts"`
	Session  Session  `mapstructure:"session" yaml:"session"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pipeline.name", "empathy-voice")
	v.SetDefault("pipeline.version", "dev")
	v.SetDefault("pipeline.log_level", "info")
	v.SetDefault("pipeline.log_format", "text")

	v.SetDefault("server.addr", ":5000")
	v.SetDefault("server.ws_path", "/ws")
	v.SetDefault("server.read_limit_bytes", 8<<20)
	v.SetDefault("server.write_timeout", 5*time.Second)
	v.SetDefault("server.ping_interval", 20*time.Second)
	v.SetDefault("server.read_timeout", 45*time.Second)
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("audio.sample_rate", 16000)
	v.SetDefault("audio.silence_floor", 0.001)
	v.SetDefault("audio.min_pitch_hz", 50.0)
	v.SetDefault("audio.frame_size", 2048)
	v.SetDefault("audio.hop_size", 512)

	v.SetDefault("services.asr.url", "")
	v.SetDefault("services.emotion.url", "")

	v.SetDefault("emotion.threshold", 0.57)
	v.SetDefault("emotion.label_map_path", "")

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-1.5-flash")

	v.SetDefault("tts.access_token", "")
	v.SetDefault("tts.project_id", "")
	v.SetDefault("tts.language_code", "en-US")
	v.SetDefault("tts.voice_name", "en-US-Standard-C")
	v.SetDefault("tts.sample_rate", 16000)

	v.SetDefault("timeouts.transcribe", 60*time.Second)
	v.SetDefault("timeouts.classify", 15*time.Second)
	v.SetDefault("timeouts.generate", 30*time.Second)
	v.SetDefault("timeouts.synthesize", 20*time.Second)

	v.SetDefault("session.max_queued_utterances", 4)
}

// Load reads the configuration. An explicit path must exist; otherwise the
// first of config/<CONFIG_ENV>/config.yaml and config.yaml that exists is used,
// and a missing file just means defaults plus environment.
func Load(path string) (*Root, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("EMPATHY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = File()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}

	var cfg Root
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config decode: %w", err)
	}
	if cfg.Gemini.APIKey == "" {
		cfg.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// File reports which config file Load would read when no path is given.
func File() string {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	for _, p := range []string{filepath.Join("config", env, "config.yaml"), "config.yaml"} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func (c *Root) Validate() error {
	var errs []error
	if c.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive"))
	}
	if c.Audio.FrameSize <= 0 || c.Audio.HopSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size and audio.hop_size must be positive"))
	}
	if c.Emotion.Threshold <= 0 || c.Emotion.Threshold > 1 {
		errs = append(errs, fmt.Errorf("emotion.threshold must be in (0,1], got %v", c.Emotion.Threshold))
	}
	if c.Session.MaxQueuedUtterances < 1 {
		errs = append(errs, fmt.Errorf("session.max_queued_utterances must be at least 1"))
	}
	if c.Server.PingInterval <= 0 || c.Server.ReadTimeout <= c.Server.PingInterval {
		errs = append(errs, fmt.Errorf("server.read_timeout must exceed a positive server.ping_interval"))
	}
	if !strings.HasPrefix(c.Server.WSPath, "/") {
		errs = append(errs, fmt.Errorf("server.ws_path must start with /"))
	}
	return errors.Join(errs...)
}
