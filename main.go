package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vidhhya1/Conversational-Emotion-Recognizer/audio"
	"github.com/vidhhya1/Conversational-Emotion-Recognizer/clients"
	cfg "github.com/vidhhya1/Conversational-Emotion-Recognizer/config"
	"github.com/vidhhya1/Conversational-Emotion-Recognizer/emotion"
	"github.com/vidhhya1/Conversational-Emotion-Recognizer/logging"
	"github.com/vidhhya1/Conversational-Emotion-Recognizer/metrics"
	"github.com/vidhhya1/Conversational-Emotion-Recognizer/orchestrator"
	"github.com/vidhhya1/Conversational-Emotion-Recognizer/responder"
	"github.com/vidhhya1/Conversational-Emotion-Recognizer/server"
)

var (
	version    = "dev"
	configPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "empathy",
		Short:        "Real-time empathetic voice conversation server",
		Version:      version,
		SilenceUsage: true,
		RunE:         runServe,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: config/$CONFIG_ENV/config.yaml)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept voice sessions over WebSocket",
		RunE:  runServe,
	}

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and print it with secrets redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := cfg.Load(configPath)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(redacted(conf))
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	rootCmd.AddCommand(serveCmd, checkCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	conf, err := cfg.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logging.New(conf.Pipeline.LogLvl, conf.Pipeline.LogFormat)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"name":    conf.Pipeline.Name,
		"version": conf.Pipeline.Version,
	}).Info("pipeline starting")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New("")
	p, err := buildPipeline(ctx, conf, log, m)
	if err != nil {
		return err
	}
	return server.New(conf, p, log, m).Run(ctx)
}

// buildPipeline connects every port to its backing service. Missing
// credentials degrade a stage to its fallback instead of failing startup.
func buildPipeline(ctx context.Context, conf *cfg.Root, log *logrus.Logger, m *metrics.Metrics) (*orchestrator.Pipeline, error) {
	hc := clients.NewHTTP()

	if conf.Services.ASR.URL == "" {
		log.Warn("services.asr.url not set; transcripts will be empty")
	}
	if conf.Services.Emotion.URL == "" {
		log.Warn("services.emotion.url not set; every turn will read as Neutral")
	}

	labels, err := emotion.LoadLabelMap(conf.Emotion.LabelMapPath)
	if err != nil {
		return nil, err
	}
	classifier := emotion.NewClassifier(clients.EmotionScorer{HTTP: hc, URL: conf.Services.Emotion.URL}, conf.Emotion.Threshold, labels)

	gemini, err := responder.NewGemini(ctx, conf.Gemini, log)
	if err != nil {
		return nil, err
	}
	if !gemini.Configured() {
		log.Warn("GEMINI_API_KEY is not set. Export it or set gemini.api_key in config.yaml; replies will explain that the assistant is not configured")
	}

	var synth orchestrator.Synthesizer
	tts, err := clients.NewGoogleTTS(conf.TTS)
	if err != nil {
		log.WithError(err).Warn("speech synthesis disabled; replies will be text only")
		synth = clients.SilentTTS{Reason: err}
	} else {
		synth = tts
	}

	return orchestrator.NewPipeline(orchestrator.Ports{
		Transcriber: clients.Transcriber{HTTP: hc, URL: conf.Services.ASR.URL},
		Tone:        audio.NewToneAnalyzer(conf.Audio, log),
		Emotion:     classifier,
		Responder:   gemini,
		Synthesizer: synth,
	}, conf.Timeouts, log, m), nil
}

func redacted(conf *cfg.Root) *cfg.Root {
	c := *conf
	if c.Gemini.APIKey != "" {
		c.Gemini.APIKey = "********"
	}
	if c.TTS.AccessToken != "" {
		c.TTS.AccessToken = "********"
	}
	return &c
}
