package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/papercomputeco/banter/chat"
	"github.com/papercomputeco/banter/pkg/agent"
	"github.com/papercomputeco/banter/pkg/client"
	"github.com/papercomputeco/banter/pkg/config"
	"github.com/papercomputeco/banter/pkg/logger"
)

// version is stamped at build time via -ldflags.
var version = "dev"

const rootLongDesc string = `Chat with an OpenAI-compatible LLM API from your terminal.

Configuration is read from a JSON file (created with defaults on first
run), overridable per key with BANTER_* environment variables and the
flags below. Edits to the file are picked up live during a session.

Examples:
  banter
  banter --model qwen-vl-max --api-key sk-...
  BANTER_AI_APIKEY=sk-... banter --config ~/.banter/config.json`

const rootShortDesc string = "Terminal chat client for OpenAI-compatible APIs"

type rootCommander struct {
	configPath string
	debug      bool
	baseURL    string
	model      string
	apiKey     string
}

func NewRootCmd() *cobra.Command {
	cmder := &rootCommander{}

	cmd := &cobra.Command{
		Use:           "banter",
		Short:         rootShortDesc,
		Long:          rootLongDesc,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.configPath, "config", "c", "", "Path to config file (default: ./config.json)")
	cmd.Flags().BoolVar(&cmder.debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&cmder.baseURL, "base-url", "", "Override the API base URL")
	cmd.Flags().StringVar(&cmder.model, "model", "", "Override the model name")
	cmd.Flags().StringVar(&cmder.apiKey, "api-key", "", "Override the API key")

	cmd.AddCommand(NewVersionCmd())

	return cmd
}

func (c *rootCommander) run(cmd *cobra.Command) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("banter is interactive and needs a terminal")
	}

	// Bootstrap logger for config loading; replaced once the log
	// section is known.
	boot, err := logger.New(c.debug, "")
	if err != nil {
		return fmt.Errorf("could not create logger: %w", err)
	}

	cfg, err := config.Load(c.configPath, boot)
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}

	// Flags win over the environment and the file, for this process
	// only.
	if cmd.Flags().Changed("base-url") {
		cfg.Override(config.KeyAIBaseURL, c.baseURL)
	}
	if cmd.Flags().Changed("model") {
		cfg.Override(config.KeyAIModel, c.model)
	}
	if cmd.Flags().Changed("api-key") {
		cfg.Override(config.KeyAIAPIKey, c.apiKey)
	}
	if cmd.Flags().Changed("debug") {
		cfg.Override(config.KeyLogDebug, c.debug)
	}

	logCfg := cfg.Log()
	log, err := logger.New(logCfg.Debug, logCfg.File)
	if err != nil {
		return fmt.Errorf("could not create logger: %w", err)
	}
	defer log.Sync()

	chatCfg := cfg.Chat()

	presets, err := agent.LoadPresets(chatCfg.PresetsFile)
	if err != nil {
		return fmt.Errorf("could not load presets: %w", err)
	}

	ai := cfg.AI()
	transport := client.New(client.Config{
		BaseURL:     ai.BaseURL,
		APIKey:      ai.APIKey,
		Model:       ai.Model,
		Temperature: ai.Temperature,
	}, log)

	opts := []agent.Option{
		agent.WithTransport(transport),
		agent.WithLogger(log),
	}
	if chatCfg.MaxHistory > 0 {
		opts = append(opts, agent.WithMaxHistory(chatCfg.MaxHistory))
	}

	if _, ok := presets[chatCfg.Preset]; !ok && chatCfg.SystemPrompt == "" {
		log.Warn("unknown preset, using default",
			zap.String("preset", chatCfg.Preset),
			zap.Strings("known", agent.PresetNames()),
		)
	}

	a := agent.NewFromPreset(presets, chatCfg.Preset, opts...)
	if chatCfg.SystemPrompt != "" {
		a.SetSystemPrompt(chatCfg.SystemPrompt)
	}

	log.Info("banter starting",
		zap.String("version", version),
		zap.String("config", cfg.Path()),
		zap.String("model", ai.Model),
		zap.String("baseURL", ai.BaseURL),
		zap.Int("maxHistory", chatCfg.MaxHistory),
	)

	return chat.Run(chat.Options{
		Agent:   a,
		Config:  cfg,
		Logger:  log,
		Presets: presets,
	})
}

func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the banter version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "banter "+version)
		},
	}
}

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
