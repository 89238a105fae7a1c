package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/RazeViana/Caitlyn/internal/ai"
	"github.com/RazeViana/Caitlyn/internal/config"
	"github.com/RazeViana/Caitlyn/internal/gateway"
	"github.com/RazeViana/Caitlyn/internal/logging"
	"github.com/RazeViana/Caitlyn/internal/store"
)

// ReplierFactory builds the chat client for the chat command (allows mocking in tests)
type ReplierFactory func(cfg *config.Config) (ai.Replier, error)

// DefaultReplierFactory talks to the configured model provider.
func DefaultReplierFactory(cfg *config.Config) (ai.Replier, error) {
	provider, err := ai.NewProvider(cfg.AI)
	if err != nil {
		return nil, err
	}
	return ai.NewChat(provider, cfg.AI), nil
}

// ChatOptions for running the chat command with custom dependencies
type ChatOptions struct {
	ReplierFactory ReplierFactory
	Stdin          io.Reader
	Stdout         io.Writer
	Stderr         io.Writer
}

var rootCmd = &cobra.Command{
	Use:   "caitlyn",
	Short: "caitlyn - community bot for Discord and Telegram",
}

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the bot (channels + reminders + archive)",
	RunE:  runGateway,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Write a default config file",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show caitlyn status",
	RunE:  runStatus,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	RunE:  runMigrate,
}

var registerCmd = &cobra.Command{
	Use:   "register-commands",
	Short: "Publish slash command definitions to Discord",
	RunE:  runRegisterCommands,
}

var trimCmd = &cobra.Command{
	Use:   "trim",
	Short: "Delete archived messages past the retention window",
	RunE:  runTrim,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the model in single message or REPL mode",
	RunE:  runChat,
}

var messageFlag string

func init() {
	chatCmd.Flags().StringVarP(&messageFlag, "message", "m", "", "Single message to send")
	rootCmd.AddCommand(gatewayCmd, onboardCmd, statusCmd, migrateCmd, registerCmd, trimCmd, chatCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	return cfg, logging.New(cfg.Log.Level, cfg.Log.Pretty), nil
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Discord.Enabled && !cfg.Telegram.Enabled {
		return fmt.Errorf("no channel enabled. Run 'caitlyn onboard' and enable discord or telegram")
	}

	gw, err := gateway.New(context.Background(), cfg, log)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}
	return gw.Run(context.Background())
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgPath := config.ConfigPath()

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.SaveConfig(config.DefaultConfig()); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s to set your Discord or Telegram token\n", cfgPath)
	fmt.Println("  2. Or set CAITLYN_DISCORD_TOKEN / CAITLYN_TELEGRAM_TOKEN")
	fmt.Println("  3. Run 'caitlyn migrate' and then 'caitlyn gateway'")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Discord: enabled=%v token=%s\n", cfg.Discord.Enabled, mask(cfg.Discord.Token))
	fmt.Printf("Telegram: enabled=%v token=%s\n", cfg.Telegram.Enabled, mask(cfg.Telegram.Token))
	fmt.Printf("Database: %s\n", databaseDisplay(cfg.Database))
	fmt.Printf("AI: enabled=%v model=%s provider=%s key=%s\n",
		cfg.AI.Enabled, cfg.AI.Model, providerDisplay(cfg.AI.Provider.Type), mask(cfg.AI.Provider.APIKey))
	fmt.Printf("Embedding: %s (%s)\n", cfg.Embedding.Provider, cfg.Embedding.Model)
	fmt.Printf("Giphy: key=%s\n", mask(cfg.Giphy.APIKey))
	fmt.Printf("Birthdays: %02d:%02d %s\n", cfg.Birthday.NotifyHour, cfg.Birthday.NotifyMinute, zoneDisplay(cfg.Birthday.Timezone))
	fmt.Printf("Retention: %d days (%s)\n", cfg.Context.RetentionDays, cfg.Context.RetentionCron)
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(context.Background(), cfg.Database)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	if err := st.Migrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	fmt.Printf("Schema up to date (%s)\n", st.Driver())
	return nil
}

func runRegisterCommands(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Discord.Token == "" || cfg.Discord.AppID == "" {
		return fmt.Errorf("discord token and app id are required")
	}
	gw, err := gateway.New(context.Background(), cfg, log)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}
	defer gw.Close()

	n, err := gw.RegisterCommands()
	if err != nil {
		return fmt.Errorf("register commands: %w", err)
	}
	scope := "globally"
	if cfg.Discord.GuildID != "" {
		scope = "for guild " + cfg.Discord.GuildID
	}
	fmt.Printf("Registered %d commands %s\n", n, scope)
	return nil
}

func runTrim(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	gw, err := gateway.New(context.Background(), cfg, log)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}
	defer gw.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	n, err := gw.Trim(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d messages older than %d days\n", n, cfg.Context.RetentionDays)
	return nil
}

func runChat(cmd *cobra.Command, args []string) error {
	return runChatWithOptions(ChatOptions{})
}

// runChatWithOptions runs the chat command with injectable dependencies for testing
func runChatWithOptions(opts ChatOptions) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	factory := opts.ReplierFactory
	if factory == nil {
		factory = DefaultReplierFactory
	}
	chat, err := factory(cfg)
	if err != nil {
		return err
	}

	stdin := opts.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	ctx := context.Background()

	if messageFlag != "" {
		reply, ok, err := chat.Reply(ctx, "cli", nil, "cli", messageFlag)
		if err != nil {
			return fmt.Errorf("chat error: %w", err)
		}
		if ok {
			fmt.Fprintln(stdout, reply)
		}
		return nil
	}

	fmt.Fprintln(stdout, "caitlyn chat (type 'exit' to quit)")
	scanner := bufio.NewScanner(stdin)
	for {
		fmt.Fprint(stdout, "\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		reply, ok, err := chat.Reply(ctx, "cli-repl", nil, "cli", input)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			continue
		}
		if ok {
			fmt.Fprintln(stdout, reply)
		}
	}
	return nil
}

func mask(secret string) string {
	switch {
	case secret == "":
		return "not set"
	case len(secret) > 8:
		return secret[:4] + "..." + secret[len(secret)-4:]
	default:
		return "set"
	}
}

func providerDisplay(t string) string {
	if t == "" {
		return "openai (default)"
	}
	return t
}

func databaseDisplay(db config.DatabaseConfig) string {
	if db.Driver == config.DriverPostgres {
		return "postgres"
	}
	return "sqlite " + db.Path
}

func zoneDisplay(tz string) string {
	if tz == "" {
		return "local"
	}
	return tz
}
