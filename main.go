package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/HugeFrog24/create-tg-app/portal"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// A missing .env is normal; real environment variables still apply.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	a := newApp()

	err := rootCmd(a).ExecuteContext(ctx)
	a.close()
	cancel()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if hint := hintFor(err); hint != "" {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
		}
		os.Exit(1)
	}
}

// app holds what the subcommands share. It is opened lazily so version and
// platforms work without a config or journal.
type app struct {
	configDir  string
	configFile string

	clock    Clock
	prompter CodePrompter

	cfg         Config
	log         *zap.Logger
	db          *gorm.DB
	journal     *Journal
	provisioner *Provisioner
}

func newApp() *app {
	return &app{
		configDir: ".",
		clock:     RealClock{},
		prompter:  huhPrompter{},
	}
}

func (a *app) open() error {
	if a.provisioner != nil {
		return nil
	}

	cfg := defaultConfig()
	if a.configFile != "" {
		path, err := validateConfigPath(a.configDir, a.configFile)
		if err != nil {
			return err
		}
		if cfg, err = loadConfig(path); err != nil {
			return err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return err
	}
	if err := validateConfig(&cfg); err != nil {
		return err
	}
	a.cfg = cfg

	log, err := initLogger(cfg.Log)
	if err != nil {
		return err
	}
	a.log = log

	db, err := initDB(cfg.Journal.Path, log)
	if err != nil {
		return err
	}
	a.db = db
	a.journal = NewJournal(db, a.clock)

	opts, err := cfg.Portal.portalOptions()
	if err != nil {
		return err
	}
	client := portal.NewClient(append(opts, portal.WithLogger(log.Named("portal")))...)

	limiter, err := newCodeLimiter(cfg.Limits, a.clock)
	if err != nil {
		return err
	}

	p := NewProvisioner(client, a.journal, limiter, a.clock, log)

	if cfg.Notify.TelegramToken != "" {
		tgClient, err := initTelegramClient(cfg.Notify.TelegramToken)
		if err != nil {
			return fmt.Errorf("failed to initialize Telegram notifier: %w", err)
		}
		p.notifier = newTelegramNotifier(tgClient, cfg.Notify.ChatID, log)
	}

	if cfg.Describe.APIKey != "" {
		p.describer = newAnthropicDescriber(cfg.Describe.APIKey, cfg.Describe.Model)
	} else if cfg.Describe.Enabled {
		log.Warn("describe.enabled is set but ANTHROPIC_API_KEY is empty; descriptions will not be drafted")
	}

	a.provisioner = p
	return nil
}

func (a *app) close() {
	if a.db != nil {
		if err := closeDB(a.db); err != nil && a.log != nil {
			a.log.Warn("failed to close journal", zap.Error(err))
		}
		a.db = nil
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}

func rootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "create-tg-app",
		Short:         "Register a Telegram API application on my.telegram.org",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "Config file (.json, .yaml, .yml) inside --config-dir")
	root.PersistentFlags().StringVar(&a.configDir, "config-dir", ".", "Directory config files are resolved against")

	root.AddCommand(
		versionCmd(),
		platformsCmd(),
		sendCodeCmd(a),
		signInCmd(a),
		createAppCmd(a),
		credentialsCmd(a),
		provisionCmd(a),
		historyCmd(a),
	)
	return root
}

// hintFor suggests what the user can do about err.
func hintFor(err error) string {
	switch {
	case errors.Is(err, errCodeRateLimited):
		return "wait before requesting another code for this phone"
	case errors.Is(err, errNoRandomHash):
		return "the portal sent no code; check the number has a Telegram account, or wait and retry"
	}

	switch portal.ErrorKind(err) {
	case portal.KindValidation:
		return "enter the phone in international format, e.g. +1 234 567 8900"
	case portal.KindAuthentication:
		return "the code was rejected; run send-code again to get a new one"
	case portal.KindSession:
		return "no session was started; request a new code and sign in again"
	case portal.KindAppCreation:
		return "the portal rejected the form; check the title and that the short name is 5-32 alphanumeric characters"
	case portal.KindScrape:
		return "the apps page was not what we expected; the session may have expired, sign in again"
	case portal.KindTransport:
		return "my.telegram.org could not be reached; check the connection or the proxy setting"
	}
	return ""
}
