package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/HugeFrog24/create-tg-app/portal"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// envSessionToken lets scripts pass stel_token without putting it in argv.
const envSessionToken = "TG_STEL_TOKEN"

// appFlags are the registration form fields shared by create-app and provision.
type appFlags struct {
	title       string
	shortName   string
	url         string
	platform    string
	description string
	describe    bool
}

func (f *appFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "App title")
	cmd.Flags().StringVar(&f.shortName, "short-name", "", "App short name (5-32 alphanumeric characters)")
	cmd.Flags().StringVar(&f.url, "url", "", "App URL")
	cmd.Flags().StringVar(&f.platform, "platform", "", "App platform (see the platforms command)")
	cmd.Flags().StringVar(&f.description, "description", "", "App description")
	cmd.Flags().BoolVar(&f.describe, "describe", false, "Draft an empty description with Anthropic")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("short-name")
}

func (f *appFlags) app(defaultPlatform string) (portal.App, error) {
	raw := f.platform
	if raw == "" {
		raw = defaultPlatform
	}
	platform, err := portal.ParsePlatform(raw)
	if err != nil {
		return portal.App{}, err
	}
	return portal.App{
		Title:       f.title,
		ShortName:   f.shortName,
		URL:         f.url,
		Platform:    platform,
		Description: f.description,
	}, nil
}

func sessionToken(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if token := os.Getenv(envSessionToken); token != "" {
		return token, nil
	}
	return "", fmt.Errorf("a session token is required: pass --token or set %s", envSessionToken)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "create-tg-app %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

func platformsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "platforms",
		Short: "List accepted app platforms",
		Run: func(cmd *cobra.Command, args []string) {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, p := range portal.Platforms() {
				fmt.Fprintf(w, "%s\t%s\n", p, platformDisplayName(p))
			}
			_ = w.Flush()
		},
	}
}

func sendCodeCmd(a *app) *cobra.Command {
	var phone string
	cmd := &cobra.Command{
		Use:   "send-code",
		Short: "Ask Telegram to send a confirmation code and print the random hash",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			hash, err := a.provisioner.RequestCode(cmd.Context(), uuid.NewString(), phone)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	cmd.Flags().StringVar(&phone, "phone", "", "Phone number in international format")
	_ = cmd.MarkFlagRequired("phone")
	return cmd
}

func signInCmd(a *app) *cobra.Command {
	var phone, hash, code string
	cmd := &cobra.Command{
		Use:   "sign-in",
		Short: "Exchange a confirmation code for a session token and print it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			if code == "" {
				number, err := portal.NormalizePhone(phone)
				if err != nil {
					return err
				}
				if code, err = a.prompter.PromptCode(cmd.Context(), number); err != nil {
					return fmt.Errorf("read confirmation code: %w", err)
				}
			}
			token, err := a.provisioner.SignIn(cmd.Context(), uuid.NewString(), phone, hash, code)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&phone, "phone", "", "Phone number the code was sent to")
	cmd.Flags().StringVar(&hash, "hash", "", "Random hash printed by send-code")
	cmd.Flags().StringVar(&code, "code", "", "Confirmation code; prompted for when omitted")
	_ = cmd.MarkFlagRequired("phone")
	_ = cmd.MarkFlagRequired("hash")
	return cmd
}

func createAppCmd(a *app) *cobra.Command {
	var token, phone string
	var flags appFlags
	cmd := &cobra.Command{
		Use:   "create-app",
		Short: "Register an application for a signed-in session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			tok, err := sessionToken(token)
			if err != nil {
				return err
			}
			reg, err := flags.app(a.cfg.Defaults.Platform)
			if err != nil {
				return err
			}
			if flags.describe || a.cfg.Describe.Enabled {
				reg = a.provisioner.DraftDescription(cmd.Context(), reg)
			}

			// The phone only labels the journal row.
			var number portal.PhoneNumber
			if phone != "" {
				if number, err = portal.NormalizePhone(phone); err != nil {
					return err
				}
			}

			created, err := a.provisioner.CreateApp(cmd.Context(), uuid.NewString(), number, tok, reg)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), created)
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Session token printed by sign-in (or set "+envSessionToken+")")
	cmd.Flags().StringVar(&phone, "phone", "", "Phone number, recorded in the journal")
	flags.register(cmd)
	return cmd
}

func credentialsCmd(a *app) *cobra.Command {
	var token, phone string
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Print the api_id and api_hash of a signed-in session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			tok, err := sessionToken(token)
			if err != nil {
				return err
			}
			var number portal.PhoneNumber
			if phone != "" {
				if number, err = portal.NormalizePhone(phone); err != nil {
					return err
				}
			}
			creds, err := a.provisioner.Credentials(cmd.Context(), uuid.NewString(), number, tok)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), creds)
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Session token printed by sign-in (or set "+envSessionToken+")")
	cmd.Flags().StringVar(&phone, "phone", "", "Phone number, recorded in the journal")
	return cmd
}

type provisionOutput struct {
	RunID    string     `json:"run_id"`
	App      portal.App `json:"app"`
	APIID    string     `json:"api_id"`
	APIHash  string     `json:"api_hash"`
	Existing bool       `json:"existing"`
}

func provisionCmd(a *app) *cobra.Command {
	var phone string
	var flags appFlags
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Sign in interactively, register an app and print its credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			reg, err := flags.app(a.cfg.Defaults.Platform)
			if err != nil {
				return err
			}
			res, err := a.provisioner.Run(cmd.Context(), ProvisionRequest{
				Phone:    phone,
				App:      reg,
				Describe: flags.describe || a.cfg.Describe.Enabled,
			}, a.prompter)
			if err != nil {
				return err
			}
			if res.Existing {
				fmt.Fprintln(cmd.ErrOrStderr(), "This account already had an app; printing its credentials.")
			}
			return writeJSON(cmd.OutOrStdout(), provisionOutput{
				RunID:    res.RunID,
				App:      res.App,
				APIID:    res.Credentials.APIID,
				APIHash:  res.Credentials.APIHash,
				Existing: res.Existing,
			})
		},
	}
	cmd.Flags().StringVar(&phone, "phone", "", "Phone number in international format")
	_ = cmd.MarkFlagRequired("phone")
	flags.register(cmd)
	return cmd
}

func historyCmd(a *app) *cobra.Command {
	var limit int
	var runID string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent journal entries, or every step of one run",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return errors.New("--limit must be positive")
			}
			if err := a.open(); err != nil {
				return err
			}

			var attempts []Attempt
			var err error
			if runID != "" {
				attempts, err = a.journal.Run(runID)
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("no journal entries for run %s", runID)
				}
			} else {
				attempts, err = a.journal.Recent(limit)
			}
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tRUN\tSTEP\tSTATUS\tKIND\tPHONE\tAPP")
			for _, at := range attempts {
				kind := at.ErrorKind
				if kind == "" {
					kind = "-"
				}
				shortName := at.AppShortName
				if shortName == "" {
					shortName = "-"
				}
				phone := at.PhoneMasked
				if phone == "" {
					phone = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					at.StartedAt.Local().Format(time.DateTime),
					shortRunID(at.RunID),
					at.Step,
					at.Status,
					kind,
					phone,
					shortName,
				)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show")
	cmd.Flags().StringVar(&runID, "run", "", "Show the steps of one run instead")
	return cmd
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
