package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/HugeFrog24/create-tg-app/portal"
	"github.com/go-telegram/bot"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Report is the outcome of one provision run.
type Report struct {
	RunID    string
	Phone    portal.PhoneNumber
	App      portal.App
	APIID    string
	Existing bool // the account already had an app; nothing was created
	Step     string
	Err      error
}

// Notifier delivers provision reports to an operator.
type Notifier interface {
	Notify(ctx context.Context, report Report) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Report) error { return nil }

// telegramNotifier posts reports to one chat through a bot.
type telegramNotifier struct {
	client TelegramClient
	chatID int64
	log    *zap.Logger
}

func newTelegramNotifier(client TelegramClient, chatID int64, log *zap.Logger) *telegramNotifier {
	return &telegramNotifier{client: client, chatID: chatID, log: log}
}

func (n *telegramNotifier) Notify(ctx context.Context, report Report) error {
	_, err := n.client.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: n.chatID,
		Text:   formatReport(report),
	})
	if err != nil {
		n.log.Error("telegramNotifier.Notify error sending message",
			zap.Int64("chat_id", n.chatID),
			zap.String("run_id", report.RunID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to send report: %w", err)
	}
	return nil
}

// formatReport renders a plain-text report. The api_hash never appears.
func formatReport(r Report) string {
	var b strings.Builder

	if r.Err != nil {
		fmt.Fprintf(&b, "❌ Telegram app provisioning failed\n\n")
		fmt.Fprintf(&b, "- Phone: %s\n", r.Phone.Masked())
		fmt.Fprintf(&b, "- Step: %s\n", r.Step)
		fmt.Fprintf(&b, "- Kind: %s\n", attemptKind(r.Err))
		if r.App.ShortName != "" {
			fmt.Fprintf(&b, "- App: %s\n", r.App.ShortName)
		}
		fmt.Fprintf(&b, "- Run: %s", r.RunID)
		return b.String()
	}

	if r.Existing {
		fmt.Fprintf(&b, "ℹ️ Telegram app already registered\n\n")
	} else {
		fmt.Fprintf(&b, "✅ Telegram app provisioned\n\n")
		fmt.Fprintf(&b, "- Title: %s\n", r.App.Title)
		fmt.Fprintf(&b, "- Short name: %s\n", r.App.ShortName)
		fmt.Fprintf(&b, "- Platform: %s\n", platformDisplayName(r.App.Platform))
	}
	fmt.Fprintf(&b, "- Phone: %s\n", r.Phone.Masked())
	fmt.Fprintf(&b, "- api_id: %s\n", r.APIID)
	fmt.Fprintf(&b, "- Run: %s", r.RunID)
	return b.String()
}

var platformNames = map[portal.Platform]string{
	portal.PlatformIOS:          "iOS",
	portal.PlatformWindowsPhone: "Windows Phone",
	portal.PlatformBlackBerry:   "BlackBerry",
	portal.PlatformUbuntuPhone:  "Ubuntu Phone",
}

func platformDisplayName(p portal.Platform) string {
	if name, ok := platformNames[p]; ok {
		return name
	}
	return cases.Title(language.English).String(string(p))
}
