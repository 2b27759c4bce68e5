package main

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/HugeFrog24/create-tg-app/portal"
	"github.com/liushuangls/go-anthropic/v2"
)

const maxDescriptionLength = 120

// Describer drafts the optional app description.
type Describer interface {
	Describe(ctx context.Context, app portal.App) (string, error)
}

type anthropicDescriber struct {
	client *anthropic.Client
	model  anthropic.Model
}

func newAnthropicDescriber(apiKey, model string, opts ...anthropic.ClientOption) *anthropicDescriber {
	return &anthropicDescriber{
		client: anthropic.NewClient(apiKey, opts...),
		model:  anthropic.Model(model),
	}
}

func describePrompt(app portal.App) string {
	prompt := fmt.Sprintf("App title: %s\nPlatform: %s", app.Title, platformDisplayName(app.Platform))
	if app.URL != "" {
		prompt += "\nWebsite: " + app.URL
	}
	return prompt
}

func (d *anthropicDescriber) Describe(ctx context.Context, app portal.App) (string, error) {
	systemMessage := "You write the description field of a Telegram API application registration. " +
		"Reply with one plain sentence of at most 120 characters, no quotes, no markdown."

	resp, err := d.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:  d.model,
		System: systemMessage,
		Messages: []anthropic.Message{
			{
				Role: anthropic.RoleUser,
				Content: []anthropic.MessageContent{
					anthropic.NewTextMessageContent(describePrompt(app)),
				},
			},
		},
		MaxTokens: 100,
	})
	if err != nil {
		return "", fmt.Errorf("error creating Anthropic message: %w", err)
	}

	if len(resp.Content) == 0 || resp.Content[0].Type != anthropic.MessagesContentTypeText {
		return "", fmt.Errorf("unexpected response format from Anthropic")
	}

	return cleanDescription(resp.Content[0].GetText()), nil
}

// cleanDescription keeps the first line, drops wrapping quotes and caps the
// length the portal form accepts comfortably.
func cleanDescription(s string) string {
	s, _, _ = strings.Cut(strings.TrimSpace(s), "\n")
	s = strings.TrimSpace(strings.Trim(s, `"'`))

	if utf8.RuneCountInString(s) > maxDescriptionLength {
		runes := []rune(s)
		s = strings.TrimSpace(string(runes[:maxDescriptionLength]))
	}
	return s
}
