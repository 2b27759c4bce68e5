package main

import (
	"context"

	"github.com/HugeFrog24/create-tg-app/portal"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/mock"
)

// MockTelegramClient is a mock implementation of TelegramClient for testing.
type MockTelegramClient struct {
	mock.Mock
	SendMessageFunc func(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// SendMessage mocks sending a message.
func (m *MockTelegramClient) SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	if m.SendMessageFunc != nil {
		return m.SendMessageFunc(ctx, params)
	}
	args := m.Called(ctx, params)
	if msg, ok := args.Get(0).(*models.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

// MockPortalClient is a testify mock of PortalClient.
type MockPortalClient struct {
	mock.Mock
}

func (m *MockPortalClient) RequestConfirmationCode(ctx context.Context, phone string) (string, error) {
	args := m.Called(ctx, phone)
	return args.String(0), args.Error(1)
}

func (m *MockPortalClient) SignIn(ctx context.Context, phone, randomHash, code string) (string, error) {
	args := m.Called(ctx, phone, randomHash, code)
	return args.String(0), args.Error(1)
}

func (m *MockPortalClient) CreateApplication(ctx context.Context, token string, app portal.App) (portal.App, error) {
	args := m.Called(ctx, token, app)
	return args.Get(0).(portal.App), args.Error(1)
}

func (m *MockPortalClient) GetCredentials(ctx context.Context, token string) (portal.Credentials, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(portal.Credentials), args.Error(1)
}

// scriptedPrompter answers code prompts and confirmations from fixed lists.
type scriptedPrompter struct {
	codes    []string
	confirms []bool
	prompts  int
}

func (p *scriptedPrompter) PromptCode(_ context.Context, _ portal.PhoneNumber) (string, error) {
	if p.prompts >= len(p.codes) {
		return "", context.Canceled
	}
	code := p.codes[p.prompts]
	p.prompts++
	return code, nil
}

func (p *scriptedPrompter) Confirm(_ context.Context, _ string) (bool, error) {
	if len(p.confirms) == 0 {
		return false, nil
	}
	ok := p.confirms[0]
	p.confirms = p.confirms[1:]
	return ok, nil
}

// MockNotifier records reports.
type MockNotifier struct {
	reports []Report
	err     error
}

func (n *MockNotifier) Notify(_ context.Context, report Report) error {
	n.reports = append(n.reports, report)
	return n.err
}
