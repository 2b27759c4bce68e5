package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/HugeFrog24/create-tg-app/portal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testPhone = "99900000000"

type stubDescriber struct {
	description string
	err         error
	calls       int
}

func (d *stubDescriber) Describe(context.Context, portal.App) (string, error) {
	d.calls++
	return d.description, d.err
}

type provisionerFixture struct {
	provisioner *Provisioner
	portal      *MockPortalClient
	journal     *Journal
	clock       *MockClock
	notifier    *MockNotifier
}

func newProvisionerFixture(t *testing.T, limits LimitsConfig) *provisionerFixture {
	t.Helper()

	db := setupTestDB(t)
	clock := NewMockClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	journal := NewJournal(db, clock)

	limiter, err := newCodeLimiter(limits, clock)
	require.NoError(t, err)

	mockPortal := &MockPortalClient{}
	notifier := &MockNotifier{}

	p := NewProvisioner(mockPortal, journal, limiter, clock, zap.NewNop())
	p.notifier = notifier

	return &provisionerFixture{
		provisioner: p,
		portal:      mockPortal,
		journal:     journal,
		clock:       clock,
		notifier:    notifier,
	}
}

func defaultTestLimits() LimitsConfig {
	return LimitsConfig{CodesPerHour: 3, CodesPerDay: 10, TempBanDuration: "15m"}
}

func testApp() portal.App {
	return portal.App{
		Title:     "My App",
		ShortName: "myapp1",
		Platform:  portal.PlatformDesktop,
	}
}

func TestProvisionerRequestCode(t *testing.T) {
	f := newProvisionerFixture(t, defaultTestLimits())
	f.portal.On("RequestConfirmationCode", mock.Anything, "+999 000 000 00").Return("h1", nil).Once()

	hash, err := f.provisioner.RequestCode(context.Background(), "run-1", "+999 000 000 00")
	require.NoError(t, err)
	assert.Equal(t, "h1", hash)
	f.portal.AssertExpectations(t)

	attempts, err := f.journal.Run("run-1")
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, stepSendCode, attempts[0].Step)
	assert.Equal(t, statusOK, attempts[0].Status)
	assert.Equal(t, "+999******00", attempts[0].PhoneMasked)
}

func TestProvisionerRequestCodeInvalidPhone(t *testing.T) {
	f := newProvisionerFixture(t, defaultTestLimits())

	_, err := f.provisioner.RequestCode(context.Background(), "run-1", "call me")
	require.Error(t, err)
	assert.Equal(t, portal.KindValidation, portal.ErrorKind(err))
	f.portal.AssertNotCalled(t, "RequestConfirmationCode", mock.Anything, mock.Anything)
}

func TestProvisionerRequestCodeEmptyHash(t *testing.T) {
	f := newProvisionerFixture(t, defaultTestLimits())
	f.portal.On("RequestConfirmationCode", mock.Anything, testPhone).Return("", nil).Once()

	_, err := f.provisioner.RequestCode(context.Background(), "run-1", testPhone)
	assert.ErrorIs(t, err, errNoRandomHash)

	attempts, err := f.journal.Run("run-1")
	require.NoError(t, err)
	assert.Equal(t, kindNoRandomHash, attempts[0].ErrorKind)
}

func TestProvisionerRequestCodeRateLimited(t *testing.T) {
	f := newProvisionerFixture(t, LimitsConfig{CodesPerHour: 2, CodesPerDay: 10, TempBanDuration: "15m"})
	f.portal.On("RequestConfirmationCode", mock.Anything, testPhone).Return("h1", nil).Times(2)

	for i := 0; i < 2; i++ {
		_, err := f.provisioner.RequestCode(context.Background(), "run-1", testPhone)
		require.NoError(t, err)
	}

	_, err := f.provisioner.RequestCode(context.Background(), "run-1", testPhone)
	assert.ErrorIs(t, err, errCodeRateLimited)
	f.portal.AssertNumberOfCalls(t, "RequestConfirmationCode", 2)

	attempts, err := f.journal.Run("run-1")
	require.NoError(t, err)
	require.Len(t, attempts, 3)
	assert.Equal(t, kindRateLimited, attempts[2].ErrorKind)
}

func TestProvisionerRequestCodeRemembersEarlierProcesses(t *testing.T) {
	f := newProvisionerFixture(t, LimitsConfig{CodesPerHour: 2, CodesPerDay: 10, TempBanDuration: "15m"})

	// An earlier process already used this hour's allowance.
	for i := 0; i < 2; i++ {
		attempt, err := f.journal.Begin("earlier", testPhone, stepSendCode, "")
		require.NoError(t, err)
		require.NoError(t, f.journal.Finish(attempt, nil))
	}

	_, err := f.provisioner.RequestCode(context.Background(), "run-1", testPhone)
	assert.ErrorIs(t, err, errCodeRateLimited)
	f.portal.AssertNotCalled(t, "RequestConfirmationCode", mock.Anything, mock.Anything)
}

func TestProvisionerSignInFailure(t *testing.T) {
	f := newProvisionerFixture(t, defaultTestLimits())
	f.portal.On("SignIn", mock.Anything, testPhone, "h1", "00000").
		Return("", portal.NewAuthenticationError("Invalid confirmation code!")).Once()

	_, err := f.provisioner.SignIn(context.Background(), "run-1", testPhone, "h1", "00000")
	require.Error(t, err)
	assert.Equal(t, portal.KindAuthentication, portal.ErrorKind(err))

	attempts, err := f.journal.Run("run-1")
	require.NoError(t, err)
	assert.Equal(t, statusFailed, attempts[0].Status)
	assert.Equal(t, portal.KindAuthentication, attempts[0].ErrorKind)
	assert.NotContains(t, attempts[0].Detail, "00000")
}

func TestProvisionerRun(t *testing.T) {
	f := newProvisionerFixture(t, defaultTestLimits())
	app := testApp()

	f.portal.On("RequestConfirmationCode", mock.Anything, testPhone).Return("h1", nil).Once()
	f.portal.On("SignIn", mock.Anything, testPhone, "h1", "11111").Return("tok", nil).Once()
	f.portal.On("CreateApplication", mock.Anything, "tok", app).Return(app, nil).Once()
	f.portal.On("GetCredentials", mock.Anything, "tok").
		Return(portal.Credentials{APIID: "12345", APIHash: "deadbeef"}, nil).Once()

	prompter := &scriptedPrompter{codes: []string{"11111"}}
	res, err := f.provisioner.Run(context.Background(), ProvisionRequest{Phone: "+999 000 000 00", App: app}, prompter)
	require.NoError(t, err)
	f.portal.AssertExpectations(t)

	assert.NotEmpty(t, res.RunID)
	assert.False(t, res.Existing)
	assert.Equal(t, "12345", res.Credentials.APIID)
	assert.Equal(t, "deadbeef", res.Credentials.APIHash)

	attempts, err := f.journal.Run(res.RunID)
	require.NoError(t, err)
	require.Len(t, attempts, 4)
	for i, step := range []string{stepSendCode, stepSignIn, stepCreateApp, stepCredentials} {
		assert.Equal(t, step, attempts[i].Step)
		assert.Equal(t, statusOK, attempts[i].Status)
	}
	assert.Equal(t, "myapp1", attempts[2].AppShortName)

	require.Len(t, f.notifier.reports, 1)
	report := f.notifier.reports[0]
	assert.NoError(t, report.Err)
	assert.Equal(t, res.RunID, report.RunID)
	assert.Equal(t, "12345", report.APIID)
}

func TestProvisionerRunRetriesRejectedCode(t *testing.T) {
	f := newProvisionerFixture(t, defaultTestLimits())
	app := testApp()

	f.portal.On("RequestConfirmationCode", mock.Anything, testPhone).Return("h1", nil).Once()
	f.portal.On("RequestConfirmationCode", mock.Anything, testPhone).Return("h2", nil).Once()
	f.portal.On("SignIn", mock.Anything, testPhone, "h1", "99999").
		Return("", portal.NewAuthenticationError("Invalid confirmation code!")).Once()
	f.portal.On("SignIn", mock.Anything, testPhone, "h2", "22222").Return("tok", nil).Once()
	f.portal.On("CreateApplication", mock.Anything, "tok", app).Return(app, nil).Once()
	f.portal.On("GetCredentials", mock.Anything, "tok").
		Return(portal.Credentials{APIID: "1", APIHash: "x"}, nil).Once()

	prompter := &scriptedPrompter{codes: []string{"99999", "22222"}, confirms: []bool{true}}
	_, err := f.provisioner.Run(context.Background(), ProvisionRequest{Phone: testPhone, App: app}, prompter)
	require.NoError(t, err)
	f.portal.AssertExpectations(t)
	assert.Equal(t, 2, prompter.prompts)
}

func TestProvisionerRunDeclinedRetry(t *testing.T) {
	f := newProvisionerFixture(t, defaultTestLimits())

	f.portal.On("RequestConfirmationCode", mock.Anything, testPhone).Return("h1", nil).Once()
	f.portal.On("SignIn", mock.Anything, testPhone, "h1", "99999").
		Return("", portal.NewAuthenticationError("Invalid confirmation code!")).Once()

	prompter := &scriptedPrompter{codes: []string{"99999"}, confirms: []bool{false}}
	_, err := f.provisioner.Run(context.Background(), ProvisionRequest{Phone: testPhone, App: testApp()}, prompter)
	require.Error(t, err)
	assert.Equal(t, portal.KindAuthentication, portal.ErrorKind(err))
	f.portal.AssertNotCalled(t, "CreateApplication", mock.Anything, mock.Anything, mock.Anything)

	require.Len(t, f.notifier.reports, 1)
	assert.Equal(t, stepSignIn, f.notifier.reports[0].Step)
}

func TestProvisionerRunExistingApp(t *testing.T) {
	f := newProvisionerFixture(t, defaultTestLimits())
	app := testApp()

	f.portal.On("RequestConfirmationCode", mock.Anything, testPhone).Return("h1", nil).Once()
	f.portal.On("SignIn", mock.Anything, testPhone, "h1", "11111").Return("tok", nil).Once()
	f.portal.On("CreateApplication", mock.Anything, "tok", app).
		Return(portal.App{}, portal.NewScrapeError("hash", "creation form not found")).Once()
	f.portal.On("GetCredentials", mock.Anything, "tok").
		Return(portal.Credentials{APIID: "777", APIHash: "cafe"}, nil).Once()

	prompter := &scriptedPrompter{codes: []string{"11111"}}
	res, err := f.provisioner.Run(context.Background(), ProvisionRequest{Phone: testPhone, App: app}, prompter)
	require.NoError(t, err)
	assert.True(t, res.Existing)
	assert.Equal(t, "777", res.Credentials.APIID)

	require.Len(t, f.notifier.reports, 1)
	assert.True(t, f.notifier.reports[0].Existing)
}

func TestProvisionerRunCreationRejected(t *testing.T) {
	f := newProvisionerFixture(t, defaultTestLimits())
	app := testApp()
	app.Title = ""

	f.portal.On("RequestConfirmationCode", mock.Anything, testPhone).Return("h1", nil).Once()
	f.portal.On("SignIn", mock.Anything, testPhone, "h1", "11111").Return("tok", nil).Once()
	f.portal.On("CreateApplication", mock.Anything, "tok", app).
		Return(portal.App{}, portal.NewAppCreationError("incorrect app title")).Once()

	prompter := &scriptedPrompter{codes: []string{"11111"}}
	_, err := f.provisioner.Run(context.Background(), ProvisionRequest{Phone: testPhone, App: app}, prompter)
	require.Error(t, err)
	assert.Equal(t, portal.KindAppCreation, portal.ErrorKind(err))
	f.portal.AssertNotCalled(t, "GetCredentials", mock.Anything, mock.Anything)

	require.Len(t, f.notifier.reports, 1)
	assert.Equal(t, stepCreateApp, f.notifier.reports[0].Step)
}

func TestProvisionerRunNotifyFailureIsNotFatal(t *testing.T) {
	f := newProvisionerFixture(t, defaultTestLimits())
	f.notifier.err = errors.New("chat not found")
	app := testApp()

	f.portal.On("RequestConfirmationCode", mock.Anything, testPhone).Return("h1", nil).Once()
	f.portal.On("SignIn", mock.Anything, testPhone, "h1", "11111").Return("tok", nil).Once()
	f.portal.On("CreateApplication", mock.Anything, "tok", app).Return(app, nil).Once()
	f.portal.On("GetCredentials", mock.Anything, "tok").
		Return(portal.Credentials{APIID: "1", APIHash: "x"}, nil).Once()

	_, err := f.provisioner.Run(context.Background(), ProvisionRequest{Phone: testPhone, App: app},
		&scriptedPrompter{codes: []string{"11111"}})
	assert.NoError(t, err)
}

func TestProvisionerRunDraftsDescription(t *testing.T) {
	f := newProvisionerFixture(t, defaultTestLimits())
	describer := &stubDescriber{description: "A desktop client for notes."}
	f.provisioner.describer = describer

	app := testApp()
	described := app
	described.Description = "A desktop client for notes."

	f.portal.On("RequestConfirmationCode", mock.Anything, testPhone).Return("h1", nil).Once()
	f.portal.On("SignIn", mock.Anything, testPhone, "h1", "11111").Return("tok", nil).Once()
	f.portal.On("CreateApplication", mock.Anything, "tok", described).Return(described, nil).Once()
	f.portal.On("GetCredentials", mock.Anything, "tok").
		Return(portal.Credentials{APIID: "1", APIHash: "x"}, nil).Once()

	res, err := f.provisioner.Run(context.Background(), ProvisionRequest{Phone: testPhone, App: app, Describe: true},
		&scriptedPrompter{codes: []string{"11111"}})
	require.NoError(t, err)
	assert.Equal(t, described.Description, res.App.Description)
	assert.Equal(t, 1, describer.calls)
	f.portal.AssertExpectations(t)
}

func TestProvisionerDraftDescription(t *testing.T) {
	f := newProvisionerFixture(t, defaultTestLimits())
	ctx := context.Background()

	// No describer configured.
	assert.Empty(t, f.provisioner.DraftDescription(ctx, testApp()).Description)

	describer := &stubDescriber{description: "drafted"}
	f.provisioner.describer = describer

	written := testApp()
	written.Description = "mine"
	assert.Equal(t, "mine", f.provisioner.DraftDescription(ctx, written).Description)
	assert.Equal(t, 0, describer.calls)

	describer.err = errors.New("overloaded")
	assert.Empty(t, f.provisioner.DraftDescription(ctx, testApp()).Description)
}
