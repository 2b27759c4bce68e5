package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/HugeFrog24/create-tg-app/portal"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	errCodeRateLimited = errors.New("too many confirmation code requests for this phone")
	errNoRandomHash    = errors.New("portal did not return a random hash")
)

// PortalClient is the subset of *portal.Client the provisioner drives.
type PortalClient interface {
	RequestConfirmationCode(ctx context.Context, phone string) (string, error)
	SignIn(ctx context.Context, phone, randomHash, code string) (string, error)
	CreateApplication(ctx context.Context, token string, app portal.App) (portal.App, error)
	GetCredentials(ctx context.Context, token string) (portal.Credentials, error)
}

// Provisioner runs portal steps and records each one in the journal.
type Provisioner struct {
	portal    PortalClient
	journal   *Journal
	limiter   *codeLimiter
	notifier  Notifier
	describer Describer // nil when drafting is unavailable
	clock     Clock
	log       *zap.Logger
}

func NewProvisioner(client PortalClient, journal *Journal, limiter *codeLimiter, clock Clock, log *zap.Logger) *Provisioner {
	return &Provisioner{
		portal:   client,
		journal:  journal,
		limiter:  limiter,
		notifier: nopNotifier{},
		clock:    clock,
		log:      log,
	}
}

// record wraps one portal step with journal bookkeeping. Journal failures are
// logged and never hide the step's own result.
func (p *Provisioner) record(runID string, phone portal.PhoneNumber, step, appShortName string, fn func() error) error {
	attempt, err := p.journal.Begin(runID, phone, step, appShortName)
	if err != nil {
		p.log.Warn("Provisioner.record journal begin failed", zap.String("step", step), zap.Error(err))
	}

	stepErr := fn()

	if attempt != nil {
		if err := p.journal.Finish(attempt, stepErr); err != nil {
			p.log.Warn("Provisioner.record journal finish failed", zap.String("step", step), zap.Error(err))
		}
	}
	return stepErr
}

// primeLimiter loads the code requests made for phone by earlier processes.
func (p *Provisioner) primeLimiter(phone portal.PhoneNumber) {
	now := p.clock.Now()
	lastHour, err := p.journal.CountSince(phone, stepSendCode, now.Add(-time.Hour))
	if err != nil {
		p.log.Warn("Provisioner.primeLimiter count failed", zap.Error(err))
		return
	}
	lastDay, err := p.journal.CountSince(phone, stepSendCode, now.Add(-24*time.Hour))
	if err != nil {
		p.log.Warn("Provisioner.primeLimiter count failed", zap.Error(err))
		return
	}
	p.limiter.prime(phone, int(lastHour), int(lastDay))
}

// RequestCode asks the portal for a confirmation code. An empty random hash
// from the portal is reported as errNoRandomHash.
func (p *Provisioner) RequestCode(ctx context.Context, runID, phone string) (string, error) {
	number, err := portal.NormalizePhone(phone)
	if err != nil {
		return "", err
	}

	p.log.Info("Provisioner.RequestCode called", zap.String("run_id", runID), zap.String("phone", number.Masked()))

	if !p.limiter.known(number) {
		p.primeLimiter(number)
	}

	var hash string
	err = p.record(runID, number, stepSendCode, "", func() error {
		if !p.limiter.allow(number) {
			return errCodeRateLimited
		}
		var err error
		hash, err = p.portal.RequestConfirmationCode(ctx, phone)
		if err != nil {
			return err
		}
		if hash == "" {
			return errNoRandomHash
		}
		return nil
	})
	if err != nil {
		p.log.Warn("Provisioner.RequestCode failed", zap.String("run_id", runID), zap.String("kind", attemptKind(err)), zap.Error(err))
		return "", err
	}

	return hash, nil
}

// SignIn exchanges a code for the session token.
func (p *Provisioner) SignIn(ctx context.Context, runID, phone, randomHash, code string) (string, error) {
	number, err := portal.NormalizePhone(phone)
	if err != nil {
		return "", err
	}

	p.log.Info("Provisioner.SignIn called", zap.String("run_id", runID), zap.String("phone", number.Masked()))

	var token string
	err = p.record(runID, number, stepSignIn, "", func() error {
		var err error
		token, err = p.portal.SignIn(ctx, phone, randomHash, code)
		return err
	})
	if err != nil {
		p.log.Warn("Provisioner.SignIn failed", zap.String("run_id", runID), zap.String("kind", attemptKind(err)), zap.Error(err))
		return "", err
	}

	return token, nil
}

// CreateApp registers app for the session.
func (p *Provisioner) CreateApp(ctx context.Context, runID string, phone portal.PhoneNumber, token string, app portal.App) (portal.App, error) {
	p.log.Info("Provisioner.CreateApp called",
		zap.String("run_id", runID),
		zap.String("app_shortname", app.ShortName),
		zap.String("app_platform", string(app.Platform)),
	)

	var created portal.App
	err := p.record(runID, phone, stepCreateApp, app.ShortName, func() error {
		var err error
		created, err = p.portal.CreateApplication(ctx, token, app)
		return err
	})
	if err != nil {
		p.log.Warn("Provisioner.CreateApp failed", zap.String("run_id", runID), zap.String("kind", attemptKind(err)), zap.Error(err))
		return portal.App{}, err
	}

	return created, nil
}

// Credentials reads api_id/api_hash for the session.
func (p *Provisioner) Credentials(ctx context.Context, runID string, phone portal.PhoneNumber, token string) (portal.Credentials, error) {
	p.log.Info("Provisioner.Credentials called", zap.String("run_id", runID))

	var creds portal.Credentials
	err := p.record(runID, phone, stepCredentials, "", func() error {
		var err error
		creds, err = p.portal.GetCredentials(ctx, token)
		return err
	})
	if err != nil {
		p.log.Warn("Provisioner.Credentials failed", zap.String("run_id", runID), zap.String("kind", attemptKind(err)), zap.Error(err))
		return portal.Credentials{}, err
	}

	return creds, nil
}

// DraftDescription fills app.Description when it is empty and a describer is
// configured. Drafting errors leave the description empty.
func (p *Provisioner) DraftDescription(ctx context.Context, app portal.App) portal.App {
	if app.Description != "" || p.describer == nil {
		return app
	}

	description, err := p.describer.Describe(ctx, app)
	if err != nil {
		p.log.Warn("Provisioner.DraftDescription failed, leaving description empty", zap.Error(err))
		return app
	}

	p.log.Info("Provisioner.DraftDescription drafted", zap.String("app_dsc", description))
	app.Description = description
	return app
}

// ProvisionRequest is the input of a full run.
type ProvisionRequest struct {
	Phone    string
	App      portal.App
	Describe bool
}

// ProvisionResult is the output of a successful run.
type ProvisionResult struct {
	RunID       string
	App         portal.App
	Credentials portal.Credentials
	Existing    bool
}

// Run performs the whole flow: code, sign-in, app creation, credentials.
// A rejected code can be replaced once by a fresh code if the user agrees.
func (p *Provisioner) Run(ctx context.Context, req ProvisionRequest, prompter CodePrompter) (ProvisionResult, error) {
	runID := uuid.NewString()
	result := ProvisionResult{RunID: runID, App: req.App}

	number, err := portal.NormalizePhone(req.Phone)
	if err != nil {
		return result, err
	}

	step, err := p.run(ctx, runID, number, req, prompter, &result)

	report := Report{
		RunID:    runID,
		Phone:    number,
		App:      result.App,
		APIID:    result.Credentials.APIID,
		Existing: result.Existing,
		Step:     step,
		Err:      err,
	}
	if nerr := p.notifier.Notify(ctx, report); nerr != nil {
		p.log.Warn("Provisioner.Run notify failed", zap.String("run_id", runID), zap.Error(nerr))
	}

	return result, err
}

// run returns the step that failed along with its error.
func (p *Provisioner) run(ctx context.Context, runID string, number portal.PhoneNumber, req ProvisionRequest, prompter CodePrompter, result *ProvisionResult) (string, error) {
	phone := number.String()

	token, step, err := p.signInInteractive(ctx, runID, phone, number, prompter)
	if err != nil {
		return step, err
	}

	app := req.App
	if req.Describe {
		app = p.DraftDescription(ctx, app)
	}
	result.App = app

	if _, err := p.CreateApp(ctx, runID, number, token, app); err != nil {
		var scrapeErr *portal.ScrapeError
		if !errors.As(err, &scrapeErr) || scrapeErr.Field != "hash" {
			return stepCreateApp, err
		}

		// The apps page shows credentials instead of the form once an account
		// has an app; my.telegram.org allows only one.
		creds, credsErr := p.Credentials(ctx, runID, number, token)
		if credsErr != nil {
			return stepCreateApp, err
		}
		p.log.Warn("Provisioner.Run account already has an app, returning its credentials", zap.String("run_id", runID))
		result.Existing = true
		result.Credentials = creds
		return "", nil
	}

	creds, err := p.Credentials(ctx, runID, number, token)
	if err != nil {
		return stepCredentials, err
	}
	result.Credentials = creds
	return "", nil
}

func (p *Provisioner) signInInteractive(ctx context.Context, runID, phone string, number portal.PhoneNumber, prompter CodePrompter) (string, string, error) {
	retried := false
	for {
		hash, err := p.RequestCode(ctx, runID, phone)
		if err != nil {
			return "", stepSendCode, err
		}

		code, err := prompter.PromptCode(ctx, number)
		if err != nil {
			return "", stepSignIn, fmt.Errorf("read confirmation code: %w", err)
		}

		token, err := p.SignIn(ctx, runID, phone, hash, code)
		if err == nil {
			return token, "", nil
		}

		var authErr *portal.AuthenticationError
		if retried || !errors.As(err, &authErr) {
			return "", stepSignIn, err
		}

		again, cerr := prompter.Confirm(ctx, "The code was rejected. Request a new one?")
		if cerr != nil || !again {
			return "", stepSignIn, err
		}
		retried = true
	}
}
