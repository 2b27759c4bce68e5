package main

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/HugeFrog24/create-tg-app/portal"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const maxDetailLength = 500

// Journal records every portal step in sqlite so failed runs can be reviewed
// with the history command and code requests survive a restart of the limiter.
type Journal struct {
	db    *gorm.DB
	clock Clock
}

func NewJournal(db *gorm.DB, clock Clock) *Journal {
	return &Journal{db: db, clock: clock}
}

func phoneDigest(phone portal.PhoneNumber) string {
	if phone == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(phone))
	return hex.EncodeToString(sum[:])
}

// Begin stores a started row for step. phone may be empty for steps that only
// know the session token.
func (j *Journal) Begin(runID string, phone portal.PhoneNumber, step, appShortName string) (*Attempt, error) {
	attempt := &Attempt{
		AttemptID:    uuid.NewString(),
		RunID:        runID,
		PhoneDigest:  phoneDigest(phone),
		Step:         step,
		Status:       statusStarted,
		AppShortName: appShortName,
		StartedAt:    j.clock.Now(),
	}
	if phone != "" {
		attempt.PhoneMasked = phone.Masked()
	}

	if err := j.db.Create(attempt).Error; err != nil {
		return nil, fmt.Errorf("failed to record %s attempt: %w", step, err)
	}
	return attempt, nil
}

// Finish closes attempt with the outcome of the step.
func (j *Journal) Finish(attempt *Attempt, stepErr error) error {
	now := j.clock.Now()
	attempt.FinishedAt = &now
	attempt.Status = statusOK
	attempt.ErrorKind = ""
	attempt.Detail = ""

	if stepErr != nil {
		attempt.Status = statusFailed
		attempt.ErrorKind = attemptKind(stepErr)
		attempt.Detail = truncateDetail(stepErr.Error())
	}

	if err := j.db.Save(attempt).Error; err != nil {
		return fmt.Errorf("failed to finish %s attempt: %w", attempt.Step, err)
	}
	return nil
}

// Recent returns the latest attempts, newest first.
func (j *Journal) Recent(limit int) ([]Attempt, error) {
	var attempts []Attempt
	err := j.db.Order("started_at desc").Order("id desc").Limit(limit).Find(&attempts).Error
	return attempts, err
}

// CountSince counts attempts of step for phone started at or after since that
// reached the portal. Local limiter refusals are excluded.
func (j *Journal) CountSince(phone portal.PhoneNumber, step string, since time.Time) (int64, error) {
	var count int64
	err := j.db.Model(&Attempt{}).
		Where("phone_digest = ? AND step = ? AND started_at >= ? AND error_kind <> ?", phoneDigest(phone), step, since, kindRateLimited).
		Count(&count).Error
	return count, err
}

// Run returns the steps of one provision run in order.
func (j *Journal) Run(runID string) ([]Attempt, error) {
	var attempts []Attempt
	err := j.db.Where("run_id = ?", runID).Order("id asc").Find(&attempts).Error
	if err == nil && len(attempts) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return attempts, err
}

// Kinds for failures raised in this binary rather than by the portal package.
const (
	kindRateLimited  = "rate_limited"
	kindNoRandomHash = "no_random_hash"
)

// attemptKind extends portal.ErrorKind with the local failure kinds.
func attemptKind(err error) string {
	switch {
	case errors.Is(err, errCodeRateLimited):
		return kindRateLimited
	case errors.Is(err, errNoRandomHash):
		return kindNoRandomHash
	}
	return portal.ErrorKind(err)
}

func truncateDetail(s string) string {
	if len(s) <= maxDetailLength {
		return s
	}
	return s[:maxDetailLength]
}
