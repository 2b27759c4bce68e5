package main

import (
	"time"

	"gorm.io/gorm"
)

// Journal steps, one per portal operation.
const (
	stepSendCode    = "send_code"
	stepSignIn      = "sign_in"
	stepCreateApp   = "create_app"
	stepCredentials = "credentials"
)

const (
	statusStarted = "started"
	statusOK      = "ok"
	statusFailed  = "failed"
)

// Attempt is one journal row. It never holds the session token, the random
// hash, the confirmation code or the api_hash.
type Attempt struct {
	gorm.Model
	AttemptID    string     `gorm:"uniqueIndex;size:36"`
	RunID        string     `gorm:"index;size:36"` // groups the steps of one provision run
	PhoneMasked  string     // e.g. +999******00
	PhoneDigest  string     `gorm:"index;size:64"` // sha256 of the normalized phone, for per-phone lookups
	Step         string     `gorm:"index"`
	Status       string     `gorm:"index"`
	ErrorKind    string     // portal.ErrorKind or a local kind such as rate_limited
	Detail       string     `gorm:"type:text"`
	AppShortName string
	StartedAt    time.Time  `gorm:"index"`
	FinishedAt   *time.Time // NULL while the step is in flight
}

func (Attempt) TableName() string {
	return "attempts"
}
