// Package user provides the account domain model and its lifecycle rules.
package user

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	apperrors "github.com/snehasaisneha/staticauth/internal/platform/errors"
	"github.com/snehasaisneha/staticauth/internal/platform/id"
)

// Status is the registration lifecycle state of an account.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

var (
	// ErrEmptyEmail indicates a missing email address.
	ErrEmptyEmail = apperrors.New(apperrors.CodeInvalidArgument, "email is required")
	// ErrInvalidEmail indicates an email that does not parse as an address.
	ErrInvalidEmail = apperrors.New(apperrors.CodeInvalidArgument, "email is invalid")
	// ErrInvalidStatus indicates an unknown lifecycle status.
	ErrInvalidStatus = apperrors.New(apperrors.CodeInvalidArgument, "status must be pending, approved, or rejected")
)

// User represents an account record.
//
// Seeded accounts are created at bootstrap and protected from deletion so an
// operator cannot lock themselves out of the admin surface.
type User struct {
	ID                   string
	Email                string
	Name                 string
	Status               Status
	IsAdmin              bool
	IsSeeded             bool
	NotifyAccessRequests bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// CreateInput describes the metadata needed to create a user.
type CreateInput struct {
	Email   string
	Name    string
	Status  Status
	IsAdmin bool
}

// NormalizeEmail lowercases and validates an email address.
func NormalizeEmail(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", ErrEmptyEmail
	}
	parsed, err := mail.ParseAddress(trimmed)
	if err != nil {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(parsed.Address), nil
}

// Create builds a durable account record from validated input.
//
// This is the canonical point where an untrusted email address becomes a
// stable identity used by sessions, grants, and the edge validator.
func Create(input CreateInput, now func() time.Time, idGenerator func() (string, error)) (User, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	email, err := NormalizeEmail(input.Email)
	if err != nil {
		return User{}, err
	}
	status := input.Status
	if status == "" {
		status = StatusPending
	}
	if !status.Valid() {
		return User{}, ErrInvalidStatus
	}

	userID, err := idGenerator()
	if err != nil {
		return User{}, fmt.Errorf("generate user id: %w", err)
	}

	createdAt := now().UTC()
	return User{
		ID:        userID,
		Email:     email,
		Name:      strings.TrimSpace(input.Name),
		Status:    status,
		IsAdmin:   input.IsAdmin,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}, nil
}

// EmailDomain returns the lowercased domain part of an email address.
func EmailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}
