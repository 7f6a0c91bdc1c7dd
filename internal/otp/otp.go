// Package otp issues and verifies emailed one-time codes.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	apperrors "github.com/snehasaisneha/staticauth/internal/platform/errors"
	"github.com/snehasaisneha/staticauth/internal/platform/id"
	"github.com/snehasaisneha/staticauth/internal/storage"
	"github.com/snehasaisneha/staticauth/internal/user"
)

// Purposes bind a code to one flow, so a registration code can never finish
// a sign-in and vice versa.
const (
	PurposeRegister = "register"
	PurposeSignin   = "signin"
)

const codeDigits = 6

// codeSender delivers an issued code to its recipient.
type codeSender interface {
	OneTimeCode(ctx context.Context, to string, code string, ttl time.Duration) error
}

// Service issues and verifies one-time codes.
type Service struct {
	store        storage.OTPStore
	sender       codeSender
	config       Config
	now          func() time.Time
	idGenerator  func() (string, error)
	generateCode func() (string, error)
}

// NewService builds an OTP service over the given store and sender.
func NewService(store storage.OTPStore, sender codeSender, cfg Config) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &Service{
		store:        store,
		sender:       sender,
		config:       cfg,
		now:          func() time.Time { return time.Now().UTC() },
		idGenerator:  id.NewID,
		generateCode: generateCode,
	}, nil
}

// Issue creates a fresh code for the pair and emails it.
//
// Issuing burns every previous unused code for the same pair first, so at
// most one code is live per (email, purpose) at any time. Delivery failures
// are logged but do not fail the issue, because a transport error must not
// reveal whether the address is registered.
func (s *Service) Issue(ctx context.Context, email string, purpose string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.store == nil {
		return fmt.Errorf("otp service is not configured")
	}
	normalized, err := user.NormalizeEmail(email)
	if err != nil {
		return err
	}
	if err := validPurpose(purpose); err != nil {
		return err
	}

	if err := s.store.BurnOneTimeCodes(ctx, normalized, purpose); err != nil {
		return fmt.Errorf("burn previous codes: %w", err)
	}

	code, err := s.generateCode()
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}
	codeID, err := s.idGenerator()
	if err != nil {
		return fmt.Errorf("generate code id: %w", err)
	}

	now := s.now()
	record := storage.OneTimeCode{
		ID:        codeID,
		Email:     normalized,
		Code:      code,
		Purpose:   purpose,
		ExpiresAt: now.Add(s.config.TTL),
		CreatedAt: now,
	}
	if err := s.store.PutOneTimeCode(ctx, record); err != nil {
		return fmt.Errorf("store code: %w", err)
	}

	if err := s.sender.OneTimeCode(ctx, normalized, code, s.config.TTL); err != nil {
		log.Printf("one-time code delivery to %s failed: %v", normalized, err)
	}
	return nil
}

// Verify consumes a code for the pair.
//
// Every submission counts against the attempt ceiling before the code is
// compared, so a correct guess past the ceiling still fails. A consumed or
// missing code and a wrong code are indistinguishable to the caller.
func (s *Service) Verify(ctx context.Context, email string, purpose string, submitted string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.store == nil {
		return fmt.Errorf("otp service is not configured")
	}
	normalized, err := user.NormalizeEmail(email)
	if err != nil {
		return err
	}
	if err := validPurpose(purpose); err != nil {
		return err
	}
	submitted = strings.TrimSpace(submitted)
	if submitted == "" {
		return apperrors.New(apperrors.CodeOTPInvalid, "verification code is invalid")
	}

	record, err := s.store.GetLatestOneTimeCode(ctx, normalized, purpose)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeNotFound {
			return apperrors.New(apperrors.CodeOTPInvalid, "verification code is invalid")
		}
		return fmt.Errorf("load code: %w", err)
	}

	if !s.now().Before(record.ExpiresAt) {
		return apperrors.New(apperrors.CodeOTPExpired, "verification code expired")
	}

	attempts, err := s.store.IncrementOneTimeCodeAttempts(ctx, record.ID)
	if err != nil {
		return fmt.Errorf("count attempt: %w", err)
	}
	if attempts > s.config.MaxAttempts {
		return apperrors.New(apperrors.CodeTooManyAttempts, "too many verification attempts")
	}

	if subtle.ConstantTimeCompare([]byte(record.Code), []byte(submitted)) != 1 {
		return apperrors.New(apperrors.CodeOTPInvalid, "verification code is invalid")
	}

	if err := s.store.MarkOneTimeCodeUsed(ctx, record.ID); err != nil {
		return fmt.Errorf("consume code: %w", err)
	}
	return nil
}

func validPurpose(purpose string) error {
	switch purpose {
	case PurposeRegister, PurposeSignin:
		return nil
	}
	return apperrors.New(apperrors.CodeInvalidArgument, fmt.Sprintf("purpose %q is invalid", purpose))
}

// generateCode draws a uniformly random zero-padded numeric code.
func generateCode() (string, error) {
	limit := big.NewInt(1)
	for i := 0; i < codeDigits; i++ {
		limit.Mul(limit, big.NewInt(10))
	}
	value, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, value), nil
}
