package shiftauth

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shiftboard/shiftauth/internal"
	"github.com/shiftboard/shiftauth/internal/limiters"
	"github.com/shiftboard/shiftauth/internal/mailq"
	"github.com/shiftboard/shiftauth/password"
)

// Signup creates an account with its profile stub and pending verification
// token, signs the new account in and queues the verification email.
//
// A taken email yields ErrDuplicateAccount and creates nothing, including
// when two signups for the same email race.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (*AuthResult, error) {
	req.Email = normalizeEmail(req.Email)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	req.BusinessName = strings.TrimSpace(req.BusinessName)
	if role, err := ParseRole(string(req.Role)); err == nil {
		req.Role = role
	}
	if err := s.validateRequest(req); err != nil {
		s.metricInc(MetricSignupRejected)
		return nil, err
	}
	if req.Role != RoleBusinessOwner {
		req.BusinessName = ""
	}

	device := deviceFromContext(ctx, req.Device)
	if err := s.throttled(ctx, limiters.OpSignup, req.Email, device.IP, MetricSignupRateLimited); err != nil {
		return nil, err
	}

	sctx, cancel := s.storeCtx(ctx)
	_, err := s.users.FindByEmail(sctx, req.Email)
	cancel()
	switch {
	case err == nil:
		return nil, s.signupDuplicate(ctx)
	case !isNotFound(err):
		return nil, s.unavailable(ctx, "find_account", err)
	}

	if err := password.CheckStrength(req.Password, s.config.Password.Policy); err != nil {
		s.metricInc(MetricSignupRejected)
		s.emitAudit(ctx, auditEventSignupFailure, false, "", "", err, nil)
		return nil, err
	}
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, s.unavailable(ctx, "hash_password", err)
	}

	raw, tokenHash, err := internal.NewOpaqueToken()
	if err != nil {
		return nil, s.unavailable(ctx, "generate_token", err)
	}

	now := s.now()
	accountID := uuid.NewString()
	sctx, cancel = s.storeCtx(ctx)
	acct, err := s.users.CreateAccount(sctx, NewAccount{
		ID:           accountID,
		Email:        req.Email,
		PasswordHash: hash,
		DisplayName:  req.DisplayName,
		Role:         req.Role,
		BusinessName: req.BusinessName,
		Phone:        req.Phone,
		CreatedAt:    now,
	}, OneTimeToken{
		ID:        uuid.NewString(),
		Kind:      TokenKindEmailVerification,
		AccountID: accountID,
		TokenHash: tokenHash,
		ExpiresAt: now.Add(s.config.Verification.TokenTTL),
		CreatedAt: now,
	})
	cancel()
	if errors.Is(err, ErrConflict) {
		return nil, s.signupDuplicate(ctx)
	}
	if err != nil {
		return nil, s.unavailable(ctx, "create_account", err)
	}

	pair, familyID, err := s.startSession(ctx, acct, device)
	if err != nil {
		return nil, err
	}

	s.enqueueMail(mailq.KindVerification, acct.ID, acct.Email, raw)
	s.metricInc(MetricSignupSuccess)
	s.metricInc(MetricEmailVerificationRequest)
	s.emitAudit(ctx, auditEventSignupSuccess, true, acct.ID, familyID, nil, func() map[string]string {
		return map[string]string{"role": string(acct.Role)}
	})

	return &AuthResult{Account: acct.View(), Tokens: pair}, nil
}

func (s *Service) signupDuplicate(ctx context.Context) error {
	s.metricInc(MetricSignupDuplicate)
	s.emitAudit(ctx, auditEventSignupFailure, false, "", "", ErrDuplicateAccount, nil)
	return ErrDuplicateAccount
}

// validateRequest runs the struct tags of req and converts failures into a
// *ValidationError keyed by field name.
func (s *Service) validateRequest(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &ValidationError{Fields: map[string]string{"request": err.Error()}}
	}
	out := &ValidationError{Fields: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		out.Fields[fe.Field()] = fe.Tag()
	}
	return out
}
