package tsauth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/truesplit/tsauth/internal"
)

// Signup creates a local account for an email whose OTP has been verified
// and returns a session token for it.
//
// Checks run in order: required fields and password length
// ([ErrValidation]), email taken ([ErrEmailInUse]), username taken
// ([ErrUsernameInUse]), and no verified OTP record ([ErrEmailNotVerified]).
// The OTP record is deleted once the user exists.
func (e *Engine) Signup(ctx context.Context, req SignupRequest) (string, error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}

	name := strings.TrimSpace(req.Name)
	username := strings.TrimSpace(req.Username)

	email, err := e.validateSignup(name, req.Email, req.Password)
	if err != nil {
		e.signupFailed(ctx, normalizeEmail(req.Email), err, "validation")
		return "", err
	}

	exists, err := e.users.ExistsByEmail(ctx, email)
	if err != nil {
		return "", e.storeUnavailable(ctx, auditEventSignupFailure, email, err)
	}
	if exists {
		e.metricInc(MetricSignupDuplicate)
		e.signupFailed(ctx, email, ErrEmailInUse, "email_in_use")
		return "", ErrEmailInUse
	}

	if username != "" {
		taken, err := e.users.ExistsByUsername(ctx, username)
		if err != nil {
			return "", e.storeUnavailable(ctx, auditEventSignupFailure, email, err)
		}
		if taken {
			e.metricInc(MetricSignupDuplicate)
			e.signupFailed(ctx, email, ErrUsernameInUse, "username_in_use")
			return "", ErrUsernameInUse
		}
	}

	record, err := e.otpVerified(ctx, email)
	if err != nil {
		if errors.Is(err, ErrEmailNotVerified) {
			e.metricInc(MetricSignupUnverified)
		}
		e.signupFailed(ctx, email, err, "otp")
		return "", err
	}

	passwordHash, err := e.hasher.Hash(req.Password)
	if err != nil {
		mapped := fmt.Errorf("%w: %v", ErrValidation, err)
		e.signupFailed(ctx, email, mapped, "password_hash")
		return "", mapped
	}

	created, err := e.users.Create(ctx, User{
		ID:            uuid.NewString(),
		Name:          name,
		Username:      username,
		Email:         email,
		PasswordHash:  passwordHash,
		PhoneNumber:   strings.TrimSpace(req.PhoneNumber),
		Roles:         []string{e.config.Account.DefaultRole},
		AuthProvider:  ProviderLocal,
		EmailVerified: true,
		CreatedAt:     e.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateUser) {
			// lost a race with a concurrent signup for the same email or username
			mapped := duplicateField(err)
			e.metricInc(MetricSignupDuplicate)
			e.signupFailed(ctx, email, mapped, "duplicate_insert")
			return "", mapped
		}
		return "", e.storeUnavailable(ctx, auditEventSignupFailure, email, err)
	}

	if _, err := e.otpStore.DeleteIfUnchanged(ctx, record); err != nil {
		e.logger.WarnContext(ctx, "consumed otp record not deleted", "email", email, "error", err)
	}

	token, err := e.issue(created)
	if err != nil {
		e.signupFailed(ctx, email, err, "token")
		return "", err
	}

	e.metricInc(MetricSignupSuccess)
	e.emitAudit(ctx, auditEventSignupSuccess, true, email, nil, func() map[string]string {
		return map[string]string{"user_id": created.ID}
	})
	return token, nil
}

// duplicateField maps a UserStore duplicate error to the field it collided
// on. Stores name the violated key in the wrapped message; anything that
// does not mention the username is reported as an email collision.
func duplicateField(err error) error {
	if strings.Contains(strings.ToLower(err.Error()), "username") {
		return ErrUsernameInUse
	}
	return ErrEmailInUse
}

// Login authenticates identifier and password and returns a session token.
//
// identifier is looked up as an email first and, when
// Account.LoginByUsername is set, as a username second. An unknown
// identifier and a wrong password both return [ErrInvalidCredentials] after
// the same amount of hashing work.
func (e *Engine) Login(ctx context.Context, identifier, password string) (string, error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}

	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "empty_input"}
		})
		return "", ErrInvalidCredentials
	}

	user, err := e.lookupLogin(ctx, identifier)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return "", e.storeUnavailable(ctx, auditEventLoginFailure, "", err)
	}

	found := err == nil
	hash := e.dummyHash
	if found && user.PasswordHash != "" {
		hash = user.PasswordHash
	}

	ok, verifyErr := e.hasher.Verify(password, hash)
	if !found || verifyErr != nil || !ok || user.PasswordHash == "" {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", ErrInvalidCredentials, nil)
		return "", ErrInvalidCredentials
	}

	token, err := e.issue(user)
	if err != nil {
		e.emitAudit(ctx, auditEventLoginFailure, false, user.Email, err, nil)
		return "", err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.Email, nil, nil)
	return token, nil
}

// ProvisionExternal returns a session token for an identity asserted by an
// OAuth2 provider, creating the user on first sight.
//
// New users get a random unusable password hash, so they can never log in
// locally. Concurrent first logins for the same email all succeed: the
// losers of the insert race re-read the winner's row and issue for it.
func (e *Engine) ProvisionExternal(ctx context.Context, identity ExternalIdentity) (string, error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}

	email := normalizeEmail(identity.Email)
	if email == "" {
		err := fmt.Errorf("%w: external identity has no email", ErrValidation)
		e.emitAudit(ctx, auditEventExternalProvision, false, "", err, nil)
		return "", err
	}

	existing, err := e.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return e.issueExternal(ctx, existing, MetricExternalProvisionExisting, "existing")
	case !errors.Is(err, ErrUserNotFound):
		return "", e.storeUnavailable(ctx, auditEventExternalProvision, email, err)
	}

	placeholder, err := internal.NewRandomString(32)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUserStoreUnavailable, err)
	}
	placeholderHash, err := e.hasher.Hash(placeholder)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUserStoreUnavailable, err)
	}

	name := strings.TrimSpace(identity.Name)
	if name == "" {
		name = e.config.Account.ExternalDefaultName
	}
	provider := identity.Provider
	if provider == "" {
		provider = ProviderGoogle
	}

	user := User{
		ID:            uuid.NewString(),
		Name:          name,
		Email:         email,
		PasswordHash:  placeholderHash,
		Roles:         []string{e.config.Account.DefaultRole},
		AuthProvider:  provider,
		EmailVerified: true,
		Picture:       identity.Picture,
		CreatedAt:     e.now().UTC(),
	}
	if provider == ProviderGoogle {
		user.GoogleID = identity.Subject
	}

	created, err := e.users.Create(ctx, user)
	if err == nil {
		return e.issueExternal(ctx, created, MetricExternalProvisionCreated, "created")
	}
	if !errors.Is(err, ErrDuplicateUser) {
		return "", e.storeUnavailable(ctx, auditEventExternalProvision, email, err)
	}

	winner, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		return "", e.storeUnavailable(ctx, auditEventExternalProvision, email, err)
	}
	return e.issueExternal(ctx, winner, MetricExternalProvisionRace, "race")
}

func (e *Engine) issueExternal(ctx context.Context, user User, metric MetricID, outcome string) (string, error) {
	token, err := e.issue(user)
	if err != nil {
		e.emitAudit(ctx, auditEventExternalProvision, false, user.Email, err, nil)
		return "", err
	}

	e.metricInc(metric)
	e.emitAudit(ctx, auditEventExternalProvision, true, user.Email, nil, func() map[string]string {
		return map[string]string{
			"outcome":  outcome,
			"provider": string(user.AuthProvider),
		}
	})
	return token, nil
}

func (e *Engine) lookupLogin(ctx context.Context, identifier string) (User, error) {
	user, err := e.users.FindByEmail(ctx, normalizeEmail(identifier))
	if err == nil || !errors.Is(err, ErrUserNotFound) || !e.config.Account.LoginByUsername {
		return user, err
	}
	return e.users.FindByUsername(ctx, identifier)
}

// validateSignup checks the request fields and returns the normalized email.
func (e *Engine) validateSignup(name, rawEmail, password string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: name is required", ErrValidation)
	}
	email, err := parseEmail(rawEmail)
	if err != nil {
		return "", err
	}
	switch {
	case password == "":
		return "", fmt.Errorf("%w: password is required", ErrValidation)
	case len(password) < e.config.Password.MinLength:
		return "", fmt.Errorf("%w: password must be at least %d characters", ErrValidation, e.config.Password.MinLength)
	case len(password) > e.config.Password.MaxBytes:
		return "", fmt.Errorf("%w: password is too long", ErrValidation)
	}
	return email, nil
}

func (e *Engine) issue(user User) (string, error) {
	token, err := e.jwtManager.Issue(user.Email, user.Roles)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenIssue, err)
	}
	return token, nil
}

func (e *Engine) signupFailed(ctx context.Context, email string, err error, reason string) {
	e.emitAudit(ctx, auditEventSignupFailure, false, email, err, func() map[string]string {
		return map[string]string{"reason": reason}
	})
}

func (e *Engine) storeUnavailable(ctx context.Context, eventType, subject string, err error) error {
	if errors.Is(err, ErrUserStoreUnavailable) || errors.Is(err, ErrOTPUnavailable) {
		e.emitAudit(ctx, eventType, false, subject, err, nil)
		return err
	}
	mapped := fmt.Errorf("%w: %v", ErrUserStoreUnavailable, err)
	e.emitAudit(ctx, eventType, false, subject, mapped, nil)
	return mapped
}
