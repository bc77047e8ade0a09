package application

import (
	"context"
	"errors"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/pixsearch-identity/internal/domain/entity"
	"github.com/oksasatya/pixsearch-identity/internal/domain/repository"
	"github.com/oksasatya/pixsearch-identity/pkg/helpers"
	"github.com/oksasatya/pixsearch-identity/pkg/mailer"
	mailtpl "github.com/oksasatya/pixsearch-identity/pkg/mailer/templates"
	"github.com/oksasatya/pixsearch-identity/pkg/validation"
)

const (
	maxTokenAttempts = 3
	maxImageBytes    = 5 << 20
	imageFolder      = "profile_images"
)

var allowedImageTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// AuthService runs signup, verification, login and password reset.
//
// Store writes run detached from the caller's cancellation and are bounded by
// the store timeout. Notifications go out only after the write commits.
type AuthService struct {
	store    repository.Store
	hasher   *helpers.Hasher
	jwt      *helpers.JWTManager
	notifier mailer.Notifier
	validate *validator.Validate
	logger   logrus.FieldLogger

	cooldown Cooldown
	index    UserIndex
	images   ImageStore
	metrics  Recorder

	branding       mailtpl.Branding
	baseURL        string
	verifyTTL      time.Duration
	resetTTL       time.Duration
	resendCooldown time.Duration
	storeTimeout   time.Duration
	notifyTimeout  time.Duration

	now       func() time.Time
	genVerify func() (string, error)
	genReset  func() (string, error)
}

type AuthOption func(*AuthService)

func WithClock(now func() time.Time) AuthOption {
	return func(s *AuthService) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(logger logrus.FieldLogger) AuthOption {
	return func(s *AuthService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCooldown limits verification re-sends on login to one per ttl.
func WithCooldown(c Cooldown, ttl time.Duration) AuthOption {
	return func(s *AuthService) {
		s.cooldown = c
		s.resendCooldown = ttl
	}
}

func WithUserIndex(idx UserIndex) AuthOption {
	return func(s *AuthService) { s.index = idx }
}

func WithImageStore(images ImageStore) AuthOption {
	return func(s *AuthService) { s.images = images }
}

func WithRecorder(r Recorder) AuthOption {
	return func(s *AuthService) {
		if r != nil {
			s.metrics = r
		}
	}
}

func WithBranding(b mailtpl.Branding) AuthOption {
	return func(s *AuthService) { s.branding = b }
}

func WithTokenTTLs(verify, reset time.Duration) AuthOption {
	return func(s *AuthService) {
		if verify > 0 {
			s.verifyTTL = verify
		}
		if reset > 0 {
			s.resetTTL = reset
		}
	}
}

func WithTimeouts(store, notify time.Duration) AuthOption {
	return func(s *AuthService) {
		if store > 0 {
			s.storeTimeout = store
		}
		if notify > 0 {
			s.notifyTimeout = notify
		}
	}
}

// WithTokenGenerators replaces the random sources for verification and reset tokens.
func WithTokenGenerators(verify, reset func() (string, error)) AuthOption {
	return func(s *AuthService) {
		if verify != nil {
			s.genVerify = verify
		}
		if reset != nil {
			s.genReset = reset
		}
	}
}

func NewAuthService(store repository.Store, hasher *helpers.Hasher, jwt *helpers.JWTManager, notifier mailer.Notifier, baseURL string, opts ...AuthOption) *AuthService {
	s := &AuthService{
		store:         store,
		hasher:        hasher,
		jwt:           jwt,
		notifier:      notifier,
		validate:      validation.New(),
		logger:        helpers.NewNopLogger(),
		metrics:       nopRecorder{},
		baseURL:       strings.TrimRight(baseURL, "/"),
		verifyTTL:     24 * time.Hour,
		resetTTL:      30 * time.Minute,
		storeTimeout:  5 * time.Second,
		notifyTimeout: 10 * time.Second,
		now:           time.Now,
		genVerify:     helpers.GenOpaqueToken,
		genReset:      helpers.GenOTPCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ImageUpload is a profile image received with a signup.
type ImageUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type SignupInput struct {
	FirstName    string       `json:"firstName" validate:"required,personname"`
	LastName     string       `json:"lastName" validate:"required,personname"`
	Email        string       `json:"email" validate:"required,email,max=254"`
	Password     string       `json:"password" validate:"required,strongpwd"`
	ProfileImage string       `json:"profileImage" validate:"omitempty,max=2048"`
	Upload       *ImageUpload `json:"-" validate:"-"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=72"`
}

type ResetRequestInput struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetApplyInput struct {
	Token    string `json:"token" validate:"required,otp"`
	Password string `json:"password" validate:"required,strongpwd"`
}

type LoginResult struct {
	User      *entity.User
	Token     string
	ExpiresAt time.Time
}

// NormalizeEmail trims and lower-cases an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) check(in any) error {
	if err := s.validate.Struct(in); err != nil {
		return &ValidationError{Details: validation.ToDetails(err)}
	}
	return nil
}

func (s *AuthService) writeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout)
}

// withFreshToken calls fn with a newly generated value, regenerating on value collisions.
func (s *AuthService) withFreshToken(purpose entity.TokenPurpose, gen func() (string, error), fn func(value string) error) error {
	for attempt := 1; ; attempt++ {
		value, err := gen()
		if err != nil {
			return internal("generate token", err)
		}
		err = fn(value)
		if errors.Is(err, repository.ErrTokenCollision) && attempt < maxTokenAttempts {
			s.metrics.Token(purpose, "collision")
			continue
		}
		return err
	}
}

func (s *AuthService) verifyLink(userID, token string) string {
	return s.baseURL + "/users/" + url.PathEscape(userID) + "/verify/" + url.PathEscape(token)
}

// Signup creates an unverified account with one live verification token and
// mails the verification link. A delivery failure is returned as DeliveryError
// together with the created user; the account stays in place.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (u *entity.User, err error) {
	defer func() { s.metrics.Auth("signup", Outcome(err)) }()

	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = NormalizeEmail(in.Email)
	in.ProfileImage = strings.TrimSpace(in.ProfileImage)
	if err := s.check(in); err != nil {
		return nil, err
	}
	if in.Upload != nil {
		if err := s.checkUpload(in.Upload); err != nil {
			return nil, err
		}
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		if helpers.IsTooLong(err) {
			return nil, invalidField("password", "must be at most 72 bytes")
		}
		return nil, internal("hash password", err)
	}

	imageRef := in.ProfileImage
	if in.Upload != nil {
		imageRef, err = s.storeImage(ctx, in.Upload)
		if err != nil {
			return nil, err
		}
	}

	wctx, cancel := s.writeCtx(ctx)
	defer cancel()

	now := s.now().UTC()
	u = &entity.User{
		FirstName:       in.FirstName,
		LastName:        in.LastName,
		Email:           in.Email,
		PasswordHash:    hash,
		ProfileImageRef: imageRef,
	}
	var token string
	err = s.withFreshToken(entity.PurposeVerify, s.genVerify, func(value string) error {
		token = value
		return s.store.WithinTx(wctx, func(tx repository.Store) error {
			if err := tx.Users().Create(wctx, u); err != nil {
				return err
			}
			return tx.Tokens().Create(wctx, &entity.Token{
				UserID:    u.ID,
				Purpose:   entity.PurposeVerify,
				Value:     value,
				CreatedAt: now,
				ExpiresAt: now.Add(s.verifyTTL),
			})
		})
	})
	if err != nil {
		s.discardImage(wctx, in.Upload, imageRef)
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrAlreadyExists
		}
		return nil, internal("create account", err)
	}
	s.metrics.Token(entity.PurposeVerify, "issued")
	s.logger.WithFields(logrus.Fields{"user_id": u.ID, "email": u.Email}).Info("account created")
	s.reindex(wctx, u)

	if err := s.sendVerification(ctx, u, token, now.Add(s.verifyTTL)); err != nil {
		return u, &DeliveryError{Err: err}
	}
	return u, nil
}

func (s *AuthService) checkUpload(up *ImageUpload) error {
	if s.images == nil {
		return invalidField("profileImage", "image upload is not available")
	}
	ext := strings.ToLower(filepath.Ext(up.Filename))
	want, ok := allowedImageTypes[ext]
	if !ok {
		return invalidField("profileImage", "must be a jpg, jpeg or png file")
	}
	ct := strings.ToLower(strings.TrimSpace(up.ContentType))
	if ct != "" && ct != "application/octet-stream" && ct != want {
		return invalidField("profileImage", "content type does not match file extension")
	}
	if up.Size <= 0 || up.Size > maxImageBytes {
		return invalidField("profileImage", "must be between 1 byte and 5 MiB")
	}
	return nil
}

func (s *AuthService) storeImage(ctx context.Context, up *ImageUpload) (string, error) {
	ext := strings.ToLower(filepath.Ext(up.Filename))
	name := imageFolder + "/" + uuid.NewString() + ext
	ref, err := s.images.Put(ctx, name, allowedImageTypes[ext], io.LimitReader(up.Body, maxImageBytes+1))
	if err != nil {
		return "", internal("upload profile image", err)
	}
	return ref, nil
}

func (s *AuthService) discardImage(ctx context.Context, up *ImageUpload, ref string) {
	if up == nil || ref == "" || s.images == nil {
		return
	}
	if err := s.images.Delete(ctx, ref); err != nil {
		helpers.LogWarn(s.logger, "discard orphan profile image failed", err, logrus.Fields{"ref": ref})
	}
}

func (s *AuthService) reindex(ctx context.Context, u *entity.User) {
	if s.index == nil {
		return
	}
	if err := s.index.Index(ctx, u); err != nil {
		helpers.LogWarn(s.logger, "index user failed", err, logrus.Fields{"user_id": u.ID})
	}
}

func (s *AuthService) notify(ctx context.Context, kind string, msg mailer.Message) error {
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()
	err := s.notifier.Send(nctx, msg)
	s.metrics.Delivery(kind, err == nil)
	if err != nil {
		helpers.LogError(s.logger, "notification failed", err, logrus.Fields{"kind": kind, "email": msg.To})
	}
	return err
}

func (s *AuthService) sendVerification(ctx context.Context, u *entity.User, token string, expiresAt time.Time) error {
	data := mailtpl.NewVerifyEmailData(s.branding, u.FirstName, u.Email, s.verifyLink(u.ID, token),
		mailtpl.WithExpiresAt(expiresAt))
	return s.notify(ctx, mailtpl.VerifyEmail, mailer.Message{
		To:       u.Email,
		Subject:  mailtpl.Subject(mailtpl.VerifyEmail),
		Template: mailtpl.Universal,
		Data:     data,
	})
}

// Verify consumes the user's verification token and marks the account verified.
// A repeated call finds no token and yields ErrInvalidOrExpiredToken.
func (s *AuthService) Verify(ctx context.Context, userID, token string) (err error) {
	defer func() { s.metrics.Auth("verify", Outcome(err)) }()

	userID, token = strings.TrimSpace(userID), strings.TrimSpace(token)
	if userID == "" || token == "" {
		return ErrInvalidOrExpiredToken
	}

	wctx, cancel := s.writeCtx(ctx)
	defer cancel()

	var verified *entity.User
	err = s.store.WithinTx(wctx, func(tx repository.Store) error {
		u, err := tx.Users().GetByID(wctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		if _, err := tx.Tokens().ConsumeForUser(wctx, userID, entity.PurposeVerify, token, s.now().UTC()); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrInvalidOrExpiredToken
			}
			return err
		}
		if err := tx.Users().MarkVerified(wctx, userID); err != nil {
			return err
		}
		u.Verified = true
		verified = u
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidOrExpiredToken):
		s.metrics.Token(entity.PurposeVerify, "rejected")
		return err
	default:
		return internal("verify account", err)
	}

	s.metrics.Token(entity.PurposeVerify, "consumed")
	s.logger.WithField("user_id", userID).Info("account verified")
	s.reindex(wctx, verified)
	return nil
}

// Login checks credentials. Unverified accounts get their pending verification
// re-sent (without rotating a live token) and ErrUnverifiedAccount; verified
// accounts get a signed session token.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (res *LoginResult, err error) {
	defer func() { s.metrics.Auth("login", Outcome(err)) }()

	in.Email = NormalizeEmail(in.Email)
	if err := s.check(in); err != nil {
		return nil, err
	}

	u, err := s.store.Users().GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.hasher.CompareDummy(in.Password)
			return nil, ErrInvalidCredentials
		}
		return nil, internal("load user", err)
	}
	if !s.hasher.Compare(u.PasswordHash, in.Password) {
		return nil, ErrInvalidCredentials
	}

	if !u.Verified {
		if err := s.resendVerification(ctx, u); err != nil {
			return nil, err
		}
		return nil, ErrUnverifiedAccount
	}

	token, exp, err := s.jwt.Issue(u.ID)
	if err != nil {
		return nil, internal("issue session", err)
	}
	s.logger.WithField("user_id", u.ID).Info("login succeeded")
	return &LoginResult{User: u, Token: token, ExpiresAt: exp}, nil
}

// resendVerification makes sure a live verification token exists and mails it.
// An existing live token is re-sent as is, at most once per cooldown window.
func (s *AuthService) resendVerification(ctx context.Context, u *entity.User) error {
	wctx, cancel := s.writeCtx(ctx)
	defer cancel()

	now := s.now().UTC()
	var (
		tok     *entity.Token
		created bool
	)
	err := s.withFreshToken(entity.PurposeVerify, s.genVerify, func(value string) error {
		var err error
		tok, created, err = s.store.Tokens().EnsureForUser(wctx, &entity.Token{
			UserID:    u.ID,
			Purpose:   entity.PurposeVerify,
			Value:     value,
			CreatedAt: now,
			ExpiresAt: now.Add(s.verifyTTL),
		}, now)
		return err
	})
	if err != nil {
		return internal("ensure verification token", err)
	}
	if created {
		s.metrics.Token(entity.PurposeVerify, "issued")
	}

	send, held := created, false
	key := helpers.KeyResendCooldown(u.ID)
	if s.cooldown != nil && s.resendCooldown > 0 {
		ok, cerr := s.cooldown.Acquire(wctx, key, s.resendCooldown)
		held = ok && cerr == nil
		if cerr != nil {
			helpers.LogWarn(s.logger, "resend cooldown unavailable", cerr, logrus.Fields{"user_id": u.ID})
			ok = true
		}
		send = send || ok
	} else {
		send = true
	}
	if !send {
		s.logger.WithField("user_id", u.ID).Debug("verification resend suppressed by cooldown")
		return nil
	}
	// delivery failure is logged by notify; the caller still learns the account is unverified
	if err := s.sendVerification(ctx, u, tok.Value, tok.ExpiresAt); err != nil && held {
		// free the window so the next login retries the send
		if rerr := s.cooldown.Release(wctx, key); rerr != nil {
			helpers.LogWarn(s.logger, "resend cooldown release failed", rerr, logrus.Fields{"user_id": u.ID})
		}
	}
	return nil
}

// ResetRequest issues a fresh reset code for a known email and mails it.
// Unknown emails and delivery failures are indistinguishable from success.
func (s *AuthService) ResetRequest(ctx context.Context, in ResetRequestInput) (err error) {
	defer func() { s.metrics.Auth("reset_request", Outcome(err)) }()

	in.Email = NormalizeEmail(in.Email)
	if err := s.check(in); err != nil {
		return err
	}

	u, err := s.store.Users().GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Debug("reset requested for unknown email")
			return nil
		}
		return internal("load user", err)
	}

	wctx, cancel := s.writeCtx(ctx)
	defer cancel()

	now := s.now().UTC()
	tok := &entity.Token{UserID: u.ID, Purpose: entity.PurposeReset}
	err = s.withFreshToken(entity.PurposeReset, s.genReset, func(value string) error {
		tok.ID = ""
		tok.Value = value
		tok.CreatedAt = now
		tok.ExpiresAt = now.Add(s.resetTTL)
		return s.store.Tokens().UpsertForUser(wctx, tok)
	})
	if err != nil {
		return internal("issue reset token", err)
	}
	s.metrics.Token(entity.PurposeReset, "issued")
	s.logger.WithField("user_id", u.ID).Info("password reset requested")

	data := mailtpl.NewResetPasswordData(s.branding, u.FirstName, u.Email, tok.Value, mailtpl.WithExpiresAt(tok.ExpiresAt))
	_ = s.notify(ctx, mailtpl.ResetPassword, mailer.Message{
		To:       u.Email,
		Subject:  mailtpl.Subject(mailtpl.ResetPassword),
		Template: mailtpl.Universal,
		Data:     data,
	})
	return nil
}

// ResetApply consumes a reset code and sets the new password in one transaction.
func (s *AuthService) ResetApply(ctx context.Context, in ResetApplyInput) (err error) {
	defer func() { s.metrics.Auth("reset_apply", Outcome(err)) }()

	in.Token = strings.TrimSpace(in.Token)
	if err := s.check(in); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		if helpers.IsTooLong(err) {
			return invalidField("password", "must be at most 72 bytes")
		}
		return internal("hash password", err)
	}

	wctx, cancel := s.writeCtx(ctx)
	defer cancel()

	var userID string
	err = s.store.WithinTx(wctx, func(tx repository.Store) error {
		tok, err := tx.Tokens().ConsumeByValue(wctx, entity.PurposeReset, in.Token, s.now().UTC())
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrInvalidOrExpiredToken
			}
			return err
		}
		if err := tx.Users().UpdatePassword(wctx, tok.UserID, hash); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrInvalidOrExpiredToken
			}
			return err
		}
		userID = tok.UserID
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidOrExpiredToken):
		s.metrics.Token(entity.PurposeReset, "rejected")
		return err
	default:
		return internal("apply password reset", err)
	}
	s.metrics.Token(entity.PurposeReset, "consumed")
	s.logger.WithField("user_id", userID).Info("password reset applied")
	return nil
}

// Authenticate resolves a session token to its user.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*entity.User, error) {
	userID, err := s.jwt.Parse(token)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	u, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, internal("load session user", err)
	}
	return u, nil
}
