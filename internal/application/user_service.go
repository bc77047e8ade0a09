package application

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/pixsearch-identity/internal/domain/entity"
	repo "github.com/oksasatya/pixsearch-identity/internal/domain/repository"
	"github.com/oksasatya/pixsearch-identity/pkg/helpers"
	"github.com/oksasatya/pixsearch-identity/pkg/validation"
)

const defaultSearchSize = 20

// UserService backs the administrative user screens.
type UserService struct {
	store        repo.Store
	index        UserIndex
	images       ImageStore
	logger       logrus.FieldLogger
	validate     *validator.Validate
	storeTimeout time.Duration
}

func NewUserService(store repo.Store, index UserIndex, images ImageStore, logger logrus.FieldLogger, storeTimeout time.Duration) *UserService {
	if logger == nil {
		logger = helpers.NewNopLogger()
	}
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &UserService{
		store:        store,
		index:        index,
		images:       images,
		logger:       logger,
		validate:     validation.New(),
		storeTimeout: storeTimeout,
	}
}

type UpdateUserInput struct {
	FirstName string `json:"firstName" validate:"required,personname"`
	LastName  string `json:"lastName" validate:"required,personname"`
	Email     string `json:"email" validate:"required,email,max=254"`
}

// List returns every user, or the search hits for q when a directory index is configured.
func (s *UserService) List(ctx context.Context, q string) ([]entity.User, error) {
	q = strings.TrimSpace(q)
	if q != "" && s.index != nil {
		hits, err := s.index.Search(ctx, q, defaultSearchSize)
		if err == nil {
			return hits, nil
		}
		helpers.LogWarn(s.logger, "user search failed, falling back to store scan", err, logrus.Fields{"q": q})
	}
	users, err := s.store.Users().List(ctx)
	if err != nil {
		return nil, internal("list users", err)
	}
	if q == "" {
		return users, nil
	}
	return filterUsers(users, q), nil
}

func filterUsers(users []entity.User, q string) []entity.User {
	q = strings.ToLower(q)
	out := make([]entity.User, 0, len(users))
	for _, u := range users {
		hay := strings.ToLower(u.FirstName + " " + u.LastName + " " + u.Email)
		if strings.Contains(hay, q) {
			out = append(out, u)
		}
	}
	return out
}

func (s *UserService) Get(ctx context.Context, id string) (*entity.User, error) {
	u, err := s.store.Users().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, internal("load user", err)
	}
	return u, nil
}

// Update changes name and email. An email change keeps the verification state.
func (s *UserService) Update(ctx context.Context, id string, in UpdateUserInput) (*entity.User, error) {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = NormalizeEmail(in.Email)
	if err := s.validate.Struct(in); err != nil {
		return nil, &ValidationError{Details: validation.ToDetails(err)}
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout)
	defer cancel()

	u, err := s.store.Users().UpdateProfile(wctx, id, entity.ProfileUpdate{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
	})
	switch {
	case err == nil:
	case errors.Is(err, repo.ErrNotFound):
		return nil, ErrNotFound
	case errors.Is(err, repo.ErrDuplicateEmail):
		return nil, ErrAlreadyExists
	default:
		return nil, internal("update user", err)
	}

	if s.index != nil {
		if err := s.index.Index(wctx, u); err != nil {
			helpers.LogWarn(s.logger, "index user failed", err, logrus.Fields{"user_id": u.ID})
		}
	}
	s.logger.WithField("user_id", u.ID).Info("user updated")
	return u, nil
}

// Delete removes the user together with all of their tokens.
func (s *UserService) Delete(ctx context.Context, id string) error {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout)
	defer cancel()

	var imageRef string
	err := s.store.WithinTx(wctx, func(tx repo.Store) error {
		u, err := tx.Users().GetByID(wctx, id)
		if err != nil {
			return err
		}
		imageRef = u.ProfileImageRef
		if err := tx.Tokens().DeleteByUser(wctx, id); err != nil {
			return err
		}
		return tx.Users().Delete(wctx, id)
	})
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		return internal("delete user", err)
	}

	if s.index != nil {
		if err := s.index.Remove(wctx, id); err != nil {
			helpers.LogWarn(s.logger, "remove user from index failed", err, logrus.Fields{"user_id": id})
		}
	}
	if s.images != nil && imageRef != "" {
		if err := s.images.Delete(wctx, imageRef); err != nil {
			helpers.LogWarn(s.logger, "delete profile image failed", err, logrus.Fields{"user_id": id})
		}
	}
	s.logger.WithField("user_id", id).Info("user deleted")
	return nil
}
