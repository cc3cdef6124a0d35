package messenger

import (
	"context"
	"strings"

	"messenger-core/errs"
	"messenger-core/model"
	"messenger-core/push"
)

// Profile returns the caller's directory record.
func (s *Service) Profile(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// SetPushToken replaces the user's single push token.
func (s *Service) SetPushToken(ctx context.Context, userID, token string) error {
	token = strings.TrimSpace(token)
	if !push.ValidToken(token) {
		return errs.ErrInvalidPushToken
	}
	return s.users.SetPushToken(ctx, userID, token)
}

// SetPublicKey stores the user's public key, which enables encrypted delivery to them.
func (s *Service) SetPublicKey(ctx context.Context, userID, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errs.ErrMissingPublicKey
	}
	return s.users.SetPublicKey(ctx, userID, key)
}

func (s *Service) Block(ctx context.Context, userID, targetID string) error {
	if targetID == userID {
		return errs.ErrSelfBlock
	}
	if _, err := s.users.GetByID(ctx, targetID); err != nil {
		return err
	}
	return s.users.Block(ctx, userID, targetID)
}

func (s *Service) Unblock(ctx context.Context, userID, targetID string) error {
	if targetID == userID {
		return errs.ErrSelfBlock
	}
	return s.users.Unblock(ctx, userID, targetID)
}
