package payout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/inodinwetrust10/fxsettle/internal/db"
	"github.com/inodinwetrust10/fxsettle/internal/models"
)

// ErrDefaultRequired is returned when an update would leave the user with no
// default method.
var ErrDefaultRequired = errors.New("a default payout method is required")

type NewMethod struct {
	UserID    int64             `json:"user_id"`
	Type      models.PayoutType `json:"type"`
	Details   json.RawMessage   `json:"details"`
	Currency  string            `json:"currency"`
	IsDefault bool              `json:"is_default"`
}

type MethodUpdate struct {
	UserID    int64           `json:"user_id"`
	Details   json.RawMessage `json:"details,omitempty"`
	Currency  string          `json:"currency,omitempty"`
	IsDefault *bool           `json:"is_default,omitempty"`
}

// CreateMethod validates the raw details into their typed variant. The
// user's first method becomes the default.
func (s *Service) CreateMethod(ctx context.Context, n NewMethod) (*models.PayoutMethod, error) {
	details, err := models.ParsePayoutDetails(n.Type, n.Details)
	if err != nil {
		return nil, err
	}
	cur, err := models.NormalizeCurrency(n.Currency)
	if err != nil {
		return nil, err
	}

	m := &models.PayoutMethod{
		UserID:   n.UserID,
		Type:     n.Type,
		Details:  details,
		Currency: cur,
	}
	err = db.RunInTx(ctx, s.store, s.cfg.MaxRetries, func(tx db.Tx) error {
		if _, err := tx.GetUser(ctx, n.UserID); err != nil {
			return fmt.Errorf("user %d: %w", n.UserID, err)
		}
		existing, err := tx.ListPayoutMethods(ctx, n.UserID, true)
		if err != nil {
			return err
		}
		m.IsDefault = n.IsDefault || len(existing) == 0
		if m.IsDefault {
			if err := tx.ClearDefaultPayoutMethods(ctx, n.UserID, 0); err != nil {
				return err
			}
		}
		return tx.InsertPayoutMethod(ctx, m)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("payout method created",
		zap.Int64("method_id", m.ID),
		zap.Int64("user_id", m.UserID),
		zap.String("type", string(m.Type)),
		zap.Bool("default", m.IsDefault))
	return m, nil
}

func (s *Service) UpdateMethod(ctx context.Context, id int64, u MethodUpdate) (*models.PayoutMethod, error) {
	var out *models.PayoutMethod
	err := db.RunInTx(ctx, s.store, s.cfg.MaxRetries, func(tx db.Tx) error {
		// Lock the owner's methods so concurrent default changes serialize.
		methods, err := tx.ListPayoutMethods(ctx, u.UserID, true)
		if err != nil {
			return err
		}
		var m *models.PayoutMethod
		for i := range methods {
			if methods[i].ID == id {
				m = &methods[i]
			}
		}
		if m == nil {
			if _, err := tx.GetPayoutMethod(ctx, id); err != nil {
				return fmt.Errorf("payout method %d: %w", id, err)
			}
			return ErrMethodNotOwned
		}

		if len(u.Details) > 0 {
			d, err := models.ParsePayoutDetails(m.Type, u.Details)
			if err != nil {
				return err
			}
			m.Details = d
		}
		if u.Currency != "" {
			cur, err := models.NormalizeCurrency(u.Currency)
			if err != nil {
				return err
			}
			m.Currency = cur
		}
		if u.IsDefault != nil {
			switch {
			case *u.IsDefault && !m.IsDefault:
				if err := tx.ClearDefaultPayoutMethods(ctx, m.UserID, m.ID); err != nil {
					return err
				}
				m.IsDefault = true
			case !*u.IsDefault && m.IsDefault:
				return ErrDefaultRequired
			}
		}
		if err := tx.UpdatePayoutMethod(ctx, m); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetDefault makes id the user's only default method.
func (s *Service) SetDefault(ctx context.Context, id, userID int64) (*models.PayoutMethod, error) {
	yes := true
	m, err := s.UpdateMethod(ctx, id, MethodUpdate{UserID: userID, IsDefault: &yes})
	if err != nil {
		return nil, err
	}
	s.log.Info("default payout method changed", zap.Int64("method_id", id), zap.Int64("user_id", userID))
	return m, nil
}

func (s *Service) ListMethods(ctx context.Context, userID int64) ([]models.PayoutMethod, error) {
	return s.store.ListPayoutMethods(ctx, userID, false)
}
