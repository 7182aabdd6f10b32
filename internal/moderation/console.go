// Package moderation is the thin moderator-facing layer over the dispute API.
// It adds no business rules; it turns conflict and not-found answers into
// outcomes a moderator can act on.
package moderation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Clark-Hu/rating-disputes/internal/apiclient"
	"github.com/Clark-Hu/rating-disputes/internal/domain"
)

// Backend is the dispute API as seen by a moderator.
type Backend interface {
	ListDisputes(ctx context.Context, status domain.DisputeStatus, limit int, cursor string) (apiclient.DisputePage, error)
	GetDispute(ctx context.Context, id string) (domain.Dispute, error)
	UpdateDisputeStatus(ctx context.Context, id string, action domain.Action) (domain.Dispute, error)
}

// Outcome describes what happened to a moderation action.
type Outcome string

const (
	Applied         Outcome = "applied"
	AlreadyResolved Outcome = "already_resolved"
	NotFound        Outcome = "not_found"
)

// Result is the answer to a moderation action.
type Result struct {
	Outcome Outcome         `json:"outcome" yaml:"outcome"`
	Dispute *domain.Dispute `json:"dispute,omitempty" yaml:"dispute,omitempty"`
	// Status is the dispute's status when Outcome is AlreadyResolved.
	Status  domain.DisputeStatus `json:"status,omitempty" yaml:"status,omitempty"`
	Message string               `json:"message" yaml:"message"`
}

// Console drives moderation actions.
type Console struct {
	backend Backend
	logger  *zap.Logger
}

// NewConsole wraps a backend.
func NewConsole(backend Backend, logger *zap.Logger) *Console {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Console{backend: backend, logger: logger.Named("moderation")}
}

// List returns every dispute with the given status, newest first, following
// cursors until the listing is exhausted or max items are collected.
func (c *Console) List(ctx context.Context, status domain.DisputeStatus, max int) ([]domain.Dispute, error) {
	var (
		out    []domain.Dispute
		cursor string
	)
	for {
		page, err := c.backend.ListDisputes(ctx, status, 100, cursor)
		if err != nil {
			return nil, fmt.Errorf("list disputes: %w", err)
		}
		out = append(out, page.Items...)
		if max > 0 && len(out) >= max {
			return out[:max], nil
		}
		if page.NextCursor == nil || *page.NextCursor == "" || len(page.Items) == 0 {
			return out, nil
		}
		cursor = *page.NextCursor
	}
}

// Show fetches one dispute.
func (c *Console) Show(ctx context.Context, id string) (Result, error) {
	d, err := c.backend.GetDispute(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Result{Outcome: NotFound, Message: fmt.Sprintf("dispute %s not found", id)}, nil
		}
		return Result{}, err
	}
	return Result{Outcome: Applied, Dispute: &d, Message: fmt.Sprintf("dispute %s is %s", d.ID, d.Status)}, nil
}

// Approve approves a pending dispute.
func (c *Console) Approve(ctx context.Context, id string) (Result, error) {
	return c.act(ctx, id, domain.ActionApprove)
}

// Reject rejects a pending dispute.
func (c *Console) Reject(ctx context.Context, id string) (Result, error) {
	return c.act(ctx, id, domain.ActionReject)
}

func (c *Console) act(ctx context.Context, id string, action domain.Action) (Result, error) {
	d, err := c.backend.UpdateDisputeStatus(ctx, id, action)
	if err == nil {
		c.logger.Info("dispute resolved", zap.String("dispute_id", id), zap.String("status", string(d.Status)))
		return Result{Outcome: Applied, Dispute: &d, Message: fmt.Sprintf("dispute %s %s", id, d.Status)}, nil
	}

	var invalid *domain.InvalidStateError
	if errors.As(err, &invalid) {
		c.logger.Info("dispute already resolved", zap.String("dispute_id", id), zap.String("status", string(invalid.Status)))
		msg := fmt.Sprintf("dispute %s was already resolved by another moderator", id)
		if invalid.Status != "" {
			msg = fmt.Sprintf("dispute %s is already %s", id, invalid.Status)
		}
		return Result{Outcome: AlreadyResolved, Status: invalid.Status, Message: msg}, nil
	}
	if errors.Is(err, domain.ErrNotFound) {
		return Result{Outcome: NotFound, Message: fmt.Sprintf("dispute %s not found", id)}, nil
	}
	return Result{}, fmt.Errorf("%s dispute %s: %w", action, id, err)
}
