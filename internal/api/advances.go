package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/nhle/costdesk/internal/model"
)

// ListAdvances returns all advance payments.
func (c *Client) ListAdvances(ctx context.Context) ([]model.AdvancePayment, error) {
	var advances []model.AdvancePayment
	if err := c.get(ctx, "/advances", &advances); err != nil {
		return nil, fmt.Errorf("api.ListAdvances: %w", err)
	}
	return advances, nil
}

// CreateAdvance records a new advance payment.
func (c *Client) CreateAdvance(ctx context.Context, in model.AdvanceInput) (*model.AdvancePayment, error) {
	var created model.AdvancePayment
	if err := c.post(ctx, "/advances", in, &created); err != nil {
		return nil, fmt.Errorf("api.CreateAdvance: %w", err)
	}
	return &created, nil
}

// UpdateAdvance replaces the advance payment with the given id.
func (c *Client) UpdateAdvance(ctx context.Context, id string, in model.AdvanceInput) (*model.AdvancePayment, error) {
	var updated model.AdvancePayment
	if err := c.put(ctx, "/advances/"+url.PathEscape(id), in, &updated); err != nil {
		return nil, fmt.Errorf("api.UpdateAdvance: %w", err)
	}
	return &updated, nil
}

// DeleteAdvance removes an advance payment.
func (c *Client) DeleteAdvance(ctx context.Context, id string) error {
	if err := c.delete(ctx, "/advances/"+url.PathEscape(id)); err != nil {
		return fmt.Errorf("api.DeleteAdvance: %w", err)
	}
	return nil
}
