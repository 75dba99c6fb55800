package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/nhle/costdesk/internal/model"
)

// ListCosts returns costs matching filter.
func (c *Client) ListCosts(ctx context.Context, filter model.CostFilter) ([]model.Cost, error) {
	params := url.Values{}
	if filter.CategoryID != "" {
		params.Set("categoryId", filter.CategoryID)
	}
	if filter.From != "" {
		params.Set("from", filter.From)
	}
	if filter.To != "" {
		params.Set("to", filter.To)
	}

	path := "/costs"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var costs []model.Cost
	if err := c.get(ctx, path, &costs); err != nil {
		return nil, fmt.Errorf("api.ListCosts: %w", err)
	}
	return costs, nil
}

// CreateCost records a new cost.
func (c *Client) CreateCost(ctx context.Context, in model.CostInput) (*model.Cost, error) {
	var created model.Cost
	if err := c.post(ctx, "/costs", in, &created); err != nil {
		return nil, fmt.Errorf("api.CreateCost: %w", err)
	}
	return &created, nil
}

// UpdateCost replaces the cost with the given id.
func (c *Client) UpdateCost(ctx context.Context, id string, in model.CostInput) (*model.Cost, error) {
	var updated model.Cost
	if err := c.put(ctx, "/costs/"+url.PathEscape(id), in, &updated); err != nil {
		return nil, fmt.Errorf("api.UpdateCost: %w", err)
	}
	return &updated, nil
}

// DeleteCost removes a cost.
func (c *Client) DeleteCost(ctx context.Context, id string) error {
	if err := c.delete(ctx, "/costs/"+url.PathEscape(id)); err != nil {
		return fmt.Errorf("api.DeleteCost: %w", err)
	}
	return nil
}

// ListCategories returns all cost categories.
func (c *Client) ListCategories(ctx context.Context) ([]model.Category, error) {
	var cats []model.Category
	if err := c.get(ctx, "/categories", &cats); err != nil {
		return nil, fmt.Errorf("api.ListCategories: %w", err)
	}
	return cats, nil
}

// CreateCategory adds a cost category.
func (c *Client) CreateCategory(ctx context.Context, name string) (*model.Category, error) {
	var created model.Category
	if err := c.post(ctx, "/categories", map[string]string{"name": name}, &created); err != nil {
		return nil, fmt.Errorf("api.CreateCategory: %w", err)
	}
	return &created, nil
}

// DeleteCategory removes a cost category.
func (c *Client) DeleteCategory(ctx context.Context, id string) error {
	if err := c.delete(ctx, "/categories/"+url.PathEscape(id)); err != nil {
		return fmt.Errorf("api.DeleteCategory: %w", err)
	}
	return nil
}
