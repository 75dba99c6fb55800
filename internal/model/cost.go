package model

import "time"

// Category groups costs for filtering and reporting.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Cost is a single recorded expense.
type Cost struct {
	ID           string    `json:"id"`
	CategoryID   string    `json:"categoryId"`
	CategoryName string    `json:"categoryName"`
	Description  string    `json:"description"`
	Amount       float64   `json:"amount"`
	Date         string    `json:"date"`
	Vendor       string    `json:"vendor,omitempty"`
	CreatedBy    string    `json:"createdBy"`
	CreatedAt    time.Time `json:"createdAt"`
}

// CostInput is the payload for creating or updating a cost.
type CostInput struct {
	CategoryID  string  `json:"categoryId"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Date        string  `json:"date"`
	Vendor      string  `json:"vendor,omitempty"`
}

// CostFilter narrows a cost listing. Empty fields are ignored.
type CostFilter struct {
	CategoryID string
	From       string
	To         string
}
