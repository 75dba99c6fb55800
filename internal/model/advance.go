package model

import "time"

// Advance payment statuses.
const (
	AdvancePending = "pending"
	AdvanceSettled = "settled"
)

// AdvancePayment is money paid out ahead of work being invoiced.
type AdvancePayment struct {
	ID        string    `json:"id"`
	Recipient string    `json:"recipient"`
	Amount    float64   `json:"amount"`
	Date      string    `json:"date"`
	Purpose   string    `json:"purpose"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// AdvanceInput is the payload for creating or updating an advance payment.
type AdvanceInput struct {
	Recipient string  `json:"recipient"`
	Amount    float64 `json:"amount"`
	Date      string  `json:"date"`
	Purpose   string  `json:"purpose"`
	Status    string  `json:"status"`
}
