package model

// CategoryTotal is the summed cost for one category.
type CategoryTotal struct {
	Category string  `json:"category"`
	Total    float64 `json:"total"`
}

// MonthTotal is the summed cost for one calendar month ("YYYY-MM").
type MonthTotal struct {
	Month string  `json:"month"`
	Total float64 `json:"total"`
}

// ReportSummary is the dashboard aggregate returned by the backend.
type ReportSummary struct {
	TotalCost     float64         `json:"totalCost"`
	TotalAdvances float64         `json:"totalAdvances"`
	ByCategory    []CategoryTotal `json:"byCategory"`
	ByMonth       []MonthTotal    `json:"byMonth"`
}

// ReportRange bounds a report query. Dates are YYYY-MM-DD; empty means open.
type ReportRange struct {
	From string
	To   string
}
