package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type CategoryTotal struct {
	Category *string         `json:"category"`
	Total    decimal.Decimal `json:"total"`
	Count    int             `json:"count"`
}

type MonthlyTotal struct {
	Month string          `json:"month"`
	Total decimal.Decimal `json:"total"`
	Count int             `json:"count"`
}

type AnalyticsSummary struct {
	From       time.Time       `json:"from"`
	To         time.Time       `json:"to"`
	Total      decimal.Decimal `json:"total"`
	Categories []CategoryTotal `json:"categories"`
	Monthly    []MonthlyTotal  `json:"monthly"`
}
