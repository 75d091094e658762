package suppliers

import (
	"time"
)

// Supplier is the counterparty a purchase request is raised against.
// BinIin is the state business/taxpayer identification number.
type Supplier struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	BinIin      string    `json:"bin_iin"`
	Phone       string    `json:"phone"`
	Email       string    `json:"email"`
	BankDetails string    `json:"bank_details"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
