package procurement

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Purchase request lifecycle statuses.
type Status string

const (
	StatusWaiting   Status = "WAITING"
	StatusApproved  Status = "APPROVED"
	StatusPaid      Status = "PAID"
	StatusRejected  Status = "REJECTED"
	StatusCancelled Status = "CANCELLED"
)

// Valid reports whether the status belongs to the canonical enum.
func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusApproved, StatusPaid, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether the status has no outbound transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusPaid, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// SortPriority orders the review dashboard: open work first, settled last.
func (s Status) SortPriority() int {
	switch s {
	case StatusWaiting:
		return 1
	case StatusApproved:
		return 2
	case StatusPaid:
		return 3
	case StatusRejected:
		return 4
	case StatusCancelled:
		return 5
	default:
		return 99
	}
}

// Supporting document types.
type DocType string

const (
	DocTypeInvoice  DocType = "INVOICE"
	DocTypeContract DocType = "CONTRACT"
	DocTypeAct      DocType = "ACT"
	DocTypeOther    DocType = "OTHER"
)

// Valid reports whether the document type is known.
func (t DocType) Valid() bool {
	switch t {
	case DocTypeInvoice, DocTypeContract, DocTypeAct, DocTypeOther:
		return true
	}
	return false
}

// DefaultVATPercent applies when a request does not specify a rate.
var DefaultVATPercent = decimal.NewFromInt(12)

// PurchaseRequest is the aggregate root of the approval workflow.
// AmountWithoutVAT and AmountWithVAT are always derived from the item set
// and the VAT rate; they are never set directly.
type PurchaseRequest struct {
	ID                int64
	RONumber          string
	CreatorID         int64
	ManagerID         int64
	SupplierID        int64
	CustomerID        int64
	AmountWithoutVAT  decimal.Decimal
	VATPercent        decimal.Decimal
	AmountWithVAT     decimal.Decimal
	PaymentDate       time.Time
	Deadline          time.Time
	Comment           string
	AccountantComment string
	Status            Status
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// PurchaseItem belongs to exactly one request. Total is always
// quantity * price, recomputed on every item mutation.
type PurchaseItem struct {
	ID          int64
	RequestID   int64
	Name        string
	Description string
	Quantity    int64
	Price       decimal.Decimal
	Total       decimal.Decimal
}

// RequestDocument records metadata for an uploaded supporting file.
// The blob itself lives in the object store under ObjectKey.
type RequestDocument struct {
	ID         int64
	RequestID  int64
	ObjectKey  string
	FileName   string
	Type       DocType
	UploadedBy int64
	UploadedAt time.Time
}

// RequestSummary is the list projection with reference names resolved.
type RequestSummary struct {
	ID            int64
	RONumber      string
	SupplierName  string
	CustomerName  string
	CreatorID     int64
	ManagerID     int64
	AmountWithVAT decimal.Decimal
	Status        Status
	PaymentDate   time.Time
	Deadline      time.Time
	CreatedAt     time.Time
}

var (
	// ErrNotFound indicates the request or sub-resource is missing.
	ErrNotFound = errors.New("procurement: not found")
	// ErrValidation indicates malformed or invalid input.
	ErrValidation = errors.New("procurement: invalid input")
	// ErrPermission indicates the acting role may not perform the operation.
	ErrPermission = errors.New("procurement: permission denied")
	// ErrInvalidTransition indicates the status edge is not in the allowed graph.
	ErrInvalidTransition = errors.New("procurement: invalid state transition")
)

// ErrDuplicateNumber is a validation failure on the unique R.O. number.
var ErrDuplicateNumber = fmt.Errorf("duplicate ro number: %w", ErrValidation)
