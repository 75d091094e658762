package procurement

import (
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

type itemPayload struct {
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description"`
	Quantity    int64           `json:"quantity" validate:"required,gt=0"`
	Price       decimal.Decimal `json:"price"`
}

type createRequestPayload struct {
	RONumber   string           `json:"ro_number"`
	SupplierID int64            `json:"supplier_id"`
	CustomerID int64            `json:"customer_id"`
	VATPercent *decimal.Decimal `json:"vat_percent"`
	Deadline   string           `json:"deadline"`
	Comment    string           `json:"comment"`
	Items      []itemPayload    `json:"items" validate:"required,min=1,dive"`
}

type updateItemsPayload struct {
	Items []itemPayload `json:"items" validate:"required,min=1,dive"`
}

type changeStatusPayload struct {
	Status string `json:"status" validate:"required"`
}

type commentPayload struct {
	Comment string `json:"comment"`
}

func itemInputs(payloads []itemPayload) []ItemInput {
	inputs := make([]ItemInput, 0, len(payloads))
	for _, p := range payloads {
		inputs = append(inputs, ItemInput{Name: p.Name, Description: p.Description, Quantity: p.Quantity, Price: p.Price})
	}
	return inputs
}

type itemResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Quantity    int64  `json:"quantity"`
	Price       string `json:"price"`
	Total       string `json:"total"`
}

type documentResponse struct {
	ID         int64     `json:"id"`
	FileName   string    `json:"file_name"`
	Type       string    `json:"type"`
	ObjectKey  string    `json:"object_key"`
	UploadedBy int64     `json:"uploaded_by"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type requestResponse struct {
	ID                int64              `json:"id"`
	RONumber          string             `json:"ro_number"`
	CreatorID         int64              `json:"creator_id"`
	ManagerID         int64              `json:"manager_id,omitempty"`
	SupplierID        int64              `json:"supplier_id,omitempty"`
	CustomerID        int64              `json:"customer_id,omitempty"`
	AmountWithoutVAT  string             `json:"amount_without_vat"`
	VATPercent        string             `json:"vat_percent"`
	AmountWithVAT     string             `json:"amount_with_vat"`
	PaymentDate       string             `json:"payment_date,omitempty"`
	Deadline          string             `json:"deadline,omitempty"`
	Comment           string             `json:"comment,omitempty"`
	AccountantComment string             `json:"accountant_comment,omitempty"`
	Status            string             `json:"status"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
	Items             []itemResponse     `json:"items,omitempty"`
	Documents         []documentResponse `json:"documents,omitempty"`
}

type summaryResponse struct {
	ID            int64     `json:"id"`
	RONumber      string    `json:"ro_number"`
	SupplierName  string    `json:"supplier_name,omitempty"`
	CustomerName  string    `json:"customer_name,omitempty"`
	CreatorID     int64     `json:"creator_id"`
	ManagerID     int64     `json:"manager_id,omitempty"`
	AmountWithVAT string    `json:"amount_with_vat"`
	Status        string    `json:"status"`
	PaymentDate   string    `json:"payment_date,omitempty"`
	Deadline      string    `json:"deadline,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type reviewResponse struct {
	ID      int64     `json:"id"`
	ActorID int64     `json:"actor_id"`
	Action  string    `json:"action"`
	Note    string    `json:"note,omitempty"`
	At      time.Time `json:"at"`
}

type listResponse struct {
	Items []summaryResponse `json:"items"`
	Total int               `json:"total"`
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func toRequestResponse(pr PurchaseRequest, items []PurchaseItem, docs []RequestDocument) requestResponse {
	resp := requestResponse{
		ID:                pr.ID,
		RONumber:          pr.RONumber,
		CreatorID:         pr.CreatorID,
		ManagerID:         pr.ManagerID,
		SupplierID:        pr.SupplierID,
		CustomerID:        pr.CustomerID,
		AmountWithoutVAT:  pr.AmountWithoutVAT.StringFixed(2),
		VATPercent:        pr.VATPercent.String(),
		AmountWithVAT:     pr.AmountWithVAT.StringFixed(2),
		PaymentDate:       formatDate(pr.PaymentDate),
		Deadline:          formatDate(pr.Deadline),
		Comment:           pr.Comment,
		AccountantComment: pr.AccountantComment,
		Status:            string(pr.Status),
		CreatedAt:         pr.CreatedAt,
		UpdatedAt:         pr.UpdatedAt,
	}
	for _, item := range items {
		resp.Items = append(resp.Items, itemResponse{
			ID:          item.ID,
			Name:        item.Name,
			Description: item.Description,
			Quantity:    item.Quantity,
			Price:       item.Price.StringFixed(2),
			Total:       item.Total.StringFixed(2),
		})
	}
	for _, doc := range docs {
		resp.Documents = append(resp.Documents, documentResponse{
			ID:         doc.ID,
			FileName:   doc.FileName,
			Type:       string(doc.Type),
			ObjectKey:  doc.ObjectKey,
			UploadedBy: doc.UploadedBy,
			UploadedAt: doc.UploadedAt,
		})
	}
	return resp
}

func toSummaryResponse(s RequestSummary) summaryResponse {
	return summaryResponse{
		ID:            s.ID,
		RONumber:      s.RONumber,
		SupplierName:  s.SupplierName,
		CustomerName:  s.CustomerName,
		CreatorID:     s.CreatorID,
		ManagerID:     s.ManagerID,
		AmountWithVAT: s.AmountWithVAT.StringFixed(2),
		Status:        string(s.Status),
		PaymentDate:   formatDate(s.PaymentDate),
		Deadline:      formatDate(s.Deadline),
		CreatedAt:     s.CreatedAt,
	}
}
