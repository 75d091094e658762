package procurement

import (
	"encoding/csv"
	"io"
)

// exportPageLimit caps a CSV export to one bounded query.
const exportPageLimit = 10000

// WriteRequestsCSV serialises request summaries to CSV in dashboard order.
func WriteRequestsCSV(w io.Writer, items []RequestSummary) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"RO Number", "Supplier", "Customer", "Amount With VAT", "Status", "Payment Date", "Deadline", "Created"}); err != nil {
		return err
	}
	for _, item := range items {
		if err := writer.Write([]string{
			item.RONumber,
			item.SupplierName,
			item.CustomerName,
			item.AmountWithVAT.StringFixed(2),
			string(item.Status),
			formatDate(item.PaymentDate),
			formatDate(item.Deadline),
			item.CreatedAt.Format("2006-01-02 15:04:05"),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
