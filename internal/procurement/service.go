package procurement

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/procurio/procurio/internal/identity"
	"github.com/procurio/procurio/internal/money"
	"github.com/procurio/procurio/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetRequest(ctx context.Context, id int64) (PurchaseRequest, []PurchaseItem, []RequestDocument, error)
	ListRequests(ctx context.Context, filters ListFilters) ([]RequestSummary, int, error)
	ListByCreator(ctx context.Context, creatorID int64) ([]RequestSummary, error)
}

// BlobStore persists document payloads outside the database.
type BlobStore interface {
	Put(ctx context.Context, originalName, contentType string, size int64, body io.Reader) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ReviewPort records and serves review decisions.
type ReviewPort interface {
	Record(ctx context.Context, log shared.ReviewLog) error
	List(ctx context.Context, requestID int64) ([]shared.ReviewLog, error)
}

// NotifierPort hands workflow events to the background queue.
type NotifierPort interface {
	RequestSubmitted(ctx context.Context, evt RequestSubmittedEvent) error
}

// ListFilters narrows and pages the review dashboard query.
type ListFilters struct {
	Status Status
	Limit  int
	Offset int
}

// Service orchestrates the purchase request workflow.
type Service struct {
	repo        RepositoryPort
	blobs       BlobStore
	reviews     ReviewPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	notifier    NotifierPort
	cache       *ListCache
	listGroup   singleflight.Group
}

// NewService constructs the procurement service.
func NewService(repo RepositoryPort, blobs BlobStore, reviews ReviewPort, audit AuditPort, idem *shared.IdempotencyStore, notifier NotifierPort, cache *ListCache) *Service {
	return &Service{repo: repo, blobs: blobs, reviews: reviews, audit: audit, idempotency: idem, notifier: notifier, cache: cache}
}

// ItemInput describes one requested line.
type ItemInput struct {
	Name        string
	Description string
	Quantity    int64
	Price       decimal.Decimal
}

// CreateRequestInput describes the creation payload.
type CreateRequestInput struct {
	RONumber   string
	SupplierID int64
	CustomerID int64
	VATPercent *decimal.Decimal
	Deadline   time.Time
	Comment    string
	Items      []ItemInput
}

// DocumentInput describes an uploaded supporting file.
type DocumentInput struct {
	FileName    string
	ContentType string
	Size        int64
	Type        DocType
	Body        io.Reader
}

// ListPage is the cached projection of the review dashboard.
type ListPage struct {
	Items []RequestSummary `json:"items"`
	Total int              `json:"total"`
}

// CreateRequest persists a new request together with its item set. The
// status is always WAITING regardless of caller input, and the header plus
// items are written in one transaction.
func (s *Service) CreateRequest(ctx context.Context, actor identity.Principal, input CreateRequestInput) (PurchaseRequest, error) {
	if !CanCreate(actor.Role) {
		return PurchaseRequest{}, ErrPermission
	}
	items, err := buildItems(input.Items)
	if err != nil {
		return PurchaseRequest{}, err
	}
	vat := DefaultVATPercent
	if input.VATPercent != nil {
		if input.VATPercent.IsNegative() {
			return PurchaseRequest{}, fmt.Errorf("vat percent must not be negative: %w", ErrValidation)
		}
		vat = *input.VATPercent
	}
	number := strings.TrimSpace(input.RONumber)
	if number == "" {
		number = generateNumber()
	}
	net, gross := ComputeTotals(items, vat)
	pr := PurchaseRequest{
		RONumber:         number,
		CreatorID:        actor.ID,
		SupplierID:       input.SupplierID,
		CustomerID:       input.CustomerID,
		AmountWithoutVAT: net,
		VATPercent:       vat,
		AmountWithVAT:    gross,
		Deadline:         input.Deadline,
		Comment:          input.Comment,
		Status:           StatusWaiting,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateRequest(ctx, pr)
		if err != nil {
			return err
		}
		pr.ID = id
		for i := range items {
			items[i].RequestID = id
			if err := tx.InsertItem(ctx, items[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return PurchaseRequest{}, err
	}
	s.recordAudit(ctx, actor.ID, "REQUEST_CREATE", pr.ID, map[string]any{"ro_number": pr.RONumber, "amount_with_vat": pr.AmountWithVAT.StringFixed(2)})
	if s.notifier != nil {
		_ = s.notifier.RequestSubmitted(ctx, RequestSubmittedEvent{
			ID:            pr.ID,
			RONumber:      pr.RONumber,
			CreatorID:     pr.CreatorID,
			AmountWithVAT: pr.AmountWithVAT.StringFixed(2),
		})
	}
	s.bumpCache(ctx)
	return pr, nil
}

// GetRequest loads a request with its items and document metadata.
func (s *Service) GetRequest(ctx context.Context, id int64) (PurchaseRequest, []PurchaseItem, []RequestDocument, error) {
	return s.repo.GetRequest(ctx, id)
}

// ListRequests serves the review dashboard: open work first (status
// priority), newest first within a status. Results are cached per filter and
// rebuilt through singleflight so concurrent reviewers share one query.
func (s *Service) ListRequests(ctx context.Context, filters ListFilters) (ListPage, error) {
	if filters.Status != "" && !filters.Status.Valid() {
		return ListPage{}, fmt.Errorf("unknown status filter %q: %w", filters.Status, ErrValidation)
	}
	if filters.Limit <= 0 {
		filters.Limit = 20
	}
	key := fmt.Sprintf("%s:%d:%d", filters.Status, filters.Limit, filters.Offset)
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, key); ok {
			var page ListPage
			if err := json.Unmarshal(cached, &page); err == nil {
				return page, nil
			}
		}
	}
	result, err, _ := s.listGroup.Do(key, func() (any, error) {
		items, total, err := s.repo.ListRequests(ctx, filters)
		if err != nil {
			return nil, err
		}
		page := ListPage{Items: items, Total: total}
		if s.cache != nil {
			if encoded, err := json.Marshal(page); err == nil {
				s.cache.Set(ctx, key, encoded)
			}
		}
		return page, nil
	})
	if err != nil {
		return ListPage{}, err
	}
	return result.(ListPage), nil
}

// ListMyRequests returns the caller's own requests, newest first.
func (s *Service) ListMyRequests(ctx context.Context, creatorID int64) ([]RequestSummary, error) {
	return s.repo.ListByCreator(ctx, creatorID)
}

// ChangeStatus moves a request through the workflow. The acting principal
// becomes the manager of record (latest reviewer overwrites), updated_at is
// refreshed, and financials are never touched. The write is a compare-and-set
// against the status the guard saw, so two reviewers racing from the same
// state cannot both land; the loser gets ErrInvalidTransition. A failed
// transition leaves status and manager unchanged.
func (s *Service) ChangeStatus(ctx context.Context, id int64, next Status, actor identity.Principal) (PurchaseRequest, error) {
	if !next.Valid() {
		return PurchaseRequest{}, fmt.Errorf("unknown status %q: %w", next, ErrValidation)
	}
	pr, _, _, err := s.repo.GetRequest(ctx, id)
	if err != nil {
		return PurchaseRequest{}, err
	}
	if err := Authorize(actor.Role, pr.Status, next); err != nil {
		return PurchaseRequest{}, err
	}
	key := fmt.Sprintf("REQUEST:%d:%s", id, next)
	inserted := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "procurement.status"); err != nil {
			return PurchaseRequest{}, err
		}
		inserted = true
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateStatus(ctx, id, pr.Status, next, actor.ID); err != nil {
			return err
		}
		if s.reviews != nil {
			if err := s.reviews.Record(ctx, shared.ReviewLog{
				RequestID: id,
				ActorID:   actor.ID,
				Action:    reviewAction(next),
				Note:      fmt.Sprintf("request %s -> %s", pr.RONumber, next),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if inserted {
			_ = s.idempotency.Delete(ctx, key)
		}
		return PurchaseRequest{}, err
	}
	s.recordAudit(ctx, actor.ID, "REQUEST_STATUS", id, map[string]any{"from": string(pr.Status), "to": string(next)})
	s.bumpCache(ctx)
	updated, _, _, err := s.repo.GetRequest(ctx, id)
	if err != nil {
		return PurchaseRequest{}, err
	}
	return updated, nil
}

// UpdateItems replaces the item set and recomputes totals in the same
// transaction, so totals can never go stale. Terminal requests are frozen:
// no item edits after PAID, REJECTED or CANCELLED. The freeze is re-checked
// by the totals write inside the transaction, so a request settled between
// the guard read and the commit rolls the whole replacement back.
func (s *Service) UpdateItems(ctx context.Context, id int64, inputs []ItemInput, actor identity.Principal) (PurchaseRequest, error) {
	if !CanReview(actor.Role) {
		return PurchaseRequest{}, ErrPermission
	}
	pr, _, _, err := s.repo.GetRequest(ctx, id)
	if err != nil {
		return PurchaseRequest{}, err
	}
	if pr.Status.Terminal() {
		return PurchaseRequest{}, fmt.Errorf("request %s is %s: %w", pr.RONumber, pr.Status, ErrInvalidTransition)
	}
	items, err := buildItems(inputs)
	if err != nil {
		return PurchaseRequest{}, err
	}
	net, gross := ComputeTotals(items, pr.VATPercent)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeleteItems(ctx, id); err != nil {
			return err
		}
		for i := range items {
			items[i].RequestID = id
			if err := tx.InsertItem(ctx, items[i]); err != nil {
				return err
			}
		}
		return tx.UpdateTotals(ctx, id, net, gross)
	})
	if err != nil {
		return PurchaseRequest{}, err
	}
	s.recordAudit(ctx, actor.ID, "REQUEST_ITEMS", id, map[string]any{"count": len(items), "amount_with_vat": gross.StringFixed(2)})
	s.bumpCache(ctx)
	updated, _, _, err := s.repo.GetRequest(ctx, id)
	if err != nil {
		return PurchaseRequest{}, err
	}
	return updated, nil
}

// ListReviews returns the review trail of a request, oldest first.
func (s *Service) ListReviews(ctx context.Context, id int64) ([]shared.ReviewLog, error) {
	if _, _, _, err := s.repo.GetRequest(ctx, id); err != nil {
		return nil, err
	}
	if s.reviews == nil {
		return nil, nil
	}
	return s.reviews.List(ctx, id)
}

// SetAccountantComment stores the accountant-only note.
func (s *Service) SetAccountantComment(ctx context.Context, id int64, comment string, actor identity.Principal) error {
	if !CanReview(actor.Role) {
		return ErrPermission
	}
	if _, _, _, err := s.repo.GetRequest(ctx, id); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateAccountantComment(ctx, id, comment)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actor.ID, "REQUEST_COMMENT", id, nil)
	return nil
}

// AttachDocument stores the blob and records its metadata. The upload
// timestamp is set once and never changes.
func (s *Service) AttachDocument(ctx context.Context, id int64, actor identity.Principal, input DocumentInput) (RequestDocument, error) {
	if !input.Type.Valid() {
		return RequestDocument{}, fmt.Errorf("unknown document type %q: %w", input.Type, ErrValidation)
	}
	if input.Body == nil {
		return RequestDocument{}, fmt.Errorf("document body required: %w", ErrValidation)
	}
	if _, _, _, err := s.repo.GetRequest(ctx, id); err != nil {
		return RequestDocument{}, err
	}
	if s.blobs == nil {
		return RequestDocument{}, fmt.Errorf("procurement: blob store not configured")
	}
	key, err := s.blobs.Put(ctx, input.FileName, input.ContentType, input.Size, input.Body)
	if err != nil {
		return RequestDocument{}, err
	}
	doc := RequestDocument{
		RequestID:  id,
		ObjectKey:  key,
		FileName:   input.FileName,
		Type:       input.Type,
		UploadedBy: actor.ID,
		UploadedAt: time.Now(),
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		docID, err := tx.InsertDocument(ctx, doc)
		if err != nil {
			return err
		}
		doc.ID = docID
		return nil
	})
	if err != nil {
		return RequestDocument{}, err
	}
	s.recordAudit(ctx, actor.ID, "REQUEST_DOCUMENT", id, map[string]any{"type": string(doc.Type), "file": doc.FileName})
	return doc, nil
}

// OpenDocument returns a stored document's metadata and blob stream. The
// caller owns the returned reader.
func (s *Service) OpenDocument(ctx context.Context, requestID, docID int64) (RequestDocument, io.ReadCloser, error) {
	_, _, docs, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return RequestDocument{}, nil, err
	}
	for _, doc := range docs {
		if doc.ID != docID {
			continue
		}
		if s.blobs == nil {
			return RequestDocument{}, nil, fmt.Errorf("procurement: blob store not configured")
		}
		body, err := s.blobs.Get(ctx, doc.ObjectKey)
		if err != nil {
			return RequestDocument{}, nil, err
		}
		return doc, body, nil
	}
	return RequestDocument{}, nil, fmt.Errorf("document %d: %w", docID, ErrNotFound)
}

func buildItems(inputs []ItemInput) ([]PurchaseItem, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("at least one item required: %w", ErrValidation)
	}
	items := make([]PurchaseItem, 0, len(inputs))
	for _, in := range inputs {
		if strings.TrimSpace(in.Name) == "" {
			return nil, fmt.Errorf("item name required: %w", ErrValidation)
		}
		if in.Quantity <= 0 {
			return nil, fmt.Errorf("item %q quantity must be positive: %w", in.Name, ErrValidation)
		}
		if in.Price.IsNegative() {
			return nil, fmt.Errorf("item %q price must not be negative: %w", in.Name, ErrValidation)
		}
		items = append(items, PurchaseItem{
			Name:        in.Name,
			Description: in.Description,
			Quantity:    in.Quantity,
			Price:       in.Price,
			Total:       money.LineTotal(in.Quantity, in.Price),
		})
	}
	return items, nil
}

func reviewAction(next Status) shared.ReviewAction {
	switch next {
	case StatusApproved:
		return shared.ReviewApprove
	case StatusRejected:
		return shared.ReviewReject
	case StatusPaid:
		return shared.ReviewPay
	default:
		return shared.ReviewCancel
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "purchase_request", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}

func (s *Service) bumpCache(ctx context.Context) {
	if s.cache != nil {
		s.cache.Bump(ctx)
	}
}

func generateNumber() string {
	return fmt.Sprintf("RO-%d", time.Now().UnixNano())
}
