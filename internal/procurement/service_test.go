package procurement

import (
	"context"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/procurio/procurio/internal/identity"
)

type memoryRepo struct {
	requests map[int64]PurchaseRequest
	items    map[int64][]PurchaseItem
	docs     map[int64][]RequestDocument
	numbers  map[string]struct{}
	nextID   int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		requests: make(map[int64]PurchaseRequest),
		items:    make(map[int64][]PurchaseItem),
		docs:     make(map[int64][]RequestDocument),
		numbers:  make(map[string]struct{}),
	}
}

// WithTx snapshots the maps and restores them when fn fails, mirroring the
// rollback the real repository gets from Postgres.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	requests := make(map[int64]PurchaseRequest, len(r.requests))
	for k, v := range r.requests {
		requests[k] = v
	}
	items := make(map[int64][]PurchaseItem, len(r.items))
	for k, v := range r.items {
		items[k] = append([]PurchaseItem(nil), v...)
	}
	docs := make(map[int64][]RequestDocument, len(r.docs))
	for k, v := range r.docs {
		docs[k] = append([]RequestDocument(nil), v...)
	}
	numbers := make(map[string]struct{}, len(r.numbers))
	for k := range r.numbers {
		numbers[k] = struct{}{}
	}
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.requests, r.items, r.docs, r.numbers = requests, items, docs, numbers
		return err
	}
	return nil
}

func (r *memoryRepo) GetRequest(ctx context.Context, id int64) (PurchaseRequest, []PurchaseItem, []RequestDocument, error) {
	pr, ok := r.requests[id]
	if !ok {
		return PurchaseRequest{}, nil, nil, ErrNotFound
	}
	return pr, append([]PurchaseItem(nil), r.items[id]...), append([]RequestDocument(nil), r.docs[id]...), nil
}

func (r *memoryRepo) ListRequests(ctx context.Context, filters ListFilters) ([]RequestSummary, int, error) {
	var summaries []RequestSummary
	for _, pr := range r.requests {
		if filters.Status != "" && pr.Status != filters.Status {
			continue
		}
		summaries = append(summaries, RequestSummary{
			ID:            pr.ID,
			RONumber:      pr.RONumber,
			CreatorID:     pr.CreatorID,
			ManagerID:     pr.ManagerID,
			AmountWithVAT: pr.AmountWithVAT,
			Status:        pr.Status,
			CreatedAt:     pr.CreatedAt,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		pi, pj := summaries[i].Status.SortPriority(), summaries[j].Status.SortPriority()
		if pi != pj {
			return pi < pj
		}
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries, len(summaries), nil
}

func (r *memoryRepo) ListByCreator(ctx context.Context, creatorID int64) ([]RequestSummary, error) {
	var summaries []RequestSummary
	for _, pr := range r.requests {
		if pr.CreatorID != creatorID {
			continue
		}
		summaries = append(summaries, RequestSummary{ID: pr.ID, RONumber: pr.RONumber, CreatorID: pr.CreatorID, Status: pr.Status, AmountWithVAT: pr.AmountWithVAT, CreatedAt: pr.CreatedAt})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].CreatedAt.After(summaries[j].CreatedAt) })
	return summaries, nil
}

func (tx *memoryTx) CreateRequest(ctx context.Context, pr PurchaseRequest) (int64, error) {
	if _, dup := tx.repo.numbers[pr.RONumber]; dup {
		return 0, ErrDuplicateNumber
	}
	tx.repo.nextID++
	pr.ID = tx.repo.nextID
	now := time.Now()
	pr.CreatedAt = now
	pr.UpdatedAt = now
	tx.repo.requests[pr.ID] = pr
	tx.repo.numbers[pr.RONumber] = struct{}{}
	return pr.ID, nil
}

func (tx *memoryTx) InsertItem(ctx context.Context, item PurchaseItem) error {
	tx.repo.nextID++
	item.ID = tx.repo.nextID
	tx.repo.items[item.RequestID] = append(tx.repo.items[item.RequestID], item)
	return nil
}

func (tx *memoryTx) DeleteItems(ctx context.Context, requestID int64) error {
	delete(tx.repo.items, requestID)
	return nil
}

func (tx *memoryTx) UpdateTotals(ctx context.Context, id int64, net, gross decimal.Decimal) error {
	pr, ok := tx.repo.requests[id]
	if !ok {
		return ErrNotFound
	}
	if pr.Status.Terminal() {
		return ErrInvalidTransition
	}
	pr.AmountWithoutVAT = net
	pr.AmountWithVAT = gross
	tx.repo.requests[id] = pr
	return nil
}

func (tx *memoryTx) UpdateStatus(ctx context.Context, id int64, from, to Status, managerID int64) error {
	pr, ok := tx.repo.requests[id]
	if !ok {
		return ErrNotFound
	}
	if pr.Status != from {
		return ErrInvalidTransition
	}
	pr.Status = to
	pr.ManagerID = managerID
	tx.repo.requests[id] = pr
	return nil
}

func (tx *memoryTx) UpdateAccountantComment(ctx context.Context, id int64, comment string) error {
	pr, ok := tx.repo.requests[id]
	if !ok {
		return ErrNotFound
	}
	pr.AccountantComment = comment
	tx.repo.requests[id] = pr
	return nil
}

func (tx *memoryTx) InsertDocument(ctx context.Context, doc RequestDocument) (int64, error) {
	tx.repo.nextID++
	doc.ID = tx.repo.nextID
	tx.repo.docs[doc.RequestID] = append(tx.repo.docs[doc.RequestID], doc)
	return doc.ID, nil
}

var (
	employee   = identity.Principal{ID: 10, Name: "emp", Role: identity.RoleEmployee}
	manager    = identity.Principal{ID: 20, Name: "mgr", Role: identity.RoleManager}
	accountant = identity.Principal{ID: 30, Name: "acc", Role: identity.RoleAccountant}
	admin      = identity.Principal{ID: 40, Name: "adm", Role: identity.RoleAdmin}
)

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, nil, nil, nil, nil, nil, nil)
}

func mustDecimal(t *testing.T, raw string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(raw)
	require.NoError(t, err)
	return d
}

func sampleInput() CreateRequestInput {
	return CreateRequestInput{
		RONumber: "RO-1001",
		Items: []ItemInput{
			{Name: "Laptop", Quantity: 2, Price: decimal.NewFromInt(125)},
		},
	}
}

func TestCreateRequestComputesTotalsAndForcesWaiting(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	pr, err := svc.CreateRequest(context.Background(), employee, sampleInput())
	require.NoError(t, err)
	require.Equal(t, StatusWaiting, pr.Status)
	require.Equal(t, "250", pr.AmountWithoutVAT.String())
	require.Equal(t, "280", pr.AmountWithVAT.String())
	require.True(t, pr.VATPercent.Equal(decimal.NewFromInt(12)))
	require.Equal(t, employee.ID, pr.CreatorID)
	require.Zero(t, pr.ManagerID)

	_, items, _, err := repo.GetRequest(context.Background(), pr.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "250", items[0].Total.String())
}

func TestCreateRequestGeneratesNumberWhenBlank(t *testing.T) {
	svc := newTestService(newMemoryRepo())

	input := sampleInput()
	input.RONumber = "  "
	pr, err := svc.CreateRequest(context.Background(), employee, input)
	require.NoError(t, err)
	require.Regexp(t, `^RO-\d+$`, pr.RONumber)
}

func TestCreateRequestDuplicateNumber(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	_, err := svc.CreateRequest(context.Background(), employee, sampleInput())
	require.NoError(t, err)
	_, err = svc.CreateRequest(context.Background(), manager, sampleInput())
	require.ErrorIs(t, err, ErrValidation)
	require.ErrorIs(t, err, ErrDuplicateNumber)
}

func TestCreateRequestRejectsBadItems(t *testing.T) {
	svc := newTestService(newMemoryRepo())

	cases := []struct {
		name  string
		items []ItemInput
	}{
		{"empty", nil},
		{"blank name", []ItemInput{{Name: " ", Quantity: 1, Price: decimal.NewFromInt(1)}}},
		{"zero quantity", []ItemInput{{Name: "x", Quantity: 0, Price: decimal.NewFromInt(1)}}},
		{"negative price", []ItemInput{{Name: "x", Quantity: 1, Price: decimal.NewFromInt(-1)}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := sampleInput()
			input.RONumber = "RO-" + tc.name
			input.Items = tc.items
			_, err := svc.CreateRequest(context.Background(), employee, input)
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestCreateRequestRejectsNegativeVAT(t *testing.T) {
	svc := newTestService(newMemoryRepo())

	input := sampleInput()
	negative := decimal.NewFromInt(-5)
	input.VATPercent = &negative
	_, err := svc.CreateRequest(context.Background(), employee, input)
	require.ErrorIs(t, err, ErrValidation)
}

func TestCreateRequestCustomVAT(t *testing.T) {
	svc := newTestService(newMemoryRepo())

	input := sampleInput()
	zero := decimal.Zero
	input.VATPercent = &zero
	pr, err := svc.CreateRequest(context.Background(), employee, input)
	require.NoError(t, err)
	require.Equal(t, "250", pr.AmountWithVAT.String())
}

func TestChangeStatusRecordsReviewer(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	pr, err := svc.CreateRequest(context.Background(), employee, sampleInput())
	require.NoError(t, err)

	updated, err := svc.ChangeStatus(context.Background(), pr.ID, StatusApproved, accountant)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, updated.Status)
	require.Equal(t, accountant.ID, updated.ManagerID)
	// financials survive the transition untouched
	require.True(t, updated.AmountWithVAT.Equal(pr.AmountWithVAT))
	require.True(t, updated.AmountWithoutVAT.Equal(pr.AmountWithoutVAT))

	// the latest reviewer overwrites the previous one
	updated, err = svc.ChangeStatus(context.Background(), pr.ID, StatusPaid, admin)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, updated.Status)
	require.Equal(t, admin.ID, updated.ManagerID)
}

func TestChangeStatusDeniedForNonReviewers(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	pr, err := svc.CreateRequest(context.Background(), employee, sampleInput())
	require.NoError(t, err)

	for _, actor := range []identity.Principal{employee, manager} {
		_, err = svc.ChangeStatus(context.Background(), pr.ID, StatusApproved, actor)
		require.ErrorIs(t, err, ErrPermission)
	}

	current, _, _, err := repo.GetRequest(context.Background(), pr.ID)
	require.NoError(t, err)
	require.Equal(t, StatusWaiting, current.Status)
	require.Zero(t, current.ManagerID)
}

func TestChangeStatusInvalidEdges(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	pr, err := svc.CreateRequest(context.Background(), employee, sampleInput())
	require.NoError(t, err)

	// PAID is only reachable from APPROVED
	_, err = svc.ChangeStatus(context.Background(), pr.ID, StatusPaid, accountant)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.ChangeStatus(context.Background(), pr.ID, StatusRejected, accountant)
	require.NoError(t, err)

	// terminal: nothing leaves REJECTED
	for _, next := range []Status{StatusWaiting, StatusApproved, StatusPaid, StatusCancelled} {
		_, err = svc.ChangeStatus(context.Background(), pr.ID, next, admin)
		require.ErrorIs(t, err, ErrInvalidTransition)
	}
}

// staleReadRepo lets a test interleave another actor between a service's
// guard read and its write transaction.
type staleReadRepo struct {
	*memoryRepo
	afterGet func()
}

func (r *staleReadRepo) GetRequest(ctx context.Context, id int64) (PurchaseRequest, []PurchaseItem, []RequestDocument, error) {
	pr, items, docs, err := r.memoryRepo.GetRequest(ctx, id)
	if hook := r.afterGet; hook != nil {
		r.afterGet = nil
		hook()
	}
	return pr, items, docs, err
}

func TestChangeStatusConcurrentReviewersLoseCleanly(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	pr, err := svc.CreateRequest(context.Background(), employee, sampleInput())
	require.NoError(t, err)
	_, err = svc.ChangeStatus(context.Background(), pr.ID, StatusApproved, accountant)
	require.NoError(t, err)

	// the slow reviewer reads APPROVED; before its write lands, a faster
	// reviewer settles the request as PAID
	stale := &staleReadRepo{memoryRepo: repo}
	slow := NewService(stale, nil, nil, nil, nil, nil, nil)
	stale.afterGet = func() {
		_, err := svc.ChangeStatus(context.Background(), pr.ID, StatusPaid, accountant)
		require.NoError(t, err)
	}

	_, err = slow.ChangeStatus(context.Background(), pr.ID, StatusCancelled, admin)
	require.ErrorIs(t, err, ErrInvalidTransition)

	current, _, _, err := repo.GetRequest(context.Background(), pr.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, current.Status)
	require.Equal(t, accountant.ID, current.ManagerID)
}

func TestUpdateItemsLosesRaceToTerminalTransition(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	pr, err := svc.CreateRequest(context.Background(), employee, sampleInput())
	require.NoError(t, err)

	stale := &staleReadRepo{memoryRepo: repo}
	slow := NewService(stale, nil, nil, nil, nil, nil, nil)
	stale.afterGet = func() {
		_, err := svc.ChangeStatus(context.Background(), pr.ID, StatusCancelled, accountant)
		require.NoError(t, err)
	}

	_, err = slow.UpdateItems(context.Background(), pr.ID, []ItemInput{
		{Name: "Monitor", Quantity: 3, Price: mustDecimal(t, "99.99")},
	}, accountant)
	require.ErrorIs(t, err, ErrInvalidTransition)

	// the replacement rolled back with the failed totals write
	current, items, _, err := repo.GetRequest(context.Background(), pr.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, current.Status)
	require.Len(t, items, 1)
	require.Equal(t, "Laptop", items[0].Name)
	require.Equal(t, "250", current.AmountWithoutVAT.String())
}

func TestChangeStatusUnknownStatus(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	_, err := svc.ChangeStatus(context.Background(), 1, Status("SHIPPED"), accountant)
	require.ErrorIs(t, err, ErrValidation)
}

func TestChangeStatusNotFound(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	_, err := svc.ChangeStatus(context.Background(), 404, StatusApproved, accountant)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateItemsRecomputesTotals(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	pr, err := svc.CreateRequest(context.Background(), employee, sampleInput())
	require.NoError(t, err)

	updated, err := svc.UpdateItems(context.Background(), pr.ID, []ItemInput{
		{Name: "Monitor", Quantity: 3, Price: mustDecimal(t, "99.99")},
	}, accountant)
	require.NoError(t, err)
	require.Equal(t, "299.97", updated.AmountWithoutVAT.String())
	require.Equal(t, "335.97", updated.AmountWithVAT.StringFixed(2))

	_, items, _, err := repo.GetRequest(context.Background(), pr.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "Monitor", items[0].Name)
}

func TestUpdateItemsDeniedForCreator(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	pr, err := svc.CreateRequest(context.Background(), employee, sampleInput())
	require.NoError(t, err)

	_, err = svc.UpdateItems(context.Background(), pr.ID, sampleInput().Items, employee)
	require.ErrorIs(t, err, ErrPermission)
}

func TestUpdateItemsFrozenAfterTerminalStatus(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	pr, err := svc.CreateRequest(context.Background(), employee, sampleInput())
	require.NoError(t, err)
	_, err = svc.ChangeStatus(context.Background(), pr.ID, StatusCancelled, accountant)
	require.NoError(t, err)

	_, err = svc.UpdateItems(context.Background(), pr.ID, sampleInput().Items, accountant)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSetAccountantComment(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	pr, err := svc.CreateRequest(context.Background(), employee, sampleInput())
	require.NoError(t, err)

	require.ErrorIs(t, svc.SetAccountantComment(context.Background(), pr.ID, "missing invoice", employee), ErrPermission)
	require.NoError(t, svc.SetAccountantComment(context.Background(), pr.ID, "missing invoice", accountant))

	current, _, _, err := repo.GetRequest(context.Background(), pr.ID)
	require.NoError(t, err)
	require.Equal(t, "missing invoice", current.AccountantComment)
}

type memoryBlobs struct {
	keys  []string
	blobs map[string][]byte
}

func (b *memoryBlobs) Put(ctx context.Context, originalName, contentType string, size int64, body io.Reader) (string, error) {
	key := "requests/" + originalName
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	if b.blobs == nil {
		b.blobs = make(map[string][]byte)
	}
	b.keys = append(b.keys, key)
	b.blobs[key] = data
	return key, nil
}

func (b *memoryBlobs) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := b.blobs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(strings.NewReader(string(data))), nil
}

func TestAttachDocument(t *testing.T) {
	repo := newMemoryRepo()
	blobs := &memoryBlobs{}
	svc := NewService(repo, blobs, nil, nil, nil, nil, nil)

	pr, err := svc.CreateRequest(context.Background(), employee, sampleInput())
	require.NoError(t, err)

	doc, err := svc.AttachDocument(context.Background(), pr.ID, employee, DocumentInput{
		FileName: "invoice.pdf",
		Type:     DocTypeInvoice,
		Body:     strings.NewReader("%PDF-1.4"),
	})
	require.NoError(t, err)
	require.Equal(t, DocTypeInvoice, doc.Type)
	require.Equal(t, employee.ID, doc.UploadedBy)
	require.False(t, doc.UploadedAt.IsZero())
	require.Len(t, blobs.keys, 1)

	_, _, docs, err := repo.GetRequest(context.Background(), pr.ID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
}

func TestOpenDocument(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, &memoryBlobs{}, nil, nil, nil, nil, nil)

	pr, err := svc.CreateRequest(context.Background(), employee, sampleInput())
	require.NoError(t, err)
	doc, err := svc.AttachDocument(context.Background(), pr.ID, employee, DocumentInput{
		FileName: "contract.pdf",
		Type:     DocTypeContract,
		Body:     strings.NewReader("signed"),
	})
	require.NoError(t, err)

	got, body, err := svc.OpenDocument(context.Background(), pr.ID, doc.ID)
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.Equal(t, "signed", string(data))
	require.Equal(t, "contract.pdf", got.FileName)

	_, _, err = svc.OpenDocument(context.Background(), pr.ID, doc.ID+100)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAttachDocumentValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, &memoryBlobs{}, nil, nil, nil, nil, nil)

	pr, err := svc.CreateRequest(context.Background(), employee, sampleInput())
	require.NoError(t, err)

	_, err = svc.AttachDocument(context.Background(), pr.ID, employee, DocumentInput{FileName: "x", Type: DocType("RECEIPT"), Body: strings.NewReader("x")})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.AttachDocument(context.Background(), pr.ID, employee, DocumentInput{FileName: "x", Type: DocTypeOther})
	require.ErrorIs(t, err, ErrValidation)
}

func TestListRequestsOrdersByStatusPriority(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	first, err := svc.CreateRequest(context.Background(), employee, CreateRequestInput{RONumber: "RO-A", Items: sampleInput().Items})
	require.NoError(t, err)
	second, err := svc.CreateRequest(context.Background(), employee, CreateRequestInput{RONumber: "RO-B", Items: sampleInput().Items})
	require.NoError(t, err)
	_, err = svc.ChangeStatus(context.Background(), first.ID, StatusApproved, accountant)
	require.NoError(t, err)
	_, err = svc.ChangeStatus(context.Background(), first.ID, StatusPaid, accountant)
	require.NoError(t, err)

	page, err := svc.ListRequests(context.Background(), ListFilters{})
	require.NoError(t, err)
	require.Equal(t, 2, page.Total)
	// WAITING before PAID regardless of creation order
	require.Equal(t, second.ID, page.Items[0].ID)
	require.Equal(t, first.ID, page.Items[1].ID)
}

func TestListRequestsRejectsUnknownStatusFilter(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	_, err := svc.ListRequests(context.Background(), ListFilters{Status: Status("OPEN")})
	require.ErrorIs(t, err, ErrValidation)
}

func TestListMyRequests(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	mine, err := svc.CreateRequest(context.Background(), employee, CreateRequestInput{RONumber: "RO-MINE", Items: sampleInput().Items})
	require.NoError(t, err)
	_, err = svc.CreateRequest(context.Background(), manager, CreateRequestInput{RONumber: "RO-OTHER", Items: sampleInput().Items})
	require.NoError(t, err)

	summaries, err := svc.ListMyRequests(context.Background(), employee.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Equal(t, mine.ID, summaries[0].ID)
}
