package sales

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mobistock/mobistock/internal/clients"
	"github.com/mobistock/mobistock/internal/inventory"
	"github.com/mobistock/mobistock/internal/invoices"
	"github.com/mobistock/mobistock/internal/shared"
)

// memoryRepo backs the service with plain maps so the engine semantics
// can be exercised without Postgres. Rollback is simulated by taking a
// snapshot before fn and restoring it on error.
type memoryRepo struct {
	clients   map[int64]*memClient
	units     map[int64]*inventory.Unit
	sales     map[int64]*Sale
	items     map[int64]*SaleItem
	returns   []Return
	invoices  map[int64]invoices.Sync
	cancelled map[int64]bool
	nextID    int64
}

type memClient struct {
	id    int64
	name  string
	phone *string
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		clients:   make(map[int64]*memClient),
		units:     make(map[int64]*inventory.Unit),
		sales:     make(map[int64]*Sale),
		items:     make(map[int64]*SaleItem),
		invoices:  make(map[int64]invoices.Sync),
		cancelled: make(map[int64]bool),
	}
}

func (r *memoryRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *memoryRepo) addUnit(u inventory.Unit) *inventory.Unit {
	u.ID = r.id()
	r.units[u.ID] = &u
	return r.units[u.ID]
}

func (r *memoryRepo) snapshot() *memoryRepo {
	cp := newMemoryRepo()
	cp.nextID = r.nextID
	for k, v := range r.clients {
		c := *v
		cp.clients[k] = &c
	}
	for k, v := range r.units {
		u := *v
		cp.units[k] = &u
	}
	for k, v := range r.sales {
		s := *v
		cp.sales[k] = &s
	}
	for k, v := range r.items {
		it := *v
		cp.items[k] = &it
	}
	cp.returns = append(cp.returns, r.returns...)
	for k, v := range r.invoices {
		cp.invoices[k] = v
	}
	for k, v := range r.cancelled {
		cp.cancelled[k] = v
	}
	return cp
}

func (r *memoryRepo) restore(from *memoryRepo) {
	r.clients = from.clients
	r.units = from.units
	r.sales = from.sales
	r.items = from.items
	r.returns = from.returns
	r.invoices = from.invoices
	r.cancelled = from.cancelled
	r.nextID = from.nextID
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snap := r.snapshot()
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.restore(snap)
		return err
	}
	return nil
}

func (r *memoryRepo) GetSale(ctx context.Context, saleID int64) (*SaleWithItems, error) {
	sale, ok := r.sales[saleID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	out := SaleWithItems{Sale: *sale}
	for _, item := range r.items {
		if item.SaleID == saleID {
			out.Items = append(out.Items, *item)
		}
	}
	return &out, nil
}

func (r *memoryRepo) ListSales(ctx context.Context) ([]SaleWithItems, error) {
	var out []SaleWithItems
	for id := range r.sales {
		s, _ := r.GetSale(ctx, id)
		out = append(out, *s)
	}
	return out, nil
}

func (r *memoryRepo) ListReturns(ctx context.Context) ([]Return, error) {
	return append([]Return(nil), r.returns...), nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) GetClientByName(ctx context.Context, name string) (*clients.Client, error) {
	for _, c := range t.repo.clients {
		if c.name == name {
			return &clients.Client{ID: c.id, Name: c.name, Phone: c.phone}, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (t *memoryTx) CreateClient(ctx context.Context, name string, phone *string) (int64, error) {
	id := t.repo.id()
	t.repo.clients[id] = &memClient{id: id, name: name, phone: phone}
	return id, nil
}

func (t *memoryTx) UpdateClientPhone(ctx context.Context, id int64, phone string) error {
	if c, ok := t.repo.clients[id]; ok {
		c.phone = &phone
	}
	return nil
}

func (t *memoryTx) FindUnit(ctx context.Context, lookup inventory.Lookup) (*inventory.Unit, error) {
	for _, u := range t.repo.units {
		if u.IMEI == lookup.IMEI && u.Brand == lookup.Brand && u.Model == lookup.Model {
			cp := *u
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (t *memoryTx) UpdateUnitStatus(ctx context.Context, id int64, imei string, status inventory.UnitStatus) error {
	u, ok := t.repo.units[id]
	if !ok || u.IMEI != imei {
		return shared.ErrNotFound
	}
	u.Status = status
	return nil
}

func (t *memoryTx) RestockUnit(ctx context.Context, id int64, imei string) error {
	u, ok := t.repo.units[id]
	if !ok || u.IMEI != imei {
		return shared.ErrNotFound
	}
	u.Status = inventory.UnitStatusActive
	u.Quantity++
	return nil
}

func (t *memoryTx) InsertSale(ctx context.Context, sale Sale) (int64, error) {
	sale.ID = t.repo.id()
	t.repo.sales[sale.ID] = &sale
	return sale.ID, nil
}

func (t *memoryTx) InsertSaleItem(ctx context.Context, item SaleItem) (int64, error) {
	item.ID = t.repo.id()
	t.repo.items[item.ID] = &item
	return item.ID, nil
}

func (t *memoryTx) GetSaleForUpdate(ctx context.Context, saleID int64) (*Sale, error) {
	sale, ok := t.repo.sales[saleID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *sale
	return &cp, nil
}

func (t *memoryTx) GetSaleItem(ctx context.Context, saleID, itemID int64) (*SaleItem, error) {
	item, ok := t.repo.items[itemID]
	if !ok || item.SaleID != saleID {
		return nil, shared.ErrNotFound
	}
	cp := *item
	return &cp, nil
}

func (t *memoryTx) MarkItemStatus(ctx context.Context, saleID, itemID int64, status ItemStatus, reason string) error {
	item, ok := t.repo.items[itemID]
	if !ok || item.SaleID != saleID {
		return shared.ErrNotFound
	}
	if item.Status != ItemStatusActive {
		return shared.ErrConflict
	}
	item.Status = status
	item.CancellationReason = &reason
	return nil
}

func (t *memoryTx) SumActiveItems(ctx context.Context, saleID int64) (float64, error) {
	var sum float64
	for _, item := range t.repo.items {
		if item.SaleID == saleID && item.Status == ItemStatusActive {
			sum += float64(item.QuantitySold) * item.UnitSalePrice
		}
	}
	return sum, nil
}

func (t *memoryTx) CountItems(ctx context.Context, saleID int64) (int, int, error) {
	var total, inactive int
	for _, item := range t.repo.items {
		if item.SaleID != saleID {
			continue
		}
		total++
		if item.Status.Terminal() {
			inactive++
		}
	}
	return total, inactive, nil
}

func (t *memoryTx) UpdateSaleTotals(ctx context.Context, saleID int64, totalAmount float64, status PaymentStatus) error {
	sale := t.repo.sales[saleID]
	sale.TotalAmount = totalAmount
	sale.PaymentStatus = status
	return nil
}

func (t *memoryTx) UpdateSalePayment(ctx context.Context, saleID int64, amountPaid, totalAmount float64, status PaymentStatus) error {
	sale := t.repo.sales[saleID]
	sale.AmountPaid = amountPaid
	sale.TotalAmount = totalAmount
	sale.PaymentStatus = status
	return nil
}

func (t *memoryTx) ForceCancelSale(ctx context.Context, saleID int64) error {
	sale := t.repo.sales[saleID]
	sale.PaymentStatus = PaymentCancelled
	return nil
}

func (t *memoryTx) InsertReturn(ctx context.Context, ret Return) error {
	ret.ID = t.repo.id()
	t.repo.returns = append(t.repo.returns, ret)
	return nil
}

func (t *memoryTx) SyncInvoice(ctx context.Context, sync invoices.Sync) error {
	t.repo.invoices[sync.SaleID] = sync
	return nil
}

func (t *memoryTx) CancelInvoice(ctx context.Context, saleID int64) error {
	t.repo.cancelled[saleID] = true
	return nil
}

func strptr(s string) *string { return &s }

func f64ptr(f float64) *float64 { return &f }

func activeUnit(repo *memoryRepo, imei string, purchase, sale float64) *inventory.Unit {
	return repo.addUnit(inventory.Unit{
		IMEI:          imei,
		Brand:         "Samsung",
		Model:         "A15",
		Storage:       strptr("128GB"),
		Status:        inventory.UnitStatusActive,
		PurchasePrice: purchase,
		SalePrice:     sale,
	})
}

func itemReq(imei string, price *float64) SaleItemRequest {
	return SaleItemRequest{
		IMEI:          imei,
		Brand:         "Samsung",
		Model:         "A15",
		Storage:       strptr("128GB"),
		QuantitySold:  1,
		UnitSalePrice: price,
	}
}

func TestCreateSalePartialPayment(t *testing.T) {
	repo := newMemoryRepo()
	unit := activeUnit(repo, "350001", 60000, 80000)
	svc := NewService(repo, nil, nil, nil, nil, nil)

	result, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		ClientName: "Mamadou Ba",
		Items:      []SaleItemRequest{itemReq("350001", nil)},
		AmountPaid: 50000,
	}, "")
	require.NoError(t, err)
	require.InDelta(t, 80000, result.TotalAmount, 0.001)
	require.Equal(t, PaymentPartial, result.PaymentStatus)
	require.Equal(t, inventory.UnitStatusSold, repo.units[unit.ID].Status)

	sale, err := repo.GetSale(context.Background(), result.SaleID)
	require.NoError(t, err)
	require.Len(t, sale.Items, 1)
	require.Equal(t, ItemStatusActive, sale.Items[0].Status)
	require.InDelta(t, 60000, sale.Items[0].UnitPurchasePrice, 0.001)
}

func TestCreateSaleFullPaymentAndZeroPayment(t *testing.T) {
	repo := newMemoryRepo()
	activeUnit(repo, "350010", 60000, 80000)
	activeUnit(repo, "350011", 60000, 80000)
	svc := NewService(repo, nil, nil, nil, nil, nil)

	full, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		ClientName: "Awa Diop",
		Items:      []SaleItemRequest{itemReq("350010", nil)},
		AmountPaid: 80000,
	}, "")
	require.NoError(t, err)
	require.Equal(t, PaymentFull, full.PaymentStatus)

	unpaid, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		ClientName: "Awa Diop",
		Items:      []SaleItemRequest{itemReq("350011", nil)},
		AmountPaid: 0,
	}, "")
	require.NoError(t, err)
	require.Equal(t, PaymentAwaiting, unpaid.PaymentStatus)
}

func TestCreateSaleOverridePrice(t *testing.T) {
	repo := newMemoryRepo()
	activeUnit(repo, "350002", 60000, 80000)
	svc := NewService(repo, nil, nil, nil, nil, nil)

	result, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		ClientName: "Oumar Sy",
		Items:      []SaleItemRequest{itemReq("350002", f64ptr(75000))},
		AmountPaid: 75000,
	}, "")
	require.NoError(t, err)
	require.InDelta(t, 75000, result.TotalAmount, 0.001)
	require.Equal(t, PaymentFull, result.PaymentStatus)
}

func TestCreateSaleRejectsPriceBelowPurchase(t *testing.T) {
	repo := newMemoryRepo()
	unit := activeUnit(repo, "350003", 60000, 80000)
	svc := NewService(repo, nil, nil, nil, nil, nil)

	_, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		ClientName: "Oumar Sy",
		Items:      []SaleItemRequest{itemReq("350003", f64ptr(55000))},
		AmountPaid: 55000,
	}, "")
	require.ErrorIs(t, err, shared.ErrPricingViolation)
	// rollback leaves the unit sellable and no sale behind
	require.Equal(t, inventory.UnitStatusActive, repo.units[unit.ID].Status)
	require.Empty(t, repo.sales)
}

func TestCreateSaleRejectsUnavailableUnit(t *testing.T) {
	repo := newMemoryRepo()
	unit := activeUnit(repo, "350004", 60000, 80000)
	unit.Status = inventory.UnitStatusSold
	svc := NewService(repo, nil, nil, nil, nil, nil)

	_, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		ClientName: "Binta Fall",
		Items:      []SaleItemRequest{itemReq("350004", nil)},
		AmountPaid: 0,
	}, "")
	require.ErrorIs(t, err, shared.ErrInvalidState)

	_, err = svc.CreateSale(context.Background(), CreateSaleRequest{
		ClientName: "Binta Fall",
		Items:      []SaleItemRequest{itemReq("999999", nil)},
		AmountPaid: 0,
	}, "")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreateSaleMultiItemRollsBackOnSecondFailure(t *testing.T) {
	repo := newMemoryRepo()
	first := activeUnit(repo, "350005", 60000, 80000)
	second := activeUnit(repo, "350006", 60000, 80000)
	second.Status = inventory.UnitStatusReturned
	svc := NewService(repo, nil, nil, nil, nil, nil)

	_, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		ClientName: "Cheikh Ndiaye",
		Items:      []SaleItemRequest{itemReq("350005", nil), itemReq("350006", nil)},
		AmountPaid: 0,
	}, "")
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.Equal(t, inventory.UnitStatusActive, repo.units[first.ID].Status)
	require.Empty(t, repo.sales)
	require.Empty(t, repo.items)
}

func TestCreateSaleNegotiatedTotal(t *testing.T) {
	repo := newMemoryRepo()
	activeUnit(repo, "350007", 60000, 80000)
	activeUnit(repo, "350008", 60000, 80000)
	svc := NewService(repo, nil, nil, nil, nil, nil)

	result, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		ClientName:       "Grossiste Touba",
		Items:            []SaleItemRequest{itemReq("350007", nil), itemReq("350008", nil)},
		AmountPaid:       150000,
		IsSpecialInvoice: true,
		NegotiatedTotal:  f64ptr(150000),
	}, "")
	require.NoError(t, err)
	require.InDelta(t, 150000, result.TotalAmount, 0.001)
	require.Equal(t, PaymentFull, result.PaymentStatus)
	for _, item := range repo.items {
		require.True(t, item.IsSpecialSaleItem)
	}
}

func TestCreateSaleReusesAndUpdatesClient(t *testing.T) {
	repo := newMemoryRepo()
	activeUnit(repo, "350012", 60000, 80000)
	activeUnit(repo, "350013", 60000, 80000)
	svc := NewService(repo, nil, nil, nil, nil, nil)

	first, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		ClientName:  "Fatou Sarr",
		ClientPhone: strptr("770000001"),
		Items:       []SaleItemRequest{itemReq("350012", nil)},
		AmountPaid:  80000,
	}, "")
	require.NoError(t, err)

	second, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		ClientName:  "Fatou Sarr",
		ClientPhone: strptr("770000002"),
		Items:       []SaleItemRequest{itemReq("350013", nil)},
		AmountPaid:  80000,
	}, "")
	require.NoError(t, err)

	require.Len(t, repo.clients, 1)
	require.Equal(t, repo.sales[first.SaleID].ClientID, repo.sales[second.SaleID].ClientID)
	for _, c := range repo.clients {
		require.Equal(t, "770000002", *c.phone)
	}
}

func TestCancelSoleItemCancelsSale(t *testing.T) {
	repo := newMemoryRepo()
	unit := activeUnit(repo, "350020", 60000, 80000)
	svc := NewService(repo, nil, nil, nil, nil, nil)

	created, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		ClientName: "Modou Gueye",
		Items:      []SaleItemRequest{itemReq("350020", nil)},
		AmountPaid: 0,
	}, "")
	require.NoError(t, err)

	var itemID int64
	for id := range repo.items {
		itemID = id
	}
	err = svc.CancelItem(context.Background(), CancelItemRequest{
		SaleID: created.SaleID,
		ItemID: itemID,
		IMEI:   "350020",
		Reason: "erreur de saisie",
	})
	require.NoError(t, err)

	require.Equal(t, ItemStatusCancelled, repo.items[itemID].Status)
	require.Equal(t, inventory.UnitStatusActive, repo.units[unit.ID].Status)
	require.Equal(t, PaymentCancelled, repo.sales[created.SaleID].PaymentStatus)
	require.True(t, repo.cancelled[created.SaleID])
}

func TestReturnItemRecomputesSaleAndWritesAudit(t *testing.T) {
	repo := newMemoryRepo()
	keep := activeUnit(repo, "350030", 60000, 90000)
	returned := activeUnit(repo, "350031", 40000, 60000)
	svc := NewService(repo, nil, nil, nil, nil, nil)

	created, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		ClientName: "Ibrahima Kane",
		Items:      []SaleItemRequest{itemReq("350030", nil), itemReq("350031", nil)},
		AmountPaid: 50000,
	}, "")
	require.NoError(t, err)
	require.InDelta(t, 150000, created.TotalAmount, 0.001)

	var itemID int64
	for id, item := range repo.items {
		if item.IMEI == "350031" {
			itemID = id
		}
	}
	err = svc.ReturnItem(context.Background(), ReturnItemRequest{
		SaleID:     created.SaleID,
		ItemID:     itemID,
		ClientName: "Ibrahima Kane",
		IMEI:       "350031",
		Reason:     "écran défectueux",
		UnitID:     &returned.ID,
	})
	require.NoError(t, err)

	sale := repo.sales[created.SaleID]
	require.InDelta(t, 90000, sale.TotalAmount, 0.001)
	require.Equal(t, PaymentPartial, sale.PaymentStatus)
	require.Equal(t, inventory.UnitStatusReturned, repo.units[returned.ID].Status)
	require.Equal(t, inventory.UnitStatusSold, repo.units[keep.ID].Status)

	require.Len(t, repo.returns, 1)
	require.Equal(t, "écran défectueux", repo.returns[0].Reason)
	require.NotZero(t, repo.returns[0].ClientID)

	mirror := repo.invoices[created.SaleID]
	require.InDelta(t, 90000, mirror.OriginalAmount, 0.001)
	require.InDelta(t, 40000, mirror.AmountDue, 0.001)
}

func TestReturnItemUnknownClientUsesSentinel(t *testing.T) {
	repo := newMemoryRepo()
	unit := activeUnit(repo, "350032", 40000, 60000)
	svc := NewService(repo, nil, nil, nil, nil, nil)

	created, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		ClientName: "Saliou Mbaye",
		Items:      []SaleItemRequest{itemReq("350032", nil)},
		AmountPaid: 60000,
	}, "")
	require.NoError(t, err)

	var itemID int64
	for id := range repo.items {
		itemID = id
	}
	err = svc.ReturnItem(context.Background(), ReturnItemRequest{
		SaleID:     created.SaleID,
		ItemID:     itemID,
		ClientName: "Client Inconnu",
		IMEI:       "350032",
		Reason:     "retour comptoir",
		UnitID:     &unit.ID,
	})
	require.NoError(t, err)
	require.Len(t, repo.returns, 1)
	require.Zero(t, repo.returns[0].ClientID)
}

func TestMarkRenduRestocksUnit(t *testing.T) {
	repo := newMemoryRepo()
	unit := activeUnit(repo, "350040", 60000, 80000)
	svc := NewService(repo, nil, nil, nil, nil, nil)

	created, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		ClientName: "Pape Diallo",
		Items:      []SaleItemRequest{itemReq("350040", nil)},
		AmountPaid: 0,
	}, "")
	require.NoError(t, err)

	var itemID int64
	for id := range repo.items {
		itemID = id
	}
	err = svc.MarkRendu(context.Background(), RenduRequest{
		SaleID: created.SaleID,
		ItemID: itemID,
		IMEI:   "350040",
		Reason: "client a rendu le téléphone",
		UnitID: &unit.ID,
	})
	require.NoError(t, err)

	require.Equal(t, ItemStatusRestocked, repo.items[itemID].Status)
	require.Equal(t, inventory.UnitStatusActive, repo.units[unit.ID].Status)
	require.Equal(t, 1, repo.units[unit.ID].Quantity)
	require.Equal(t, PaymentCancelled, repo.sales[created.SaleID].PaymentStatus)
}

func TestMarkRenduRequiresUnitID(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, nil)
	err := svc.MarkRendu(context.Background(), RenduRequest{
		SaleID: 1, ItemID: 1, IMEI: "350041", Reason: "rendu",
	})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestCorrectionOnTerminalItemConflicts(t *testing.T) {
	repo := newMemoryRepo()
	unit := activeUnit(repo, "350050", 60000, 80000)
	svc := NewService(repo, nil, nil, nil, nil, nil)

	created, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		ClientName: "Abdou Ndao",
		Items:      []SaleItemRequest{itemReq("350050", nil)},
		AmountPaid: 0,
	}, "")
	require.NoError(t, err)

	var itemID int64
	for id := range repo.items {
		itemID = id
	}
	cancel := CancelItemRequest{SaleID: created.SaleID, ItemID: itemID, IMEI: "350050", Reason: "doublon"}
	require.NoError(t, svc.CancelItem(context.Background(), cancel))

	err = svc.CancelItem(context.Background(), cancel)
	require.ErrorIs(t, err, shared.ErrConflict)
	err = svc.ReturnItem(context.Background(), ReturnItemRequest{
		SaleID: created.SaleID, ItemID: itemID, ClientName: "Abdou Ndao",
		IMEI: "350050", Reason: "retour", UnitID: &unit.ID,
	})
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestSpecialSaleItemSkipsInventoryReversal(t *testing.T) {
	repo := newMemoryRepo()
	unit := activeUnit(repo, "350060", 60000, 80000)
	svc := NewService(repo, nil, nil, nil, nil, nil)

	created, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		ClientName:       "Grossiste Pikine",
		Items:            []SaleItemRequest{itemReq("350060", nil)},
		AmountPaid:       80000,
		IsSpecialInvoice: true,
	}, "")
	require.NoError(t, err)

	var itemID int64
	for id := range repo.items {
		itemID = id
	}
	err = svc.CancelItem(context.Background(), CancelItemRequest{
		SaleID: created.SaleID, ItemID: itemID, UnitID: &unit.ID,
		IMEI: "350060", Reason: "annulation grossiste",
	})
	require.NoError(t, err)
	// special items never touch unit availability
	require.Equal(t, inventory.UnitStatusSold, repo.units[unit.ID].Status)
	require.Equal(t, ItemStatusCancelled, repo.items[itemID].Status)
}

func TestUpdatePayment(t *testing.T) {
	repo := newMemoryRepo()
	activeUnit(repo, "350070", 60000, 100000)
	svc := NewService(repo, nil, nil, nil, nil, nil)

	created, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		ClientName: "Ousmane Sow",
		Items:      []SaleItemRequest{itemReq("350070", nil)},
		AmountPaid: 30000,
	}, "")
	require.NoError(t, err)

	sale, err := svc.UpdatePayment(context.Background(), created.SaleID, UpdatePaymentRequest{AmountPaid: 100000})
	require.NoError(t, err)
	require.Equal(t, PaymentFull, sale.PaymentStatus)

	mirror := repo.invoices[created.SaleID]
	require.InDelta(t, 0, mirror.AmountDue, 0.001)
	require.InDelta(t, 100000, mirror.AmountPaid, 0.001)
}

func TestUpdatePaymentRejectsOverage(t *testing.T) {
	repo := newMemoryRepo()
	activeUnit(repo, "350071", 60000, 100000)
	svc := NewService(repo, nil, nil, nil, nil, nil)

	created, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		ClientName: "Ousmane Sow",
		Items:      []SaleItemRequest{itemReq("350071", nil)},
		AmountPaid: 30000,
	}, "")
	require.NoError(t, err)

	_, err = svc.UpdatePayment(context.Background(), created.SaleID, UpdatePaymentRequest{AmountPaid: 120000})
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = svc.UpdatePayment(context.Background(), created.SaleID, UpdatePaymentRequest{
		AmountPaid:     20000,
		NewTotalAmount: f64ptr(25000),
	})
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = svc.UpdatePayment(context.Background(), created.SaleID, UpdatePaymentRequest{AmountPaid: -5})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestUpdatePaymentNegotiatedTotal(t *testing.T) {
	repo := newMemoryRepo()
	activeUnit(repo, "350072", 60000, 100000)
	svc := NewService(repo, nil, nil, nil, nil, nil)

	created, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		ClientName: "Seydou Ba",
		Items:      []SaleItemRequest{itemReq("350072", nil)},
		AmountPaid: 0,
	}, "")
	require.NoError(t, err)

	sale, err := svc.UpdatePayment(context.Background(), created.SaleID, UpdatePaymentRequest{
		AmountPaid:     90000,
		NewTotalAmount: f64ptr(90000),
	})
	require.NoError(t, err)
	require.InDelta(t, 90000, sale.TotalAmount, 0.001)
	require.Equal(t, PaymentFull, sale.PaymentStatus)
}

func TestReturnSpecialSaleItemKeepsUnitSold(t *testing.T) {
	repo := newMemoryRepo()
	unit := activeUnit(repo, "350061", 60000, 80000)
	svc := NewService(repo, nil, nil, nil, nil, nil)

	created, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		ClientName:       "Grossiste Thiaroye",
		Items:            []SaleItemRequest{itemReq("350061", nil)},
		AmountPaid:       80000,
		IsSpecialInvoice: true,
	}, "")
	require.NoError(t, err)

	var itemID int64
	for id := range repo.items {
		itemID = id
	}
	// the caller omits the special flag; the recorded line governs
	err = svc.ReturnItem(context.Background(), ReturnItemRequest{
		SaleID:     created.SaleID,
		ItemID:     itemID,
		ClientName: "Grossiste Thiaroye",
		IMEI:       "350061",
		Reason:     "retour grossiste",
		UnitID:     &unit.ID,
	})
	require.NoError(t, err)

	require.Equal(t, inventory.UnitStatusSold, repo.units[unit.ID].Status)
	require.Equal(t, ItemStatusReturned, repo.items[itemID].Status)
	require.Len(t, repo.returns, 1)
	require.True(t, repo.returns[0].IsSpecialSaleItem)
}

func TestCreateSaleSameUnitTwiceRejected(t *testing.T) {
	repo := newMemoryRepo()
	activeUnit(repo, "350080", 60000, 80000)
	svc := NewService(repo, nil, nil, nil, nil, nil)

	first, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		ClientName: "Mamadou Ba",
		Items:      []SaleItemRequest{itemReq("350080", nil)},
		AmountPaid: 80000,
	}, "")
	require.NoError(t, err)

	_, err = svc.CreateSale(context.Background(), CreateSaleRequest{
		ClientName: "Awa Diop",
		Items:      []SaleItemRequest{itemReq("350080", nil)},
		AmountPaid: 80000,
	}, "")
	require.ErrorIs(t, err, shared.ErrInvalidState)

	// the committed sale is untouched by the rejected attempt
	require.Len(t, repo.sales, 1)
	require.Equal(t, PaymentFull, repo.sales[first.SaleID].PaymentStatus)
}

type memoryIdempotency struct {
	keys          map[string]bool
	deleteCtxLive bool
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: make(map[string]bool)}
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key string) error {
	m.deleteCtxLive = ctx.Err() == nil
	delete(m.keys, key)
	return nil
}

func TestFailedSaleReleasesIdempotencyKey(t *testing.T) {
	repo := newMemoryRepo()
	activeUnit(repo, "350081", 60000, 80000)
	idem := newMemoryIdempotency()
	svc := NewService(repo, nil, nil, idem, nil, nil)

	key := "0e8dd9a3-46c4-4b11-a9ce-19e4b6d1f001"
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.CreateSale(ctx, CreateSaleRequest{
		ClientName: "Oumar Sy",
		Items:      []SaleItemRequest{itemReq("350081", f64ptr(55000))},
		AmountPaid: 55000,
	}, key)
	require.ErrorIs(t, err, shared.ErrPricingViolation)

	// the key is released with a live context even though the request
	// context was already cancelled, so a retry is not refused
	require.Empty(t, idem.keys)
	require.True(t, idem.deleteCtxLive)

	retry, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		ClientName: "Oumar Sy",
		Items:      []SaleItemRequest{itemReq("350081", nil)},
		AmountPaid: 80000,
	}, key)
	require.NoError(t, err)
	require.Equal(t, PaymentFull, retry.PaymentStatus)
}
