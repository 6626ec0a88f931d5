package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"go.uber.org/zap"

	"github.com/taskhive/task-marketplace/settlement-service/internal/fees"
	"github.com/taskhive/task-marketplace/settlement-service/internal/gateway"
	"github.com/taskhive/task-marketplace/settlement-service/internal/models"
	"github.com/taskhive/task-marketplace/settlement-service/internal/telemetry"
)

func init() {
	// The services log through the package-level logger.
	telemetry.Logger = zap.NewNop()
}

// --- in-memory stores mirroring the postgres guard semantics ---

type fakePayments struct {
	mu      sync.Mutex
	items   map[uuid.UUID]*models.Payment
	refunds map[uuid.UUID][]models.Refund
}

func newFakePayments() *fakePayments {
	return &fakePayments{
		items:   make(map[uuid.UUID]*models.Payment),
		refunds: make(map[uuid.UUID][]models.Refund),
	}
}

func (f *fakePayments) Create(ctx context.Context, p *models.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.items {
		if existing.TaskID == p.TaskID && existing.Status.Active() {
			return models.ErrConflict
		}
	}
	cp := *p
	f.items[p.ID] = &cp
	return nil
}

func (f *fakePayments) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.items[id]
	if !ok {
		return nil, fmt.Errorf("payment %s: %w", id, models.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (f *fakePayments) Settle(ctx context.Context, id uuid.UUID, gatewayTxID string, completedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.items[id]
	if !ok || p.Status != models.StatusPending {
		return false, nil
	}
	p.Status = models.StatusCompleted
	p.GatewayTransactionID = gatewayTxID
	p.CompletedAt = &completedAt
	return true, nil
}

func (f *fakePayments) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.items[id]
	if !ok || p.Status != models.StatusPending {
		return false, nil
	}
	p.Status = models.StatusFailed
	p.FailureReason = reason
	return true, nil
}

func (f *fakePayments) ApplyRefund(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (*models.Payment, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.items[id]
	if !ok || !p.Status.Refundable() || amount.GreaterThan(p.Amount.Sub(p.RefundedAmount)) {
		return nil, false, nil
	}
	p.RefundedAmount = p.RefundedAmount.Add(amount)
	if p.RefundedAmount.GreaterThanOrEqual(p.Amount) {
		p.Status = models.StatusRefunded
	} else {
		p.Status = models.StatusPartiallyRefunded
	}
	cp := *p
	return &cp, true, nil
}

func (f *fakePayments) CreateRefund(ctx context.Context, r *models.Refund) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refunds[r.PaymentID] = append(f.refunds[r.PaymentID], *r)
	return nil
}

func (f *fakePayments) ListRefunds(ctx context.Context, paymentID uuid.UUID) ([]models.Refund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Refund(nil), f.refunds[paymentID]...), nil
}

func (f *fakePayments) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Payment
	for _, p := range f.items {
		if p.Status == models.StatusPending && p.CreatedAt.Before(cutoff) {
			out = append(out, *p)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakePayments) Aggregate(ctx context.Context, from, to *time.Time) (*models.Statistics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := &models.Statistics{
		TotalVolume: decimal.Zero,
		TotalFees:   decimal.Zero,
		ByStatus:    make(map[models.PaymentStatus]models.StatusBreakdown),
	}
	for _, status := range models.AllPaymentStatuses {
		stats.ByStatus[status] = models.StatusBreakdown{Volume: decimal.Zero, Fees: decimal.Zero}
	}
	for _, p := range f.items {
		if from != nil && p.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && p.CreatedAt.After(*to) {
			continue
		}
		b := stats.ByStatus[p.Status]
		b.Count++
		b.Volume = b.Volume.Add(p.Amount)
		b.Fees = b.Fees.Add(p.PlatformFee).Add(p.ProcessingFee)
		stats.ByStatus[p.Status] = b
		stats.TotalVolume = stats.TotalVolume.Add(p.Amount)
		stats.TotalFees = stats.TotalFees.Add(p.PlatformFee).Add(p.ProcessingFee)
	}
	return stats, nil
}

type fakeTasks struct {
	mu    sync.Mutex
	items map[uuid.UUID]*models.Task
}

func newFakeTasks(tasks ...*models.Task) *fakeTasks {
	f := &fakeTasks{items: make(map[uuid.UUID]*models.Task)}
	for _, t := range tasks {
		cp := *t
		f.items[t.ID] = &cp
	}
	return f
}

func (f *fakeTasks) FindByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.items[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, models.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTasks) SetPaymentStatus(ctx context.Context, id uuid.UUID, status models.TaskPaymentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.items[id]
	if !ok {
		return fmt.Errorf("task %s: %w", id, models.ErrNotFound)
	}
	t.PaymentStatus = status
	return nil
}

type fakeBalances struct {
	mu       sync.Mutex
	balances map[uuid.UUID]models.BalanceDelta
}

func newFakeBalances() *fakeBalances {
	return &fakeBalances{balances: make(map[uuid.UUID]models.BalanceDelta)}
}

func (f *fakeBalances) Increment(ctx context.Context, userID uuid.UUID, delta models.BalanceDelta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.balances[userID]
	b.Balance = b.Balance.Add(delta.Balance)
	b.PendingBalance = b.PendingBalance.Add(delta.PendingBalance)
	f.balances[userID] = b
	return nil
}

func (f *fakeBalances) Decrement(ctx context.Context, userID uuid.UUID, delta models.BalanceDelta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.balances[userID]
	b.Balance = b.Balance.Sub(delta.Balance)
	b.PendingBalance = b.PendingBalance.Sub(delta.PendingBalance)
	f.balances[userID] = b
	return nil
}

func (f *fakeBalances) balanceOf(userID uuid.UUID) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[userID].Balance
}

type fakeRevenue struct {
	mu      sync.Mutex
	entries []models.RevenueEntry
}

func (f *fakeRevenue) Append(ctx context.Context, entry *models.RevenueEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.EntryKey == entry.EntryKey {
			return nil
		}
	}
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeRevenue) total() decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	sum := decimal.Zero
	for _, e := range f.entries {
		sum = sum.Add(e.Amount)
	}
	return sum
}

type fakeTx struct{}

func (fakeTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeLocker struct {
	held map[string]bool
	// onAcquire, when set, runs once inside the next successful Acquire,
	// after the held check and before the caller proceeds. Lets a test
	// squeeze a competing write into the window between validation and
	// lock acquisition.
	onAcquire func()
}

func (f *fakeLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if f.held[key] {
		return nil, fmt.Errorf("%w: %s", ErrLocked, key)
	}
	if f.onAcquire != nil {
		hook := f.onAcquire
		f.onAcquire = nil
		hook()
	}
	return func() {}, nil
}

type recordedEvent struct {
	paymentID uuid.UUID
	from, to  models.PaymentStatus
}

type fakePublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakePublisher) StateChanged(ctx context.Context, paymentID uuid.UUID, from, to models.PaymentStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{paymentID: paymentID, from: from, to: to})
}

func (f *fakePublisher) Notify(ctx context.Context, event string, payload interface{}) {}

// stubGateway returns canned results and records the idempotency keys it saw.
type stubGateway struct {
	mu         sync.Mutex
	chargeRes  *gateway.ChargeResult
	chargeErr  error
	refundRes  *gateway.RefundResult
	refundErr  error
	chargeKeys []string
	refundKeys []string
	// onCharge, when set, runs once while the charge call is in flight,
	// standing in for a concurrent writer racing the caller.
	onCharge func()
}

func (g *stubGateway) Charge(ctx context.Context, req gateway.ChargeRequest) (*gateway.ChargeResult, error) {
	g.mu.Lock()
	g.chargeKeys = append(g.chargeKeys, req.IdempotencyKey)
	hook := g.onCharge
	g.onCharge = nil
	g.mu.Unlock()
	if hook != nil {
		hook()
	}
	if g.chargeErr != nil {
		return nil, g.chargeErr
	}
	return g.chargeRes, nil
}

func (g *stubGateway) Refund(ctx context.Context, req gateway.RefundRequest) (*gateway.RefundResult, error) {
	g.mu.Lock()
	g.refundKeys = append(g.refundKeys, req.IdempotencyKey)
	g.mu.Unlock()
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	return g.refundRes, nil
}

// env bundles one freshly wired processor pair over the fakes.
type env struct {
	payments *fakePayments
	tasks    *fakeTasks
	balances *fakeBalances
	revenue  *fakeRevenue
	gw       *stubGateway
	events   *fakePublisher
	calc     *fees.Calculator
	ledger   *Ledger
	locker   *fakeLocker

	processor *PaymentProcessor
	refunds   *RefundProcessor

	owner    uuid.UUID
	assignee uuid.UUID
	task     *models.Task
}

func newEnv() *env {
	owner := uuid.New()
	assignee := uuid.New()
	task := &models.Task{
		ID:            uuid.New(),
		OwnerID:       owner,
		AssigneeID:    &assignee,
		PaymentStatus: models.TaskUnpaid,
	}

	e := &env{
		payments: newFakePayments(),
		tasks:    newFakeTasks(task),
		balances: newFakeBalances(),
		revenue:  &fakeRevenue{},
		gw: &stubGateway{
			chargeRes: &gateway.ChargeResult{Approved: true, TransactionID: "txn-1"},
			refundRes: &gateway.RefundResult{Approved: true, RefundID: "re-1"},
		},
		events:   &fakePublisher{},
		calc:     fees.NewCalculator(fees.DefaultSchedule()),
		owner:    owner,
		assignee: assignee,
		task:     task,
	}

	e.ledger = NewLedger(e.balances, e.revenue)
	e.locker = &fakeLocker{}
	e.processor = NewPaymentProcessor(e.payments, e.tasks, e.ledger, e.gw, fakeTx{}, e.locker, e.calc, e.events, time.Second)
	e.refunds = NewRefundProcessor(e.payments, e.tasks, e.ledger, e.gw, fakeTx{}, e.locker, e.calc, e.events, time.Second)
	return e
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}
