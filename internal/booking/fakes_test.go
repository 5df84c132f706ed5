package booking

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/attendly/ticketing/internal/directory"
	"github.com/attendly/ticketing/internal/model"
	"github.com/attendly/ticketing/internal/notify"
	"github.com/attendly/ticketing/internal/payment"
	"github.com/attendly/ticketing/internal/repository"
)

// fakeLedger reproduces the conditional-update semantics of the MySQL
// ledger in memory, including the atomicity under concurrent callers.
type fakeLedger struct {
	mu           sync.Mutex
	cats         map[string]*model.TicketCategory
	reserveCalls int
	reserveErr   map[string]error
}

func newFakeLedger(cats ...*model.TicketCategory) *fakeLedger {
	l := &fakeLedger{cats: make(map[string]*model.TicketCategory)}
	for _, c := range cats {
		cc := *c
		l.cats[c.ID] = &cc
	}
	return l
}

func (l *fakeLedger) GetByID(_ context.Context, id string) (*model.TicketCategory, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.cats[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cc := *c
	return &cc, nil
}

func (l *fakeLedger) TryReserve(_ context.Context, id string, qty int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reserveCalls++
	if err, ok := l.reserveErr[id]; ok {
		return err
	}
	c, ok := l.cats[id]
	if !ok {
		return repository.ErrNotFound
	}
	if !c.OnSale(time.Now().UTC()) {
		return repository.ErrSaleClosed
	}
	if c.Reserved+qty > c.Capacity {
		return repository.ErrInsufficientCapacity
	}
	c.Reserved += qty
	return nil
}

func (l *fakeLedger) Release(_ context.Context, id string, qty int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.cats[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.Reserved -= qty
	if c.Reserved < 0 {
		c.Reserved = 0
	}
	return nil
}

func (l *fakeLedger) reservedOf(id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cats[id].Reserved
}

// memStore implements Store and TicketStore over shared in-memory maps,
// mirroring the CAS behavior of the SQL repositories.
type memStore struct {
	mu       sync.Mutex
	bookings map[string]*model.Booking
	tickets  map[string]*model.Ticket
}

func newMemStore() *memStore {
	return &memStore{
		bookings: make(map[string]*model.Booking),
		tickets:  make(map[string]*model.Ticket),
	}
}

func copyBooking(b *model.Booking) *model.Booking {
	cb := *b
	cb.LineItems = append([]model.LineItem(nil), b.LineItems...)
	cb.TicketIDs = append([]string(nil), b.TicketIDs...)
	return &cb
}

func copyTicket(t *model.Ticket) *model.Ticket {
	ct := *t
	ct.GroupLineItems = append([]model.GroupLineItem(nil), t.GroupLineItems...)
	ct.Transfers = append([]model.TransferRecord(nil), t.Transfers...)
	return &ct
}

func (s *memStore) CreateWithTickets(_ context.Context, b *model.Booking, tickets []*model.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[b.ID] = copyBooking(b)
	for _, t := range tickets {
		s.tickets[t.ID] = copyTicket(t)
	}
	return nil
}

func (s *memStore) GetByID(_ context.Context, id string) (*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := copyBooking(b)
	out.TicketIDs = nil
	for _, t := range s.tickets {
		if t.BookingID == id {
			out.TicketIDs = append(out.TicketIDs, t.ID)
		}
	}
	return out, nil
}

func (s *memStore) GetByTransactionID(_ context.Context, txnID string) (*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bookings {
		if b.Payment.TransactionID == txnID {
			return copyBooking(b), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *memStore) ListByBuyer(_ context.Context, buyerID string) ([]*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Booking
	for _, b := range s.bookings {
		if b.BuyerID == buyerID {
			out = append(out, copyBooking(b))
		}
	}
	return out, nil
}

func (s *memStore) SetPaymentRef(_ context.Context, id string, ref model.PaymentRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return repository.ErrNotFound
	}
	if b.Status != model.BookingPending {
		return repository.ErrConflict
	}
	b.Payment = ref
	b.Status = model.BookingAwaitingPayment
	return nil
}

func (s *memStore) ConfirmPayment(_ context.Context, id string, paymentStatus string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return false, nil
	}
	if b.Status != model.BookingPending && b.Status != model.BookingAwaitingPayment {
		return false, nil
	}
	b.Status = model.BookingConfirmed
	b.Payment.Status = paymentStatus
	return true, nil
}

func (s *memStore) SetPaymentStatus(_ context.Context, id, paymentStatus string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.bookings[id]; ok {
		b.Payment.Status = paymentStatus
	}
	return nil
}

func (s *memStore) MarkCancelled(_ context.Context, id, fromStatus, reason string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return false, nil
	}
	if b.Status != fromStatus {
		return false, nil
	}
	b.Status = model.BookingCancelled
	b.CancelReason = reason
	t := at
	b.CancelledAt = &t
	return true, nil
}

func (s *memStore) MarkExpired(_ context.Context, id, reason string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return false, nil
	}
	if b.Status != model.BookingPending && b.Status != model.BookingAwaitingPayment {
		return false, nil
	}
	b.Status = model.BookingCancelled
	b.CancelReason = reason
	t := at
	b.CancelledAt = &t
	return true, nil
}

func (s *memStore) MarkRefunded(_ context.Context, id string, amount decimal.Decimal, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return repository.ErrNotFound
	}
	if b.Status != model.BookingCancelled {
		return repository.ErrConflict
	}
	b.Status = model.BookingRefunded
	b.RefundAmount = &amount
	t := at
	b.RefundedAt = &t
	return nil
}

func (s *memStore) CountByBuyerAndCategory(_ context.Context, buyerID, categoryID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.bookings {
		if b.BuyerID != buyerID || b.Status == model.BookingCancelled || b.Status == model.BookingRefunded {
			continue
		}
		for _, li := range b.LineItems {
			if li.CategoryID == categoryID {
				n += li.Quantity
			}
		}
	}
	return n, nil
}

func (s *memStore) ListAwaitingPaymentBefore(_ context.Context, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, b := range s.bookings {
		if (b.Status == model.BookingPending || b.Status == model.BookingAwaitingPayment) && b.CreatedAt.Before(cutoff) {
			ids = append(ids, b.ID)
		}
	}
	return ids, nil
}

func (s *memStore) GetTicketByID(_ context.Context, id string) (*model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyTicket(t), nil
}

// ticketView adapts memStore to the TicketStore interface (GetByID on
// tickets collides with the booking GetByID, so tickets get a wrapper).
type ticketView struct{ s *memStore }

func (v ticketView) GetByID(ctx context.Context, id string) (*model.Ticket, error) {
	return v.s.GetTicketByID(ctx, id)
}

func (v ticketView) ListByBooking(_ context.Context, bookingID string) ([]*model.Ticket, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []*model.Ticket
	for _, t := range v.s.tickets {
		if t.BookingID == bookingID {
			out = append(out, copyTicket(t))
		}
	}
	return out, nil
}

func (v ticketView) ActivateByBooking(_ context.Context, bookingID string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, t := range v.s.tickets {
		if t.BookingID == bookingID && t.Status == model.TicketPending {
			t.Status = model.TicketActive
		}
	}
	return nil
}

func (v ticketView) VoidByBooking(_ context.Context, bookingID, status string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, t := range v.s.tickets {
		if t.BookingID == bookingID && (t.Status == model.TicketPending || t.Status == model.TicketActive) {
			t.Status = status
		}
	}
	return nil
}

func (v ticketView) Transfer(_ context.Context, ticketID, fromUserID, toUserID, newSecret, newEncoded string, at time.Time) (bool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	t, ok := v.s.tickets[ticketID]
	if !ok {
		return false, nil
	}
	if t.OwnerID != fromUserID || t.Status != model.TicketActive {
		return false, nil
	}
	t.OwnerID = toUserID
	t.CredentialSecret = newSecret
	t.EncodedCredential = newEncoded
	t.Transfers = append(t.Transfers, model.TransferRecord{FromUserID: fromUserID, ToUserID: toUserID, At: at})
	return true, nil
}

// fakeGateway scripts gateway responses and records calls.
type fakeGateway struct {
	mu sync.Mutex

	initErr    error
	initStatus string
	initCalls  int

	queryResults map[string]*payment.Result
	queryErr     error

	refundErr   error
	refundCalls []decimal.Decimal
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		initStatus:   payment.StatusPending,
		queryResults: make(map[string]*payment.Result),
	}
}

func (g *fakeGateway) InitiateCharge(_ context.Context, ch payment.Charge) (*payment.ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initCalls++
	if g.initErr != nil {
		return nil, g.initErr
	}
	txn := "txn-" + ch.BookingID
	return &payment.ChargeResult{
		TransactionID: txn,
		Status:        g.initStatus,
		PaymentURL:    "https://pay.example/" + txn,
	}, nil
}

func (g *fakeGateway) QueryStatus(_ context.Context, transactionID string) (*payment.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.queryErr != nil {
		return nil, g.queryErr
	}
	if res, ok := g.queryResults[transactionID]; ok {
		r := *res
		return &r, nil
	}
	return &payment.Result{TransactionID: transactionID, Status: payment.StatusPending}, nil
}

func (g *fakeGateway) Refund(_ context.Context, transactionID string, amount decimal.Decimal) (*payment.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	g.refundCalls = append(g.refundCalls, amount)
	return &payment.Result{TransactionID: transactionID, Status: payment.StatusRefunded, Amount: amount}, nil
}

// fakeDirectory serves a fixed set of events and buyers.
type fakeDirectory struct {
	events map[string]*directory.EventInfo
	buyers map[string]*directory.Buyer
}

func (d *fakeDirectory) GetEvent(_ context.Context, id string) (*directory.EventInfo, error) {
	ev, ok := d.events[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	e := *ev
	return &e, nil
}

func (d *fakeDirectory) GetBuyer(_ context.Context, id string) (*directory.Buyer, error) {
	b, ok := d.buyers[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	bb := *b
	return &bb, nil
}

// fakeNotifier records published events.
type fakeNotifier struct {
	mu        sync.Mutex
	confirmed []notify.BookingConfirmedEvent
	cancelled []notify.BookingCancelledEvent
}

func (n *fakeNotifier) BookingConfirmed(_ context.Context, ev notify.BookingConfirmedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmed = append(n.confirmed, ev)
	return nil
}

func (n *fakeNotifier) BookingCancelled(_ context.Context, ev notify.BookingCancelledEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled = append(n.cancelled, ev)
	return nil
}
