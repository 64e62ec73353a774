package reconcile

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/imrishuroy/go-hotel-paymentflow/internal/booking"
	"github.com/imrishuroy/go-hotel-paymentflow/internal/payments"
)

const (
	testSecret  = "gateway-secret"
	testAccount = "110000601"
)

// --- fakes ---

// memStore is an in-memory Repository whose transitions are atomic under one mutex.
type memStore struct {
	mu      sync.Mutex
	records map[string]payments.PendingPayment
	getErr  error
}

func newMemStore(recs ...payments.PendingPayment) *memStore {
	s := &memStore{records: map[string]payments.PendingPayment{}}
	for _, r := range recs {
		s.records[r.BillNo] = r
	}
	return s
}

func (s *memStore) Create(ctx context.Context, p payments.PendingPayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[p.BillNo]; ok {
		return payments.ErrAlreadyExists
	}
	s.records[p.BillNo] = p
	return nil
}

func (s *memStore) Get(ctx context.Context, billNo string) (*payments.PendingPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	p, ok := s.records[billNo]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *memStore) status(billNo string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[billNo].Status
}

func (s *memStore) record(billNo string) payments.PendingPayment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[billNo]
}

func (s *memStore) MarkPrechecked(ctx context.Context, billNo string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.records[billNo]
	if !ok || p.Status != payments.StatusCreated {
		return payments.ErrStatusMismatch
	}
	p.Status = payments.StatusPrechecked
	s.records[billNo] = p
	return nil
}

func (s *memStore) Claim(ctx context.Context, billNo string, tx payments.GatewayTransaction) (*payments.PendingPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.records[billNo]
	if !ok || payments.IsTerminal(p.Status) || p.Status == payments.StatusBookingInProgress {
		return nil, payments.ErrStatusMismatch
	}
	p.Status = payments.StatusBookingInProgress
	p.Gateway = &tx
	s.records[billNo] = p
	return &p, nil
}

func (s *memStore) finish(billNo, status string, mutate func(*payments.PendingPayment)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.records[billNo]
	if !ok || p.Status != payments.StatusBookingInProgress {
		return payments.ErrStatusMismatch
	}
	p.Status = status
	mutate(&p)
	s.records[billNo] = p
	return nil
}

func (s *memStore) Complete(ctx context.Context, billNo string, result booking.Result) error {
	return s.finish(billNo, payments.StatusBookingComplete, func(p *payments.PendingPayment) { p.BookingResult = &result })
}

func (s *memStore) Fail(ctx context.Context, billNo string, message string) error {
	return s.finish(billNo, payments.StatusBookingFailed, func(p *payments.PendingPayment) { p.BookingError = message })
}

type countingExecutor struct {
	calls int32
	delay time.Duration
	err   error
}

func (e *countingExecutor) Book(ctx context.Context, payload booking.Payload) (*booking.Result, error) {
	atomic.AddInt32(&e.calls, 1)
	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	if e.err != nil {
		return nil, e.err
	}
	return &booking.Result{Reference: "REF-" + payload.HotelCode, Status: "CONFIRMED"}, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Confirmation
	err  error
}

func (n *recordingNotifier) NotifyBookingConfirmed(ctx context.Context, c Confirmation) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, c)
	return n.err
}

type recordingHistory struct {
	calls int
	err   error
}

func (h *recordingHistory) RecordBooking(ctx context.Context, userID, billNo string, payload booking.Payload, result booking.Result) error {
	h.calls++
	return h.err
}

type countingMetrics struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (m *countingMetrics) Count(ctx context.Context, metric, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = map[string]int{}
	}
	m.outcomes[outcome]++
}

// --- helpers ---

func pending(billNo string) payments.PendingPayment {
	return payments.PendingPayment{
		BillNo:     billNo,
		Status:     payments.StatusCreated,
		RecAccount: testAccount,
		Amount:     payments.Amount{Value: 52000, Formatted: "52000.00", Currency: "AMD"},
		Payload: booking.Payload{
			HotelCode: "H1",
			Currency:  "AMD",
			Holder:    booking.Guest{FirstName: "Ani", LastName: "Petrosyan", Email: "holder@example.com"},
			Rooms:     []booking.Room{{RateKey: "rk-1", Adults: 2}},
		},
		UserID:    "user-1",
		UserEmail: "user@example.com",
		Locale:    "hy",
	}
}

func confirmation(billNo string) Notification {
	n := Notification{
		BillNo:       billNo,
		RecAccount:   testAccount,
		Amount:       "52000.00",
		PayerAccount: "payer-7",
		TransID:      "trans-42",
		TransDate:    "19/10/2026 10:15:00",
	}
	n.Checksum = Checksum(n.RecAccount, n.Amount, testSecret, n.BillNo, n.PayerAccount, n.TransID, n.TransDate)
	return n
}

func newTestReconciler(store payments.Repository, exec BookingExecutor, opts ...Option) *Reconciler {
	return New(store, exec, Config{SecretKey: testSecret, AmountEpsilon: 0.01}, opts...)
}

// --- tests ---

func TestHandle_ConfirmationBooksAndNotifies(t *testing.T) {
	store := newMemStore(pending("bill-1"))
	exec := &countingExecutor{}
	notifier := &recordingNotifier{}
	history := &recordingHistory{}
	metrics := &countingMetrics{}
	r := newTestReconciler(store, exec, WithNotifier(notifier), WithHistory(history), WithMetrics(metrics))

	res := r.Handle(context.Background(), confirmation("bill-1"))
	if res.Status != http.StatusOK || res.Body != BodyOK || res.Outcome != OutcomeBookingComplete {
		t.Fatalf("unexpected result: %+v", res)
	}
	rec := store.record("bill-1")
	if rec.Status != payments.StatusBookingComplete || rec.BookingResult == nil || rec.BookingResult.Reference != "REF-H1" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.Gateway == nil || rec.Gateway.TransID != "trans-42" || rec.Gateway.PayerAccount != "payer-7" {
		t.Fatalf("gateway block not stored: %+v", rec.Gateway)
	}
	if history.calls != 1 {
		t.Fatalf("expected one history call, got %d", history.calls)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].Recipient != "user@example.com" || notifier.sent[0].Locale != "hy" {
		t.Fatalf("unexpected notifications: %+v", notifier.sent)
	}
	if metrics.outcomes[OutcomeBookingComplete] != 1 {
		t.Fatalf("metrics not recorded: %+v", metrics.outcomes)
	}
}

func TestHandle_IdempotentReplay(t *testing.T) {
	store := newMemStore(pending("bill-1"))
	exec := &countingExecutor{}
	r := newTestReconciler(store, exec)

	first := r.Handle(context.Background(), confirmation("bill-1"))
	second := r.Handle(context.Background(), confirmation("bill-1"))

	if first.Body != BodyOK || second.Body != BodyOK {
		t.Fatalf("expected two OK responses, got %q and %q", first.Body, second.Body)
	}
	if second.Outcome != OutcomeReplay {
		t.Fatalf("expected replay outcome, got %s", second.Outcome)
	}
	if got := atomic.LoadInt32(&exec.calls); got != 1 {
		t.Fatalf("expected exactly one booking call, got %d", got)
	}
}

func TestHandle_ConcurrentDeliveriesBookOnce(t *testing.T) {
	store := newMemStore(pending("bill-1"))
	exec := &countingExecutor{delay: 50 * time.Millisecond}
	r := newTestReconciler(store, exec)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]Result, callers)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i] = r.Handle(context.Background(), confirmation("bill-1"))
		}(i)
	}
	close(start)
	wg.Wait()

	if got := atomic.LoadInt32(&exec.calls); got != 1 {
		t.Fatalf("expected exactly one booking call, got %d", got)
	}
	for i, res := range results {
		if res.Status != http.StatusOK || res.Body != BodyOK {
			t.Fatalf("caller %d: unexpected result %+v", i, res)
		}
	}
	if store.status("bill-1") != payments.StatusBookingComplete {
		t.Fatalf("expected booking_complete, got %s", store.status("bill-1"))
	}
}

func TestHandle_SupplierFailureIsTerminal(t *testing.T) {
	store := newMemStore(pending("bill-1"))
	exec := &countingExecutor{err: errors.New("supplier: 504 gateway timeout")}
	notifier := &recordingNotifier{}
	r := newTestReconciler(store, exec, WithNotifier(notifier))

	res := r.Handle(context.Background(), confirmation("bill-1"))
	if res.Status != http.StatusOK || res.Outcome != OutcomeBookingFailed {
		t.Fatalf("unexpected result: %+v", res)
	}
	rec := store.record("bill-1")
	if rec.Status != payments.StatusBookingFailed || rec.BookingError != "supplier: 504 gateway timeout" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if len(notifier.sent) != 0 {
		t.Fatalf("failed booking must not send a confirmation")
	}

	again := r.Handle(context.Background(), confirmation("bill-1"))
	if again.Body != BodyOK || again.Outcome != OutcomeReplay {
		t.Fatalf("expected replay acknowledgement, got %+v", again)
	}
	if got := atomic.LoadInt32(&exec.calls); got != 1 {
		t.Fatalf("failed booking must not be retried, got %d calls", got)
	}
}

func TestHandle_SideEffectFailuresDoNotChangeOutcome(t *testing.T) {
	store := newMemStore(pending("bill-1"))
	r := newTestReconciler(store, &countingExecutor{},
		WithNotifier(&recordingNotifier{err: errors.New("smtp down")}),
		WithHistory(&recordingHistory{err: errors.New("history down")}))

	res := r.Handle(context.Background(), confirmation("bill-1"))
	if res.Body != BodyOK || store.status("bill-1") != payments.StatusBookingComplete {
		t.Fatalf("side effect failure leaked: %+v / %s", res, store.status("bill-1"))
	}
}

func TestHandle_NotifierFallsBackToHolderEmail(t *testing.T) {
	p := pending("bill-1")
	p.UserEmail = ""
	store := newMemStore(p)
	notifier := &recordingNotifier{}
	r := newTestReconciler(store, &countingExecutor{}, WithNotifier(notifier))

	r.Handle(context.Background(), confirmation("bill-1"))
	if len(notifier.sent) != 1 || notifier.sent[0].Recipient != "holder@example.com" {
		t.Fatalf("unexpected notifications: %+v", notifier.sent)
	}
}

func TestHandle_Precheck(t *testing.T) {
	store := newMemStore(pending("bill-1"))
	exec := &countingExecutor{}
	r := newTestReconciler(store, exec)

	n := Notification{BillNo: "bill-1", RecAccount: testAccount, Amount: "52000.00", Precheck: true}
	res := r.Handle(context.Background(), n)
	if res.Status != http.StatusOK || res.Body != BodyOK || res.Outcome != OutcomePrechecked {
		t.Fatalf("unexpected result: %+v", res)
	}
	if store.status("bill-1") != payments.StatusPrechecked {
		t.Fatalf("expected prechecked, got %s", store.status("bill-1"))
	}
	// a second ping is a no-op
	if res := r.Handle(context.Background(), n); res.Body != BodyOK {
		t.Fatalf("second precheck: %+v", res)
	}
	if exec.calls != 0 {
		t.Fatalf("precheck must not book")
	}

	// confirmation after precheck still books
	if res := r.Handle(context.Background(), confirmation("bill-1")); res.Outcome != OutcomeBookingComplete {
		t.Fatalf("confirmation after precheck: %+v", res)
	}
}

func TestHandle_Rejections(t *testing.T) {
	missingTx := confirmation("bill-1")
	missingTx.TransID = ""

	wrongAccount := confirmation("bill-1")
	wrongAccount.RecAccount = "999"

	offAmount := confirmation("bill-1")
	offAmount.Amount = "52000.02"
	offAmount.Checksum = Checksum(offAmount.RecAccount, offAmount.Amount, testSecret, offAmount.BillNo, offAmount.PayerAccount, offAmount.TransID, offAmount.TransDate)

	cases := []struct {
		name string
		n    Notification
		body string
	}{
		{"missing bill", Notification{RecAccount: testAccount, Amount: "1"}, BodyMissingFields},
		{"missing account", Notification{BillNo: "bill-1", Amount: "1"}, BodyMissingFields},
		{"missing amount", Notification{BillNo: "bill-1", RecAccount: testAccount}, BodyMissingFields},
		{"amount not a number", Notification{BillNo: "bill-1", RecAccount: testAccount, Amount: "abc"}, BodyInvalidAmount},
		{"amount not finite", Notification{BillNo: "bill-1", RecAccount: testAccount, Amount: "Inf"}, BodyInvalidAmount},
		{"unknown bill", confirmation("bill-404"), BodyInvalidRequest},
		{"account mismatch", wrongAccount, BodyInvalidRequest},
		{"amount beyond epsilon", offAmount, BodyInvalidRequest},
		{"missing transaction fields", missingTx, BodyMissingTransaction},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemStore(pending("bill-1"))
			exec := &countingExecutor{}
			r := newTestReconciler(store, exec)

			res := r.Handle(context.Background(), tc.n)
			if res.Status != http.StatusBadRequest || res.Body != tc.body {
				t.Fatalf("expected 400 %q, got %+v", tc.body, res)
			}
			if store.status("bill-1") != payments.StatusCreated {
				t.Fatalf("status changed to %s", store.status("bill-1"))
			}
			if exec.calls != 0 {
				t.Fatalf("rejected notification must not book")
			}
		})
	}
}

func TestHandle_AmountWithinEpsilonAccepted(t *testing.T) {
	store := newMemStore(pending("bill-1"))
	r := newTestReconciler(store, &countingExecutor{})

	n := confirmation("bill-1")
	n.Amount = "52000.005"
	n.Checksum = Checksum(n.RecAccount, n.Amount, testSecret, n.BillNo, n.PayerAccount, n.TransID, n.TransDate)
	if res := r.Handle(context.Background(), n); res.Outcome != OutcomeBookingComplete {
		t.Fatalf("expected booking within epsilon, got %+v", res)
	}
}

func TestHandle_CurrencyEpsilonOverride(t *testing.T) {
	store := newMemStore(pending("bill-1"))
	r := New(store, &countingExecutor{}, Config{
		SecretKey:       testSecret,
		AmountEpsilon:   0.01,
		CurrencyEpsilon: map[string]float64{"AMD": 1},
	})
	n := confirmation("bill-1")
	n.Amount = "52000.5"
	n.Checksum = Checksum(n.RecAccount, n.Amount, testSecret, n.BillNo, n.PayerAccount, n.TransID, n.TransDate)
	if res := r.Handle(context.Background(), n); res.Outcome != OutcomeBookingComplete {
		t.Fatalf("expected AMD tolerance of 1, got %+v", res)
	}
}

func TestHandle_ChecksumCoversEveryField(t *testing.T) {
	mutations := map[string]func(*Notification){
		"rec account": func(n *Notification) { n.RecAccount = n.RecAccount + "0" },
		"amount":      func(n *Notification) { n.Amount = "52000.001" },
		"bill no":     func(n *Notification) { n.BillNo = "bill-2" },
		"payer":       func(n *Notification) { n.PayerAccount = "payer-8" },
		"trans id":    func(n *Notification) { n.TransID = "trans-43" },
		"trans date":  func(n *Notification) { n.TransDate = "19/10/2026 10:15:01" },
		"checksum":    func(n *Notification) { n.Checksum = "00000000000000000000000000000000" },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			// bill-2 exists with the same settlement identity so only the checksum can reject it.
			p2 := pending("bill-2")
			store := newMemStore(pending("bill-1"), p2)
			exec := &countingExecutor{}
			r := newTestReconciler(store, exec)

			n := confirmation("bill-1")
			mutate(&n)
			if name == "rec account" {
				rec := store.records[n.BillNo]
				rec.RecAccount = n.RecAccount
				store.records[n.BillNo] = rec
			}
			res := r.Handle(context.Background(), n)
			if res.Status != http.StatusBadRequest || res.Body != BodyInvalidRequest || res.Outcome != OutcomeRejectedAuth {
				t.Fatalf("expected checksum rejection, got %+v", res)
			}
			if exec.calls != 0 {
				t.Fatalf("forged confirmation must not book")
			}
		})
	}
}

func TestHandle_ChecksumCaseInsensitive(t *testing.T) {
	store := newMemStore(pending("bill-1"))
	r := newTestReconciler(store, &countingExecutor{})
	n := confirmation("bill-1")
	n.Checksum = strings.ToLower(n.Checksum)
	if res := r.Handle(context.Background(), n); res.Outcome != OutcomeBookingComplete {
		t.Fatalf("expected lower-case checksum to pass, got %+v", res)
	}
}

func TestHandle_StoreErrorIsRetryable(t *testing.T) {
	store := newMemStore(pending("bill-1"))
	store.getErr = errors.New("dynamodb throttled")
	r := newTestReconciler(store, &countingExecutor{})
	res := r.Handle(context.Background(), confirmation("bill-1"))
	if res.Status != http.StatusInternalServerError || res.Outcome != OutcomeStoreError {
		t.Fatalf("expected 500, got %+v", res)
	}
}

func TestHandle_InProgressRecordNotReclaimed(t *testing.T) {
	p := pending("bill-1")
	p.Status = payments.StatusBookingInProgress
	store := newMemStore(p)
	exec := &countingExecutor{}
	r := newTestReconciler(store, exec)

	res := r.Handle(context.Background(), confirmation("bill-1"))
	if res.Body != BodyOK || res.Outcome != OutcomeClaimLost {
		t.Fatalf("expected claim lost acknowledgement, got %+v", res)
	}
	if exec.calls != 0 {
		t.Fatalf("in-progress record must not be booked again")
	}
}
