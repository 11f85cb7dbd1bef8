// Package memory is an in-process document store implementing the posting
// unit of work. Transactions are simulated with a snapshot taken under a
// global lock and restored on error. It backs the memory driver and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/factorybooks/factorybooks/internal/accounting"
	"github.com/factorybooks/factorybooks/internal/assets"
	"github.com/factorybooks/factorybooks/internal/cheques"
	"github.com/factorybooks/factorybooks/internal/inventory"
	"github.com/factorybooks/factorybooks/internal/ledger"
	"github.com/factorybooks/factorybooks/internal/posting"
	"github.com/factorybooks/factorybooks/internal/shared"
)

// DefaultMaxDocuments matches the write limit of common document stores.
const DefaultMaxDocuments = 500

// txAttempts bounds how often WithinTx replays fn after ErrSerialization.
const txAttempts = 3

var (
	// ErrTooManyWrites is returned when a transaction exceeds its document limit.
	ErrTooManyWrites = fmt.Errorf("%w: memory: transaction exceeds document limit", shared.ErrStorage)
	// ErrSerialization stands in for a serialization failure. WithinTx rolls
	// back and replays fn when it sees one, like the postgres store does.
	ErrSerialization = fmt.Errorf("%w: memory: concurrent update", shared.ErrConflict)
)

type fault struct {
	err   error
	times int
}

type collections struct {
	entries     map[string]ledger.LedgerEntry
	payments    map[string]ledger.Payment
	cheques     map[string]cheques.Cheque
	items       map[string]inventory.Item
	movements   map[string]inventory.Movement
	assets      map[string]assets.FixedAsset
	journals    map[string]accounting.JournalEntry
	intents     map[string]posting.JournalIntent
	parties     map[string]ledger.Party
	deadLetters []posting.DeadLetter
}

func newCollections() collections {
	return collections{
		entries:   make(map[string]ledger.LedgerEntry),
		payments:  make(map[string]ledger.Payment),
		cheques:   make(map[string]cheques.Cheque),
		items:     make(map[string]inventory.Item),
		movements: make(map[string]inventory.Movement),
		assets:    make(map[string]assets.FixedAsset),
		journals:  make(map[string]accounting.JournalEntry),
		intents:   make(map[string]posting.JournalIntent),
		parties:   make(map[string]ledger.Party),
	}
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (c collections) clone() collections {
	return collections{
		entries:     cloneMap(c.entries),
		payments:    cloneMap(c.payments),
		cheques:     cloneMap(c.cheques),
		items:       cloneMap(c.items),
		movements:   cloneMap(c.movements),
		assets:      cloneMap(c.assets),
		journals:    cloneMap(c.journals),
		intents:     cloneMap(c.intents),
		parties:     cloneMap(c.parties),
		deadLetters: append([]posting.DeadLetter(nil), c.deadLetters...),
	}
}

// Store keeps every collection in memory.
type Store struct {
	mu      sync.RWMutex
	data    collections
	maxDocs int
	faults  map[string]*fault
	commits int
}

// New returns an empty store. maxDocs <= 0 selects DefaultMaxDocuments.
func New(maxDocs int) *Store {
	if maxDocs <= 0 {
		maxDocs = DefaultMaxDocuments
	}
	return &Store{data: newCollections(), maxDocs: maxDocs, faults: make(map[string]*fault)}
}

// MaxDocumentsPerTx implements posting.UnitOfWork.
func (s *Store) MaxDocumentsPerTx() int {
	return s.maxDocs
}

// InjectFault makes the next times calls of op return err, where op is a
// Tx method name such as "InsertJournal". Used by tests.
func (s *Store) InjectFault(op string, err error, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = &fault{err: err, times: times}
}

// Commits returns the number of committed transactions.
func (s *Store) Commits() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commits
}

// WithinTx runs fn against a transactional view. On error every write made
// through the view is rolled back; ErrSerialization replays fn on a fresh view.
func (s *Store) WithinTx(ctx context.Context, fn func(context.Context, posting.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	for attempt := 1; attempt <= txAttempts; attempt++ {
		snapshot := s.data.clone()
		if err = fn(ctx, &txView{store: s}); err == nil {
			s.commits++
			return nil
		}
		s.data = snapshot
		if !errors.Is(err, ErrSerialization) {
			return err
		}
	}
	return err
}

type txView struct {
	store  *Store
	writes int
}

// check consumes an injected fault for op, if any.
func (t *txView) check(op string) error {
	f, ok := t.store.faults[op]
	if !ok || f.times <= 0 {
		return nil
	}
	f.times--
	if f.times == 0 {
		delete(t.store.faults, op)
	}
	return f.err
}

// write counts one document against the transaction limit.
func (t *txView) write(op string) error {
	if err := t.check(op); err != nil {
		return err
	}
	t.writes++
	if t.writes > t.store.maxDocs {
		return ErrTooManyWrites
	}
	return nil
}

func (t *txView) InsertEntry(_ context.Context, e ledger.LedgerEntry) error {
	if err := t.write("InsertEntry"); err != nil {
		return err
	}
	if _, exists := t.store.data.entries[e.TransactionID]; exists {
		return fmt.Errorf("%w: %s", posting.ErrDuplicateTransaction, e.TransactionID)
	}
	t.store.data.entries[e.TransactionID] = e
	return nil
}

func (t *txView) GetEntry(_ context.Context, transactionID string) (ledger.LedgerEntry, error) {
	if err := t.check("GetEntry"); err != nil {
		return ledger.LedgerEntry{}, err
	}
	e, ok := t.store.data.entries[transactionID]
	if !ok {
		return ledger.LedgerEntry{}, fmt.Errorf("%w: %s", ledger.ErrEntryNotFound, transactionID)
	}
	return e, nil
}

func (t *txView) UpdateEntry(_ context.Context, e ledger.LedgerEntry) error {
	if err := t.write("UpdateEntry"); err != nil {
		return err
	}
	if _, ok := t.store.data.entries[e.TransactionID]; !ok {
		return fmt.Errorf("%w: %s", ledger.ErrEntryNotFound, e.TransactionID)
	}
	t.store.data.entries[e.TransactionID] = e
	return nil
}

func (t *txView) SettleEntry(ctx context.Context, transactionID string, amount decimal.Decimal) (ledger.LedgerEntry, error) {
	if err := t.write("SettleEntry"); err != nil {
		return ledger.LedgerEntry{}, err
	}
	e, ok := t.store.data.entries[transactionID]
	if !ok {
		return ledger.LedgerEntry{}, fmt.Errorf("%w: %s", ledger.ErrEntryNotFound, transactionID)
	}
	updated, err := ledger.Settle(e, amount)
	if err != nil {
		return ledger.LedgerEntry{}, err
	}
	t.store.data.entries[transactionID] = updated
	return updated, nil
}

func (t *txView) DeleteEntry(_ context.Context, transactionID string) error {
	if err := t.write("DeleteEntry"); err != nil {
		return err
	}
	delete(t.store.data.entries, transactionID)
	return nil
}

func (t *txView) ListEntriesBySource(_ context.Context, sourceTransactionID string) ([]ledger.LedgerEntry, error) {
	var out []ledger.LedgerEntry
	for _, e := range t.store.data.entries {
		if e.SourceTransactionID == sourceTransactionID {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out, nil
}

func (t *txView) InsertPayment(_ context.Context, p ledger.Payment) error {
	if err := t.write("InsertPayment"); err != nil {
		return err
	}
	t.store.data.payments[p.ID] = p
	return nil
}

func (t *txView) GetPayment(_ context.Context, id string) (ledger.Payment, error) {
	p, ok := t.store.data.payments[id]
	if !ok {
		return ledger.Payment{}, fmt.Errorf("%w: %s", ledger.ErrPaymentNotFound, id)
	}
	return p, nil
}

func (t *txView) ListPaymentsByTransaction(_ context.Context, transactionID string) ([]ledger.Payment, error) {
	var out []ledger.Payment
	for _, p := range t.store.data.payments {
		if p.LinkedTransactionID == transactionID {
			out = append(out, p)
		}
	}
	sortPayments(out)
	return out, nil
}

func (t *txView) DeletePayment(_ context.Context, id string) error {
	if err := t.write("DeletePayment"); err != nil {
		return err
	}
	delete(t.store.data.payments, id)
	return nil
}

func (t *txView) InsertCheque(_ context.Context, ch cheques.Cheque) error {
	if err := t.write("InsertCheque"); err != nil {
		return err
	}
	t.store.data.cheques[ch.ID] = ch
	return nil
}

func (t *txView) GetCheque(_ context.Context, id string) (cheques.Cheque, error) {
	ch, ok := t.store.data.cheques[id]
	if !ok {
		return cheques.Cheque{}, fmt.Errorf("%w: %s", cheques.ErrChequeNotFound, id)
	}
	return ch, nil
}

func (t *txView) UpdateCheque(_ context.Context, ch cheques.Cheque) error {
	if err := t.write("UpdateCheque"); err != nil {
		return err
	}
	if _, ok := t.store.data.cheques[ch.ID]; !ok {
		return fmt.Errorf("%w: %s", cheques.ErrChequeNotFound, ch.ID)
	}
	t.store.data.cheques[ch.ID] = ch
	return nil
}

func (t *txView) ListChequesByTransaction(_ context.Context, transactionID string) ([]cheques.Cheque, error) {
	var out []cheques.Cheque
	for _, ch := range t.store.data.cheques {
		if ch.LinkedTransactionID == transactionID {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *txView) DeleteCheque(_ context.Context, id string) error {
	if err := t.write("DeleteCheque"); err != nil {
		return err
	}
	delete(t.store.data.cheques, id)
	return nil
}

func (t *txView) GetItemForUpdate(_ context.Context, id string) (inventory.Item, error) {
	item, ok := t.store.data.items[id]
	if !ok {
		return inventory.Item{}, fmt.Errorf("%w: %s", inventory.ErrItemNotFound, id)
	}
	return item, nil
}

func (t *txView) PutItem(_ context.Context, item inventory.Item) error {
	if err := t.write("PutItem"); err != nil {
		return err
	}
	t.store.data.items[item.ID] = item
	return nil
}

func (t *txView) InsertMovement(_ context.Context, mv inventory.Movement) error {
	if err := t.write("InsertMovement"); err != nil {
		return err
	}
	t.store.data.movements[mv.ID] = mv
	return nil
}

func (t *txView) ListMovementsByTransaction(_ context.Context, transactionID string) ([]inventory.Movement, error) {
	var out []inventory.Movement
	for _, mv := range t.store.data.movements {
		if mv.TransactionID == transactionID {
			out = append(out, mv)
		}
	}
	// Undo in reverse order of application.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (t *txView) DeleteMovement(_ context.Context, id string) error {
	if err := t.write("DeleteMovement"); err != nil {
		return err
	}
	delete(t.store.data.movements, id)
	return nil
}

func (t *txView) InsertAsset(_ context.Context, a assets.FixedAsset) error {
	if err := t.write("InsertAsset"); err != nil {
		return err
	}
	t.store.data.assets[a.ID] = a
	return nil
}

func (t *txView) GetAsset(_ context.Context, id string) (assets.FixedAsset, error) {
	a, ok := t.store.data.assets[id]
	if !ok {
		return assets.FixedAsset{}, fmt.Errorf("%w: %s", assets.ErrAssetNotFound, id)
	}
	return a, nil
}

func (t *txView) UpdateAsset(_ context.Context, a assets.FixedAsset) error {
	if err := t.write("UpdateAsset"); err != nil {
		return err
	}
	if _, ok := t.store.data.assets[a.ID]; !ok {
		return fmt.Errorf("%w: %s", assets.ErrAssetNotFound, a.ID)
	}
	t.store.data.assets[a.ID] = a
	return nil
}

func (t *txView) ListAssetsByTransaction(_ context.Context, transactionID string) ([]assets.FixedAsset, error) {
	var out []assets.FixedAsset
	for _, a := range t.store.data.assets {
		if a.TransactionID == transactionID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *txView) DeleteAsset(_ context.Context, id string) error {
	if err := t.write("DeleteAsset"); err != nil {
		return err
	}
	delete(t.store.data.assets, id)
	return nil
}

func (t *txView) InsertJournal(_ context.Context, j accounting.JournalEntry) error {
	if err := t.write("InsertJournal"); err != nil {
		return err
	}
	if _, exists := t.store.data.journals[j.ID]; exists {
		return fmt.Errorf("%w: %s", accounting.ErrSourceAlreadyLinked, j.ID)
	}
	t.store.data.journals[j.ID] = j
	return nil
}

func (t *txView) GetJournal(_ context.Context, id string) (accounting.JournalEntry, error) {
	j, ok := t.store.data.journals[id]
	if !ok {
		return accounting.JournalEntry{}, fmt.Errorf("%w: %s", accounting.ErrJournalNotFound, id)
	}
	return j, nil
}

func (t *txView) UpdateJournal(_ context.Context, j accounting.JournalEntry) error {
	if err := t.write("UpdateJournal"); err != nil {
		return err
	}
	if _, ok := t.store.data.journals[j.ID]; !ok {
		return fmt.Errorf("%w: %s", accounting.ErrJournalNotFound, j.ID)
	}
	t.store.data.journals[j.ID] = j
	return nil
}

func (t *txView) ListJournalsByTransaction(_ context.Context, transactionID string) ([]accounting.JournalEntry, error) {
	var out []accounting.JournalEntry
	for _, j := range t.store.data.journals {
		if j.LinkedTransactionID == transactionID {
			out = append(out, j)
		}
	}
	sortJournals(out)
	return out, nil
}

func (t *txView) InsertIntent(_ context.Context, in posting.JournalIntent) error {
	if err := t.write("InsertIntent"); err != nil {
		return err
	}
	t.store.data.intents[in.ID] = in
	return nil
}

func (t *txView) GetIntent(_ context.Context, id string) (posting.JournalIntent, error) {
	in, ok := t.store.data.intents[id]
	if !ok {
		return posting.JournalIntent{}, fmt.Errorf("%w: %s", posting.ErrIntentNotFound, id)
	}
	return in, nil
}

func (t *txView) UpdateIntent(_ context.Context, in posting.JournalIntent) error {
	if err := t.write("UpdateIntent"); err != nil {
		return err
	}
	t.store.data.intents[in.ID] = in
	return nil
}

func (t *txView) ListIntentsByTransaction(_ context.Context, transactionID string) ([]posting.JournalIntent, error) {
	var out []posting.JournalIntent
	for _, in := range t.store.data.intents {
		if in.TransactionID == transactionID {
			out = append(out, in)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *txView) InsertDeadLetter(_ context.Context, dl posting.DeadLetter) error {
	if err := t.write("InsertDeadLetter"); err != nil {
		return err
	}
	t.store.data.deadLetters = append(t.store.data.deadLetters, dl)
	return nil
}

func sortEntries(entries []ledger.LedgerEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Date.Equal(entries[j].Date) {
			return entries[i].Date.Before(entries[j].Date)
		}
		return entries[i].TransactionID < entries[j].TransactionID
	})
}

func sortPayments(payments []ledger.Payment) {
	sort.SliceStable(payments, func(i, j int) bool {
		if !payments[i].Date.Equal(payments[j].Date) {
			return payments[i].Date.Before(payments[j].Date)
		}
		return payments[i].ID < payments[j].ID
	})
}

func sortJournals(journals []accounting.JournalEntry) {
	sort.SliceStable(journals, func(i, j int) bool {
		if !journals[i].Date.Equal(journals[j].Date) {
			return journals[i].Date.Before(journals[j].Date)
		}
		return journals[i].ID < journals[j].ID
	})
}

var (
	_ posting.Store = (*Store)(nil)
	_ posting.Tx    = (*txView)(nil)
)
