// Package posting coordinates the multi-document writes behind every
// user-visible transaction: ledger entry, payments, cheque, stock movements,
// COGS, fixed asset and the journals that mirror them.
package posting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/factorybooks/factorybooks/internal/accounting"
	"github.com/factorybooks/factorybooks/internal/assets"
	"github.com/factorybooks/factorybooks/internal/cheques"
	"github.com/factorybooks/factorybooks/internal/inventory"
	"github.com/factorybooks/factorybooks/internal/ledger"
	"github.com/factorybooks/factorybooks/internal/money"
	"github.com/factorybooks/factorybooks/internal/shared"
)

// Config tunes journal writing and intent retries.
type Config struct {
	JournalMode JournalMode
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// IntentLease is how long a claimed intent stays with its worker before
	// a sweep may take it over.
	IntentLease time.Duration
}

// DefaultConfig mirrors the environment defaults.
func DefaultConfig() Config {
	return Config{
		JournalMode: JournalAtomic,
		MaxAttempts: 10,
		BaseBackoff: 5 * time.Second,
		MaxBackoff:  10 * time.Minute,
		IntentLease: 2 * time.Minute,
	}
}

// Orchestrator validates a transaction as a whole and writes it through the
// store's unit of work.
type Orchestrator struct {
	store     Store
	audit     shared.AuditPort
	publisher IntentPublisher
	cache     CacheInvalidator
	metrics   Recorder
	logger    *slog.Logger
	cfg       Config
	now       func() time.Time
	newID     func() string
}

// NewOrchestrator wires the orchestrator. audit may be nil.
func NewOrchestrator(store Store, audit shared.AuditPort, logger *slog.Logger, cfg Config) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.JournalMode == "" {
		cfg.JournalMode = def.JournalMode
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = def.BaseBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	return &Orchestrator{
		store:   store,
		audit:   audit,
		metrics: nopRecorder{},
		logger:  logger,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
}

// WithNow overrides the clock for testing.
func (o *Orchestrator) WithNow(now func() time.Time) {
	if now != nil {
		o.now = now
	}
}

// WithIDs overrides id generation for testing.
func (o *Orchestrator) WithIDs(newID func() string) {
	if newID != nil {
		o.newID = newID
	}
}

// WithPublisher enqueues intents on commit. Without one, intents wait for
// the sweeper.
func (o *Orchestrator) WithPublisher(p IntentPublisher) {
	o.publisher = p
}

// WithCache bumps the balance cache after each commit.
func (o *Orchestrator) WithCache(c CacheInvalidator) {
	o.cache = c
}

// WithRecorder reports outcomes to metrics.
func (o *Orchestrator) WithRecorder(r Recorder) {
	if r != nil {
		o.metrics = r
	}
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// plan collects the ledger-side writes of one transaction and the journals
// that mirror them. Each write is one document.
type plan struct {
	operation     string
	transactionID string
	writes        []func(context.Context, Tx) error
	journals      []accounting.JournalEntry
}

func (p *plan) add(w func(context.Context, Tx) error) {
	p.writes = append(p.writes, w)
}

// commit runs the writes and then either posts the journals in the same
// transaction or leaves an intent for the worker.
func (o *Orchestrator) commit(ctx context.Context, tx Tx, p *plan, now time.Time) ([]accounting.JournalEntry, *JournalIntent, error) {
	limit := o.store.MaxDocumentsPerTx()
	docs := len(p.writes)
	if len(p.journals) > 0 {
		docs++
	}
	if limit > 0 && docs > limit {
		return nil, nil, fmt.Errorf("%w: %d documents, limit %d", ErrBatchTooLarge, docs, limit)
	}
	for _, w := range p.writes {
		if err := w(ctx, tx); err != nil {
			return nil, nil, err
		}
	}
	if len(p.journals) == 0 {
		return nil, nil, nil
	}
	atomic := o.cfg.JournalMode == JournalAtomic && (limit <= 0 || len(p.writes)+len(p.journals) <= limit)
	if atomic {
		posted := make([]accounting.JournalEntry, 0, len(p.journals))
		for _, j := range p.journals {
			out, err := postJournal(ctx, tx, j, now)
			if err != nil {
				return nil, nil, err
			}
			posted = append(posted, out)
		}
		return posted, nil, nil
	}
	intent := JournalIntent{
		ID:            o.newID(),
		Operation:     p.operation,
		TransactionID: p.transactionID,
		Journals:      p.journals,
		Status:        IntentPending,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := tx.InsertIntent(ctx, intent); err != nil {
		return nil, nil, err
	}
	return p.journals, &intent, nil
}

// postJournal writes a draft as posted unless a journal with the same id is
// already there, which makes replays harmless.
func postJournal(ctx context.Context, tx Tx, j accounting.JournalEntry, now time.Time) (accounting.JournalEntry, error) {
	existing, err := tx.GetJournal(ctx, j.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, accounting.ErrJournalNotFound) {
		return accounting.JournalEntry{}, err
	}
	posted, err := accounting.Post(j, now)
	if err != nil {
		return accounting.JournalEntry{}, err
	}
	if err := tx.InsertJournal(ctx, posted); err != nil {
		return accounting.JournalEntry{}, err
	}
	return posted, nil
}

// finish runs the post-commit side effects. None of them can undo the
// commit, so failures are only logged.
func (o *Orchestrator) finish(ctx context.Context, actor shared.Actor, operation, entity, entityID string, meta map[string]any, intent *JournalIntent) {
	o.metrics.ObservePosting(operation, "ok")
	if o.audit != nil {
		err := o.audit.Record(ctx, shared.AuditLog{
			ActorID:    actor.ID,
			ActorEmail: actor.Email,
			Action:     "posting." + operation,
			Entity:     entity,
			EntityID:   entityID,
			Meta:       meta,
			At:         o.now(),
		})
		if err != nil {
			o.logger.Warn("audit record failed", slog.String("operation", operation), slog.String("entity_id", entityID), slog.Any("error", err))
		}
	}
	if o.cache != nil {
		if err := o.cache.Bump(ctx); err != nil {
			o.logger.Warn("balance cache bump failed", slog.Any("error", err))
		}
	}
	if intent != nil && o.publisher != nil {
		if err := o.publisher.PublishIntent(ctx, *intent); err != nil {
			o.logger.Warn("intent left for sweeper", slog.String("intent_id", intent.ID), slog.Any("error", err))
		}
	}
}

func (o *Orchestrator) fail(operation string, err error) error {
	outcome := "error"
	switch shared.Kind(err) {
	case shared.ErrValidation:
		outcome = "rejected"
	case shared.ErrConflict:
		outcome = "conflict"
	case shared.ErrNotFound:
		outcome = "not_found"
	}
	o.metrics.ObservePosting(operation, outcome)
	if outcome == "error" {
		o.logger.Error("posting failed", slog.String("operation", operation), slog.Any("error", err))
	}
	return err
}

type prepared struct {
	entry    ledger.LedgerEntry
	class    ledger.Classification
	payments []ledger.Payment
	cheque   *cheques.Cheque
	// foreign are settlements on entries other than the one being posted.
	foreign  []cheques.Settlement
	endorsee string
	lines    []InventoryLine
	asset    *assets.FixedAsset
	journals []accounting.JournalEntry
}

// Post validates a candidate transaction as a whole and writes every
// document it produces. Nothing is written when any part is invalid.
func (o *Orchestrator) Post(ctx context.Context, actor shared.Actor, c Candidate) (PostResult, error) {
	now := o.now()
	pr, err := o.prepare(actor, c, now)
	if err != nil {
		return PostResult{}, o.fail("post", err)
	}
	var (
		result PostResult
		intent *JournalIntent
	)
	err = o.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		p, res, err := o.stage(ctx, tx, pr, actor, now)
		if err != nil {
			return err
		}
		journals, in, err := o.commit(ctx, tx, p, now)
		if err != nil {
			return err
		}
		res.Journals = journals
		if in != nil {
			res.IntentID = in.ID
		}
		result, intent = res, in
		return nil
	})
	if err != nil {
		return PostResult{}, o.fail("post", err)
	}
	o.finish(ctx, actor, "post", "ledger_entry", result.Entry.TransactionID, map[string]any{
		"type":     result.Entry.Type,
		"category": result.Entry.Category,
		"amount":   result.Entry.Amount.String(),
		"party":    result.Entry.AssociatedParty,
	}, intent)
	return result, nil
}

func (o *Orchestrator) prepare(actor shared.Actor, c Candidate, now time.Time) (prepared, error) {
	e := c.Entry
	if e.LinkedPaymentID != "" || e.IsAutoGenerated || e.SourceTransactionID != "" {
		return prepared{}, fmt.Errorf("%w: generated entry fields cannot be set", ErrInvalidCandidate)
	}
	e.TransactionID = strings.TrimSpace(e.TransactionID)
	if e.TransactionID == "" {
		e.TransactionID = "TX-" + strings.ToUpper(o.newID())
	}
	if e.ID == "" {
		e.ID = o.newID()
	}
	if e.Date.IsZero() {
		e.Date = now
	}
	e.CreatedAt = now
	e.CreatedBy = actor.ID
	if err := e.Validate(); err != nil {
		return prepared{}, err
	}
	class, err := ledger.ClassifyEntry(e)
	if err != nil {
		return prepared{}, err
	}
	if e.IsARAPEntry && !class.Class.SettlesThroughPayments() {
		return prepared{}, fmt.Errorf("%w: %s entries are not tracked as receivables or payables", ErrInvalidCandidate, class.Class)
	}
	e = ledger.OpenSettlement(e)
	pr := prepared{class: class, lines: c.Inventory}

	if c.InitialPayment != nil {
		if !e.IsARAPEntry {
			return prepared{}, fmt.Errorf("%w: an initial payment needs a receivable or payable entry", ErrInvalidCandidate)
		}
		if err := c.InitialPayment.validate(); err != nil {
			return prepared{}, err
		}
		p := newPayment(o.newID(), e, class, *c.InitialPayment, actor, now)
		if e, err = ledger.Settle(e, p.Amount); err != nil {
			return prepared{}, err
		}
		pr.payments = append(pr.payments, p)
	}

	if c.Cheque != nil {
		if !e.IsARAPEntry {
			return prepared{}, fmt.Errorf("%w: a cheque needs a receivable or payable entry", ErrInvalidCandidate)
		}
		in := *c.Cheque
		in.LinkedTransactionID = e.TransactionID
		if in.AssociatedParty == "" {
			in.AssociatedParty = e.AssociatedParty
		} else if !ledger.SameParty(in.AssociatedParty, e.AssociatedParty) {
			return prepared{}, fmt.Errorf("%w: cheque drawer must be the entry's counterparty", ErrInvalidCandidate)
		}
		want := cheques.Outgoing
		if class.Income {
			want = cheques.Incoming
		}
		if in.Direction == "" {
			in.Direction = want
		} else if in.Direction != want {
			return prepared{}, fmt.Errorf("%w: a %s entry takes an %s cheque", ErrInvalidCandidate, e.Type, want)
		}
		if in.Amount.GreaterThanOrEqual(ledger.Outstanding(e).Add(money.Epsilon)) {
			return prepared{}, fmt.Errorf("%w: cheque exceeds the open balance", ledger.ErrOverpayment)
		}
		out, err := cheques.Create(in, cheques.TransitionInput{Actor: actor.ID, Now: now, NewID: o.newID})
		if err != nil {
			return prepared{}, err
		}
		for _, s := range out.Settlements {
			if s.TransactionID != e.TransactionID {
				pr.foreign = append(pr.foreign, s)
				continue
			}
			if e, err = ledger.Settle(e, s.Amount); err != nil {
				return prepared{}, err
			}
		}
		pr.payments = append(pr.payments, out.Payments...)
		ch := out.Cheque
		pr.cheque = &ch
		pr.endorsee = in.Endorsee
	}

	stocked := decimal.Zero
	for i, line := range c.Inventory {
		value, err := validateLine(line)
		if err != nil {
			return prepared{}, fmt.Errorf("inventory line %d: %w", i+1, err)
		}
		stocked = stocked.Add(value)
	}
	if err := checkStocked(e, class, stocked); err != nil {
		return prepared{}, err
	}
	e.StockedAmount = stocked

	if c.Asset != nil {
		if class.Class != ledger.ClassCapitalExpenditure {
			return prepared{}, fmt.Errorf("%w: fixed assets come from capital expenditure", ErrInvalidCandidate)
		}
		a, err := assets.New(e.TransactionID, e.Amount.Sub(e.TotalDiscount), e.Date, *c.Asset)
		if err != nil {
			return prepared{}, err
		}
		pr.asset = &a
	}

	if j, ok, err := accounting.EntryJournal(e, class); err != nil {
		return prepared{}, err
	} else if ok {
		pr.journals = append(pr.journals, j)
	}
	for _, p := range pr.payments {
		j, ok, err := accounting.PaymentJournal(p, &class)
		if err != nil {
			return prepared{}, err
		}
		if ok {
			pr.journals = append(pr.journals, j)
		}
	}
	if pr.cheque != nil && pr.cheque.Status == cheques.StatusEndorsed {
		j, err := accounting.EndorsementJournal(pr.cheque.ID, e.TransactionID, pr.cheque.Amount, e.Date, actor.ID)
		if err != nil {
			return prepared{}, err
		}
		pr.journals = append(pr.journals, j)
	}
	pr.entry = e
	return pr, nil
}

// validateLine checks one inventory line and returns the value a receipt
// adds to stock.
func validateLine(line InventoryLine) (decimal.Decimal, error) {
	switch line.Direction {
	case inventory.MovementReceipt:
		if line.ItemID == "" && strings.TrimSpace(line.Name) == "" {
			return decimal.Zero, fmt.Errorf("%w: a receipt needs an item id or a name", ErrInvalidCandidate)
		}
		price, err := inventory.LandedUnitPrice(inventory.ReceiptInput{
			Quantity:       line.Quantity,
			UnitPrice:      line.UnitPrice,
			PurchaseAmount: line.PurchaseAmount,
			Shipping:       line.Shipping,
			Other:          line.Other,
		})
		if err != nil {
			return decimal.Zero, err
		}
		return money.Round(line.Quantity.Mul(price)), nil
	case inventory.MovementIssue:
		if line.ItemID == "" {
			return decimal.Zero, fmt.Errorf("%w: an issue needs an item id", ErrInvalidCandidate)
		}
		if !line.Quantity.IsPositive() {
			return decimal.Zero, inventory.ErrInvalidQuantity
		}
		return decimal.Zero, nil
	default:
		return decimal.Zero, fmt.Errorf("%w: unknown movement direction %q", ErrInvalidCandidate, line.Direction)
	}
}

// checkStocked keeps the Inventory account equal to the value of stock on
// hand: only ordinary expenses receive stock, never for more than they cost,
// and a purchase is booked to inventory in full so it must be received in full.
func checkStocked(e ledger.LedgerEntry, class ledger.Classification, stocked decimal.Decimal) error {
	if !stocked.IsPositive() {
		if ledger.Normalize(e.Category) == ledger.CategoryPurchases && e.Type == ledger.TypeExpense {
			return fmt.Errorf("%w: a purchase needs the stock it buys as receipt lines", ErrInvalidCandidate)
		}
		return nil
	}
	if class.Class != ledger.ClassOrdinary || class.Income {
		return fmt.Errorf("%w: only expense entries can receive stock", ErrInvalidCandidate)
	}
	if stocked.GreaterThanOrEqual(e.Amount.Add(money.Cent)) {
		return fmt.Errorf("%w: received stock worth %s exceeds the entry amount %s", ErrInvalidCandidate, stocked, e.Amount)
	}
	if ledger.Normalize(e.Category) == ledger.CategoryPurchases && stocked.LessThanOrEqual(e.Amount.Sub(money.Cent)) {
		return fmt.Errorf("%w: a purchase of %s received only %s of stock", ErrInvalidCandidate, e.Amount, stocked)
	}
	return nil
}

// stage reads what the candidate depends on inside the transaction and turns
// the prepared candidate into a plan. Nothing is written here.
func (o *Orchestrator) stage(ctx context.Context, tx Tx, pr prepared, actor shared.Actor, now time.Time) (*plan, PostResult, error) {
	e := pr.entry
	p := &plan{operation: "post", transactionID: e.TransactionID, journals: append([]accounting.JournalEntry(nil), pr.journals...)}
	res := PostResult{Entry: e, Payments: pr.payments, Cheque: pr.cheque, Asset: pr.asset}

	var foreign []cheques.Settlement
	for _, s := range pr.foreign {
		target, err := tx.GetEntry(ctx, s.TransactionID)
		if err != nil {
			return nil, res, fmt.Errorf("%w: endorsee transaction %s: %w", ErrInvalidCandidate, s.TransactionID, err)
		}
		if err := checkEndorseeEntry(target, pr.endorsee); err != nil {
			return nil, res, err
		}
		if !target.IsARAPEntry {
			continue
		}
		if _, err := ledger.Settle(target, s.Amount); err != nil {
			return nil, res, fmt.Errorf("endorsee transaction %s: %w", s.TransactionID, err)
		}
		foreign = append(foreign, s)
	}

	items := make(map[string]inventory.Item)
	var order []string
	var movements []inventory.Movement
	isSale := pr.class.Class == ledger.ClassOrdinary && pr.class.Income
	cost := decimal.Zero
	for i, line := range pr.lines {
		item, isNew, err := o.loadItem(ctx, tx, items, line)
		if err != nil {
			return nil, res, fmt.Errorf("inventory line %d: %w", i+1, err)
		}
		var mv inventory.Movement
		switch line.Direction {
		case inventory.MovementReceipt:
			item, mv, err = inventory.Receive(item, isNew, inventory.ReceiptInput{
				Quantity:       line.Quantity,
				UnitPrice:      line.UnitPrice,
				PurchaseAmount: line.PurchaseAmount,
				Shipping:       line.Shipping,
				Other:          line.Other,
				TransactionID:  e.TransactionID,
				Date:           now,
			})
		case inventory.MovementIssue:
			var issued decimal.Decimal
			item, mv, issued, err = inventory.Issue(item, inventory.IssueInput{
				Quantity:      line.Quantity,
				IsSale:        isSale,
				TransactionID: e.TransactionID,
				Date:          now,
			})
			if isSale {
				cost = cost.Add(issued)
			}
		}
		if err != nil {
			return nil, res, fmt.Errorf("inventory line %d: %w", i+1, err)
		}
		if _, seen := items[item.ID]; !seen {
			order = append(order, item.ID)
		}
		items[item.ID] = item
		movements = append(movements, mv)
	}

	var cogs *ledger.LedgerEntry
	if isSale && cost.IsPositive() {
		entry := inventory.COGSEntry(e, cost, now)
		entry.CreatedBy = actor.ID
		j, err := accounting.COGSJournal(entry)
		if err != nil {
			return nil, res, err
		}
		p.journals = append(p.journals, j)
		cogs = &entry
		res.COGS = cogs
	}

	p.add(func(ctx context.Context, tx Tx) error { return tx.InsertEntry(ctx, e) })
	for _, pay := range pr.payments {
		p.add(func(ctx context.Context, tx Tx) error { return tx.InsertPayment(ctx, pay) })
	}
	if pr.cheque != nil {
		ch := *pr.cheque
		p.add(func(ctx context.Context, tx Tx) error { return tx.InsertCheque(ctx, ch) })
	}
	for _, s := range foreign {
		p.add(func(ctx context.Context, tx Tx) error {
			_, err := tx.SettleEntry(ctx, s.TransactionID, s.Amount)
			return err
		})
	}
	for _, id := range order {
		item := items[id]
		res.Items = append(res.Items, item)
		p.add(func(ctx context.Context, tx Tx) error { return tx.PutItem(ctx, item) })
	}
	for _, mv := range movements {
		p.add(func(ctx context.Context, tx Tx) error { return tx.InsertMovement(ctx, mv) })
	}
	if cogs != nil {
		entry := *cogs
		p.add(func(ctx context.Context, tx Tx) error { return tx.InsertEntry(ctx, entry) })
	}
	if pr.asset != nil {
		a := *pr.asset
		p.add(func(ctx context.Context, tx Tx) error { return tx.InsertAsset(ctx, a) })
	}
	return p, res, nil
}

func (o *Orchestrator) loadItem(ctx context.Context, tx Tx, staged map[string]inventory.Item, line InventoryLine) (inventory.Item, bool, error) {
	if line.ItemID == "" {
		return inventory.Item{ID: o.newID(), Name: strings.TrimSpace(line.Name), Unit: line.Unit}, true, nil
	}
	if item, ok := staged[line.ItemID]; ok {
		return item, false, nil
	}
	item, err := tx.GetItemForUpdate(ctx, line.ItemID)
	if err == nil {
		return item, false, nil
	}
	if errors.Is(err, inventory.ErrItemNotFound) && line.Direction == inventory.MovementReceipt && strings.TrimSpace(line.Name) != "" {
		return inventory.Item{ID: line.ItemID, Name: strings.TrimSpace(line.Name), Unit: line.Unit}, true, nil
	}
	return inventory.Item{}, false, err
}

func newPayment(id string, e ledger.LedgerEntry, class ledger.Classification, in PaymentInput, actor shared.Actor, now time.Time) ledger.Payment {
	kind := ledger.PaymentDisbursement
	if class.Income {
		kind = ledger.PaymentReceipt
	}
	date := in.Date
	if date.IsZero() {
		date = now
	}
	return ledger.Payment{
		ID:                  id,
		Type:                kind,
		Amount:              in.Amount,
		Method:              in.Method,
		LinkedTransactionID: e.TransactionID,
		AssociatedParty:     e.AssociatedParty,
		Date:                date,
		CreatedAt:           now,
		CreatedBy:           actor.ID,
	}
}
