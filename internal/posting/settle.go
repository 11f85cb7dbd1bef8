package posting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/factorybooks/factorybooks/internal/accounting"
	"github.com/factorybooks/factorybooks/internal/cheques"
	"github.com/factorybooks/factorybooks/internal/ledger"
	"github.com/factorybooks/factorybooks/internal/money"
	"github.com/factorybooks/factorybooks/internal/shared"
)

// Settle records a cash or bank payment against an existing AR/AP entry. The
// settlement and the payment commit together.
func (o *Orchestrator) Settle(ctx context.Context, actor shared.Actor, transactionID string, in PaymentInput) (SettleResult, error) {
	if err := in.validate(); err != nil {
		return SettleResult{}, o.fail("settle", err)
	}
	now := o.now()
	var (
		result SettleResult
		intent *JournalIntent
	)
	err := o.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		entry, err := tx.GetEntry(ctx, transactionID)
		if err != nil {
			return err
		}
		class, err := ledger.ClassifyEntry(entry)
		if err != nil {
			return err
		}
		if !class.Class.SettlesThroughPayments() || !entry.IsARAPEntry {
			return fmt.Errorf("%w: %s", ledger.ErrNotARAP, transactionID)
		}
		// Checked up front so an overpayment never reaches the store.
		if _, err := ledger.Settle(entry, in.Amount); err != nil {
			return err
		}
		payment := newPayment(o.newID(), entry, class, in, actor, now)
		p := &plan{operation: "settle", transactionID: transactionID}
		j, ok, err := accounting.PaymentJournal(payment, &class)
		if err != nil {
			return err
		}
		if ok {
			p.journals = append(p.journals, j)
		}
		p.add(func(ctx context.Context, tx Tx) error {
			updated, err := tx.SettleEntry(ctx, transactionID, payment.Amount)
			if err != nil {
				return err
			}
			result.Entry = updated
			return nil
		})
		p.add(func(ctx context.Context, tx Tx) error { return tx.InsertPayment(ctx, payment) })
		journals, pending, err := o.commit(ctx, tx, p, now)
		if err != nil {
			return err
		}
		result.Payment = payment
		result.Journals = journals
		if pending != nil {
			result.IntentID = pending.ID
		}
		intent = pending
		return nil
	})
	if err != nil {
		return SettleResult{}, o.fail("settle", err)
	}
	o.finish(ctx, actor, "settle", "ledger_entry", transactionID, map[string]any{
		"payment_id": result.Payment.ID,
		"amount":     result.Payment.Amount.String(),
		"status":     result.Entry.PaymentStatus,
	}, intent)
	return result, nil
}

func (in AllocationInput) validate() error {
	if ledger.PartyKey(in.Party) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidCandidate, ledger.ErrPartyRequired)
	}
	switch in.Type {
	case ledger.PaymentReceipt, ledger.PaymentDisbursement:
	default:
		return fmt.Errorf("%w: unknown payment type %q", ErrInvalidCandidate, in.Type)
	}
	if err := (PaymentInput{Amount: in.Amount, Method: in.Method}).validate(); err != nil {
		return err
	}
	if len(in.Allocations) == 0 {
		return fmt.Errorf("%w: nothing to allocate", ErrInvalidCandidate)
	}
	seen := make(map[string]struct{}, len(in.Allocations))
	total := decimal.Zero
	for _, a := range in.Allocations {
		id := strings.TrimSpace(a.TransactionID)
		if id == "" {
			return fmt.Errorf("%w: allocation without transaction id", ErrInvalidCandidate)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %s allocated twice", ErrInvalidCandidate, id)
		}
		seen[id] = struct{}{}
		if !a.Amount.IsPositive() {
			return fmt.Errorf("%w: allocation to %s must be positive", ErrInvalidCandidate, id)
		}
		total = total.Add(a.Amount)
	}
	if total.GreaterThanOrEqual(in.Amount.Add(money.Epsilon)) {
		return fmt.Errorf("%w: allocations exceed the payment", ledger.ErrOverpayment)
	}
	return nil
}

// Allocate spreads one payment over several open entries of a party. Any
// excess becomes an advance linked to the payment, which carries no balance
// effect of its own.
func (o *Orchestrator) Allocate(ctx context.Context, actor shared.Actor, in AllocationInput) (AllocationResult, error) {
	if err := in.validate(); err != nil {
		return AllocationResult{}, o.fail("allocate", err)
	}
	now := o.now()
	date := in.Date
	if date.IsZero() {
		date = now
	}
	payment := ledger.Payment{
		ID:              o.newID(),
		Type:            in.Type,
		Amount:          in.Amount,
		Method:          in.Method,
		AssociatedParty: in.Party,
		Date:            date,
		CreatedAt:       now,
		CreatedBy:       actor.ID,
	}
	var (
		result AllocationResult
		intent *JournalIntent
	)
	err := o.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		result = AllocationResult{}
		p := &plan{operation: "allocate", transactionID: payment.ID}
		allocated := decimal.Zero
		for _, a := range in.Allocations {
			entry, err := tx.GetEntry(ctx, a.TransactionID)
			if err != nil {
				return err
			}
			if !ledger.SameParty(entry.AssociatedParty, in.Party) {
				return fmt.Errorf("%w: %s belongs to another party", ErrInvalidCandidate, a.TransactionID)
			}
			class, err := ledger.ClassifyEntry(entry)
			if err != nil {
				return err
			}
			if !class.Class.SettlesThroughPayments() || !entry.IsARAPEntry {
				return fmt.Errorf("%w: %s", ledger.ErrNotARAP, a.TransactionID)
			}
			if class.Income != (in.Type == ledger.PaymentReceipt) {
				return fmt.Errorf("%w: a %s cannot settle %s", ErrInvalidCandidate, in.Type, a.TransactionID)
			}
			if _, err := ledger.Settle(entry, a.Amount); err != nil {
				return fmt.Errorf("%s: %w", a.TransactionID, err)
			}
			allocated = allocated.Add(a.Amount)
			p.add(func(ctx context.Context, tx Tx) error {
				updated, err := tx.SettleEntry(ctx, a.TransactionID, a.Amount)
				if err != nil {
					return err
				}
				result.Entries = append(result.Entries, updated)
				return nil
			})
		}
		p.add(func(ctx context.Context, tx Tx) error { return tx.InsertPayment(ctx, payment) })

		excess := money.Max(in.Amount.Sub(allocated), decimal.Zero)
		if excess.GreaterThanOrEqual(money.Epsilon) {
			advance := advanceFor(o.newID(), payment, excess, now)
			p.add(func(ctx context.Context, tx Tx) error { return tx.InsertEntry(ctx, advance) })
			result.Advance = &advance
		} else {
			excess = decimal.Zero
		}
		j, err := accounting.AllocationJournal(payment, allocated, excess)
		if err != nil {
			return err
		}
		p.journals = append(p.journals, j)

		journals, pending, err := o.commit(ctx, tx, p, now)
		if err != nil {
			return err
		}
		result.Payment = payment
		result.Journals = journals
		if pending != nil {
			result.IntentID = pending.ID
		}
		intent = pending
		return nil
	})
	if err != nil {
		return AllocationResult{}, o.fail("allocate", err)
	}
	o.finish(ctx, actor, "allocate", "payment", payment.ID, map[string]any{
		"party":       in.Party,
		"amount":      in.Amount.String(),
		"allocations": len(in.Allocations),
	}, intent)
	return result, nil
}

// checkEndorseeEntry makes sure an endorsed cheque only settles a payable the
// business owes the endorsee.
func checkEndorseeEntry(entry ledger.LedgerEntry, endorsee string) error {
	if !ledger.SameParty(entry.AssociatedParty, endorsee) {
		return fmt.Errorf("%w: endorsee transaction %s belongs to another party", ErrInvalidCandidate, entry.TransactionID)
	}
	class, err := ledger.ClassifyEntry(entry)
	if err != nil {
		return err
	}
	if class.Income {
		return fmt.Errorf("%w: endorsee transaction %s is not a payable", ErrInvalidCandidate, entry.TransactionID)
	}
	return nil
}

// advanceFor synthesizes the advance that absorbs an unallocated excess. The
// payment already moved the party's balance, so the advance is linked to it.
func advanceFor(id string, p ledger.Payment, excess decimal.Decimal, now time.Time) ledger.LedgerEntry {
	e := ledger.LedgerEntry{
		ID:              id,
		TransactionID:   "ADV-" + p.ID,
		Category:        ledger.CategoryAdvances,
		Description:     "Unallocated part of payment " + p.ID,
		Date:            p.Date,
		Amount:          excess,
		AssociatedParty: p.AssociatedParty,
		LinkedPaymentID: p.ID,
		IsAutoGenerated: true,
		CreatedAt:       now,
		CreatedBy:       p.CreatedBy,
	}
	if p.Type == ledger.PaymentReceipt {
		e.Type = ledger.TypeIncome
		e.SubCategory = ledger.SubCustomerAdvance
	} else {
		e.Type = ledger.TypeExpense
		e.SubCategory = ledger.SubSupplierAdvance
	}
	return e
}

// TransitionCheque moves a pending cheque to cleared, bounced or endorsed and
// applies the settlements and payments the transition produces.
func (o *Orchestrator) TransitionCheque(ctx context.Context, actor shared.Actor, chequeID string, req TransitionRequest) (TransitionResult, error) {
	now := o.now()
	var (
		result TransitionResult
		intent *JournalIntent
	)
	err := o.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		result = TransitionResult{}
		ch, err := tx.GetCheque(ctx, chequeID)
		if err != nil {
			return err
		}
		out, err := cheques.Transition(ch, req.Target, cheques.TransitionInput{
			Endorsee:              req.Endorsee,
			EndorseeTransactionID: req.EndorseeTransactionID,
			Actor:                 actor.ID,
			Now:                   now,
			NewID:                 o.newID,
		})
		if err != nil {
			return err
		}
		p := &plan{operation: "cheque_" + string(req.Target), transactionID: ch.LinkedTransactionID}

		var linked *ledger.Classification
		for _, s := range out.Settlements {
			entry, err := tx.GetEntry(ctx, s.TransactionID)
			if err != nil {
				return fmt.Errorf("cheque %s settles %s: %w", chequeID, s.TransactionID, err)
			}
			if s.TransactionID == req.EndorseeTransactionID {
				if err := checkEndorseeEntry(entry, req.Endorsee); err != nil {
					return err
				}
			}
			if s.TransactionID == ch.LinkedTransactionID {
				class, err := ledger.ClassifyEntry(entry)
				if err != nil {
					return err
				}
				linked = &class
			}
			if !entry.IsARAPEntry {
				continue
			}
			if _, err := ledger.Settle(entry, s.Amount); err != nil {
				return fmt.Errorf("%s: %w", s.TransactionID, err)
			}
			p.add(func(ctx context.Context, tx Tx) error {
				updated, err := tx.SettleEntry(ctx, s.TransactionID, s.Amount)
				if err != nil {
					return err
				}
				result.Entries = append(result.Entries, updated)
				return nil
			})
		}
		for _, pay := range out.Payments {
			p.add(func(ctx context.Context, tx Tx) error { return tx.InsertPayment(ctx, pay) })
			j, ok, err := accounting.PaymentJournal(pay, linked)
			if err != nil {
				return err
			}
			if ok {
				p.journals = append(p.journals, j)
			}
		}
		if out.Cheque.Status == cheques.StatusEndorsed {
			j, err := accounting.EndorsementJournal(out.Cheque.ID, out.Cheque.LinkedTransactionID, out.Cheque.Amount, now, actor.ID)
			if err != nil {
				return err
			}
			p.journals = append(p.journals, j)
		}
		updated := out.Cheque
		p.add(func(ctx context.Context, tx Tx) error { return tx.UpdateCheque(ctx, updated) })

		journals, pending, err := o.commit(ctx, tx, p, now)
		if err != nil {
			return err
		}
		result.Cheque = out.Cheque
		result.Payments = out.Payments
		result.Journals = journals
		if pending != nil {
			result.IntentID = pending.ID
		}
		intent = pending
		return nil
	})
	if err != nil {
		return TransitionResult{}, o.fail("cheque_transition", err)
	}
	o.finish(ctx, actor, "cheque_transition", "cheque", chequeID, map[string]any{
		"status":   result.Cheque.Status,
		"endorsee": result.Cheque.EndorsedTo,
	}, intent)
	return result, nil
}
