package posting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/factorybooks/factorybooks/internal/accounting"
	"github.com/factorybooks/factorybooks/internal/inventory"
	"github.com/factorybooks/factorybooks/internal/ledger"
	"github.com/factorybooks/factorybooks/internal/shared"
)

// step is one unit of a cascading deletion. weight is the number of
// documents it writes; a step never spans two transactions.
type step struct {
	name   string
	weight int
	run    func(context.Context, Tx) error
}

// chunk groups consecutive steps so no group writes more than limit
// documents. A step heavier than limit gets a chunk of its own.
func chunk(steps []step, limit int) [][]step {
	var (
		out     [][]step
		current []step
		load    int
	)
	for _, s := range steps {
		if limit > 0 && load+s.weight > limit && len(current) > 0 {
			out = append(out, current)
			current, load = nil, 0
		}
		current = append(current, s)
		load += s.weight
	}
	if len(current) > 0 {
		out = append(out, current)
	}
	return out
}

// Delete removes a transaction and everything derived from it: payments,
// cheques, stock movements, the COGS entry and the fixed asset. Posted
// journals are reversed, never deleted. The entry itself goes last, so a
// failed run can be retried and picks up where it stopped.
func (o *Orchestrator) Delete(ctx context.Context, actor shared.Actor, transactionID string) (DeleteResult, error) {
	now := o.now()
	var steps []step
	reversals := 0
	err := o.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		steps, reversals, err = o.planDelete(ctx, tx, actor, transactionID)
		return err
	})
	if err != nil {
		return DeleteResult{}, o.fail("delete", err)
	}

	chunks := chunk(steps, o.store.MaxDocumentsPerTx())
	result := DeleteResult{TransactionID: transactionID, ReversedJournals: reversals}
	for i, c := range chunks {
		err := o.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
			for _, s := range c {
				if err := s.run(ctx, tx); err != nil {
					return fmt.Errorf("%s: %w", s.name, err)
				}
			}
			return nil
		})
		if err != nil {
			o.deadLetterDelete(ctx, transactionID, chunks[i:], err, now)
			return result, o.fail("delete", fmt.Errorf("%w: delete %s stopped at chunk %d of %d: %w", shared.ErrConsistency, transactionID, i+1, len(chunks), err))
		}
		result.Chunks++
		for _, s := range c {
			result.Documents += s.weight
		}
		o.logger.Debug("delete chunk committed", slog.String("transaction_id", transactionID), slog.Int("chunk", i+1), slog.Int("of", len(chunks)))
	}
	o.finish(ctx, actor, "delete", "ledger_entry", transactionID, map[string]any{
		"documents": result.Documents,
		"chunks":    result.Chunks,
		"reversed":  result.ReversedJournals,
	}, nil)
	return result, nil
}

// planDelete reads the whole cascade and checks that every step can run
// before anything is written.
func (o *Orchestrator) planDelete(ctx context.Context, tx Tx, actor shared.Actor, transactionID string) ([]step, int, error) {
	entry, err := tx.GetEntry(ctx, transactionID)
	if err != nil {
		return nil, 0, err
	}
	if entry.IsAutoGenerated {
		return nil, 0, fmt.Errorf("%w: %s is generated; delete its source instead", ErrInvalidCandidate, transactionID)
	}
	intents, err := tx.ListIntentsByTransaction(ctx, transactionID)
	if err != nil {
		return nil, 0, err
	}
	for _, in := range intents {
		if !in.Status.Terminal() {
			return nil, 0, fmt.Errorf("%w: intent %s is %s", ErrIntentInFlight, in.ID, in.Status)
		}
	}
	now := o.now()
	var steps []step

	journals, err := tx.ListJournalsByTransaction(ctx, transactionID)
	if err != nil {
		return nil, 0, err
	}
	reversals := 0
	for _, j := range journals {
		if j.Status != accounting.JournalStatusPosted || j.SourceKind == accounting.SourceReversal {
			continue
		}
		original, reversal, err := accounting.Reverse(j, now, actor.ID)
		if err != nil {
			return nil, 0, err
		}
		reversals++
		steps = append(steps, step{name: "reverse journal " + j.ID, weight: 2, run: func(ctx context.Context, tx Tx) error {
			if err := tx.UpdateJournal(ctx, original); err != nil {
				return err
			}
			return tx.InsertJournal(ctx, reversal)
		}})
	}

	payments, err := tx.ListPaymentsByTransaction(ctx, transactionID)
	if err != nil {
		return nil, 0, err
	}
	seen := make(map[string]bool, len(payments))
	for _, p := range payments {
		seen[p.ID] = true
		steps = append(steps, step{name: "delete payment " + p.ID, weight: 1, run: func(ctx context.Context, tx Tx) error {
			return tx.DeletePayment(ctx, p.ID)
		}})
	}

	chqs, err := tx.ListChequesByTransaction(ctx, transactionID)
	if err != nil {
		return nil, 0, err
	}
	for _, ch := range chqs {
		// Endorsement halves that settled another party's entry are not
		// linked to this transaction; they go with the cheque.
		for _, id := range ch.PaymentIDs {
			if seen[id] {
				continue
			}
			p, err := tx.GetPayment(ctx, id)
			if errors.Is(err, shared.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, 0, err
			}
			seen[id] = true
			s, err := o.foreignPaymentStep(ctx, tx, p)
			if err != nil {
				return nil, 0, err
			}
			steps = append(steps, s)
		}
		steps = append(steps, step{name: "delete cheque " + ch.ID, weight: 1, run: func(ctx context.Context, tx Tx) error {
			return tx.DeleteCheque(ctx, ch.ID)
		}})
	}

	movements, err := tx.ListMovementsByTransaction(ctx, transactionID)
	if err != nil {
		return nil, 0, err
	}
	simulated := make(map[string]inventory.Item)
	for _, mv := range movements {
		item, ok := simulated[mv.ItemID]
		if !ok {
			if item, err = tx.GetItemForUpdate(ctx, mv.ItemID); err != nil {
				return nil, 0, err
			}
		}
		if item, err = inventory.Reverse(item, mv, now); err != nil {
			return nil, 0, err
		}
		simulated[mv.ItemID] = item
		steps = append(steps, step{name: "reverse movement " + mv.ID, weight: 2, run: func(ctx context.Context, tx Tx) error {
			current, err := tx.GetItemForUpdate(ctx, mv.ItemID)
			if err != nil {
				return err
			}
			current, err = inventory.Reverse(current, mv, now)
			if err != nil {
				return err
			}
			if err := tx.PutItem(ctx, current); err != nil {
				return err
			}
			return tx.DeleteMovement(ctx, mv.ID)
		}})
	}

	derived, err := tx.ListEntriesBySource(ctx, transactionID)
	if err != nil {
		return nil, 0, err
	}
	for _, d := range derived {
		steps = append(steps, step{name: "delete entry " + d.TransactionID, weight: 1, run: func(ctx context.Context, tx Tx) error {
			return tx.DeleteEntry(ctx, d.TransactionID)
		}})
	}

	fixed, err := tx.ListAssetsByTransaction(ctx, transactionID)
	if err != nil {
		return nil, 0, err
	}
	for _, a := range fixed {
		steps = append(steps, step{name: "delete asset " + a.ID, weight: 1, run: func(ctx context.Context, tx Tx) error {
			return tx.DeleteAsset(ctx, a.ID)
		}})
	}

	steps = append(steps, step{name: "delete entry " + transactionID, weight: 1, run: func(ctx context.Context, tx Tx) error {
		return tx.DeleteEntry(ctx, transactionID)
	}})
	return steps, reversals, nil
}

// foreignPaymentStep deletes a payment linked to another transaction and
// gives back the settlement it made there, in the same chunk.
func (o *Orchestrator) foreignPaymentStep(ctx context.Context, tx Tx, p ledger.Payment) (step, error) {
	del := func(ctx context.Context, tx Tx) error { return tx.DeletePayment(ctx, p.ID) }
	if p.LinkedTransactionID == "" {
		return step{name: "delete payment " + p.ID, weight: 1, run: del}, nil
	}
	target, err := tx.GetEntry(ctx, p.LinkedTransactionID)
	if errors.Is(err, shared.ErrNotFound) || (err == nil && !target.IsARAPEntry) {
		return step{name: "delete payment " + p.ID, weight: 1, run: del}, nil
	}
	if err != nil {
		return step{}, err
	}
	return step{name: "unsettle " + p.LinkedTransactionID, weight: 2, run: func(ctx context.Context, tx Tx) error {
		current, err := tx.GetEntry(ctx, p.LinkedTransactionID)
		if err != nil {
			return err
		}
		current, err = ledger.Unsettle(current, p.Amount)
		if err != nil {
			return err
		}
		if err := tx.UpdateEntry(ctx, current); err != nil {
			return err
		}
		return del(ctx, tx)
	}}, nil
}

func (o *Orchestrator) deadLetterDelete(ctx context.Context, transactionID string, remaining [][]step, cause error, now time.Time) {
	var names []string
	for _, c := range remaining {
		for _, s := range c {
			names = append(names, s.name)
		}
	}
	o.metrics.ObserveDeadLetter("delete")
	o.logger.Error("delete dead-lettered",
		slog.String("transaction_id", transactionID),
		slog.Int("remaining_steps", len(names)),
		slog.Any("error", cause))
	payload, err := json.Marshal(map[string]any{"transactionId": transactionID, "remaining": names})
	if err != nil {
		o.logger.Error("dead letter payload", slog.Any("error", err))
		return
	}
	dl := DeadLetter{
		ID:            o.newID(),
		Operation:     "delete",
		TransactionID: transactionID,
		Payload:       payload,
		Error:         cause.Error(),
		CreatedAt:     now,
	}
	err = o.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertDeadLetter(ctx, dl)
	})
	if err != nil {
		o.logger.Error("dead letter write failed", slog.String("transaction_id", transactionID), slog.Any("error", err))
	}
}
