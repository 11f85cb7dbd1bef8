package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/factorybooks/factorybooks/internal/accounting"
	"github.com/factorybooks/factorybooks/internal/assets"
	"github.com/factorybooks/factorybooks/internal/cheques"
	"github.com/factorybooks/factorybooks/internal/inventory"
	"github.com/factorybooks/factorybooks/internal/ledger"
	"github.com/factorybooks/factorybooks/internal/posting"
)

type txView struct {
	q       dbtx
	maxDocs int
	writes  int
}

// count tracks one document write against the transaction limit.
func (t *txView) count() error {
	t.writes++
	if t.writes > t.maxDocs {
		return ErrTooManyWrites
	}
	return nil
}

func entryDoc(e ledger.LedgerEntry) document {
	return document{
		collection:    collEntries,
		id:            e.TransactionID,
		transactionID: e.TransactionID,
		partyKey:      ledger.PartyKey(e.AssociatedParty),
		refID:         e.SourceTransactionID,
		status:        string(e.PaymentStatus),
		occurredAt:    e.Date,
		body:          e,
	}
}

func paymentDoc(p ledger.Payment) document {
	return document{
		collection:    collPayments,
		id:            p.ID,
		transactionID: p.LinkedTransactionID,
		partyKey:      ledger.PartyKey(p.AssociatedParty),
		refID:         p.ChequeID,
		occurredAt:    p.Date,
		body:          p,
	}
}

func chequeDoc(ch cheques.Cheque) document {
	return document{
		collection:    collCheques,
		id:            ch.ID,
		transactionID: ch.LinkedTransactionID,
		partyKey:      ledger.PartyKey(ch.AssociatedParty),
		status:        string(ch.Status),
		occurredAt:    ch.DueDate,
		body:          ch,
	}
}

func itemDoc(item inventory.Item) document {
	return document{
		collection: collItems,
		id:         item.ID,
		refID:      item.Name,
		occurredAt: item.UpdatedAt,
		body:       item,
	}
}

func movementDoc(mv inventory.Movement) document {
	return document{
		collection:    collMovements,
		id:            mv.ID,
		transactionID: mv.TransactionID,
		refID:         mv.ItemID,
		status:        string(mv.Direction),
		occurredAt:    mv.CreatedAt,
		body:          mv,
	}
}

func assetDoc(a assets.FixedAsset) document {
	return document{
		collection:    collAssets,
		id:            a.ID,
		transactionID: a.TransactionID,
		occurredAt:    a.PurchaseDate,
		body:          a,
	}
}

func journalDoc(j accounting.JournalEntry) document {
	return document{
		collection:    collJournals,
		id:            j.ID,
		transactionID: j.LinkedTransactionID,
		refID:         j.SourceID,
		status:        string(j.Status),
		occurredAt:    j.Date,
		body:          j,
	}
}

func intentDoc(in posting.JournalIntent) document {
	return document{
		collection:    collIntents,
		id:            in.ID,
		transactionID: in.TransactionID,
		status:        string(in.Status),
		occurredAt:    in.NextAttemptAt,
		body:          in,
	}
}

func partyDoc(p ledger.Party) document {
	return document{
		collection: collParties,
		id:         ledger.PartyKey(p.Name),
		partyKey:   ledger.PartyKey(p.Name),
		body:       p,
	}
}

func (t *txView) InsertEntry(ctx context.Context, e ledger.LedgerEntry) error {
	if err := t.count(); err != nil {
		return err
	}
	err := insertDoc(ctx, t.q, entryDoc(e))
	if errors.Is(err, errDuplicate) {
		return fmt.Errorf("%w: %s", posting.ErrDuplicateTransaction, e.TransactionID)
	}
	return err
}

func (t *txView) GetEntry(ctx context.Context, transactionID string) (ledger.LedgerEntry, error) {
	e, found, err := getDoc[ledger.LedgerEntry](ctx, t.q, collEntries, transactionID, true)
	if err != nil {
		return e, err
	}
	if !found {
		return e, fmt.Errorf("%w: %s", ledger.ErrEntryNotFound, transactionID)
	}
	return e, nil
}

func (t *txView) UpdateEntry(ctx context.Context, e ledger.LedgerEntry) error {
	if err := t.count(); err != nil {
		return err
	}
	ok, err := updateDoc(ctx, t.q, entryDoc(e))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ledger.ErrEntryNotFound, e.TransactionID)
	}
	return nil
}

func (t *txView) SettleEntry(ctx context.Context, transactionID string, amount decimal.Decimal) (ledger.LedgerEntry, error) {
	if err := t.count(); err != nil {
		return ledger.LedgerEntry{}, err
	}
	e, err := t.GetEntry(ctx, transactionID)
	if err != nil {
		return ledger.LedgerEntry{}, err
	}
	updated, err := ledger.Settle(e, amount)
	if err != nil {
		return ledger.LedgerEntry{}, err
	}
	if _, err := updateDoc(ctx, t.q, entryDoc(updated)); err != nil {
		return ledger.LedgerEntry{}, err
	}
	return updated, nil
}

func (t *txView) DeleteEntry(ctx context.Context, transactionID string) error {
	if err := t.count(); err != nil {
		return err
	}
	return deleteDoc(ctx, t.q, collEntries, transactionID)
}

func (t *txView) ListEntriesBySource(ctx context.Context, sourceTransactionID string) ([]ledger.LedgerEntry, error) {
	return listDocs[ledger.LedgerEntry](ctx, t.q, `SELECT body FROM fb_documents
		WHERE collection = $1 AND ref_id = $2
		ORDER BY occurred_at, id FOR UPDATE`, collEntries, sourceTransactionID)
}

func (t *txView) InsertPayment(ctx context.Context, p ledger.Payment) error {
	if err := t.count(); err != nil {
		return err
	}
	return upsertDoc(ctx, t.q, paymentDoc(p))
}

func (t *txView) GetPayment(ctx context.Context, id string) (ledger.Payment, error) {
	p, found, err := getDoc[ledger.Payment](ctx, t.q, collPayments, id, false)
	if err != nil {
		return p, err
	}
	if !found {
		return p, fmt.Errorf("%w: %s", ledger.ErrPaymentNotFound, id)
	}
	return p, nil
}

func (t *txView) ListPaymentsByTransaction(ctx context.Context, transactionID string) ([]ledger.Payment, error) {
	return listDocs[ledger.Payment](ctx, t.q, `SELECT body FROM fb_documents
		WHERE collection = $1 AND transaction_id = $2
		ORDER BY occurred_at, id`, collPayments, transactionID)
}

func (t *txView) DeletePayment(ctx context.Context, id string) error {
	if err := t.count(); err != nil {
		return err
	}
	return deleteDoc(ctx, t.q, collPayments, id)
}

func (t *txView) InsertCheque(ctx context.Context, ch cheques.Cheque) error {
	if err := t.count(); err != nil {
		return err
	}
	return upsertDoc(ctx, t.q, chequeDoc(ch))
}

func (t *txView) GetCheque(ctx context.Context, id string) (cheques.Cheque, error) {
	ch, found, err := getDoc[cheques.Cheque](ctx, t.q, collCheques, id, true)
	if err != nil {
		return ch, err
	}
	if !found {
		return ch, fmt.Errorf("%w: %s", cheques.ErrChequeNotFound, id)
	}
	return ch, nil
}

func (t *txView) UpdateCheque(ctx context.Context, ch cheques.Cheque) error {
	if err := t.count(); err != nil {
		return err
	}
	ok, err := updateDoc(ctx, t.q, chequeDoc(ch))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", cheques.ErrChequeNotFound, ch.ID)
	}
	return nil
}

func (t *txView) ListChequesByTransaction(ctx context.Context, transactionID string) ([]cheques.Cheque, error) {
	return listDocs[cheques.Cheque](ctx, t.q, `SELECT body FROM fb_documents
		WHERE collection = $1 AND transaction_id = $2
		ORDER BY id FOR UPDATE`, collCheques, transactionID)
}

func (t *txView) DeleteCheque(ctx context.Context, id string) error {
	if err := t.count(); err != nil {
		return err
	}
	return deleteDoc(ctx, t.q, collCheques, id)
}

func (t *txView) GetItemForUpdate(ctx context.Context, id string) (inventory.Item, error) {
	item, found, err := getDoc[inventory.Item](ctx, t.q, collItems, id, true)
	if err != nil {
		return item, err
	}
	if !found {
		return item, fmt.Errorf("%w: %s", inventory.ErrItemNotFound, id)
	}
	return item, nil
}

func (t *txView) PutItem(ctx context.Context, item inventory.Item) error {
	if err := t.count(); err != nil {
		return err
	}
	return upsertDoc(ctx, t.q, itemDoc(item))
}

func (t *txView) InsertMovement(ctx context.Context, mv inventory.Movement) error {
	if err := t.count(); err != nil {
		return err
	}
	return upsertDoc(ctx, t.q, movementDoc(mv))
}

func (t *txView) ListMovementsByTransaction(ctx context.Context, transactionID string) ([]inventory.Movement, error) {
	// Newest first, so undo runs in reverse order of application.
	return listDocs[inventory.Movement](ctx, t.q, `SELECT body FROM fb_documents
		WHERE collection = $1 AND transaction_id = $2
		ORDER BY occurred_at DESC, id DESC`, collMovements, transactionID)
}

func (t *txView) DeleteMovement(ctx context.Context, id string) error {
	if err := t.count(); err != nil {
		return err
	}
	return deleteDoc(ctx, t.q, collMovements, id)
}

func (t *txView) InsertAsset(ctx context.Context, a assets.FixedAsset) error {
	if err := t.count(); err != nil {
		return err
	}
	return upsertDoc(ctx, t.q, assetDoc(a))
}

func (t *txView) GetAsset(ctx context.Context, id string) (assets.FixedAsset, error) {
	a, found, err := getDoc[assets.FixedAsset](ctx, t.q, collAssets, id, true)
	if err != nil {
		return a, err
	}
	if !found {
		return a, fmt.Errorf("%w: %s", assets.ErrAssetNotFound, id)
	}
	return a, nil
}

func (t *txView) UpdateAsset(ctx context.Context, a assets.FixedAsset) error {
	if err := t.count(); err != nil {
		return err
	}
	ok, err := updateDoc(ctx, t.q, assetDoc(a))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", assets.ErrAssetNotFound, a.ID)
	}
	return nil
}

func (t *txView) ListAssetsByTransaction(ctx context.Context, transactionID string) ([]assets.FixedAsset, error) {
	return listDocs[assets.FixedAsset](ctx, t.q, `SELECT body FROM fb_documents
		WHERE collection = $1 AND transaction_id = $2
		ORDER BY id`, collAssets, transactionID)
}

func (t *txView) DeleteAsset(ctx context.Context, id string) error {
	if err := t.count(); err != nil {
		return err
	}
	return deleteDoc(ctx, t.q, collAssets, id)
}

func (t *txView) InsertJournal(ctx context.Context, j accounting.JournalEntry) error {
	if err := t.count(); err != nil {
		return err
	}
	err := insertDoc(ctx, t.q, journalDoc(j))
	if errors.Is(err, errDuplicate) {
		return fmt.Errorf("%w: %s", accounting.ErrSourceAlreadyLinked, j.ID)
	}
	return err
}

func (t *txView) GetJournal(ctx context.Context, id string) (accounting.JournalEntry, error) {
	j, found, err := getDoc[accounting.JournalEntry](ctx, t.q, collJournals, id, true)
	if err != nil {
		return j, err
	}
	if !found {
		return j, fmt.Errorf("%w: %s", accounting.ErrJournalNotFound, id)
	}
	return j, nil
}

func (t *txView) UpdateJournal(ctx context.Context, j accounting.JournalEntry) error {
	if err := t.count(); err != nil {
		return err
	}
	ok, err := updateDoc(ctx, t.q, journalDoc(j))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", accounting.ErrJournalNotFound, j.ID)
	}
	return nil
}

func (t *txView) ListJournalsByTransaction(ctx context.Context, transactionID string) ([]accounting.JournalEntry, error) {
	return listDocs[accounting.JournalEntry](ctx, t.q, `SELECT body FROM fb_documents
		WHERE collection = $1 AND transaction_id = $2
		ORDER BY occurred_at, id FOR UPDATE`, collJournals, transactionID)
}

func (t *txView) InsertIntent(ctx context.Context, in posting.JournalIntent) error {
	if err := t.count(); err != nil {
		return err
	}
	return upsertDoc(ctx, t.q, intentDoc(in))
}

func (t *txView) GetIntent(ctx context.Context, id string) (posting.JournalIntent, error) {
	in, found, err := getDoc[posting.JournalIntent](ctx, t.q, collIntents, id, true)
	if err != nil {
		return in, err
	}
	if !found {
		return in, fmt.Errorf("%w: %s", posting.ErrIntentNotFound, id)
	}
	return in, nil
}

func (t *txView) UpdateIntent(ctx context.Context, in posting.JournalIntent) error {
	if err := t.count(); err != nil {
		return err
	}
	return upsertDoc(ctx, t.q, intentDoc(in))
}

func (t *txView) ListIntentsByTransaction(ctx context.Context, transactionID string) ([]posting.JournalIntent, error) {
	return listDocs[posting.JournalIntent](ctx, t.q, `SELECT body FROM fb_documents
		WHERE collection = $1 AND transaction_id = $2
		ORDER BY body->>'createdAt', id`, collIntents, transactionID)
}

func (t *txView) InsertDeadLetter(ctx context.Context, dl posting.DeadLetter) error {
	if err := t.count(); err != nil {
		return err
	}
	if dl.ID == "" {
		dl.ID = uuid.NewString()
	}
	return insertDeadLetter(ctx, t.q, dl)
}

var _ posting.Tx = (*txView)(nil)
