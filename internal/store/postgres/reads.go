package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/factorybooks/factorybooks/internal/accounting"
	"github.com/factorybooks/factorybooks/internal/assets"
	"github.com/factorybooks/factorybooks/internal/cheques"
	"github.com/factorybooks/factorybooks/internal/inventory"
	"github.com/factorybooks/factorybooks/internal/ledger"
	"github.com/factorybooks/factorybooks/internal/posting"
)

// GetParty returns the stored party record.
func (s *Store) GetParty(ctx context.Context, name string) (ledger.Party, error) {
	p, found, err := getDoc[ledger.Party](ctx, s.pool, collParties, ledger.PartyKey(name), false)
	if err != nil {
		return p, err
	}
	if !found {
		return p, fmt.Errorf("%w: %s", ledger.ErrPartyNotFound, name)
	}
	return p, nil
}

// PutParty creates or replaces a party record.
func (s *Store) PutParty(ctx context.Context, p ledger.Party) error {
	if ledger.PartyKey(p.Name) == "" {
		return ledger.ErrPartyRequired
	}
	return upsertDoc(ctx, s.pool, partyDoc(p))
}

// ListParties returns every party ordered by name.
func (s *Store) ListParties(ctx context.Context) ([]ledger.Party, error) {
	return listDocs[ledger.Party](ctx, s.pool, `SELECT body FROM fb_documents
		WHERE collection = $1 ORDER BY id`, collParties)
}

// ListEntries returns every ledger entry in date order.
func (s *Store) ListEntries(ctx context.Context) ([]ledger.LedgerEntry, error) {
	return listDocs[ledger.LedgerEntry](ctx, s.pool, `SELECT body FROM fb_documents
		WHERE collection = $1 ORDER BY occurred_at, id`, collEntries)
}

// ListEntriesByParty returns the entries of one counterparty.
func (s *Store) ListEntriesByParty(ctx context.Context, name string) ([]ledger.LedgerEntry, error) {
	return listDocs[ledger.LedgerEntry](ctx, s.pool, `SELECT body FROM fb_documents
		WHERE collection = $1 AND party_key = $2 ORDER BY occurred_at, id`, collEntries, ledger.PartyKey(name))
}

// ListPaymentsByParty returns the payments of one counterparty.
func (s *Store) ListPaymentsByParty(ctx context.Context, name string) ([]ledger.Payment, error) {
	return listDocs[ledger.Payment](ctx, s.pool, `SELECT body FROM fb_documents
		WHERE collection = $1 AND party_key = $2 ORDER BY occurred_at, id`, collPayments, ledger.PartyKey(name))
}

// ListChequesByParty returns the cheques drawn by or for one counterparty.
func (s *Store) ListChequesByParty(ctx context.Context, name string) ([]cheques.Cheque, error) {
	return listDocs[cheques.Cheque](ctx, s.pool, `SELECT body FROM fb_documents
		WHERE collection = $1 AND party_key = $2 ORDER BY occurred_at, id`, collCheques, ledger.PartyKey(name))
}

// GetCheque returns one cheque.
func (s *Store) GetCheque(ctx context.Context, id string) (cheques.Cheque, error) {
	ch, found, err := getDoc[cheques.Cheque](ctx, s.pool, collCheques, id, false)
	if err != nil {
		return ch, err
	}
	if !found {
		return ch, fmt.Errorf("%w: %s", cheques.ErrChequeNotFound, id)
	}
	return ch, nil
}

// GetEntry returns one ledger entry.
func (s *Store) GetEntry(ctx context.Context, transactionID string) (ledger.LedgerEntry, error) {
	e, found, err := getDoc[ledger.LedgerEntry](ctx, s.pool, collEntries, transactionID, false)
	if err != nil {
		return e, err
	}
	if !found {
		return e, fmt.Errorf("%w: %s", ledger.ErrEntryNotFound, transactionID)
	}
	return e, nil
}

// ListJournals returns journals dated on or before until. A zero until
// returns all of them.
func (s *Store) ListJournals(ctx context.Context, until time.Time) ([]accounting.JournalEntry, error) {
	if until.IsZero() {
		return listDocs[accounting.JournalEntry](ctx, s.pool, `SELECT body FROM fb_documents
			WHERE collection = $1 ORDER BY occurred_at, id`, collJournals)
	}
	return listDocs[accounting.JournalEntry](ctx, s.pool, `SELECT body FROM fb_documents
		WHERE collection = $1 AND occurred_at <= $2 ORDER BY occurred_at, id`, collJournals, until.UTC())
}

// ListItems returns the stock items ordered by name.
func (s *Store) ListItems(ctx context.Context) ([]inventory.Item, error) {
	return listDocs[inventory.Item](ctx, s.pool, `SELECT body FROM fb_documents
		WHERE collection = $1 ORDER BY ref_id, id`, collItems)
}

// GetItem returns one stock item.
func (s *Store) GetItem(ctx context.Context, id string) (inventory.Item, error) {
	item, found, err := getDoc[inventory.Item](ctx, s.pool, collItems, id, false)
	if err != nil {
		return item, err
	}
	if !found {
		return item, fmt.Errorf("%w: %s", inventory.ErrItemNotFound, id)
	}
	return item, nil
}

// ListMovements returns the movements of one item, oldest first.
func (s *Store) ListMovements(ctx context.Context, itemID string) ([]inventory.Movement, error) {
	return listDocs[inventory.Movement](ctx, s.pool, `SELECT body FROM fb_documents
		WHERE collection = $1 AND ref_id = $2 ORDER BY occurred_at, id`, collMovements, itemID)
}

// ListAssets implements posting.Store.
func (s *Store) ListAssets(ctx context.Context) ([]assets.FixedAsset, error) {
	return listDocs[assets.FixedAsset](ctx, s.pool, `SELECT body FROM fb_documents
		WHERE collection = $1 ORDER BY id`, collAssets)
}

// ListDueIntents implements posting.Store.
func (s *Store) ListDueIntents(ctx context.Context, now time.Time, limit int) ([]posting.JournalIntent, error) {
	if limit <= 0 {
		limit = 100
	}
	return listDocs[posting.JournalIntent](ctx, s.pool, `SELECT body FROM fb_documents
		WHERE collection = $1 AND status NOT IN ($2, $3) AND occurred_at <= $4
		ORDER BY occurred_at, id LIMIT $5`,
		collIntents, string(posting.IntentSucceeded), string(posting.IntentDead), now.UTC(), limit)
}

// GetIntent returns one intent.
func (s *Store) GetIntent(ctx context.Context, id string) (posting.JournalIntent, error) {
	in, found, err := getDoc[posting.JournalIntent](ctx, s.pool, collIntents, id, false)
	if err != nil {
		return in, err
	}
	if !found {
		return in, fmt.Errorf("%w: %s", posting.ErrIntentNotFound, id)
	}
	return in, nil
}

// ListDeadLetters implements posting.Store, newest first.
func (s *Store) ListDeadLetters(ctx context.Context, limit int) ([]posting.DeadLetter, error) {
	if limit <= 0 {
		limit = 100
	}
	return listDocs[posting.DeadLetter](ctx, s.pool, `SELECT body FROM fb_dead_letters
		ORDER BY seq DESC LIMIT $1`, limit)
}

func insertDeadLetter(ctx context.Context, q dbtx, dl posting.DeadLetter) error {
	raw, err := json.Marshal(dl)
	if err != nil {
		return storageErr("encode dead letter", err)
	}
	// The same failure recorded twice keeps the first copy.
	_, err = q.Exec(ctx, `INSERT INTO fb_dead_letters (id, operation, transaction_id, body, created_at)
		VALUES ($1, $2, $3, $4, $5) ON CONFLICT (id) DO NOTHING`,
		dl.ID, dl.Operation, dl.TransactionID, raw, occurred(dl.CreatedAt))
	if err != nil {
		return storageErr("insert dead letter", err)
	}
	return nil
}
