package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/factorybooks/factorybooks/internal/accounting"
	"github.com/factorybooks/factorybooks/internal/assets"
	"github.com/factorybooks/factorybooks/internal/cheques"
	"github.com/factorybooks/factorybooks/internal/inventory"
	"github.com/factorybooks/factorybooks/internal/ledger"
	"github.com/factorybooks/factorybooks/internal/posting"
)

// GetParty returns the stored party record.
func (s *Store) GetParty(_ context.Context, name string) (ledger.Party, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.data.parties[ledger.PartyKey(name)]
	if !ok {
		return ledger.Party{}, fmt.Errorf("%w: %s", ledger.ErrPartyNotFound, name)
	}
	return p, nil
}

// PutParty creates or replaces a party record.
func (s *Store) PutParty(_ context.Context, p ledger.Party) error {
	key := ledger.PartyKey(p.Name)
	if key == "" {
		return ledger.ErrPartyRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.parties[key] = p
	return nil
}

// ListParties returns every party ordered by name.
func (s *Store) ListParties(_ context.Context) ([]ledger.Party, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Party, 0, len(s.data.parties))
	for _, p := range s.data.parties {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return ledger.PartyKey(out[i].Name) < ledger.PartyKey(out[j].Name) })
	return out, nil
}

// ListEntries returns every ledger entry in date order.
func (s *Store) ListEntries(_ context.Context) ([]ledger.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.LedgerEntry, 0, len(s.data.entries))
	for _, e := range s.data.entries {
		out = append(out, e)
	}
	sortEntries(out)
	return out, nil
}

// ListEntriesByParty returns the entries of one counterparty.
func (s *Store) ListEntriesByParty(_ context.Context, name string) ([]ledger.LedgerEntry, error) {
	key := ledger.PartyKey(name)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ledger.LedgerEntry
	for _, e := range s.data.entries {
		if ledger.PartyKey(e.AssociatedParty) == key {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out, nil
}

// ListPaymentsByParty returns the payments of one counterparty.
func (s *Store) ListPaymentsByParty(_ context.Context, name string) ([]ledger.Payment, error) {
	key := ledger.PartyKey(name)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ledger.Payment
	for _, p := range s.data.payments {
		if ledger.PartyKey(p.AssociatedParty) == key {
			out = append(out, p)
		}
	}
	sortPayments(out)
	return out, nil
}

// ListChequesByParty returns the cheques drawn by or for one counterparty.
func (s *Store) ListChequesByParty(_ context.Context, name string) ([]cheques.Cheque, error) {
	key := ledger.PartyKey(name)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []cheques.Cheque
	for _, ch := range s.data.cheques {
		if ledger.PartyKey(ch.AssociatedParty) == key {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

// GetCheque returns one cheque.
func (s *Store) GetCheque(_ context.Context, id string) (cheques.Cheque, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.data.cheques[id]
	if !ok {
		return cheques.Cheque{}, fmt.Errorf("%w: %s", cheques.ErrChequeNotFound, id)
	}
	return ch, nil
}

// GetEntry returns one ledger entry.
func (s *Store) GetEntry(_ context.Context, transactionID string) (ledger.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data.entries[transactionID]
	if !ok {
		return ledger.LedgerEntry{}, fmt.Errorf("%w: %s", ledger.ErrEntryNotFound, transactionID)
	}
	return e, nil
}

// ListJournals returns journals dated on or before until. A zero until
// returns all of them.
func (s *Store) ListJournals(_ context.Context, until time.Time) ([]accounting.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]accounting.JournalEntry, 0, len(s.data.journals))
	for _, j := range s.data.journals {
		if !until.IsZero() && j.Date.After(until) {
			continue
		}
		out = append(out, j)
	}
	sortJournals(out)
	return out, nil
}

// ListItems returns the stock items ordered by name.
func (s *Store) ListItems(_ context.Context) ([]inventory.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]inventory.Item, 0, len(s.data.items))
	for _, item := range s.data.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetItem returns one stock item.
func (s *Store) GetItem(_ context.Context, id string) (inventory.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.data.items[id]
	if !ok {
		return inventory.Item{}, fmt.Errorf("%w: %s", inventory.ErrItemNotFound, id)
	}
	return item, nil
}

// ListMovements returns the movements of one item, oldest first.
func (s *Store) ListMovements(_ context.Context, itemID string) ([]inventory.Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []inventory.Movement
	for _, mv := range s.data.movements {
		if mv.ItemID == itemID {
			out = append(out, mv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListAssets implements posting.Store.
func (s *Store) ListAssets(_ context.Context) ([]assets.FixedAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]assets.FixedAsset, 0, len(s.data.assets))
	for _, a := range s.data.assets {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListDueIntents implements posting.Store.
func (s *Store) ListDueIntents(_ context.Context, now time.Time, limit int) ([]posting.JournalIntent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []posting.JournalIntent
	for _, in := range s.data.intents {
		if in.Status.Terminal() || in.NextAttemptAt.After(now) {
			continue
		}
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextAttemptAt.Before(out[j].NextAttemptAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetIntent returns one intent.
func (s *Store) GetIntent(_ context.Context, id string) (posting.JournalIntent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	in, ok := s.data.intents[id]
	if !ok {
		return posting.JournalIntent{}, fmt.Errorf("%w: %s", posting.ErrIntentNotFound, id)
	}
	return in, nil
}

// ListDeadLetters implements posting.Store, newest first.
func (s *Store) ListDeadLetters(_ context.Context, limit int) ([]posting.DeadLetter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.data.deadLetters)
	if limit > 0 && n > limit {
		n = limit
	}
	out := make([]posting.DeadLetter, 0, n)
	for i := len(s.data.deadLetters) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.data.deadLetters[i])
	}
	return out, nil
}
