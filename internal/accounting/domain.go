package accounting

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/factorybooks/factorybooks/internal/money"
	"github.com/factorybooks/factorybooks/internal/shared"
)

// JournalStatus enumerates journal lifecycle values.
type JournalStatus string

const (
	JournalStatusDraft    JournalStatus = "draft"
	JournalStatusPosted   JournalStatus = "posted"
	JournalStatusReversed JournalStatus = "reversed"
)

// SourceKind names the document a journal was generated from.
type SourceKind string

const (
	SourceEntry        SourceKind = "entry"
	SourcePayment      SourceKind = "payment"
	SourceCOGS         SourceKind = "cogs"
	SourceEndorsement  SourceKind = "endorsement"
	SourceAllocation   SourceKind = "allocation"
	SourceDepreciation SourceKind = "depreciation"
	SourceReversal     SourceKind = "reversal"
)

var (
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = fmt.Errorf("%w: accounting: journal lines must balance", shared.ErrValidation)
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = fmt.Errorf("%w: accounting: journal requires at least two lines", shared.ErrValidation)
	// ErrInvalidLine indicates a malformed journal line.
	ErrInvalidLine = fmt.Errorf("%w: accounting: invalid journal line", shared.ErrValidation)
	// ErrSourceAlreadyLinked indicates the journal for this source already exists.
	ErrSourceAlreadyLinked = fmt.Errorf("%w: accounting: source already linked", shared.ErrConflict)
	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = fmt.Errorf("%w: accounting: journal entry", shared.ErrNotFound)
	// ErrInvalidStatus indicates action can't proceed.
	ErrInvalidStatus = errors.New("accounting: invalid status transition")
)

// journalNamespace scopes deterministic journal ids.
var journalNamespace = uuid.MustParse("6f1c1e4e-3b1a-4c55-9d59-0c7f43a8e2b1")

// JournalID derives a stable id for the journal generated from a source
// document, so replays write the same id.
func JournalID(kind SourceKind, sourceID string) string {
	return uuid.NewSHA1(journalNamespace, []byte(string(kind)+":"+sourceID)).String()
}

// JournalLine stores debit or credit amount for an account.
type JournalLine struct {
	AccountCode string          `json:"accountCode"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Memo        string          `json:"memo,omitempty"`
}

// JournalEntry is a double-entry record.
type JournalEntry struct {
	ID                  string        `json:"id"`
	Lines               []JournalLine `json:"lines"`
	LinkedTransactionID string        `json:"linkedTransactionId,omitempty"`
	SourceKind          SourceKind    `json:"sourceKind"`
	SourceID            string        `json:"sourceId"`
	Memo                string        `json:"memo,omitempty"`
	Status              JournalStatus `json:"status"`
	ReversesEntryID     string        `json:"reversesEntryId,omitempty"`
	ReversedByID        string        `json:"reversedById,omitempty"`
	Date                time.Time     `json:"date"`
	PostedAt            *time.Time    `json:"postedAt,omitempty"`
	CreatedBy           string        `json:"createdBy,omitempty"`
}

// Totals returns the debit and credit sums.
func (j JournalEntry) Totals() (debit, credit decimal.Decimal) {
	for _, l := range j.Lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	return debit, credit
}

// Validate ensures the journal could be posted.
func (j JournalEntry) Validate() error {
	if len(j.Lines) < 2 {
		return ErrTooFewLines
	}
	for idx, line := range j.Lines {
		if line.AccountCode == "" {
			return fmt.Errorf("%w: line %d missing account", ErrInvalidLine, idx)
		}
		if _, ok := LookupAccount(line.AccountCode); !ok {
			return fmt.Errorf("%w: line %d unknown account %s", ErrInvalidLine, idx, line.AccountCode)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("%w: line %d negative amount", ErrInvalidLine, idx)
		}
		if line.Debit.IsPositive() && line.Credit.IsPositive() {
			return fmt.Errorf("%w: line %d cannot be both debit and credit", ErrInvalidLine, idx)
		}
		if line.Debit.IsZero() && line.Credit.IsZero() {
			return fmt.Errorf("%w: line %d is empty", ErrInvalidLine, idx)
		}
	}
	debit, credit := j.Totals()
	if !money.NearlyEqual(debit, credit) {
		return fmt.Errorf("%w: debit %s credit %s", ErrUnbalanced, debit, credit)
	}
	return nil
}

// Post validates a draft and marks it posted. An invalid journal stays draft.
func Post(j JournalEntry, now time.Time) (JournalEntry, error) {
	if j.Status != JournalStatusDraft {
		return j, fmt.Errorf("%w: %s is %s", ErrInvalidStatus, j.ID, j.Status)
	}
	if err := j.Validate(); err != nil {
		return j, err
	}
	j.Status = JournalStatusPosted
	j.PostedAt = &now
	return j, nil
}

// Reverse builds a posted reversal with swapped lines and marks the
// original reversed. Both must be persisted together.
func Reverse(original JournalEntry, now time.Time, actor string) (JournalEntry, JournalEntry, error) {
	if original.Status != JournalStatusPosted {
		return original, JournalEntry{}, fmt.Errorf("%w: %s is %s", ErrInvalidStatus, original.ID, original.Status)
	}
	reversal := JournalEntry{
		ID:                  JournalID(SourceReversal, original.ID),
		Lines:               reverseLines(original.Lines),
		LinkedTransactionID: original.LinkedTransactionID,
		SourceKind:          SourceReversal,
		SourceID:            original.ID,
		Memo:                "Reversal of " + original.ID,
		Status:              JournalStatusDraft,
		ReversesEntryID:     original.ID,
		Date:                now,
		CreatedBy:           actor,
	}
	reversal, err := Post(reversal, now)
	if err != nil {
		return original, JournalEntry{}, err
	}
	original.Status = JournalStatusReversed
	original.ReversedByID = reversal.ID
	return original, reversal, nil
}

func reverseLines(lines []JournalLine) []JournalLine {
	result := make([]JournalLine, len(lines))
	for i, line := range lines {
		result[i] = JournalLine{
			AccountCode: line.AccountCode,
			Debit:       line.Credit,
			Credit:      line.Debit,
			Memo:        line.Memo,
		}
	}
	return result
}
