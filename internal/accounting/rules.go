package accounting

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/factorybooks/factorybooks/internal/ledger"
)

type builder struct {
	j JournalEntry
}

func draft(kind SourceKind, sourceID, linkedTx, memo string, date time.Time, actor string) *builder {
	return &builder{j: JournalEntry{
		ID:                  JournalID(kind, sourceID),
		LinkedTransactionID: linkedTx,
		SourceKind:          kind,
		SourceID:            sourceID,
		Memo:                memo,
		Status:              JournalStatusDraft,
		Date:                date,
		CreatedBy:           actor,
	}}
}

func (b *builder) debit(code string, amount decimal.Decimal) *builder {
	if amount.IsPositive() {
		b.j.Lines = append(b.j.Lines, JournalLine{AccountCode: code, Debit: amount, Credit: decimal.Zero})
	}
	return b
}

func (b *builder) credit(code string, amount decimal.Decimal) *builder {
	if amount.IsPositive() {
		b.j.Lines = append(b.j.Lines, JournalLine{AccountCode: code, Debit: decimal.Zero, Credit: amount})
	}
	return b
}

func (b *builder) build() (JournalEntry, error) {
	if err := b.j.Validate(); err != nil {
		return JournalEntry{}, fmt.Errorf("accounting: %s %s: %w", b.j.SourceKind, b.j.SourceID, err)
	}
	return b.j, nil
}

// counterAccount is where a transaction with a named counterparty waits to
// be settled. Without a counterparty it is a cash transaction.
func counterAccount(party string, receivable bool) string {
	if ledger.PartyKey(party) == "" {
		return AccountCash
	}
	if receivable {
		return AccountReceivable
	}
	return AccountPayable
}

// CashAccount picks the cash account a payment method moves.
func CashAccount(method ledger.PaymentMethod) string {
	switch method {
	case ledger.MethodBank, ledger.MethodCheque:
		return AccountBank
	default:
		return AccountCash
	}
}

// EntryJournal maps a classified ledger entry to a draft journal. ok is
// false for entries that carry no journal of their own (advances synthesized
// from an allocation, whose journal belongs to the payment).
func EntryJournal(e ledger.LedgerEntry, c ledger.Classification) (JournalEntry, bool, error) {
	if e.LinkedPaymentID != "" {
		return JournalEntry{}, false, nil
	}
	if e.IsAutoGenerated && e.SourceTransactionID != "" {
		j, err := COGSJournal(e)
		return j, err == nil, err
	}
	b := draft(SourceEntry, e.TransactionID, e.TransactionID, e.Description, e.Date, e.CreatedBy)
	amount := e.Amount
	switch c.Class {
	case ledger.ClassOrdinary:
		if c.Income {
			recv := counterAccount(e.AssociatedParty, true)
			revenue := AccountSalesRevenue
			if normalizedCategory(e.Category) == ledger.CategoryOtherIncome {
				revenue = AccountOtherIncome
			}
			b.debit(recv, amount).credit(revenue, amount).
				debit(AccountSalesDiscounts, e.TotalDiscount).credit(recv, e.TotalDiscount).
				debit(AccountBadDebts, e.WriteoffAmount).credit(recv, e.WriteoffAmount)
			break
		}
		pay := counterAccount(e.AssociatedParty, false)
		stocked := e.Capitalised()
		b.debit(AccountInventory, stocked).debit(expenseAccount(e.Category), amount.Sub(stocked)).credit(pay, amount).
			debit(pay, e.TotalDiscount).credit(AccountDiscountsReceived, e.TotalDiscount).
			debit(pay, e.WriteoffAmount).credit(AccountPayableWriteoffs, e.WriteoffAmount)
	case ledger.ClassCapitalExpenditure:
		pay := counterAccount(e.AssociatedParty, false)
		b.debit(AccountFixedAssets, amount).credit(pay, amount).
			debit(pay, e.TotalDiscount).credit(AccountFixedAssets, e.TotalDiscount).
			debit(pay, e.WriteoffAmount).credit(AccountPayableWriteoffs, e.WriteoffAmount)
	case ledger.ClassLoanGiven:
		b.debit(AccountLoansReceivable, amount).credit(AccountCash, amount)
	case ledger.ClassLoanReceived:
		b.debit(AccountCash, amount).credit(AccountLoansPayable, amount)
	case ledger.ClassLoanRepaymentReceivable:
		b.debit(AccountCash, amount).credit(AccountLoansReceivable, amount)
	case ledger.ClassLoanRepaymentPayable:
		b.debit(AccountLoansPayable, amount).credit(AccountCash, amount)
	case ledger.ClassAdvanceCustomer:
		b.debit(AccountCash, amount).credit(AccountCustomerAdvances, amount)
	case ledger.ClassAdvanceSupplier:
		b.debit(AccountSupplierAdvances, amount).credit(AccountCash, amount)
	case ledger.ClassEquity:
		if c.Drawing {
			b.debit(AccountOwnerDrawings, amount).credit(AccountCash, amount)
		} else {
			b.debit(AccountCash, amount).credit(AccountOwnerCapital, amount)
		}
	default:
		return JournalEntry{}, false, fmt.Errorf("accounting: no posting rule for %s", c.Class)
	}
	j, err := b.build()
	return j, err == nil, err
}

func expenseAccount(category string) string {
	switch normalizedCategory(category) {
	case ledger.CategoryCOGS:
		return AccountCOGS
	default:
		return AccountOperatingExpenses
	}
}

func normalizedCategory(category string) string {
	return ledger.Normalize(category)
}

// PaymentJournal maps a cash payment to a draft journal. linked is the
// classification of the entry the payment settles, if any. ok is false for
// payments without a journal of their own: endorsement halves (see
// EndorsementJournal) and payments absorbed by an advance.
func PaymentJournal(p ledger.Payment, linked *ledger.Classification) (JournalEntry, bool, error) {
	if p.NoCashMovement || !p.Amount.IsPositive() {
		return JournalEntry{}, false, nil
	}
	if linked != nil && linked.Class.IsAdvance() {
		return JournalEntry{}, false, nil
	}
	receivable := p.Type == ledger.PaymentReceipt
	if linked != nil {
		receivable = linked.Class == ledger.ClassOrdinary && linked.Income
	}
	counter := AccountPayable
	if receivable {
		counter = AccountReceivable
	}
	cash := CashAccount(p.Method)
	b := draft(SourcePayment, p.ID, p.LinkedTransactionID, string(p.Type), p.Date, p.CreatedBy)
	if p.Type == ledger.PaymentReceipt {
		b.debit(cash, p.Amount).credit(counter, p.Amount)
	} else {
		b.debit(counter, p.Amount).credit(cash, p.Amount)
	}
	j, err := b.build()
	return j, err == nil, err
}

// EndorsementJournal books the transfer of a cheque claim: what the drawer
// owed us now settles what we owed the endorsee.
func EndorsementJournal(chequeID, linkedTx string, amount decimal.Decimal, date time.Time, actor string) (JournalEntry, error) {
	return draft(SourceEndorsement, chequeID, linkedTx, "cheque endorsement", date, actor).
		debit(AccountPayable, amount).
		credit(AccountReceivable, amount).
		build()
}

// AllocationJournal books one payment spread over several entries. The part
// not allocated lands on the advance account of the payment's direction.
func AllocationJournal(p ledger.Payment, allocated, excess decimal.Decimal) (JournalEntry, error) {
	cash := CashAccount(p.Method)
	b := draft(SourceAllocation, p.ID, p.LinkedTransactionID, "payment allocation", p.Date, p.CreatedBy)
	if p.Type == ledger.PaymentReceipt {
		b.debit(cash, p.Amount).credit(AccountReceivable, allocated).credit(AccountCustomerAdvances, excess)
	} else {
		b.debit(AccountPayable, allocated).debit(AccountSupplierAdvances, excess).credit(cash, p.Amount)
	}
	return b.build()
}

// COGSJournal moves the cost of issued stock out of inventory.
func COGSJournal(cogs ledger.LedgerEntry) (JournalEntry, error) {
	return draft(SourceCOGS, cogs.TransactionID, cogs.SourceTransactionID, cogs.Description, cogs.Date, cogs.CreatedBy).
		debit(AccountCOGS, cogs.Amount).
		credit(AccountInventory, cogs.Amount).
		build()
}

// DepreciationJournal books a depreciation run for one asset.
func DepreciationJournal(runID, assetTx string, amount decimal.Decimal, date time.Time, actor string) (JournalEntry, error) {
	return draft(SourceDepreciation, runID, assetTx, "depreciation", date, actor).
		debit(AccountDepreciationExpense, amount).
		credit(AccountAccumulatedDepreciation, amount).
		build()
}
