package posting_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/factorybooks/factorybooks/internal/accounting"
	"github.com/factorybooks/factorybooks/internal/assets"
	"github.com/factorybooks/factorybooks/internal/cheques"
	"github.com/factorybooks/factorybooks/internal/inventory"
	"github.com/factorybooks/factorybooks/internal/ledger"
	"github.com/factorybooks/factorybooks/internal/posting"
	"github.com/factorybooks/factorybooks/internal/shared"
	"github.com/factorybooks/factorybooks/internal/store/memory"
)

var (
	clerk   = shared.Actor{ID: "clerk-1", Email: "clerk@factory.test"}
	fixedAt = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

type harness struct {
	store *memory.Store
	audit *shared.MemoryAudit
	orch  *posting.Orchestrator
	now   time.Time
}

func newHarness(t *testing.T, maxDocs int, cfg posting.Config) *harness {
	t.Helper()
	h := &harness{
		store: memory.New(maxDocs),
		audit: &shared.MemoryAudit{},
		now:   fixedAt,
	}
	h.orch = posting.NewOrchestrator(h.store, h.audit, slog.New(slog.NewTextHandler(io.Discard, nil)), cfg)
	h.orch.WithNow(func() time.Time { return h.now })
	return h
}

func (h *harness) journals(t *testing.T) []accounting.JournalEntry {
	t.Helper()
	list, err := h.store.ListJournals(context.Background(), time.Time{})
	require.NoError(t, err)
	return list
}

// accountBalance nets debits minus credits on one account across all journals.
func (h *harness) accountBalance(t *testing.T, code string) decimal.Decimal {
	t.Helper()
	total := decimal.Zero
	for _, j := range h.journals(t) {
		for _, l := range j.Lines {
			if l.AccountCode == code {
				total = total.Add(l.Debit).Sub(l.Credit)
			}
		}
	}
	return total
}

func requireBalanced(t *testing.T, journals []accounting.JournalEntry) {
	t.Helper()
	for _, j := range journals {
		debit, credit := j.Totals()
		require.Truef(t, debit.Equal(credit), "journal %s (%s) debit %s credit %s", j.ID, j.SourceKind, debit, credit)
	}
}

func creditSale(txID, party, amount string) posting.Candidate {
	return posting.Candidate{Entry: ledger.LedgerEntry{
		TransactionID:   txID,
		Type:            ledger.TypeIncome,
		Category:        "Sales",
		Date:            fixedAt,
		Amount:          d(amount),
		IsARAPEntry:     true,
		AssociatedParty: party,
	}}
}

func creditPurchase(txID, party, amount string) posting.Candidate {
	return posting.Candidate{Entry: ledger.LedgerEntry{
		TransactionID:   txID,
		Type:            ledger.TypeExpense,
		Category:        "Raw materials",
		Date:            fixedAt,
		Amount:          d(amount),
		IsARAPEntry:     true,
		AssociatedParty: party,
	}}
}

func TestPostCreditSaleWithInitialPayment(t *testing.T) {
	h := newHarness(t, 0, posting.DefaultConfig())
	c := creditSale("TX-1", "Acme", "1000")
	c.InitialPayment = &posting.PaymentInput{Amount: d("400"), Method: ledger.MethodCash}

	res, err := h.orch.Post(context.Background(), clerk, c)
	require.NoError(t, err)
	require.Equal(t, ledger.PaymentPartial, res.Entry.PaymentStatus)
	require.True(t, res.Entry.RemainingBalance.Equal(d("600")))
	require.Len(t, res.Payments, 1)
	require.Equal(t, ledger.PaymentReceipt, res.Payments[0].Type)
	require.Empty(t, res.IntentID)

	journals := h.journals(t)
	require.Len(t, journals, 2)
	requireBalanced(t, journals)
	for _, j := range journals {
		require.Equal(t, accounting.JournalStatusPosted, j.Status)
		require.Equal(t, "TX-1", j.LinkedTransactionID)
	}
	require.True(t, h.accountBalance(t, accounting.AccountReceivable).Equal(d("600")))
	require.True(t, h.accountBalance(t, accounting.AccountCash).Equal(d("400")))

	logs := h.audit.Logs()
	require.Len(t, logs, 1)
	require.Equal(t, "posting.post", logs[0].Action)
	require.Equal(t, clerk.ID, logs[0].ActorID)
}

func TestPostGeneratesTransactionID(t *testing.T) {
	h := newHarness(t, 0, posting.DefaultConfig())
	res, err := h.orch.Post(context.Background(), clerk, creditSale("", "Acme", "10"))
	require.NoError(t, err)
	require.Regexp(t, `^TX-[0-9A-F-]{36}$`, res.Entry.TransactionID)
}

func TestPostRejectsInvalidCandidateBeforeWriting(t *testing.T) {
	cases := map[string]func(c *posting.Candidate){
		"payment on cash entry": func(c *posting.Candidate) {
			c.Entry.IsARAPEntry = false
			c.Entry.AssociatedParty = ""
			c.InitialPayment = &posting.PaymentInput{Amount: d("5"), Method: ledger.MethodCash}
		},
		"overpayment": func(c *posting.Candidate) {
			c.InitialPayment = &posting.PaymentInput{Amount: d("1000.01"), Method: ledger.MethodBank}
		},
		"cheque as initial payment": func(c *posting.Candidate) {
			c.InitialPayment = &posting.PaymentInput{Amount: d("5"), Method: ledger.MethodCheque}
		},
		"generated fields": func(c *posting.Candidate) {
			c.Entry.IsAutoGenerated = true
		},
		"asset on a sale": func(c *posting.Candidate) {
			c.Asset = &assets.Input{Name: "Lathe", UsefulLifeYears: 5}
		},
		"issue without item": func(c *posting.Candidate) {
			c.Inventory = []posting.InventoryLine{{Direction: inventory.MovementIssue, Quantity: d("1")}}
		},
		"outgoing cheque on a sale": func(c *posting.Candidate) {
			c.Cheque = &cheques.CreateInput{Direction: cheques.Outgoing, AccountingType: cheques.AccountingCashed, Amount: d("10")}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, 0, posting.DefaultConfig())
			c := creditSale("TX-1", "Acme", "1000")
			mutate(&c)
			_, err := h.orch.Post(context.Background(), clerk, c)
			require.ErrorIs(t, err, shared.ErrValidation)
			require.Equal(t, 0, h.store.Commits())
			require.Empty(t, h.audit.Logs())
		})
	}
}

func TestPostRollsBackWhenStockIsShort(t *testing.T) {
	h := newHarness(t, 0, posting.DefaultConfig())
	ctx := context.Background()
	purchase := posting.Candidate{
		Entry: ledger.LedgerEntry{TransactionID: "TX-P", Type: ledger.TypeExpense, Category: "Purchases", Amount: d("50")},
		Inventory: []posting.InventoryLine{{
			Name: "Steel bar", Unit: "pcs", Direction: inventory.MovementReceipt, Quantity: d("10"), UnitPrice: d("5"),
		}},
	}
	bought, err := h.orch.Post(ctx, clerk, purchase)
	require.NoError(t, err)
	itemID := bought.Items[0].ID

	sale := creditSale("TX-S", "Acme", "300")
	sale.Inventory = []posting.InventoryLine{
		{ItemID: itemID, Direction: inventory.MovementIssue, Quantity: d("4")},
		{ItemID: itemID, Direction: inventory.MovementIssue, Quantity: d("7")},
	}
	_, err = h.orch.Post(ctx, clerk, sale)
	require.ErrorIs(t, err, inventory.ErrInsufficientQuantity)

	_, err = h.store.GetEntry(ctx, "TX-S")
	require.ErrorIs(t, err, shared.ErrNotFound)
	item, err := h.store.GetItem(ctx, itemID)
	require.NoError(t, err)
	require.True(t, item.Quantity.Equal(d("10")))
}

func TestPostRejectsDuplicateTransactionID(t *testing.T) {
	h := newHarness(t, 0, posting.DefaultConfig())
	ctx := context.Background()
	_, err := h.orch.Post(ctx, clerk, creditSale("TX-1", "Acme", "10"))
	require.NoError(t, err)
	_, err = h.orch.Post(ctx, clerk, creditSale("TX-1", "Acme", "10"))
	require.ErrorIs(t, err, posting.ErrDuplicateTransaction)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestSettleWalksEntryToPaid(t *testing.T) {
	h := newHarness(t, 0, posting.DefaultConfig())
	ctx := context.Background()
	_, err := h.orch.Post(ctx, clerk, creditSale("TX-1", "Acme", "1000"))
	require.NoError(t, err)

	first, err := h.orch.Settle(ctx, clerk, "TX-1", posting.PaymentInput{Amount: d("400"), Method: ledger.MethodBank})
	require.NoError(t, err)
	require.Equal(t, ledger.PaymentPartial, first.Entry.PaymentStatus)
	require.True(t, first.Entry.RemainingBalance.Equal(d("600")))

	second, err := h.orch.Settle(ctx, clerk, "TX-1", posting.PaymentInput{Amount: d("600"), Method: ledger.MethodCash})
	require.NoError(t, err)
	require.Equal(t, ledger.PaymentPaid, second.Entry.PaymentStatus)
	require.True(t, second.Entry.RemainingBalance.IsZero())

	_, err = h.orch.Settle(ctx, clerk, "TX-1", posting.PaymentInput{Amount: d("1"), Method: ledger.MethodCash})
	require.ErrorIs(t, err, ledger.ErrOverpayment)

	requireBalanced(t, h.journals(t))
	require.True(t, h.accountBalance(t, accounting.AccountReceivable).IsZero())
	require.True(t, h.accountBalance(t, accounting.AccountBank).Equal(d("400")))
}

func TestSettleRejectsUntrackedEntry(t *testing.T) {
	h := newHarness(t, 0, posting.DefaultConfig())
	ctx := context.Background()
	loan := posting.Candidate{Entry: ledger.LedgerEntry{
		TransactionID: "TX-L", Type: ledger.TypeExpense, Category: "Loans", SubCategory: "Loan Given",
		Amount: d("500"), AssociatedParty: "Bob",
	}}
	_, err := h.orch.Post(ctx, clerk, loan)
	require.NoError(t, err)

	_, err = h.orch.Settle(ctx, clerk, "TX-L", posting.PaymentInput{Amount: d("100"), Method: ledger.MethodCash})
	require.ErrorIs(t, err, ledger.ErrNotARAP)
}

func TestAllocateSpreadsPaymentAndBooksAdvance(t *testing.T) {
	h := newHarness(t, 0, posting.DefaultConfig())
	ctx := context.Background()
	for _, c := range []posting.Candidate{creditSale("TX-1", "Acme", "300"), creditSale("TX-2", "ACME", "200")} {
		_, err := h.orch.Post(ctx, clerk, c)
		require.NoError(t, err)
	}

	res, err := h.orch.Allocate(ctx, clerk, posting.AllocationInput{
		Party:  "acme",
		Type:   ledger.PaymentReceipt,
		Amount: d("600"),
		Method: ledger.MethodBank,
		Allocations: []posting.Allocation{
			{TransactionID: "TX-1", Amount: d("300")},
			{TransactionID: "TX-2", Amount: d("200")},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)
	for _, e := range res.Entries {
		require.Equal(t, ledger.PaymentPaid, e.PaymentStatus)
	}
	require.NotNil(t, res.Advance)
	require.True(t, res.Advance.Amount.Equal(d("100")))
	require.Equal(t, res.Payment.ID, res.Advance.LinkedPaymentID)
	require.True(t, res.Advance.IsAutoGenerated)

	require.Len(t, res.Journals, 1)
	requireBalanced(t, res.Journals)
	require.True(t, h.accountBalance(t, accounting.AccountCustomerAdvances).Equal(d("-100")))
	require.True(t, h.accountBalance(t, accounting.AccountReceivable).IsZero())
}

func TestAllocateReportsOnlyTheCommittedAttempt(t *testing.T) {
	h := newHarness(t, 0, posting.DefaultConfig())
	ctx := context.Background()
	for _, c := range []posting.Candidate{creditSale("TX-1", "Acme", "300"), creditSale("TX-2", "Acme", "200")} {
		_, err := h.orch.Post(ctx, clerk, c)
		require.NoError(t, err)
	}
	h.store.InjectFault("InsertPayment", memory.ErrSerialization, 1)

	res, err := h.orch.Allocate(ctx, clerk, posting.AllocationInput{
		Party: "Acme", Type: ledger.PaymentReceipt, Amount: d("500"), Method: ledger.MethodBank,
		Allocations: []posting.Allocation{
			{TransactionID: "TX-1", Amount: d("300")},
			{TransactionID: "TX-2", Amount: d("200")},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)
	require.Nil(t, res.Advance)
	require.True(t, h.accountBalance(t, accounting.AccountReceivable).IsZero())
}

func TestAllocateRejectsOtherPartiesAndOverAllocation(t *testing.T) {
	h := newHarness(t, 0, posting.DefaultConfig())
	ctx := context.Background()
	_, err := h.orch.Post(ctx, clerk, creditSale("TX-1", "Acme", "300"))
	require.NoError(t, err)

	_, err = h.orch.Allocate(ctx, clerk, posting.AllocationInput{
		Party: "Globex", Type: ledger.PaymentReceipt, Amount: d("100"), Method: ledger.MethodCash,
		Allocations: []posting.Allocation{{TransactionID: "TX-1", Amount: d("100")}},
	})
	require.ErrorIs(t, err, posting.ErrInvalidCandidate)

	_, err = h.orch.Allocate(ctx, clerk, posting.AllocationInput{
		Party: "Acme", Type: ledger.PaymentReceipt, Amount: d("100"), Method: ledger.MethodCash,
		Allocations: []posting.Allocation{{TransactionID: "TX-1", Amount: d("150")}},
	})
	require.ErrorIs(t, err, ledger.ErrOverpayment)

	entry, err := h.store.GetEntry(ctx, "TX-1")
	require.NoError(t, err)
	require.True(t, entry.TotalPaid.IsZero())
}

func TestInventorySaleBooksCOGS(t *testing.T) {
	h := newHarness(t, 0, posting.DefaultConfig())
	ctx := context.Background()
	bought, err := h.orch.Post(ctx, clerk, posting.Candidate{
		Entry: ledger.LedgerEntry{TransactionID: "TX-P", Type: ledger.TypeExpense, Category: "Purchases", Amount: d("50")},
		Inventory: []posting.InventoryLine{{
			Name: "Steel bar", Direction: inventory.MovementReceipt, Quantity: d("10"), UnitPrice: d("5"),
		}},
	})
	require.NoError(t, err)
	require.Len(t, bought.Items, 1)
	itemID := bought.Items[0].ID

	sale := creditSale("TX-S", "Acme", "100")
	sale.Inventory = []posting.InventoryLine{{ItemID: itemID, Direction: inventory.MovementIssue, Quantity: d("4")}}
	sold, err := h.orch.Post(ctx, clerk, sale)
	require.NoError(t, err)
	require.NotNil(t, sold.COGS)
	require.Equal(t, "TX-S"+inventory.COGSSuffix, sold.COGS.TransactionID)
	require.True(t, sold.COGS.Amount.Equal(d("20")))
	require.Equal(t, "TX-S", sold.COGS.SourceTransactionID)

	item, err := h.store.GetItem(ctx, itemID)
	require.NoError(t, err)
	require.True(t, item.Quantity.Equal(d("6")))

	requireBalanced(t, h.journals(t))
	require.True(t, h.accountBalance(t, accounting.AccountInventory).Equal(d("30")))
	require.True(t, h.accountBalance(t, accounting.AccountCOGS).Equal(d("20")))
}

func TestInventoryAccountMatchesStockValue(t *testing.T) {
	h := newHarness(t, 0, posting.DefaultConfig())
	ctx := context.Background()
	stockValue := func() decimal.Decimal {
		items, err := h.store.ListItems(ctx)
		require.NoError(t, err)
		total := decimal.Zero
		for _, it := range items {
			total = total.Add(it.Value())
		}
		return total
	}

	purchase := creditPurchase("TX-RM", "Steel Co", "120")
	purchase.Inventory = []posting.InventoryLine{{
		Name: "Steel bar", Direction: inventory.MovementReceipt, Quantity: d("10"), UnitPrice: d("10"),
	}}
	bought, err := h.orch.Post(ctx, clerk, purchase)
	require.NoError(t, err)
	require.True(t, bought.Entry.StockedAmount.Equal(d("100")))
	require.True(t, h.accountBalance(t, accounting.AccountInventory).Equal(stockValue()))
	require.True(t, h.accountBalance(t, accounting.AccountOperatingExpenses).Equal(d("20")))

	sale := creditSale("TX-S", "Acme", "300")
	sale.Inventory = []posting.InventoryLine{{ItemID: bought.Items[0].ID, Direction: inventory.MovementIssue, Quantity: d("10")}}
	_, err = h.orch.Post(ctx, clerk, sale)
	require.NoError(t, err)

	requireBalanced(t, h.journals(t))
	require.True(t, stockValue().IsZero())
	require.True(t, h.accountBalance(t, accounting.AccountInventory).IsZero())
	require.True(t, h.accountBalance(t, accounting.AccountCOGS).Equal(d("100")))
	require.True(t, h.accountBalance(t, accounting.AccountOperatingExpenses).Equal(d("20")))
}

func TestStockReceiptsMustFitTheEntry(t *testing.T) {
	h := newHarness(t, 0, posting.DefaultConfig())
	ctx := context.Background()

	_, err := h.orch.Post(ctx, clerk, posting.Candidate{
		Entry: ledger.LedgerEntry{TransactionID: "TX-P", Type: ledger.TypeExpense, Category: "Purchases", Amount: d("50")},
	})
	require.ErrorIs(t, err, posting.ErrInvalidCandidate)

	over := creditPurchase("TX-RM", "Steel Co", "50")
	over.Inventory = []posting.InventoryLine{{
		Name: "Steel bar", Direction: inventory.MovementReceipt, Quantity: d("10"), UnitPrice: d("10"),
	}}
	_, err = h.orch.Post(ctx, clerk, over)
	require.ErrorIs(t, err, posting.ErrInvalidCandidate)

	sale := creditSale("TX-S", "Acme", "100")
	sale.Inventory = []posting.InventoryLine{{
		Name: "Steel bar", Direction: inventory.MovementReceipt, Quantity: d("1"), UnitPrice: d("10"),
	}}
	_, err = h.orch.Post(ctx, clerk, sale)
	require.ErrorIs(t, err, posting.ErrInvalidCandidate)

	require.Equal(t, 0, h.store.Commits())
}

func TestCapitalExpenditureCreatesAssetAndDepreciates(t *testing.T) {
	h := newHarness(t, 0, posting.DefaultConfig())
	ctx := context.Background()
	res, err := h.orch.Post(ctx, clerk, posting.Candidate{
		Entry: ledger.LedgerEntry{
			TransactionID: "TX-CAPEX", Type: ledger.TypeCapitalExpenditure, Category: "Fixed Assets",
			Amount: d("12000"), IsARAPEntry: true, AssociatedParty: "Machines Inc",
		},
		Asset: &assets.Input{Name: "CNC lathe", UsefulLifeYears: 5, DepreciationMethod: assets.StraightLine},
	})
	require.NoError(t, err)
	require.NotNil(t, res.Asset)
	require.True(t, res.Asset.BookValue.Equal(d("12000")))

	run, err := h.orch.RunDepreciation(ctx, clerk, res.Asset.ID, 1)
	require.NoError(t, err)
	require.True(t, run.Charge.Equal(d("200")))
	require.True(t, run.Asset.BookValue.Equal(d("11800")))
	require.Equal(t, accounting.JournalStatusPosted, run.Journal.Status)

	_, err = h.orch.RunDepreciation(ctx, clerk, res.Asset.ID, 1)
	require.ErrorIs(t, err, posting.ErrAlreadyDepreciated)

	h.now = fixedAt.AddDate(0, 1, 0)
	charged, err := h.orch.DepreciateAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, charged)
	require.True(t, h.accountBalance(t, accounting.AccountAccumulatedDepreciation).Equal(d("-400")))
}

func TestBatchTooLargeIsRejectedUpFront(t *testing.T) {
	h := newHarness(t, 3, posting.DefaultConfig())
	c := posting.Candidate{
		Entry: ledger.LedgerEntry{TransactionID: "TX-P", Type: ledger.TypeExpense, Category: "Purchases", Amount: d("30")},
	}
	for _, name := range []string{"Bolt", "Nut", "Washer"} {
		c.Inventory = append(c.Inventory, posting.InventoryLine{
			Name: name, Direction: inventory.MovementReceipt, Quantity: d("1"), UnitPrice: d("10"),
		})
	}
	_, err := h.orch.Post(context.Background(), clerk, c)
	require.ErrorIs(t, err, posting.ErrBatchTooLarge)
	require.Equal(t, 0, h.store.Commits())
}

func TestJournalsFallBackToIntentWhenTheyDoNotFit(t *testing.T) {
	h := newHarness(t, 3, posting.DefaultConfig())
	ctx := context.Background()
	c := creditSale("TX-1", "Acme", "1000")
	c.InitialPayment = &posting.PaymentInput{Amount: d("100"), Method: ledger.MethodCash}

	res, err := h.orch.Post(ctx, clerk, c)
	require.NoError(t, err)
	require.NotEmpty(t, res.IntentID)
	require.Empty(t, h.journals(t))

	require.NoError(t, h.orch.ProcessIntent(ctx, res.IntentID))
	require.Len(t, h.journals(t), 2)
}
