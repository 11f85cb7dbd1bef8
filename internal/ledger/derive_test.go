package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/factorybooks/factorybooks/internal/money"
)

func classOf(t *testing.T, e LedgerEntry) Classification {
	t.Helper()
	c, err := ClassifyEntry(e)
	require.NoError(t, err)
	return c
}

func TestAdvanceInversion(t *testing.T) {
	amount := money.FromInt(750)
	customer := LedgerEntry{Type: TypeIncome, Category: CategoryAdvances, SubCategory: SubCustomerAdvance, Amount: amount}
	supplier := LedgerEntry{Type: TypeExpense, Category: CategoryAdvances, SubCategory: SubSupplierAdvance, Amount: amount}

	eff := DeriveEntry(customer, classOf(t, customer))
	require.True(t, eff.Credit.Equal(amount))
	require.True(t, eff.Debit.IsZero())

	eff = DeriveEntry(supplier, classOf(t, supplier))
	require.True(t, eff.Debit.Equal(amount))
	require.True(t, eff.Credit.IsZero())
}

func TestDeriveLoans(t *testing.T) {
	amount := money.FromInt(100)
	cases := map[string]struct {
		sub       string
		debitSide bool
	}{
		"given":      {SubLoanGiven, true},
		"received":   {SubLoanReceived, false},
		"collection": {SubLoanCollection, false},
		"repayment":  {SubLoanRepayment, true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			e := LedgerEntry{Type: TypeExpense, Category: CategoryLoans, SubCategory: tc.sub, Amount: amount}
			eff := DeriveEntry(e, classOf(t, e))
			if tc.debitSide {
				require.True(t, eff.Debit.Equal(amount))
				require.True(t, eff.Credit.IsZero())
			} else {
				require.True(t, eff.Credit.Equal(amount))
				require.True(t, eff.Debit.IsZero())
			}
		})
	}
}

func TestDeriveOrdinaryWithAdjustments(t *testing.T) {
	sale := LedgerEntry{Type: TypeIncome, Category: CategorySales, Amount: money.FromInt(1000), TotalDiscount: money.FromInt(50), WriteoffAmount: money.FromInt(20)}
	eff := DeriveEntry(sale, classOf(t, sale))
	require.True(t, eff.Debit.Equal(money.FromInt(1000)))
	require.True(t, eff.DiscountCredit.Equal(money.FromInt(50)))
	require.True(t, eff.WriteoffCredit.Equal(money.FromInt(20)))
	require.True(t, eff.Net().Equal(money.FromInt(930)))

	purchase := LedgerEntry{Type: TypeExpense, Category: CategoryPurchases, Amount: money.FromInt(400), TotalDiscount: money.FromInt(10)}
	eff = DeriveEntry(purchase, classOf(t, purchase))
	require.True(t, eff.Credit.Equal(money.FromInt(400)))
	require.True(t, eff.DiscountDebit.Equal(money.FromInt(10)))
	require.True(t, eff.WriteoffDebit.IsZero())
}

func TestDeriveSynthesizedAdvanceIsZero(t *testing.T) {
	e := LedgerEntry{Type: TypeIncome, Category: CategoryAdvances, SubCategory: SubCustomerAdvance, Amount: money.FromInt(80), LinkedPaymentID: "pay-1"}
	require.True(t, DeriveEntry(e, classOf(t, e)).IsZero())
}

func TestDerivePayment(t *testing.T) {
	advance := LedgerEntry{TransactionID: "TX-ADV", Type: TypeIncome, Category: CategoryAdvances, SubCategory: SubCustomerAdvance, Amount: money.FromInt(100)}
	sale := LedgerEntry{TransactionID: "TX-SALE", Type: TypeIncome, Category: CategorySales, Amount: money.FromInt(100)}
	resolve := IndexClasses([]LedgerEntry{advance, sale})

	receipt := Payment{Type: PaymentReceipt, Amount: money.FromInt(100), LinkedTransactionID: "TX-SALE"}
	require.True(t, DerivePayment(receipt, resolve).Credit.Equal(money.FromInt(100)))

	disbursement := Payment{Type: PaymentDisbursement, Amount: money.FromInt(30)}
	require.True(t, DerivePayment(disbursement, resolve).Debit.Equal(money.FromInt(30)))

	onAdvance := Payment{Type: PaymentReceipt, Amount: money.FromInt(100), LinkedTransactionID: "TX-ADV"}
	require.True(t, DerivePayment(onAdvance, resolve).IsZero())

	zero := Payment{Type: PaymentReceipt, Amount: money.Zero}
	require.True(t, DerivePayment(zero, resolve).IsZero())
}
