package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name     string
		typ      string
		category string
		sub      string
		want     TransactionClass
		excluded bool
	}{
		{"sale", TypeIncome, CategorySales, "", ClassOrdinary, false},
		{"purchase", TypeExpense, CategoryPurchases, "", ClassOrdinary, false},
		{"loan given", TypeExpense, "Loans", "Loan Given", ClassLoanGiven, true},
		{"loan received", TypeIncome, CategoryLoans, SubLoanReceived, ClassLoanReceived, true},
		{"loan collected", TypeIncome, CategoryLoans, "loan_collection", ClassLoanRepaymentReceivable, true},
		{"loan repaid", TypeExpense, CategoryLoans, SubLoanRepayment, ClassLoanRepaymentPayable, true},
		{"customer advance", TypeIncome, CategoryAdvances, SubCustomerAdvance, ClassAdvanceCustomer, true},
		{"supplier advance", TypeExpense, CategoryAdvances, SubSupplierAdvance, ClassAdvanceSupplier, true},
		{"owner capital", TypeEquityMovement, "", SubOwnerContribution, ClassEquity, true},
		{"capex typed", TypeCapitalExpenditure, "machinery", "", ClassCapitalExpenditure, true},
		// fixed-asset category mislabeled with an expense type
		{"capex mislabeled", TypeExpense, "Fixed Assets", "", ClassCapitalExpenditure, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Classify(tc.typ, tc.category, tc.sub)
			require.NoError(t, err)
			require.Equal(t, tc.want, got.Class)
			require.Equal(t, tc.excluded, got.ExcludedFromPL)
		})
	}
}

func TestClassifyRejectsUnknowns(t *testing.T) {
	_, err := Classify("transfer", CategorySales, "")
	require.ErrorIs(t, err, ErrUnknownType)

	_, err = Classify(TypeExpense, CategoryLoans, "gift")
	require.ErrorIs(t, err, ErrUnknownSubCategory)
}

func TestClassifyFlagsIncomeAndDrawings(t *testing.T) {
	c, err := Classify(" Income ", "sales", "")
	require.NoError(t, err)
	require.True(t, c.Income)

	c, err = Classify(TypeEquityMovement, CategoryEquity, "Owner Drawing")
	require.NoError(t, err)
	require.True(t, c.Drawing)
	require.Equal(t, "equity", c.Class.String())
}

func TestPartyKeyFoldsNames(t *testing.T) {
	require.True(t, SameParty("ACME  Ltd", " acme ltd"))
	require.True(t, SameParty("Café Noor", "CAFE\u0301 NOOR"))
	require.False(t, SameParty("", ""))
	require.False(t, SameParty("Acme", "Acme Trading"))
}
