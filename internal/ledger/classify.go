package ledger

import (
	"fmt"
	"strings"
)

// TransactionClass is the semantic class of a ledger entry. Every component
// that needs to tell loans, advances or capital spending apart switches on
// this value instead of comparing category strings.
type TransactionClass int

const (
	ClassOrdinary TransactionClass = iota + 1
	ClassLoanGiven
	ClassLoanReceived
	ClassLoanRepaymentReceivable
	ClassLoanRepaymentPayable
	ClassAdvanceCustomer
	ClassAdvanceSupplier
	ClassEquity
	ClassCapitalExpenditure
)

var classNames = map[TransactionClass]string{
	ClassOrdinary:                "ordinary",
	ClassLoanGiven:               "loanGiven",
	ClassLoanReceived:            "loanReceived",
	ClassLoanRepaymentReceivable: "loanRepaymentReceivable",
	ClassLoanRepaymentPayable:    "loanRepaymentPayable",
	ClassAdvanceCustomer:         "advanceCustomer",
	ClassAdvanceSupplier:         "advanceSupplier",
	ClassEquity:                  "equity",
	ClassCapitalExpenditure:      "capitalExpenditure",
}

func (c TransactionClass) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return fmt.Sprintf("TransactionClass(%d)", int(c))
}

// ExcludedFromPL reports whether entries of this class bypass the income statement.
func (c TransactionClass) ExcludedFromPL() bool {
	switch c {
	case ClassOrdinary:
		return false
	case ClassLoanGiven, ClassLoanReceived, ClassLoanRepaymentReceivable, ClassLoanRepaymentPayable,
		ClassAdvanceCustomer, ClassAdvanceSupplier, ClassEquity, ClassCapitalExpenditure:
		return true
	default:
		return true
	}
}

// IsAdvance reports whether the class is a customer or supplier advance.
func (c TransactionClass) IsAdvance() bool {
	return c == ClassAdvanceCustomer || c == ClassAdvanceSupplier
}

// IsLoan reports whether the class is one of the loan movements.
func (c TransactionClass) IsLoan() bool {
	switch c {
	case ClassLoanGiven, ClassLoanReceived, ClassLoanRepaymentReceivable, ClassLoanRepaymentPayable:
		return true
	}
	return false
}

// SettlesThroughPayments reports whether payments and cheques may be attached
// to entries of this class. Loans, advances and equity carry their own cash.
func (c TransactionClass) SettlesThroughPayments() bool {
	return c == ClassOrdinary || c == ClassCapitalExpenditure
}

// Categories and sub-categories recognised by the classifier. Values are
// compared after normalisation, so "Loan Given" matches SubLoanGiven.
const (
	CategoryLoans       = "loans"
	CategoryAdvances    = "advances"
	CategoryFixedAssets = "fixed-assets"
	CategoryEquity      = "equity"
	CategorySales       = "sales"
	CategoryOtherIncome = "other-income"
	CategoryPurchases   = "purchases"
	CategoryCOGS        = "cost-of-goods-sold"

	SubLoanGiven         = "loan-given"
	SubLoanReceived      = "loan-received"
	SubLoanCollection    = "loan-collection"
	SubLoanRepayment     = "loan-repayment"
	SubCustomerAdvance   = "customer-advance"
	SubSupplierAdvance   = "supplier-advance"
	SubOwnerContribution = "owner-contribution"
	SubOwnerDrawing      = "owner-drawing"
)

// Classification is the classifier's verdict for one entry.
type Classification struct {
	Class          TransactionClass
	ExcludedFromPL bool
	// Income is set for ordinary income; ordinary expense and capital spending leave it false.
	Income bool
	// Drawing is set for equity withdrawals by an owner.
	Drawing bool
}

// Classify decides the semantic class of an entry from its type, category and
// sub-category. It is the single authority for the P&L exclusion: a fixed-asset
// purchase labelled as an expense is still capital expenditure.
func Classify(entryType, category, subCategory string) (Classification, error) {
	t := Normalize(entryType)
	cat := Normalize(category)
	sub := Normalize(subCategory)

	switch t {
	case TypeIncome, TypeExpense, TypeEquityMovement, TypeCapitalExpenditure:
	default:
		return Classification{}, fmt.Errorf("%w: %q", ErrUnknownType, entryType)
	}

	var c Classification
	switch {
	case t == TypeCapitalExpenditure || cat == CategoryFixedAssets:
		c.Class = ClassCapitalExpenditure
	case cat == CategoryLoans:
		switch sub {
		case SubLoanGiven:
			c.Class = ClassLoanGiven
		case SubLoanReceived:
			c.Class = ClassLoanReceived
		case SubLoanCollection:
			c.Class = ClassLoanRepaymentReceivable
		case SubLoanRepayment:
			c.Class = ClassLoanRepaymentPayable
		default:
			return Classification{}, fmt.Errorf("%w: loans/%q", ErrUnknownSubCategory, subCategory)
		}
	case cat == CategoryAdvances:
		switch sub {
		case SubCustomerAdvance:
			c.Class = ClassAdvanceCustomer
		case SubSupplierAdvance:
			c.Class = ClassAdvanceSupplier
		default:
			return Classification{}, fmt.Errorf("%w: advances/%q", ErrUnknownSubCategory, subCategory)
		}
	case t == TypeEquityMovement || cat == CategoryEquity:
		c.Class = ClassEquity
		c.Drawing = sub == SubOwnerDrawing
	default:
		c.Class = ClassOrdinary
		c.Income = t == TypeIncome
	}
	c.ExcludedFromPL = c.Class.ExcludedFromPL()
	return c, nil
}

// ClassifyEntry classifies a stored entry.
func ClassifyEntry(e LedgerEntry) (Classification, error) {
	return Classify(e.Type, e.Category, e.SubCategory)
}

// Normalize lowercases s and joins its words with hyphens, so "Loan Given",
// "loan_given" and "loan-given" compare equal.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '_' || r == '-'
	}), "-")
}
