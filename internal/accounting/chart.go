package accounting

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Account codes of the built-in chart.
const (
	AccountCash                    = "1000"
	AccountBank                    = "1010"
	AccountReceivable              = "1100"
	AccountInventory               = "1200"
	AccountLoansReceivable         = "1300"
	AccountSupplierAdvances        = "1400"
	AccountFixedAssets             = "1500"
	AccountAccumulatedDepreciation = "1510"
	AccountPayable                 = "2000"
	AccountCustomerAdvances        = "2100"
	AccountLoansPayable            = "2200"
	AccountOwnerCapital            = "3000"
	AccountOwnerDrawings           = "3100"
	AccountSalesRevenue            = "4000"
	AccountOtherIncome             = "4100"
	AccountDiscountsReceived       = "4200"
	AccountPayableWriteoffs        = "4300"
	AccountSalesDiscounts          = "4900"
	AccountCOGS                    = "5000"
	AccountOperatingExpenses       = "5100"
	AccountBadDebts                = "5300"
	AccountDepreciationExpense     = "5400"
)

// Account models a chart of accounts node.
type Account struct {
	Code string      `json:"code"`
	Name string      `json:"name"`
	Type AccountType `json:"type"`
}

// Chart is the built-in chart of accounts keyed by code.
var Chart = map[string]Account{
	AccountCash:                    {AccountCash, "Cash", AccountTypeAsset},
	AccountBank:                    {AccountBank, "Bank", AccountTypeAsset},
	AccountReceivable:              {AccountReceivable, "Accounts Receivable", AccountTypeAsset},
	AccountInventory:               {AccountInventory, "Inventory", AccountTypeAsset},
	AccountLoansReceivable:         {AccountLoansReceivable, "Loans Receivable", AccountTypeAsset},
	AccountSupplierAdvances:        {AccountSupplierAdvances, "Supplier Advances", AccountTypeAsset},
	AccountFixedAssets:             {AccountFixedAssets, "Fixed Assets", AccountTypeAsset},
	AccountAccumulatedDepreciation: {AccountAccumulatedDepreciation, "Accumulated Depreciation", AccountTypeAsset},
	AccountPayable:                 {AccountPayable, "Accounts Payable", AccountTypeLiability},
	AccountCustomerAdvances:        {AccountCustomerAdvances, "Customer Advances", AccountTypeLiability},
	AccountLoansPayable:            {AccountLoansPayable, "Loans Payable", AccountTypeLiability},
	AccountOwnerCapital:            {AccountOwnerCapital, "Owner Capital", AccountTypeEquity},
	AccountOwnerDrawings:           {AccountOwnerDrawings, "Owner Drawings", AccountTypeEquity},
	AccountSalesRevenue:            {AccountSalesRevenue, "Sales Revenue", AccountTypeRevenue},
	AccountOtherIncome:             {AccountOtherIncome, "Other Income", AccountTypeRevenue},
	AccountDiscountsReceived:       {AccountDiscountsReceived, "Discounts Received", AccountTypeRevenue},
	AccountPayableWriteoffs:        {AccountPayableWriteoffs, "Payable Write-offs", AccountTypeRevenue},
	AccountSalesDiscounts:          {AccountSalesDiscounts, "Sales Discounts", AccountTypeRevenue},
	AccountCOGS:                    {AccountCOGS, "Cost of Goods Sold", AccountTypeExpense},
	AccountOperatingExpenses:       {AccountOperatingExpenses, "Operating Expenses", AccountTypeExpense},
	AccountBadDebts:                {AccountBadDebts, "Bad Debts", AccountTypeExpense},
	AccountDepreciationExpense:     {AccountDepreciationExpense, "Depreciation Expense", AccountTypeExpense},
}

// LookupAccount returns the account for code and whether it exists.
func LookupAccount(code string) (Account, bool) {
	acc, ok := Chart[code]
	return acc, ok
}
