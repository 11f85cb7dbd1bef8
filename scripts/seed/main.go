// Command seed posts a small factory month through the posting engine so a
// fresh database has parties, stock, cheques and an asset to look at.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/factorybooks/factorybooks/internal/app"
	"github.com/factorybooks/factorybooks/internal/assets"
	"github.com/factorybooks/factorybooks/internal/cheques"
	"github.com/factorybooks/factorybooks/internal/inventory"
	"github.com/factorybooks/factorybooks/internal/ledger"
	"github.com/factorybooks/factorybooks/internal/posting"
	"github.com/factorybooks/factorybooks/internal/shared"
)

var seeder = shared.Actor{ID: "seed", Email: "seed@factorybooks.local"}

func main() {
	ctx := context.Background()
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	services, err := app.Build(ctx, cfg, app.NewLogger(cfg))
	if err != nil {
		log.Fatalf("build services: %v", err)
	}
	defer func() { _ = services.Close() }()

	month := time.Now().UTC().AddDate(0, -1, 0)
	day := func(d int) time.Time {
		return time.Date(month.Year(), month.Month(), d, 9, 0, 0, 0, time.UTC)
	}

	fmt.Println("→ Seeding parties...")
	for _, p := range []ledger.Party{
		{Name: "Acme Trading", Kind: ledger.PartyCustomer},
		{Name: "Northwind Steel", Kind: ledger.PartySupplier, OpeningBalance: dec("-1500")},
		{Name: "Machines Inc", Kind: ledger.PartySupplier},
	} {
		if _, err := services.Balances.PutParty(ctx, p); err != nil {
			log.Fatalf("seed party %s: %v", p.Name, err)
		}
	}

	fmt.Println("→ Seeding capital and equipment...")
	post(ctx, services.Orchestrator, posting.Candidate{Entry: ledger.LedgerEntry{
		TransactionID: "SEED-CAPITAL", Type: ledger.TypeEquityMovement, Category: "Equity",
		SubCategory: "Owner Contribution", Amount: dec("50000"), OwnerName: "Founder", Date: day(1),
	}})
	post(ctx, services.Orchestrator, posting.Candidate{
		Entry: ledger.LedgerEntry{
			TransactionID: "SEED-LATHE", Type: ledger.TypeCapitalExpenditure, Category: "Fixed Assets",
			Amount: dec("12000"), IsARAPEntry: true, AssociatedParty: "Machines Inc", Date: day(2),
		},
		Asset: &assets.Input{Name: "CNC lathe", UsefulLifeYears: 5, DepreciationMethod: assets.StraightLine},
	})

	fmt.Println("→ Seeding purchases...")
	bought := post(ctx, services.Orchestrator, posting.Candidate{
		Entry: ledger.LedgerEntry{
			TransactionID: "SEED-PO-1", Type: ledger.TypeExpense, Category: "Raw materials",
			Amount: dec("4200"), IsARAPEntry: true, AssociatedParty: "Northwind Steel", Date: day(3),
		},
		Inventory: []posting.InventoryLine{{
			Name: "Steel sheet", Unit: "pcs", Direction: inventory.MovementReceipt,
			Quantity: dec("100"), PurchaseAmount: dec("4000"), Shipping: dec("150"), Other: dec("50"),
		}},
	})

	fmt.Println("→ Seeding sales...")
	sale := posting.Candidate{
		Entry: ledger.LedgerEntry{
			TransactionID: "SEED-SO-1", Type: ledger.TypeIncome, Category: "Sales",
			Amount: dec("6000"), IsARAPEntry: true, AssociatedParty: "Acme Trading", Date: day(10),
		},
		Cheque: &cheques.CreateInput{
			ChequeNumber: "SEED-000451", BankName: "First Bank", AccountingType: cheques.AccountingPostponed,
			Amount: dec("2500"), DueDate: day(28),
		},
	}
	if len(bought.Items) > 0 {
		sale.Inventory = []posting.InventoryLine{{ItemID: bought.Items[0].ID, Direction: inventory.MovementIssue, Quantity: dec("60")}}
	}
	if res := post(ctx, services.Orchestrator, sale); res.Entry.TransactionID != "" {
		if _, err := services.Orchestrator.Settle(ctx, seeder, "SEED-SO-1", posting.PaymentInput{Amount: dec("1000"), Method: ledger.MethodCash, Date: day(15)}); err != nil {
			log.Fatalf("settle SEED-SO-1: %v", err)
		}
	}

	fmt.Println("✓ Seed complete")
}

// post returns a zero result when the transaction was seeded before.
func post(ctx context.Context, orch *posting.Orchestrator, c posting.Candidate) posting.PostResult {
	res, err := orch.Post(ctx, seeder, c)
	switch {
	case err == nil:
		fmt.Printf("  posted %s\n", c.Entry.TransactionID)
	case errors.Is(err, posting.ErrDuplicateTransaction):
		fmt.Printf("  %s already present\n", c.Entry.TransactionID)
	default:
		log.Fatalf("post %s: %v", c.Entry.TransactionID, err)
	}
	return res
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
