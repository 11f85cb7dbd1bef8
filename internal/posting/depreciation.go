package posting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/factorybooks/factorybooks/internal/accounting"
	"github.com/factorybooks/factorybooks/internal/assets"
	"github.com/factorybooks/factorybooks/internal/shared"
)

// depreciationRunID keys one run per asset and month.
func depreciationRunID(assetID string, at time.Time) string {
	return assetID + ":" + at.UTC().Format("2006-01")
}

// RunDepreciation charges months of depreciation on an asset and posts the
// journal. One run per asset and calendar month is accepted.
func (o *Orchestrator) RunDepreciation(ctx context.Context, actor shared.Actor, assetID string, months int) (DepreciationResult, error) {
	now := o.now()
	var result DepreciationResult
	err := o.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		a, err := tx.GetAsset(ctx, assetID)
		if err != nil {
			return err
		}
		runID := depreciationRunID(a.ID, now)
		if _, err := tx.GetJournal(ctx, accounting.JournalID(accounting.SourceDepreciation, runID)); err == nil {
			return fmt.Errorf("%w: %s", ErrAlreadyDepreciated, runID)
		} else if !errors.Is(err, accounting.ErrJournalNotFound) {
			return err
		}
		updated, charge, err := assets.Depreciate(a, months, now)
		if err != nil {
			return err
		}
		j, err := accounting.DepreciationJournal(runID, a.TransactionID, charge, now, actor.ID)
		if err != nil {
			return err
		}
		if err := tx.UpdateAsset(ctx, updated); err != nil {
			return err
		}
		posted, err := postJournal(ctx, tx, j, now)
		if err != nil {
			return err
		}
		result = DepreciationResult{Asset: updated, Charge: charge, Journal: posted}
		return nil
	})
	if err != nil {
		return DepreciationResult{}, o.fail("depreciation", err)
	}
	o.finish(ctx, actor, "depreciation", "fixed_asset", assetID, map[string]any{
		"months": months,
		"charge": result.Charge.String(),
	}, nil)
	return result, nil
}

// DepreciateAll runs one month of depreciation for every asset. Assets that
// are fully depreciated or already charged this month are skipped.
func (o *Orchestrator) DepreciateAll(ctx context.Context) (int, error) {
	list, err := o.store.ListAssets(ctx)
	if err != nil {
		return 0, err
	}
	charged := 0
	var errs []error
	for _, a := range list {
		_, err := o.RunDepreciation(ctx, shared.System, a.ID, 1)
		switch {
		case err == nil:
			charged++
		case errors.Is(err, assets.ErrFullyDepreciated), errors.Is(err, ErrAlreadyDepreciated):
			o.logger.Debug("depreciation skipped", slog.String("asset_id", a.ID), slog.Any("reason", err))
		default:
			errs = append(errs, fmt.Errorf("asset %s: %w", a.ID, err))
		}
	}
	return charged, errors.Join(errs...)
}
