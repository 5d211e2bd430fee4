package supervisor

import (
	"context"

	"github.com/shritish20/volguard/internal/external"
	"github.com/shritish20/volguard/internal/risk"
)

// ExternalWorker refreshes institutional flow and event calendar context
type ExternalWorker struct {
	Provider *external.Provider
}

func (w *ExternalWorker) Name() string { return "external_metrics" }

func (w *ExternalWorker) Run(ctx context.Context) error {
	return w.Provider.Refresh(ctx)
}

// FundsWorker keeps the capital governor's funds cache warm so the trade
// gate rarely blocks on a broker call
type FundsWorker struct {
	Governor *risk.CapitalGovernor
}

func (w *FundsWorker) Name() string { return "funds_refresh" }

func (w *FundsWorker) Run(ctx context.Context) error {
	return w.Governor.RefreshFunds(ctx)
}

// InstrumentWorker tracks expiry rollovers and lot size changes
type InstrumentWorker struct {
	Supervisor *Supervisor
}

func (w *InstrumentWorker) Name() string { return "instrument_refresh" }

func (w *InstrumentWorker) Run(ctx context.Context) error {
	return w.Supervisor.RefreshInstruments(ctx)
}

// HistoryWorker reloads the daily bar cache behind the volatility engine
type HistoryWorker struct {
	Supervisor *Supervisor
}

func (w *HistoryWorker) Name() string { return "history_refresh" }

func (w *HistoryWorker) Run(ctx context.Context) error {
	return w.Supervisor.RefreshHistory(ctx)
}
