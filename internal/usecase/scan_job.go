package usecase

import (
	"context"
	"fmt"

	"github.com/predeshen/yfinance-trading-signal/pkg/queue"
)

const ScanJobType = "scan_symbol"

// ScanJob lets scan work ride the redis queue so multiple instances
// can split the symbol list. The per-symbol lock in the scanner keeps
// duplicate deliveries harmless.
type ScanJob struct {
	scanner *Scanner
}

func NewScanJob(scanner *Scanner) *ScanJob {
	return &ScanJob{scanner: scanner}
}

func (j *ScanJob) Name() string { return "scan_symbol_job" }

func (j *ScanJob) Type() string { return ScanJobType }

func (j *ScanJob) Handle(ctx context.Context, payload interface{}) error {
	sym, err := queue.ParsePayload[SymbolMapping](payload)
	if err != nil {
		return fmt.Errorf("scan job payload: %w", err)
	}
	if sym.Name == "" || sym.Provider == "" {
		return fmt.Errorf("scan job payload: name and provider required")
	}
	return j.scanner.ScanSymbol(ctx, *sym)
}

var _ queue.Job = (*ScanJob)(nil)
