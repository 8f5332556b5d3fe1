package inventory

import (
	"context"
	"errors"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cashdesk/cashdesk-backend/internal/domain"
)

// StockSeverity grades how far below its threshold a line has fallen
type StockSeverity string

const (
	SeverityLow      StockSeverity = "low"
	SeverityMedium   StockSeverity = "medium"
	SeverityHigh     StockSeverity = "high"
	SeverityCritical StockSeverity = "critical"
)

var severityRank = map[StockSeverity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// DefaultThresholds holds the per-denomination quantities at or below which
// a line counts as low stock
var DefaultThresholds = map[domain.Denomination]int{
	domain.DenominationR10:  50,
	domain.DenominationR20:  40,
	domain.DenominationR50:  30,
	domain.DenominationR100: 20,
	domain.DenominationR200: 10,
}

// LowStockAlert flags one line at or below its threshold
type LowStockAlert struct {
	Series           domain.NoteSeries   `json:"series"`
	Denomination     domain.Denomination `json:"denomination"`
	CurrentQuantity  int                 `json:"current_quantity"`
	MinimumThreshold int                 `json:"minimum_threshold"`
	Severity         StockSeverity       `json:"severity"`
}

// DenominationBreakdown is the summary view of one (series, denomination) line
type DenominationBreakdown struct {
	Series       domain.NoteSeries   `json:"series"`
	Denomination domain.Denomination `json:"denomination"`
	Quantity     int                 `json:"quantity"`
	Value        decimal.Decimal     `json:"value"`
	IsLowStock   bool                `json:"is_low_stock"`
}

// SeriesBreakdown aggregates all lines of one note series
type SeriesBreakdown struct {
	Series        domain.NoteSeries       `json:"series"`
	TotalValue    decimal.Decimal         `json:"total_value"`
	TotalNotes    int                     `json:"total_notes"`
	Denominations []DenominationBreakdown `json:"denominations"`
}

// Summary is the full vault stock picture: totals, per-series and per-line
// breakdowns, and low-stock alerts ordered most severe first
type Summary struct {
	TotalValue            decimal.Decimal         `json:"total_value"`
	TotalNotes            int                     `json:"total_notes"`
	SeriesBreakdown       []SeriesBreakdown       `json:"series_breakdown"`
	DenominationBreakdown []DenominationBreakdown `json:"denomination_breakdown"`
	LowStockAlerts        []LowStockAlert         `json:"low_stock_alerts"`
}

// Service exposes stock reporting and manual vault adjustments. Allocation
// and release for the request workflow go through the allocator instead;
// this service covers cash deliveries, removals and the dashboard summary.
type Service struct {
	repo       domain.InventoryRepository
	thresholds map[domain.Denomination]int
	audit      domain.AuditSink
	log        zerolog.Logger
}

// NewService creates an inventory service. A nil thresholds map falls back
// to the defaults.
func NewService(repo domain.InventoryRepository, thresholds map[domain.Denomination]int, audit domain.AuditSink, log zerolog.Logger) *Service {
	if thresholds == nil {
		thresholds = DefaultThresholds
	}
	return &Service{repo: repo, thresholds: thresholds, audit: audit, log: log}
}

// GetSummary builds the stock summary from the current lines.
// Logic:
// 1. Total value and note count over every line
// 2. Per-series aggregation, in allocation priority order
// 3. Low-stock alerts per line, graded by quantity/threshold ratio
//    (<=25% critical, <=50% high, <=75% medium, else low) and sorted
//    most severe first
func (s *Service) GetSummary(ctx context.Context) (*Summary, error) {
	lines, err := s.repo.GetLines(ctx)
	if err != nil {
		return nil, err
	}

	summary := &Summary{TotalValue: decimal.Zero}

	bySeries := make(map[domain.NoteSeries][]*domain.InventoryLine)
	for _, line := range lines {
		summary.TotalValue = summary.TotalValue.Add(line.Value())
		summary.TotalNotes += line.Quantity
		bySeries[line.Series] = append(bySeries[line.Series], line)
		summary.DenominationBreakdown = append(summary.DenominationBreakdown, s.breakdownFor(line))

		if alert, ok := s.alertFor(line); ok {
			summary.LowStockAlerts = append(summary.LowStockAlerts, alert)
		}
	}

	for _, series := range domain.DefaultSeriesPriority {
		seriesLines, ok := bySeries[series]
		if !ok {
			continue
		}
		breakdown := SeriesBreakdown{Series: series, TotalValue: decimal.Zero}
		for _, line := range seriesLines {
			breakdown.TotalValue = breakdown.TotalValue.Add(line.Value())
			breakdown.TotalNotes += line.Quantity
			breakdown.Denominations = append(breakdown.Denominations, s.breakdownFor(line))
		}
		summary.SeriesBreakdown = append(summary.SeriesBreakdown, breakdown)
	}

	sort.SliceStable(summary.LowStockAlerts, func(i, j int) bool {
		return severityRank[summary.LowStockAlerts[i].Severity] > severityRank[summary.LowStockAlerts[j].Severity]
	})

	return summary, nil
}

func (s *Service) breakdownFor(line *domain.InventoryLine) DenominationBreakdown {
	return DenominationBreakdown{
		Series:       line.Series,
		Denomination: line.Denomination,
		Quantity:     line.Quantity,
		Value:        line.Value(),
		IsLowStock:   line.Quantity <= s.thresholds[line.Denomination],
	}
}

func (s *Service) alertFor(line *domain.InventoryLine) (LowStockAlert, bool) {
	threshold := s.thresholds[line.Denomination]
	if threshold <= 0 || line.Quantity > threshold {
		return LowStockAlert{}, false
	}

	ratio := float64(line.Quantity) / float64(threshold)
	severity := SeverityLow
	switch {
	case ratio <= 0.25:
		severity = SeverityCritical
	case ratio <= 0.5:
		severity = SeverityHigh
	case ratio <= 0.75:
		severity = SeverityMedium
	}

	return LowStockAlert{
		Series:           line.Series,
		Denomination:     line.Denomination,
		CurrentQuantity:  line.Quantity,
		MinimumThreshold: threshold,
		Severity:         severity,
	}, true
}

// Movements returns the most recent stock movements, newest first
func (s *Service) Movements(ctx context.Context, limit int) ([]*domain.InventoryMovement, error) {
	return s.repo.GetMovements(ctx, limit)
}

// AddCash records a cash delivery into one stock line
func (s *Service) AddCash(ctx context.Context, series domain.NoteSeries, denomination domain.Denomination, quantity int, reason, actor string) error {
	if quantity <= 0 {
		return errors.New("quantity to add must be positive")
	}
	if !denomination.Valid() {
		return errors.New("unknown denomination")
	}

	if err := s.repo.ApplyDelta(ctx, series, denomination, quantity, reason, actor); err != nil {
		return err
	}

	s.audit.Record("inventory.cash_added", map[string]any{
		"series":       series,
		"denomination": int(denomination),
		"quantity":     quantity,
		"reason":       reason,
		"actor":        actor,
	})
	s.log.Info().Str("series", string(series)).Int("denomination", int(denomination)).
		Int("quantity", quantity).Msg("cash added to inventory")

	return nil
}

// RemoveCash records a manual cash removal from one stock line. The
// repository rejects removals that would take the line negative.
func (s *Service) RemoveCash(ctx context.Context, series domain.NoteSeries, denomination domain.Denomination, quantity int, reason, actor string) error {
	if quantity <= 0 {
		return errors.New("quantity to remove must be positive")
	}
	if !denomination.Valid() {
		return errors.New("unknown denomination")
	}

	if err := s.repo.ApplyDelta(ctx, series, denomination, -quantity, reason, actor); err != nil {
		return err
	}

	s.audit.Record("inventory.cash_removed", map[string]any{
		"series":       series,
		"denomination": int(denomination),
		"quantity":     quantity,
		"reason":       reason,
		"actor":        actor,
	})
	s.log.Info().Str("series", string(series)).Int("denomination", int(denomination)).
		Int("quantity", quantity).Msg("cash removed from inventory")

	return nil
}
