package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// NoteSeries represents a banknote print generation — a distinct physical
// stock pool for the same denomination
type NoteSeries string

const (
	SeriesMandela       NoteSeries = "mandela"
	SeriesBig5          NoteSeries = "big_5"
	SeriesCommemorative NoteSeries = "commemorative"
	SeriesV6            NoteSeries = "v6"
)

// DefaultSeriesPriority is the order in which stock is consumed during
// allocation: older series are paid out before newer ones.
var DefaultSeriesPriority = []NoteSeries{
	SeriesMandela,
	SeriesBig5,
	SeriesCommemorative,
	SeriesV6,
}

// Denomination is the face value of a banknote
type Denomination int

const (
	DenominationR10  Denomination = 10
	DenominationR20  Denomination = 20
	DenominationR50  Denomination = 50
	DenominationR100 Denomination = 100
	DenominationR200 Denomination = 200
)

// Denominations lists every denomination the vault stocks
var Denominations = []Denomination{
	DenominationR10,
	DenominationR20,
	DenominationR50,
	DenominationR100,
	DenominationR200,
}

// Valid reports whether d is a stocked denomination
func (d Denomination) Valid() bool {
	for _, known := range Denominations {
		if d == known {
			return true
		}
	}
	return false
}

// InventoryLine represents the stock of one (series, denomination) pair.
// Invariant: Quantity never goes negative.
type InventoryLine struct {
	Series       NoteSeries
	Denomination Denomination
	Quantity     int
	LastUpdated  time.Time
	UpdatedBy    string
}

// Value returns the monetary value of the line (quantity x denomination)
func (l *InventoryLine) Value() decimal.Decimal {
	return decimal.NewFromInt(int64(l.Denomination)).Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// AllocationPart records stock drawn from (or returned to) a single series line
type AllocationPart struct {
	Series       NoteSeries   `json:"series"`
	Denomination Denomination `json:"denomination"`
	Quantity     int          `json:"quantity"`
}

// Allocation is the full record of a reservation across series lines.
// It is retained on the request so a release can reverse the exact draw.
type Allocation []AllocationPart

// TotalQuantity returns the number of notes covered by the allocation
func (a Allocation) TotalQuantity() int {
	total := 0
	for _, part := range a {
		total += part.Quantity
	}
	return total
}

// MovementType classifies an inventory quantity change
type MovementType string

const (
	MovementAdd    MovementType = "add"
	MovementRemove MovementType = "remove"
	MovementAdjust MovementType = "adjust"
	MovementIssue  MovementType = "issue"
	MovementReturn MovementType = "return"
)

// InventoryMovement is the audit record written for every quantity change
type InventoryMovement struct {
	ID               string
	Type             MovementType
	Series           NoteSeries
	Denomination     Denomination
	QuantityChange   int
	PreviousQuantity int
	NewQuantity      int
	Reason           string
	PerformedBy      string
	Timestamp        time.Time
}
