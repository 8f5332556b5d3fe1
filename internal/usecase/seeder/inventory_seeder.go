package seeder

import (
	"context"

	"github.com/cashdesk/cashdesk-backend/internal/domain"
)

// SeedActor is the actor recorded on seeded stock movements
const SeedActor = "SYSTEM"

// initialQuantities holds the opening stock per denomination for every
// note series in a freshly provisioned vault
var initialQuantities = map[domain.Denomination]int{
	domain.DenominationR10:  100,
	domain.DenominationR20:  80,
	domain.DenominationR50:  60,
	domain.DenominationR100: 40,
	domain.DenominationR200: 20,
}

// InventorySeeder provisions the series x denomination stock grid
type InventorySeeder struct {
	repo domain.InventoryRepository
}

// NewInventorySeeder creates a new InventorySeeder instance
func NewInventorySeeder(repo domain.InventoryRepository) *InventorySeeder {
	return &InventorySeeder{
		repo: repo,
	}
}

// Seed ensures a stock line exists for every (series, denomination) pair.
// Pairs already present keep their quantity untouched, so Seed is safe to
// run on every startup.
func (s *InventorySeeder) Seed(ctx context.Context) error {
	lines, err := s.repo.GetLines(ctx)
	if err != nil {
		return err
	}

	type key struct {
		series       domain.NoteSeries
		denomination domain.Denomination
	}
	existing := make(map[key]struct{}, len(lines))
	for _, line := range lines {
		existing[key{line.Series, line.Denomination}] = struct{}{}
	}

	for _, series := range domain.DefaultSeriesPriority {
		for _, denomination := range domain.Denominations {
			if _, ok := existing[key{series, denomination}]; ok {
				continue
			}
			quantity := initialQuantities[denomination]
			if err := s.repo.ApplyDelta(ctx, series, denomination, quantity, "initial vault provisioning", SeedActor); err != nil {
				return err
			}
		}
	}

	return nil
}
