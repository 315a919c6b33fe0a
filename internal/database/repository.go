package database

import (
	"context"

	"arbtest/internal/model"
)

// Repository defines the standard interface for result persistence.
type Repository interface {
	Migrate(ctx context.Context) error
	SaveResult(ctx context.Context, result model.BacktestResult) error
}
