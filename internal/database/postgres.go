package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"arbtest/internal/model"
)

// PostgresRepository persists backtest results using a pgx connection pool.
type PostgresRepository struct {
	Pool *pgxpool.Pool
}

// NewPostgresRepository wraps an existing pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{Pool: pool}
}

// Migrate creates the result tables if they do not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS backtest_results (
		id SERIAL PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		symbol VARCHAR(20) NOT NULL,
		exchange_a VARCHAR(50) NOT NULL,
		exchange_b VARCHAR(50) NOT NULL,
		status VARCHAR(20) NOT NULL,
		feasible_count INTEGER NOT NULL,
		total_net_profit NUMERIC(20, 8) NOT NULL,
		max_single_profit NUMERIC(20, 8) NOT NULL,
		error TEXT
	);
	CREATE TABLE IF NOT EXISTS arbitrage_opportunities (
		id SERIAL PRIMARY KEY,
		result_id INTEGER NOT NULL REFERENCES backtest_results(id) ON DELETE CASCADE,
		timestamp TIMESTAMPTZ NOT NULL,
		buy_exchange VARCHAR(50) NOT NULL,
		sell_exchange VARCHAR(50) NOT NULL,
		buy_price NUMERIC(20, 8) NOT NULL,
		sell_price NUMERIC(20, 8) NOT NULL,
		volume NUMERIC(20, 8) NOT NULL,
		gross_spread NUMERIC(20, 8) NOT NULL,
		buy_cost NUMERIC(20, 8) NOT NULL,
		sell_revenue NUMERIC(20, 8) NOT NULL,
		trading_fees NUMERIC(20, 8) NOT NULL,
		withdrawal_fee NUMERIC(20, 8) NOT NULL,
		net_profit NUMERIC(20, 8) NOT NULL,
		feasible BOOLEAN NOT NULL,
		infeasibility_reason TEXT
	);`
	_, err := r.Pool.Exec(ctx, schema)
	return err
}

// SaveResult writes one result row and its opportunities in a single
// transaction, so a partial write never appears in the report tables.
func (r *PostgresRepository) SaveResult(ctx context.Context, result model.BacktestResult) error {
	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save result: %w", err)
	}
	defer tx.Rollback(ctx)

	var errText *string
	if result.Err != nil {
		s := result.Err.Error()
		errText = &s
	}

	var resultID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO backtest_results
			(symbol, exchange_a, exchange_b, status, feasible_count, total_net_profit, max_single_profit, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		result.Task.Symbol,
		result.Task.ExchangeA,
		result.Task.ExchangeB,
		string(result.Status),
		result.Stats.FeasibleCount,
		result.Stats.TotalNetProfit.String(),
		result.Stats.MaxSingleProfit.String(),
		errText,
	).Scan(&resultID)
	if err != nil {
		return fmt.Errorf("insert backtest result: %w", err)
	}

	for _, op := range result.Opportunities {
		_, err = tx.Exec(ctx,
			`INSERT INTO arbitrage_opportunities
				(result_id, timestamp, buy_exchange, sell_exchange, buy_price, sell_price, volume,
				 gross_spread, buy_cost, sell_revenue, trading_fees, withdrawal_fee, net_profit,
				 feasible, infeasibility_reason)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			resultID,
			op.Timestamp,
			op.BuyExchange,
			op.SellExchange,
			op.BuyPrice.String(),
			op.SellPrice.String(),
			op.Volume.String(),
			op.GrossSpread.String(),
			op.BuyCost.String(),
			op.SellRevenue.String(),
			op.TradingFees.String(),
			op.WithdrawalFee.String(),
			op.NetProfit.String(),
			op.Feasible,
			op.InfeasibilityReason,
		)
		if err != nil {
			return fmt.Errorf("insert opportunity: %w", err)
		}
	}

	return tx.Commit(ctx)
}
