package database

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"arbtest/internal/model"
)

var (
	pool *pgxpool.Pool
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	// Define the PostgreSQL container request
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpassword",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp"),
	}

	// Create and start the PostgreSQL container
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		log.Fatalf("could not start postgres container: %s", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			log.Fatalf("could not stop postgres container: %s", err)
		}
	}()

	// Get the container's mapped port and host
	host, err := pgContainer.Host(ctx)
	if err != nil {
		log.Fatalf("could not get container host: %s", err)
	}
	port, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		log.Fatalf("could not get mapped port: %s", err)
	}

	// Create the database connection string
	connStr := "postgres://testuser:testpassword@" + host + ":" + port.Port() + "/testdb"

	// Create a new connection pool
	pool, err = pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("could not connect to database: %s", err)
	}
	defer pool.Close()

	// Create the tables
	repo := NewPostgresRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		log.Fatalf("could not migrate: %s", err)
	}

	// Run the tests
	code := m.Run()

	os.Exit(code)
}

func TestPostgresRepository_SaveResult(t *testing.T) {
	ctx := context.Background()
	repo := NewPostgresRepository(pool)

	op := model.ArbitrageOpportunity{
		Timestamp:     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		BuyExchange:   "kraken",
		SellExchange:  "binance",
		BuyPrice:      decimal.RequireFromString("60000"),
		SellPrice:     decimal.RequireFromString("60100"),
		Volume:        decimal.RequireFromString("0.5"),
		GrossSpread:   decimal.RequireFromString("50"),
		BuyCost:       decimal.RequireFromString("30078"),
		SellRevenue:   decimal.RequireFromString("30019.95"),
		TradingFees:   decimal.RequireFromString("108.05"),
		WithdrawalFee: decimal.RequireFromString("0.00015"),
		NetProfit:     decimal.RequireFromString("-58.05015"),
		Feasible:      true,
	}
	result := model.BacktestResult{
		Task:          model.Task{ExchangeA: "kraken", ExchangeB: "binance", Symbol: "BTC/EUR"},
		Status:        model.StatusSucceeded,
		Opportunities: []model.ArbitrageOpportunity{op},
		Stats: model.BacktestStats{
			FeasibleCount:   1,
			TotalNetProfit:  op.NetProfit,
			MaxSingleProfit: op.NetProfit,
		},
	}

	err := repo.SaveResult(ctx, result)
	require.NoError(t, err)

	// Verify the result row
	var symbol, status string
	var feasibleCount int
	var totalNetProfit string
	var resultID int64
	err = pool.QueryRow(ctx,
		`SELECT id, symbol, status, feasible_count, total_net_profit::text
		 FROM backtest_results WHERE symbol = 'BTC/EUR'`).
		Scan(&resultID, &symbol, &status, &feasibleCount, &totalNetProfit)
	require.NoError(t, err)
	assert.Equal(t, "BTC/EUR", symbol)
	assert.Equal(t, "succeeded", status)
	assert.Equal(t, 1, feasibleCount)
	assert.True(t, decimal.RequireFromString(totalNetProfit).Equal(op.NetProfit))

	// Verify the opportunity row references it
	var buyExchange, sellExchange, netProfit string
	err = pool.QueryRow(ctx,
		`SELECT buy_exchange, sell_exchange, net_profit::text
		 FROM arbitrage_opportunities WHERE result_id = $1`, resultID).
		Scan(&buyExchange, &sellExchange, &netProfit)
	require.NoError(t, err)
	assert.Equal(t, "kraken", buyExchange)
	assert.Equal(t, "binance", sellExchange)
	assert.True(t, decimal.RequireFromString(netProfit).Equal(op.NetProfit))
}

func TestPostgresRepository_SaveFailedResult(t *testing.T) {
	ctx := context.Background()
	repo := NewPostgresRepository(pool)

	result := model.BacktestResult{
		Task:   model.Task{ExchangeA: "kraken", ExchangeB: "binance", Symbol: "LTC/EUR"},
		Status: model.StatusFailed,
		Err:    &model.DataDefectError{Exchange: "kraken", Symbol: "LTC/EUR", Detail: "timestamp regression"},
	}

	err := repo.SaveResult(ctx, result)
	require.NoError(t, err)

	var status string
	var errText *string
	err = pool.QueryRow(ctx,
		`SELECT status, error FROM backtest_results WHERE symbol = 'LTC/EUR'`).
		Scan(&status, &errText)
	require.NoError(t, err)
	assert.Equal(t, "failed", status)
	require.NotNil(t, errText)
	assert.Contains(t, *errText, "timestamp regression")
}
