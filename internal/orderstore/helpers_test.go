package orderstore

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// testDatabase holds a disposable PostgreSQL container and pool for
// reservation-protocol integration tests.
type testDatabase struct {
	container testcontainers.Container
	pool      *pgxpool.Pool
}

func setupTestDatabase(t *testing.T) *testDatabase {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("orders"),
		postgres.WithUsername("orders"),
		postgres.WithPassword("orders"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}

	if err := runSchema(ctx, pool); err != nil {
		t.Fatalf("run schema: %v", err)
	}

	return &testDatabase{container: pgContainer, pool: pool}
}

func (td *testDatabase) cleanup() {
	ctx := context.Background()
	if td.pool != nil {
		td.pool.Close()
	}
	if td.container != nil {
		_ = td.container.Terminate(ctx)
	}
}

const testSchema = `
CREATE TABLE status (
	id SERIAL PRIMARY KEY,
	code VARCHAR(20) NOT NULL UNIQUE,
	description VARCHAR(200) NOT NULL,
	version BIGINT NOT NULL DEFAULT 1
);

CREATE TABLE order_type (
	id SERIAL PRIMARY KEY,
	code VARCHAR(20) NOT NULL UNIQUE,
	description VARCHAR(200) NOT NULL,
	version BIGINT NOT NULL DEFAULT 1
);

CREATE TABLE blotter (
	id SERIAL PRIMARY KEY,
	name VARCHAR(200) NOT NULL,
	version BIGINT NOT NULL DEFAULT 1
);

CREATE TABLE "order" (
	id BIGSERIAL PRIMARY KEY,
	blotter_id INT REFERENCES blotter(id) ON DELETE SET NULL,
	status_id INT NOT NULL REFERENCES status(id) ON DELETE RESTRICT,
	portfolio_id VARCHAR(24) NOT NULL,
	order_type_id INT NOT NULL REFERENCES order_type(id) ON DELETE RESTRICT,
	security_id VARCHAR(50) NOT NULL,
	quantity DECIMAL(18,8) NOT NULL,
	limit_price DECIMAL(18,8),
	trade_order_id BIGINT UNIQUE,
	"timestamp" TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	version BIGINT NOT NULL DEFAULT 1
);

INSERT INTO status (code, description) VALUES ('NEW', 'New'), ('SENT', 'Sent'), ('FILLED', 'Filled');
INSERT INTO order_type (code, description) VALUES ('MARKET', 'Market'), ('LIMIT', 'Limit');
INSERT INTO blotter (name) VALUES ('Default');
`

func runSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, testSchema)
	return err
}
