package testutil

import (
	"context"
	"fmt"
	"log"
	"testing"

	"venue-ledger/config"
	"venue-ledger/internal/database"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Setup 連線測試 DB (跑 migration) 與 Redis
func Setup() (*pgxpool.Pool, *redis.Client, func(), error) {
	cfg := config.LoadTestConfig()

	if err := database.RunMigrations(&cfg.Database); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to migrate test database: %v", err)
	}

	testDB, err := database.InitDatabase(&cfg.Database)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize test database: %v", err)
	}
	log.Println("Test database connected successfully")

	testRdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		testDB.Close()
		return nil, nil, nil, fmt.Errorf("failed to initialize redis: %v", err)
	}
	log.Println("Test redis connected successfully")

	cleanup := func() {
		testDB.Close()
		log.Println("Test database closed")

		testRdb.Close()
		log.Println("Test redis closed")
	}

	return testDB, testRdb, cleanup, nil
}

// SetupDatabaseOnly 只依賴 Postgres 的測試 (repository)
func SetupDatabaseOnly() (*pgxpool.Pool, func(), error) {
	cfg := config.LoadTestConfig()

	if err := database.RunMigrations(&cfg.Database); err != nil {
		return nil, nil, fmt.Errorf("failed to migrate test database: %v", err)
	}
	pool, err := database.InitDatabase(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize test database: %v", err)
	}
	return pool, pool.Close, nil
}

// SetupRedisOnly 僅初始化 Redis，用於只依賴 Redis 的測試（如 queue、cache）
func SetupRedisOnly() (*redis.Client, func(), error) {
	cfg := config.LoadTestConfig()
	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize redis: %v", err)
	}
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("failed to ping redis: %v", err)
	}
	cleanup := func() { rdb.Close() }
	return rdb, cleanup, nil
}

// SkipWithout 外部依賴沒起來時略過整合測試，而不是讓 unit test 一起失敗
func SkipWithout(t *testing.T, dependency string, available bool) {
	t.Helper()
	if !available {
		t.Skipf("%s not available, skipping integration test", dependency)
	}
}
