package testutil

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/crowdbracket/crowdbracket/internal/api"
	"github.com/crowdbracket/crowdbracket/internal/broadcast"
	"github.com/crowdbracket/crowdbracket/internal/config"
	"github.com/crowdbracket/crowdbracket/internal/domain"
	"github.com/crowdbracket/crowdbracket/internal/live"
	"github.com/crowdbracket/crowdbracket/internal/repository"
	repoPostgres "github.com/crowdbracket/crowdbracket/internal/repository/postgres"
	"github.com/crowdbracket/crowdbracket/internal/service"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"
	gormPostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// HostPassword is the plaintext counterpart of TestConfig's password hash.
const HostPassword = "test-host-password"

// TestDB manages a testcontainers PostgreSQL instance
type TestDB struct {
	Container testcontainers.Container
	DB        *gorm.DB
	DSN       string
}

// NewTestDB creates a new PostgreSQL testcontainer and returns a connection
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	ctx := context.Background()

	container, err := tcPostgres.Run(ctx,
		"postgres:15-alpine",
		tcPostgres.WithDatabase("test_crowdbracket"),
		tcPostgres.WithUsername("test"),
		tcPostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	db, err := gorm.Open(gormPostgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}

	// Run migrations
	err = db.AutoMigrate(
		&domain.Tournament{},
		&domain.Participant{},
		&domain.VoteRecord{},
		&domain.BracketCheckpoint{},
	)
	if err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	testDB := &TestDB{
		Container: container,
		DB:        db,
		DSN:       dsn,
	}

	t.Cleanup(func() {
		testDB.Cleanup()
	})

	return testDB
}

// Cleanup terminates the container
func (tdb *TestDB) Cleanup() {
	if tdb.Container != nil {
		ctx := context.Background()
		tdb.Container.Terminate(ctx)
	}
}

// Truncate clears all tables for test isolation
func (tdb *TestDB) Truncate(t *testing.T) {
	t.Helper()

	tables := []string{
		"bracket_checkpoints",
		"vote_records",
		"participants",
		"tournaments",
	}

	for _, table := range tables {
		if err := tdb.DB.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)).Error; err != nil {
			t.Logf("warning: failed to truncate %s: %v", table, err)
		}
	}
}

// TestConfig returns a configuration suitable for testing
func TestConfig() *config.Config {
	hash, err := bcrypt.GenerateFromPassword([]byte(HostPassword), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return &config.Config{
		Port:               "0", // Random port
		Environment:        "test",
		JWTSecret:          "test-jwt-secret-key-for-testing-only",
		JWTExpirationHours: 1,
		HostPasswordHash:   string(hash),
		VoteCooldown:       10 * time.Millisecond, // Fast cooldown for tests
		RateLimitHorizon:   time.Second,
		BatchWindow:        20 * time.Millisecond,
		FastBatchWindow:    5 * time.Millisecond,
		AdaptiveThreshold:  20,
		MaxBatchSize:       100,
		PersistTimeout:     5 * time.Second,
	}
}

// TestServer holds all components for integration testing
type TestServer struct {
	Server      *httptest.Server
	DB          *TestDB
	Repos       *repository.Repositories
	Services    *service.Services
	Broadcaster *broadcast.Service
	Manager     *live.Manager
	Config      *config.Config
}

// NewTestServer creates a complete test server with all dependencies
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()

	testDB := NewTestDB(t)
	cfg := TestConfig()

	repos := repoPostgres.NewRepositories(testDB.DB)
	services := service.NewServices(repos, cfg)

	persister := service.NewVotePersister(services.Vote)
	broadcaster := broadcast.NewService(broadcast.Config{
		Cooldown:          cfg.VoteCooldown,
		PruneHorizon:      cfg.RateLimitHorizon,
		PruneInterval:     cfg.RateLimitHorizon / 2,
		BatchWindow:       cfg.BatchWindow,
		FastBatchWindow:   cfg.FastBatchWindow,
		AdaptiveThreshold: cfg.AdaptiveThreshold,
		MaxBatch:          cfg.MaxBatchSize,
		PersistTimeout:    cfg.PersistTimeout,
	}, persister)

	// Chat gateway URL left empty: runs started here skip ingestion.
	manager := live.NewManager(repos.Participant, broadcaster, services.Checkpoint, "", "")
	broadcaster.SetMatchIndexFunc(manager.CurrentMatchIndex)

	router := api.NewRouter(services, broadcaster, manager, repos)
	server := httptest.NewServer(router)

	ts := &TestServer{
		Server:      server,
		DB:          testDB,
		Repos:       repos,
		Services:    services,
		Broadcaster: broadcaster,
		Manager:     manager,
		Config:      cfg,
	}

	t.Cleanup(func() {
		manager.StopAll()
		server.Close()
	})

	return ts
}

// BaseURL returns the test server's base URL
func (ts *TestServer) BaseURL() string {
	return ts.Server.URL
}

// APIURL returns the full API URL for a given path
func (ts *TestServer) APIURL(path string) string {
	return fmt.Sprintf("%s/api/v1%s", ts.Server.URL, path)
}

// SubscribeURL returns the WebSocket push-stream URL for a tournament
func (ts *TestServer) SubscribeURL(tournamentID string) string {
	wsURL := "ws" + ts.Server.URL[4:] // Replace "http" with "ws"
	return fmt.Sprintf("%s/votes/%s/subscribe", wsURL, tournamentID)
}
