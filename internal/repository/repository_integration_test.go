package repository_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"storybook-server/internal/domain"
	"storybook-server/internal/quota"
	"storybook-server/internal/repository"
	"storybook-server/internal/service"

	"github.com/docker/docker/client"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

type RepositoryIntegrationSuite struct {
	suite.Suite
	ctx         context.Context
	pgContainer *postgres.PostgresContainer
	rdContainer *tcredis.RedisContainer
	pgPool      *pgxpool.Pool
	redisClient *redis.Client
	logger      *zap.Logger

	generations service.GenerationRepository
	ledger      *repository.PgWebhookEventRepository
	accounts    *repository.PgAccountRepository
	options     *repository.PgStoryOptionRepository
}

func (s *RepositoryIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = zap.NewNop()
	var err error

	s.pgContainer, err = postgres.Run(s.ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("storybook_test"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Minute),
		),
	)
	s.Require().NoError(err, "Failed to start postgres container")

	pgConnStr, err := s.pgContainer.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	s.pgPool, err = pgxpool.New(s.ctx, pgConnStr)
	s.Require().NoError(err)
	s.Require().NoError(s.runMigrations(pgConnStr))

	s.rdContainer, err = tcredis.Run(s.ctx,
		"docker.io/redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("* Ready to accept connections").
				WithOccurrence(1).
				WithStartupTimeout(1*time.Minute),
		),
	)
	s.Require().NoError(err, "Failed to start redis container")

	redisHost, err := s.rdContainer.Host(s.ctx)
	s.Require().NoError(err)
	redisPort, err := s.rdContainer.MappedPort(s.ctx, "6379/tcp")
	s.Require().NoError(err)
	s.redisClient = redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", redisHost, redisPort.Port())})
	s.Require().NoError(s.redisClient.Ping(s.ctx).Err())

	s.generations = repository.NewPgGenerationRepository(s.pgPool, s.logger)
	s.ledger = repository.NewPgWebhookEventRepository(s.pgPool, s.logger)
	s.accounts = repository.NewPgAccountRepository(s.pgPool, s.logger)
	s.options = repository.NewPgStoryOptionRepository(s.pgPool, s.logger)
}

func (s *RepositoryIntegrationSuite) TearDownSuite() {
	if s.pgPool != nil {
		s.pgPool.Close()
	}
	if s.redisClient != nil {
		s.redisClient.Close()
	}
	if s.pgContainer != nil {
		_ = s.pgContainer.Terminate(s.ctx)
	}
	if s.rdContainer != nil {
		_ = s.rdContainer.Terminate(s.ctx)
	}
}

func (s *RepositoryIntegrationSuite) SetupTest() {
	s.Require().NoError(s.redisClient.FlushDB(s.ctx).Err())
	_, err := s.pgPool.Exec(s.ctx, "TRUNCATE TABLE generation_requests, webhook_events, accounts")
	s.Require().NoError(err)
}

func (s *RepositoryIntegrationSuite) runMigrations(dbURL string) error {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return fmt.Errorf("could not get caller information")
	}
	migrationsPath := filepath.Join(filepath.Dir(filename), "..", "database", "migrations")

	sourceDriver, err := iofs.New(os.DirFS(migrationsPath), ".")
	if err != nil {
		return fmt.Errorf("failed to create iofs source driver: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, dbURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

func TestRepositoryIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		t.Skipf("Docker client init error: %v", err)
	}
	if _, err := cli.Ping(context.Background()); err != nil {
		cli.Close()
		t.Skipf("Docker daemon is not accessible: %v", err)
	}
	cli.Close()

	suite.Run(t, new(RepositoryIntegrationSuite))
}

var (
	itNow = time.Date(2025, time.March, 14, 10, 30, 0, 0, time.UTC)
	itCfg = domain.GenerationConfig{ThemeID: "space", ToneID: "calm", LanguageID: "en", AgeGroupID: "4-6", ChapterCount: 3}
)

func (s *RepositoryIntegrationSuite) TestGenerationRoundTrip() {
	owner := uuid.New()
	g := domain.NewGenerationRequest(uuid.New(), owner, itCfg, itNow)
	s.Require().NoError(s.generations.Create(s.ctx, g))

	loaded, found, err := s.generations.FindByID(s.ctx, g.ID)
	s.Require().NoError(err)
	s.Require().True(found)
	s.Equal(domain.StatusPending, loaded.Status())
	s.Equal(itCfg, loaded.Config)

	s.Require().NoError(loaded.StartGeneration("job-1", itNow.Add(time.Second)))
	s.Require().NoError(s.generations.Save(s.ctx, loaded))
	s.Require().NoError(loaded.CompleteGeneration("s3://stories/a.json", itNow.Add(time.Minute)))
	s.Require().NoError(s.generations.Save(s.ctx, loaded))

	loaded, _, err = s.generations.FindByID(s.ctx, g.ID)
	s.Require().NoError(err)
	s.Equal(domain.StatusCompleted, loaded.Status())
	ref, _ := loaded.ArtifactRef()
	s.Equal("s3://stories/a.json", ref)
	jobID, _ := loaded.ExternalJobID()
	s.Equal("job-1", jobID)

	_, found, err = s.generations.FindActiveByOwner(s.ctx, owner)
	s.Require().NoError(err)
	s.False(found)
}

func (s *RepositoryIntegrationSuite) TestFailedBeforeDispatchRoundTrip() {
	g := domain.NewGenerationRequest(uuid.New(), uuid.New(), itCfg, itNow)
	s.Require().NoError(s.generations.Create(s.ctx, g))
	s.Require().NoError(g.FailGeneration(domain.DispatchFailureReason, itNow.Add(time.Second)))
	s.Require().NoError(s.generations.Save(s.ctx, g))

	loaded, _, err := s.generations.FindByID(s.ctx, g.ID)
	s.Require().NoError(err)
	s.Equal(domain.StatusFailed, loaded.Status())
	reason, _ := loaded.LastError()
	s.Equal("dispatch failed", reason)
	_, hasJob := loaded.ExternalJobID()
	s.False(hasJob)
}

func (s *RepositoryIntegrationSuite) TestOneActiveGenerationPerOwner() {
	owner := uuid.New()
	s.Require().NoError(s.generations.Create(s.ctx, domain.NewGenerationRequest(uuid.New(), owner, itCfg, itNow)))

	err := s.generations.Create(s.ctx, domain.NewGenerationRequest(uuid.New(), owner, itCfg, itNow))
	s.ErrorIs(err, domain.ErrActiveGenerationExists)

	s.Require().NoError(s.generations.Create(s.ctx, domain.NewGenerationRequest(uuid.New(), uuid.New(), itCfg, itNow)))
}

func (s *RepositoryIntegrationSuite) TestCountByOwnerInPeriod() {
	owner := uuid.New()
	from, to := quota.PeriodBounds(itNow)
	for _, createdAt := range []time.Time{from.Add(-time.Second), from, itNow, to} {
		g := domain.NewGenerationRequest(uuid.New(), owner, itCfg, createdAt)
		s.Require().NoError(g.FailGeneration("x", createdAt))
		s.Require().NoError(s.generations.Create(s.ctx, g))
	}
	count, err := s.generations.CountByOwnerInPeriod(s.ctx, owner, from, to)
	s.Require().NoError(err)
	s.Equal(2, count)
}

func (s *RepositoryIntegrationSuite) TestLedgerClaimLifecycle() {
	payload, _ := json.Marshal(map[string]string{"id": "evt-1"})
	rec := domain.WebhookEventRecord{EventID: "evt-1", EventType: "RENEWAL", SubjectID: "user-1", Payload: payload, CreatedAt: itNow, UpdatedAt: itNow}

	outcome, err := s.ledger.Claim(s.ctx, rec, itNow.Add(time.Minute))
	s.Require().NoError(err)
	s.Equal(domain.ClaimAcquired, outcome)

	outcome, err = s.ledger.Claim(s.ctx, rec, itNow.Add(time.Minute))
	s.Require().NoError(err)
	s.Equal(domain.ClaimInFlight, outcome)

	s.Require().NoError(s.ledger.MarkFailed(s.ctx, "evt-1", "boom", itNow.Add(time.Second)))
	outcome, err = s.ledger.Claim(s.ctx, rec, itNow.Add(time.Minute))
	s.Require().NoError(err)
	s.Equal(domain.ClaimAcquired, outcome)

	s.Require().NoError(s.ledger.MarkProcessed(s.ctx, "evt-1", itNow.Add(2*time.Second)))
	processed, err := s.ledger.IsProcessed(s.ctx, "evt-1")
	s.Require().NoError(err)
	s.True(processed)

	outcome, err = s.ledger.Claim(s.ctx, rec, itNow.Add(time.Minute))
	s.Require().NoError(err)
	s.Equal(domain.ClaimAlreadyProcessed, outcome)

	stored, err := s.ledger.Get(s.ctx, "evt-1")
	s.Require().NoError(err)
	s.Equal(2, stored.Attempts)
	s.Nil(stored.ErrorMessage)
	s.JSONEq(string(payload), string(stored.Payload))
}

func (s *RepositoryIntegrationSuite) TestConcurrentClaimsHaveOneWinner() {
	rec := domain.WebhookEventRecord{EventID: "evt-race", EventType: "RENEWAL", SubjectID: "user-1", CreatedAt: itNow, UpdatedAt: itNow}

	const workers = 10
	outcomes := make([]domain.ClaimOutcome, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome, err := s.ledger.Claim(s.ctx, rec, itNow.Add(time.Minute))
			s.NoError(err)
			outcomes[i] = outcome
		}(i)
	}
	wg.Wait()

	acquired := 0
	for _, o := range outcomes {
		if o == domain.ClaimAcquired {
			acquired++
		}
	}
	s.Equal(1, acquired)
}

func (s *RepositoryIntegrationSuite) TestEntitlementUpsert() {
	_, found, err := s.accounts.GetEntitlement(s.ctx, "user-1")
	s.Require().NoError(err)
	s.False(found)

	s.Require().NoError(s.accounts.SetEntitlement(s.ctx, "user-1", domain.EntitlementPremium))
	s.Require().NoError(s.accounts.SetEntitlement(s.ctx, "user-1", domain.EntitlementExpired))

	status, found, err := s.accounts.GetEntitlement(s.ctx, "user-1")
	s.Require().NoError(err)
	s.True(found)
	s.Equal(domain.EntitlementExpired, status)
}

func (s *RepositoryIntegrationSuite) TestSeededStoryOptions() {
	opt, found, err := s.options.FindOption(s.ctx, domain.OptionTheme, "space")
	s.Require().NoError(err)
	s.Require().True(found)
	s.Equal("Space adventure", opt.Name)

	_, found, err = s.options.FindOption(s.ctx, domain.OptionTone, "space")
	s.Require().NoError(err)
	s.False(found)

	all, err := s.options.List(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 9)
}

func (s *RepositoryIntegrationSuite) TestRedisSubmissionLock() {
	lock := repository.NewRedisSubmissionLock(s.redisClient, "test_lock", time.Second, 100*time.Millisecond, s.logger)
	owner := uuid.New()

	release, err := lock.Acquire(s.ctx, owner)
	s.Require().NoError(err)

	_, err = lock.Acquire(s.ctx, owner)
	s.ErrorIs(err, repository.ErrLockNotAcquired)

	release()
	release2, err := lock.Acquire(s.ctx, owner)
	s.Require().NoError(err)
	release2()
}

