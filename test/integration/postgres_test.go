// Postgres-backed pipeline tests. They need a reachable database and skip
// when DB_HOST is not set; point DB_HOST at a scratch instance to run them.
package integration

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/sorrel/internal/repositories/alias"
	"github.com/Ramsey-B/sorrel/internal/repositories/identifier"
	"github.com/Ramsey-B/sorrel/internal/repositories/matchcandidate"
	"github.com/Ramsey-B/sorrel/internal/repositories/mergelog"
	"github.com/Ramsey-B/sorrel/internal/repositories/person"
	"github.com/Ramsey-B/sorrel/internal/repositories/relationship"
	"github.com/Ramsey-B/sorrel/pkg/database"
	"github.com/Ramsey-B/sorrel/pkg/matching"
	"github.com/Ramsey-B/sorrel/pkg/merging"
	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/normalizers"
)

var migrateOnce sync.Once

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func getTestDB(t *testing.T) database.DB {
	t.Helper()

	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		t.Skip("DB_HOST not set; skipping Postgres integration tests")
	}
	dbUser := os.Getenv("DB_USER_NAME")
	if dbUser == "" {
		dbUser = "user"
	}
	dbPass := os.Getenv("DB_PASSWORD")
	if dbPass == "" {
		dbPass = "password"
	}
	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		dbName = "sorrel"
	}

	dsn := "host=" + dbHost + " user=" + dbUser + " password=" + dbPass + " dbname=" + dbName + " sslmode=disable"
	sqlxDB, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err, "Failed to connect to test database")

	logger := getTestLogger()
	db := database.NewDatabaseInstance(sqlxDB, logger)

	migrateOnce.Do(func() {
		driver, err := migratepg.WithInstance(sqlxDB.DB, &migratepg.Config{})
		require.NoError(t, err)
		migrationService := database.NewMigrationService(logger, &database.MigrationConfig{
			MigrationFolderPath: "../../db/pg",
		})
		require.NoError(t, migrationService.Migrate(dbName, driver))
	})

	return db
}

// pipelineFixture wires the repositories and services against one database
// handle the way main does, minus kafka, redis and the graph.
type pipelineFixture struct {
	personRepo     *person.Repository
	identifierRepo *identifier.Repository
	aliasRepo      *alias.Repository
	candidateRepo  *matchcandidate.Repository
	mergeLogRepo   *mergelog.Repository
	engine         *merging.Engine
	matchingSvc    *matching.Service
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()

	db := getTestDB(t)
	logger := getTestLogger()

	personRepo := person.NewRepository(db, logger)
	identifierRepo := identifier.NewRepository(db, logger)
	aliasRepo := alias.NewRepository(db, logger)
	relationshipRepo := relationship.NewRepository(db, logger)
	candidateRepo := matchcandidate.NewRepository(db, logger)
	mergeLogRepo := mergelog.NewRepository(db, logger)

	engine := merging.NewEngine(logger, db, personRepo, identifierRepo, aliasRepo, relationshipRepo, mergeLogRepo, nil, nil)
	matchingSvc := matching.NewService(logger, matching.DefaultConfig(), personRepo, identifierRepo, candidateRepo, engine)

	return &pipelineFixture{
		personRepo:     personRepo,
		identifierRepo: identifierRepo,
		aliasRepo:      aliasRepo,
		candidateRepo:  candidateRepo,
		mergeLogRepo:   mergeLogRepo,
		engine:         engine,
		matchingSvc:    matchingSvc,
	}
}

// createPerson seeds a canonical person with normalized facts the way the
// ingest path would.
func (f *pipelineFixture) createPerson(t *testing.T, ctx context.Context, tenant, name, email, phone string) *models.Person {
	t.Helper()

	nameNorm := normalizers.NormalizeName(name)
	p := &models.Person{
		TenantID:    tenant,
		DisplayName: name,
	}
	if nameNorm != "" {
		p.NameNorm = &nameNorm
	}

	created, err := f.personRepo.Create(ctx, p)
	require.NoError(t, err)

	var identifiers []*models.Identifier
	if norm := normalizers.NormalizeEmail(email); norm != "" {
		identifiers = append(identifiers, &models.Identifier{
			TenantID:     tenant,
			PersonID:     created.ID,
			IDType:       models.IdentifierTypeEmail,
			ValueRaw:     email,
			ValueNorm:    norm,
			SourceSystem: "test",
		})
	}
	if norm := normalizers.NormalizePhone(phone); norm != "" {
		identifiers = append(identifiers, &models.Identifier{
			TenantID:     tenant,
			PersonID:     created.ID,
			IDType:       models.IdentifierTypePhone,
			ValueRaw:     phone,
			ValueNorm:    norm,
			SourceSystem: "test",
		})
	}
	require.NoError(t, f.identifierRepo.CreateBatch(ctx, identifiers))

	if nameNorm != "" {
		require.NoError(t, f.aliasRepo.Record(ctx, &models.Alias{
			TenantID:     tenant,
			PersonID:     created.ID,
			Name:         name,
			NameNorm:     nameNorm,
			SourceSystem: "test",
		}))
	}

	return created
}

func TestAutoMergeSweep_SecondPassMergesNothing(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	tenant := uuid.New().String()

	a := f.createPerson(t, ctx, tenant, "Dana Whitfield", "dana@example.com", "5558881234")
	b := f.createPerson(t, ctx, tenant, "Dana Whitfield", "dana@example.com", "5558881234")

	generated, err := f.matchingSvc.GenerateCandidates(ctx, tenant, 100, false)
	require.NoError(t, err)
	assert.Equal(t, 1, generated.Inserted)

	swept, err := f.matchingSvc.AutoMergeSweep(ctx, tenant, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, swept.Scored)
	assert.Equal(t, 1, swept.Merged)

	// Rerun with no new data: no new pairs, nothing left to score or merge.
	generated, err = f.matchingSvc.GenerateCandidates(ctx, tenant, 100, false)
	require.NoError(t, err)
	assert.Equal(t, 0, generated.Inserted)

	swept, err = f.matchingSvc.AutoMergeSweep(ctx, tenant, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, swept.Scored)
	assert.Equal(t, 0, swept.Merged)

	// Reversing the merge and regenerating with rescore re-opens the pair
	// for a fresh evaluation; without rescore the resolved row blocks it.
	entries, err := f.mergeLogRepo.ListByPerson(ctx, tenant, a.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	_, err = f.engine.Undo(ctx, tenant, entries[0].ID, "ops")
	require.NoError(t, err)

	generated, err = f.matchingSvc.GenerateCandidates(ctx, tenant, 100, false)
	require.NoError(t, err)
	assert.Equal(t, 0, generated.Inserted)

	generated, err = f.matchingSvc.GenerateCandidates(ctx, tenant, 100, true)
	require.NoError(t, err)
	assert.Equal(t, 1, generated.Inserted)

	reopened, err := f.candidateRepo.GetByPair(ctx, tenant, a.ID, b.ID)
	require.NoError(t, err)
	require.NotNil(t, reopened)
	assert.Equal(t, models.MatchCandidateStatusPending, reopened.Status)
	assert.Nil(t, reopened.Score)
}

func TestUndo_RestoresPreMergeFacts(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	tenant := uuid.New().String()

	source := f.createPerson(t, ctx, tenant, "Ann Alpha", "ann@example.com", "")
	target := f.createPerson(t, ctx, tenant, "Bea Beta", "bea@example.com", "")

	result, err := f.engine.Merge(ctx, tenant, source.ID, target.ID, merging.MergeOptions{
		Reason: "manual merge",
		Actor:  "ops",
	})
	require.NoError(t, err)
	require.False(t, result.NoOp)

	merged, err := f.identifierRepo.ListByPerson(ctx, tenant, target.ID)
	require.NoError(t, err)
	assert.Len(t, merged, 2)

	stripped, err := f.identifierRepo.ListByPerson(ctx, tenant, source.ID)
	require.NoError(t, err)
	assert.Empty(t, stripped)

	_, err = f.engine.Undo(ctx, tenant, result.LogID, "ops")
	require.NoError(t, err)

	restored, err := f.identifierRepo.ListByPerson(ctx, tenant, source.ID)
	require.NoError(t, err)
	require.Len(t, restored, 1)
	assert.Equal(t, "ann@example.com", restored[0].ValueNorm)

	kept, err := f.identifierRepo.ListByPerson(ctx, tenant, target.ID)
	require.NoError(t, err)
	require.Len(t, kept, 1)
	assert.Equal(t, "bea@example.com", kept[0].ValueNorm)

	sourceAliases, err := f.aliasRepo.ListByPerson(ctx, tenant, source.ID)
	require.NoError(t, err)
	require.Len(t, sourceAliases, 1)
	assert.Equal(t, "ann alpha", sourceAliases[0].NameNorm)

	targetAliases, err := f.aliasRepo.ListByPerson(ctx, tenant, target.ID)
	require.NoError(t, err)
	require.Len(t, targetAliases, 1)
	assert.Equal(t, "bea beta", targetAliases[0].NameNorm)

	mergedInto, err := f.personRepo.GetMergedInto(ctx, tenant, source.ID)
	require.NoError(t, err)
	assert.Nil(t, mergedInto)
}

func TestGenerateCandidates_RescoreReopensRejectedPair(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	tenant := uuid.New().String()

	a := f.createPerson(t, ctx, tenant, "Casey North", "casey@example.com", "5552221111")
	b := f.createPerson(t, ctx, tenant, "Casey Morth", "casey.n@example.com", "5552221111")

	generated, err := f.matchingSvc.GenerateCandidates(ctx, tenant, 100, false)
	require.NoError(t, err)
	require.Equal(t, 1, generated.Inserted)

	candidate, err := f.candidateRepo.GetByPair(ctx, tenant, a.ID, b.ID)
	require.NoError(t, err)
	require.NotNil(t, candidate)

	reviewer := "reviewer"
	require.NoError(t, f.candidateRepo.UpdateStatusByID(ctx, tenant, candidate.ID, models.MatchCandidateStatusRejected, &reviewer))

	generated, err = f.matchingSvc.GenerateCandidates(ctx, tenant, 100, false)
	require.NoError(t, err)
	assert.Equal(t, 0, generated.Inserted)

	generated, err = f.matchingSvc.GenerateCandidates(ctx, tenant, 100, true)
	require.NoError(t, err)
	assert.Equal(t, 1, generated.Inserted)

	reopened, err := f.candidateRepo.GetByPair(ctx, tenant, a.ID, b.ID)
	require.NoError(t, err)
	require.NotNil(t, reopened)
	assert.Equal(t, models.MatchCandidateStatusPending, reopened.Status)
	assert.Nil(t, reopened.Score)
	assert.Nil(t, reopened.ResolvedBy)
}