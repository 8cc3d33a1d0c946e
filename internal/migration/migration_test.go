package migration

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/netprofile/netbill/internal/config"
	ledgerdomain "github.com/netprofile/netbill/internal/ledger/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestRunMigrationsSQLiteIsRepeatable(t *testing.T) {
	db := openSQLite(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := config.Config{
		Database: config.DatabaseConfig{Driver: "sqlite"},
		Ledger: config.LedgerConfig{
			OperatorCreditType: "Operator deposit",
			OperatorDebitType:  "Operator withdrawal",
			BaseCurrency:       "USD",
		},
	}
	ctx := context.Background()
	require.NoError(t, RunMigrations(ctx, db, cfg, node, nil))
	require.NoError(t, RunMigrations(ctx, db, cfg, node, nil))
	assert.True(t, db.Migrator().HasColumn(&ledgerdomain.Stash{}, "futures_credit"))

	var usd ledgerdomain.Currency
	require.NoError(t, db.Where("code = ?", "USD").First(&usd).Error)
	assert.Equal(t, "1", usd.ExchangeRate.String())

	var currencies int64
	require.NoError(t, db.Model(&ledgerdomain.Currency{}).Count(&currencies).Error)
	assert.Equal(t, int64(1), currencies)

	var types int64
	require.NoError(t, db.Model(&ledgerdomain.StashIOType{}).Count(&types).Error)
	assert.Equal(t, int64(len(systemIOTypes)+2), types)

	var usage ledgerdomain.StashIOType
	require.NoError(t, db.Where("function = ?", string(ledgerdomain.FunctionRateUsage)).First(&usage).Error)
	assert.Equal(t, ledgerdomain.IOOutgoing, usage.Direction)

	var state BootstrapState
	require.NoError(t, db.First(&state).Error)
	assert.Equal(t, StatusActive, state.Status)

	latest, err := LatestMigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%d", latest), state.SchemaVersion)
	require.NotNil(t, state.Checksum)

	sum, err := MigrationsChecksum()
	require.NoError(t, err)
	assert.Equal(t, sum, *state.Checksum)
}

func TestLatestMigrationVersion(t *testing.T) {
	v, err := LatestMigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(5), v)
}

func TestParseMigrationVersion(t *testing.T) {
	v, ok := parseMigrationVersion("000012_add_index.up.sql")
	assert.True(t, ok)
	assert.Equal(t, uint(12), v)

	_, ok = parseMigrationVersion("init.up.sql")
	assert.False(t, ok)
}
