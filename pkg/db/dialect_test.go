package db

import (
	"testing"

	"smallbiznis-gamification/pkg/config"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
)

func TestDialect(t *testing.T) {
	cfg := &config.Config{}
	cfg.Database.Host = "db"
	cfg.Database.Port = "5432"
	cfg.Database.User = "app"
	cfg.Database.DBNAME = "rewards"

	pg, ok := Dialect(cfg).(*postgres.Dialector)
	require.True(t, ok)
	require.Contains(t, pg.Config.DSN, "dbname=rewards")
	require.Equal(t, "rewards", getDBNameFromDialector(pg))

	cfg.Database.Type = "MySQL"
	my, ok := Dialect(cfg).(*mysql.Dialector)
	require.True(t, ok)
	require.Equal(t, "rewards", getDBNameFromDialector(my))

	cfg.Database.Type = "sqlite"
	_, ok = Dialect(cfg).(*sqlite.Dialector)
	require.True(t, ok)
}
