package data

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/stake-plus/dao-monitor/src/gov"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestLoadSettingsReadsActiveRows(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "settings.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&gov.Setting{}))
	require.NoError(t, db.Create(&[]gov.Setting{
		{ID: 1, Name: "monitor_interval", Value: "90s", Active: 1},
		{ID: 2, Name: "monitor_window", Value: "10", Active: 0},
	}).Error)

	s, err := LoadSettings(db)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, "90s", s.Get("monitor_interval"))
	assert.Empty(t, s.Get("monitor_window"))

	var empty *Settings
	assert.Empty(t, empty.Get("anything"))
}

func TestEnsureParam(t *testing.T) {
	assert.Equal(t, "u:p@tcp(db)/x?parseTime=true", ensureParam("u:p@tcp(db)/x", "parseTime", "true"))
	assert.Equal(t, "u@/x?a=1&parseTime=true", ensureParam("u@/x?a=1", "parseTime", "true"))
	assert.Equal(t, "u@/x?parseTime=false", ensureParam("u@/x?parseTime=false", "parseTime", "true"))
}

func TestConnectRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := ConnectRedis(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	defer rdb.Close()
	require.NoError(t, rdb.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	_, err = ConnectRedis(context.Background(), "not a url")
	assert.Error(t, err)
}
