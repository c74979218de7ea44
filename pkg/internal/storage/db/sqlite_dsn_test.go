//go:build !no_sqlite

package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/cloudvault/pkg/configs"
)

func TestAppendDSNParams(t *testing.T) {
	assert.Equal(t, "cv.db?a=1&b=2", appendDSNParams("cv.db", [2]string{"a", "1"}, [2]string{"b", "2"}))
	assert.Equal(t, "file:x?mode=memory&a=1", appendDSNParams("file:x?mode=memory", [2]string{"a", "1"}))
	assert.Equal(t, "cv.db", appendDSNParams("cv.db"))
}

func TestSQLiteDSNAddsBusyTimeoutOnce(t *testing.T) {
	dsn := sqliteDSN("file:cv?mode=memory&cache=shared")
	assert.Contains(t, dsn, "busy_timeout")
	assert.Equal(t, dsn, sqliteDSN(dsn))
}

func TestSQLiteFactoryOpens(t *testing.T) {
	client, err := New(context.Background(), configs.DBConfig{Type: configs.SQLite, DSN: "file:factory?mode=memory&cache=shared"}, false)
	require.NoError(t, err)

	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.HealthCheck(context.Background()))
}
