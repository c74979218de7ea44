//go:build !no_sqlite && cgo

package db

import (
	"strconv"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/yeisme/cloudvault/pkg/configs"
)

// sqliteDSN 为 mattn/go-sqlite3 补充 busy_timeout，已显式设置时不覆盖.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_busy_timeout=") || strings.Contains(dsn, "_timeout=") {
		return dsn
	}

	return appendDSNParams(dsn, [2]string{"_busy_timeout", strconv.Itoa(sqliteBusyTimeoutMS)})
}

func init() {
	RegisterDialectorFactory(configs.SQLite, func(dsn string) gorm.Dialector {
		return sqlite.Open(sqliteDSN(dsn))
	})
}
