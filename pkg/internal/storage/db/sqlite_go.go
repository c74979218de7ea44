//go:build !no_sqlite && !cgo

package db

import (
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/yeisme/cloudvault/pkg/configs"
)

// sqliteDSN 为纯 Go 驱动补充 busy_timeout pragma，已显式设置时不覆盖.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "busy_timeout") {
		return dsn
	}

	return appendDSNParams(dsn, [2]string{"_pragma", fmt.Sprintf("busy_timeout(%d)", sqliteBusyTimeoutMS)})
}

func init() {
	RegisterDialectorFactory(configs.SQLite, func(dsn string) gorm.Dialector {
		return sqlite.Open(sqliteDSN(dsn))
	})
}
