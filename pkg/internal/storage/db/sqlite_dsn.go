//go:build !no_sqlite

package db

import "strings"

// sqliteBusyTimeoutMS 写锁冲突时的等待时间，上传与复扫 worker 会并发写同一个库.
const sqliteBusyTimeoutMS = 5000

// appendDSNParams 追加查询参数.
func appendDSNParams(dsn string, params ...[2]string) string {
	var b strings.Builder

	b.WriteString(dsn)

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}

	for _, p := range params {
		b.WriteString(sep)
		b.WriteString(p[0])
		b.WriteByte('=')
		b.WriteString(p[1])

		sep = "&"
	}

	return b.String()
}
