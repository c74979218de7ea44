// Package main 启动应用程序
package main

import "github.com/yeisme/cloudvault/pkg/cmd"

//	@title			CloudVault API
//	@version		1.0
//	@description	CloudVault 是一个云文件存储服务，提供批量上传、恶意文件扫描、存储配额、分享链接与用量统计。

//	@license.name	MIT
//	@license.url	https://opensource.org/license/mit/

//	@contact.name	yeisme
//	@contact.email	yefun2004@gmail.com.

//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization

func main() {
	if err := cmd.Execute(); err != nil {
		panic(err)
	}
}
