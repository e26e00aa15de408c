// 版本信息，BuildTime/GitCommit/GoVersion 由 -ldflags 注入

package version

var (
	Version    = "1.3.0" // 版本号 -- 发布时候更新版本号
	APIVersion = "1.0"
	BuildTime  string
	GitCommit  string
	GoVersion  string
)

func GetVersion() string {
	return Version
}

func GetUserAgent() string {
	return "reconledger/" + Version
}
