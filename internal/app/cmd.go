package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandSync は認証、ストアの読み込み、おすすめとマッチの取得を順に実行することを示す。
	CommandSync Command = "sync"
	// CommandRefresh はストア内の既知の人物を再同期することを示す。
	CommandRefresh Command = "refresh"
	// CommandLike は引数で指定した人物にライクを送ることを示す。
	CommandLike Command = "like"
	// CommandHealthcheck はステータスサーバーのヘルスチェックを実行することを示す。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandSyncを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandSync
	}

	switch args[0] {
	case "sync":
		return CommandSync
	case "refresh":
		return CommandRefresh
	case "like":
		return CommandLike
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandSync
	}
}
