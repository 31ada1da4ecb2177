// Package xlog 以构建器方式创建 slog.Logger。
//
// 支持 text/json 两种格式、字符串级别与按大小轮转的文件输出：
//
//	logger, cleanup, err := xlog.New().
//		SetLevelString("debug").
//		SetFormat("json").
//		SetRotation("/var/log/xkvctl.log", xrotate.WithMaxSize(50)).
//		Build()
//	if err != nil {
//	    return err
//	}
//	defer cleanup()
package xlog
