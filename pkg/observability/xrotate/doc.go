// Package xrotate 提供按大小轮转的日志文件输出。
//
// [NewLumberjack] 返回的 [Rotator] 实现 io.WriteCloser，可直接作为 slog handler 的输出目标：
//
//	r, err := xrotate.NewLumberjack("/var/log/xkvctl.log", xrotate.WithMaxSize(50))
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//	logger := slog.New(slog.NewJSONHandler(r, nil))
package xrotate
