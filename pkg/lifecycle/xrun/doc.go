// Package xrun 提供受管组件的生命周期管理与进程级服务编排。
//
// # Lifecycle
//
// Lifecycle 按注册顺序启动受管组件（Managed），按相反顺序停止：
//
//	lc := xrun.NewLifecycle(xrun.WithLogger(logger))
//	lc.Manage("kv", manager)
//	if err := lc.Start(ctx); err != nil { ... }
//	defer lc.Stop(context.Background())
//
// 启动失败时，已经启动的组件会按相反顺序停止。Stop 会尝试停止全部组件，
// 并通过 errors.Join 汇总所有错误。
//
// # Group
//
// Group 基于 errgroup 并发运行多个服务；任一服务返回错误或收到信号时，
// 其余服务都会收到取消信号：
//
//	err := xrun.Run(ctx,
//	    lc.Service().Run,
//	    xrun.GRPCServer(server, listener),
//	)
//	if errors.Is(err, xrun.ErrSignal) {
//	    // 正常退出
//	}
package xrun
