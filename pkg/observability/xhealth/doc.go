// Package xhealth 提供健康检查的结果模型、注册表、周期调度与 gRPC 健康服务桥接。
//
// # 核心概念
//
//   - Checker：健康检查接口，Check 永不返回错误，失败体现在 Result 中
//   - Registry：按名称管理 Checker，实现 Registrar 接口供组件注册
//   - Scheduler：基于 robfig/cron 周期运行全部检查并缓存最近结果
//   - GRPCReporter：把结果发布到 google.golang.org/grpc/health 服务
//
// # 使用方式
//
//	reg := xhealth.NewRegistry()
//	_ = reg.Register("kv", checker)
//
//	sched, _ := xhealth.NewScheduler(reg, 10*time.Second,
//	    xhealth.WithListener(xhealth.NewGRPCReporter(healthServer).Publish))
//	sched.Start()
//	defer sched.Stop(ctx)
package xhealth
