// Package xmetrics 提供计时器与仪表盘（gauge）的最小化指标接口。
//
// # 设计理念
//
// 业务代码只依赖 Registry/Timer 接口，具体实现可替换：
//   - NewOTelRegistry：基于 OpenTelemetry metric API，计时器映射为 Int64Histogram（单位 ns），
//     gauge 映射为 Float64ObservableGauge（每次采集时回调取值，不缓存）
//   - NewMemoryRegistry：进程内实现，用于测试与命令行工具输出
//   - NoopRegistry：空实现
//
// # 作用域计时
//
// Timer.Start 返回 Stopwatch，Stop 保证只记录一次：
//
//	sw := registry.Timer("xkv.run.timeInNanos").Start()
//	defer sw.Stop()
//
// 对于异步操作，在完成回调中调用 Stop，使记录的耗时覆盖完整的操作时延。
//
// # 并发
//
// 所有实现均可被多个 goroutine 并发使用。
package xmetrics
