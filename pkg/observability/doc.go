// Package observability 提供可观测性相关的子包。
//
// 子包列表：
//   - xmetrics: 计时器、计数器与 gauge 的注册表，提供 OpenTelemetry 与内存实现
//   - xhealth: 健康检查注册表、周期调度与 gRPC 健康服务发布
//   - xrotate: 日志文件轮转
package observability
