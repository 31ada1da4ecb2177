// Package storage 提供数据存储相关的子包。
//
// 子包列表：
//   - xkv: 基于 etcd v3 的乐观事务键值存储，内置指标、重试与健康检查
package storage
