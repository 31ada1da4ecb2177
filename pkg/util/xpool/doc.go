// Package xpool 提供固定数量 worker 的任务执行池。
//
// Pool 满足 xkv.Executor 接口，可以作为异步事务的执行上下文：
//
//	pool := xpool.New(8, 256, xpool.WithName("kv-async"))
//	defer pool.Close()
//	db, err := driver.Open(ctx, descriptor, xkv.WithExecutor(pool))
//
// 注意事项：
//   - Execute 在队列满时阻塞，任务不会被丢弃
//   - Close 之后提交的任务在调用方 goroutine 中同步执行
//   - 任务 panic 会被恢复并记录日志
//   - Close 不可在任务内部调用，否则会死锁
package xpool
