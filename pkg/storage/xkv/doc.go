// Package xkv 提供基于 etcd v3 的事务型键值存储访问层。
//
// # 事务模型
//
// 事务采用乐观并发控制：
//   - 第一次读取固定快照版本，之后的读取都在该版本上进行
//   - 写入先缓冲在本地，事务函数返回后通过一次 etcd Txn 提交
//   - 提交时比较所有读过的键的 ModRevision，任一键被并发修改即为冲突
//   - 冲突（CodeNotCommitted）在事务内部以短退避自动重试，直到 WithRetryLimit 或 WithTimeout
//
// 事务函数可能被调用多次，不应产生外部副作用。
//
// # 组装
//
// Build 按 Config 打开连接并组装：
//
//	Instrumented(Retrying(Conn))
//
// 其中 Instrumented 记录 "{name}.read.timeInNanos" 等计时器和
// "{name}.MainThreadBusyness" gauge；Retrying 按 xretry.Policy 重试可重试的存储错误。
// 健康检查注册到 xhealth.Registrar，Driver 的停止注册到 xrun.Registrar。
//
// # 使用方式
//
//	cfg := xkv.DefaultConfig()
//	cfg.ClusterDescriptor = "prod:a1b2@10.0.0.1:2379,10.0.0.2:2379"
//	cfg.DataCenter = "dc1"
//	db, err := xkv.Build(ctx, cfg, xkv.Deps{
//	    Metrics:   xmetrics.NewOTelRegistry(),
//	    Lifecycle: lifecycle,
//	    Health:    health,
//	})
//	if err != nil {
//	    return err
//	}
//	err = db.Run(ctx, func(ctx context.Context, tx xkv.Transaction) error {
//	    v, err := tx.Get("/counter")
//	    if err != nil {
//	        return err
//	    }
//	    tx.Set("/counter", next(v))
//	    return nil
//	})
//
// # 错误
//
// 存储错误统一为 *StoreError，Code 给出分类；IsTransient 判断是否可重试。
// 事务函数自身返回的错误原样透传，不会被重试。
//
// NewMemoryDriver 提供进程内实现，便于测试与本地开发。
package xkv
