// Package xretry 提供有界指数退避的重试执行器。
//
// # 策略
//
// Policy 由三个参数组成：
//   - MaxAttempts：最大尝试次数（包含首次尝试），至少为 1
//   - InitialDelay：首次重试前的等待时间
//   - MaxDelay：单次等待的上限
//
// 第 k 次尝试（k >= 2）之前的等待时间为 Backoff(k-1)，其中
// Backoff(n) = min(InitialDelay * 2^(n-1), MaxDelay)。
//
// # 错误分类
//
// 只有显式声明可重试的错误才会被重试：错误链中某个错误实现
// RetryableError 且 Retryable() 返回 true。其余错误一律视为致命错误，
// 原样返回给调用方，只执行一次。
//
// 可重试错误耗尽全部尝试次数后，返回 *ExhaustedError，它包装最后一次的错误。
//
// # 使用方式
//
//	p, err := xretry.NewPolicy(10, 10*time.Millisecond, time.Second)
//	if err != nil {
//	    return err
//	}
//	err = xretry.Execute(ctx, p, func(ctx context.Context) error {
//	    return doSomething(ctx)
//	})
//
// 底层使用 [avast/retry-go/v5] 实现等待与取消。
//
// [avast/retry-go/v5]: https://github.com/avast/retry-go
package xretry
