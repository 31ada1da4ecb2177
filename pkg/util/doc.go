// Package util 提供通用工具相关的子包。
//
// 子包列表：
//   - xpool: 固定大小的 Worker Pool，可作为异步事务的执行器
package util
