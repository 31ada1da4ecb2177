package xmetrics

import "errors"

// Registry 返回的错误。
var (
	// ErrEmptyName 表示指标名称为空。
	ErrEmptyName = errors.New("xmetrics: empty metric name")
	// ErrNilGaugeFunc 表示 gauge 取值函数为 nil。
	ErrNilGaugeFunc = errors.New("xmetrics: nil gauge func")
	// ErrDuplicateMetric 表示同名 gauge 已注册。
	ErrDuplicateMetric = errors.New("xmetrics: metric already registered")
	// ErrCreateInstrument 表示创建 OTel instrument 失败。
	ErrCreateInstrument = errors.New("xmetrics: create instrument failed")
)
