package xconf

import "reflect"

// Options 定义配置加载选项。
type Options struct {
	// Delim 配置键的分隔符，默认为 "."。
	Delim string

	// Tag 结构体标签名，用于 Unmarshal，默认为 "koanf"。
	Tag string

	// Overrides 在文件内容之上设置的键值。
	Overrides map[string]any
}

// Option 定义配置选项函数类型。
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		Delim: ".",
		Tag:   "koanf",
	}
}

// WithDelim 设置配置键分隔符。
func WithDelim(delim string) Option {
	return func(o *Options) {
		if delim != "" {
			o.Delim = delim
		}
	}
}

// WithTag 设置结构体标签名。
func WithTag(tag string) Option {
	return func(o *Options) {
		if tag != "" {
			o.Tag = tag
		}
	}
}

// WithOverrides 添加覆盖键值，零值会被忽略。多次调用会合并。
func WithOverrides(values map[string]any) Option {
	return func(o *Options) {
		for k, v := range values {
			if isZero(v) {
				continue
			}
			if o.Overrides == nil {
				o.Overrides = make(map[string]any, len(values))
			}
			o.Overrides[k] = v
		}
	}
}

func isZero(v any) bool {
	if v == nil {
		return true
	}
	return reflect.ValueOf(v).IsZero()
}
