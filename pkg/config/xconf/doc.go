// Package xconf 基于 koanf 加载 YAML/JSON 配置文件并反序列化到结构体。
//
// # 基本用法
//
//	cfg, err := xconf.New("/etc/xkv/config.yaml")
//	if err != nil {
//	    return err
//	}
//	kv := xkv.DefaultConfig()
//	if err := cfg.Unmarshal("xkv", &kv); err != nil {
//	    return err
//	}
//
// Unmarshal 不会清空目标结构体中配置文件未出现的字段，因此可以先填充默认值再加载。
// 时长字段支持 "5s"、"10ms" 这样的字符串。
//
// # 覆盖
//
// WithOverrides 在文件内容之上设置键值，常用于命令行参数覆盖配置文件：
//
//	cfg, err := xconf.New(path, xconf.WithOverrides(map[string]any{
//	    "xkv.clusterDescriptor": flagCluster,
//	}))
//
// 值为零值（空字符串、nil）的覆盖项会被忽略。
package xconf
