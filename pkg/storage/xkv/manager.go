package xkv

import (
	"context"
	"log/slog"
	"sync"

	"github.com/omeyang/xkv/pkg/lifecycle/xrun"
)

// Manager 把 Driver 接入进程生命周期：Stop 时停止网络。
type Manager struct {
	driver *Driver
	name   string
	logger *slog.Logger

	stopOnce sync.Once
}

// NewManager 创建 Manager。logger 为 nil 时使用 slog.Default()。
func NewManager(driver *Driver, name string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{driver: driver, name: name, logger: logger}
}

// Start 只记录就绪日志。
func (m *Manager) Start(context.Context) error {
	m.logger.Info("database ready", slog.String("name", m.name))
	return nil
}

// Stop 停止 Driver 的网络。只有第一次调用生效，之后的调用直接返回 nil。
func (m *Manager) Stop(context.Context) error {
	var err error
	m.stopOnce.Do(func() {
		if m.driver == nil {
			return
		}
		if err = m.driver.StopNetwork(); err != nil {
			m.logger.Error("stop database network failed",
				slog.String("name", m.name),
				slog.Any("error", err),
			)
			return
		}
		m.logger.Info("database network stopped", slog.String("name", m.name))
	})
	return err
}

var _ xrun.Managed = (*Manager)(nil)
