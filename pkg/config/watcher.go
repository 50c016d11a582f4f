package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// OnChange 添加配置变更回调，回调在 viper 重新读取文件后执行
func (c *Config) OnChange(fn func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, fn)
}

// Watch 开始监控配置文件，重复调用无副作用
func (c *Config) Watch() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.viper.ConfigFileUsed() == "" {
		return ErrNoConfigFile
	}
	if c.watching {
		return nil
	}

	c.viper.OnConfigChange(c.handleEvent)
	c.viper.WatchConfig()
	c.watching = true
	return nil
}

// StopWatch 停止响应文件变更
// viper 不支持关闭底层 watcher，此处仅使回调失效
func (c *Config) StopWatch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watching = false
}

// IsProtected 是否处于保护模式
func (c *Config) IsProtected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.protected
}

func (c *Config) handleEvent(_ fsnotify.Event) {
	if c.restoring.Load() {
		return
	}

	c.mu.RLock()
	watching := c.watching
	protected := c.protected
	snapshot := append([]byte(nil), c.snapshot...)
	handlers := append(([]func(*Config))(nil), c.handlers...)
	c.mu.RUnlock()

	if !watching {
		return
	}
	if protected {
		c.restore(snapshot)
		return
	}
	for _, fn := range handlers {
		fn(c)
	}
}

// saveSnapshot 保存当前配置文件内容，调用方持有写锁
func (c *Config) saveSnapshot() error {
	file := c.viper.ConfigFileUsed()
	if file == "" {
		return nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfigReadFailed, err)
	}
	c.snapshot = data
	return nil
}

// restore 通过临时文件原子替换恢复配置文件
func (c *Config) restore(content []byte) {
	file := c.ConfigFileUsed()
	if len(content) == 0 || file == "" {
		return
	}
	if current, err := os.ReadFile(file); err == nil && bytes.Equal(current, content) {
		return
	}

	c.restoring.Store(true)
	defer c.restoring.Store(false)

	tmp, err := os.CreateTemp(filepath.Dir(file), ".wsrelay-restore-*")
	if err != nil {
		c.reportError(fmt.Errorf("create temp file: %w", err))
		return
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		c.reportError(fmt.Errorf("write temp file: %w", err))
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		c.reportError(fmt.Errorf("close temp file: %w", err))
		return
	}
	if err := os.Rename(tmpName, file); err != nil {
		os.Remove(tmpName)
		c.reportError(fmt.Errorf("restore config file: %w", err))
		return
	}

	c.mu.Lock()
	err = c.viper.ReadInConfig()
	c.mu.Unlock()
	if err != nil {
		c.reportError(fmt.Errorf("%w: %w", ErrConfigReadFailed, err))
	}
}

func (c *Config) reportError(err error) {
	c.mu.RLock()
	onError := c.onError
	c.mu.RUnlock()

	if onError != nil {
		onError(err)
		return
	}
	fmt.Fprintf(os.Stderr, "[config] %v\n", err)
}
