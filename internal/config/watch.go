package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"smartbot/internal/logger"
)

// ChangeListener 在配置重新加载成功后被调用。
type ChangeListener func(*Config)

// Watcher 监听配置文件变化并重新执行完整的 Load。校验失败的修改被忽略，保留旧配置。
type Watcher struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	current   *Config
	loadedAt  time.Time
	listeners []ChangeListener
}

// Watch 加载 path 并开始监听 FS 事件。
func Watch(path string) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config for watch failed: %w", err)
	}
	w := &Watcher{path: path, v: v, current: cfg, loadedAt: time.Now()}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) {
			return
		}
		w.reload(evt.Name)
	})
	v.WatchConfig()
	return w, nil
}

// Current 返回最近一次成功加载的配置。
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *Watcher) LoadedAt() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.loadedAt
}

// Subscribe 注册监听器。
func (w *Watcher) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}

func (w *Watcher) reload(name string) {
	cfg, err := Load(w.path)
	if err != nil {
		logger.Errorf("config reload failed (%s), keeping previous: %v", name, err)
		return
	}
	w.mu.Lock()
	w.current = cfg
	w.loadedAt = time.Now()
	listeners := append([]ChangeListener(nil), w.listeners...)
	w.mu.Unlock()
	logger.Infof("配置已重新加载: %s", name)
	for _, fn := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("config listener panic: %v", r)
				}
			}()
			fn(cfg)
		}()
	}
}
