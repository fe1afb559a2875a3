package live

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"quanttrade/internal/logger"
)

// Watch 盯住数据文件，写入完成后触发一轮 ProcessNew。
// 流水线落盘通常是 写临时文件 + rename，一次更新会冒出多个事件，
// 用 debounce 合并成一轮处理。阻塞直到 ctx 取消。
func (r *Runner) Watch(ctx context.Context, dataPath string, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// rename 替换文件会让对文件本身的 watch 失效，所以盯目录。
	dir := filepath.Dir(dataPath)
	target := filepath.Clean(dataPath)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	logger.Infof("开始监视 %s (目录 %s)", target, dir)

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			logger.Debugf("数据文件事件: %s", ev)
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Errorf("文件监视错误: %v", err)
		case <-fire:
			if n, err := r.ProcessNew(ctx); err != nil {
				logger.Errorf("处理新交易日失败: %v", err)
			} else if n > 0 {
				logger.Infof("数据更新已消化: %d 个新交易日", n)
			}
		}
	}
}
