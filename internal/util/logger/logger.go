// Package logger 提供 go-natmap 的子系统日志
//
// 每个包持有一个子系统 logger：
//
//	var log = logger.Logger("mapping")
//
// 需要固定属性时（如某个网关的客户端）使用 With：
//
//	c.log = logger.With("natpmp", "gateway", gw.String())
//
// 级别来自 NATMAP_LOG_LEVEL（如 natpmp=debug,info），
// 运行中可通过 SetLevel / SetLevels 调整，已创建与派生的 logger 立即生效。
package logger

import (
	"io"
	"log/slog"
	"sync"
)

// registry 子系统 logger 与其级别
type registry struct {
	mu      sync.Mutex
	cfg     *settings
	levels  map[string]*slog.LevelVar
	loggers map[string]*slog.Logger
}

var reg = newRegistry()

func newRegistry() *registry {
	return &registry{
		cfg:     configFromEnv(),
		levels:  make(map[string]*slog.LevelVar),
		loggers: make(map[string]*slog.Logger),
	}
}

// levelLocked 返回子系统的 LevelVar，不存在时按当前配置创建
func (r *registry) levelLocked(subsystem string) *slog.LevelVar {
	lv, ok := r.levels[subsystem]
	if !ok {
		lv = new(slog.LevelVar)
		lv.Set(r.cfg.LevelForSubsystem(subsystem))
		r.levels[subsystem] = lv
	}
	return lv
}

// Logger 获取子系统 logger，同一子系统返回同一实例
func Logger(subsystem string) *slog.Logger {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if l, ok := reg.loggers[subsystem]; ok {
		return l
	}
	h := newHandler(subsystem, reg.levelLocked(subsystem), reg.cfg.Format, reg.cfg.AddSource)
	l := slog.New(h)
	reg.loggers[subsystem] = l
	return l
}

// With 返回带固定属性的子系统 logger，级别随子系统变化
func With(subsystem string, args ...any) *slog.Logger {
	return Logger(subsystem).With(args...)
}

// SetLevel 设置子系统级别，对尚未创建的 logger 同样生效
func SetLevel(subsystem string, level slog.Level) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	reg.cfg.SubsystemLevels[subsystem] = level
	reg.levelLocked(subsystem).Set(level)
}

// SetLevels 按 "子系统=级别,...,默认级别" 调整级别
//
// 有无效项时不做任何修改。
func SetLevels(spec string) error {
	def, subsystems, err := ParseLevels(spec)
	if err != nil {
		return err
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if def != nil {
		reg.cfg.DefaultLevel = *def
	}
	for name, level := range subsystems {
		reg.cfg.SubsystemLevels[name] = level
	}
	for name, lv := range reg.levels {
		lv.Set(reg.cfg.LevelForSubsystem(name))
	}
	return nil
}

// SetOutput 设置日志输出目标，已创建的 logger 同样重定向
func SetOutput(w io.Writer) {
	output.Store(&w)
}
