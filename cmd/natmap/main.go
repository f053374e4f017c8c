// Package main 提供 natmap 命令行入口
//
// 打开一个端口映射，打印外部地址，收到退出信号后删除映射。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	natmap "github.com/dep2p/go-natmap"
	"github.com/dep2p/go-natmap/internal/util/logger"
)

var log = logger.Logger("natmap/cmd")

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
//
//   命令行参数：这次运行映射哪个端口
//   JSON 配置文件：协议开关、默认租期等长期配置
//
// ═══════════════════════════════════════════════════════════════════════════
var (
	// ─────────────────────────────────────────────────────────────────────
	// 映射参数
	// ─────────────────────────────────────────────────────────────────────
	port        = flag.Int("port", 0, "公网端口（必需）")
	privatePort = flag.Int("private-port", 0, "内网端口（0 = 与公网端口相同）")
	protocol    = flag.String("protocol", "", "tcp / udp（空 = 两者都映射）")
	ttl         = flag.Duration("ttl", 0, "租期（0 = 配置默认值）")
	description = flag.String("description", "", "映射描述")

	// ─────────────────────────────────────────────────────────────────────
	// 网关参数
	// ─────────────────────────────────────────────────────────────────────
	configFile        = flag.String("config", "", "配置文件路径")
	gateway           = flag.String("gateway", "", "网关 IPv4 地址（空 = 系统默认网关）")
	rootURL           = flag.String("root-url", "", "UPnP 根描述 URL（空 = SSDP 搜索）")
	enablePMP         = flag.Bool("pmp", false, "启用 NAT-PMP")
	enableUPnP        = flag.Bool("upnp", true, "启用 UPnP")
	permanentFallback = flag.Bool("permanent-fallback", false, "UPnP 725 时以永久租约重试")

	// ─────────────────────────────────────────────────────────────────────
	// 运行参数
	// ─────────────────────────────────────────────────────────────────────
	metricsAddr = flag.String("metrics-addr", "", "Prometheus 指标监听地址（空 = 不启用）")
	logFile     = flag.String("log", "", "日志文件路径")
	logLevel    = flag.String("log-level", "", "日志级别（如 natpmp=debug,info；覆盖 NATMAP_LOG_LEVEL）")
	showVersion = flag.Bool("version", false, "显示版本信息")
	showHelp    = flag.Bool("help", false, "显示帮助信息")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	if *showVersion {
		fmt.Printf("natmap %s\n", natmap.Version)
		return nil
	}
	if *showHelp || *port == 0 {
		printHelp()
		return nil
	}

	if *logLevel != "" {
		if err := logger.SetLevels(*logLevel); err != nil {
			return err
		}
	}
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return fmt.Errorf("打开日志文件失败: %w", err)
		}
		defer func() { _ = f.Close() }()
		logger.SetOutput(f)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := natmap.New(ctx, buildOptions()...)
	if err != nil {
		return fmt.Errorf("创建客户端失败: %w", err)
	}
	defer func() {
		destroyCtx, destroyCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer destroyCancel()
		if err := client.Destroy(destroyCtx); err != nil && !errors.Is(err, natmap.ErrClientDestroyed) {
			log.Warn("销毁客户端失败", "err", err)
		}
	}()

	if *metricsAddr != "" {
		srv := serveMetrics(*metricsAddr, client.MetricsHandler())
		defer func() { _ = srv.Close() }()
	}

	opts := natmap.MappingOptions{
		PublicPort:  *port,
		PrivatePort: *privatePort,
		Protocol:    *protocol,
		TTL:         *ttl,
		Description: *description,
	}
	if err := client.Map(ctx, opts); err != nil {
		return fmt.Errorf("映射失败: %w", err)
	}

	for _, info := range client.Mappings() {
		fmt.Printf("已映射 %s via %s (ttl %s)\n", info.Key, info.Method, info.TTL)
	}

	ip, err := client.ExternalIP(ctx)
	switch {
	case err != nil:
		log.Warn("查询外部地址失败", "err", err)
	case ip == nil:
		fmt.Println("外部地址: 未知")
	default:
		fmt.Printf("外部地址: %s\n", ip)
	}

	fmt.Println("映射已打开，按 Ctrl+C 删除映射并退出")
	waitForSignal()
	fmt.Println("\n正在删除映射...")
	return nil
}

// buildOptions 构建选项
//
// 配置优先级（从高到低）：命令行参数 > 环境变量 > 配置文件 > 默认值
func buildOptions() []natmap.Option {
	var opts []natmap.Option

	if *configFile != "" {
		opts = append(opts, natmap.WithConfigFile(*configFile))
	}
	opts = append(opts, natmap.WithEnv())

	if isFlagSet("pmp") {
		opts = append(opts, natmap.WithNATPMP(*enablePMP))
	}
	if isFlagSet("upnp") {
		opts = append(opts, natmap.WithUPnP(*enableUPnP))
	}
	if isFlagSet("permanent-fallback") {
		opts = append(opts, natmap.WithPermanentFallback(*permanentFallback))
	}
	if *gateway != "" {
		opts = append(opts, natmap.WithGateway(*gateway))
	}
	if *rootURL != "" {
		opts = append(opts, natmap.WithRootURL(*rootURL))
	}
	if *metricsAddr != "" {
		opts = append(opts, natmap.WithMetrics(true))
	}
	return opts
}

// serveMetrics 在后台提供 /metrics
func serveMetrics(addr string, handler http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("指标服务退出", "addr", addr, "err", err)
		}
	}()
	log.Info("指标服务已启动", "addr", addr)
	return srv
}

// isFlagSet 检查命令行参数是否被显式设置
func isFlagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// waitForSignal 等待退出信号
func waitForSignal() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals
}

// printHelp 打印帮助信息
func printHelp() {
	fmt.Println("natmap - NAT-PMP / UPnP 端口映射")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  natmap -port 6690 [选项]")
	fmt.Println()
	fmt.Println("选项:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("环境变量:")
	fmt.Println("  NATMAP_TTL                      默认租期")
	fmt.Println("  NATMAP_GATEWAY                  网关地址")
	fmt.Println("  NATMAP_ENABLE_PMP               启用 NAT-PMP")
	fmt.Println("  NATMAP_ENABLE_UPNP              启用 UPnP")
	fmt.Println("  NATMAP_UPNP_PERMANENT_FALLBACK  725 永久租约回退")
	fmt.Println("  NATMAP_UPNP_ROOT_URL            UPnP 根描述 URL")
	fmt.Println("  NATMAP_LOG_LEVEL                日志级别（如 mapping=debug,info）")
}
