// Package natmap 在家用路由器上打开与维护端口映射
//
// natmap 同时支持 NAT-PMP（RFC 6886）与 UPnP IGD 两种协议：
// 每个映射先尝试 NAT-PMP，失败后回退到 UPnP；成功的协议被记录下来，
// 之后的续期与删除都优先使用它。
//
// # 快速开始
//
//	client, err := natmap.New(ctx,
//	    natmap.WithNATPMP(true),
//	    natmap.WithTTL(2*time.Hour),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// 同时映射 UDP 与 TCP 的 6690 端口
//	if err := client.MapPort(ctx, 6690); err != nil {
//	    log.Fatal(err)
//	}
//
//	ip, _ := client.ExternalIP(ctx)
//	fmt.Println("external ip:", ip)
//
// # 默认值
//
//   - 租期 2 小时，低于 20 分钟的默认租期会被提升到 20 分钟
//   - 描述 "go-natmap"
//   - 自动续期开启，在租期结束前 10 分钟续期
//   - NAT-PMP 关闭，UPnP 开启
//
// # 生命周期
//
// Destroy 删除所有已打开的映射并释放协议客户端。单个映射删除失败
// 只记录日志；Destroy 之后的所有操作返回 ErrClientDestroyed。
//
// # 文件组织
//
//   - natmap.go: Client 与构造函数
//   - options.go: 构造选项
//   - fx.go: Fx 应用组装
//   - errors.go: 公共错误
package natmap
