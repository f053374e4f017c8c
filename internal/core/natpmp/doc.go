// Package natpmp 实现 NAT-PMP 客户端（RFC 6886）
//
// natpmp 与单个网关的 UDP 5351 端口通信，提供外部地址查询、
// 端口映射创建与删除。
//
// # Socket 状态机
//
//	Closed --首次请求--> Open --超时/读写错误/Close--> Closed
//
// socket 按需打开，成功后在后续请求间复用。每个请求与固定的 1 秒
// 超时赛跑，超时后 socket 被关闭，下一次请求重新打开。
// 同一时刻只有一个请求在途。
//
// # 结果码
//
// 网关返回的非 0 结果码不会作为 error 返回，而是体现在
// 响应的 Success() 上；error 只表示超时、socket 错误或报文格式错误。
//
// # 使用示例
//
//	client, err := natpmp.NewClient(gatewayIP)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	resp, err := client.AddMapping(ctx, types.ProtocolUDP, 6690, 6690, 7200)
//	if err != nil {
//	    return err
//	}
//	if !resp.Success() {
//	    // 回退到其他协议
//	}
package natpmp
