// Package mapping 实现端口映射编排器
//
// 编排器对外提供四个操作：
//   - Map: 打开映射，按 NAT-PMP → UPnP 顺序回退
//   - Unmap: 关闭映射，先清理注册表再删除网关上的映射
//   - ExternalIP: 查询外部地址，全部失败时返回 nil
//   - Destroy: 关闭所有映射并释放协议客户端
//
// 已打开的映射登记在注册表中，按 (公网端口, 内网端口, 协议) 唯一标识。
// 开启自动续期时，每条映射在 ttl-600s 后使用打开它的协议续期；
// 续期失败只记录日志，不回退到其它协议。
package mapping
