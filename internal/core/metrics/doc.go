// Package metrics 提供端口映射指标收集
//
// metrics 基于 prometheus/client_golang，在私有 Registry 上注册：
//   - natmap_operations_total{op,method,result}: map/unmap/external_ip 结果计数
//   - natmap_operation_duration_seconds{op}: 操作耗时
//   - natmap_renewals_total{method,result}: 续期结果计数
//   - natmap_open_mappings: 当前打开的映射数
//
// # 快速开始
//
//	c := metrics.NewCollector()
//	c.ObserveOperation(metrics.OpMap, types.MethodUPnP, nil, elapsed)
//
//	http.Handle("/metrics", c.Handler())
//
// Collector 的所有方法对 nil 接收者安全，禁用指标时编排器直接持有 nil。
package metrics
