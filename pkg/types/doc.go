// Package types 定义 go-natmap 的公共数据结构
//
// 这是整个系统的最底层包，不依赖任何其他内部包。
// 所有类型都是纯值类型，用于在 API 与各模块间传递数据。
//
// # 文件组织
//
//   - mapping.go - Protocol, Method, MappingKey, MappingOptions, MappingInfo
//
// # 使用示例
//
//	proto, err := types.ParseProtocol("tcp")
//	if err != nil {
//	    return err
//	}
//	key := types.MappingKey{PublicPort: 6690, PrivatePort: 6690, Protocol: proto}
//	fmt.Println(key) // TCP 6690->6690
package types
