package natpmp

import (
	"encoding/binary"
	"fmt"
	"net"
)

// ============================================================================
//                              报文常量
// ============================================================================

// GatewayPort NAT-PMP 网关监听端口
const GatewayPort = 5351

// protocolVersion 报文版本号，RFC 6886 固定为 0
const protocolVersion = 0

// Opcode 请求操作码
type Opcode uint8

const (
	// OpExternalAddress 查询外部地址
	OpExternalAddress Opcode = 0
	// OpMapUDP 映射 UDP 端口
	OpMapUDP Opcode = 1
	// OpMapTCP 映射 TCP 端口
	OpMapTCP Opcode = 2

	// responseBit 响应操作码 = 请求操作码 + 128
	responseBit Opcode = 0x80
)

// 报文长度
const (
	externalAddressRequestLen  = 2
	externalAddressResponseLen = 12
	mappingRequestLen          = 12
	mappingResponseLen         = 16
)

// ResultCode 响应结果码
type ResultCode uint16

const (
	ResultSuccess            ResultCode = 0
	ResultUnsupportedVersion ResultCode = 1
	ResultNotAuthorized      ResultCode = 2
	ResultNetworkFailure     ResultCode = 3
	ResultOutOfResources     ResultCode = 4
	ResultUnsupportedOpcode  ResultCode = 5
)

// String 返回结果码描述
func (c ResultCode) String() string {
	switch c {
	case ResultSuccess:
		return "success"
	case ResultUnsupportedVersion:
		return "unsupported version"
	case ResultNotAuthorized:
		return "not authorized/refused"
	case ResultNetworkFailure:
		return "network failure"
	case ResultOutOfResources:
		return "out of resources"
	case ResultUnsupportedOpcode:
		return "unsupported opcode"
	default:
		return fmt.Sprintf("unknown result code %d", uint16(c))
	}
}

// ============================================================================
//                              请求编码
// ============================================================================

// encodeExternalAddressRequest 编码外部地址查询：version, opcode
func encodeExternalAddressRequest() []byte {
	return []byte{protocolVersion, byte(OpExternalAddress)}
}

// MappingRequest 端口映射请求
//
// Lifetime 为 0 时表示删除映射。
type MappingRequest struct {
	Opcode       Opcode
	InternalPort uint16
	ExternalPort uint16
	Lifetime     uint32
}

// encode 编码为 12 字节：
//
//	0: version  1: opcode  2-3: reserved
//	4-5: internal port  6-7: external port  8-11: lifetime
func (r *MappingRequest) encode() []byte {
	buf := make([]byte, mappingRequestLen)
	buf[0] = protocolVersion
	buf[1] = byte(r.Opcode)
	// buf[2:4] 保留字段为 0
	binary.BigEndian.PutUint16(buf[4:6], r.InternalPort)
	binary.BigEndian.PutUint16(buf[6:8], r.ExternalPort)
	binary.BigEndian.PutUint32(buf[8:12], r.Lifetime)
	return buf
}

// ============================================================================
//                              响应解码
// ============================================================================

// responseHeader 所有响应共有的前 8 字节
type responseHeader struct {
	Version    uint8
	Opcode     Opcode
	ResultCode ResultCode
	Epoch      uint32
}

func decodeHeader(buf []byte) (responseHeader, error) {
	if len(buf) < 8 {
		return responseHeader{}, fmt.Errorf("%w: %d bytes", ErrShortResponse, len(buf))
	}
	return responseHeader{
		Version:    buf[0],
		Opcode:     Opcode(buf[1]),
		ResultCode: ResultCode(binary.BigEndian.Uint16(buf[2:4])),
		Epoch:      binary.BigEndian.Uint32(buf[4:8]),
	}, nil
}

// ExternalAddressResponse 外部地址查询响应
type ExternalAddressResponse struct {
	ResultCode ResultCode
	Epoch      uint32
	Address    net.IP
}

// Success 结果码是否为 0
func (r *ExternalAddressResponse) Success() bool {
	return r.ResultCode == ResultSuccess
}

func decodeExternalAddressResponse(buf []byte) (*ExternalAddressResponse, error) {
	hdr, err := decodeHeader(buf)
	if err != nil {
		return nil, err
	}
	resp := &ExternalAddressResponse{
		ResultCode: hdr.ResultCode,
		Epoch:      hdr.Epoch,
	}
	// 失败响应可能只有 8 字节头部
	if hdr.ResultCode != ResultSuccess {
		return resp, nil
	}
	if len(buf) < externalAddressResponseLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortResponse, len(buf))
	}
	resp.Address = net.IPv4(buf[8], buf[9], buf[10], buf[11]).To4()
	return resp, nil
}

// MappingResponse 端口映射响应
type MappingResponse struct {
	ResultCode   ResultCode
	Epoch        uint32
	InternalPort uint16
	MappedPort   uint16
	Lifetime     uint32
}

// Success 结果码是否为 0
func (r *MappingResponse) Success() bool {
	return r.ResultCode == ResultSuccess
}

func decodeMappingResponse(buf []byte) (*MappingResponse, error) {
	hdr, err := decodeHeader(buf)
	if err != nil {
		return nil, err
	}
	resp := &MappingResponse{
		ResultCode: hdr.ResultCode,
		Epoch:      hdr.Epoch,
	}
	if len(buf) < mappingResponseLen {
		if hdr.ResultCode != ResultSuccess {
			return resp, nil
		}
		return nil, fmt.Errorf("%w: %d bytes", ErrShortResponse, len(buf))
	}
	resp.InternalPort = binary.BigEndian.Uint16(buf[8:10])
	resp.MappedPort = binary.BigEndian.Uint16(buf[10:12])
	resp.Lifetime = binary.BigEndian.Uint32(buf[12:16])
	return resp, nil
}

// isResponseTo 判断报文是否为 op 请求的响应
func isResponseTo(buf []byte, op Opcode) bool {
	return len(buf) >= 2 && buf[0] == protocolVersion && Opcode(buf[1]) == op|responseBit
}
