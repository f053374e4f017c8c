package upnp

import (
	"errors"
	"fmt"
)

// UPnP 相关错误
var (
	// ErrServiceNotFound 设备描述中没有可用的 WAN 连接服务
	ErrServiceNotFound = errors.New("upnp: no WAN connection service found")

	// ErrNoLocator 未配置根描述 URL 来源
	ErrNoLocator = errors.New("upnp: no root description locator")

	// ErrMalformedResponse 响应不是合法的 SOAP 文档
	ErrMalformedResponse = errors.New("upnp: malformed SOAP response")
)

// ============================================================================
//                              IGD 错误码
// ============================================================================

// IGD 错误码（UPnP WANIPConnection / WANPPPConnection）
const (
	FaultInvalidAction                    = 401
	FaultInvalidArgs                      = 402
	FaultActionNotAuthorized              = 606
	FaultSpecifiedArrayIndexInvalid       = 713
	FaultNoSuchEntryInArray               = 714
	FaultWildCardNotPermittedInSrcIP      = 715
	FaultWildCardNotPermittedInExtPort    = 716
	FaultConflictInMappingEntry           = 718
	FaultSamePortValuesRequired           = 724
	FaultOnlyPermanentLeasesSupported     = 725
	FaultRemoteHostOnlySupportsWildcard   = 726
	FaultExternalPortOnlySupportsWildcard = 727
	FaultNoPortMapsAvailable              = 728
	FaultConflictWithOtherMechanisms      = 729
	FaultWildCardNotPermittedInIntPort    = 732
)

var faultDescriptions = map[int]string{
	FaultInvalidAction:                    "invalid action",
	FaultInvalidArgs:                      "invalid arguments",
	FaultActionNotAuthorized:              "action not authorized",
	FaultSpecifiedArrayIndexInvalid:       "specified array index invalid",
	FaultNoSuchEntryInArray:               "no such entry in array",
	FaultWildCardNotPermittedInSrcIP:      "wildcard not permitted in source IP",
	FaultWildCardNotPermittedInExtPort:    "wildcard not permitted in external port",
	FaultConflictInMappingEntry:           "conflict in mapping entry",
	FaultSamePortValuesRequired:           "internal and external port values must be the same",
	FaultOnlyPermanentLeasesSupported:     "only permanent leases supported",
	FaultRemoteHostOnlySupportsWildcard:   "remote host only supports wildcard",
	FaultExternalPortOnlySupportsWildcard: "external port only supports wildcard",
	FaultNoPortMapsAvailable:              "no free ports available",
	FaultConflictWithOtherMechanisms:      "conflict with other port mapping mechanisms",
	FaultWildCardNotPermittedInIntPort:    "wildcard not permitted in internal port",
}

// FaultDescription 返回 IGD 错误码的描述，未知错误码返回 false
func FaultDescription(code int) (string, bool) {
	desc, ok := faultDescriptions[code]
	return desc, ok
}

// FaultError 网关返回的 UPnP SOAP fault
type FaultError struct {
	Action string
	Code   int

	// Description 已知错误码取自错误码表，否则取设备返回的 errorDescription
	Description string
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("upnp: %s failed: %s (error %d)", e.Action, e.Description, e.Code)
}

// newFaultError 按错误码表构造 FaultError
func newFaultError(action string, code int, deviceDesc string) *FaultError {
	desc, ok := FaultDescription(code)
	if !ok {
		desc = deviceDesc
		if desc == "" {
			desc = "unknown error"
		}
	}
	return &FaultError{Action: action, Code: code, Description: desc}
}

// StatusError 非 200/500 的 HTTP 响应，或无法解析的 500 响应
type StatusError struct {
	Action     string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	if e.Action == "" {
		return fmt.Sprintf("upnp: unexpected HTTP status %s", e.Status)
	}
	return fmt.Sprintf("upnp: %s failed: unexpected HTTP status %s", e.Action, e.Status)
}

// IsFault 判断 err 是否为指定错误码的 FaultError
func IsFault(err error, code int) bool {
	var fault *FaultError
	return errors.As(err, &fault) && fault.Code == code
}
