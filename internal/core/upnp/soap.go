package upnp

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"
)

// SOAP 命名空间
const (
	soapEnvelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"
	soapEncodingNS = "http://schemas.xmlsoap.org/soap/encoding/"
)

// Arg SOAP 动作参数，按声明顺序序列化
type Arg struct {
	Name  string
	Value string
}

// ============================================================================
//                              Element - 通用 XML 树
// ============================================================================

// Element 解析后的 XML 元素
//
// 名称按命名空间 URI 解析，与文档使用的前缀无关。
type Element struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Text     string     `xml:",chardata"`
	Children []*Element `xml:",any"`
}

// Child 返回本地名为 local 的第一个直接子元素
func (e *Element) Child(local string) *Element {
	if e == nil {
		return nil
	}
	for _, c := range e.Children {
		if c.XMLName.Local == local {
			return c
		}
	}
	return nil
}

// Find 深度优先查找本地名为 local 的第一个后代元素
func (e *Element) Find(local string) *Element {
	if e == nil {
		return nil
	}
	for _, c := range e.Children {
		if c.XMLName.Local == local {
			return c
		}
		if found := c.Find(local); found != nil {
			return found
		}
	}
	return nil
}

// Value 返回去除首尾空白的文本
func (e *Element) Value() string {
	if e == nil {
		return ""
	}
	return strings.TrimSpace(e.Text)
}

// ============================================================================
//                              信封构造
// ============================================================================

// buildEnvelope 构造 SOAP 请求
//
//	<s:Envelope ...><s:Body><u:Action xmlns:u="serviceType">
//	  <Arg1>v1</Arg1>...
//	</u:Action></s:Body></s:Envelope>
func buildEnvelope(serviceType, action string, args []Arg) []byte {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString(`<s:Envelope xmlns:s="` + soapEnvelopeNS + `" s:encodingStyle="` + soapEncodingNS + `">`)
	buf.WriteString(`<s:Body>`)
	buf.WriteString(`<u:` + action + ` xmlns:u="`)
	escape(&buf, serviceType)
	buf.WriteString(`">`)
	for _, arg := range args {
		buf.WriteString("<" + arg.Name + ">")
		escape(&buf, arg.Value)
		buf.WriteString("</" + arg.Name + ">")
	}
	buf.WriteString(`</u:` + action + `>`)
	buf.WriteString(`</s:Body></s:Envelope>`)
	return buf.Bytes()
}

func escape(buf *bytes.Buffer, s string) {
	// bytes.Buffer 写入不会失败
	_ = xml.EscapeText(buf, []byte(s))
}

// replaceArg 返回 name 参数被替换为 value 的副本；没有该参数时返回 false
func replaceArg(args []Arg, name, value string) ([]Arg, bool) {
	out := make([]Arg, len(args))
	copy(out, args)
	for i := range out {
		if out[i].Name == name {
			out[i].Value = value
			return out, true
		}
	}
	return nil, false
}

// ============================================================================
//                              响应解析
// ============================================================================

// parseBody 在 SOAP 文档中查找信封命名空间下的 Body 元素
func parseBody(r io.Reader) (*Element, error) {
	d := xml.NewDecoder(r)
	d.CharsetReader = charset.NewReaderLabel
	for {
		tok, err := d.Token()
		if err == io.EOF {
			return nil, ErrMalformedResponse
		}
		if err != nil {
			return nil, wrapMalformed(err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Space != soapEnvelopeNS || start.Name.Local != "Body" {
			continue
		}
		body := &Element{}
		if err := d.DecodeElement(body, &start); err != nil {
			return nil, wrapMalformed(err)
		}
		return body, nil
	}
}

// parseFault 从 Body 中提取 UPnP 错误码
//
// 没有 UPnPError/errorCode 时返回 false。
func parseFault(body *Element) (code int, desc string, ok bool) {
	fault := body.Child("Fault")
	if fault == nil {
		return 0, "", false
	}
	upnpErr := fault.Find("UPnPError")
	if upnpErr == nil {
		return 0, "", false
	}
	code, err := strconv.Atoi(upnpErr.Child("errorCode").Value())
	if err != nil {
		return 0, "", false
	}
	return code, upnpErr.Child("errorDescription").Value(), true
}

func wrapMalformed(err error) error {
	return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
}
