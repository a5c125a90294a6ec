package xenstore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// msgType xenstore 线协议消息类型
// 参考 xen/include/public/io/xs_wire.h
type msgType uint32

const (
	typeControl          msgType = 0
	typeDirectory        msgType = 1
	typeRead             msgType = 2
	typeGetPerms         msgType = 3
	typeWatch            msgType = 4
	typeUnwatch          msgType = 5
	typeTransactionStart msgType = 6
	typeTransactionEnd   msgType = 7
	typeIntroduce        msgType = 8
	typeRelease          msgType = 9
	typeGetDomainPath    msgType = 10
	typeWrite            msgType = 11
	typeMkdir            msgType = 12
	typeRm               msgType = 13
	typeSetPerms         msgType = 14
	typeWatchEvent       msgType = 15
	typeError            msgType = 16
)

func (t msgType) String() string {
	switch t {
	case typeControl:
		return "control"
	case typeDirectory:
		return "directory"
	case typeRead:
		return "read"
	case typeGetPerms:
		return "get_perms"
	case typeWatch:
		return "watch"
	case typeUnwatch:
		return "unwatch"
	case typeTransactionStart:
		return "transaction_start"
	case typeTransactionEnd:
		return "transaction_end"
	case typeIntroduce:
		return "introduce"
	case typeRelease:
		return "release"
	case typeGetDomainPath:
		return "get_domain_path"
	case typeWrite:
		return "write"
	case typeMkdir:
		return "mkdir"
	case typeRm:
		return "rm"
	case typeSetPerms:
		return "set_perms"
	case typeWatchEvent:
		return "watch_event"
	case typeError:
		return "error"
	}
	return fmt.Sprintf("type(%d)", uint32(t))
}

const (
	headerSize = 16
	// maxPayload xenstored 拒绝超过该长度的负载
	maxPayload = 4096
)

// message 一条请求或响应
type message struct {
	Type    msgType
	ReqID   uint32
	TxID    uint32
	Payload []byte
}

// encode 编码为 头部(type, req_id, tx_id, len) + 负载，小端序
func (m *message) encode() []byte {
	buf := make([]byte, headerSize+len(m.Payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(m.Type))
	binary.LittleEndian.PutUint32(buf[4:8], m.ReqID)
	binary.LittleEndian.PutUint32(buf[8:12], m.TxID)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(m.Payload)))
	copy(buf[headerSize:], m.Payload)
	return buf
}

// readMessage 从连接读取一条完整消息
func readMessage(r io.Reader) (*message, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}

	length := binary.LittleEndian.Uint32(hdr[12:16])
	if length > maxPayload {
		return nil, fmt.Errorf("payload length %d exceeds %d", length, maxPayload)
	}

	m := &message{
		Type:    msgType(binary.LittleEndian.Uint32(hdr[0:4])),
		ReqID:   binary.LittleEndian.Uint32(hdr[4:8]),
		TxID:    binary.LittleEndian.Uint32(hdr[8:12]),
		Payload: make([]byte, length),
	}
	if _, err := io.ReadFull(r, m.Payload); err != nil {
		return nil, err
	}
	return m, nil
}

// joinPayload 每一项以 NUL 结尾拼接
func joinPayload(parts ...string) []byte {
	var b bytes.Buffer
	for _, p := range parts {
		b.WriteString(p)
		b.WriteByte(0)
	}
	return b.Bytes()
}

// splitPayload 按 NUL 拆分，忽略末尾的空项
func splitPayload(b []byte) []string {
	if len(b) == 0 {
		return nil
	}
	b = bytes.TrimSuffix(b, []byte{0})
	if len(b) == 0 {
		return []string{}
	}
	fields := bytes.Split(b, []byte{0})
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = string(f)
	}
	return out
}

// trimNUL 去掉单值响应末尾的 NUL
func trimNUL(b []byte) string {
	return string(bytes.TrimSuffix(b, []byte{0}))
}
