package xenstore

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_EncodeRead(t *testing.T) {
	t.Parallel()

	m := &message{Type: typeWrite, ReqID: 42, TxID: 7, Payload: append(joinPayload("/a/b"), "value"...)}
	buf := m.encode()
	require.Len(t, buf, headerSize+len("/a/b")+1+len("value"))

	// 头部为小端序
	assert.Equal(t, []byte{11, 0, 0, 0, 42, 0, 0, 0, 7, 0, 0, 0, 10, 0, 0, 0}, buf[:headerSize])

	got, err := readMessage(bytes.NewReader(buf))
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestReadMessage_TooLarge(t *testing.T) {
	t.Parallel()

	m := &message{Type: typeRead, Payload: make([]byte, maxPayload+1)}
	_, err := readMessage(bytes.NewReader(m.encode()))
	assert.Error(t, err)
}

func TestSplitPayload(t *testing.T) {
	t.Parallel()

	testcases := []struct {
		name    string
		payload []byte
		want    []string
	}{
		{name: "empty", payload: nil, want: nil},
		{name: "single nul", payload: []byte{0}, want: []string{}},
		{name: "names", payload: joinPayload("vbd", "vif"), want: []string{"vbd", "vif"}},
		{name: "no trailing nul", payload: []byte("a\x00b"), want: []string{"a", "b"}},
	}

	for _, tc := range testcases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, splitPayload(tc.payload))
		})
	}
}
