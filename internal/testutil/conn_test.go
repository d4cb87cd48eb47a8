package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/famshelf/internal/protocol"
)

func TestRecordingConn_RecordsAndDecodes(t *testing.T) {
	conn := NewRecordingConn("c1", nil)
	assert.Equal(t, "c1", conn.ID())
	assert.Equal(t, protocol.EncodingJSON, conn.Codec().Encoding())

	frame, err := protocol.JSON.Encode(protocol.TypeMemberJoined, "", protocol.MemberNotice{MemberID: "bob", Count: 2})
	require.NoError(t, err)
	require.NoError(t, conn.Send(frame))

	assert.Equal(t, []protocol.Type{protocol.TypeMemberJoined}, conn.Types())

	var notice protocol.MemberNotice
	found, err := conn.Last(protocol.TypeMemberJoined, &notice)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "bob", notice.MemberID)

	found, err = conn.Last(protocol.TypeMemberLeft, &notice)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRecordingConn_FailSends(t *testing.T) {
	conn := NewRecordingConn("c1", protocol.CBOR)
	conn.FailSends(true)
	assert.ErrorIs(t, conn.Send([]byte{0x01}), ErrSendFailed)
	assert.Empty(t, conn.Frames())

	conn.FailSends(false)
	require.NoError(t, conn.Send([]byte{0x01}))
	assert.Len(t, conn.Frames(), 1)
}

func TestRecordingConn_Close(t *testing.T) {
	conn := NewRecordingConn("c1", nil)
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.True(t, conn.Closed())
	assert.ErrorIs(t, conn.Send([]byte("{}")), ErrClosed)
}
