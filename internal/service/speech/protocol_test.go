package speech

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFullClientRequestRoundTrip(t *testing.T) {
	payload := []byte(`{"req_params":{"text":"hello"}}`)
	frame, err := EncodeMessage(CreateFullClientRequest(payload, NoCompression))
	require.NoError(t, err)

	msg, err := DecodeMessage(bytes.NewReader(frame))
	require.NoError(t, err)
	assert.Equal(t, FullClientRequest, msg.Header.MessageType)
	assert.Equal(t, JSONSerialization, msg.Header.SerializationMethod)
	assert.Equal(t, payload, msg.Payload)
	assert.False(t, msg.IsLastPacket())
}

func TestAudioOnlyRequestSequence(t *testing.T) {
	frame, err := EncodeMessage(CreateAudioOnlyRequest([]byte{1, 2}, 3, false, NoCompression))
	require.NoError(t, err)
	msg, err := DecodeMessage(bytes.NewReader(frame))
	require.NoError(t, err)
	assert.Equal(t, int32(3), msg.Sequence)
	assert.False(t, msg.IsLastPacket())

	frame, err = EncodeMessage(CreateAudioOnlyRequest([]byte{3}, 4, true, NoCompression))
	require.NoError(t, err)
	msg, err = DecodeMessage(bytes.NewReader(frame))
	require.NoError(t, err)
	assert.Equal(t, int32(-4), msg.Sequence)
	assert.True(t, msg.IsLastPacket())
}

func TestEventMessageCarriesSessionID(t *testing.T) {
	in := &Message{
		Header:      NewHeader(FullServerResponse, WithEvent, JSONSerialization, NoCompression),
		EventType:   EventTypeSessionFinished,
		SessionID:   "session-1",
		PayloadSize: 2,
		Payload:     []byte("{}"),
	}
	frame, err := EncodeMessage(in)
	require.NoError(t, err)

	out, err := DecodeMessage(bytes.NewReader(frame))
	require.NoError(t, err)
	assert.Equal(t, EventTypeSessionFinished, out.EventType)
	assert.Equal(t, "session-1", out.SessionID)
	assert.Equal(t, []byte("{}"), out.Payload)
}

func TestErrorMessageRoundTrip(t *testing.T) {
	body := []byte("quota exceeded")
	frame, err := EncodeMessage(&Message{
		Header:      NewHeader(ErrorMessage, NoSequenceNumber, JSONSerialization, NoCompression),
		ErrorCode:   45000001,
		PayloadSize: uint32(len(body)),
		Payload:     body,
	})
	require.NoError(t, err)

	msg, err := DecodeMessage(bytes.NewReader(frame))
	require.NoError(t, err)
	assert.True(t, msg.IsErrorMessage())
	assert.Equal(t, uint32(45000001), msg.ErrorCode)
	assert.Equal(t, body, msg.Payload)
}

func TestDecodeRejectsBadFrames(t *testing.T) {
	_, err := DecodeMessage(bytes.NewReader([]byte{0x11}))
	assert.Error(t, err)

	_, err = DecodeMessage(bytes.NewReader([]byte{0x21, 0x10, 0x10, 0x00, 0, 0, 0, 0}))
	assert.Error(t, err, "unsupported protocol version")

	frame, err := EncodeMessage(CreateFullClientRequest([]byte("abcdef"), NoCompression))
	require.NoError(t, err)
	_, err = DecodeMessage(bytes.NewReader(frame[:len(frame)-2]))
	assert.Error(t, err, "truncated payload")
}

func TestGzipPayloadRoundTrip(t *testing.T) {
	data := []byte("مرحبا بالعالم")
	compressed, err := CompressPayload(data, GzipCompression)
	require.NoError(t, err)
	assert.NotEqual(t, data, compressed)

	plain, err := DecompressPayload(compressed, GzipCompression)
	require.NoError(t, err)
	assert.Equal(t, data, plain)

	_, err = CompressPayload(data, CompressionMethod(7))
	assert.Error(t, err)
}
