package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/loipv/hubcore/triage"
)

type drop struct {
	ID      string   `json:"id"`
	Supply  uint64   `json:"supply"`
	Holders []string `json:"holders,omitempty"`
}

func TestProtoRoundTrip(t *testing.T) {
	c := Proto[*structpb.Struct]()

	in, err := structpb.NewStruct(map[string]any{
		"project": "p-1",
		"supply":  42.0,
		"open":    true,
	})
	require.NoError(t, err)

	data, err := c.Encode(in)
	require.NoError(t, err)

	out, err := c.Decode(data)
	require.NoError(t, err)
	assert.True(t, proto.Equal(in, out))
}

func TestProtoDecodeEmpty(t *testing.T) {
	c := Proto[*wrapperspb.StringValue]()

	out, err := c.Decode(nil)
	require.NoError(t, err)
	assert.Equal(t, "", out.GetValue())
}

func TestProtoDecodeGarbage(t *testing.T) {
	c := Proto[*wrapperspb.StringValue]()

	_, err := c.Decode([]byte{0xff, 0xff, 0xff})
	require.Error(t, err)

	var codecErr *Error
	require.ErrorAs(t, err, &codecErr)
	assert.Equal(t, OpDecode, codecErr.Op)
	assert.ErrorIs(t, err, proto.Error)
	assert.Equal(t, triage.Permanent, triage.Of(err))
}

func TestJSONRoundTrip(t *testing.T) {
	c := JSON[drop]()

	in := drop{ID: "d-1", Supply: 10, Holders: []string{"a", "b"}}
	data, err := c.Encode(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"d-1","supply":10,"holders":["a","b"]}`, string(data))

	out, err := c.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestJSONDecodeInvalid(t *testing.T) {
	c := JSON[drop]()

	_, err := c.Decode([]byte(`{"id":`))
	require.Error(t, err)
	assert.True(t, triage.IsPermanent(err))
	assert.Contains(t, err.Error(), "json decode")
}
