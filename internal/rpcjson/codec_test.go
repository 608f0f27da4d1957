package rpcjson

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_RoundTrip(t *testing.T) {
	c := Codec{}
	req := &QueryRequest{Query: "cpu.load{100,200}"}

	data, err := c.Marshal(req)
	require.NoError(t, err)

	var decoded QueryRequest
	require.NoError(t, c.Unmarshal(data, &decoded))
	assert.Equal(t, *req, decoded)
	assert.Equal(t, "json", c.Name())
}
