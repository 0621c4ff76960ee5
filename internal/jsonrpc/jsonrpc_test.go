package jsonrpc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBatchRequest(t *testing.T) {
	reqs, isBatch, err := ParseBatchRequest([]byte(`  {"jsonrpc":"2.0","method":"findUnique","params":{},"id":1}`))
	require.NoError(t, err)
	assert.False(t, isBatch)
	require.Len(t, reqs, 1)
	assert.Equal(t, "findUnique", reqs[0].Method)
	require.NoError(t, reqs[0].Validate())

	reqs, isBatch, err = ParseBatchRequest([]byte(`[{"jsonrpc":"2.0","method":"a","id":1},{"jsonrpc":"2.0","method":"b","id":"x"}]`))
	require.NoError(t, err)
	assert.True(t, isBatch)
	require.Len(t, reqs, 2)
	assert.Equal(t, "x", reqs[1].ID.Value())

	_, isBatch, err = ParseBatchRequest([]byte(`[]`))
	assert.True(t, isBatch)
	assert.Error(t, err)

	_, _, err = ParseBatchRequest([]byte(`{"jsonrpc":`))
	assert.Error(t, err)
}

func TestParseBatchRequest_NonObjectElements(t *testing.T) {
	reqs, isBatch, err := ParseBatchRequest([]byte(`[null, 1, "x", {"jsonrpc":"2.0","method":5,"id":1}, {"jsonrpc":"2.0","method":"a","id":2}]`))
	require.NoError(t, err)
	assert.True(t, isBatch)
	require.Len(t, reqs, 5)
	for _, req := range reqs[:4] {
		assert.Nil(t, req)
		assert.Error(t, req.Validate())
	}
	require.NotNil(t, reqs[4])
	assert.NoError(t, reqs[4].Validate())
}

func TestRequest_Validate(t *testing.T) {
	assert.Error(t, (&Request{JSONRPC: "1.0", Method: "findUnique"}).Validate())
	assert.Error(t, (&Request{JSONRPC: Version}).Validate())

	var missing *Request
	assert.Error(t, missing.Validate())
}

func TestRequest_IsNotification(t *testing.T) {
	req, err := ParseRequest([]byte(`{"jsonrpc":"2.0","method":"findUnique"}`))
	require.NoError(t, err)
	assert.True(t, req.IsNotification())

	req, err = ParseRequest([]byte(`{"jsonrpc":"2.0","method":"findUnique","id":null}`))
	require.NoError(t, err)
	assert.False(t, req.IsNotification())
	assert.Nil(t, req.ID.Value())

	req, err = ParseRequest([]byte(`{"jsonrpc":"2.0","method":"findUnique","id":0}`))
	require.NoError(t, err)
	assert.False(t, req.IsNotification())
}

func TestRequest_DecodeParams(t *testing.T) {
	type args struct {
		Model string         `json:"model"`
		Where map[string]any `json:"where"`
	}

	var a args
	req := &Request{Params: json.RawMessage(`{"model":"User","where":{"id":7}}`)}
	require.NoError(t, req.DecodeParams(&a))
	assert.Equal(t, "User", a.Model)
	assert.Equal(t, json.Number("7"), a.Where["id"])

	a = args{}
	req = &Request{Params: json.RawMessage(`[{"model":"Post","where":{"id":"p1"}}]`)}
	require.NoError(t, req.DecodeParams(&a))
	assert.Equal(t, "Post", a.Model)

	req = &Request{Params: json.RawMessage(`[{}, {}]`)}
	assert.Error(t, req.DecodeParams(&a))

	req = &Request{}
	assert.Error(t, req.DecodeParams(&a))
}

func TestResponse_Marshal(t *testing.T) {
	resp, err := NewResponse(ID{value: 1, present: true}, map[string]any{"id": 1})
	require.NoError(t, err)
	data, err := resp.Bytes()
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":{"id":1}}`, string(data))

	errResp := NewErrorResponse(ID{value: "a", present: true}, NewError(CodeRecordNotFound, "record not found"))
	data, err = errResp.Bytes()
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":"a","error":{"code":-32001,"message":"record not found"}}`, string(data))

	data, err = NewResponseRaw(NewIDNull(), json.RawMessage("null")).Bytes()
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":null,"result":null}`, string(data))

	data, err = NewErrorResponse(NewIDNull(), NewErrorWithData(CodeFetchFailed, "fetch failed", map[string]any{"keys": 2})).Bytes()
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":null,"error":{"code":-32000,"message":"fetch failed","data":{"keys":2}}}`, string(data))
}
