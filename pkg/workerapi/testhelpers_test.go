package workerapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func marshalEnvelope(env *Envelope) (*bytes.Reader, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(b), nil
}

func emptyEnvelopeBody(t *testing.T, key []byte) *bytes.Reader {
	t.Helper()
	env, err := SealJSON(key, struct{}{})
	require.NoError(t, err)
	body, err := marshalEnvelope(env)
	require.NoError(t, err)
	return body
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	data, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}
