package httputil

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compressed(t *testing.T, encoding string, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	switch encoding {
	case "br":
		w := brotli.NewWriter(&buf)
		_, err := w.Write(payload)
		require.NoError(t, err)
		require.NoError(t, w.Close())
	case "gzip":
		w := gzip.NewWriter(&buf)
		_, err := w.Write(payload)
		require.NoError(t, err)
		require.NoError(t, w.Close())
	default:
		buf.Write(payload)
	}
	return buf.Bytes()
}

func TestReadBodyDecompresses(t *testing.T) {
	payload := []byte(`{"user_info":{"auth":1}}`)

	for _, enc := range []string{"", "gzip", "br"} {
		t.Run("encoding="+enc, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "ua-test", r.Header.Get("User-Agent"))
				if enc != "" {
					w.Header().Set("Content-Encoding", enc)
				}
				w.Write(compressed(t, enc, payload))
			}))
			defer srv.Close()

			resp, err := Get(context.Background(), NewClient(5*time.Second), srv.URL, Headers{"User-Agent": "ua-test"})
			require.NoError(t, err)
			body, err := ReadBody(resp)
			require.NoError(t, err)
			assert.Equal(t, payload, body)
		})
	}
}

func TestGetHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := Get(ctx, NewClient(5*time.Second), srv.URL, nil)
	require.Error(t, err)
}

func TestGetRejectsBadScheme(t *testing.T) {
	_, err := Get(context.Background(), NewClient(0), "file:///etc/passwd", nil)
	require.Error(t, err)
}
