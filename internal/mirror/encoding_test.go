package mirror

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const encodedPayload = "body { background: url(img/bg.png); } /* repeated */ body { color: red; }"

func compress(t *testing.T, encoding string) []byte {
	t.Helper()
	var buf bytes.Buffer
	var w io.WriteCloser
	switch encoding {
	case "gzip":
		w = gzip.NewWriter(&buf)
	case "deflate":
		w = zlib.NewWriter(&buf)
	case "raw-deflate":
		fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
		require.NoError(t, err)
		w = fw
	case "br":
		w = brotli.NewWriter(&buf)
	case "zstd":
		zw, err := zstd.NewWriter(&buf)
		require.NoError(t, err)
		w = zw
	default:
		t.Fatalf("unknown encoding %s", encoding)
	}
	_, err := w.Write([]byte(encodedPayload))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestDecodeBody(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"gzip":        "gzip",
		"deflate":     "deflate",
		"raw-deflate": "deflate",
		"br":          "br",
		"zstd":        "zstd",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			resp := &http.Response{
				Header: http.Header{"Content-Encoding": []string{header}},
				Body:   io.NopCloser(bytes.NewReader(compress(t, name))),
			}
			body, err := decodeBody(resp)
			require.NoError(t, err)
			defer body.Close()
			data, err := io.ReadAll(body)
			require.NoError(t, err)
			assert.Equal(t, encodedPayload, string(data))
		})
	}
}

func TestDecodeBodyIdentityAndUnknown(t *testing.T) {
	t.Parallel()

	resp := &http.Response{Header: http.Header{}, Body: io.NopCloser(strings.NewReader(encodedPayload))}
	body, err := decodeBody(resp)
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, encodedPayload, string(data))

	resp = &http.Response{Header: http.Header{"Content-Encoding": []string{"compress"}}, Body: io.NopCloser(strings.NewReader(""))}
	_, err = decodeBody(resp)
	assert.ErrorContains(t, err, `unsupported content encoding "compress"`)
}
