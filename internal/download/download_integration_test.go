//go:build integration

package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDownloadFileEndToEndWithFixtureServer(t *testing.T) {
	payload := []byte("integration-payload")
	sum := sha256.Sum256(payload)

	target := filepath.Join(t.TempDir(), "ggml-base.bin")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ggml-base.bin" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	err := DownloadFile(context.Background(), Options{
		URL:            server.URL + "/ggml-base.bin",
		Destination:    target,
		ExpectedSHA256: hex.EncodeToString(sum[:]),
		NoProgress:     true,
	})
	require.NoError(t, err)

	onDisk, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, payload, onDisk)

	require.NoError(t, VerifyFileChecksum(target, hex.EncodeToString(sum[:])))
}
