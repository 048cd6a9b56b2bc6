package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wa-platform/core/provider/cloudapi"
)

func solidImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 10, G: 20, B: 30, A: 255})
		}
	}
	return img
}

func newTestUploadClient(t *testing.T, onChunk func(fileLength string)) *cloudapi.Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Query().Get("file_name") != "" {
			onChunk(r.URL.Query().Get("file_length"))
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "upload:sess-1"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"h": "handle-1"})
	}))
	t.Cleanup(server.Close)
	return &cloudapi.Client{HTTP: server.Client(), BaseURL: server.URL, APIVersion: "v21.0"}
}

func TestUploadHeaderImage_DownscalesOversizedImages(t *testing.T) {
	var uploadedLength string
	client := newTestUploadClient(t, func(fileLength string) { uploadedLength = fileLength })

	large := solidImage(2000, 1000)
	handle, err := UploadHeaderImage(context.Background(), client, "app-1", "token-1", "header.jpg", large)
	require.NoError(t, err)
	require.Equal(t, "handle-1", handle)
	require.NotEmpty(t, uploadedLength)
	require.NotEqual(t, "0", uploadedLength)
}

func TestUploadHeaderImage_LeavesSmallImagesUnscaled(t *testing.T) {
	client := newTestUploadClient(t, func(string) {})

	small := solidImage(400, 300)
	handle, err := UploadHeaderImage(context.Background(), client, "app-1", "token-1", "header.jpg", small)
	require.NoError(t, err)
	require.Equal(t, "handle-1", handle)
}

func TestDecodeImage_AcceptsJPEG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, solidImage(10, 10), nil))

	img, err := DecodeImage(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, 10, img.Bounds().Dx())
}

func TestDecodeImage_RejectsGarbageInput(t *testing.T) {
	_, err := DecodeImage(bytes.NewReader([]byte("not an image")))
	require.Error(t, err)
}
