package cloudapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wa-platform/core/pkg/apperror"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &Client{HTTP: server.Client(), BaseURL: server.URL, APIVersion: "v21.0"}
}

func TestClient_SendTextReturnsProviderMessageID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v21.0/phone-1/messages", r.URL.Path)
		require.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))

		var payload textMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Equal(t, "whatsapp", payload.MessagingProduct)
		require.Equal(t, "15550001111", payload.To)
		require.Equal(t, "hi there", payload.Text.Body)

		_ = json.NewEncoder(w).Encode(sendResponse{
			Messages: []struct {
				ID string `json:"id"`
			}{{ID: "wamid.abc"}},
		})
	})

	id, err := client.SendText(context.Background(), Credentials{AccessToken: "token-1", PhoneNumberID: "phone-1"}, "15550001111", "hi there")
	require.NoError(t, err)
	require.Equal(t, "wamid.abc", id)
}

func TestClient_SendTextMapsServerErrorToTransientKind(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "temporarily unavailable"},
		})
	})

	_, err := client.SendText(context.Background(), Credentials{AccessToken: "t", PhoneNumberID: "p"}, "to", "body")
	require.Error(t, err)
	require.Equal(t, apperror.KindTransient, apperror.KindOf(err))
}

func TestClient_SendTextMapsClientErrorToProviderKind(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "invalid recipient"},
		})
	})

	_, err := client.SendText(context.Background(), Credentials{AccessToken: "t", PhoneNumberID: "p"}, "to", "body")
	require.Error(t, err)
	require.Equal(t, apperror.KindProvider, apperror.KindOf(err))
}

func TestClient_SendTextRejectsEmptyMessagesArray(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sendResponse{})
	})

	_, err := client.SendText(context.Background(), Credentials{AccessToken: "t", PhoneNumberID: "p"}, "to", "body")
	require.Error(t, err)
	require.Equal(t, apperror.KindProvider, apperror.KindOf(err))
}

func TestClient_UploadSessionRoundTrip(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v21.0/app-1/uploads":
			require.Equal(t, "header.jpg", r.URL.Query().Get("file_name"))
			_ = json.NewEncoder(w).Encode(uploadSessionResponse{ID: "upload:sess-1"})
		case r.Method == http.MethodPost:
			require.Equal(t, "OAuth token-1", r.Header.Get("Authorization"))
			require.Equal(t, "0", r.Header.Get("file_offset"))
			_ = json.NewEncoder(w).Encode(uploadChunkResponse{FileHandle: "handle-1"})
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})

	session, err := client.InitUploadSession(context.Background(), "app-1", "token-1", "header.jpg", 1234, "image/jpeg")
	require.NoError(t, err)
	require.Equal(t, UploadSessionID("upload:sess-1"), session)

	handle, err := client.UploadFile(context.Background(), session, "token-1", 0, strings.NewReader("fake-jpeg-bytes"))
	require.NoError(t, err)
	require.Equal(t, "handle-1", handle)
}
