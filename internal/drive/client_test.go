package drive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/ifuryst/kiosksync/internal/config"
	"github.com/ifuryst/kiosksync/internal/models"
)

func TestClassifyAPIErrors(t *testing.T) {
	forbidden := func(reason string) error {
		return &googleapi.Error{Code: http.StatusForbidden, Errors: []googleapi.ErrorItem{{Reason: reason}}}
	}

	cases := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"unauthorized", &googleapi.Error{Code: http.StatusUnauthorized}, KindInvalidCredentials},
		{"too many requests", &googleapi.Error{Code: http.StatusTooManyRequests}, KindRateLimited},
		{"missing file", &googleapi.Error{Code: http.StatusNotFound}, KindNotFound},
		{"user rate limit", forbidden("userRateLimitExceeded"), KindRateLimited},
		{"storage quota", forbidden("storageQuotaExceeded"), KindQuotaExceeded},
		{"no access", forbidden("insufficientFilePermissions"), KindPermissionDenied},
		{"server error", &googleapi.Error{Code: http.StatusBadGateway}, KindNetwork},
		{"gateway timeout", &googleapi.Error{Code: http.StatusGatewayTimeout}, KindTimeout},
		{"token refresh", &oauth2.RetrieveError{Response: &http.Response{StatusCode: 400}}, KindInvalidCredentials},
		{"deadline", fmt.Errorf("upload: %w", context.DeadlineExceeded), KindTimeout},
		{"refused", errors.New("dial tcp: connection refused"), KindNetwork},
		{"other", errors.New("boom"), KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestKindOfPrefersAdapterError(t *testing.T) {
	err := fmt.Errorf("processing job 3: %w", NewError("upload_file", KindQuotaExceeded, errors.New("full")))
	assert.Equal(t, KindQuotaExceeded, KindOf(err))
	assert.Equal(t, ErrorKind(""), KindOf(nil))
	assert.True(t, KindQuotaExceeded.Retryable())
	assert.False(t, KindQuotaExceeded.Permanent())
	assert.True(t, KindPermissionDenied.Permanent())
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *DriveClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewDriveClient(&config.DriveConfig{
		Endpoint:          srv.URL + "/",
		Timeout:           "5s",
		RequestsPerSecond: 100,
		Burst:             10,
	}, zap.NewNop())
}

func testProviderConfig() *models.ProviderConfig {
	return &models.ProviderConfig{ID: 1, Name: "test", AccessToken: "token"}
}

func writeAPIError(w http.ResponseWriter, code int, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": reason,
			"errors":  []map[string]string{{"reason": reason, "message": reason}},
		},
	})
}

func TestGetFileClassifiesResponses(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		switch {
		case strings.HasSuffix(r.URL.Path, "/files/ok"):
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"ok","name":"spot.mp4","mimeType":"video/mp4","parents":["active-1"]}`))
		case strings.HasSuffix(r.URL.Path, "/files/trashed"):
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"trashed","name":"old.mp4","trashed":true}`))
		case strings.HasSuffix(r.URL.Path, "/files/throttled"):
			writeAPIError(w, http.StatusForbidden, "rateLimitExceeded")
		case strings.HasSuffix(r.URL.Path, "/files/revoked"):
			writeAPIError(w, http.StatusUnauthorized, "authError")
		default:
			writeAPIError(w, http.StatusNotFound, "notFound")
		}
	})
	ctx := context.Background()
	cfg := testProviderConfig()

	file, err := client.GetFile(ctx, cfg, "ok")
	require.NoError(t, err)
	assert.Equal(t, "spot.mp4", file.Name)
	assert.True(t, file.InFolder("active-1"))
	assert.False(t, file.IsFolder())

	_, err = client.GetFile(ctx, cfg, "trashed")
	assert.Equal(t, KindNotFound, KindOf(err))

	_, err = client.GetFile(ctx, cfg, "throttled")
	assert.Equal(t, KindRateLimited, KindOf(err))

	_, err = client.GetFile(ctx, cfg, "revoked")
	assert.Equal(t, KindInvalidCredentials, KindOf(err))

	_, err = client.GetFile(ctx, cfg, "missing")
	var de *Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, KindNotFound, de.Kind)
	assert.Equal(t, "get_file", de.Op)
}

func TestMoveFileSameFolderMakesNoCall(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"f","parents":["b"]}`))
	})
	ctx := context.Background()

	require.NoError(t, client.MoveFile(ctx, testProviderConfig(), "f", "a", "a"))
	assert.Equal(t, 0, calls)

	require.NoError(t, client.MoveFile(ctx, testProviderConfig(), "f", "a", "b"))
	assert.Equal(t, 1, calls)
}

func TestMissingCredentials(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := client.GetFile(context.Background(), &models.ProviderConfig{ID: 2}, "f")
	assert.Equal(t, KindInvalidCredentials, KindOf(err))
	assert.True(t, KindOf(err).Permanent())
}
