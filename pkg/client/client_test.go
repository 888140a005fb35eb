package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPing(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    bool
	}{
		{"200 is ready", http.StatusOK, false},
		{"204 is ready", http.StatusNoContent, false},
		{"500 is a failed probe", http.StatusInternalServerError, true},
		{"404 is a failed probe", http.StatusNotFound, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer srv.Close()

			err := New(srv.URL).Ping(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPing_ServerDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	err := New(srv.URL).Ping(context.Background())
	assert.Error(t, err)
}

func TestCreateDeck_Success(t *testing.T) {
	pdf := writeTempFile(t, "notes.pdf", "%PDF-1.4 fake")

	var gotTitle string
	var gotFiles []string
	var gotAPIKey string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/create_deck", r.URL.Path)
		gotAPIKey = r.Header.Get("X-API-Key")

		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotTitle = r.FormValue("deck_title")
		for _, fh := range r.MultipartForm.File["files"] {
			gotFiles = append(gotFiles, fh.Filename)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"deck_id":"deck-123","status":"processing","message":"started"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithAPIKey("key1"))
	resp, err := c.CreateDeck(context.Background(), "Biology 101", []string{pdf})
	require.NoError(t, err)

	assert.Equal(t, "deck-123", resp.JobID)
	assert.Equal(t, "processing", resp.Status)
	assert.Equal(t, "Biology 101", gotTitle)
	assert.Equal(t, []string{"notes.pdf"}, gotFiles)
	assert.Equal(t, "key1", gotAPIKey)
}

func TestCreateDeck_MissingJobIDIsProtocolError(t *testing.T) {
	pdf := writeTempFile(t, "notes.pdf", "data")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"processing","message":"started"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).CreateDeck(context.Background(), "T", []string{pdf})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestCreateDeck_RejectsUnsupportedFileLocally(t *testing.T) {
	exe := writeTempFile(t, "malware.exe", "nope")

	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	_, err := New(srv.URL).CreateDeck(context.Background(), "T", []string{exe})
	require.Error(t, err)
	assert.False(t, called, "no request should be issued for an invalid file")
}

func TestCreateDeck_InputValidation(t *testing.T) {
	c := New("http://127.0.0.1:1")

	_, err := c.CreateDeck(context.Background(), "  ", []string{"a.pdf"})
	assert.Error(t, err)

	_, err = c.CreateDeck(context.Background(), "Title", nil)
	assert.Error(t, err)
}

func TestCreateDeck_DecodesDetailError(t *testing.T) {
	pdf := writeTempFile(t, "notes.pdf", "data")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":{"message":"duplicate deck title"}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).CreateDeck(context.Background(), "T", []string{pdf})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "duplicate deck title", apiErr.Message)
}

func TestJobStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/deck/deck-9/status", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"processing","message":"Generating questions"}`))
	}))
	defer srv.Close()

	resp, err := New(srv.URL).JobStatus(context.Background(), "deck-9")
	require.NoError(t, err)
	assert.Equal(t, "processing", resp.Status)
	assert.Equal(t, "Generating questions", resp.Message)
}

func TestJobStatus_MissingStatusField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"no status here"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).JobStatus(context.Background(), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestListDecks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/decks", r.URL.Path)
		_, _ = w.Write([]byte(`{"decks":[{"deck_id":"d1","title":"Bio","question_count":12}]}`))
	}))
	defer srv.Close()

	decks, err := New(srv.URL).ListDecks(context.Background())
	require.NoError(t, err)
	require.Len(t, decks, 1)
	assert.Equal(t, "d1", decks[0].DeckID)
	assert.Equal(t, 12, decks[0].QuestionCount)
}

func TestDecodeAPIError_StringDetail(t *testing.T) {
	apiErr := decodeAPIError(401, []byte(`{"detail":"invalid API key"}`))
	assert.Equal(t, 401, apiErr.StatusCode)
	assert.Equal(t, "invalid API key", apiErr.Message)
	assert.Contains(t, apiErr.Error(), "invalid API key")
}

func TestDecodeAPIError_GarbageBody(t *testing.T) {
	apiErr := decodeAPIError(500, []byte("<html>oops</html>"))
	assert.Equal(t, 500, apiErr.StatusCode)
	assert.Empty(t, apiErr.Message)
}
