package imagegen

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateFigure(t *testing.T) {
	var prompt string
	mux := http.NewServeMux()
	mux.HandleFunc("/gradio_api/call/generate_image", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Data []string `json:"data"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		prompt = body.Data[0]
		_ = json.NewEncoder(w).Encode(map[string]string{"event_id": "e1"})
	})
	mux.HandleFunc("/gradio_api/call/generate_image/e1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "event: complete\ndata: [{\"path\":\"/srv/img.png\",\"url\":%q}]\n\n", "http://"+r.Host+"/files/img.png")
	})
	mux.HandleFunc("/files/img.png", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "png-data")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	oldNow := now
	now = func() time.Time { return time.Date(2024, 5, 1, 10, 20, 30, 123_000_000, time.Local) }
	t.Cleanup(func() { now = oldNow })

	dir := t.TempDir()
	c := NewClient(srv.URL, "/generate_image", "", dir, 5*time.Second)
	path, err := c.GenerateFigure(context.Background(), "a lighthouse at dusk")
	require.NoError(t, err)

	assert.Equal(t, "a lighthouse at dusk", prompt)
	assert.Equal(t, filepath.Join(dir, "figure_20240501_102030_123.png"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "png-data", string(data))
}

func TestGenerateFigureEmptyOutput(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/gradio_api/call/generate_image", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"event_id": "e1"})
	})
	mux.HandleFunc("/gradio_api/call/generate_image/e1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "event: complete\ndata: []\n\n")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, err := NewClient(srv.URL, "generate_image", "", t.TempDir(), time.Second).GenerateFigure(context.Background(), "x")
	assert.Error(t, err)
}
