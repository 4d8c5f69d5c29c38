package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefinitionClient_Workflow(t *testing.T) {
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("Cache-Control")
		require.Equal(t, "/workflow/lyrics_flow", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"lyrics_flow","flow":[{"stepId":"A","type":"text","content":"Hello"}]}`))
	}))
	defer srv.Close()

	c := NewDefinitionClient(srv.URL, 5*time.Second)
	def, err := c.Workflow(context.Background(), "lyrics_flow")
	require.NoError(t, err)
	require.Equal(t, "lyrics_flow", def.ID)
	require.Len(t, def.Steps, 1)
	require.Equal(t, "A", def.Steps[0].StepID)
	require.Equal(t, "no-store", gotHeader, "definition fetches must bypass caches")
}

func TestDefinitionClient_Node(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/node/music_input", r.URL.Path)
		w.Write([]byte(`{"id":"music_input","type":"input","prompt_input":true,"file_input":true}`))
	}))
	defer srv.Close()

	c := NewDefinitionClient(srv.URL, 5*time.Second)
	node, err := c.Node(context.Background(), "music_input")
	require.NoError(t, err)
	require.True(t, node.PromptInput)
	require.True(t, node.FileInput)
}

func TestDefinitionClient_NullBodyIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`null`))
	}))
	defer srv.Close()

	c := NewDefinitionClient(srv.URL, 5*time.Second)
	_, err := c.Workflow(context.Background(), "missing")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")
}

func TestDefinitionClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewDefinitionClient(srv.URL, 5*time.Second)
	_, err := c.Processor(context.Background(), "sub")
	require.Error(t, err)
}
