package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vibewaybusiness-oss/chatflow/runtime"
)

func TestParseGeneratorResponse_Sync(t *testing.T) {
	body := []byte(`{"success":true,"generated_text":"some lyrics","s3_url":"https://bucket/track.mp3"}`)

	resp, err := ParseGeneratorResponse(body)
	require.NoError(t, err)
	require.NotNil(t, resp.Success)
	require.True(t, *resp.Success)
	require.Equal(t, "some lyrics", resp.GeneratedText)
	require.Equal(t, "https://bucket/track.mp3", resp.S3URL)
	require.False(t, resp.Failed())
}

func TestParseGeneratorResponse_AbsentSuccessMeansSuccess(t *testing.T) {
	resp, err := ParseGeneratorResponse([]byte(`{"result":"ok"}`))
	require.NoError(t, err)
	require.Nil(t, resp.Success)
	require.False(t, resp.Failed())
}

func TestParseGeneratorResponse_Failure(t *testing.T) {
	resp, err := ParseGeneratorResponse([]byte(`{"success":false,"error":"model overloaded"}`))
	require.NoError(t, err)
	require.True(t, resp.Failed())
	require.Equal(t, "model overloaded", resp.ErrorMessage())
}

func TestParseGeneratorResponse_Async(t *testing.T) {
	resp, err := ParseGeneratorResponse([]byte(`{"request_id":"abc123"}`))
	require.NoError(t, err)
	require.Equal(t, "abc123", resp.RequestID)
}

func TestParseGeneratorResponse_Agent(t *testing.T) {
	body := []byte(`{
		"agent_mode": true,
		"waiting_feedback": true,
		"agent_session_id": "sess1",
		"conversation": [
			{"input": "write lyrics", "raw_output": "draft 1", "parsed_output": "draft lyrics", "validated": false},
			{"input": "more upbeat", "raw_output": "draft 2", "valid": true}
		]
	}`)

	resp, err := ParseGeneratorResponse(body)
	require.NoError(t, err)
	require.True(t, resp.AgentMode)
	require.True(t, resp.WaitingFeedback)
	require.Equal(t, "sess1", resp.AgentSessionID)
	require.Len(t, resp.Conversation, 2)
	require.Equal(t, "draft lyrics", resp.Conversation[0].ParsedOutput)
	require.False(t, resp.Conversation[0].Valid)
	require.True(t, resp.Conversation[1].Valid, "both validated and valid keys mark an iteration valid")
}

func TestParseGeneratorResponse_MistypedFieldsIgnored(t *testing.T) {
	// A numeric request_id or object-valued error must not fail the parse.
	resp, err := ParseGeneratorResponse([]byte(`{"request_id":42,"error":{"code":1},"generated_text":"ok"}`))
	require.NoError(t, err)
	require.Empty(t, resp.RequestID)
	require.Empty(t, resp.Error)
	require.Equal(t, "ok", resp.GeneratedText)
}

func TestParseGeneratorResponse_InvalidJSON(t *testing.T) {
	_, err := ParseGeneratorResponse([]byte(`not json`))
	require.Error(t, err)
}

func TestGeneratorClient_GenerateBodyShape(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &got))
		w.Write([]byte(`{"generated_text":"lyrics"}`))
	}))
	defer srv.Close()

	c := NewGeneratorClient(srv.URL, "", 5*time.Second)
	resp, err := c.Generate(context.Background(), runtime.GenerateRequest{
		GeneratorKey: "lyrics_gen",
		NodeOutputs: map[string]runtime.Output{
			"music_input": {"prompt": "synthwave"},
		},
		Params: map[string]any{
			"style":        "verse",
			"generatorKey": "must_not_override",
		},
	})
	require.NoError(t, err)
	require.Equal(t, "lyrics", resp.GeneratedText)

	require.Equal(t, "lyrics_gen", got["generatorKey"], "reserved keys must not be overridden by params")
	require.Equal(t, "verse", got["style"], "params ride along at the top level")

	wd, ok := got["workflow_data"].(map[string]any)
	require.True(t, ok)
	outputs, ok := wd["node_outputs"].(map[string]any)
	require.True(t, ok)
	require.Contains(t, outputs, "music_input")
}

func TestGeneratorClient_GenerateAgentMode(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &got))
		w.Write([]byte(`{"agent_mode":true,"waiting_feedback":true,"agent_session_id":"sess1"}`))
	}))
	defer srv.Close()

	c := NewGeneratorClient(srv.URL, "", 5*time.Second)
	resp, err := c.Generate(context.Background(), runtime.GenerateRequest{
		GeneratorKey:         "lyrics_gen",
		AgentMode:            true,
		JSONPromptsReference: "lyrics_v2",
		Prompt:               "Write lyrics for a synthwave track",
	})
	require.NoError(t, err)
	require.True(t, resp.WaitingFeedback)

	require.Equal(t, true, got["agent_mode"])
	require.Equal(t, "lyrics_v2", got["json_prompts_reference"])
	require.Equal(t, "Write lyrics for a synthwave track", got["prompt"])
}

func TestGeneratorClient_SubmitFeedback(t *testing.T) {
	var got map[string]any
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &got))
		w.Write([]byte(`{"validated":true,"final_output":"final lyrics"}`))
	}))
	defer srv.Close()

	c := NewGeneratorClient("http://unused.local", srv.URL+"/feedback", 5*time.Second)
	resp, err := c.SubmitFeedback(context.Background(), runtime.FeedbackRequest{
		AgentSessionID: "sess1",
		UserFeedback:   "looks good",
		GeneratorKey:   "lyrics_gen",
		Metadata:       map[string]any{"style": "verse"},
	})
	require.NoError(t, err)
	require.True(t, resp.Validated)
	require.Equal(t, "final lyrics", resp.FinalOutput)

	require.Equal(t, "/feedback", gotPath)
	require.Equal(t, "sess1", got["agent_session_id"])
	require.Equal(t, "looks good", got["user_feedback"])
	require.Equal(t, "lyrics_gen", got["generator_key"])
	require.Equal(t, "verse", got["style"])
}

func TestGeneratorClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewGeneratorClient(srv.URL, "", 5*time.Second)
	_, err := c.Generate(context.Background(), runtime.GenerateRequest{GeneratorKey: "g"})
	require.Error(t, err)
}
