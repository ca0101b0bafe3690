package httpapi

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	Type    string `json:"type"`
	State   string `json:"state"`
	Text    string `json:"text"`
	Command string `json:"command"`
	ID      string `json:"id"`
	History []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"history"`
}

type voiceClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialVoice(t *testing.T, ts *testServer) *voiceClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/voice"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &voiceClient{t: t, conn: conn}
}

func (v *voiceClient) send(f map[string]any) {
	v.t.Helper()
	require.NoError(v.t, v.conn.WriteJSON(f))
}

// expect reads frames until match accepts one.
func (v *voiceClient) expect(what string, match func(frame) bool) frame {
	v.t.Helper()
	_ = v.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, data, err := v.conn.ReadMessage()
		require.NoError(v.t, err, "waiting for %s", what)
		var f frame
		require.NoError(v.t, json.Unmarshal(data, &f))
		if match(f) {
			return f
		}
	}
}

func (v *voiceClient) command(name string) {
	v.t.Helper()
	v.expect("command "+name, func(f frame) bool { return f.Type == "command" && f.Command == name })
}

func (v *voiceClient) state(name string) {
	v.t.Helper()
	v.expect("state "+name, func(f frame) bool { return f.Type == "state" && f.State == name })
}

func TestVoiceBridgeFullTurn(t *testing.T) {
	ts := newTestServer(t, map[string]string{"GROQ_API_KEY": "gk"})
	v := dialVoice(t, ts)
	v.state("idle")

	v.send(map[string]any{"type": "toggle"})
	v.command("start")
	v.state("recording")

	v.send(map[string]any{"type": "audio", "data": base64.StdEncoding.EncodeToString([]byte("webm")), "mimeType": "audio/webm"})
	v.send(map[string]any{"type": "recognition", "results": []map[string]any{{"text": "Hello", "final": true}}})
	v.expect("preview", func(f frame) bool { return f.Type == "preview" && f.Text == "Hello" })

	v.send(map[string]any{"type": "toggle"})
	v.state("stopping")
	v.command("stop_recognition")

	v.send(map[string]any{"type": "recognition_end"})
	v.command("stop_recorder")

	v.send(map[string]any{"type": "recorder_stopped"})
	v.command("release")
	v.state("idle")

	v.expect("assistant reply", func(f frame) bool {
		if f.Type != "history" || len(f.History) < 2 {
			return false
		}
		last := f.History[len(f.History)-1]
		return last.Role == "assistant" && last.Content == "Hi there!" &&
			f.History[len(f.History)-2].Content == "Hello"
	})
	speak := v.expect("speak", func(f frame) bool { return f.Type == "speak" })
	assert.Equal(t, "Hi there!", speak.Text)
	require.NotEmpty(t, speak.ID)
	v.send(map[string]any{"type": "speak_done", "id": speak.ID})

	assert.Equal(t, int32(1), ts.upstream.transcripts.Load())
	assert.Equal(t, int32(1), ts.upstream.chats.Load())
}

func TestVoiceBridgeTypedText(t *testing.T) {
	ts := newTestServer(t, map[string]string{"GROQ_API_KEY": "gk"})
	v := dialVoice(t, ts)
	v.state("idle")

	v.send(map[string]any{"type": "text", "text": "  How are you?  "})
	f := v.expect("assistant reply", func(f frame) bool {
		return f.Type == "history" && len(f.History) > 0 && f.History[len(f.History)-1].Role == "assistant"
	})
	assert.Equal(t, "How are you?", f.History[len(f.History)-2].Content)

	speak := v.expect("speak", func(f frame) bool { return f.Type == "speak" })
	v.send(map[string]any{"type": "speak_done", "id": speak.ID})
	assert.Zero(t, ts.upstream.transcripts.Load())
}

func TestVoiceBridgeRejectsBadFrames(t *testing.T) {
	ts := newTestServer(t, nil)
	v := dialVoice(t, ts)
	v.state("idle")

	require.NoError(t, v.conn.WriteMessage(websocket.TextMessage, []byte("{")))
	v.expect("invalid frame", func(f frame) bool { return f.Type == "error" })

	v.send(map[string]any{"type": "shout"})
	v.expect("unknown type", func(f frame) bool { return f.Type == "error" })
}
