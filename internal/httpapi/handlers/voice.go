package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/suPer8Hu/speakup/internal/common"
	"github.com/suPer8Hu/speakup/internal/conversation"
	"github.com/suPer8Hu/speakup/internal/voice"
)

const (
	wsWriteWait   = 10 * time.Second
	wsMaxMessage  = MaxBodyBytes
	maxSpeakDelay = 2 * time.Minute
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type wsResult struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

type inFrame struct {
	Type     string     `json:"type"`
	Data     string     `json:"data,omitempty"`
	MimeType string     `json:"mimeType,omitempty"`
	Results  []wsResult `json:"results,omitempty"`
	Error    string     `json:"error,omitempty"`
	Text     string     `json:"text,omitempty"`
	ID       string     `json:"id,omitempty"`
}

type outFrame struct {
	Type     string                 `json:"type"`
	State    string                 `json:"state,omitempty"`
	Text     string                 `json:"text,omitempty"`
	Category string                 `json:"category,omitempty"`
	Message  string                 `json:"message,omitempty"`
	Command  string                 `json:"command,omitempty"`
	ID       string                 `json:"id,omitempty"`
	History  []conversation.Message `json:"history,omitempty"`
}

// wsConn serializes writes; gorilla allows one concurrent writer.
type wsConn struct {
	conn *websocket.Conn
	log  *zap.Logger
	mu   sync.Mutex
}

func (w *wsConn) send(f outFrame) {
	b, err := json.Marshal(f)
	if err != nil {
		w.log.Error("marshal ws frame", zap.Error(err))
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := w.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		w.log.Debug("ws write", zap.String("type", f.Type), zap.Error(err))
	}
}

func (w *wsConn) command(name string) { w.send(outFrame{Type: "command", Command: name}) }

// browserDevice is the capture device on the other end of the socket. The
// browser reports its callbacks as frames, so post is unused.
type browserDevice struct {
	ws   *wsConn
	mu   sync.Mutex
	mime string
}

func (d *browserDevice) Open(ctx context.Context, post func(voice.Event)) (voice.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.setMime("")
	d.ws.command("start")
	return d, nil
}

func (d *browserDevice) StopRecognition() { d.ws.command("stop_recognition") }
func (d *browserDevice) StopRecorder()    { d.ws.command("stop_recorder") }
func (d *browserDevice) Release()         { d.ws.command("release") }

func (d *browserDevice) MimeType() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mime
}

func (d *browserDevice) setMime(m string) {
	d.mu.Lock()
	d.mime = m
	d.mu.Unlock()
}

// wsSpeaker asks the browser to read a reply aloud and waits for speak_done.
type wsSpeaker struct {
	ws      *wsConn
	mu      sync.Mutex
	pending map[string]chan struct{}
}

func (s *wsSpeaker) Speak(ctx context.Context, text string) error {
	id := common.MustULID()
	done := make(chan struct{})
	s.mu.Lock()
	s.pending[id] = done
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	s.ws.send(outFrame{Type: "speak", ID: id, Text: text})
	t := time.NewTimer(maxSpeakDelay)
	defer t.Stop()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return errors.New("speak: no completion from client")
	}
}

func (s *wsSpeaker) finished(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.pending[id]; ok {
		close(ch)
		delete(s.pending, id)
	}
}

// Voice bridges one browser tab to a voice machine and a conversation session
// that run in this process.
func (h *Handler) Voice(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Log.Warn("ws upgrade", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsMaxMessage)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	log := h.Log.With(zap.String("conn", common.MustULID()))
	ws := &wsConn{conn: conn, log: log}
	speaker := &wsSpeaker{ws: ws, pending: make(map[string]chan struct{})}
	sess := conversation.NewSession(h.ChatSvc, conversation.Options{
		SystemPrompt: h.SystemPrompt,
		Speaker:      speaker,
		AutoSpeak:    true,
		Timeout:      h.SessionTimeout,
		Logger:       log,
	})
	sess.OnChange(func(hist []conversation.Message) {
		ws.send(outFrame{Type: "history", History: hist})
	})
	pipeline := conversation.NewPipeline(sess, h.STT, log)

	var work sync.WaitGroup
	dev := &browserDevice{ws: ws}
	machine := voice.New(voice.Options{
		Source: dev,
		Deliver: func(u voice.Utterance) {
			work.Add(1)
			go func() {
				defer work.Done()
				if !pipeline.Deliver(ctx, u) {
					ws.send(outFrame{Type: "busy"})
				}
			}()
		},
		OnState:   func(s voice.State) { ws.send(outFrame{Type: "state", State: s.String()}) },
		OnPreview: func(p string) { ws.send(outFrame{Type: "preview", Text: p}) },
		OnError: func(cat voice.Category, msg string) {
			ws.send(outFrame{Type: "voice_error", Category: string(cat), Message: msg})
		},
		Logger: log,
	})
	machineDone := make(chan struct{})
	go func() {
		defer close(machineDone)
		_ = machine.Run(ctx)
	}()

	ws.send(outFrame{Type: "history", History: sess.History()})
	ws.send(outFrame{Type: "state", State: voice.Idle.String()})
	log.Info("voice session opened")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("ws read", zap.Error(err))
			}
			break
		}
		var in inFrame
		if err := json.Unmarshal(data, &in); err != nil {
			ws.send(outFrame{Type: "error", Message: "invalid frame"})
			continue
		}
		switch in.Type {
		case "toggle":
			machine.Post(voice.Toggle{})
		case "audio":
			chunk, err := base64.StdEncoding.DecodeString(in.Data)
			if err != nil {
				ws.send(outFrame{Type: "error", Message: "invalid audio chunk"})
				continue
			}
			if in.MimeType != "" {
				dev.setMime(in.MimeType)
			}
			machine.Post(voice.AudioChunk{Data: chunk})
		case "recognition":
			results := make([]voice.Result, 0, len(in.Results))
			for _, r := range in.Results {
				results = append(results, voice.Result{Text: r.Text, Final: r.Final})
			}
			machine.Post(voice.RecognitionResult{Results: results})
		case "recognition_error":
			machine.Post(voice.RecognitionError{Code: in.Error})
		case "recognition_end":
			machine.Post(voice.RecognitionEnded{})
		case "recorder_stopped":
			machine.Post(voice.RecorderStopped{})
		case "recorder_error":
			machine.Post(voice.RecorderFailed{Err: errors.New(in.Error)})
		case "text":
			text := in.Text
			work.Add(1)
			go func() {
				defer work.Done()
				if !sess.Submit(ctx, text, conversation.SubmitOptions{}) {
					ws.send(outFrame{Type: "busy"})
				}
			}()
		case "speak_done":
			speaker.finished(in.ID)
		default:
			ws.send(outFrame{Type: "error", Message: "unknown frame type " + in.Type})
		}
	}

	cancel()
	<-machineDone
	work.Wait()
	log.Info("voice session closed")
}
