package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/suPer8Hu/speakup/internal/ai"
	"github.com/suPer8Hu/speakup/internal/client"
	"github.com/suPer8Hu/speakup/internal/config"
	"github.com/suPer8Hu/speakup/internal/conversation"
	"github.com/suPer8Hu/speakup/internal/db"
	"github.com/suPer8Hu/speakup/internal/logging"
	"github.com/suPer8Hu/speakup/internal/settings"
	"github.com/suPer8Hu/speakup/internal/speech"
	"github.com/suPer8Hu/speakup/internal/voice"
)

const help = `commands:
  /key <apiKey> [groq|gemini|xai]   save a provider key on the server
  /backend <url>                     switch the server address
  /voice female|male [voice...]      pick the reply voice
  /autospeak on|off                  read replies aloud
  /clip <file>                       send a recorded audio file
  /quit`

type app struct {
	ctx      context.Context
	log      *zap.Logger
	out      io.Writer
	api      *client.Client
	repo     *settings.Repo
	cfg      settings.ClientSettings
	sess     *conversation.Session
	pipeline *conversation.Pipeline
	speaker  *speech.OpenAISpeaker
}

func main() {
	_ = config.LoadFile(os.Getenv("CONFIG_FILE"))
	cfg := config.Load()

	log, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Connect(cfg.SettingsDSN)
	if err != nil {
		log.Fatal("settings db", zap.Error(err))
	}
	repo := settings.NewRepo(gdb)
	if err := repo.Migrate(); err != nil {
		log.Fatal("settings migrate", zap.Error(err))
	}
	cs, err := repo.Load(ctx, settings.Defaults(cfg.APIURL))
	if err != nil {
		log.Warn("settings load, using defaults", zap.Error(err))
	}

	a := &app{
		ctx:  ctx,
		log:  log,
		out:  os.Stdout,
		api:  client.New(cs.BackendURL),
		repo: repo,
		cfg:  cs,
	}

	var speaker conversation.Speaker
	if cfg.TTSAPIKey != "" {
		var player speech.Player = &speech.FilePlayer{Dir: cfg.TTSOutputDir}
		if fields := strings.Fields(cfg.TTSPlayer); len(fields) > 0 {
			player = speech.CommandPlayer{Command: fields[0], Args: fields[1:]}
		}
		s, err := speech.NewOpenAISpeaker(speech.Config{
			BaseURL: cfg.TTSBaseURL,
			APIKey:  cfg.TTSAPIKey,
			Model:   cfg.TTSModel,
			Voice:   speech.PickVoice(speech.ParseGender(cs.VoiceGender), cs.PreferredVoices, nil),
		}, player, log)
		if err != nil {
			log.Fatal("speech", zap.Error(err))
		}
		a.speaker = s
		speaker = s
	}

	a.sess = conversation.NewSession(a.api, conversation.Options{
		SystemPrompt: cfg.SystemPrompt,
		Speaker:      speaker,
		AutoSpeak:    cs.AutoSpeak,
		Timeout:      cfg.ClientTimeout,
		Logger:       log,
	})
	a.pipeline = conversation.NewPipeline(a.sess, a.api, log)
	show := a.printer()
	a.sess.OnChange(show)

	if err := a.ensureKey(); err != nil {
		fmt.Fprintln(a.out, "could not reach the server:", err)
	}
	show(a.sess.History())
	fmt.Fprintln(a.out, "type a message, or /help")

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if !a.handle(strings.TrimSpace(line)) {
				return
			}
		}
	}
}

// printer writes each message once, and again if its content changes.
func (a *app) printer() func([]conversation.Message) {
	var mu sync.Mutex
	seen := make(map[string]string)
	return func(hist []conversation.Message) {
		mu.Lock()
		defer mu.Unlock()
		for _, m := range hist {
			if prev, ok := seen[m.ID]; ok && prev == m.Content {
				continue
			}
			seen[m.ID] = m.Content
			who := "you"
			if m.Role == conversation.RoleAssistant {
				who = "partner"
			}
			fmt.Fprintf(a.out, "%s> %s\n", who, m.Content)
		}
	}
}

func (a *app) ensureKey() error {
	st, err := a.api.CheckKey(a.ctx)
	if err != nil {
		return err
	}
	if st.HasKey {
		a.log.Info("server has a key", zap.String("provider", string(st.Provider)))
		return nil
	}
	fmt.Fprintln(a.out, "no API key configured on the server; save one with /key <apiKey> [groq|gemini|xai]")
	return nil
}

func (a *app) handle(line string) bool {
	if line == "" {
		return true
	}
	if !strings.HasPrefix(line, "/") {
		if !a.sess.Submit(a.ctx, line, conversation.SubmitOptions{}) {
			fmt.Fprintln(a.out, "still waiting for the previous reply")
		}
		return true
	}

	fields := strings.Fields(line)
	args := fields[1:]
	switch fields[0] {
	case "/quit", "/exit":
		return false
	case "/help":
		fmt.Fprintln(a.out, help)
	case "/key":
		a.saveKey(args)
	case "/backend":
		if len(args) != 1 {
			fmt.Fprintln(a.out, "usage: /backend <url>")
			break
		}
		a.api.SetBaseURL(args[0])
		a.cfg.BackendURL = a.api.BaseURL()
		a.persist()
		fmt.Fprintln(a.out, "backend set to", a.cfg.BackendURL)
	case "/voice":
		if len(args) == 0 {
			fmt.Fprintln(a.out, "usage: /voice female|male [voice...]")
			break
		}
		a.cfg.VoiceGender = string(speech.ParseGender(args[0]))
		a.cfg.PreferredVoices = args[1:]
		a.persist()
		v := speech.PickVoice(speech.Gender(a.cfg.VoiceGender), a.cfg.PreferredVoices, nil)
		if a.speaker != nil {
			a.speaker.SetVoice(v)
		}
		fmt.Fprintln(a.out, "voice:", v)
	case "/autospeak":
		on := len(args) == 1 && (args[0] == "on" || args[0] == "true")
		if a.speaker == nil && on {
			fmt.Fprintln(a.out, "set TTS_API_KEY to enable speech output")
			break
		}
		a.sess.SetAutoSpeak(on)
		a.cfg.AutoSpeak = on
		a.persist()
		fmt.Fprintln(a.out, "auto-speak:", on)
	case "/clip":
		if len(args) != 1 {
			fmt.Fprintln(a.out, "usage: /clip <file>")
			break
		}
		a.sendClip(args[0])
	default:
		fmt.Fprintln(a.out, "unknown command; /help lists them")
	}
	return true
}

func (a *app) saveKey(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(a.out, "usage: /key <apiKey> [groq|gemini|xai]")
		return
	}
	var provider ai.Tag
	if len(args) > 1 {
		tag, err := ai.ParseTag(args[1])
		if err != nil {
			fmt.Fprintln(a.out, err)
			return
		}
		provider = tag
	}
	res, err := a.api.SaveKey(a.ctx, args[0], provider)
	if err != nil {
		fmt.Fprintln(a.out, conversation.Diagnose(err))
		return
	}
	fmt.Fprintf(a.out, "%s (%s)\n", res.Message, res.Provider)

	st, err := a.api.CheckKey(a.ctx)
	if err == nil && st.HasKey && st.Provider != res.Provider {
		fmt.Fprintf(a.out, "note: the server still answers with %s, which takes precedence\n", st.Provider)
	}
}

// sendClip feeds a recorded file through the same path as a microphone take.
func (a *app) sendClip(path string) {
	audio, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(a.out, err)
		return
	}
	mt := mime.TypeByExtension(filepath.Ext(path))
	a.log.Debug("sending clip", zap.String("path", path), zap.String("size", humanize.Bytes(uint64(len(audio)))))
	if !a.pipeline.Deliver(a.ctx, voice.Utterance{
		Audio:     audio,
		MimeType:  mt,
		StartedAt: time.Now(),
	}) {
		fmt.Fprintln(a.out, "still waiting for the previous reply")
	}
}

func (a *app) persist() {
	ctx, cancel := context.WithTimeout(a.ctx, 5*time.Second)
	defer cancel()
	if err := a.repo.Save(ctx, a.cfg); err != nil && !errors.Is(err, context.Canceled) {
		a.log.Warn("settings save", zap.Error(err))
	}
}
