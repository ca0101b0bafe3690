package speech

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/suPer8Hu/speakup/internal/common"
)

// Player consumes one synthesized clip and returns when it is done.
type Player interface {
	Play(ctx context.Context, audio io.Reader) error
}

// CommandPlayer pipes audio into an external program such as "mpg123 -".
type CommandPlayer struct {
	Command string
	Args    []string
}

func (p CommandPlayer) Play(ctx context.Context, audio io.Reader) error {
	cmd := exec.CommandContext(ctx, p.Command, p.Args...)
	cmd.Stdin = audio
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", p.Command, err, out)
	}
	return nil
}

// FilePlayer writes each clip to Dir as <ulid>.mp3.
type FilePlayer struct {
	Dir string

	mu   sync.Mutex
	last string
}

func (p *FilePlayer) Play(ctx context.Context, audio io.Reader) error {
	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return err
	}
	id, err := common.NewULID()
	if err != nil {
		return err
	}
	path := filepath.Join(p.Dir, id+".mp3")
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, audio); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	p.mu.Lock()
	p.last = path
	p.mu.Unlock()
	return ctx.Err()
}

// Last is the path of the most recently written clip.
func (p *FilePlayer) Last() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}
