package notify

import (
	"context"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/blog-comment-api/internal/models"
)

// Notifier dispatches hook commands after a comment mutation lands.
type Notifier interface {
	Dispatch(event Event)
}

// Event carries the comment metadata handed to hook commands via the
// environment.
type Event struct {
	Action    models.CommentAction
	CommentID string
	PostID    string
	OwnerName string
}

// Semaphore limits concurrent hook processes so a burst of submissions
// cannot fork-bomb the host.
const maxConcurrentRuns = 4

// Runner executes the configured shell commands for each event. Commands run
// asynchronously; the request path never waits on them.
type Runner struct {
	commands []string
	timeout  time.Duration
	log      zerolog.Logger
	wg       sync.WaitGroup
	sem      chan struct{}
}

// NewRunner creates a hook runner. An empty command list yields a runner that
// does nothing.
func NewRunner(commands []string, timeout time.Duration, log zerolog.Logger) *Runner {
	return &Runner{
		commands: commands,
		timeout:  timeout,
		log:      log.With().Str("component", "notify").Logger(),
		sem:      make(chan struct{}, maxConcurrentRuns),
	}
}

// Dispatch schedules every configured command for the event and returns
// immediately.
func (r *Runner) Dispatch(event Event) {
	for _, command := range r.commands {
		command := command
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.sem <- struct{}{}
			defer func() { <-r.sem }()
			r.run(command, event)
		}()
	}
}

// Wait blocks until all in-flight hook commands finish. Called on shutdown.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) run(command string, event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	cmd.Env = append(os.Environ(),
		"COMMENT_ACTION="+string(event.Action),
		"COMMENT_ID="+event.CommentID,
		"COMMENT_POST_ID="+event.PostID,
		"COMMENT_OWNER_NAME="+event.OwnerName,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		r.log.Error().
			Err(err).
			Str("command", command).
			Str("comment_id", event.CommentID).
			Str("output", string(output)).
			Msg("Hook command failed")
		return
	}

	r.log.Debug().
		Str("command", command).
		Str("comment_id", event.CommentID).
		Msg("Hook command completed")
}
