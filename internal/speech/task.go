package speech

import (
	"context"
	"sync"

	"github.com/hammamikhairi/secretkeeper/internal/domain"
)

var _ domain.Task = (*task)(nil)

// task is the handle of one capture or utterance.
type task struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func newTask(cancel context.CancelFunc) *task {
	return &task{cancel: cancel, done: make(chan struct{})}
}

// Cancel requests the engine to stop. Confirmation arrives on Done.
func (t *task) Cancel() { t.cancel() }

// Done is closed when the engine has returned.
func (t *task) Done() <-chan struct{} { return t.done }

func (t *task) finish() {
	t.once.Do(func() { close(t.done) })
}
