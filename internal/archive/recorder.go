package archive

import (
	"github.com/mindroom/matty/internal/domain"
	"github.com/mindroom/matty/internal/session"
)

// Recorder is a session observer that mirrors every synced message
// buffer into the archive. Register it on the engine when archive sync
// is enabled.
type Recorder struct {
	store *Store
	logf  func(format string, args ...any)
}

// NewRecorder wraps a store. logf receives write errors and may be nil.
func NewRecorder(store *Store, logf func(format string, args ...any)) *Recorder {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Recorder{store: store, logf: logf}
}

func (r *Recorder) OnMessagesChanged(messages []domain.Message, newIDs []string) {
	if err := r.store.SaveMessages(messages); err != nil {
		r.logf("archive: save messages: %v", err)
	}
}

func (r *Recorder) OnThreadsChanged(roots []domain.Message) {
	if err := r.store.SaveMessages(roots); err != nil {
		r.logf("archive: save thread roots: %v", err)
	}
}

func (r *Recorder) OnNotification(string, session.Severity) {}
func (r *Recorder) OnStatus(string)                         {}
