package orchestrator_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	gitgateerrors "stackit.dev/gitgate/internal/errors"
	"stackit.dev/gitgate/internal/git"
	"stackit.dev/gitgate/internal/orchestrator"
	"stackit.dev/gitgate/internal/route"
	"stackit.dev/gitgate/testhelpers"
)

// newRepository wires a live repository around the scene with a short
// recheck interval
func newRepository(t *testing.T, scene *testhelpers.Scene) *route.Repository {
	t.Helper()
	session := scene.OpenSession(t)
	repo := route.NewRepository(session, false, route.RepositoryOptions{RecheckInterval: 10 * time.Millisecond})
	t.Cleanup(func() { _ = repo.Dispose(context.Background()) })
	return repo
}

// scriptedResolver answers from a fixed outcome per path, defaulting to Abort
type scriptedResolver struct {
	mu       sync.Mutex
	outcomes map[string]orchestrator.Outcome
	fallback orchestrator.Outcome
	asked    []string
}

func (r *scriptedResolver) Resolve(_ context.Context, path string) (orchestrator.Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.asked = append(r.asked, path)
	if o, ok := r.outcomes[path]; ok {
		return o, nil
	}
	return r.fallback, nil
}

func (r *scriptedResolver) Asked() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.asked...)
}

// fakePrompter returns queued answers, then the last one forever
type fakePrompter struct {
	mu      sync.Mutex
	answers []orchestrator.Answer
	asked   []orchestrator.Question
}

func (p *fakePrompter) Confirm(_ context.Context, q orchestrator.Question) (orchestrator.Answer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.asked = append(p.asked, q)
	if len(p.answers) == 0 {
		return orchestrator.Answer{}, nil
	}
	a := p.answers[0]
	if len(p.answers) > 1 {
		p.answers = p.answers[1:]
	}
	return a, nil
}

func (p *fakePrompter) Questions() []orchestrator.Question {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]orchestrator.Question(nil), p.asked...)
}

type memoryPreferences struct {
	mu     sync.Mutex
	values map[string]bool
}

func (m *memoryPreferences) Remembered(id string) (bool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[id]
	return v, ok
}

func (m *memoryPreferences) Remember(id string, value bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = make(map[string]bool)
	}
	m.values[id] = value
	return nil
}

// fakeCredentials hands out numbered credentials and records every call
type fakeCredentials struct {
	mu          sync.Mutex
	requested   []orchestrator.CredentialKind
	stored      []orchestrator.CredentialKind
	invalidated []orchestrator.CredentialKind
	cancelAfter int // provider cancels from this request on; 0 never
}

func (f *fakeCredentials) Credentials(_ context.Context, _ string, kind orchestrator.CredentialKind) (git.Credentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested = append(f.requested, kind)
	if f.cancelAfter > 0 && len(f.requested) >= f.cancelAfter {
		return git.Credentials{}, fmt.Errorf("credential prompt: %w", gitgateerrors.ErrUserCancelled)
	}
	return git.Credentials{Username: "user", Password: fmt.Sprintf("token-%d", len(f.requested))}, nil
}

func (f *fakeCredentials) Store(_ context.Context, _ string, kind orchestrator.CredentialKind, _ git.Credentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = append(f.stored, kind)
	return nil
}

func (f *fakeCredentials) Invalidate(_ context.Context, _ string, kind orchestrator.CredentialKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, kind)
	return nil
}

type recordingListener struct {
	mu    sync.Mutex
	tasks []orchestrator.Task
}

func (l *recordingListener) TaskFinished(_ context.Context, task orchestrator.Task) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tasks = append(l.tasks, task)
}

func (l *recordingListener) Last(t *testing.T) orchestrator.Task {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	require.NotEmpty(t, l.tasks)
	return l.tasks[len(l.tasks)-1]
}

type recordingReporter struct {
	mu        sync.Mutex
	completed []int
	failed    []int
	messages  []string
}

func (r *recordingReporter) StepStarted(int, string) {}

func (r *recordingReporter) StepCompleted(i int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, i)
}

func (r *recordingReporter) StepFailed(i int, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, i)
}

func (r *recordingReporter) Message(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, text)
}

type fakeHost struct {
	url     string
	tokens  []string
	created []orchestrator.PublishOptions
}

func (h *fakeHost) HostURL() string { return "https://example.test" }

func (h *fakeHost) CreateRepository(_ context.Context, token string, opts orchestrator.PublishOptions) (string, error) {
	h.tokens = append(h.tokens, token)
	h.created = append(h.created, opts)
	return h.url, nil
}
