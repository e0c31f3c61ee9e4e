package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"

	gitgateerrors "stackit.dev/gitgate/internal/errors"
	"stackit.dev/gitgate/internal/git"
	"stackit.dev/gitgate/internal/orchestrator"
)

// askFunc matches survey.AskOne so tests can script answers
type askFunc func(p survey.Prompt, response interface{}, opts ...survey.AskOpt) error

// userCancelled maps the ways a prompt can be dismissed onto ErrUserCancelled
func userCancelled(err error) error {
	if errors.Is(err, terminal.InterruptErr) ||
		errors.Is(err, ErrPromptCanceled) ||
		errors.Is(err, ErrInteractiveDisabled) {
		return fmt.Errorf("%w: %w", gitgateerrors.ErrUserCancelled, err)
	}
	return err
}

// TerminalResolver asks the user what to do with each conflicting path
type TerminalResolver struct {
	screen *Screen
	choose func(path string) (orchestrator.Outcome, error)
}

// NewTerminalResolver returns a resolver backed by PromptConflict. screen may
// be nil.
func NewTerminalResolver(screen *Screen) *TerminalResolver {
	return &TerminalResolver{screen: screen, choose: PromptConflict}
}

var _ orchestrator.ConflictResolver = (*TerminalResolver)(nil)

// Resolve prompts for path. A dismissed or disabled prompt aborts.
func (r *TerminalResolver) Resolve(ctx context.Context, path string) (orchestrator.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return orchestrator.Abort, err
	}
	outcome := orchestrator.Abort
	err := r.screen.Suspend(ctx, func(context.Context) (err error) {
		outcome, err = r.choose(path)
		return err
	})
	if err != nil {
		if errors.Is(userCancelled(err), gitgateerrors.ErrUserCancelled) {
			return orchestrator.Abort, nil
		}
		return orchestrator.Abort, err
	}
	return outcome, nil
}

// TerminalPrompter asks yes/no questions on the terminal
type TerminalPrompter struct {
	screen    *Screen
	assumeYes bool
	ask       func(q orchestrator.Question) (orchestrator.Answer, error)
}

// NewTerminalPrompter returns a prompter. With assumeYes every question is
// answered yes without asking.
func NewTerminalPrompter(screen *Screen, assumeYes bool) *TerminalPrompter {
	return &TerminalPrompter{screen: screen, assumeYes: assumeYes, ask: PromptQuestion}
}

var _ orchestrator.Prompter = (*TerminalPrompter)(nil)

// Confirm asks q. When interactive prompts are disabled the answer is no.
func (p *TerminalPrompter) Confirm(ctx context.Context, q orchestrator.Question) (orchestrator.Answer, error) {
	if err := ctx.Err(); err != nil {
		return orchestrator.Answer{}, err
	}
	if p.assumeYes {
		return orchestrator.Answer{Yes: true}, nil
	}

	var answer orchestrator.Answer
	err := p.screen.Suspend(ctx, func(context.Context) (err error) {
		answer, err = p.ask(q)
		return err
	})
	if errors.Is(err, ErrInteractiveDisabled) {
		return orchestrator.Answer{}, nil
	}
	if err != nil {
		return orchestrator.Answer{}, userCancelled(err)
	}
	if !q.AllowRemember {
		answer.Remember = false
	}
	return answer, nil
}

// TerminalCredentials keeps credentials in memory per URL and kind and asks
// for missing ones. The first normal credential for a URL is GITHUB_TOKEN
// when set, otherwise anonymous access; prompting starts once it is rejected.
type TerminalCredentials struct {
	screen   *Screen
	mu       sync.Mutex
	stored   map[orchestrator.CredentialKind]map[string]git.Credentials
	token    string
	rejected map[string]bool // urls whose token or anonymous access failed
	ask      askFunc
}

// NewTerminalCredentials returns a provider that prompts through survey
func NewTerminalCredentials(screen *Screen) *TerminalCredentials {
	return &TerminalCredentials{
		screen:   screen,
		stored:   make(map[orchestrator.CredentialKind]map[string]git.Credentials),
		token:    os.Getenv("GITHUB_TOKEN"),
		rejected: make(map[string]bool),
		ask:      survey.AskOne,
	}
}

var _ orchestrator.CredentialProvider = (*TerminalCredentials)(nil)

// Credentials returns the stored credential or prompts for a new one
func (c *TerminalCredentials) Credentials(ctx context.Context, url string, kind orchestrator.CredentialKind) (git.Credentials, error) {
	if err := ctx.Err(); err != nil {
		return git.Credentials{}, err
	}

	c.mu.Lock()
	if creds, ok := c.stored[kind][url]; ok {
		c.mu.Unlock()
		return creds, nil
	}
	if kind == orchestrator.CredentialNormal && !c.rejected[url] {
		c.mu.Unlock()
		if c.token == "" {
			return git.Credentials{}, nil
		}
		return git.Credentials{Username: "x-access-token", Password: c.token}, nil
	}
	c.mu.Unlock()

	if interactiveDisabled() {
		return git.Credentials{}, userCancelled(ErrInteractiveDisabled)
	}

	var creds git.Credentials
	err := c.screen.Suspend(ctx, func(context.Context) error {
		if err := c.ask(&survey.Input{Message: fmt.Sprintf("Username for %s:", url)}, &creds.Username); err != nil {
			return err
		}
		return c.ask(&survey.Password{Message: fmt.Sprintf("Password or token for %s:", url)}, &creds.Password)
	})
	if err != nil {
		return git.Credentials{}, userCancelled(err)
	}
	return creds, nil
}

// Store keeps creds for later requests of the same kind
func (c *TerminalCredentials) Store(_ context.Context, url string, kind orchestrator.CredentialKind, creds git.Credentials) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stored[kind] == nil {
		c.stored[kind] = make(map[string]git.Credentials)
	}
	c.stored[kind][url] = creds
	return nil
}

// Invalidate forgets the credential so the next request prompts
func (c *TerminalCredentials) Invalidate(_ context.Context, url string, kind orchestrator.CredentialKind) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.stored[kind], url)
	if kind == orchestrator.CredentialNormal {
		c.rejected[url] = true
	}
	return nil
}
