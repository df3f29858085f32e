package rig

import (
	"context"
	"errors"

	"github.com/chazu/sinew/pkg/guide"
)

// ErrCanceled is returned by a Prompter when the user cancels.
var ErrCanceled = errors.New("rig: canceled")

// Prompter asks the user to pick one of options. It blocks until the user
// answers or ctx is done.
type Prompter interface {
	Choose(ctx context.Context, question string, options []string) (string, error)
}

// PromptFunc adapts a function to Prompter.
type PromptFunc func(ctx context.Context, question string, options []string) (string, error)

func (f PromptFunc) Choose(ctx context.Context, question string, options []string) (string, error) {
	return f(ctx, question, options)
}

// Answer is a Prompter that always picks the same answer.
func Answer(choice string) Prompter {
	return PromptFunc(func(ctx context.Context, _ string, _ []string) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return choice, nil
	})
}

// Cancel is a Prompter whose user always cancels.
var Cancel Prompter = PromptFunc(func(context.Context, string, []string) (string, error) {
	return "", ErrCanceled
})

// ValueSource supplies live option values for guides flagged to use them
// instead of their stored attributes.
type ValueSource interface {
	Options(tag string, current guide.Options) (guide.Options, error)
}

// ValueFunc adapts a function to ValueSource.
type ValueFunc func(tag string, current guide.Options) (guide.Options, error)

func (f ValueFunc) Options(tag string, current guide.Options) (guide.Options, error) {
	return f(tag, current)
}
