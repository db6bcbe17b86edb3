package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/GitDataEdit/app/models"
)

// DefaultCallTimeout bounds one candidate attempt, token exchange included.
const DefaultCallTimeout = 15 * time.Second

// ErrNoInstallation means no installation of the user could serve the request.
var ErrNoInstallation = errors.New("no installation could serve the request")

// Opener turns an installation id into a client acting as that installation.
type Opener[C any] func(ctx context.Context, installationID int64) (C, error)

// Runner holds what every attempt needs: how to open a client, how long one
// attempt may take, and which errors stop the iteration.
type Runner[C any] struct {
	Open    Opener[C]
	Timeout time.Duration
	// Halt reports errors that end the iteration and are returned as-is.
	Halt func(error) bool
}

func (r Runner[C]) attempt(ctx context.Context, candidate models.GitHubInstallation, run func(context.Context, C) error) error {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := r.Open(callCtx, candidate.InstallationID)
	if err != nil {
		return fmt.Errorf("installation %d: %w", candidate.InstallationID, err)
	}
	if err := run(callCtx, client); err != nil {
		return fmt.Errorf("installation %d: %w", candidate.InstallationID, err)
	}
	return nil
}

func (r Runner[C]) halts(err error) bool {
	return r.Halt != nil && r.Halt(err)
}

// FirstSuccess tries the candidates in order and returns the first result.
// Later candidates are never opened once one succeeds. Failed attempts are
// logged and skipped; if all fail, the error wraps ErrNoInstallation and
// every attempt's failure.
func FirstSuccess[C, T any](ctx context.Context, r Runner[C], candidates []models.GitHubInstallation, action func(context.Context, C) (T, error)) (T, error) {
	var zero T
	var errs []error
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		var result T
		err := r.attempt(ctx, candidate, func(callCtx context.Context, client C) error {
			var actionErr error
			result, actionErr = action(callCtx, client)
			return actionErr
		})
		if err == nil {
			return result, nil
		}
		if r.halts(err) {
			return zero, err
		}
		fiberlog.Warnf("[Resolver] Installation %d (%s) failed: %v", candidate.InstallationID, candidate.AccountLogin, err)
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return zero, ErrNoInstallation
	}
	return zero, fmt.Errorf("%w: %w", ErrNoInstallation, errors.Join(errs...))
}

// CollectAll runs action against every candidate and concatenates the results.
// Failing candidates are logged and contribute nothing.
func CollectAll[C, T any](ctx context.Context, r Runner[C], candidates []models.GitHubInstallation, action func(context.Context, C) ([]T, error)) []T {
	var all []T
	for _, candidate := range candidates {
		if ctx.Err() != nil {
			break
		}
		var batch []T
		err := r.attempt(ctx, candidate, func(callCtx context.Context, client C) error {
			var actionErr error
			batch, actionErr = action(callCtx, client)
			return actionErr
		})
		if err != nil {
			fiberlog.Warnf("[Resolver] Skipping installation %d (%s): %v", candidate.InstallationID, candidate.AccountLogin, err)
			continue
		}
		all = append(all, batch...)
	}
	return all
}

// Directory supplies a user's installations in resolution order.
type Directory interface {
	ListForUser(ctx context.Context, userID uint) ([]models.GitHubInstallation, error)
}

// Resolver binds the combinators to a user's installations.
type Resolver[C any] struct {
	dir    Directory
	runner Runner[C]
}

func New[C any](dir Directory, runner Runner[C]) *Resolver[C] {
	return &Resolver[C]{dir: dir, runner: runner}
}

// ResolveAndRun runs action through the first of the user's installations that succeeds.
func ResolveAndRun[C, T any](ctx context.Context, r *Resolver[C], userID uint, action func(context.Context, C) (T, error)) (T, error) {
	candidates, err := r.dir.ListForUser(ctx, userID)
	if err != nil {
		var zero T
		return zero, err
	}
	return FirstSuccess(ctx, r.runner, candidates, action)
}

// ResolveAll runs action through every installation of the user. Only a
// directory failure is returned as an error.
func ResolveAll[C, T any](ctx context.Context, r *Resolver[C], userID uint, action func(context.Context, C) ([]T, error)) ([]T, error) {
	candidates, err := r.dir.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return CollectAll(ctx, r.runner, candidates, action), nil
}
