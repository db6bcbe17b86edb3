package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/GitDataEdit/app/models"
)

type fakeClient struct {
	id int64
}

type recorder struct {
	opened  []int64
	invoked []int64
	failing map[int64]error
	slow    map[int64]bool
}

func (r *recorder) runner(timeout time.Duration) Runner[fakeClient] {
	return Runner[fakeClient]{
		Open: func(ctx context.Context, id int64) (fakeClient, error) {
			r.opened = append(r.opened, id)
			return fakeClient{id: id}, nil
		},
		Timeout: timeout,
	}
}

func (r *recorder) action(ctx context.Context, c fakeClient) (string, error) {
	r.invoked = append(r.invoked, c.id)
	if r.slow[c.id] {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err := r.failing[c.id]; err != nil {
		return "", err
	}
	return "ok", nil
}

func candidates(ids ...int64) []models.GitHubInstallation {
	out := make([]models.GitHubInstallation, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.GitHubInstallation{InstallationID: id, AccountLogin: "octo"})
	}
	return out
}

func TestFirstSuccessStopsAtFirstWorkingInstallation(t *testing.T) {
	rec := &recorder{failing: map[int64]error{1: errors.New("not found")}}

	got, err := FirstSuccess(context.Background(), rec.runner(time.Second), candidates(1, 2, 3), rec.action)
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, []int64{1, 2}, rec.invoked)
	assert.Equal(t, []int64{1, 2}, rec.opened)
}

func TestFirstSuccessWithoutCandidates(t *testing.T) {
	rec := &recorder{}

	_, err := FirstSuccess(context.Background(), rec.runner(time.Second), nil, rec.action)
	assert.ErrorIs(t, err, ErrNoInstallation)
	assert.Empty(t, rec.invoked)
}

func TestFirstSuccessAllFailing(t *testing.T) {
	boom := errors.New("boom")
	rec := &recorder{failing: map[int64]error{1: boom, 2: boom}}

	_, err := FirstSuccess(context.Background(), rec.runner(time.Second), candidates(1, 2), rec.action)
	assert.ErrorIs(t, err, ErrNoInstallation)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []int64{1, 2}, rec.invoked)
}

func TestFirstSuccessTimeoutCountsAsFailure(t *testing.T) {
	rec := &recorder{slow: map[int64]bool{1: true}}

	start := time.Now()
	got, err := FirstSuccess(context.Background(), rec.runner(50*time.Millisecond), candidates(1, 2), rec.action)
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, []int64{1, 2}, rec.invoked)
}

func TestFirstSuccessHaltingError(t *testing.T) {
	conflict := errors.New("conflict")
	rec := &recorder{failing: map[int64]error{1: conflict}}
	runner := rec.runner(time.Second)
	runner.Halt = func(err error) bool { return errors.Is(err, conflict) }

	_, err := FirstSuccess(context.Background(), runner, candidates(1, 2), rec.action)
	assert.ErrorIs(t, err, conflict)
	assert.NotErrorIs(t, err, ErrNoInstallation)
	assert.Equal(t, []int64{1}, rec.invoked)
}

func TestFirstSuccessOpenFailureSkipsCandidate(t *testing.T) {
	rec := &recorder{}
	runner := rec.runner(time.Second)
	runner.Open = func(ctx context.Context, id int64) (fakeClient, error) {
		if id == 1 {
			return fakeClient{}, errors.New("token exchange failed")
		}
		return fakeClient{id: id}, nil
	}

	_, err := FirstSuccess(context.Background(), runner, candidates(1, 2), rec.action)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, rec.invoked)
}

func TestCollectAllMergesAndSwallowsFailures(t *testing.T) {
	runner := Runner[fakeClient]{
		Open: func(ctx context.Context, id int64) (fakeClient, error) { return fakeClient{id: id}, nil },
	}
	action := func(ctx context.Context, c fakeClient) ([]string, error) {
		switch c.id {
		case 1:
			return []string{"r1", "r2"}, nil
		case 2:
			return nil, errors.New("unavailable")
		default:
			return []string{"r3"}, nil
		}
	}

	got := CollectAll(context.Background(), runner, candidates(1, 2, 3), action)
	assert.Equal(t, []string{"r1", "r2", "r3"}, got)
}

type staticDirectory struct {
	list []models.GitHubInstallation
	err  error
}

func (d staticDirectory) ListForUser(context.Context, uint) ([]models.GitHubInstallation, error) {
	return d.list, d.err
}

func TestResolverPropagatesDirectoryErrors(t *testing.T) {
	rec := &recorder{}
	dbErr := errors.New("db down")
	r := New(staticDirectory{err: dbErr}, rec.runner(time.Second))

	_, err := ResolveAndRun(context.Background(), r, 1, rec.action)
	assert.ErrorIs(t, err, dbErr)

	_, err = ResolveAll(context.Background(), r, 1, func(ctx context.Context, c fakeClient) ([]string, error) {
		return []string{"x"}, nil
	})
	assert.ErrorIs(t, err, dbErr)
}

func TestResolverUsesDirectoryOrder(t *testing.T) {
	rec := &recorder{failing: map[int64]error{9: errors.New("no access")}}
	r := New(staticDirectory{list: candidates(9, 4)}, rec.runner(time.Second))

	got, err := ResolveAndRun(context.Background(), r, 1, rec.action)
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, []int64{9, 4}, rec.invoked)
}
