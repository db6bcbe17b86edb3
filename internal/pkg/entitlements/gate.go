package entitlements

import (
	"context"
	"errors"
	"fmt"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/GitDataEdit/app/models"
	"github.com/ManuelReschke/GitDataEdit/app/repository"
)

type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

const (
	FreeCommitLimit = 10
	CommitWindow    = 30 * 24 * time.Hour
	// a lapsed subscription keeps its plan for one more day
	PeriodGrace = 24 * time.Hour
)

const ReasonPrivateRepo = "Upgrade to Pro to commit to private repositories."

var ReasonLimitReached = fmt.Sprintf(
	"You've reached the free limit of %d commits per %d days. Upgrade to Pro for unlimited commits.",
	FreeCommitLimit, int(CommitWindow.Hours()/24),
)

// CommitDecision is the outcome of evaluating one commit attempt.
type CommitDecision struct {
	Allowed      bool   `json:"allowed"`
	Plan         Plan   `json:"plan"`
	Reason       string `json:"reason,omitempty"`
	CommitsUsed  *int64 `json:"commitsUsed,omitempty"`
	CommitsLimit *int64 `json:"commitsLimit,omitempty"`
}

// SubscriptionStatus summarizes what the user may currently do.
type SubscriptionStatus struct {
	Plan             Plan   `json:"plan"`
	IsPaid           bool   `json:"isPaid"`
	CanCommitPublic  bool   `json:"canCommitPublic"`
	CanCommitPrivate bool   `json:"canCommitPrivate"`
	CommitsUsed      int64  `json:"commitsUsed"`
	CommitsLimit     *int64 `json:"commitsLimit"`
}

type SubscriptionReader interface {
	GetSubscription(ctx context.Context, userID uint) (*repository.Subscription, error)
}

// PlanFromSubscription derives the plan: pro needs a price and a period end
// that, plus the grace day, lies in the future.
func PlanFromSubscription(sub *repository.Subscription, now time.Time) Plan {
	if sub == nil || sub.PriceID == "" || sub.CurrentPeriodEnd == nil {
		return PlanFree
	}
	if sub.CurrentPeriodEnd.Add(PeriodGrace).After(now) {
		return PlanPro
	}
	return PlanFree
}

// Gate decides whether a user may commit and records commits that happened.
type Gate struct {
	subs   SubscriptionReader
	ledger repository.CommitRepository

	Now func() time.Time
}

func NewGate(subs SubscriptionReader, ledger repository.CommitRepository) *Gate {
	return &Gate{subs: subs, ledger: ledger, Now: time.Now}
}

// PlanFor returns the user's current plan. Unknown users are on the free plan.
func (g *Gate) PlanFor(ctx context.Context, userID uint) (Plan, error) {
	sub, err := g.subs.GetSubscription(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return PlanFree, nil
	}
	if err != nil {
		return PlanFree, fmt.Errorf("failed to load subscription: %w", err)
	}
	return PlanFromSubscription(sub, g.Now()), nil
}

// CommitsUsed counts the user's commits inside the trailing window.
func (g *Gate) CommitsUsed(ctx context.Context, userID uint) (int64, error) {
	used, err := g.ledger.CountSince(ctx, userID, g.Now().Add(-CommitWindow))
	if err != nil {
		return 0, fmt.Errorf("failed to count commits: %w", err)
	}
	return used, nil
}

// EvaluateCommit applies the plan rules to one commit attempt.
func (g *Gate) EvaluateCommit(ctx context.Context, userID uint, isPrivateRepo bool) (CommitDecision, error) {
	plan, err := g.PlanFor(ctx, userID)
	if err != nil {
		return CommitDecision{}, err
	}
	if plan == PlanPro {
		return CommitDecision{Allowed: true, Plan: plan}, nil
	}
	if isPrivateRepo {
		return CommitDecision{Allowed: false, Plan: plan, Reason: ReasonPrivateRepo}, nil
	}

	used, err := g.CommitsUsed(ctx, userID)
	if err != nil {
		return CommitDecision{}, err
	}
	limit := int64(FreeCommitLimit)
	decision := CommitDecision{
		Allowed:      used < limit,
		Plan:         plan,
		CommitsUsed:  &used,
		CommitsLimit: &limit,
	}
	if !decision.Allowed {
		decision.Reason = ReasonLimitReached
	}
	return decision, nil
}

// RecordCommit appends a commit to the ledger. Only call it after the
// upstream write succeeded.
func (g *Gate) RecordCommit(ctx context.Context, userID uint, repo, filePath, commitSHA string) error {
	err := g.ledger.Append(ctx, &models.GitHubCommit{
		UserID:    userID,
		Repo:      repo,
		FilePath:  filePath,
		CommitSHA: commitSHA,
		CreatedAt: g.Now(),
	})
	if err != nil {
		fiberlog.Errorf("[Entitlements] Failed to record commit for user %d: %v", userID, err)
		return fmt.Errorf("failed to record commit: %w", err)
	}
	return nil
}

// Status reports plan, permissions and usage.
func (g *Gate) Status(ctx context.Context, userID uint) (SubscriptionStatus, error) {
	plan, err := g.PlanFor(ctx, userID)
	if err != nil {
		return SubscriptionStatus{}, err
	}
	used, err := g.CommitsUsed(ctx, userID)
	if err != nil {
		return SubscriptionStatus{}, err
	}
	isPaid := plan == PlanPro
	status := SubscriptionStatus{
		Plan:             plan,
		IsPaid:           isPaid,
		CanCommitPublic:  true,
		CanCommitPrivate: isPaid,
		CommitsUsed:      used,
	}
	if !isPaid {
		limit := int64(FreeCommitLimit)
		status.CommitsLimit = &limit
	}
	return status, nil
}
