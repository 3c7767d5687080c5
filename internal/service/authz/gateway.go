// internal/service/authz/gateway.go
package authz

import (
	"context"
	"fmt"
	"time"

	"accesscore-service/internal/domain/authz"
	"accesscore-service/internal/service/policy"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PolicyEvaluator is the external engine behind CheckAccess.
type PolicyEvaluator interface {
	Evaluate(ctx context.Context, request *authz.Request) (*policy.EvaluationResult, error)
}

// RecentStore is the bounded, fast, lossy side of the audit trail.
type RecentStore interface {
	Append(ctx context.Context, entry *authz.LogEntry) error
	List(ctx context.Context, filter authz.HistoryFilter) ([]*authz.LogEntry, error)
}

// AuditRepository is the durable, authoritative side of the audit trail.
type AuditRepository interface {
	Insert(ctx context.Context, entry *authz.LogEntry) error
	List(ctx context.Context, filter authz.HistoryFilter) ([]*authz.LogEntry, error)
}

// DecisionCache is an optional optimization. The policy engine stays
// authoritative; a cache entry only short-circuits the round trip within
// its conservative TTL and is invalidated whenever the subject changes.
type DecisionCache interface {
	Get(ctx context.Context, request *authz.Request) (*authz.Decision, bool, error)
	Set(ctx context.Context, request *authz.Request, decision *authz.Decision) error
	InvalidateSubject(ctx context.Context, subjectID string) error
}

// Meta carries request-scoped facts into the audit trail.
type Meta struct {
	SessionID string
	IP        string
	UserAgent string
}

// Gateway produces allow/deny decisions and the immutable audit trail.
// It holds no state across calls beyond its configured handles, so
// concurrent use needs no extra locking.
type Gateway struct {
	engine       PolicyEvaluator
	recent       RecentStore
	durable      AuditRepository
	cache        DecisionCache // nil when decision caching is disabled
	auditTimeout time.Duration
	historyWait  time.Duration
	logger       *zap.Logger
}

func NewGateway(
	engine PolicyEvaluator,
	recent RecentStore,
	durable AuditRepository,
	cache DecisionCache,
	logger *zap.Logger,
) *Gateway {
	return &Gateway{
		engine:       engine,
		recent:       recent,
		durable:      durable,
		cache:        cache,
		auditTimeout: 5 * time.Second,
		historyWait:  2 * time.Second,
		logger:       logger,
	}
}

// CheckAccess asks the policy engine for a verdict and audits it. It
// never returns an error: an unreachable or timed-out engine resolves to
// deny with a reason naming the failure. Fail-open is rejected by
// design. The decision is returned before either audit write is
// guaranteed to have completed.
func (g *Gateway) CheckAccess(ctx context.Context, request *authz.Request, meta Meta) *authz.Decision {
	correlationID := uuid.NewString()

	decision := g.evaluate(ctx, request)
	decision.CorrelationID = correlationID

	entry := &authz.LogEntry{
		SubjectID:     request.Subject.ID,
		ResourceID:    request.Resource.ID,
		ResourceType:  request.Resource.Type,
		Action:        request.Action,
		Allow:         decision.Allow,
		Reason:        decision.Reason,
		Context:       request.Context,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		SessionID:     meta.SessionID,
		IP:            meta.IP,
		UserAgent:     meta.UserAgent,
	}

	// Fire and forget: decisions are never gated on audit success. Each
	// write runs detached with its own timeout and logged failures.
	go g.writeRecent(entry)
	go g.writeDurable(entry)

	return decision
}

func (g *Gateway) evaluate(ctx context.Context, request *authz.Request) *authz.Decision {
	if g.cache != nil {
		cached, hit, err := g.cache.Get(ctx, request)
		if err != nil {
			g.logger.Warn("decision cache read failed", zap.Error(err))
		} else if hit {
			out := *cached
			out.Cached = true
			return &out
		}
	}

	start := time.Now()
	result, err := g.engine.Evaluate(ctx, request)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		g.logger.Error("policy evaluation failed, denying by default",
			zap.String("subject_id", request.Subject.ID),
			zap.String("action", request.Action),
			zap.Error(err))
		return &authz.Decision{
			Allow:            false,
			Reason:           fmt.Sprintf("policy engine unavailable: %v", err),
			EvaluationTimeMs: elapsed,
		}
	}

	decision := &authz.Decision{
		Allow:            result.Allow,
		Reason:           result.Reason,
		EvaluationTimeMs: elapsed,
	}
	if decision.Reason == "" && !decision.Allow {
		decision.Reason = "denied by policy"
	}

	if g.cache != nil {
		if err := g.cache.Set(ctx, request, decision); err != nil {
			g.logger.Warn("decision cache write failed", zap.Error(err))
		}
	}

	return decision
}

// GetHistory reads the audit trail most-recent-first. The recent store
// is primary; when it is unreachable or slow past the bounded wait, the
// durable store answers the same query. If both fail the caller gets an
// empty sequence, never an error.
func (g *Gateway) GetHistory(ctx context.Context, filter authz.HistoryFilter) []*authz.LogEntry {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}

	recentCtx, cancel := context.WithTimeout(ctx, g.historyWait)
	entries, err := g.recent.List(recentCtx, filter)
	cancel()
	if err == nil {
		return entries
	}
	g.logger.Warn("recent history unavailable, falling back to durable store", zap.Error(err))

	durableCtx, cancel := context.WithTimeout(ctx, g.historyWait)
	defer cancel()
	entries, err = g.durable.List(durableCtx, filter)
	if err != nil {
		g.logger.Error("durable history fallback failed", zap.Error(err))
		return []*authz.LogEntry{}
	}
	return entries
}

// InvalidateCache drops every cached decision for the subject. The cache
// is an optimization, not a correctness dependency, so failures are
// logged and swallowed.
func (g *Gateway) InvalidateCache(ctx context.Context, subjectID string) {
	if g.cache == nil {
		return
	}
	if err := g.cache.InvalidateSubject(ctx, subjectID); err != nil {
		g.logger.Warn("decision cache invalidation failed",
			zap.String("subject_id", subjectID), zap.Error(err))
	}
}

func (g *Gateway) writeRecent(entry *authz.LogEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), g.auditTimeout)
	defer cancel()
	if err := g.recent.Append(ctx, entry); err != nil {
		g.logger.Warn("recent audit write failed",
			zap.String("correlation_id", entry.CorrelationID), zap.Error(err))
	}
}

func (g *Gateway) writeDurable(entry *authz.LogEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), g.auditTimeout)
	defer cancel()
	if err := g.durable.Insert(ctx, entry); err != nil {
		g.logger.Error("durable audit write failed",
			zap.String("correlation_id", entry.CorrelationID), zap.Error(err))
	}
}
