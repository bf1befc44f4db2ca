// Package orchestrator is the composition root for session lifecycle and
// dispatch. The HTTP layer talks to this facade only.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/kardosh/multisend/internal/activity"
	"github.com/kardosh/multisend/internal/auth"
	"github.com/kardosh/multisend/internal/credstore"
	"github.com/kardosh/multisend/internal/dispatch"
	"github.com/kardosh/multisend/internal/model"
	"github.com/kardosh/multisend/internal/ratelimit"
	"github.com/kardosh/multisend/internal/session"
)

// LimitStatus reports a caller's standing against cooldown and quota.
type LimitStatus struct {
	CallerID          string                `json:"callerId"`
	CooldownRemaining time.Duration         `json:"cooldownRemainingMs"`
	Quota             ratelimit.QuotaStatus `json:"quota"`
}

type Orchestrator struct {
	auth    *auth.Controller
	reg     *session.Registry
	creds   credstore.Store
	engine  *dispatch.Engine
	limiter *ratelimit.Limiter
	audit   activity.Logger
}

func New(
	authCtl *auth.Controller,
	reg *session.Registry,
	creds credstore.Store,
	engine *dispatch.Engine,
	limiter *ratelimit.Limiter,
	audit activity.Logger,
) *Orchestrator {
	if audit == nil {
		audit = activity.Nop{}
	}
	return &Orchestrator{
		auth:    authCtl,
		reg:     reg,
		creds:   creds,
		engine:  engine,
		limiter: limiter,
		audit:   audit,
	}
}

// Connect starts or reports a session for the identity.
func (o *Orchestrator) Connect(ctx context.Context, identity string) (auth.Result, error) {
	res, err := o.auth.Connect(ctx, identity)
	if err == nil {
		o.audit.Record(ctx, activity.Event{
			Actor:  identity,
			Action: "session.connect",
			Metadata: map[string]any{
				"state":     string(res.State),
				"connected": res.Connected,
			},
			At: time.Now(),
		})
	}
	return res, err
}

// RequestPairingCode starts a phone-number pairing handshake and returns
// the code to type on the device.
func (o *Orchestrator) RequestPairingCode(ctx context.Context, identity string) (string, error) {
	code, err := o.auth.RequestPairingCode(ctx, identity)
	if err == nil {
		o.audit.Record(ctx, activity.Event{
			Actor:  identity,
			Action: "session.pair",
			At:     time.Now(),
		})
	}
	return code, err
}

// Disconnect logs the session out, erases its stored credential and frees
// the identity. Unknown identities still get their credential erased so a
// half-torn-down identity can be cleaned up.
func (o *Orchestrator) Disconnect(ctx context.Context, identity string) error {
	if s, ok := o.reg.Lookup(identity); ok {
		s.Disconnect(ctx)
		o.reg.Drop(s)
	}
	if err := o.creds.Erase(ctx, identity); err != nil {
		slog.Warn("credential erase failed", "identity", identity, "err", err)
		return err
	}
	o.audit.Record(ctx, activity.Event{
		Actor:  identity,
		Action: "session.disconnect",
		At:     time.Now(),
	})
	return nil
}

// ListActiveSessions returns the identities currently connected.
func (o *Orchestrator) ListActiveSessions() []string {
	ids := o.reg.List()
	if ids == nil {
		ids = []string{}
	}
	return ids
}

// SessionStatus reports the session for the identity. Unknown identities
// get a disconnected status rather than an error.
func (o *Orchestrator) SessionStatus(identity string) model.SessionStatus {
	if s, ok := o.reg.Lookup(identity); ok {
		return s.Status()
	}
	return model.SessionStatus{
		Identity:  identity,
		Connected: false,
		State:     model.StateIdle,
	}
}

// Dispatch runs a dispatch job to completion.
func (o *Orchestrator) Dispatch(ctx context.Context, req dispatch.Request) (*dispatch.Result, error) {
	return o.engine.Dispatch(ctx, req)
}

// CancelDispatch requests cooperative cancellation of a running job.
func (o *Orchestrator) CancelDispatch(jobID string) error {
	return o.engine.Cancel(jobID)
}

// RunningJobs snapshots the jobs currently in flight.
func (o *Orchestrator) RunningJobs() []model.DispatchJob {
	return o.engine.Running()
}

// Limits reports the caller's cooldown and quota standing without
// consuming an admission.
func (o *Orchestrator) Limits(callerID string) LimitStatus {
	return LimitStatus{
		CallerID:          callerID,
		CooldownRemaining: o.limiter.CheckCooldown(callerID),
		Quota:             o.limiter.CheckDailyQuota(callerID),
	}
}

// Shutdown closes every live session. Credentials stay on disk so the
// sessions reconnect on the next start.
func (o *Orchestrator) Shutdown() {
	o.reg.CloseAll()
}
