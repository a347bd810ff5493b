package services

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/backoffice/modules/audit/domain/entities/auditentry"
	"github.com/iota-uz/backoffice/modules/audit/domain/entities/editgrant"
	"github.com/iota-uz/backoffice/modules/audit/domain/resource"
	fv "github.com/iota-uz/backoffice/modules/audit/domain/value_objects/fieldvalue"
	"github.com/iota-uz/backoffice/pkg/authz"
	"github.com/iota-uz/backoffice/pkg/composables"
	"github.com/iota-uz/backoffice/pkg/types"
)

const (
	opUpdate       = "update"
	opStatusChange = "status_change"
	opDelete       = "delete"

	// StatusField is the record field written by StatusChange.
	StatusField = "status"
)

// GateOptions tunes the mutation gate.
type GateOptions struct {
	// RestoreOnWriteFailure un-consumes the grant when the record write fails.
	// The default burns the grant regardless.
	RestoreOnWriteFailure bool
	Labeler               resource.Labeler
	Invalidator           resource.Invalidator
}

// MutationGate guards every record mutation. Side effects run strictly in order:
// permission check, grant consumption, record write, audit write.
type MutationGate struct {
	actors      resource.ActorProvider
	authz       *authz.Service
	grants      *GrantService
	recorder    *AuditRecorder
	store       resource.Store
	restore     bool
	labeler     resource.Labeler
	invalidator resource.Invalidator
}

func NewMutationGate(
	actors resource.ActorProvider,
	authzService *authz.Service,
	grants *GrantService,
	recorder *AuditRecorder,
	store resource.Store,
	opts GateOptions,
) *MutationGate {
	g := &MutationGate{
		actors:      actors,
		authz:       authzService,
		grants:      grants,
		recorder:    recorder,
		store:       store,
		restore:     opts.RestoreOnWriteFailure,
		labeler:     opts.Labeler,
		invalidator: opts.Invalidator,
	}
	if g.labeler == nil {
		g.labeler = resource.FieldLabeler{}
	}
	if g.invalidator == nil {
		g.invalidator = noopInvalidator{}
	}
	return g
}

// permit is the outcome of the permission step.
type permit struct {
	actor       types.Actor
	attribution Attribution
	// grant and consumedAt are set when a grant was consumed for this call.
	grant      *editgrant.EditGrant
	consumedAt time.Time
}

func (g *MutationGate) logger(ctx context.Context, op string, ref resource.Ref) *logrus.Entry {
	return composables.UseLogger(ctx).WithFields(logrus.Fields{
		"op":            op,
		"resource_type": ref.Type,
		"resource_id":   ref.ID,
	})
}

// admit resolves the caller and decides whether op may proceed. Non-elevated callers
// must hold an approved grant, which is consumed here.
func (g *MutationGate) admit(ctx context.Context, op string, ref resource.Ref) (*permit, error) {
	if !ref.Type.Valid() {
		return nil, invalidPayload("unknown resource type")
	}
	if ref.ID == "" {
		return nil, invalidPayload("resource id is required")
	}
	logger := g.logger(ctx, op, ref)

	actor, err := resolveActor(ctx, g.actors)
	if err != nil {
		recordGateDecision(op, decisionUnauthorized)
		logger.WithError(err).Warn("mutation rejected: no actor")
		return nil, err
	}
	logger = logger.WithFields(logrus.Fields{"actor_id": actor.ID, "role": actor.Role})

	if g.authz.IsElevated(ctx, actor.Role) {
		if op == opDelete && !g.authz.Can(ctx, actor.Role, authz.ObjectResources, authz.ActionDelete) {
			recordGateDecision(op, decisionDenied)
			logger.Warn("mutation denied: role may not delete")
			return nil, ErrPermissionDenied
		}
		p := &permit{actor: actor, attribution: DirectAttribution()}
		prior, err := g.grants.ActiveGrant(ctx, ref, actor.ID)
		switch {
		case err == nil:
			p.attribution = grantAttribution(prior)
		case !errors.Is(err, ErrNoActiveGrant):
			logger.WithError(err).Warn("prior grant lookup failed; attributing as direct edit")
		}
		recordGateDecision(op, decisionAllowedElevated)
		return p, nil
	}

	if op == opDelete || !g.authz.Can(ctx, actor.Role, authz.ObjectResources, authz.ActionUpdate) {
		recordGateDecision(op, decisionDenied)
		logger.Warn("mutation denied: role not permitted")
		return nil, ErrPermissionDenied
	}
	grant, err := g.grants.ActiveGrant(ctx, ref, actor.ID)
	if err != nil {
		if errors.Is(err, ErrNoActiveGrant) {
			recordGateDecision(op, decisionDenied)
			logger.Warn("mutation denied: no approved edit request")
		}
		return nil, err
	}
	consumedAt, err := g.grants.consumeByID(ctx, grant)
	if err != nil {
		if errors.Is(err, ErrNoActiveGrant) {
			recordGateDecision(op, decisionDenied)
			logger.WithField("grant_id", grant.ID).Warn("mutation denied: grant consumed concurrently")
		}
		return nil, err
	}
	recordGateDecision(op, decisionAllowedGrant)
	return &permit{
		actor:       actor,
		attribution: grantAttribution(grant),
		grant:       grant,
		consumedAt:  consumedAt,
	}, nil
}

// storageFailed handles a failed read or write after admission.
func (g *MutationGate) storageFailed(ctx context.Context, op string, ref resource.Ref, p *permit, err error) error {
	recordGateDecision(op, decisionFailed)
	logger := g.logger(ctx, op, ref).WithField("actor_id", p.actor.ID).WithError(err)
	if p.grant != nil {
		logger = logger.WithField("grant_id", p.grant.ID)
		if g.restore {
			g.grants.restore(ctx, p.grant, p.consumedAt)
		}
	}
	logger.Error("record storage failed")
	if errors.Is(err, resource.ErrNotFound) {
		return ErrResourceNotFound
	}
	return err
}

func (g *MutationGate) audit(ctx context.Context, action auditentry.Action, ref resource.Ref, p *permit, pre, post *fv.Object) error {
	label := pre
	if post != nil {
		label = post
	}
	_, err := g.recorder.Record(ctx, RecordParams{
		ActorID:      p.actor.ID,
		Action:       action,
		ResourceType: ref.Type,
		ResourceID:   ref.ID,
		OldValues:    pre,
		NewValues:    post,
		Attribution:  p.attribution,
		DisplayID:    g.labeler.Label(ref, label),
	})
	if err != nil {
		g.logger(ctx, string(action), ref).WithError(err).Error("record changed but audit entry was not written")
	}
	return err
}

// Update merges patch into the record and returns the post-image.
func (g *MutationGate) Update(ctx context.Context, ref resource.Ref, patch *fv.Object) (*fv.Object, error) {
	return g.mutate(ctx, opUpdate, ref, patch)
}

// StatusChange sets the status field of the record.
func (g *MutationGate) StatusChange(ctx context.Context, ref resource.Ref, status fv.Value) (*fv.Object, error) {
	if fv.Normalize(status).IsNull() {
		return nil, invalidPayload("status is required")
	}
	return g.mutate(ctx, opStatusChange, ref, fv.NewObject().Set(StatusField, status))
}

func (g *MutationGate) mutate(ctx context.Context, op string, ref resource.Ref, patch *fv.Object) (_ *fv.Object, err error) {
	ctx, span := startSpan(ctx, "MutationGate."+op, ref)
	defer func() { endSpan(span, err) }()

	if patch.Len() == 0 {
		return nil, ErrEmptyPatch
	}
	p, err := g.admit(ctx, op, ref)
	if err != nil {
		return nil, err
	}
	pre, err := g.store.Read(ctx, ref)
	if err != nil {
		return nil, g.storageFailed(ctx, op, ref, p, err)
	}
	post, err := g.store.Write(ctx, ref, patch)
	if err != nil {
		return nil, g.storageFailed(ctx, op, ref, p, errors.Wrap(err, "write record"))
	}
	g.invalidator.Invalidate(ctx, ref)
	if err := g.audit(ctx, auditentry.ActionUpdate, ref, p, pre, post); err != nil {
		return nil, err
	}
	g.logger(ctx, op, ref).WithFields(logrus.Fields{
		"actor_id":   p.actor.ID,
		"request_id": p.attribution.RequestID,
	}).Info("record updated")
	return post, nil
}

// Delete removes the record. Only elevated roles may delete; grants never authorize it.
func (g *MutationGate) Delete(ctx context.Context, ref resource.Ref) (err error) {
	ctx, span := startSpan(ctx, "MutationGate.delete", ref)
	defer func() { endSpan(span, err) }()

	p, err := g.admit(ctx, opDelete, ref)
	if err != nil {
		return err
	}
	pre, err := g.store.Read(ctx, ref)
	if err != nil {
		return g.storageFailed(ctx, opDelete, ref, p, err)
	}
	if err := g.store.Delete(ctx, ref); err != nil {
		return g.storageFailed(ctx, opDelete, ref, p, errors.Wrap(err, "delete record"))
	}
	g.invalidator.Invalidate(ctx, ref)
	if err := g.audit(ctx, auditentry.ActionDelete, ref, p, pre, nil); err != nil {
		return err
	}
	g.logger(ctx, opDelete, ref).WithFields(logrus.Fields{
		"actor_id":   p.actor.ID,
		"request_id": p.attribution.RequestID,
	}).Info("record deleted")
	return nil
}
