package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/backoffice/modules/audit/domain/entities/auditentry"
	"github.com/iota-uz/backoffice/modules/audit/domain/entities/editgrant"
	"github.com/iota-uz/backoffice/modules/audit/domain/resource"
	fv "github.com/iota-uz/backoffice/modules/audit/domain/value_objects/fieldvalue"
	"github.com/iota-uz/backoffice/pkg/authz"
	"github.com/iota-uz/backoffice/pkg/composables"
	"github.com/iota-uz/backoffice/pkg/eventbus"
	"github.com/iota-uz/backoffice/pkg/types"
)

// SubmitParams captures a request to edit one record.
type SubmitParams struct {
	ResourceType resource.Type `validate:"required,oneof=flights transfers parcels translations other_services"`
	ResourceID   string        `validate:"required,max=255"`
	Reason       string        `validate:"required,max=2000"`
	// Draft optionally stages the change to apply on approval (JSON merge patch semantics).
	Draft *fv.Object
	// Metadata is stored with the grant as-is; draft and display_id are managed by the service.
	Metadata *fv.Object
}

func (p SubmitParams) Ref() resource.Ref {
	return resource.Ref{Type: p.ResourceType, ID: p.ResourceID}
}

// ListGrantsParams controls pagination and filtering for grant lists.
type ListGrantsParams struct {
	Status       editgrant.Status
	ResourceType resource.Type
	ResourceID   string
	RequesterID  *uuid.UUID
	Limit        int
	Offset       int
}

// GrantOptions tunes the grant lifecycle.
type GrantOptions struct {
	// TTL bounds the usability of an approved grant. Zero disables it.
	TTL       time.Duration
	Labeler   resource.Labeler
	Publisher eventbus.EventBus
	// Invalidator is notified when an approval applies a draft.
	Invalidator resource.Invalidator
	// PageSize and MaxPageSize bound List. Zero keeps the defaults.
	PageSize    int
	MaxPageSize int
}

// GrantService implements the edit grant state machine.
type GrantService struct {
	repo            editgrant.Repository
	recorder        *AuditRecorder
	store           resource.Store
	authz           *authz.Service
	ttl             time.Duration
	labeler         resource.Labeler
	publisher       eventbus.EventBus
	invalidator     resource.Invalidator
	now             clock
	defaultPageSize int
	maxPageSize     int
}

func NewGrantService(
	repo editgrant.Repository,
	recorder *AuditRecorder,
	store resource.Store,
	authzService *authz.Service,
	opts GrantOptions,
) *GrantService {
	s := &GrantService{
		repo:            repo,
		recorder:        recorder,
		store:           store,
		authz:           authzService,
		ttl:             opts.TTL,
		labeler:         opts.Labeler,
		publisher:       opts.Publisher,
		invalidator:     opts.Invalidator,
		now:             utcNow,
		defaultPageSize: 50,
		maxPageSize:     500,
	}
	if opts.PageSize > 0 {
		s.defaultPageSize = opts.PageSize
	}
	if opts.MaxPageSize > 0 {
		s.maxPageSize = maxInt(opts.MaxPageSize, s.defaultPageSize)
	}
	if s.labeler == nil {
		s.labeler = resource.FieldLabeler{}
	}
	if s.publisher == nil {
		s.publisher = eventbus.NewEventPublisher(nil)
	}
	if s.invalidator == nil {
		s.invalidator = noopInvalidator{}
	}
	return s
}

func (s *GrantService) authorize(ctx context.Context, actor types.Actor, action string) error {
	if actor.IsZero() {
		return ErrUnauthorized
	}
	if !s.authz.Can(ctx, actor.Role, authz.ObjectEditGrants, action) {
		return ErrPermissionDenied
	}
	return nil
}

func (s *GrantService) logger(ctx context.Context, g *editgrant.EditGrant) *logrus.Entry {
	return composables.UseLogger(ctx).WithFields(logrus.Fields{
		"grant_id":      g.ID,
		"resource_type": g.ResourceType,
		"resource_id":   g.ResourceID,
		"status":        g.Status,
	})
}

func (s *GrantService) publish(prev editgrant.Status, g *editgrant.EditGrant) {
	recordGrantTransition(string(g.Status))
	s.publisher.Publish(&EditGrantStatusChangedEvent{PreviousStatus: prev, Grant: *g})
}

// Submit creates the requester's pending grant for a record, or refreshes reason,
// metadata and created_at of the one they already hold. A pending grant held by
// someone else yields a Conflict naming the holder.
func (s *GrantService) Submit(ctx context.Context, actor types.Actor, params SubmitParams) (*editgrant.EditGrant, error) {
	if err := s.authorize(ctx, actor, authz.ActionSubmit); err != nil {
		return nil, err
	}
	params.Reason = strings.TrimSpace(params.Reason)
	params.ResourceID = strings.TrimSpace(params.ResourceID)
	if err := validate(params); err != nil {
		return nil, err
	}

	ref := params.Ref()
	current, err := s.store.Read(ctx, ref)
	if err != nil {
		if errors.Is(err, resource.ErrNotFound) {
			return nil, ErrResourceNotFound
		}
		return nil, errors.Wrap(err, "read resource")
	}

	meta := params.Metadata.Clone()
	if meta == nil {
		meta = fv.NewObject()
	}
	meta.Delete(editgrant.MetaDraft)
	meta.Delete(editgrant.MetaCancelled)
	if params.Draft != nil {
		if params.Draft.Len() == 0 {
			return nil, invalidPayload("draft must change at least one field")
		}
		meta.Set(editgrant.MetaDraft, fv.ObjectOf(params.Draft.Clone()))
	}
	meta.Set(editgrant.MetaDisplayID, fv.String(s.labeler.Label(ref, current)))

	g, err := s.repo.UpsertPending(ctx, &editgrant.EditGrant{
		RequesterID:  actor.ID,
		ResourceType: ref.Type,
		ResourceID:   ref.ID,
		Reason:       params.Reason,
		Status:       editgrant.StatusPending,
		Metadata:     meta,
		CreatedAt:    s.now(),
	})
	if err != nil {
		var conflict *editgrant.PendingConflictError
		if errors.As(err, &conflict) {
			composables.UseLogger(ctx).WithFields(logrus.Fields{
				"resource_type": ref.Type,
				"resource_id":   ref.ID,
				"actor_id":      actor.ID,
				"holder_id":     conflict.HolderID,
			}).Info("edit request rejected: pending request held by another agent")
			return nil, conflictError(conflict)
		}
		return nil, err
	}
	s.logger(ctx, g).WithField("actor_id", actor.ID).Info("edit request submitted")
	s.publish("", g)
	return g, nil
}

// Approve moves a pending grant to approved. When the grant carries a staged draft,
// the draft is applied to the record, an approve_edit audit entry is written and the
// grant is consumed. If the draft cannot be applied the approval is undone.
func (s *GrantService) Approve(ctx context.Context, actor types.Actor, id uuid.UUID) (_ *editgrant.EditGrant, err error) {
	ctx, span := tracer.Start(ctx, "GrantService.Approve")
	defer func() { endSpan(span, err) }()

	if err := s.authorize(ctx, actor, authz.ActionApprove); err != nil {
		return nil, err
	}
	g, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if g.Status != editgrant.StatusPending {
		return nil, ErrNotPending
	}
	draft, hasDraft, err := g.Draft()
	if err != nil {
		return nil, invalidPayload(err.Error())
	}

	var pre, patch *fv.Object
	if hasDraft {
		if pre, err = s.readResource(ctx, g.Ref()); err != nil {
			return nil, err
		}
		if patch, err = mergePatch(pre, draft); err != nil {
			return nil, err
		}
	}

	approvedAt := s.now()
	approved, err := s.repo.Transition(ctx, editgrant.Transition{
		ID:         g.ID,
		From:       editgrant.StatusPending,
		To:         editgrant.StatusApproved,
		ApproverID: &actor.ID,
		At:         approvedAt,
	})
	if err != nil {
		return nil, s.transitionError(err)
	}
	s.logger(ctx, approved).WithField("approver_id", actor.ID).Info("edit request approved")
	s.publish(editgrant.StatusPending, approved)
	if !hasDraft {
		return approved, nil
	}

	post, err := s.store.Write(ctx, g.Ref(), patch)
	if err != nil {
		s.rollbackApproval(ctx, approved)
		if errors.Is(err, resource.ErrNotFound) {
			return nil, ErrResourceNotFound
		}
		return nil, errors.Wrap(err, "apply draft")
	}
	s.invalidator.Invalidate(ctx, g.Ref())
	consumedAt := s.now()
	if _, err := s.repo.ConsumeByID(ctx, approved.ID, consumedAt); err != nil {
		return nil, errors.Wrap(err, "consume applied grant")
	}
	approved.ExpiresAt = &consumedAt
	if _, err := s.recorder.Record(ctx, RecordParams{
		ActorID:      actor.ID,
		Action:       auditentry.ActionApproveEdit,
		ResourceType: g.ResourceType,
		ResourceID:   g.ResourceID,
		OldValues:    pre,
		NewValues:    post,
		Attribution:  grantAttribution(approved),
	}); err != nil {
		return nil, err
	}
	return approved, nil
}

func (s *GrantService) rollbackApproval(ctx context.Context, g *editgrant.EditGrant) {
	reverted, err := s.repo.Transition(ctx, editgrant.Transition{
		ID:   g.ID,
		From: editgrant.StatusApproved,
		To:   editgrant.StatusPending,
		At:   s.now(),
	})
	if err != nil {
		s.logger(ctx, g).WithError(err).Error("failed to roll back approval")
		return
	}
	s.logger(ctx, reverted).Warn("approval rolled back: draft could not be applied")
	s.publish(editgrant.StatusApproved, reverted)
}

// Reject moves a pending grant to rejected. Nothing is written to the record.
func (s *GrantService) Reject(ctx context.Context, actor types.Actor, id uuid.UUID) (*editgrant.EditGrant, error) {
	if err := s.authorize(ctx, actor, authz.ActionReject); err != nil {
		return nil, err
	}
	rejected, err := s.repo.Transition(ctx, editgrant.Transition{
		ID:         id,
		From:       editgrant.StatusPending,
		To:         editgrant.StatusRejected,
		ApproverID: &actor.ID,
		At:         s.now(),
	})
	if err != nil {
		return nil, s.transitionError(err)
	}
	s.logger(ctx, rejected).WithField("approver_id", actor.ID).Info("edit request rejected")
	s.publish(editgrant.StatusPending, rejected)
	return rejected, nil
}

// Cancel lets a requester withdraw their own pending grant. It ends up rejected
// with metadata.cancelled set.
func (s *GrantService) Cancel(ctx context.Context, actor types.Actor, id uuid.UUID) (*editgrant.EditGrant, error) {
	if err := s.authorize(ctx, actor, authz.ActionCancel); err != nil {
		return nil, err
	}
	g, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if g.RequesterID != actor.ID {
		return nil, ErrPermissionDenied
	}
	meta := g.Metadata.Clone()
	if meta == nil {
		meta = fv.NewObject()
	}
	meta.Set(editgrant.MetaCancelled, fv.Bool(true))
	cancelled, err := s.repo.Transition(ctx, editgrant.Transition{
		ID:          id,
		From:        editgrant.StatusPending,
		To:          editgrant.StatusRejected,
		At:          s.now(),
		RequesterID: &actor.ID,
		Metadata:    meta,
	})
	if err != nil {
		return nil, s.transitionError(err)
	}
	s.logger(ctx, cancelled).WithField("actor_id", actor.ID).Info("edit request cancelled")
	s.publish(editgrant.StatusPending, cancelled)
	return cancelled, nil
}

func (s *GrantService) activeQuery(ref resource.Ref, requesterID uuid.UUID) editgrant.ActiveQuery {
	now := s.now()
	q := editgrant.ActiveQuery{Ref: ref, RequesterID: requesterID, Now: now}
	if s.ttl > 0 {
		since := now.Add(-s.ttl)
		q.ApprovedSince = &since
	}
	return q
}

// ActiveGrant returns the requester's most recently approved usable grant for ref,
// or ErrNoActiveGrant.
func (s *GrantService) ActiveGrant(ctx context.Context, ref resource.Ref, requesterID uuid.UUID) (*editgrant.EditGrant, error) {
	g, err := s.repo.FindActive(ctx, s.activeQuery(ref, requesterID))
	if err != nil {
		if errors.Is(err, editgrant.ErrEditGrantNotFound) {
			return nil, ErrNoActiveGrant
		}
		return nil, err
	}
	return g, nil
}

// HasActiveGrant reports whether the caller may mutate ref and under which attribution.
// Elevated roles are always active under the direct-edit attribution.
func (s *GrantService) HasActiveGrant(ctx context.Context, ref resource.Ref, requesterID uuid.UUID, role types.Role) (Attribution, bool, error) {
	if s.authz.IsElevated(ctx, role) {
		return DirectAttribution(), true, nil
	}
	g, err := s.ActiveGrant(ctx, ref, requesterID)
	if err != nil {
		if errors.Is(err, ErrNoActiveGrant) {
			return Attribution{}, false, nil
		}
		return Attribution{}, false, err
	}
	return grantAttribution(g), true, nil
}

// Consume burns the requester's active grant for ref. It returns nil when there is
// nothing left to consume, so repeated calls are harmless.
func (s *GrantService) Consume(ctx context.Context, ref resource.Ref, requesterID uuid.UUID) (*editgrant.EditGrant, error) {
	g, err := s.repo.Consume(ctx, s.activeQuery(ref, requesterID))
	if err != nil {
		return nil, errors.Wrap(err, "consume grant")
	}
	if g != nil {
		s.logger(ctx, g).WithField("actor_id", requesterID).Info("edit grant consumed")
	}
	return g, nil
}

// consumeByID burns g and reports the consumption stamp. A grant consumed
// concurrently by another call yields ErrNoActiveGrant.
func (s *GrantService) consumeByID(ctx context.Context, g *editgrant.EditGrant) (time.Time, error) {
	at := s.now()
	ok, err := s.repo.ConsumeByID(ctx, g.ID, at)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "consume grant")
	}
	if !ok {
		return time.Time{}, ErrNoActiveGrant
	}
	s.logger(ctx, g).Info("edit grant consumed")
	return at, nil
}

func (s *GrantService) restore(ctx context.Context, g *editgrant.EditGrant, consumedAt time.Time) {
	ok, err := s.repo.Restore(ctx, g.ID, consumedAt)
	logger := s.logger(ctx, g)
	switch {
	case err != nil:
		logger.WithError(err).Error("failed to restore edit grant")
	case !ok:
		logger.Warn("edit grant changed before it could be restored")
	default:
		logger.Info("edit grant restored after failed write")
	}
}

// Get returns a grant. Non-reviewers may only see their own grants.
func (s *GrantService) Get(ctx context.Context, actor types.Actor, id uuid.UUID) (*editgrant.EditGrant, error) {
	if actor.IsZero() {
		return nil, ErrUnauthorized
	}
	g, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if g.RequesterID != actor.ID && !s.authz.Can(ctx, actor.Role, authz.ObjectEditGrants, authz.ActionReview) {
		return nil, ErrGrantNotFound
	}
	return g, nil
}

// List returns grants newest first with the total count. Non-reviewers only see their own.
func (s *GrantService) List(ctx context.Context, actor types.Actor, params ListGrantsParams) ([]*editgrant.EditGrant, int64, error) {
	if actor.IsZero() {
		return nil, 0, ErrUnauthorized
	}
	if params.Status != "" {
		if _, err := editgrant.ParseStatus(string(params.Status)); err != nil {
			return nil, 0, invalidPayload(err.Error())
		}
	}
	if params.ResourceType != "" && !params.ResourceType.Valid() {
		return nil, 0, invalidPayload("unknown resource type")
	}
	find := &editgrant.FindParams{
		Status:       params.Status,
		ResourceType: params.ResourceType,
		ResourceID:   params.ResourceID,
		RequesterID:  params.RequesterID,
		Limit:        clampLimit(params.Limit, s.defaultPageSize, s.maxPageSize),
		Offset:       maxInt(params.Offset, 0),
	}
	if !s.authz.Can(ctx, actor.Role, authz.ObjectEditGrants, authz.ActionReview) {
		find.RequesterID = &actor.ID
	}
	grants, err := s.repo.List(ctx, find)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.Count(ctx, find)
	if err != nil {
		return nil, 0, err
	}
	return grants, total, nil
}

func (s *GrantService) get(ctx context.Context, id uuid.UUID) (*editgrant.EditGrant, error) {
	g, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, editgrant.ErrEditGrantNotFound) {
			return nil, ErrGrantNotFound
		}
		return nil, err
	}
	return g, nil
}

func (s *GrantService) readResource(ctx context.Context, ref resource.Ref) (*fv.Object, error) {
	obj, err := s.store.Read(ctx, ref)
	if err != nil {
		if errors.Is(err, resource.ErrNotFound) {
			return nil, ErrResourceNotFound
		}
		return nil, errors.Wrap(err, "read resource")
	}
	return obj, nil
}

func (s *GrantService) transitionError(err error) error {
	switch {
	case errors.Is(err, editgrant.ErrEditGrantNotFound):
		return ErrGrantNotFound
	case errors.Is(err, editgrant.ErrStaleTransition):
		return ErrNotPending
	}
	return err
}

// mergePatch applies draft to pre as an RFC 7396 merge patch and returns the
// top-level fields to write. Keys the draft removes are written as null.
func mergePatch(pre, draft *fv.Object) (*fv.Object, error) {
	doc, err := pre.MarshalJSON()
	if err != nil {
		return nil, errors.Wrap(err, "encode resource")
	}
	raw, err := json.Marshal(draft)
	if err != nil {
		return nil, errors.Wrap(err, "encode draft")
	}
	merged, err := jsonpatch.MergePatch(doc, raw)
	if err != nil {
		return nil, invalidPayload("draft is not a valid merge patch: " + err.Error())
	}
	after, err := fv.ParseObject(merged)
	if err != nil {
		return nil, invalidPayload("draft produced an invalid record: " + err.Error())
	}
	patch := fv.NewObject()
	draft.Range(func(k string, _ fv.Value) bool {
		patch.Set(k, after.Lookup(k))
		return true
	})
	return patch, nil
}
