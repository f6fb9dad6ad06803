// Package lifecycle owns the content item state machine: the PostState
// progression, transition validation, and the side effects each transition
// carries (record updates, publish calls, follow-up dialogue prompts).
package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/linconhq/lincon/internal/poster"
	"github.com/linconhq/lincon/internal/record"
)

var (
	// ErrInvalidTransition is a programmer/state error: the requested event
	// is not valid for the item's current state. The item is left unchanged.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrNoVisualsProvided means a visual confirmation arrived without any
	// uploaded visuals. The pending operation stays open for retry.
	ErrNoVisualsProvided = errors.New("no visuals provided")
	// ErrNothingToSchedule means no item is waiting in VISUALS_READY.
	ErrNothingToSchedule = errors.New("nothing ready to schedule")
)

// transitions fixes the valid forward edges of the progression. FAILED is
// reachable from any non-terminal state and is handled separately.
var transitions = map[record.PostState][]record.PostState{
	record.StateIdeaCaptured:   {record.StateContentReady},
	record.StateContentReady:   {record.StateAssetsRequired, record.StateAssetsAttached}, // documented shortcut when no photo is needed
	record.StateAssetsRequired: {record.StateAssetsAttached},
	record.StateAssetsAttached: {record.StateVisualsReady},
	record.StateVisualsReady:   {record.StateReadyToPost},
	record.StateReadyToPost:    {record.StateScheduled},
	record.StateScheduled:      {record.StatePosted},
}

// canTransition reports whether from -> to is a legal edge.
func canTransition(from, to record.PostState) bool {
	if to == record.StateFailed {
		return !from.Terminal()
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Draft is an LLM-produced draft awaiting operator approval.
type Draft struct {
	PostType        record.PostType
	BodyText        string
	SlideTexts      []string
	SourceMemoryIDs []string
}

// FollowUp tells the caller which interactive operation to open next.
type FollowUp int

const (
	FollowUpNone FollowUp = iota
	FollowUpAssetRequest
	FollowUpVisualConfirm
	FollowUpPostConfirm
)

// Publisher is the slice of the automation client the machine needs.
type Publisher interface {
	PostCarousel(ctx context.Context, caption string, imagePaths []string, scheduledAt time.Time) poster.Result
}

// PhotoAdvisor decides whether a draft needs a real photograph. Must be
// conservative: absent or ambiguous signal reads as no.
type PhotoAdvisor interface {
	NeedsPhoto(ctx context.Context, slides []string, sourceText string) (bool, string, string, error)
}

// Assets resolves stored visual ids to local file paths for upload.
type Assets interface {
	Path(id string) (string, error)
}

// Machine validates and executes content item transitions. Failures are
// absorbing: the progression is strictly forward except for the universal
// escape to FAILED, so there is no rollback logic anywhere.
type Machine struct {
	records *record.Store
	pub     Publisher
	photos  PhotoAdvisor
	assets  Assets
	log     *logrus.Entry

	// defaultPostHour is the local hour proposed for the next publish slot.
	defaultPostHour int
	now             func() time.Time
}

// New creates a state machine over the given collaborators.
func New(records *record.Store, pub Publisher, photos PhotoAdvisor, assets Assets, defaultPostHour int, log *logrus.Entry) *Machine {
	return &Machine{
		records:         records,
		pub:             pub,
		photos:          photos,
		assets:          assets,
		defaultPostHour: defaultPostHour,
		log:             log,
		now:             time.Now,
	}
}

// advance validates and records a single state edge.
func (m *Machine) advance(item *record.ContentItem, to record.PostState) error {
	if !canTransition(item.State, to) {
		return fmt.Errorf("%w: %s -> %s for item %s", ErrInvalidTransition, item.State, to, item.ID)
	}
	item.State = to
	return m.records.SaveContentItem(item)
}

// Approve turns an approved draft into a ContentItem in CONTENT_READY,
// marks every source memory used, computes the design intent for carousel
// drafts, and asks the photo advisor which branch comes next: a real photo
// requirement opens an asset request, otherwise the item skips straight to
// ASSETS_ATTACHED and a visual confirmation opens.
func (m *Machine) Approve(ctx context.Context, d Draft) (*record.ContentItem, FollowUp, error) {
	item := &record.ContentItem{
		ID:              uuid.NewString(),
		CreatedAt:       m.now(),
		PostType:        d.PostType,
		BodyText:        d.BodyText,
		SlideTexts:      d.SlideTexts,
		SourceMemoryIDs: d.SourceMemoryIDs,
		State:           record.StateContentReady,
	}

	if d.PostType == record.PostTypeCarousel {
		item.DesignIntent = BuildDesignIntent(d.SlideTexts)
	}

	if err := m.records.AppendContentItem(item); err != nil {
		return nil, FollowUpNone, fmt.Errorf("append content item: %w", err)
	}

	for _, id := range d.SourceMemoryIDs {
		if err := m.records.MarkMemoryUsed(id); err != nil {
			m.log.WithError(err).WithField("memory_id", id).Warn("could not mark memory used")
		}
	}

	needsPhoto, reason, description, err := m.photos.NeedsPhoto(ctx, d.SlideTexts, d.BodyText)
	if err != nil {
		// Conservative default: no photo requirement.
		m.log.WithError(err).Warn("photo advisor failed, assuming no photo needed")
		needsPhoto = false
	}

	if needsPhoto {
		item.RequiredAssets = reason
		if description != "" {
			item.RequiredAssets = reason + "\n" + description
		}
		if err := m.advance(item, record.StateAssetsRequired); err != nil {
			return nil, FollowUpNone, err
		}
		return item, FollowUpAssetRequest, nil
	}

	if err := m.advance(item, record.StateAssetsAttached); err != nil {
		return nil, FollowUpNone, err
	}
	return item, FollowUpVisualConfirm, nil
}

// AttachAssets moves ASSETS_REQUIRED -> ASSETS_ATTACHED, persisting the
// uploaded asset references or a SKIPPED marker, and always proceeds to a
// visual confirmation.
func (m *Machine) AttachAssets(ctx context.Context, itemID string, assetIDs []string, skipped bool) (*record.ContentItem, FollowUp, error) {
	item, err := m.records.GetContentItem(itemID)
	if err != nil {
		return nil, FollowUpNone, err
	}
	if item.State != record.StateAssetsRequired {
		return nil, FollowUpNone, fmt.Errorf("%w: attachAssets in %s", ErrInvalidTransition, item.State)
	}

	if skipped {
		item.AssetLinks = []string{"SKIPPED"}
	} else {
		item.AssetLinks = assetIDs
	}

	if err := m.advance(item, record.StateAssetsAttached); err != nil {
		return nil, FollowUpNone, err
	}
	return item, FollowUpVisualConfirm, nil
}

// ConfirmVisuals moves ASSETS_ATTACHED -> VISUALS_READY. At least one
// uploaded visual is required; otherwise ErrNoVisualsProvided and the item
// is left unchanged so the pending operation can stay open.
func (m *Machine) ConfirmVisuals(ctx context.Context, itemID string, visualIDs []string) (*record.ContentItem, error) {
	item, err := m.records.GetContentItem(itemID)
	if err != nil {
		return nil, err
	}
	if item.State != record.StateAssetsAttached {
		return nil, fmt.Errorf("%w: confirmVisuals in %s", ErrInvalidTransition, item.State)
	}
	if len(visualIDs) == 0 {
		return nil, ErrNoVisualsProvided
	}

	item.VisualLinks = visualIDs
	if err := m.advance(item, record.StateVisualsReady); err != nil {
		return nil, err
	}
	return item, nil
}

// ProposeSchedule selects the oldest item in VISUALS_READY and computes a
// default publish instant. It mutates nothing; the caller opens a post
// confirmation with the proposal.
func (m *Machine) ProposeSchedule(ctx context.Context) (*record.ContentItem, time.Time, error) {
	item, err := m.records.OldestInState(record.StateVisualsReady)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, ErrNothingToSchedule
	}
	if err != nil {
		return nil, time.Time{}, err
	}
	return item, m.DefaultScheduleTime(), nil
}

// DefaultScheduleTime is the next occurrence of the configured post hour.
func (m *Machine) DefaultScheduleTime() time.Time {
	now := m.now()
	at := time.Date(now.Year(), now.Month(), now.Day(), m.defaultPostHour, 0, 0, 0, now.Location())
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at
}

// ConfirmPost publishes the item. The item advances through READY_TO_POST
// while the publish is in flight, then to SCHEDULED with
// postingStatus=SUCCESS on success (and on to POSTED when the result
// confirms an immediate publish), or to FAILED with the failure detail in
// errorLog. A busy publisher is not a failure: nothing was attempted, so
// the item returns to VISUALS_READY and poster.ErrBusy is reported for the
// caller to retry. At-most-once per confirmation is the coordinator's job:
// it clears the pending slot before this is invoked.
func (m *Machine) ConfirmPost(ctx context.Context, itemID string, at time.Time) (*record.ContentItem, poster.Result, error) {
	item, err := m.records.GetContentItem(itemID)
	if err != nil {
		return nil, poster.Result{}, err
	}
	if item.State != record.StateVisualsReady {
		return nil, poster.Result{}, fmt.Errorf("%w: confirmPost in %s", ErrInvalidTransition, item.State)
	}

	paths := make([]string, 0, len(item.VisualLinks))
	for _, id := range item.VisualLinks {
		p, err := m.assets.Path(id)
		if err != nil {
			return nil, poster.Result{}, fmt.Errorf("resolve visual %s: %w", id, err)
		}
		paths = append(paths, p)
	}

	item.ScheduledTime = at
	if err := m.advance(item, record.StateReadyToPost); err != nil {
		return nil, poster.Result{}, err
	}

	res := m.pub.PostCarousel(ctx, item.Caption(), paths, at)
	if res.Busy {
		// No publish was attempted; put the item back where the operator
		// can confirm it again once the browser frees up.
		item.State = record.StateVisualsReady
		if err := m.records.SaveContentItem(item); err != nil {
			return nil, res, err
		}
		return item, res, fmt.Errorf("publish deferred: %w", poster.ErrBusy)
	}
	if !res.Success {
		item.PostingStatus = "FAILED"
		item.ErrorLog = res.Error
		if err := m.advance(item, record.StateFailed); err != nil {
			return nil, res, err
		}
		return item, res, nil
	}

	item.PostingStatus = "SUCCESS"
	if res.ScheduleFellBack {
		// The post went out immediately instead of at the requested time.
		item.ScheduledTime = m.now()
	}
	if err := m.advance(item, record.StateScheduled); err != nil {
		return nil, res, err
	}

	if res.PostURL != "" {
		// The resulting page confirmed an immediate, non-scheduled post.
		item.PostedTime = m.now()
		if err := m.advance(item, record.StatePosted); err != nil {
			return nil, res, err
		}
	}

	return item, res, nil
}

// MarkPosted records that a previously scheduled item has gone live.
func (m *Machine) MarkPosted(itemID string) (*record.ContentItem, error) {
	item, err := m.records.GetContentItem(itemID)
	if err != nil {
		return nil, err
	}
	item.PostedTime = m.now()
	if err := m.advance(item, record.StatePosted); err != nil {
		return nil, err
	}
	return item, nil
}

// Cancel terminates the item without advancing it: FAILED with a
// cancellation marker. Never retried.
func (m *Machine) Cancel(itemID, reason string) (*record.ContentItem, error) {
	item, err := m.records.GetContentItem(itemID)
	if err != nil {
		return nil, err
	}
	if item.State.Terminal() {
		return nil, fmt.Errorf("%w: cancel in %s", ErrInvalidTransition, item.State)
	}

	item.PostingStatus = "CANCELLED"
	item.ErrorLog = "CANCELLED: " + reason
	if err := m.advance(item, record.StateFailed); err != nil {
		return nil, err
	}
	return item, nil
}
