// Package app wires the pipeline: inbound operator messages feed memories
// and dialogue replies, cron triggers feed classification, drafting and
// session upkeep, and approved content flows through the lifecycle machine
// to the automation client.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/linconhq/lincon/internal/blob"
	"github.com/linconhq/lincon/internal/dialogue"
	"github.com/linconhq/lincon/internal/lifecycle"
	"github.com/linconhq/lincon/internal/llm"
	"github.com/linconhq/lincon/internal/notify"
	"github.com/linconhq/lincon/internal/operator"
	"github.com/linconhq/lincon/internal/poster"
	"github.com/linconhq/lincon/internal/record"
)

// Drafter is the slice of the LLM client the app needs.
type Drafter interface {
	Classify(ctx context.Context, text string) (llm.Classification, error)
	GenerateText(ctx context.Context, memories []record.Memory) (string, error)
	GenerateCarousel(ctx context.Context, memories []record.Memory) ([]string, error)
}

// SessionKeeper is the slice of the automation client session upkeep needs.
type SessionKeeper interface {
	CheckSession(ctx context.Context) bool
	Login(ctx context.Context, email, password string) error
}

// App orchestrates one operator's pipeline.
type App struct {
	operatorID string
	email      string
	password   string
	batchSize  int

	records *record.Store
	blobs   *blob.Store
	coord   *dialogue.Coordinator
	machine *lifecycle.Machine
	drafter Drafter
	session SessionKeeper
	notify  *notify.Notifier
	log     *logrus.Entry
}

// New creates the app.
func New(operatorID, email, password string, batchSize int,
	records *record.Store, blobs *blob.Store, coord *dialogue.Coordinator,
	machine *lifecycle.Machine, drafter Drafter, session SessionKeeper,
	notifier *notify.Notifier, log *logrus.Entry) *App {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &App{
		operatorID: operatorID,
		email:      email,
		password:   password,
		batchSize:  batchSize,
		records:    records,
		blobs:      blobs,
		coord:      coord,
		machine:    machine,
		drafter:    drafter,
		session:    session,
		notify:     notifier,
		log:        log,
	}
}

// HandleMessage processes one inbound operator message. The operator server
// guarantees these arrive one at a time, in order.
func (a *App) HandleMessage(ctx context.Context, from, text string, files []operator.File) (string, error) {
	if from != a.operatorID {
		a.log.WithField("from", from).Warn("ignoring message from non-operator identity")
		return "Sorry, I only take instructions from my operator.", nil
	}

	blobIDs, err := a.uploadAll(files)
	if err != nil {
		// Blob failures must not corrupt the pending slot; report and let
		// the operator resend.
		a.log.WithError(err).Error("attachment upload failed")
		return "I couldn't store your attachments, please resend.", nil
	}

	if a.coord.Active() == dialogue.KindNone {
		return a.captureMemory(from, text)
	}

	verb, err := a.coord.Match(dialogue.Reply{Text: text, HasAttachments: len(blobIDs) > 0})
	if errors.Is(err, dialogue.ErrUnrecognizedReply) {
		return a.retryPrompt(), nil
	}
	if err != nil {
		return "", err
	}

	return a.resolve(ctx, verb, text, blobIDs)
}

func (a *App) uploadAll(files []operator.File) ([]string, error) {
	ids := make([]string, 0, len(files))
	for _, f := range files {
		id, err := a.blobs.Upload(f.Data, f.Name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// captureMemory is the default behavior when nothing is pending: the text
// becomes a raw memory awaiting classification.
func (a *App) captureMemory(source, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "Nothing to save.", nil
	}

	m := &record.Memory{
		ID:         uuid.NewString(),
		Timestamp:  time.Now(),
		Source:     source,
		Text:       text,
		Category:   record.CategoryUnclassified,
		HasContext: record.ContextUnknown,
	}
	if err := a.records.AppendMemory(m); err != nil {
		return "", fmt.Errorf("append memory: %w", err)
	}

	return "Saved. I'll think with this later.", nil
}

// retryPrompt restates the active slot's vocabulary without clearing it.
func (a *App) retryPrompt() string {
	switch a.coord.Active() {
	case dialogue.KindApproval:
		return "A draft is waiting. Reply approve, revise, or reject."
	case dialogue.KindAssetRequest:
		return "I still need a photo for this one. Attach it, or reply skip."
	case dialogue.KindVisualConfirm:
		return "Attach the finished visuals and reply done."
	case dialogue.KindPostConfirm:
		return "A post is waiting. Reply confirm, reschedule, or cancel."
	default:
		return ""
	}
}

// resolve maps a matched verb onto a lifecycle transition.
func (a *App) resolve(ctx context.Context, verb dialogue.Verb, text string, blobIDs []string) (string, error) {
	switch verb {
	case dialogue.VerbApprove:
		return a.approveDraft(ctx)
	case dialogue.VerbRevise:
		return a.reviseDraft(ctx)
	case dialogue.VerbReject:
		if _, err := a.coord.Resolve(dialogue.KindApproval); err != nil {
			return "", err
		}
		return "Draft rejected. The memories stay in the pool.", nil

	case dialogue.VerbAttach:
		return a.attachAssets(ctx, blobIDs, false)
	case dialogue.VerbSkip:
		return a.attachAssets(ctx, nil, true)

	case dialogue.VerbDone:
		return a.confirmVisuals(ctx, blobIDs)

	case dialogue.VerbConfirm:
		return a.confirmPost(ctx)
	case dialogue.VerbReschedule:
		return a.reschedule(text)
	case dialogue.VerbCancel:
		op, err := a.coord.Resolve(dialogue.KindPostConfirm)
		if err != nil {
			return "", err
		}
		if _, err := a.machine.Cancel(op.ItemID, "operator cancelled at post confirmation"); err != nil {
			return "", err
		}
		return "Cancelled. The item is closed; re-draft when you're ready.", nil
	}

	return "", fmt.Errorf("unhandled verb %q", verb)
}

func (a *App) approveDraft(ctx context.Context) (string, error) {
	op, err := a.coord.Resolve(dialogue.KindApproval)
	if err != nil {
		return "", err
	}

	item, followUp, err := a.machine.Approve(ctx, *op.Draft)
	if err != nil {
		return "", err
	}

	return a.openFollowUp(item, followUp)
}

func (a *App) reviseDraft(ctx context.Context) (string, error) {
	op, err := a.coord.Resolve(dialogue.KindApproval)
	if err != nil {
		return "", err
	}

	memories := make([]record.Memory, 0, len(op.Draft.SourceMemoryIDs))
	for _, id := range op.Draft.SourceMemoryIDs {
		m, err := a.records.GetMemory(id)
		if err != nil {
			return "", err
		}
		memories = append(memories, *m)
	}

	draft, err := a.generateDraft(ctx, memories)
	if err != nil {
		// The old draft is gone and the new one failed; nothing pending.
		return "", fmt.Errorf("revise draft: %w", err)
	}

	if err := a.coord.Open(dialogue.PendingOperation{Kind: dialogue.KindApproval, Draft: draft}); err != nil {
		return "", err
	}
	return "Here's another take:\n\n" + formatDraft(draft) + "\n\nReply approve, revise, or reject.", nil
}

func (a *App) attachAssets(ctx context.Context, blobIDs []string, skipped bool) (string, error) {
	if !skipped && len(blobIDs) == 0 {
		// NoAssetsFound: slot stays open for retry.
		return "I didn't find an attachment on that message. Attach the photo, or reply skip.", nil
	}

	op, err := a.coord.Resolve(dialogue.KindAssetRequest)
	if err != nil {
		return "", err
	}

	item, followUp, err := a.machine.AttachAssets(ctx, op.ItemID, blobIDs, skipped)
	if err != nil {
		a.coord.Reopen(op)
		return "", err
	}

	return a.openFollowUp(item, followUp)
}

func (a *App) confirmVisuals(ctx context.Context, blobIDs []string) (string, error) {
	if len(blobIDs) == 0 {
		// NoVisualsProvided: slot stays open for retry.
		return "I need at least one finished visual attached with your done.", nil
	}

	op, err := a.coord.Resolve(dialogue.KindVisualConfirm)
	if err != nil {
		return "", err
	}

	if _, err := a.machine.ConfirmVisuals(ctx, op.ItemID, blobIDs); err != nil {
		a.coord.Reopen(op)
		return "", err
	}

	return a.proposeSchedule(ctx)
}

// proposeSchedule asks the machine for the oldest publishable item and
// opens a post confirmation with the default slot.
func (a *App) proposeSchedule(ctx context.Context) (string, error) {
	item, at, err := a.machine.ProposeSchedule(ctx)
	if errors.Is(err, lifecycle.ErrNothingToSchedule) {
		return "Visuals saved. Nothing is ready to schedule yet.", nil
	}
	if err != nil {
		return "", err
	}

	if err := a.coord.Open(dialogue.PendingOperation{
		Kind:         dialogue.KindPostConfirm,
		ItemID:       item.ID,
		ProposedTime: at,
	}); err != nil {
		return "", err
	}

	return fmt.Sprintf("Ready to post. I'd schedule it for %s. Reply confirm, reschedule, or cancel.",
		at.Format("Mon Jan 2 at 15:04")), nil
}

func (a *App) confirmPost(ctx context.Context) (string, error) {
	// Resolving clears the slot before the publish call, so a duplicate
	// confirm fails instead of publishing twice.
	op, err := a.coord.Resolve(dialogue.KindPostConfirm)
	if err != nil {
		return "", err
	}

	item, res, err := a.machine.ConfirmPost(ctx, op.ItemID, op.ProposedTime)
	if errors.Is(err, poster.ErrBusy) {
		// Nothing was published; hand the slot back so the same confirm
		// works once the browser frees up.
		if reopenErr := a.coord.Reopen(op); reopenErr != nil {
			return "", reopenErr
		}
		return "The browser is busy right now, probably refreshing the session. Give it a minute and reply confirm again.", nil
	}
	if err != nil {
		return "", err
	}

	if !res.Success {
		return "Posting failed: " + res.Error + "\nThe item is marked failed; re-draft when ready.", nil
	}

	msg := "Scheduled for " + item.ScheduledTime.Format("Mon Jan 2 at 15:04") + "."
	if res.ScheduleFellBack {
		msg = "LinkedIn's scheduler was misbehaving, so I posted it immediately instead."
	}
	if res.PostURL != "" {
		msg += "\nLive at: " + res.PostURL
	}
	return msg, nil
}

func (a *App) reschedule(text string) (string, error) {
	op, err := a.coord.Resolve(dialogue.KindPostConfirm)
	if err != nil {
		return "", err
	}

	at, ok := parseRescheduleTime(text, op.ProposedTime)
	if !ok {
		at = op.ProposedTime.AddDate(0, 0, 1)
	}

	op.ProposedTime = at
	if err := a.coord.Reopen(op); err != nil {
		return "", err
	}
	return fmt.Sprintf("New slot: %s. Reply confirm, reschedule, or cancel.", at.Format("Mon Jan 2 at 15:04")), nil
}

// parseRescheduleTime accepts "reschedule 2026-01-02 15:04" or
// "reschedule 15:04" (same day as the current proposal).
func parseRescheduleTime(text string, current time.Time) (time.Time, bool) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return time.Time{}, false
	}

	rest := strings.Join(fields[1:], " ")
	if at, err := time.ParseInLocation("2006-01-02 15:04", rest, current.Location()); err == nil {
		return at, true
	}
	if t, err := time.Parse("15:04", rest); err == nil {
		at := time.Date(current.Year(), current.Month(), current.Day(),
			t.Hour(), t.Minute(), 0, 0, current.Location())
		return at, true
	}
	return time.Time{}, false
}

// openFollowUp opens the dialogue slot the machine asked for and returns
// the operator prompt.
func (a *App) openFollowUp(item *record.ContentItem, followUp lifecycle.FollowUp) (string, error) {
	switch followUp {
	case lifecycle.FollowUpAssetRequest:
		if err := a.coord.Open(dialogue.PendingOperation{
			Kind:         dialogue.KindAssetRequest,
			ItemID:       item.ID,
			Instructions: item.RequiredAssets,
		}); err != nil {
			return "", err
		}
		return "This one wants a real photo:\n" + item.RequiredAssets + "\nAttach it, or reply skip.", nil

	case lifecycle.FollowUpVisualConfirm:
		if err := a.coord.Open(dialogue.PendingOperation{
			Kind:   dialogue.KindVisualConfirm,
			ItemID: item.ID,
		}); err != nil {
			return "", err
		}
		msg := "Approved."
		if item.DesignIntent != "" {
			msg += " Design intent:\n" + item.DesignIntent
		}
		return msg + "\nAttach the finished visuals and reply done.", nil
	}

	return "Approved.", nil
}

// DailyPrompt drafts from the oldest unused memories and opens an approval.
// Skipped when an interactive operation is already pending.
func (a *App) DailyPrompt(ctx context.Context) error {
	if op, ok := a.coord.Peek(); ok {
		a.notify.Send(ctx, fmt.Sprintf("Still waiting on you since %s: %s",
			op.OpenedAt.Format("Jan 2 15:04"), a.retryPrompt()))
		return nil
	}

	memories, err := a.records.ListUnusedMemories(3)
	if err != nil {
		return fmt.Errorf("list unused memories: %w", err)
	}
	if len(memories) == 0 {
		a.notify.Send(ctx, "No unused memories to draft from today. Send me something.")
		return nil
	}

	draft, err := a.generateDraft(ctx, memories)
	if err != nil {
		return fmt.Errorf("generate draft: %w", err)
	}

	if err := a.coord.Open(dialogue.PendingOperation{Kind: dialogue.KindApproval, Draft: draft}); err != nil {
		return err
	}

	a.notify.Send(ctx, "Today's draft:\n\n"+formatDraft(draft)+"\n\nReply approve, revise, or reject.")
	return nil
}

// generateDraft picks the format and calls the drafting capability.
// Carousels for multi-memory or long source material, plain text otherwise.
func (a *App) generateDraft(ctx context.Context, memories []record.Memory) (*lifecycle.Draft, error) {
	ids := make([]string, len(memories))
	totalLen := 0
	for i, m := range memories {
		ids[i] = m.ID
		totalLen += len(m.Text)
	}

	if len(memories) >= 2 || totalLen > 280 {
		slides, err := a.drafter.GenerateCarousel(ctx, memories)
		if err != nil {
			return nil, err
		}
		return &lifecycle.Draft{
			PostType:        record.PostTypeCarousel,
			SlideTexts:      slides,
			BodyText:        memories[0].Text,
			SourceMemoryIDs: ids,
		}, nil
	}

	body, err := a.drafter.GenerateText(ctx, memories)
	if err != nil {
		return nil, err
	}
	return &lifecycle.Draft{
		PostType:        record.PostTypeText,
		BodyText:        body,
		SourceMemoryIDs: ids,
	}, nil
}

func formatDraft(d *lifecycle.Draft) string {
	if d.PostType == record.PostTypeCarousel {
		var sb strings.Builder
		for i, s := range d.SlideTexts {
			sb.WriteString(fmt.Sprintf("Slide %d: %s\n", i+1, s))
		}
		return strings.TrimRight(sb.String(), "\n")
	}
	return d.BodyText
}

// ClassifyBatch classifies unclassified memories. Unparseable responses
// degrade to misc inside the drafter; transport errors are logged and the
// memory stays unclassified for the next run - partial progress survives.
func (a *App) ClassifyBatch(ctx context.Context) error {
	memories, err := a.records.ListMemoriesByCategory(record.CategoryUnclassified, 50)
	if err != nil {
		return fmt.Errorf("list unclassified: %w", err)
	}
	if len(memories) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.batchSize)

	for _, m := range memories {
		m := m
		g.Go(func() error {
			cls, err := a.drafter.Classify(ctx, m.Text)
			if err != nil {
				a.log.WithError(err).WithField("memory_id", m.ID).Warn("classification failed, will retry next run")
				return nil
			}
			if err := a.records.UpdateMemoryClassification(m.ID, cls.Category, cls.HasContext); err != nil {
				a.log.WithError(err).WithField("memory_id", m.ID).Warn("could not store classification")
			}
			return nil
		})
	}

	g.Wait()
	a.log.WithField("count", len(memories)).Info("classification batch done")
	return nil
}

// RefreshSession verifies the browser session and re-logs-in when it has
// gone stale. Login problems are surfaced to the operator with a
// remediation instruction rather than retried.
func (a *App) RefreshSession(ctx context.Context) error {
	if a.session.CheckSession(ctx) {
		a.log.Debug("session still valid")
		return nil
	}

	a.log.Info("session invalid, attempting re-login")
	if err := a.session.Login(ctx, a.email, a.password); err != nil {
		a.notify.Send(ctx, "LinkedIn session refresh failed: "+err.Error()+
			"\nIf this is a verification checkpoint, complete it in a browser and I'll retry tomorrow.")
		return err
	}

	a.notify.Send(ctx, "LinkedIn session refreshed.")
	return nil
}
