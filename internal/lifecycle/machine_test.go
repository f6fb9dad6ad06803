package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/linconhq/lincon/internal/poster"
	"github.com/linconhq/lincon/internal/record"
)

type fakePublisher struct {
	res        poster.Result
	gotCaption string
	gotPaths   []string
	gotAt      time.Time
	calls      int
}

func (p *fakePublisher) PostCarousel(ctx context.Context, caption string, paths []string, at time.Time) poster.Result {
	p.calls++
	p.gotCaption = caption
	p.gotPaths = paths
	p.gotAt = at
	return p.res
}

type fakeAdvisor struct {
	needs       bool
	reason      string
	description string
	err         error
}

func (a *fakeAdvisor) NeedsPhoto(ctx context.Context, slides []string, sourceText string) (bool, string, string, error) {
	return a.needs, a.reason, a.description, a.err
}

type fakeAssets struct {
	missing map[string]bool
}

func (a *fakeAssets) Path(id string) (string, error) {
	if a.missing[id] {
		return "", fmt.Errorf("no blob %s", id)
	}
	return "/blobs/" + id + ".png", nil
}

func newTestMachine(t *testing.T, pub *fakePublisher, photos *fakeAdvisor) (*Machine, *record.Store) {
	t.Helper()
	records, err := record.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { records.Close() })

	log := logrus.NewEntry(logrus.New())
	m := New(records, pub, photos, &fakeAssets{}, 17, log)
	return m, records
}

func seedItem(t *testing.T, records *record.Store, state record.PostState) *record.ContentItem {
	t.Helper()
	item := &record.ContentItem{
		ID:         uuid.NewString(),
		CreatedAt:  time.Now(),
		PostType:   record.PostTypeCarousel,
		SlideTexts: []string{"hook slide", "second slide"},
		State:      state,
	}
	if err := records.AppendContentItem(item); err != nil {
		t.Fatalf("seed item: %v", err)
	}
	return item
}

func seedMemory(t *testing.T, records *record.Store, text string) *record.Memory {
	t.Helper()
	m := &record.Memory{
		ID:         uuid.NewString(),
		Timestamp:  time.Now(),
		Source:     "operator",
		Text:       text,
		Category:   record.CategoryInsight,
		HasContext: record.ContextYes,
	}
	if err := records.AppendMemory(m); err != nil {
		t.Fatalf("seed memory: %v", err)
	}
	return m
}

func TestApproveSkipsAssetStageWhenNoPhotoNeeded(t *testing.T) {
	m, records := newTestMachine(t, &fakePublisher{}, &fakeAdvisor{needs: false})
	mem := seedMemory(t, records, "shipped the new scheduler")

	item, next, err := m.Approve(context.Background(), Draft{
		PostType:        record.PostTypeCarousel,
		SlideTexts:      []string{"hook", "body"},
		SourceMemoryIDs: []string{mem.ID},
	})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if item.State != record.StateAssetsAttached {
		t.Fatalf("state = %s, want %s", item.State, record.StateAssetsAttached)
	}
	if next != FollowUpVisualConfirm {
		t.Fatalf("follow-up = %v, want visual confirm", next)
	}
	if item.DesignIntent == "" {
		t.Fatal("carousel approval must compute a design intent")
	}

	got, err := records.GetMemory(mem.ID)
	if err != nil {
		t.Fatalf("get memory: %v", err)
	}
	if !got.Used {
		t.Fatal("source memory was not marked used")
	}
}

func TestApproveOpensAssetRequestWhenPhotoNeeded(t *testing.T) {
	m, _ := newTestMachine(t, &fakePublisher{}, &fakeAdvisor{
		needs:       true,
		reason:      "references a conference talk",
		description: "a photo of you on stage",
	})

	item, next, err := m.Approve(context.Background(), Draft{
		PostType:   record.PostTypeCarousel,
		SlideTexts: []string{"hook", "body"},
	})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if item.State != record.StateAssetsRequired {
		t.Fatalf("state = %s, want %s", item.State, record.StateAssetsRequired)
	}
	if next != FollowUpAssetRequest {
		t.Fatalf("follow-up = %v, want asset request", next)
	}
	if !strings.Contains(item.RequiredAssets, "conference talk") || !strings.Contains(item.RequiredAssets, "on stage") {
		t.Fatalf("required assets missing detail: %q", item.RequiredAssets)
	}
}

func TestApproveAdvisorFailureDefaultsToNoPhoto(t *testing.T) {
	m, _ := newTestMachine(t, &fakePublisher{}, &fakeAdvisor{err: errors.New("api down")})

	item, next, err := m.Approve(context.Background(), Draft{
		PostType: record.PostTypeText,
		BodyText: "short post",
	})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if item.State != record.StateAssetsAttached {
		t.Fatalf("state = %s, want shortcut to %s", item.State, record.StateAssetsAttached)
	}
	if next != FollowUpVisualConfirm {
		t.Fatalf("follow-up = %v, want visual confirm", next)
	}
}

func TestAttachAssetsSkipped(t *testing.T) {
	m, records := newTestMachine(t, &fakePublisher{}, &fakeAdvisor{})
	item := seedItem(t, records, record.StateAssetsRequired)

	got, next, err := m.AttachAssets(context.Background(), item.ID, nil, true)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if got.State != record.StateAssetsAttached {
		t.Fatalf("state = %s, want %s", got.State, record.StateAssetsAttached)
	}
	if next != FollowUpVisualConfirm {
		t.Fatalf("follow-up = %v, want visual confirm", next)
	}
	if len(got.AssetLinks) != 1 || got.AssetLinks[0] != "SKIPPED" {
		t.Fatalf("asset links = %v, want SKIPPED marker", got.AssetLinks)
	}
}

func TestAttachAssetsWrongState(t *testing.T) {
	m, records := newTestMachine(t, &fakePublisher{}, &fakeAdvisor{})
	item := seedItem(t, records, record.StateVisualsReady)

	_, _, err := m.AttachAssets(context.Background(), item.ID, []string{"a"}, false)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}

	got, err := records.GetContentItem(item.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != record.StateVisualsReady {
		t.Fatalf("rejected event must leave state unchanged, got %s", got.State)
	}
}

func TestConfirmVisualsRequiresUploads(t *testing.T) {
	m, records := newTestMachine(t, &fakePublisher{}, &fakeAdvisor{})
	item := seedItem(t, records, record.StateAssetsAttached)

	if _, err := m.ConfirmVisuals(context.Background(), item.ID, nil); !errors.Is(err, ErrNoVisualsProvided) {
		t.Fatalf("err = %v, want ErrNoVisualsProvided", err)
	}

	got, err := records.GetContentItem(item.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != record.StateAssetsAttached {
		t.Fatalf("state = %s, want unchanged %s", got.State, record.StateAssetsAttached)
	}
}

func TestConfirmVisuals(t *testing.T) {
	m, records := newTestMachine(t, &fakePublisher{}, &fakeAdvisor{})
	item := seedItem(t, records, record.StateAssetsAttached)

	got, err := m.ConfirmVisuals(context.Background(), item.ID, []string{"v1", "v2"})
	if err != nil {
		t.Fatalf("confirm visuals: %v", err)
	}
	if got.State != record.StateVisualsReady {
		t.Fatalf("state = %s, want %s", got.State, record.StateVisualsReady)
	}
	if len(got.VisualLinks) != 2 {
		t.Fatalf("visual links = %v", got.VisualLinks)
	}
}

func TestProposeScheduleEmpty(t *testing.T) {
	m, _ := newTestMachine(t, &fakePublisher{}, &fakeAdvisor{})

	if _, _, err := m.ProposeSchedule(context.Background()); !errors.Is(err, ErrNothingToSchedule) {
		t.Fatalf("err = %v, want ErrNothingToSchedule", err)
	}
}

func TestProposeSchedulePicksOldestWithoutMutating(t *testing.T) {
	m, records := newTestMachine(t, &fakePublisher{}, &fakeAdvisor{})

	older := &record.ContentItem{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().Add(-2 * time.Hour),
		PostType:  record.PostTypeText,
		BodyText:  "older",
		State:     record.StateVisualsReady,
	}
	newer := &record.ContentItem{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		PostType:  record.PostTypeText,
		BodyText:  "newer",
		State:     record.StateVisualsReady,
	}
	for _, it := range []*record.ContentItem{newer, older} {
		if err := records.AppendContentItem(it); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	item, at, err := m.ProposeSchedule(context.Background())
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if item.ID != older.ID {
		t.Fatalf("picked %q, want the older item", item.BodyText)
	}
	if at.IsZero() {
		t.Fatal("no proposed time")
	}

	got, err := records.GetContentItem(older.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != record.StateVisualsReady {
		t.Fatalf("propose must not mutate state, got %s", got.State)
	}
}

func TestDefaultScheduleTime(t *testing.T) {
	m, _ := newTestMachine(t, &fakePublisher{}, &fakeAdvisor{})

	morning := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return morning }
	if got := m.DefaultScheduleTime(); got.Day() != 29 || got.Hour() != 17 {
		t.Fatalf("before the post hour should propose today at 17:00, got %v", got)
	}

	evening := time.Date(2026, 8, 29, 20, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return evening }
	if got := m.DefaultScheduleTime(); got.Day() != 30 || got.Hour() != 17 {
		t.Fatalf("after the post hour should propose tomorrow at 17:00, got %v", got)
	}
}

func TestConfirmPostScheduledSuccess(t *testing.T) {
	pub := &fakePublisher{res: poster.Result{Success: true}}
	m, records := newTestMachine(t, pub, &fakeAdvisor{})
	item := seedItem(t, records, record.StateVisualsReady)
	item.VisualLinks = []string{"v1", "v2"}
	if err := records.SaveContentItem(item); err != nil {
		t.Fatalf("save: %v", err)
	}

	at := time.Date(2026, 9, 1, 17, 0, 0, 0, time.UTC)
	got, res, err := m.ConfirmPost(context.Background(), item.ID, at)
	if err != nil {
		t.Fatalf("confirm post: %v", err)
	}
	if !res.Success {
		t.Fatalf("publish failed: %s", res.Error)
	}
	if got.State != record.StateScheduled {
		t.Fatalf("state = %s, want %s", got.State, record.StateScheduled)
	}
	if got.PostingStatus != "SUCCESS" {
		t.Fatalf("posting status = %q", got.PostingStatus)
	}
	if !got.ScheduledTime.Equal(at) {
		t.Fatalf("scheduled time = %v, want %v", got.ScheduledTime, at)
	}
	if pub.gotCaption != "hook slide" {
		t.Fatalf("caption = %q, want the hook slide", pub.gotCaption)
	}
	if len(pub.gotPaths) != 2 {
		t.Fatalf("paths = %v, want both visuals resolved", pub.gotPaths)
	}
}

func TestConfirmPostImmediateReachesPosted(t *testing.T) {
	pub := &fakePublisher{res: poster.Result{
		Success: true,
		PostURL: "https://www.linkedin.com/feed/update/urn:li:activity:1/",
	}}
	m, records := newTestMachine(t, pub, &fakeAdvisor{})
	item := seedItem(t, records, record.StateVisualsReady)
	item.VisualLinks = []string{"v1"}
	if err := records.SaveContentItem(item); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, _, err := m.ConfirmPost(context.Background(), item.ID, time.Time{})
	if err != nil {
		t.Fatalf("confirm post: %v", err)
	}
	if got.State != record.StatePosted {
		t.Fatalf("state = %s, want %s", got.State, record.StatePosted)
	}
	if got.PostedTime.IsZero() {
		t.Fatal("posted time not recorded")
	}
}

func TestConfirmPostScheduleFellBack(t *testing.T) {
	pub := &fakePublisher{res: poster.Result{Success: true, ScheduleFellBack: true}}
	m, records := newTestMachine(t, pub, &fakeAdvisor{})
	item := seedItem(t, records, record.StateVisualsReady)
	item.VisualLinks = []string{"v1"}
	if err := records.SaveContentItem(item); err != nil {
		t.Fatalf("save: %v", err)
	}

	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	requested := time.Date(2026, 9, 1, 17, 0, 0, 0, time.UTC)
	got, res, err := m.ConfirmPost(context.Background(), item.ID, requested)
	if err != nil {
		t.Fatalf("confirm post: %v", err)
	}
	if !res.ScheduleFellBack {
		t.Fatal("fallback not surfaced")
	}
	// The record reflects when it actually went out, not the request.
	if !got.ScheduledTime.Equal(now) {
		t.Fatalf("scheduled time = %v, want publish instant %v", got.ScheduledTime, now)
	}
}

func TestConfirmPostFailureIsAbsorbing(t *testing.T) {
	pub := &fakePublisher{res: poster.Result{Error: "composer dialog: all selectors exhausted"}}
	m, records := newTestMachine(t, pub, &fakeAdvisor{})
	item := seedItem(t, records, record.StateVisualsReady)
	item.VisualLinks = []string{"v1"}
	if err := records.SaveContentItem(item); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, res, err := m.ConfirmPost(context.Background(), item.ID, time.Time{})
	if err != nil {
		t.Fatalf("confirm post: %v", err)
	}
	if res.Success {
		t.Fatal("expected publish failure")
	}
	if got.State != record.StateFailed {
		t.Fatalf("state = %s, want %s", got.State, record.StateFailed)
	}
	if got.PostingStatus != "FAILED" || got.ErrorLog == "" {
		t.Fatalf("failure detail not recorded: status=%q log=%q", got.PostingStatus, got.ErrorLog)
	}
	if pub.calls != 1 {
		t.Fatalf("publish attempts = %d, want exactly one", pub.calls)
	}
}

func TestConfirmPostBusyIsRetryable(t *testing.T) {
	pub := &fakePublisher{res: poster.Result{Error: poster.ErrBusy.Error(), Busy: true}}
	m, records := newTestMachine(t, pub, &fakeAdvisor{})
	item := seedItem(t, records, record.StateVisualsReady)
	item.VisualLinks = []string{"v1"}
	if err := records.SaveContentItem(item); err != nil {
		t.Fatalf("save: %v", err)
	}

	_, res, err := m.ConfirmPost(context.Background(), item.ID, time.Time{})
	if !errors.Is(err, poster.ErrBusy) {
		t.Fatalf("err = %v, want poster.ErrBusy", err)
	}
	if !res.Busy {
		t.Fatal("busy result must be surfaced to the caller")
	}

	got, err := records.GetContentItem(item.ID)
	if err != nil {
		t.Fatalf("reload item: %v", err)
	}
	if got.State != record.StateVisualsReady {
		t.Fatalf("state = %s, want %s kept publishable", got.State, record.StateVisualsReady)
	}
	if got.PostingStatus == "FAILED" || got.ErrorLog != "" {
		t.Fatalf("busy rejection recorded as a failure: status=%q log=%q", got.PostingStatus, got.ErrorLog)
	}

	// Once the browser frees up, the same confirmation goes through.
	pub.res = poster.Result{Success: true}
	got, res, err = m.ConfirmPost(context.Background(), item.ID, time.Time{})
	if err != nil {
		t.Fatalf("retry confirm: %v", err)
	}
	if !res.Success || got.State != record.StateScheduled {
		t.Fatalf("retry: success=%v state=%s", res.Success, got.State)
	}
	if pub.calls != 2 {
		t.Fatalf("publish attempts = %d, want 2", pub.calls)
	}
}

func TestConfirmPostWrongState(t *testing.T) {
	m, records := newTestMachine(t, &fakePublisher{}, &fakeAdvisor{})
	item := seedItem(t, records, record.StateContentReady)

	_, _, err := m.ConfirmPost(context.Background(), item.ID, time.Time{})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestCancel(t *testing.T) {
	m, records := newTestMachine(t, &fakePublisher{}, &fakeAdvisor{})
	item := seedItem(t, records, record.StateAssetsRequired)

	got, err := m.Cancel(item.ID, "operator rejected the schedule")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.State != record.StateFailed {
		t.Fatalf("state = %s, want %s", got.State, record.StateFailed)
	}
	if !strings.HasPrefix(got.ErrorLog, "CANCELLED: ") {
		t.Fatalf("error log = %q", got.ErrorLog)
	}
}

func TestCancelTerminalState(t *testing.T) {
	m, records := newTestMachine(t, &fakePublisher{}, &fakeAdvisor{})
	item := seedItem(t, records, record.StatePosted)

	if _, err := m.Cancel(item.ID, "too late"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}
