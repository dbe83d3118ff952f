package sample

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"log/slog"

	"github.com/google/uuid"

	"github.com/okonek/teamspace/internal/apperr"
	"github.com/okonek/teamspace/internal/domain"
	"github.com/okonek/teamspace/internal/repository"
	"github.com/okonek/teamspace/internal/storage"
	"github.com/okonek/teamspace/pkg/config"
)

type fakeSampleRepo struct {
	mu        sync.Mutex
	samples   map[string]domain.Sample
	createErr error
	updateErr error
}

func newFakeSampleRepo() *fakeSampleRepo {
	return &fakeSampleRepo{samples: make(map[string]domain.Sample)}
}

func (f *fakeSampleRepo) CreateSample(_ context.Context, sample *domain.Sample) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples[sample.ID] = *sample
	return nil
}

func (f *fakeSampleRepo) GetSampleByID(_ context.Context, id string) (*domain.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.samples[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

func (f *fakeSampleRepo) ListSamplesByUser(_ context.Context, userID string) ([]domain.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Sample
	for _, s := range f.samples {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSampleRepo) ListSamplesByTeam(_ context.Context, teamID string) ([]domain.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Sample
	for _, s := range f.samples {
		if s.TeamID == teamID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSampleRepo) UpdateSample(_ context.Context, sample *domain.Sample) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.samples[sample.ID]; !ok {
		return repository.ErrNotFound
	}
	f.samples[sample.ID] = *sample
	return nil
}

func (f *fakeSampleRepo) DeleteSample(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.samples[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.samples, id)
	return nil
}

type fakeMemberRepo struct {
	members map[string]domain.Membership // keyed teamID+"/"+userID
}

func newFakeMemberRepo() *fakeMemberRepo {
	return &fakeMemberRepo{members: make(map[string]domain.Membership)}
}

func (f *fakeMemberRepo) add(teamID, userID string, confirmed bool) {
	f.members[teamID+"/"+userID] = domain.Membership{
		ID: uuid.NewString(), TeamID: teamID, UserID: userID, Confirmed: confirmed,
	}
}

func (f *fakeMemberRepo) GetMembership(_ context.Context, teamID, userID string) (*domain.Membership, error) {
	m, ok := f.members[teamID+"/"+userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &m, nil
}

func (f *fakeMemberRepo) CreateMembership(context.Context, *domain.Membership) error { return nil }
func (f *fakeMemberRepo) GetMembershipByID(context.Context, string) (*domain.Membership, error) {
	return nil, repository.ErrNotFound
}
func (f *fakeMemberRepo) ListMembers(context.Context, string) ([]domain.TeamMember, error) {
	return nil, nil
}
func (f *fakeMemberRepo) UpdateMembershipRoles(context.Context, string, []string) error { return nil }
func (f *fakeMemberRepo) ActivateMembership(context.Context, string) error              { return nil }
func (f *fakeMemberRepo) DeleteMembership(context.Context, string) error                { return nil }
func (f *fakeMemberRepo) TransferOwnership(context.Context, string, string, string) error {
	return nil
}

type fakeImages struct {
	mu        sync.Mutex
	uploads   []string
	deletes   []string
	uploadErr error
}

func (f *fakeImages) Upload(_ context.Context, _, id string, _ io.Reader, _ int64, _ string) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, id)
	return nil
}

func (f *fakeImages) Delete(_ context.Context, _, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, id)
	return nil
}

func (f *fakeImages) URL(_ context.Context, _, id string) (string, error) {
	return "http://storage.local/" + id, nil
}

type fakeFeed struct {
	mu     sync.Mutex
	events []domain.ChangeEvent
}

func (f *fakeFeed) Publish(event domain.ChangeEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func newTestService(samples *fakeSampleRepo, members *fakeMemberRepo, images *fakeImages, feed *fakeFeed) Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return Service{
		samples: samples,
		members: members,
		images:  images,
		feed:    feed,
		logger:  logger,
		cfg:     config.AppConfig{SampleBucket: "samples"},
	}
}

func testImage() *storage.ImageUpload {
	data := []byte("png-bytes")
	return &storage.ImageUpload{
		Filename:    "shot.png",
		ContentType: "image/png",
		Size:        int64(len(data)),
		Data:        bytes.NewReader(data),
	}
}

func TestCreateRequiresConfirmedTeamMembership(t *testing.T) {
	members := newFakeMemberRepo()
	members.add("team-1", "pending-user", false)
	svc := newTestService(newFakeSampleRepo(), members, &fakeImages{}, &fakeFeed{})
	ctx := context.Background()

	_, err := svc.Create(ctx, "stranger", CreateInput{Name: "demo", TeamID: "team-1"})
	if apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected forbidden for non-member, got %v", err)
	}
	_, err = svc.Create(ctx, "pending-user", CreateInput{Name: "demo", TeamID: "team-1"})
	if apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected forbidden for pending member, got %v", err)
	}
}

func TestCreateCompensatesUploadedImageOnWriteFailure(t *testing.T) {
	repo := newFakeSampleRepo()
	repo.createErr = errors.New("insert failed")
	images := &fakeImages{}
	svc := newTestService(repo, newFakeMemberRepo(), images, &fakeFeed{})

	_, err := svc.Create(context.Background(), "user-1", CreateInput{Name: "demo", Image: testImage()})
	if apperr.KindOf(err) != apperr.KindInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
	if len(images.uploads) != 1 {
		t.Fatalf("expected one upload before the failing write, got %d", len(images.uploads))
	}
	if len(images.deletes) != 1 || images.deletes[0] != images.uploads[0] {
		t.Fatalf("expected uploaded asset compensated, got deletes %v", images.deletes)
	}
}

func TestCreatePublishesChangeEvent(t *testing.T) {
	feed := &fakeFeed{}
	svc := newTestService(newFakeSampleRepo(), newFakeMemberRepo(), &fakeImages{}, feed)

	created, err := svc.Create(context.Background(), "user-1", CreateInput{Name: "demo"})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if len(feed.events) != 1 {
		t.Fatalf("expected one event, got %d", len(feed.events))
	}
	event := feed.events[0]
	if event.Collection != domain.CollectionSamples || event.Type != domain.ChangeCreate || event.DocumentID != created.ID {
		t.Fatalf("unexpected event %+v", event)
	}
	if event.Sample == nil {
		t.Fatalf("create event must carry the document")
	}
}

func TestGetAllowsOwnerAndTeamMembersOnly(t *testing.T) {
	repo := newFakeSampleRepo()
	members := newFakeMemberRepo()
	members.add("team-1", "teammate", true)
	svc := newTestService(repo, members, &fakeImages{}, &fakeFeed{})
	ctx := context.Background()

	private, err := svc.Create(ctx, "owner-1", CreateInput{Name: "private"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	members.add("team-1", "owner-1", true)
	shared, err := svc.Create(ctx, "owner-1", CreateInput{Name: "shared", TeamID: "team-1"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := svc.Get(ctx, "owner-1", private.ID); err != nil {
		t.Fatalf("owner read failed: %v", err)
	}
	if _, err := svc.Get(ctx, "teammate", private.ID); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected private sample hidden from teammate, got %v", err)
	}
	if _, err := svc.Get(ctx, "teammate", shared.ID); err != nil {
		t.Fatalf("teammate read of shared sample failed: %v", err)
	}
	if _, err := svc.Get(ctx, "stranger", shared.ID); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected shared sample hidden from stranger, got %v", err)
	}
}

func TestUpdateIsOwnerOnly(t *testing.T) {
	repo := newFakeSampleRepo()
	svc := newTestService(repo, newFakeMemberRepo(), &fakeImages{}, &fakeFeed{})
	ctx := context.Background()

	created, err := svc.Create(ctx, "owner-1", CreateInput{Name: "demo"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := svc.Update(ctx, "stranger", created.ID, UpdateInput{Name: "hacked"}); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected non-owner edit denied, got %v", err)
	}
}

func TestUpdateDeletesReplacedImageAfterWrite(t *testing.T) {
	repo := newFakeSampleRepo()
	images := &fakeImages{}
	svc := newTestService(repo, newFakeMemberRepo(), images, &fakeFeed{})
	ctx := context.Background()

	created, err := svc.Create(ctx, "owner-1", CreateInput{Name: "demo", Image: testImage()})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	oldImage := created.ImageID

	updated, err := svc.Update(ctx, "owner-1", created.ID, UpdateInput{Name: "demo v2", Image: testImage()})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if updated.ImageID == oldImage {
		t.Fatalf("expected new image id")
	}
	if len(images.deletes) != 1 || images.deletes[0] != oldImage {
		t.Fatalf("expected old asset deleted, got %v", images.deletes)
	}
}

func TestUpdateCompensatesNewImageOnWriteFailure(t *testing.T) {
	repo := newFakeSampleRepo()
	images := &fakeImages{}
	svc := newTestService(repo, newFakeMemberRepo(), images, &fakeFeed{})
	ctx := context.Background()

	created, err := svc.Create(ctx, "owner-1", CreateInput{Name: "demo", Image: testImage()})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	oldImage := created.ImageID

	repo.updateErr = errors.New("update failed")
	_, err = svc.Update(ctx, "owner-1", created.ID, UpdateInput{Name: "demo v2", Image: testImage()})
	if apperr.KindOf(err) != apperr.KindInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
	// the new asset is rolled back, the referenced one stays
	if len(images.deletes) != 1 || images.deletes[0] == oldImage {
		t.Fatalf("expected only the new asset compensated, got %v", images.deletes)
	}
	stored, err := repo.GetSampleByID(ctx, created.ID)
	if err != nil || stored.ImageID != oldImage {
		t.Fatalf("expected record still referencing %s, got %+v (%v)", oldImage, stored, err)
	}
}

func TestDeleteRemovesRecordThenAsset(t *testing.T) {
	repo := newFakeSampleRepo()
	images := &fakeImages{}
	feed := &fakeFeed{}
	svc := newTestService(repo, newFakeMemberRepo(), images, feed)
	ctx := context.Background()

	created, err := svc.Create(ctx, "owner-1", CreateInput{Name: "demo", Image: testImage()})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := svc.Delete(ctx, "stranger", created.ID); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected non-owner delete denied, got %v", err)
	}
	if err := svc.Delete(ctx, "owner-1", created.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}

	if _, err := repo.GetSampleByID(ctx, created.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected record removed, got %v", err)
	}
	if len(images.deletes) != 1 || images.deletes[0] != created.ImageID {
		t.Fatalf("expected asset removed, got %v", images.deletes)
	}
	last := feed.events[len(feed.events)-1]
	if last.Type != domain.ChangeDelete || last.DocumentID != created.ID {
		t.Fatalf("expected delete event, got %+v", last)
	}
}

func TestListByTeamRequiresMembership(t *testing.T) {
	members := newFakeMemberRepo()
	svc := newTestService(newFakeSampleRepo(), members, &fakeImages{}, &fakeFeed{})

	_, err := svc.ListByTeam(context.Background(), "stranger", "team-1")
	if apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}
