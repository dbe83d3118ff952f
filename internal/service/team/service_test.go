package team

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/okonek/teamspace/internal/apperr"
	"github.com/okonek/teamspace/internal/cache"
	"github.com/okonek/teamspace/internal/domain"
	"github.com/okonek/teamspace/internal/repository"
	"github.com/okonek/teamspace/internal/storage"
	"github.com/okonek/teamspace/pkg/config"
	"github.com/okonek/teamspace/pkg/crypto"
)

type fakeStore struct {
	mu            sync.Mutex
	teams         map[string]domain.Team
	members       map[string]domain.Membership
	users         map[string]domain.User
	profiles      map[string]domain.Profile
	createTeamErr error
	countOverride int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		teams:    make(map[string]domain.Team),
		members:  make(map[string]domain.Membership),
		users:    make(map[string]domain.User),
		profiles: make(map[string]domain.Profile),
	}
}

func (f *fakeStore) addTeam(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.NewString()
	f.teams[id] = domain.Team{ID: id, Name: name}
	return id
}

func (f *fakeStore) addMember(teamID, userID string, roles []string, confirmed bool) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.NewString()
	f.members[id] = domain.Membership{
		ID: id, TeamID: teamID, UserID: userID,
		Roles: roles, Confirmed: confirmed,
	}
	return id
}

func (f *fakeStore) rolesOf(teamID, userID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.members {
		if m.TeamID == teamID && m.UserID == userID {
			return m.Roles
		}
	}
	return nil
}

func (f *fakeStore) CreateTeamWithOwner(_ context.Context, team *domain.Team, owner *domain.Membership) error {
	if f.createTeamErr != nil {
		return f.createTeamErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.teams[team.ID] = *team
	f.members[owner.ID] = *owner
	return nil
}

func (f *fakeStore) GetTeamByID(_ context.Context, teamID string) (*domain.Team, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	team, ok := f.teams[teamID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &team, nil
}

func (f *fakeStore) UpdateTeam(_ context.Context, team *domain.Team) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.teams[team.ID]; !ok {
		return repository.ErrNotFound
	}
	f.teams[team.ID] = *team
	return nil
}

func (f *fakeStore) DeleteTeam(_ context.Context, teamID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.teams, teamID)
	for id, m := range f.members {
		if m.TeamID == teamID {
			delete(f.members, id)
		}
	}
	return nil
}

func (f *fakeStore) CountTeams(context.Context) (int, error) {
	if f.countOverride > 0 {
		return f.countOverride, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.teams), nil
}

func (f *fakeStore) ListTeamsByUser(_ context.Context, userID string) ([]domain.Team, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var teams []domain.Team
	for _, m := range f.members {
		if m.UserID == userID && m.Confirmed {
			if team, ok := f.teams[m.TeamID]; ok {
				teams = append(teams, team)
			}
		}
	}
	return teams, nil
}

func (f *fakeStore) CreateMembership(_ context.Context, member *domain.Membership) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.members {
		if m.TeamID == member.TeamID && m.UserID == member.UserID {
			return repository.ErrConflict
		}
	}
	f.members[member.ID] = *member
	return nil
}

func (f *fakeStore) GetMembership(_ context.Context, teamID, userID string) (*domain.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.members {
		if m.TeamID == teamID && m.UserID == userID {
			found := m
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStore) GetMembershipByID(_ context.Context, id string) (*domain.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &m, nil
}

func (f *fakeStore) ListMembers(_ context.Context, teamID string) ([]domain.TeamMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var members []domain.TeamMember
	for _, m := range f.members {
		if m.TeamID == teamID {
			members = append(members, domain.TeamMember{
				UserID: m.UserID, Roles: m.Roles, Confirmed: m.Confirmed,
			})
		}
	}
	return members, nil
}

func (f *fakeStore) UpdateMembershipRoles(_ context.Context, id string, roles []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[id]
	if !ok {
		return repository.ErrNotFound
	}
	m.Roles = roles
	f.members[id] = m
	return nil
}

func (f *fakeStore) ActivateMembership(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[id]
	if !ok {
		return repository.ErrNotFound
	}
	m.Confirmed = true
	m.SecretHash = nil
	f.members[id] = m
	return nil
}

func (f *fakeStore) DeleteMembership(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.members[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.members, id)
	return nil
}

func (f *fakeStore) TransferOwnership(_ context.Context, teamID, fromUserID, toUserID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, m := range f.members {
		if m.TeamID != teamID {
			continue
		}
		switch m.UserID {
		case fromUserID:
			m.Roles = []string{domain.RoleAdmin}
		case toUserID:
			m.Roles = []string{domain.RoleOwner, domain.RoleAdmin}
		default:
			continue
		}
		f.members[id] = m
	}
	return nil
}

func (f *fakeStore) CreateUser(_ context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.ID] = *user
	return nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			found := u
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (f *fakeStore) UpdateUserName(_ context.Context, id, name string) error { return nil }

func (f *fakeStore) UpdatePassword(_ context.Context, id string, hash []byte) error { return nil }

func (f *fakeStore) UpsertProfile(_ context.Context, profile *domain.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[profile.UserID] = *profile
	return nil
}

func (f *fakeStore) GetProfile(_ context.Context, userID string) (*domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

type fakeImages struct {
	mu      sync.Mutex
	uploads []string
	deletes []string
}

func (f *fakeImages) Upload(_ context.Context, _, id string, _ io.Reader, _ int64, _ string) error {
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

func newTestService(store *fakeStore, images *fakeImages, feed *fakeFeed) Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return Service{
		teams:   store,
		members: store,
		users:   store,
		images:  images,
		views:   cache.NewMemoryCache(time.Minute),
		feed:    feed,
		logger:  logger,
		cfg: config.AppConfig{
			MaxTeams:     3,
			AvatarBucket: "avatars",
			AppURL:       "http://app.local",
		},
	}
}

func TestCreateAssignsOwnerAndAdminRoles(t *testing.T) {
	store := newFakeStore()
	feed := &fakeFeed{}
	svc := newTestService(store, &fakeImages{}, feed)

	created, err := svc.Create(context.Background(), "user-1", CreateInput{Name: "design"})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	roles := store.rolesOf(created.ID, "user-1")
	if len(roles) != 2 || roles[0] != domain.RoleOwner || roles[1] != domain.RoleAdmin {
		t.Fatalf("expected creator roles [owner admin], got %v", roles)
	}
	if len(feed.events) != 1 || feed.events[0].Type != domain.ChangeCreate {
		t.Fatalf("expected one create event, got %v", feed.events)
	}
}

func TestCreateEnforcesTeamCeiling(t *testing.T) {
	store := newFakeStore()
	store.countOverride = 3
	images := &fakeImages{}
	svc := newTestService(store, images, &fakeFeed{})

	_, err := svc.Create(context.Background(), "user-1", CreateInput{Name: "design"})
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(store.teams) != 0 {
		t.Fatalf("expected no team rows after ceiling denial")
	}
	if len(images.uploads) != 0 {
		t.Fatalf("expected no asset uploads after ceiling denial, got %v", images.uploads)
	}
}

func TestCreateRollsBackAvatarOnStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.createTeamErr = errors.New("insert failed")
	images := &fakeImages{}
	svc := newTestService(store, images, &fakeFeed{})

	_, err := svc.Create(context.Background(), "user-1", CreateInput{
		Name:  "design",
		Image: testImage(),
	})
	if apperr.KindOf(err) != apperr.KindInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
	if len(images.uploads) != 1 {
		t.Fatalf("expected one upload, got %d", len(images.uploads))
	}
	if len(images.deletes) != 1 || images.deletes[0] != images.uploads[0] {
		t.Fatalf("expected uploaded asset deleted on rollback, got %v", images.deletes)
	}
}

func TestGuardDeniesNonMemberAndPlainMemberAlike(t *testing.T) {
	store := newFakeStore()
	teamID := store.addTeam("design")
	store.addMember(teamID, "plain-member", []string{}, true)
	svc := newTestService(store, &fakeImages{}, &fakeFeed{})

	_, memberErr := svc.Update(context.Background(), "plain-member", teamID, UpdateInput{Name: "renamed"})
	_, strangerErr := svc.Update(context.Background(), "stranger", teamID, UpdateInput{Name: "renamed"})

	if apperr.KindOf(memberErr) != apperr.KindForbidden || apperr.KindOf(strangerErr) != apperr.KindForbidden {
		t.Fatalf("expected forbidden for both, got %v and %v", memberErr, strangerErr)
	}
	if apperr.MessageOf(memberErr) != apperr.MessageOf(strangerErr) {
		t.Fatalf("denial messages differ: %q vs %q", apperr.MessageOf(memberErr), apperr.MessageOf(strangerErr))
	}
}

func TestGuardDeniesPendingMember(t *testing.T) {
	store := newFakeStore()
	teamID := store.addTeam("design")
	store.addMember(teamID, "invited", []string{domain.RoleAdmin}, false)
	svc := newTestService(store, &fakeImages{}, &fakeFeed{})

	_, err := svc.Update(context.Background(), "invited", teamID, UpdateInput{Name: "renamed"})
	if apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected forbidden for unconfirmed membership, got %v", err)
	}
}

func TestOwnerCannotLeave(t *testing.T) {
	store := newFakeStore()
	teamID := store.addTeam("design")
	store.addMember(teamID, "owner-1", []string{domain.RoleOwner, domain.RoleAdmin}, true)
	svc := newTestService(store, &fakeImages{}, &fakeFeed{})

	_, err := svc.Leave(context.Background(), "owner-1", teamID)
	if apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if !strings.Contains(apperr.MessageOf(err), "transfer ownership") {
		t.Fatalf("expected transfer hint in message, got %q", apperr.MessageOf(err))
	}
}

func TestLeaveReturnsAnotherTeam(t *testing.T) {
	store := newFakeStore()
	teamA := store.addTeam("alpha")
	teamB := store.addTeam("beta")
	store.addMember(teamA, "user-1", []string{}, true)
	store.addMember(teamB, "user-1", []string{}, true)
	svc := newTestService(store, &fakeImages{}, &fakeFeed{})

	next, err := svc.Leave(context.Background(), "user-1", teamA)
	if err != nil {
		t.Fatalf("Leave returned error: %v", err)
	}
	if next != teamB {
		t.Fatalf("expected next team %s, got %s", teamB, next)
	}
	if _, err := store.GetMembership(context.Background(), teamA, "user-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected membership removed, got %v", err)
	}
}

func TestRemoveMemberProtectsOwnerAndAdmins(t *testing.T) {
	store := newFakeStore()
	teamID := store.addTeam("design")
	store.addMember(teamID, "owner-1", []string{domain.RoleOwner, domain.RoleAdmin}, true)
	store.addMember(teamID, "admin-1", []string{domain.RoleAdmin}, true)
	store.addMember(teamID, "admin-2", []string{domain.RoleAdmin}, true)
	store.addMember(teamID, "member-1", []string{}, true)
	svc := newTestService(store, &fakeImages{}, &fakeFeed{})
	ctx := context.Background()

	if err := svc.RemoveMember(ctx, "admin-1", teamID, "owner-1"); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected owner removal forbidden, got %v", err)
	}
	if err := svc.RemoveMember(ctx, "admin-1", teamID, "admin-2"); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected admin-on-admin removal forbidden, got %v", err)
	}
	if err := svc.RemoveMember(ctx, "owner-1", teamID, "admin-2"); err != nil {
		t.Fatalf("owner removing admin should succeed, got %v", err)
	}
	if err := svc.RemoveMember(ctx, "admin-1", teamID, "member-1"); err != nil {
		t.Fatalf("admin removing plain member should succeed, got %v", err)
	}
}

func TestPromoteAndDemoteAreOwnerOnly(t *testing.T) {
	store := newFakeStore()
	teamID := store.addTeam("design")
	store.addMember(teamID, "owner-1", []string{domain.RoleOwner, domain.RoleAdmin}, true)
	store.addMember(teamID, "admin-1", []string{domain.RoleAdmin}, true)
	store.addMember(teamID, "member-1", []string{}, true)
	svc := newTestService(store, &fakeImages{}, &fakeFeed{})
	ctx := context.Background()

	if err := svc.Promote(ctx, "admin-1", teamID, "member-1"); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected admin promote denied, got %v", err)
	}
	if err := svc.Promote(ctx, "owner-1", teamID, "member-1"); err != nil {
		t.Fatalf("owner promote should succeed, got %v", err)
	}
	roles := store.rolesOf(teamID, "member-1")
	if len(roles) != 1 || roles[0] != domain.RoleAdmin {
		t.Fatalf("expected roles [admin] after promote, got %v", roles)
	}

	if err := svc.Demote(ctx, "owner-1", teamID, "member-1"); err != nil {
		t.Fatalf("owner demote should succeed, got %v", err)
	}
	if roles := store.rolesOf(teamID, "member-1"); len(roles) != 0 {
		t.Fatalf("expected empty roles after demote, got %v", roles)
	}

	if err := svc.Demote(ctx, "owner-1", teamID, "owner-1"); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected owner self-demotion denied, got %v", err)
	}
}

func TestInviteProvisionsUnknownEmail(t *testing.T) {
	store := newFakeStore()
	teamID := store.addTeam("design")
	store.addMember(teamID, "owner-1", []string{domain.RoleOwner, domain.RoleAdmin}, true)
	svc := newTestService(store, &fakeImages{}, &fakeFeed{})

	invite, err := svc.Invite(context.Background(), "owner-1", teamID, "new.person@example.com")
	if err != nil {
		t.Fatalf("Invite returned error: %v", err)
	}

	user, err := store.GetUserByEmail(context.Background(), "new.person@example.com")
	if err != nil {
		t.Fatalf("expected provisioned account, got %v", err)
	}
	if _, err := store.GetProfile(context.Background(), user.ID); err != nil {
		t.Fatalf("expected provisioned profile, got %v", err)
	}
	member, err := store.GetMembershipByID(context.Background(), invite.MembershipID)
	if err != nil {
		t.Fatalf("expected pending membership, got %v", err)
	}
	if member.Confirmed {
		t.Fatalf("invited membership must start unconfirmed")
	}
	if !strings.Contains(invite.AcceptURL, invite.Secret) {
		t.Fatalf("accept URL should carry the secret")
	}
}

func TestInviteRejectsExistingMember(t *testing.T) {
	store := newFakeStore()
	teamID := store.addTeam("design")
	store.addMember(teamID, "owner-1", []string{domain.RoleOwner, domain.RoleAdmin}, true)
	store.users["user-2"] = domain.User{ID: "user-2", Email: "taken@example.com"}
	store.addMember(teamID, "user-2", []string{}, true)
	svc := newTestService(store, &fakeImages{}, &fakeFeed{})

	_, err := svc.Invite(context.Background(), "owner-1", teamID, "taken@example.com")
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestAcceptValidatesSecretAndActivates(t *testing.T) {
	store := newFakeStore()
	teamID := store.addTeam("design")
	secret := uuid.NewString()
	memberID := uuid.NewString()
	store.members[memberID] = domain.Membership{
		ID: memberID, TeamID: teamID, UserID: "user-2",
		SecretHash: crypto.HashToken(secret),
	}
	svc := newTestService(store, &fakeImages{}, &fakeFeed{})
	ctx := context.Background()

	if _, err := svc.Accept(ctx, teamID, memberID, "user-2", "wrong-secret"); apperr.KindOf(err) != apperr.KindUnauthenticated {
		t.Fatalf("expected bad secret rejected, got %v", err)
	}
	if _, err := svc.Accept(ctx, teamID, memberID, "someone-else", secret); apperr.KindOf(err) != apperr.KindUnauthenticated {
		t.Fatalf("expected user mismatch rejected, got %v", err)
	}

	member, err := svc.Accept(ctx, teamID, memberID, "user-2", secret)
	if err != nil {
		t.Fatalf("Accept returned error: %v", err)
	}
	if !member.Confirmed {
		t.Fatalf("expected confirmed membership")
	}

	// the secret is single use
	if _, err := svc.Accept(ctx, teamID, memberID, "user-2", secret); apperr.KindOf(err) != apperr.KindUnauthenticated {
		t.Fatalf("expected second accept rejected, got %v", err)
	}
}

func TestTransferOwnershipSwapsRoles(t *testing.T) {
	store := newFakeStore()
	teamID := store.addTeam("design")
	store.addMember(teamID, "owner-1", []string{domain.RoleOwner, domain.RoleAdmin}, true)
	store.addMember(teamID, "member-1", []string{}, true)
	store.addMember(teamID, "pending-1", []string{}, false)
	svc := newTestService(store, &fakeImages{}, &fakeFeed{})
	ctx := context.Background()

	if err := svc.TransferOwnership(ctx, "owner-1", teamID, "owner-1"); apperr.KindOf(err) != apperr.KindInvalid {
		t.Fatalf("expected self transfer rejected, got %v", err)
	}
	if err := svc.TransferOwnership(ctx, "owner-1", teamID, "pending-1"); apperr.KindOf(err) != apperr.KindInvalid {
		t.Fatalf("expected transfer to pending member rejected, got %v", err)
	}
	if err := svc.TransferOwnership(ctx, "member-1", teamID, "owner-1"); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected non-owner transfer denied, got %v", err)
	}

	if err := svc.TransferOwnership(ctx, "owner-1", teamID, "member-1"); err != nil {
		t.Fatalf("TransferOwnership returned error: %v", err)
	}
	newOwner := store.rolesOf(teamID, "member-1")
	if len(newOwner) != 2 || newOwner[0] != domain.RoleOwner {
		t.Fatalf("expected target to hold owner role, got %v", newOwner)
	}
	previous := store.rolesOf(teamID, "owner-1")
	if len(previous) != 1 || previous[0] != domain.RoleAdmin {
		t.Fatalf("expected previous owner demoted to admin, got %v", previous)
	}
}

func TestGetDeniesNonMemberAndCachesDetail(t *testing.T) {
	store := newFakeStore()
	teamID := store.addTeam("design")
	store.addMember(teamID, "member-1", []string{}, true)
	svc := newTestService(store, &fakeImages{}, &fakeFeed{})
	ctx := context.Background()

	if _, err := svc.Get(ctx, "stranger", teamID); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected forbidden for non-member, got %v", err)
	}

	first, err := svc.Get(ctx, "member-1", teamID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}

	// mutate behind the cache; the cached detail must still be served
	store.mu.Lock()
	team := store.teams[teamID]
	team.Name = "renamed-behind-cache"
	store.teams[teamID] = team
	store.mu.Unlock()

	second, err := svc.Get(ctx, "member-1", teamID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if second.Name != first.Name {
		t.Fatalf("expected cached detail, got %q", second.Name)
	}

	// an update through the service invalidates the cached view
	if _, err := svc.Update(ctx, "member-1", teamID, UpdateInput{Name: "fresh"}); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("plain member update should be denied, got %v", err)
	}
	svc.views.Invalidate(ctx, cache.TagTeam(teamID))
	third, err := svc.Get(ctx, "member-1", teamID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if third.Name != "renamed-behind-cache" {
		t.Fatalf("expected fresh detail after invalidation, got %q", third.Name)
	}
}

func testImage() *storage.ImageUpload {
	data := []byte("png-bytes")
	return &storage.ImageUpload{
		Filename:    "avatar.png",
		ContentType: "image/png",
		Size:        int64(len(data)),
		Data:        bytes.NewReader(data),
	}
}

func TestCreateValidatesNameBounds(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeImages{}, &fakeFeed{})
	ctx := context.Background()

	if _, err := svc.Create(ctx, "user-1", CreateInput{Name: "a"}); apperr.KindOf(err) != apperr.KindInvalid {
		t.Fatalf("expected short name rejected, got %v", err)
	}
	if _, err := svc.Create(ctx, "user-1", CreateInput{Name: strings.Repeat("x", 51)}); apperr.KindOf(err) != apperr.KindInvalid {
		t.Fatalf("expected long name rejected, got %v", err)
	}
	if _, err := svc.Create(ctx, "user-1", CreateInput{Name: "ok", About: strings.Repeat("x", 257)}); apperr.KindOf(err) != apperr.KindInvalid {
		t.Fatalf("expected long about rejected, got %v", err)
	}
}
