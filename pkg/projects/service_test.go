package projects

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/pitchdesk/pkg/apperr"
	"github.com/platinummonkey/pitchdesk/pkg/async"
	"github.com/platinummonkey/pitchdesk/pkg/domain"
	"github.com/platinummonkey/pitchdesk/pkg/notify"
	"github.com/platinummonkey/pitchdesk/pkg/policy"
	"github.com/platinummonkey/pitchdesk/pkg/statscache"
	"github.com/platinummonkey/pitchdesk/pkg/storage/postgres"
	"github.com/platinummonkey/pitchdesk/pkg/tenant"
)

type memObjects struct {
	mu      sync.Mutex
	objects map[string]string
	err     error
}

func (m *memObjects) Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = string(data)
	return "https://files.test/" + key, nil
}

func (m *memObjects) Delete(ctx context.Context, key string) error { return nil }

func (m *memObjects) HealthCheck(ctx context.Context) error { return nil }

type captureMailer struct {
	sent []notify.Email
}

func (c *captureMailer) Send(ctx context.Context, msg notify.Email) error {
	c.sent = append(c.sent, msg)
	return nil
}

type fixture struct {
	store   *postgres.Store
	svc     *Service
	objects *memObjects
	mailer  *captureMailer
	acme    *domain.Organization
	globex  *domain.Organization
	member  *domain.User
	peer    *domain.User
	admin   *domain.User
	expert  *domain.User
	outside *domain.User
	orphan  *domain.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := postgres.NewTestStore(t)
	logger, _ := test.NewNullLogger()

	f := &fixture{
		store:   s,
		objects: &memObjects{objects: map[string]string{}},
		mailer:  &captureMailer{},
	}
	f.svc = NewService(s, policy.NewEngine(), notify.NewDispatcher(s, logger), logger,
		WithObjectStore(f.objects),
		WithStatsCache(statscache.New(statscache.NewMemoryBackend(100), logger)),
		WithReceipts(f.mailer),
	)
	f.svc.background = async.Run
	f.acme = postgres.SeedOrganization(t, s, "acme")
	f.globex = postgres.SeedOrganization(t, s, "globex")
	f.member = postgres.SeedUser(t, s, "member@acme.test", domain.LevelMember, f.acme)
	f.peer = postgres.SeedUser(t, s, "peer@acme.test", domain.LevelMember, f.acme)
	f.admin = postgres.SeedUser(t, s, "admin@acme.test", domain.LevelAdmin, f.acme)
	f.expert = postgres.SeedUser(t, s, "expert@acme.test", domain.LevelExpert, f.acme)
	f.outside = postgres.SeedUser(t, s, "expert@globex.test", domain.LevelExpert, f.globex)
	f.orphan = postgres.SeedUser(t, s, "orphan@nowhere.test", domain.LevelAdmin, nil)
	return f
}

func actorOf(u *domain.User) policy.Actor {
	return policy.Actor{UserID: u.ID, Level: u.Level, Tenant: tenant.FromUser(u)}
}

func recipients(t *testing.T, f *fixture, u *domain.User) int {
	t.Helper()
	list, err := f.store.ListNotifications(context.Background(), u.ID, false, 100)
	require.NoError(t, err)
	return len(list)
}

func validInput() SubmitInput {
	return SubmitInput{Title: "Solar roof", Description: "Panels on the gym", Contact: "member@acme.test"}
}

func TestSubmit_NotifiesOrganizationReviewers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Submit(ctx, actorOf(f.member), validInput())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, p.Status)
	assert.Equal(t, f.member.ID, p.UserID)
	assert.Empty(t, p.FileURL)

	assert.Equal(t, 1, recipients(t, f, f.admin))
	assert.Equal(t, 1, recipients(t, f, f.expert))
	assert.Equal(t, 0, recipients(t, f, f.member))
	assert.Equal(t, 0, recipients(t, f, f.peer))
	assert.Equal(t, 0, recipients(t, f, f.outside))

	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "member@acme.test", f.mailer.sent[0].To)
}

func TestSubmit_WithFile(t *testing.T) {
	f := newFixture(t)
	in := validInput()
	in.File = &Upload{Filename: "deck.pdf", ContentType: "application/pdf", Body: strings.NewReader("pdf")}

	p, err := f.svc.Submit(context.Background(), actorOf(f.member), in)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p.FileURL, "https://files.test/projects/"))
	assert.Len(t, f.objects.objects, 1)

	stored, err := f.store.GetProject(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.FileURL, stored.FileURL)
}

func TestSubmit_UploadFailureStillSubmits(t *testing.T) {
	f := newFixture(t)
	f.objects.err = errors.New("bucket unreachable")
	in := validInput()
	in.File = &Upload{Filename: "deck.pdf", Body: strings.NewReader("pdf")}

	p, err := f.svc.Submit(context.Background(), actorOf(f.member), in)
	require.NoError(t, err)
	assert.Empty(t, p.FileURL)
	assert.NotZero(t, p.ID)
}

func TestSubmit_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, actorOf(f.orphan), validInput())
	assert.Equal(t, apperr.KindNoTenant, apperr.KindOf(err))

	in := validInput()
	in.Title = "   "
	_, err = f.svc.Submit(ctx, actorOf(f.member), in)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	in = validInput()
	in.Contact = strings.Repeat("c", MaxContactLength+1)
	_, err = f.svc.Submit(ctx, actorOf(f.member), in)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestGet_Scoping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := postgres.SeedProject(t, f.store, f.member, "Bike racks")

	got, err := f.svc.Get(ctx, actorOf(f.member), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bike racks", got.Title)

	_, err = f.svc.Get(ctx, actorOf(f.expert), p.ID)
	require.NoError(t, err)

	// another member of the same organization
	_, err = f.svc.Get(ctx, actorOf(f.peer), p.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	// a reviewer from another organization
	_, err = f.svc.Get(ctx, actorOf(f.outside), p.ID)
	assert.Equal(t, apperr.KindCrossTenant, apperr.KindOf(err))

	_, err = f.svc.Get(ctx, actorOf(f.orphan), p.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = f.svc.Get(ctx, actorOf(f.admin), p.ID+1000)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestList_Scoping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	postgres.SeedProject(t, f.store, f.member, "Mine")
	postgres.SeedProject(t, f.store, f.peer, "Peer's")
	postgres.SeedProject(t, f.store, f.outside, "Elsewhere")

	list, err := f.svc.List(ctx, actorOf(f.member), ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Mine", list[0].Title)

	list, err = f.svc.List(ctx, actorOf(f.admin), ListOptions{})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = f.svc.List(ctx, actorOf(f.orphan), ListOptions{})
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	list, err = f.svc.List(ctx, actorOf(f.admin), ListOptions{Status: "accepted"})
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = f.svc.List(ctx, actorOf(f.admin), ListOptions{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.svc.List(ctx, actorOf(f.admin), ListOptions{Status: "ARCHIVED"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestComments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := postgres.SeedProject(t, f.store, f.member, "Library hours")

	c, err := f.svc.AddComment(ctx, actorOf(f.expert), p.ID, "  looks promising ")
	require.NoError(t, err)
	assert.Equal(t, "looks promising", c.Content)
	assert.Equal(t, domain.LevelExpert, c.AuthorRole)

	_, err = f.svc.AddComment(ctx, actorOf(f.member), p.ID, "self praise")
	assert.Equal(t, apperr.KindInsufficientRole, apperr.KindOf(err))

	_, err = f.svc.AddComment(ctx, actorOf(f.outside), p.ID, "hello")
	assert.Equal(t, apperr.KindCrossTenant, apperr.KindOf(err))

	_, err = f.svc.AddComment(ctx, actorOf(f.admin), p.ID, "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	list, err := f.svc.Comments(ctx, actorOf(f.member), p.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = f.svc.Comments(ctx, actorOf(f.peer), p.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestDashboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	postgres.SeedProject(t, f.store, f.member, "One")
	postgres.SeedProject(t, f.store, f.peer, "Two")
	postgres.SeedProject(t, f.store, f.outside, "Three")

	stats, err := f.svc.Dashboard(ctx, actorOf(f.admin))
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectStats{Total: 2, Pending: 2}, stats)

	stats, err = f.svc.Dashboard(ctx, actorOf(f.member))
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectStats{Total: 1, Pending: 1}, stats)

	stats, err = f.svc.Dashboard(ctx, actorOf(f.orphan))
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectStats{}, stats)
}

func TestDashboard_ServesCachedAggregate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	postgres.SeedProject(t, f.store, f.member, "One")

	stats, err := f.svc.Dashboard(ctx, actorOf(f.admin))
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Total)

	postgres.SeedProject(t, f.store, f.peer, "Two")

	stats, err = f.svc.Dashboard(ctx, actorOf(f.admin))
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Total, "aggregate is stale until the entry ages out")

	stats, err = f.svc.Dashboard(ctx, actorOf(f.expert))
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total, "entries are keyed per actor")
}
