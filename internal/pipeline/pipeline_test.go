package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brastel-digital/leadgate/internal/alerts"
	"github.com/brastel-digital/leadgate/internal/crm"
	"github.com/brastel-digital/leadgate/internal/journal"
	"github.com/brastel-digital/leadgate/internal/lead"
	"github.com/brastel-digital/leadgate/internal/metrics"
	"github.com/brastel-digital/leadgate/internal/notify"
)

func TestMain(m *testing.M) {
	metrics.Init()
	m.Run()
}

type fakeCRM struct {
	mu           sync.Mutex
	upsertErr    error
	dealErr      error
	dealID       string
	upsertCalls  int
	dealCalls    int
	lastContact  crm.Contact
	lastDeal     crm.DealProperties
	lastDealFor  string
	existingByID bool
}

func (f *fakeCRM) UpsertContact(_ context.Context, c crm.Contact) (crm.UpsertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCalls++
	f.lastContact = c
	if f.upsertErr != nil {
		return crm.UpsertResult{}, f.upsertErr
	}
	return crm.UpsertResult{ID: "101", IsNew: !f.existingByID}, nil
}

func (f *fakeCRM) CreateDeal(_ context.Context, props crm.DealProperties, contactID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dealCalls++
	f.lastDeal = props
	f.lastDealFor = contactID
	if f.dealErr != nil {
		return f.dealID, f.dealErr
	}
	return "deal-1", nil
}

func (f *fakeCRM) GetContactByEmail(_ context.Context, _ string) (crm.Contact, error) {
	return crm.Contact{}, crm.ErrContactNotFound
}

type fakeDispatcher struct {
	mu    sync.Mutex
	err   error
	sends []string // recipient:template
}

func (f *fakeDispatcher) SendTemplate(_ context.Context, recipient, template string, _ []string) (notify.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, recipient+":"+template)
	if f.err != nil {
		return notify.Receipt{}, f.err
	}
	return notify.Receipt{Success: true, MessageID: "wamid.1"}, nil
}

func (f *fakeDispatcher) SendText(_ context.Context, _, _ string) (notify.Receipt, error) {
	return notify.Receipt{Success: true}, nil
}

type fakeJournal struct {
	mu      sync.Mutex
	err     error
	entries []journal.Entry
}

func (f *fakeJournal) Record(_ context.Context, e journal.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return f.err
}

func (f *fakeJournal) Close() {}

type fakeAlerts struct {
	mu     sync.Mutex
	events []alerts.Event
}

func (f *fakeAlerts) Publish(_ context.Context, e alerts.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func (f *fakeAlerts) Close() error { return nil }

type fakeIDGen struct {
	n int
}

func (g *fakeIDGen) NewID() (string, error) {
	g.n++
	return fmt.Sprintf("sub-%d", g.n), nil
}

type fakeClock struct {
	now time.Time
}

func (c fakeClock) Now() time.Time { return c.now }

type deps struct {
	crm        *fakeCRM
	dispatcher *fakeDispatcher
	journal    *fakeJournal
	alerts     *fakeAlerts
}

func newTestOrchestrator(t *testing.T, cfg Config) (*Orchestrator, *deps) {
	t.Helper()
	d := &deps{
		crm:        &fakeCRM{},
		dispatcher: &fakeDispatcher{},
		journal:    &fakeJournal{},
		alerts:     &fakeAlerts{},
	}
	if cfg.CountryCode == "" {
		cfg.CountryCode = "55"
	}
	if cfg.LeadTemplate == "" {
		cfg.LeadTemplate = "lead_welcome"
	}
	o := New(
		d.crm, d.dispatcher, d.journal, d.alerts,
		&fakeIDGen{}, fakeClock{now: time.Unix(1700000000, 0).UTC()},
		cfg, zap.NewNop(),
	)
	return o, d
}

func anaSubmission() lead.Submission {
	return lead.Submission{
		FirstName: "Ana",
		LastName:  "Souza",
		Email:     "ana@x.com",
		Phone:     "11987654321",
		Consent:   true,
	}
}

func TestProcess_FullSuccess(t *testing.T) {
	t.Parallel()

	o, d := newTestOrchestrator(t, Config{DealPipeline: "default", DealStage: "appointmentscheduled"})
	out := o.Process(context.Background(), anaSubmission(), "1.2.3.4")

	require.True(t, out.Success)
	require.Equal(t, "101", out.ContactID)
	require.True(t, out.ContactIsNew)
	require.Equal(t, "deal-1", out.DealID)
	require.True(t, out.LeadNotified)
	require.Empty(t, out.FailureKind)
	require.Empty(t, out.Degradations)

	require.Equal(t, "+5511987654321", d.crm.lastContact.Phone)
	require.Equal(t, "Lead: Ana Souza", d.crm.lastDeal.Name)
	require.Equal(t, "default", d.crm.lastDeal.Pipeline)
	require.Equal(t, "101", d.crm.lastDealFor)
	require.Equal(t, []string{"5511987654321:lead_welcome"}, d.dispatcher.sends)

	require.Len(t, d.journal.entries, 1)
	require.Equal(t, "completed", d.journal.entries[0].Outcome)
	require.Equal(t, "1.2.3.4", d.journal.entries[0].ClientKey)
}

func TestProcess_CrmFailureIsFatal(t *testing.T) {
	t.Parallel()

	o, d := newTestOrchestrator(t, Config{})
	d.crm.upsertErr = crm.NewError(crm.KindTransport, "search contact", errors.New("connection refused"))

	out := o.Process(context.Background(), anaSubmission(), "1.2.3.4")

	require.False(t, out.Success)
	require.Equal(t, KindCrmUnavailable, out.FailureKind)
	require.Empty(t, out.ContactID)
	require.Zero(t, d.crm.dealCalls)
	require.Empty(t, d.dispatcher.sends)

	require.Len(t, d.journal.entries, 1)
	require.Equal(t, "failed", d.journal.entries[0].Outcome)
	require.Equal(t, "crm_unavailable", d.journal.entries[0].FailureKind)
}

func TestProcess_DealFailureStillSucceeds(t *testing.T) {
	t.Parallel()

	o, d := newTestOrchestrator(t, Config{})
	d.crm.dealErr = crm.NewError(crm.KindTransport, "create deal", errors.New("status 500"))

	out := o.Process(context.Background(), anaSubmission(), "1.2.3.4")

	require.True(t, out.Success)
	require.Equal(t, "101", out.ContactID)
	require.Empty(t, out.DealID)
	require.Contains(t, out.Degradations, KindDealCreationFailed)

	require.Len(t, d.alerts.events, 1)
	require.Equal(t, "deal_creation_failed", d.alerts.events[0].Kind)
	require.Equal(t, "ana@x.com", d.alerts.events[0].Email)

	require.Equal(t, "degraded", d.journal.entries[0].Outcome)
}

func TestProcess_UnassociatedDealIsDegraded(t *testing.T) {
	t.Parallel()

	o, d := newTestOrchestrator(t, Config{})
	d.crm.dealErr = fmt.Errorf("%w: association status 500", crm.ErrDealUnassociated)
	d.crm.dealID = "deal-1"

	out := o.Process(context.Background(), anaSubmission(), "1.2.3.4")

	require.True(t, out.Success)
	require.Empty(t, out.DealID)
	require.Contains(t, out.Degradations, KindDealCreationFailed)
	require.Len(t, d.alerts.events, 1)
}

func TestProcess_NotificationFailureNeverFatal(t *testing.T) {
	t.Parallel()

	o, d := newTestOrchestrator(t, Config{})
	d.dispatcher.err = errors.New("provider down")

	out := o.Process(context.Background(), anaSubmission(), "1.2.3.4")

	require.True(t, out.Success)
	require.Equal(t, "101", out.ContactID)
	require.Equal(t, "deal-1", out.DealID)
	require.False(t, out.LeadNotified)
	require.Len(t, d.alerts.events, 1)
	require.Equal(t, "notification_failed", d.alerts.events[0].Kind)
}

func TestProcess_NotifiesSalesRep(t *testing.T) {
	t.Parallel()

	o, d := newTestOrchestrator(t, Config{
		SalesTemplate:  "new_lead_alert",
		SalesRecipient: "5511900000000",
	})

	out := o.Process(context.Background(), anaSubmission(), "1.2.3.4")
	require.True(t, out.Success)
	require.Equal(t, []string{
		"5511987654321:lead_welcome",
		"5511900000000:new_lead_alert",
	}, d.dispatcher.sends)
}

func TestProcess_JournalFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	o, d := newTestOrchestrator(t, Config{})
	d.journal.err = errors.New("db down")

	out := o.Process(context.Background(), anaSubmission(), "1.2.3.4")
	require.True(t, out.Success)
}

func TestProcess_ExistingContactReportedNotNew(t *testing.T) {
	t.Parallel()

	o, d := newTestOrchestrator(t, Config{})
	d.crm.existingByID = true

	out := o.Process(context.Background(), anaSubmission(), "1.2.3.4")
	require.True(t, out.Success)
	require.False(t, out.ContactIsNew)
}
