// Package pipeline composes the CRM client, notification dispatcher,
// journal and alert publisher into the per-submission orchestration,
// owning the failure-isolation policy.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/brastel-digital/leadgate/internal/alerts"
	"github.com/brastel-digital/leadgate/internal/crm"
	"github.com/brastel-digital/leadgate/internal/journal"
	"github.com/brastel-digital/leadgate/internal/lead"
	"github.com/brastel-digital/leadgate/internal/metrics"
	"github.com/brastel-digital/leadgate/internal/notify"
)

// Kind tags a pipeline failure.
type Kind string

const (
	KindCrmUnavailable     Kind = "crm_unavailable"
	KindDealCreationFailed Kind = "deal_creation_failed"
	KindNotificationFailed Kind = "notification_failed"
)

// Outcome is the unified result of one submission run. Success reflects the
// caller-facing contract: true once the contact write has succeeded, even
// when later steps degraded.
type Outcome struct {
	SubmissionID string
	Success      bool
	ContactID    string
	ContactIsNew bool
	DealID       string
	LeadNotified bool
	FailureKind  Kind   // set only on fatal failure
	Degradations []Kind // non-fatal failures, logged and alerted
}

// Config holds the values the orchestrator consumes but does not compute.
type Config struct {
	CountryCode    string
	DealPipeline   string
	DealStage      string
	LeadTemplate   string
	SalesTemplate  string
	SalesRecipient string
	CrmTimeout     time.Duration
}

// Orchestrator runs the submission state machine. Submissions are
// independent; many may run concurrently, each in its own call.
type Orchestrator struct {
	crm        crm.Client
	dispatcher notify.Dispatcher
	journal    journal.Provider
	alerts     alerts.Publisher
	idGen      lead.IDGenerator
	clock      lead.Clock
	cfg        Config
	logger     *zap.Logger
}

// New constructs an Orchestrator.
func New(
	crmClient crm.Client,
	dispatcher notify.Dispatcher,
	journalProvider journal.Provider,
	alertPublisher alerts.Publisher,
	idGen lead.IDGenerator,
	clock lead.Clock,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CountryCode == "" {
		cfg.CountryCode = "55"
	}
	if cfg.CrmTimeout <= 0 {
		cfg.CrmTimeout = 15 * time.Second
	}
	return &Orchestrator{
		crm:        crmClient,
		dispatcher: dispatcher,
		journal:    journalProvider,
		alerts:     alertPublisher,
		idGen:      idGen,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
}

// Process runs one validated submission through contact upsert, deal
// creation and notification. Each step's result is tagged fatal or
// non-fatal: only a contact upsert failure aborts the run.
func (o *Orchestrator) Process(ctx context.Context, sub lead.Submission, clientKey string) Outcome {
	receivedAt := o.clock.Now()
	out := Outcome{}

	submissionID, err := o.idGen.NewID()
	if err != nil {
		o.logger.Warn("submission id generation failed", zap.Error(err))
	}
	out.SubmissionID = submissionID
	log := o.logger.With(zap.String("submission_id", submissionID), zap.String("email", sub.Email))

	phone := lead.NormalizePhone(sub.Phone, o.cfg.CountryCode)

	// Once issued, CRM writes run to completion even if the submitter
	// disconnects, so a partial contact/deal pair is never orphaned by a
	// dropped connection. Only the deadline survives the detach.
	crmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.CrmTimeout)
	defer cancel()

	upsert, err := o.crm.UpsertContact(crmCtx, contactFromSubmission(sub, phone))
	if err != nil {
		log.Error("contact upsert failed", zap.Error(err))
		metrics.ObserveCrmFailure("upsert_contact", crmKind(err))
		out.FailureKind = KindCrmUnavailable
		o.record(ctx, sub, clientKey, receivedAt, out)
		metrics.ObserveSubmission(string(KindCrmUnavailable))
		return out
	}
	out.Success = true
	out.ContactID = upsert.ID
	out.ContactIsNew = upsert.IsNew
	log.Info("contact upserted", zap.String("contact_id", upsert.ID), zap.Bool("is_new", upsert.IsNew))

	dealID, err := o.crm.CreateDeal(crmCtx, crm.DealProperties{
		Name:     "Lead: " + sub.FullName(),
		Pipeline: o.cfg.DealPipeline,
		Stage:    o.cfg.DealStage,
	}, upsert.ID)
	if err != nil {
		// The contact is saved, which is the primary business value. The
		// submitter still sees success; operations gets the alert.
		log.Warn("deal creation failed", zap.String("deal_id", dealID), zap.Error(err))
		metrics.ObserveCrmFailure("create_deal", crmKind(err))
		out.Degradations = append(out.Degradations, KindDealCreationFailed)
		o.alert(ctx, alerts.Event{
			Kind:         string(KindDealCreationFailed),
			SubmissionID: submissionID,
			Email:        sub.Email,
			Detail:       err.Error(),
			At:           receivedAt,
		})
	} else {
		out.DealID = dealID
		log.Info("deal created", zap.String("deal_id", dealID))
	}

	out.LeadNotified = o.notifyLead(ctx, log, submissionID, sub, phone)
	o.notifySales(ctx, log, submissionID, sub, phone)

	o.record(ctx, sub, clientKey, receivedAt, out)
	if len(out.Degradations) > 0 {
		metrics.ObserveSubmission("degraded")
	} else {
		metrics.ObserveSubmission("completed")
	}
	return out
}

func (o *Orchestrator) notifyLead(ctx context.Context, log *zap.Logger, submissionID string, sub lead.Submission, phone lead.PhoneNumber) bool {
	if o.cfg.LeadTemplate == "" {
		return false
	}
	receipt, err := o.dispatcher.SendTemplate(ctx, phone.Wire, o.cfg.LeadTemplate, []string{sub.FirstName})
	metrics.ObserveNotification(o.cfg.LeadTemplate, err == nil && receipt.Success)
	if err != nil || !receipt.Success {
		log.Warn("lead notification failed", zap.String("recipient", phone.Wire), zap.Error(err))
		o.alert(ctx, alerts.Event{
			Kind:         string(KindNotificationFailed),
			SubmissionID: submissionID,
			Email:        sub.Email,
			Detail:       fmt.Sprintf("template %s to lead: %v", o.cfg.LeadTemplate, err),
			At:           o.clock.Now(),
		})
		return false
	}
	log.Info("lead notified", zap.String("message_id", receipt.MessageID))
	return true
}

func (o *Orchestrator) notifySales(ctx context.Context, log *zap.Logger, submissionID string, sub lead.Submission, phone lead.PhoneNumber) {
	if o.cfg.SalesTemplate == "" || o.cfg.SalesRecipient == "" {
		return
	}
	params := []string{sub.FullName(), phone.E164, sub.Email}
	receipt, err := o.dispatcher.SendTemplate(ctx, o.cfg.SalesRecipient, o.cfg.SalesTemplate, params)
	metrics.ObserveNotification(o.cfg.SalesTemplate, err == nil && receipt.Success)
	if err != nil || !receipt.Success {
		log.Warn("sales notification failed", zap.Error(err))
		o.alert(ctx, alerts.Event{
			Kind:         string(KindNotificationFailed),
			SubmissionID: submissionID,
			Email:        sub.Email,
			Detail:       fmt.Sprintf("template %s to sales: %v", o.cfg.SalesTemplate, err),
			At:           o.clock.Now(),
		})
	}
}

func (o *Orchestrator) alert(ctx context.Context, e alerts.Event) {
	if err := o.alerts.Publish(ctx, e); err != nil {
		o.logger.Warn("alert publish failed", zap.String("kind", e.Kind), zap.Error(err))
	}
}

func (o *Orchestrator) record(ctx context.Context, sub lead.Submission, clientKey string, receivedAt time.Time, out Outcome) {
	outcome := "completed"
	failureKind := ""
	if out.FailureKind != "" {
		outcome = "failed"
		failureKind = string(out.FailureKind)
	} else if len(out.Degradations) > 0 {
		outcome = "degraded"
		failureKind = string(out.Degradations[0])
	}
	entry := journal.Entry{
		SubmissionID: out.SubmissionID,
		Email:        sub.Email,
		ClientKey:    clientKey,
		Outcome:      outcome,
		ContactID:    out.ContactID,
		DealID:       out.DealID,
		FailureKind:  failureKind,
		ReceivedAt:   receivedAt,
	}
	if err := o.journal.Record(ctx, entry); err != nil {
		o.logger.Warn("journal record failed", zap.String("submission_id", out.SubmissionID), zap.Error(err))
	}
}

func contactFromSubmission(sub lead.Submission, phone lead.PhoneNumber) crm.Contact {
	return crm.Contact{
		Email:         sub.Email,
		FirstName:     sub.FirstName,
		LastName:      sub.LastName,
		Phone:         phone.E164,
		Company:       sub.Company,
		Role:          sub.Role,
		PreferredTime: sub.PreferredTime,
		UTMSource:     sub.UTMSource,
		UTMMedium:     sub.UTMMedium,
		UTMCampaign:   sub.UTMCampaign,
		UTMContent:    sub.UTMContent,
		UTMTerm:       sub.UTMTerm,
	}
}

func crmKind(err error) string {
	var cerr *crm.Error
	if errors.As(err, &cerr) {
		return string(cerr.Kind)
	}
	return "unknown"
}
