package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"buildinpublic-hub/errs"
	"buildinpublic-hub/logger"
	"buildinpublic-hub/metrics"
	"buildinpublic-hub/models"
	"buildinpublic-hub/repository"

	"github.com/go-playground/validator/v10"
	"github.com/gosimple/slug"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// SparSettings are the tunables of the spar lifecycle.
type SparSettings struct {
	// GracePeriod separates acceptance from the scheduled start.
	GracePeriod     time.Duration
	PaymentsEnabled bool
	EntryFeeCents   int
}

// SparDeps wires a SparService. Archiver and Admins are optional.
type SparDeps struct {
	Spars    repository.SparRepository
	Users    repository.UserRepository
	Commits  repository.CommitRepository
	Source   CommitSource
	Archiver ResultArchiver
	Admins   AdminPolicy
	Clock    clockwork.Clock
	Log      logrus.FieldLogger
	Metrics  *metrics.Metrics
	Settings SparSettings
}

// SparService owns the spar state machine: pending → accepted → active → completed,
// with cancellation allowed from pending or accepted.
type SparService struct {
	spars    repository.SparRepository
	users    repository.UserRepository
	commits  repository.CommitRepository
	admins   AdminPolicy
	clock    clockwork.Clock
	log      logrus.FieldLogger
	metrics  *metrics.Metrics
	settings SparSettings
	validate *validator.Validate

	syncer   *CommitSyncer
	resolver *Resolver
}

func NewSparService(d SparDeps) *SparService {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Log == nil {
		d.Log = logrus.StandardLogger()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.Noop()
	}
	if d.Admins == nil {
		d.Admins = denyAll{}
	}
	return &SparService{
		spars:    d.Spars,
		users:    d.Users,
		commits:  d.Commits,
		admins:   d.Admins,
		clock:    d.Clock,
		log:      logger.Component(d.Log, "spar_lifecycle"),
		metrics:  d.Metrics,
		settings: d.Settings,
		validate: validator.New(),
		syncer:   NewCommitSyncer(d.Spars, d.Commits, d.Source, d.Log, d.Metrics),
		resolver: NewResolver(d.Spars, d.Users, d.Commits, d.Archiver, d.Clock, d.Log, d.Metrics),
	}
}

// CreateSparInput is the body of a create request.
type CreateSparInput struct {
	Title          string  `json:"title" validate:"required,max=100"`
	Description    *string `json:"description,omitempty" validate:"omitempty,max=2000"`
	DurationHours  int     `json:"duration_hours" validate:"oneof=24 48 72"`
	OpponentHandle *string `json:"opponent_github_username,omitempty" validate:"omitempty,max=39"`
}

func (in *CreateSparInput) normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = trimmedOrNil(in.Description)
	in.OpponentHandle = trimmedOrNil(in.OpponentHandle)
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func (s *SparService) validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Field() {
		case "Title":
			msgs = append(msgs, "title is required (max 100 chars)")
		case "DurationHours":
			msgs = append(msgs, "duration must be 24, 48, or 72 hours")
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", errs.ErrValidation, strings.Join(msgs, "; "))
}

func requireActor(actor repository.UserProfile) error {
	if strings.TrimSpace(actor.Handle) == "" {
		return fmt.Errorf("%w: missing user identity", errs.ErrUnauthorized)
	}
	return nil
}

// Create opens a new pending spar for actor.
func (s *SparService) Create(ctx context.Context, actor repository.UserProfile, in CreateSparInput) (*models.Spar, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	in.normalize()
	if err := s.validate.Struct(in); err != nil {
		return nil, s.validationError(err)
	}
	if in.OpponentHandle != nil && models.SameHandle(*in.OpponentHandle, actor.Handle) {
		return nil, fmt.Errorf("%w: you can't challenge yourself", errs.ErrValidation)
	}

	creator, err := s.users.EnsureUser(ctx, actor)
	if err != nil {
		return nil, fmt.Errorf("resolve creator: %w", err)
	}

	sparSlug := slug.Make(in.Title)
	if sparSlug == "" {
		sparSlug = "spar"
	}

	spar := &models.Spar{
		CreatorID:      creator.ID,
		OpponentHandle: in.OpponentHandle,
		Title:          in.Title,
		Description:    in.Description,
		Slug:           sparSlug,
		DurationHours:  in.DurationHours,
		EntryFeeCents:  s.settings.EntryFeeCents,
		Status:         models.SparStatusPending,
		CreatorPaid:    !s.settings.PaymentsEnabled,
	}
	if err := s.spars.Create(ctx, spar); err != nil {
		return nil, err
	}
	spar.Creator = creator

	s.metrics.SparTransitions.WithLabelValues(string(models.SparStatusPending)).Inc()
	s.log.WithFields(logrus.Fields{"spar_id": spar.ID, "creator": creator.GitHubUsername}).Info("spar created")
	return spar, nil
}

// Accept seats actor as the opponent of a pending spar and schedules its start.
func (s *SparService) Accept(ctx context.Context, id string, actor repository.UserProfile) (*models.Spar, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	spar, err := s.spars.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if spar.Status != models.SparStatusPending {
		return nil, fmt.Errorf("%w: spar is not open for acceptance", errs.ErrInvalidState)
	}
	if spar.Creator != nil && models.SameHandle(spar.Creator.GitHubUsername, actor.Handle) {
		return nil, fmt.Errorf("%w: you can't accept your own spar", errs.ErrForbidden)
	}
	if spar.OpponentHandle != nil && !models.SameHandle(*spar.OpponentHandle, actor.Handle) {
		return nil, fmt.Errorf("%w: this spar is not for you", errs.ErrOpponentMismatch)
	}

	opponent, err := s.users.EnsureUser(ctx, actor)
	if err != nil {
		return nil, fmt.Errorf("resolve opponent: %w", err)
	}
	if opponent.ID == spar.CreatorID {
		return nil, fmt.Errorf("%w: you can't accept your own spar", errs.ErrForbidden)
	}

	scheduledStart := s.clock.Now().UTC().Add(s.settings.GracePeriod)
	actualEnd := scheduledStart.Add(spar.Duration())

	ok, err := s.spars.Transition(ctx, spar.ID, models.SparStatusPending, models.SparStatusAccepted, map[string]any{
		"opponent_id":     opponent.ID,
		"opponent_handle": opponent.GitHubUsername,
		"opponent_paid":   !s.settings.PaymentsEnabled,
		"scheduled_start": scheduledStart,
		"actual_end":      actualEnd,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: spar is not open for acceptance", errs.ErrInvalidState)
	}

	s.metrics.SparTransitions.WithLabelValues(string(models.SparStatusAccepted)).Inc()
	s.log.WithFields(logrus.Fields{
		"spar_id":         spar.ID,
		"opponent":        opponent.GitHubUsername,
		"scheduled_start": scheduledStart.Format(time.RFC3339),
	}).Info("spar accepted")
	return s.spars.Get(ctx, spar.ID)
}

// Start activates an accepted spar on request of one of its participants,
// without waiting for the scheduled start.
func (s *SparService) Start(ctx context.Context, id string, actor repository.UserProfile) (*models.Spar, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	spar, err := s.spars.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if spar.Status != models.SparStatusAccepted {
		return nil, fmt.Errorf("%w: spar is not ready to start", errs.ErrInvalidState)
	}
	if !isParticipantHandle(spar, actor.Handle) && !s.admins.IsAdmin(actor.Handle) {
		return nil, fmt.Errorf("%w: only participants can start a spar", errs.ErrForbidden)
	}
	if err := s.activate(ctx, spar); err != nil {
		return nil, err
	}
	return s.spars.Get(ctx, spar.ID)
}

// activate moves an accepted spar to active with a window starting now.
func (s *SparService) activate(ctx context.Context, spar *models.Spar) error {
	now := s.clock.Now().UTC()
	end := now.Add(spar.Duration())
	ok, err := s.spars.Transition(ctx, spar.ID, models.SparStatusAccepted, models.SparStatusActive, map[string]any{
		"actual_start": now,
		"actual_end":   end,
	})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: spar is not ready to start", errs.ErrInvalidState)
	}
	spar.Status = models.SparStatusActive
	spar.ActualStart = &now
	spar.ActualEnd = &end

	s.metrics.SparTransitions.WithLabelValues(string(models.SparStatusActive)).Inc()
	s.log.WithFields(logrus.Fields{"spar_id": spar.ID, "actual_end": end.Format(time.RFC3339)}).Info("spar started")
	return nil
}

// Cancel withdraws a spar that has not started yet. Only the creator or an admin may cancel.
func (s *SparService) Cancel(ctx context.Context, id string, actor repository.UserProfile) (*models.Spar, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	spar, err := s.spars.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !spar.Status.CanTransitionTo(models.SparStatusCancelled) {
		return nil, fmt.Errorf("%w: spar can no longer be cancelled", errs.ErrInvalidState)
	}
	isCreator := spar.Creator != nil && models.SameHandle(spar.Creator.GitHubUsername, actor.Handle)
	if !isCreator && !s.admins.IsAdmin(actor.Handle) {
		return nil, fmt.Errorf("%w: only the creator can cancel a spar", errs.ErrForbidden)
	}

	ok, err := s.spars.Transition(ctx, spar.ID, spar.Status, models.SparStatusCancelled, nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: spar changed while cancelling", errs.ErrInvalidState)
	}

	s.metrics.SparTransitions.WithLabelValues(string(models.SparStatusCancelled)).Inc()
	s.log.WithFields(logrus.Fields{"spar_id": spar.ID, "by": actor.Handle}).Info("spar cancelled")
	return s.spars.Get(ctx, spar.ID)
}

// ForceComplete lets an operator close an active spar before its window ends.
func (s *SparService) ForceComplete(ctx context.Context, id string, actor repository.UserProfile) (*models.Spar, error) {
	if !s.admins.IsAdmin(actor.Handle) {
		return nil, fmt.Errorf("%w: admin only", errs.ErrForbidden)
	}
	spar, err := s.spars.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.resolver.Complete(ctx, spar, true)
}

// RecordPayment flips the paid flag for role after a successful charge.
func (s *SparService) RecordPayment(ctx context.Context, id string, role models.SparRole, paymentIntentID string) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", errs.ErrValidation, role)
	}
	ok, err := s.spars.MarkPaid(ctx, id, role, paymentIntentID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("spar %s: %w", id, errs.ErrNotFound)
	}
	s.log.WithFields(logrus.Fields{"spar_id": id, "role": role}).Info("spar payment recorded")
	return nil
}

func (s *SparService) Get(ctx context.Context, id string) (*models.Spar, error) {
	return s.spars.Get(ctx, id)
}

func (s *SparService) List(ctx context.Context, filter repository.SparFilter) ([]models.Spar, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", errs.ErrValidation, filter.Status)
	}
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	return s.spars.List(ctx, filter)
}

// Commits returns the spar and its credited commits, most recent first.
func (s *SparService) Commits(ctx context.Context, id string) (*models.Spar, []models.SparCommit, error) {
	spar, err := s.spars.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	commits, err := s.commits.ListForSpar(ctx, spar.ID)
	if err != nil {
		return nil, nil, err
	}
	return spar, commits, nil
}

func (s *SparService) Leaderboard(ctx context.Context, limit int) ([]models.User, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.users.Leaderboard(ctx, limit)
}

func isParticipantHandle(spar *models.Spar, handle string) bool {
	if spar.Creator != nil && models.SameHandle(spar.Creator.GitHubUsername, handle) {
		return true
	}
	return spar.Opponent != nil && models.SameHandle(spar.Opponent.GitHubUsername, handle)
}

// SearchUsers finds known participants by handle prefix, for picking an opponent.
func (s *SparService) SearchUsers(ctx context.Context, query string, limit int) ([]models.User, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.users.Search(ctx, strings.TrimSpace(query), limit)
}
