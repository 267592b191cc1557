// Package pipeline drives videos through script, voice and assembly while
// charging credits for every assembly attempt.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"reelforge/internal/domain"
	"reelforge/internal/infra"
	"reelforge/internal/keylock"
)

const (
	assemblyCost     = 1
	defaultListLimit = 20
	maxListLimit     = 100
)

// Credits is the ledger surface the orchestrator charges against.
type Credits interface {
	TryDebit(ctx context.Context, userID string, amount int) (int, error)
	Refund(ctx context.Context, userID string, amount int) (int, error)
	Balance(ctx context.Context, userID string) (int, error)
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Videos    domain.VideoRepository
	Credits   Credits
	Script    ScriptGenerator
	Voice     VoiceGenerator
	Assembler Assembler
	Logger    infra.Logger
}

// Config tunes assembly supervision and the credit policies.
type Config struct {
	PollInterval    time.Duration
	Timeout         time.Duration
	TimeoutPolicy   string
	RefundOnFailure bool
	PoolSize        int
}

// AssemblyTicket is returned once an assembly attempt was accepted.
type AssemblyTicket struct {
	Video            *domain.Video
	RemainingCredits int
}

// AssemblyOutcome is the terminal result of one assembly attempt.
type AssemblyOutcome struct {
	Attempt  int
	VideoURL string
	Err      error
}

type Orchestrator struct {
	videos     domain.VideoRepository
	credits    Credits
	script     ScriptGenerator
	voice      VoiceGenerator
	supervisor *Supervisor
	locks      *keylock.Map
	validate   *validator.Validate
	logger     infra.Logger
	cfg        Config
	now        func() time.Time
}

// New wires an orchestrator and starts its supervisor pool.
func New(deps Deps, cfg Config) (*Orchestrator, error) {
	if deps.Videos == nil || deps.Credits == nil {
		return nil, errors.New("pipeline: video store and credits are required")
	}
	if deps.Script == nil || deps.Voice == nil || deps.Assembler == nil {
		return nil, errors.New("pipeline: script, voice and assembly providers are required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	switch cfg.TimeoutPolicy {
	case "":
		cfg.TimeoutPolicy = infra.TimeoutPolicyFail
	case infra.TimeoutPolicyFail, infra.TimeoutPolicyRefund:
	default:
		return nil, fmt.Errorf("pipeline: unknown timeout policy %q", cfg.TimeoutPolicy)
	}
	logger := infra.Component(deps.Logger, "pipeline")
	o := &Orchestrator{
		videos:   deps.Videos,
		credits:  deps.Credits,
		script:   deps.Script,
		voice:    deps.Voice,
		locks:    keylock.New(),
		validate: newValidator(),
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
	sup, err := NewSupervisor(deps.Assembler, o, SupervisorConfig{PollInterval: cfg.PollInterval, PoolSize: cfg.PoolSize}, logger)
	if err != nil {
		return nil, err
	}
	o.supervisor = sup
	return o, nil
}

// Supervisor exposes the background assembly watcher.
func (o *Orchestrator) Supervisor() *Supervisor {
	return o.supervisor
}

// Close stops supervision. In-flight attempts stay generating and are picked
// up again by Resume.
func (o *Orchestrator) Close() {
	o.supervisor.Stop()
}

// StartScript creates a pending video and runs the script stage. On a
// provider failure the pending record is returned together with the error.
func (o *Orchestrator) StartScript(ctx context.Context, userID string, in ScriptInput) (*domain.Video, error) {
	if userID == "" {
		return nil, &domain.ValidationError{Field: "user_id", Reason: "is required"}
	}
	in = in.withDefaults()
	if err := o.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}
	video := &domain.Video{
		OwnerID:        userID,
		Topic:          in.Topic,
		Style:          in.Style,
		DurationBucket: in.DurationBucket,
		AspectRatio:    in.AspectRatio,
		Locale:         in.Locale,
		Status:         domain.VideoStatusPending,
		Duration:       domain.DurationSeconds(in.DurationBucket),
	}
	if err := o.videos.Create(ctx, video); err != nil {
		return nil, fmt.Errorf("create video: %w", err)
	}
	o.logger.Info().Str("video_id", video.ID).Str("user_id", userID).Msg("video created")

	unlock := o.locks.Lock(video.ID)
	defer unlock()
	return o.writeScript(ctx, video)
}

// RetryScript reruns the script stage for a pending video.
func (o *Orchestrator) RetryScript(ctx context.Context, videoID string) (*domain.Video, error) {
	unlock := o.locks.Lock(videoID)
	defer unlock()
	video, err := o.load(ctx, videoID, domain.VideoStatusPending)
	if err != nil {
		return nil, err
	}
	return o.writeScript(ctx, video)
}

func (o *Orchestrator) writeScript(ctx context.Context, video *domain.Video) (*domain.Video, error) {
	script, err := generateScript(ctx, o.script, domain.ScriptRequest{
		Topic:          video.Topic,
		DurationBucket: video.DurationBucket,
		Style:          video.Style,
		Locale:         video.Locale,
	})
	if err != nil {
		o.logger.Warn().Err(err).Str("video_id", video.ID).Str("stage", string(domain.StageScript)).Msg("stage failed")
		return video, err
	}
	status := domain.VideoStatusScripted
	updated, err := o.videos.Update(ctx, video.ID, domain.VideoStatusPending, domain.VideoPatch{Status: &status, Script: &script})
	if err != nil {
		return video, fmt.Errorf("save script: %w", err)
	}
	o.logger.Info().Str("video_id", video.ID).Str("stage", string(domain.StageScript)).Msg("stage completed")
	return updated, nil
}

// StartVoice narrates the script of a scripted video.
func (o *Orchestrator) StartVoice(ctx context.Context, videoID string) (*domain.Video, error) {
	unlock := o.locks.Lock(videoID)
	defer unlock()
	video, err := o.load(ctx, videoID, domain.VideoStatusScripted)
	if err != nil {
		return nil, err
	}
	audioURL, err := generateVoice(ctx, o.voice, domain.VoiceRequest{VideoID: video.ID, Script: video.Script, Locale: video.Locale})
	if err != nil {
		o.logger.Warn().Err(err).Str("video_id", video.ID).Str("stage", string(domain.StageVoice)).Msg("stage failed")
		return video, err
	}
	status := domain.VideoStatusVoiced
	updated, err := o.videos.Update(ctx, video.ID, domain.VideoStatusScripted, domain.VideoPatch{Status: &status, AudioURL: &audioURL})
	if err != nil {
		return video, fmt.Errorf("save audio: %w", err)
	}
	o.logger.Info().Str("video_id", video.ID).Str("stage", string(domain.StageVoice)).Msg("stage completed")
	return updated, nil
}

// StartAssembly charges one credit and hands a new attempt to the
// supervisor. It returns as soon as the video is generating.
func (o *Orchestrator) StartAssembly(ctx context.Context, videoID, userID string) (AssemblyTicket, error) {
	unlock := o.locks.Lock(videoID)
	defer unlock()
	video, err := o.load(ctx, videoID, domain.VideoStatusVoiced, domain.VideoStatusScripted)
	if video != nil && video.OwnerID != userID {
		return AssemblyTicket{}, domain.ErrNotFound
	}
	if err != nil {
		return AssemblyTicket{Video: video}, err
	}

	balance, err := o.credits.TryDebit(ctx, userID, assemblyCost)
	if err != nil {
		return AssemblyTicket{Video: video}, err
	}

	now := o.now()
	status := domain.VideoStatusGenerating
	attempt := video.Attempt + 1
	noRef := ""
	updated, err := o.videos.Update(ctx, video.ID, video.Status, domain.VideoPatch{
		Status:          &status,
		Attempt:         &attempt,
		AssemblyRef:     &noRef,
		GeneratingSince: &now,
	})
	if err != nil {
		if refunded, rerr := o.credits.Refund(ctx, userID, assemblyCost); rerr != nil {
			o.logger.Error().Err(rerr).Str("video_id", video.ID).Str("user_id", userID).Msg("refund after failed dispatch")
		} else {
			balance = refunded
		}
		return AssemblyTicket{Video: video, RemainingCredits: balance}, fmt.Errorf("start assembly: %w", err)
	}

	o.logger.Info().Str("video_id", video.ID).Str("user_id", userID).Int("attempt", attempt).Int("balance", balance).Msg("assembly dispatched")
	o.watch(updated, now.Add(o.cfg.Timeout))
	return AssemblyTicket{Video: updated, RemainingCredits: balance}, nil
}

func (o *Orchestrator) watch(video *domain.Video, deadline time.Time) {
	err := o.supervisor.Watch(Attempt{
		VideoID:  video.ID,
		Number:   video.Attempt,
		Ref:      video.AssemblyRef,
		Deadline: deadline,
		Request: domain.AssemblyRequest{
			VideoID:     video.ID,
			UserID:      video.OwnerID,
			Attempt:     video.Attempt,
			Script:      video.Script,
			AudioURL:    video.AudioURL,
			AspectRatio: video.AspectRatio,
			Duration:    video.Duration,
		},
	})
	if err != nil {
		o.logger.Error().Err(err).Str("video_id", video.ID).Int("attempt", video.Attempt).Msg("assembly not supervised")
	}
}

// PollStatus reads the current snapshot. It never takes the video lock and
// never calls a provider.
func (o *Orchestrator) PollStatus(ctx context.Context, videoID string) (domain.Snapshot, error) {
	video, err := o.videos.GetByID(ctx, videoID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return video.Snapshot(), nil
}

// GetVideo returns the full record when userID owns it.
func (o *Orchestrator) GetVideo(ctx context.Context, userID, videoID string) (*domain.Video, error) {
	video, err := o.videos.GetByID(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if video.OwnerID != userID {
		return nil, domain.ErrNotFound
	}
	return video, nil
}

// ListVideos returns the newest videos of a user.
func (o *Orchestrator) ListVideos(ctx context.Context, userID string, limit int) ([]domain.Video, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return o.videos.ListByOwner(ctx, userID, limit)
}

// OnAssemblyComplete applies the terminal result of an attempt. Results for
// another attempt or a video no longer generating are ignored.
func (o *Orchestrator) OnAssemblyComplete(ctx context.Context, videoID string, outcome AssemblyOutcome) error {
	unlock := o.locks.Lock(videoID)
	defer unlock()
	video, ok, err := o.current(ctx, videoID, outcome.Attempt)
	if err != nil || !ok {
		return err
	}
	defer o.supervisor.cancelAttempt(videoID, outcome.Attempt)

	log := o.logger.With().Str("video_id", videoID).Int("attempt", outcome.Attempt).Logger()
	if outcome.Err == nil && outcome.VideoURL == "" {
		outcome.Err = providerError(domain.StageAssembly, errEmptyPayload)
	}
	if outcome.Err == nil {
		status := domain.VideoStatusCompleted
		url := outcome.VideoURL
		if _, err := o.videos.Update(ctx, videoID, domain.VideoStatusGenerating, domain.VideoPatch{Status: &status, VideoURL: &url, ClearSince: true}); err != nil {
			return fmt.Errorf("complete video: %w", err)
		}
		log.Info().Msg("assembly completed")
		return nil
	}

	status := domain.VideoStatusFailed
	reason := outcome.Err.Error()
	if _, err := o.videos.Update(ctx, videoID, domain.VideoStatusGenerating, domain.VideoPatch{Status: &status, FailureReason: &reason, ClearSince: true}); err != nil {
		return fmt.Errorf("fail video: %w", err)
	}
	log.Warn().Err(outcome.Err).Msg("assembly failed")
	if o.cfg.RefundOnFailure {
		o.refund(ctx, video.OwnerID, videoID)
	}
	return nil
}

// onTimeout forces an attempt past its ceiling into the configured state.
func (o *Orchestrator) onTimeout(ctx context.Context, videoID string, attempt int) error {
	unlock := o.locks.Lock(videoID)
	defer unlock()
	video, ok, err := o.current(ctx, videoID, attempt)
	if err != nil || !ok {
		return err
	}
	defer o.supervisor.cancelAttempt(videoID, attempt)

	log := o.logger.With().Str("video_id", videoID).Int("attempt", attempt).Str("policy", o.cfg.TimeoutPolicy).Logger()
	reason := fmt.Sprintf("%v: assembly exceeded %s", domain.ErrTimeout, o.cfg.Timeout)
	if o.cfg.TimeoutPolicy == infra.TimeoutPolicyRefund {
		// Back to scripted means no narration yet; the voice stage writes a
		// fresh audio reference.
		status := domain.VideoStatusScripted
		empty := ""
		if _, err := o.videos.Update(ctx, videoID, domain.VideoStatusGenerating, domain.VideoPatch{
			Status:        &status,
			AudioURL:      &empty,
			AssemblyRef:   &empty,
			FailureReason: &reason,
			ClearSince:    true,
		}); err != nil {
			return fmt.Errorf("timeout video: %w", err)
		}
		o.refund(ctx, video.OwnerID, videoID)
		log.Warn().Msg("assembly timed out, returned to scripted")
		return nil
	}
	status := domain.VideoStatusFailed
	if _, err := o.videos.Update(ctx, videoID, domain.VideoStatusGenerating, domain.VideoPatch{Status: &status, FailureReason: &reason, ClearSince: true}); err != nil {
		return fmt.Errorf("timeout video: %w", err)
	}
	log.Warn().Msg("assembly timed out")
	return nil
}

// recordRef stores the provider reference of the current attempt so Resume
// can poll it instead of submitting again.
func (o *Orchestrator) recordRef(ctx context.Context, videoID string, attempt int, ref string) error {
	unlock := o.locks.Lock(videoID)
	defer unlock()
	_, ok, err := o.current(ctx, videoID, attempt)
	if err != nil || !ok {
		return err
	}
	_, err = o.videos.Update(ctx, videoID, domain.VideoStatusGenerating, domain.VideoPatch{AssemblyRef: &ref})
	return err
}

// Reset moves a failed video back to its last good stage.
func (o *Orchestrator) Reset(ctx context.Context, videoID string) (*domain.Video, error) {
	unlock := o.locks.Lock(videoID)
	defer unlock()
	video, err := o.load(ctx, videoID, domain.VideoStatusFailed)
	if err != nil {
		return video, err
	}
	status := domain.VideoStatusScripted
	if video.AudioURL != "" {
		status = domain.VideoStatusVoiced
	}
	empty := ""
	updated, err := o.videos.Update(ctx, videoID, domain.VideoStatusFailed, domain.VideoPatch{
		Status:        &status,
		AssemblyRef:   &empty,
		FailureReason: &empty,
		ClearSince:    true,
	})
	if err != nil {
		return video, fmt.Errorf("reset video: %w", err)
	}
	o.logger.Info().Str("video_id", videoID).Str("status", string(status)).Msg("video reset")
	return updated, nil
}

// GenerateVideo runs StartScript, StartVoice and StartAssembly back to back.
func (o *Orchestrator) GenerateVideo(ctx context.Context, userID string, in ScriptInput) (AssemblyTicket, error) {
	if userID != "" {
		balance, err := o.credits.Balance(ctx, userID)
		if err != nil {
			return AssemblyTicket{}, err
		}
		if balance < assemblyCost {
			return AssemblyTicket{RemainingCredits: balance}, domain.ErrInsufficientCredits
		}
	}
	video, err := o.StartScript(ctx, userID, in)
	if err != nil {
		return AssemblyTicket{Video: video}, err
	}
	video, err = o.StartVoice(ctx, video.ID)
	if err != nil {
		return AssemblyTicket{Video: video}, err
	}
	return o.StartAssembly(ctx, video.ID, userID)
}

// Resume re-attaches supervision to attempts left generating by a previous
// process. Attempts already past their ceiling time out right away.
func (o *Orchestrator) Resume(ctx context.Context) (int, error) {
	videos, err := o.videos.ListByStatus(ctx, domain.VideoStatusGenerating, 0)
	if err != nil {
		return 0, fmt.Errorf("list generating videos: %w", err)
	}
	for i := range videos {
		video := &videos[i]
		since := video.UpdatedAt
		if video.GeneratingSince != nil {
			since = *video.GeneratingSince
		}
		o.watch(video, since.Add(o.cfg.Timeout))
	}
	if len(videos) > 0 {
		o.logger.Info().Int("count", len(videos)).Msg("resumed assembly supervision")
	}
	return len(videos), nil
}

func (o *Orchestrator) refund(ctx context.Context, userID, videoID string) {
	if _, err := o.credits.Refund(ctx, userID, assemblyCost); err != nil {
		o.logger.Error().Err(err).Str("video_id", videoID).Str("user_id", userID).Msg("refund failed")
	}
}

// load fetches a video and checks it is in one of want. The record is
// returned alongside a state error.
func (o *Orchestrator) load(ctx context.Context, videoID string, want ...domain.VideoStatus) (*domain.Video, error) {
	video, err := o.videos.GetByID(ctx, videoID)
	if err != nil {
		return nil, err
	}
	for _, status := range want {
		if video.Status == status {
			return video, nil
		}
	}
	return video, &domain.StateError{VideoID: videoID, Status: video.Status, Want: want}
}

func (o *Orchestrator) current(ctx context.Context, videoID string, attempt int) (*domain.Video, bool, error) {
	video, err := o.videos.GetByID(ctx, videoID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if video.Status != domain.VideoStatusGenerating || video.Attempt != attempt {
		o.logger.Debug().Str("video_id", videoID).Int("attempt", attempt).Str("status", string(video.Status)).Msg("stale assembly signal ignored")
		return video, false, nil
	}
	return video, true, nil
}
