package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"reelforge/internal/adapter/repo"
	"reelforge/internal/domain"
	"reelforge/internal/infra"
	"reelforge/internal/ledger"
	"reelforge/internal/providers/assembly"
)

type scriptFunc func(context.Context, domain.ScriptRequest) (string, error)

func (f scriptFunc) GenerateScript(ctx context.Context, req domain.ScriptRequest) (string, error) {
	return f(ctx, req)
}

type voiceFunc func(context.Context, domain.VoiceRequest) (string, error)

func (f voiceFunc) GenerateVoice(ctx context.Context, req domain.VoiceRequest) (string, error) {
	return f(ctx, req)
}

func okScript(_ context.Context, req domain.ScriptRequest) (string, error) {
	return "Here are " + req.Topic + ". One. Two. Three.", nil
}

func okVoice(_ context.Context, req domain.VoiceRequest) (string, error) {
	return "https://cdn.example.com/audio/" + req.VideoID + ".wav", nil
}

type transition struct {
	from, to domain.VideoStatus
}

// checkedVideos fails the test on any persisted edge outside the state
// machine or a video url outside the completed status.
type checkedVideos struct {
	domain.VideoRepository
	t *testing.T

	mu          sync.Mutex
	failNext    error
	transitions []transition
}

func (c *checkedVideos) Update(ctx context.Context, id string, expect domain.VideoStatus, patch domain.VideoPatch) (*domain.Video, error) {
	c.mu.Lock()
	inject := c.failNext
	c.failNext = nil
	c.mu.Unlock()
	if inject != nil {
		return nil, inject
	}
	video, err := c.VideoRepository.Update(ctx, id, expect, patch)
	if err != nil {
		return video, err
	}
	if video.Status != expect {
		if !expect.CanTransition(video.Status) {
			c.t.Errorf("illegal transition %s -> %s for %s", expect, video.Status, id)
		}
		c.mu.Lock()
		c.transitions = append(c.transitions, transition{from: expect, to: video.Status})
		c.mu.Unlock()
	}
	if (video.VideoURL != "") != (video.Status == domain.VideoStatusCompleted) {
		c.t.Errorf("video %s is %s with video url %q", id, video.Status, video.VideoURL)
	}
	return video, nil
}

func (c *checkedVideos) failNextUpdate(err error) {
	c.mu.Lock()
	c.failNext = err
	c.mu.Unlock()
}

func (c *checkedVideos) count(from domain.VideoStatus) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, tr := range c.transitions {
		if tr.from == from {
			n++
		}
	}
	return n
}

type harness struct {
	o      *Orchestrator
	users  repo.MemoryUsers
	videos *checkedVideos
	userID string
}

type option func(*Deps, *Config)

func withAssembler(a Assembler) option {
	return func(d *Deps, _ *Config) { d.Assembler = a }
}

func withScript(f scriptFunc) option {
	return func(d *Deps, _ *Config) { d.Script = f }
}

func withVoice(f voiceFunc) option {
	return func(d *Deps, _ *Config) { d.Voice = f }
}

func withConfig(apply func(*Config)) option {
	return func(_ *Deps, c *Config) { apply(c) }
}

func newHarness(t *testing.T, credits int, opts ...option) *harness {
	t.Helper()
	store := repo.NewMemoryStore()
	users := store.Users()
	user, err := users.Create(context.Background(), &domain.User{ExternalID: "ext-1", Email: "maker@example.com", Credits: credits})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	videos := &checkedVideos{VideoRepository: store.Videos(), t: t}
	deps := Deps{
		Videos:    videos,
		Credits:   ledger.New(users, infra.NopLogger()),
		Script:    scriptFunc(okScript),
		Voice:     voiceFunc(okVoice),
		Assembler: assembly.NewSyntheticAssembler(assembly.SyntheticOptions{CompleteAfter: 3}),
		Logger:    infra.NopLogger(),
	}
	cfg := Config{PollInterval: 5 * time.Millisecond, Timeout: 2 * time.Second}
	for _, opt := range opts {
		opt(&deps, &cfg)
	}
	o, err := New(deps, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(o.Close)
	return &harness{o: o, users: users, videos: videos, userID: user.ID}
}

func (h *harness) balance(t *testing.T) int {
	t.Helper()
	user, err := h.users.GetByID(context.Background(), h.userID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	return user.Credits
}

// voiced runs script and voice for a fresh video.
func (h *harness) voiced(t *testing.T) *domain.Video {
	t.Helper()
	ctx := context.Background()
	video, err := h.o.StartScript(ctx, h.userID, ScriptInput{Topic: "3 productivity tips"})
	if err != nil {
		t.Fatalf("StartScript: %v", err)
	}
	video, err = h.o.StartVoice(ctx, video.ID)
	if err != nil {
		t.Fatalf("StartVoice: %v", err)
	}
	return video
}

func (h *harness) waitFor(t *testing.T, videoID string, want domain.VideoStatus) domain.Snapshot {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		snap, err := h.o.PollStatus(context.Background(), videoID)
		if err != nil {
			t.Fatalf("PollStatus: %v", err)
		}
		if snap.Status == want {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("video %s stuck at %s, want %s", videoID, snap.Status, want)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
