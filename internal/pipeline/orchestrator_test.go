package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"reelforge/internal/domain"
	"reelforge/internal/infra"
	"reelforge/internal/providers/assembly"
)

func TestScenarioCompletesAfterThreePolls(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	video, err := h.o.StartScript(ctx, h.userID, ScriptInput{Topic: "3 productivity tips"})
	if err != nil {
		t.Fatalf("StartScript: %v", err)
	}
	if video.Status != domain.VideoStatusScripted || video.Script == "" {
		t.Fatalf("after script: status=%s script=%q", video.Status, video.Script)
	}
	video, err = h.o.StartVoice(ctx, video.ID)
	if err != nil {
		t.Fatalf("StartVoice: %v", err)
	}
	if video.Status != domain.VideoStatusVoiced || video.AudioURL == "" {
		t.Fatalf("after voice: status=%s audio=%q", video.Status, video.AudioURL)
	}
	ticket, err := h.o.StartAssembly(ctx, video.ID, h.userID)
	if err != nil {
		t.Fatalf("StartAssembly: %v", err)
	}
	if ticket.Video.Status != domain.VideoStatusGenerating || ticket.RemainingCredits != 0 {
		t.Fatalf("ticket = status %s credits %d", ticket.Video.Status, ticket.RemainingCredits)
	}
	if ticket.Video.Attempt != 1 || ticket.Video.GeneratingSince == nil {
		t.Fatalf("attempt bookkeeping missing: %+v", ticket.Video)
	}

	snap := h.waitFor(t, video.ID, domain.VideoStatusCompleted)
	if snap.VideoURL == "" {
		t.Fatalf("completed without video url")
	}
	if got := h.balance(t); got != 0 {
		t.Fatalf("balance = %d, want 0", got)
	}
	final, _ := h.o.GetVideo(ctx, h.userID, video.ID)
	if final.GeneratingSince != nil || final.AssemblyRef == "" {
		t.Fatalf("final record: since=%v ref=%q", final.GeneratingSince, final.AssemblyRef)
	}
}

func TestStartAssemblyWithoutCreditsLeavesVideoVoiced(t *testing.T) {
	h := newHarness(t, 0)
	video := h.voiced(t)

	_, err := h.o.StartAssembly(context.Background(), video.ID, h.userID)
	if !errors.Is(err, domain.ErrInsufficientCredits) {
		t.Fatalf("StartAssembly err = %v, want ErrInsufficientCredits", err)
	}
	snap, _ := h.o.PollStatus(context.Background(), video.ID)
	if snap.Status != domain.VideoStatusVoiced || snap.Attempt != 0 {
		t.Fatalf("snapshot = %+v, want untouched voiced", snap)
	}
	if got := h.balance(t); got != 0 {
		t.Fatalf("balance = %d, want 0", got)
	}
}

func TestStartScriptValidation(t *testing.T) {
	cases := []struct {
		name  string
		in    ScriptInput
		field string
	}{
		{name: "empty topic", in: ScriptInput{}, field: "topic"},
		{name: "blank topic", in: ScriptInput{Topic: "   "}, field: "topic"},
		{name: "long topic", in: ScriptInput{Topic: strings.Repeat("a", 501)}, field: "topic"},
		{name: "unknown style", in: ScriptInput{Topic: "x", Style: "rant"}, field: "style"},
		{name: "unknown duration", in: ScriptInput{Topic: "x", DurationBucket: "1-2"}, field: "duration"},
		{name: "unknown aspect ratio", in: ScriptInput{Topic: "x", AspectRatio: "4:3"}, field: "aspect_ratio"},
		{name: "unknown locale", in: ScriptInput{Topic: "x", Locale: "de"}, field: "locale"},
	}
	h := newHarness(t, 1)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.o.StartScript(context.Background(), h.userID, tc.in)
			var verr *domain.ValidationError
			if !errors.As(err, &verr) || !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if verr.Field != tc.field {
				t.Fatalf("field = %q, want %q", verr.Field, tc.field)
			}
		})
	}
	videos, _ := h.o.ListVideos(context.Background(), h.userID, 0)
	if len(videos) != 0 {
		t.Fatalf("validation failures created %d videos", len(videos))
	}
}

func TestStartScriptDefaultsAndRuneLimit(t *testing.T) {
	h := newHarness(t, 1)
	video, err := h.o.StartScript(context.Background(), h.userID, ScriptInput{Topic: "  " + strings.Repeat("é", 500) + " "})
	if err != nil {
		t.Fatalf("StartScript: %v", err)
	}
	if video.Style != domain.DefaultStyle || video.DurationBucket != domain.DefaultDurationBucket || video.AspectRatio != domain.DefaultAspectRatio {
		t.Fatalf("defaults not applied: %+v", video)
	}
	if video.Duration != 20 || video.Locale != "en" {
		t.Fatalf("duration=%d locale=%q", video.Duration, video.Locale)
	}
}

func TestScriptFailureLeavesPendingAndRetrySucceeds(t *testing.T) {
	var calls atomic.Int32
	h := newHarness(t, 1, withScript(func(ctx context.Context, req domain.ScriptRequest) (string, error) {
		if calls.Add(1) == 1 {
			return "", errors.New("model overloaded")
		}
		return okScript(ctx, req)
	}))
	ctx := context.Background()

	video, err := h.o.StartScript(ctx, h.userID, ScriptInput{Topic: "focus"})
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("err = %v, want provider failure", err)
	}
	var perr *domain.ProviderError
	if !errors.As(err, &perr) || perr.Stage != domain.StageScript {
		t.Fatalf("err = %#v, want script ProviderError", err)
	}
	if video == nil || video.Status != domain.VideoStatusPending || video.Script != "" {
		t.Fatalf("video = %+v, want pending without script", video)
	}

	video, err = h.o.RetryScript(ctx, video.ID)
	if err != nil {
		t.Fatalf("RetryScript: %v", err)
	}
	if video.Status != domain.VideoStatusScripted {
		t.Fatalf("status = %s, want scripted", video.Status)
	}
	if _, err := h.o.RetryScript(ctx, video.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("RetryScript on scripted err = %v, want ErrInvalidState", err)
	}
}

func TestEmptyScriptIsProviderFailure(t *testing.T) {
	h := newHarness(t, 1, withScript(func(context.Context, domain.ScriptRequest) (string, error) {
		return "  \n ", nil
	}))
	video, err := h.o.StartScript(context.Background(), h.userID, ScriptInput{Topic: "focus"})
	if !errors.Is(err, domain.ErrProviderFailure) || video.Status != domain.VideoStatusPending {
		t.Fatalf("err = %v status = %s", err, video.Status)
	}
}

func TestStartVoice(t *testing.T) {
	t.Run("requires scripted", func(t *testing.T) {
		h := newHarness(t, 1)
		video := h.voiced(t)
		if _, err := h.o.StartVoice(context.Background(), video.ID); !errors.Is(err, domain.ErrInvalidState) {
			t.Fatalf("err = %v, want ErrInvalidState", err)
		}
	})
	t.Run("failure leaves scripted", func(t *testing.T) {
		h := newHarness(t, 1, withVoice(func(context.Context, domain.VoiceRequest) (string, error) {
			return "", errors.New("quota")
		}))
		video, err := h.o.StartScript(context.Background(), h.userID, ScriptInput{Topic: "focus"})
		if err != nil {
			t.Fatalf("StartScript: %v", err)
		}
		video, err = h.o.StartVoice(context.Background(), video.ID)
		if !errors.Is(err, domain.ErrProviderFailure) {
			t.Fatalf("err = %v, want provider failure", err)
		}
		if video.Status != domain.VideoStatusScripted || video.AudioURL != "" {
			t.Fatalf("video = %+v", video)
		}
	})
	t.Run("unknown video", func(t *testing.T) {
		h := newHarness(t, 1)
		if _, err := h.o.StartVoice(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestStartAssemblyFromScriptedSkipsVoice(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	video, err := h.o.StartScript(ctx, h.userID, ScriptInput{Topic: "single shot"})
	if err != nil {
		t.Fatalf("StartScript: %v", err)
	}
	if _, err := h.o.StartAssembly(ctx, video.ID, h.userID); err != nil {
		t.Fatalf("StartAssembly: %v", err)
	}
	h.waitFor(t, video.ID, domain.VideoStatusCompleted)
}

func TestStartAssemblyOwnerMismatch(t *testing.T) {
	h := newHarness(t, 1)
	video := h.voiced(t)
	ctx := context.Background()
	if _, err := h.o.StartAssembly(ctx, video.ID, "intruder"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := h.o.GetVideo(ctx, "intruder", video.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetVideo err = %v, want ErrNotFound", err)
	}
	if got := h.balance(t); got != 1 {
		t.Fatalf("balance = %d, want 1", got)
	}
}

func TestStartAssemblyRefundsWhenTransitionFails(t *testing.T) {
	h := newHarness(t, 1)
	video := h.voiced(t)
	h.videos.failNextUpdate(errors.New("connection reset"))

	ticket, err := h.o.StartAssembly(context.Background(), video.ID, h.userID)
	if err == nil {
		t.Fatalf("expected error")
	}
	if ticket.RemainingCredits != 1 || h.balance(t) != 1 {
		t.Fatalf("credits not refunded: ticket=%d balance=%d", ticket.RemainingCredits, h.balance(t))
	}
	snap, _ := h.o.PollStatus(context.Background(), video.ID)
	if snap.Status != domain.VideoStatusVoiced {
		t.Fatalf("status = %s, want voiced", snap.Status)
	}
}

func TestConcurrentStartAssemblyChargesOnce(t *testing.T) {
	h := newHarness(t, 2, withAssembler(assembly.NewSyntheticAssembler(assembly.SyntheticOptions{Never: true})))
	video := h.voiced(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.o.StartAssembly(context.Background(), video.ID, h.userID)
		}(i)
	}
	wg.Wait()

	ok, rejected := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrInvalidState):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || rejected != 1 {
		t.Fatalf("ok=%d rejected=%d", ok, rejected)
	}
	if got := h.balance(t); got != 1 {
		t.Fatalf("balance = %d, want 1", got)
	}
}

func TestPollStatusDoesNotWaitForVideoLock(t *testing.T) {
	h := newHarness(t, 1)
	video := h.voiced(t)
	unlock := h.o.locks.Lock(video.ID)
	defer unlock()

	done := make(chan domain.Snapshot, 1)
	go func() {
		snap, _ := h.o.PollStatus(context.Background(), video.ID)
		done <- snap
	}()
	select {
	case snap := <-done:
		if snap.Status != domain.VideoStatusVoiced {
			t.Fatalf("status = %s", snap.Status)
		}
	case <-time.After(time.Second):
		t.Fatalf("PollStatus blocked on the video lock")
	}
}

func TestOnAssemblyCompleteDuplicateIsNoop(t *testing.T) {
	h := newHarness(t, 1, withAssembler(assembly.NewSyntheticAssembler(assembly.SyntheticOptions{Never: true})))
	video := h.voiced(t)
	ctx := context.Background()
	if _, err := h.o.StartAssembly(ctx, video.ID, h.userID); err != nil {
		t.Fatalf("StartAssembly: %v", err)
	}

	outcome := AssemblyOutcome{Attempt: 1, VideoURL: "https://cdn.example.com/v.mp4"}
	for i := 0; i < 2; i++ {
		if err := h.o.OnAssemblyComplete(ctx, video.ID, outcome); err != nil {
			t.Fatalf("OnAssemblyComplete #%d: %v", i+1, err)
		}
	}
	if n := h.videos.count(domain.VideoStatusGenerating); n != 1 {
		t.Fatalf("transitions out of generating = %d, want 1", n)
	}
	snap, _ := h.o.PollStatus(ctx, video.ID)
	if snap.Status != domain.VideoStatusCompleted || snap.VideoURL != outcome.VideoURL {
		t.Fatalf("snapshot = %+v", snap)
	}
	if h.o.Supervisor().Active() != 0 {
		t.Fatalf("supervisor still watching a completed video")
	}
	if err := h.o.OnAssemblyComplete(ctx, video.ID, AssemblyOutcome{Attempt: 1, Err: errors.New("late failure")}); err != nil {
		t.Fatalf("late failure: %v", err)
	}
	if snap, _ := h.o.PollStatus(ctx, video.ID); snap.Status != domain.VideoStatusCompleted {
		t.Fatalf("late failure changed status to %s", snap.Status)
	}
}

func TestOnAssemblyCompleteEmptyURLFails(t *testing.T) {
	h := newHarness(t, 1, withAssembler(assembly.NewSyntheticAssembler(assembly.SyntheticOptions{Never: true})))
	video := h.voiced(t)
	ctx := context.Background()
	if _, err := h.o.StartAssembly(ctx, video.ID, h.userID); err != nil {
		t.Fatalf("StartAssembly: %v", err)
	}
	if err := h.o.OnAssemblyComplete(ctx, video.ID, AssemblyOutcome{Attempt: 1}); err != nil {
		t.Fatalf("OnAssemblyComplete: %v", err)
	}
	snap, _ := h.o.PollStatus(ctx, video.ID)
	if snap.Status != domain.VideoStatusFailed || snap.VideoURL != "" {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestAssemblyTimeout(t *testing.T) {
	cases := []struct {
		policy      string
		wantStatus  domain.VideoStatus
		wantBalance int
		keepsAudio  bool
	}{
		{policy: infra.TimeoutPolicyFail, wantStatus: domain.VideoStatusFailed, wantBalance: 0, keepsAudio: true},
		{policy: infra.TimeoutPolicyRefund, wantStatus: domain.VideoStatusScripted, wantBalance: 1},
	}
	for _, tc := range cases {
		t.Run(tc.policy, func(t *testing.T) {
			h := newHarness(t, 1,
				withAssembler(assembly.NewSyntheticAssembler(assembly.SyntheticOptions{Never: true})),
				withConfig(func(c *Config) {
					c.Timeout = 40 * time.Millisecond
					c.TimeoutPolicy = tc.policy
				}),
			)
			video := h.voiced(t)
			ctx := context.Background()
			if _, err := h.o.StartAssembly(ctx, video.ID, h.userID); err != nil {
				t.Fatalf("StartAssembly: %v", err)
			}
			snap := h.waitFor(t, video.ID, tc.wantStatus)
			if !strings.Contains(snap.FailureReason, domain.ErrTimeout.Error()) {
				t.Fatalf("failure reason = %q", snap.FailureReason)
			}

			// The provider answering after the ceiling changes nothing.
			if err := h.o.OnAssemblyComplete(ctx, video.ID, AssemblyOutcome{Attempt: 1, VideoURL: "https://late.example.com/v.mp4"}); err != nil {
				t.Fatalf("late completion: %v", err)
			}
			time.Sleep(30 * time.Millisecond)
			snap, _ = h.o.PollStatus(ctx, video.ID)
			if snap.Status != tc.wantStatus || snap.VideoURL != "" {
				t.Fatalf("after late completion: %+v", snap)
			}
			if n := h.videos.count(domain.VideoStatusGenerating); n != 1 {
				t.Fatalf("transitions out of generating = %d, want 1", n)
			}
			if got := h.balance(t); got != tc.wantBalance {
				t.Fatalf("balance = %d, want %d", got, tc.wantBalance)
			}

			stored, err := h.o.GetVideo(ctx, h.userID, video.ID)
			if err != nil {
				t.Fatalf("GetVideo: %v", err)
			}
			if (stored.AudioURL != "") != tc.keepsAudio {
				t.Fatalf("audio url = %q, keeps audio %v", stored.AudioURL, tc.keepsAudio)
			}
			if tc.keepsAudio {
				return
			}
			revoiced, err := h.o.StartVoice(ctx, video.ID)
			if err != nil {
				t.Fatalf("StartVoice after timeout: %v", err)
			}
			if revoiced.Status != domain.VideoStatusVoiced || revoiced.AudioURL == "" {
				t.Fatalf("revoiced video: %+v", revoiced)
			}
		})
	}
}

func TestRefundOnFailure(t *testing.T) {
	for _, refund := range []bool{false, true} {
		name := "keep credit"
		want := 0
		if refund {
			name, want = "refund credit", 1
		}
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, 1,
				withAssembler(assembly.NewSyntheticAssembler(assembly.SyntheticOptions{CompleteAfter: 1, FailReason: "codec error"})),
				withConfig(func(c *Config) { c.RefundOnFailure = refund }),
			)
			video := h.voiced(t)
			if _, err := h.o.StartAssembly(context.Background(), video.ID, h.userID); err != nil {
				t.Fatalf("StartAssembly: %v", err)
			}
			snap := h.waitFor(t, video.ID, domain.VideoStatusFailed)
			if !strings.Contains(snap.FailureReason, "codec error") {
				t.Fatalf("failure reason = %q", snap.FailureReason)
			}
			if got := h.balance(t); got != want {
				t.Fatalf("balance = %d, want %d", got, want)
			}
		})
	}
}

func TestResetAndRetryRecharges(t *testing.T) {
	failing := assembly.NewSyntheticAssembler(assembly.SyntheticOptions{CompleteAfter: 1, FailReason: "gpu lost"})
	h := newHarness(t, 2, withAssembler(failing))
	video := h.voiced(t)
	ctx := context.Background()

	if _, err := h.o.Reset(ctx, video.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("Reset on voiced err = %v, want ErrInvalidState", err)
	}
	if _, err := h.o.StartAssembly(ctx, video.ID, h.userID); err != nil {
		t.Fatalf("StartAssembly: %v", err)
	}
	h.waitFor(t, video.ID, domain.VideoStatusFailed)

	if _, err := h.o.StartAssembly(ctx, video.ID, h.userID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("StartAssembly on failed err = %v, want ErrInvalidState", err)
	}
	reset, err := h.o.Reset(ctx, video.ID)
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if reset.Status != domain.VideoStatusVoiced || reset.FailureReason != "" || reset.AssemblyRef != "" {
		t.Fatalf("reset = %+v", reset)
	}
	ticket, err := h.o.StartAssembly(ctx, video.ID, h.userID)
	if err != nil {
		t.Fatalf("second StartAssembly: %v", err)
	}
	if ticket.Video.Attempt != 2 || ticket.RemainingCredits != 0 {
		t.Fatalf("ticket = attempt %d credits %d", ticket.Video.Attempt, ticket.RemainingCredits)
	}
	// A signal for the first attempt must not touch the second.
	if err := h.o.OnAssemblyComplete(ctx, video.ID, AssemblyOutcome{Attempt: 1, VideoURL: "https://stale.example.com"}); err != nil {
		t.Fatalf("stale completion: %v", err)
	}
	if snap, _ := h.o.PollStatus(ctx, video.ID); snap.Status == domain.VideoStatusCompleted {
		t.Fatalf("stale attempt completed the video")
	}
	h.waitFor(t, video.ID, domain.VideoStatusFailed)
}

func TestResetWithoutAudioReturnsToScripted(t *testing.T) {
	h := newHarness(t, 1, withAssembler(assembly.NewSyntheticAssembler(assembly.SyntheticOptions{CompleteAfter: 1, FailReason: "x"})))
	ctx := context.Background()
	video, err := h.o.StartScript(ctx, h.userID, ScriptInput{Topic: "skip voice"})
	if err != nil {
		t.Fatalf("StartScript: %v", err)
	}
	if _, err := h.o.StartAssembly(ctx, video.ID, h.userID); err != nil {
		t.Fatalf("StartAssembly: %v", err)
	}
	h.waitFor(t, video.ID, domain.VideoStatusFailed)
	reset, err := h.o.Reset(ctx, video.ID)
	if err != nil || reset.Status != domain.VideoStatusScripted {
		t.Fatalf("Reset = %+v, %v", reset, err)
	}
}

func TestGenerateVideo(t *testing.T) {
	t.Run("runs every stage", func(t *testing.T) {
		h := newHarness(t, 1)
		ticket, err := h.o.GenerateVideo(context.Background(), h.userID, ScriptInput{Topic: "3 productivity tips", Style: "motivation"})
		if err != nil {
			t.Fatalf("GenerateVideo: %v", err)
		}
		if ticket.Video.Status != domain.VideoStatusGenerating || ticket.RemainingCredits != 0 {
			t.Fatalf("ticket = %s %d", ticket.Video.Status, ticket.RemainingCredits)
		}
		h.waitFor(t, ticket.Video.ID, domain.VideoStatusCompleted)
	})
	t.Run("no credits", func(t *testing.T) {
		var scripted atomic.Int32
		h := newHarness(t, 0, withScript(func(ctx context.Context, req domain.ScriptRequest) (string, error) {
			scripted.Add(1)
			return okScript(ctx, req)
		}))
		_, err := h.o.GenerateVideo(context.Background(), h.userID, ScriptInput{Topic: "x"})
		if !errors.Is(err, domain.ErrInsufficientCredits) {
			t.Fatalf("err = %v, want ErrInsufficientCredits", err)
		}
		if scripted.Load() != 0 {
			t.Fatalf("script stage ran without credits")
		}
	})
	t.Run("voice failure stops before charging", func(t *testing.T) {
		h := newHarness(t, 1, withVoice(func(context.Context, domain.VoiceRequest) (string, error) {
			return "", errors.New("tts down")
		}))
		ticket, err := h.o.GenerateVideo(context.Background(), h.userID, ScriptInput{Topic: "x"})
		if !errors.Is(err, domain.ErrProviderFailure) {
			t.Fatalf("err = %v", err)
		}
		if ticket.Video == nil || ticket.Video.Status != domain.VideoStatusScripted || h.balance(t) != 1 {
			t.Fatalf("ticket = %+v balance = %d", ticket.Video, h.balance(t))
		}
	})
}

func TestResume(t *testing.T) {
	cases := []struct {
		name  string
		since time.Duration
		want  domain.VideoStatus
	}{
		{name: "within ceiling", since: 0, want: domain.VideoStatusCompleted},
		{name: "past ceiling", since: -time.Hour, want: domain.VideoStatusFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assembler := assembly.NewSyntheticAssembler(assembly.SyntheticOptions{CompleteAfter: 2})
			h := newHarness(t, 0, withAssembler(assembler))
			ctx := context.Background()
			ref, err := assembler.SubmitAssembly(ctx, domain.AssemblyRequest{VideoID: "seed", Attempt: 1, AudioURL: "a.wav"})
			if err != nil {
				t.Fatalf("SubmitAssembly: %v", err)
			}
			since := time.Now().Add(tc.since)
			video := &domain.Video{
				OwnerID:         h.userID,
				Topic:           "resumed",
				Script:          "script",
				AudioURL:        "a.wav",
				Status:          domain.VideoStatusGenerating,
				Attempt:         1,
				AssemblyRef:     ref,
				GeneratingSince: &since,
			}
			if err := h.videos.Create(ctx, video); err != nil {
				t.Fatalf("Create: %v", err)
			}
			n, err := h.o.Resume(ctx)
			if err != nil || n != 1 {
				t.Fatalf("Resume = %d, %v", n, err)
			}
			h.waitFor(t, video.ID, tc.want)
		})
	}
}

func TestListVideos(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	for _, topic := range []string{"one", "two", "three"} {
		if _, err := h.o.StartScript(ctx, h.userID, ScriptInput{Topic: topic}); err != nil {
			t.Fatalf("StartScript: %v", err)
		}
	}
	all, err := h.o.ListVideos(ctx, h.userID, 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("ListVideos = %d, %v", len(all), err)
	}
	two, _ := h.o.ListVideos(ctx, h.userID, 2)
	if len(two) != 2 {
		t.Fatalf("limited list = %d", len(two))
	}
	other, _ := h.o.ListVideos(ctx, "someone-else", 0)
	if len(other) != 0 {
		t.Fatalf("other user sees %d videos", len(other))
	}
}

func TestNewRejectsUnknownPolicy(t *testing.T) {
	_, err := New(Deps{
		Videos:    &checkedVideos{t: t},
		Credits:   nil,
		Script:    scriptFunc(okScript),
		Voice:     voiceFunc(okVoice),
		Assembler: assembly.NewSyntheticAssembler(assembly.SyntheticOptions{}),
	}, Config{})
	if err == nil {
		t.Fatalf("expected error for missing credits")
	}
	h := newHarness(t, 0)
	_, err = New(Deps{
		Videos:    h.videos,
		Credits:   h.o.credits,
		Script:    scriptFunc(okScript),
		Voice:     voiceFunc(okVoice),
		Assembler: assembly.NewSyntheticAssembler(assembly.SyntheticOptions{}),
	}, Config{TimeoutPolicy: "retry"})
	if err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}
