package assembly

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"reelforge/internal/domain"
	"reelforge/internal/storage"
)

// ErrUnknownRender is returned for refs the synthetic assembler never issued.
var ErrUnknownRender = errors.New("assembly: unknown render")

type SyntheticOptions struct {
	// CompleteAfter is the number of status polls before a render finishes.
	CompleteAfter int
	// FailReason forces every render to fail with this reason.
	FailReason string
	// Never keeps renders rendering forever.
	Never bool
	Store storage.Store
}

// SyntheticAssembler renders in process. Progress advances only when the
// status is polled, which makes supervision deterministic in tests.
type SyntheticAssembler struct {
	opts    SyntheticOptions
	mu      sync.Mutex
	renders map[string]*syntheticRender
}

type syntheticRender struct {
	req   domain.AssemblyRequest
	polls int
}

func NewSyntheticAssembler(opts SyntheticOptions) *SyntheticAssembler {
	if opts.CompleteAfter <= 0 {
		opts.CompleteAfter = 3
	}
	return &SyntheticAssembler{opts: opts, renders: make(map[string]*syntheticRender)}
}

func (a *SyntheticAssembler) SubmitAssembly(ctx context.Context, req domain.AssemblyRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if req.AudioURL == "" && req.Script == "" {
		return "", errors.New("assembly: nothing to render")
	}
	ref := "syn-" + uuid.NewString()
	a.mu.Lock()
	a.renders[ref] = &syntheticRender{req: req}
	a.mu.Unlock()
	return ref, nil
}

func (a *SyntheticAssembler) AssemblyStatus(ctx context.Context, ref string) (domain.AssemblyStatus, error) {
	a.mu.Lock()
	r, ok := a.renders[ref]
	if !ok {
		a.mu.Unlock()
		return domain.AssemblyStatus{}, ErrUnknownRender
	}
	r.polls++
	polls, req := r.polls, r.req
	a.mu.Unlock()

	if a.opts.Never || polls < a.opts.CompleteAfter {
		return domain.AssemblyStatus{State: domain.AssemblyRendering}, nil
	}
	if a.opts.FailReason != "" {
		return domain.AssemblyStatus{State: domain.AssemblyFailed, Reason: a.opts.FailReason}, nil
	}
	key := fmt.Sprintf("videos/%s-%d.mp4", req.VideoID, req.Attempt)
	if a.opts.Store == nil {
		return domain.AssemblyStatus{State: domain.AssemblySucceeded, VideoURL: "synthetic://" + key}, nil
	}
	url, err := a.opts.Store.Put(ctx, key, "video/mp4", []byte(req.Script))
	if err != nil {
		return domain.AssemblyStatus{}, err
	}
	return domain.AssemblyStatus{State: domain.AssemblySucceeded, VideoURL: url}, nil
}

// Polls returns how many times ref was polled.
func (a *SyntheticAssembler) Polls(ref string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if r, ok := a.renders[ref]; ok {
		return r.polls
	}
	return 0
}
