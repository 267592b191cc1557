package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"reelforge/internal/domain"
)

// MemoryStore keeps users and videos in process memory. It implements both
// domain.UserRepository and domain.VideoRepository and is meant for tests
// and single-process development runs.
type MemoryStore struct {
	mu         sync.RWMutex
	users      map[string]domain.User
	byExternal map[string]string
	videos     map[string]domain.Video
	now        func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]domain.User),
		byExternal: make(map[string]string),
		videos:     make(map[string]domain.Video),
		now:        time.Now,
	}
}

// MemoryUsers adapts the store to domain.UserRepository. The user and video
// method sets share names, so each side gets its own view.
type MemoryUsers struct{ *MemoryStore }

// MemoryVideos adapts the store to domain.VideoRepository.
type MemoryVideos struct{ *MemoryStore }

// Users returns the user repository view.
func (s *MemoryStore) Users() MemoryUsers { return MemoryUsers{s} }

// Videos returns the video repository view.
func (s *MemoryStore) Videos() MemoryVideos { return MemoryVideos{s} }

// GetByID fetches a user.
func (u MemoryUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	user, ok := u.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &user, nil
}

// GetByExternalID fetches a user by identity-provider subject.
func (u MemoryUsers) GetByExternalID(_ context.Context, externalID string) (*domain.User, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	id, ok := u.byExternal[externalID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	user := u.users[id]
	return &user, nil
}

// Create inserts the user, or refreshes the profile of an existing external id.
func (u MemoryUsers) Create(_ context.Context, in *domain.User) (*domain.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	now := u.now()
	if id, ok := u.byExternal[in.ExternalID]; ok && in.ExternalID != "" {
		existing := u.users[id]
		existing.Email = in.Email
		existing.Name = in.Name
		existing.UpdatedAt = now
		u.users[id] = existing
		return &existing, nil
	}
	user := *in
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Credits < 0 {
		user.Credits = 0
	}
	user.CreatedAt = now
	user.UpdatedAt = now
	u.users[user.ID] = user
	if user.ExternalID != "" {
		u.byExternal[user.ExternalID] = user.ID
	}
	return &user, nil
}

// Debit subtracts amount under the store lock.
func (u MemoryUsers) Debit(_ context.Context, id string, amount int) (*domain.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	user, ok := u.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !user.HasCredits(amount) {
		return nil, domain.ErrInsufficientCredits
	}
	user.Credits -= amount
	user.UpdatedAt = u.now()
	u.users[id] = user
	return &user, nil
}

// Credit adds amount to the balance.
func (u MemoryUsers) Credit(_ context.Context, id string, amount int) (*domain.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	user, ok := u.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	user.Credits += amount
	user.UpdatedAt = u.now()
	u.users[id] = user
	return &user, nil
}

// Create stores a copy of the video. An empty ID is assigned here.
func (v MemoryVideos) Create(_ context.Context, video *domain.Video) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if video.ID == "" {
		video.ID = uuid.NewString()
	}
	if video.CreatedAt.IsZero() {
		video.CreatedAt = v.now()
	}
	video.UpdatedAt = video.CreatedAt
	v.videos[video.ID] = *video
	return nil
}

// GetByID returns a copy of the stored video.
func (v MemoryVideos) GetByID(_ context.Context, id string) (*domain.Video, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	video, ok := v.videos[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &video, nil
}

// Update applies the patch while the stored status still equals expect.
func (v MemoryVideos) Update(_ context.Context, id string, expect domain.VideoStatus, patch domain.VideoPatch) (*domain.Video, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	video, ok := v.videos[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if video.Status != expect {
		return nil, &domain.StateError{VideoID: id, Status: video.Status, Want: []domain.VideoStatus{expect}}
	}
	if err := patch.Check(expect); err != nil {
		return nil, err
	}
	patch.Apply(&video)
	video.UpdatedAt = v.now()
	v.videos[id] = video
	return &video, nil
}

// ListByOwner returns the newest videos of a user.
func (v MemoryVideos) ListByOwner(_ context.Context, ownerID string, limit int) ([]domain.Video, error) {
	items := v.filter(func(video domain.Video) bool { return video.OwnerID == ownerID })
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return truncate(items, limit), nil
}

// ListByStatus returns videos in the given status, least recently updated first.
func (v MemoryVideos) ListByStatus(_ context.Context, status domain.VideoStatus, limit int) ([]domain.Video, error) {
	items := v.filter(func(video domain.Video) bool { return video.Status == status })
	sort.Slice(items, func(i, j int) bool { return items[i].UpdatedAt.Before(items[j].UpdatedAt) })
	return truncate(items, limit), nil
}

func (v MemoryVideos) filter(keep func(domain.Video) bool) []domain.Video {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var items []domain.Video
	for _, video := range v.videos {
		if keep(video) {
			items = append(items, video)
		}
	}
	return items
}

func truncate(items []domain.Video, limit int) []domain.Video {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

var (
	_ domain.UserRepository  = MemoryUsers{}
	_ domain.VideoRepository = MemoryVideos{}
)
