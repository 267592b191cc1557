package domain

import (
	"fmt"
	"time"
)

// VideoStatus enumerates the lifecycle states of a video generation attempt.
type VideoStatus string

const (
	VideoStatusPending    VideoStatus = "pending"
	VideoStatusScripted   VideoStatus = "scripted"
	VideoStatusVoiced     VideoStatus = "voiced"
	VideoStatusGenerating VideoStatus = "generating"
	VideoStatusCompleted  VideoStatus = "completed"
	VideoStatusFailed     VideoStatus = "failed"
)

// Terminal reports whether no pipeline stage moves the status further.
func (s VideoStatus) Terminal() bool {
	return s == VideoStatusCompleted || s == VideoStatusFailed
}

// Valid reports whether s is a known status.
func (s VideoStatus) Valid() bool {
	switch s {
	case VideoStatusPending, VideoStatusScripted, VideoStatusVoiced,
		VideoStatusGenerating, VideoStatusCompleted, VideoStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransition reports whether s -> to is an edge of the state machine.
// Stores reject patches that take any other edge (see VideoPatch.Check).
//
// generating -> scripted is the refunding timeout edge and failed -> voiced|scripted
// is only taken by an explicit reset.
func (s VideoStatus) CanTransition(to VideoStatus) bool {
	switch s {
	case VideoStatusPending:
		return to == VideoStatusScripted
	case VideoStatusScripted:
		return to == VideoStatusVoiced || to == VideoStatusGenerating
	case VideoStatusVoiced:
		return to == VideoStatusGenerating
	case VideoStatusGenerating:
		return to == VideoStatusCompleted || to == VideoStatusFailed || to == VideoStatusScripted
	case VideoStatusFailed:
		return to == VideoStatusVoiced || to == VideoStatusScripted
	default:
		return false
	}
}

// Content styles accepted by the script stage.
const (
	StyleTips          = "tips"
	StyleMotivation    = "motivation"
	StyleEducational   = "educational"
	StyleEntertainment = "entertainment"
	StyleEngaging      = "engaging"
)

// Duration buckets offered to users, in seconds.
const (
	DurationShort  = "5-15"
	DurationMedium = "15-20"
	DurationLong   = "20-30"
)

const (
	DefaultStyle          = StyleTips
	DefaultDurationBucket = DurationMedium
	DefaultAspectRatio    = "9:16"
	MaxTopicLength        = 500
)

// DurationSeconds maps a duration bucket to its advisory length.
func DurationSeconds(bucket string) int {
	switch bucket {
	case DurationShort:
		return 15
	case DurationLong:
		return 30
	default:
		return 20
	}
}

// Video is the persisted state of one video generation attempt.
type Video struct {
	ID              string
	OwnerID         string
	Topic           string
	Style           string
	DurationBucket  string
	AspectRatio     string
	Locale          string
	Script          string
	AudioURL        string
	VideoURL        string
	Status          VideoStatus
	Duration        int
	Attempt         int
	AssemblyRef     string
	GeneratingSince *time.Time
	FailureReason   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Snapshot returns the pollable view of the record.
func (v Video) Snapshot() Snapshot {
	return Snapshot{
		ID:            v.ID,
		Status:        v.Status,
		VideoURL:      v.VideoURL,
		Attempt:       v.Attempt,
		FailureReason: v.FailureReason,
		UpdatedAt:     v.UpdatedAt,
	}
}

// Snapshot is what pollers observe while a video is in flight.
type Snapshot struct {
	ID            string      `json:"id"`
	Status        VideoStatus `json:"status"`
	VideoURL      string      `json:"video_url,omitempty"`
	Attempt       int         `json:"attempt"`
	FailureReason string      `json:"failure_reason,omitempty"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// VideoPatch lists the fields a stage transition may write. Nil fields are
// left untouched.
type VideoPatch struct {
	Status          *VideoStatus
	Script          *string
	AudioURL        *string
	VideoURL        *string
	Attempt         *int
	AssemblyRef     *string
	GeneratingSince *time.Time
	ClearSince      bool
	FailureReason   *string
}

// Check rejects a status change that is not an edge out of from. A patch
// without a status, or one keeping the current status, always passes.
func (p VideoPatch) Check(from VideoStatus) error {
	if p.Status == nil || *p.Status == from || from.CanTransition(*p.Status) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s is not allowed", ErrInvalidState, from, *p.Status)
}

// Apply writes the patch onto v.
func (p VideoPatch) Apply(v *Video) {
	if p.Status != nil {
		v.Status = *p.Status
	}
	if p.Script != nil {
		v.Script = *p.Script
	}
	if p.AudioURL != nil {
		v.AudioURL = *p.AudioURL
	}
	if p.VideoURL != nil {
		v.VideoURL = *p.VideoURL
	}
	if p.Attempt != nil {
		v.Attempt = *p.Attempt
	}
	if p.AssemblyRef != nil {
		v.AssemblyRef = *p.AssemblyRef
	}
	if p.GeneratingSince != nil {
		t := *p.GeneratingSince
		v.GeneratingSince = &t
	}
	if p.ClearSince {
		v.GeneratingSince = nil
	}
	if p.FailureReason != nil {
		v.FailureReason = *p.FailureReason
	}
}
