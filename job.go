package radioedit

import (
	"time"

	"github.com/yirzhou/radioedit/audio"
)

// Status represents the state of a job in its lifecycle.
type Status string

const (
	StatusQueued     Status = "queued"     // Waiting in the queue for a free worker.
	StatusProcessing Status = "processing" // A worker owns the job and is running the pipeline.
	StatusDone       Status = "done"       // The pipeline produced an output file.
	StatusError      Status = "error"      // The pipeline failed; ErrorMessage says why.
	StatusCanceled   Status = "canceled"   // Canceled before or during processing.
)

// Terminal reports whether no further transition can leave s.
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusError, StatusCanceled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether from -> to is an edge of the job state machine.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusQueued:
		return to == StatusProcessing || to == StatusCanceled
	case StatusProcessing:
		return to == StatusDone || to == StatusError || to == StatusCanceled
	default:
		return false
	}
}

// RandomJingle selects a jingle slot uniformly from the library.
const RandomJingle = audio.RandomJingle

// JingleSelection names the intro and outro clips. Each slot holds either a
// jingle file name or RandomJingle.
type JingleSelection struct {
	Intro string `json:"intro"`
	Outro string `json:"outro"`
}

// RandomJingles draws intro and outro independently from the library.
func RandomJingles() JingleSelection {
	return JingleSelection{Intro: RandomJingle, Outro: RandomJingle}
}

// NamedJingles pins both slots to specific clips. An empty outro reuses the intro.
func NamedJingles(intro, outro string) JingleSelection {
	if outro == "" {
		outro = intro
	}
	return JingleSelection{Intro: intro, Outro: outro}
}

// Params are the mastering parameters of a job. They never change after
// the job is created.
type Params struct {
	SilenceThresholdDBFS float64         `json:"silence_threshold_dbfs"`
	TargetLUFS           float64         `json:"target_lufs"`
	Jingles              JingleSelection `json:"jingles"`
}

// DefaultParams mirrors the settings radio shows were mastered with by hand.
func DefaultParams() Params {
	return Params{
		SilenceThresholdDBFS: -50,
		TargetLUFS:           -12,
		Jingles:              RandomJingles(),
	}
}

// Job is the record kept for every submitted file.
type Job struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Params   Params `json:"params"`

	Status          Status `json:"status"`
	OutputFilename  string `json:"output_filename,omitempty"` // set only when Status is done
	ErrorMessage    string `json:"error_message,omitempty"`   // set only when Status is error
	CancelRequested bool   `json:"cancel_requested"`

	// Seq orders jobs by creation.
	Seq        uint64     `json:"seq"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// JobView is the read-only projection handed to status pollers.
type JobView struct {
	ID             string `json:"id"`
	Filename       string `json:"filename"`
	Status         Status `json:"status"`
	OutputFilename string `json:"output_filename,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`
}

// View projects the job for listing.
func (j Job) View() JobView {
	return JobView{
		ID:             j.ID,
		Filename:       j.Filename,
		Status:         j.Status,
		OutputFilename: j.OutputFilename,
		ErrorMessage:   j.ErrorMessage,
	}
}
