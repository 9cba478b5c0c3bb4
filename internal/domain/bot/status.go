package bot

type Status string

const (
	StatusPending    Status = "pending"
	StatusJoining    Status = "joining"
	StatusRecording  Status = "recording"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusJoining, StatusFailed},
	StatusJoining:    {StatusRecording, StatusFailed},
	StatusRecording:  {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusJoining, StatusRecording, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// RecordingStatus is the status vocabulary of the system of record.
type RecordingStatus string

const (
	RecordingScheduled    RecordingStatus = "scheduled"
	RecordingJoining      RecordingStatus = "joining"
	RecordingRecording    RecordingStatus = "recording"
	RecordingProcessing   RecordingStatus = "processing"
	RecordingTranscribing RecordingStatus = "transcribing"
	RecordingSummarizing  RecordingStatus = "summarizing"
	RecordingCompleted    RecordingStatus = "completed"
	RecordingFailed       RecordingStatus = "failed"
)

// Phase is a reportable step of a job: its statuses plus the processing sub-steps.
type Phase int

const (
	PhasePending Phase = iota
	PhaseJoining
	PhaseRecording
	PhaseProcessing
	PhaseTranscribing
	PhaseSummarizing
	PhaseCompleted
	PhaseFailed

	numPhases
)

var recordingStatusByPhase = [...]RecordingStatus{
	PhasePending:      RecordingScheduled,
	PhaseJoining:      RecordingJoining,
	PhaseRecording:    RecordingRecording,
	PhaseProcessing:   RecordingProcessing,
	PhaseTranscribing: RecordingTranscribing,
	PhaseSummarizing:  RecordingSummarizing,
	PhaseCompleted:    RecordingCompleted,
	PhaseFailed:       RecordingFailed,
}

// Every phase needs an entry above; this fails to compile when the table and the enum drift apart.
var _ = [1]struct{}{}[len(recordingStatusByPhase)-int(numPhases)]

var phaseNames = [...]string{
	PhasePending:      "pending",
	PhaseJoining:      "joining",
	PhaseRecording:    "recording",
	PhaseProcessing:   "processing",
	PhaseTranscribing: "transcribing",
	PhaseSummarizing:  "summarizing",
	PhaseCompleted:    "completed",
	PhaseFailed:       "failed",
}

var _ = [1]struct{}{}[len(phaseNames)-int(numPhases)]

func (p Phase) RecordingStatus() RecordingStatus {
	if p < 0 || p >= numPhases {
		return RecordingProcessing
	}
	return recordingStatusByPhase[p]
}

func (p Phase) String() string {
	if p < 0 || p >= numPhases {
		return "unknown"
	}
	return phaseNames[p]
}

// PhaseOf returns the phase reported for a job status.
func PhaseOf(s Status) Phase {
	switch s {
	case StatusJoining:
		return PhaseJoining
	case StatusRecording:
		return PhaseRecording
	case StatusProcessing:
		return PhaseProcessing
	case StatusCompleted:
		return PhaseCompleted
	case StatusFailed:
		return PhaseFailed
	default:
		return PhasePending
	}
}
