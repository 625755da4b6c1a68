package syncer

import "fmt"

// OutcomeKind classifies what happened to a single message during a run.
type OutcomeKind int

const (
	// OutcomeSkipped means the message was already processed in an
	// earlier run.
	OutcomeSkipped OutcomeKind = iota
	// OutcomeInvalid means the message did not qualify for publication.
	OutcomeInvalid
	// OutcomePublished means a forum topic was created.
	OutcomePublished
	// OutcomePublishFailed means the forum rejected or failed the
	// topic creation.
	OutcomePublishFailed
	// OutcomeUnexpectedFailure means processing failed outside the
	// publish call itself.
	OutcomeUnexpectedFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeInvalid:
		return "invalid"
	case OutcomePublished:
		return "published"
	case OutcomePublishFailed:
		return "publish_failed"
	case OutcomeUnexpectedFailure:
		return "unexpected_failure"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Outcome is the per-message result. TopicID is set only for
// OutcomePublished; Err only for the two failure kinds.
type Outcome struct {
	Kind    OutcomeKind
	TopicID int64
	Err     error
}

// Summary aggregates the outcomes of one run.
type Summary struct {
	Seen          int
	Skipped       int
	Published     int
	PublishFailed int
	Invalid       int
	Unexpected    int
}

func (s *Summary) add(o Outcome) {
	switch o.Kind {
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeInvalid:
		s.Invalid++
	case OutcomePublished:
		s.Published++
	case OutcomePublishFailed:
		s.PublishFailed++
	case OutcomeUnexpectedFailure:
		s.Unexpected++
	}
}
