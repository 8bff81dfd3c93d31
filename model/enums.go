package model

type MemberStatus string

const (
	MemberStatusActive    MemberStatus = "active"
	MemberStatusInactive  MemberStatus = "inactive"
	MemberStatusSuspended MemberStatus = "suspended"
)

var AllMemberStatus = []MemberStatus{
	MemberStatusActive,
	MemberStatusInactive,
	MemberStatusSuspended,
}

func (e MemberStatus) IsValid() bool {
	switch e {
	case MemberStatusActive, MemberStatusInactive, MemberStatusSuspended:
		return true
	}
	return false
}

func (e MemberStatus) String() string {
	return string(e)
}

type InteractionAction string

const (
	InteractionActionLike     InteractionAction = "like"
	InteractionActionDislike  InteractionAction = "dislike"
	InteractionActionBookmark InteractionAction = "bookmark"
	InteractionActionShare    InteractionAction = "share"
	InteractionActionView     InteractionAction = "view"
	InteractionActionReport   InteractionAction = "report"
)

var AllInteractionAction = []InteractionAction{
	InteractionActionLike,
	InteractionActionDislike,
	InteractionActionBookmark,
	InteractionActionShare,
	InteractionActionView,
	InteractionActionReport,
}

func (e InteractionAction) IsValid() bool {
	switch e {
	case InteractionActionLike, InteractionActionDislike, InteractionActionBookmark,
		InteractionActionShare, InteractionActionView, InteractionActionReport:
		return true
	}
	return false
}

func (e InteractionAction) String() string {
	return string(e)
}

// Sentiment is the label derived from a story's average rating. It is
// computed on read, never stored.
type Sentiment string

const (
	SentimentExcellent Sentiment = "excellent"
	SentimentVeryGood  Sentiment = "very_good"
	SentimentGood      Sentiment = "good"
	SentimentAverage   Sentiment = "average"
	SentimentPoor      Sentiment = "poor"
	SentimentTerrible  Sentiment = "terrible"
	SentimentUnrated   Sentiment = "unrated"
)

func (e Sentiment) String() string {
	return string(e)
}

// ViewTrend classifies the direction of a story's daily view counts over an
// analytics period.
type ViewTrend string

const (
	ViewTrendRising  ViewTrend = "rising"
	ViewTrendFlat    ViewTrend = "flat"
	ViewTrendFalling ViewTrend = "falling"
)

func (e ViewTrend) String() string {
	return string(e)
}
