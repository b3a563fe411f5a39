package model

import "time"

// HistogramBuckets is the number of fixed-width score buckets in a cohort histogram.
const HistogramBuckets = 10

// DistinctScore groups students sharing the exact same points.
type DistinctScore struct {
	Points     float64 `json:"points"`
	Count      int     `json:"count"`
	Percentile float64 `json:"percentile"`
}

// HistogramBucket counts students whose score falls in [Lower, Upper).
// The last bucket is closed on the right.
type HistogramBucket struct {
	Lower   float64 `json:"lower"`
	Upper   float64 `json:"upper"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// CohortStatistics is the score distribution of an exam.
type CohortStatistics struct {
	Participants int                               `json:"participants"`
	Mean         float64                           `json:"mean"`
	Sigma        float64                           `json:"sigma"`
	Distinct     []DistinctScore                   `json:"distinct"`
	Histogram    [HistogramBuckets]HistogramBucket `json:"histogram"`

	// Students is the input list with z-scores filled in, in input order.
	Students []ScoredStudent `json:"-"`
}

// DifficultyBand is the difficulty axis of the item matrix.
type DifficultyBand int

const (
	Hard DifficultyBand = iota
	Medium
	Easy
)

func (d DifficultyBand) String() string {
	switch d {
	case Hard:
		return "hard"
	case Medium:
		return "medium"
	default:
		return "easy"
	}
}

// DiscriminationBand is the discrimination axis of the item matrix.
type DiscriminationBand int

const (
	Poor DiscriminationBand = iota
	Fair
	Good
)

func (d DiscriminationBand) String() string {
	switch d {
	case Poor:
		return "poor"
	case Fair:
		return "fair"
	default:
		return "good"
	}
}

// ItemClass locates an item in the 3x3 difficulty/discrimination matrix.
type ItemClass struct {
	Difficulty     DifficultyBand     `json:"difficulty"`
	Discrimination DiscriminationBand `json:"discrimination"`
}

// ItemStatistic is the analysis of a single question.
type ItemStatistic struct {
	Index          int                 `json:"index"`
	Respondents    int                 `json:"respondents"`
	Correct        int                 `json:"correct"`
	Frequency      [NumOptions]float64 `json:"frequency"`
	Lower          [NumOptions]float64 `json:"lower"`
	Upper          [NumOptions]float64 `json:"upper"`
	Difficulty     float64             `json:"difficulty"`
	PointBiserial  float64             `json:"rpb"`
	AlphaIfDeleted float64             `json:"alpha"`
	Class          ItemClass           `json:"class"`
}

// ItemMatrix lists item indexes per [difficulty][discrimination] cell.
type ItemMatrix [3][3][]int

// KeyAnalysis is the item analysis of one answer key.
type KeyAnalysis struct {
	ID                string          `json:"id"`
	Questions         []Question      `json:"questions"`
	Students          int             `json:"students"`
	Reliability       float64         `json:"reliability"`
	DeletedItemsAlpha []float64       `json:"deletedItemsAlpha"`
	CountOfResponses  []int           `json:"countOfResponses"`
	Items             []ItemStatistic `json:"items"`
	Matrix            ItemMatrix      `json:"matrix"`
}

// Report is the payload served for an exam report.
type Report struct {
	ExamID         int64              `json:"examId"`
	CourseID       int64              `json:"courseId"`
	Name           string             `json:"name"`
	Scoring        ScoringMode        `json:"scoring"`
	TotalQuestions int                `json:"totalQuestions"`
	MaxScore       float64            `json:"maxScore"`
	Students       []ScoredStudent    `json:"students"`
	NoAnswerKey    []ScoredStudent    `json:"noAnswerKey"`
	AnswerKeys     []KeyAnalysis      `json:"answerKeys"`
	Percentiles    map[string]float64 `json:"percentiles"`
	Cohort         CohortStatistics   `json:"cohort"`
	GeneratedAt    time.Time          `json:"generatedAt"`
}

// CorrectionKind names what a correction changed.
type CorrectionKind string

const (
	CorrectionAnswer   CorrectionKind = "answer.corrected"
	CorrectionVerify   CorrectionKind = "response.verified"
	CorrectionReassign CorrectionKind = "key.reassigned"
)

// CorrectionEvent is published after a correction has been persisted.
type CorrectionEvent struct {
	Kind       CorrectionKind `json:"kind"`
	ExamID     int64          `json:"examId"`
	ResponseID string         `json:"responseId"`
	KeyID      string         `json:"keyId,omitempty"`
	Index      int            `json:"index"`
	Points     float64        `json:"points"`
	Score      float64        `json:"score"`
	By         string         `json:"by,omitempty"`
	At         time.Time      `json:"at"`
}

// VerifyRequest assigns an unverified response to a key, optionally replacing
// its answers with the grader's reading of the sheet.
type VerifyRequest struct {
	ResponseID string   `json:"responseId"`
	KeyID      string   `json:"keyId"`
	Answers    []string `json:"answers,omitempty"`
}

// AnswerCorrection replaces a single scanned answer.
type AnswerCorrection struct {
	Answer string `json:"answer"`
}
