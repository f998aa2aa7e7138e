package analysis

// Result is the assembled analysis record for one audio clip.
// Numeric fields are rounded to one decimal where noted; Artist and
// Title are nil when the container carried no tags.
type Result struct {
	BPM               float64 `json:"bpm"`
	Key               string  `json:"key"`
	KeyConfidence     float64 `json:"keyConfidence"`
	Loudness          float64 `json:"loudness"`
	Duration          float64 `json:"duration"`
	DurationFormatted string  `json:"duration_formatted"`
	Artist            *string `json:"artist"`
	Title             *string `json:"title"`
}
