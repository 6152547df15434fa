package media

// Timeline is the stitched, render-ready description of the output.
// Joins[i] connects Segments[i] to Segments[i+1].
type Timeline struct {
	ID       string         `json:"id"`
	Segments []Segment      `json:"segments"`
	Joins    []Transition   `json:"joins"`
	Duration float64        `json:"duration"`
	Settings OutputSettings `json:"settings"`
}
