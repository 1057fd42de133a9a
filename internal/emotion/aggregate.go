package emotion

// MatchEmotion is the emotion observed on a single matched gallery image.
type MatchEmotion struct {
	Emotion    string
	Confidence float64
}

// Aggregate combines per-match emotions into a single result. The dominant
// emotion is the one appearing most often across matches; its confidence is
// the mean confidence of those appearances. The distribution holds each
// emotion's share of the matches.
func Aggregate(matches []MatchEmotion) *Result {
	if len(matches) == 0 {
		return &Result{
			Dominant:     "neutral",
			Distribution: map[string]float64{},
			Confidence:   0,
		}
	}

	type tally struct {
		count     int
		totalConf float64
	}
	counts := make(map[string]*tally)
	for _, m := range matches {
		t, ok := counts[m.Emotion]
		if !ok {
			t = &tally{}
			counts[m.Emotion] = t
		}
		t.count++
		t.totalConf += m.Confidence
	}

	dominant := ""
	best := 0
	for emotion, t := range counts {
		if t.count > best || (t.count == best && emotion < dominant) {
			dominant = emotion
			best = t.count
		}
	}

	dist := make(map[string]float64, len(counts))
	for emotion, t := range counts {
		dist[emotion] = float64(t.count) / float64(len(matches))
	}

	return &Result{
		Dominant:     dominant,
		Distribution: dist,
		Confidence:   counts[dominant].totalConf / float64(best),
	}
}
