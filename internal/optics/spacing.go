package optics

// ImageSpacing is the along-track distance between exposures that yields
// frontPct percent overlap for a footprint of the given along-track
// extent.
func ImageSpacing(footprintAlong, frontPct float64) (float64, error) {
	return overlapSpacing("footprintAlong", footprintAlong, "frontOverlapPct", frontPct)
}

// TrackSpacing is the distance between adjacent flight lines that yields
// sidePct percent overlap for a footprint of the given across-track
// extent.
func TrackSpacing(footprintAcross, sidePct float64) (float64, error) {
	return overlapSpacing("footprintAcross", footprintAcross, "sideOverlapPct", sidePct)
}

func overlapSpacing(extentName string, extent float64, pctName string, pct float64) (float64, error) {
	if err := requirePositive(extentName, extent); err != nil {
		return 0, err
	}
	if err := requirePercent(pctName, pct); err != nil {
		return 0, err
	}
	return extent * (1 - pct/100), nil
}
