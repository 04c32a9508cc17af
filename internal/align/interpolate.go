package align

import "math"

// InterpolatePositions builds a per-character reading-position estimate by
// linear interpolation across the span:
//
//	position[i] = round(start + (end-start) * i / max(textLen-1, 1))
//
// Reading-position coordinates are not actually linear in character count;
// the multi-second benchmark granularity absorbs the error. Callers must
// not assume interpolated positions are exact.
func InterpolatePositions(textLen, startPos, endPos int) []int {
	if textLen <= 0 {
		return nil
	}

	positions := make([]int, textLen)
	denom := textLen - 1
	if denom < 1 {
		denom = 1
	}
	span := float64(endPos - startPos)
	for i := 0; i < textLen; i++ {
		positions[i] = startPos + int(math.Round(span*float64(i)/float64(denom)))
	}
	return positions
}

// ProportionalEndPosition computes the effective end position reached by a
// truncated prefix of the extracted text, by the same linear-ratio rule.
// When synthesis input was cut at a sentence boundary, this value replaces
// the range's end position for interpolation; using the untruncated end
// would systematically overestimate how far the audio covers.
//
// For a proper prefix (processedLen < fullLen) the result is strictly less
// than endPos.
func ProportionalEndPosition(processedLen, fullLen, startPos, endPos int) int {
	if fullLen <= 0 || processedLen >= fullLen {
		return endPos
	}
	if processedLen <= 0 {
		return startPos
	}
	return startPos + (endPos-startPos)*processedLen/fullLen
}
