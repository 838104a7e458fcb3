package features

import "RoundPull/internal/domain/models"

// RunLength returns the last label and how many consecutive trailing records share it.
// It returns ("", 0) for an empty sequence.
func RunLength(labels []models.Label) (models.Label, int) {
    if len(labels) == 0 {
        return "", 0
    }
    last := labels[len(labels)-1]
    n := 0
    for i := len(labels) - 1; i >= 0 && labels[i] == last; i-- {
        n++
    }
    return last, n
}

// FlipRate computes the fraction of adjacent label changes over the trailing window.
// Shorter histories use what is available. Fewer than two labels yields 0.
func FlipRate(labels []models.Label, window int) float64 {
    if window <= 1 || len(labels) < 2 {
        return 0
    }
    start := len(labels) - window
    if start < 0 {
        start = 0
    }
    tail := labels[start:]
    flips := 0
    for i := 1; i < len(tail); i++ {
        if tail[i] != tail[i-1] {
            flips++
        }
    }
    return float64(flips) / float64(len(tail)-1)
}

// Alternating reports whether the last n labels strictly alternate (1-1 oscillation).
func Alternating(labels []models.Label, n int) bool {
    if n < 2 || len(labels) < n {
        return false
    }
    tail := labels[len(labels)-n:]
    for i := 1; i < len(tail); i++ {
        if tail[i] == tail[i-1] {
            return false
        }
    }
    return true
}

// DoubleAlternating reports whether the last n labels form two-wide blocks that alternate
// (2-2 oscillation). n must be even.
func DoubleAlternating(labels []models.Label, n int) bool {
    if n < 4 || n%2 != 0 || len(labels) < n {
        return false
    }
    tail := labels[len(labels)-n:]
    for i := 0; i < n; i += 2 {
        if tail[i] != tail[i+1] {
            return false
        }
        if i > 0 && tail[i] == tail[i-2] {
            return false
        }
    }
    return true
}

// Suffix returns the last k labels, or nil if fewer exist.
func Suffix(labels []models.Label, k int) []models.Label {
    if k <= 0 || len(labels) < k {
        return nil
    }
    return labels[len(labels)-k:]
}
