package features

import (
    "testing"

    "RoundPull/internal/domain/models"
)

func seq(s string) []models.Label {
    out := make([]models.Label, 0, len(s))
    for _, c := range s {
        if c == 'H' {
            out = append(out, models.High)
        } else {
            out = append(out, models.Low)
        }
    }
    return out
}

func TestRunLength(t *testing.T) {
    cases := []struct {
        in    string
        label models.Label
        n     int
    }{
        {"", "", 0},
        {"L", models.Low, 1},
        {"LHHH", models.High, 3},
        {"HHLLLLLL", models.Low, 6},
    }
    for _, c := range cases {
        label, n := RunLength(seq(c.in))
        if label != c.label || n != c.n {
            t.Fatalf("RunLength(%q) = %s,%d want %s,%d", c.in, label, n, c.label, c.n)
        }
    }
}

func TestFlipRate(t *testing.T) {
    if got := FlipRate(seq("HLHLH"), 15); got != 1 {
        t.Fatalf("alternating flip rate = %v", got)
    }
    if got := FlipRate(seq("HHHH"), 15); got != 0 {
        t.Fatalf("constant flip rate = %v", got)
    }
    // only the trailing window counts
    if got := FlipRate(seq("HLHLHLHHHHH"), 5); got != 0 {
        t.Fatalf("windowed flip rate = %v", got)
    }
    if got := FlipRate(seq("H"), 15); got != 0 {
        t.Fatalf("single label flip rate = %v", got)
    }
}

func TestAlternating(t *testing.T) {
    if !Alternating(seq("HHLHLHLHLH"), 8) {
        t.Fatalf("expected alternating tail")
    }
    if Alternating(seq("LHLHLHHL"), 8) {
        t.Fatalf("unexpected alternating")
    }
    if Alternating(seq("LHL"), 8) {
        t.Fatalf("short history must not alternate")
    }
}

func TestDoubleAlternating(t *testing.T) {
    if !DoubleAlternating(seq("HHLLHHLL"), 8) {
        t.Fatalf("expected 2-2 blocks")
    }
    if DoubleAlternating(seq("HHHHLLLL"), 8) {
        t.Fatalf("adjacent equal pairs are not 2-2")
    }
    if DoubleAlternating(seq("HLLHHLLH"), 8) {
        t.Fatalf("misaligned blocks are not 2-2")
    }
}
