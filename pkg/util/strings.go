package util

import "strings"

// SplitCSV splits a comma separated list, dropping blanks. Used for env list overrides.
func SplitCSV(s string) []string {
    parts := strings.Split(s, ",")
    out := make([]string, 0, len(parts))
    for _, p := range parts {
        if p = strings.TrimSpace(p); p != "" {
            out = append(out, p)
        }
    }
    return out
}
