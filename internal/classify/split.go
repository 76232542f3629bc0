package classify

import (
	"regexp"
	"strings"
)

// Piece is one clause cut from a policy document, before classification.
type Piece struct {
	Ordinal int
	Marker  string
	Text    string
}

// markerPattern matches enumeration markers at line starts: "1.", "4)",
// "2(a)", "3.1" and dotted forms with a trailing dot. Horizontal
// whitespace must follow on the same line, so a clause beginning with a
// bare number ("18 years of age...") is not a marker.
var markerPattern = regexp.MustCompile(`(?m)^[ \t]*(\d+(?:\.\d+)+\.?|\d+\([a-zA-Z0-9]+\)|\d+[.)])[ \t]+`)

// Split cuts policy text into clauses on enumeration markers. Text before
// the first marker, and text with no markers at all, is kept as an
// unmarked piece rather than dropped.
func Split(text string) []Piece {
	var pieces []Piece
	add := func(marker, body string) {
		body = strings.TrimSpace(body)
		if body == "" {
			return
		}
		pieces = append(pieces, Piece{Ordinal: len(pieces) + 1, Marker: marker, Text: body})
	}

	matches := markerPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		add("", text)
		return pieces
	}

	add("", text[:matches[0][0]])
	for i, m := range matches {
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		add(text[m[2]:m[3]], text[m[1]:end])
	}
	return pieces
}
