package deckcode

import (
	"fmt"
	"strings"
	"testing"
)

func BenchmarkDecode(b *testing.B) {
	code, err := Encode(druidDeck())
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	for b.Loop() {
		if _, err := Decode(code); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEncode(b *testing.B) {
	deck := druidDeck()

	b.ReportAllocs()
	for b.Loop() {
		if _, err := Encode(deck); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkFindCodes scans pages repeating the same code, as deck listing
// pages do for copy buttons.
func BenchmarkFindCodes(b *testing.B) {
	code, err := Encode(druidDeck())
	if err != nil {
		b.Fatal(err)
	}
	for _, repeats := range []int{1, 50, 500} {
		var page strings.Builder
		for range repeats {
			page.WriteString(`<div class="deck"><span data-deck-code="`)
			page.WriteString(code)
			page.WriteString(`">Copy</span></div>`)
		}
		text := page.String()

		b.Run(fmt.Sprintf("%d_repeats", repeats), func(b *testing.B) {
			b.ReportAllocs()
			for b.Loop() {
				if got := FindCodes(text); len(got) != 1 {
					b.Fatalf("found %d codes, want 1", len(got))
				}
			}
		})
	}
}
