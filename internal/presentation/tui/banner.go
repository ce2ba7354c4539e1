package tui

import (
	"fmt"

	"github.com/muesli/termenv"
)

// PrintBanner outputs the ASCII art banner for the interactive chat.
func PrintBanner() {
	p := termenv.ColorProfile()
	// Warm gradient (amber to rose), matching the storefront vibe.
	s1 := termenv.String("   ___          _           _    ").Foreground(p.Color("#fbbf24"))
	s2 := termenv.String("  / _ \\ _ __ __| | ___  ___| | __").Foreground(p.Color("#fb923c"))
	s3 := termenv.String(" | | | | '__/ _` |/ _ \\/ __| |/ /").Foreground(p.Color("#f97316"))
	s4 := termenv.String(" | |_| | | | (_| |  __/\\__ \\   < ").Foreground(p.Color("#f87171"))
	s5 := termenv.String("  \\___/|_|  \\__,_|\\___||___/_|\\_\\").Foreground(p.Color("#fb7185"))

	fmt.Println()
	fmt.Println(s1)
	fmt.Println(s2)
	fmt.Println(s3)
	fmt.Println(s4)
	fmt.Println(s5)
	fmt.Println()
}
