// ABOUTME: Extraction of in-band intel packets from assistant replies
// ABOUTME: Packets are stripped from the displayed text and returned as title/content pairs

package stream

import (
	"regexp"
	"strings"
)

// Packet is one captured piece of research emitted by the assistant.
type Packet struct {
	Title   string
	Content string
}

var intelPattern = regexp.MustCompile(`(?s)\[INTEL_PACKET:\s*([^|]*?)\s*\|\s*(.*?)\s*\|END_PACKET\]`)

// ExtractIntel returns text with every complete intel packet removed, and
// the packets in order of appearance. Packets with an empty title are
// dropped. Text without packets is returned unchanged.
func ExtractIntel(text string) (string, []Packet) {
	matches := intelPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return text, nil
	}

	var packets []Packet
	for _, m := range matches {
		title := strings.TrimSpace(m[1])
		if title == "" {
			continue
		}
		packets = append(packets, Packet{Title: title, Content: strings.TrimSpace(m[2])})
	}

	clean := intelPattern.ReplaceAllString(text, "")
	return strings.TrimRight(clean, " \t\r\n"), packets
}
