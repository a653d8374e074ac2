// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package bot

import (
	"strings"
	"time"
)

// formatEntry renders a document entry: a timestamp header line, then one
// bullet per sentence of the summary. Bullet markers the model may have
// already added are stripped so that every line is prefixed identically.
func formatEntry(now time.Time, summary string) string {
	var sb strings.Builder
	sb.WriteString("--- " + now.Format("2006-01-02 15:04") + " ---\n\n")
	for _, s := range splitSentences(summary) {
		sb.WriteString("• " + s + "\n")
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// splitSentences splits text into sentence-sized chunks: on newlines, and
// after ".", "!" or "?" followed by a space. Leading bullet markers and
// surrounding whitespace are stripped; empty chunks are dropped.
func splitSentences(text string) []string {
	var (
		chunks []string
		cur    strings.Builder
	)
	flush := func() {
		s := strings.TrimSpace(cur.String())
		s = strings.TrimLeft(s, "•-* \t")
		cur.Reset()
		if s != "" {
			chunks = append(chunks, s)
		}
	}

	runes := []rune(text)
	for i, r := range runes {
		if r == '\n' {
			flush()
			continue
		}
		cur.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if i == len(runes)-1 || runes[i+1] == ' ' || runes[i+1] == '\n' {
				flush()
			}
		}
	}
	flush()

	return chunks
}
