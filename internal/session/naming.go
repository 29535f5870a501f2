package session

import (
	"fmt"
	"strings"
)

// DeriveName proposes a display name for a session. Preference order: a
// company extracted from the job description's first line ("... at Acme"), a
// short first line used verbatim, the stored company name, and finally a
// numbered fallback based on how many sessions the user already has.
func DeriveName(s *Session, existingSessions int) string {
	if s.JobDescription != "" {
		firstLine := s.JobDescription
		if idx := strings.IndexByte(firstLine, '\n'); idx >= 0 {
			firstLine = firstLine[:idx]
		}
		firstLine = strings.TrimSpace(firstLine)

		lowered := strings.ToLower(firstLine)
		if idx := strings.LastIndex(lowered, "at "); idx >= 0 {
			company := strings.TrimSpace(firstLine[idx+len("at "):])
			if company != "" {
				return titleCase(company)
			}
		}
		if firstLine != "" && len(firstLine) < 100 {
			return firstLine
		}
	}

	if s.CompanyName != "" {
		return s.CompanyName
	}

	return fmt.Sprintf("Interview Session #%d", existingSessions)
}

func titleCase(value string) string {
	words := strings.Fields(strings.ToLower(value))
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}
