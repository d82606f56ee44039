package structure

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/siherrmann/filingqa/model"
)

// MinSectionLength is the trimmed length in characters a section body
// has to exceed.
const MinSectionLength = 100

var (
	sectionHeaderPattern = regexp.MustCompile(`(?im)^ITEM\s+(\d+[A-Z]?)[.:\-\s]+(.+?)$`)

	separatorSpacing = regexp.MustCompile(`\s*([:.\-])\s+`)
	separatorToColon = regexp.MustCompile(`[.\-]\s`)
	whitespace       = regexp.MustCompile(`\s+`)
	itemPrefix       = regexp.MustCompile(`(?i)^item\s+`)

	bareItemNumber = regexp.MustCompile(`^(\d+[A-Za-z]?)$`)
	itemKey        = regexp.MustCompile(`(?i)^item\s+(\d+[a-z]?)\b`)
)

// ExtractSections splits filing text at "Item N" headers. A section body
// runs from the end of its header line to the next header. Bodies of at
// most MinSectionLength characters are dropped. Text without any header yields no
// sections.
func ExtractSections(text string) []model.Section {
	matches := sectionHeaderPattern.FindAllStringSubmatchIndex(text, -1)

	var sections []model.Section
	for i, m := range matches {
		id := text[m[2]:m[3]]
		title := strings.TrimSpace(text[m[4]:m[5]])

		start := m[1]
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}

		body := strings.TrimSpace(text[start:end])
		if utf8.RuneCountInString(body) <= MinSectionLength {
			continue
		}

		name := NormalizeSectionName("Item " + id + " : " + title)
		sections = append(sections, model.Section{
			Name:       name,
			Normalized: name,
			Key:        SectionKey(name),
			Text:       body,
			Start:      start,
			End:        end,
		})
	}

	return sections
}

// NormalizeSectionName brings a section heading into the form
// "Item 1A: Risk Factors". Applying it twice gives the same result.
func NormalizeSectionName(name string) string {
	for i := 0; i < 5; i++ {
		next := normalizeOnce(name)
		if next == name {
			break
		}
		name = next
	}
	return name
}

func normalizeOnce(name string) string {
	name = separatorSpacing.ReplaceAllString(name, "$1 ")
	name = separatorToColon.ReplaceAllString(name, ": ")
	name = whitespace.ReplaceAllString(name, " ")
	name = itemPrefix.ReplaceAllString(name, "Item ")
	return strings.TrimSpace(name)
}

// SectionKey returns the short key used to store and filter sections,
// e.g. "Item 7" for "Item 7: Management's Discussion". A bare "7" is
// expanded to "Item 7". Other names are cut at the first ':' or '-'.
func SectionKey(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	if m := bareItemNumber.FindStringSubmatch(name); m != nil {
		return "Item " + strings.ToUpper(m[1])
	}
	if m := itemKey.FindStringSubmatch(name); m != nil {
		return "Item " + strings.ToUpper(m[1])
	}

	if idx := strings.IndexAny(name, ":-"); idx > 0 {
		return strings.TrimSpace(name[:idx])
	}
	return name
}
