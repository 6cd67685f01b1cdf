// Package format renders engine output as readable Spanish transcripts.
// Two layouts exist: a timestamped layout built from engine segments and
// a paragraph layout for segment-less results. Both carry a summary
// footer with character, word and duration counts.
package format

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/callops/call-transcriber/pkg/transcriber"
)

const bannerWidth = 60

var (
	spaceRe = regexp.MustCompile(`\s+`)

	// interrogative openers that mark a clause as a question
	questionRe = regexp.MustCompile(`(?i)(^|\PL)((?:por qué|para qué|quiénes|quién|cuáles|cuál|cuántos|cuántas|cuánta|cuánto|cuándo|cómo|dónde|qué)(?:$|\PL[^.!?]*))`)

	doubleQuestionRe = regexp.MustCompile(`\?\s*\?`)
	caseBoundaryRe   = regexp.MustCompile(`(\p{Ll})\s+(\p{Lu})`)
	spaceBeforePunct = regexp.MustCompile(`\s+([.,!?;:])`)
	punctThenSpace   = regexp.MustCompile(`([.,!?;:])\s*`)
	continuationRe   = regexp.MustCompile(`, (Y|O|Pero|Sin embargo|Además|Entonces|Después)([\s.,;:!?]|$)`)
	sentenceEndRe    = regexp.MustCompile(`[.!?]+\s*`)
	splitRe          = regexp.MustCompile(`([.!?]+)\s+`)
	punctThenLetter  = regexp.MustCompile(`([.,!?;:])(\p{L})`)
)

// Render formats a transcript for storage. Segments select the
// timestamped layout; without them the text is rendered as paragraphs.
// Any formatting panic degrades to the raw trimmed text so a transcript
// is never lost to a layout bug.
func Render(text string, segments []transcriber.Segment) (out string) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("panic", r).Error("Transcript formatting failed, keeping raw text")
			out = strings.TrimSpace(text)
		}
	}()

	if len(segments) > 0 {
		return Segmented(text, segments)
	}
	return Paragraphs(Clean(text))
}

// Clean normalizes raw engine text: collapsed whitespace, sentence
// capitalization, question marks after Spanish interrogative openers,
// punctuation spacing and a terminal period.
func Clean(text string) string {
	text = spaceRe.ReplaceAllString(strings.TrimSpace(text), " ")
	if text == "" {
		return text
	}

	text = upperFirst(text)

	text = questionRe.ReplaceAllString(text, "$1$2?")
	for doubleQuestionRe.MatchString(text) {
		text = doubleQuestionRe.ReplaceAllString(text, "?")
	}

	// a lowercase word followed by a capitalized one marks a lost
	// sentence boundary
	text = caseBoundaryRe.ReplaceAllString(text, "$1. $2")

	text = spaceBeforePunct.ReplaceAllString(text, "$1")
	text = punctThenSpace.ReplaceAllString(text, "$1 ")

	// connector words stay lowercase after a comma
	text = continuationRe.ReplaceAllStringFunc(text, strings.ToLower)

	text = capitalizeSentences(text)

	if text != "" && !strings.HasSuffix(strings.TrimRight(text, " "), ".") &&
		!strings.HasSuffix(strings.TrimRight(text, " "), "!") &&
		!strings.HasSuffix(strings.TrimRight(text, " "), "?") {
		text = strings.TrimRight(text, " ") + "."
	}

	text = spaceRe.ReplaceAllString(text, " ")
	text = spaceBeforePunct.ReplaceAllString(text, "$1")
	text = dedupePunct(text)
	text = punctThenLetter.ReplaceAllString(text, "$1 $2")

	return strings.TrimSpace(text)
}

// Segmented renders the timestamped layout. Consecutive segments are
// grouped into a block until the block exceeds 30 seconds, the gap to
// the next segment exceeds 2 seconds, or the input ends. The summary
// counts come from the raw text, not the cleaned blocks.
func Segmented(rawText string, segments []transcriber.Segment) string {
	banner := strings.Repeat("=", bannerWidth)

	lines := []string{
		banner,
		"TRANSCRIPCIÓN DE LLAMADA CON TIMESTAMPS",
		banner,
		"",
	}

	var (
		blockTexts []string
		blockStart float64
		started    bool
	)

	for i, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}

		if !started {
			blockStart = seg.Start
			started = true
		}
		blockTexts = append(blockTexts, text)
		accumulated := seg.End - blockStart

		gap := 0.0
		if i+1 < len(segments) {
			gap = segments[i+1].Start - seg.End
		}

		if accumulated > 30 || gap > 2 || i == len(segments)-1 {
			lines = append(lines,
				fmt.Sprintf("[%s - %s]", formatTime(blockStart), formatTime(seg.End)),
				Clean(strings.Join(blockTexts, " ")),
				"",
			)
			blockTexts = nil
			started = false
		}
	}

	raw := strings.TrimSpace(rawText)
	lines = append(lines,
		banner,
		"RESUMEN:",
		fmt.Sprintf("- Total de caracteres: %s", thousands(utf8.RuneCountInString(raw))),
		fmt.Sprintf("- Total de palabras: %s", thousands(len(strings.Fields(raw)))),
		fmt.Sprintf("- Duración total: %s", formatTime(segments[len(segments)-1].End)),
		fmt.Sprintf("- Segmentos procesados: %d", len(segments)),
		banner,
	)

	return strings.Join(lines, "\n")
}

// Paragraphs renders the segment-less layout: sentences are grouped into
// indented paragraphs broken at 300 characters, 50 words, or an
// exclamative or interrogative sentence once the paragraph has at least
// three sentences.
func Paragraphs(text string) string {
	banner := strings.Repeat("=", bannerWidth)

	lines := []string{
		banner,
		"TRANSCRIPCIÓN DE LLAMADA",
		banner,
		"",
	}

	sentences := splitSentences(text)

	var (
		paragraph []string
		charCount int
		wordCount int
	)

	flush := func() {
		if len(paragraph) == 0 {
			return
		}
		joined := strings.Join(paragraph, " ")
		if lines[len(lines)-1] == "" {
			joined = "    " + joined
		}
		lines = append(lines, joined, "")
		paragraph = nil
		charCount = 0
		wordCount = 0
	}

	for _, sentence := range sentences {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}

		paragraph = append(paragraph, sentence)
		charCount += utf8.RuneCountInString(sentence)
		wordCount += len(strings.Fields(sentence))

		emphatic := strings.HasSuffix(sentence, "!") || strings.HasSuffix(sentence, "?")
		if charCount > 300 || wordCount > 50 || (len(paragraph) > 2 && emphatic) {
			flush()
		}
	}
	flush()

	lines = append(lines,
		banner,
		"RESUMEN:",
		fmt.Sprintf("- Total de caracteres: %s", thousands(utf8.RuneCountInString(text))),
		fmt.Sprintf("- Total de palabras: %s", thousands(len(strings.Fields(text)))),
		fmt.Sprintf("- Oraciones aproximadas: %d", len(sentences)),
		banner,
	)

	return strings.Join(lines, "\n")
}

// splitSentences breaks text after terminal punctuation followed by
// whitespace, keeping the punctuation with its sentence.
func splitSentences(text string) []string {
	var out []string
	last := 0
	for _, loc := range splitRe.FindAllStringSubmatchIndex(text, -1) {
		out = append(out, text[last:loc[3]])
		last = loc[1]
	}
	if rest := strings.TrimSpace(text[last:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

func capitalizeSentences(text string) string {
	var b strings.Builder
	last := 0
	for _, loc := range sentenceEndRe.FindAllStringIndex(text, -1) {
		if sentence := strings.TrimSpace(text[last:loc[0]]); sentence != "" {
			b.WriteString(upperFirst(sentence))
			b.WriteString(text[loc[0]:loc[1]])
		}
		last = loc[1]
	}
	if rest := strings.TrimSpace(text[last:]); rest != "" {
		b.WriteString(upperFirst(rest))
	}
	return b.String()
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// dedupePunct collapses runs of the same punctuation mark.
func dedupePunct(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		if r == prev && strings.ContainsRune(".,!?;:", r) {
			continue
		}
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}

func formatTime(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

func thousands(n int) string {
	s := strconv.Itoa(n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
