package backup

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// sanitizerState is the two-state machine position
type sanitizerState int

const (
	// statePassthrough applies cleaning rules line by line
	statePassthrough sanitizerState = iota
	// stateInPayload passes bulk-copy payload bytes through untouched
	stateInPayload
)

// Sanitizer rewrites a finished dump to be client-tool-free and
// namespace-portable. It scans the text as an ordered sequence of lines and
// distinguishes literal COPY payload from surrounding statements: payload
// bytes are never split, reordered, or rewritten.
//
// When cleaning is disabled the pass is a no-op except for payload-boundary
// bookkeeping, which still validates structural well-formedness.
type Sanitizer struct {
	sourceSchema string
	clean        bool
	prefixRe     *regexp.Regexp
}

// copyHeaderRe recognizes a bulk-copy-from-input header: COPY, an optionally
// namespace-qualified (and optionally quoted) table name, an optional column
// list, FROM stdin, optional options, statement delimiter.
var copyHeaderRe = regexp.MustCompile(`(?i)^COPY\s+(?:(?:"[^"]*"|[A-Za-z_][A-Za-z0-9_$]*)\.)?(?:"[^"]*"|[A-Za-z_][A-Za-z0-9_$]*)\s*(?:\([^)]*\))?\s+FROM\s+stdin(?:\s+WITH\s*\([^)]*\))?\s*;\s*$`)

// terminatorRe matches the payload terminator token on a line of its own
var terminatorRe = regexp.MustCompile(`^\\\.\s*$`)

// metaDirectiveRe matches interactive-client meta-directives (\connect, \d,
// \restrict, \unrestrict and the rest); these are not valid SQL and must not
// appear in a portable dump. The terminator token is excluded: it starts
// with a dot, not a letter.
var metaDirectiveRe = regexp.MustCompile(`^\s*\\[A-Za-z]`)

// sessionSettingRe matches session-configuration statements on the fixed
// blocklist; they bind a dump to the session that produced it.
var sessionSettingRe = regexp.MustCompile(`(?i)^SET\s+(search_path|default_tablespace|default_table_access_method|default_with_oids|row_security|check_function_bodies|xmloption|client_min_messages|standard_conforming_strings|transaction_timeout|idle_in_transaction_session_timeout|client_encoding)\b`)

// setConfigRe matches the function-call spelling of a search_path change
var setConfigRe = regexp.MustCompile(`(?i)^SELECT\s+pg_catalog\.set_config\('search_path'`)

// NewSanitizer creates a sanitizer for one pass. sourceSchema is the
// namespace whose qualification prefix is stripped; it is escaped for
// pattern metacharacters, so a namespace like "as.59" never partially
// matches unrelated identifiers.
func NewSanitizer(sourceSchema string, clean bool) *Sanitizer {
	escaped := regexp.QuoteMeta(sourceSchema)

	// The prefix is matched only at an identifier boundary on both sides:
	// the preceding character must not continue an identifier (or a longer
	// qualification chain), and the prefix must be followed by a complete
	// identifier, quoted or not.
	prefixRe := regexp.MustCompile(
		`(^|[^A-Za-z0-9_".$])(?:"` + escaped + `"|` + escaped + `)\.("[^"]+"|[A-Za-z_][A-Za-z0-9_$]*)`)

	return &Sanitizer{
		sourceSchema: sourceSchema,
		clean:        clean,
		prefixRe:     prefixRe,
	}
}

// Sanitize runs one pass from r to w. A payload opened without a matching
// terminator before end-of-input is a structural defect and fails with a
// malformed-dump error; no half-cleaned output is ever passed off as good.
func (s *Sanitizer) Sanitize(r io.Reader, w io.Writer) error {
	reader := bufio.NewReader(r)
	state := statePassthrough
	lineNo := 0
	payloadStart := 0

	for {
		raw, readErr := reader.ReadString('\n')
		if raw == "" && readErr != nil {
			break
		}
		lineNo++

		if state == stateInPayload {
			// Payload bytes pass through with zero transformation.
			if terminatorRe.MatchString(strings.TrimSuffix(raw, "\n")) {
				state = statePassthrough
			}
			if _, err := io.WriteString(w, raw); err != nil {
				return err
			}
			if readErr != nil {
				break
			}
			continue
		}

		line, hadNewline := strings.CutSuffix(raw, "\n")

		keep := true
		switch {
		case terminatorRe.MatchString(line):
			// A bare terminator outside an open payload is a client artifact;
			// dropping it is a defensive no-op in well-formed input.
			if s.clean {
				keep = false
			}
		case metaDirectiveRe.MatchString(line):
			if s.clean {
				keep = false
			}
		case sessionSettingRe.MatchString(line) || setConfigRe.MatchString(line):
			if s.clean {
				keep = false
			}
		default:
			if s.clean {
				line = s.stripNamespacePrefix(line)
			}
		}

		if keep {
			if copyHeaderRe.MatchString(line) {
				state = stateInPayload
				payloadStart = lineNo
			}
			out := line
			if hadNewline {
				out += "\n"
			}
			if _, err := io.WriteString(w, out); err != nil {
				return err
			}
		}

		if readErr != nil {
			break
		}
	}

	if state == stateInPayload {
		return NewMalformedDumpError(
			fmt.Sprintf("payload opened at line %d has no terminator before end of input", payloadStart), nil)
	}

	return nil
}

// stripNamespacePrefix removes every source-namespace qualification from a
// statement line. Replacement loops until the line is stable so chained
// qualifications resolve in a single pass, which also makes sanitizing
// idempotent.
func (s *Sanitizer) stripNamespacePrefix(line string) string {
	for {
		replaced := s.prefixRe.ReplaceAllString(line, "$1$2")
		if replaced == line {
			return replaced
		}
		line = replaced
	}
}

// SanitizeFile sanitizes inputPath into outputPath. The output file is only
// created complete; on error it is removed.
func (s *Sanitizer) SanitizeFile(inputPath, outputPath string) error {
	in, err := os.Open(inputPath)
	if err != nil {
		return NewMalformedDumpError("failed to open dump for sanitizing", err)
	}
	defer in.Close()

	out, err := os.Create(outputPath)
	if err != nil {
		return NewMalformedDumpError("failed to create sanitized output", err)
	}

	buffered := bufio.NewWriter(out)
	if err := s.Sanitize(in, buffered); err != nil {
		out.Close()
		os.Remove(outputPath)
		return err
	}
	if err := buffered.Flush(); err != nil {
		out.Close()
		os.Remove(outputPath)
		return err
	}
	return out.Close()
}
