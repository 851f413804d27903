package blocklist

import (
	"bufio"
	"io"
	"regexp"
	"strings"
)

var (
	// Quoted dotted quad inside a JSON export, e.g. {"host":"1.2.3.4"}.
	jsonIPPattern = regexp.MustCompile(`"(\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})"`)
	cidrPattern   = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}/\d{1,2}$`)
	hostPattern   = regexp.MustCompile(`^(\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})(?::\d+)?$`)
)

// Entries holds what a feed line or body contributed.
type Entries struct {
	IPs    []string
	Ranges []RangeMatcher
}

func (e *Entries) merge(o Entries) {
	e.IPs = append(e.IPs, o.IPs...)
	e.Ranges = append(e.Ranges, o.Ranges...)
}

// recognizer claims a trimmed line by returning true, appending whatever it
// found to e. A claimed line is never offered to later recognizers.
type recognizer func(line string, e *Entries) bool

// lineFormats is tried in order for every line.
var lineFormats = []recognizer{
	commentLine,
	embeddedJSON,
	cidrBlock,
	hostWithPort,
}

func commentLine(line string, _ *Entries) bool {
	return line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";")
}

func embeddedJSON(line string, e *Entries) bool {
	if !strings.HasPrefix(line, "{") && !strings.HasPrefix(line, "[") {
		return false
	}
	for _, m := range jsonIPPattern.FindAllStringSubmatch(line, -1) {
		e.IPs = append(e.IPs, m[1])
	}
	return true
}

func cidrBlock(line string, e *Entries) bool {
	if !cidrPattern.MatchString(line) {
		return false
	}
	if r, ok := ParseRange(line); ok {
		e.Ranges = append(e.Ranges, r)
	}
	return true
}

func hostWithPort(line string, e *Entries) bool {
	m := hostPattern.FindStringSubmatch(line)
	if m == nil {
		return false
	}
	e.IPs = append(e.IPs, m[1])
	return true
}

// ParseLine runs a single feed line through the recognizers. Unrecognized
// lines yield no entries.
func ParseLine(line string) Entries {
	var e Entries
	parseLine(strings.TrimSpace(line), &e)
	return e
}

func parseLine(line string, e *Entries) {
	for _, recognize := range lineFormats {
		if recognize(line, e) {
			return
		}
	}
}

// Parse reads a newline-delimited feed body. maxLine bounds a single line;
// exports that put a whole JSON array on one line need it large.
func Parse(r io.Reader, maxLine int) (Entries, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, min(64*1024, maxLine)), maxLine)

	var e Entries
	for scanner.Scan() {
		parseLine(strings.TrimSpace(scanner.Text()), &e)
	}
	return e, scanner.Err()
}
