package dump

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrNoDumpHeader is returned when no line in the input matches the
// dump-header pattern; the caller must not update any Server State.
var ErrNoDumpHeader = errors.New("dump: no dump-date header found")

var (
	headerPattern = regexp.MustCompile(`Flexible License Manager status on.+?(\d+/\d+/\d+\s+\d+:\d+)`)

	// userDataPattern captures, in order: user id, user machine, serving
	// host, vendor token, login date (M/D H:MM).
	userDataPattern = regexp.MustCompile(`^\s+([\w.-]+)\s+([\w-]+)\s+([\w-]+?)\s+([\w -]*)\(.+\)\s+\(.+\),\s*start\s+\w+\s+(\d+/\d+\s+\d+:\d+)\s*$`)

	featureLinePattern = regexp.MustCompile(`^\s*Users of\s`)
)

// totalPattern builds the feature-totals matcher for a specific feature
// name, per spec §4.2 rule 2.
func totalPattern(feature string) *regexp.Regexp {
	return regexp.MustCompile(`Users of\s+` + regexp.QuoteMeta(feature) + `.*?Total of (\d+) licenses issued.*?Total of (\d+) licenses in use`)
}

// Parse implements the dump parser contract: scan for the dump header,
// then the feature-totals line, then usage lines, stopping at the next
// "Users of ..." section. Returns ErrNoDumpHeader if no header line is
// found anywhere in lines.
func Parse(lines []string, feature string) (*Record, error) {
	total := totalPattern(feature)

	rec := &Record{}
	relevant := make([]int, 0, 8)

	headerFound := false
	inFeature := false

	for i, line := range lines {
		if line == "" {
			continue
		}

		if !headerFound {
			if m := headerPattern.FindStringSubmatch(line); m != nil {
				ts, err := time.Parse("1/2/2006 15:04", normalizeDateSpacing(m[1]))
				if err != nil {
					continue
				}
				rec.Timestamp = ts
				headerFound = true
				relevant = append(relevant, i)
			}
			continue
		}

		if !inFeature {
			if m := total.FindStringSubmatch(line); m != nil {
				issued, _ := strconv.Atoi(m[1])
				inUse, _ := strconv.Atoi(m[2])
				rec.Issued = issued
				rec.InUse = inUse
				inFeature = true
				relevant = append(relevant, i)
			}
			continue
		}

		if featureLinePattern.MatchString(line) {
			// a new "Users of ..." section starts: stop scanning.
			break
		}

		if m := userDataPattern.FindStringSubmatch(line); m != nil {
			login, err := time.ParseInLocation("2006/1/2 15:04", strconv.Itoa(rec.Timestamp.Year())+"/"+normalizeDateSpacing(m[5]), rec.Timestamp.Location())
			if err != nil {
				// unparseable usage line: skip silently, per spec.
				continue
			}
			rec.Lines = append(rec.Lines, UsageLine{
				UserID:      m[1],
				UserMachine: m[2],
				ServingHost: m[3],
				VendorToken: strings.TrimSpace(m[4]),
				LoginTime:   login,
			})
			relevant = append(relevant, i)
		}
	}

	if !headerFound {
		return nil, ErrNoDumpHeader
	}

	rec.RelevantLines = relevant
	return rec, nil
}

// normalizeDateSpacing collapses runs of whitespace between the date and
// time components down to a single space, so "9/3/2013  09:52" and
// "9/3/2013 09:52" both parse.
func normalizeDateSpacing(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
