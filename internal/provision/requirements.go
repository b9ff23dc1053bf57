package provision

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"regexp"
	"strings"
)

// commentRE matches a comment the way pip does: a # at the start of the
// line or after any whitespace.
var commentRE = regexp.MustCompile(`(^|\s+)#.*$`)

// ReadRequirements reads a pip requirements manifest. Blank lines and
// comments are dropped.
func ReadRequirements(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrMissingManifest, path)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to open manifest: %w", err)
	}
	defer f.Close() //nolint:errcheck

	return ParseRequirements(f)
}

// ParseRequirements parses requirement lines from r.
func ParseRequirements(r io.Reader) ([]string, error) {
	var reqs []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(commentRE.ReplaceAllString(sc.Text(), ""))
		if line == "" {
			continue
		}
		reqs = append(reqs, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("unable to read manifest: %w", err)
	}
	return reqs, nil
}

// SplitFirstParty partitions reqs into the lines starting with prefix and
// the rest, keeping their order.
func SplitFirstParty(reqs []string, prefix string) (firstParty, other []string) {
	for _, r := range reqs {
		if strings.HasPrefix(r, prefix) {
			firstParty = append(firstParty, r)
		} else {
			other = append(other, r)
		}
	}
	return firstParty, other
}
