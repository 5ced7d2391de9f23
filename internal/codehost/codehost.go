// Package codehost answers whether a pull request referenced in an audit
// transcript has been merged.
package codehost

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// ErrNoReference is returned by ParseReference when text names no PR.
var ErrNoReference = errors.New("no pull request reference found")

// PRRef identifies a pull request on the code host.
type PRRef struct {
	Owner  string
	Repo   string
	Number int
}

// Slug returns "owner/repo".
func (r PRRef) Slug() string {
	return r.Owner + "/" + r.Repo
}

func (r PRRef) String() string {
	return fmt.Sprintf("%s#%d", r.Slug(), r.Number)
}

// CodeHost reports the merge state of a pull request.
type CodeHost interface {
	IsMerged(ctx context.Context, ref PRRef) (bool, error)
}

var (
	prURLPattern   = regexp.MustCompile(`https?://[A-Za-z0-9.-]+(?::\d+)?/([A-Za-z0-9_.-]+)/([A-Za-z0-9_.-]+)/pull/(\d+)`)
	prShortPattern = regexp.MustCompile(`(?:^|[\s(\[])([A-Za-z0-9_.-]+)/([A-Za-z0-9_.-]+)#(\d+)\b`)
)

// ParseReference returns the first pull request referenced in text. Full
// URLs on any host (github.com or an Enterprise server) are preferred over
// owner/repo#N shorthand.
func ParseReference(text string) (PRRef, error) {
	for _, re := range []*regexp.Regexp{prURLPattern, prShortPattern} {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[3])
		if err != nil || n <= 0 {
			continue
		}
		return PRRef{Owner: m[1], Repo: m[2], Number: n}, nil
	}
	return PRRef{}, ErrNoReference
}
