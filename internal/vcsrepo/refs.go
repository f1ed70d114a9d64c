package vcsrepo

import (
	"bufio"
	"fmt"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// RefListing is the set of branch and tag tips visible from one place:
// either a remote (ls-remote) or the local repository.
type RefListing struct {
	// DefaultBranch is the short name HEAD points at, empty if unknown.
	DefaultBranch string
	// Branches maps short branch names to commit ids.
	Branches map[string]string
	// Tags maps short tag names to the commit they point at (peeled).
	Tags map[string]string
}

func newRefListing() RefListing {
	return RefListing{Branches: map[string]string{}, Tags: map[string]string{}}
}

// Empty reports a listing without any refs.
func (l RefListing) Empty() bool {
	return len(l.Branches) == 0 && len(l.Tags) == 0
}

// ParseLsRemote parses `git ls-remote --symref` output.
func ParseLsRemote(out string) (RefListing, error) {
	listing := newRefListing()
	peeled := map[string]string{}

	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		left, name, ok := strings.Cut(line, "\t")
		if !ok {
			return RefListing{}, fmt.Errorf("unexpected ls-remote line %q", line)
		}

		if target, isSym := strings.CutPrefix(left, "ref: "); isSym {
			if name == "HEAD" {
				listing.DefaultBranch = plumbing.ReferenceName(target).Short()
			}
			continue
		}

		if !isCommitID(left) {
			return RefListing{}, fmt.Errorf("unexpected object id %q in ls-remote output", left)
		}
		sha := strings.ToLower(left)
		ref := plumbing.ReferenceName(strings.TrimSuffix(name, "^{}"))
		switch {
		case ref.IsBranch():
			listing.Branches[ref.Short()] = sha
		case ref.IsTag() && strings.HasSuffix(name, "^{}"):
			peeled[ref.Short()] = sha
		case ref.IsTag():
			listing.Tags[ref.Short()] = sha
		}
	}
	if err := scanner.Err(); err != nil {
		return RefListing{}, err
	}

	for tag, sha := range peeled {
		listing.Tags[tag] = sha
	}
	return listing, nil
}

// localListing reads branch and tag tips from an opened repository.
// Local branches take precedence over the remote-tracking branches of
// remote, which fill in names that have no local branch yet.
func localListing(repo *git.Repository, remote string) (RefListing, error) {
	listing := newRefListing()
	tracking := map[string]string{}
	trackingPrefix := "refs/remotes/" + remote + "/"

	refs, err := repo.References()
	if err != nil {
		return RefListing{}, err
	}
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name()
		if ref.Type() == plumbing.SymbolicReference {
			if name.String() == trackingPrefix+"HEAD" {
				listing.DefaultBranch = strings.TrimPrefix(ref.Target().String(), trackingPrefix)
			}
			return nil
		}
		switch {
		case name.IsBranch():
			listing.Branches[name.Short()] = ref.Hash().String()
		case name.IsRemote() && strings.HasPrefix(name.String(), trackingPrefix):
			tracking[strings.TrimPrefix(name.String(), trackingPrefix)] = ref.Hash().String()
		case name.IsTag():
			listing.Tags[name.Short()] = peelTag(repo, ref.Hash())
		}
		return nil
	})
	if err != nil {
		return RefListing{}, err
	}

	for branch, sha := range tracking {
		if _, ok := listing.Branches[branch]; !ok {
			listing.Branches[branch] = sha
		}
	}

	if listing.DefaultBranch == "" {
		if head, err := repo.Reference(plumbing.HEAD, false); err == nil && head.Type() == plumbing.SymbolicReference {
			listing.DefaultBranch = head.Target().Short()
		}
	}
	return listing, nil
}

// peelTag dereferences annotated tags down to the tagged commit.
func peelTag(repo *git.Repository, hash plumbing.Hash) string {
	for range 8 {
		tag, err := repo.TagObject(hash)
		if err != nil {
			return hash.String()
		}
		hash = tag.Target
	}
	return hash.String()
}

func isCommitID(s string) bool {
	return (len(s) == 40 || len(s) == 64) && isHex(s)
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
