package vcsrepo

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// minAbbrev is the shortest hex prefix accepted as an abbreviated commit id.
const minAbbrev = 4

// CommitLookup resolves a hex prefix against a local object store. Nil
// means no local store is available.
type CommitLookup func(ctx context.Context, prefix string) (commit string, ok bool, err error)

// ResolveRevision maps a revision token to a canonical commit.
//
// Precedence: an unset token selects the default branch; "refs/heads/" and
// "refs/tags/" prefixes force the namespace; a bare name matching both a
// branch and a tag resolves to the branch; a full commit id is taken as-is
// and verified when checked out; an abbreviated id must match exactly one
// commit, locally or among the listing's tips. A prefix matching neither is
// returned with Abbrev set and resolved at checkout, after the fetch.
func ResolveRevision(ctx context.Context, refs RefListing, token string, lookup CommitLookup) (Resolved, error) {
	token = strings.TrimSpace(token)
	notFound := func(format string, args ...any) (Resolved, error) {
		return Resolved{}, &Error{Code: CodeRevisionNotFound, Action: "resolve", Err: fmt.Errorf(format, args...)}
	}

	if token == "" {
		if refs.DefaultBranch == "" {
			if refs.Empty() {
				// An empty repository has nothing to check out.
				return Resolved{}, nil
			}
			return notFound("no default branch advertised")
		}
		commit, ok := refs.Branches[refs.DefaultBranch]
		if !ok {
			return notFound("default branch %q has no commit", refs.DefaultBranch)
		}
		return branch(refs.DefaultBranch, commit, true), nil
	}

	if name, ok := strings.CutPrefix(token, "refs/heads/"); ok {
		if commit, found := refs.Branches[name]; found {
			return branch(name, commit, false), nil
		}
		return notFound("branch %q not found", name)
	}
	if name, ok := strings.CutPrefix(token, "refs/tags/"); ok {
		if commit, found := refs.Tags[name]; found {
			return tag(name, commit), nil
		}
		return notFound("tag %q not found", name)
	}

	if commit, ok := refs.Branches[token]; ok {
		return branch(token, commit, token == refs.DefaultBranch), nil
	}
	if commit, ok := refs.Tags[token]; ok {
		return tag(token, commit), nil
	}

	if isCommitID(token) {
		return Resolved{Commit: strings.ToLower(token), Kind: KindSha}, nil
	}

	if len(token) >= minAbbrev && isHex(token) {
		prefix := strings.ToLower(token)
		if lookup != nil {
			commit, ok, err := lookup(ctx, prefix)
			if err != nil {
				return Resolved{}, err
			}
			if ok {
				return Resolved{Commit: commit, Kind: KindSha}, nil
			}
		}
		matches := refs.commitsWithPrefix(prefix)
		switch len(matches) {
		case 1:
			return Resolved{Commit: matches[0], Kind: KindSha}, nil
		case 0:
			return Resolved{Commit: prefix, Kind: KindSha, Abbrev: true}, nil
		default:
			return notFound("abbreviated commit %q is ambiguous: %s", token, strings.Join(matches, ", "))
		}
	}

	return notFound("%q is not a branch, tag or commit", token)
}

func branch(name, commit string, isDefault bool) Resolved {
	return Resolved{Commit: commit, Kind: KindBranch, Ref: "refs/heads/" + name, Name: name, Default: isDefault}
}

func tag(name, commit string) Resolved {
	return Resolved{Commit: commit, Kind: KindTag, Ref: "refs/tags/" + name, Name: name}
}

func (l RefListing) commitsWithPrefix(prefix string) []string {
	seen := map[string]struct{}{}
	for _, set := range []map[string]string{l.Branches, l.Tags} {
		for _, sha := range set {
			if strings.HasPrefix(sha, prefix) {
				seen[sha] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for sha := range seen {
		out = append(out, sha)
	}
	sort.Strings(out)
	return out
}

// currentRevision describes HEAD as a resolution, used when a present
// working copy has no revision pinned.
func currentRevision(c CurrentState) Resolved {
	if name, ok := strings.CutPrefix(c.HeadRef, "refs/heads/"); ok {
		return branch(name, c.HeadCommit, false)
	}
	return Resolved{Commit: c.HeadCommit, Kind: KindDetached}
}
