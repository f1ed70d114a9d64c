package gitexec

import (
	"fmt"
	"os/user"
	"strconv"
)

// Credential is a numeric process identity.
type Credential struct {
	UID uint32
	GID uint32
}

// LookupCredential resolves a user name (and optional group name) to a
// Credential. Numeric ids are accepted as-is. An empty user yields nil.
func LookupCredential(userName, groupName string) (*Credential, error) {
	if userName == "" {
		return nil, nil
	}

	uid, primaryGID, err := lookupUser(userName)
	if err != nil {
		return nil, err
	}

	gid := primaryGID
	if groupName != "" {
		gid, err = LookupGroup(groupName)
		if err != nil {
			return nil, err
		}
	}

	return &Credential{UID: uid, GID: gid}, nil
}

// LookupUser resolves a user name or numeric uid.
func LookupUser(name string) (uint32, error) {
	uid, _, err := lookupUser(name)
	return uid, err
}

func lookupUser(name string) (uint32, uint32, error) {
	u, err := user.Lookup(name)
	if err != nil {
		if _, ok := err.(user.UnknownUserError); !ok {
			return 0, 0, fmt.Errorf("lookup user %q: %w", name, err)
		}
		u, err = user.LookupId(name)
		if err != nil {
			return 0, 0, fmt.Errorf("unknown user %q", name)
		}
	}

	uid, err := parseID(u.Uid)
	if err != nil {
		return 0, 0, fmt.Errorf("user %q: %w", name, err)
	}
	gid, err := parseID(u.Gid)
	if err != nil {
		return 0, 0, fmt.Errorf("user %q: %w", name, err)
	}
	return uid, gid, nil
}

// LookupGroup resolves a group name or numeric gid.
func LookupGroup(name string) (uint32, error) {
	g, err := user.LookupGroup(name)
	if err != nil {
		if _, ok := err.(user.UnknownGroupError); !ok {
			return 0, fmt.Errorf("lookup group %q: %w", name, err)
		}
		g, err = user.LookupGroupId(name)
		if err != nil {
			return 0, fmt.Errorf("unknown group %q", name)
		}
	}
	return parseID(g.Gid)
}

func parseID(s string) (uint32, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("non-numeric id %q", s)
	}
	return uint32(id), nil
}

// Impersonator is implemented by runners that can spawn processes as
// another identity.
type Impersonator interface {
	WithCredential(cred *Credential) Runner
}

// WithCredential returns a copy of the runner that runs as cred.
func (r *ExecRunner) WithCredential(cred *Credential) Runner {
	cp := *r
	cp.Credential = cred
	return &cp
}
