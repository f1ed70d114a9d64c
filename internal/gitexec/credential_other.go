//go:build !unix

package gitexec

import (
	"errors"
	"os/exec"
)

func applyCredential(_ *exec.Cmd, cred *Credential) error {
	if cred == nil {
		return nil
	}
	return errors.New("running git as another user is only supported on unix")
}
