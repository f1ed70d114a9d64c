//go:build unix

package gitexec

import (
	"os"
	"os/exec"
	"syscall"
)

func applyCredential(cmd *exec.Cmd, cred *Credential) error {
	if cred == nil {
		return nil
	}
	if int(cred.UID) == os.Getuid() && int(cred.GID) == os.Getgid() {
		return nil
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Credential: &syscall.Credential{
			Uid:         cred.UID,
			Gid:         cred.GID,
			NoSetGroups: os.Getuid() != 0,
		},
	}
	return nil
}
