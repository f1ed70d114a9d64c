//go:build !unix

package vcsrepo

import "io/fs"

func fileOwnerIDs(fs.FileInfo) (int, int) {
	return -1, -1
}
