//go:build linux && !cgo

package main

import "errors"

func applySeccomp(profilePath string) error {
	return errors.New("seccomp profile " + profilePath + " needs runner-init built with cgo")
}
