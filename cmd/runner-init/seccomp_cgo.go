//go:build linux && cgo

package main

import (
	"fmt"

	"gdbc/internal/runplan"

	seccomp "github.com/seccomp/libseccomp-golang"
	"golang.org/x/sys/unix"
)

func applySeccomp(profilePath string) error {
	profile, err := runplan.LoadSeccompProfile(profilePath)
	if err != nil {
		return err
	}
	filter, err := seccomp.NewFilter(seccompAction(profile.DefaultAction))
	if err != nil {
		return fmt.Errorf("create seccomp filter: %w", err)
	}
	defer filter.Release()
	for _, rule := range profile.Syscalls {
		// libseccomp rejects rules that repeat the default action.
		if rule.Action == profile.DefaultAction {
			continue
		}
		action := seccompAction(rule.Action)
		for _, name := range rule.Names {
			call, err := seccomp.GetSyscallFromName(name)
			if err != nil {
				return fmt.Errorf("resolve syscall %s: %w", name, err)
			}
			if err := filter.AddRule(call, action); err != nil {
				return fmt.Errorf("add seccomp rule: %w", err)
			}
		}
	}
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("set no new privs: %w", err)
	}
	if err := filter.Load(); err != nil {
		return fmt.Errorf("load seccomp filter: %w", err)
	}
	return nil
}

// seccompAction expects an action already normalized by the profile loader.
func seccompAction(action string) seccomp.ScmpAction {
	switch action {
	case runplan.ActionAllow:
		return seccomp.ActAllow
	case runplan.ActionErrno:
		return seccomp.ActErrno.SetReturnCode(int16(unix.EPERM))
	default:
		return seccomp.ActKillProcess
	}
}
