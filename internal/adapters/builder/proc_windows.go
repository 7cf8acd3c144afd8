//go:build windows

package builder

import "os/exec"

func configureProcess(*exec.Cmd) {}
