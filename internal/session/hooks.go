package session

import (
	"os/exec"
	"strconv"
	"strings"
)

// substituteResolution replaces the {width}/{height} placeholders in one
// argv with the session's negotiated resolution.
func substituteResolution(argv []string, width, height int) []string {
	out := make([]string, len(argv))
	for i, arg := range argv {
		arg = strings.ReplaceAll(arg, "{width}", strconv.Itoa(width))
		arg = strings.ReplaceAll(arg, "{height}", strconv.Itoa(height))
		out[i] = arg
	}
	return out
}

// runHooks starts each configured hook command in order, waiting for each
// to finish before the next. Hook failures are logged but never abort the
// session; a broken run_before script should not strand the client.
func runHooks(stage string, hooks [][]string, width, height int) {
	for _, argv := range hooks {
		if len(argv) == 0 {
			continue
		}
		argv = substituteResolution(argv, width, height)

		cmd := exec.Command(argv[0], argv[1:]...)
		log.Info("running session hook", "stage", stage, "command", strings.Join(argv, " "))
		if err := cmd.Run(); err != nil {
			log.Warn("session hook failed", "stage", stage, "command", argv[0], "error", err)
		}
	}
}
