// Package builtin registers the seven deployment steps. Import it for its
// side effects:
//
//	import _ "datadeploy/internal/steps/builtin"
package builtin

import (
	"datadeploy/internal/proc"
	"datadeploy/internal/steps"
)

func init() {
	steps.Register(&CheckoutStep{})
	steps.Register(&SetupStep{})
	steps.Register(&InstallStep{})
	steps.Register(&FetchStep{})
	steps.Register(&VerifyStep{})
	steps.Register(&CommitStep{})
	steps.Register(&NoticeStep{})
}

// shellCommand runs script in the working copy with the push tokens removed
// from the environment. Install and fetch never need it.
func shellCommand(rc *steps.RunContext, script string) proc.Command {
	cmd := proc.Shell(script)
	cmd.Dir = rc.WorkDir
	cmd.Env = proc.Environ(rc.Config.Git.TokenEnv, "GH_TOKEN")
	cmd.Output = rc.Output()
	return cmd
}

func short(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}
