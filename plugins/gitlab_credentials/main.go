// Command gitlab_credentials builds the GitLab credentials plugin as a Go
// plugin (.so) for hosts that do not link it in.
package main

import (
	"github.com/mywio/gitlab-credentials/pkg/core"
	"github.com/mywio/gitlab-credentials/pkg/credentials"
)

// Exported symbol that core looks up
var Plugin core.Plugin = credentials.NewPlugin()

func main() {}
