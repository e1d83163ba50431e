package llbquery

import (
	"github.com/shmocker/wharf/pkg/llbop"
	"github.com/shmocker/wharf/pkg/wharfconfig"
)

// imageSourceConfig is the common shape BuilderConfig and OutputConfig
// both already expose: a base image source (nil for OutputConfig's
// scratch sentinel) and the user/environment it wants applied to every
// exec run against it.
type imageSourceConfig interface {
	Source() *llbop.Source
	PopulateEnv(cmd *llbop.Command) *llbop.Command
}

// sourceLLB chains config's custom commands as execs layered over its
// base image (or over an empty scratch layer, when config has none),
// returning nil only when there is neither a base image nor any command
// to run. For the output image, outputLayerPath treats nil as the empty
// scratch layer; for the builder, serializeAllNodes rejects nil with a
// ConfigError.
func sourceLLB(config imageSourceConfig, commands []wharfconfig.CustomCommand) *llbop.OperationOutput {
	var current *llbop.OperationOutput
	if source := config.Source(); source != nil {
		out := source.Output()
		current = &out
	}

	for _, step := range commands {
		if len(step.Command) == 0 {
			continue
		}

		program := step.Command[0]
		args := step.Command[1:]

		cmd := config.PopulateEnv(llbop.Run(program)).
			Args(args...).
			EnvIter(step.Env).
			CustomName(prettyPrint(printCustomCommand, displayCommand(step.Command)))

		if current != nil {
			cmd = cmd.Mount(llbop.Layer(0, *current, "/"))
		} else {
			cmd = cmd.Mount(llbop.Scratch(0, "/"))
		}

		out := cmd.Output(0)
		current = &out
	}

	return current
}
