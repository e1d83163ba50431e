package llbquery

import "fmt"

// printKind selects one of the terminal composition step's fixed
// display-name templates.
type printKind int

const (
	printCustomCommand printKind = iota
	printCompileBuildScript
	printCompileBinary
	printCompileTest
	printCompileCrate
	printRunBuildScript
)

// prettyPrint renders the human-readable progress label BuildKit shows
// for one operation, matching the fixed vocabulary ("Compiling ...",
// "Running   ...") every other frontend uses for Cargo-shaped builds.
func prettyPrint(kind printKind, name string) string {
	switch kind {
	case printCustomCommand:
		return fmt.Sprintf("Running   `%s`", name)
	case printCompileBinary:
		return fmt.Sprintf("Compiling binary %s", name)
	case printCompileTest:
		return fmt.Sprintf("Compiling test %s", name)
	case printCompileBuildScript:
		return fmt.Sprintf("Compiling %s [build script]", name)
	case printRunBuildScript:
		return fmt.Sprintf("Running   %s [build script]", name)
	default:
		return fmt.Sprintf("Compiling %s", name)
	}
}

// displayCommand renders a CustomCommand's argv for its progress label.
func displayCommand(argv []string) string {
	out := ""
	for i, a := range argv {
		if i > 0 {
			out += " "
		}
		out += a
	}
	return out
}
