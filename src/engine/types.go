package engine

// Storage backends understood by the engine.
const (
	StorageMemory = "memory"
	StorageFile   = "file"
)

// Options configures one engine invocation.
type Options struct {
	Simulate  bool
	Trace     bool
	Explain   bool
	Verbose   bool
	UseStdlib bool

	StorageBackend string
	StoragePath    string

	// IdentityPath is the key file used to sign engine side effects. Empty
	// when the node has no identity.
	IdentityPath string
}

// SimulateOptions returns the options of a validation dry run.
func SimulateOptions() Options {
	return Options{
		Simulate:       true,
		StorageBackend: StorageMemory,
	}
}

// TraceOptions returns the options used to replay a proposal for inspection.
// Replays never mutate storage.
func TraceOptions() Options {
	return Options{
		Simulate:       true,
		Trace:          true,
		Explain:        true,
		Verbose:        true,
		StorageBackend: StorageMemory,
	}
}

// Result is what the engine reports after running a proposal.
type Result struct {
	StatusCode int
	VertexID   string
	Output     string
}

// Success reports whether the engine returned status code zero.
func (r *Result) Success() bool {
	return r.StatusCode == 0
}
