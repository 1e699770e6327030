// Parses flags and configures logging for the cudaforge CLI.
//
// The CLI accepts the following flags:
//
//	-q, --quiet     Suppress informational output.
//	-v, --verbose   Enable verbose output.
//	-d, --debug     Enable debug output.
//
// Flags override build-time defaults set via linker flags. After parsing,
// the global logger is reconfigured to reflect the final level before the
// subcommand runs. Credentials and the multi-arch switch are read from the
// environment (USERNAME, PASSWORD, MULTI_ARCH) or supplied as build flags;
// they are validated once at startup and never read ad hoc inside task
// logic.
package cli
