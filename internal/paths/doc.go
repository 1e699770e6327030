// Provides platform-specific default filesystem locations derived from the
// XDG base directory specification.
package paths
