// Package tools provides the default workspace tools for the react loop:
// listing, reading, writing and searching files, git status and diff, the
// project linter and structural analysis.
package tools
