// Package manager is the orchestration layer behind the HTTP API. It owns
// the caches, the config store and the stream executor, and turns every
// model and chat operation into an invocation of the engine script.
//
// It is structured into small files by concern:
//
//   - manager.go: core Manager type, constructor, simple getters.
//   - config.go: Config and package defaults; New applies defaults.
//   - engine.go: building engine invocations (script + positional args).
//   - errors.go: sentinel errors (ErrModelNotInstalled, ErrEmptyModel).
//   - events.go: lifecycle events and publishers.
//   - status_report.go: Health, Status, Installed, Catalog, Reset.
//   - ops.go: Install, Remove, Use, SetConfig.
//   - infer.go: Chat and ChatStream.
//   - sanity.go: startup checks for the engine and its directories.
//
// User input never becomes script text: the engine is sourced by a fixed
// script and every value reaches it as a positional parameter.
package manager
