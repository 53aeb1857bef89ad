// Package react implements a bounded reason/act/observe agent loop.
//
// An Orchestrator takes a natural-language task, asks a model for one next
// action at a time, executes it through a ToolRegistry, and folds the
// observation back into the session's ConversationMemory until the model
// gives an answer the evidence supports or the iteration budget runs out.
// Every Run terminates and always yields an answer.
//
// # Architecture
//
//   - Orchestrator: the loop. Owns one AgentSession and serializes Run calls.
//   - ToolRegistry / ToolDispatcher: tool descriptors, name correction,
//     argument normalization and execution with classified errors.
//   - RepetitionGuard: blocks calls that would repeat unproductive work.
//   - ProgressTracker: evidence of work done, workflow state and the early
//     conclusion decision.
//   - ConclusionValidator: rejects final answers given without evidence.
//   - ConversationMemory: bounded message log with summary rotation.
//   - RecoveryPort: retry, backoff and model switching after failures.
//
// # Quick Start
//
//	reg := react.NewToolRegistry()
//	_ = tools.RegisterDefaults(reg, tools.NewWorkspace("."), tools.Options{})
//	orch, err := react.NewOrchestrator(llm.NewClientFromEnv(), reg, react.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	answer, err := orch.Run(ctx, "what does this project do?")
//	fmt.Println(answer.Content)
package react
