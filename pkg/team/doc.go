// Package team composes agents, tools, memory and the model router from a
// config.Config and runs the configured workflow.
//
// Basic usage:
//
//	cfg, err := config.Load("agents.yaml")
//	if err != nil {
//		return err
//	}
//	t, err := team.New(cfg, team.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer t.Close()
//
//	result := t.Run(ctx, "quantum error correction")
//	fmt.Println(result.Output)
//
// A run never panics and never returns an error value: failures of steps,
// agents, tools and models are captured in the RunResult. Only scheduler
// faults and cancellation set RunResult.Error with an empty output.
package team
