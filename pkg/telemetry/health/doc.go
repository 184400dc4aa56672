// Package health aggregates component checks into liveness and readiness
// answers.
//
// Components register a CheckFunc under a name; CheckReadiness runs all
// of them concurrently with a per-check timeout and degrades the overall
// status when any component reports unhealthy. Store pings register
// directly because Ping already has the CheckFunc signature:
//
//	checker := health.New(0)
//	checker.RegisterCheck("storage", store.Ping)
//	checker.RegisterCheck("provider:openai", health.BreakerCheck(func() circuit.State {
//		return client.Inspect().CircuitState
//	}))
//
// The status command reads CheckReadiness directly; LivenessHandler and
// ReadinessHandler expose the same answers as HTTP probe endpoints.
package health
