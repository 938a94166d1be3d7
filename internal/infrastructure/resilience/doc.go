/*
Package resilience provides the circuit breaker guarding applet uploads.

Applet creation and replacement hand audio to an external generation service
that is slow and costly. When it keeps failing the breaker opens and uploads
fail fast until the open timeout elapses; a limited number of half-open
trial calls then decide whether to close again.

	Closed --[ReadyToTrip]-> Open --[Timeout]-> Half-Open --[MaxRequests successes]-> Closed
	                                               |
	                                           [failure]
	                                               v
	                                             Open

The poll loop and storage writes never go through a breaker: a failed probe
is simply retried on the next tick.

# Usage

	breaker := resilience.New("applet-uploads", resilience.Settings{
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	result, err := breaker.Execute(func() (interface{}, error) {
		return upload()
	})
*/
package resilience
