/*
Package service implements the proxy rotation pool and its background tasks.

The Pool is the single source of truth for registered proxies: it owns the
proxy set, the rotation order and cursor, and the active policy, all guarded
by one RWMutex. Selection strategies, result recording, auto-disable and the
persistence snapshot all run through it.

Creating a pool starts the configured supervisors:

	pool, err := service.NewPool(domain.PoolConfig{
		Strategy:        domain.StrategyWeighted,
		MaxFailures:     5,
		CooldownMinutes: 30,
	}, log)
	if err != nil {
		log.Fatal("Failed to create pool:", err)
	}
	defer pool.Close()

Selection picks from the enabled subset according to the configured
strategy and stamps usage statistics atomically:

	proxy, err := pool.GetNextProxy()

Callers report results back so the weighted strategy and the auto-disable
threshold see real outcomes:

	pool.RecordSuccess(proxy.ID, latencyMs)
	pool.RecordFailure(proxy.ID, "connect timeout")
	pool.RecordCaptcha(proxy.ID, "recaptcha")

Two supervisors run in the background: a cooldown checker that re-enables
auto-disabled proxies once their cooldown elapses, and a health checker
that probes every enabled proxy with a TCP dial and records the result as
a soft health signal. Mutations schedule a debounced snapshot through the
auto-save worker when a persistence path is configured.
*/
package service
