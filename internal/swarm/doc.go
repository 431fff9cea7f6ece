/*
Package swarm manages a population of concurrently running virtual users.

# Overview

A Swarm spawns users up to a target count, bringing them online at no more
than the ramp rate per second. The ramp uses a token bucket with burst 1 that
starts empty, so reaching N users takes at least N/rate seconds.

	sw := swarm.New(reg, collector,
	    swarm.WithBaseURL("http://localhost:8080"),
	    swarm.WithThinkTime(vuser.Between(time.Second, 3*time.Second)),
	)
	if err := sw.Start(ctx, 50, 10); err != nil {
	    return err // empty registry or invalid base URL, no user started
	}
	...
	err := sw.Stop()
	var warn *swarm.ForcedShutdownWarning
	if errors.As(err, &warn) {
	    log.Printf("%d users did not stop in time", warn.Count)
	}

# Population

The population never exceeds the target. Lowering the target stops excess
users immediately (no ordering guarantee). Users that exit on their own, by
reaching their iteration limit or failing unrecoverably, are not respawned and
keep counting against the target.

# Shutdown

Stop cancels every user and waits until all of them are Stopped or the
shutdown timeout elapses. Users still running at the deadline are abandoned:
removed from the population, their contexts cancelled and idle connections
closed. Stop then returns a *ForcedShutdownWarning, which is not fatal.
*/
package swarm
