/*
Package vuser implements virtual users: simulated clients that repeatedly run
weighted tasks against a target over a persistent HTTP session.

# Overview

A VirtualUser owns exactly one Session. The session holds everything that
persists between calls of that user:
  - the validated base URL
  - default headers, mutable at runtime (SetHeader, DelHeader)
  - a cookie jar
  - per-user variables used by declarative scenario steps

Every call made through the session produces exactly one stats.RequestResult,
recorded in issuance order. Calls aborted because the user was stopped are not
recorded.

# Lifecycle

	Starting -> Running -> Stopped

Run loops until the context is cancelled, the iteration limit is reached or a
behavior returns an error wrapping ErrUnrecoverable. Each iteration picks a
task, invokes its behavior with the session, then sleeps for the configured
think time. The sleep is interrupted by cancellation.

# Failures

Transport failures (timeout, refused, reset, DNS, TLS) and HTTP statuses >= 400
are recorded as failed results and returned to the behavior on Response.Err.
They never stop the user. ErrorKind classifies the failure from the error
chain first, then from the error text.

# Header Mutations

A header set on the session applies to every call issued after the mutation,
including later calls in the same task invocation:

	s.SetHeader("Authorization", "Bearer "+token)
	s.Get(ctx, "/me")      // carries the header
	s.Get(ctx, "/orders")  // carries the header
*/
package vuser
