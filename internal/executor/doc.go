/*
Package executor runs scripted WebSocket exchanges for load scenarios.

# Overview

A WebSocket step connects to a ws:// or wss:// endpoint, sends a fixed list
of text messages and, when an expectation is set, reads until one received
message contains it. The exchange then closes with a normal closure frame.

HTTP calls do not go through this package; they are issued by the virtual
user session so they share its headers and cookies.

# Timing

Duration covers the handshake, every send and the wait for the expected
message. The wait is bounded by WebSocketRequest.Timeout (default 5s) and by
the context deadline, whichever comes first.

# Cancellation

Cancelling the context closes the connection. ExecuteWebSocket then returns
the context error so the caller can tell a stopped user apart from a failed
exchange.
*/
package executor
