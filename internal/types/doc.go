/*
Package types defines core data structures shared by the load generator.

# Overview

The types package provides shared type definitions for:
  - HTTP request definitions parsed from .http files
  - Declarative scenarios (tasks, steps, auth, TLS)
  - Human-readable durations for YAML and JSON configuration

# Request Types

HttpRequest:
  - Standard HTTP request definition
  - Parsed from .http files
  - Expected status codes and body substring for validation
  - JMESPath extractions into per-user variables

# Scenario Types

ScenarioFile:
  - Target host, shared headers and variables
  - Weighted tasks, each with inline steps or a .http file

StepSpec:
  - One HTTP call or one WebSocket exchange
  - setHeaders templates mutate the user's session for all later calls

AuthSpec:
  - Names the environment variables that hold credentials
  - Never carries a secret value itself

# Field Tags

All types use JSON and YAML tags so a scenario can be written in either format.
The `omitempty` tag keeps serialized data clean.

# Example Scenario

	name: login-and-browse
	host: http://localhost:8080
	auth:
	  bearerTokenEnv: API_TOKEN
	tasks:
	  - name: ping
	    weight: 3
	    steps:
	      - method: GET
	        path: /ping
	        expectStatus: [200]
	  - name: profile
	    steps:
	      - method: POST
	        path: /login
	        body: '{"user":"{{user}}"}'
	        extract:
	          token: data.token
	        setHeaders:
	          X-Session: "{{token}}"
	      - method: GET
	        path: /users/me
*/
package types
