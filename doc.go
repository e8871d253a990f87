// Package throttling limits how often a subject may perform a named action.
//
// Limits are configured per action as one or more fixed windows ("periods").
// Each period is either flat, allowing hits while the count in the current
// window is at most its limit, or tiered, selecting a value from a table by
// the current count:
//
//	login:
//	  limit: 5
//	  period: 60
//	search_requests:
//	  hourly:
//	    limit: 100
//	    period: 3600
//	  daily:
//	    limit: 1000
//	    period: 86400
//	request_priority:
//	  period: 86400
//	  default_value: 25
//	  values:
//	    - limit: 5
//	      value: 10
//	    - limit: 15
//	      value: 15
//
// A Throttler owns the limits and hands out one Throttle per action:
//
//	th, err := throttling.New(throttling.Options{Store: store, Limits: limits})
//	login, err := th.For("login")
//	res, err := login.CheckIP(ctx, "203.0.113.9")
//
// Periods are evaluated shortest first. A flat period over its limit denies
// immediately and nothing is counted; the first tiered period returns its
// selected value. Counts live in a Store (see the counter_stores package)
// under keys of the form
//
//	throttle:<action>:<check type>:<value>:<period name>:<unix time / period>
//
// Misconfigured periods surface as errors from the check, never as a deny.
package throttling
