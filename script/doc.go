// Package script runs shared-ownership lifecycle scenarios.
//
// A scenario is a YAML list of steps applied to named handles:
//
//	name: copy and expire
//	config:
//	  track: true
//	steps:
//	  - {op: new, name: a, value: 42}
//	  - {op: copy, name: b, from: a}
//	  - {op: weak, name: w, from: a}
//	  - {op: expect, name: a, use_count: 2}
//	  - {op: release, name: a}
//	  - {op: release, name: b}
//	  - {op: expect, name: w, expired: true, destroyed: 1}
//
// The same steps can be written one per line, as the interactive CLI does:
//
//	new a 42
//	copy b a
//	expect a use_count=2
//
// Handles have one of four kinds: node (Shared[*Node]), item (Shared[Item],
// from upcast), label (Shared[*string], from alias) and weak (Weak[*Node]).
// The Runner records every block allocation, object destruction and block
// release in a trace.
package script
