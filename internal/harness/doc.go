// Package harness runs YAML scenarios against a real purchasing store and
// compares the resulting trace with golden files.
//
// # Scenario Format
//
//	name: purchase_success
//	description: "What this scenario validates"
//	ready: true
//	products:
//	  - {id: sword, type: non_consumable}
//	product_specs: ../products   # optional CUE product definitions
//	steps:
//	  - action: purchase
//	    product: sword
//	  - action: deliver
//	    kind: purchase_succeeded
//	    identifiers: [sword]
//	  - action: deliver
//	    kind: user_items_received
//	    user_items:
//	      - {id: 12, identifier: sword}
//	assertions:
//	  - type: outcome
//	    status: purchase_succeeded
//	    transaction_id: "12"
//	  - type: idle
//
// Steps are retrieve, purchase, finish and deliver. A retrieve or purchase
// that should be rejected names the error code in expect_error.
//
// # Trace
//
// The trace records, in order, every step, every rejected step, every
// outbound request, every delivered notification and every callback
// outcome. Sequence numbers come from a logical clock, so traces are
// byte-for-byte reproducible.
//
// # Golden Files
//
// Golden traces live in testdata/golden/{scenario}.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
