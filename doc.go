// Package skein is the concurrent execution core of an embedded
// command/script interpreter. It runs independently scheduled units of
// interpreted work, assigns each unit to a thread of execution according
// to a configurable policy, propagates cooperative stop signals across
// goroutine and nesting boundaries, and bounds how many units may run at
// once.
//
// The package deliberately does not implement language semantics: a unit
// of work is an opaque callable that, once started, produces stream
// items and eventually reaches a terminal state. Parsing, evaluation and
// the value model live behind the api.Session contract.
//
// Two execution paths share the same cancellation and completion
// idioms:
//
//   - Single pipeline: Runner runs one unit to a terminal state under a
//     thread policy (dedicated goroutine, reused worker, or the caller's
//     own goroutine), registered with its session's stop stack so that
//     StopPipeline reliably halts nested units, including ones that have
//     not started yet.
//
//   - Parallel fan-out: Pool admits task units up to a fixed capacity,
//     blocks the producer when full, fans each unit's channel-tagged
//     records into one shared sink, and finalizes that sink exactly once
//     when the pool is closed and drained. One failing unit becomes an
//     error record correlated to its identity; siblings keep running.
//
// Example usage:
//
//	run := skein.NewRunner(skein.WithSessionFactory(sessions.NewFactory()))
//	sess, _ := run.NewSession(api.IsolationDefault)
//	defer run.ReleaseSession(sess)
//
//	result, err := run.RunPipeline(ctx, sess, unit,
//	    skein.WithPolicy(skein.ReusedThread),
//	)
//
//	sink := pubsub.NewSink(pubsub.Local().Topic("run-1"))
//	pool := skein.NewPool(4, sessions.NewFactory(), sink)
//	for _, unit := range units {
//	    if !pool.Add(ctx, unit) {
//	        break
//	    }
//	}
//	pool.Close()
//	<-sink.Done()
//
// Cancellation is cooperative everywhere: stop requests ask the target
// to wind down and never forcibly terminate a goroutine. There is no
// built-in timeout; callers layer one externally over the completion
// primitives (Wait variants take a context).
package skein
