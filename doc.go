// Package connect is a client for the Airship Real-Time Data Streaming API
// (formerly Connect). It opens a long-lived chunked HTTP connection, decodes
// the newline-delimited JSON event stream, and tracks the consumer's offset
// so a restarted process resumes where it left off.
//
// A Consumer owns one stream. Offsets are persisted through a Recorder; the
// package ships a FileRecorder, and the ext directory has Redis, Postgres,
// SQLite and S3 backed recorders.
//
//	rec, _ := connect.NewFileRecorder(".offset")
//	consumer, _ := connect.NewConsumer(connect.Config{
//		AppKey:      appKey,
//		AccessToken: token,
//	}, rec)
//	if err := consumer.Connect(ctx); err != nil {
//		// *AuthError means bad credentials; anything else already
//		// exhausted the reconnect policy.
//	}
//	for {
//		ev, err := consumer.Read(ctx)
//		if err != nil {
//			break
//		}
//		if ev == nil {
//			continue // keepalive tick, nothing ready
//		}
//		handle(ev)
//		consumer.Ack(ev)
//	}
//
// Delivery semantics are decided by where the caller puts Ack. Acking after
// the event is fully handled gives at-least-once: a crash between handling
// and Ack redelivers the event on the next connect. Acking immediately after
// Read gives at-most-once: a crash between Ack and handling loses the event.
// The Consumer never hides this tradeoff; it resumes from the last
// acknowledged offset, so unacked events are always eligible for redelivery.
package connect
