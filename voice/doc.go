// Package voice runs a secure voice channel end to end.
//
// A Session connects the device side (CaptureSink, PlaybackSource) to a
// datagram transport through a crypto.Channel:
//
//	capture callback -> SinkFrameSizeAdjuster -> capture ring -> transmit loop
//	    -> Encoder -> Channel.EncodeDatagram -> Transport.Send
//
//	Transport handler -> Channel.DecodeDatagram -> Decoder -> playback ring
//	    -> SourceFrameSizeAdjuster -> playback callback
//
// Replayed, malformed and unauthenticated datagrams are dropped and counted;
// authentication failures are also raised on the channel's OnAuthFailure
// chain.
package voice
