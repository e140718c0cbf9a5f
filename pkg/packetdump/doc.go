// Package packetdump reads and writes captures of encoded elementary
// stream packets, the input of the muxer.
package packetdump

// Capture format.
//
// <name>.mdat: File with continuous chunks of packet data.
//   []byte
//
// <name>.meta: File that contains the stream headers and packet records.
//   version      uint8
//   streamCount  uint8
//   streams      []stream
//   durationMs   int64   // -1 if unknown.
//   packets      []packetV0
//
// stream {
//   headerCount uint8
//   headers     []{ size uint32, data []byte }
// }
//
// packetV0 { // 26 bytes.
//   flags    uint8 { isKeyframe, isEOS }
//   stream   uint8
//   granule  int64
//   duration int64 // Samples for audio, milliseconds for subtitles.
//
//   // Offset in <name>.mdat where the packet data is stored.
//   offset   uint32
//   size     uint32
// }
