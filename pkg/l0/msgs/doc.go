// Package msgs defines the messages exchanged with the board firmware.
//
// Each message is a MessagePack map with short string keys. The key "mt"
// carries the message type. Decode validates required fields so a
// malformed message never turns into a partially filled value.
package msgs
