// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

/*
Package rcon implements the client side of the Source RCON protocol as
described by Valve Software at
https://developer.valvesoftware.com/wiki/Source_RCON_Protocol.

The package is organized the way the protocol is layered. [Packet] is the
wire codec: a pure encoder and decoder for the length-prefixed little-endian
frame format, with no I/O of its own. [Transport] is a dumb byte pipe over a
single connection that arms a deadline before every read and write.
[Session] ties the two together: it sequences packet IDs, performs the
authentication handshake, reassembles responses that span multiple frames,
and is the surface most consumers want:

	session, err := rcon.Connect("127.0.0.1:27015", rcon.Config{})
	if err != nil {
		log.Fatal(err)
	}
	defer session.Close()

	ok, err := session.Authenticate("password goes here")
	if err != nil || !ok {
		log.Fatal("authentication failed")
	}

	resps, err := session.SendCommand("status")
	if err != nil {
		log.Fatal(err)
	}
	for _, resp := range resps {
		fmt.Println(resp.Text)
	}

Decoded response text has server color-code sequences stripped by
[StripColors] before it reaches the caller.
*/
package rcon
