// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package rcon_test

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"log"
	"net"

	"github.com/schultz-is/rconsh"
)

func ExamplePacket_WriteTo() {
	var buf bytes.Buffer

	p := rcon.Packet{
		ID:   42,
		Kind: rcon.KindCommand,
		Body: []byte("info"),
	}
	n, err := p.WriteTo(&buf)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Wrote %d bytes: %0x\n", n, buf.Bytes())

	// Output:
	// Wrote 18 bytes: 0e0000002a00000002000000696e666f0000
}

func ExamplePacket_ReadFrom() {
	bs, err := hex.DecodeString("0e0000002a00000002000000696e666f0000")
	if err != nil {
		log.Fatal(err)
	}
	rdr := bytes.NewReader(bs)

	var p rcon.Packet
	n, err := p.ReadFrom(rdr)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Read %d bytes: id=%d kind=%s text=%q\n", n, p.ID, p.Kind, p.Text)

	// Output:
	// Read 18 bytes: id=42 kind=command text="info"
}

func ExampleStripColors() {
	fmt.Println(rcon.StripColors("§6Hello§7 World"))

	// Output:
	// Hello World
}

func ExampleSession_Authenticate() {
	// Session is a BYOC (bring your own conn) implementation.
	conn, err := net.Dial("tcp", "192.0.2.1:27015")
	if err != nil {
		log.Fatal(err)
	}

	s := rcon.NewSession(conn, rcon.Config{})
	defer s.Close()

	ok, err := s.Authenticate("super secret password")
	if err != nil {
		log.Fatal(err)
	}
	if !ok {
		log.Fatal("server rejected the password")
	}
}

func ExampleSession_SendCommand() {
	s, err := rcon.Connect("192.0.2.1:27015", rcon.Config{})
	if err != nil {
		log.Fatal(err)
	}
	defer s.Close()

	ok, err := s.Authenticate("super secret password")
	if err != nil {
		log.Fatal(err)
	}
	if !ok {
		log.Fatal("server rejected the password")
	}

	resps, err := s.SendCommand("status")
	if err != nil {
		log.Fatal(err)
	}

	for _, resp := range resps {
		if resp.Text != "" {
			fmt.Println(resp.Text)
		}
	}
}
