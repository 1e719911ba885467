// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

// Command rconsh is an interactive shell for Source RCON servers. It
// connects, authenticates (retrying with fresh passwords until the server
// accepts), then reads commands line by line and prints each response. All
// protocol work happens in the rcon package; this command is glue around it:
// flags, password prompting, output formatting, and one reconnect attempt
// when the connection drops mid-session.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/schultz-is/rconsh"
)

var (
	host    = flag.String("host", "127.0.0.1", "RCON server address")
	port    = flag.Int("port", 27015, "RCON server port")
	timeout = flag.Duration("timeout", rcon.DefaultTimeout, "limit on each read or write on the connection")
	verbose = flag.Bool("verbose", false, "log packet traffic and print packet headers with responses")
)

// passwordEnvVar names the environment variable consulted for the first
// authentication attempt, so the shell can be scripted without a terminal.
const passwordEnvVar = "RCON_PASSWORD"

func main() {
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if *verbose {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	config := rcon.Config{
		Timeout: *timeout,
		Logger:  &logger,
	}
	addr := net.JoinHostPort(*host, strconv.Itoa(*port))

	fmt.Printf("Connecting to host at %s ...\n", addr)
	session, err := rcon.Connect(addr, config)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not connect")
	}
	defer func() { _ = session.Close() }()
	fmt.Printf("Connected to [%s]\n", addr)

	// The environment variable is good for the first attempt only; a wrong
	// value falls through to interactive prompting rather than looping on
	// the same bad password forever.
	password, havePassword := os.LookupEnv(passwordEnvVar)
	for {
		if !havePassword {
			password = readPassword()
		}
		havePassword = false

		fmt.Println("Authenticating...")
		ok, err := session.Authenticate(password)
		if err != nil {
			logger.Fatal().Err(err).Msg("authentication errored")
		}
		if ok {
			break
		}

		fmt.Println("Incorrect password. Please try again...")
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			logger.Fatal().Msg("no terminal to prompt for another password")
		}
	}

	// Greet the operator with the server's command list.
	resps, err := session.SendCommand("help")
	if err != nil {
		logger.Error().Err(err).Msg("help command failed")
	} else {
		printPackets(resps)
		fmt.Println(strings.Repeat("====", 22))
	}

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("λ ")
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			fmt.Println()
			return
		}

		cmd := strings.TrimRight(line, " \t\r\n")
		if len(cmd) > rcon.MaxBodySize {
			fmt.Println("Woah there! That command is waaay too long.")
			fmt.Println("You might want to try that again.")
			continue
		}

		resps, err := session.SendCommand(cmd)
		if err != nil {
			if !errors.Is(err, rcon.ErrConnection) {
				logger.Fatal().Err(err).Msg("command failed")
			}

			// One reconnect attempt with the accepted password, then the
			// command is retried once. A second failure is terminal.
			logger.Warn().Err(err).Msg("connection lost, reconnecting")
			_ = session.Close()
			session, err = rcon.Connect(addr, config)
			if err != nil {
				logger.Fatal().Err(err).Msg("could not reconnect")
			}
			ok, err := session.Authenticate(password)
			if err != nil {
				logger.Fatal().Err(err).Msg("authentication errored after reconnect")
			}
			if !ok {
				logger.Fatal().Msg("server rejected the password after reconnect")
			}
			resps, err = session.SendCommand(cmd)
			if err != nil {
				logger.Fatal().Err(err).Msg("command failed after reconnect")
			}
		}

		printPackets(resps)
		fmt.Println(strings.Repeat("====", 22))
	}
}

// readPassword prompts the terminal for a password without echoing it. When
// no terminal is attached, it returns the empty password, which simply fails
// against any server with a real one.
func readPassword() string {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return ""
	}

	fmt.Print("Password: ")
	b, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return ""
	}
	return string(b)
}

// printPackets renders response packets for the operator, one body per line,
// with frame headers included under -verbose.
func printPackets(resps []rcon.Packet) {
	for _, resp := range resps {
		if *verbose {
			fmt.Printf("Size: %d bytes, ID: %d, Type: %s\n", resp.Size, resp.ID, resp.Kind)
		}
		if resp.Text != "" {
			fmt.Println(resp.Text)
		}
	}
}
