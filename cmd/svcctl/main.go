// Command svcctl exercises the channel stack from the command line.
//
// Usage:
//
//	svcctl <command> [flags]
//
// Commands:
//
//	request  Send one request and print the reply
//	serve    Run the loopback echo service host
//	shell    Send requests interactively over one channel
//	events   List or decode diagnostic event ids
//	log      View protocol log files
//
// Examples:
//
//	# Start an echo host on fixed ports and advertise it over mDNS
//	svcctl serve --http 127.0.0.1:8080 --tcp 127.0.0.1:8808 --advertise
//
//	# Request through an endpoint from a config file
//	svcctl request --config client.yaml --endpoint echo --body "hello"
//
//	# Request an ad hoc address with a preset binding
//	svcctl request --address net.tcp://127.0.0.1:8808/echo --body "hello"
//
//	# Decode an event id
//	svcctl events --decode 0xc0060008
//
//	# View a protocol capture
//	svcctl log view --layer encoder client.svclog
package main

import (
	"os"

	"github.com/svcmodel/svcmodel-go/cmd/svcctl/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
