// accessctl publishes requests to a running bridge for manual testing:
// speak a line, repeat the last utterance, stop speech, or register a
// normalization rule.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/LordLuceus/melonaccess/internal/protocol"
	"github.com/nats-io/nats.go"
)

var version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "expected 'speak', 'repeat', 'stop', 'rule' or 'version'")
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "speak":
		err = runSpeak(os.Args[2:])
	case "repeat":
		err = publish(os.Args[2:], protocol.SubjectSpeechRepeat, nil)
	case "stop":
		err = publish(os.Args[2:], protocol.SubjectSpeechStop, nil)
	case "rule":
		err = runRule(os.Args[2:])
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runSpeak(args []string) error {
	fs := flag.NewFlagSet("speak", flag.ExitOnError)
	server := fs.String("server", nats.DefaultURL, "NATS server URL")
	speaker := fs.String("speaker", "", "Speaker name")
	category := fs.Int("category", 0, "Utterance category")
	fs.Parse(args)
	if fs.NArg() == 0 {
		return fmt.Errorf("speak requires text")
	}

	req := protocol.OutputRequest{
		Speaker:   *speaker,
		Text:      fs.Arg(0),
		Category:  *category,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return publishTo(*server, protocol.SubjectSpeechOutput, data)
}

func runRule(args []string) error {
	fs := flag.NewFlagSet("rule", flag.ExitOnError)
	server := fs.String("server", nats.DefaultURL, "NATS server URL")
	kind := fs.String("kind", "literal", "Rule kind: literal or pattern")
	replacement := fs.String("replacement", "", "Replacement text")
	insensitive := fs.Bool("i", false, "Case-insensitive pattern match")
	fs.Parse(args)
	if fs.NArg() == 0 {
		return fmt.Errorf("rule requires a pattern")
	}

	req := protocol.RuleRequest{
		Kind:            *kind,
		Pattern:         fs.Arg(0),
		Replacement:     *replacement,
		CaseInsensitive: *insensitive,
	}
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return publishTo(*server, protocol.SubjectRulesAdd, data)
}

func publish(args []string, subject string, data []byte) error {
	fs := flag.NewFlagSet(subject, flag.ExitOnError)
	server := fs.String("server", nats.DefaultURL, "NATS server URL")
	fs.Parse(args)
	return publishTo(*server, subject, data)
}

func publishTo(server, subject string, data []byte) error {
	conn, err := nats.Connect(server, nats.Name("accessctl"))
	if err != nil {
		return fmt.Errorf("connect to nats: %w", err)
	}
	defer conn.Close()
	if err := conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return conn.Flush()
}
