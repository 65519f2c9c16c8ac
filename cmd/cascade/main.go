package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/hanpama/cascade/internal/builder"
	"github.com/hanpama/cascade/internal/config"
	"github.com/hanpama/cascade/internal/errcode"
	"github.com/hanpama/cascade/internal/eventbus"
	"github.com/hanpama/cascade/internal/events"
	"github.com/hanpama/cascade/internal/otel"
	"github.com/hanpama/cascade/internal/tracker"
)

const rootUsage = `cascade — mutation cascade tracking tools

USAGE:
  cascade <command> [flags]

COMMANDS:
  inspect          Replay a JSON operation script and print the response
  help             Show help for any command
`

const inspectUsage = `inspect FLAGS:
  -in <file>              Operation script, one JSON object per line
                          (default: stdin). Each object:
                            {"op":"create|update|delete","entity":{...}}
                          delete uses "typename" and "id" instead of "entity"
  -config <file>          YAML config for tracker/builder limits
  -pretty                 Pretty-print the JSON response
  -streaming              Assemble the response incrementally
  -otel.endpoint <addr>   OTLP collector endpoint
  -otel.service <name>    OpenTelemetry service name (default: cascade)
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("cascade", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer)) // silence automatic output
	if err := global.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]
	switch cmd {
	case "inspect":
		return cmdInspect(cmdArgs, os.Stdin, os.Stdout)
	case "help":
		return cmdHelp(cmdArgs)
	default:
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string) error {
	if len(args) == 0 {
		fmt.Print(rootUsage)
		return nil
	}
	switch args[0] {
	case "inspect":
		fmt.Print(inspectUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

// scriptOp is one line of the inspect input.
type scriptOp struct {
	Op       string         `json:"op"`
	Entity   map[string]any `json:"entity"`
	Typename string         `json:"typename"`
	ID       string         `json:"id"`
}

func cmdInspect(args []string, stdin io.Reader, stdout io.Writer) error {
	inFile := ""
	cfgFile := ""
	pretty := false
	streaming := false
	otelEndpoint := ""
	otelService := "cascade"

	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&inFile, "in", inFile, "Operation script file")
	fs.StringVar(&cfgFile, "config", cfgFile, "YAML config file")
	fs.BoolVar(&pretty, "pretty", pretty, "Pretty-print the JSON response")
	fs.BoolVar(&streaming, "streaming", streaming, "Assemble the response incrementally")
	fs.StringVar(&otelEndpoint, "otel.endpoint", otelEndpoint, "OTLP collector endpoint")
	fs.StringVar(&otelService, "otel.service", otelService, "OpenTelemetry service name")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, inspectUsage)
		return err
	}

	var trOpts []tracker.Option
	var bOpts []builder.Option
	if cfgFile != "" {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		trOpts = cfg.TrackerOptions()
		bOpts = cfg.BuilderOptions()
		if otelEndpoint == "" {
			otelEndpoint = cfg.Otel.Endpoint
		}
		if cfg.Otel.Service != "" {
			otelService = cfg.Otel.Service
		}
	}

	bus := eventbus.New()
	shutdown, err := otel.Setup(bus, otelEndpoint, otelService)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()
	eventbus.Subscribe(bus, func(_ context.Context, e events.SerializationError) {
		log.Printf("serialization error for %s:%s: %v", e.Typename, e.ID, e.Err)
	})
	eventbus.Subscribe(bus, func(_ context.Context, e events.TransactionFinish) {
		log.Printf("transaction %s finished: affected=%d depth=%d truncated=%t",
			e.TransactionID, e.AffectedCount, e.Depth, e.Truncated)
	})
	trOpts = append(trOpts, tracker.WithBus(bus))
	bOpts = append(bOpts, builder.WithBus(bus))

	in := stdin
	if inFile != "" {
		f, err := os.Open(inFile)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	t := tracker.New(trOpts...)
	if _, err := t.StartTransaction(); err != nil {
		return err
	}

	var resp *builder.Response
	if trackErr := replay(t, in); trackErr != nil {
		b := builder.New(bOpts...)
		resp = b.BuildErrorResponse(t, gqlerror.List{errcode.Wrap(errcode.ValidationError, trackErr)}, nil)
	} else if streaming {
		resp = builder.NewStreaming(bOpts...).BuildResponse(t, nil, true, nil)
	} else {
		resp = builder.New(bOpts...).BuildResponse(t, nil, true, nil)
	}

	enc := json.NewEncoder(stdout)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(resp)
}

// replay feeds each script line into the tracker. The first track error
// stops the replay; already tracked operations stay in the transaction so
// the error response still carries a partial cascade.
func replay(t *tracker.Tracker, in io.Reader) error {
	dec := json.NewDecoder(in)
	for line := 1; ; line++ {
		var op scriptOp
		if err := dec.Decode(&op); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("script line %d: %w", line, err)
		}
		var err error
		switch op.Op {
		case "create":
			err = t.TrackCreate(op.Entity)
		case "update":
			err = t.TrackUpdate(op.Entity)
		case "delete":
			err = t.TrackDelete(op.Typename, op.ID)
		default:
			err = fmt.Errorf("unknown op %q", op.Op)
		}
		if err != nil {
			return fmt.Errorf("script line %d: %w", line, err)
		}
	}
}
