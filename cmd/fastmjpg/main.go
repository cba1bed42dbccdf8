// Command fastmjpg runs the Motion-JPEG capture/receive/fan-out pipeline:
// one input stage (capture from a V4L2 device, or receive over UDP) feeds
// zero-or-more output stages (render, record, send, pipe), all driven by
// the single-threaded scheduler in package pipeline.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/TheChrisland/FastMJPG/capture"
	"github.com/TheChrisland/FastMJPG/config"
	"github.com/TheChrisland/FastMJPG/pipe"
	"github.com/TheChrisland/FastMJPG/pipeline"
	"github.com/TheChrisland/FastMJPG/sink"
	"github.com/TheChrisland/FastMJPG/udpreceiver"
	"github.com/TheChrisland/FastMJPG/udpsender"
)

const usage = `fastmjpg <input> <output>+

input (exactly one, first):
  capture <device> <width> <height> <tbNum> <tbDen>
  receive <localIP> <localPort> <maxPacketLength> <maxJPEGLength> <width> <height> <tbNum> <tbDen>

outputs (at least one):
  render <windowWidth> <windowHeight>   (at most once)
  record <filename>
  send <localIP> <localPort> <remoteIP> <remotePort> <maxPacketLength> <maxJPEGLength> <sendRounds>
  pipe <fd> <"rgb"|"jpeg"> <maxPacketLength>

Environment variables:
  FASTMJPG_LOG_LEVEL - overrides the configured log level
`

func main() {
	var (
		configPath = flag.String("config", "", "path to a fastmjpg.toml config file (defaults to the XDG config dir)")
		logLevel   = flag.String("log-level", "", "log level (debug, info, warn, error); overrides config")
		listDevs   = flag.Bool("d", false, "list V4L2 capture devices and exit")
	)
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *listDevs {
		if err := listDevices(os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, "fastmjpg: devices:", err)
			os.Exit(1)
		}
		return
	}

	path := *configPath
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			fmt.Fprintln(os.Stderr, "fastmjpg: resolve config path:", err)
			os.Exit(1)
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fastmjpg:", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logger, err := newLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fastmjpg: logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}

	switch flag.Arg(0) {
	case "help", "-h", "--help":
		flag.Usage()
		return
	case "devices":
		if err := listDevices(os.Stdout); err != nil {
			logger.Error("fastmjpg: devices", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	if err := run(flag.Args(), cfg, logger); err != nil {
		logger.Error("fastmjpg: fatal", zap.Error(err))
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.Set(level); err != nil {
		zapLevel = zapcore.InfoLevel
	}
	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// run parses the <input> <output>+ grammar, builds the pipeline, wires
// SIGINT to the scheduler, and drives the scheduler to completion.
func run(args []string, cfg config.Config, logger *zap.Logger) error {
	topo, err := parseTopology(args)
	if err != nil {
		return err
	}

	var (
		source        pipeline.Source
		closers       []func() error
		sourceWidth   uint32
		sourceHeight  uint32
		tbNum, tbDen  uint32
		receiverGuard *udpreceiver.Receiver // set only for `receive`, so SIGINT can close its fd
	)

	switch in := topo.input.(type) {
	case captureInput:
		dev, err := capture.Open(in.device, in.width, in.height, in.tbNum, in.tbDen)
		if err != nil {
			return fmt.Errorf("capture: %w", err)
		}
		closers = append(closers, dev.Close)
		source = pipeline.CaptureSource{Device: dev}
		sourceWidth, sourceHeight, tbNum, tbDen = in.width, in.height, in.tbNum, in.tbDen

	case receiveInput:
		recv, err := udpreceiver.New(in.maxPacketLength, in.maxJPEGLength, in.localAddr, in.localPort)
		if err != nil {
			return fmt.Errorf("receive: %w", err)
		}
		closers = append(closers, recv.Close)
		source = pipeline.ReceiveSource{Receiver: recv}
		receiverGuard = recv
		sourceWidth, sourceHeight, tbNum, tbDen = in.width, in.height, in.tbNum, in.tbDen

	default:
		return fmt.Errorf("fastmjpg: unreachable input type %T", in)
	}

	needsRGB := false
	for _, o := range topo.outputs {
		if _, ok := o.(renderOutput); ok {
			needsRGB = true
		}
		if p, ok := o.(pipeOutput); ok && p.rgb {
			needsRGB = true
		}
	}

	var decoder sink.Decoder
	if needsRGB {
		decoder = sink.NewJPEGDecoder(int(sourceWidth), int(sourceHeight))
	}

	var stages []pipeline.SinkStage
	for _, o := range topo.outputs {
		stage, closer, err := buildSinkStage(o, sourceWidth, sourceHeight, tbNum, tbDen, cfg)
		if err != nil {
			return err
		}
		stages = append(stages, stage)
		if closer != nil {
			closers = append(closers, closer)
		}
	}

	sched := pipeline.New(source, decoder, stages)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		logger.Info("fastmjpg: shutdown signal received")
		sched.RequestShutdown()
		// Closing the receiver's fd from outside the blocked recvfrom is
		// the one additional signal-reachable action this pipeline needs;
		// every other teardown step runs after Run returns, below.
		if receiverGuard != nil {
			_ = receiverGuard.Close()
		}
	}()

	runErr := sched.Run()

	// Reverse-order teardown, matching construction order.
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			logger.Warn("fastmjpg: error during teardown", zap.Error(err))
		}
	}

	return runErr
}

// resolveSendRounds applies cfg.Send.SendRounds as the fallback when the
// send output's positional sendRounds argument is 0, which transmits
// nothing and so carries no useful meaning of its own.
func resolveSendRounds(explicit, configured uint32) uint32 {
	if explicit == 0 {
		return configured
	}
	return explicit
}

func buildSinkStage(o output, width, height, tbNum, tbDen uint32, cfg config.Config) (pipeline.SinkStage, func() error, error) {
	switch o := o.(type) {
	case recordOutput:
		rec, err := sink.NewMatroskaRecorder(o.filename, width, height, tbNum, tbDen)
		if err != nil {
			return pipeline.SinkStage{}, nil, fmt.Errorf("record: %w", err)
		}
		return pipeline.SinkStage{Kind: pipeline.SinkRecorder, Writer: pipeline.RecorderWriter{Recorder: rec}}, rec.Close, nil

	case sendOutput:
		s, err := udpsender.New(o.maxPacketLength, o.maxJPEGLength, o.localAddr, o.localPort, o.remoteAddr, o.remotePort)
		if err != nil {
			return pipeline.SinkStage{}, nil, fmt.Errorf("send: %w", err)
		}
		writer := pipeline.UDPSenderWriter{Sender: s, SendRounds: resolveSendRounds(o.sendRounds, cfg.Send.SendRounds)}
		return pipeline.SinkStage{Kind: pipeline.SinkUDPSender, Writer: writer}, s.Close, nil

	case pipeOutput:
		w := pipe.New(o.fd, o.maxPacketLength)
		kind := pipeline.SinkPipeJPEG
		if o.rgb {
			kind = pipeline.SinkPipeRGB
		}
		return pipeline.SinkStage{Kind: kind, Writer: pipeline.PipeWriter{Writer: w}}, nil, nil

	case renderOutput:
		r, err := sink.NewSnapshotRenderer(int(o.width), int(o.height), filepath.Join(os.TempDir(), "fastmjpg-preview.png"))
		if err != nil {
			return pipeline.SinkStage{}, nil, fmt.Errorf("render: %w", err)
		}
		return pipeline.SinkStage{Kind: pipeline.SinkRenderer, Writer: pipeline.RendererWriter{Renderer: r}}, nil, nil

	default:
		return pipeline.SinkStage{}, nil, fmt.Errorf("fastmjpg: unreachable output type %T", o)
	}
}

// --- topology grammar ---

type topology struct {
	input   input
	outputs []output
}

type input interface{ isInput() }
type output interface{ isOutput() }

type captureInput struct {
	device               string
	width, height        uint32
	tbNum, tbDen         uint32
}

func (captureInput) isInput() {}

type receiveInput struct {
	localAddr                    [4]byte
	localPort                    int
	maxPacketLength, maxJPEGLength uint32
	width, height                uint32
	tbNum, tbDen                 uint32
}

func (receiveInput) isInput() {}

type renderOutput struct{ width, height uint32 }

func (renderOutput) isOutput() {}

type recordOutput struct{ filename string }

func (recordOutput) isOutput() {}

type sendOutput struct {
	localAddr                     [4]byte
	localPort                     int
	remoteAddr                    [4]byte
	remotePort                    int
	maxPacketLength, maxJPEGLength uint32
	sendRounds                     uint32
}

func (sendOutput) isOutput() {}

type pipeOutput struct {
	fd              int
	rgb             bool
	maxPacketLength uint32
}

func (pipeOutput) isOutput() {}

// parseTopology implements the CLI grammar: exactly one input, input
// must be first, at most one render, at least one output.
func parseTopology(args []string) (topology, error) {
	if len(args) == 0 {
		return topology{}, errors.New("fastmjpg: no arguments given")
	}
	if args[0] != "capture" && args[0] != "receive" {
		return topology{}, errors.New("fastmjpg: first argument must be capture or receive")
	}

	var topo topology
	i := 0
	renderCount := 0

	consume := func(n int) ([]string, error) {
		if i+n > len(args) {
			return nil, fmt.Errorf("fastmjpg: %q: not enough arguments", args[i])
		}
		out := args[i : i+n]
		i += n
		return out, nil
	}

	for i < len(args) {
		switch args[i] {
		case "capture":
			if topo.input != nil {
				return topology{}, errors.New("fastmjpg: capture/receive must be the first argument only")
			}
			fields, err := consume(6)
			if err != nil {
				return topology{}, err
			}
			w, h, n, d, perr := parseUints(fields[2], fields[3], fields[4], fields[5])
			if perr != nil {
				return topology{}, perr
			}
			topo.input = captureInput{device: fields[1], width: w, height: h, tbNum: n, tbDen: d}

		case "receive":
			if topo.input != nil {
				return topology{}, errors.New("fastmjpg: capture/receive must be the first argument only")
			}
			fields, err := consume(9)
			if err != nil {
				return topology{}, err
			}
			port, err := strconv.Atoi(fields[2])
			if err != nil {
				return topology{}, fmt.Errorf("fastmjpg: receive: bad local port: %w", err)
			}
			maxPacketLength, maxJPEGLength, width, height, perr := parseUints(fields[3], fields[4], fields[5], fields[6])
			if perr != nil {
				return topology{}, perr
			}
			tbNum, tbDen, perr := parseUints2(fields[7], fields[8])
			if perr != nil {
				return topology{}, perr
			}
			addr, err := parseIPv4(fields[1])
			if err != nil {
				return topology{}, fmt.Errorf("fastmjpg: receive: %w", err)
			}
			topo.input = receiveInput{
				localAddr: addr, localPort: port,
				maxPacketLength: maxPacketLength, maxJPEGLength: maxJPEGLength,
				width: width, height: height, tbNum: tbNum, tbDen: tbDen,
			}

		case "render":
			fields, err := consume(3)
			if err != nil {
				return topology{}, err
			}
			w, h, perr := parseUints2(fields[1], fields[2])
			if perr != nil {
				return topology{}, perr
			}
			renderCount++
			if renderCount > 1 {
				return topology{}, errors.New("fastmjpg: at most one render output is allowed")
			}
			topo.outputs = append(topo.outputs, renderOutput{width: w, height: h})

		case "record":
			fields, err := consume(2)
			if err != nil {
				return topology{}, err
			}
			topo.outputs = append(topo.outputs, recordOutput{filename: fields[1]})

		case "send":
			fields, err := consume(8)
			if err != nil {
				return topology{}, err
			}
			localPort, err := strconv.Atoi(fields[2])
			if err != nil {
				return topology{}, fmt.Errorf("fastmjpg: send: bad local port: %w", err)
			}
			remotePort, err := strconv.Atoi(fields[4])
			if err != nil {
				return topology{}, fmt.Errorf("fastmjpg: send: bad remote port: %w", err)
			}
			maxPacketLength, maxJPEGLength, sendRounds, _, perr := parseUints(fields[5], fields[6], fields[7], "0")
			if perr != nil {
				return topology{}, perr
			}
			localAddr, err := parseIPv4(fields[1])
			if err != nil {
				return topology{}, fmt.Errorf("fastmjpg: send: %w", err)
			}
			remoteAddr, err := parseIPv4(fields[3])
			if err != nil {
				return topology{}, fmt.Errorf("fastmjpg: send: %w", err)
			}
			topo.outputs = append(topo.outputs, sendOutput{
				localAddr: localAddr, localPort: localPort,
				remoteAddr: remoteAddr, remotePort: remotePort,
				maxPacketLength: maxPacketLength, maxJPEGLength: maxJPEGLength, sendRounds: sendRounds,
			})

		case "pipe":
			fields, err := consume(4)
			if err != nil {
				return topology{}, err
			}
			fd, err := strconv.Atoi(fields[1])
			if err != nil {
				return topology{}, fmt.Errorf("fastmjpg: pipe: bad fd: %w", err)
			}
			rgb := fields[2] == "rgb"
			if !rgb && fields[2] != "jpeg" {
				return topology{}, fmt.Errorf("fastmjpg: pipe: expected \"rgb\" or \"jpeg\", got %q", fields[2])
			}
			maxPacketLength, err := strconv.ParseUint(fields[3], 10, 32)
			if err != nil || maxPacketLength == 0 {
				// The original source never assigned pipe's maxPacketLength
				// from its CLI arguments at all; this implementation treats
				// it as required and rejects zero, resolving an open
				// question decision.
				return topology{}, fmt.Errorf("fastmjpg: pipe: maxPacketLength must be a positive integer")
			}
			topo.outputs = append(topo.outputs, pipeOutput{fd: fd, rgb: rgb, maxPacketLength: uint32(maxPacketLength)})

		default:
			return topology{}, fmt.Errorf("fastmjpg: unexpected argument %q", args[i])
		}
	}

	if topo.input == nil {
		return topology{}, errors.New("fastmjpg: first argument must be capture or receive")
	}
	if len(topo.outputs) == 0 {
		return topology{}, errors.New("fastmjpg: at least one output is required")
	}
	return topo, nil
}

func parseUints(a, b, c, d string) (x, y, z, w uint32, err error) {
	vals := make([]uint32, 4)
	for i, s := range []string{a, b, c, d} {
		v, perr := strconv.ParseUint(s, 10, 32)
		if perr != nil {
			return 0, 0, 0, 0, fmt.Errorf("fastmjpg: expected a non-negative integer, got %q", s)
		}
		vals[i] = uint32(v)
	}
	return vals[0], vals[1], vals[2], vals[3], nil
}

func parseUints2(a, b string) (x, y uint32, err error) {
	x, y, _, _, err = parseUints(a, b, "0", "0")
	return x, y, err
}

func parseIPv4(s string) ([4]byte, error) {
	var addr [4]byte
	parts := splitN(s, '.', 4)
	if len(parts) != 4 {
		return addr, fmt.Errorf("invalid IPv4 address %q", s)
	}
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 || v > 255 {
			return addr, fmt.Errorf("invalid IPv4 address %q", s)
		}
		addr[i] = byte(v)
	}
	return addr, nil
}

func splitN(s string, sep byte, n int) []string {
	var out []string
	start := 0
	for i := 0; i < len(s) && len(out) < n-1; i++ {
		if s[i] == sep {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
