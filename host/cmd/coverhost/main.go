package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"coverctl/host/config"
	"coverctl/host/session"
)

var (
	configPath = flag.String("config", "", "Path to YAML config file")
	port       = flag.String("port", "", "Serial device path (overrides config; empty = auto-detect)")
	verbose    = flag.Bool("verbose", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}
	if err := config.Validate(cfg); err != nil {
		logger.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Serial.Port = *port
	}

	connector := session.NewConnector(cfg.SessionConfig())
	connector.Logger = logger

	sess, err := connector.Connect()
	if err != nil {
		logger.Error("connect failed", "error", err)
		os.Exit(1)
	}
	defer sess.Close()

	if args := flag.Args(); len(args) > 0 {
		if err := runCommand(sess, args); err != nil {
			logger.Error("command failed", "error", err)
			os.Exit(1)
		}
		return
	}

	// Interactive loop
	fmt.Println("Connected. Enter commands (type 'help' for available commands, 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		args := strings.Fields(line)
		switch args[0] {
		case "quit", "exit", "q":
			return
		case "help", "?":
			printHelp()
		default:
			if err := runCommand(sess, args); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
		}
	}
}

func runCommand(sess *session.Session, args []string) error {
	switch args[0] {
	case "open":
		if err := sess.OpenCover(); err != nil {
			return describeRejection(err, "cover cannot open from its current state (is it calibrated?)")
		}
		fmt.Println("Opening...")
		return nil

	case "close":
		if err := sess.CloseCover(); err != nil {
			return describeRejection(err, "cover cannot close from its current state")
		}
		fmt.Println("Closing...")
		return nil

	case "calibrate":
		if err := sess.Calibrate(); err != nil {
			return err
		}
		fmt.Println("Calibration sweep started; device will be unresponsive for ~19s")
		return nil

	case "status":
		status, err := sess.CoverStatus()
		if err != nil {
			return err
		}
		on, err := sess.CalibratorStatus()
		if err != nil {
			return err
		}
		fmt.Printf("Cover: %s  Calibrator: %s\n", status, onOff(on))
		return nil

	case "calibrator":
		if len(args) != 2 {
			return errors.New("usage: calibrator {on|off}")
		}
		switch args[1] {
		case "on":
			return sess.CalibratorOn()
		case "off":
			return sess.CalibratorOff()
		default:
			return fmt.Errorf("unknown calibrator state %q", args[1])
		}

	case "cal":
		slope, intercept, calibrated, err := sess.Calibration()
		if err != nil {
			return err
		}
		if !calibrated {
			fmt.Println("Not calibrated")
			return nil
		}
		fmt.Printf("slope=%g intercept=%g\n", slope, intercept)
		return nil

	case "halt":
		return sess.HaltMotion()

	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func describeRejection(err error, hint string) error {
	if errors.Is(err, session.ErrRejected) {
		return fmt.Errorf("%w (%s)", err, hint)
	}
	return err
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func printHelp() {
	fmt.Println(`Commands:
  open              Open the telescope cover
  close             Close the telescope cover
  calibrate         Run a calibration sweep (device blocks ~19s)
  status            Show cover and calibrator state
  calibrator on     Light the spectral calibrator
  calibrator off    Extinguish the spectral calibrator
  cal               Show stored calibration coefficients
  halt              (not supported by the device)
  quit              Exit`)
}
