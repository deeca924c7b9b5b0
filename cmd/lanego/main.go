package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/cjeanneret/LaneGo/internal/config"
	"github.com/cjeanneret/LaneGo/internal/console"
	"github.com/cjeanneret/LaneGo/internal/debug"
	"github.com/cjeanneret/LaneGo/internal/hw/stepper"
	"github.com/cjeanneret/LaneGo/internal/logic/motion"
	"github.com/cjeanneret/LaneGo/internal/web"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	var rotations rotateFlag
	flag.Var(&rotations, "rotate", "rotate a motor, channel:cw|ccw:speed:rotations (repeatable, runs as one batch)")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	useConsole := flag.Bool("console", false, "read line commands from stdin")
	serialPort := flag.String("serial", "", "read line commands from a serial port (e.g. /dev/ttyUSB0)")
	baud := flag.Int("baud", 115200, "serial baud rate")
	zero := flag.Bool("zero", false, "drive every motor pin low and exit")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	debug.PrintStruct("Lanes", cfg.Lanes)

	m, err := buildMachine(cfg)
	if err != nil {
		log.Fatalf("init hardware failed: %v", err)
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Printf("closing hardware failed: %v", err)
		}
	}()

	switch {
	case webPort.port() > 0:
		webAddr := fmt.Sprintf(":%d", webPort.port())
		broadcaster := web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

		srv := web.NewServer(webAddr, broadcaster, m.controller, m.sequence, m.info(cfg))
		if err := srv.Run(ctx); err != nil {
			log.Printf("web server: %v", err)
		}

	case *serialPort != "":
		port, err := console.OpenSerial(*serialPort, *baud)
		if err != nil {
			log.Printf("serial console: %v", err)
			return
		}
		defer port.Close()
		if err := console.New(m.controller, port, port).Run(ctx); err != nil {
			log.Printf("serial console: %v", err)
		}

	case *useConsole:
		if err := console.New(m.controller, os.Stdin, os.Stdout).Run(ctx); err != nil {
			log.Printf("console: %v", err)
		}

	default:
		if err := runOnce(m.controller, rotations, *zero); err != nil {
			log.Printf("run failed: %v", err)
			return
		}
	}
}

// runOnce executes the -rotate batch, or zeroes every pin.
func runOnce(ctrl *motion.Controller, cmds rotateFlag, zero bool) error {
	if zero {
		return ctrl.ZeroAllPins()
	}
	if len(cmds) == 0 {
		return fmt.Errorf("nothing to do: use -rotate, -zero, -console, -serial or -web")
	}

	debug.Section("One-shot batch")
	results, err := ctrl.RotateBatch(motion.Batch(cmds))
	for _, r := range results {
		debug.Info("channel %d: %d steps, %s", r.Channel, r.Steps, r.State)
	}
	return err
}

// rotateFlag implements flag.Value for repeated -rotate channel:dir:speed:rotations.
type rotateFlag []stepper.Command

func (r *rotateFlag) String() string {
	parts := make([]string, len(*r))
	for i, c := range *r {
		parts[i] = fmt.Sprintf("%d:%s:%g:%g", c.Channel, c.Direction, c.Speed, c.Rotations)
	}
	return strings.Join(parts, ",")
}

func (r *rotateFlag) Set(s string) error {
	cmd, err := console.ParseRotate(strings.Split(s, ":"))
	if err != nil {
		return fmt.Errorf("-rotate %q: %w", s, err)
	}
	*r = append(*r, cmd)
	return nil
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
