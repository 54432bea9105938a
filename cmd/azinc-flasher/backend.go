package main

import (
	"fmt"
	"io"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/pflag"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/bigbag/azinc-flasher/internal/board"
	"github.com/bigbag/azinc-flasher/internal/bridge"
	"github.com/bigbag/azinc-flasher/internal/detect"
	"github.com/bigbag/azinc-flasher/internal/isp"
	"github.com/bigbag/azinc-flasher/internal/periph"
	"github.com/bigbag/azinc-flasher/internal/serial"
)

const (
	defaultBaudRate = 115200

	pollInterval = time.Millisecond
	pollTimeout  = 100 * time.Millisecond
)

var (
	backendFlag  string
	portFlag     string
	baudFlag     int
	spiFlag      string
	spiSpeedFlag string
	i2cFlag      string
	resetPinFlag string
	pollBusyFlag bool
)

func addBackendFlags(fs *pflag.FlagSet) {
	fs.StringVar(&backendFlag, "backend", "serial", "Transport to the board: serial or periph")
	fs.StringVarP(&portFlag, "port", "p", "", "Bridge serial port (auto-detect if not specified)")
	fs.IntVarP(&baudFlag, "baud", "b", defaultBaudRate, "Bridge baud rate")
	fs.StringVar(&spiFlag, "spi", "", "SPI port for the periph backend (first available if empty)")
	fs.StringVar(&spiSpeedFlag, "spi-speed", periph.DefaultSpeed.String(), "SPI clock for the periph backend")
	fs.StringVar(&i2cFlag, "i2c", "", "I2C bus for the periph backend (first available if empty)")
	fs.StringVar(&resetPinFlag, "reset-pin", "GPIO25", "Target reset pin for the periph backend")
	fs.BoolVar(&pollBusyFlag, "poll-busy", false, "Poll the target busy flag instead of fixed write delays")
}

// boardConn is an opened board plus whatever has to be closed with it.
type boardConn struct {
	Board *board.Board
	Port  string

	closer io.Closer
}

func (c *boardConn) Close() error {
	return c.closer.Close()
}

func openBoard() (*boardConn, error) {
	var opts []board.Option
	if pollBusyFlag {
		opts = append(opts, board.WithISPOptions(isp.WithBusyPolling(pollInterval, pollTimeout)))
	}

	var conn *boardConn
	var err error
	switch backendFlag {
	case "serial":
		conn, err = openSerial(opts)
	case "periph":
		conn, err = openPeriph(opts)
	default:
		return nil, fmt.Errorf("unknown backend %q (want serial or periph)", backendFlag)
	}
	if err != nil {
		return nil, err
	}

	if err := conn.Board.Init(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialise board: %w", err)
	}
	return conn, nil
}

func openSerial(opts []board.Option) (*boardConn, error) {
	portName := portFlag
	if portName == "" {
		fmt.Println("Detecting bridge...")
		result, err := detect.FindBridge(baudFlag)
		if err != nil {
			return nil, fmt.Errorf("bridge detection failed: %w", err)
		}
		portName = result.Port.Name
		fmt.Printf("Found bridge on %s\n", result.Port)
	}

	port, err := serial.Open(portName, baudFlag)
	if err != nil {
		return nil, fmt.Errorf("failed to open port: %w", err)
	}

	if err := port.ResetBridge(); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to reset bridge: %w", err)
	}

	client := bridge.NewClient(port)
	fw, err := client.Sync()
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to sync with bridge: %w", err)
	}
	glog.Infof("Bridge on %s @ %d baud, firmware %d", portName, baudFlag, fw)

	return &boardConn{
		Board:  board.New(client, client, opts...),
		Port:   portName,
		closer: port,
	}, nil
}

func openPeriph(opts []board.Option) (*boardConn, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialise host drivers: %w", err)
	}

	var speed physic.Frequency
	if err := speed.Set(spiSpeedFlag); err != nil {
		return nil, fmt.Errorf("invalid SPI speed %q: %w", spiSpeedFlag, err)
	}

	pb, err := periph.Open(periph.Config{
		SPI:      spiFlag,
		Speed:    speed,
		ResetPin: resetPinFlag,
		I2C:      i2cFlag,
	})
	if err != nil {
		return nil, err
	}
	glog.Infof("Host peripherals open: SPI %q @ %s, reset %s, I2C %q", spiFlag, speed, resetPinFlag, i2cFlag)

	return &boardConn{
		Board:  board.New(pb, pb, opts...),
		closer: pb,
	}, nil
}
