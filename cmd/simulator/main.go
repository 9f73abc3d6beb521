package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

var (
	serverURL         = flag.String("server", "ws://localhost:9000/ocpp", "CSMS WebSocket URL")
	chargePointID     = flag.String("id", "CP001", "Charge Point ID")
	vendor            = flag.String("vendor", "VoltGrid", "Charge Point Vendor")
	model             = flag.String("model", "SimulatorV1", "Charge Point Model")
	serial            = flag.String("serial", "SIM001", "Serial Number")
	firmware          = flag.String("firmware", "1.0.0", "Firmware Version")
	idTag             = flag.String("tag", "TAG-001", "Default idTag for charging sessions")
	connectorCount    = flag.Int("connectors", 2, "Number of connectors")
	meterIntervalSecs = flag.Int("meter-interval", 30, "MeterValues interval while charging (seconds)")
	interactive       = flag.Bool("interactive", false, "Enable interactive mode")
	verbose           = flag.Bool("verbose", false, "Enable verbose logging")
)

func main() {
	flag.Parse()

	// Setup logger
	var logger *zap.Logger
	var err error
	if *verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	config := &SimulatorConfig{
		ServerURL:       *serverURL,
		ChargePointID:   *chargePointID,
		Vendor:          *vendor,
		Model:           *model,
		SerialNumber:    *serial,
		FirmwareVersion: *firmware,
		DefaultIdTag:    *idTag,
		ConnectorCount:  *connectorCount,
		MeterInterval:   *meterIntervalSecs,
	}

	simulator := NewSimulator(config, logger)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down simulator...")
		simulator.Stop()
		os.Exit(0)
	}()

	if err := simulator.Connect(); err != nil {
		logger.Fatal("Failed to connect to server", zap.Error(err))
	}

	if *interactive {
		runInteractiveMode(simulator)
	} else {
		fmt.Printf("OCPP 1.6 Charge Point Simulator started\n")
		fmt.Printf("  ID: %s\n", *chargePointID)
		fmt.Printf("  Server: %s\n", *serverURL)
		fmt.Println("\nPress Ctrl+C to stop")

		select {}
	}
}

func runInteractiveMode(sim *Simulator) {
	fmt.Println("\nOCPP 1.6 Charge Point Simulator - Interactive Mode")
	fmt.Println("==================================================")
	fmt.Println("Commands:")
	fmt.Println("  start <connector> [idTag]  - Authorize and start charging")
	fmt.Println("  stop <connector>           - Stop charging on connector")
	fmt.Println("  status <connector> <state> - Send StatusNotification (Available/Preparing/Charging/Faulted...)")
	fmt.Println("  meter <connector> <wh>     - Advance the meter and send MeterValues")
	fmt.Println("  heartbeat                  - Send heartbeat")
	fmt.Println("  fault <connector>          - Simulate a fault")
	fmt.Println("  quit                       - Exit simulator")
	fmt.Println("")

	sim.RunInteractive()
}
