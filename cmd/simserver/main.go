package main

import (
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/example/ride-sync/internal/logging"
	"github.com/example/ride-sync/internal/simserver"
)

func main() {
	var (
		addr        string
		driverID    string
		assignDelay time.Duration
		manual      bool
	)
	flag.StringVar(&addr, "addr", getenv("HTTP_ADDR", ":8080"), "listen address")
	flag.StringVar(&driverID, "driver-id", "D-SIM", "id of the scripted driver")
	flag.DurationVar(&assignDelay, "assign-delay", 2*time.Second, "delay before the scripted driver is assigned")
	flag.BoolVar(&manual, "manual", false, "wait for a real driver client to accept instead of auto-assigning")
	flag.Parse()

	log := logging.NewLogger(getenv("LOG_LEVEL", "info"), getenv("LOG_FORMAT", "json"))
	srv := simserver.NewServer(log)
	srv.DriverID = driverID
	srv.AssignDelay = assignDelay
	srv.AutoAssign = !manual

	log.Info("sim backend listening", "addr", addr, "driver_id", driverID, "auto_assign", !manual)
	if err := http.ListenAndServe(addr, srv); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
