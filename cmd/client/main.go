package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-sync/internal/booking"
	"github.com/example/ride-sync/internal/config"
	"github.com/example/ride-sync/internal/geo"
	"github.com/example/ride-sync/internal/ingest"
	"github.com/example/ride-sync/internal/logging"
	"github.com/example/ride-sync/internal/models"
	"github.com/example/ride-sync/internal/publisher"
	"github.com/example/ride-sync/internal/push"
	"github.com/example/ride-sync/internal/routing"
)

func main() {
	var (
		role    string
		actorID string
		demo    bool
		origin  coordFlag
		dest    coordFlag
	)
	flag.StringVar(&role, "role", "rider", "client role: rider or driver")
	flag.StringVar(&actorID, "id", "", "actor id (default: generated)")
	flag.BoolVar(&demo, "demo", false, "rider only: submit a demo booking after connecting")
	flag.Var(&origin, "origin", "pickup as lat,lon (demo mode)")
	flag.Var(&dest, "dest", "destination as lat,lon (demo mode)")
	flag.Parse()

	cfg, err := config.LoadClientConfig()
	log := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Error("bad configuration", "error", err)
		os.Exit(1)
	}
	parsedRole, err := parseRole(role)
	if err != nil {
		log.Error("bad flags", "error", err)
		os.Exit(1)
	}
	if actorID == "" {
		actorID = string(parsedRole)[:1] + "-" + uuid.New().String()[:8]
	}
	log = logging.ForActor(log, string(parsedRole), actorID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// process-wide singletons: one push connection, one geolocation stream
	var channel push.Channel
	switch cfg.PushBackend {
	case "redis":
		channel = push.NewRedisChannel(cfg.RedisAddr, cfg.RedisPassword, log)
	default:
		channel = push.NewWSChannel(cfg.WSURL, cfg.ReconnectDelay, log)
	}
	if err := channel.Connect(ctx); err != nil {
		log.Error("push connect failed", "error", err)
		os.Exit(1)
	}
	defer channel.Close()

	start := models.Coord{Lat: 10.776, Lon: 106.700}
	if origin.set {
		start = origin.Coord
	}
	srcStop := make(chan struct{})
	defer close(srcStop)
	src := &geo.SimSource{Start: start, Interval: time.Second}
	sampler := geo.NewFanout(src.Run(srcStop))
	defer sampler.Close()

	var journal publisher.Journal
	if len(cfg.KafkaBrokers) > 0 {
		jp := ingest.NewJournalProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer jp.Close()
		journal = jp
	}

	orch := booking.New(booking.Options{
		Role:    parsedRole,
		ActorID: actorID,
		Config:  cfg,
		Log:     log,
		Channel: channel,
		API:     booking.NewHTTPAPI(cfg.APIBaseURL),
		Routes:  routing.NewOSRMClient(cfg.OSRMEndpoint),
		Sampler: sampler,
		Journal: journal,
	})
	orch.Start()
	defer orch.Close()

	log.Info("client running", "actor_id", actorID, "backend", cfg.PushBackend)

	if demo && parsedRole == booking.RoleRider {
		req := booking.BookingRequest{
			Origin:      start,
			Destination: models.Coord{Lat: start.Lat + 0.05, Lon: start.Lon + 0.05},
		}
		if dest.set {
			req.Destination = dest.Coord
		}
		reqID, err := orch.SubmitBooking(ctx, req)
		if err != nil {
			log.Error("demo booking failed", "error", err)
		} else {
			log.Info("demo booking submitted", "ride_request_id", reqID)
		}
	}

	t := time.NewTicker(5 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return
		case <-t.C:
			args := []any{"state", orch.CurrentState()}
			if r := orch.CurrentRoute(); r != nil {
				args = append(args, "route_m", r.DistanceMeters, "route_s", r.DurationSeconds)
			}
			if p := orch.CurrentCounterparty(); p != nil {
				args = append(args, "counterparty_lat", p.Lat, "counterparty_lon", p.Lon)
			}
			log.Info("status", args...)
		}
	}
}

func parseRole(v string) (booking.Role, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "rider":
		return booking.RoleRider, nil
	case "driver":
		return booking.RoleDriver, nil
	default:
		return "", fmt.Errorf("role must be rider or driver, got %q", v)
	}
}
