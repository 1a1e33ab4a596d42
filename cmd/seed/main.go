// Command seed loads demo data for local development: a handful of watch
// zones around San José, permissive notification settings for their owners,
// and a stream of sample incidents published to the incident topic. Run it
// against a local broker (and optionally Postgres) to exercise the full
// evaluation loop.
//
// Usage:
//
//	go run ./cmd/seed \
//	  -brokers localhost:9092 \
//	  -topic reported-incidents \
//	  -incidents 20
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/civicwatch/incident-proximity-service/internal/domain"
	"github.com/civicwatch/incident-proximity-service/internal/notify"
	"github.com/civicwatch/incident-proximity-service/internal/store"
	"github.com/civicwatch/incident-proximity-service/internal/zones"
)

// sanJose anchors all generated data; incidents scatter around it.
var sanJose = domain.Coordinate{Lat: 9.9281, Lng: -84.0907}

type demoZone struct {
	owner  string
	name   string
	center domain.Coordinate
	radius float64
}

var demoZones = []demoZone{
	{owner: "ana@example.com", name: "Casa", center: domain.Coordinate{Lat: 9.9346, Lng: -84.0650}, radius: 3},
	{owner: "ana@example.com", name: "Trabajo", center: domain.Coordinate{Lat: 9.9355, Lng: -84.1030}, radius: 2},
	{owner: "luis@example.com", name: "Universidad", center: domain.Coordinate{Lat: 9.9370, Lng: -84.0510}, radius: 5},
	{owner: "maria@example.com", name: "Barrio Escazú", center: domain.Coordinate{Lat: 9.9190, Lng: -84.1400}, radius: 4},
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	brokers := flag.String("brokers", "localhost:9092", "comma-separated Kafka brokers")
	topic := flag.String("topic", "reported-incidents", "incident topic to publish to")
	count := flag.Int("incidents", 20, "number of sample incidents to publish")
	databaseURL := flag.String("database-url", "", "optional Postgres URL; seeds zones and settings when set")
	seed := flag.Int64("seed", time.Now().UnixNano(), "random seed for reproducible runs")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	rng := rand.New(rand.NewSource(*seed))

	if *databaseURL != "" {
		if err := seedStore(ctx, *databaseURL); err != nil {
			return fmt.Errorf("seeding store: %w", err)
		}
	} else {
		log.Print("no -database-url given, skipping zone seeding")
	}

	if err := publishIncidents(ctx, strings.Split(*brokers, ","), *topic, *count, rng); err != nil {
		return fmt.Errorf("publishing incidents: %w", err)
	}
	return nil
}

// seedStore creates the demo zones and enables notifications for their
// owners. Zones are appended, so repeated runs accumulate.
func seedStore(ctx context.Context, databaseURL string) error {
	pg, err := store.NewPostgresStore(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer pg.Close()

	zoneStore := zones.NewStore(pg, clockwork.NewRealClock())
	settings := notify.NewSettingsStore(pg)

	for _, z := range demoZones {
		zone, err := zoneStore.Create(ctx, domain.WatchZoneInput{
			Name:     z.name,
			Center:   z.center,
			RadiusKm: z.radius,
			OwnerID:  z.owner,
		})
		if err != nil {
			return fmt.Errorf("create zone %q: %w", z.name, err)
		}
		log.Printf("zone %s (%s): %s", zone.Name, zone.OwnerID, zone.ID)

		if err := settings.Save(ctx, z.owner, domain.DefaultNotificationSettings()); err != nil {
			return fmt.Errorf("save settings for %s: %w", z.owner, err)
		}
	}
	log.Printf("seeded %d zones", len(demoZones))
	return nil
}

// publishIncidents writes count random incidents near San José to the
// incident topic.
func publishIncidents(ctx context.Context, brokers []string, topic string, count int, rng *rand.Rand) error {
	producer := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	defer producer.Close() //nolint:errcheck

	msgs := make([]kafkago.Message, 0, count)
	for i := 0; i < count; i++ {
		incident := randomIncident(rng)
		payload, err := json.Marshal(incident)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafkago.Message{Key: []byte(incident.ID), Value: payload})
		log.Printf("incident %s: %s %s at (%.4f, %.4f)",
			incident.ID, incident.Severity, incident.Type, incident.Location.Lat, incident.Location.Lng)
	}

	if err := producer.WriteMessages(ctx, msgs...); err != nil {
		return err
	}
	log.Printf("published %d incidents to %s", count, topic)
	return nil
}

// randomIncident scatters incidents within roughly 10 km of the center so
// a fair share lands inside the demo zones.
func randomIncident(rng *rand.Rand) domain.Incident {
	return domain.Incident{
		ID:       uuid.NewString(),
		Type:     domain.IncidentTypes[rng.Intn(len(domain.IncidentTypes))],
		Severity: domain.Severities[rng.Intn(len(domain.Severities))],
		Location: domain.Coordinate{
			Lat: sanJose.Lat + (rng.Float64()-0.5)*0.18,
			Lng: sanJose.Lng + (rng.Float64()-0.5)*0.18,
		},
		CreatedAt: time.Now().UnixMilli(),
	}
}
