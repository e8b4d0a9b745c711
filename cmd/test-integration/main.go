package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"aerialplan/internal/geo"
	"aerialplan/internal/logging"
	"aerialplan/internal/pattern"
	"aerialplan/internal/pipeline"
	"aerialplan/internal/planner"
	"aerialplan/internal/storage"
)

func main() {
	fmt.Println("Testing planner + pipeline + storage integration")

	dir, err := os.MkdirTemp("", "aerialplan-it")
	if err != nil {
		log.Fatal("Failed to create temp dir:", err)
	}
	defer os.RemoveAll(dir)

	store, err := storage.New(filepath.Join(dir, "test_integration.db"))
	if err != nil {
		log.Fatal("Failed to create storage:", err)
	}
	defer store.Close()

	logger := logging.New("warn", "text")
	svc := planner.NewService(geo.NewFrame(), planner.DefaultSettings, planner.NewCache(32, time.Minute), nil, logger)
	pipe := pipeline.New(context.Background(), pipeline.Options{Concurrency: 2, MissionID: "it"}, logger, store, svc, nil)
	defer pipe.Stop()

	if _, err := pipe.SetOrigin(geo.Origin{Latitude: 47.3769, Longitude: 8.5417, AltitudeMSL: 408}); err != nil {
		log.Fatal("Failed to set origin:", err)
	}
	fmt.Println("Origin set")

	square := []geo.ENUPoint{{East: 0, North: 0}, {East: 120, North: 0}, {East: 120, North: 80}, {East: 0, North: 80}}
	requests := []planner.Request{
		{Name: "orbit", Pattern: pattern.Envelope{Params: pattern.OrbitParams{Radius: 25, Altitude: 40, Segments: 24, OrbitCount: 2, VerticalShiftPerOrbit: 10}}},
		{Name: "spiral", Pattern: pattern.Envelope{Params: pattern.SpiralParams{StartRadius: 10, EndRadius: 40, StartAltitude: 20, EndAltitude: 60, Revolutions: 3, Segments: 48}}},
		{Name: "facade", Pattern: pattern.Envelope{Params: pattern.FacadeParams{
			Corners: [4]geo.ENUPoint{square[0], {East: 30}, {East: 30, North: 20}, {North: 20}}, Height: 18, StandoffDistance: 8, OverlapPct: 70, SelectedFaces: []int{0, 1},
		}}},
		{Name: "survey", Pattern: pattern.Envelope{Params: pattern.SurveyParams{Polygon: square, Altitude: 60, FrontOverlapPct: 75, SideOverlapPct: 65}}},
	}

	results, unsubscribe := pipe.Subscribe()
	defer unsubscribe()

	ids := make(map[string]string)
	for _, req := range requests {
		job, err := pipe.Submit(pipeline.Job{Source: "test-integration", Request: req})
		if err != nil {
			log.Fatalf("Failed to submit %s: %v", req.Name, err)
		}
		ids[job.ID] = req.Name
	}

	timeout := time.After(30 * time.Second)
	for done := 0; done < len(requests); done++ {
		select {
		case res := <-results:
			if res.Error != nil {
				log.Fatalf("Job %s (%s) failed: %v", res.Job.ID, ids[res.Job.ID], res.Error)
			}
			s := res.Plan.Stats
			fmt.Printf("   %-7s %4d waypoints  %7.1f m  %6.1f s  %3d images  %d warnings\n",
				res.Plan.Name, len(res.Plan.Waypoints), s.TotalDistance, s.EstimatedTime, s.ImagesRequired, len(res.Plan.Warnings))
		case <-timeout:
			log.Fatal("Timed out waiting for jobs")
		}
	}

	recs, err := store.RecentJobs(10)
	if err != nil {
		log.Fatal("Failed to list jobs:", err)
	}
	for _, rec := range recs {
		stored, err := store.JobResult(rec.ID)
		if err != nil {
			log.Fatalf("Failed to load result for %s: %v", rec.Name, err)
		}
		fmt.Printf("Stored %s: %d waypoints (generation %d)\n", rec.Name, len(stored.Waypoints), rec.Generation)
	}

	if _, err := pipe.Reorigin(geo.Origin{Latitude: 47.3770, Longitude: 8.5417, AltitudeMSL: 408}); err != nil {
		log.Fatal("Failed to re-origin:", err)
	}
	recs, err = store.RecentJobs(10)
	if err != nil {
		log.Fatal("Failed to list jobs:", err)
	}
	for _, rec := range recs {
		if !rec.Stale {
			log.Fatalf("Plan %s should be stale after re-origin", rec.Name)
		}
	}
	fmt.Println("All plans marked stale after re-origin")
	fmt.Println("Integration test complete")
}
