package service

import (
	"log"

	"github.com/go-co-op/gocron/v2"
)

// NewScheduler returns a scheduler limited to one job at a time, so a
// slow provider sync never overlaps with the next interval's run.
func NewScheduler() gocron.Scheduler {
	scheduler, err := gocron.NewScheduler(
		gocron.WithLimitConcurrentJobs(1, gocron.LimitModeReschedule),
	)
	if err != nil {
		log.Fatal(err)
	}
	return scheduler
}
